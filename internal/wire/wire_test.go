package wire

import (
	"bytes"
	"errors"
	"testing"
)

func TestTupleRoundTrip(t *testing.T) {
	data, err := Encode("CiphTest", "6.0.0", []byte{1, 2, 3}, 4, nil)
	if nil != err {
		t.Fatalf("failed Encode, got error %v", err)
	}

	tup, err := Decode(data)
	if nil != err {
		t.Fatalf("failed Decode, got error %v", err)
	}
	if tup.Len() != 5 {
		t.Fatalf("unexpected arity %d", tup.Len())
	}

	err = tup.Header("CiphTest", 5)
	if nil != err {
		t.Errorf("failed Header control, got error %v", err)
	}

	v, err := tup.String(1)
	if nil != err || v != "6.0.0" {
		t.Errorf("failed String, got %q error %v", v, err)
	}
	b, err := tup.Bytes(2)
	if nil != err || !bytes.Equal(b, []byte{1, 2, 3}) {
		t.Errorf("failed Bytes, got %v error %v", b, err)
	}
	n, err := tup.Int(3)
	if nil != err || n != 4 {
		t.Errorf("failed Int, got %d error %v", n, err)
	}
	s, err := tup.OptionalString(4)
	if nil != err || s != "" {
		t.Errorf("failed OptionalString on null, got %q error %v", s, err)
	}
}

func TestOptionalStringPresent(t *testing.T) {
	data, err := Encode("CiphTest", "token")
	if nil != err {
		t.Fatalf("failed Encode, got error %v", err)
	}
	tup, err := Decode(data)
	if nil != err {
		t.Fatalf("failed Decode, got error %v", err)
	}
	s, err := tup.OptionalString(1)
	if nil != err || s != "token" {
		t.Errorf("failed OptionalString, got %q error %v", s, err)
	}
}

func TestDecodeRejectsNonTuple(t *testing.T) {
	_, err := Decode([]byte{0x01}) // cbor unsigned int, not an array
	if !errors.Is(err, ErrMalformed) {
		t.Errorf("expected ErrMalformed, got %v", err)
	}
}

func TestHeaderMismatch(t *testing.T) {
	data, err := Encode("CiphDvce", "id")
	if nil != err {
		t.Fatalf("failed Encode, got error %v", err)
	}
	tup, err := Decode(data)
	if nil != err {
		t.Fatalf("failed Decode, got error %v", err)
	}

	err = tup.Header("CiphSrvc", 2)
	if !errors.Is(err, ErrMalformed) {
		t.Errorf("expected ErrMalformed on header mismatch, got %v", err)
	}
	err = tup.Header("CiphDvce", 3, 4)
	if !errors.Is(err, ErrMalformed) {
		t.Errorf("expected ErrMalformed on arity mismatch, got %v", err)
	}
}

func TestItemOutOfRange(t *testing.T) {
	data, _ := Encode("CiphTest")
	tup, _ := Decode(data)
	var v string
	err := tup.Item(1, &v)
	if !errors.Is(err, ErrMalformed) {
		t.Errorf("expected ErrMalformed, got %v", err)
	}
}
