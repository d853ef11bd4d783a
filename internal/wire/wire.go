// Package wire packs ordered value tuples into bytes and back.
//
// Every Cipherise session snapshot (service, device, enrolment, push & wave
// authentications) serializes as one flat tuple whose first element is a fixed
// ASCII header naming the entity type. The binary encoding is a cbor array.
package wire

import (
	"github.com/fxamacker/cbor/v2"
)

// Encode packs values into a single binary tuple.
func Encode(values ...any) ([]byte, error) {
	data, err := cbor.Marshal(values)
	return data, wrapError(err, "failed tuple encoding") // nil if err is nil
}

// Tuple gives positional typed access to a decoded value tuple.
type Tuple struct {
	items []cbor.RawMessage
}

// Decode unpacks data into a Tuple.
// It errors if data is not a binary encoded array.
func Decode(data []byte) (Tuple, error) {
	var items []cbor.RawMessage
	err := cbor.Unmarshal(data, &items)
	if nil != err {
		return Tuple{}, wrapError(err, "value is not an encoded tuple")
	}

	return Tuple{items: items}, nil
}

// Len returns the tuple arity.
func (self Tuple) Len() int {
	return len(self.items)
}

// Item decodes the tuple element at position pos into dst.
func (self Tuple) Item(pos int, dst any) error {
	if pos < 0 || pos >= len(self.items) {
		return newError("tuple position %d out of range, arity %d", pos, len(self.items))
	}

	err := cbor.Unmarshal(self.items[pos], dst)

	return wrapError(err, "failed decoding tuple position %d", pos) // nil if err is nil
}

// String returns the tuple element at position pos as a string.
func (self Tuple) String(pos int) (string, error) {
	var rv string
	err := self.Item(pos, &rv)
	return rv, err
}

// OptionalString returns the tuple element at position pos as a string.
// A null element yields the empty string.
func (self Tuple) OptionalString(pos int) (string, error) {
	var pv *string
	err := self.Item(pos, &pv)
	if nil != err || nil == pv {
		return "", err
	}
	return *pv, nil
}

// Bytes returns the tuple element at position pos as a byte string.
func (self Tuple) Bytes(pos int) ([]byte, error) {
	var rv []byte
	err := self.Item(pos, &rv)
	return rv, err
}

// Int returns the tuple element at position pos as an int.
func (self Tuple) Int(pos int) (int, error) {
	var rv int
	err := self.Item(pos, &rv)
	return rv, err
}

// Header validates that the tuple carries the expected ASCII header constant
// at position 0 and one of the accepted arities.
func (self Tuple) Header(header string, arities ...int) error {
	var lenOk bool
	for _, n := range arities {
		if len(self.items) == n {
			lenOk = true
			break
		}
	}
	if !lenOk {
		return newError("%s tuple has invalid arity %d", header, len(self.items))
	}

	got, err := self.String(0)
	if nil != err {
		return wrapError(err, "%s tuple has unreadable header", header)
	}
	if got != header {
		return newError("expected header %q, got %q", header, got)
	}

	return nil
}
