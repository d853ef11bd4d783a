package cipherise

import (
	"crypto/rsa"
	"maps"

	"github.com/forticode/cipherise-sdk-go/internal/algos"
	"github.com/forticode/cipherise-sdk-go/internal/wire"
)

const deviceHeader = "CiphDvce"

// Device is a snapshot of a user's enrolled authenticator: its id, display
// name and PEM public keys per authentication level.
type Device struct {
	Id   string
	Name string
	Keys map[int]string
}

// Key returns the device public key registered for level.
func (self Device) Key(level int) (*rsa.PublicKey, error) {
	pemtext, found := self.Keys[level]
	if !found {
		return nil, newError("device %s has no key for level %d", self.Id, level)
	}
	return algos.ParsePublicKeyPEM(pemtext)
}

// Equal reports whether two devices have the same id, name and key map contents.
func (self Device) Equal(other Device) bool {
	return self.Id == other.Id && self.Name == other.Name && maps.Equal(self.Keys, other.Keys)
}

// Serialize returns the binary snapshot of the Device.
func (self Device) Serialize() ([]byte, error) {
	data, err := wire.Encode(deviceHeader, self.Id, self.Name, self.Keys)
	return data, wrapFlagError(err, ErrSerialization, "failed Device serialization") // nil if err is nil
}

// DeserializeDevice rebuilds a Device from its binary snapshot.
func DeserializeDevice(data []byte) (Device, error) {
	tup, err := wire.Decode(data)
	if nil != err {
		return Device{}, wrapFlagError(err, ErrSerialization, "value is not a serialized Device")
	}
	err = tup.Header(deviceHeader, 4)
	if nil != err {
		return Device{}, wrapFlagError(err, ErrSerialization, "invalid Device snapshot")
	}

	dev := Device{}
	if dev.Id, err = tup.String(1); nil != err {
		return Device{}, wrapFlagError(err, ErrSerialization, "invalid Device id")
	}
	if dev.Name, err = tup.String(2); nil != err {
		return Device{}, wrapFlagError(err, ErrSerialization, "invalid Device name")
	}
	if err = tup.Item(3, &dev.Keys); nil != err {
		return Device{}, wrapFlagError(err, ErrSerialization, "invalid Device key map")
	}

	return dev, nil
}
