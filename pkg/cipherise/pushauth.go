package cipherise

import (
	"context"

	"github.com/forticode/cipherise-sdk-go/internal/wire"
)

const pushAuthHeader = "CiphUsrP"

// PushAuth is an authentication pushed to one known device of a known user.
// The targeted username and Device were fixed at issuance time.
type PushAuth struct {
	authSession

	Username string
	Device   Device
}

var _ Authenticator = &PushAuth{}

// retrieveAssertion long polls the assertion endpoint. For a push the app
// challenge round already happened at issuance, a plain GET suffices.
func (self *PushAuth) retrieveAssertion(ctx context.Context) (*assertionResponse, error) {
	resp := assertionResponse{}
	err := self.service.getURL(ctx, self.assertionURL, &resp)
	if nil != err {
		return nil, err
	}

	return &resp, nil
}

// Authenticate blocks until the targeted device resolved the challenge, then
// verifies the assertion, exchanges the optional payload and posts the final
// acceptance decision.
func (self *PushAuth) Authenticate(ctx context.Context, payload *PayloadRequest) (*AuthenticationResult, error) {
	return self.authenticate(ctx, payload, self.retrieveAssertion)
}

// GetState short polls the server for the authentication status.
func (self *PushAuth) GetState(ctx context.Context) (AuthenticationState, error) {
	state, err := self.getRawState(ctx)
	if state == authPendingSPSolution {
		// the service solved its proof at issuance, the push is still waiting
		// on the user from the caller's point of view
		state = AuthInitialised
	}

	return state, err
}

// Serialize returns the binary snapshot of the PushAuth.
func (self *PushAuth) Serialize() ([]byte, error) {
	devdata, err := self.Device.Serialize()
	if nil != err {
		return nil, err
	}

	var verifyURL any
	if "" != self.verifyURL {
		verifyURL = self.verifyURL
	}
	data, err := wire.Encode(
		pushAuthHeader,
		wireVersion,
		self.LogId,
		self.challenge,
		self.level,
		self.Username,
		devdata,
		self.statusURL,
		self.assertionURL,
		verifyURL,
	)
	return data, wrapFlagError(err, ErrSerialization, "failed PushAuth serialization") // nil if err is nil
}

// DeserializePushAuth restores a PushAuth bound to svc from its binary snapshot.
func (self *Service) DeserializePushAuth(data []byte) (*PushAuth, error) {
	tup, err := wire.Decode(data)
	if nil != err {
		return nil, wrapFlagError(err, ErrSerialization, "value is not a serialized PushAuth")
	}
	err = tup.Header(pushAuthHeader, 10)
	if nil != err {
		return nil, wrapFlagError(err, ErrSerialization, "invalid PushAuth snapshot")
	}
	version, err := tup.String(1)
	if nil != err || version != wireVersion {
		return nil, newFlagError(ErrSerialization, "unsupported PushAuth snapshot version %q", version)
	}

	auth := PushAuth{authSession: authSession{service: self}}
	if auth.LogId, err = tup.String(2); nil != err {
		return nil, wrapFlagError(err, ErrSerialization, "invalid PushAuth log id")
	}
	if auth.challenge, err = tup.Bytes(3); nil != err {
		return nil, wrapFlagError(err, ErrSerialization, "invalid PushAuth challenge")
	}
	if auth.level, err = tup.Int(4); nil != err {
		return nil, wrapFlagError(err, ErrSerialization, "invalid PushAuth level")
	}
	if auth.Username, err = tup.String(5); nil != err {
		return nil, wrapFlagError(err, ErrSerialization, "invalid PushAuth username")
	}
	devdata, err := tup.Bytes(6)
	if nil != err {
		return nil, wrapFlagError(err, ErrSerialization, "invalid PushAuth device slot")
	}
	if auth.Device, err = DeserializeDevice(devdata); nil != err {
		return nil, wrapFlagError(err, ErrSerialization, "invalid PushAuth device")
	}
	if auth.statusURL, err = tup.String(7); nil != err {
		return nil, wrapFlagError(err, ErrSerialization, "invalid PushAuth status URL")
	}
	if auth.assertionURL, err = tup.String(8); nil != err {
		return nil, wrapFlagError(err, ErrSerialization, "invalid PushAuth assertion URL")
	}
	if auth.verifyURL, err = tup.OptionalString(9); nil != err {
		return nil, wrapFlagError(err, ErrSerialization, "invalid PushAuth verify URL")
	}

	return &auth, nil
}
