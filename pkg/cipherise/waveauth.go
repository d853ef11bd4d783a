package cipherise

import (
	"context"

	"github.com/forticode/cipherise-sdk-go/internal/algos"
	"github.com/forticode/cipherise-sdk-go/internal/wire"
)

const waveAuthHeader = "CiphUsrW"

// WaveAuth is an authentication presented as a scannable WaveCode, open to any
// enrolled device. The responding username is only known once the assertion
// comes back.
type WaveAuth struct {
	authSession

	// InitiatorURL is the tap-to-authenticate link for same-device flows.
	InitiatorURL string

	// WaveCodeURL points at the scannable code to display to the user.
	WaveCodeURL string

	appChallengeURL string
}

var _ Authenticator = &WaveAuth{}

// retrieveAssertion runs the deferred challenge exchange: solve the app's
// proof of possession challenge when the server issued one, then post the
// service challenge and block until the device reports its outcome.
func (self *WaveAuth) retrieveAssertion(ctx context.Context) (*assertionResponse, error) {
	req := assertionRequest{Challenge: self.challenge, WaitForAppSolution: true}

	if "" != self.appChallengeURL {
		chresp := appChallengeResponse{}
		err := self.service.getURL(ctx, self.appChallengeURL, &chresp)
		if nil != err {
			return nil, wrapError(err, "failed app challenge fetch")
		}
		if len(chresp.AppChallenge) > 0 {
			sol, err := algos.SignDigest(self.service.key, algos.Hash(chresp.AppChallenge))
			if nil != err {
				return nil, wrapError(err, "failed app challenge signature")
			}
			req.AppChallengeSolution = sol
		}
	}

	resp := assertionResponse{}
	err := self.service.postURL(ctx, self.assertionURL, &req, &resp)
	if nil != err {
		return nil, err
	}

	return &resp, nil
}

// Authenticate blocks until a device scanned the WaveCode and resolved the
// challenge, then verifies the assertion, exchanges the optional payload and
// posts the final acceptance decision.
func (self *WaveAuth) Authenticate(ctx context.Context, payload *PayloadRequest) (*AuthenticationResult, error) {
	return self.authenticate(ctx, payload, self.retrieveAssertion)
}

// GetState short polls the server for the authentication status.
func (self *WaveAuth) GetState(ctx context.Context) (AuthenticationState, error) {
	state, err := self.getRawState(ctx)
	if state == authPendingSPSolution {
		// the exchange is deferred to Authenticate, a scanned wave waiting on
		// the service solution still reads as Scanned to the caller
		state = AuthScanned
	}

	return state, err
}

// Serialize returns the binary snapshot of the WaveAuth.
func (self *WaveAuth) Serialize() ([]byte, error) {
	var appChallengeURL, verifyURL any
	if "" != self.appChallengeURL {
		appChallengeURL = self.appChallengeURL
	}
	if "" != self.verifyURL {
		verifyURL = self.verifyURL
	}
	data, err := wire.Encode(
		waveAuthHeader,
		wireVersion,
		self.LogId,
		self.challenge,
		self.level,
		self.InitiatorURL,
		self.WaveCodeURL,
		self.statusURL,
		self.assertionURL,
		appChallengeURL,
		verifyURL,
	)
	return data, wrapFlagError(err, ErrSerialization, "failed WaveAuth serialization") // nil if err is nil
}

// DeserializeWaveAuth restores a WaveAuth bound to svc from its binary snapshot.
func (self *Service) DeserializeWaveAuth(data []byte) (*WaveAuth, error) {
	tup, err := wire.Decode(data)
	if nil != err {
		return nil, wrapFlagError(err, ErrSerialization, "value is not a serialized WaveAuth")
	}
	err = tup.Header(waveAuthHeader, 11)
	if nil != err {
		return nil, wrapFlagError(err, ErrSerialization, "invalid WaveAuth snapshot")
	}
	version, err := tup.String(1)
	if nil != err || version != wireVersion {
		return nil, newFlagError(ErrSerialization, "unsupported WaveAuth snapshot version %q", version)
	}

	auth := WaveAuth{authSession: authSession{service: self}}
	if auth.LogId, err = tup.String(2); nil != err {
		return nil, wrapFlagError(err, ErrSerialization, "invalid WaveAuth log id")
	}
	if auth.challenge, err = tup.Bytes(3); nil != err {
		return nil, wrapFlagError(err, ErrSerialization, "invalid WaveAuth challenge")
	}
	if auth.level, err = tup.Int(4); nil != err {
		return nil, wrapFlagError(err, ErrSerialization, "invalid WaveAuth level")
	}

	fields := []struct {
		pos int
		dst *string
	}{
		{5, &auth.InitiatorURL},
		{6, &auth.WaveCodeURL},
		{7, &auth.statusURL},
		{8, &auth.assertionURL},
	}
	for _, f := range fields {
		*f.dst, err = tup.String(f.pos)
		if nil != err {
			return nil, wrapFlagError(err, ErrSerialization, "invalid WaveAuth field at position %d", f.pos)
		}
	}
	if auth.appChallengeURL, err = tup.OptionalString(9); nil != err {
		return nil, wrapFlagError(err, ErrSerialization, "invalid WaveAuth app challenge URL")
	}
	if auth.verifyURL, err = tup.OptionalString(10); nil != err {
		return nil, wrapFlagError(err, ErrSerialization, "invalid WaveAuth verify URL")
	}

	return &auth, nil
}
