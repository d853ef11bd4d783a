package cipherise

import (
	"context"

	"github.com/forticode/cipherise-sdk-go/internal/algos"
)

// AuthenticationState tracks a challenge/response cycle.
type AuthenticationState int

const (
	// AuthNotFound means the session expired or is unknown to the server. Terminal.
	AuthNotFound AuthenticationState = iota
	AuthInitialised
	AuthScanned
	AuthPendingAppSolution
	AuthDone

	// authPendingSPSolution is internal, concrete variants remap it before returning.
	authPendingSPSolution
)

// String returns the display name of the AuthenticationState.
func (self AuthenticationState) String() string {
	switch self {
	case AuthInitialised:
		return "Initialised"
	case AuthScanned:
		return "Scanned"
	case AuthPendingAppSolution:
		return "PendingAppSolution"
	case AuthDone:
		return "Done"
	case authPendingSPSolution:
		return "PendingSPSolution"
	default:
		return "NotFound"
	}
}

// authStateOf maps the server status vocabulary to AuthenticationState.
func authStateOf(text string) AuthenticationState {
	switch text {
	case "initialised":
		return AuthInitialised
	case "scanned":
		return AuthScanned
	case "pendingSPSolution":
		return authPendingSPSolution
	case "pendingAppSolution":
		return AuthPendingAppSolution
	case "done":
		return AuthDone
	default:
		return AuthNotFound
	}
}

// AuthOutcome is the terminal outcome of an authentication.
type AuthOutcome int

const (
	OutcomeFailure AuthOutcome = iota
	OutcomeSuccess
	OutcomeCancel
	OutcomeReport
)

// String returns the display name of the AuthOutcome.
func (self AuthOutcome) String() string {
	switch self {
	case OutcomeSuccess:
		return "Success"
	case OutcomeCancel:
		return "Cancel"
	case OutcomeReport:
		return "Report"
	default:
		return "Failure"
	}
}

// AuthenticationResult is the immutable outcome of an authentication cycle.
type AuthenticationResult struct {
	Outcome  AuthOutcome
	Username string
	Payload  PayloadResponse
}

// Authenticator is the common surface of Push & Wave authentications.
type Authenticator interface {
	Authenticate(ctx context.Context, payload *PayloadRequest) (*AuthenticationResult, error)
	GetState(ctx context.Context) (AuthenticationState, error)
	Serialize() ([]byte, error)
}

// retrieveAssertionFunc is the one behavioral difference between Push and
// Wave: how the device's report of the challenge outcome is obtained.
type retrieveAssertionFunc func(ctx context.Context) (*assertionResponse, error)

// authSession is the protocol state shared by both authentication variants.
type authSession struct {
	service *Service

	LogId string

	challenge    []byte
	level        int
	statusURL    string
	assertionURL string

	// verifyURL is populated once the assertion is retrieved, the
	// accept/verify step requires it.
	verifyURL string
}

// authenticate is the shared blocking core of an authentication cycle.
//
// A key binding signature mismatch is fatal: the server is notified of non
// acceptance and an ErrSecurity error is returned, because the device
// identity cannot be trusted. A wrong challenge solution is an ordinary
// Failure outcome. A requested payload exchange is ANDed into the final
// acceptance, a payload refusal collapses into Failure as well.
func (self *authSession) authenticate(ctx context.Context, payload *PayloadRequest, retrieve retrieveAssertionFunc) (*AuthenticationResult, error) {
	resp, err := retrieve(ctx)
	if nil != err {
		return nil, wrapError(err, "failed assertion retrieval")
	}
	self.verifyURL = resp.VerifyUrl

	switch resp.Authenticated {
	case "cancelled":
		err = self.notifyAcceptance(ctx, false, resp.FailReason)
		if nil != err {
			return nil, err
		}
		return &AuthenticationResult{Outcome: OutcomeCancel, Username: resp.Username}, nil
	case "reported":
		err = self.notifyAcceptance(ctx, false, resp.FailReason)
		if nil != err {
			return nil, err
		}
		return &AuthenticationResult{Outcome: OutcomeReport, Username: resp.Username}, nil
	case "true":
		// device solved the challenge, verify everything below
	default:
		err = self.notifyAcceptance(ctx, false, resp.FailReason)
		if nil != err {
			return nil, err
		}
		return &AuthenticationResult{Outcome: OutcomeFailure, Username: resp.Username}, nil
	}

	devkey, err := algos.ParsePublicKeyPEM(resp.PublicKey)
	if nil != err {
		return nil, wrapError(err, "assertion carries invalid device key")
	}

	if !self.service.VerifySignature(resp.KeySignature, resp.Username, resp.DeviceId, resp.PublicKey, self.level) {
		reason := "Mismatching key signature"
		err = self.notifyAcceptance(ctx, false, reason)
		if nil != err {
			return nil, err
		}
		return nil, newFlagError(ErrSecurity, "%s for device %s", reason, resp.DeviceId)
	}

	authenticated := algos.VerifyDigest(devkey, algos.Hash(self.challenge), resp.ChallengeSolution)

	payloadValid := true
	presp := PayloadResponse{}
	if !payload.Empty() {
		if "" == resp.PayloadUrl {
			return nil, newError("payload requested but assertion carries no payload URL")
		}
		env, err := self.service.encryptPayloadData(ctx, devkey, payload)
		if nil != err {
			return nil, wrapError(err, "failed payload encryption")
		}
		pxresp := payloadExchangeResponse{}
		err = self.service.postURL(ctx, resp.PayloadUrl, &payloadExchangeRequest{Payload: *env}, &pxresp)
		if nil != err {
			return nil, wrapError(err, "failed payload exchange")
		}
		err = self.service.decryptPayloadJSON(devkey, &pxresp.Payload, &presp)
		if nil != err {
			return nil, wrapError(err, "failed payload response decryption")
		}
		if len(payload.Set) > 0 && !presp.Set {
			payloadValid = false
		}
	}

	accepted := authenticated && payloadValid
	err = self.notifyAcceptance(ctx, accepted, "")
	if nil != err {
		return nil, err
	}

	outcome := OutcomeFailure
	if accepted {
		outcome = OutcomeSuccess
	}
	return &AuthenticationResult{Outcome: outcome, Username: resp.Username, Payload: presp}, nil
}

// notifyAcceptance posts the final verified/not-verified decision.
func (self *authSession) notifyAcceptance(ctx context.Context, verified bool, failReason string) error {
	if "" == self.verifyURL {
		return newFlagError(ErrMissingPrecondition, "verify URL not populated, assertion was not retrieved")
	}
	notice := verifyNotice{Verified: verified, FailReason: failReason}
	err := self.service.postURL(ctx, self.verifyURL, &notice, nil)
	return wrapError(err, "failed acceptance notice") // nil if err is nil
}

// getRawState polls the server status without remapping the internal state.
func (self *authSession) getRawState(ctx context.Context) (AuthenticationState, error) {
	resp := authStatusResponse{}
	err := self.service.getURL(ctx, self.statusURL, &resp)
	if nil != err {
		return AuthNotFound, wrapError(err, "failed authentication status fetch")
	}

	return authStateOf(resp.StatusText), nil
}

// solveAppChallenge fetches the app's proof of possession challenge, signs it
// with the Service private key and posts the solution back.
func (self *authSession) solveAppChallenge(ctx context.Context, url string) error {
	chresp := appChallengeResponse{}
	err := self.service.getURL(ctx, url, &chresp)
	if nil != err {
		return wrapError(err, "failed app challenge fetch")
	}
	if len(chresp.AppChallenge) == 0 {
		return newError("app challenge is empty")
	}

	sol, err := algos.SignDigest(self.service.key, algos.Hash(chresp.AppChallenge))
	if nil != err {
		return wrapError(err, "failed app challenge signature")
	}

	err = self.service.postURL(ctx, url, &appChallengeSolutionRequest{AppChallengeSolution: sol}, nil)
	return wrapError(err, "failed app challenge solve") // nil if err is nil
}
