package cipherise

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/forticode/cipherise-sdk-go/internal/algos"
)

func TestAuthStateMapping(t *testing.T) {
	cases := map[string]AuthenticationState{
		"initialised":        AuthInitialised,
		"scanned":            AuthScanned,
		"pendingSPSolution":  authPendingSPSolution,
		"pendingAppSolution": AuthPendingAppSolution,
		"done":               AuthDone,
		"notFound":           AuthNotFound,
		"":                   AuthNotFound,
	}
	for text, want := range cases {
		if got := authStateOf(text); got != want {
			t.Errorf("authStateOf(%q) = %s, want %s", text, got, want)
		}
	}
}

// authFixture is the fake server side of one authentication session.
type authFixture struct {
	svc *Service
	td  testDevice

	challenge    []byte // captured from the service
	appChallenge []byte

	// assertion fields tests can override before Authenticate runs
	authenticated   string
	failReason      string
	payloadURL      string
	corruptBinding  bool
	corruptSolution bool

	// observed traffic
	noticeSeen     bool
	noticeVerified bool
	noticeReason   string
	appSolved      bool
}

func (self *authFixture) assertion(t *testing.T, baseURL string) assertionResponse {
	t.Helper()
	pemkey := self.td.dev.Keys[MinAuthLevel]
	keysig, err := self.svc.CalculateSignature("alice", self.td.dev.Id, pemkey, MinAuthLevel)
	if nil != err {
		t.Fatalf("failed key binding signature, got error %v", err)
	}
	if self.corruptBinding {
		keysig[0] ^= 0x01
	}
	solution := self.td.solve(t, self.challenge)
	if self.corruptSolution {
		solution[0] ^= 0x01
	}

	return assertionResponse{
		VerifyUrl:         baseURL + "/auth/a1/verify",
		Username:          "alice",
		DeviceId:          self.td.dev.Id,
		PublicKey:         pemkey,
		KeySignature:      keysig,
		ChallengeSolution: solution,
		Authenticated:     self.authenticated,
		FailReason:        self.failReason,
		PayloadUrl:        self.payloadURL,
	}
}

// newPushFixture wires the push authentication endpoints and starts the session.
func newPushFixture(t *testing.T) (*PushAuth, *authFixture, *http.ServeMux) {
	t.Helper()
	svc, mux, ss := newServiceFixture(t)
	svc.sessionToken = ss.freshToken
	baseURL := svc.client.baseURL

	fx := &authFixture{
		svc:           svc,
		td:            newTestDevice(t, "dev-1", "phone", MinAuthLevel),
		appChallenge:  []byte("fedcba9876543210"),
		authenticated: "true",
	}

	mux.HandleFunc("/sp/authentication", func(w http.ResponseWriter, r *http.Request) {
		req := authenticationRequest{}
		readJSON(t, r, &req)
		if req.Interaction != "Push" || req.Username != "alice" || req.DeviceId != "dev-1" {
			t.Errorf("unexpected authentication request %+v", req)
		}
		if len(req.Challenge) != challengeSize {
			t.Errorf("unexpected challenge length %d", len(req.Challenge))
		}
		fx.challenge = req.Challenge
		writeJSON(t, w, authenticationResponse{
			LogId:           "log-auth",
			StatusUrl:       baseURL + "/auth/a1/status",
			AssertionUrl:    baseURL + "/auth/a1/assertion",
			AppChallengeUrl: baseURL + "/auth/a1/app-challenge",
		})
	})
	mux.HandleFunc("/auth/a1/app-challenge", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			writeJSON(t, w, appChallengeResponse{AppChallenge: fx.appChallenge})
			return
		}
		req := appChallengeSolutionRequest{}
		readJSON(t, r, &req)
		if !algos.VerifyDigest(&svc.key.PublicKey, algos.Hash(fx.appChallenge), req.AppChallengeSolution) {
			t.Error("app challenge solution does not verify under the service key")
		}
		fx.appSolved = true
		writeJSON(t, w, map[string]any{})
	})
	mux.HandleFunc("/auth/a1/assertion", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, fx.assertion(t, baseURL))
	})
	mux.HandleFunc("/auth/a1/verify", func(w http.ResponseWriter, r *http.Request) {
		notice := verifyNotice{}
		readJSON(t, r, &notice)
		fx.noticeSeen = true
		fx.noticeVerified = notice.Verified
		fx.noticeReason = notice.FailReason
		writeJSON(t, w, map[string]any{})
	})

	auth, err := svc.PushAuth(context.Background(), "alice", fx.td.dev, MinAuthLevel)
	if nil != err {
		t.Fatalf("failed PushAuth, got error %v", err)
	}
	if !fx.appSolved {
		t.Fatal("the app challenge round must run at issuance time")
	}

	return auth, fx, mux
}

func TestPushAuthenticateSuccess(t *testing.T) {
	auth, fx, _ := newPushFixture(t)

	result, err := auth.Authenticate(context.Background(), nil)
	if nil != err {
		t.Fatalf("failed Authenticate, got error %v", err)
	}
	if result.Outcome != OutcomeSuccess || result.Username != "alice" {
		t.Errorf("unexpected result %+v", result)
	}
	if !fx.noticeSeen || !fx.noticeVerified {
		t.Error("expected a verified=true acceptance notice")
	}
}

func TestPushAuthenticateWrongSolutionIsFailure(t *testing.T) {
	auth, fx, _ := newPushFixture(t)
	fx.corruptSolution = true

	result, err := auth.Authenticate(context.Background(), nil)
	if nil != err {
		t.Fatalf("failed Authenticate, got error %v", err)
	}
	if result.Outcome != OutcomeFailure {
		t.Errorf("unexpected outcome %s", result.Outcome)
	}
	if !fx.noticeSeen || fx.noticeVerified {
		t.Error("expected a verified=false acceptance notice")
	}
}

func TestPushAuthenticateKeyBindingMismatch(t *testing.T) {
	auth, fx, _ := newPushFixture(t)
	fx.corruptBinding = true

	_, err := auth.Authenticate(context.Background(), nil)
	if !errors.Is(err, ErrSecurity) {
		t.Fatalf("expected ErrSecurity, got %v", err)
	}

	// the non acceptance must reach the server before the error is raised
	if !fx.noticeSeen || fx.noticeVerified {
		t.Error("expected a verified=false notice before the error")
	}
	if "" == fx.noticeReason {
		t.Error("expected a descriptive fail reason in the notice")
	}
}

func TestPushAuthenticateCancelledAndReported(t *testing.T) {
	cases := map[string]AuthOutcome{
		"cancelled": OutcomeCancel,
		"reported":  OutcomeReport,
	}
	for text, want := range cases {
		auth, fx, _ := newPushFixture(t)
		fx.authenticated = text
		fx.failReason = "user action"

		result, err := auth.Authenticate(context.Background(), nil)
		if nil != err {
			t.Fatalf("%s: failed Authenticate, got error %v", text, err)
		}
		if result.Outcome != want {
			t.Errorf("%s: unexpected outcome %s", text, result.Outcome)
		}
		if !fx.noticeSeen || fx.noticeVerified {
			t.Errorf("%s: expected a verified=false acceptance notice", text)
		}
	}
}

func TestPushAuthenticateWithPayload(t *testing.T) {
	auth, fx, mux := newPushFixture(t)
	baseURL := fx.svc.client.baseURL
	fx.payloadURL = baseURL + "/auth/a1/payload"

	mux.HandleFunc("/auth/a1/payload", func(w http.ResponseWriter, r *http.Request) {
		req := payloadExchangeRequest{}
		readJSON(t, r, &req)

		// play the device: open the request, answer the get
		preq := PayloadRequest{}
		fx.td.openPayload(t, fx.svc, &req.Payload, &preq)
		if len(preq.Get) != 1 || preq.Get[0] != "email" {
			t.Errorf("unexpected payload request %+v", preq)
		}
		resp := PayloadResponse{Get: map[string]string{"email": "alice@example.com"}}
		writeJSON(t, w, payloadExchangeResponse{Payload: *fx.td.sealPayload(t, fx.svc, resp)})
	})

	result, err := auth.Authenticate(context.Background(), &PayloadRequest{Get: []string{"email"}})
	if nil != err {
		t.Fatalf("failed Authenticate, got error %v", err)
	}
	if result.Outcome != OutcomeSuccess {
		t.Fatalf("unexpected outcome %s", result.Outcome)
	}
	if result.Payload.Get["email"] != "alice@example.com" {
		t.Errorf("unexpected payload response %+v", result.Payload)
	}
	if !fx.noticeVerified {
		t.Error("expected a verified=true acceptance notice")
	}
}

func TestPushAuthenticatePayloadRefusalIsFailure(t *testing.T) {
	auth, fx, mux := newPushFixture(t)
	baseURL := fx.svc.client.baseURL
	fx.payloadURL = baseURL + "/auth/a1/payload"

	mux.HandleFunc("/auth/a1/payload", func(w http.ResponseWriter, r *http.Request) {
		req := payloadExchangeRequest{}
		readJSON(t, r, &req)
		resp := PayloadResponse{Set: false}
		writeJSON(t, w, payloadExchangeResponse{Payload: *fx.td.sealPayload(t, fx.svc, resp)})
	})

	result, err := auth.Authenticate(context.Background(), &PayloadRequest{Set: map[string]string{"theme": "dark"}})
	if nil != err {
		t.Fatalf("failed Authenticate, got error %v", err)
	}
	if result.Outcome != OutcomeFailure {
		t.Errorf("a refused set action must fail the authentication, got %s", result.Outcome)
	}
	if fx.noticeVerified {
		t.Error("expected a verified=false acceptance notice")
	}
}

func TestPushAuthGetStateRemap(t *testing.T) {
	auth, _, mux := newPushFixture(t)

	statusText := "pendingSPSolution"
	mux.HandleFunc("/auth/a1/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, authStatusResponse{StatusText: statusText})
	})

	state, err := auth.GetState(context.Background())
	if nil != err {
		t.Fatalf("failed GetState, got error %v", err)
	}
	if state != AuthInitialised {
		t.Errorf("push must remap pendingSPSolution to Initialised, got %s", state)
	}

	statusText = "done"
	state, err = auth.GetState(context.Background())
	if nil != err {
		t.Fatalf("failed GetState, got error %v", err)
	}
	if state != AuthDone {
		t.Errorf("unexpected state %s", state)
	}
}

func TestNotifyAcceptanceRequiresAssertion(t *testing.T) {
	svc, _, ss := newServiceFixture(t)
	svc.sessionToken = ss.freshToken

	auth := &PushAuth{authSession: authSession{service: svc}}
	err := auth.notifyAcceptance(context.Background(), true, "")
	if !errors.Is(err, ErrMissingPrecondition) {
		t.Errorf("expected ErrMissingPrecondition, got %v", err)
	}
}

func TestPushAuthSerializeRoundtrip(t *testing.T) {
	auth, _, _ := newPushFixture(t)

	data, err := auth.Serialize()
	if nil != err {
		t.Fatalf("failed Serialize, got error %v", err)
	}
	back, err := auth.service.DeserializePushAuth(data)
	if nil != err {
		t.Fatalf("failed DeserializePushAuth, got error %v", err)
	}

	if back.LogId != auth.LogId || back.Username != auth.Username || back.level != auth.level {
		t.Errorf("roundtrip changed session identity, got %+v", back)
	}
	if !bytes.Equal(back.challenge, auth.challenge) {
		t.Error("roundtrip changed the challenge")
	}
	if !back.Device.Equal(auth.Device) {
		t.Error("roundtrip changed the device")
	}
	if back.statusURL != auth.statusURL || back.assertionURL != auth.assertionURL || back.verifyURL != auth.verifyURL {
		t.Error("roundtrip changed session URLs")
	}
}

// newWaveFixture wires the wave authentication endpoints and starts the session.
func newWaveFixture(t *testing.T) (*WaveAuth, *authFixture, *http.ServeMux) {
	t.Helper()
	svc, mux, ss := newServiceFixture(t)
	svc.sessionToken = ss.freshToken
	baseURL := svc.client.baseURL

	fx := &authFixture{
		svc:           svc,
		td:            newTestDevice(t, "dev-1", "phone", MinAuthLevel),
		appChallenge:  []byte("fedcba9876543210"),
		authenticated: "true",
	}

	mux.HandleFunc("/sp/authentication", func(w http.ResponseWriter, r *http.Request) {
		req := authenticationRequest{}
		readJSON(t, r, &req)
		if req.Interaction != "Wave" || "" != req.Username {
			t.Errorf("unexpected authentication request %+v", req)
		}
		writeJSON(t, w, authenticationResponse{
			LogId:           "log-auth",
			StatusUrl:       baseURL + "/auth/a1/status",
			AssertionUrl:    baseURL + "/auth/a1/assertion",
			AppChallengeUrl: baseURL + "/auth/a1/app-challenge",
			InitiatorUrl:    baseURL + "/initiator/a1",
			WaveCodeUrl:     baseURL + "/wavecode/a1",
		})
	})
	mux.HandleFunc("/auth/a1/app-challenge", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, appChallengeResponse{AppChallenge: fx.appChallenge})
	})
	mux.HandleFunc("/auth/a1/assertion", func(w http.ResponseWriter, r *http.Request) {
		req := assertionRequest{}
		readJSON(t, r, &req)
		if len(req.Challenge) != challengeSize {
			t.Errorf("unexpected challenge length %d", len(req.Challenge))
		}
		if !algos.VerifyDigest(&svc.key.PublicKey, algos.Hash(fx.appChallenge), req.AppChallengeSolution) {
			t.Error("app challenge solution does not verify under the service key")
		}
		fx.appSolved = true
		fx.challenge = req.Challenge
		writeJSON(t, w, fx.assertion(t, baseURL))
	})
	mux.HandleFunc("/auth/a1/verify", func(w http.ResponseWriter, r *http.Request) {
		notice := verifyNotice{}
		readJSON(t, r, &notice)
		fx.noticeSeen = true
		fx.noticeVerified = notice.Verified
		fx.noticeReason = notice.FailReason
		writeJSON(t, w, map[string]any{})
	})

	auth, err := svc.WaveAuth(context.Background(), MinAuthLevel)
	if nil != err {
		t.Fatalf("failed WaveAuth, got error %v", err)
	}
	if "" == auth.WaveCodeURL || "" == auth.InitiatorURL {
		t.Fatal("display URLs not populated")
	}

	return auth, fx, mux
}

func TestWaveAuthenticateSuccess(t *testing.T) {
	auth, fx, _ := newWaveFixture(t)

	result, err := auth.Authenticate(context.Background(), nil)
	if nil != err {
		t.Fatalf("failed Authenticate, got error %v", err)
	}
	if result.Outcome != OutcomeSuccess || result.Username != "alice" {
		t.Errorf("unexpected result %+v", result)
	}
	if !fx.appSolved {
		t.Error("the deferred app challenge round must run inside Authenticate")
	}
	if !fx.noticeSeen || !fx.noticeVerified {
		t.Error("expected a verified=true acceptance notice")
	}
}

func TestWaveAuthenticateKeyBindingMismatch(t *testing.T) {
	auth, fx, _ := newWaveFixture(t)
	fx.corruptBinding = true

	_, err := auth.Authenticate(context.Background(), nil)
	if !errors.Is(err, ErrSecurity) {
		t.Fatalf("expected ErrSecurity, got %v", err)
	}
	if !fx.noticeSeen || fx.noticeVerified {
		t.Error("expected a verified=false notice before the error")
	}
}

func TestWaveAuthGetStateRemap(t *testing.T) {
	auth, _, mux := newWaveFixture(t)

	mux.HandleFunc("/auth/a1/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, authStatusResponse{StatusText: "pendingSPSolution"})
	})

	state, err := auth.GetState(context.Background())
	if nil != err {
		t.Fatalf("failed GetState, got error %v", err)
	}
	if state != AuthScanned {
		t.Errorf("wave must remap pendingSPSolution to Scanned, got %s", state)
	}
}

func TestWaveAuthSerializeRoundtrip(t *testing.T) {
	auth, _, _ := newWaveFixture(t)

	data, err := auth.Serialize()
	if nil != err {
		t.Fatalf("failed Serialize, got error %v", err)
	}
	back, err := auth.service.DeserializeWaveAuth(data)
	if nil != err {
		t.Fatalf("failed DeserializeWaveAuth, got error %v", err)
	}

	if back.LogId != auth.LogId || back.level != auth.level {
		t.Errorf("roundtrip changed session identity, got %+v", back)
	}
	if !bytes.Equal(back.challenge, auth.challenge) {
		t.Error("roundtrip changed the challenge")
	}
	if back.InitiatorURL != auth.InitiatorURL || back.WaveCodeURL != auth.WaveCodeURL {
		t.Error("roundtrip changed display URLs")
	}
	if back.statusURL != auth.statusURL || back.assertionURL != auth.assertionURL || back.appChallengeURL != auth.appChallengeURL {
		t.Error("roundtrip changed session URLs")
	}
}
