package cipherise

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"sync"

	"github.com/forticode/cipherise-sdk-go/internal/algos"
	"github.com/forticode/cipherise-sdk-go/internal/observability"
	"github.com/forticode/cipherise-sdk-go/internal/transport"
	"github.com/forticode/cipherise-sdk-go/internal/wire"
)

const (
	serviceHeader = "CiphSrvc"

	// challengeSize is the byte length of authentication challenges.
	challengeSize = 16

	// MinAuthLevel & MaxAuthLevel bound the authentication level range.
	MinAuthLevel = 1
	MaxAuthLevel = 4
)

// Service is a relying party's registration with a Cipherise server. It owns
// the service RSA keypair, performs all signed interactions on behalf of the
// relying party and refreshes its session token on expiry.
//
// The private key never leaves the Service, only the public half was sent to
// the server at creation time.
type Service struct {
	Id string

	client *Client
	key    *rsa.PrivateKey

	mut          sync.Mutex
	sessionToken string
}

func newService(client *Client, id string, key *rsa.PrivateKey, sessionToken string) *Service {
	return &Service{Id: id, client: client, key: key, sessionToken: sessionToken}
}

// PublicKeyPEM returns the PEM export of the Service public key.
func (self *Service) PublicKeyPEM() string {
	return algos.ExportPublicKeyPEM(&self.key.PublicKey)
}

// Equal reports whether two Services carry the same id, server base URL and
// private key. The ephemeral session token is excluded.
func (self *Service) Equal(other *Service) bool {
	if nil == other {
		return false
	}
	return self.Id == other.Id &&
		self.client.baseURL == other.client.baseURL &&
		bytes.Equal(algos.ExportPrivateKeyDER(self.key), algos.ExportPrivateKeyDER(other.key))
}

// Serialize returns the binary snapshot of the Service.
// The third to last slot is the obsolete signature key, always null on write.
func (self *Service) Serialize() ([]byte, error) {
	var token any
	if t := self.currentToken(); "" != t {
		token = t
	}
	data, err := wire.Encode(serviceHeader, wireVersion, self.Id, algos.ExportPrivateKeyDER(self.key), nil, token)
	return data, wrapFlagError(err, ErrSerialization, "failed Service serialization") // nil if err is nil
}

// ---------------------------------------------------------------------------
// signature scheme

// CalculateSignatureData returns the SHA-256 digest binding
// (server, service, username, deviceId, device public key, level) together.
// Username and server URL are case folded, the PEM key is hashed byte exact
// with one extra trailing newline.
func (self *Service) CalculateSignatureData(username, deviceId, publicKeyPEM string, level int) []byte {
	var sb strings.Builder
	sb.WriteString(strings.ToLower(self.client.baseURL))
	sb.WriteString(self.Id)
	sb.WriteString(strings.ToLower(username))
	sb.WriteString(deviceId)
	sb.WriteString(publicKeyPEM)
	sb.WriteString("\n")
	sb.WriteString(strconv.Itoa(level))

	return algos.Hash([]byte(sb.String()))
}

// CalculateSignature RSA signs the key binding digest with the Service private key.
func (self *Service) CalculateSignature(username, deviceId, publicKeyPEM string, level int) ([]byte, error) {
	sig, err := algos.SignDigest(self.key, self.CalculateSignatureData(username, deviceId, publicKeyPEM, level))
	return sig, wrapError(err, "failed key binding signature") // nil if err is nil
}

// VerifySignature recomputes the key binding digest and checks sig against it
// under the Service public key.
func (self *Service) VerifySignature(sig []byte, username, deviceId, publicKeyPEM string, level int) bool {
	return algos.VerifyDigest(&self.key.PublicKey, self.CalculateSignatureData(username, deviceId, publicKeyPEM, level), sig)
}

// ---------------------------------------------------------------------------
// session access helpers

func (self *Service) currentToken() string {
	self.mut.Lock()
	defer self.mut.Unlock()
	return self.sessionToken
}

// withSession runs call with the current session token and retries exactly
// once after a session refresh if the server reports the token expired.
//
// When the retried call expires again the helper resolves to a nil error with
// the response left empty instead of propagating. Historical SDK behavior,
// kept for compatibility.
// TODO: confirm with product whether double expiry should propagate instead.
func (self *Service) withSession(ctx context.Context, call func(token string) error) error {
	token := self.currentToken()
	err := call(token)
	if !errors.Is(err, transport.ErrSessionExpired) {
		return err
	}

	err = self.refreshSession(ctx, token)
	if nil != err {
		return wrapError(err, "failed session refresh")
	}

	err = call(self.currentToken())
	if errors.Is(err, transport.ErrSessionExpired) {
		observability.GetObservability(ctx).Log().Warn(
			"session expired twice, resolving to empty result",
			"service", self.Id,
		)
		return nil
	}

	return err
}

// refreshSession performs the challenge/solve exchange yielding a new session
// token. stale is the token observed by the caller before the expiry, when
// another caller refreshed in between the exchange is skipped.
func (self *Service) refreshSession(ctx context.Context, stale string) error {
	self.mut.Lock()
	defer self.mut.Unlock()

	if self.sessionToken != stale {
		return nil
	}

	chresp := sessionChallengeResponse{}
	err := self.client.tr.GetURI(ctx, "/sp/authenticate-service/challenge", "", &chresp)
	if nil != err {
		return wrapError(err, "failed session challenge fetch")
	}
	if len(chresp.AuthChallenge) == 0 {
		return newError("server session challenge is empty")
	}

	sol, err := algos.SignDigest(self.key, algos.Hash(chresp.AuthChallenge))
	if nil != err {
		return wrapError(err, "failed session challenge signature")
	}

	req := sessionSolutionRequest{AuthChallengeSolution: sol}
	resp := sessionSolutionResponse{}
	err = self.client.tr.PostURI(ctx, "/sp/authenticate-service", "", &req, &resp)
	if nil != err {
		return wrapError(err, "failed session challenge solve")
	}
	if "" == resp.SessionToken {
		return newError("server response misses sessionToken")
	}

	self.sessionToken = resp.SessionToken

	return nil
}

func (self *Service) getURL(ctx context.Context, url string, dst any) error {
	return self.withSession(ctx, func(token string) error {
		return self.client.tr.GetURL(ctx, url, token, dst)
	})
}

func (self *Service) postURL(ctx context.Context, url string, body, dst any) error {
	return self.withSession(ctx, func(token string) error {
		return self.client.tr.PostURL(ctx, url, token, body, dst)
	})
}

func (self *Service) getURI(ctx context.Context, uri string, dst any) error {
	return self.withSession(ctx, func(token string) error {
		return self.client.tr.GetURI(ctx, uri, token, dst)
	})
}

func (self *Service) postURI(ctx context.Context, uri string, body, dst any) error {
	return self.withSession(ctx, func(token string) error {
		return self.client.tr.PostURI(ctx, uri, token, body, dst)
	})
}

// ---------------------------------------------------------------------------
// device listing

// GetUserDevices fetches the devices enrolled for username. A device is
// returned only if every one of its per level key binding signatures
// verifies, a single failing level drops the whole device.
//
// Zero reported devices yield an empty list. One or more reported devices
// with none passing verification is a trust violation and errors.
func (self *Service) GetUserDevices(ctx context.Context, username string) ([]Device, error) {
	req := userDevicesRequest{Username: username}
	resp := userDevicesResponse{}
	err := self.postURI(ctx, "/sp/user-devices", &req, &resp)
	if nil != err {
		return nil, wrapError(err, "failed user devices fetch")
	}

	devices := make([]Device, 0, len(resp.Devices))
	for _, rec := range resp.Devices {
		if self.deviceSignaturesValid(username, rec) {
			devices = append(devices, Device{Id: rec.DeviceId, Name: rec.DeviceName, Keys: rec.PublicKeys})
		}
	}
	if len(resp.Devices) > 0 && len(devices) == 0 {
		return nil, newFlagError(ErrSecurity, "Mismatching key signatures")
	}

	return devices, nil
}

func (self *Service) deviceSignaturesValid(username string, rec deviceRecord) bool {
	if len(rec.PublicKeys) == 0 {
		return false
	}
	for level, pemkey := range rec.PublicKeys {
		sig, found := rec.Signatures[level]
		if !found || !self.VerifySignature(sig, username, rec.DeviceId, pemkey, level) {
			return false
		}
	}
	return true
}

// ---------------------------------------------------------------------------
// enrolment & authentication issuance

// EnrolUser starts an enrolment for username and returns the session tracking it.
func (self *Service) EnrolUser(ctx context.Context, username string) (*Enrolment, error) {
	req := enrolUserRequest{Username: username}
	resp := enrolUserResponse{}
	err := self.postURI(ctx, "/sp/enrol-user", &req, &resp)
	if nil != err {
		return nil, wrapError(err, "failed enrolment start")
	}
	if "" == resp.ValidateUrl || "" == resp.StatusUrl {
		return nil, newError("enrolment response misses session URLs")
	}

	return &Enrolment{
		service:        self,
		LogId:          resp.LogId,
		Username:       username,
		WaveCodeURL:    resp.WaveCodeUrl,
		DirectEnrolURL: resp.DirectEnrolUrl,
		statusURL:      resp.StatusUrl,
		validateURL:    resp.ValidateUrl,
	}, nil
}

func newChallenge() ([]byte, error) {
	challenge := make([]byte, challengeSize)
	_, err := rand.Read(challenge)
	return challenge, wrapError(err, "failed challenge generation") // nil if err is nil
}

func checkAuthLevel(level int) error {
	if level < MinAuthLevel || level > MaxAuthLevel {
		return newError("authentication level %d outside [%d, %d]", level, MinAuthLevel, MaxAuthLevel)
	}
	return nil
}

// PushAuth starts an authentication targeted at one known device of username.
// The device is notified immediately and one round of the bidirectional app
// challenge exchange is performed inline, so the app has pre solved the
// service proof of possession before Authenticate is called.
func (self *Service) PushAuth(ctx context.Context, username string, device Device, level int) (*PushAuth, error) {
	err := checkAuthLevel(level)
	if nil != err {
		return nil, err
	}
	challenge, err := newChallenge()
	if nil != err {
		return nil, err
	}

	req := authenticationRequest{
		Interaction: "Push",
		Username:    username,
		DeviceId:    device.Id,
		AuthLevel:   level,
		Challenge:   challenge,
	}
	resp := authenticationResponse{}
	err = self.postURI(ctx, "/sp/authentication", &req, &resp)
	if nil != err {
		return nil, wrapError(err, "failed push authentication start")
	}
	if "" == resp.AssertionUrl || "" == resp.StatusUrl {
		return nil, newError("authentication response misses session URLs")
	}

	auth := &PushAuth{
		authSession: authSession{
			service:      self,
			LogId:        resp.LogId,
			challenge:    challenge,
			level:        level,
			statusURL:    resp.StatusUrl,
			assertionURL: resp.AssertionUrl,
		},
		Username: username,
		Device:   device,
	}

	if "" != resp.AppChallengeUrl {
		err = auth.solveAppChallenge(ctx, resp.AppChallengeUrl)
		if nil != err {
			return nil, wrapError(err, "failed app challenge round")
		}
	}

	return auth, nil
}

// WaveAuth starts an authentication presented as a scannable WaveCode to a
// not yet known device. All challenge exchange is deferred to Authenticate.
func (self *Service) WaveAuth(ctx context.Context, level int) (*WaveAuth, error) {
	err := checkAuthLevel(level)
	if nil != err {
		return nil, err
	}
	challenge, err := newChallenge()
	if nil != err {
		return nil, err
	}

	req := authenticationRequest{Interaction: "Wave", AuthLevel: level}
	resp := authenticationResponse{}
	err = self.postURI(ctx, "/sp/authentication", &req, &resp)
	if nil != err {
		return nil, wrapError(err, "failed wave authentication start")
	}
	if "" == resp.AssertionUrl || "" == resp.StatusUrl {
		return nil, newError("authentication response misses session URLs")
	}

	return &WaveAuth{
		authSession: authSession{
			service:      self,
			LogId:        resp.LogId,
			challenge:    challenge,
			level:        level,
			statusURL:    resp.StatusUrl,
			assertionURL: resp.AssertionUrl,
		},
		InitiatorURL:    resp.InitiatorUrl,
		WaveCodeURL:     resp.WaveCodeUrl,
		appChallengeURL: resp.AppChallengeUrl,
	}, nil
}

// ---------------------------------------------------------------------------
// revocation

// RevokeUser asks the server to revoke username's enrolment for this Service.
// With deviceIds given, only those devices are revoked.
func (self *Service) RevokeUser(ctx context.Context, username string, deviceIds ...string) error {
	req := revokeUserRequest{Username: username, DeviceIds: deviceIds}
	err := self.postURI(ctx, "/sp/revoke-user", &req, nil)
	return wrapError(err, "failed user revocation") // nil if err is nil
}

// RevokeDevice revokes a single enrolled device of username.
func (self *Service) RevokeDevice(ctx context.Context, username, deviceId string) error {
	return self.RevokeUser(ctx, username, deviceId)
}

// Revoke asks the server to invalidate this Service registration. The local
// object stays usable but subsequent calls will fail server side.
func (self *Service) Revoke(ctx context.Context) error {
	err := self.postURI(ctx, "/sp/revoke-service", struct{}{}, nil)
	return wrapError(err, "failed service revocation") // nil if err is nil
}

// ---------------------------------------------------------------------------
// payload envelope

// encryptPayloadData seals payload for recipient: AES-256-CFB under a fresh
// key, the key RSA encrypted to the recipient and RSA signed by this Service.
// It errors with ErrPayloadDataLengthExceeded before any network I/O when the
// hex expanded ciphertext would exceed the negotiated ceiling.
func (self *Service) encryptPayloadData(ctx context.Context, recipient *rsa.PublicKey, payload any) (*PayloadEnvelope, error) {
	plaintext, err := json.Marshal(payload)
	if nil != err {
		return nil, wrapError(err, "failed payload serialization")
	}

	data, symkey, err := algos.EncryptCFB(plaintext)
	if nil != err {
		return nil, wrapError(err, "failed payload encryption")
	}

	psize, err := self.client.maxPayloadSize(ctx)
	if nil != err {
		return nil, wrapError(err, "unknown payload size ceiling")
	}
	// hex encoding doubles the wire size
	if 2*len(data) >= psize {
		return nil, newFlagError(ErrPayloadDataLengthExceeded, "encrypted payload needs %d bytes, ceiling is %d", 2*len(data), psize)
	}

	enckey, err := algos.EncryptRSA(recipient, symkey)
	if nil != err {
		return nil, wrapError(err, "failed payload key encryption")
	}
	sig, err := algos.SignDigest(self.key, algos.Hash(enckey))
	if nil != err {
		return nil, wrapError(err, "failed payload key signature")
	}

	return &PayloadEnvelope{Data: data, Key: enckey, Signature: sig}, nil
}

// decryptPayloadJSON opens an envelope sealed to this Service: the signature
// over the encrypted key is checked under the sender public key before any
// decryption happens.
func (self *Service) decryptPayloadJSON(sender *rsa.PublicKey, env *PayloadEnvelope, dst any) error {
	if !algos.VerifyDigest(sender, algos.Hash(env.Key), env.Signature) {
		return newFlagError(ErrSecurity, "Failed payload signature verification")
	}

	symkey, err := algos.DecryptRSA(self.key, env.Key)
	if nil != err {
		return wrapError(err, "failed payload key decryption")
	}
	plaintext, err := algos.DecryptCFB(symkey, env.Data)
	if nil != err {
		return wrapError(err, "failed payload decryption")
	}

	err = json.Unmarshal(plaintext, dst)

	return wrapError(err, "failed payload parsing") // nil if err is nil
}
