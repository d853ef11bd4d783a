package cipherise

import (
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/forticode/cipherise-sdk-go/internal/algos"
	"github.com/forticode/cipherise-sdk-go/internal/utils"
)

// test fixtures shared by the package test files.

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	client, err := NewClient(baseURL, WithoutServerValidation())
	if nil != err {
		t.Fatalf("failed NewClient, got error %v", err)
	}

	// pre negotiated ceiling, payload tests do not hit /info
	client.payloadSize = defaultPayloadSize

	return client
}

func newTestService(t *testing.T, client *Client) *Service {
	t.Helper()
	key, err := algos.GenerateKey()
	if nil != err {
		t.Fatalf("failed key generation, got error %v", err)
	}

	return newService(client, "svc-0001", key, "tok-0")
}

// testDevice simulates an enrolled authenticator app.
type testDevice struct {
	key *rsa.PrivateKey
	dev Device
}

func newTestDevice(t *testing.T, id, name string, levels ...int) testDevice {
	t.Helper()
	key, err := algos.GenerateKey()
	if nil != err {
		t.Fatalf("failed device key generation, got error %v", err)
	}

	keys := make(map[int]string, len(levels))
	for _, level := range levels {
		keys[level] = algos.ExportPublicKeyPEM(&key.PublicKey)
	}

	return testDevice{key: key, dev: Device{Id: id, Name: name, Keys: keys}}
}

// signatures returns the key binding signatures svc would have stored at
// enrolment confirmation time.
func (self testDevice) signatures(t *testing.T, svc *Service, username string) map[int]utils.HexBinary {
	t.Helper()
	sigs := make(map[int]utils.HexBinary, len(self.dev.Keys))
	for level, pemkey := range self.dev.Keys {
		sig, err := svc.CalculateSignature(username, self.dev.Id, pemkey, level)
		if nil != err {
			t.Fatalf("failed key binding signature, got error %v", err)
		}
		sigs[level] = sig
	}

	return sigs
}

// solve returns the device solution to an authentication challenge.
func (self testDevice) solve(t *testing.T, challenge []byte) utils.HexBinary {
	t.Helper()
	sol, err := algos.SignDigest(self.key, algos.Hash(challenge))
	if nil != err {
		t.Fatalf("failed challenge solution, got error %v", err)
	}

	return sol
}

// sealPayload builds the envelope the device would send back to svc.
func (self testDevice) sealPayload(t *testing.T, svc *Service, payload any) *PayloadEnvelope {
	t.Helper()
	plaintext, err := json.Marshal(payload)
	if nil != err {
		t.Fatalf("failed payload marshalling, got error %v", err)
	}
	data, symkey, err := algos.EncryptCFB(plaintext)
	if nil != err {
		t.Fatalf("failed payload encryption, got error %v", err)
	}
	enckey, err := algos.EncryptRSA(&svc.key.PublicKey, symkey)
	if nil != err {
		t.Fatalf("failed payload key encryption, got error %v", err)
	}
	sig, err := algos.SignDigest(self.key, algos.Hash(enckey))
	if nil != err {
		t.Fatalf("failed payload key signature, got error %v", err)
	}

	return &PayloadEnvelope{Data: data, Key: enckey, Signature: sig}
}

// openPayload opens an envelope svc sealed for the device.
func (self testDevice) openPayload(t *testing.T, svc *Service, env *PayloadEnvelope, dst any) {
	t.Helper()
	if !algos.VerifyDigest(&svc.key.PublicKey, algos.Hash(env.Key), env.Signature) {
		t.Fatal("envelope signature does not verify under the service key")
	}
	symkey, err := algos.DecryptRSA(self.key, env.Key)
	if nil != err {
		t.Fatalf("failed payload key decryption, got error %v", err)
	}
	plaintext, err := algos.DecryptCFB(symkey, env.Data)
	if nil != err {
		t.Fatalf("failed payload decryption, got error %v", err)
	}
	err = json.Unmarshal(plaintext, dst)
	if nil != err {
		t.Fatalf("failed payload parsing, got error %v", err)
	}
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	err := json.NewEncoder(w).Encode(v)
	if nil != err {
		t.Errorf("failed response encoding, got error %v", err)
	}
}

func readJSON(t *testing.T, r *http.Request, dst any) {
	t.Helper()
	err := json.NewDecoder(r.Body).Decode(dst)
	if nil != err {
		t.Errorf("failed request decoding, got error %v", err)
	}
}
