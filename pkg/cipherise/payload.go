package cipherise

import (
	"github.com/forticode/cipherise-sdk-go/internal/utils"
)

// PayloadRequest describes the key/value data exchanged with a device during
// enrolment confirmation or authentication.
type PayloadRequest struct {
	// Get lists the keys to fetch back from the device.
	Get []string `json:"get,omitempty"`

	// Set maps the keys to store on the device to their values.
	Set map[string]string `json:"set,omitempty"`
}

// Empty reports whether the request carries no action.
func (self *PayloadRequest) Empty() bool {
	return nil == self || (len(self.Get) == 0 && len(self.Set) == 0)
}

// PayloadResponse carries the device's answer to a PayloadRequest.
type PayloadResponse struct {
	// Get maps each fetched key to the value retrieved from the device.
	Get map[string]string `json:"get,omitempty"`

	// Set is true iff a set action was requested and the device confirmed it.
	Set bool `json:"set"`
}

// PayloadEnvelope is the encrypted wire form of payload data.
//
// Data is ciphertext‖IV of the AES-256-CFB encrypted JSON payload. Key is the
// symmetric key RSA encrypted to the recipient. Signature is the sender's RSA
// signature over the *encrypted* key, binding the envelope to its claimed
// sender without exposing the plaintext to a signature oracle.
type PayloadEnvelope struct {
	Data      utils.HexBinary `json:"data"`
	Key       utils.HexBinary `json:"key"`
	Signature utils.HexBinary `json:"signature"`
}
