package cipherise

import (
	"github.com/forticode/cipherise-sdk-go/internal/utils"
)

// Wire DTOs of the Cipherise server HTTP surface. Responses are parsed
// strictly into these shapes at the transport boundary, missing or malformed
// fields surface as protocol errors in the calling operation.

type serverInfoResponse struct {
	ProductType   string `json:"productType"`
	ServerVersion string `json:"serverVersion"`
	BuildVersion  string `json:"buildVersion"`
	AppMinVersion string `json:"appMinVersion"`
	PayloadSize   int    `json:"payloadSize,omitempty"`
}

type createServiceRequest struct {
	ServiceName string `json:"serviceName"`
	PublicKey   string `json:"publicKey"`
}

type createServiceResponse struct {
	ServiceId string `json:"serviceId"`
}

type sessionChallengeResponse struct {
	LogId         string          `json:"logId"`
	AuthChallenge utils.HexBinary `json:"authChallenge"`
}

type sessionSolutionRequest struct {
	AuthChallengeSolution utils.HexBinary `json:"authChallengeSolution"`
}

type sessionSolutionResponse struct {
	SessionToken string `json:"sessionToken"`
}

type enrolUserRequest struct {
	Username string `json:"username"`
}

type enrolUserResponse struct {
	LogId          string `json:"logId"`
	WaveCodeUrl    string `json:"waveCodeUrl"`
	DirectEnrolUrl string `json:"directEnrolUrl"`
	StatusUrl      string `json:"statusUrl"`
	ValidateUrl    string `json:"validateUrl"`
}

type enrolStatusResponse struct {
	EnrolStatusText string `json:"enrolStatusText"`
}

type enrolValidateResponse struct {
	FailReason      string         `json:"failReason,omitempty"`
	DeviceId        string         `json:"deviceId"`
	PublicKeys      map[int]string `json:"publicKeys"`
	ConfirmationUrl string         `json:"confirmationUrl"`
	IdenticonUrl    string         `json:"identiconUrl"`
}

type enrolConfirmRequest struct {
	Confirm    bool                    `json:"confirm"`
	Signatures map[int]utils.HexBinary `json:"signatures"`
	Payload    *PayloadEnvelope        `json:"payload,omitempty"`
}

type enrolConfirmResponse struct {
	PayloadVerifyUrl string           `json:"payloadVerifyUrl,omitempty"`
	Payload          *PayloadEnvelope `json:"payload,omitempty"`
}

type payloadVerifyNotice struct {
	Verified bool `json:"verified"`
}

type userDevicesRequest struct {
	Username string `json:"username"`
}

type userDevicesResponse struct {
	Devices []deviceRecord `json:"devices"`
}

type deviceRecord struct {
	DeviceId   string                  `json:"deviceId"`
	DeviceName string                  `json:"deviceName"`
	PublicKeys map[int]string          `json:"publicKeys"`
	Signatures map[int]utils.HexBinary `json:"signatures"`
}

type authenticationRequest struct {
	Interaction string          `json:"interaction"` // "Push" or "Wave"
	Username    string          `json:"username,omitempty"`
	DeviceId    string          `json:"deviceId,omitempty"`
	AuthLevel   int             `json:"authLevel"`
	Challenge   utils.HexBinary `json:"challenge,omitempty"` // Push sends it upfront, Wave at assertion time
}

type authenticationResponse struct {
	LogId           string `json:"logId"`
	StatusUrl       string `json:"statusUrl"`
	AssertionUrl    string `json:"assertionUrl"`
	AppChallengeUrl string `json:"appChallengeUrl,omitempty"`
	InitiatorUrl    string `json:"initiatorUrl,omitempty"`
	WaveCodeUrl     string `json:"waveCodeUrl,omitempty"`
}

type appChallengeResponse struct {
	AppChallenge utils.HexBinary `json:"appChallenge"`
}

type appChallengeSolutionRequest struct {
	AppChallengeSolution utils.HexBinary `json:"appChallengeSolution"`
}

type assertionRequest struct {
	Challenge            utils.HexBinary `json:"challenge"`
	AppChallengeSolution utils.HexBinary `json:"appChallengeSolution,omitempty"`
	WaitForAppSolution   bool            `json:"waitForAppSolution"`
}

// assertionResponse reports how the device resolved the challenge.
// Authenticated is a tri-state-plus text: "true", "false", "cancelled" or "reported".
type assertionResponse struct {
	VerifyUrl         string          `json:"verifyUrl"`
	Username          string          `json:"username"`
	DeviceId          string          `json:"deviceId"`
	PublicKey         string          `json:"publicKey"`
	KeySignature      utils.HexBinary `json:"keySignature"`
	ChallengeSolution utils.HexBinary `json:"challengeSolution"`
	Authenticated     string          `json:"authenticated"`
	FailReason        string          `json:"failReason,omitempty"`
	PayloadUrl        string          `json:"payloadUrl,omitempty"`
}

type verifyNotice struct {
	Verified   bool   `json:"verified"`
	FailReason string `json:"failReason,omitempty"`
}

type authStatusResponse struct {
	StatusText string `json:"statusText"`
}

type payloadExchangeRequest struct {
	Payload PayloadEnvelope `json:"payload"`
}

type payloadExchangeResponse struct {
	Payload PayloadEnvelope `json:"payload"`
}

type revokeUserRequest struct {
	Username  string   `json:"username"`
	DeviceIds []string `json:"deviceIds,omitempty"`
}
