package cipherise

import (
	"context"

	"github.com/forticode/cipherise-sdk-go/internal/algos"
	"github.com/forticode/cipherise-sdk-go/internal/utils"
	"github.com/forticode/cipherise-sdk-go/internal/wire"
)

const enrolmentHeader = "CiphEnrl"

// EnrolmentState tracks a user enrolment attempt.
type EnrolmentState int

const (
	// EnrolmentUnknown is the defensive default for unrecognized server status text.
	EnrolmentUnknown EnrolmentState = iota
	EnrolmentInitialised
	EnrolmentScanned
	EnrolmentValidated
	EnrolmentConfirmed
	EnrolmentFailed
)

// String returns the display name of the EnrolmentState.
func (self EnrolmentState) String() string {
	switch self {
	case EnrolmentInitialised:
		return "Initialised"
	case EnrolmentScanned:
		return "Scanned"
	case EnrolmentValidated:
		return "Validated"
	case EnrolmentConfirmed:
		return "Confirmed"
	case EnrolmentFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// enrolmentStateOf maps the server status vocabulary to EnrolmentState.
func enrolmentStateOf(text string) EnrolmentState {
	switch text {
	case "initialised":
		return EnrolmentInitialised
	case "scanned":
		return EnrolmentScanned
	case "validated":
		return EnrolmentValidated
	case "confirm":
		return EnrolmentConfirmed
	case "failed":
		return EnrolmentFailed
	default:
		return EnrolmentUnknown
	}
}

// Enrolment tracks one user enrolment from WaveCode issuance through device
// validation to confirmation. DeviceId, public keys and the confirmation URL
// are populated exactly once, by a successful Validate call. An Enrolment is
// not reusable after Confirm.
type Enrolment struct {
	service *Service

	LogId    string
	Username string

	// WaveCodeURL points at the scannable code to display to the user.
	WaveCodeURL string

	// DirectEnrolURL is the tap-to-enrol link for same-device flows.
	DirectEnrolURL string

	statusURL   string
	validateURL string

	// populated by Validate
	DeviceId        string
	publicKeys      map[int]string
	confirmationURL string
}

// GetState short polls the server for the enrolment status.
// Unrecognized status text maps to EnrolmentUnknown, not an error.
func (self *Enrolment) GetState(ctx context.Context) (EnrolmentState, error) {
	resp := enrolStatusResponse{}
	err := self.service.getURL(ctx, self.statusURL, &resp)
	if nil != err {
		return EnrolmentUnknown, wrapError(err, "failed enrolment status fetch")
	}

	return enrolmentStateOf(resp.EnrolStatusText), nil
}

// Validate long polls for the device scan outcome. On success it populates
// the device id, per level public keys and confirmation URL, and returns the
// identicon URL the operator must show the user. A server reported failure
// reason surfaces as an error.
func (self *Enrolment) Validate(ctx context.Context) (string, error) {
	resp := enrolValidateResponse{}
	err := self.service.getURL(ctx, self.validateURL, &resp)
	if nil != err {
		return "", wrapError(err, "failed enrolment validation")
	}
	if "" != resp.FailReason {
		return "", newError("%s", resp.FailReason)
	}
	if "" == resp.DeviceId || len(resp.PublicKeys) == 0 || "" == resp.ConfirmationUrl {
		return "", newError("enrolment validation response is incomplete")
	}

	self.DeviceId = resp.DeviceId
	self.publicKeys = resp.PublicKeys
	self.confirmationURL = resp.ConfirmationUrl

	return resp.IdenticonUrl, nil
}

// ConfirmResult is the terminal outcome of an Enrolment.
type ConfirmResult struct {
	Success bool
	Payload *PayloadResponse
}

// Confirm posts the operator's confirm/reject decision together with the per
// level key binding signatures and, when payload carries a set action, the
// payload encrypted to the device level 1 key.
//
// Confirm requires a prior successful Validate. The success flag is
// downgraded when the device declines the payload store, and the final
// verified/not-verified notice is posted back when the server asks for one.
func (self *Enrolment) Confirm(ctx context.Context, confirm bool, payload *PayloadRequest) (*ConfirmResult, error) {
	if "" == self.confirmationURL {
		return nil, newFlagError(ErrMissingPrecondition, "Confirm requires a successful Validate")
	}

	req := enrolConfirmRequest{Confirm: confirm, Signatures: make(map[int]utils.HexBinary, len(self.publicKeys))}
	for level, pemkey := range self.publicKeys {
		sig, err := self.service.CalculateSignature(self.Username, self.DeviceId, pemkey, level)
		if nil != err {
			return nil, wrapError(err, "failed level %d signature", level)
		}
		req.Signatures[level] = sig
	}

	wantSet := nil != payload && len(payload.Set) > 0
	if wantSet {
		devkey, err := algos.ParsePublicKeyPEM(self.publicKeys[MinAuthLevel])
		if nil != err {
			return nil, wrapError(err, "invalid device level %d key", MinAuthLevel)
		}
		env, err := self.service.encryptPayloadData(ctx, devkey, PayloadRequest{Set: payload.Set})
		if nil != err {
			return nil, wrapError(err, "failed payload encryption")
		}
		req.Payload = env
	}

	resp := enrolConfirmResponse{}
	err := self.service.postURL(ctx, self.confirmationURL, &req, &resp)
	if nil != err {
		return nil, wrapError(err, "failed enrolment confirmation")
	}

	success := confirm
	var pr *PayloadResponse
	if wantSet {
		if nil == resp.Payload {
			success = false
		} else {
			devkey, err := algos.ParsePublicKeyPEM(self.publicKeys[MinAuthLevel])
			if nil != err {
				return nil, wrapError(err, "invalid device level %d key", MinAuthLevel)
			}
			pr = &PayloadResponse{}
			err = self.service.decryptPayloadJSON(devkey, resp.Payload, pr)
			if nil != err {
				return nil, wrapError(err, "failed payload response decryption")
			}
			if !pr.Set {
				success = false
			}
		}
	}

	if "" != resp.PayloadVerifyUrl {
		err = self.service.postURL(ctx, resp.PayloadVerifyUrl, &payloadVerifyNotice{Verified: success}, nil)
		if nil != err {
			return nil, wrapError(err, "failed payload verification notice")
		}
	}

	return &ConfirmResult{Success: success, Payload: pr}, nil
}

// Serialize returns the binary snapshot of the Enrolment.
func (self *Enrolment) Serialize() ([]byte, error) {
	data, err := wire.Encode(
		enrolmentHeader,
		wireVersion,
		self.LogId,
		self.WaveCodeURL,
		self.DirectEnrolURL,
		self.statusURL,
		self.validateURL,
		self.Username,
		self.confirmationURL,
		self.DeviceId,
		self.publicKeys,
	)
	return data, wrapFlagError(err, ErrSerialization, "failed Enrolment serialization") // nil if err is nil
}

// DeserializeEnrolment restores an Enrolment bound to svc from its binary snapshot.
func (self *Service) DeserializeEnrolment(data []byte) (*Enrolment, error) {
	tup, err := wire.Decode(data)
	if nil != err {
		return nil, wrapFlagError(err, ErrSerialization, "value is not a serialized Enrolment")
	}
	err = tup.Header(enrolmentHeader, 11)
	if nil != err {
		return nil, wrapFlagError(err, ErrSerialization, "invalid Enrolment snapshot")
	}
	version, err := tup.String(1)
	if nil != err || version != wireVersion {
		return nil, newFlagError(ErrSerialization, "unsupported Enrolment snapshot version %q", version)
	}

	enr := Enrolment{service: self}
	fields := []struct {
		pos int
		dst *string
	}{
		{2, &enr.LogId},
		{3, &enr.WaveCodeURL},
		{4, &enr.DirectEnrolURL},
		{5, &enr.statusURL},
		{6, &enr.validateURL},
		{7, &enr.Username},
		{8, &enr.confirmationURL},
		{9, &enr.DeviceId},
	}
	for _, f := range fields {
		*f.dst, err = tup.String(f.pos)
		if nil != err {
			return nil, wrapFlagError(err, ErrSerialization, "invalid Enrolment field at position %d", f.pos)
		}
	}
	err = tup.Item(10, &enr.publicKeys)
	if nil != err {
		return nil, wrapFlagError(err, ErrSerialization, "invalid Enrolment key map")
	}

	return &enr, nil
}
