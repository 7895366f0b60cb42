// Package router multiplexes concurrent request/response exchanges
// between a long-running vault host and its UI surfaces. One-shot app
// requests and long-lived port channels are separate request families,
// each a closed tagged union carried in a CBOR envelope with a
// monotonically increasing request id for correlation.
package router

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// RequestID correlates a response with its request. Ids are strictly
// increasing and never reused within their scope (one counter per port,
// plus a separate one-shot counter).
type RequestID uint64

// Envelope is the wire frame for every message.
type Envelope struct {
	ID   RequestID       `cbor:"id"`
	Kind string          `cbor:"kind"`
	Body cbor.RawMessage `cbor:"body,omitempty"`
}

// ErrUnknownKind indicates an envelope whose kind is not part of the
// request family being decoded.
var ErrUnknownKind = errors.New("unknown message kind")

// One-shot app request family.
const (
	kindGetStatus     = "get_status"
	kindUnlock        = "unlock"
	kindLogin         = "login"
	kindGetCredential = "get_credential"
	kindAddCredential = "add_credential"
)

// App response family.
const (
	kindStatus     = "status"
	kindAuth       = "auth"
	kindCredential = "credential"
)

// Port request/response family.
const (
	kindPortGetCredential = "port_get_credential"
	kindPortCredential    = "port_credential"
)

// AppRequestPayload is the closed union of one-shot app requests. Adding
// a variant means handling it in every exhaustive switch over this type.
type AppRequestPayload interface{ isAppRequest() }

type GetStatusRequest struct{}

type UnlockRequest struct {
	DevicePassword string `cbor:"device_password"`
}

type LoginRequest struct {
	SeedPhrase     string `cbor:"seed_phrase"`
	DevicePassword string `cbor:"device_password"`
}

type GetCredentialRequest struct {
	Site     string `cbor:"site"`
	Username string `cbor:"username,omitempty"`
}

type AddCredentialRequest struct {
	Site     string `cbor:"site"`
	Username string `cbor:"username"`
	Password string `cbor:"password"`
}

func (GetStatusRequest) isAppRequest()     {}
func (UnlockRequest) isAppRequest()        {}
func (LoginRequest) isAppRequest()         {}
func (GetCredentialRequest) isAppRequest() {}
func (AddCredentialRequest) isAppRequest() {}

// AppResponsePayload is the closed union of one-shot app responses.
type AppResponsePayload interface{ isAppResponse() }

type StatusResponse struct {
	Registered bool `cbor:"registered"`
	Unlocked   bool `cbor:"unlocked"`
}

// AuthResponse reports the outcome of an Unlock or Login attempt. Error
// is empty on success.
type AuthResponse struct {
	Error string `cbor:"error,omitempty"`
}

type CredentialResponse struct {
	Username string `cbor:"username"`
	Password string `cbor:"password"`
	Error    string `cbor:"error,omitempty"`
}

func (StatusResponse) isAppResponse()     {}
func (AuthResponse) isAppResponse()       {}
func (CredentialResponse) isAppResponse() {}

// PortRequestPayload is the closed union of channel-scoped requests.
type PortRequestPayload interface{ isPortRequest() }

type PortGetCredentialRequest struct {
	Site string `cbor:"site"`
}

func (PortGetCredentialRequest) isPortRequest() {}

// PortResponsePayload is the closed union of channel-scoped responses.
type PortResponsePayload interface{ isPortResponse() }

type PortCredentialResponse struct {
	Username string `cbor:"username"`
	Password string `cbor:"password"`
	Error    string `cbor:"error,omitempty"`
}

func (PortCredentialResponse) isPortResponse() {}

func encode(id RequestID, kind string, payload any) (Envelope, error) {
	body, err := cbor.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to encode %s payload: %w", kind, err)
	}
	return Envelope{ID: id, Kind: kind, Body: body}, nil
}

// EncodeAppRequest frames a one-shot request.
func EncodeAppRequest(id RequestID, payload AppRequestPayload) (Envelope, error) {
	switch payload.(type) {
	case GetStatusRequest:
		return encode(id, kindGetStatus, payload)
	case UnlockRequest:
		return encode(id, kindUnlock, payload)
	case LoginRequest:
		return encode(id, kindLogin, payload)
	case GetCredentialRequest:
		return encode(id, kindGetCredential, payload)
	case AddCredentialRequest:
		return encode(id, kindAddCredential, payload)
	default:
		return Envelope{}, fmt.Errorf("%w: %T", ErrUnknownKind, payload)
	}
}

// DecodeAppRequest opens a one-shot request envelope.
func DecodeAppRequest(env Envelope) (AppRequestPayload, error) {
	switch env.Kind {
	case kindGetStatus:
		return decodeBody[GetStatusRequest](env)
	case kindUnlock:
		return decodeBody[UnlockRequest](env)
	case kindLogin:
		return decodeBody[LoginRequest](env)
	case kindGetCredential:
		return decodeBody[GetCredentialRequest](env)
	case kindAddCredential:
		return decodeBody[AddCredentialRequest](env)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, env.Kind)
	}
}

// EncodeAppResponse frames a one-shot response.
func EncodeAppResponse(id RequestID, payload AppResponsePayload) (Envelope, error) {
	switch payload.(type) {
	case StatusResponse:
		return encode(id, kindStatus, payload)
	case AuthResponse:
		return encode(id, kindAuth, payload)
	case CredentialResponse:
		return encode(id, kindCredential, payload)
	default:
		return Envelope{}, fmt.Errorf("%w: %T", ErrUnknownKind, payload)
	}
}

// DecodeAppResponse opens a one-shot response envelope.
func DecodeAppResponse(env Envelope) (AppResponsePayload, error) {
	switch env.Kind {
	case kindStatus:
		return decodeBody[StatusResponse](env)
	case kindAuth:
		return decodeBody[AuthResponse](env)
	case kindCredential:
		return decodeBody[CredentialResponse](env)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, env.Kind)
	}
}

// EncodePortRequest frames a channel-scoped request.
func EncodePortRequest(id RequestID, payload PortRequestPayload) (Envelope, error) {
	switch payload.(type) {
	case PortGetCredentialRequest:
		return encode(id, kindPortGetCredential, payload)
	default:
		return Envelope{}, fmt.Errorf("%w: %T", ErrUnknownKind, payload)
	}
}

// DecodePortRequest opens a channel-scoped request envelope.
func DecodePortRequest(env Envelope) (PortRequestPayload, error) {
	switch env.Kind {
	case kindPortGetCredential:
		return decodeBody[PortGetCredentialRequest](env)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, env.Kind)
	}
}

// EncodePortResponse frames a channel-scoped response.
func EncodePortResponse(id RequestID, payload PortResponsePayload) (Envelope, error) {
	switch payload.(type) {
	case PortCredentialResponse:
		return encode(id, kindPortCredential, payload)
	default:
		return Envelope{}, fmt.Errorf("%w: %T", ErrUnknownKind, payload)
	}
}

// DecodePortResponse opens a channel-scoped response envelope.
func DecodePortResponse(env Envelope) (PortResponsePayload, error) {
	switch env.Kind {
	case kindPortCredential:
		return decodeBody[PortCredentialResponse](env)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, env.Kind)
	}
}

func decodeBody[T any](env Envelope) (T, error) {
	var payload T
	if len(env.Body) == 0 {
		return payload, nil
	}
	if err := cbor.Unmarshal(env.Body, &payload); err != nil {
		return payload, fmt.Errorf("failed to decode %s payload: %w", env.Kind, err)
	}
	return payload, nil
}
