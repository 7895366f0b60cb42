package router

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/srosati/passphrasex/vault"
)

// Router serves vault operations to concurrent UI surfaces: one-shot app
// requests and channel-scoped port requests. The vault itself serializes
// its state; the router only fans messages in and out.
type Router struct {
	vault *vault.Vault
	ports *connectedPorts

	mu            sync.Mutex
	lastRequestID RequestID
}

// New creates a router over an owned vault session.
func New(v *vault.Vault) *Router {
	return &Router{
		vault: v,
		ports: newConnectedPorts(),
	}
}

// NextRequestID advances the global one-shot counter, separate from every
// port's counter.
func (r *Router) NextRequestID() RequestID {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastRequestID++
	return r.lastRequestID
}

// Connect registers a long-lived channel and returns its port id.
func (r *Router) Connect(port Port) (PortID, error) {
	id, err := r.ports.connect(port)
	if err != nil {
		return 0, err
	}
	log.Debug().Int("port_id", int(id)).Msg("Port connected")
	return id, nil
}

// Disconnect releases a channel. Idempotent; responses in flight for the
// port are dropped on delivery.
func (r *Router) Disconnect(id PortID) {
	r.ports.disconnect(id)
	log.Debug().Int("port_id", int(id)).Msg("Port disconnected")
}

// Post delivers an envelope to a connected port. ErrNotConnected is a
// recoverable report, not a crash: disconnects race with in-flight sends.
func (r *Router) Post(id PortID, env Envelope) error {
	return r.ports.post(id, env)
}

// HandleApp serves a decoded one-shot request against the vault and
// returns the response payload for the caller to frame.
func (r *Router) HandleApp(ctx context.Context, req AppRequestPayload) AppResponsePayload {
	switch req := req.(type) {
	case GetStatusRequest:
		registered, unlocked, err := r.vault.Status(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("Status check failed")
			return StatusResponse{}
		}
		return StatusResponse{Registered: registered, Unlocked: unlocked}

	case UnlockRequest:
		if err := r.vault.Unlock(ctx, req.DevicePassword); err != nil {
			return AuthResponse{Error: err.Error()}
		}
		return AuthResponse{}

	case LoginRequest:
		if err := r.vault.Authenticate(ctx, req.SeedPhrase, req.DevicePassword); err != nil {
			return AuthResponse{Error: err.Error()}
		}
		return AuthResponse{}

	case GetCredentialRequest:
		plain, err := r.vault.Get(req.Site, req.Username)
		if err != nil {
			return CredentialResponse{Error: err.Error()}
		}
		return CredentialResponse{Username: plain.Username, Password: plain.Password}

	case AddCredentialRequest:
		if err := r.vault.Add(ctx, req.Site, req.Username, req.Password); err != nil {
			return CredentialResponse{Error: err.Error()}
		}
		return CredentialResponse{Username: req.Username, Password: req.Password}
	}

	// The union is closed; reaching here means a variant was added
	// without a handler.
	log.Error().Msgf("Unhandled app request %T", req)
	return AuthResponse{Error: "unhandled request"}
}

// ServeApp decodes, handles and frames a one-shot request.
func (r *Router) ServeApp(ctx context.Context, env Envelope) (Envelope, error) {
	req, err := DecodeAppRequest(env)
	if err != nil {
		return Envelope{}, err
	}

	id := r.NextRequestID()
	return EncodeAppResponse(id, r.HandleApp(ctx, req))
}

// ServePort handles one inbound port message asynchronously. The request
// id is taken from the port's own counter before the handler runs, so
// per-port ids stay strictly increasing in arrival order even though
// responses may complete out of order. A response for a port that has
// disconnected meanwhile is dropped, never an error.
func (r *Router) ServePort(ctx context.Context, portID PortID, env Envelope) error {
	req, err := DecodePortRequest(env)
	if err != nil {
		return err
	}

	requestID, err := r.ports.nextRequestID(portID)
	if err != nil {
		return err
	}

	go func() {
		resp := r.handlePort(ctx, req)
		out, err := EncodePortResponse(requestID, resp)
		if err != nil {
			log.Error().Err(err).Msg("Failed to encode port response")
			return
		}
		if err := r.ports.post(portID, out); err != nil {
			if errors.Is(err, ErrNotConnected) {
				log.Debug().Int("port_id", int(portID)).Msg("Dropping response for disconnected port")
				return
			}
			log.Warn().Err(err).Int("port_id", int(portID)).Msg("Failed to post port response")
		}
	}()
	return nil
}

func (r *Router) handlePort(_ context.Context, req PortRequestPayload) PortResponsePayload {
	switch req := req.(type) {
	case PortGetCredentialRequest:
		creds, err := r.vault.GetSite(req.Site)
		if err != nil {
			return PortCredentialResponse{Error: err.Error()}
		}
		if len(creds) == 0 {
			return PortCredentialResponse{Error: vault.ErrCredentialNotFound.Error()}
		}
		return PortCredentialResponse{Username: creds[0].Username, Password: creds[0].Password}
	}

	log.Error().Msgf("Unhandled port request %T", req)
	return PortCredentialResponse{Error: "unhandled request"}
}
