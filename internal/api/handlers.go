package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/hadv/ethaura-passkeys/internal/apierror"
	"github.com/hadv/ethaura-passkeys/internal/devices"
	"github.com/hadv/ethaura-passkeys/internal/gateway"
	"github.com/hadv/ethaura-passkeys/internal/sessions"
	"github.com/hadv/ethaura-passkeys/internal/store"
)

type handlers struct {
	cfg Config
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, err error) {
	status, body := apierror.ToHTTP(err)
	writeJSON(w, status, body)
}

func (h *handlers) parseEnvelopeBody(r *http.Request, dst interface{}) (gateway.Envelope, error) {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return gateway.Envelope{}, apierror.Wrap(apierror.CodeValidation, "malformed request body", err)
	}
	raw, ok := dst.(envelopeCarrier)
	if !ok {
		return gateway.Envelope{}, apierror.New(apierror.CodeFatal, "handler misconfigured")
	}
	return gateway.ParseEnvelope(raw.envelope(), h.cfg.Recoverer, h.cfg.Now())
}

// envelopeCarrier is implemented by every request body struct that
// embeds gateway.RawEnvelope, so parseEnvelopeBody can extract it
// generically.
type envelopeCarrier interface {
	envelope() gateway.RawEnvelope
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": h.cfg.Now(),
		"uptime":    h.cfg.Now().Sub(h.cfg.StartedAt).String(),
	})
}

type addDeviceRequest struct {
	gateway.RawEnvelope
	DeviceID          string          `json:"deviceId"`
	DeviceName        string          `json:"deviceName"`
	DeviceType        string          `json:"deviceType"`
	CredentialID      string          `json:"credentialId"`
	RawID             string          `json:"rawId"`
	PublicKey         store.PublicKey `json:"publicKey"`
	AttestationObject *string         `json:"attestationObject"`
	ClientDataJSON    *string         `json:"clientDataJson"`
	AAGUID            string          `json:"aaguid"`
	Format            string          `json:"format"`
	IsHardwareBacked  *bool           `json:"isHardwareBacked"`
	AuthenticatorName string          `json:"authenticatorName"`
	ProposalHash      *string         `json:"proposalHash"`
}

func (req *addDeviceRequest) envelope() gateway.RawEnvelope { return req.RawEnvelope }

func (h *handlers) addDevice(w http.ResponseWriter, r *http.Request) {
	var req addDeviceRequest
	env, err := h.parseEnvelopeBody(r, &req)
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := h.cfg.Devices.AddDevice(r.Context(), env.VerifiedAccount, devices.NewDeviceInput{
		DeviceID:          req.DeviceID,
		DeviceName:        req.DeviceName,
		DeviceType:        req.DeviceType,
		CredentialID:      req.CredentialID,
		RawID:             req.RawID,
		PublicKey:         req.PublicKey,
		AttestationObject: req.AttestationObject,
		ClientDataJSON:    req.ClientDataJSON,
		AAGUID:            req.AAGUID,
		Format:            req.Format,
		IsHardwareBacked:  req.IsHardwareBacked,
		AuthenticatorName: req.AuthenticatorName,
		ProposalHash:      req.ProposalHash,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *handlers) getDevices(w http.ResponseWriter, r *http.Request) {
	raw, err := envelopeFromQuery(r)
	if err != nil {
		writeError(w, err)
		return
	}
	env, err := gateway.ParseEnvelope(raw, h.cfg.Recoverer, h.cfg.Now())
	if err != nil {
		writeError(w, err)
		return
	}

	account := mux.Vars(r)["accountAddress"]
	if account == "" {
		account = env.VerifiedAccount
	}

	devs, err := h.cfg.Devices.GetDevices(r.Context(), account)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"devices": devs})
}

type removeDeviceRequest struct {
	gateway.RawEnvelope
	DeviceID string `json:"deviceId"`
}

func (req *removeDeviceRequest) envelope() gateway.RawEnvelope { return req.RawEnvelope }

func (h *handlers) removeDevice(w http.ResponseWriter, r *http.Request) {
	var req removeDeviceRequest
	env, err := h.parseEnvelopeBody(r, &req)
	if err != nil {
		writeError(w, err)
		return
	}

	removed, err := h.cfg.Devices.RemoveDevice(r.Context(), env.VerifiedAccount, req.DeviceID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"removed": removed})
}

type createSessionRequest struct {
	gateway.RawEnvelope
}

func (req *createSessionRequest) envelope() gateway.RawEnvelope { return req.RawEnvelope }

func (h *handlers) createSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	env, err := h.parseEnvelopeBody(r, &req)
	if err != nil {
		writeError(w, err)
		return
	}

	sess, err := h.cfg.Sessions.Create(r.Context(), sessions.NewSessionInput{
		AccountAddress: env.VerifiedAccount,
		OwnerAddress:   env.VerifiedOwner,
		Signature:      req.RawEnvelope.Signature,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (h *handlers) getSession(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["sessionId"]
	sess, err := h.cfg.Sessions.Get(r.Context(), sessionID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

type completeSessionRequest struct {
	gateway.RawEnvelope
	DeviceData json.RawMessage `json:"deviceData"`
}

func (req *completeSessionRequest) envelope() gateway.RawEnvelope { return req.RawEnvelope }

func (h *handlers) completeSession(w http.ResponseWriter, r *http.Request) {
	var req completeSessionRequest
	_, err := h.parseEnvelopeBody(r, &req)
	if err != nil {
		writeError(w, err)
		return
	}

	sessionID := mux.Vars(r)["sessionId"]
	sess, err := h.cfg.Sessions.Complete(r.Context(), sessionID, req.DeviceData)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (h *handlers) adminStats(w http.ResponseWriter, r *http.Request) {
	raw, err := envelopeFromQuery(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if _, err := gateway.ParseEnvelope(raw, h.cfg.Recoverer, h.cfg.Now()); err != nil {
		writeError(w, err)
		return
	}

	stats, err := h.cfg.Admin.Stats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

type adminBackupRequest struct {
	gateway.RawEnvelope
}

func (req *adminBackupRequest) envelope() gateway.RawEnvelope { return req.RawEnvelope }

func (h *handlers) adminBackup(w http.ResponseWriter, r *http.Request) {
	var req adminBackupRequest
	if _, err := h.parseEnvelopeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	result, err := h.cfg.Admin.Backup(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
