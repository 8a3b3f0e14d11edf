package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"sekret.org/internal/crypto"
	"sekret.org/internal/identity"
	"sekret.org/internal/secrets"
)

type createSecretRequest struct {
	Name        string   `json:"name"`
	Type        string   `json:"type"`
	Value       string   `json:"value"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
}

type updateSecretRequest struct {
	Value       *string  `json:"value"`
	Description *string  `json:"description"`
	Tags        []string `json:"tags"`
}

type updateSecretResponse struct {
	NewVersion int `json:"new_version"`
}

type rotateSecretResponse struct {
	NewValue string `json:"new_value"`
}

type listSecretsResponse struct {
	Items []secrets.Secret `json:"items"`
	AsOf  time.Time        `json:"as_of"`
}

type listVersionsResponse struct {
	Items []secrets.SecretVersion `json:"items"`
}

func (a *API) handleSecretsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.createSecret(w, r)
	case http.MethodGet:
		a.listSecrets(w, r)
	default:
		methodNotAllowed(w, r, http.MethodPost, http.MethodGet)
	}
}

func (a *API) handleSecretResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/secrets/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	id := parts[0]

	switch {
	case len(parts) == 1:
		switch r.Method {
		case http.MethodGet:
			a.getSecret(w, r, id)
		case http.MethodPut:
			a.updateSecret(w, r, id)
		case http.MethodDelete:
			a.deleteSecret(w, r, id)
		default:
			methodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
		}
	case len(parts) == 2 && parts[1] == "versions":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		a.listSecretVersions(w, r, id)
	case len(parts) == 2 && parts[1] == "rotate":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		a.rotateSecret(w, r, id)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) createSecret(w http.ResponseWriter, r *http.Request) {
	ident, ok := callerIdentity(w, r)
	if !ok {
		return
	}
	var req createSecretRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, r, http.StatusBadRequest, "name is required")
		return
	}
	if len(req.Name) > 256 {
		writeError(w, r, http.StatusBadRequest, "name too long")
		return
	}

	sec, err := a.secrets.Create(r.Context(), ident, secrets.CreateInput{
		Name:        req.Name,
		Type:        req.Type,
		Value:       req.Value,
		Description: req.Description,
		Tags:        req.Tags,
	})
	if err != nil {
		handleSecretsError(w, r, err)
		return
	}

	w.Header().Set("Location", "/v1/secrets/"+sec.ID)
	writeJSON(w, http.StatusCreated, sec)
}

func (a *API) listSecrets(w http.ResponseWriter, r *http.Request) {
	ident, ok := callerIdentity(w, r)
	if !ok {
		return
	}
	items, err := a.secrets.List(r.Context(), ident)
	if err != nil {
		handleSecretsError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listSecretsResponse{
		Items: items,
		AsOf:  time.Now().UTC(),
	})
}

func (a *API) getSecret(w http.ResponseWriter, r *http.Request, id string) {
	ident, ok := callerIdentity(w, r)
	if !ok {
		return
	}
	reveal, err := parseBool(r.URL.Query().Get("show_value"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "show_value must be a boolean")
		return
	}
	sec, err := a.secrets.Get(r.Context(), ident, id, reveal)
	if err != nil {
		handleSecretsError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sec)
}

func (a *API) updateSecret(w http.ResponseWriter, r *http.Request, id string) {
	ident, ok := callerIdentity(w, r)
	if !ok {
		return
	}
	var req updateSecretRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.Value == nil && req.Description == nil && req.Tags == nil {
		writeError(w, r, http.StatusBadRequest, "at least one of value, description or tags is required")
		return
	}

	version, err := a.secrets.Update(r.Context(), ident, id, secrets.UpdateInput{
		Value:       req.Value,
		Description: req.Description,
		Tags:        req.Tags,
	})
	if err != nil {
		handleSecretsError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updateSecretResponse{NewVersion: version})
}

func (a *API) deleteSecret(w http.ResponseWriter, r *http.Request, id string) {
	ident, ok := callerIdentity(w, r)
	if !ok {
		return
	}
	if err := a.secrets.Delete(r.Context(), ident, id); err != nil {
		handleSecretsError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) listSecretVersions(w http.ResponseWriter, r *http.Request, id string) {
	ident, ok := callerIdentity(w, r)
	if !ok {
		return
	}
	items, err := a.secrets.ListVersions(r.Context(), ident, id)
	if err != nil {
		handleSecretsError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listVersionsResponse{Items: items})
}

func (a *API) rotateSecret(w http.ResponseWriter, r *http.Request, id string) {
	ident, ok := callerIdentity(w, r)
	if !ok {
		return
	}
	value, err := a.rotator.Rotate(r.Context(), ident, id)
	if err != nil {
		handleSecretsError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rotateSecretResponse{NewValue: value})
}

// --- helpers ---

func callerIdentity(w http.ResponseWriter, r *http.Request) (identity.Identity, bool) {
	ident, ok := identity.FromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return identity.Identity{}, false
	}
	return ident, true
}

func parseBool(raw string) (bool, error) {
	if strings.TrimSpace(raw) == "" {
		return false, nil
	}
	return strconv.ParseBool(raw)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func handleSecretsError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, secrets.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, secrets.ErrForbidden):
		writeError(w, r, http.StatusForbidden, err.Error())
	case errors.Is(err, secrets.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "secret not found")
	case errors.Is(err, crypto.ErrIntegrity):
		// Tampering or key mismatch; must stay distinguishable, never a silent empty value.
		writeError(w, r, http.StatusInternalServerError, "secret integrity check failed")
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}
