package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"sekret.org/internal/identity"
	"sekret.org/internal/secrets"
)

var (
	testAdmin = identity.Identity{UserID: "u-admin", Email: "admin@example.com", Role: identity.RoleAdmin}
	testDev   = identity.Identity{UserID: "u-dev", Email: "dev@example.com", Role: identity.RoleDeveloper}
	testUser  = identity.Identity{UserID: "u-ro", Email: "ro@example.com", Role: identity.RoleUser}
)

func doJSON(t *testing.T, a *API, method, path, bearer, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", bearer)
	}
	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, req)
	return rec
}

func TestSecretsRequireAuth(t *testing.T) {
	a, _ := newTestAPI(t)

	rec := doJSON(t, a, http.MethodGet, "/v1/secrets", "", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token: status = %d", rec.Code)
	}

	rec = doJSON(t, a, http.MethodGet, "/v1/secrets", "Bearer not-a-token", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("garbage token: status = %d", rec.Code)
	}
	if rec.Header().Get("WWW-Authenticate") == "" {
		t.Fatalf("missing WWW-Authenticate header")
	}
}

func TestCreateForbiddenForUserRole(t *testing.T) {
	a, verifier := newTestAPI(t)
	rec := doJSON(t, a, http.MethodPost, "/v1/secrets", bearerFor(t, verifier, testUser),
		`{"name":"db-pass","value":"p@ss1"}`)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestCreateValidation(t *testing.T) {
	a, verifier := newTestAPI(t)
	bearer := bearerFor(t, verifier, testDev)

	rec := doJSON(t, a, http.MethodPost, "/v1/secrets", bearer, `{"value":"v"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing name: status = %d", rec.Code)
	}

	rec = doJSON(t, a, http.MethodPost, "/v1/secrets", bearer, `{"name":"x","value":"v","bogus":true}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown field: status = %d", rec.Code)
	}

	rec = doJSON(t, a, http.MethodPost, "/v1/secrets", bearer, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("empty body: status = %d", rec.Code)
	}
}

func TestSecretLifecycleOverHTTP(t *testing.T) {
	a, verifier := newTestAPI(t)
	bearer := bearerFor(t, verifier, testDev)

	// Create.
	rec := doJSON(t, a, http.MethodPost, "/v1/secrets", bearer,
		`{"name":"db-pass","type":"password","value":"p@ss1","description":"prod db","tags":["db","prod"]}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var created secrets.Secret
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatalf("decode created: %v", err)
	}
	if created.ID == "" || created.Version != 1 {
		t.Fatalf("unexpected created secret: %+v", created)
	}
	if loc := rec.Header().Get("Location"); loc != "/v1/secrets/"+created.ID {
		t.Fatalf("Location = %q", loc)
	}

	// Masked by default.
	rec = doJSON(t, a, http.MethodGet, "/v1/secrets/"+created.ID, bearer, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get: status = %d", rec.Code)
	}
	var got secrets.Secret
	_ = json.NewDecoder(rec.Body).Decode(&got)
	if got.Value != secrets.MaskedValue {
		t.Fatalf("default get returned %q, want masked placeholder", got.Value)
	}

	// Revealed on request.
	rec = doJSON(t, a, http.MethodGet, "/v1/secrets/"+created.ID+"?show_value=true", bearer, "")
	_ = json.NewDecoder(rec.Body).Decode(&got)
	if got.Value != "p@ss1" {
		t.Fatalf("revealed get returned %q", got.Value)
	}

	// Update bumps the version.
	rec = doJSON(t, a, http.MethodPut, "/v1/secrets/"+created.ID, bearer, `{"value":"p@ss2"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("update: status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var upd updateSecretResponse
	_ = json.NewDecoder(rec.Body).Decode(&upd)
	if upd.NewVersion != 2 {
		t.Fatalf("new_version = %d, want 2", upd.NewVersion)
	}

	// The archive holds the pre-update version.
	rec = doJSON(t, a, http.MethodGet, "/v1/secrets/"+created.ID+"/versions", bearer, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("versions: status = %d", rec.Code)
	}
	var versions listVersionsResponse
	_ = json.NewDecoder(rec.Body).Decode(&versions)
	if len(versions.Items) != 1 || versions.Items[0].Version != 1 {
		t.Fatalf("unexpected versions: %+v", versions.Items)
	}

	// Rotate replaces the value with a generated one.
	rec = doJSON(t, a, http.MethodPost, "/v1/secrets/"+created.ID+"/rotate", bearer, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("rotate: status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var rot rotateSecretResponse
	_ = json.NewDecoder(rec.Body).Decode(&rot)
	if len(rot.NewValue) != 20 || rot.NewValue == "p@ss2" {
		t.Fatalf("rotate returned %q", rot.NewValue)
	}

	// List shows the secret without any value.
	rec = doJSON(t, a, http.MethodGet, "/v1/secrets", bearer, "")
	var list listSecretsResponse
	_ = json.NewDecoder(rec.Body).Decode(&list)
	if len(list.Items) != 1 || list.Items[0].Value != "" {
		t.Fatalf("unexpected list: %+v", list.Items)
	}

	// Delete, then the secret is gone.
	rec = doJSON(t, a, http.MethodDelete, "/v1/secrets/"+created.ID, bearer, "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete: status = %d", rec.Code)
	}
	rec = doJSON(t, a, http.MethodGet, "/v1/secrets/"+created.ID, bearer, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get after delete: status = %d", rec.Code)
	}
	rec = doJSON(t, a, http.MethodDelete, "/v1/secrets/"+created.ID, bearer, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("second delete: status = %d", rec.Code)
	}
}

func TestOwnershipHiddenAcrossUsers(t *testing.T) {
	a, verifier := newTestAPI(t)
	devBearer := bearerFor(t, verifier, testDev)

	rec := doJSON(t, a, http.MethodPost, "/v1/secrets", devBearer, `{"name":"mine","value":"v"}`)
	var created secrets.Secret
	_ = json.NewDecoder(rec.Body).Decode(&created)

	other := identity.Identity{UserID: "u-other", Email: "other@example.com", Role: identity.RoleDeveloper}
	otherBearer := bearerFor(t, verifier, other)

	rec = doJSON(t, a, http.MethodGet, "/v1/secrets/"+created.ID, otherBearer, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("foreign get: status = %d, want 404 not 403", rec.Code)
	}

	adminBearer := bearerFor(t, verifier, testAdmin)
	rec = doJSON(t, a, http.MethodGet, "/v1/secrets/"+created.ID+"?show_value=true", adminBearer, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("admin get: status = %d", rec.Code)
	}
}

func TestUpdateRejectsEmptyPayload(t *testing.T) {
	a, verifier := newTestAPI(t)
	bearer := bearerFor(t, verifier, testDev)

	rec := doJSON(t, a, http.MethodPost, "/v1/secrets", bearer, `{"name":"x","value":"v"}`)
	var created secrets.Secret
	_ = json.NewDecoder(rec.Body).Decode(&created)

	rec = doJSON(t, a, http.MethodPut, "/v1/secrets/"+created.ID, bearer, `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("empty update: status = %d", rec.Code)
	}

	rec = doJSON(t, a, http.MethodPut, "/v1/secrets/"+created.ID, bearer, `{"value":""}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("empty value: status = %d", rec.Code)
	}
}

func TestShowValueMustBeBoolean(t *testing.T) {
	a, verifier := newTestAPI(t)
	bearer := bearerFor(t, verifier, testDev)

	rec := doJSON(t, a, http.MethodPost, "/v1/secrets", bearer, `{"name":"x","value":"v"}`)
	var created secrets.Secret
	_ = json.NewDecoder(rec.Body).Decode(&created)

	rec = doJSON(t, a, http.MethodGet, "/v1/secrets/"+created.ID+"?show_value=banana", bearer, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	a, verifier := newTestAPI(t)
	bearer := bearerFor(t, verifier, testDev)

	rec := doJSON(t, a, http.MethodPatch, "/v1/secrets", bearer, "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d", rec.Code)
	}
	if allow := rec.Header().Get("Allow"); !strings.Contains(allow, http.MethodPost) {
		t.Fatalf("Allow = %q", allow)
	}
}
