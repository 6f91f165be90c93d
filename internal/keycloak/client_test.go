package keycloak

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeKeycloak serves the slice of the admin REST API the client touches.
type fakeKeycloak struct {
	mu      sync.Mutex
	clients map[string]map[string]any // internal id -> representation
	users   []map[string]any
	nextID  int
}

func newFakeKeycloak() *fakeKeycloak {
	return &fakeKeycloak{clients: map[string]map[string]any{}}
}

func (f *fakeKeycloak) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /realms/master/protocol/openid-connect/token", func(w http.ResponseWriter, r *http.Request) {
		if r.FormValue("username") != "admin" || r.FormValue("password") != "admin" {
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"error":"invalid_grant"}`)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"admin-token","token_type":"Bearer","expires_in":60}`)
	})

	mux.HandleFunc("GET /admin/realms/student-mgmt/users", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		matched := []map[string]any{}
		for _, u := range f.users {
			if u["username"] == r.URL.Query().Get("username") {
				matched = append(matched, u)
			}
		}
		writeJSON(w, matched)
	})

	mux.HandleFunc("GET /admin/realms/student-mgmt/clients", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		matched := []map[string]any{}
		for _, c := range f.clients {
			if c["clientId"] == r.URL.Query().Get("clientId") {
				matched = append(matched, c)
			}
		}
		writeJSON(w, matched)
	})

	mux.HandleFunc("POST /admin/realms/student-mgmt/clients", func(w http.ResponseWriter, r *http.Request) {
		var rep map[string]any
		if err := json.NewDecoder(r.Body).Decode(&rep); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		f.nextID++
		id := fmt.Sprintf("internal-%d", f.nextID)
		rep["id"] = id
		f.clients[id] = rep
		f.mu.Unlock()
		w.Header().Set("Location", r.URL.Path+"/"+id)
		w.WriteHeader(http.StatusCreated)
	})

	mux.HandleFunc("PUT /admin/realms/student-mgmt/clients/", func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/admin/realms/student-mgmt/clients/")
		var rep map[string]any
		if err := json.NewDecoder(r.Body).Decode(&rep); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		if _, ok := f.clients[id]; !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		rep["id"] = id
		f.clients[id] = rep
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("DELETE /admin/realms/student-mgmt/clients/", func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/admin/realms/student-mgmt/clients/")
		f.mu.Lock()
		defer f.mu.Unlock()
		if _, ok := f.clients[id]; !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		delete(f.clients, id)
		w.WriteHeader(http.StatusNoContent)
	})

	return mux
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func newTestClient(t *testing.T) (*Client, *fakeKeycloak) {
	t.Helper()
	fake := newFakeKeycloak()
	server := httptest.NewServer(fake.handler())
	t.Cleanup(server.Close)
	return New(Config{
		BaseURL:       server.URL,
		Realm:         "student-mgmt",
		AdminUser:     "admin",
		AdminPassword: "admin",
	}), fake
}

func TestAdminToken(t *testing.T) {
	client, _ := newTestClient(t)
	token, err := client.AdminToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "admin-token", token)
}

func TestAdminTokenBadCredentials(t *testing.T) {
	fake := newFakeKeycloak()
	server := httptest.NewServer(fake.handler())
	t.Cleanup(server.Close)
	client := New(Config{
		BaseURL:       server.URL,
		Realm:         "student-mgmt",
		AdminUser:     "admin",
		AdminPassword: "wrong",
	})
	_, err := client.AdminToken(context.Background())
	require.Error(t, err)
}

func TestUserIDFindsExactMatch(t *testing.T) {
	client, fake := newTestClient(t)
	fake.users = []map[string]any{
		{"id": "kc-user-1", "username": "student-user"},
	}
	id, err := client.UserID(context.Background(), "admin-token", "student-user")
	require.NoError(t, err)
	assert.Equal(t, "kc-user-1", id)
}

func TestUserIDNotFound(t *testing.T) {
	client, _ := newTestClient(t)
	_, err := client.UserID(context.Background(), "admin-token", "missing-user")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing-user")
}

func TestUpsertClientCreatesThenUpdates(t *testing.T) {
	client, fake := newTestClient(t)
	ctx := context.Background()

	spec := ClientSpec{
		ClientID:     "student-mgmt-pr-42",
		RedirectURIs: []string{"https://pr-42.student-mgmt.local:8443/*"},
		WebOrigins:   []string{"https://pr-42.student-mgmt.local:8443"},
		Description:  "Ephemeral client for PR #42",
	}
	require.NoError(t, client.UpsertClient(ctx, "admin-token", spec))
	assert.Len(t, fake.clients, 1)

	exists, err := client.ClientExists(ctx, "admin-token", spec.ClientID)
	require.NoError(t, err)
	assert.True(t, exists)

	// Second upsert with changed URIs must update, not duplicate.
	spec.RedirectURIs = []string{"https://pr-42.student-mgmt.local:8443/callback"}
	require.NoError(t, client.UpsertClient(ctx, "admin-token", spec))
	assert.Len(t, fake.clients, 1)
	for _, rep := range fake.clients {
		uris, ok := rep["redirectUris"].([]any)
		require.True(t, ok)
		assert.Equal(t, "https://pr-42.student-mgmt.local:8443/callback", uris[0])
	}
}

func TestDeleteClientRemovesRegistration(t *testing.T) {
	client, fake := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.UpsertClient(ctx, "admin-token", ClientSpec{ClientID: "student-mgmt-pr-7"}))
	require.Len(t, fake.clients, 1)

	require.NoError(t, client.DeleteClient(ctx, "admin-token", "student-mgmt-pr-7"))
	assert.Empty(t, fake.clients)

	exists, err := client.ClientExists(ctx, "admin-token", "student-mgmt-pr-7")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestDeleteClientToleratesAbsent(t *testing.T) {
	client, _ := newTestClient(t)
	require.NoError(t, client.DeleteClient(context.Background(), "admin-token", "never-existed"))
}
