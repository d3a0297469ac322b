package remote

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/emmsync/internal/catalog"
	"github.com/roach88/emmsync/internal/doc"
	"github.com/roach88/emmsync/internal/emm"
	"github.com/roach88/emmsync/internal/schema"
)

// fakeAPI serves an in-memory enterprise.
type fakeAPI struct {
	mu       sync.Mutex
	policies map[string]string
	order    []string
	pageSize []string
	failList bool
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	const prefix = "/v1/enterprises/LC01/"
	if !strings.HasPrefix(r.URL.Path, prefix) {
		http.NotFound(w, r)
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, prefix)

	switch {
	case rest == "policies" && r.Method == http.MethodGet:
		if f.failList {
			w.WriteHeader(http.StatusForbidden)
			io.WriteString(w, `{"error": {"code": 403, "message": "Caller lacks permission", "status": "PERMISSION_DENIED"}}`)
			return
		}
		f.pageSize = append(f.pageSize, r.URL.Query().Get("pageSize"))
		// Two policies per page regardless of the requested size.
		start := 0
		if tok := r.URL.Query().Get("pageToken"); tok != "" {
			for i, n := range f.order {
				if n == tok {
					start = i
				}
			}
		}
		end := min(start+2, len(f.order))
		var items []json.RawMessage
		for _, n := range f.order[start:end] {
			items = append(items, json.RawMessage(f.policies[n]))
		}
		resp := map[string]any{"policies": items}
		if end < len(f.order) {
			resp["nextPageToken"] = f.order[end]
		}
		json.NewEncoder(w).Encode(resp)

	case strings.HasPrefix(rest, "policies/"):
		name := strings.TrimPrefix(rest, "policies/")
		switch r.Method {
		case http.MethodGet:
			body, ok := f.policies[name]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				io.WriteString(w, `{"error": {"code": 404, "message": "Not found", "status": "NOT_FOUND"}}`)
				return
			}
			io.WriteString(w, body)
		case http.MethodPatch:
			var m map[string]any
			if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				io.WriteString(w, `{"error": {"code": 400, "message": "Invalid JSON payload"}}`)
				return
			}
			if _, ok := m["invalidField"]; ok {
				w.WriteHeader(http.StatusBadRequest)
				io.WriteString(w, `{"error": {"code": 400, "message": "Invalid JSON payload received. Unknown name \"invalidField\""}}`)
				return
			}
			// int64 fields travel as JSON strings.
			if v, ok := m["maximumTimeToLock"].(float64); ok {
				m["maximumTimeToLock"] = strconv.FormatInt(int64(v), 10)
			}
			m["name"] = "enterprises/LC01/policies/" + name
			m["version"] = "7"
			data, _ := json.Marshal(m)
			if _, ok := f.policies[name]; !ok {
				f.order = append(f.order, name)
			}
			f.policies[name] = string(data)
			w.Write(data)
		case http.MethodDelete:
			if _, ok := f.policies[name]; !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			delete(f.policies, name)
			io.WriteString(w, "{}")
		}

	case rest == "applications/com.example.mail":
		io.WriteString(w, `{"name": "enterprises/LC01/applications/com.example.mail", "title": "Mail",
			"managedProperties": [{"key": "port", "type": "INTEGER", "defaultValue": 143}],
			"appTracks": [{"trackId": "beta", "trackAlias": "Beta"}]}`)

	case rest == "applications/com.broken":
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, "upstream exploded")

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newTestClient(t *testing.T, api *fakeAPI) *Client {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	return New(srv.Client(), "LC01", WithBaseURL(srv.URL+"/v1"))
}

func seed(names ...string) *fakeAPI {
	api := &fakeAPI{policies: map[string]string{}}
	for _, n := range names {
		api.order = append(api.order, n)
		api.policies[n] = `{"name": "enterprises/LC01/policies/` + n + `", "version": "1", "addUserDisabled": true}`
	}
	return api
}

func TestListPaginates(t *testing.T) {
	api := seed("a", "b", "c", "d", "e")
	c := newTestClient(t, api)

	var names []string
	for rec, err := range c.List(context.Background()) {
		require.NoError(t, err)
		names = append(names, rec.Name)
		assert.Equal(t, doc.Object{"addUserDisabled": doc.Bool(true)}, rec.Document)
	}
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, names)
	assert.Equal(t, []string{"100", "100", "100"}, api.pageSize)
}

func TestListStopsEarly(t *testing.T) {
	api := seed("a", "b", "c", "d", "e")
	c := newTestClient(t, api)

	for range c.List(context.Background()) {
		break
	}
	assert.Len(t, api.pageSize, 1)
}

func TestListError(t *testing.T) {
	api := seed("a")
	api.failList = true
	c := newTestClient(t, api)

	var errs []error
	for _, err := range c.List(context.Background()) {
		errs = append(errs, err)
	}
	require.Len(t, errs, 1)
	var apiErr *APIError
	require.ErrorAs(t, errs[0], &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.Status)
	assert.Equal(t, "Caller lacks permission", apiErr.Message)
	assert.True(t, IsAPIError(errs[0]))
}

func TestGetPatchDelete(t *testing.T) {
	api := seed("a")
	c := newTestClient(t, api)
	ctx := context.Background()

	got, err := c.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, doc.Object{"addUserDisabled": doc.Bool(true)}, got)

	_, err = c.Get(ctx, "missing")
	assert.ErrorIs(t, err, emm.ErrNotFound)

	patched, err := c.Patch(ctx, "S-1-5-21-1", doc.Object{"locationMode": doc.String("LOCATION_DISABLED")})
	require.NoError(t, err)
	assert.Equal(t, doc.Object{"locationMode": doc.String("LOCATION_DISABLED")}, patched)

	_, err = c.Patch(ctx, "S-1-5-21-1", doc.Object{"invalidField": doc.Bool(true)})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, `Invalid JSON payload received. Unknown name "invalidField"`, apiErr.Message)

	require.NoError(t, c.Delete(ctx, "a"))
	assert.ErrorIs(t, c.Delete(ctx, "a"), emm.ErrNotFound)

	_, err = c.Get(ctx, "a/b")
	assert.Error(t, err)
}

func TestStringEncodedIntegersCompareEqual(t *testing.T) {
	api := seed()
	api.order = append(api.order, "S-1-5-21-1-1001")
	api.policies["S-1-5-21-1-1001"] = `{"name": "enterprises/LC01/policies/S-1-5-21-1-1001", "version": "2", "maximumTimeToLock": "60000"}`
	c := newTestClient(t, api)
	ctx := context.Background()

	root, err := catalog.Policy(catalog.Options{})
	require.NoError(t, err)
	desired := doc.Object{"maximumTimeToLock": doc.Int(60000)}

	got, err := c.Get(ctx, "S-1-5-21-1-1001")
	require.NoError(t, err)
	assert.Equal(t, doc.Object{"maximumTimeToLock": doc.String("60000")}, got)

	eq, err := root.Equal(got, desired)
	require.NoError(t, err)
	assert.True(t, eq)

	expanded, err := root.Expand(got, schema.NoLookup)
	require.NoError(t, err)
	assert.Equal(t, doc.Int(60000), expanded.(doc.Object)["maximumTimeToLock"])

	patched, err := c.Patch(ctx, "S-1-5-21-1-1002", doc.Object{"maximumTimeToLock": doc.Int(30000)})
	require.NoError(t, err)
	assert.Equal(t, doc.Object{"maximumTimeToLock": doc.String("30000")}, patched)
	eq, err = root.Equal(patched, doc.Object{"maximumTimeToLock": doc.Int(30000)})
	require.NoError(t, err)
	assert.True(t, eq)
}

func TestApplication(t *testing.T) {
	c := newTestClient(t, seed())
	ctx := context.Background()

	app, err := c.Application(ctx, "com.example.mail")
	require.NoError(t, err)
	assert.Equal(t, "Mail", app.Title)
	require.Len(t, app.ManagedProperties, 1)
	assert.Equal(t, float64(143), app.ManagedProperties[0].DefaultValue)
	assert.Equal(t, []emm.AppTrackInfo{{TrackID: "beta", TrackAlias: "Beta"}}, app.AppTracks)

	_, err = c.Application(ctx, "com.unknown")
	assert.ErrorIs(t, err, emm.ErrNotFound)

	_, err = c.Application(ctx, "com.broken")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "upstream exploded", apiErr.Message)
}

func TestJWTConfig(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	pemKey := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})

	dir := t.TempDir()
	path := filepath.Join(dir, "sa.json")
	data, err := json.Marshal(map[string]string{
		"type":           "service_account",
		"client_email":   "emmsync@example.iam.gserviceaccount.com",
		"private_key":    string(pemKey),
		"private_key_id": "k1",
	})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	cfg, err := JWTConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "emmsync@example.iam.gserviceaccount.com", cfg.Email)
	assert.Equal(t, []string{Scope}, cfg.Scopes)
	assert.Equal(t, defaultTokenURL, cfg.TokenURL)

	bad := filepath.Join(dir, "user.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"type": "authorized_user"}`), 0o600))
	_, err = JWTConfig(bad)
	assert.ErrorContains(t, err, "is not service_account")
}
