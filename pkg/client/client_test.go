package client

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chhayank-20/Mosquitto-Manager/pkg/types"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "admin", "secret")
}

func TestNewClientAddsScheme(t *testing.T) {
	c := NewClient("127.0.0.1:3000/", "", "")
	assert.Equal(t, "http://127.0.0.1:3000", c.baseURL)

	c = NewClient("https://manager.example.com", "", "")
	assert.Equal(t, "https://manager.example.com", c.baseURL)
}

func TestGetStateSendsCredentials(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "admin", user)
		assert.Equal(t, "secret", pass)
		assert.Equal(t, "/api/state", r.URL.Path)
		_ = json.NewEncoder(w).Encode(types.DefaultDocument())
	})

	doc, err := c.GetState(context.Background())
	require.NoError(t, err)
	require.Len(t, doc.Listeners, 1)
	assert.Equal(t, 1883, doc.Listeners[0].Port)
}

func TestApplyReturnsPartialResultOnFailure(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		w.WriteHeader(http.StatusConflict)
		_, _ = io.WriteString(w, `{"success":false,"error":"broker not running","result":{"trigger":"apply","success":false,"steps":[{"name":"render-artifacts"}]}}`)
	})

	result, err := c.Apply(context.Background())
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusConflict, apiErr.Status)
	assert.Equal(t, "broker not running", apiErr.Message)

	require.NotNil(t, result)
	assert.Equal(t, "apply", result.Trigger)
	require.Len(t, result.Steps, 1)
	assert.Equal(t, "render-artifacts", result.Steps[0].Name)
}

func TestApplySuccess(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"success":true,"message":"Configuration applied","result":{"trigger":"apply","success":true}}`)
	})

	result, err := c.Apply(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Success)
}

func TestImportConfPostsRawBody(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/import/conf", r.URL.Path)
		assert.Equal(t, "text/plain", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "listener 1883\n", string(body))

		doc := types.DefaultDocument()
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"success": true, "state": doc})
	})

	doc, err := c.ImportConf(context.Background(), []byte("listener 1883\n"))
	require.NoError(t, err)
	assert.Len(t, doc.Listeners, 1)
}

func TestExportBackup(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"listeners":[]}`)
	})

	var buf bytes.Buffer
	require.NoError(t, c.ExportBackup(context.Background(), &buf))
	assert.Equal(t, `{"listeners":[]}`, buf.String())
}

func TestPlainTextErrors(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
	})

	_, err := c.Stats(context.Background())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, "Unauthorized", apiErr.Message)

	err = c.ExportBackup(context.Background(), io.Discard)
	require.ErrorAs(t, err, &apiErr)
}

func TestGenerateCertificates(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"success":true,"paths":{"ca":"/c/ca.crt","serverCert":"/c/server.crt","serverKey":"/c/server.key"}}`)
	})

	bundle, err := c.GenerateCertificates(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "/c/ca.crt", bundle.CAPath)
	assert.Equal(t, "/c/server.key", bundle.KeyPath)
}
