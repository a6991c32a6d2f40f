package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/chhayank-20/Mosquitto-Manager/pkg/broker"
	"github.com/chhayank-20/Mosquitto-Manager/pkg/events"
	"github.com/chhayank-20/Mosquitto-Manager/pkg/reconciler"
	"github.com/chhayank-20/Mosquitto-Manager/pkg/security"
	"github.com/chhayank-20/Mosquitto-Manager/pkg/storage"
	"github.com/chhayank-20/Mosquitto-Manager/pkg/types"
)

type fakePipeline struct {
	mu     sync.Mutex
	err    error
	runs   int
	bundle *security.Bundle
}

func (f *fakePipeline) RunApply(context.Context) (*reconciler.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs++
	if f.err != nil {
		return &reconciler.Result{Trigger: reconciler.TriggerApply, Message: "restart-broker failed"}, f.err
	}
	return &reconciler.Result{Trigger: reconciler.TriggerApply, Success: true, Message: "Configuration applied. Mosquitto is restarting..."}, nil
}

func (f *fakePipeline) GenerateCertificateBundle(context.Context) (*security.Bundle, error) {
	if f.bundle == nil {
		return nil, errors.New("openssl not found")
	}
	return f.bundle, nil
}

type fakeReloader struct{ err error }

func (f fakeReloader) Reload() error { return f.err }

type fakeSessions []types.ClientSession

func (f fakeSessions) Sessions() []types.ClientSession { return f }

type fakeStats types.BrokerStats

func (f fakeStats) Snapshot() types.BrokerStats { return types.BrokerStats(f) }

type testEnv struct {
	server   *Server
	store    *storage.BoltStore
	pipeline *fakePipeline
	events   *events.Broker
	staging  string
}

func newTestEnv(t *testing.T, mutate func(o *Options)) *testEnv {
	t.Helper()
	staging := t.TempDir()
	store, err := storage.NewBoltStore(filepath.Join(staging, "data"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	eb := events.NewBroker()
	eb.Start()
	t.Cleanup(eb.Stop)

	pipeline := &fakePipeline{}
	opts := Options{
		Store:      store,
		Pipeline:   pipeline,
		Broker:     fakeReloader{},
		Sessions:   fakeSessions{{ID: "dev-123", IP: "10.0.0.5", Username: "alice"}},
		Stats:      fakeStats{Uptime: 42},
		Events:     eb,
		LogFile:    filepath.Join(staging, "mosquitto.log"),
		LogLines:   3,
		StagingDir: staging,
		Version:    "test",
	}
	if mutate != nil {
		mutate(&opts)
	}
	return &testEnv{
		server:   NewServer(opts),
		store:    store,
		pipeline: pipeline,
		events:   eb,
		staging:  staging,
	}
}

func (e *testEnv) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(w.Body).Decode(v))
}

func TestGetState(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, httptest.NewRequest(http.MethodGet, "/api/state", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var doc types.Document
	decode(t, w, &doc)
	require.Len(t, doc.Listeners, 1)
	assert.Equal(t, "default-1883", doc.Listeners[0].ID)

	modified, err := http.ParseTime(w.Header().Get("Last-Modified"))
	require.NoError(t, err, "the default document is persisted on first load")
	assert.WithinDuration(t, time.Now(), modified, time.Minute)
}

func TestPostState(t *testing.T) {
	env := newTestEnv(t, nil)
	require.NoError(t, env.store.SaveDocument(func() *types.Document {
		d := types.DefaultDocument()
		d.Administrators = []types.Administrator{{Username: "admin", PasswordHash: "hash", Role: types.RoleAdmin}}
		return d
	}()))

	doc := types.DefaultDocument()
	doc.Administrators = nil
	doc.Users = []types.User{{Username: "alice", Password: "pw", Enabled: true}}
	body, err := json.Marshal(doc)
	require.NoError(t, err)
	// Strip the administrators key entirely, as the dashboard does
	body = bytes.Replace(body, []byte(`,"dashboard_users":null`), nil, 1)

	w := env.do(t, httptest.NewRequest(http.MethodPost, "/api/state", bytes.NewReader(body)))
	require.Equal(t, http.StatusOK, w.Code)
	var resp Response
	decode(t, w, &resp)
	assert.True(t, resp.Success)

	stored, err := env.store.LoadDocument()
	require.NoError(t, err)
	assert.Len(t, stored.Users, 1)
	require.Len(t, stored.Administrators, 1, "administrators survive a dashboard save")
	assert.Equal(t, 0, env.pipeline.runs, "saving never applies")
}

func TestPostStateKeepsAdministratorsWhenEmpty(t *testing.T) {
	env := newTestEnv(t, func(o *Options) { o.Auth = true })

	hash, err := security.HashAdminPassword("secret")
	require.NoError(t, err)
	current := types.DefaultDocument()
	current.Administrators = []types.Administrator{{Username: "admin", PasswordHash: hash, Role: types.RoleAdmin}}
	require.NoError(t, env.store.SaveDocument(current))

	body, err := json.Marshal(types.DefaultDocument())
	require.NoError(t, err)
	require.Contains(t, string(body), `"dashboard_users":[]`)

	req := httptest.NewRequest(http.MethodPost, "/api/state", bytes.NewReader(body))
	req.SetBasicAuth("admin", "secret")
	w := env.do(t, req)
	require.Equal(t, http.StatusOK, w.Code)

	stored, err := env.store.LoadDocument()
	require.NoError(t, err)
	require.Len(t, stored.Administrators, 1)
	assert.Equal(t, "admin", stored.Administrators[0].Username)

	req = httptest.NewRequest(http.MethodPost, "/api/apply", nil)
	req.SetBasicAuth("admin", "secret")
	assert.Equal(t, http.StatusOK, env.do(t, req).Code, "still able to log in")
}

func TestPostStateRejectsMalformed(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, httptest.NewRequest(http.MethodPost, "/api/state", strings.NewReader(`{"global_settings":{}}`)))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, httptest.NewRequest(http.MethodPost, "/api/state", strings.NewReader(`not json`)))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var resp Response
	decode(t, w, &resp)
	assert.False(t, resp.Success)
	assert.NotEmpty(t, resp.Error)

	stored, err := env.store.LoadDocument()
	require.NoError(t, err)
	assert.Equal(t, "default-1883", stored.Listeners[0].ID)
}

func TestApply(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, httptest.NewRequest(http.MethodPost, "/api/apply", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var resp Response
	decode(t, w, &resp)
	assert.True(t, resp.Success)
	assert.Contains(t, resp.Message, "restarting")

	env.pipeline.err = fmt.Errorf("restart-broker: %w", broker.ErrNotRunning)
	w = env.do(t, httptest.NewRequest(http.MethodPost, "/api/apply", nil))
	assert.Equal(t, http.StatusConflict, w.Code)
	decode(t, w, &resp)
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "not running")
}

func TestApplyMethodNotAllowed(t *testing.T) {
	env := newTestEnv(t, nil)
	w := env.do(t, httptest.NewRequest(http.MethodGet, "/api/apply", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestReload(t *testing.T) {
	env := newTestEnv(t, nil)
	w := env.do(t, httptest.NewRequest(http.MethodPost, "/api/reload", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	env = newTestEnv(t, func(o *Options) { o.Broker = fakeReloader{err: broker.ErrNotRunning} })
	w = env.do(t, httptest.NewRequest(http.MethodPost, "/api/reload", nil))
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestLogs(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, httptest.NewRequest(http.MethodGet, "/api/logs", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var empty map[string][]string
	decode(t, w, &empty)
	assert.Equal(t, []string{}, empty["logs"])

	require.NoError(t, os.WriteFile(filepath.Join(env.staging, "mosquitto.log"), []byte("a\nb\nc\nd\ne\n"), 0644))
	w = env.do(t, httptest.NewRequest(http.MethodGet, "/api/logs", nil))
	var got map[string][]string
	decode(t, w, &got)
	assert.Equal(t, []string{"c", "d", "e"}, got["logs"])
}

func TestClientsAndStats(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, httptest.NewRequest(http.MethodGet, "/api/clients", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var sessions []types.ClientSession
	decode(t, w, &sessions)
	require.Len(t, sessions, 1)
	assert.Equal(t, "alice", sessions[0].Username)

	w = env.do(t, httptest.NewRequest(http.MethodGet, "/api/stats", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var raw map[string]float64
	decode(t, w, &raw)
	assert.Equal(t, 42.0, raw["uptime"])
	assert.Contains(t, raw, "clientsTotal")
}

func TestGenerateCerts(t *testing.T) {
	env := newTestEnv(t, nil)
	w := env.do(t, httptest.NewRequest(http.MethodPost, "/api/certs/generate", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	env.pipeline.bundle = &security.Bundle{CAPath: "/c/ca.crt", CertPath: "/c/server.crt", KeyPath: "/c/server.key"}
	w = env.do(t, httptest.NewRequest(http.MethodPost, "/api/certs/generate", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Success bool              `json:"success"`
		Paths   map[string]string `json:"paths"`
	}
	decode(t, w, &resp)
	assert.True(t, resp.Success)
	assert.Equal(t, "/c/ca.crt", resp.Paths["ca"])
	assert.Equal(t, "/c/server.crt", resp.Paths["serverCert"])
	assert.Equal(t, "/c/server.key", resp.Paths["serverKey"])
}

func multipartRequest(t *testing.T, target, filename string, content []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, target, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestCertUploadAndDownload(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, multipartRequest(t, "/api/certs/upload", "../../ca.crt", []byte("PEM")))
	require.Equal(t, http.StatusOK, w.Code)
	var resp Response
	decode(t, w, &resp)
	assert.Equal(t, filepath.Join(env.staging, "certs", "ca.crt"), resp.Path)

	w = env.do(t, httptest.NewRequest(http.MethodGet, "/api/certs/download?path="+resp.Path, nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "PEM", w.Body.String())

	w = env.do(t, httptest.NewRequest(http.MethodGet, "/api/certs/download?path=/etc/passwd", nil))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.do(t, httptest.NewRequest(http.MethodGet, "/api/certs/download?path="+env.staging+"/../x", nil))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.do(t, httptest.NewRequest(http.MethodGet, "/api/certs/download?path="+env.staging+"/certs/none.crt", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, httptest.NewRequest(http.MethodGet, "/api/certs/download", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBackupRoundTrip(t *testing.T) {
	env := newTestEnv(t, nil)
	doc := types.DefaultDocument()
	doc.Users = []types.User{{Username: "alice", Password: "pw", Enabled: true}}
	doc.Administrators = []types.Administrator{{Username: "admin", PasswordHash: "hash", Role: types.RoleAdmin}}
	require.NoError(t, env.store.SaveDocument(doc))

	w := env.do(t, httptest.NewRequest(http.MethodGet, "/api/backup/export", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "mosquitto-manager-config.json")
	exported := w.Body.Bytes()

	require.NoError(t, env.store.SaveDocument(types.DefaultDocument()))

	w = env.do(t, multipartRequest(t, "/api/backup/import", "backup.json", exported))
	require.Equal(t, http.StatusOK, w.Code)
	var resp Response
	decode(t, w, &resp)
	assert.True(t, resp.Success)
	assert.Equal(t, 0, env.pipeline.runs, "import is not applied")

	stored, err := env.store.LoadDocument()
	require.NoError(t, err)
	assert.Equal(t, doc, stored)
}

func TestBackupImportRejectsMissingListeners(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, multipartRequest(t, "/api/backup/import", "backup.json", []byte(`{"users":[]}`)))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, multipartRequest(t, "/api/backup/import", "backup.json", []byte(`{`)))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, httptest.NewRequest(http.MethodPost, "/api/backup/import", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestImportConf(t *testing.T) {
	env := newTestEnv(t, nil)
	conf := "persistence false\nlistener 8883\ncafile /c/ca.crt\ncertfile /c/s.crt\nkeyfile /c/s.key\nrequire_certificate true\n"

	w := env.do(t, httptest.NewRequest(http.MethodPost, "/api/import/conf", strings.NewReader(conf)))
	require.Equal(t, http.StatusOK, w.Code)

	stored, err := env.store.LoadDocument()
	require.NoError(t, err)
	assert.False(t, stored.GlobalSettings.Persistence)

	var tls *types.Listener
	for i := range stored.Listeners {
		if stored.Listeners[i].Port == 8883 {
			tls = &stored.Listeners[i]
		}
	}
	require.NotNil(t, tls)
	assert.Equal(t, types.ProtocolMQTTS, tls.Protocol)
	assert.True(t, tls.RequireCertificate)
}

func TestHealthEndpoints(t *testing.T) {
	env := newTestEnv(t, nil)

	for _, path := range []string{"/health", "/ready", "/metrics", "/api/version"} {
		w := env.do(t, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Contains(t, []int{http.StatusOK, http.StatusServiceUnavailable}, w.Code, path)
	}

	w := env.do(t, httptest.NewRequest(http.MethodGet, "/api/version", nil))
	var v VersionResponse
	decode(t, w, &v)
	assert.Equal(t, "test", v.Version)
}

func TestAuthentication(t *testing.T) {
	env := newTestEnv(t, func(o *Options) { o.Auth = true })

	adminHash, err := security.HashAdminPassword("secret")
	require.NoError(t, err)
	viewerHash, err := security.HashAdminPassword("look")
	require.NoError(t, err)
	doc := types.DefaultDocument()
	doc.Administrators = []types.Administrator{
		{Username: "admin", PasswordHash: adminHash, Role: types.RoleAdmin},
		{Username: "watcher", PasswordHash: viewerHash, Role: types.RoleViewer},
	}
	require.NoError(t, env.store.SaveDocument(doc))

	tests := []struct {
		name     string
		method   string
		path     string
		user     string
		password string
		want     int
	}{
		{"no credentials", http.MethodGet, "/api/state", "", "", http.StatusUnauthorized},
		{"wrong password", http.MethodGet, "/api/state", "admin", "nope", http.StatusUnauthorized},
		{"unknown user", http.MethodGet, "/api/state", "ghost", "secret", http.StatusUnauthorized},
		{"admin read", http.MethodGet, "/api/state", "admin", "secret", http.StatusOK},
		{"admin write", http.MethodPost, "/api/apply", "admin", "secret", http.StatusOK},
		{"viewer read", http.MethodGet, "/api/clients", "watcher", "look", http.StatusOK},
		{"viewer write", http.MethodPost, "/api/apply", "watcher", "look", http.StatusForbidden},
		{"health is open", http.MethodGet, "/health", "", "", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.user != "" {
				req.SetBasicAuth(tt.user, tt.password)
			}
			w := env.do(t, req)
			if tt.path == "/health" {
				assert.NotEqual(t, http.StatusUnauthorized, w.Code)
				return
			}
			assert.Equal(t, tt.want, w.Code)
			if tt.want == http.StatusUnauthorized {
				assert.Equal(t, authRealm, w.Header().Get("WWW-Authenticate"))
			}
		})
	}
}

func TestPushChannel(t *testing.T) {
	env := newTestEnv(t, nil)
	env.events.Publish(&events.Event{Type: events.EventStats, Payload: types.BrokerStats{Uptime: 7}})

	srv := httptest.NewServer(env.server.Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	readEvent := func() map[string]interface{} {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		var ev map[string]interface{}
		require.NoError(t, conn.ReadJSON(&ev))
		return ev
	}

	first := readEvent()
	assert.Equal(t, "stats", first["type"])
	second := readEvent()
	assert.Equal(t, "clients", second["type"])

	require.Eventually(t, func() bool { return env.events.SubscriberCount() == 1 }, 5*time.Second, 10*time.Millisecond)
	env.events.Publish(&events.Event{Type: events.EventLogs, Payload: "1700000000: mosquitto version 2.0.18 running"})

	live := readEvent()
	assert.Equal(t, "logs", live["type"])
	assert.Contains(t, live["payload"], "running")
}

func TestFailedLoginsAreThrottled(t *testing.T) {
	env := newTestEnv(t, func(o *Options) { o.Auth = true })

	hash, err := security.HashAdminPassword("secret")
	require.NoError(t, err)
	doc := types.DefaultDocument()
	doc.Administrators = []types.Administrator{{Username: "admin", PasswordHash: hash, Role: types.RoleAdmin}}
	require.NoError(t, env.store.SaveDocument(doc))
	env.server.logins = newLoginLimiter(rate.Limit(0.0001), 2)

	login := func(password string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/state", nil)
		req.SetBasicAuth("admin", password)
		return env.do(t, req).Code
	}

	assert.Equal(t, http.StatusUnauthorized, login("nope"))
	assert.Equal(t, http.StatusUnauthorized, login("nope"))
	assert.Equal(t, http.StatusTooManyRequests, login("secret"), "budget exhausted for this client")

	other := httptest.NewRequest(http.MethodGet, "/api/state", nil)
	other.RemoteAddr = "198.51.100.7:4000"
	other.SetBasicAuth("admin", "secret")
	assert.Equal(t, http.StatusOK, env.do(t, other).Code)
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "[2001:db8::1]:5000"
	assert.Equal(t, "2001:db8::1", clientIP(req))

	req.RemoteAddr = "pipe"
	assert.Equal(t, "pipe", clientIP(req))
}

func TestRequestedTypes(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/ws?types=clients,%20stats&types=logs", nil)
	got := requestedTypes(r)
	assert.Equal(t, []events.EventType{events.EventClients, events.EventStats, events.EventLogs}, got)

	assert.Empty(t, requestedTypes(httptest.NewRequest(http.MethodGet, "/ws", nil)))
	assert.True(t, wants(nil, events.EventApplied))
	assert.False(t, wants(got, events.EventApplied))
}
