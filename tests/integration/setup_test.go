//go:build integration

package integration

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"classrelay/config"
	"classrelay/internal/app"
)

// TestServerConfig configures how the test server is set up.
type TestServerConfig struct {
	// DBType is either "postgresql" or "mongodb"
	DBType string

	// CallLogEnabled enables call logging
	CallLogEnabled bool

	// MaxChunkLength bounds upload fragments (default 8)
	MaxChunkLength int
}

// TestServerFixture holds test server resources.
type TestServerFixture struct {
	// ServerURL is the base URL of the test server
	ServerURL string

	// App is the running application
	App *app.App

	// Backend is the mock script backend
	Backend *MockScriptServer

	// PgPool is the PostgreSQL connection pool (for DB assertions)
	PgPool *pgxpool.Pool

	// MongoDb is the MongoDB database (for DB assertions)
	MongoDb *mongo.Database

	// DBType is the configured database type
	DBType string

	cancelFunc context.CancelFunc
}

// SetupTestServer creates a test server with the specified configuration.
func SetupTestServer(t *testing.T, cfg TestServerConfig) *TestServerFixture {
	t.Helper()

	ctx, cancel := context.WithCancel(GetTestContext())

	backend := NewMockScriptServer()

	port, err := findAvailablePort()
	require.NoError(t, err, "failed to find available port")

	appCfg := buildAppConfig(t, cfg, backend.URL()+"/exec", port)

	application, err := app.New(ctx, app.Config{AppConfig: appCfg})
	require.NoError(t, err, "failed to create app")

	serverURL := fmt.Sprintf("http://127.0.0.1:%d", port)
	go func() {
		addr := fmt.Sprintf("127.0.0.1:%d", port)
		_ = application.Start(addr)
	}()

	err = waitForServer(serverURL + healthPath)
	require.NoError(t, err, "server failed to become healthy")

	fixture := &TestServerFixture{
		ServerURL:  serverURL,
		App:        application,
		Backend:    backend,
		DBType:     cfg.DBType,
		cancelFunc: cancel,
	}

	switch cfg.DBType {
	case "postgresql":
		fixture.PgPool = GetPostgreSQLPool()
	case "mongodb":
		fixture.MongoDb = GetMongoDatabase()
	}

	return fixture
}

// FlushAndClose flushes all pending call log entries and closes the app.
// CRITICAL: Call this before making any DB assertions.
func (f *TestServerFixture) FlushAndClose(t *testing.T) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if f.App != nil {
		err := f.App.Shutdown(ctx)
		require.NoError(t, err, "failed to shutdown app")
	}
}

// Shutdown gracefully shuts down the test server.
func (f *TestServerFixture) Shutdown(t *testing.T) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if f.App != nil {
		_ = f.App.Shutdown(ctx)
	}

	if f.Backend != nil {
		f.Backend.Close()
	}

	if f.cancelFunc != nil {
		f.cancelFunc()
	}
}

// buildAppConfig creates an application config for testing.
func buildAppConfig(t *testing.T, cfg TestServerConfig, backendURL string, port int) *config.LoadResult {
	t.Helper()

	maxChunk := cfg.MaxChunkLength
	if maxChunk == 0 {
		maxChunk = 8
	}

	appCfg := &config.Config{
		Server: config.ServerConfig{
			Port: fmt.Sprintf("%d", port),
		},
		Backend: config.BackendConfig{
			URL:               backendURL,
			MaxChunkLength:    maxChunk,
			UploadConcurrency: 2,
		},
		HTTP: config.HTTPConfig{
			Timeout:               10,
			ResponseHeaderTimeout: 10,
		},
		Cache: config.CacheConfig{
			Type:       "local",
			TTL:        60,
			MaxEntries: 16,
		},
		CallLog: config.CallLogConfig{
			Enabled:       cfg.CallLogEnabled,
			BufferSize:    100,
			FlushInterval: 1,
			RetentionDays: 0,
		},
		Metrics: config.MetricsConfig{
			Enabled: false,
		},
	}

	switch cfg.DBType {
	case "postgresql":
		appCfg.Storage = config.StorageConfig{
			Type: "postgresql",
			PostgreSQL: config.PostgreSQLConfig{
				URL:      GetPostgreSQLURL(),
				MaxConns: 5,
			},
		}
	case "mongodb":
		appCfg.Storage = config.StorageConfig{
			Type: "mongodb",
			MongoDB: config.MongoDBConfig{
				URL:      GetMongoURL(),
				Database: "classrelay_test",
			},
		}
	default:
		t.Fatalf("unsupported DB type: %s", cfg.DBType)
	}

	return &config.LoadResult{Config: appCfg}
}

// waitForServer waits for the server to become healthy.
func waitForServer(healthURL string) error {
	client := &http.Client{Timeout: 2 * time.Second}
	for i := 0; i < 50; i++ {
		resp, err := client.Get(healthURL)
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("server did not become healthy within timeout")
}

// findAvailablePort finds an available TCP port on loopback.
func findAvailablePort() (int, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer func() { _ = listener.Close() }()
	return listener.Addr().(*net.TCPAddr).Port, nil
}

// MockScriptServer mimics the script deployment. /exec answers every call
// with a redirect to /echo, which holds the real answer.
type MockScriptServer struct {
	server *httptest.Server

	mu      sync.Mutex
	uploads map[string]*strings.Builder
	seq     int
}

// NewMockScriptServer creates a new mock script backend.
func NewMockScriptServer() *MockScriptServer {
	m := &MockScriptServer{uploads: map[string]*strings.Builder{}}
	m.server = httptest.NewServer(http.HandlerFunc(m.handle))
	return m
}

// URL returns the server URL.
func (m *MockScriptServer) URL() string {
	return m.server.URL
}

// Close shuts down the server.
func (m *MockScriptServer) Close() {
	m.server.Close()
}

// Assembled returns the encoded data received for an upload session.
func (m *MockScriptServer) Assembled(sessionID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sb, ok := m.uploads[sessionID]; ok {
		return sb.String()
	}
	return ""
}

func (m *MockScriptServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/exec" {
		http.Redirect(w, r, "/echo?"+r.URL.RawQuery, http.StatusFound)
		return
	}
	if r.URL.Path != "/echo" {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if r.Method == http.MethodPost {
		body, _ := io.ReadAll(r.Body)
		_, _ = fmt.Fprintf(w, `{"status":"success","echo":%s}`, body)
		return
	}

	q := r.URL.Query()
	m.mu.Lock()
	defer m.mu.Unlock()

	switch q.Get("action") {
	case "uploadChunk":
		index, _ := strconv.Atoi(q.Get("chunkIndex"))
		if index == 0 {
			m.seq++
			id := fmt.Sprintf("img-%d", m.seq)
			m.uploads[id] = &strings.Builder{}
			m.uploads[id].WriteString(q.Get("data"))
			_, _ = fmt.Fprintf(w, `{"status":"success","sessionId":%q}`, id)
			return
		}
		sb, ok := m.uploads[q.Get("sessionId")]
		if !ok {
			_, _ = fmt.Fprint(w, `{"status":"error","message":"unknown session"}`)
			return
		}
		sb.WriteString(q.Get("data"))
		_, _ = fmt.Fprint(w, `{"status":"success"}`)
	case "getAssessments":
		_, _ = fmt.Fprint(w, `{"status":"success","assessments":[]}`)
	default:
		_, _ = fmt.Fprint(w, `{"status":"error","message":"Unknown action"}`)
	}
}
