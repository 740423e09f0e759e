// Package integration provides a reusable test harness for end-to-end
// testing of the orchestration server. It starts a full HTTP server with
// definitions loaded from testdata, an in-memory instance store, and an
// optional test JWT issuer.
package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/pitabwire/orchest/internal/config"
	"github.com/pitabwire/orchest/internal/definition"
	"github.com/pitabwire/orchest/internal/engine"
	"github.com/pitabwire/orchest/internal/notify"
	"github.com/pitabwire/orchest/internal/observability"
	"github.com/pitabwire/orchest/internal/phase"
	"github.com/pitabwire/orchest/internal/store"
	"github.com/pitabwire/orchest/internal/task"
	"github.com/pitabwire/orchest/internal/transition"
	"github.com/pitabwire/orchest/internal/transport"
)

const testAuthSecret = "integration-test-secret"

// TestHarness encapsulates a fully wired orchestration server instance.
type TestHarness struct {
	t      *testing.T
	server *httptest.Server

	// Internal components exposed for advanced test scenarios.
	Registry *definition.Registry
	Machine  *engine.StateMachine
	Store    *store.MemoryStore
	Sink     *notify.MemorySink

	cfg *config.Config
}

// HarnessOption configures the test harness.
type HarnessOption func(*harnessConfig)

type harnessConfig struct {
	definitionDirs []string
	authEnabled    bool
	engineOptions  *engine.Options
}

// WithDefinitions sets the definition directories to load. Relative paths
// are resolved from the testdata directory.
func WithDefinitions(dirs ...string) HarnessOption {
	return func(c *harnessConfig) { c.definitionDirs = dirs }
}

// WithAuth enables bearer token authentication with the test secret.
func WithAuth() HarnessOption {
	return func(c *harnessConfig) { c.authEnabled = true }
}

// WithEngineOptions overrides the engine options.
func WithEngineOptions(opts engine.Options) HarnessOption {
	return func(c *harnessConfig) { c.engineOptions = &opts }
}

// NewTestHarness creates and starts a full orchestration test instance. The
// server is automatically cleaned up when the test completes.
func NewTestHarness(t *testing.T, opts ...HarnessOption) *TestHarness {
	t.Helper()

	hc := &harnessConfig{}
	for _, opt := range opts {
		opt(hc)
	}
	if len(hc.definitionDirs) == 0 {
		hc.definitionDirs = []string{filepath.Join(testdataDir(), "definitions")}
	}

	logger := zap.NewNop()

	loader := definition.NewLoader()
	defs, err := loader.LoadAll(hc.definitionDirs)
	if err != nil {
		t.Fatalf("load definitions: %v", err)
	}
	validator := definition.NewValidator()
	if verrs := validator.Validate(defs); len(verrs) > 0 {
		t.Fatalf("definition validation: %v", verrs[0])
	}

	h := &TestHarness{
		t:        t,
		Registry: definition.NewRegistry(defs),
		Store:    store.NewMemoryStore(),
		Sink:     notify.NewMemorySink(),
	}

	taskExecutor := task.NewSimulatedExecutor(h.Sink, logger)
	taskExecutor.MaxSimulatedWait = time.Millisecond

	engineOpts := engine.DefaultOptions()
	engineOpts.RetryDelay = time.Millisecond
	if hc.engineOptions != nil {
		engineOpts = *hc.engineOptions
	}

	h.Machine = engine.NewStateMachine(
		h.Registry, h.Store, h.Sink,
		phase.NewExecutor(taskExecutor, h.Sink, logger, nil),
		transition.NewGateValidator(nil, h.Sink, logger),
		engineOpts, logger, nil,
	)

	h.cfg = config.Defaults()
	h.cfg.Auth.Enabled = hc.authEnabled

	var authenticate func(http.Handler) http.Handler
	if hc.authEnabled {
		authenticate = transport.JWTAuthenticator(h.cfg.Auth, []byte(testAuthSecret))
	}

	router := transport.NewRouter(transport.Dependencies{
		Config:       h.cfg,
		Logger:       logger,
		Engine:       h.Machine,
		Definitions:  h.Registry,
		Authenticate: authenticate,
		Readiness: observability.ReadinessChecks{
			DefinitionsLoaded: func() bool { return len(h.Registry.All()) > 0 },
			InstanceStore:     h.Store,
		},
	})

	h.server = httptest.NewServer(router)
	t.Cleanup(h.server.Close)
	return h
}

// GenerateToken issues a signed bearer token carrying the given claims.
func (h *TestHarness) GenerateToken(claims map[string]any) string {
	h.t.Helper()
	mc := jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()}
	for k, v := range claims {
		mc[k] = v
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, mc).SignedString([]byte(testAuthSecret))
	if err != nil {
		h.t.Fatalf("sign token: %v", err)
	}
	return token
}

// GET performs a GET request against the test server.
func (h *TestHarness) GET(path string, token string) *http.Response {
	return h.do(http.MethodGet, path, nil, token)
}

// POST performs a POST request with a JSON body against the test server.
func (h *TestHarness) POST(path string, body any, token string) *http.Response {
	return h.do(http.MethodPost, path, body, token)
}

func (h *TestHarness) do(method, path string, body any, token string) *http.Response {
	h.t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			h.t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, h.server.URL+path, reader)
	if err != nil {
		h.t.Fatalf("build request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := h.server.Client().Do(req)
	if err != nil {
		h.t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

// AssertStatus fails the test when the response status differs and logs the
// body for diagnosis.
func (h *TestHarness) AssertStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		data, _ := io.ReadAll(resp.Body)
		t.Fatalf("status = %d, want %d (body %s)", resp.StatusCode, want, data)
	}
}

// ParseJSON decodes the response body and closes it.
func (h *TestHarness) ParseJSON(resp *http.Response, dst any) {
	h.t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		h.t.Fatalf("decode response: %v", err)
	}
}

// testdataDir resolves the testdata directory relative to this source file,
// so tests work regardless of the working directory.
func testdataDir() string {
	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		panic(fmt.Errorf("cannot resolve testdata directory"))
	}
	return filepath.Join(filepath.Dir(thisFile), "testdata")
}
