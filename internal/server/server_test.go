// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/src2ir/internal/convert"
	"github.com/pdiddy/src2ir/internal/toolchain"
	"github.com/pdiddy/src2ir/pkg/types"
)

// fakeCompiler echoes the snippet into the output, prefixed with a
// ModuleID line, or fails the way it was told to.
type fakeCompiler struct {
	lang  types.Language
	err   error
	delay time.Duration
	ir    string
}

func (f *fakeCompiler) Name() string                            { return "fake-" + string(f.lang) }
func (f *fakeCompiler) Language() types.Language                { return f.lang }
func (f *fakeCompiler) Available() bool                         { return true }
func (f *fakeCompiler) Version(context.Context) (string, error) { return "fake 1.0", nil }

func (f *fakeCompiler) Compile(ctx context.Context, src, out string) error {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if f.err != nil {
		return f.err
	}
	code, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	ir := f.ir
	if ir == "" {
		ir = "; ModuleID = '" + string(f.lang) + "'\n; " + string(code) + "\n"
	}
	return os.WriteFile(out, []byte(ir), 0o644)
}

type memRecorder struct {
	mu      sync.Mutex
	results []convert.Result
}

func (m *memRecorder) Record(r convert.Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, r)
	return nil
}

func testConfig() types.ServeConfig {
	return types.ServeConfig{
		Addr:       "127.0.0.1:0",
		Timeout:    time.Second,
		MaxIRBytes: 1 << 16,
		MaxIRLines: 100,
	}
}

func testServer(t *testing.T, cpp, rust *fakeCompiler, cfg types.ServeConfig, opts ...Option) http.Handler {
	t.Helper()
	set := toolchain.Set{types.LangCPP: cpp, types.LangRust: rust}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return New(set, cfg, logger, opts...).Router()
}

func post(t *testing.T, h http.Handler, body string) (*httptest.ResponseRecorder, map[string]string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/generate-ir", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var out map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), "body: %s", w.Body.String())
	return w, out
}

func TestGenerateIR(t *testing.T) {
	rec := &memRecorder{}
	h := testServer(t,
		&fakeCompiler{lang: types.LangCPP},
		&fakeCompiler{lang: types.LangRust},
		testConfig(), WithRecorders(rec))

	w, out := post(t, h, `{"cppCode":"int add(int a,int b){return a+b;}","rustCode":"pub fn add() {}"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "application/json")
	assert.Contains(t, out["cppIR"], "ModuleID = 'cpp'")
	assert.Contains(t, out["cppIR"], "return a+b;")
	assert.Contains(t, out["rustIR"], "ModuleID = 'rust'")

	require.Len(t, rec.results, 2)
	assert.Equal(t, types.LangCPP, rec.results[0].Job.Source.Language)
	assert.Equal(t, types.ConversionDone, rec.results[1].Status)
}

func TestGenerateIRErrors(t *testing.T) {
	compileErr := &toolchain.CompileError{Compiler: "fake", Source: "snippet", Err: errors.New("exit status 1")}

	tests := []struct {
		name       string
		cpp, rust  *fakeCompiler
		cfg        func(*types.ServeConfig)
		body       string
		wantStatus int
		wantError  string
	}{
		{
			name:       "cpp syntax error",
			cpp:        &fakeCompiler{lang: types.LangCPP, err: compileErr},
			rust:       &fakeCompiler{lang: types.LangRust},
			wantStatus: http.StatusInternalServerError,
			wantError:  "failed to generate C++ IR, please check your C++ code for syntax errors.",
		},
		{
			name:       "rust syntax error",
			cpp:        &fakeCompiler{lang: types.LangCPP},
			rust:       &fakeCompiler{lang: types.LangRust, err: compileErr},
			wantStatus: http.StatusInternalServerError,
			wantError:  "failed to generate Rust IR, please check your Rust code for syntax errors.",
		},
		{
			name:       "timeout",
			cpp:        &fakeCompiler{lang: types.LangCPP, delay: time.Second},
			rust:       &fakeCompiler{lang: types.LangRust},
			cfg:        func(c *types.ServeConfig) { c.Timeout = 20 * time.Millisecond },
			wantStatus: http.StatusInternalServerError,
			wantError:  "compilation timed out (20ms) or failed",
		},
		{
			name:       "size limit",
			cpp:        &fakeCompiler{lang: types.LangCPP, ir: strings.Repeat("x", 200)},
			rust:       &fakeCompiler{lang: types.LangRust},
			cfg:        func(c *types.ServeConfig) { c.MaxIRBytes = 100 },
			wantStatus: http.StatusInternalServerError,
			wantError:  "generated IR file exceeds the size limit",
		},
		{
			name:       "length limit",
			cpp:        &fakeCompiler{lang: types.LangCPP},
			rust:       &fakeCompiler{lang: types.LangRust, ir: strings.Repeat("x\n", 10)},
			cfg:        func(c *types.ServeConfig) { c.MaxIRLines = 5 },
			wantStatus: http.StatusInternalServerError,
			wantError:  "generated IR file exceeds the length limit",
		},
		{
			name:       "malformed body",
			cpp:        &fakeCompiler{lang: types.LangCPP},
			rust:       &fakeCompiler{lang: types.LangRust},
			body:       `{"cppCode":`,
			wantStatus: http.StatusBadRequest,
			wantError:  "invalid request body",
		},
		{
			name:       "missing rust field",
			cpp:        &fakeCompiler{lang: types.LangCPP},
			rust:       &fakeCompiler{lang: types.LangRust},
			body:       `{"cppCode":"int x;"}`,
			wantStatus: http.StatusBadRequest,
			wantError:  "missing field: rustCode",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			if tt.cfg != nil {
				tt.cfg(&cfg)
			}
			body := tt.body
			if body == "" {
				body = `{"cppCode":"int x;","rustCode":"pub fn x() {}"}`
			}
			w, out := post(t, testServer(t, tt.cpp, tt.rust, cfg), body)
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Contains(t, out["error"], tt.wantError)
			assert.NotContains(t, out, "cppIR")
		})
	}
}

func TestHealthz(t *testing.T) {
	h := testServer(t, &fakeCompiler{lang: types.LangCPP}, &fakeCompiler{lang: types.LangRust}, testConfig())

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestMetricsRoute(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("src2ir_files_total 0\n"))
	})

	h := testServer(t, &fakeCompiler{lang: types.LangCPP}, &fakeCompiler{lang: types.LangRust},
		testConfig(), WithMetricsHandler(metrics))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "src2ir_files_total")

	bare := testServer(t, &fakeCompiler{lang: types.LangCPP}, &fakeCompiler{lang: types.LangRust}, testConfig())
	w = httptest.NewRecorder()
	bare.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGenerateIRMethodNotAllowed(t *testing.T) {
	h := testServer(t, &fakeCompiler{lang: types.LangCPP}, &fakeCompiler{lang: types.LangRust}, testConfig())
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/generate-ir", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestRunShutsDown(t *testing.T) {
	set := toolchain.Set{
		types.LangCPP:  &fakeCompiler{lang: types.LangCPP},
		types.LangRust: &fakeCompiler{lang: types.LangRust},
	}
	var logs bytes.Buffer
	s := New(set, testConfig(), slog.New(slog.NewTextHandler(&logs, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
