// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/pdiddy/src2ir/internal/convert"
	"github.com/pdiddy/src2ir/internal/toolchain"
	"github.com/pdiddy/src2ir/pkg/types"
)

// GenerateRequest is the body of POST /api/generate-ir.
type GenerateRequest struct {
	CPPCode  *string `json:"cppCode"`
	RustCode *string `json:"rustCode"`
}

// GenerateResponse carries the IR of both snippets.
type GenerateResponse struct {
	CPPIR  string `json:"cppIR"`
	RustIR string `json:"rustIR"`
}

type errResponse struct {
	Error string `json:"error"`
}

// GenerateIR handles POST /api/generate-ir. Both snippets are compiled in
// a private temporary directory; C++ first. Any failure answers 500 with
// a message naming what went wrong. A malformed body answers 400.
func (s *Server) GenerateIR(w http.ResponseWriter, r *http.Request) {
	s.logger.Debug("server: received generate-ir request")

	var req GenerateRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errResponse{Error: "invalid request body: " + err.Error()})
		return
	}
	switch {
	case req.CPPCode == nil:
		writeJSON(w, http.StatusBadRequest, errResponse{Error: "missing field: cppCode"})
		return
	case req.RustCode == nil:
		writeJSON(w, http.StatusBadRequest, errResponse{Error: "missing field: rustCode"})
		return
	}

	dir, err := os.MkdirTemp("", "src2ir-serve-*")
	if err != nil {
		s.logger.Error("server: temp dir failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errResponse{Error: "internal error"})
		return
	}
	defer os.RemoveAll(dir)

	var resp GenerateResponse
	for _, snip := range []struct {
		lang types.Language
		code string
		dst  *string
	}{
		{types.LangCPP, *req.CPPCode, &resp.CPPIR},
		{types.LangRust, *req.RustCode, &resp.RustIR},
	} {
		ir, err := s.compileSnippet(r.Context(), dir, snip.lang, snip.code)
		if err != nil {
			s.logger.Warn("server: generate failed",
				slog.String("language", string(snip.lang)),
				slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errResponse{Error: s.message(snip.lang, err)})
			return
		}
		*snip.dst = ir
	}

	writeJSON(w, http.StatusOK, resp)
}

// compileSnippet writes code to dir, compiles it and returns the IR text.
func (s *Server) compileSnippet(ctx context.Context, dir string, lang types.Language, code string) (string, error) {
	c, err := s.set.For(lang)
	if err != nil {
		return "", err
	}

	src := types.SourceFile{
		Path:     filepath.Join(dir, "snippet"+lang.Extension()),
		RelPath:  "snippet" + lang.Extension(),
		Language: lang,
	}
	if err := os.WriteFile(src.Path, []byte(code), 0o600); err != nil {
		return "", fmt.Errorf("writing snippet: %w", err)
	}
	job := types.Job{Source: src, OutputPath: filepath.Join(dir, src.Base()+lang.Suffix())}

	opts := convert.Options{
		Force:      true,
		Timeout:    s.cfg.Timeout,
		MaxIRBytes: s.cfg.MaxIRBytes,
		MaxIRLines: s.cfg.MaxIRLines,
	}
	start := time.Now()
	status, err := convert.ConvertFile(ctx, c, job, opts, io.Discard)
	if status != "" {
		res := convert.Result{Job: job, Status: status, Duration: time.Since(start), Err: err}
		for _, rec := range s.recorders {
			if recErr := rec.Record(res); recErr != nil {
				s.logger.Warn("server: recording failed", slog.String("error", recErr.Error()))
			}
		}
	}
	if err != nil {
		return "", err
	}

	data, err := os.ReadFile(job.OutputPath)
	if err != nil {
		return "", fmt.Errorf("reading generated IR: %w", err)
	}
	return string(data), nil
}

// message maps a compile error to the text returned to the client.
func (s *Server) message(lang types.Language, err error) string {
	var ce *toolchain.CompileError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Sprintf("compilation timed out (%s) or failed", s.cfg.Timeout)
	case errors.Is(err, convert.ErrOutputTooLarge):
		return convert.ErrOutputTooLarge.Error()
	case errors.Is(err, convert.ErrOutputTooLong):
		return convert.ErrOutputTooLong.Error()
	case errors.Is(err, toolchain.ErrNotFound):
		return err.Error()
	case errors.As(err, &ce):
		name := "C++"
		if lang == types.LangRust {
			name = "Rust"
		}
		return fmt.Sprintf("failed to generate %s IR, please check your %s code for syntax errors.", name, name)
	}
	return err.Error()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}
