package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/fairyhunter13/payload-sanitizer/internal/config"
	"github.com/fairyhunter13/payload-sanitizer/internal/domain"
	"github.com/fairyhunter13/payload-sanitizer/internal/usecase"
	"github.com/fairyhunter13/payload-sanitizer/pkg/textx"
	"github.com/gabriel-vasile/mimetype"
)

// Server aggregates handlers dependencies.
type Server struct {
	Cfg        config.Config
	Limits     config.LimitsProfile
	Sanitize   usecase.SanitizeService
	Batches    usecase.BatchService
	DBCheck    func(ctx context.Context) error
	RedisCheck func(ctx context.Context) error
	KafkaCheck func(ctx context.Context) error
}

// NewServer constructs an HTTP server with all handlers and checks wired.
func NewServer(cfg config.Config, limits config.LimitsProfile, san usecase.SanitizeService, batches usecase.BatchService, dbCheck, redisCheck, kafkaCheck func(context.Context) error) *Server {
	return &Server{Cfg: cfg, Limits: limits, Sanitize: san, Batches: batches, DBCheck: dbCheck, RedisCheck: redisCheck, KafkaCheck: kafkaCheck}
}

var (
	vldOnce sync.Once
	vld     *validator.Validate
)

func getValidator() *validator.Validate {
	vldOnce.Do(func() { vld = validator.New() })
	return vld
}

func acceptsJSON(w http.ResponseWriter, r *http.Request) bool {
	if a := r.Header.Get("Accept"); a != "" && a != "*/*" && !strings.Contains(a, "application/json") {
		writeJSON(w, http.StatusNotAcceptable, errorEnvelope{Error: apiError{Code: "INVALID_ARGUMENT", Message: "not acceptable", Details: map[string]any{"accept": a}}})
		return false
	}
	return true
}

// checkItems enforces the batch limits for the calling client. It returns a
// nil error when the batch is acceptable; limits never reject absent items.
func (s *Server) checkItems(r *http.Request, items []*string) (map[string]any, error) {
	lim := s.Limits.For(r.Header.Get("X-Client-Id"))
	if lim.MaxItems > 0 && len(items) > lim.MaxItems {
		return map[string]any{"max_items": lim.MaxItems, "items": len(items)},
			fmt.Errorf("%w: too many items", domain.ErrInvalidArgument)
	}
	if lim.MaxItemBytes > 0 {
		for i, it := range items {
			if it != nil && len(*it) > lim.MaxItemBytes {
				return map[string]any{"max_item_bytes": lim.MaxItemBytes, "index": i},
					fmt.Errorf("%w: item too large", domain.ErrInvalidArgument)
			}
		}
	}
	return nil, nil
}

// SanitizeHandler handles the synchronous batch sanitize operation.
func (s *Server) SanitizeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !acceptsJSON(w, r) {
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, 8<<20) // 8MB
		var req struct {
			// Pointer so that an explicitly empty batch still satisfies
			// required while a missing field is rejected.
			Items *[]*string `json:"items" validate:"required"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, r, fmt.Errorf("%w: invalid json", domain.ErrInvalidArgument), nil)
			return
		}
		if err := getValidator().Struct(req); err != nil {
			writeError(w, r, fmt.Errorf("%w: items field required", domain.ErrInvalidArgument), nil)
			return
		}
		items := *req.Items
		if details, err := s.checkItems(r, items); err != nil {
			writeError(w, r, err, details)
			return
		}
		out := s.Sanitize.Apply(r.Context(), items)
		writeJSON(w, http.StatusOK, map[string]any{"items": out})
	}
}

// allowedExt enforces an allowlist for file sanitization: .txt, .json
func allowedExt(name string) bool {
	n := strings.ToLower(name)
	return strings.HasSuffix(n, ".txt") || strings.HasSuffix(n, ".json")
}

func allowedMIME(m string) bool {
	m = strings.ToLower(m)
	return strings.HasPrefix(m, "text/") || strings.HasPrefix(m, "application/json")
}

// SanitizeFileHandler accepts a multipart text file and returns its
// sanitized content as one item.
func (s *Server) SanitizeFileHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !acceptsJSON(w, r) {
			return
		}
		if !strings.Contains(r.Header.Get("Content-Type"), "multipart/form-data") {
			writeError(w, r, fmt.Errorf("%w: content-type must be multipart/form-data", domain.ErrInvalidArgument), nil)
			return
		}
		maxBytes := s.Cfg.MaxUploadMB * 1024 * 1024
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
		if err := r.ParseMultipartForm(maxBytes); err != nil {
			if strings.Contains(strings.ToLower(err.Error()), "too large") {
				writeJSON(w, http.StatusRequestEntityTooLarge, errorEnvelope{Error: apiError{Code: "INVALID_ARGUMENT", Message: "payload too large", Details: map[string]any{"max_mb": s.Cfg.MaxUploadMB}}})
				return
			}
			writeError(w, r, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err), nil)
			return
		}
		f, h, err := r.FormFile("file")
		if err != nil {
			writeError(w, r, fmt.Errorf("%w: file required", domain.ErrInvalidArgument), map[string]string{"field": "file"})
			return
		}
		defer func() { _ = f.Close() }()
		data, err := io.ReadAll(f)
		if err != nil {
			writeError(w, r, fmt.Errorf("%w: file read: %v", domain.ErrInvalidArgument, err), nil)
			return
		}
		if !allowedExt(h.Filename) {
			writeJSON(w, http.StatusUnsupportedMediaType, errorEnvelope{Error: apiError{Code: "INVALID_ARGUMENT", Message: "unsupported media type (extension)", Details: map[string]any{"filename": h.Filename}}})
			return
		}
		m := mimetype.Detect(data)
		if !allowedMIME(m.String()) {
			writeJSON(w, http.StatusUnsupportedMediaType, errorEnvelope{Error: apiError{Code: "INVALID_ARGUMENT", Message: "unsupported media type (content)", Details: map[string]any{"mime": m.String(), "filename": h.Filename}}})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"text": textx.SanitizePayload(string(data))})
	}
}

// BatchSubmitHandler enqueues an asynchronous sanitization batch.
func (s *Server) BatchSubmitHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !acceptsJSON(w, r) {
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, 8<<20) // 8MB
		var req struct {
			Items       *[]*string `json:"items" validate:"required"`
			CallbackURL string     `json:"callback_url" validate:"omitempty,url"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, r, fmt.Errorf("%w: invalid json", domain.ErrInvalidArgument), nil)
			return
		}
		if err := getValidator().Struct(req); err != nil {
			verrs := map[string]string{}
			if ve, ok := err.(validator.ValidationErrors); ok {
				for _, fe := range ve {
					verrs[strings.ToLower(fe.Field())] = fe.Tag()
				}
			}
			writeError(w, r, fmt.Errorf("%w: validation failed", domain.ErrInvalidArgument), verrs)
			return
		}
		items := *req.Items
		if details, err := s.checkItems(r, items); err != nil {
			writeError(w, r, err, details)
			return
		}
		id, err := s.Batches.Submit(r.Context(), items, req.CallbackURL, r.Header.Get("Idempotency-Key"))
		if err != nil {
			writeError(w, r, fmt.Errorf("submit: %w", err), nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": string(domain.BatchQueued)})
	}
}

// BatchStatusHandler returns batch status and the sanitized items when completed.
func (s *Server) BatchStatusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !acceptsJSON(w, r) {
			return
		}
		id := chi.URLParam(r, "id")
		if id == "" {
			writeError(w, r, fmt.Errorf("%w: id missing", domain.ErrInvalidArgument), nil)
			return
		}
		status, res, etag, err := s.Batches.Fetch(r.Context(), id, r.Header.Get("If-None-Match"))
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		w.Header().Set("ETag", etag)
		if status != http.StatusNotModified {
			writeJSON(w, status, res)
		} else {
			w.WriteHeader(status)
		}
	}
}

// ReadyzHandler returns a readiness handler that probes DB, Redis and Kafka.
func (s *Server) ReadyzHandler() http.HandlerFunc {
	type check struct {
		Name    string `json:"name"`
		OK      bool   `json:"ok"`
		Details string `json:"details,omitempty"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		checks := make([]check, 0, 3)
		probe := func(name string, fn func(context.Context) error) {
			if fn == nil {
				return
			}
			if err := fn(ctx); err != nil {
				checks = append(checks, check{Name: name, OK: false, Details: err.Error()})
			} else {
				checks = append(checks, check{Name: name, OK: true})
			}
		}
		probe("db", s.DBCheck)
		probe("redis", s.RedisCheck)
		probe("kafka", s.KafkaCheck)
		ok := true
		for _, c := range checks {
			if !c.OK {
				ok = false
				break
			}
		}
		st := http.StatusOK
		if !ok {
			st = http.StatusServiceUnavailable
		}
		writeJSON(w, st, map[string]any{"checks": checks})
	}
}

// OpenAPIServe serves api/openapi.yaml if present.
func (s *Server) OpenAPIServe() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b, err := os.ReadFile("api/openapi.yaml")
		if err != nil {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/yaml; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(b)
	}
}
