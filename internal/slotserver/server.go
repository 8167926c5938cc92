// Package slotserver serves the per-account backup slot over HTTP.
//
// It implements the REST layout that remote.HTTPSlot speaks. Each request
// must carry a bearer token whose account matches the {account} path
// segment.
package slotserver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/abm1119/bita/internal/identity"
	"github.com/abm1119/bita/internal/metrics"
	"github.com/abm1119/bita/internal/remote"
)

type ctxKey string

const ctxAccount ctxKey = "account"

// DefaultMaxBody bounds the size of an uploaded backup record.
const DefaultMaxBody = 64 << 20

// Server bundles dependencies for the slot handlers.
type Server struct {
	repo     *Repository
	verifier identity.Verifier
	log      *zap.Logger
	metrics  *metrics.SlotMetrics
	gatherer prometheus.Gatherer
	maxBody  int64
}

// Option configures a Server.
type Option func(*Server)

func WithLogger(log *zap.Logger) Option {
	return func(s *Server) { s.log = log }
}

// WithMetrics counts requests in m and serves gatherer on /metrics.
func WithMetrics(m *metrics.SlotMetrics, gatherer prometheus.Gatherer) Option {
	return func(s *Server) {
		s.metrics = m
		s.gatherer = gatherer
	}
}

// WithMaxBody overrides DefaultMaxBody.
func WithMaxBody(n int64) Option {
	return func(s *Server) { s.maxBody = n }
}

// New constructs a Server over db.
func New(db *sqlx.DB, verifier identity.Verifier, opts ...Option) *Server {
	s := &Server{
		repo:     NewRepository(db),
		verifier: verifier,
		log:      zap.NewNop(),
		gatherer: prometheus.DefaultGatherer,
		maxBody:  DefaultMaxBody,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router wires up the HTTP API.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.accessLog)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.health)
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Group(func(pr chi.Router) {
		pr.Use(s.authMiddleware)
		pr.Get("/users/{account}/sqlite_backup.json", s.getBackup)
		pr.Put("/users/{account}/sqlite_backup.json", s.putBackup)
		pr.Delete("/users/{account}/sqlite_backup.json", s.deleteBackup)
	})

	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.metrics.IncRequest(r.Method, strconv.Itoa(status))
		s.log.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" || !strings.HasPrefix(strings.ToLower(header), "bearer ") {
			respondError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		token := strings.TrimSpace(header[len("Bearer "):])
		acct, err := s.verifier.Verify(r.Context(), token)
		if err != nil {
			respondError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		ctx := context.WithValue(r.Context(), ctxAccount, acct)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// account returns the path account if the caller owns it.
func (s *Server) account(w http.ResponseWriter, r *http.Request) (string, bool) {
	account := chi.URLParam(r, "account")
	acct, _ := r.Context().Value(ctxAccount).(identity.Account)
	if account == "" || acct.ID != account {
		respondError(w, http.StatusForbidden, "token does not grant access to this account")
		return "", false
	}
	return account, true
}

func (s *Server) getBackup(w http.ResponseWriter, r *http.Request) {
	account, ok := s.account(w, r)
	if !ok {
		return
	}
	b, found, err := s.repo.Get(r.Context(), account)
	if err != nil {
		s.log.Error("get backup", zap.String("account", account), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to read backup")
		return
	}
	if !found {
		respondJSON(w, http.StatusOK, nil)
		return
	}
	respondJSON(w, http.StatusOK, b)
}

func (s *Server) putBackup(w http.ResponseWriter, r *http.Request) {
	account, ok := s.account(w, r)
	if !ok {
		return
	}

	var b remote.Backup
	if err := decodeJSON(w, r, s.maxBody, &b); err != nil {
		respondError(w, http.StatusBadRequest, "invalid backup payload")
		return
	}
	if _, err := base64.StdEncoding.DecodeString(b.Data); err != nil {
		respondError(w, http.StatusBadRequest, "data must be base64")
		return
	}

	if err := s.repo.Put(r.Context(), account, b); err != nil {
		s.log.Error("put backup", zap.String("account", account), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to store backup")
		return
	}
	s.metrics.ObservePayload(r.Method, len(b.Data))
	respondJSON(w, http.StatusOK, b)
}

func (s *Server) deleteBackup(w http.ResponseWriter, r *http.Request) {
	account, ok := s.account(w, r)
	if !ok {
		return
	}
	if err := s.repo.Delete(r.Context(), account); err != nil {
		s.log.Error("delete backup", zap.String("account", account), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to delete backup")
		return
	}
	respondJSON(w, http.StatusOK, nil)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, limit int64, dest any) error {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dest)
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	encoder := json.NewEncoder(w)
	encoder.SetEscapeHTML(false)
	_ = encoder.Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
