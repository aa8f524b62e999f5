package web

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"nimbus-community/internal/report"
	"nimbus-community/internal/storage"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Reporter generates an activity report for a guild. The bot satisfies
// this with live roster data; the offline path uses the bare engine.
type Reporter interface {
	Generate(ctx context.Context, guildID int64) (*report.Report, error)
}

// Server exposes a small read-only dashboard API next to the bot.
type Server struct {
	store    *storage.Store
	reporter Reporter
	logger   *zap.Logger
	http     *http.Server
}

func NewServer(addr string, store *storage.Store, reporter Reporter, logger *zap.Logger) *Server {
	s := &Server{store: store, reporter: reporter, logger: logger}
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Route("/api/guilds/{guildID}", func(r chi.Router) {
		r.Get("/report", s.handleReport)
		r.Get("/stats", s.handleStats)
		r.Get("/modlog", s.handleModlog)
	})
	return r
}

func (s *Server) Start() {
	go func() {
		s.logger.Info("web server listening", zap.String("addr", s.http.Addr))
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("web server error", zap.Error(err))
		}
	}()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	requestsTotal.WithLabelValues("healthz", "200").Inc()
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	guildID, ok := s.guildID(w, r, "report")
	if !ok {
		return
	}

	started := time.Now()
	rep, err := s.reporter.Generate(r.Context(), guildID)
	reportDuration.Observe(time.Since(started).Seconds())
	if err != nil {
		reportsTotal.WithLabelValues("error").Inc()
		requestsTotal.WithLabelValues("report", "500").Inc()
		s.logger.Error("report generation failed", zap.Int64("guild_id", guildID), zap.Error(err))
		http.Error(w, "report generation failed", http.StatusInternalServerError)
		return
	}
	reportsTotal.WithLabelValues("ok").Inc()
	requestsTotal.WithLabelValues("report", "200").Inc()
	s.writeJSON(w, rep)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	guildID, ok := s.guildID(w, r, "stats")
	if !ok {
		return
	}
	count, err := s.store.CountGuildMessages(r.Context(), guildID)
	if err != nil {
		requestsTotal.WithLabelValues("stats", "500").Inc()
		http.Error(w, "stats lookup failed", http.StatusInternalServerError)
		return
	}
	requestsTotal.WithLabelValues("stats", "200").Inc()
	s.writeJSON(w, map[string]any{
		"guild_id":          guildID,
		"archived_messages": count,
	})
}

func (s *Server) handleModlog(w http.ResponseWriter, r *http.Request) {
	guildID, ok := s.guildID(w, r, "modlog")
	if !ok {
		return
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	actions, err := s.store.ListModActions(r.Context(), guildID, 0, limit)
	if err != nil {
		requestsTotal.WithLabelValues("modlog", "500").Inc()
		http.Error(w, "modlog lookup failed", http.StatusInternalServerError)
		return
	}
	requestsTotal.WithLabelValues("modlog", "200").Inc()
	s.writeJSON(w, actions)
}

func (s *Server) guildID(w http.ResponseWriter, r *http.Request, route string) (int64, bool) {
	guildID, err := strconv.ParseInt(chi.URLParam(r, "guildID"), 10, 64)
	if err != nil || guildID <= 0 {
		requestsTotal.WithLabelValues(route, "400").Inc()
		http.Error(w, "invalid guild id", http.StatusBadRequest)
		return 0, false
	}
	return guildID, true
}

func (s *Server) writeJSON(w http.ResponseWriter, value any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(value); err != nil {
		s.logger.Warn("response encoding failed", zap.Error(err))
	}
}
