package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"lectern/internal/api"
	"lectern/internal/config"
	"lectern/internal/logging"
	"lectern/internal/services"
)

const (
	maxUploadBytes   = 256 << 20
	maxArtifactBytes = 64 << 20
	uploadMemory     = 32 << 20
	followWait       = 25 * time.Second
)

type apiServer struct {
	bind   string
	token  string
	logger *slog.Logger
	daemon *Daemon

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	srv := &apiServer{
		bind:   strings.TrimSpace(cfg.Paths.APIBind),
		token:  strings.TrimSpace(cfg.Paths.APIToken),
		logger: logging.NewComponentLogger(logger, "api-server"),
		daemon: d,
	}
	srv.server = &http.Server{
		Handler:           srv.handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       2 * time.Minute,
		WriteTimeout:      time.Minute,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

func (s *apiServer) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/progress", s.handleProgress)
	mux.HandleFunc("GET /api/queue", s.handleQueue)
	mux.HandleFunc("POST /api/queue/upload", s.handleUpload)
	mux.HandleFunc("POST /api/queue/scan", s.handleScan)
	mux.HandleFunc("POST /api/queue/pause", s.handlePause)
	mux.HandleFunc("POST /api/queue/resume", s.handleResume)
	mux.HandleFunc("POST /api/queue/retry", s.handleRetry)
	mux.HandleFunc("DELETE /api/queue/{id}", s.handleRemove)
	mux.HandleFunc("GET /api/history", s.handleHistory)

	mux.HandleFunc("GET /api/papers", s.handlePapers)
	mux.HandleFunc("POST /api/papers/dedupe", s.handleDedupe)
	mux.HandleFunc("GET /api/papers/{id}", s.handlePaper)
	mux.HandleFunc("DELETE /api/papers/{id}", s.handleDeletePaper)
	mux.HandleFunc("GET /api/papers/{id}/tree", s.handleTree)
	mux.HandleFunc("POST /api/papers/{id}/match", s.handleMatch)
	mux.HandleFunc("PUT /api/papers/{id}/artifacts/{name}", s.handleSaveArtifact)

	mux.HandleFunc("GET /api/events", s.handleEvents)
	mux.HandleFunc("GET /api/logs", s.handleLogs)

	return s.withRequestID(authMiddleware(s.token, mux))
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil || s.bind == "" {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil || s.listener == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.server.Shutdown(shutdownCtx)
	_ = s.listener.Close()
	s.listener = nil
}

// addr returns the bound listener address, useful when binding port 0.
func (s *apiServer) addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if rid == "" {
			rid = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", rid)
		ctx := services.WithRequestID(r.Context(), rid)
		logging.WithContext(ctx, s.logger).Debug("api request",
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
		)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := s.daemon.Status(r.Context())
	s.writeJSON(w, http.StatusOK, api.DaemonStatus{
		Running:      status.Running,
		PID:          status.PID,
		DataDir:      status.DataDir,
		OutputDir:    status.OutputDir,
		LibraryPath:  status.LibraryPath,
		JournalPath:  status.JournalPath,
		LockFilePath: status.LockFilePath,
		Workflow:     api.FromStatusSummary(status.Workflow),
	})
}

func (s *apiServer) handleProgress(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, api.FromProgress(s.daemon.orchestrator.ProgressSnapshot()))
}

func (s *apiServer) handleQueue(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, api.QueueListResponse{Items: api.FromJobs(s.daemon.orchestrator.ListQueue())})
}

func (s *apiServer) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		s.handleMultipartUpload(w, r)
		return
	}

	var req api.UploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := api.Validate(req); err != nil {
		s.writeServiceError(r.Context(), w, err)
		return
	}
	job, err := s.daemon.AddPath(r.Context(), req.ID, req.Path, req.Force)
	if err != nil {
		s.writeServiceError(r.Context(), w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, api.JobResponse{Job: api.FromJob(job)})
}

func (s *apiServer) handleMultipartUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(uploadMemory); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid multipart upload")
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()
	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	force := parseBool(r.FormValue("force"))
	job, err := s.daemon.Upload(r.Context(), header.Filename, file, force)
	if err != nil {
		s.writeServiceError(r.Context(), w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, api.JobResponse{Job: api.FromJob(job)})
}

func (s *apiServer) handleScan(w http.ResponseWriter, r *http.Request) {
	result, err := s.daemon.Scan(r.Context())
	if err != nil {
		s.writeServiceError(r.Context(), w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.FromScanResult(result))
}

func (s *apiServer) handlePause(w http.ResponseWriter, r *http.Request) {
	s.daemon.orchestrator.Pause()
	s.writeJSON(w, http.StatusOK, api.FromStatusSummary(s.daemon.orchestrator.Status(r.Context())))
}

func (s *apiServer) handleResume(w http.ResponseWriter, r *http.Request) {
	s.daemon.orchestrator.Resume()
	s.writeJSON(w, http.StatusOK, api.FromStatusSummary(s.daemon.orchestrator.Status(r.Context())))
}

func (s *apiServer) handleRetry(w http.ResponseWriter, r *http.Request) {
	var req api.RetryRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := api.Validate(req); err != nil {
		s.writeServiceError(r.Context(), w, err)
		return
	}
	job, err := s.daemon.Retry(req.ID)
	if err != nil {
		s.writeServiceError(r.Context(), w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, api.JobResponse{Job: api.FromJob(job)})
}

func (s *apiServer) handleRemove(w http.ResponseWriter, r *http.Request) {
	if err := s.daemon.Remove(r.PathValue("id")); err != nil {
		s.writeServiceError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *apiServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit, _ := strconv.Atoi(query.Get("limit"))
	if limit <= 0 {
		limit = 50
	}
	outcomes, err := s.daemon.History(r.Context(), strings.TrimSpace(query.Get("job")), limit)
	if err != nil {
		s.writeServiceError(r.Context(), w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.HistoryResponse{Outcomes: api.FromOutcomes(outcomes)})
}

func (s *apiServer) handlePapers(w http.ResponseWriter, r *http.Request) {
	entries, err := s.daemon.Papers(r.Context())
	if err != nil {
		s.writeServiceError(r.Context(), w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.PaperListResponse{Papers: api.FromEntries(entries)})
}

func (s *apiServer) handlePaper(w http.ResponseWriter, r *http.Request) {
	content, missing, err := s.daemon.Paper(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(r.Context(), w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.FromContent(content, missing))
}

func (s *apiServer) handleTree(w http.ResponseWriter, r *http.Request) {
	data, err := s.daemon.Tree(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(r.Context(), w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// handleMatch never reports lookup failures as errors: unknown papers,
// missing or malformed trees and misses all answer {"found": false}.
func (s *apiServer) handleMatch(w http.ResponseWriter, r *http.Request) {
	var req api.MatchRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	kind, lang, err := req.Target()
	if err != nil {
		s.writeServiceError(r.Context(), w, err)
		return
	}
	match, found := s.daemon.Match(r.Context(), r.PathValue("id"), req.Fragment, lang, kind)
	s.writeJSON(w, http.StatusOK, api.FromMatch(match, found))
}

func (s *apiServer) handleSaveArtifact(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxArtifactBytes))
	if err != nil {
		s.writeError(w, http.StatusRequestEntityTooLarge, "artifact too large")
		return
	}
	if err := s.daemon.SaveArtifact(r.Context(), r.PathValue("id"), r.PathValue("name"), data); err != nil {
		s.writeServiceError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *apiServer) handleDeletePaper(w http.ResponseWriter, r *http.Request) {
	if err := s.daemon.DeletePaper(r.Context(), r.PathValue("id")); err != nil {
		s.writeServiceError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *apiServer) handleDedupe(w http.ResponseWriter, r *http.Request) {
	removed, err := s.daemon.Dedupe(r.Context())
	if err != nil {
		s.writeServiceError(r.Context(), w, err)
		return
	}
	if removed == nil {
		removed = []string{}
	}
	s.writeJSON(w, http.StatusOK, api.DedupeResponse{Removed: removed})
}

func (s *apiServer) handleLogs(w http.ResponseWriter, r *http.Request) {
	hub := s.daemon.LogStream()
	if hub == nil {
		s.writeJSON(w, http.StatusOK, api.LogStreamResponse{Events: nil, Next: 0})
		return
	}

	query := r.URL.Query()
	since, _ := strconv.ParseUint(query.Get("since"), 10, 64)
	limit, _ := strconv.Atoi(query.Get("limit"))
	if limit <= 0 {
		limit = 200
	}
	follow := parseBool(query.Get("follow"))
	tail := parseBool(query.Get("tail"))
	component := strings.TrimSpace(query.Get("component"))
	jobID := strings.TrimSpace(query.Get("job"))

	var (
		events []logging.LogEvent
		next   uint64
	)
	if tail && since == 0 && !follow {
		events, next = hub.Tail(limit)
	} else {
		ctx := r.Context()
		if follow {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, followWait)
			defer cancel()
		}
		var err error
		events, next, err = hub.Fetch(ctx, since, limit, follow)
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}

	converted := api.FromLogEvents(events)
	filtered := make([]api.LogEvent, 0, len(converted))
	for _, evt := range converted {
		if jobID != "" && evt.JobID != jobID {
			continue
		}
		if component != "" && !strings.EqualFold(component, evt.Component) {
			continue
		}
		filtered = append(filtered, evt)
	}
	s.writeJSON(w, http.StatusOK, api.LogStreamResponse{Events: filtered, Next: next})
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, api.ErrorResponse{Error: message})
}

func (s *apiServer) writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logging.ErrorWithContext(logging.WithContext(ctx, s.logger), "api request failed", "api_request_failed",
			logging.ErrorAttrs(err)...)
	}
	s.writeJSON(w, status, api.ErrorResponse{
		Error: err.Error(),
		Code:  services.Code(err),
		Hint:  services.Hint(err),
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrNotFound), errors.Is(err, os.ErrNotExist):
		return http.StatusNotFound
	case errors.Is(err, services.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrMalformed):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func parseBool(value string) bool {
	value = strings.TrimSpace(value)
	return value == "1" || strings.EqualFold(value, "true")
}
