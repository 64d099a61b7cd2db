package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"ripcast/internal/api"
	"ripcast/internal/config"
	"ripcast/internal/logging"
	"ripcast/internal/ratelimit"
	"ripcast/internal/validate"
)

type apiServer struct {
	bind      string
	apiToken  string
	outputDir string
	logger    *slog.Logger
	daemon    *Daemon
	validator *validate.Validator

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger, validator *validate.Validator) *apiServer {
	srv := &apiServer{
		bind:      strings.TrimSpace(cfg.Paths.APIBind),
		apiToken:  strings.TrimSpace(cfg.Paths.APIToken),
		outputDir: cfg.Paths.OutputDir,
		logger:    logging.WithComponent(logger, "api-server"),
		daemon:    d,
		validator: validator,
	}

	mux := http.NewServeMux()
	// Status is exempt from rate limiting so monitoring never competes with
	// client traffic for the request budget.
	mux.HandleFunc("/api/status", srv.handleStatus)
	mux.HandleFunc("/api/jobs", srv.limited(srv.handleJobs))
	mux.HandleFunc("/api/jobs/", srv.limited(srv.handleJobItem))
	mux.HandleFunc("/api/downloads/", srv.limited(srv.handleDownload))
	mux.HandleFunc("/api/history", srv.limited(srv.handleHistory))

	srv.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
		// No WriteTimeout: event streams stay open for the life of a job.
	}
	return srv
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
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
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

// Addr returns the bound listen address, useful when the bind port is 0.
func (s *apiServer) Addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// limited wraps a handler with the per-client request cap. Rejections are
// immediate; requests are never queued behind the limiter.
func (s *apiServer) limited(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.daemon.limiter.AllowRequest(clientID(r)) {
			s.writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next(w, r)
	}
}

// clientID identifies the caller for rate limiting purposes by remote IP.
func clientID(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	status := s.daemon.Status(r.Context())
	dependencies := make([]api.DependencyStatus, len(status.Dependencies))
	for i, dep := range status.Dependencies {
		dependencies[i] = api.DependencyStatus{
			Name:        dep.Name,
			Command:     dep.Command,
			Description: dep.Description,
			Optional:    dep.Optional,
			Available:   dep.Available,
			Detail:      dep.Detail,
		}
	}
	s.writeJSON(w, http.StatusOK, api.DaemonStatus{
		Running:            status.Running,
		PID:                status.PID,
		ActiveJobs:         status.ActiveJobs,
		TerminalJobs:       status.TerminalJobs,
		RunningExtractions: status.RunningExtractions,
		MaxExtractions:     status.MaxExtractions,
		History:            status.History,
		Dependencies:       dependencies,
	})
}

func (s *apiServer) handleJobs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listJobs(w, r)
	case http.MethodPost:
		s.createJob(w, r)
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *apiServer) listJobs(w http.ResponseWriter, _ *http.Request) {
	snapshots := s.daemon.registry.Active()
	s.writeJSON(w, http.StatusOK, api.JobListResponse{Jobs: snapshots})
}

func (s *apiServer) createJob(w http.ResponseWriter, r *http.Request) {
	var req api.CreateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sourceURL, err := s.validator.SourceURL(req.URL)
	if err != nil {
		s.writeValidationError(w, err)
		return
	}
	format, err := s.validator.Format(req.Format)
	if err != nil {
		s.writeValidationError(w, err)
		return
	}
	customName, err := s.validator.OptionalName(req.CustomName)
	if err != nil {
		s.writeValidationError(w, err)
		return
	}

	if !s.applyJobLimit(w, r) {
		return
	}
	jobID, ok := s.launch(w, sourceURL, format, customName)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, api.CreateJobResponse{JobID: jobID})
}

func (s *apiServer) createBatch(w http.ResponseWriter, r *http.Request) {
	var req api.CreateBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	urls, err := s.validator.URLBatch(req.URLs)
	if err != nil {
		s.writeValidationError(w, err)
		return
	}
	format, err := s.validator.Format(req.Format)
	if err != nil {
		s.writeValidationError(w, err)
		return
	}

	jobIDs := make([]string, 0, len(urls))
	for i, sourceURL := range urls {
		if !s.applyJobLimit(w, r) {
			return
		}
		jobID, ok := s.launchBatchElement(w, sourceURL, format, i)
		if !ok {
			return
		}
		jobIDs = append(jobIDs, jobID)
	}
	s.writeJSON(w, http.StatusOK, api.CreateBatchResponse{JobIDs: jobIDs})
}

// applyJobLimit enforces the strict job cap, applying the progressive burst
// delay before proceeding. It reports whether the request may continue.
func (s *apiServer) applyJobLimit(w http.ResponseWriter, r *http.Request) bool {
	delay, allowed := s.daemon.limiter.AllowJob(clientID(r))
	if !allowed {
		s.writeError(w, http.StatusTooManyRequests, "job creation limit exceeded")
		return false
	}
	if err := ratelimit.SleepWithContext(r.Context(), delay); err != nil {
		// Client went away during the burst delay.
		return false
	}
	return true
}

// launch reserves an extraction slot, creates the job record, and starts the
// detached extraction. Capacity exhaustion is rejected, never queued.
func (s *apiServer) launch(w http.ResponseWriter, sourceURL, format, customName string) (string, bool) {
	if !s.daemon.runner.TryAcquire() {
		s.writeError(w, http.StatusTooManyRequests, "extraction capacity reached")
		return "", false
	}
	jobID := s.daemon.registry.Create(sourceURL, format, customName)
	s.daemon.runner.Launch(jobID, sourceURL, format, artifactFilename(customName, jobID, format))
	return jobID, true
}

func (s *apiServer) launchBatchElement(w http.ResponseWriter, sourceURL, format string, index int) (string, bool) {
	if !s.daemon.runner.TryAcquire() {
		idx := index
		s.writeJSON(w, http.StatusTooManyRequests, api.ErrorResponse{
			Error: "extraction capacity reached",
			Field: "urls",
			Index: &idx,
		})
		return "", false
	}
	jobID := s.daemon.registry.Create(sourceURL, format, "")
	s.daemon.runner.Launch(jobID, sourceURL, format, artifactFilename("", jobID, format))
	return jobID, true
}

// artifactFilename derives the output filename: the sanitized custom name when
// present, otherwise the job id, with the audio format as extension.
func artifactFilename(customName, jobID, format string) string {
	stem := strings.TrimSpace(customName)
	if stem == "" {
		stem = jobID
	}
	return stem + "." + format
}

func (s *apiServer) handleJobItem(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
	if rest == "batch" {
		if r.Method != http.MethodPost {
			s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		s.createBatch(w, r)
		return
	}
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	id, tail, _ := strings.Cut(rest, "/")
	if id == "" {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}
	switch tail {
	case "":
		s.describeJob(w, id)
	case "events":
		s.streamEvents(w, r, id)
	default:
		s.writeError(w, http.StatusNotFound, "job not found")
	}
}

func (s *apiServer) describeJob(w http.ResponseWriter, id string) {
	snap, ok := s.daemon.registry.Snapshot(id)
	if !ok {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}
	s.writeJSON(w, http.StatusOK, api.JobResponse{Job: snap})
}

// streamEvents serves the job's push channel as a server-sent event stream.
// The first frame is always the connected snapshot; the stream ends shortly
// after a terminal frame or when the client disconnects.
func (s *apiServer) streamEvents(w http.ResponseWriter, r *http.Request, id string) {
	sub, ok := s.daemon.registry.Subscribe(id)
	if !ok {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}
	defer sub.Close()

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case frame, open := <-sub.Frames():
			if !open {
				return
			}
			payload, err := json.Marshal(frame)
			if err != nil {
				s.logger.Error("frame encode failed", logging.String("job_id", id), logging.Error(err))
				continue
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// handleDownload is the one-shot retrieval gateway. Every token failure maps
// to the same access-denied response so callers cannot probe for artifact
// existence; only an authorized caller learns whether the file is present.
func (s *apiServer) handleDownload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	filename := strings.TrimPrefix(r.URL.Path, "/api/downloads/")
	if filename == "" || strings.Contains(filename, "/") {
		s.writeError(w, http.StatusNotFound, "not found")
		return
	}

	tok := strings.TrimSpace(r.URL.Query().Get("token"))
	if tok == "" {
		s.writeError(w, http.StatusUnauthorized, "token required")
		return
	}
	if err := s.daemon.tokens.Validate(tok, filename); err != nil {
		s.writeError(w, http.StatusForbidden, "access denied")
		return
	}

	path, err := s.confine(filename)
	if err != nil {
		s.writeError(w, http.StatusForbidden, "access denied")
		return
	}

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	http.ServeFile(w, r, path)
}

// confine resolves filename strictly inside the output directory, rejecting
// anything whose cleaned path escapes it.
func (s *apiServer) confine(filename string) (string, error) {
	if filepath.Base(filename) != filename || filename == "." || filename == ".." {
		return "", errors.New("filename escapes output directory")
	}
	path := filepath.Join(s.outputDir, filename)
	rel, err := filepath.Rel(s.outputDir, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", errors.New("filename escapes output directory")
	}
	return path, nil
}

func (s *apiServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if !s.authorized(r) {
		s.writeError(w, http.StatusUnauthorized, "authorization required")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	records, err := s.daemon.archive.List(r.Context(), limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, api.HistoryResponse{Records: records})
}

// authorized checks the optional bearer token. When no API token is
// configured every caller is authorized.
func (s *apiServer) authorized(r *http.Request) bool {
	if s.apiToken == "" {
		return true
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return false
	}
	return strings.TrimSpace(strings.TrimPrefix(header, prefix)) == s.apiToken
}

func (s *apiServer) writeValidationError(w http.ResponseWriter, err error) {
	var fieldErr *validate.FieldError
	if errors.As(err, &fieldErr) {
		resp := api.ErrorResponse{Error: fieldErr.Error(), Field: fieldErr.Field}
		if fieldErr.Index >= 0 {
			idx := fieldErr.Index
			resp.Index = &idx
		}
		s.writeJSON(w, http.StatusBadRequest, resp)
		return
	}
	s.writeError(w, http.StatusBadRequest, err.Error())
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
