package extractor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"ripcast/internal/fileutil"
	"ripcast/internal/jobs"
	"ripcast/internal/logging"
	"ripcast/internal/token"
)

// Runner drives extractions for the job registry. Each job runs as a detached
// task: the HTTP response returns as soon as the job record exists, and every
// failure inside the task is folded into a single registry Fail call.
type Runner struct {
	registry  *jobs.Registry
	tokens    *token.Service
	client    *Client
	workDir   string
	outputDir string
	logger    *slog.Logger
	sem       chan struct{}
}

// NewRunner constructs a runner bounded to maxConcurrent simultaneous
// extractor processes. Extractions are staged in workDir and promoted to
// outputDir only after an integrity-checked copy.
func NewRunner(registry *jobs.Registry, tokens *token.Service, client *Client, workDir, outputDir string, maxConcurrent int, logger *slog.Logger) *Runner {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Runner{
		registry:  registry,
		tokens:    tokens,
		client:    client,
		workDir:   workDir,
		outputDir: outputDir,
		logger:    logging.WithComponent(logger, "extractor"),
		sem:       make(chan struct{}, maxConcurrent),
	}
}

// TryAcquire reserves a process slot without blocking. Callers reject the
// request when no slot is free; work is never queued.
func (r *Runner) TryAcquire() bool {
	select {
	case r.sem <- struct{}{}:
		return true
	default:
		return false
	}
}

// release frees a slot reserved by TryAcquire.
func (r *Runner) release() {
	select {
	case <-r.sem:
	default:
	}
}

// Running reports the number of extractor processes currently holding a slot.
func (r *Runner) Running() int {
	return len(r.sem)
}

// Launch starts the extraction for a created job in the background. The caller
// must have reserved a slot with TryAcquire; Launch always releases it.
func (r *Runner) Launch(jobID, sourceURL, format, filename string) {
	go r.run(jobID, sourceURL, format, filename)
}

func (r *Runner) run(jobID, sourceURL, format, filename string) {
	defer r.release()
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("extraction panicked",
				logging.String("job_id", jobID),
				logging.String("panic", fmt.Sprint(rec)),
			)
			r.registry.Fail(jobID, "internal extraction error")
		}
	}()

	logger := r.logger.With(logging.String("job_id", jobID))
	logger.Info("extraction started", logging.String("format", format))
	started := time.Now()

	r.registry.UpdateStatus(jobID, jobs.StatusFetchingMetadata, "resolving source")

	stem := filename[:len(filename)-len(filepath.Ext(filename))]
	template := filepath.Join(r.workDir, stem+".%(ext)s")

	downloading := false
	_, err := r.client.Extract(context.Background(), sourceURL, format, template, func(update Update) {
		if !downloading {
			downloading = true
			r.registry.UpdateStatus(jobID, jobs.StatusDownloading, "")
		}
		r.registry.UpdateProgress(jobID, jobs.ProgressUpdate{
			Percent: update.Percent,
			Speed:   update.Speed,
			ETA:     update.ETA,
		})
	})
	if err != nil {
		logger.Warn("extraction failed", logging.Error(err), logging.Duration("elapsed", time.Since(started)))
		r.registry.Fail(jobID, err.Error())
		return
	}

	stagedPath := filepath.Join(r.workDir, filename)
	if _, statErr := os.Stat(stagedPath); statErr != nil {
		if errors.Is(statErr, os.ErrNotExist) {
			r.registry.Fail(jobID, "extractor produced no output file")
		} else {
			r.registry.Fail(jobID, "artifact verification failed")
		}
		logger.Warn("artifact missing after extraction", logging.String("artifact", filename))
		return
	}

	artifactPath := filepath.Join(r.outputDir, filename)
	if copyErr := fileutil.CopyFileVerified(stagedPath, artifactPath); copyErr != nil {
		logger.Error("artifact promotion failed", logging.String("artifact", filename), logging.Error(copyErr))
		r.registry.Fail(jobID, "artifact verification failed")
		return
	}
	if removeErr := os.Remove(stagedPath); removeErr != nil {
		logger.Warn("staged artifact cleanup failed", logging.String("artifact", filename), logging.Error(removeErr))
	}

	tok, err := r.tokens.Issue(filename)
	if err != nil {
		logger.Error("token issue failed", logging.Error(err))
		r.registry.Fail(jobID, "failed to authorize artifact retrieval")
		return
	}

	r.registry.Complete(jobID, jobs.Result{Filename: filename, Token: tok})
	logger.Info("extraction completed",
		logging.String("artifact", filename),
		logging.Duration("elapsed", time.Since(started)),
	)
}
