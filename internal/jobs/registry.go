package jobs

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"ripcast/internal/logging"
)

// Registry is the single source of truth for live job state. All mutations on
// a given job are serialized under one lock, so updates from the HTTP path,
// the detached extractor tasks, and the sweeper never interleave mid-record.
type Registry struct {
	mu   sync.Mutex
	jobs map[string]*job

	retention time.Duration
	grace     time.Duration
	logger    *slog.Logger
	now       func() time.Time
	finished  func(Snapshot)
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock injects a time source (primarily for tests).
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// WithFinishedHook registers a callback invoked once per job, with the job's
// terminal snapshot, after Complete or Fail lands. The callback runs outside
// the registry lock.
func WithFinishedHook(hook func(Snapshot)) Option {
	return func(r *Registry) {
		r.finished = hook
	}
}

// NewRegistry constructs a registry with the given retention window and
// stream-close grace delay.
func NewRegistry(retention, grace time.Duration, logger *slog.Logger, opts ...Option) *Registry {
	r := &Registry{
		jobs:      make(map[string]*job),
		retention: retention,
		grace:     grace,
		logger:    logging.WithComponent(logger, "jobs"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create allocates a new job in the initializing state and returns its id.
func (r *Registry) Create(sourceURL, format, customName string) string {
	id := uuid.NewString()
	j := &job{
		id:         id,
		sourceURL:  sourceURL,
		format:     format,
		customName: customName,
		status:     StatusInitializing,
		createdAt:  r.now().UTC(),
		hub:        newHub(),
	}
	r.mu.Lock()
	r.jobs[id] = j
	r.mu.Unlock()
	return id
}

// Exists reports whether the job is still tracked.
func (r *Registry) Exists(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.jobs[id]
	return ok
}

// Snapshot returns a copy of the job's current state.
func (r *Registry) Snapshot(id string) (Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return Snapshot{}, false
	}
	return j.snapshot(), true
}

// Active returns snapshots of every tracked job, newest first omitted; callers
// sort as needed.
func (r *Registry) Active() []Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Snapshot, 0, len(r.jobs))
	for _, j := range r.jobs {
		out = append(out, j.snapshot())
	}
	return out
}

// UpdateStatus advances a job's status. Backward transitions and updates to
// terminal jobs are ignored.
func (r *Registry) UpdateStatus(id string, status Status, message string) {
	r.mu.Lock()
	j, ok := r.jobs[id]
	if !ok || j.status.Terminal() || statusRank[status] <= statusRank[j.status] || status.Terminal() {
		r.mu.Unlock()
		return
	}
	j.status = status
	j.message = message
	frame := Frame{Type: FrameStatus, Status: status, Progress: j.progress, Message: message}
	hub := j.hub
	r.mu.Unlock()

	hub.publish(frame)
}

// UpdateProgress applies a parsed progress line. Progress never decreases once
// a job is downloading; speed and eta are last-write-wins display strings.
func (r *Registry) UpdateProgress(id string, update ProgressUpdate) {
	r.mu.Lock()
	j, ok := r.jobs[id]
	if !ok || j.status.Terminal() {
		r.mu.Unlock()
		return
	}
	if update.Percent >= 0 {
		percent := update.Percent
		if percent > 100 {
			percent = 100
		}
		if percent > j.progress {
			j.progress = percent
		}
	}
	if update.Speed != "" {
		j.speed = update.Speed
	}
	if update.ETA != "" {
		j.eta = update.ETA
	}
	frame := Frame{Type: FrameProgress, Status: j.status, Progress: j.progress, Speed: j.speed, ETA: j.eta}
	hub := j.hub
	r.mu.Unlock()

	hub.publish(frame)
}

// Complete marks a job completed with its artifact result. A second terminal
// call is a no-op.
func (r *Registry) Complete(id string, result Result) {
	r.mu.Lock()
	j, ok := r.jobs[id]
	if !ok || j.status.Terminal() {
		r.mu.Unlock()
		return
	}
	j.status = StatusCompleted
	j.progress = 100
	j.finishedAt = r.now().UTC()
	j.result = &result
	frame := Frame{
		Type:     FrameComplete,
		Status:   StatusCompleted,
		Progress: 100,
		Filename: result.Filename,
		Token:    result.Token,
	}
	hub := j.hub
	snap := j.snapshot()
	r.mu.Unlock()

	hub.publish(frame)
	hub.scheduleClose(r.grace)
	r.notifyFinished(snap)
}

// Fail marks a job failed with the extractor's diagnostic text. A second
// terminal call is a no-op.
func (r *Registry) Fail(id string, errMsg string) {
	r.mu.Lock()
	j, ok := r.jobs[id]
	if !ok || j.status.Terminal() {
		r.mu.Unlock()
		return
	}
	j.status = StatusFailed
	j.finishedAt = r.now().UTC()
	j.errMsg = errMsg
	frame := Frame{Type: FrameError, Status: StatusFailed, Progress: j.progress, Error: errMsg}
	hub := j.hub
	snap := j.snapshot()
	r.mu.Unlock()

	hub.publish(frame)
	hub.scheduleClose(r.grace)
	r.notifyFinished(snap)
}

// Subscribe attaches a new push-channel sink to the job. The returned
// subscription's first frame is always the connected snapshot. ok is false
// when the job is unknown or already swept.
//
// The sink is attached while the registry lock is held, so no state change can
// publish between snapshotting the job and registering the sink. Publishers
// only take the hub lock after releasing the registry lock, so the nested
// acquisition here cannot deadlock.
func (r *Registry) Subscribe(id string) (*Subscription, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return nil, false
	}
	return j.hub.attach(j.connectedFrame()), true
}

// SubscriberCount reports how many sinks a job currently has.
func (r *Registry) SubscriberCount(id string) int {
	r.mu.Lock()
	j, ok := r.jobs[id]
	r.mu.Unlock()
	if !ok {
		return 0
	}
	return j.hub.subscriberCount()
}

// Sweep removes terminal jobs whose terminal timestamp is older than the
// retention window, force-closing any still-open subscriber channels first.
// It returns the number of jobs removed.
func (r *Registry) Sweep() int {
	cutoff := r.now().UTC().Add(-r.retention)

	r.mu.Lock()
	var swept []*job
	for id, j := range r.jobs {
		if j.status.Terminal() && !j.finishedAt.IsZero() && j.finishedAt.Before(cutoff) {
			swept = append(swept, j)
			delete(r.jobs, id)
		}
	}
	r.mu.Unlock()

	for _, j := range swept {
		j.hub.closeAll()
		r.logger.Debug("job swept", logging.String("job_id", j.id), logging.String("status", string(j.status)))
	}
	return len(swept)
}

// Counts returns the number of active and terminal jobs currently tracked.
func (r *Registry) Counts() (active, terminal int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, j := range r.jobs {
		if j.status.Terminal() {
			terminal++
		} else {
			active++
		}
	}
	return active, terminal
}

func (r *Registry) notifyFinished(snap Snapshot) {
	if r.finished == nil {
		return
	}
	r.finished(snap)
}
