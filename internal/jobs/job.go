package jobs

import "time"

// Status represents the lifecycle of a job. Transitions are strictly forward;
// completed and failed are terminal.
type Status string

const (
	StatusInitializing     Status = "initializing"
	StatusFetchingMetadata Status = "fetching_metadata"
	StatusDownloading      Status = "downloading"
	StatusCompleted        Status = "completed"
	StatusFailed           Status = "failed"
)

var statusRank = map[Status]int{
	StatusInitializing:     0,
	StatusFetchingMetadata: 1,
	StatusDownloading:      2,
	StatusCompleted:        3,
	StatusFailed:           3,
}

// Terminal reports whether no further transitions are accepted.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Result holds the artifact reference minted when a job completes.
type Result struct {
	Filename string `json:"filename"`
	Token    string `json:"token"`
}

// ProgressUpdate carries one parsed progress line from the extractor.
// Percent below zero means "no percentage on this line".
type ProgressUpdate struct {
	Percent float64
	Speed   string
	ETA     string
}

// FrameType discriminates the event frames pushed to subscribers.
type FrameType string

const (
	FrameConnected FrameType = "connected"
	FrameStatus    FrameType = "status"
	FrameProgress  FrameType = "progress"
	FrameComplete  FrameType = "complete"
	FrameError     FrameType = "error"
)

// Frame is one event delivered over a job's push channel. Each subscriber
// serializes frames independently.
type Frame struct {
	Type     FrameType `json:"type"`
	Status   Status    `json:"status,omitempty"`
	Progress float64   `json:"progress"`
	Speed    string    `json:"speed,omitempty"`
	ETA      string    `json:"eta,omitempty"`
	Message  string    `json:"message,omitempty"`
	Filename string    `json:"filename,omitempty"`
	Token    string    `json:"token,omitempty"`
	Error    string    `json:"error,omitempty"`
}

// Snapshot is a copy of a job's externally visible state.
type Snapshot struct {
	ID         string     `json:"id"`
	SourceURL  string     `json:"source_url"`
	Format     string     `json:"format"`
	CustomName string     `json:"custom_name,omitempty"`
	Status     Status     `json:"status"`
	Progress   float64    `json:"progress"`
	Speed      string     `json:"speed,omitempty"`
	ETA        string     `json:"eta,omitempty"`
	Message    string     `json:"message,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Result     *Result    `json:"result,omitempty"`
	Error      string     `json:"error,omitempty"`
}

type job struct {
	id         string
	sourceURL  string
	format     string
	customName string
	status     Status
	progress   float64
	speed      string
	eta        string
	message    string
	createdAt  time.Time
	finishedAt time.Time
	result     *Result
	errMsg     string
	hub        *hub
}

func (j *job) snapshot() Snapshot {
	snap := Snapshot{
		ID:         j.id,
		SourceURL:  j.sourceURL,
		Format:     j.format,
		CustomName: j.customName,
		Status:     j.status,
		Progress:   j.progress,
		Speed:      j.speed,
		ETA:        j.eta,
		Message:    j.message,
		CreatedAt:  j.createdAt,
		Error:      j.errMsg,
	}
	if !j.finishedAt.IsZero() {
		finished := j.finishedAt
		snap.FinishedAt = &finished
	}
	if j.result != nil {
		result := *j.result
		snap.Result = &result
	}
	return snap
}

func (j *job) connectedFrame() Frame {
	frame := Frame{
		Type:     FrameConnected,
		Status:   j.status,
		Progress: j.progress,
		Speed:    j.speed,
		ETA:      j.eta,
		Message:  j.message,
	}
	if j.result != nil {
		frame.Filename = j.result.Filename
	}
	if j.status == StatusFailed {
		frame.Error = j.errMsg
	}
	return frame
}
