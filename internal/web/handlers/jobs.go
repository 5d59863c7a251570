package handlers

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mamage/photo-similarity/internal/constants"
	"github.com/mamage/photo-similarity/internal/query"
)

// JobStatus represents the status of an async job.
type JobStatus string

// JobStatus constants define the lifecycle states of an async job.
const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// JobEvent represents an event from a job.
type JobEvent struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// EventBroadcaster provides listener management and event broadcasting for async jobs.
// Embed this in job structs to get AddListener, RemoveListener, and SendEvent methods.
type EventBroadcaster struct {
	cancel    context.CancelFunc
	listeners []chan JobEvent
	mu        sync.RWMutex
}

// AddListener adds an event listener.
func (b *EventBroadcaster) AddListener() chan JobEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan JobEvent, constants.EventChannelBuffer)
	b.listeners = append(b.listeners, ch)
	return ch
}

// RemoveListener removes an event listener.
func (b *EventBroadcaster) RemoveListener(ch chan JobEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, listener := range b.listeners {
		if listener == ch {
			b.listeners = append(b.listeners[:i], b.listeners[i+1:]...)
			close(ch)
			return
		}
	}
}

// SendEvent sends an event to all listeners.
func (b *EventBroadcaster) SendEvent(event JobEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, listener := range b.listeners {
		select {
		case listener <- event:
		default:
			// Listener buffer full, skip.
		}
	}
}

// SSEJob is the interface required by streamSSEEvents to stream job events via SSE.
type SSEJob interface {
	AddListener() chan JobEvent
	RemoveListener(ch chan JobEvent)
	GetStatus() JobStatus
}

// GroupingJob is an asynchronous grouping request.
type GroupingJob struct {
	EventBroadcaster

	ID          string
	Request     query.GroupsRequest
	Status      JobStatus
	Error       string
	StartedAt   time.Time
	CompletedAt *time.Time
	Result      *query.GroupsResponse
}

type groupingJobJSON struct {
	ID          string                `json:"id"`
	Status      JobStatus             `json:"status"`
	Request     query.GroupsRequest   `json:"request"`
	Error       string                `json:"error,omitempty"`
	StartedAt   time.Time             `json:"started_at"`
	CompletedAt *time.Time            `json:"completed_at,omitempty"`
	Result      *query.GroupsResponse `json:"result,omitempty"`
}

// MarshalJSON renders a consistent snapshot of the job.
func (j *GroupingJob) MarshalJSON() ([]byte, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return json.Marshal(groupingJobJSON{
		ID:          j.ID,
		Status:      j.Status,
		Request:     j.Request,
		Error:       j.Error,
		StartedAt:   j.StartedAt,
		CompletedAt: j.CompletedAt,
		Result:      j.Result,
	})
}

// GetStatus returns the current job status (implements SSEJob).
func (j *GroupingJob) GetStatus() JobStatus {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status
}

// Cancel stops the job. Finished jobs are left as they are.
func (j *GroupingJob) Cancel() bool {
	j.mu.Lock()
	if isJobTerminal(j.Status) {
		j.mu.Unlock()
		return false
	}
	j.Status = JobStatusCancelled
	now := time.Now()
	j.CompletedAt = &now
	cancel := j.cancel
	j.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	j.SendEvent(JobEvent{Type: "cancelled", Message: "Job cancelled by user"})
	return true
}

// finish records the outcome unless the job was cancelled meanwhile.
func (j *GroupingJob) finish(result *query.GroupsResponse, err error) {
	j.mu.Lock()
	if j.Status == JobStatusCancelled {
		j.mu.Unlock()
		return
	}
	now := time.Now()
	j.CompletedAt = &now
	event := JobEvent{Type: "completed", Message: "Grouping completed"}
	if err != nil {
		j.Status = JobStatusFailed
		j.Error = err.Error()
		event = JobEvent{Type: "failed", Message: j.Error}
	} else {
		j.Status = JobStatusCompleted
		j.Result = result
		event.Data = map[string]int{"groups": len(result.Groups)}
	}
	j.mu.Unlock()

	j.SendEvent(event)
}

// GroupsRunner computes the result of a grouping job.
type GroupsRunner func(ctx context.Context, req query.GroupsRequest) (*query.GroupsResponse, error)

// JobManager manages async jobs.
type JobManager struct {
	jobs map[string]*GroupingJob
	mu   sync.RWMutex
	wg   sync.WaitGroup
}

// NewJobManager creates a new job manager.
func NewJobManager() *JobManager {
	return &JobManager{
		jobs: make(map[string]*GroupingJob),
	}
}

// Start registers a job and runs it in the background.
func (m *JobManager) Start(req query.GroupsRequest, run GroupsRunner) *GroupingJob {
	ctx, cancel := context.WithCancel(context.Background())
	job := &GroupingJob{
		ID:        uuid.New().String(),
		Request:   req,
		Status:    JobStatusRunning,
		StartedAt: time.Now(),
	}
	job.cancel = cancel

	m.mu.Lock()
	m.jobs[job.ID] = job
	m.pruneLocked()
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer cancel()
		job.SendEvent(JobEvent{Type: "started", Message: "Grouping started"})
		result, err := run(ctx, req)
		job.finish(result, err)
	}()

	return job
}

// pruneLocked drops the oldest finished jobs beyond the retention limit.
func (m *JobManager) pruneLocked() {
	excess := len(m.jobs) - constants.MaxRetainedJobs
	if excess <= 0 {
		return
	}
	finished := make([]*GroupingJob, 0, len(m.jobs))
	for _, job := range m.jobs {
		if isJobTerminal(job.GetStatus()) {
			finished = append(finished, job)
		}
	}
	sort.Slice(finished, func(a, b int) bool {
		return finished[a].StartedAt.Before(finished[b].StartedAt)
	})
	for i := 0; i < excess && i < len(finished); i++ {
		delete(m.jobs, finished[i].ID)
	}
}

// GetJob retrieves a job by ID.
func (m *JobManager) GetJob(id string) *GroupingJob {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.jobs[id]
}

// ListJobs returns all jobs, newest first.
func (m *JobManager) ListJobs() []*GroupingJob {
	m.mu.RLock()
	defer m.mu.RUnlock()
	jobs := make([]*GroupingJob, 0, len(m.jobs))
	for _, job := range m.jobs {
		jobs = append(jobs, job)
	}
	sort.Slice(jobs, func(a, b int) bool {
		return jobs[a].StartedAt.After(jobs[b].StartedAt)
	})
	return jobs
}

// Shutdown cancels running jobs and waits for them to return.
func (m *JobManager) Shutdown() {
	for _, job := range m.ListJobs() {
		job.Cancel()
	}
	m.wg.Wait()
}
