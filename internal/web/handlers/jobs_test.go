package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mamage/photo-similarity/internal/query"
)

// waitForStatus polls until the job leaves the running state.
func waitForStatus(t *testing.T, job *GroupingJob, want JobStatus) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if job.GetStatus() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s: expected status %s, got %s", job.ID, want, job.GetStatus())
}

func blockingRunner(release <-chan struct{}) GroupsRunner {
	return func(ctx context.Context, req query.GroupsRequest) (*query.GroupsResponse, error) {
		select {
		case <-release:
			return &query.GroupsResponse{ModelName: req.ModelName, Groups: [][]int64{{1, 2}}}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func TestJobManager_CompletesJob(t *testing.T) {
	jm := NewJobManager()
	defer jm.Shutdown()

	release := make(chan struct{})
	job := jm.Start(query.DefaultGroupsRequest(1), blockingRunner(release))

	if job.GetStatus() != JobStatusRunning {
		t.Errorf("expected running, got %s", job.GetStatus())
	}
	if jm.GetJob(job.ID) != job {
		t.Error("expected job to be retrievable by ID")
	}

	close(release)
	waitForStatus(t, job, JobStatusCompleted)

	job.mu.RLock()
	defer job.mu.RUnlock()
	if job.Result == nil || len(job.Result.Groups) != 1 {
		t.Errorf("expected one group in result, got %+v", job.Result)
	}
	if job.CompletedAt == nil {
		t.Error("expected CompletedAt to be set")
	}
}

func TestJobManager_FailedJob(t *testing.T) {
	jm := NewJobManager()
	defer jm.Shutdown()

	job := jm.Start(query.DefaultGroupsRequest(1), func(context.Context, query.GroupsRequest) (*query.GroupsResponse, error) {
		return nil, errors.New("store unavailable")
	})
	waitForStatus(t, job, JobStatusFailed)

	job.mu.RLock()
	defer job.mu.RUnlock()
	if job.Error != "store unavailable" {
		t.Errorf("expected error message, got %q", job.Error)
	}
}

func TestJobManager_CancelRunningJob(t *testing.T) {
	jm := NewJobManager()

	job := jm.Start(query.DefaultGroupsRequest(1), blockingRunner(make(chan struct{})))
	if !job.Cancel() {
		t.Fatal("expected Cancel to succeed on a running job")
	}
	if job.Cancel() {
		t.Error("expected second Cancel to report false")
	}

	jm.Shutdown()
	if job.GetStatus() != JobStatusCancelled {
		t.Errorf("expected cancelled, got %s", job.GetStatus())
	}
}

func TestJobManager_ShutdownCancelsJobs(t *testing.T) {
	jm := NewJobManager()
	a := jm.Start(query.DefaultGroupsRequest(1), blockingRunner(make(chan struct{})))
	b := jm.Start(query.DefaultGroupsRequest(2), blockingRunner(make(chan struct{})))

	jm.Shutdown()

	for _, job := range []*GroupingJob{a, b} {
		if job.GetStatus() != JobStatusCancelled {
			t.Errorf("job %s: expected cancelled, got %s", job.ID, job.GetStatus())
		}
	}
}

func TestJobManager_ListJobsNewestFirst(t *testing.T) {
	jm := NewJobManager()
	defer jm.Shutdown()

	first := jm.Start(query.DefaultGroupsRequest(1), blockingRunner(make(chan struct{})))
	time.Sleep(2 * time.Millisecond)
	second := jm.Start(query.DefaultGroupsRequest(2), blockingRunner(make(chan struct{})))

	jobs := jm.ListJobs()
	if len(jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(jobs))
	}
	if jobs[0] != second || jobs[1] != first {
		t.Error("expected newest job first")
	}
}

func TestSimilarityHandler_StartGroupsJob(t *testing.T) {
	handler := newTestSimilarityHandler(t)
	defer handler.jobs.Shutdown()

	req := httptest.NewRequest("POST", "/api/v1/similarity/groups/jobs?projectId=1", nil)
	recorder := httptest.NewRecorder()
	handler.StartGroupsJob(recorder, req)

	assertStatusCode(t, recorder, http.StatusAccepted)

	var resp map[string]string
	parseJSONResponse(t, recorder, &resp)
	job := handler.jobs.GetJob(resp["jobId"])
	if job == nil {
		t.Fatalf("job %q not registered", resp["jobId"])
	}
	waitForStatus(t, job, JobStatusCompleted)

	statusReq := requestWithChiParams(httptest.NewRequest("GET", "/api/v1/similarity/groups/jobs/"+job.ID, nil),
		map[string]string{"jobId": job.ID})
	statusRec := httptest.NewRecorder()
	handler.JobStatus(statusRec, statusReq)

	assertStatusCode(t, statusRec, http.StatusOK)

	var snapshot struct {
		ID     string                `json:"id"`
		Status string                `json:"status"`
		Result *query.GroupsResponse `json:"result"`
	}
	parseJSONResponse(t, statusRec, &snapshot)
	if snapshot.Status != "completed" {
		t.Errorf("expected completed, got %q", snapshot.Status)
	}
	if snapshot.Result == nil || len(snapshot.Result.Groups) != 1 {
		t.Errorf("expected one group, got %+v", snapshot.Result)
	}
}

func TestSimilarityHandler_StartGroupsJob_Invalid(t *testing.T) {
	handler := newTestSimilarityHandler(t)

	req := httptest.NewRequest("POST", "/api/v1/similarity/groups/jobs?projectId=1&mode=fuzzy", nil)
	recorder := httptest.NewRecorder()
	handler.StartGroupsJob(recorder, req)

	assertStatusCode(t, recorder, http.StatusBadRequest)
	if len(handler.jobs.ListJobs()) != 0 {
		t.Error("expected no job to be created for an invalid request")
	}
}

func TestSimilarityHandler_JobNotFound(t *testing.T) {
	handler := newTestSimilarityHandler(t)

	for name, fn := range map[string]http.HandlerFunc{
		"status": handler.JobStatus,
		"cancel": handler.CancelJob,
		"events": handler.JobEvents,
	} {
		t.Run(name, func(t *testing.T) {
			req := requestWithChiParams(httptest.NewRequest("GET", "/", nil), map[string]string{"jobId": "missing"})
			recorder := httptest.NewRecorder()
			fn(recorder, req)
			assertStatusCode(t, recorder, http.StatusNotFound)
			assertJSONError(t, recorder, "job not found")
		})
	}
}

func TestSimilarityHandler_CancelJob(t *testing.T) {
	handler := newTestSimilarityHandler(t)
	job := handler.jobs.Start(query.DefaultGroupsRequest(1), blockingRunner(make(chan struct{})))

	req := requestWithChiParams(httptest.NewRequest("DELETE", "/", nil), map[string]string{"jobId": job.ID})
	recorder := httptest.NewRecorder()
	handler.CancelJob(recorder, req)

	assertStatusCode(t, recorder, http.StatusOK)
	var resp map[string]bool
	parseJSONResponse(t, recorder, &resp)
	if !resp["cancelled"] {
		t.Error("expected cancelled=true")
	}

	handler.jobs.Shutdown()
	if job.GetStatus() != JobStatusCancelled {
		t.Errorf("expected cancelled, got %s", job.GetStatus())
	}
}

func TestSimilarityHandler_JobEvents_FinishedJob(t *testing.T) {
	handler := newTestSimilarityHandler(t)
	defer handler.jobs.Shutdown()

	release := make(chan struct{})
	close(release)
	job := handler.jobs.Start(query.DefaultGroupsRequest(1), blockingRunner(release))
	waitForStatus(t, job, JobStatusCompleted)

	req := requestWithChiParams(httptest.NewRequest("GET", "/", nil), map[string]string{"jobId": job.ID})
	recorder := httptest.NewRecorder()
	handler.JobEvents(recorder, req)

	assertContentType(t, recorder, "text/event-stream")
	body := recorder.Body.String()
	if !strings.HasPrefix(body, "event: status\n") {
		t.Errorf("expected initial status event, got %q", body)
	}
	if !strings.Contains(body, `"status":"completed"`) {
		t.Errorf("expected completed snapshot, got %q", body)
	}
}

func TestSimilarityHandler_JobEvents_Streams(t *testing.T) {
	handler := newTestSimilarityHandler(t)
	defer handler.jobs.Shutdown()

	release := make(chan struct{})
	job := handler.jobs.Start(query.DefaultGroupsRequest(1), blockingRunner(release))

	req := requestWithChiParams(httptest.NewRequest("GET", "/", nil), map[string]string{"jobId": job.ID})
	recorder := httptest.NewRecorder()
	done := make(chan struct{})
	go func() {
		defer close(done)
		handler.JobEvents(recorder, req)
	}()

	// Release the job only once the stream is subscribed.
	deadline := time.Now().Add(5 * time.Second)
	for {
		job.mu.RLock()
		subscribed := len(job.listeners) > 0
		job.mu.RUnlock()
		if subscribed {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("stream never subscribed")
		}
		time.Sleep(time.Millisecond)
	}
	close(release)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not end after the job completed")
	}

	body := recorder.Body.String()
	if !strings.Contains(body, "event: completed\n") {
		t.Errorf("expected completed event, got %q", body)
	}
}
