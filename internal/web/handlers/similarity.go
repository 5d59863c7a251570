package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/mamage/photo-similarity/internal/constants"
	"github.com/mamage/photo-similarity/internal/query"
)

// SimilarityHandler serves grouping, pair and similar-photo queries.
type SimilarityHandler struct {
	service *query.Service
	jobs    *JobManager
}

// NewSimilarityHandler creates a new similarity handler.
func NewSimilarityHandler(service *query.Service, jobs *JobManager) *SimilarityHandler {
	return &SimilarityHandler{service: service, jobs: jobs}
}

func respondParamError(w http.ResponseWriter, err error) {
	var pe *paramError
	if errors.As(err, &pe) {
		respondError(w, http.StatusBadRequest, pe.Error())
		return
	}
	respondError(w, http.StatusBadRequest, err.Error())
}

// parseGroupsRequest reads grouping parameters, applying the documented defaults.
func parseGroupsRequest(r *http.Request) (query.GroupsRequest, error) {
	q := r.URL.Query()

	projectID, err := int64Param(q, "projectId", 0)
	if err != nil {
		return query.GroupsRequest{}, err
	}
	req := query.DefaultGroupsRequest(projectID)

	req.ModelName = stringParam(q, "modelName", req.ModelName)
	req.Mode = stringParam(q, "mode", req.Mode)
	req.Order = stringParam(q, "order", req.Order)
	if req.Threshold, err = floatParam(q, "threshold", req.Threshold); err != nil {
		return query.GroupsRequest{}, err
	}
	if req.MinSize, err = intParam(q, "minSize", req.MinSize); err != nil {
		return query.GroupsRequest{}, err
	}
	if req.MinInternal, err = floatParam(q, "minInternal", req.MinInternal); err != nil {
		return query.GroupsRequest{}, err
	}
	return req, nil
}

// Groups handles GET /similarity/groups
func (h *SimilarityHandler) Groups(w http.ResponseWriter, r *http.Request) {
	req, err := parseGroupsRequest(r)
	if err != nil {
		respondParamError(w, err)
		return
	}

	resp, err := h.service.Groups(r.Context(), req)
	if err != nil {
		respondQueryError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

// SimpleGroups handles GET /similarity/groups/simple
func (h *SimilarityHandler) SimpleGroups(w http.ResponseWriter, r *http.Request) {
	projectID, err := int64Param(r.URL.Query(), "projectId", 0)
	if err != nil {
		respondParamError(w, err)
		return
	}

	resp, err := h.service.SimpleGroups(r.Context(), projectID)
	if err != nil {
		respondQueryError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

// Pairs handles GET /similarity/pairs
func (h *SimilarityHandler) Pairs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	projectID, err := int64Param(q, "projectId", 0)
	if err != nil {
		respondParamError(w, err)
		return
	}
	minScore, err := floatParam(q, "minScore", constants.DefaultPairsMinScore)
	if err != nil {
		respondParamError(w, err)
		return
	}

	resp, err := h.service.Pairs(r.Context(), query.PairsRequest{
		ProjectID: projectID,
		ModelName: stringParam(q, "modelName", constants.DefaultModel),
		MinScore:  minScore,
	})
	if err != nil {
		respondQueryError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

// similarBody accepts ids as JSON numbers or numeric strings.
type similarBody struct {
	PhotoID   json.Number `json:"photoId"`
	TopK      json.Number `json:"topK"`
	ModelName string      `json:"modelName"`
	ProjectID json.Number `json:"projectId"`
}

func numberField(n json.Number, name string) (int64, error) {
	if n == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(n.String(), 10, 64)
	if err != nil {
		return 0, &paramError{name: name, value: n.String()}
	}
	return v, nil
}

// Query handles POST /similarity/query
func (h *SimilarityHandler) Query(w http.ResponseWriter, r *http.Request) {
	var body similarBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	photoID, err := numberField(body.PhotoID, "photoId")
	if err != nil {
		respondParamError(w, err)
		return
	}
	topK, err := numberField(body.TopK, "topK")
	if err != nil {
		topK = 0 // unparseable topK falls back to the default
	}
	projectID, err := numberField(body.ProjectID, "projectId")
	if err != nil {
		respondParamError(w, err)
		return
	}

	resp, err := h.service.Similar(r.Context(), query.SimilarRequest{
		PhotoID:   photoID,
		TopK:      int(min(topK, int64(constants.MaxTopK))),
		ModelName: body.ModelName,
		ProjectID: projectID,
	})
	if err != nil {
		respondQueryError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

// StartGroupsJob handles POST /similarity/groups/jobs. Parameters are read from the
// query string exactly like Groups and validated before the job is created.
func (h *SimilarityHandler) StartGroupsJob(w http.ResponseWriter, r *http.Request) {
	req, err := parseGroupsRequest(r)
	if err != nil {
		respondParamError(w, err)
		return
	}
	if err := query.ValidateGroups(req); err != nil {
		respondQueryError(w, r, err)
		return
	}

	job := h.jobs.Start(req, h.service.Groups)
	respondJSON(w, http.StatusAccepted, map[string]string{
		"jobId":  job.ID,
		"status": string(job.GetStatus()),
	})
}

// JobStatus handles GET /similarity/groups/jobs/{jobId}
func (h *SimilarityHandler) JobStatus(w http.ResponseWriter, r *http.Request) {
	job := h.jobs.GetJob(chi.URLParam(r, "jobId"))
	if job == nil {
		respondError(w, http.StatusNotFound, "job not found")
		return
	}
	respondJSON(w, http.StatusOK, job)
}

// ListJobs handles GET /similarity/groups/jobs
func (h *SimilarityHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.jobs.ListJobs())
}

// JobEvents streams job events via SSE
func (h *SimilarityHandler) JobEvents(w http.ResponseWriter, r *http.Request) {
	streamSSEEvents(w, r,
		func(id string) SSEJob {
			job := h.jobs.GetJob(id)
			if job == nil {
				return nil
			}
			return job
		},
		func(job SSEJob) any {
			return job
		},
	)
}

// CancelJob handles DELETE /similarity/groups/jobs/{jobId}
func (h *SimilarityHandler) CancelJob(w http.ResponseWriter, r *http.Request) {
	job := h.jobs.GetJob(chi.URLParam(r, "jobId"))
	if job == nil {
		respondError(w, http.StatusNotFound, "job not found")
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"cancelled": job.Cancel()})
}
