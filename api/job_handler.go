package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jobmill/jobmill"
	"github.com/jobmill/jobmill/id"
	"github.com/jobmill/jobmill/job"
)

const defaultListLimit = 50

// createJobRequest is the enqueue payload.
type createJobRequest struct {
	Type        string          `json:"type"`
	Params      json.RawMessage `json:"params,omitempty"`
	Priority    int             `json:"priority,omitempty"`
	TimeoutMS   int64           `json:"timeout_ms,omitempty"`
	ScheduledAt *time.Time      `json:"scheduled_at,omitempty"`
	TargetID    string          `json:"target_id,omitempty"`
	PrincipalID string          `json:"principal_id,omitempty"`
}

func (a *API) createJob(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if req.Type == "" {
		a.writeError(w, http.StatusBadRequest, "type is required")
		return
	}

	opts := []job.Option{
		job.WithPriority(req.Priority),
		job.WithTargetID(req.TargetID),
		job.WithPrincipalID(req.PrincipalID),
	}
	if req.TimeoutMS > 0 {
		opts = append(opts, job.WithTimeout(time.Duration(req.TimeoutMS)*time.Millisecond))
	}
	if req.ScheduledAt != nil {
		opts = append(opts, job.WithScheduledAt(*req.ScheduledAt))
	}

	rec, err := a.eng.CreateJob(r.Context(), req.Type, req.Params, opts...)
	if err != nil {
		if errors.Is(err, jobmill.ErrUnknownJobType) {
			a.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		a.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	a.writeJSON(w, http.StatusCreated, rec)
}

func (a *API) listJobs(w http.ResponseWriter, r *http.Request) {
	status := job.Status(r.URL.Query().Get("status"))
	if status == "" {
		status = job.StatusPending
	}

	limit := defaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			a.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	offset := 0
	if v := r.URL.Query().Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			a.writeError(w, http.StatusBadRequest, "invalid offset")
			return
		}
		offset = n
	}

	records, err := a.eng.ListJobs(r.Context(), status, job.ListOpts{Limit: limit, Offset: offset})
	if err != nil {
		a.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if records == nil {
		records = []*job.Record{}
	}
	a.writeJSON(w, http.StatusOK, records)
}

func (a *API) getJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := id.ParseJobID(chi.URLParam(r, "jobID"))
	if err != nil {
		a.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid job ID: %v", err))
		return
	}

	rec, err := a.eng.GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, jobmill.ErrJobNotFound) {
			a.writeError(w, http.StatusNotFound, err.Error())
			return
		}
		a.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	a.writeJSON(w, http.StatusOK, rec)
}

// cancelResponse reports the cancel or execute outcome.
type cancelResponse struct {
	Cancelled bool `json:"cancelled"`
}

func (a *API) cancelJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := id.ParseJobID(chi.URLParam(r, "jobID"))
	if err != nil {
		a.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid job ID: %v", err))
		return
	}

	ok, err := a.eng.CancelJob(r.Context(), jobID)
	if err != nil {
		a.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !ok {
		a.writeError(w, http.StatusConflict, "job is not pending or running")
		return
	}
	a.writeJSON(w, http.StatusOK, cancelResponse{Cancelled: true})
}

type executeResponse struct {
	Started bool `json:"started"`
}

func (a *API) executeJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := id.ParseJobID(chi.URLParam(r, "jobID"))
	if err != nil {
		a.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid job ID: %v", err))
		return
	}

	ok, err := a.eng.ExecuteJobByID(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, jobmill.ErrJobNotFound) {
			a.writeError(w, http.StatusNotFound, err.Error())
			return
		}
		a.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !ok {
		a.writeError(w, http.StatusConflict, "job is not pending")
		return
	}
	a.writeJSON(w, http.StatusOK, executeResponse{Started: true})
}
