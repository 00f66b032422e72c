package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jobmill/jobmill/tuning"
)

func (a *API) status(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, http.StatusOK, a.eng.Status())
}

func (a *API) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := a.eng.Stats(r.Context())
	if err != nil {
		a.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	a.writeJSON(w, http.StatusOK, stats)
}

// principalSettingsRequest carries per-principal tuning overrides.
type principalSettingsRequest struct {
	MaxConcurrentJobs int     `json:"max_concurrent_jobs,omitempty"`
	PollIntervalMS    int64   `json:"poll_interval_ms,omitempty"`
	DispatchRate      float64 `json:"dispatch_rate,omitempty"`
	DispatchBurst     int     `json:"dispatch_burst,omitempty"`
}

func (a *API) putPrincipalSettings(w http.ResponseWriter, r *http.Request) {
	principalID := chi.URLParam(r, "principalID")
	if principalID == "" {
		a.writeError(w, http.StatusBadRequest, "principal ID is required")
		return
	}

	var req principalSettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.MaxConcurrentJobs < 0 || req.PollIntervalMS < 0 || req.DispatchRate < 0 || req.DispatchBurst < 0 {
		a.writeError(w, http.StatusBadRequest, "settings must be non-negative")
		return
	}

	s := tuning.Settings{
		PrincipalID:       principalID,
		MaxConcurrentJobs: req.MaxConcurrentJobs,
		PollInterval:      time.Duration(req.PollIntervalMS) * time.Millisecond,
		DispatchRate:      req.DispatchRate,
		DispatchBurst:     req.DispatchBurst,
	}
	a.eng.SetPrincipalSettings(s)
	a.writeJSON(w, http.StatusOK, s)
}
