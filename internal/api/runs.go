package api

import (
	"errors"
	"net/http"

	"github.com/nyashahama/dlt-reports/internal/store"
	"github.com/nyashahama/dlt-reports/internal/worker"
)

// handleTriggerRun starts an out-of-schedule run.
//
// POST /api/runs
// Response 202: {"run_id": "..."}
// Response 409: a run is already in flight
func (s *Server) handleTriggerRun(w http.ResponseWriter, r *http.Request) {
	id, err := s.runs.Trigger(r.Context())
	if errors.Is(err, worker.ErrRunInProgress) {
		respondErr(w, http.StatusConflict, "a run is already in progress")
		return
	}
	if err != nil {
		s.respondInternalErr(w, r, err)
		return
	}

	s.logger.Info("api: run triggered", "run_id", id)
	respond(w, http.StatusAccepted, map[string]string{"run_id": id.String()})
}

// handleLatestRun returns the most recent finished run. The ledger is
// preferred when configured so runs from other processes are visible too.
//
// GET /api/runs/latest
func (s *Server) handleLatestRun(w http.ResponseWriter, r *http.Request) {
	if s.ledger != nil {
		run, err := s.ledger.LatestRun(r.Context())
		switch {
		case err == nil:
			respond(w, http.StatusOK, run)
			return
		case !errors.Is(err, store.ErrNoRuns):
			s.logger.Warn("api: ledger read failed, using in-memory run", "error", err)
		}
	}

	run, ok := s.runs.Last()
	if !ok {
		respondErr(w, http.StatusNotFound, "no runs yet")
		return
	}
	respond(w, http.StatusOK, run)
}
