package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/aristath/systemicrisk/internal/domain"
	"github.com/aristath/systemicrisk/internal/tabular"
)

// handleSnapshot returns the summary of the latest snapshot
// GET /api/snapshot
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := s.service.Latest()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, snap.Summary())
}

// handleSnapshotTable returns one indicator table of the latest snapshot
// GET /api/snapshot/{dataset}/{indicator}?format=json|csv|msgpack
func (s *Server) handleSnapshotTable(w http.ResponseWriter, r *http.Request) {
	format, err := tabular.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		s.writeError(w, r, newAPIError(http.StatusBadRequest, "INVALID_PARAMETER", err.Error()))
		return
	}

	table, err := s.service.Table(chi.URLParam(r, "dataset"), chi.URLParam(r, "indicator"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeTable(w, format, table)
}

// handleRefresh recomputes the snapshot now
// POST /api/refresh
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if s.refreshJob == nil {
		s.writeError(w, r, newAPIError(http.StatusServiceUnavailable, "JOB_NOT_REGISTERED", "refresh job not registered"))
		return
	}

	var err error
	if s.scheduler != nil {
		err = s.scheduler.RunNow(s.refreshJob)
	} else {
		err = s.refreshJob.Run()
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	snap, err := s.service.Latest()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, snap.Summary())
}

func (s *Server) writeTable(w http.ResponseWriter, format tabular.Format, table domain.Table) {
	w.Header().Set("Content-Type", format.ContentType())
	w.WriteHeader(http.StatusOK)
	if err := tabular.WriteTable(w, format, table); err != nil {
		s.log.Error().Err(err).Msg("Failed to write table response")
	}
}
