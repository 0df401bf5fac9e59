package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"pollcast/domain/core"
	"pollcast/internal/errors"
	"pollcast/internal/report"
)

const defaultListLimit = 50

// Codes for conditions of the API itself rather than of a forecast.
const (
	CodeForecastDisabled = "FORECAST_DISABLED"
	CodeRunInProgress    = "RUN_IN_PROGRESS"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.writeError(w, errors.InvalidInput("limit must be a non-negative integer"))
			return
		}
		limit = n
	}

	summaries, err := s.runs.List(r.Context(), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summaries)
}

func (s *Server) handleLatestRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.runs.Latest(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id, err := core.ParseRunID(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, errors.WithCode(errors.CodeInvalidInput, err))
		return
	}
	run, err := s.runs.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleRunReport(w http.ResponseWriter, r *http.Request) {
	id, err := core.ParseRunID(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, errors.WithCode(errors.CodeInvalidInput, err))
		return
	}
	run, err := s.runs.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}

	if r.URL.Query().Get("format") == "markdown" {
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write(report.Markdown(run))
		return
	}
	page, err := report.HTML(run)
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(page)
}

func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	if s.forecaster == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Code: CodeForecastDisabled, Error: "forecasting is not enabled on this server"})
		return
	}
	if !s.running.TryLock() {
		writeJSON(w, http.StatusConflict, errorBody{Code: CodeRunInProgress, Error: "a forecast run is already in progress"})
		return
	}
	defer s.running.Unlock()

	// the request carries no input, so any failure is on the server's side
	run, err := s.forecaster.Run(r.Context())
	if err != nil {
		s.writeErrorStatus(w, err, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Location", "/api/runs/"+run.ID.String())
	writeJSON(w, http.StatusCreated, run)
}

type errorBody struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

// statusFor maps an error code onto an HTTP status. Only request parameters earn a 400.
func statusFor(code string) int {
	switch code {
	case errors.CodeNotFound:
		return http.StatusNotFound
	case errors.CodeInvalidInput:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	s.writeErrorStatus(w, err, statusFor(errors.GetCode(err)))
}

func (s *Server) writeErrorStatus(w http.ResponseWriter, err error, status int) {
	code := errors.GetCode(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error().Err(err).Str("code", code).Msg("request failed")
	}
	writeJSON(w, status, errorBody{Code: code, Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
