package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/MrWong99/scrivener/internal/correct"
	"github.com/MrWong99/scrivener/internal/history"
	"github.com/MrWong99/scrivener/internal/observe"
)

type autocorrectResponse struct {
	CorrectedText string `json:"corrected_text"`
}

type sentenceRequest struct {
	Text     string `json:"text"`
	Language string `json:"language,omitempty"`
}

type sentenceResponse struct {
	CorrectedText string               `json:"corrected_text"`
	Corrections   []correct.Correction `json:"corrections"`
}

type historyResponse struct {
	Records []history.Record `json:"records"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleAutocorrect(w http.ResponseWriter, r *http.Request) {
	var req correct.AutocorrectRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := s.corrector.Autocorrect(r.Context(), req)
	if err != nil {
		writeCanceled(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, autocorrectResponse{CorrectedText: res.Corrected})
}

func (s *Server) handleCorrectSentence(w http.ResponseWriter, r *http.Request) {
	var req sentenceRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := s.corrector.CorrectSentenceIn(r.Context(), req.Text, req.Language)
	if err != nil {
		writeCanceled(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sentenceResponse{CorrectedText: res.Corrected, Corrections: res.Corrections})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid limit %q", v))
			return
		}
		limit = n
	}
	records, err := s.history.Recent(r.Context(), history.ClampLimit(limit))
	if err != nil {
		observe.Logger(r.Context()).Error("history query failed", "err", err)
		writeError(w, http.StatusInternalServerError, "history unavailable")
		return
	}
	if records == nil {
		records = []history.Record{}
	}
	writeJSON(w, http.StatusOK, historyResponse{Records: records})
}

// decodeBody decodes a JSON request body into v. On failure it answers 400
// and reports false.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		case errors.Is(err, io.EOF):
			writeError(w, http.StatusBadRequest, "request body is empty")
		default:
			writeError(w, http.StatusBadRequest, "malformed JSON: "+err.Error())
		}
		return false
	}
	return true
}

// writeCanceled answers a request whose context ended before the pipeline
// finished. The client has usually gone away already.
func writeCanceled(w http.ResponseWriter, r *http.Request, err error) {
	observe.Logger(r.Context()).Debug("request abandoned", "err", err)
	writeError(w, http.StatusServiceUnavailable, "request canceled")
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
