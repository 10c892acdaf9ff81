package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/antoniostano/prefview/internal/annotations"
	"github.com/antoniostano/prefview/internal/viewer"
)

type commentRequest struct {
	User string `json:"user"`
	Text string `json:"text"`
}

type viewedRequest struct {
	User string `json:"user"`
}

type nextResponse struct {
	Found  bool                  `json:"found"`
	Record *viewer.RecordSummary `json:"record,omitempty"`
}

func (s *Server) handleListSources(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"sources": s.viewer.Sources(),
		"total":   s.viewer.RecordCount(),
	})
}

func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	records, err := s.viewer.Records(r.Context(), strings.TrimSpace(q.Get("source")), q.Get("user"))
	if err != nil {
		s.respondViewerError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"records": records})
}

func (s *Server) handleNextUnviewed(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rec, found, err := s.viewer.NextUnviewed(r.Context(), strings.TrimSpace(q.Get("source")), q.Get("user"))
	if err != nil {
		s.respondViewerError(w, r, err)
		return
	}
	resp := nextResponse{Found: found}
	if found {
		resp.Record = &rec
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	id, ok := recordID(w, r)
	if !ok {
		return
	}
	view, err := s.viewer.View(r.Context(), id, r.URL.Query().Get("user"))
	if err != nil {
		s.respondViewerError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

func (s *Server) handleGetDiff(w http.ResponseWriter, r *http.Request) {
	id, ok := recordID(w, r)
	if !ok {
		return
	}
	if strings.EqualFold(r.URL.Query().Get("format"), "unified") {
		out, err := s.viewer.UnifiedDiff(r.Context(), id)
		if err != nil {
			s.respondViewerError(w, r, err)
			return
		}
		w.Header().Set("Content-Type", "text/x-diff; charset=utf-8")
		w.Header().Set("Content-Disposition", "attachment; filename=\"record-"+strconv.Itoa(id)+".diff\"")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(out))
		return
	}
	view, err := s.viewer.Diff(r.Context(), id)
	if err != nil {
		s.respondViewerError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

func (s *Server) handleMarkViewed(w http.ResponseWriter, r *http.Request) {
	id, ok := recordID(w, r)
	if !ok {
		return
	}
	var req viewedRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	user := req.User
	if strings.TrimSpace(user) == "" {
		user = r.URL.Query().Get("user")
	}
	if err := s.viewer.MarkViewed(r.Context(), id, user); err != nil {
		s.respondViewerError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"id": id, "viewed": true})
}

func (s *Server) handleSetComment(w http.ResponseWriter, r *http.Request) {
	id, ok := recordID(w, r)
	if !ok {
		return
	}
	var req commentRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if err := s.viewer.SetComment(r.Context(), id, req.User, req.Text); err != nil {
		s.respondViewerError(w, r, err)
		return
	}
	cleared := strings.TrimSpace(req.Text) == ""
	comment := req.Text
	if cleared {
		comment = ""
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"id":      id,
		"comment": comment,
		"cleared": cleared,
	})
}

func (s *Server) handleListComments(w http.ResponseWriter, r *http.Request) {
	id, ok := recordID(w, r)
	if !ok {
		return
	}
	comments, err := s.viewer.Comments(r.Context(), id)
	if err != nil {
		s.respondViewerError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"id": id, "comments": comments})
}

func recordID(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := strings.TrimSpace(chi.URLParam(r, "id"))
	id, err := strconv.Atoi(raw)
	if err != nil || id < 0 {
		respondError(w, http.StatusBadRequest, "invalid_record_id", "record id must be a non-negative integer")
		return 0, false
	}
	return id, true
}

func (s *Server) respondViewerError(w http.ResponseWriter, r *http.Request, err error) {
	var corrupt *annotations.CorruptStoreError
	switch {
	case errors.Is(err, viewer.ErrRecordNotFound):
		respondError(w, http.StatusNotFound, "record_not_found", err.Error())
	case errors.Is(err, viewer.ErrSourceNotFound):
		respondError(w, http.StatusNotFound, "source_not_found", err.Error())
	case errors.Is(err, annotations.ErrInvalidRecordID):
		respondError(w, http.StatusBadRequest, "invalid_record_id", err.Error())
	case errors.As(err, &corrupt):
		respondError(w, http.StatusInternalServerError, "corrupt_annotation_store", err.Error())
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("viewer request failed")
		respondError(w, http.StatusInternalServerError, "internal_error", "internal error")
	}
}
