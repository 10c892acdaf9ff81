package httpapi

import "net/http"

type uiSettingsResponse struct {
	DefaultUsername  string `json:"default_username"`
	DiffContextLines int    `json:"diff_context_lines"`
	AnnotationStore  string `json:"annotation_store"`
}

func (s *Server) handleUISettings(w http.ResponseWriter, _ *http.Request) {
	user := s.cfg.DefaultUsername
	if user == "" {
		user = "anonymous"
	}
	respondJSON(w, http.StatusOK, uiSettingsResponse{
		DefaultUsername:  user,
		DiffContextLines: s.cfg.DiffContextLines,
		AnnotationStore:  s.storeMode(),
	})
}
