package server

import (
	"net/http"

	"cantina/pkg/models"
)

const defaultCollectionKey = "default_collection_slug"

type setDefaultCollectionRequest struct {
	Slug string `json:"slug" validate:"required,max=64"`
}

// handleGetDefaultCollection returns the slug the frontend should open with.
// Falls back to the virtual "all" collection when nothing is configured.
func (s *Server) handleGetDefaultCollection(w http.ResponseWriter, r *http.Request) {
	slug, err := s.store.GetSetting(defaultCollectionKey)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if slug == "" {
		slug = models.VirtualAllSlug
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"slug": slug})
}

// handleSetDefaultCollection stores the default slug after checking it
// resolves to an existing collection.
func (s *Server) handleSetDefaultCollection(w http.ResponseWriter, r *http.Request) {
	var req setDefaultCollectionRequest
	if !s.decodeRequest(w, r, &req) {
		return
	}

	if _, err := s.collections.ResolveSlug(req.Slug); err != nil {
		s.respondError(w, r, err)
		return
	}
	if err := s.store.SetSetting(defaultCollectionKey, req.Slug); err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"slug": req.Slug})
}
