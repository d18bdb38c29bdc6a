package server

import (
	"net/http"

	"cantina/internal/collection"
	"cantina/pkg/models"
)

type createCollectionRequest struct {
	Name        string `json:"name" validate:"required,max=255"`
	Slug        string `json:"slug" validate:"required,max=64"`
	Description string `json:"description" validate:"max=1000"`
}

type updateCollectionRequest struct {
	Name        *string `json:"name" validate:"omitempty,max=255"`
	Description *string `json:"description" validate:"omitempty,max=1000"`
}

type setSectionsRequest struct {
	Enabled  bool             `json:"enabled"`
	Sections []models.Section `json:"sections" validate:"dive"`
}

type addAlbumRequest struct {
	AlbumID   string `json:"albumId" validate:"required"`
	SortOrder *int   `json:"sortOrder"`
}

type setFullOrderRequest struct {
	AlbumIDs []string `json:"albumIds" validate:"required"`
}

type setSortOrderRequest struct {
	SortOrder int `json:"sortOrder"`
}

type setEnabledTracksRequest struct {
	TrackIDs []string `json:"trackIds" validate:"required"`
}

func (s *Server) handleListCollections(w http.ResponseWriter, r *http.Request) {
	collections, err := s.collections.List()
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, collections)
}

func (s *Server) handleCreateCollection(w http.ResponseWriter, r *http.Request) {
	var req createCollectionRequest
	if !s.decodeRequest(w, r, &req) {
		return
	}

	c, err := s.collections.Create(req.Name, req.Slug, req.Description)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, c)
}

func (s *Server) handleGetCollection(w http.ResponseWriter, r *http.Request) {
	ref, ok := s.resolveCollection(w, r)
	if !ok {
		return
	}

	c, err := s.collections.Get(ref.ID())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, c)
}

func (s *Server) handleUpdateCollection(w http.ResponseWriter, r *http.Request) {
	ref, ok := s.resolveCollection(w, r)
	if !ok {
		return
	}

	var req updateCollectionRequest
	if !s.decodeRequest(w, r, &req) {
		return
	}

	c, err := s.collections.Update(ref.ID(), req.Name, req.Description)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, c)
}

func (s *Server) handleDeleteCollection(w http.ResponseWriter, r *http.Request) {
	ref, ok := s.resolveCollection(w, r)
	if !ok {
		return
	}

	if err := s.collections.Delete(ref.ID()); err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleSetSections(w http.ResponseWriter, r *http.Request) {
	ref, ok := s.resolveCollection(w, r)
	if !ok {
		return
	}

	var req setSectionsRequest
	if !s.decodeRequest(w, r, &req) {
		return
	}

	if err := s.collections.SetSections(ref.ID(), req.Enabled, req.Sections); err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleCollectionAlbums(w http.ResponseWriter, r *http.Request) {
	ref, ok := s.resolveCollection(w, r)
	if !ok {
		return
	}

	includeTracks := r.URL.Query().Get("tracks") == "true"
	entries, err := s.collections.Albums(ref, includeTracks)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if entries == nil {
		entries = []collection.AlbumEntry{}
	}
	s.respondJSON(w, http.StatusOK, entries)
}

func (s *Server) handleAddAlbum(w http.ResponseWriter, r *http.Request) {
	ref, ok := s.resolveCollection(w, r)
	if !ok {
		return
	}

	var req addAlbumRequest
	if !s.decodeRequest(w, r, &req) {
		return
	}

	membership, err := s.collections.AddAlbum(ref.ID(), req.AlbumID, req.SortOrder)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, membership)
}

func (s *Server) handleSetFullOrder(w http.ResponseWriter, r *http.Request) {
	ref, ok := s.resolveCollection(w, r)
	if !ok {
		return
	}

	var req setFullOrderRequest
	if !s.decodeRequest(w, r, &req) {
		return
	}

	if err := s.collections.SetFullOrder(ref.ID(), req.AlbumIDs); err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleRemoveAlbum(w http.ResponseWriter, r *http.Request) {
	ref, ok := s.resolveCollection(w, r)
	if !ok {
		return
	}

	removed, err := s.collections.RemoveAlbum(ref.ID(), r.PathValue("albumId"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]bool{"removed": removed})
}

func (s *Server) handleSetSortOrder(w http.ResponseWriter, r *http.Request) {
	ref, ok := s.resolveCollection(w, r)
	if !ok {
		return
	}

	var req setSortOrderRequest
	if !s.decodeRequest(w, r, &req) {
		return
	}

	if err := s.collections.SetSortOrder(ref.ID(), r.PathValue("albumId"), req.SortOrder); err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleSetEnabledTracks(w http.ResponseWriter, r *http.Request) {
	ref, ok := s.resolveCollection(w, r)
	if !ok {
		return
	}

	var req setEnabledTracksRequest
	if !s.decodeRequest(w, r, &req) {
		return
	}

	if err := s.collections.SetEnabledTracks(ref.ID(), r.PathValue("albumId"), req.TrackIDs); err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}
