package server

import (
	"net/http"

	"cantina/internal/apperr"
	"cantina/pkg/models"
)

type enqueueRequest struct {
	TrackID  string   `json:"trackId" validate:"required_without=TrackIDs,excluded_with=TrackIDs"`
	TrackIDs []string `json:"trackIds" validate:"required_without=TrackID"`
}

type reorderQueueRequest struct {
	QueueIDs []string `json:"queueIds" validate:"required"`
}

func (s *Server) handleGetQueue(w http.ResponseWriter, r *http.Request) {
	ref, ok := s.resolveCollection(w, r)
	if !ok {
		return
	}

	includePlayed := r.URL.Query().Get("includePlayed") == "true"
	items, err := s.queues.List(ref.ID(), includePlayed)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if items == nil {
		items = []models.QueueItem{}
	}
	s.respondJSON(w, http.StatusOK, items)
}

func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	ref, ok := s.resolveCollection(w, r)
	if !ok {
		return
	}

	var req enqueueRequest
	if !s.decodeRequest(w, r, &req) {
		return
	}

	if req.TrackID != "" {
		item, added, err := s.queues.Enqueue(ref.ID(), req.TrackID)
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		status := http.StatusCreated
		if !added {
			status = http.StatusOK
		}
		s.respondJSON(w, status, map[string]interface{}{
			"item":  item,
			"added": added,
		})
		return
	}

	count, err := s.queues.EnqueueMany(ref.ID(), req.TrackIDs)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, map[string]int{"added": count})
}

func (s *Server) handleReorderQueue(w http.ResponseWriter, r *http.Request) {
	ref, ok := s.resolveCollection(w, r)
	if !ok {
		return
	}

	var req reorderQueueRequest
	if !s.decodeRequest(w, r, &req) {
		return
	}

	if err := s.queues.Reorder(ref.ID(), req.QueueIDs); err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleRemoveQueueItem(w http.ResponseWriter, r *http.Request) {
	ref, ok := s.resolveCollection(w, r)
	if !ok {
		return
	}

	item, err := s.queues.Get(r.PathValue("queueId"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	// The item must belong to the collection named in the path.
	if item.CollectionID != ref.ID() {
		s.respondError(w, r, apperr.NotFound("queue item %s not found in collection %s",
			item.ID, r.PathValue("slug")))
		return
	}

	if err := s.queues.Remove(item.ID); err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleClearQueue(w http.ResponseWriter, r *http.Request) {
	ref, ok := s.resolveCollection(w, r)
	if !ok {
		return
	}

	includePlayed := r.URL.Query().Get("includePlayed") == "true"
	count, err := s.queues.Clear(ref.ID(), includePlayed)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]int{"removed": count})
}
