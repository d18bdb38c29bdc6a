package server

import (
	"net/http"

	"cantina/pkg/models"
)

type updatePositionRequest struct {
	PositionMs int `json:"positionMs" validate:"min=0"`
}

type setVolumeRequest struct {
	Volume int `json:"volume"`
}

func (s *Server) handleGetPlayback(w http.ResponseWriter, r *http.Request) {
	s.playbackAction(w, r, s.playback.GetOrCreate)
}

func (s *Server) handlePlay(w http.ResponseWriter, r *http.Request) {
	s.playbackAction(w, r, s.playback.Play)
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	s.playbackAction(w, r, s.playback.Pause)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.playbackAction(w, r, s.playback.Stop)
}

func (s *Server) handleSkip(w http.ResponseWriter, r *http.Request) {
	s.playbackAction(w, r, s.playback.Skip)
}

// playbackAction runs a no-argument playback operation and returns the
// resulting state.
func (s *Server) playbackAction(w http.ResponseWriter, r *http.Request,
	fn func(collectionID string) (*models.PlaybackState, error)) {
	ref, ok := s.resolveCollection(w, r)
	if !ok {
		return
	}

	st, err := fn(ref.ID())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, st)
}

func (s *Server) handleUpdatePosition(w http.ResponseWriter, r *http.Request) {
	ref, ok := s.resolveCollection(w, r)
	if !ok {
		return
	}

	var req updatePositionRequest
	if !s.decodeRequest(w, r, &req) {
		return
	}

	st, err := s.playback.UpdatePosition(ref.ID(), req.PositionMs)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, st)
}

func (s *Server) handleSetVolume(w http.ResponseWriter, r *http.Request) {
	ref, ok := s.resolveCollection(w, r)
	if !ok {
		return
	}

	var req setVolumeRequest
	if !s.decodeRequest(w, r, &req) {
		return
	}

	st, err := s.playback.SetVolume(ref.ID(), req.Volume)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, st)
}

func (s *Server) handleNextTransition(w http.ResponseWriter, r *http.Request) {
	ref, ok := s.resolveCollection(w, r)
	if !ok {
		return
	}

	t, err := s.playback.NextTransition(ref.ID())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, t)
}
