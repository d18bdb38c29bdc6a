package server

import (
	"net/http"

	"cantina/internal/apperr"
	"cantina/pkg/models"
)

type createTrackRequest struct {
	DiscNumber        int      `json:"discNumber" validate:"min=1"`
	TrackNumber       int      `json:"trackNumber" validate:"min=1"`
	Title             string   `json:"title" validate:"required,max=255"`
	Artist            string   `json:"artist" validate:"max=255"`
	DurationMs        int      `json:"durationMs" validate:"min=0"`
	ReplayGainTrackDb *float64 `json:"replayGainTrackDb"`
	ReplayGainAlbumDb *float64 `json:"replayGainAlbumDb"`
}

type createAlbumRequest struct {
	Title        string               `json:"title" validate:"required,max=255"`
	Artist       string               `json:"artist" validate:"required,max=255"`
	Year         int                  `json:"year"`
	CoverArtPath string               `json:"coverArtPath"`
	Tracks       []createTrackRequest `json:"tracks" validate:"required,min=1,dive"`
}

type setArchivedRequest struct {
	Archived bool `json:"archived"`
}

type setEnabledRequest struct {
	Enabled bool `json:"enabled"`
}

func (s *Server) handleListAlbums(w http.ResponseWriter, r *http.Request) {
	includeArchived := r.URL.Query().Get("includeArchived") == "true"
	albums, err := s.store.ListAlbums(includeArchived)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if albums == nil {
		albums = []models.Album{}
	}
	s.respondJSON(w, http.StatusOK, albums)
}

// handleCreateAlbum registers an album and its track list. Tag extraction is
// out of scope; callers supply the metadata.
func (s *Server) handleCreateAlbum(w http.ResponseWriter, r *http.Request) {
	var req createAlbumRequest
	if !s.decodeRequest(w, r, &req) {
		return
	}

	album := &models.Album{
		Title:        req.Title,
		Artist:       req.Artist,
		Year:         req.Year,
		TotalTracks:  len(req.Tracks),
		CoverArtPath: req.CoverArtPath,
	}
	for _, t := range req.Tracks {
		if t.DiscNumber > 1 {
			album.HasMultiDisc = true
		}
	}

	if err := s.store.InsertAlbum(album); err != nil {
		s.respondError(w, r, err)
		return
	}

	tracks := make([]models.Track, 0, len(req.Tracks))
	for _, t := range req.Tracks {
		track := models.Track{
			AlbumID:           album.ID,
			DiscNumber:        t.DiscNumber,
			TrackNumber:       t.TrackNumber,
			Title:             t.Title,
			Artist:            t.Artist,
			DurationMs:        t.DurationMs,
			Enabled:           true,
			ReplayGainTrackDb: t.ReplayGainTrackDb,
			ReplayGainAlbumDb: t.ReplayGainAlbumDb,
		}
		if err := s.store.InsertTrack(&track); err != nil {
			s.respondError(w, r, err)
			return
		}
		tracks = append(tracks, track)
	}

	s.respondJSON(w, http.StatusCreated, map[string]interface{}{
		"album":  album,
		"tracks": tracks,
	})
}

func (s *Server) handleDeleteAlbum(w http.ResponseWriter, r *http.Request) {
	if err := s.collections.DeleteAlbum(r.PathValue("albumId")); err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleSetAlbumArchived(w http.ResponseWriter, r *http.Request) {
	var req setArchivedRequest
	if !s.decodeRequest(w, r, &req) {
		return
	}

	albumID := r.PathValue("albumId")
	updated, err := s.store.SetAlbumArchived(albumID, req.Archived)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if !updated {
		s.respondError(w, r, apperr.NotFound("album %s not found", albumID))
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleSetTrackEnabled(w http.ResponseWriter, r *http.Request) {
	var req setEnabledRequest
	if !s.decodeRequest(w, r, &req) {
		return
	}

	trackID := r.PathValue("trackId")
	updated, err := s.store.SetTrackEnabled(trackID, req.Enabled)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if !updated {
		s.respondError(w, r, apperr.NotFound("track %s not found", trackID))
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}
