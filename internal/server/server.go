// Package server exposes the jukebox core over HTTP: collection and
// ordering administration, the playback queue, playback state and settings.
// Handlers resolve a collection slug, call into the engines and map typed
// errors to status codes; no auth and no audio serving.
package server

import (
	"context"
	"net/http"
	"time"

	"cantina/internal/collection"
	"cantina/internal/config"
	"cantina/internal/playback"
	"cantina/internal/queue"
	"cantina/internal/store"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
)

// Server is the HTTP front of the jukebox.
type Server struct {
	config      *config.Config
	store       *store.Store
	collections *collection.Engine
	queues      *queue.Manager
	playback    *playback.Machine
	logger      *logrus.Logger
	validate    *validator.Validate
	httpServer  *http.Server
}

// NewServer creates a server wired to the three engines.
func NewServer(cfg *config.Config, st *store.Store, ce *collection.Engine,
	qm *queue.Manager, pm *playback.Machine, logger *logrus.Logger) *Server {
	return &Server{
		config:      cfg,
		store:       st,
		collections: ce,
		queues:      qm,
		playback:    pm,
		logger:      logger,
		validate:    validator.New(),
	}
}

// Start begins serving. It blocks until the listener fails or Shutdown is
// called.
func (s *Server) Start() error {
	handler := s.panicRecoveryMiddleware(
		s.corsMiddleware(
			s.requestLoggingMiddleware(s.routes())))

	s.httpServer = &http.Server{
		Addr:        s.config.GetAddress(),
		Handler:     handler,
		ReadTimeout: time.Duration(s.config.Server.ReadTimeout) * time.Second,
	}

	s.logger.WithField("address", s.config.GetAddress()).Info("Cantina server starting")

	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	s.logger.Info("Shutting down server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealthCheck)

	// Library administration
	mux.HandleFunc("GET /api/albums", s.handleListAlbums)
	mux.HandleFunc("POST /api/albums", s.handleCreateAlbum)
	mux.HandleFunc("DELETE /api/albums/{albumId}", s.handleDeleteAlbum)
	mux.HandleFunc("PUT /api/albums/{albumId}/archived", s.handleSetAlbumArchived)
	mux.HandleFunc("PUT /api/tracks/{trackId}/enabled", s.handleSetTrackEnabled)

	// Collections and ordering
	mux.HandleFunc("GET /api/collections", s.handleListCollections)
	mux.HandleFunc("POST /api/collections", s.handleCreateCollection)
	mux.HandleFunc("GET /api/collections/{slug}", s.handleGetCollection)
	mux.HandleFunc("PUT /api/collections/{slug}", s.handleUpdateCollection)
	mux.HandleFunc("DELETE /api/collections/{slug}", s.handleDeleteCollection)
	mux.HandleFunc("PUT /api/collections/{slug}/sections", s.handleSetSections)
	mux.HandleFunc("GET /api/collections/{slug}/albums", s.handleCollectionAlbums)
	mux.HandleFunc("POST /api/collections/{slug}/albums", s.handleAddAlbum)
	mux.HandleFunc("PUT /api/collections/{slug}/albums/order", s.handleSetFullOrder)
	mux.HandleFunc("DELETE /api/collections/{slug}/albums/{albumId}", s.handleRemoveAlbum)
	mux.HandleFunc("PUT /api/collections/{slug}/albums/{albumId}/sort", s.handleSetSortOrder)
	mux.HandleFunc("PUT /api/collections/{slug}/albums/{albumId}/tracks", s.handleSetEnabledTracks)

	// Queue
	mux.HandleFunc("GET /api/collections/{slug}/queue", s.handleGetQueue)
	mux.HandleFunc("POST /api/collections/{slug}/queue", s.handleEnqueue)
	mux.HandleFunc("PUT /api/collections/{slug}/queue/order", s.handleReorderQueue)
	mux.HandleFunc("DELETE /api/collections/{slug}/queue", s.handleClearQueue)
	mux.HandleFunc("DELETE /api/collections/{slug}/queue/{queueId}", s.handleRemoveQueueItem)

	// Playback
	mux.HandleFunc("GET /api/collections/{slug}/playback", s.handleGetPlayback)
	mux.HandleFunc("POST /api/collections/{slug}/playback/play", s.handlePlay)
	mux.HandleFunc("POST /api/collections/{slug}/playback/pause", s.handlePause)
	mux.HandleFunc("POST /api/collections/{slug}/playback/stop", s.handleStop)
	mux.HandleFunc("POST /api/collections/{slug}/playback/skip", s.handleSkip)
	mux.HandleFunc("PUT /api/collections/{slug}/playback/position", s.handleUpdatePosition)
	mux.HandleFunc("PUT /api/collections/{slug}/playback/volume", s.handleSetVolume)
	mux.HandleFunc("GET /api/collections/{slug}/playback/next", s.handleNextTransition)

	// Settings
	mux.HandleFunc("GET /api/settings/default-collection", s.handleGetDefaultCollection)
	mux.HandleFunc("PUT /api/settings/default-collection", s.handleSetDefaultCollection)

	return mux
}
