// Package playback tracks the single playback state record each collection
// owns and decides transition parameters (next track, loudness offset,
// crossfade eligibility) when advancing through the queue.
package playback

import (
	"database/sql"

	"cantina/internal/apperr"
	"cantina/internal/cache"
	"cantina/internal/lock"
	"cantina/internal/queue"
	"cantina/internal/store"
	"cantina/pkg/models"

	"github.com/sirupsen/logrus"
)

// DefaultVolume is the volume assigned to a freshly created playback state.
const DefaultVolume = 70

// Transition describes how the player should advance: which track comes
// next, its loudness offset in decibels, and whether the transition should
// crossfade. Nil fields mean the queue has nothing pending.
type Transition struct {
	NextTrackID    *string  `json:"nextTrackId"`
	ReplayGainDb   *float64 `json:"replayGainDb"`
	ApplyCrossfade bool     `json:"applyCrossfade"`
}

// Machine owns the per-collection playback state rows. It pulls tracks from
// the queue manager and reads track metadata for transition decisions; every
// mutation serializes on the collection's lock and commits in one
// transaction.
type Machine struct {
	store       *store.Store
	queue       *queue.Manager
	locks       *lock.Keyed
	logger      *logrus.Logger
	albumTracks *cache.AlbumTracksCache
}

// NewMachine creates a playback machine sharing the store, queue manager and
// keyed lock with the other engines.
func NewMachine(st *store.Store, qm *queue.Manager, locks *lock.Keyed, logger *logrus.Logger) *Machine {
	return &Machine{
		store:       st,
		queue:       qm,
		locks:       locks,
		logger:      logger,
		albumTracks: cache.NewAlbumTracksCache(),
	}
}

// GetOrCreate returns a collection's playback state, creating a paused one
// at volume 70 the first time the collection is touched.
func (m *Machine) GetOrCreate(collectionID string) (*models.PlaybackState, error) {
	unlock := m.locks.Lock(collectionID)
	defer unlock()

	var st *models.PlaybackState
	err := m.store.WithTx(func(tx *sql.Tx) error {
		var err error
		st, err = m.getOrCreateTx(tx, collectionID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return st, nil
}

func (m *Machine) getOrCreateTx(tx store.Querier, collectionID string) (*models.PlaybackState, error) {
	st, err := m.store.GetPlaybackState(tx, collectionID)
	if err != nil {
		return nil, err
	}
	if st != nil {
		return st, nil
	}

	c, err := m.store.GetCollectionTx(tx, collectionID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, apperr.NotFound("collection %s not found", collectionID)
	}

	st = &models.PlaybackState{
		CollectionID: collectionID,
		IsPlaying:    false,
		Volume:       DefaultVolume,
	}
	if err := m.store.InsertPlaybackState(tx, st); err != nil {
		return nil, err
	}
	m.logger.WithField("collection_id", collectionID).Debug("Created playback state")
	return st, nil
}

// Play starts or resumes playback. Without a current track it pulls the next
// pending queue item; an empty queue leaves the state unchanged. is_playing
// only turns on once a current track exists.
func (m *Machine) Play(collectionID string) (*models.PlaybackState, error) {
	unlock := m.locks.Lock(collectionID)
	defer unlock()

	var st *models.PlaybackState
	err := m.store.WithTx(func(tx *sql.Tx) error {
		var err error
		st, err = m.getOrCreateTx(tx, collectionID)
		if err != nil {
			return err
		}

		if st.CurrentTrackID == nil {
			next, err := m.queue.NextPendingTx(tx, collectionID)
			if err != nil {
				return err
			}
			if next == nil {
				return nil
			}
			if err := m.queue.MarkPlayingTx(tx, next); err != nil {
				return err
			}
			st.CurrentTrackID = &next.TrackID
			st.CurrentPositionMs = 0
		}

		st.IsPlaying = true
		return m.store.UpdatePlaybackState(tx, st)
	})
	if err != nil {
		return nil, err
	}
	return st, nil
}

// Pause stops advancing without losing the current track or position.
func (m *Machine) Pause(collectionID string) (*models.PlaybackState, error) {
	return m.mutate(collectionID, func(st *models.PlaybackState) {
		st.IsPlaying = false
	})
}

// Stop clears the current track and resets the position.
func (m *Machine) Stop(collectionID string) (*models.PlaybackState, error) {
	return m.mutate(collectionID, func(st *models.PlaybackState) {
		st.CurrentTrackID = nil
		st.CurrentPositionMs = 0
		st.IsPlaying = false
	})
}

// Skip finishes the current track and advances to the next pending item. The
// finished item is marked played; with nothing left pending the state is
// cleared and playback stops. is_playing carries over when a next track
// exists.
func (m *Machine) Skip(collectionID string) (*models.PlaybackState, error) {
	unlock := m.locks.Lock(collectionID)
	defer unlock()

	var st *models.PlaybackState
	err := m.store.WithTx(func(tx *sql.Tx) error {
		var err error
		st, err = m.getOrCreateTx(tx, collectionID)
		if err != nil {
			return err
		}

		if st.CurrentTrackID != nil {
			playing, err := m.queue.FindPlayingByTrackTx(tx, collectionID, *st.CurrentTrackID)
			if err != nil {
				return err
			}
			if playing != nil {
				if err := m.queue.MarkPlayedTx(tx, playing); err != nil {
					return err
				}
			}
		}

		next, err := m.queue.NextPendingTx(tx, collectionID)
		if err != nil {
			return err
		}
		if next == nil {
			st.CurrentTrackID = nil
			st.CurrentPositionMs = 0
			st.IsPlaying = false
		} else {
			if err := m.queue.MarkPlayingTx(tx, next); err != nil {
				return err
			}
			st.CurrentTrackID = &next.TrackID
			st.CurrentPositionMs = 0
		}
		return m.store.UpdatePlaybackState(tx, st)
	})
	if err != nil {
		return nil, err
	}

	m.logger.WithFields(logrus.Fields{
		"collection_id": collectionID,
		"is_playing":    st.IsPlaying,
	}).Info("Skipped track")
	return st, nil
}

// UpdatePosition overwrites the stored playhead position.
func (m *Machine) UpdatePosition(collectionID string, positionMs int) (*models.PlaybackState, error) {
	if positionMs < 0 {
		return nil, apperr.Validation("position must not be negative, got %d", positionMs)
	}
	return m.mutate(collectionID, func(st *models.PlaybackState) {
		st.CurrentPositionMs = positionMs
	})
}

// SetVolume stores the volume clamped to [0, 100].
func (m *Machine) SetVolume(collectionID string, volume int) (*models.PlaybackState, error) {
	return m.mutate(collectionID, func(st *models.PlaybackState) {
		st.Volume = clampVolume(volume)
	})
}

// mutate applies fn to the collection's state (lazily created) and persists
// the result in one transaction.
func (m *Machine) mutate(collectionID string, fn func(st *models.PlaybackState)) (*models.PlaybackState, error) {
	unlock := m.locks.Lock(collectionID)
	defer unlock()

	var st *models.PlaybackState
	err := m.store.WithTx(func(tx *sql.Tx) error {
		var err error
		st, err = m.getOrCreateTx(tx, collectionID)
		if err != nil {
			return err
		}
		fn(st)
		return m.store.UpdatePlaybackState(tx, st)
	})
	if err != nil {
		return nil, err
	}
	return st, nil
}

// NextTransition inspects the queue head and decides the advance parameters.
// With nothing pending it returns an empty transition. The crossfade is
// suppressed only for uninterrupted consecutive album playback: the next
// track must be the immediate (disc_number, track_number) successor of the
// current track within the same album. Every other case crossfades.
func (m *Machine) NextTransition(collectionID string) (*Transition, error) {
	unlock := m.locks.Lock(collectionID)
	defer unlock()

	t := &Transition{}
	err := m.store.WithTx(func(tx *sql.Tx) error {
		st, err := m.getOrCreateTx(tx, collectionID)
		if err != nil {
			return err
		}

		next, err := m.queue.NextPendingTx(tx, collectionID)
		if err != nil {
			return err
		}
		if next == nil {
			return nil
		}

		nextTrack, err := m.store.GetTrackTx(tx, next.TrackID)
		if err != nil {
			return err
		}
		if nextTrack == nil {
			return apperr.NotFound("track %s not found", next.TrackID)
		}

		t.NextTrackID = &nextTrack.ID
		t.ReplayGainDb = replayGain(nextTrack)
		t.ApplyCrossfade = true

		if st.CurrentTrackID == nil {
			return nil
		}
		current, err := m.store.GetTrackTx(tx, *st.CurrentTrackID)
		if err != nil {
			return err
		}
		if current == nil || current.AlbumID != nextTrack.AlbumID {
			return nil
		}

		consecutive, err := m.isImmediateSuccessor(tx, current, nextTrack)
		if err != nil {
			return err
		}
		t.ApplyCrossfade = !consecutive
		return nil
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// isImmediateSuccessor reports whether next directly follows current in the
// album's (disc_number, track_number) ordering. The order is immutable once
// an album is registered, so it is safe to cache.
func (m *Machine) isImmediateSuccessor(q store.Querier, current, next *models.Track) (bool, error) {
	tracks, ok := m.albumTracks.GetTracks(current.AlbumID)
	if !ok {
		var err error
		tracks, err = m.store.TracksByAlbumTx(q, current.AlbumID)
		if err != nil {
			return false, err
		}
		m.albumTracks.SetTracks(current.AlbumID, tracks)
	}
	for i := range tracks {
		if tracks[i].ID == current.ID {
			return i+1 < len(tracks) && tracks[i+1].ID == next.ID, nil
		}
	}
	return false, nil
}

// replayGain picks the loudness offset for a track: the track-level value
// when measured, otherwise the album-level value, otherwise none.
func replayGain(t *models.Track) *float64 {
	if t.ReplayGainTrackDb != nil {
		return t.ReplayGainTrackDb
	}
	return t.ReplayGainAlbumDb
}

func clampVolume(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
