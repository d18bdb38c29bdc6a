package store

import (
	"database/sql"
	"time"

	"cantina/pkg/models"

	"github.com/google/uuid"
)

// GetPlaybackState returns the playback state row for a collection, or nil.
func (s *Store) GetPlaybackState(q Querier, collectionID string) (*models.PlaybackState, error) {
	row := q.QueryRow(`
		SELECT id, collection_id, current_track_id, is_playing, current_position_ms, volume, updated_at
		FROM playback_state
		WHERE collection_id = ?`, collectionID)

	var st models.PlaybackState
	var currentTrackID sql.NullString

	err := row.Scan(&st.ID, &st.CollectionID, &currentTrackID, &st.IsPlaying,
		&st.CurrentPositionMs, &st.Volume, &st.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if currentTrackID.Valid {
		st.CurrentTrackID = &currentTrackID.String
	}
	return &st, nil
}

// InsertPlaybackState inserts a playback state row, assigning an id when the
// caller did not.
func (s *Store) InsertPlaybackState(q Querier, st *models.PlaybackState) error {
	if st.ID == "" {
		st.ID = uuid.NewString()
	}
	st.UpdatedAt = time.Now().UTC()

	_, err := q.Exec(`
		INSERT INTO playback_state (id, collection_id, current_track_id, is_playing, current_position_ms, volume, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		st.ID, st.CollectionID, st.CurrentTrackID, st.IsPlaying,
		st.CurrentPositionMs, st.Volume, st.UpdatedAt)
	return err
}

// UpdatePlaybackState overwrites the mutable fields of a playback state row.
func (s *Store) UpdatePlaybackState(q Querier, st *models.PlaybackState) error {
	st.UpdatedAt = time.Now().UTC()

	_, err := q.Exec(`
		UPDATE playback_state
		SET current_track_id = ?, is_playing = ?, current_position_ms = ?, volume = ?, updated_at = ?
		WHERE id = ?`,
		st.CurrentTrackID, st.IsPlaying, st.CurrentPositionMs, st.Volume,
		st.UpdatedAt, st.ID)
	return err
}
