package store

import (
	"database/sql"
	"time"

	"cantina/pkg/models"

	"github.com/google/uuid"
)

// InsertAlbum inserts a new album, assigning an id when the caller did not.
func (s *Store) InsertAlbum(album *models.Album) error {
	if album.ID == "" {
		album.ID = uuid.NewString()
	}
	if album.CreatedAt.IsZero() {
		album.CreatedAt = time.Now().UTC()
	}

	_, err := s.conn.Exec(`
		INSERT INTO albums (id, title, artist, year, total_tracks, has_multi_disc, cover_art_path, archived, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		album.ID, album.Title, album.Artist, album.Year, album.TotalTracks,
		album.HasMultiDisc, album.CoverArtPath, album.Archived, album.CreatedAt)
	if err != nil {
		s.logger.WithError(err).WithField("album_id", album.ID).Error("Failed to insert album")
	}
	return err
}

// GetAlbum returns a single album by id, or nil when absent.
func (s *Store) GetAlbum(id string) (*models.Album, error) {
	var album models.Album
	var coverArtPath sql.NullString

	err := s.getAlbumStmt.QueryRow(id).Scan(
		&album.ID, &album.Title, &album.Artist, &album.Year, &album.TotalTracks,
		&album.HasMultiDisc, &coverArtPath, &album.Archived, &album.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		s.logger.WithError(err).WithField("album_id", id).Error("Failed to get album")
		return nil, err
	}

	if coverArtPath.Valid {
		album.CoverArtPath = coverArtPath.String
	}
	return &album, nil
}

// ListAlbums returns albums ordered by (artist, title). Archived albums are
// excluded unless includeArchived is set.
func (s *Store) ListAlbums(includeArchived bool) ([]models.Album, error) {
	query := `
		SELECT id, title, artist, year, total_tracks, has_multi_disc, cover_art_path, archived, created_at
		FROM albums`
	if !includeArchived {
		query += ` WHERE archived = FALSE`
	}
	query += ` ORDER BY artist, title`

	rows, err := s.conn.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var albums []models.Album
	for rows.Next() {
		var album models.Album
		var coverArtPath sql.NullString
		if err := rows.Scan(&album.ID, &album.Title, &album.Artist, &album.Year,
			&album.TotalTracks, &album.HasMultiDisc, &coverArtPath,
			&album.Archived, &album.CreatedAt); err != nil {
			return nil, err
		}
		if coverArtPath.Valid {
			album.CoverArtPath = coverArtPath.String
		}
		albums = append(albums, album)
	}
	return albums, rows.Err()
}

// SetAlbumArchived toggles the archived flag. Archived albums disappear from
// the virtual "all" listing but keep their collection memberships.
func (s *Store) SetAlbumArchived(id string, archived bool) (bool, error) {
	result, err := s.conn.Exec(`UPDATE albums SET archived = ? WHERE id = ?`, archived, id)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	return affected > 0, err
}

// AlbumExists reports whether an album row with the given id exists.
func (s *Store) AlbumExists(q Querier, id string) (bool, error) {
	var count int
	err := q.QueryRow(`SELECT COUNT(*) FROM albums WHERE id = ?`, id).Scan(&count)
	return count > 0, err
}

// TrackExists reports whether a track row with the given id exists.
func (s *Store) TrackExists(q Querier, id string) (bool, error) {
	var count int
	err := q.QueryRow(`SELECT COUNT(*) FROM tracks WHERE id = ?`, id).Scan(&count)
	return count > 0, err
}

// DeleteAlbum removes an album row inside the given transaction. Track,
// membership and queue rows cascade away via foreign keys.
func (s *Store) DeleteAlbum(q Querier, id string) (bool, error) {
	result, err := q.Exec(`DELETE FROM albums WHERE id = ?`, id)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	return affected > 0, err
}

// InsertTrack inserts a new track, assigning an id when the caller did not.
func (s *Store) InsertTrack(track *models.Track) error {
	if track.ID == "" {
		track.ID = uuid.NewString()
	}
	if track.CreatedAt.IsZero() {
		track.CreatedAt = time.Now().UTC()
	}

	_, err := s.conn.Exec(`
		INSERT INTO tracks (id, album_id, disc_number, track_number, title, artist, duration_ms,
		                    enabled, replaygain_track_db, replaygain_album_db, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		track.ID, track.AlbumID, track.DiscNumber, track.TrackNumber, track.Title,
		track.Artist, track.DurationMs, track.Enabled,
		track.ReplayGainTrackDb, track.ReplayGainAlbumDb, track.CreatedAt)
	if err != nil {
		s.logger.WithError(err).WithField("track_id", track.ID).Error("Failed to insert track")
	}
	return err
}

// GetTrack returns a single track by id, or nil when absent.
func (s *Store) GetTrack(id string) (*models.Track, error) {
	row := s.getTrackStmt.QueryRow(id)
	track, err := scanTrack(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		s.logger.WithError(err).WithField("track_id", id).Error("Failed to get track")
		return nil, err
	}
	return track, nil
}

// GetTrackTx is the transactional variant of GetTrack.
func (s *Store) GetTrackTx(q Querier, id string) (*models.Track, error) {
	row := q.QueryRow(`
		SELECT id, album_id, disc_number, track_number, title, artist, duration_ms,
		       enabled, replaygain_track_db, replaygain_album_db, created_at
		FROM tracks WHERE id = ?`, id)
	track, err := scanTrack(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return track, err
}

// TracksByAlbum returns the album's tracks ordered by (disc_number,
// track_number), the canonical album playback order.
func (s *Store) TracksByAlbum(albumID string) ([]models.Track, error) {
	rows, err := s.albumTracksStmt.Query(albumID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTrackRows(rows)
}

// TracksByAlbumTx is the transactional variant of TracksByAlbum.
func (s *Store) TracksByAlbumTx(q Querier, albumID string) ([]models.Track, error) {
	rows, err := q.Query(`
		SELECT id, album_id, disc_number, track_number, title, artist, duration_ms,
		       enabled, replaygain_track_db, replaygain_album_db, created_at
		FROM tracks
		WHERE album_id = ?
		ORDER BY disc_number, track_number`, albumID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTrackRows(rows)
}

// SetTrackEnabled toggles the global enabled flag on a track.
func (s *Store) SetTrackEnabled(id string, enabled bool) (bool, error) {
	result, err := s.conn.Exec(`UPDATE tracks SET enabled = ? WHERE id = ?`, enabled, id)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	return affected > 0, err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTrack(row rowScanner) (*models.Track, error) {
	var track models.Track
	var trackGain, albumGain sql.NullFloat64

	err := row.Scan(&track.ID, &track.AlbumID, &track.DiscNumber, &track.TrackNumber,
		&track.Title, &track.Artist, &track.DurationMs, &track.Enabled,
		&trackGain, &albumGain, &track.CreatedAt)
	if err != nil {
		return nil, err
	}

	if trackGain.Valid {
		track.ReplayGainTrackDb = &trackGain.Float64
	}
	if albumGain.Valid {
		track.ReplayGainAlbumDb = &albumGain.Float64
	}
	return &track, nil
}

// scanTrackRows scans standard track result sets into a slice. It
// centralizes row iteration logic to reduce duplication across query
// helpers. Callers must have already deferred rows.Close().
func scanTrackRows(rows *sql.Rows) ([]models.Track, error) {
	var tracks []models.Track
	for rows.Next() {
		track, err := scanTrack(rows)
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, *track)
	}
	return tracks, rows.Err()
}
