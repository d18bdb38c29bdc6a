package store

import (
	"database/sql"
	"time"

	"cantina/pkg/models"

	"github.com/google/uuid"
)

const queueColumns = `id, collection_id, track_id, position, status, queued_at, played_at`

// InsertQueueItem inserts a queue item row.
func (s *Store) InsertQueueItem(q Querier, item *models.QueueItem) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.QueuedAt.IsZero() {
		item.QueuedAt = time.Now().UTC()
	}
	if item.Status == "" {
		item.Status = models.QueuePending
	}

	_, err := q.Exec(`
		INSERT INTO queue (id, collection_id, track_id, position, status, queued_at, played_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.CollectionID, item.TrackID, item.Position, string(item.Status),
		item.QueuedAt, item.PlayedAt)
	return err
}

// GetQueueItem returns a queue item by id, or nil when absent.
func (s *Store) GetQueueItem(q Querier, id string) (*models.QueueItem, error) {
	row := q.QueryRow(`SELECT `+queueColumns+` FROM queue WHERE id = ?`, id)
	item, err := scanQueueItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return item, err
}

// QueueItems returns a collection's queue ordered by position. Played items
// are excluded unless includePlayed is set.
func (s *Store) QueueItems(q Querier, collectionID string, includePlayed bool) ([]models.QueueItem, error) {
	query := `SELECT ` + queueColumns + ` FROM queue WHERE collection_id = ?`
	if !includePlayed {
		query += ` AND status IN ('pending', 'playing')`
	}
	query += ` ORDER BY position`

	rows, err := q.Query(query, collectionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanQueueRows(rows)
}

// ActiveQueueItems returns the pending and playing items of a collection
// ordered by position. These are the items the dense 1..N invariant covers.
func (s *Store) ActiveQueueItems(q Querier, collectionID string) ([]models.QueueItem, error) {
	return s.QueueItems(q, collectionID, false)
}

// NextPending returns the pending item with the lowest position, or nil.
func (s *Store) NextPending(q Querier, collectionID string) (*models.QueueItem, error) {
	row := q.QueryRow(`
		SELECT `+queueColumns+` FROM queue
		WHERE collection_id = ? AND status = 'pending'
		ORDER BY position
		LIMIT 1`, collectionID)
	item, err := scanQueueItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return item, err
}

// FindActiveByTrack returns the pending or playing item for a track within a
// collection, or nil. Used for enqueue deduplication.
func (s *Store) FindActiveByTrack(q Querier, collectionID, trackID string) (*models.QueueItem, error) {
	row := q.QueryRow(`
		SELECT `+queueColumns+` FROM queue
		WHERE collection_id = ? AND track_id = ? AND status IN ('pending', 'playing')
		LIMIT 1`, collectionID, trackID)
	item, err := scanQueueItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return item, err
}

// FindPlayingByTrack returns the playing item for a track within a
// collection, or nil.
func (s *Store) FindPlayingByTrack(q Querier, collectionID, trackID string) (*models.QueueItem, error) {
	row := q.QueryRow(`
		SELECT `+queueColumns+` FROM queue
		WHERE collection_id = ? AND track_id = ? AND status = 'playing'
		LIMIT 1`, collectionID, trackID)
	item, err := scanQueueItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return item, err
}

// MaxActivePosition returns the highest position among a collection's
// pending/playing items, or 0 when the active queue is empty.
func (s *Store) MaxActivePosition(q Querier, collectionID string) (int, error) {
	var max sql.NullInt64
	err := q.QueryRow(`
		SELECT MAX(position) FROM queue
		WHERE collection_id = ? AND status IN ('pending', 'playing')`,
		collectionID).Scan(&max)
	if err != nil {
		return 0, err
	}
	if !max.Valid {
		return 0, nil
	}
	return int(max.Int64), nil
}

// UpdateQueueStatus sets a queue item's status, stamping played_at when the
// new status is played.
func (s *Store) UpdateQueueStatus(q Querier, id string, status models.QueueStatus, playedAt *time.Time) error {
	_, err := q.Exec(`
		UPDATE queue SET status = ?, played_at = COALESCE(?, played_at) WHERE id = ?`,
		string(status), playedAt, id)
	return err
}

// UpdateQueuePosition sets a queue item's position.
func (s *Store) UpdateQueuePosition(q Querier, id string, position int) error {
	_, err := q.Exec(`UPDATE queue SET position = ? WHERE id = ?`, position, id)
	return err
}

// DeleteQueueItem removes a queue item, reporting whether one existed.
func (s *Store) DeleteQueueItem(q Querier, id string) (bool, error) {
	result, err := q.Exec(`DELETE FROM queue WHERE id = ?`, id)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	return affected > 0, err
}

// ClearQueue deletes a collection's queue items and returns how many were
// removed. With includePlayed false only pending/playing items are removed.
func (s *Store) ClearQueue(q Querier, collectionID string, includePlayed bool) (int, error) {
	query := `DELETE FROM queue WHERE collection_id = ?`
	if !includePlayed {
		query += ` AND status IN ('pending', 'playing')`
	}

	result, err := q.Exec(query, collectionID)
	if err != nil {
		return 0, err
	}
	affected, err := result.RowsAffected()
	return int(affected), err
}

func scanQueueItem(row rowScanner) (*models.QueueItem, error) {
	var item models.QueueItem
	var status string
	var playedAt sql.NullTime

	err := row.Scan(&item.ID, &item.CollectionID, &item.TrackID, &item.Position,
		&status, &item.QueuedAt, &playedAt)
	if err != nil {
		return nil, err
	}

	item.Status = models.QueueStatus(status)
	if playedAt.Valid {
		item.PlayedAt = &playedAt.Time
	}
	return &item, nil
}

func scanQueueRows(rows *sql.Rows) ([]models.QueueItem, error) {
	var items []models.QueueItem
	for rows.Next() {
		item, err := scanQueueItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}
