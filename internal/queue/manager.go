// Package queue implements the per-collection playback queue: ordered,
// deduplicated items moving through the pending -> playing -> played state
// machine, with positions kept dense over the non-played items.
package queue

import (
	"database/sql"
	"time"

	"cantina/internal/apperr"
	"cantina/internal/lock"
	"cantina/internal/store"
	"cantina/pkg/models"

	"github.com/sirupsen/logrus"
)

// Manager maintains the playback queues. All mutating operations serialize
// per collection and run inside a single transaction; among a collection's
// pending/playing items the positions always form a dense 1..N sequence and
// a track appears at most once.
type Manager struct {
	store  *store.Store
	locks  *lock.Keyed
	logger *logrus.Logger
}

// NewManager creates a queue manager. The keyed lock must be the same
// instance the ordering engine and playback machine use.
func NewManager(st *store.Store, locks *lock.Keyed, logger *logrus.Logger) *Manager {
	return &Manager{store: st, locks: locks, logger: logger}
}

// Enqueue appends a track to a collection's queue. A track that is already
// pending or playing in the collection is not queued again; the existing
// item is returned with added=false.
func (m *Manager) Enqueue(collectionID, trackID string) (*models.QueueItem, bool, error) {
	unlock := m.locks.Lock(collectionID)
	defer unlock()

	var item *models.QueueItem
	var added bool
	err := m.store.WithTx(func(tx *sql.Tx) error {
		var err error
		item, added, err = m.enqueueTx(tx, collectionID, trackID)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return item, added, nil
}

// EnqueueMany enqueues the given tracks in order and returns how many were
// actually inserted. Duplicates are skipped and not counted.
func (m *Manager) EnqueueMany(collectionID string, trackIDs []string) (int, error) {
	unlock := m.locks.Lock(collectionID)
	defer unlock()

	count := 0
	err := m.store.WithTx(func(tx *sql.Tx) error {
		for _, trackID := range trackIDs {
			_, added, err := m.enqueueTx(tx, collectionID, trackID)
			if err != nil {
				return err
			}
			if added {
				count++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// enqueueTx performs the dedup check and insert inside the caller's
// transaction.
func (m *Manager) enqueueTx(tx store.Querier, collectionID, trackID string) (*models.QueueItem, bool, error) {
	c, err := m.store.GetCollectionTx(tx, collectionID)
	if err != nil {
		return nil, false, err
	}
	if c == nil {
		return nil, false, apperr.NotFound("collection %s not found", collectionID)
	}

	if exists, err := m.store.TrackExists(tx, trackID); err != nil {
		return nil, false, err
	} else if !exists {
		return nil, false, apperr.NotFound("track %s not found", trackID)
	}

	existing, err := m.store.FindActiveByTrack(tx, collectionID, trackID)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		m.logger.WithFields(logrus.Fields{
			"collection_id": collectionID,
			"track_id":      trackID,
		}).Debug("Track already queued, skipping duplicate")
		return existing, false, nil
	}

	maxPosition, err := m.store.MaxActivePosition(tx, collectionID)
	if err != nil {
		return nil, false, err
	}

	item := &models.QueueItem{
		CollectionID: collectionID,
		TrackID:      trackID,
		Position:     maxPosition + 1,
		Status:       models.QueuePending,
	}
	if err := m.store.InsertQueueItem(tx, item); err != nil {
		return nil, false, err
	}

	m.logger.WithFields(logrus.Fields{
		"collection_id": collectionID,
		"track_id":      trackID,
		"position":      item.Position,
	}).Info("Added track to queue")
	return item, true, nil
}

// List returns a collection's queue ordered by position. Played items are
// excluded unless includePlayed is set.
func (m *Manager) List(collectionID string, includePlayed bool) ([]models.QueueItem, error) {
	return m.store.QueueItems(m.store.DB(), collectionID, includePlayed)
}

// Get returns a queue item by id.
func (m *Manager) Get(queueID string) (*models.QueueItem, error) {
	item, err := m.store.GetQueueItem(m.store.DB(), queueID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, apperr.NotFound("queue item %s not found", queueID)
	}
	return item, nil
}

// PeekNext returns the pending item with the lowest position, or nil when
// nothing is pending.
func (m *Manager) PeekNext(collectionID string) (*models.QueueItem, error) {
	return m.store.NextPending(m.store.DB(), collectionID)
}

// NextPendingTx is PeekNext for callers composing inside their own
// transaction (the playback machine); the caller must hold the collection's
// lock.
func (m *Manager) NextPendingTx(q store.Querier, collectionID string) (*models.QueueItem, error) {
	return m.store.NextPending(q, collectionID)
}

// MarkPlaying transitions a queue item to playing. Marking an item that is
// already playing is a no-op; a played item cannot go back.
func (m *Manager) MarkPlaying(queueID string) (*models.QueueItem, error) {
	return m.transition(queueID, func(q store.Querier, item *models.QueueItem) error {
		return m.MarkPlayingTx(q, item)
	})
}

// MarkPlayed transitions a queue item to played (terminal) and stamps
// played_at. Marking an already played item is a no-op.
func (m *Manager) MarkPlayed(queueID string) (*models.QueueItem, error) {
	return m.transition(queueID, func(q store.Querier, item *models.QueueItem) error {
		return m.MarkPlayedTx(q, item)
	})
}

// MarkPlayingTx applies the playing transition inside the caller's
// transaction; the caller must hold the collection's lock.
func (m *Manager) MarkPlayingTx(q store.Querier, item *models.QueueItem) error {
	switch item.Status {
	case models.QueuePlaying:
		return nil
	case models.QueuePlayed:
		return apperr.Validation("queue item %s is already played", item.ID)
	}
	if err := m.store.UpdateQueueStatus(q, item.ID, models.QueuePlaying, nil); err != nil {
		return err
	}
	item.Status = models.QueuePlaying
	return nil
}

// MarkPlayedTx applies the played transition inside the caller's
// transaction; the caller must hold the collection's lock.
func (m *Manager) MarkPlayedTx(q store.Querier, item *models.QueueItem) error {
	if item.Status == models.QueuePlayed {
		return nil
	}
	now := time.Now().UTC()
	if err := m.store.UpdateQueueStatus(q, item.ID, models.QueuePlayed, &now); err != nil {
		return err
	}
	item.Status = models.QueuePlayed
	item.PlayedAt = &now
	return nil
}

// FindPlayingByTrackTx returns the playing item for a track inside the
// caller's transaction, or nil.
func (m *Manager) FindPlayingByTrackTx(q store.Querier, collectionID, trackID string) (*models.QueueItem, error) {
	return m.store.FindPlayingByTrack(q, collectionID, trackID)
}

// transition loads the item, locks its collection and applies fn in a
// transaction, re-reading the item so the decision uses current state.
func (m *Manager) transition(queueID string, fn func(q store.Querier, item *models.QueueItem) error) (*models.QueueItem, error) {
	item, err := m.store.GetQueueItem(m.store.DB(), queueID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, apperr.NotFound("queue item %s not found", queueID)
	}

	unlock := m.locks.Lock(item.CollectionID)
	defer unlock()

	err = m.store.WithTx(func(tx *sql.Tx) error {
		current, err := m.store.GetQueueItem(tx, queueID)
		if err != nil {
			return err
		}
		if current == nil {
			return apperr.NotFound("queue item %s not found", queueID)
		}
		item = current
		return fn(tx, item)
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

// Remove deletes a queue item. Removing a pending or playing item renumbers
// the collection's surviving non-played items to 1..N in their current
// order; removing a played item leaves positions alone.
func (m *Manager) Remove(queueID string) error {
	item, err := m.store.GetQueueItem(m.store.DB(), queueID)
	if err != nil {
		return err
	}
	if item == nil {
		return apperr.NotFound("queue item %s not found", queueID)
	}

	unlock := m.locks.Lock(item.CollectionID)
	defer unlock()

	return m.store.WithTx(func(tx *sql.Tx) error {
		current, err := m.store.GetQueueItem(tx, queueID)
		if err != nil {
			return err
		}
		if current == nil {
			return apperr.NotFound("queue item %s not found", queueID)
		}

		if _, err := m.store.DeleteQueueItem(tx, queueID); err != nil {
			return err
		}
		if current.Status == models.QueuePlayed {
			return nil
		}
		return m.renumberTx(tx, current.CollectionID)
	})
}

// Reorder replaces the order of a collection's pending/playing items. The
// id list must be exactly the current active set, the currently playing item
// included; positions are assigned by 1-based list index. Any mismatch
// leaves the stored state untouched.
func (m *Manager) Reorder(collectionID string, orderedQueueIDs []string) error {
	unlock := m.locks.Lock(collectionID)
	defer unlock()

	return m.store.WithTx(func(tx *sql.Tx) error {
		actives, err := m.store.ActiveQueueItems(tx, collectionID)
		if err != nil {
			return err
		}

		if len(orderedQueueIDs) != len(actives) {
			return apperr.Validation("order list has %d items, queue has %d",
				len(orderedQueueIDs), len(actives))
		}

		byID := make(map[string]*models.QueueItem, len(actives))
		for i := range actives {
			byID[actives[i].ID] = &actives[i]
		}

		seen := make(map[string]bool, len(orderedQueueIDs))
		for _, id := range orderedQueueIDs {
			if seen[id] {
				return apperr.Validation("duplicate queue id %s in order list", id)
			}
			seen[id] = true
			if byID[id] == nil {
				return apperr.Validation("queue item %s is not in the active queue", id)
			}
		}

		for index, id := range orderedQueueIDs {
			if err := m.store.UpdateQueuePosition(tx, id, index+1); err != nil {
				return err
			}
		}
		return nil
	})
}

// Clear deletes a collection's queue items, all of them or only the
// non-played ones, and returns how many were removed.
func (m *Manager) Clear(collectionID string, includePlayed bool) (int, error) {
	unlock := m.locks.Lock(collectionID)
	defer unlock()

	var count int
	err := m.store.WithTx(func(tx *sql.Tx) error {
		var err error
		count, err = m.store.ClearQueue(tx, collectionID, includePlayed)
		return err
	})
	if err != nil {
		return 0, err
	}

	m.logger.WithFields(logrus.Fields{
		"collection_id": collectionID,
		"removed":       count,
	}).Info("Cleared queue")
	return count, nil
}

// renumberTx reassigns positions 1..N over the collection's pending/playing
// items preserving their relative order.
func (m *Manager) renumberTx(q store.Querier, collectionID string) error {
	actives, err := m.store.ActiveQueueItems(q, collectionID)
	if err != nil {
		return err
	}
	for i := range actives {
		position := i + 1
		if actives[i].Position == position {
			continue
		}
		if err := m.store.UpdateQueuePosition(q, actives[i].ID, position); err != nil {
			return err
		}
	}
	return nil
}
