package models

import "time"

// QueueStatus is the lifecycle state of a queue item. Transitions only move
// forward: pending -> playing -> played. Played is terminal.
type QueueStatus string

const (
	QueuePending QueueStatus = "pending"
	QueuePlaying QueueStatus = "playing"
	QueuePlayed  QueueStatus = "played"
)

// QueueItem represents one scheduled play of a track within a collection's
// queue. Among a collection's pending/playing items the positions form a
// dense 1..N sequence.
type QueueItem struct {
	ID           string      `json:"id"`
	CollectionID string      `json:"collectionId"`
	TrackID      string      `json:"trackId"`
	Position     int         `json:"position"`
	Status       QueueStatus `json:"status"`
	QueuedAt     time.Time   `json:"queuedAt"`
	PlayedAt     *time.Time  `json:"playedAt,omitempty"`
}

// PlaybackState holds the single playback record for a collection. It is
// created lazily on first access and only removed when its collection is
// deleted.
type PlaybackState struct {
	ID                string    `json:"id"`
	CollectionID      string    `json:"collectionId"`
	CurrentTrackID    *string   `json:"currentTrackId,omitempty"`
	IsPlaying         bool      `json:"isPlaying"`
	CurrentPositionMs int       `json:"currentPositionMs"`
	Volume            int       `json:"volume"`
	UpdatedAt         time.Time `json:"updatedAt"`
}
