package models

import "time"

// Album represents a music album in the library
type Album struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Artist       string    `json:"artist"`
	Year         int       `json:"year,omitempty"`
	TotalTracks  int       `json:"totalTracks"`
	HasMultiDisc bool      `json:"hasMultiDisc"`
	CoverArtPath string    `json:"coverArtPath,omitempty"`
	Archived     bool      `json:"archived"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Track represents a single track belonging to an album
type Track struct {
	ID          string    `json:"id"`
	AlbumID     string    `json:"albumId"`
	DiscNumber  int       `json:"discNumber"`
	TrackNumber int       `json:"trackNumber"`
	Title       string    `json:"title"`
	Artist      string    `json:"artist"`
	DurationMs  int       `json:"durationMs"`
	Enabled     bool      `json:"enabled"`
	// Loudness-normalization offsets in decibels; nil when the source
	// file carried no ReplayGain tags.
	ReplayGainTrackDb *float64  `json:"replayGainTrackDb,omitempty"`
	ReplayGainAlbumDb *float64  `json:"replayGainAlbumDb,omitempty"`
	CreatedAt         time.Time `json:"createdAt"`
}
