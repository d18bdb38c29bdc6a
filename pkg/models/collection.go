package models

import "time"

// VirtualAllID is the fixed identifier of the virtual "all albums"
// collection. The collection row exists so queue and playback records can
// reference it, but its album list is always computed on read and it never
// holds memberships or sections.
const VirtualAllID = "00000000-0000-0000-0000-000000000000"

// VirtualAllSlug is the reserved slug of the virtual collection.
const VirtualAllSlug = "all"

// Collection represents a named, user-ordered set of albums
type Collection struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Slug            string    `json:"slug"`
	Description     string    `json:"description,omitempty"`
	SectionsEnabled bool      `json:"sectionsEnabled"`
	Sections        []Section `json:"sections,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
}

// Section is a visual grouping of a collection's ordered album list.
// StartSlot/EndSlot refer to display numbers; EndSlot may be nil on the
// last section to keep it open-ended.
type Section struct {
	Order     int    `json:"order"`
	Name      string `json:"name"`
	Color     string `json:"color"`
	StartSlot *int   `json:"startSlot,omitempty"`
	EndSlot   *int   `json:"endSlot,omitempty"`
}

// CollectionAlbum represents album membership in a collection. DisplayNumber
// is derived: it is always a dense 1..N permutation over the collection's
// memberships ordered by (SortOrder, ID).
type CollectionAlbum struct {
	ID              string    `json:"id"`
	CollectionID    string    `json:"collectionId"`
	AlbumID         string    `json:"albumId"`
	SortOrder       int       `json:"sortOrder"`
	DisplayNumber   int       `json:"displayNumber"`
	EnabledTrackIDs []string  `json:"enabledTrackIds"`
	CreatedAt       time.Time `json:"createdAt"`
}

// CollectionRef identifies either a real stored collection or the virtual
// "all" collection. Callers dispatch on the tag instead of comparing ids.
type CollectionRef struct {
	id      string
	virtual bool
}

// RealCollection returns a reference to a stored collection.
func RealCollection(id string) CollectionRef {
	return CollectionRef{id: id}
}

// VirtualAll returns the reference to the computed "all albums" collection.
func VirtualAll() CollectionRef {
	return CollectionRef{id: VirtualAllID, virtual: true}
}

// ID returns the collection id the reference points at. For the virtual
// collection this is VirtualAllID, which queue and playback records use.
func (r CollectionRef) ID() string { return r.id }

// IsVirtual reports whether the reference is the computed "all" collection.
func (r CollectionRef) IsVirtual() bool { return r.virtual }
