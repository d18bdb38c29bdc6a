// Package collection implements the ordering engine for jukebox
// collections: album membership, caller-assigned sort order and the derived
// dense display numbers, plus section definitions over the ordered list.
package collection

import (
	"database/sql"
	"slices"
	"strings"

	"cantina/internal/apperr"
	"cantina/internal/lock"
	"cantina/internal/store"
	"cantina/pkg/models"

	"github.com/sirupsen/logrus"
)

// Engine maintains collections and their album ordering. All mutating
// operations serialize per collection and run inside a single transaction,
// so the display numbers of a collection always form a dense 1..N
// permutation ordered by (sort_order, id).
type Engine struct {
	store  *store.Store
	locks  *lock.Keyed
	logger *logrus.Logger
}

// AlbumEntry is one album of a collection listing, carrying the display
// number shown to the user and, optionally, the playable tracks.
type AlbumEntry struct {
	DisplayNumber int            `json:"displayNumber"`
	Album         models.Album   `json:"album"`
	Tracks        []models.Track `json:"tracks,omitempty"`
}

// NewEngine creates a collection ordering engine. The keyed lock must be the
// same instance the queue manager and playback machine use, so all mutations
// of one collection serialize with each other.
func NewEngine(st *store.Store, locks *lock.Keyed, logger *logrus.Logger) *Engine {
	return &Engine{store: st, locks: locks, logger: logger}
}

// Create creates a new collection. Name and slug must be unique and the
// reserved "all" slug is rejected.
func (e *Engine) Create(name, slug, description string) (*models.Collection, error) {
	name = strings.TrimSpace(name)
	slug = strings.TrimSpace(slug)
	if name == "" || slug == "" {
		return nil, apperr.Validation("collection name and slug are required")
	}
	if slug == models.VirtualAllSlug {
		return nil, apperr.Validation("slug %q is reserved for the virtual collection", slug)
	}

	if existing, err := e.store.GetCollectionBySlug(slug); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, apperr.Validation("collection with slug %q already exists", slug)
	}
	if existing, err := e.store.GetCollectionByName(name); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, apperr.Validation("collection with name %q already exists", name)
	}

	c := &models.Collection{Name: name, Slug: slug, Description: description}
	if err := e.store.InsertCollection(c); err != nil {
		// A concurrent Create can slip between the checks above and the
		// insert; the schema's UNIQUE constraints catch it.
		if store.IsUniqueConstraint(err) {
			return nil, apperr.Validation("collection with name %q or slug %q already exists", name, slug)
		}
		return nil, err
	}

	e.logger.WithFields(logrus.Fields{"name": name, "slug": slug}).Info("Created collection")
	return c, nil
}

// Update changes a collection's name and/or description. Nil fields are left
// untouched.
func (e *Engine) Update(collectionID string, name, description *string) (*models.Collection, error) {
	if collectionID == models.VirtualAllID {
		return nil, apperr.Validation("the virtual collection cannot be edited")
	}

	c, err := e.store.GetCollection(collectionID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, apperr.NotFound("collection %s not found", collectionID)
	}

	if name != nil {
		trimmed := strings.TrimSpace(*name)
		if trimmed == "" {
			return nil, apperr.Validation("collection name cannot be empty")
		}
		if other, err := e.store.GetCollectionByName(trimmed); err != nil {
			return nil, err
		} else if other != nil && other.ID != c.ID {
			return nil, apperr.Validation("collection with name %q already exists", trimmed)
		}
		c.Name = trimmed
	}
	if description != nil {
		c.Description = *description
	}

	if _, err := e.store.UpdateCollection(c.ID, c.Name, c.Description); err != nil {
		if store.IsUniqueConstraint(err) {
			return nil, apperr.Validation("collection with name %q already exists", c.Name)
		}
		return nil, err
	}
	return c, nil
}

// Delete removes a collection along with its memberships, queue and playback
// state. The virtual "all" collection cannot be deleted.
func (e *Engine) Delete(collectionID string) error {
	if collectionID == models.VirtualAllID {
		return apperr.Validation("the virtual collection cannot be deleted")
	}

	unlock := e.locks.Lock(collectionID)
	defer unlock()

	return e.store.WithTx(func(tx *sql.Tx) error {
		deleted, err := e.store.DeleteCollection(tx, collectionID)
		if err != nil {
			return err
		}
		if !deleted {
			return apperr.NotFound("collection %s not found", collectionID)
		}
		e.logger.WithField("collection_id", collectionID).Info("Deleted collection")
		return nil
	})
}

// Get returns a collection by id.
func (e *Engine) Get(collectionID string) (*models.Collection, error) {
	c, err := e.store.GetCollection(collectionID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, apperr.NotFound("collection %s not found", collectionID)
	}
	return c, nil
}

// List returns all collections, the virtual one included.
func (e *Engine) List() ([]models.Collection, error) {
	return e.store.ListCollections()
}

// ResolveSlug maps a slug to a collection reference. The reserved "all" slug
// resolves to the virtual collection without touching the store.
func (e *Engine) ResolveSlug(slug string) (models.CollectionRef, error) {
	if slug == models.VirtualAllSlug {
		return models.VirtualAll(), nil
	}
	c, err := e.store.GetCollectionBySlug(slug)
	if err != nil {
		return models.CollectionRef{}, err
	}
	if c == nil {
		return models.CollectionRef{}, apperr.NotFound("collection %q not found", slug)
	}
	return models.RealCollection(c.ID), nil
}

// Albums lists a collection's albums in display order. For the virtual
// collection the listing is computed: every non-archived album ordered by
// (artist, title) with display numbers assigned by enumeration. For real
// collections archived albums are skipped and, when includeTracks is set,
// each entry carries the membership's enabled tracks that are also globally
// enabled, in (disc_number, track_number) order.
func (e *Engine) Albums(ref models.CollectionRef, includeTracks bool) ([]AlbumEntry, error) {
	if ref.IsVirtual() {
		return e.virtualAlbums(includeTracks)
	}

	c, err := e.store.GetCollection(ref.ID())
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, apperr.NotFound("collection %s not found", ref.ID())
	}

	memberships, err := e.store.MembershipsOrdered(e.store.DB(), ref.ID())
	if err != nil {
		return nil, err
	}

	var entries []AlbumEntry
	for _, m := range memberships {
		album, err := e.store.GetAlbum(m.AlbumID)
		if err != nil {
			return nil, err
		}
		if album == nil || album.Archived {
			continue
		}

		entry := AlbumEntry{DisplayNumber: m.DisplayNumber, Album: *album}
		if includeTracks {
			tracks, err := e.store.TracksByAlbum(album.ID)
			if err != nil {
				return nil, err
			}
			enabled := make(map[string]bool, len(m.EnabledTrackIDs))
			for _, id := range m.EnabledTrackIDs {
				enabled[id] = true
			}
			for _, t := range tracks {
				if t.Enabled && enabled[t.ID] {
					entry.Tracks = append(entry.Tracks, t)
				}
			}
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// virtualAlbums computes the "all" listing; nothing is stored for it.
func (e *Engine) virtualAlbums(includeTracks bool) ([]AlbumEntry, error) {
	albums, err := e.store.ListAlbums(false)
	if err != nil {
		return nil, err
	}

	entries := make([]AlbumEntry, 0, len(albums))
	for i, album := range albums {
		entry := AlbumEntry{DisplayNumber: i + 1, Album: album}
		if includeTracks {
			tracks, err := e.store.TracksByAlbum(album.ID)
			if err != nil {
				return nil, err
			}
			for _, t := range tracks {
				if t.Enabled {
					entry.Tracks = append(entry.Tracks, t)
				}
			}
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// AddAlbum adds an album to a collection. Adding an album that is already a
// member returns the existing membership unchanged. New memberships default
// to every track of the album enabled and a sort order at the end of the
// list, and the collection's display numbers are recomputed in the same
// transaction.
func (e *Engine) AddAlbum(collectionID, albumID string, sortOrder *int) (*models.CollectionAlbum, error) {
	if collectionID == models.VirtualAllID {
		return nil, apperr.Validation("the virtual collection cannot hold memberships")
	}

	unlock := e.locks.Lock(collectionID)
	defer unlock()

	var membership *models.CollectionAlbum
	err := e.store.WithTx(func(tx *sql.Tx) error {
		c, err := e.store.GetCollectionTx(tx, collectionID)
		if err != nil {
			return err
		}
		if c == nil {
			return apperr.NotFound("collection %s not found", collectionID)
		}

		existing, err := e.store.GetMembership(tx, collectionID, albumID)
		if err != nil {
			return err
		}
		if existing != nil {
			membership = existing
			return nil
		}

		if exists, err := e.store.AlbumExists(tx, albumID); err != nil {
			return err
		} else if !exists {
			return apperr.NotFound("album %s not found", albumID)
		}

		tracks, err := e.store.TracksByAlbumTx(tx, albumID)
		if err != nil {
			return err
		}

		trackIDs := make([]string, len(tracks))
		for i, t := range tracks {
			trackIDs[i] = t.ID
		}

		order := 0
		if sortOrder != nil {
			order = *sortOrder
		} else {
			count, err := e.store.MembershipCount(tx, collectionID)
			if err != nil {
				return err
			}
			order = count + 1
		}

		membership = &models.CollectionAlbum{
			CollectionID:    collectionID,
			AlbumID:         albumID,
			SortOrder:       order,
			DisplayNumber:   0, // assigned by the recompute below
			EnabledTrackIDs: trackIDs,
		}
		if err := e.store.InsertMembership(tx, membership); err != nil {
			return err
		}
		return e.recomputeTx(tx, collectionID, membership)
	})
	if err != nil {
		return nil, err
	}
	return membership, nil
}

// RemoveAlbum removes an album from a collection and reports whether a
// membership was deleted. Display numbers are recomputed when one was.
func (e *Engine) RemoveAlbum(collectionID, albumID string) (bool, error) {
	if collectionID == models.VirtualAllID {
		return false, apperr.Validation("the virtual collection cannot hold memberships")
	}

	unlock := e.locks.Lock(collectionID)
	defer unlock()

	var removed bool
	err := e.store.WithTx(func(tx *sql.Tx) error {
		deleted, err := e.store.DeleteMembership(tx, collectionID, albumID)
		if err != nil {
			return err
		}
		removed = deleted
		if !deleted {
			return nil
		}
		return e.recomputeTx(tx, collectionID, nil)
	})
	return removed, err
}

// SetSortOrder updates the caller-assigned sort order of a membership and
// recomputes the collection's display numbers.
func (e *Engine) SetSortOrder(collectionID, albumID string, newOrder int) error {
	unlock := e.locks.Lock(collectionID)
	defer unlock()

	return e.store.WithTx(func(tx *sql.Tx) error {
		m, err := e.store.GetMembership(tx, collectionID, albumID)
		if err != nil {
			return err
		}
		if m == nil {
			return apperr.NotFound("album %s is not in collection %s", albumID, collectionID)
		}
		if err := e.store.UpdateMembershipSortOrder(tx, m.ID, newOrder); err != nil {
			return err
		}
		return e.recomputeTx(tx, collectionID, nil)
	})
}

// SetFullOrder replaces the whole order of a collection: orderedAlbumIDs
// must be exactly the current membership set (no duplicates, no unknown ids,
// no omissions). Sort orders are assigned by list index and display numbers
// recomputed; any validation failure leaves the stored state untouched.
func (e *Engine) SetFullOrder(collectionID string, orderedAlbumIDs []string) error {
	unlock := e.locks.Lock(collectionID)
	defer unlock()

	return e.store.WithTx(func(tx *sql.Tx) error {
		memberships, err := e.store.MembershipsOrdered(tx, collectionID)
		if err != nil {
			return err
		}

		if len(orderedAlbumIDs) != len(memberships) {
			return apperr.Validation("order list has %d albums, collection has %d",
				len(orderedAlbumIDs), len(memberships))
		}

		byAlbum := make(map[string]*models.CollectionAlbum, len(memberships))
		for i := range memberships {
			byAlbum[memberships[i].AlbumID] = &memberships[i]
		}

		seen := make(map[string]bool, len(orderedAlbumIDs))
		for _, albumID := range orderedAlbumIDs {
			if seen[albumID] {
				return apperr.Validation("duplicate album id %s in order list", albumID)
			}
			seen[albumID] = true
			if byAlbum[albumID] == nil {
				return apperr.Validation("album %s is not in collection %s", albumID, collectionID)
			}
		}

		for index, albumID := range orderedAlbumIDs {
			if err := e.store.UpdateMembershipSortOrder(tx, byAlbum[albumID].ID, index); err != nil {
				return err
			}
		}
		return e.recomputeTx(tx, collectionID, nil)
	})
}

// SetEnabledTracks replaces the enabled-track selection of a membership.
// Every id must belong to the album.
func (e *Engine) SetEnabledTracks(collectionID, albumID string, trackIDs []string) error {
	unlock := e.locks.Lock(collectionID)
	defer unlock()

	return e.store.WithTx(func(tx *sql.Tx) error {
		m, err := e.store.GetMembership(tx, collectionID, albumID)
		if err != nil {
			return err
		}
		if m == nil {
			return apperr.NotFound("album %s is not in collection %s", albumID, collectionID)
		}

		tracks, err := e.store.TracksByAlbumTx(tx, albumID)
		if err != nil {
			return err
		}
		valid := make(map[string]bool, len(tracks))
		for _, t := range tracks {
			valid[t.ID] = true
		}
		for _, id := range trackIDs {
			if !valid[id] {
				return apperr.Validation("track %s does not belong to album %s", id, albumID)
			}
		}

		return e.store.UpdateMembershipEnabledTracks(tx, m.ID, trackIDs)
	})
}

// RecomputeDisplayNumbers re-derives the dense 1..N display numbers of a
// collection from its (sort_order, id) order. Deterministic and idempotent.
func (e *Engine) RecomputeDisplayNumbers(collectionID string) error {
	unlock := e.locks.Lock(collectionID)
	defer unlock()

	return e.store.WithTx(func(tx *sql.Tx) error {
		return e.recomputeTx(tx, collectionID, nil)
	})
}

// DeleteAlbum removes an album from the library entirely. Memberships
// cascade away, so every collection the album belonged to gets its display
// numbers recomputed in the same transaction. The locks can only be taken
// from a pre-lock snapshot of the membership set, so the set is re-read
// under the locks and the deletion retried when it changed in between.
func (e *Engine) DeleteAlbum(albumID string) error {
	for {
		snapshot, err := e.store.CollectionIDsForAlbum(e.store.DB(), albumID)
		if err != nil {
			return err
		}
		// Lock in sorted order so concurrent multi-collection deletions
		// cannot deadlock.
		slices.Sort(snapshot)

		retry, err := e.deleteAlbumLocked(albumID, snapshot)
		if err != nil || !retry {
			return err
		}
	}
}

// deleteAlbumLocked holds the snapshot collections' locks and deletes the
// album only while the membership set still equals the snapshot. A stale
// snapshot reports retry=true without touching the store, so a membership
// added concurrently is never cascaded away with its collection unlocked
// and unrecomputed.
func (e *Engine) deleteAlbumLocked(albumID string, collectionIDs []string) (bool, error) {
	for _, id := range collectionIDs {
		unlock := e.locks.Lock(id)
		defer unlock()
	}

	stale := false
	err := e.store.WithTx(func(tx *sql.Tx) error {
		current, err := e.store.CollectionIDsForAlbum(tx, albumID)
		if err != nil {
			return err
		}
		slices.Sort(current)
		if !slices.Equal(current, collectionIDs) {
			stale = true
			return nil
		}

		deleted, err := e.store.DeleteAlbum(tx, albumID)
		if err != nil {
			return err
		}
		if !deleted {
			return apperr.NotFound("album %s not found", albumID)
		}
		for _, id := range collectionIDs {
			if err := e.recomputeTx(tx, id, nil); err != nil {
				return err
			}
		}
		e.logger.WithField("album_id", albumID).Info("Deleted album")
		return nil
	})
	return stale, err
}

// recomputeTx assigns display_number = 1..N over the collection's
// memberships in (sort_order, id) order. When updated is non-nil its
// in-memory display number is refreshed so callers return current data.
func (e *Engine) recomputeTx(q store.Querier, collectionID string, updated *models.CollectionAlbum) error {
	memberships, err := e.store.MembershipsOrdered(q, collectionID)
	if err != nil {
		return err
	}

	for i := range memberships {
		number := i + 1
		if memberships[i].DisplayNumber != number {
			if err := e.store.UpdateMembershipDisplayNumber(q, memberships[i].ID, number); err != nil {
				return err
			}
		}
		if updated != nil && memberships[i].ID == updated.ID {
			updated.DisplayNumber = number
		}
	}

	e.logger.WithFields(logrus.Fields{
		"collection_id": collectionID,
		"albums":        len(memberships),
	}).Debug("Recomputed display numbers")
	return nil
}
