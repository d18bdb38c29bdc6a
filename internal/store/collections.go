package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"cantina/pkg/models"

	"github.com/google/uuid"
)

// InsertCollection inserts a new collection, assigning an id when the caller
// did not. Name and slug uniqueness is enforced by the schema; the engine
// checks first to surface a validation error instead of a constraint one.
func (s *Store) InsertCollection(c *models.Collection) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}

	sections, err := marshalSections(c.Sections)
	if err != nil {
		return err
	}

	_, err = s.conn.Exec(`
		INSERT INTO collections (id, name, slug, description, sections_enabled, sections, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.Slug, c.Description, c.SectionsEnabled, sections, c.CreatedAt)
	if err != nil {
		s.logger.WithError(err).WithField("slug", c.Slug).Error("Failed to insert collection")
	}
	return err
}

// GetCollection returns a collection by id, or nil when absent.
func (s *Store) GetCollection(id string) (*models.Collection, error) {
	return s.GetCollectionTx(s.conn, id)
}

// GetCollectionTx is the transactional variant of GetCollection.
func (s *Store) GetCollectionTx(q Querier, id string) (*models.Collection, error) {
	row := q.QueryRow(`
		SELECT id, name, slug, description, sections_enabled, sections, created_at
		FROM collections WHERE id = ?`, id)
	return scanCollection(row)
}

// GetCollectionBySlug returns a collection by slug, or nil when absent.
func (s *Store) GetCollectionBySlug(slug string) (*models.Collection, error) {
	row := s.conn.QueryRow(`
		SELECT id, name, slug, description, sections_enabled, sections, created_at
		FROM collections WHERE slug = ?`, slug)
	return scanCollection(row)
}

// GetCollectionByName returns a collection by name, or nil when absent.
func (s *Store) GetCollectionByName(name string) (*models.Collection, error) {
	row := s.conn.QueryRow(`
		SELECT id, name, slug, description, sections_enabled, sections, created_at
		FROM collections WHERE name = ?`, name)
	return scanCollection(row)
}

// ListCollections returns all collections ordered by creation time.
func (s *Store) ListCollections() ([]models.Collection, error) {
	rows, err := s.conn.Query(`
		SELECT id, name, slug, description, sections_enabled, sections, created_at
		FROM collections
		ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var collections []models.Collection
	for rows.Next() {
		c, err := scanCollection(rows)
		if err != nil {
			return nil, err
		}
		collections = append(collections, *c)
	}
	return collections, rows.Err()
}

// UpdateCollection updates a collection's name and description.
func (s *Store) UpdateCollection(id, name, description string) (bool, error) {
	result, err := s.conn.Exec(`
		UPDATE collections SET name = ?, description = ? WHERE id = ?`,
		name, description, id)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	return affected > 0, err
}

// UpdateCollectionSections stores the sections flag and list. Passing nil
// sections clears the stored list.
func (s *Store) UpdateCollectionSections(q Querier, id string, enabled bool, sections []models.Section) (bool, error) {
	marshaled, err := marshalSections(sections)
	if err != nil {
		return false, err
	}
	result, err := q.Exec(`
		UPDATE collections SET sections_enabled = ?, sections = ? WHERE id = ?`,
		enabled, marshaled, id)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	return affected > 0, err
}

// DeleteCollection removes a collection. Memberships, queue items and the
// playback state cascade away via foreign keys.
func (s *Store) DeleteCollection(q Querier, id string) (bool, error) {
	result, err := q.Exec(`DELETE FROM collections WHERE id = ?`, id)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	return affected > 0, err
}

// InsertMembership inserts a collection-album membership row.
func (s *Store) InsertMembership(q Querier, m *models.CollectionAlbum) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}

	enabledIDs, err := json.Marshal(m.EnabledTrackIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal enabled track ids: %w", err)
	}

	_, err = q.Exec(`
		INSERT INTO collection_albums (id, collection_id, album_id, sort_order, display_number, enabled_track_ids, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.CollectionID, m.AlbumID, m.SortOrder, m.DisplayNumber, string(enabledIDs), m.CreatedAt)
	return err
}

// GetMembership returns the membership of album in collection, or nil.
func (s *Store) GetMembership(q Querier, collectionID, albumID string) (*models.CollectionAlbum, error) {
	row := q.QueryRow(`
		SELECT id, collection_id, album_id, sort_order, display_number, enabled_track_ids, created_at
		FROM collection_albums
		WHERE collection_id = ? AND album_id = ?`, collectionID, albumID)
	m, err := scanMembership(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return m, err
}

// MembershipsOrdered returns a collection's memberships ordered by
// (sort_order, id). This is the canonical order display numbers derive from;
// the id tie-break keeps the recompute deterministic.
func (s *Store) MembershipsOrdered(q Querier, collectionID string) ([]models.CollectionAlbum, error) {
	rows, err := q.Query(`
		SELECT id, collection_id, album_id, sort_order, display_number, enabled_track_ids, created_at
		FROM collection_albums
		WHERE collection_id = ?
		ORDER BY sort_order, id`, collectionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var memberships []models.CollectionAlbum
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, err
		}
		memberships = append(memberships, *m)
	}
	return memberships, rows.Err()
}

// MembershipCount returns how many albums a collection holds.
func (s *Store) MembershipCount(q Querier, collectionID string) (int, error) {
	var count int
	err := q.QueryRow(`
		SELECT COUNT(*) FROM collection_albums WHERE collection_id = ?`,
		collectionID).Scan(&count)
	return count, err
}

// CollectionIDsForAlbum returns the ids of all collections an album belongs to.
func (s *Store) CollectionIDsForAlbum(q Querier, albumID string) ([]string, error) {
	rows, err := q.Query(`
		SELECT collection_id FROM collection_albums WHERE album_id = ?`, albumID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DeleteMembership removes a membership row, reporting whether one existed.
func (s *Store) DeleteMembership(q Querier, collectionID, albumID string) (bool, error) {
	result, err := q.Exec(`
		DELETE FROM collection_albums
		WHERE collection_id = ? AND album_id = ?`, collectionID, albumID)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	return affected > 0, err
}

// UpdateMembershipSortOrder sets the caller-assigned sort order on a membership.
func (s *Store) UpdateMembershipSortOrder(q Querier, membershipID string, sortOrder int) error {
	_, err := q.Exec(`
		UPDATE collection_albums SET sort_order = ? WHERE id = ?`,
		sortOrder, membershipID)
	return err
}

// UpdateMembershipDisplayNumber sets the derived display number on a membership.
func (s *Store) UpdateMembershipDisplayNumber(q Querier, membershipID string, displayNumber int) error {
	_, err := q.Exec(`
		UPDATE collection_albums SET display_number = ? WHERE id = ?`,
		displayNumber, membershipID)
	return err
}

// UpdateMembershipEnabledTracks replaces the enabled-track selection on a membership.
func (s *Store) UpdateMembershipEnabledTracks(q Querier, membershipID string, trackIDs []string) error {
	enabledIDs, err := json.Marshal(trackIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal enabled track ids: %w", err)
	}
	_, err = q.Exec(`
		UPDATE collection_albums SET enabled_track_ids = ? WHERE id = ?`,
		string(enabledIDs), membershipID)
	return err
}

func scanCollection(row rowScanner) (*models.Collection, error) {
	var c models.Collection
	var description sql.NullString
	var sections sql.NullString

	err := row.Scan(&c.ID, &c.Name, &c.Slug, &description, &c.SectionsEnabled,
		&sections, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if description.Valid {
		c.Description = description.String
	}
	if sections.Valid && sections.String != "" {
		if err := json.Unmarshal([]byte(sections.String), &c.Sections); err != nil {
			return nil, fmt.Errorf("failed to unmarshal sections: %w", err)
		}
	}
	return &c, nil
}

func scanMembership(row rowScanner) (*models.CollectionAlbum, error) {
	var m models.CollectionAlbum
	var enabledIDs string

	err := row.Scan(&m.ID, &m.CollectionID, &m.AlbumID, &m.SortOrder,
		&m.DisplayNumber, &enabledIDs, &m.CreatedAt)
	if err != nil {
		return nil, err
	}

	if enabledIDs != "" {
		if err := json.Unmarshal([]byte(enabledIDs), &m.EnabledTrackIDs); err != nil {
			return nil, fmt.Errorf("failed to unmarshal enabled track ids: %w", err)
		}
	}
	return &m, nil
}

func marshalSections(sections []models.Section) (interface{}, error) {
	if sections == nil {
		return nil, nil
	}
	data, err := json.Marshal(sections)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal sections: %w", err)
	}
	return string(data), nil
}
