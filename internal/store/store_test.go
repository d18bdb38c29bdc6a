package store

import (
	"database/sql"
	"path/filepath"
	"testing"

	"cantina/pkg/models"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	st, err := NewStore(filepath.Join(t.TempDir(), "test.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestVirtualCollectionSeeded(t *testing.T) {
	st := newTestStore(t)

	c, err := st.GetCollection(models.VirtualAllID)
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, models.VirtualAllSlug, c.Slug)
}

func TestSeedIsIdempotent(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	path := filepath.Join(t.TempDir(), "test.db")
	st, err := NewStore(path, logger)
	require.NoError(t, err)
	require.NoError(t, st.Close())

	// Re-opening the same file must not fail on the seeded row.
	st, err = NewStore(path, logger)
	require.NoError(t, err)
	defer st.Close()

	collections, err := st.ListCollections()
	require.NoError(t, err)
	assert.Len(t, collections, 1)
}

func TestGetAbsentRowsReturnNil(t *testing.T) {
	st := newTestStore(t)

	album, err := st.GetAlbum("missing")
	require.NoError(t, err)
	assert.Nil(t, album)

	track, err := st.GetTrack("missing")
	require.NoError(t, err)
	assert.Nil(t, track)

	item, err := st.GetQueueItem(st.DB(), "missing")
	require.NoError(t, err)
	assert.Nil(t, item)

	state, err := st.GetPlaybackState(st.DB(), "missing")
	require.NoError(t, err)
	assert.Nil(t, state)
}

func TestWithTxRollsBackOnError(t *testing.T) {
	st := newTestStore(t)

	c := &models.Collection{Name: "Rock", Slug: "rock"}
	require.NoError(t, st.InsertCollection(c))

	sentinel := assert.AnError
	err := st.WithTx(func(tx *sql.Tx) error {
		if _, err := st.DeleteCollection(tx, c.ID); err != nil {
			return err
		}
		return sentinel
	})
	assert.Equal(t, sentinel, err)

	got, err := st.GetCollection(c.ID)
	require.NoError(t, err)
	assert.NotNil(t, got, "rollback must keep the row")
}

func TestCollectionDeleteCascades(t *testing.T) {
	st := newTestStore(t)

	c := &models.Collection{Name: "Rock", Slug: "rock"}
	require.NoError(t, st.InsertCollection(c))

	album := &models.Album{Title: "Album", Artist: "Artist"}
	require.NoError(t, st.InsertAlbum(album))
	track := &models.Track{AlbumID: album.ID, DiscNumber: 1, TrackNumber: 1, Title: "T", Enabled: true}
	require.NoError(t, st.InsertTrack(track))

	err := st.WithTx(func(tx *sql.Tx) error {
		m := &models.CollectionAlbum{
			CollectionID: c.ID, AlbumID: album.ID,
			SortOrder: 1, DisplayNumber: 1, EnabledTrackIDs: []string{track.ID},
		}
		if err := st.InsertMembership(tx, m); err != nil {
			return err
		}
		item := &models.QueueItem{CollectionID: c.ID, TrackID: track.ID, Position: 1}
		if err := st.InsertQueueItem(tx, item); err != nil {
			return err
		}
		state := &models.PlaybackState{CollectionID: c.ID, Volume: 70}
		if err := st.InsertPlaybackState(tx, state); err != nil {
			return err
		}
		_, err := st.DeleteCollection(tx, c.ID)
		return err
	})
	require.NoError(t, err)

	memberships, err := st.MembershipsOrdered(st.DB(), c.ID)
	require.NoError(t, err)
	assert.Empty(t, memberships)

	items, err := st.QueueItems(st.DB(), c.ID, true)
	require.NoError(t, err)
	assert.Empty(t, items)

	state, err := st.GetPlaybackState(st.DB(), c.ID)
	require.NoError(t, err)
	assert.Nil(t, state)
}

func TestMembershipOrderTieBreak(t *testing.T) {
	st := newTestStore(t)

	c := &models.Collection{Name: "Rock", Slug: "rock"}
	require.NoError(t, st.InsertCollection(c))

	ids := []string{"b-album", "a-album", "c-album"}
	for _, id := range ids {
		album := &models.Album{ID: id, Title: id, Artist: "Artist"}
		require.NoError(t, st.InsertAlbum(album))
	}

	err := st.WithTx(func(tx *sql.Tx) error {
		for _, id := range ids {
			m := &models.CollectionAlbum{
				CollectionID: c.ID, AlbumID: id,
				SortOrder: 7, DisplayNumber: 0, EnabledTrackIDs: []string{},
			}
			if err := st.InsertMembership(tx, m); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	// Equal sort orders fall back to membership id, so the order is
	// stable across reads.
	first, err := st.MembershipsOrdered(st.DB(), c.ID)
	require.NoError(t, err)
	second, err := st.MembershipsOrdered(st.DB(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestSettingsUpsert(t *testing.T) {
	st := newTestStore(t)

	value, err := st.GetSetting("default_collection_slug")
	require.NoError(t, err)
	assert.Equal(t, "", value)

	require.NoError(t, st.SetSetting("default_collection_slug", "rock"))
	require.NoError(t, st.SetSetting("default_collection_slug", "jazz"))

	value, err = st.GetSetting("default_collection_slug")
	require.NoError(t, err)
	assert.Equal(t, "jazz", value)
}

func TestInsertCollectionDuplicateIsUniqueConstraint(t *testing.T) {
	st := newTestStore(t)

	require.NoError(t, st.InsertCollection(&models.Collection{Name: "Rock", Slug: "rock"}))

	err := st.InsertCollection(&models.Collection{Name: "Other", Slug: "rock"})
	require.Error(t, err)
	assert.True(t, IsUniqueConstraint(err), "duplicate slug")

	err = st.InsertCollection(&models.Collection{Name: "Rock", Slug: "other"})
	require.Error(t, err)
	assert.True(t, IsUniqueConstraint(err), "duplicate name")

	assert.False(t, IsUniqueConstraint(assert.AnError))
}

func TestUpdateQueueStatusStampsPlayedAt(t *testing.T) {
	st := newTestStore(t)

	album := &models.Album{Title: "Album", Artist: "Artist"}
	require.NoError(t, st.InsertAlbum(album))
	track := &models.Track{AlbumID: album.ID, DiscNumber: 1, TrackNumber: 1, Title: "T", Enabled: true}
	require.NoError(t, st.InsertTrack(track))

	item := &models.QueueItem{CollectionID: models.VirtualAllID, TrackID: track.ID, Position: 1}
	require.NoError(t, st.InsertQueueItem(st.DB(), item))

	got, err := st.GetQueueItem(st.DB(), item.ID)
	require.NoError(t, err)
	assert.Equal(t, models.QueuePending, got.Status)
	assert.Nil(t, got.PlayedAt)
}
