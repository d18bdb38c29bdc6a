package collection

import (
	"fmt"
	"path/filepath"
	"testing"

	"cantina/internal/apperr"
	"cantina/internal/lock"
	"cantina/internal/store"
	"cantina/pkg/models"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T) (*Engine, *store.Store) {
	t.Helper()

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	st, err := store.NewStore(filepath.Join(t.TempDir(), "test.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	return NewEngine(st, lock.NewKeyed(), logger), st
}

// seedAlbum inserts an album with trackCount tracks on a single disc.
func seedAlbum(t *testing.T, st *store.Store, title, artist string, trackCount int) *models.Album {
	t.Helper()

	album := &models.Album{Title: title, Artist: artist, Year: 2001, TotalTracks: trackCount}
	require.NoError(t, st.InsertAlbum(album))

	for i := 1; i <= trackCount; i++ {
		track := &models.Track{
			AlbumID:     album.ID,
			DiscNumber:  1,
			TrackNumber: i,
			Title:       fmt.Sprintf("%s track %d", title, i),
			Artist:      artist,
			DurationMs:  180000,
			Enabled:     true,
		}
		require.NoError(t, st.InsertTrack(track))
	}
	return album
}

func displayNumbers(t *testing.T, st *store.Store, collectionID string) []int {
	t.Helper()

	memberships, err := st.MembershipsOrdered(st.DB(), collectionID)
	require.NoError(t, err)

	numbers := make([]int, len(memberships))
	for i, m := range memberships {
		numbers[i] = m.DisplayNumber
	}
	return numbers
}

func TestCreateCollection(t *testing.T) {
	engine, _ := newTestEngine(t)

	c, err := engine.Create("Rock", "rock", "guitar heavy")
	require.NoError(t, err)
	assert.NotEmpty(t, c.ID)
	assert.Equal(t, "Rock", c.Name)
	assert.Equal(t, "rock", c.Slug)
}

func TestCreateCollectionRejectsReservedSlug(t *testing.T) {
	engine, _ := newTestEngine(t)

	_, err := engine.Create("Everything", "all", "")
	assert.True(t, apperr.IsValidation(err))
}

func TestCreateCollectionRejectsDuplicates(t *testing.T) {
	engine, _ := newTestEngine(t)

	_, err := engine.Create("Rock", "rock", "")
	require.NoError(t, err)

	_, err = engine.Create("Other", "rock", "")
	assert.True(t, apperr.IsValidation(err), "duplicate slug must be rejected")

	_, err = engine.Create("Rock", "rock-2", "")
	assert.True(t, apperr.IsValidation(err), "duplicate name must be rejected")
}

func TestResolveSlug(t *testing.T) {
	engine, _ := newTestEngine(t)

	c, err := engine.Create("Rock", "rock", "")
	require.NoError(t, err)

	ref, err := engine.ResolveSlug("rock")
	require.NoError(t, err)
	assert.Equal(t, c.ID, ref.ID())
	assert.False(t, ref.IsVirtual())

	ref, err = engine.ResolveSlug("all")
	require.NoError(t, err)
	assert.True(t, ref.IsVirtual())
	assert.Equal(t, models.VirtualAllID, ref.ID())

	_, err = engine.ResolveSlug("nope")
	assert.True(t, apperr.IsNotFound(err))
}

func TestAddAlbumAssignsDenseDisplayNumbers(t *testing.T) {
	engine, st := newTestEngine(t)

	c, err := engine.Create("Rock", "rock", "")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		album := seedAlbum(t, st, fmt.Sprintf("Album %d", i), "Artist", 2)
		m, err := engine.AddAlbum(c.ID, album.ID, nil)
		require.NoError(t, err)
		assert.Equal(t, i+1, m.DisplayNumber)
	}

	assert.Equal(t, []int{1, 2, 3}, displayNumbers(t, st, c.ID))
}

func TestAddAlbumIsIdempotent(t *testing.T) {
	engine, st := newTestEngine(t)

	c, err := engine.Create("Rock", "rock", "")
	require.NoError(t, err)
	album := seedAlbum(t, st, "Album", "Artist", 2)

	first, err := engine.AddAlbum(c.ID, album.ID, nil)
	require.NoError(t, err)

	second, err := engine.AddAlbum(c.ID, album.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	count, err := st.MembershipCount(st.DB(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestAddAlbumDefaultsToAllTracksEnabled(t *testing.T) {
	engine, st := newTestEngine(t)

	c, err := engine.Create("Rock", "rock", "")
	require.NoError(t, err)
	album := seedAlbum(t, st, "Album", "Artist", 3)

	m, err := engine.AddAlbum(c.ID, album.ID, nil)
	require.NoError(t, err)
	assert.Len(t, m.EnabledTrackIDs, 3)
}

func TestAddAlbumUnknownAlbum(t *testing.T) {
	engine, _ := newTestEngine(t)

	c, err := engine.Create("Rock", "rock", "")
	require.NoError(t, err)

	_, err = engine.AddAlbum(c.ID, "11111111-1111-1111-1111-111111111111", nil)
	assert.True(t, apperr.IsNotFound(err))
}

func TestRemoveAlbumRenumbers(t *testing.T) {
	engine, st := newTestEngine(t)

	c, err := engine.Create("Rock", "rock", "")
	require.NoError(t, err)

	albums := make([]*models.Album, 3)
	for i := range albums {
		albums[i] = seedAlbum(t, st, fmt.Sprintf("Album %d", i), "Artist", 1)
		_, err := engine.AddAlbum(c.ID, albums[i].ID, nil)
		require.NoError(t, err)
	}

	removed, err := engine.RemoveAlbum(c.ID, albums[1].ID)
	require.NoError(t, err)
	assert.True(t, removed)

	assert.Equal(t, []int{1, 2}, displayNumbers(t, st, c.ID))

	// Removing a non-member reports false without error.
	removed, err = engine.RemoveAlbum(c.ID, albums[1].ID)
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestSetSortOrderRecomputes(t *testing.T) {
	engine, st := newTestEngine(t)

	c, err := engine.Create("Rock", "rock", "")
	require.NoError(t, err)

	a := seedAlbum(t, st, "A", "Artist", 1)
	b := seedAlbum(t, st, "B", "Artist", 1)
	_, err = engine.AddAlbum(c.ID, a.ID, nil)
	require.NoError(t, err)
	_, err = engine.AddAlbum(c.ID, b.ID, nil)
	require.NoError(t, err)

	// Move b before a.
	require.NoError(t, engine.SetSortOrder(c.ID, b.ID, 0))

	memberships, err := st.MembershipsOrdered(st.DB(), c.ID)
	require.NoError(t, err)
	require.Len(t, memberships, 2)
	assert.Equal(t, b.ID, memberships[0].AlbumID)
	assert.Equal(t, 1, memberships[0].DisplayNumber)
	assert.Equal(t, a.ID, memberships[1].AlbumID)
	assert.Equal(t, 2, memberships[1].DisplayNumber)
}

func TestSetSortOrderUnknownMembership(t *testing.T) {
	engine, st := newTestEngine(t)

	c, err := engine.Create("Rock", "rock", "")
	require.NoError(t, err)
	album := seedAlbum(t, st, "A", "Artist", 1)

	err = engine.SetSortOrder(c.ID, album.ID, 1)
	assert.True(t, apperr.IsNotFound(err))
}

func TestSetFullOrder(t *testing.T) {
	engine, st := newTestEngine(t)

	c, err := engine.Create("Rock", "rock", "")
	require.NoError(t, err)

	ids := make([]string, 4)
	for i := range ids {
		album := seedAlbum(t, st, fmt.Sprintf("Album %d", i), "Artist", 1)
		_, err := engine.AddAlbum(c.ID, album.ID, nil)
		require.NoError(t, err)
		ids[i] = album.ID
	}

	reversed := []string{ids[3], ids[2], ids[1], ids[0]}
	require.NoError(t, engine.SetFullOrder(c.ID, reversed))

	memberships, err := st.MembershipsOrdered(st.DB(), c.ID)
	require.NoError(t, err)
	for i, m := range memberships {
		assert.Equal(t, reversed[i], m.AlbumID)
		assert.Equal(t, i+1, m.DisplayNumber)
	}
}

func TestSetFullOrderMismatchLeavesStateUnchanged(t *testing.T) {
	engine, st := newTestEngine(t)

	c, err := engine.Create("Rock", "rock", "")
	require.NoError(t, err)

	ids := make([]string, 3)
	for i := range ids {
		album := seedAlbum(t, st, fmt.Sprintf("Album %d", i), "Artist", 1)
		_, err := engine.AddAlbum(c.ID, album.ID, nil)
		require.NoError(t, err)
		ids[i] = album.ID
	}

	before, err := st.MembershipsOrdered(st.DB(), c.ID)
	require.NoError(t, err)

	cases := map[string][]string{
		"too short":  {ids[0], ids[1]},
		"too long":   {ids[0], ids[1], ids[2], ids[0]},
		"duplicate":  {ids[0], ids[0], ids[1]},
		"unknown id": {ids[0], ids[1], "11111111-1111-1111-1111-111111111111"},
	}

	for name, order := range cases {
		t.Run(name, func(t *testing.T) {
			err := engine.SetFullOrder(c.ID, order)
			assert.True(t, apperr.IsValidation(err))

			after, err := st.MembershipsOrdered(st.DB(), c.ID)
			require.NoError(t, err)
			assert.Equal(t, before, after)
		})
	}
}

func TestDisplayNumbersStayDenseAcrossMutations(t *testing.T) {
	engine, st := newTestEngine(t)

	c, err := engine.Create("Rock", "rock", "")
	require.NoError(t, err)

	ids := make([]string, 5)
	for i := range ids {
		album := seedAlbum(t, st, fmt.Sprintf("Album %d", i), "Artist", 1)
		_, err := engine.AddAlbum(c.ID, album.ID, nil)
		require.NoError(t, err)
		ids[i] = album.ID
	}

	_, err = engine.RemoveAlbum(c.ID, ids[2])
	require.NoError(t, err)
	require.NoError(t, engine.SetSortOrder(c.ID, ids[4], -3))
	require.NoError(t, engine.SetFullOrder(c.ID, []string{ids[0], ids[1], ids[3], ids[4]}))
	_, err = engine.RemoveAlbum(c.ID, ids[0])
	require.NoError(t, err)

	numbers := displayNumbers(t, st, c.ID)
	assert.Equal(t, []int{1, 2, 3}, numbers)
}

func TestVirtualCollectionListing(t *testing.T) {
	engine, st := newTestEngine(t)

	seedAlbum(t, st, "Zeta", "Beta Band", 1)
	seedAlbum(t, st, "Alpha", "Alpha Band", 1)
	archived := seedAlbum(t, st, "Gone", "Alpha Band", 1)

	_, err := st.SetAlbumArchived(archived.ID, true)
	require.NoError(t, err)

	entries, err := engine.Albums(models.VirtualAll(), false)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	// Ordered by (artist, title), numbered by enumeration.
	assert.Equal(t, "Alpha", entries[0].Album.Title)
	assert.Equal(t, 1, entries[0].DisplayNumber)
	assert.Equal(t, "Zeta", entries[1].Album.Title)
	assert.Equal(t, 2, entries[1].DisplayNumber)
}

func TestVirtualCollectionRejectsMutations(t *testing.T) {
	engine, st := newTestEngine(t)
	album := seedAlbum(t, st, "Album", "Artist", 1)

	_, err := engine.AddAlbum(models.VirtualAllID, album.ID, nil)
	assert.True(t, apperr.IsValidation(err))

	_, err = engine.RemoveAlbum(models.VirtualAllID, album.ID)
	assert.True(t, apperr.IsValidation(err))

	err = engine.Delete(models.VirtualAllID)
	assert.True(t, apperr.IsValidation(err))
}

func TestAlbumsWithTracksFiltersDisabled(t *testing.T) {
	engine, st := newTestEngine(t)

	c, err := engine.Create("Rock", "rock", "")
	require.NoError(t, err)
	album := seedAlbum(t, st, "Album", "Artist", 3)

	tracks, err := st.TracksByAlbum(album.ID)
	require.NoError(t, err)
	require.Len(t, tracks, 3)

	_, err = engine.AddAlbum(c.ID, album.ID, nil)
	require.NoError(t, err)

	// Deselect one track in the collection, globally disable another.
	require.NoError(t, engine.SetEnabledTracks(c.ID, album.ID, []string{tracks[0].ID, tracks[1].ID}))
	_, err = st.SetTrackEnabled(tracks[1].ID, false)
	require.NoError(t, err)

	entries, err := engine.Albums(models.RealCollection(c.ID), true)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Len(t, entries[0].Tracks, 1)
	assert.Equal(t, tracks[0].ID, entries[0].Tracks[0].ID)
}

func TestSetEnabledTracksRejectsForeignTrack(t *testing.T) {
	engine, st := newTestEngine(t)

	c, err := engine.Create("Rock", "rock", "")
	require.NoError(t, err)
	album := seedAlbum(t, st, "Album", "Artist", 1)
	other := seedAlbum(t, st, "Other", "Artist", 1)

	_, err = engine.AddAlbum(c.ID, album.ID, nil)
	require.NoError(t, err)

	otherTracks, err := st.TracksByAlbum(other.ID)
	require.NoError(t, err)

	err = engine.SetEnabledTracks(c.ID, album.ID, []string{otherTracks[0].ID})
	assert.True(t, apperr.IsValidation(err))
}

func TestDeleteAlbumRecomputesEveryCollection(t *testing.T) {
	engine, st := newTestEngine(t)

	c1, err := engine.Create("Rock", "rock", "")
	require.NoError(t, err)
	c2, err := engine.Create("Jazz", "jazz", "")
	require.NoError(t, err)

	shared := seedAlbum(t, st, "Shared", "Artist", 1)
	solo1 := seedAlbum(t, st, "Solo 1", "Artist", 1)
	solo2 := seedAlbum(t, st, "Solo 2", "Artist", 1)

	for _, albumID := range []string{shared.ID, solo1.ID} {
		_, err := engine.AddAlbum(c1.ID, albumID, nil)
		require.NoError(t, err)
	}
	for _, albumID := range []string{shared.ID, solo2.ID} {
		_, err := engine.AddAlbum(c2.ID, albumID, nil)
		require.NoError(t, err)
	}

	require.NoError(t, engine.DeleteAlbum(shared.ID))

	assert.Equal(t, []int{1}, displayNumbers(t, st, c1.ID))
	assert.Equal(t, []int{1}, displayNumbers(t, st, c2.ID))

	album, err := st.GetAlbum(shared.ID)
	require.NoError(t, err)
	assert.Nil(t, album)
}

// A membership added between the pre-lock snapshot and the locks must not be
// cascaded away without its collection recomputed.
func TestDeleteAlbumStaleSnapshotRetries(t *testing.T) {
	engine, st := newTestEngine(t)

	c1, err := engine.Create("Rock", "rock", "")
	require.NoError(t, err)
	c2, err := engine.Create("Jazz", "jazz", "")
	require.NoError(t, err)

	shared := seedAlbum(t, st, "Shared", "Artist", 1)
	other := seedAlbum(t, st, "Other", "Artist", 1)
	_, err = engine.AddAlbum(c1.ID, shared.ID, nil)
	require.NoError(t, err)
	_, err = engine.AddAlbum(c2.ID, other.ID, nil)
	require.NoError(t, err)
	_, err = engine.AddAlbum(c2.ID, shared.ID, nil)
	require.NoError(t, err)

	// Snapshot taken before the second collection held the album: the
	// locked pass must notice the stale set and back off untouched.
	retry, err := engine.deleteAlbumLocked(shared.ID, []string{c1.ID})
	require.NoError(t, err)
	assert.True(t, retry)

	album, err := st.GetAlbum(shared.ID)
	require.NoError(t, err)
	require.NotNil(t, album, "a stale snapshot must not delete the album")
	assert.Equal(t, []int{1, 2}, displayNumbers(t, st, c2.ID))

	// The retrying entry point converges on the current membership set
	// and recomputes every affected collection.
	require.NoError(t, engine.DeleteAlbum(shared.ID))
	assert.Empty(t, displayNumbers(t, st, c1.ID))
	assert.Equal(t, []int{1}, displayNumbers(t, st, c2.ID))
}

// Two concurrent creates with the same slug: exactly one wins, and the loser
// sees a validation error whether it lost to the pre-check or the schema's
// UNIQUE constraint.
func TestCreateCollectionConcurrentDuplicateSlug(t *testing.T) {
	engine, _ := newTestEngine(t)

	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		name := fmt.Sprintf("Rock %d", i)
		go func() {
			_, err := engine.Create(name, "rock", "")
			errs <- err
		}()
	}

	failed := 0
	for i := 0; i < 2; i++ {
		if err := <-errs; err != nil {
			failed++
			assert.True(t, apperr.IsValidation(err), "duplicate slug must surface as a validation error, got %v", err)
		}
	}
	assert.Equal(t, 1, failed)
}

func TestDeleteCollectionCascades(t *testing.T) {
	engine, st := newTestEngine(t)

	c, err := engine.Create("Rock", "rock", "")
	require.NoError(t, err)
	album := seedAlbum(t, st, "Album", "Artist", 1)
	_, err = engine.AddAlbum(c.ID, album.ID, nil)
	require.NoError(t, err)

	require.NoError(t, engine.Delete(c.ID))

	_, err = engine.Get(c.ID)
	assert.True(t, apperr.IsNotFound(err))

	// The album itself survives.
	got, err := st.GetAlbum(album.ID)
	require.NoError(t, err)
	assert.NotNil(t, got)
}
