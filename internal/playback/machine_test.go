package playback

import (
	"path/filepath"
	"testing"

	"cantina/internal/apperr"
	"cantina/internal/lock"
	"cantina/internal/queue"
	"cantina/internal/store"
	"cantina/pkg/models"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	machine      *Machine
	manager      *queue.Manager
	store        *store.Store
	collectionID string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	st, err := store.NewStore(filepath.Join(t.TempDir(), "test.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	c := &models.Collection{Name: "Rock", Slug: "rock"}
	require.NoError(t, st.InsertCollection(c))

	locks := lock.NewKeyed()
	manager := queue.NewManager(st, locks, logger)

	return &fixture{
		machine:      NewMachine(st, manager, locks, logger),
		manager:      manager,
		store:        st,
		collectionID: c.ID,
	}
}

// seedAlbum inserts an album whose tracks carry the given ReplayGain values;
// one disc, numbered in order.
func (f *fixture) seedAlbum(t *testing.T, title string, gains []*float64) []models.Track {
	t.Helper()

	album := &models.Album{Title: title, Artist: "Artist", TotalTracks: len(gains)}
	require.NoError(t, f.store.InsertAlbum(album))

	tracks := make([]models.Track, len(gains))
	for i, gain := range gains {
		track := models.Track{
			AlbumID:           album.ID,
			DiscNumber:        1,
			TrackNumber:       i + 1,
			Title:             title,
			Enabled:           true,
			ReplayGainTrackDb: gain,
		}
		require.NoError(t, f.store.InsertTrack(&track))
		tracks[i] = track
	}
	return tracks
}

func floatPtr(v float64) *float64 { return &v }

func TestGetOrCreateDefaults(t *testing.T) {
	f := newFixture(t)

	st, err := f.machine.GetOrCreate(f.collectionID)
	require.NoError(t, err)
	assert.False(t, st.IsPlaying)
	assert.Nil(t, st.CurrentTrackID)
	assert.Equal(t, 0, st.CurrentPositionMs)
	assert.Equal(t, DefaultVolume, st.Volume)

	// Second call returns the same record.
	again, err := f.machine.GetOrCreate(f.collectionID)
	require.NoError(t, err)
	assert.Equal(t, st.ID, again.ID)
}

func TestGetOrCreateUnknownCollection(t *testing.T) {
	f := newFixture(t)

	_, err := f.machine.GetOrCreate("11111111-1111-1111-1111-111111111111")
	assert.True(t, apperr.IsNotFound(err))
}

func TestPlayWithEmptyQueueIsNoOp(t *testing.T) {
	f := newFixture(t)

	st, err := f.machine.Play(f.collectionID)
	require.NoError(t, err)
	assert.False(t, st.IsPlaying)
	assert.Nil(t, st.CurrentTrackID)
}

func TestPlayPullsNextPending(t *testing.T) {
	f := newFixture(t)
	tracks := f.seedAlbum(t, "Album", []*float64{nil, nil})

	item, _, err := f.manager.Enqueue(f.collectionID, tracks[0].ID)
	require.NoError(t, err)

	st, err := f.machine.Play(f.collectionID)
	require.NoError(t, err)
	assert.True(t, st.IsPlaying)
	require.NotNil(t, st.CurrentTrackID)
	assert.Equal(t, tracks[0].ID, *st.CurrentTrackID)
	assert.Equal(t, 0, st.CurrentPositionMs)

	got, err := f.store.GetQueueItem(f.store.DB(), item.ID)
	require.NoError(t, err)
	assert.Equal(t, models.QueuePlaying, got.Status)
}

func TestPlayResumesWithoutPullingAgain(t *testing.T) {
	f := newFixture(t)
	tracks := f.seedAlbum(t, "Album", []*float64{nil, nil})
	_, err := f.manager.EnqueueMany(f.collectionID, []string{tracks[0].ID, tracks[1].ID})
	require.NoError(t, err)

	st, err := f.machine.Play(f.collectionID)
	require.NoError(t, err)
	_, err = f.machine.Pause(f.collectionID)
	require.NoError(t, err)

	resumed, err := f.machine.Play(f.collectionID)
	require.NoError(t, err)
	assert.True(t, resumed.IsPlaying)
	assert.Equal(t, *st.CurrentTrackID, *resumed.CurrentTrackID)

	// The second track stays pending.
	next, err := f.manager.PeekNext(f.collectionID)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, tracks[1].ID, next.TrackID)
}

func TestPauseKeepsCurrentTrack(t *testing.T) {
	f := newFixture(t)
	tracks := f.seedAlbum(t, "Album", []*float64{nil})
	_, _, err := f.manager.Enqueue(f.collectionID, tracks[0].ID)
	require.NoError(t, err)

	_, err = f.machine.Play(f.collectionID)
	require.NoError(t, err)

	st, err := f.machine.Pause(f.collectionID)
	require.NoError(t, err)
	assert.False(t, st.IsPlaying)
	assert.NotNil(t, st.CurrentTrackID)
}

func TestStopClearsState(t *testing.T) {
	f := newFixture(t)
	tracks := f.seedAlbum(t, "Album", []*float64{nil})
	_, _, err := f.manager.Enqueue(f.collectionID, tracks[0].ID)
	require.NoError(t, err)

	_, err = f.machine.Play(f.collectionID)
	require.NoError(t, err)
	_, err = f.machine.UpdatePosition(f.collectionID, 5000)
	require.NoError(t, err)

	st, err := f.machine.Stop(f.collectionID)
	require.NoError(t, err)
	assert.False(t, st.IsPlaying)
	assert.Nil(t, st.CurrentTrackID)
	assert.Equal(t, 0, st.CurrentPositionMs)
}

func TestSkipAdvancesAndMarksPlayed(t *testing.T) {
	f := newFixture(t)
	tracks := f.seedAlbum(t, "Album", []*float64{nil, nil})

	first, _, err := f.manager.Enqueue(f.collectionID, tracks[0].ID)
	require.NoError(t, err)
	_, _, err = f.manager.Enqueue(f.collectionID, tracks[1].ID)
	require.NoError(t, err)

	_, err = f.machine.Play(f.collectionID)
	require.NoError(t, err)

	st, err := f.machine.Skip(f.collectionID)
	require.NoError(t, err)
	assert.True(t, st.IsPlaying, "is_playing carries over when a next track exists")
	require.NotNil(t, st.CurrentTrackID)
	assert.Equal(t, tracks[1].ID, *st.CurrentTrackID)
	assert.Equal(t, 0, st.CurrentPositionMs)

	got, err := f.store.GetQueueItem(f.store.DB(), first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.QueuePlayed, got.Status)
	assert.NotNil(t, got.PlayedAt)
}

func TestSkipWithEmptyQueueClearsState(t *testing.T) {
	f := newFixture(t)
	tracks := f.seedAlbum(t, "Album", []*float64{nil})
	_, _, err := f.manager.Enqueue(f.collectionID, tracks[0].ID)
	require.NoError(t, err)

	_, err = f.machine.Play(f.collectionID)
	require.NoError(t, err)

	st, err := f.machine.Skip(f.collectionID)
	require.NoError(t, err)
	assert.False(t, st.IsPlaying)
	assert.Nil(t, st.CurrentTrackID)
	assert.Equal(t, 0, st.CurrentPositionMs)
}

func TestSkipWhilePausedStaysPaused(t *testing.T) {
	f := newFixture(t)
	tracks := f.seedAlbum(t, "Album", []*float64{nil, nil})
	_, err := f.manager.EnqueueMany(f.collectionID, []string{tracks[0].ID, tracks[1].ID})
	require.NoError(t, err)

	_, err = f.machine.Play(f.collectionID)
	require.NoError(t, err)
	_, err = f.machine.Pause(f.collectionID)
	require.NoError(t, err)

	st, err := f.machine.Skip(f.collectionID)
	require.NoError(t, err)
	assert.False(t, st.IsPlaying)
	require.NotNil(t, st.CurrentTrackID)
	assert.Equal(t, tracks[1].ID, *st.CurrentTrackID)
}

func TestUpdatePosition(t *testing.T) {
	f := newFixture(t)

	st, err := f.machine.UpdatePosition(f.collectionID, 42000)
	require.NoError(t, err)
	assert.Equal(t, 42000, st.CurrentPositionMs)

	_, err = f.machine.UpdatePosition(f.collectionID, -1)
	assert.True(t, apperr.IsValidation(err))
}

func TestSetVolumeClamps(t *testing.T) {
	f := newFixture(t)

	cases := []struct {
		in, want int
	}{
		{-10, 0},
		{0, 0},
		{50, 50},
		{100, 100},
		{150, 100},
	}
	for _, tc := range cases {
		st, err := f.machine.SetVolume(f.collectionID, tc.in)
		require.NoError(t, err)
		assert.Equal(t, tc.want, st.Volume, "volume %d", tc.in)
	}
}

func TestNextTransitionEmptyQueue(t *testing.T) {
	f := newFixture(t)

	tr, err := f.machine.NextTransition(f.collectionID)
	require.NoError(t, err)
	assert.Nil(t, tr.NextTrackID)
	assert.Nil(t, tr.ReplayGainDb)
	assert.False(t, tr.ApplyCrossfade)
}

func TestNextTransitionNoCurrentTrack(t *testing.T) {
	f := newFixture(t)
	tracks := f.seedAlbum(t, "Album", []*float64{nil})
	_, _, err := f.manager.Enqueue(f.collectionID, tracks[0].ID)
	require.NoError(t, err)

	tr, err := f.machine.NextTransition(f.collectionID)
	require.NoError(t, err)
	require.NotNil(t, tr.NextTrackID)
	assert.Equal(t, tracks[0].ID, *tr.NextTrackID)
	assert.True(t, tr.ApplyCrossfade)
}

func TestNextTransitionConsecutiveAlbumTracks(t *testing.T) {
	f := newFixture(t)
	tracks := f.seedAlbum(t, "Album", []*float64{nil, nil})
	_, err := f.manager.EnqueueMany(f.collectionID, []string{tracks[0].ID, tracks[1].ID})
	require.NoError(t, err)

	_, err = f.machine.Play(f.collectionID)
	require.NoError(t, err)

	tr, err := f.machine.NextTransition(f.collectionID)
	require.NoError(t, err)
	require.NotNil(t, tr.NextTrackID)
	assert.Equal(t, tracks[1].ID, *tr.NextTrackID)
	assert.False(t, tr.ApplyCrossfade, "uninterrupted album playback suppresses the crossfade")
}

func TestNextTransitionDifferentAlbum(t *testing.T) {
	f := newFixture(t)
	albumX := f.seedAlbum(t, "X", []*float64{nil, nil})
	albumY := f.seedAlbum(t, "Y", []*float64{nil})

	_, err := f.manager.EnqueueMany(f.collectionID, []string{albumX[0].ID, albumY[0].ID})
	require.NoError(t, err)
	_, err = f.machine.Play(f.collectionID)
	require.NoError(t, err)

	tr, err := f.machine.NextTransition(f.collectionID)
	require.NoError(t, err)
	assert.True(t, tr.ApplyCrossfade)
}

func TestNextTransitionJumpWithinAlbum(t *testing.T) {
	f := newFixture(t)
	tracks := f.seedAlbum(t, "Album", []*float64{nil, nil, nil})

	// Queue track 1 then track 3: same album but not consecutive.
	_, err := f.manager.EnqueueMany(f.collectionID, []string{tracks[0].ID, tracks[2].ID})
	require.NoError(t, err)
	_, err = f.machine.Play(f.collectionID)
	require.NoError(t, err)

	tr, err := f.machine.NextTransition(f.collectionID)
	require.NoError(t, err)
	require.NotNil(t, tr.NextTrackID)
	assert.Equal(t, tracks[2].ID, *tr.NextTrackID)
	assert.True(t, tr.ApplyCrossfade)
}

func TestNextTransitionReplayGainFallback(t *testing.T) {
	f := newFixture(t)

	// Track-level gain wins.
	withTrackGain := f.seedAlbum(t, "Gained", []*float64{floatPtr(-6.5)})
	_, _, err := f.manager.Enqueue(f.collectionID, withTrackGain[0].ID)
	require.NoError(t, err)

	tr, err := f.machine.NextTransition(f.collectionID)
	require.NoError(t, err)
	require.NotNil(t, tr.ReplayGainDb)
	assert.InDelta(t, -6.5, *tr.ReplayGainDb, 0.001)

	_, err = f.manager.Clear(f.collectionID, true)
	require.NoError(t, err)

	// Album-level gain fills in when the track has none.
	album := &models.Album{Title: "AlbumGain", Artist: "Artist", TotalTracks: 1}
	require.NoError(t, f.store.InsertAlbum(album))
	track := models.Track{
		AlbumID: album.ID, DiscNumber: 1, TrackNumber: 1,
		Title: "t", Enabled: true, ReplayGainAlbumDb: floatPtr(-3.0),
	}
	require.NoError(t, f.store.InsertTrack(&track))
	_, _, err = f.manager.Enqueue(f.collectionID, track.ID)
	require.NoError(t, err)

	tr, err = f.machine.NextTransition(f.collectionID)
	require.NoError(t, err)
	require.NotNil(t, tr.ReplayGainDb)
	assert.InDelta(t, -3.0, *tr.ReplayGainDb, 0.001)

	_, err = f.manager.Clear(f.collectionID, true)
	require.NoError(t, err)

	// Neither present: no adjustment.
	plain := f.seedAlbum(t, "Plain", []*float64{nil})
	_, _, err = f.manager.Enqueue(f.collectionID, plain[0].ID)
	require.NoError(t, err)

	tr, err = f.machine.NextTransition(f.collectionID)
	require.NoError(t, err)
	assert.Nil(t, tr.ReplayGainDb)
}
