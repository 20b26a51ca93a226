package mirror

import (
	"errors"
	"testing"

	"github.com/PandakiraDev/song-guess/internal/game"
	"github.com/PandakiraDev/song-guess/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func snapWithPlayers(version int, mode game.PlaybackMode, contentPlaying map[string]bool) store.Snapshot {
	players := make(map[string]game.Player)
	for id, playing := range contentPlaying {
		players[id] = game.Player{ID: id, ContentPlaying: playing, IsHost: id == "host"}
	}
	room := game.Room{ID: "r1", HostID: "host", Status: game.StatusPlaying, CurrentSongIndex: -1}
	room.Settings.PlaybackMode = mode
	return store.Snapshot{Version: version, Exists: true, Room: room, Players: players}
}

func TestContentReadyForVoting_AllPlayersMode(t *testing.T) {
	m := New()

	// three players, one still stuck in pre-roll
	m.Observe(snapWithPlayers(0, game.PlaybackAllPlayers, map[string]bool{
		"host": true, "g1": true, "g2": false,
	}))
	assert.False(t, m.ContentReadyForVoting())

	// the third flips true
	m.Observe(snapWithPlayers(1, game.PlaybackAllPlayers, map[string]bool{
		"host": true, "g1": true, "g2": true,
	}))
	assert.True(t, m.ContentReadyForVoting())
}

func TestContentReadyForVoting_HostOnlyModeIgnoresGuests(t *testing.T) {
	m := New()
	m.Observe(snapWithPlayers(0, game.PlaybackHostOnly, map[string]bool{
		"host": true, "g1": false, "g2": false,
	}))
	assert.True(t, m.ContentReadyForVoting())
}

func TestRoomDeletedClassification(t *testing.T) {
	// delivered a value, then "does not exist" -> closed
	m := New()
	m.Observe(snapWithPlayers(0, game.PlaybackAllPlayers, map[string]bool{"host": true}))
	m.Observe(store.Snapshot{Version: 1, Exists: false})
	assert.True(t, m.RoomDeleted())
	assert.NoError(t, m.Err())

	// only ever "does not exist" -> not found, not deleted
	m2 := New()
	m2.Observe(store.Snapshot{Version: 0, Exists: false})
	assert.False(t, m2.RoomDeleted())
	assert.ErrorIs(t, m2.Err(), ErrNotFound)
}

func TestTransportErrorKeepsLastKnownGood(t *testing.T) {
	m := New()
	m.Observe(snapWithPlayers(3, game.PlaybackAllPlayers, map[string]bool{"host": true}))
	m.ObserveError(errors.New("connection reset"))

	assert.Error(t, m.Err())
	assert.True(t, m.HasValue())
	assert.Equal(t, "r1", m.Room().ID, "snapshot must survive a transport error")

	// a fresh snapshot clears the error
	m.Observe(snapWithPlayers(4, game.PlaybackAllPlayers, map[string]bool{"host": true}))
	assert.NoError(t, m.Err())
}

func TestDerivedViews_CurrentSongAndVotes(t *testing.T) {
	snap := snapWithPlayers(0, game.PlaybackAllPlayers, map[string]bool{
		"host": false, "g1": false, "g2": false,
	})
	snap.Room.CurrentSongIndex = 0
	snap.Room.ShuffledSongIDs = []string{"s1", "s2"}
	snap.Songs = map[string]game.Song{
		"s1": {ID: "s1", Title: "first", AddedBy: "g1"},
		"s2": {ID: "s2", Title: "second", AddedBy: "g2"},
	}
	snap.Votes = map[string]game.Vote{
		game.VoteKey("host", "s1"): {VoterID: "host", SongID: "s1", VotedFor: "g1"},
		game.VoteKey("g2", "s1"):   {VoterID: "g2", SongID: "s1", VotedFor: "host"},
		game.VoteKey("host", "s2"): {VoterID: "host", SongID: "s2", VotedFor: "g2"},
	}

	m := New()
	m.Observe(snap)

	song, ok := m.CurrentSong()
	require.True(t, ok)
	assert.Equal(t, "first", song.Title)
	assert.Equal(t, 2, m.VotesForCurrentSong(), "only votes on the current song count")
	assert.Equal(t, 2, m.EligibleVoterCount(), "contributor g1 is not eligible")
}

func TestDerivedViews_MemoizedPerVersion(t *testing.T) {
	m := New()
	m.Observe(snapWithPlayers(0, game.PlaybackAllPlayers, map[string]bool{"host": true}))

	m.ContentReadyForVoting()
	m.AllPlayersReady()
	m.Ranked()
	assert.Equal(t, 1, m.recomputes, "same version must not recompute")

	m.Observe(snapWithPlayers(1, game.PlaybackAllPlayers, map[string]bool{"host": true}))
	m.ContentReadyForVoting()
	assert.Equal(t, 2, m.recomputes)
}
