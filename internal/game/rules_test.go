package game

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanStartAddingSongs(t *testing.T) {
	room := Room{Status: StatusLobby}

	one := playersByID(Player{ID: "a"})
	assert.ErrorIs(t, CanStartAddingSongs(room, one), ErrNeedMorePlayers)

	two := playersByID(Player{ID: "a"}, Player{ID: "b"})
	assert.NoError(t, CanStartAddingSongs(room, two))

	room.Status = StatusPlaying
	assert.ErrorIs(t, CanStartAddingSongs(room, two), ErrBadTransition)
}

func TestSongsComplete(t *testing.T) {
	players := playersByID(Player{ID: "a"}, Player{ID: "b"})
	songs := map[string]Song{
		"s1": {ID: "s1", AddedBy: "a"},
		"s2": {ID: "s2", AddedBy: "a"},
		"s3": {ID: "s3", AddedBy: "b"},
	}
	assert.False(t, SongsComplete(players, songs, 2), "b only has one song")

	songs["s4"] = Song{ID: "s4", AddedBy: "b"}
	assert.True(t, SongsComplete(players, songs, 2))
}

func TestShuffleSongIDs_PermutationAndSeedStable(t *testing.T) {
	songs := map[string]Song{}
	for _, id := range []string{"s1", "s2", "s3", "s4", "s5"} {
		songs[id] = Song{ID: id}
	}
	a := ShuffleSongIDs(songs, rand.New(rand.NewSource(7)))
	b := ShuffleSongIDs(songs, rand.New(rand.NewSource(7)))
	assert.Equal(t, a, b, "same seed must give same order")
	assert.ElementsMatch(t, []string{"s1", "s2", "s3", "s4", "s5"}, a)
}

func TestEligibleVoters_ExcludesContributor(t *testing.T) {
	players := playersByID(Player{ID: "a"}, Player{ID: "b"}, Player{ID: "c"})
	song := Song{ID: "s1", AddedBy: "b"}
	assert.Equal(t, []string{"a", "c"}, EligibleVoters(players, song))
}

func TestContentReadyForVoting_Modes(t *testing.T) {
	players := playersByID(
		Player{ID: "host", ContentPlaying: true},
		Player{ID: "g1", ContentPlaying: true},
		Player{ID: "g2", ContentPlaying: false},
	)
	assert.False(t, ContentReadyForVoting(players, PlaybackAllPlayers, "host"))
	assert.True(t, ContentReadyForVoting(players, PlaybackHostOnly, "host"))

	g2 := players["g2"]
	g2.ContentPlaying = true
	players["g2"] = g2
	assert.True(t, ContentReadyForVoting(players, PlaybackAllPlayers, "host"))
}

func TestIsFinalRound(t *testing.T) {
	room := Room{CurrentSongIndex: 1, ShuffledSongIDs: []string{"a", "b", "c"}}
	assert.False(t, IsFinalRound(room))
	room.CurrentSongIndex = 2
	assert.True(t, IsFinalRound(room))
}
