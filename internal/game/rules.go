package game

import (
	"errors"
	"math/rand"
	"sort"
)

var ErrNotHost = errors.New("host-only operation")
var ErrNeedMorePlayers = errors.New("need at least two players")
var ErrSongsMissing = errors.New("not every player has submitted their songs")
var ErrBadTransition = errors.New("illegal status transition")
var ErrVotingClosed = errors.New("voting is not active")
var ErrOwnSong = errors.New("cannot vote on your own song")
var ErrAlreadyPlayed = errors.New("song already revealed")
var ErrNoCurrentSong = errors.New("no current song")

const MinPlayers = 2

// CanStartAddingSongs checks the lobby -> adding_songs precondition.
func CanStartAddingSongs(room Room, players map[string]Player) error {
	if room.Status != StatusLobby {
		return ErrBadTransition
	}
	if len(players) < MinPlayers {
		return ErrNeedMorePlayers
	}
	return nil
}

// SongsComplete reports whether every player has contributed at least
// settings.SongsPerPlayer songs.
func SongsComplete(players map[string]Player, songs map[string]Song, perPlayer int) bool {
	counts := make(map[string]int, len(players))
	for _, s := range songs {
		counts[s.AddedBy]++
	}
	for id := range players {
		if counts[id] < perPlayer {
			return false
		}
	}
	return true
}

// ShuffleSongIDs computes the round order. The order is committed to the
// room document once and never reshuffled mid-session.
func ShuffleSongIDs(songs map[string]Song, rng *rand.Rand) []string {
	ids := make([]string, 0, len(songs))
	for id := range songs {
		ids = append(ids, id)
	}
	sort.Strings(ids) // map iteration order is random; make the shuffle seed-stable
	rng.Shuffle(len(ids), func(i, j int) {
		ids[i], ids[j] = ids[j], ids[i]
	})
	return ids
}

// EligibleVoters returns the ids of everyone allowed to vote on song:
// all players except its contributor.
func EligibleVoters(players map[string]Player, song Song) []string {
	ids := make([]string, 0, len(players))
	for id := range players {
		if id != song.AddedBy {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// GateRelevant returns the ids whose ContentPlaying flag gates the round:
// everyone in all_players mode, just the host in host_only mode.
func GateRelevant(players map[string]Player, mode PlaybackMode, hostID string) []string {
	if mode == PlaybackHostOnly {
		return []string{hostID}
	}
	ids := make([]string, 0, len(players))
	for id := range players {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ContentReadyForVoting is the derived gate predicate: true once every
// relevant player reports real content playing.
func ContentReadyForVoting(players map[string]Player, mode PlaybackMode, hostID string) bool {
	for _, id := range GateRelevant(players, mode, hostID) {
		p, ok := players[id]
		if !ok || !p.ContentPlaying {
			return false
		}
	}
	return true
}

// IsFinalRound reports whether advancing past the current song would run
// off the end of the shuffled order.
func IsFinalRound(room Room) bool {
	return room.CurrentSongIndex+1 >= len(room.ShuffledSongIDs)
}
