// Package mirror is the client-side reactive cache: it consumes store
// snapshots and exposes derived, memoized views of them. It keeps the
// last-known-good snapshot across transport errors and classifies a
// vanished room ("closed") apart from one that never existed.
package mirror

import (
	"errors"

	"github.com/PandakiraDev/song-guess/internal/game"
	"github.com/PandakiraDev/song-guess/internal/store"
)

var ErrNotFound = errors.New("room not found")

// Mirror is owned by a single client loop and is not safe for
// concurrent use.
type Mirror struct {
	snap      store.Snapshot
	haveValue bool // a real (existing) value was delivered at least once
	deleted   bool
	err       error

	// derived views, recomputed at most once per snapshot version
	memoVersion int
	memoValid   bool
	views       views
	recomputes  int // test hook
}

type views struct {
	currentSong       game.Song
	haveCurrentSong   bool
	votesForCurrent   int
	eligibleVoters    int
	contentReady      bool
	allPlayersReady   bool
	allSongsSubmitted bool
	ranked            []game.RankedPlayer
}

func New() *Mirror {
	return &Mirror{}
}

// Observe ingests one snapshot from the subscription.
func (m *Mirror) Observe(snap store.Snapshot) {
	if !snap.Exists {
		if m.haveValue {
			// delivered a value before, now gone: the room was closed
			m.deleted = true
		} else {
			m.err = ErrNotFound
		}
		return
	}
	m.snap = snap
	m.haveValue = true
	m.err = nil
	m.memoValid = false
}

// ObserveError records a transport error. The last-known-good snapshot
// is kept so the UI can show a reconnect state over stale data instead
// of a blank screen.
func (m *Mirror) ObserveError(err error) {
	m.err = err
}

func (m *Mirror) Snapshot() store.Snapshot { return m.snap }
func (m *Mirror) HasValue() bool           { return m.haveValue }
func (m *Mirror) RoomDeleted() bool        { return m.deleted }
func (m *Mirror) Err() error               { return m.err }

func (m *Mirror) Room() game.Room { return m.snap.Room }

func (m *Mirror) Player(id string) (game.Player, bool) {
	p, ok := m.snap.Players[id]
	return p, ok
}

// CurrentSong returns the song of the active round.
func (m *Mirror) CurrentSong() (game.Song, bool) {
	v := m.derived()
	return v.currentSong, v.haveCurrentSong
}

// VotesForCurrentSong counts effective votes on the active round's song.
func (m *Mirror) VotesForCurrentSong() int { return m.derived().votesForCurrent }

// EligibleVoterCount is everyone except the current song's contributor.
func (m *Mirror) EligibleVoterCount() int { return m.derived().eligibleVoters }

// ContentReadyForVoting is the gate predicate of the readiness protocol:
// true once all relevant players report real content playing.
func (m *Mirror) ContentReadyForVoting() bool { return m.derived().contentReady }

// AllPlayersReady is the lobby readiness check.
func (m *Mirror) AllPlayersReady() bool { return m.derived().allPlayersReady }

// AllSongsSubmitted reports whether every player hit the per-player quota.
func (m *Mirror) AllSongsSubmitted() bool { return m.derived().allSongsSubmitted }

// Ranked is the current standings, recomputed per snapshot version.
func (m *Mirror) Ranked() []game.RankedPlayer { return m.derived().ranked }

func (m *Mirror) derived() views {
	if m.memoValid && m.memoVersion == m.snap.Version {
		return m.views
	}
	m.recomputes++

	room := m.snap.Room
	v := views{}

	if id := room.CurrentSongID(); id != "" {
		if song, ok := m.snap.Songs[id]; ok {
			v.currentSong = song
			v.haveCurrentSong = true
			v.eligibleVoters = len(game.EligibleVoters(m.snap.Players, song))
			for _, vote := range m.snap.Votes {
				if vote.SongID == id {
					v.votesForCurrent++
				}
			}
		}
	}

	v.contentReady = game.ContentReadyForVoting(m.snap.Players, room.Settings.PlaybackMode, room.HostID)

	v.allPlayersReady = len(m.snap.Players) > 0
	for _, p := range m.snap.Players {
		if !p.IsReady {
			v.allPlayersReady = false
			break
		}
	}

	v.allSongsSubmitted = game.SongsComplete(m.snap.Players, m.snap.Songs, room.Settings.SongsPerPlayer)
	v.ranked = game.RankPlayers(m.snap.Players, m.snap.Votes)

	m.views = v
	m.memoVersion = m.snap.Version
	m.memoValid = true
	return v
}
