package session

import (
	"context"
	"testing"
	"time"

	"github.com/PandakiraDev/song-guess/internal/game"
	"github.com/PandakiraDev/song-guess/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

type fixture struct {
	t      *testing.T
	reg    *store.Registry
	host   *Session
	guests []*Session
	code   string
}

func (f *fixture) all() []*Session {
	return append([]*Session{f.host}, f.guests...)
}

func (f *fixture) byID(id string) *Session {
	for _, s := range f.all() {
		if s.PlayerID() == id {
			return s
		}
	}
	f.t.Fatalf("no session for %s", id)
	return nil
}

func (f *fixture) snap() store.Snapshot {
	snap, err := f.host.Snapshot()
	require.NoError(f.t, err)
	return snap
}

// waitAll waits until every session's mirror satisfies cond, so a test
// can act through any client without racing its own subscription.
func (f *fixture) waitAll(what string, cond func(store.Snapshot) bool) {
	f.t.Helper()
	waitFor(f.t, func() bool {
		for _, s := range f.all() {
			snap, err := s.Snapshot()
			if err != nil || !cond(snap) {
				return false
			}
		}
		return true
	}, what)
}

func (f *fixture) waitAllStatus(status game.Status) {
	f.t.Helper()
	f.waitAll(string(status), func(snap store.Snapshot) bool {
		return snap.Room.Status == status
	})
}

func (f *fixture) waitAllVoting() {
	f.t.Helper()
	f.waitAll("voting open", func(snap store.Snapshot) bool {
		return snap.Room.VotingActive()
	})
}

// observe taps the room store directly so tests can count transitions.
func (f *fixture) observe() <-chan store.Snapshot {
	reply := make(chan *store.Room, 1)
	f.reg.Inbox() <- store.Get{Code: f.code, Reply: reply}
	rs := <-reply
	require.NotNil(f.t, rs)
	out := make(chan store.Snapshot, 256)
	rs.Inbox() <- store.Subscribe{ClientID: "observer", Outbox: out}
	return out
}

func newFixture(t *testing.T, guests int, settings game.Settings) *fixture {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	reg := store.NewRegistry(ctx, zap.NewNop())

	cfg := func(id, name string) Config {
		return Config{
			PlayerID:    id,
			Name:        name,
			Registry:    reg,
			Log:         zap.NewNop(),
			RevealGrace: 20 * time.Millisecond,
		}
	}

	host, code, err := CreateRoom(ctx, cfg("host", "Hana"), settings)
	require.NoError(t, err)

	f := &fixture{t: t, reg: reg, host: host, code: code}
	for i := 0; i < guests; i++ {
		id := string(rune('a' + i))
		g, err := JoinRoom(ctx, cfg("guest-"+id, "Guest "+id), code)
		require.NoError(t, err)
		f.guests = append(f.guests, g)
	}

	waitFor(t, func() bool {
		return len(f.snap().Players) == guests+1
	}, "all players visible")
	return f
}

// startRound drives a fixture to the gating phase of round 0: songs in,
// game started, playback started, every widget mounted.
func (f *fixture) startRound() {
	t := f.t
	require.NoError(t, f.host.StartAddingSongs())
	f.waitAllStatus(game.StatusAddingSongs)

	for i, s := range f.all() {
		require.NoError(t, s.AddSong("vid-"+s.PlayerID(), "Track "+string(rune('A'+i)), ""))
	}
	waitFor(t, func() bool { return len(f.snap().Songs) == len(f.all()) }, "all songs in")

	require.NoError(t, f.host.StartGame())
	waitFor(t, func() bool { return f.snap().Room.Status == game.StatusPlaying }, "playing")

	require.NoError(t, f.host.StartPlayback())
	for _, s := range f.all() {
		require.NoError(t, s.MarkWidgetReady())
	}
	waitFor(t, func() bool { return f.snap().Room.PlaybackPhase == game.PhaseGating }, "gating")
}

func oneSongEach() game.Settings {
	s := game.DefaultSettings()
	s.SongsPerPlayer = 1
	return s
}

func TestReadinessGate_OpensVotingExactlyOnce(t *testing.T) {
	f := newFixture(t, 2, oneSongEach())
	feed := f.observe()
	f.startRound()

	// two of three content-playing: gate stays shut
	require.NoError(t, f.host.SignalContentPlaying())
	require.NoError(t, f.guests[0].SignalContentPlaying())
	time.Sleep(50 * time.Millisecond)
	snap := f.snap()
	assert.NotEqual(t, game.PhaseVoting, snap.Room.PlaybackPhase)
	assert.False(t, snap.Room.VotingActive())

	// the third flips true: voting opens, with a start timestamp
	require.NoError(t, f.guests[1].SignalContentPlaying())
	waitFor(t, func() bool { return f.snap().Room.VotingActive() }, "voting open")
	snap = f.snap()
	assert.True(t, snap.Room.MusicPlaying())
	assert.Greater(t, snap.Room.VotingStartedAt, int64(0))

	// poke more snapshots through; the transition must not repeat
	require.NoError(t, f.guests[1].SignalContentPlaying())
	time.Sleep(50 * time.Millisecond)

	transitions := 0
	var prev game.PlaybackPhase
	for {
		select {
		case s := <-feed:
			if s.Room.PlaybackPhase == game.PhaseVoting && prev != game.PhaseVoting {
				transitions++
			}
			prev = s.Room.PlaybackPhase
			continue
		default:
		}
		break
	}
	assert.Equal(t, 1, transitions, "voting transition must fire exactly once")
}

func TestHostOnlyMode_GuestsDoNotGate(t *testing.T) {
	settings := oneSongEach()
	settings.PlaybackMode = game.PlaybackHostOnly
	f := newFixture(t, 2, settings)
	f.startRound()

	// only the host's widget matters
	require.NoError(t, f.host.SignalContentPlaying())
	waitFor(t, func() bool { return f.snap().Room.VotingActive() }, "voting open")
}

func TestVoting_ScoresAndStreaksAtReveal(t *testing.T) {
	f := newFixture(t, 2, oneSongEach())
	f.startRound()
	for _, s := range f.all() {
		require.NoError(t, s.SignalContentPlaying())
	}
	f.waitAllVoting()

	snap := f.snap()
	song := snap.Songs[snap.Room.CurrentSongID()]
	owner := song.AddedBy

	// the owner may not vote on their own song
	assert.ErrorIs(t, f.byID(owner).CastVote("host"), game.ErrOwnSong)

	// everyone else votes: one correct, the rest deliberately wrong
	votedCorrect := ""
	for _, s := range f.all() {
		if s.PlayerID() == owner {
			continue
		}
		if votedCorrect == "" {
			require.NoError(t, s.CastVote(owner))
			votedCorrect = s.PlayerID()
		} else {
			wrong := s.PlayerID() // a guess that is certainly not the owner
			require.NoError(t, s.CastVote(wrong))
		}
	}

	// all eligible votes in -> grace delay -> host reveals
	waitFor(t, func() bool { return f.snap().Room.Status == game.StatusReveal }, "reveal")

	snap = f.snap()
	assert.False(t, snap.Room.VotingActive(), "reveal must close voting")
	assert.True(t, snap.Songs[song.ID].Played)

	correctVote := snap.Votes[game.VoteKey(votedCorrect, song.ID)]
	assert.True(t, correctVote.Correct)
	assert.Greater(t, correctVote.Points, 0)
	assert.Equal(t, correctVote.Points, snap.Players[votedCorrect].Score)
	assert.Equal(t, 1, snap.Players[votedCorrect].Streak)

	for _, s := range f.all() {
		id := s.PlayerID()
		if id == owner || id == votedCorrect {
			continue
		}
		assert.Equal(t, 0, snap.Players[id].Score, "wrong vote scores zero")
		assert.Equal(t, 0, snap.Players[id].Streak)
		assert.False(t, snap.Votes[game.VoteKey(id, song.ID)].Correct)
	}
}

func TestReveal_NotDoubledByManualAndGraceTrigger(t *testing.T) {
	f := newFixture(t, 1, oneSongEach())
	f.startRound()
	for _, s := range f.all() {
		require.NoError(t, s.SignalContentPlaying())
	}
	f.waitAllVoting()

	snap := f.snap()
	song := snap.Songs[snap.Room.CurrentSongID()]
	voter := f.byID(pickVoter(f, song.AddedBy))
	require.NoError(t, voter.CastVote(song.AddedBy))

	// grace timer armed by the vote; fire the manual path too
	_ = f.host.RevealNow()

	waitFor(t, func() bool { return f.snap().Room.Status == game.StatusReveal }, "reveal")
	time.Sleep(100 * time.Millisecond) // give a hypothetical second reveal time to land

	snap = f.snap()
	vote := snap.Votes[game.VoteKey(voter.PlayerID(), song.ID)]
	assert.Equal(t, vote.Points, snap.Players[voter.PlayerID()].Score,
		"points must be awarded exactly once")
	assert.Equal(t, 1, snap.Players[voter.PlayerID()].Streak)
}

func pickVoter(f *fixture, owner string) string {
	for _, s := range f.all() {
		if s.PlayerID() != owner {
			return s.PlayerID()
		}
	}
	return ""
}

func TestVotingTimerExpiry_RevealsWithoutVotes(t *testing.T) {
	settings := oneSongEach()
	settings.VotingTimeSeconds = 1
	f := newFixture(t, 1, settings)
	f.startRound()
	for _, s := range f.all() {
		require.NoError(t, s.SignalContentPlaying())
	}
	waitFor(t, func() bool { return f.snap().Room.VotingActive() }, "voting open")

	// nobody votes; the window elapses and the host reveals anyway
	waitFor(t, func() bool { return f.snap().Room.Status == game.StatusReveal }, "timeout reveal")
	snap := f.snap()
	for _, p := range snap.Players {
		assert.Equal(t, 0, p.Score)
	}
}

func TestForceStart_UnblocksStalledPlayer(t *testing.T) {
	settings := oneSongEach()
	settings.ForceStartSeconds = 1
	f := newFixture(t, 1, settings)
	f.startRound()

	// the guest's widget never signals content; only the host does
	require.NoError(t, f.host.SignalContentPlaying())
	time.Sleep(200 * time.Millisecond)
	assert.False(t, f.snap().Room.VotingActive(), "gate must hold while within the bound")

	waitFor(t, func() bool { return f.snap().Room.VotingActive() }, "force start")
}

func TestNextRound_ResetsFlagsAtomicallyWithIndex(t *testing.T) {
	f := newFixture(t, 1, oneSongEach())
	f.startRound()
	for _, s := range f.all() {
		require.NoError(t, s.SignalContentPlaying())
	}
	waitFor(t, func() bool { return f.snap().Room.VotingActive() }, "voting open")
	require.NoError(t, f.host.RevealNow())
	waitFor(t, func() bool { return f.snap().Room.Status == game.StatusReveal }, "reveal")

	require.NoError(t, f.host.NextRound())
	waitFor(t, func() bool { return f.snap().Room.CurrentSongIndex == 1 }, "round 2")

	snap := f.snap()
	assert.Equal(t, game.StatusPlaying, snap.Room.Status)
	assert.Equal(t, game.PhaseIdle, snap.Room.PlaybackPhase)
	for id, p := range snap.Players {
		assert.False(t, p.ReadyForSong, "stale widget flag on %s", id)
		assert.False(t, p.ContentPlaying, "stale content flag on %s", id)
	}
}

func TestFinishAndReplay_ResetsEverythingToLobby(t *testing.T) {
	// one player-pair, one song each: two rounds to finish
	f := newFixture(t, 1, oneSongEach())
	f.startRound()

	for round := 0; round < 2; round++ {
		if round > 0 {
			require.NoError(t, f.host.StartPlayback())
			for _, s := range f.all() {
				require.NoError(t, s.MarkWidgetReady())
			}
		}
		for _, s := range f.all() {
			require.NoError(t, s.SignalContentPlaying())
		}
		f.waitAllVoting()

		snap := f.snap()
		song := snap.Songs[snap.Room.CurrentSongID()]
		require.NoError(t, f.byID(pickVoter(f, song.AddedBy)).CastVote(song.AddedBy))
		waitFor(t, func() bool { return f.snap().Room.Status == game.StatusReveal }, "reveal")
		require.NoError(t, f.host.NextRound())
		if round == 0 {
			waitFor(t, func() bool { return f.snap().Room.Status == game.StatusPlaying }, "next round")
		}
	}

	waitFor(t, func() bool { return f.snap().Room.Status == game.StatusFinished }, "finished")
	before := f.snap()
	assert.Positive(t, maxScore(before), "someone scored before replay")

	require.NoError(t, f.host.Replay())
	waitFor(t, func() bool { return f.snap().Room.Status == game.StatusLobby }, "back to lobby")

	after := f.snap()
	assert.Equal(t, -1, after.Room.CurrentSongIndex)
	assert.Empty(t, after.Room.ShuffledSongIDs)
	assert.Empty(t, after.Songs)
	assert.Empty(t, after.Votes)
	for _, p := range after.Players {
		assert.Zero(t, p.Score)
		assert.Zero(t, p.Streak)
	}
	// the whole reset is one batch: exactly one version past the replay write
	assert.Equal(t, before.Version+1, after.Version, "replay must commit atomically")
}

func maxScore(snap store.Snapshot) int {
	max := 0
	for _, p := range snap.Players {
		if p.Score > max {
			max = p.Score
		}
	}
	return max
}

func TestGuestCannotIssueHostTransitions(t *testing.T) {
	f := newFixture(t, 1, oneSongEach())
	before := f.snap().Version

	g := f.guests[0]
	assert.ErrorIs(t, g.StartAddingSongs(), game.ErrNotHost)
	assert.ErrorIs(t, g.StartGame(), game.ErrNotHost)
	assert.ErrorIs(t, g.StartPlayback(), game.ErrNotHost)
	assert.ErrorIs(t, g.RevealNow(), game.ErrNotHost)
	assert.ErrorIs(t, g.NextRound(), game.ErrNotHost)
	assert.ErrorIs(t, g.Replay(), game.ErrNotHost)

	// rejected client-side: nothing ever reached the store
	assert.Equal(t, before, f.snap().Version)
}

func TestAddSong_Validation(t *testing.T) {
	f := newFixture(t, 1, oneSongEach())
	require.NoError(t, f.host.StartAddingSongs())
	waitFor(t, func() bool { return f.snap().Room.Status == game.StatusAddingSongs }, "adding songs")

	assert.ErrorIs(t, f.host.AddSong("", "No Video", ""), ErrInvalidSong)
	assert.ErrorIs(t, f.host.AddSong("vid", "", ""), ErrInvalidSong)

	require.NoError(t, f.host.AddSong("vid-1", "One", ""))
	waitFor(t, func() bool { return len(f.snap().Songs) == 1 }, "song stored")
	assert.ErrorIs(t, f.host.AddSong("vid-2", "Two", ""), ErrSongQuotaReached)

	// fallback metadata applies when no resolver is configured
	snap := f.snap()
	for _, song := range snap.Songs {
		assert.Equal(t, 180, song.DurationSec)
		assert.Equal(t, 30, song.PeakStartTime)
	}
}

func TestJoin_Errors(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	reg := store.NewRegistry(ctx, zap.NewNop())

	_, err := JoinRoom(ctx, Config{PlayerID: "x", Name: "X", Registry: reg, Log: zap.NewNop()}, "999999")
	assert.ErrorIs(t, err, ErrRoomNotFound)

	f := newFixture(t, 1, oneSongEach())
	require.NoError(t, f.host.StartAddingSongs())
	waitFor(t, func() bool { return f.snap().Room.Status == game.StatusAddingSongs }, "adding songs")

	_, err = JoinRoom(ctx, Config{PlayerID: "late", Name: "Late", Registry: f.reg, Log: zap.NewNop()}, f.code)
	assert.ErrorIs(t, err, ErrRoomNotJoinable)
}

func TestHostLeave_GuestsSeeRoomClosed(t *testing.T) {
	f := newFixture(t, 1, oneSongEach())
	g := f.guests[0]

	require.NoError(t, f.host.Leave())

	select {
	case ev := <-g.Events():
		assert.Equal(t, EventRoomClosed, ev.Kind)
		assert.True(t, ev.RoomDeleted, "host leave must classify as deleted, not lost")
	case <-time.After(2 * time.Second):
		t.Fatal("guest never observed the room closing")
	}
	<-g.Done()
}

func TestStartGame_RequiresAllSongs(t *testing.T) {
	f := newFixture(t, 1, oneSongEach())
	require.NoError(t, f.host.StartAddingSongs())
	waitFor(t, func() bool { return f.snap().Room.Status == game.StatusAddingSongs }, "adding songs")

	require.NoError(t, f.host.AddSong("vid-h", "Host Song", ""))
	waitFor(t, func() bool { return len(f.snap().Songs) == 1 }, "song stored")

	assert.ErrorIs(t, f.host.StartGame(), game.ErrSongsMissing)
}
