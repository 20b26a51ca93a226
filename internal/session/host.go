package session

import (
	"time"

	"github.com/PandakiraDev/song-guess/internal/game"
	"github.com/PandakiraDev/song-guess/internal/store"
	"go.uber.org/zap"
)

const defaultForceStartSec = 20

// react runs on every snapshot. All clients recompute the derived
// predicates; only the host turns them into writes, each guarded by a
// one-shot latch so re-observing the same predicate never repeats a
// transition.
func (s *Session) react() {
	snap := s.mirror.Snapshot()
	room := snap.Room

	if room.CurrentSongIndex != s.round.index {
		// new round (or replay back to -1): drop all latches and
		// invalidate any timer armed for the old round
		s.round = roundLatches{index: room.CurrentSongIndex}
		s.timerGen++
	}

	// every client keeps the gate predicate fresh, host or not
	contentReady := s.mirror.ContentReadyForVoting()

	if !s.isHost() || room.Status != game.StatusPlaying {
		return
	}

	switch room.PlaybackPhase {
	case game.PhaseLoading:
		if !s.round.forceArmed {
			s.round.forceArmed = true
			s.armTimer(timerForceStart, s.forceStartDelay(room.Settings))
		}
		if s.allWidgetsReady(snap) && !s.round.gateOpened {
			s.round.gateOpened = true
			phase := game.PhaseGating
			s.apply(store.MergeRoom{Patch: store.RoomPatch{PlaybackPhase: &phase}})
		}
		// a client may signal content without the widget-ready hop;
		// the gate is on contentPlaying alone
		s.maybeOpenVoting(contentReady)

	case game.PhaseGating:
		s.maybeOpenVoting(contentReady)

	case game.PhaseVoting:
		if !s.round.votingTimerSet {
			s.round.votingTimerSet = true
			deadline := time.UnixMilli(room.VotingStartedAt).
				Add(time.Duration(room.Settings.VotingTimeSeconds) * time.Second)
			s.armTimer(timerVotingWindow, deadline.Sub(s.cfg.Now()))
		}
		if !s.round.revealDone && !s.round.graceArmed &&
			s.mirror.EligibleVoterCount() > 0 &&
			s.mirror.VotesForCurrentSong() >= s.mirror.EligibleVoterCount() {
			s.round.graceArmed = true
			s.armTimer(timerRevealGrace, s.cfg.RevealGrace)
		}
	}
}

// maybeOpenVoting is step 4 of the readiness protocol: the host, seeing
// all relevant content playing while voting has not opened yet,
// atomically opens the voting window and stamps its start. This is the
// single moment every client times the countdown from.
func (s *Session) maybeOpenVoting(contentReady bool) {
	if !contentReady || s.round.votingOpened {
		return
	}
	s.round.votingOpened = true
	phase := game.PhaseVoting
	startedAt := s.cfg.Now().UnixMilli()
	s.apply(store.MergeRoom{Patch: store.RoomPatch{
		PlaybackPhase:   &phase,
		VotingStartedAt: &startedAt,
	}})
	s.log.Info("voting opened", zap.Int("round", s.round.index))
}

func (s *Session) allWidgetsReady(snap store.Snapshot) bool {
	room := snap.Room
	for _, id := range game.GateRelevant(snap.Players, room.Settings.PlaybackMode, room.HostID) {
		p, ok := snap.Players[id]
		if !ok || !p.ReadyForSong {
			return false
		}
	}
	return true
}

func (s *Session) forceStartDelay(settings game.Settings) time.Duration {
	sec := settings.ForceStartSeconds
	if sec <= 0 {
		sec = defaultForceStartSec
	}
	return time.Duration(sec) * time.Second
}

func (s *Session) onTimer(kind timerKind) {
	room := s.mirror.Room()
	if !s.isHost() {
		return
	}

	switch kind {
	case timerForceStart:
		// bounded wait on the readiness gate: treat players that never
		// signalled as ready and let the normal gate reaction open voting
		if room.Status != game.StatusPlaying || s.round.votingOpened {
			return
		}
		snap := s.mirror.Snapshot()
		on := true
		var ops []store.Op
		for _, id := range game.GateRelevant(snap.Players, room.Settings.PlaybackMode, room.HostID) {
			if p, ok := snap.Players[id]; ok && !p.ContentPlaying {
				ops = append(ops, store.MergePlayer{PlayerID: id, Patch: store.PlayerPatch{
					ReadyForSong:   &on,
					ContentPlaying: &on,
				}})
			}
		}
		if len(ops) > 0 {
			s.log.Warn("force-starting round, players never signalled content",
				zap.Int("round", s.round.index), zap.Int("stalled", len(ops)))
			s.room.Inbox() <- store.Apply{Ops: ops}
		}

	case timerVotingWindow:
		if room.VotingActive() && !s.round.revealDone {
			s.triggerReveal("voting window elapsed")
		}

	case timerRevealGrace:
		if room.VotingActive() && !s.round.revealDone {
			s.triggerReveal("all eligible votes in")
		}
	}
}

// triggerReveal runs the reveal processing as one atomic batch: vote
// outcomes, score and streak updates (from pre-reveal streaks), the
// song's played mark and the status flip all commit together, so a
// partial failure can never award points without recording outcomes.
func (s *Session) triggerReveal(reason string) {
	if s.round.revealDone {
		return
	}
	snap := s.mirror.Snapshot()
	songID := snap.Room.CurrentSongID()
	song, ok := snap.Songs[songID]
	if !ok {
		s.log.Error("reveal with no current song", zap.Int("index", snap.Room.CurrentSongIndex))
		return
	}
	if song.Played {
		// already revealed (e.g. replayed observation): never award twice
		s.round.revealDone = true
		return
	}
	s.round.revealDone = true

	settings := snap.Room.Settings
	var ops []store.Op
	voted := make(map[string]bool)

	for _, vote := range snap.Votes {
		if vote.SongID != songID {
			continue
		}
		voter, ok := snap.Players[vote.VoterID]
		if !ok {
			continue // voter left mid-round; their vote scores nobody
		}
		voted[vote.VoterID] = true

		correct := vote.VotedFor == song.AddedBy
		breakdown := game.CalculateScore(settings.ScoringMode, correct,
			vote.ResponseTimeMs, settings.VotingTimeSeconds, voter.Streak)

		vote.Correct = correct
		vote.Points = breakdown.Total
		newScore := voter.Score + breakdown.Total
		newStreak := 0
		if correct {
			newStreak = voter.Streak + 1
		}
		ops = append(ops,
			store.PutVote{Vote: vote},
			store.MergePlayer{PlayerID: vote.VoterID, Patch: store.PlayerPatch{
				Score:  &newScore,
				Streak: &newStreak,
			}},
		)
	}

	// an absent vote breaks a streak just like a wrong one
	zero := 0
	for _, id := range game.EligibleVoters(snap.Players, song) {
		if !voted[id] && snap.Players[id].Streak != 0 {
			ops = append(ops, store.MergePlayer{PlayerID: id, Patch: store.PlayerPatch{Streak: &zero}})
		}
	}

	song.Played = true
	status := game.StatusReveal
	phase := game.PhaseIdle
	ops = append(ops,
		store.PutSong{Song: song},
		store.MergeRoom{Patch: store.RoomPatch{Status: &status, PlaybackPhase: &phase}},
	)

	s.room.Inbox() <- store.Apply{Ops: ops}
	s.log.Info("reveal triggered",
		zap.String("reason", reason),
		zap.Int("round", s.round.index),
		zap.Int("votes", len(voted)))
}

// commitPlaying shuffles the round order and commits it atomically with
// the playing transition, index 0 and fresh per-round flags.
func (s *Session) commitPlaying() {
	snap := s.mirror.Snapshot()
	if !s.isHost() {
		return
	}
	if snap.Room.Status != game.StatusAddingSongs && snap.Room.Status != game.StatusDownloading {
		return
	}

	order := game.ShuffleSongIDs(snap.Songs, s.cfg.Rng)
	status := game.StatusPlaying
	phase := game.PhaseIdle
	idx := 0
	var zero int64
	ops := []store.Op{store.MergeRoom{Patch: store.RoomPatch{
		Status:           &status,
		CurrentSongIndex: &idx,
		ShuffledSongIDs:  &order,
		PlaybackPhase:    &phase,
		VotingStartedAt:  &zero,
	}}}
	ops = append(ops, resetRoundFlags(snap.Players)...)
	s.room.Inbox() <- store.Apply{Ops: ops}
	s.log.Info("game started", zap.Int("songs", len(order)))
}
