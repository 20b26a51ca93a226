package session

import (
	"github.com/PandakiraDev/song-guess/internal/game"
	"github.com/PandakiraDev/song-guess/internal/metadata"
	"github.com/PandakiraDev/song-guess/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SetReady toggles this player's lobby readiness.
func (s *Session) SetReady(ready bool) error {
	return s.do(func() error {
		s.apply(store.MergePlayer{
			PlayerID: s.playerID,
			Patch:    store.PlayerPatch{IsReady: &ready},
		})
		return nil
	})
}

// StartAddingSongs moves the lobby into song collection. Host only,
// needs at least two players.
func (s *Session) StartAddingSongs() error {
	return s.do(func() error {
		if err := s.hostOnly(); err != nil {
			return err
		}
		snap := s.mirror.Snapshot()
		if err := game.CanStartAddingSongs(snap.Room, snap.Players); err != nil {
			return err
		}
		status := game.StatusAddingSongs
		s.apply(store.MergeRoom{Patch: store.RoomPatch{Status: &status}})
		return nil
	})
}

// AddSong contributes a song. The record is written immediately with
// fallback metadata; if a resolver is configured, duration, peak offset
// and the playable URL are merged in asynchronously once known.
func (s *Session) AddSong(videoID, title, thumbnail string) error {
	var song game.Song
	err := s.do(func() error {
		if videoID == "" || title == "" {
			return ErrInvalidSong
		}
		snap := s.mirror.Snapshot()
		if snap.Room.Status != game.StatusAddingSongs {
			return game.ErrBadTransition
		}
		mine := 0
		for _, existing := range snap.Songs {
			if existing.AddedBy == s.playerID {
				mine++
			}
		}
		if mine >= snap.Room.Settings.SongsPerPlayer {
			return ErrSongQuotaReached
		}

		song = game.Song{
			ID:            uuid.NewString(),
			VideoID:       videoID,
			Title:         title,
			Thumbnail:     thumbnail,
			AddedBy:       s.playerID,
			DurationSec:   metadata.FallbackDurationSec,
			PeakStartTime: metadata.FallbackPeakSec,
		}
		s.apply(store.PutSong{Song: song})
		return nil
	})
	if err != nil || s.cfg.Resolver == nil {
		return err
	}

	go s.enrichSong(song)
	return nil
}

// enrichSong fetches real metadata and the playable URL, then rewrites
// the song document. Failures keep the fallbacks.
func (s *Session) enrichSong(song game.Song) {
	d := metadata.SafeDetails(s.ctx, s.cfg.Resolver, song.VideoID)
	song.DurationSec = d.DurationSec
	song.PeakStartTime = d.PeakSec

	url, err := s.cfg.Resolver.ResolveURL(s.ctx, song.VideoID)
	if err != nil {
		s.log.Warn("song url resolution failed", zap.String("song", song.ID), zap.Error(err))
	} else {
		song.URL = url
	}

	_ = s.do(func() error {
		// the song may be gone if the host hit replay in the meantime
		if _, ok := s.mirror.Snapshot().Songs[song.ID]; !ok {
			return nil
		}
		s.apply(store.PutSong{Song: song})
		return nil
	})
}

// StartGame commits the round order and begins the first round. Host
// only; every player must have submitted their quota. When a resolver
// is configured and some playable URLs are still missing, the room
// passes through the downloading interstitial first.
func (s *Session) StartGame() error {
	return s.do(func() error {
		if err := s.hostOnly(); err != nil {
			return err
		}
		snap := s.mirror.Snapshot()
		if snap.Room.Status != game.StatusAddingSongs {
			return game.ErrBadTransition
		}
		if !game.SongsComplete(snap.Players, snap.Songs, snap.Room.Settings.SongsPerPlayer) {
			return game.ErrSongsMissing
		}

		if s.cfg.Resolver != nil && s.missingURLs(snap) {
			status := game.StatusDownloading
			s.apply(store.MergeRoom{Patch: store.RoomPatch{Status: &status}})
			go s.downloadAll(snap)
			return nil
		}

		s.commitPlaying()
		return nil
	})
}

func (s *Session) missingURLs(snap store.Snapshot) bool {
	for _, song := range snap.Songs {
		if song.URL == "" {
			return true
		}
	}
	return false
}

func (s *Session) downloadAll(snap store.Snapshot) {
	for _, song := range snap.Songs {
		if song.URL != "" {
			continue
		}
		url, err := s.cfg.Resolver.ResolveURL(s.ctx, song.VideoID)
		if err != nil {
			s.log.Warn("download failed, song stays url-less",
				zap.String("song", song.ID), zap.Error(err))
			continue
		}
		song.URL = url
		s.room.Inbox() <- store.Apply{Ops: []store.Op{store.PutSong{Song: song}}}
	}
	select {
	case s.inbox <- downloadsDone{}:
	case <-s.ctx.Done():
	}
}

// StartPlayback is the host pressing play for the current round: the
// phase leaves idle and every client renders its player widget.
func (s *Session) StartPlayback() error {
	return s.do(func() error {
		if err := s.hostOnly(); err != nil {
			return err
		}
		room := s.mirror.Room()
		if room.Status != game.StatusPlaying || room.PlaybackPhase != game.PhaseIdle {
			return game.ErrBadTransition
		}
		phase := game.PhaseLoading
		s.apply(store.MergeRoom{Patch: store.RoomPatch{PlaybackPhase: &phase}})
		return nil
	})
}

// MarkWidgetReady records that this client's player widget mounted and
// started loading content.
func (s *Session) MarkWidgetReady() error {
	return s.do(func() error {
		ready := true
		s.apply(store.MergePlayer{
			PlayerID: s.playerID,
			Patch:    store.PlayerPatch{ReadyForSong: &ready},
		})
		return nil
	})
}

// SignalContentPlaying is the external widget signal: real content is
// audible on this client, past any pre-roll advertisement.
func (s *Session) SignalContentPlaying() error {
	return s.do(func() error {
		playing := true
		s.apply(store.MergePlayer{
			PlayerID: s.playerID,
			Patch:    store.PlayerPatch{ContentPlaying: &playing},
		})
		return nil
	})
}

// CastVote submits (or resubmits — last write wins) this player's guess
// for the current song's contributor.
func (s *Session) CastVote(votedFor string) error {
	return s.do(func() error {
		snap := s.mirror.Snapshot()
		room := snap.Room
		if !room.VotingActive() {
			return game.ErrVotingClosed
		}
		songID := room.CurrentSongID()
		song, ok := snap.Songs[songID]
		if !ok {
			return game.ErrNoCurrentSong
		}
		if song.AddedBy == s.playerID {
			return game.ErrOwnSong
		}

		elapsed := s.cfg.Now().UnixMilli() - room.VotingStartedAt
		if elapsed < 0 {
			elapsed = 0
		}
		s.apply(store.PutVote{Vote: game.Vote{
			VoterID:        s.playerID,
			SongID:         songID,
			VotedFor:       votedFor,
			ResponseTimeMs: elapsed,
		}})
		return nil
	})
}

// RevealNow is the host's early-reveal control.
func (s *Session) RevealNow() error {
	return s.do(func() error {
		if err := s.hostOnly(); err != nil {
			return err
		}
		if !s.mirror.Room().VotingActive() {
			return game.ErrVotingClosed
		}
		s.triggerReveal("manual")
		return nil
	})
}

// NextRound advances from reveal to the next round, or to finished when
// the order is exhausted. The per-round flag resets travel in the same
// batch as the index bump so stale readiness can never leak into the
// new round.
func (s *Session) NextRound() error {
	return s.do(func() error {
		if err := s.hostOnly(); err != nil {
			return err
		}
		snap := s.mirror.Snapshot()
		if snap.Room.Status != game.StatusReveal {
			return game.ErrBadTransition
		}

		if game.IsFinalRound(snap.Room) {
			status := game.StatusFinished
			phase := game.PhaseIdle
			s.apply(store.MergeRoom{Patch: store.RoomPatch{Status: &status, PlaybackPhase: &phase}})
			if s.cfg.Archive != nil {
				go s.archiveFinished(snap)
			}
			return nil
		}

		next := snap.Room.CurrentSongIndex + 1
		status := game.StatusPlaying
		phase := game.PhaseIdle
		var zero int64
		ops := []store.Op{store.MergeRoom{Patch: store.RoomPatch{
			Status:           &status,
			CurrentSongIndex: &next,
			PlaybackPhase:    &phase,
			VotingStartedAt:  &zero,
		}}}
		ops = append(ops, resetRoundFlags(snap.Players)...)
		s.room.Inbox() <- store.Apply{Ops: ops}
		return nil
	})
}

// Replay keeps the room and players but clears songs, votes, scores and
// streaks in one batch, returning the room to the lobby.
func (s *Session) Replay() error {
	return s.do(func() error {
		if err := s.hostOnly(); err != nil {
			return err
		}
		snap := s.mirror.Snapshot()
		if snap.Room.Status != game.StatusFinished {
			return game.ErrBadTransition
		}

		status := game.StatusLobby
		phase := game.PhaseIdle
		idx := -1
		empty := []string{}
		var zero int64
		ops := []store.Op{
			store.ClearSongs{},
			store.ClearVotes{},
			store.MergeRoom{Patch: store.RoomPatch{
				Status:           &status,
				CurrentSongIndex: &idx,
				ShuffledSongIDs:  &empty,
				PlaybackPhase:    &phase,
				VotingStartedAt:  &zero,
			}},
		}
		zeroScore, notReady := 0, false
		for id := range snap.Players {
			ops = append(ops, store.MergePlayer{PlayerID: id, Patch: store.PlayerPatch{
				Score:          &zeroScore,
				Streak:         &zeroScore,
				IsReady:        &notReady,
				ReadyForSong:   &notReady,
				ContentPlaying: &notReady,
			}})
		}
		s.room.Inbox() <- store.Apply{Ops: ops}
		return nil
	})
}

// Leave tears the session down. A leaving host closes the whole room
// (guests observe the record vanish); a guest just removes themselves.
func (s *Session) Leave() error {
	err := s.do(func() error {
		if s.isHost() {
			s.cfg.Registry.Inbox() <- store.Remove{Code: s.code}
			return nil
		}
		s.apply(store.DeletePlayer{PlayerID: s.playerID})
		s.room.Inbox() <- store.Unsubscribe{ClientID: s.playerID}
		s.cancel()
		return nil
	})
	if err == ErrSessionClosed {
		return nil
	}
	return err
}

func (s *Session) archiveFinished(snap store.Snapshot) {
	if err := s.cfg.Archive.SaveFinished(snap); err != nil {
		s.log.Error("archiving finished game failed", zap.Error(err))
	}
}

func resetRoundFlags(players map[string]game.Player) []store.Op {
	off := false
	ops := make([]store.Op, 0, len(players))
	for id := range players {
		ops = append(ops, store.MergePlayer{PlayerID: id, Patch: store.PlayerPatch{
			ReadyForSong:   &off,
			ContentPlaying: &off,
		}})
	}
	return ops
}

// stop is a test helper: tear the loop down without touching the room.
func (s *Session) stop() {
	s.cancel()
	<-s.done
}
