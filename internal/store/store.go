// Package store is the shared replicated document store the game runs
// over: one Room document per session with player/song/vote
// sub-collections, last-write-wins point writes, atomic multi-document
// batches and push subscriptions. It enforces no game rules — host-only
// write discipline is a protocol concern of the clients, not the store.
package store

import (
	"github.com/PandakiraDev/song-guess/internal/game"
)

// Op is a single document write. A batch of ops commits atomically and
// produces exactly one change notification.
type Op interface{ isOp() }

type PutRoom struct{ Room game.Room }

type MergeRoom struct{ Patch RoomPatch }

type PutPlayer struct{ Player game.Player }

type MergePlayer struct {
	PlayerID string
	Patch    PlayerPatch
}

type DeletePlayer struct{ PlayerID string }

type PutSong struct{ Song game.Song }

type DeleteSong struct{ SongID string }

type PutVote struct{ Vote game.Vote }

type DeleteVote struct{ Key string }

type ClearSongs struct{}

type ClearVotes struct{}

func (PutRoom) isOp()      {}
func (MergeRoom) isOp()    {}
func (PutPlayer) isOp()    {}
func (MergePlayer) isOp()  {}
func (DeletePlayer) isOp() {}
func (PutSong) isOp()      {}
func (DeleteSong) isOp()   {}
func (PutVote) isOp()      {}
func (DeleteVote) isOp()   {}
func (ClearSongs) isOp()   {}
func (ClearVotes) isOp()   {}

// RoomPatch merges the non-nil fields into the room document.
type RoomPatch struct {
	HostID           *string
	Status           *game.Status
	Settings         *game.Settings
	CurrentSongIndex *int
	ShuffledSongIDs  *[]string
	PlaybackPhase    *game.PlaybackPhase
	VotingStartedAt  *int64
}

// PlayerPatch merges the non-nil fields into one player document.
type PlayerPatch struct {
	Name           *string
	IsHost         *bool
	Score          *int
	Streak         *int
	IsReady        *bool
	ReadyForSong   *bool
	ContentPlaying *bool
}

// Snapshot is the full current value of a room plus its sub-collections,
// delivered on subscribe and after every committed write. Exists is
// false only in the final snapshot of a deleted room, which lets
// consumers tell "closed" apart from "never existed".
type Snapshot struct {
	Version int
	Exists  bool
	Room    game.Room
	Players map[string]game.Player
	Songs   map[string]game.Song
	Votes   map[string]game.Vote
}

// doc is the mutable server-side state of one room.
type doc struct {
	room    game.Room
	players map[string]game.Player
	songs   map[string]game.Song
	votes   map[string]game.Vote
}

func newDoc(room game.Room) *doc {
	return &doc{
		room:    room,
		players: make(map[string]game.Player),
		songs:   make(map[string]game.Song),
		votes:   make(map[string]game.Vote),
	}
}

func (d *doc) apply(op Op) {
	switch o := op.(type) {
	case PutRoom:
		d.room = o.Room
	case MergeRoom:
		mergeRoom(&d.room, o.Patch)
	case PutPlayer:
		d.players[o.Player.ID] = o.Player
	case MergePlayer:
		p, ok := d.players[o.PlayerID]
		if !ok {
			return // merge into a missing document is a no-op, like a failed precondition
		}
		mergePlayer(&p, o.Patch)
		d.players[o.PlayerID] = p
	case DeletePlayer:
		delete(d.players, o.PlayerID)
	case PutSong:
		d.songs[o.Song.ID] = o.Song
	case DeleteSong:
		delete(d.songs, o.SongID)
	case PutVote:
		d.votes[game.VoteKey(o.Vote.VoterID, o.Vote.SongID)] = o.Vote
	case DeleteVote:
		delete(d.votes, o.Key)
	case ClearSongs:
		clear(d.songs)
	case ClearVotes:
		clear(d.votes)
	}
}

func mergeRoom(r *game.Room, p RoomPatch) {
	if p.HostID != nil {
		r.HostID = *p.HostID
	}
	if p.Status != nil {
		r.Status = *p.Status
	}
	if p.Settings != nil {
		r.Settings = *p.Settings
	}
	if p.CurrentSongIndex != nil {
		r.CurrentSongIndex = *p.CurrentSongIndex
	}
	if p.ShuffledSongIDs != nil {
		r.ShuffledSongIDs = *p.ShuffledSongIDs
	}
	if p.PlaybackPhase != nil {
		r.PlaybackPhase = *p.PlaybackPhase
	}
	if p.VotingStartedAt != nil {
		r.VotingStartedAt = *p.VotingStartedAt
	}
}

func mergePlayer(pl *game.Player, p PlayerPatch) {
	if p.Name != nil {
		pl.Name = *p.Name
	}
	if p.IsHost != nil {
		pl.IsHost = *p.IsHost
	}
	if p.Score != nil {
		pl.Score = *p.Score
	}
	if p.Streak != nil {
		pl.Streak = *p.Streak
	}
	if p.IsReady != nil {
		pl.IsReady = *p.IsReady
	}
	if p.ReadyForSong != nil {
		pl.ReadyForSong = *p.ReadyForSong
	}
	if p.ContentPlaying != nil {
		pl.ContentPlaying = *p.ContentPlaying
	}
}

// snapshot clones the doc so subscribers never share maps with the loop.
func (d *doc) snapshot(version int, exists bool) Snapshot {
	players := make(map[string]game.Player, len(d.players))
	for k, v := range d.players {
		players[k] = v
	}
	songs := make(map[string]game.Song, len(d.songs))
	for k, v := range d.songs {
		songs[k] = v
	}
	votes := make(map[string]game.Vote, len(d.votes))
	for k, v := range d.votes {
		votes[k] = v
	}
	return Snapshot{
		Version: version,
		Exists:  exists,
		Room:    d.room,
		Players: players,
		Songs:   songs,
		Votes:   votes,
	}
}
