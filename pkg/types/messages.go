package types

import "github.com/PandakiraDev/song-guess/internal/game"

// Client -> Server
//
// SetReady:          ready: boolean
// StartAddingSongs:  {}            (host only)
// AddSong:           video_id, title, thumbnail
// StartGame:         {}            (host only)
// StartPlayback:     {}            (host only)
// WidgetReady:       {}            (player widget mounted)
// ContentPlaying:    {}            (real content audible, past pre-roll)
// CastVote:          voted_for: player id
// RevealNow:         {}            (host only)
// NextRound:         {}            (host only)
// Replay:            {}            (host only)
type ClientMessage struct {
	Type      string `json:"type"`
	Ready     bool   `json:"ready,omitempty"`
	VideoID   string `json:"video_id,omitempty"`
	Title     string `json:"title,omitempty"`
	Thumbnail string `json:"thumbnail,omitempty"`
	VotedFor  string `json:"voted_for,omitempty"`
}

// Server -> Client
//
// Joined:        code + your player id, sent once after connecting
// StateSnapshot: full room value, sent on subscribe and on every change
// RoomClosed:    deleted=true means the room existed and vanished
// Error:         protocol or validation rejection, connection stays up
type ServerMessage struct {
	Type    string `json:"type"` // "Joined" | "StateSnapshot" | "RoomClosed" | "Error"
	Code    string `json:"code,omitempty"`
	Player  string `json:"player,omitempty"`
	Version int    `json:"version,omitempty"`
	Exists  bool   `json:"exists,omitempty"`

	Room    *game.Room             `json:"room,omitempty"`
	Players map[string]game.Player `json:"players,omitempty"`
	Songs   map[string]game.Song   `json:"songs,omitempty"`
	Votes   map[string]game.Vote   `json:"votes,omitempty"`
	Ranked  []game.RankedPlayer    `json:"ranked,omitempty"`

	Deleted bool   `json:"deleted,omitempty"`
	Error   string `json:"error,omitempty"`
}
