package game

import "time"

type Status string

const (
	StatusLobby       Status = "lobby"
	StatusAddingSongs Status = "adding_songs"
	StatusDownloading Status = "downloading"
	StatusPlaying     Status = "playing"
	StatusReveal      Status = "reveal"
	StatusFinished    Status = "finished"
)

// PlaybackPhase is the sub-state machine nested inside StatusPlaying.
// The old playbackStarted/musicPlaying/votingActive booleans are derived
// from it (see the accessors below) so illegal flag combinations cannot
// be represented.
type PlaybackPhase string

const (
	PhaseIdle    PlaybackPhase = "idle"    // no playback this round yet
	PhaseLoading PlaybackPhase = "loading" // host pressed play, widgets mounting
	PhaseGating  PlaybackPhase = "gating"  // waiting for content-playing signals
	PhaseVoting  PlaybackPhase = "voting"  // voting clock running
)

type PlaybackMode string

const (
	PlaybackAllPlayers PlaybackMode = "all_players"
	PlaybackHostOnly   PlaybackMode = "host_only"
)

type ScoringMode string

const (
	ScoringSimple      ScoringMode = "simple"
	ScoringSpeedStreak ScoringMode = "speed_streak"
)

type Settings struct {
	SongsPerPlayer          int          `json:"songs_per_player"`
	PlaybackDurationSeconds int          `json:"playback_duration_seconds"`
	VotingTimeSeconds       int          `json:"voting_time_seconds"`
	PlaybackMode            PlaybackMode `json:"playback_mode"`
	ScoringMode             ScoringMode  `json:"scoring_mode"`
	// ForceStartSeconds bounds the readiness gate: after this many seconds
	// the host treats players that never signalled content as ready.
	ForceStartSeconds int `json:"force_start_seconds"`
}

func DefaultSettings() Settings {
	return Settings{
		SongsPerPlayer:          2,
		PlaybackDurationSeconds: 30,
		VotingTimeSeconds:       15,
		PlaybackMode:            PlaybackAllPlayers,
		ScoringMode:             ScoringSpeedStreak,
		ForceStartSeconds:       20,
	}
}

type Room struct {
	ID               string        `json:"id"`
	JoinCode         string        `json:"join_code"`
	HostID           string        `json:"host_id"`
	Status           Status        `json:"status"`
	Settings         Settings      `json:"settings"`
	CurrentSongIndex int           `json:"current_song_index"` // -1 until a round order exists
	ShuffledSongIDs  []string      `json:"shuffled_song_ids"`
	PlaybackPhase    PlaybackPhase `json:"playback_phase"`
	VotingStartedAt  int64         `json:"voting_started_at"` // unix millis, 0 until voting opens
	CreatedAt        time.Time     `json:"created_at"`
}

// Derived views of the playback phase, kept so observers still see the
// three flags the protocol talks about.
func (r Room) PlaybackStarted() bool { return r.PlaybackPhase != PhaseIdle }
func (r Room) MusicPlaying() bool    { return r.PlaybackPhase == PhaseVoting }
func (r Room) VotingActive() bool    { return r.PlaybackPhase == PhaseVoting }

// CurrentSongID returns the song id of the active round, or "" when no
// round order exists yet.
func (r Room) CurrentSongID() string {
	if r.CurrentSongIndex < 0 || r.CurrentSongIndex >= len(r.ShuffledSongIDs) {
		return ""
	}
	return r.ShuffledSongIDs[r.CurrentSongIndex]
}

type Player struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
	IsHost bool   `json:"is_host"`
	Score  int    `json:"score"`
	Streak int    `json:"streak"`

	IsReady bool `json:"is_ready"` // lobby readiness

	// Per-round playback-gate flags, reset at the start of every round.
	ReadyForSong   bool `json:"ready_for_song"`  // widget mounted and loading
	ContentPlaying bool `json:"content_playing"` // real content audible, past any pre-roll

	JoinedAt time.Time `json:"joined_at"`
}

type Song struct {
	ID            string `json:"id"`
	VideoID       string `json:"video_id"`
	Title         string `json:"title"`
	Thumbnail     string `json:"thumbnail"`
	URL           string `json:"url"` // whatever the resolver returned, scheme-agnostic
	AddedBy       string `json:"added_by"`
	Played        bool   `json:"played"`
	PeakStartTime int    `json:"peak_start_time"` // seconds into the track
	DurationSec   int    `json:"duration_sec"`
}

// Vote is keyed by (voter, song) so a resubmission overwrites rather
// than duplicates. Correct and Points are written by the host at reveal
// only.
type Vote struct {
	VoterID        string `json:"voter_id"`
	SongID         string `json:"song_id"`
	VotedFor       string `json:"voted_for"`
	ResponseTimeMs int64  `json:"response_time_ms"`
	Correct        bool   `json:"correct"`
	Points         int    `json:"points"`
}

// VoteKey is the document key for a vote.
func VoteKey(voterID, songID string) string {
	return voterID + ":" + songID
}
