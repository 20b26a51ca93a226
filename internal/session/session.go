// Package session runs the client side of the game protocol: the room
// lifecycle writes, the round readiness gate and the voting/reveal
// coordination. Every client runs the same loop; authoritative
// transitions are only ever written by the host, enforced here before
// any write reaches the store (the store itself is dumb on purpose).
package session

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/PandakiraDev/song-guess/internal/game"
	"github.com/PandakiraDev/song-guess/internal/metadata"
	"github.com/PandakiraDev/song-guess/internal/mirror"
	"github.com/PandakiraDev/song-guess/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrRoomNotFound = errors.New("room not found")
var ErrRoomNotJoinable = errors.New("room is not accepting players")
var ErrSessionClosed = errors.New("session closed")
var ErrInvalidSong = errors.New("song needs a video id and a non-empty title")
var ErrSongQuotaReached = errors.New("song quota reached")

// revealGraceDelay lets a just-submitted vote's UI animation finish
// before the host flips the room to reveal.
const revealGraceDelay = 2 * time.Second

// Archiver persists a finished game. Nil-able.
type Archiver interface {
	SaveFinished(snap store.Snapshot) error
}

// Config carries the collaborators a session needs. Registry and
// PlayerID are required; the rest have sensible zero-value behavior.
type Config struct {
	PlayerID string
	Name     string
	Avatar   string
	Registry *store.Registry
	Log      *zap.Logger
	Resolver metadata.Resolver // optional: song metadata + playable URLs
	Archive  Archiver          // optional: finished-game history
	Now      func() time.Time  // test clock, defaults to time.Now
	Rng      *rand.Rand        // shuffle source, defaults to a time-seeded one
	// RevealGrace overrides the fixed post-vote grace delay before the
	// host reveals. Defaults to revealGraceDelay.
	RevealGrace time.Duration
}

// Event is the session's coarse outward signal; everything else the
// rendering layer needs comes from its own store subscription.
type Event struct {
	Kind        EventKind
	RoomDeleted bool // for EventRoomClosed: closed vs never-found
}

type EventKind string

const (
	EventRoomClosed EventKind = "room_closed"
)

type timerKind int

const (
	timerForceStart timerKind = iota
	timerVotingWindow
	timerRevealGrace
)

type msg interface{ isSessionMsg() }

// doCmd runs a UI command inside the loop so state is never touched
// from two goroutines.
type doCmd struct {
	fn    func() error
	reply chan error
}

type timerFired struct {
	gen  int
	kind timerKind
}

// downloadsDone reports the resolver finished fetching playable URLs
// for the downloading interstitial.
type downloadsDone struct{}

func (doCmd) isSessionMsg()         {}
func (timerFired) isSessionMsg()    {}
func (downloadsDone) isSessionMsg() {}

// roundLatches are the host's one-shot guards for the current round.
// Repeated observations of the same predicate must not repeat a
// transition, so each fires at most once per round.
type roundLatches struct {
	index          int
	forceArmed     bool // force-start fallback timer scheduled
	gateOpened     bool // phase moved loading -> gating
	votingOpened   bool // phase moved -> voting
	votingTimerSet bool
	graceArmed     bool
	revealDone     bool
}

type Session struct {
	cfg      Config
	playerID string
	code     string
	room     *store.Room
	updates  <-chan store.Snapshot
	inbox    chan msg
	events   chan Event
	mirror   *mirror.Mirror
	log      *zap.Logger

	round    roundLatches
	timerGen int // bumped on round change; stale fires are dropped

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// CreateRoom creates a room with the caller as host and starts a
// session for it. Returns the session and the shareable join code.
func CreateRoom(parent context.Context, cfg Config, settings game.Settings) (*Session, string, error) {
	normalize(&cfg)

	host := game.Player{
		ID:       cfg.PlayerID,
		Name:     cfg.Name,
		Avatar:   cfg.Avatar,
		IsHost:   true,
		JoinedAt: cfg.Now(),
	}
	room := game.Room{
		ID:               uuid.NewString(),
		HostID:           cfg.PlayerID,
		Status:           game.StatusLobby,
		Settings:         settings,
		CurrentSongIndex: -1,
		PlaybackPhase:    game.PhaseIdle,
		CreatedAt:        cfg.Now(),
	}

	reply := make(chan store.Created, 1)
	cfg.Registry.Inbox() <- store.Create{Room: room, Host: host, Reply: reply}
	created := <-reply

	s, err := attach(parent, cfg, created.Code, created.Room, nil)
	if err != nil {
		return nil, "", err
	}
	return s, created.Code, nil
}

// JoinRoom joins an existing room by code. Joining is only allowed
// while the room sits in the lobby.
func JoinRoom(parent context.Context, cfg Config, code string) (*Session, error) {
	normalize(&cfg)

	reply := make(chan *store.Room, 1)
	cfg.Registry.Inbox() <- store.Get{Code: code, Reply: reply}
	rs := <-reply
	if rs == nil {
		return nil, ErrRoomNotFound
	}

	self := game.Player{
		ID:       cfg.PlayerID,
		Name:     cfg.Name,
		Avatar:   cfg.Avatar,
		JoinedAt: cfg.Now(),
	}
	return attach(parent, cfg, code, rs, &self)
}

// attach subscribes, checks the initial snapshot, optionally writes the
// joining player and starts the loop.
func attach(parent context.Context, cfg Config, code string, rs *store.Room, joining *game.Player) (*Session, error) {
	ctx, cancel := context.WithCancel(parent)

	out := make(chan store.Snapshot, 16)
	rs.Inbox() <- store.Subscribe{ClientID: cfg.PlayerID, Outbox: out}

	var first store.Snapshot
	select {
	case first = <-out:
	case <-time.After(5 * time.Second):
		cancel()
		return nil, ErrRoomNotFound
	}

	if joining != nil {
		if first.Room.Status != game.StatusLobby {
			rs.Inbox() <- store.Unsubscribe{ClientID: cfg.PlayerID}
			cancel()
			return nil, ErrRoomNotJoinable
		}
		rs.Inbox() <- store.Apply{Ops: []store.Op{store.PutPlayer{Player: *joining}}}
	}

	s := &Session{
		cfg:      cfg,
		playerID: cfg.PlayerID,
		code:     code,
		room:     rs,
		updates:  out,
		inbox:    make(chan msg, 64),
		events:   make(chan Event, 8),
		mirror:   mirror.New(),
		log:      cfg.Log.With(zap.String("player", cfg.PlayerID), zap.String("code", code)),
		round:    roundLatches{index: -1},
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	s.mirror.Observe(first)

	go s.loop()
	return s, nil
}

func normalize(cfg *Config) {
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Rng == nil {
		cfg.Rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if cfg.RevealGrace <= 0 {
		cfg.RevealGrace = revealGraceDelay
	}
}

func (s *Session) Events() <-chan Event  { return s.events }
func (s *Session) Done() <-chan struct{} { return s.done }
func (s *Session) PlayerID() string      { return s.playerID }
func (s *Session) JoinCode() string      { return s.code }

func (s *Session) loop() {
	defer close(s.done)
	for {
		select {
		case <-s.ctx.Done():
			return

		case snap, ok := <-s.updates:
			if !ok {
				// Feed gone. The mirror saw a tombstone iff the room
				// was deleted, which is a different condition from a
				// dropped subscription.
				if s.mirror.RoomDeleted() {
					s.emit(Event{Kind: EventRoomClosed, RoomDeleted: true})
				} else {
					s.mirror.ObserveError(errors.New("subscription closed"))
					s.emit(Event{Kind: EventRoomClosed})
				}
				s.cancel()
				return
			}
			s.mirror.Observe(snap)
			s.react()

		case m := <-s.inbox:
			switch v := m.(type) {
			case doCmd:
				v.reply <- v.fn()
			case timerFired:
				if v.gen != s.timerGen {
					break // stale fire from a previous round
				}
				s.onTimer(v.kind)
			case downloadsDone:
				s.commitPlaying()
			}
		}
	}
}

func (s *Session) emit(ev Event) {
	select {
	case s.events <- ev:
	default:
		// UI not draining; protocol must not block on it
	}
}

// do runs fn inside the loop and returns its error.
func (s *Session) do(fn func() error) error {
	reply := make(chan error, 1)
	select {
	case s.inbox <- doCmd{fn: fn, reply: reply}:
	case <-s.ctx.Done():
		return ErrSessionClosed
	}
	select {
	case err := <-reply:
		return err
	case <-s.ctx.Done():
		return ErrSessionClosed
	}
}

// Snapshot returns the mirror's current snapshot (last known good).
func (s *Session) Snapshot() (store.Snapshot, error) {
	var snap store.Snapshot
	err := s.do(func() error {
		snap = s.mirror.Snapshot()
		return nil
	})
	return snap, err
}

func (s *Session) isHost() bool {
	return s.mirror.Room().HostID == s.playerID
}

func (s *Session) hostOnly() error {
	if !s.isHost() {
		return game.ErrNotHost
	}
	return nil
}

// armTimer schedules a loop-delivered timer fire tied to the current
// generation, so fires from a superseded round fall on the floor.
func (s *Session) armTimer(kind timerKind, d time.Duration) {
	gen := s.timerGen
	time.AfterFunc(d, func() {
		select {
		case s.inbox <- timerFired{gen: gen, kind: kind}:
		case <-s.ctx.Done():
		}
	})
}

func (s *Session) apply(ops ...store.Op) {
	s.room.Inbox() <- store.Apply{Ops: ops}
}
