package store

import (
	"context"
	"crypto/rand"
	"math/big"

	"github.com/PandakiraDev/song-guess/internal/game"
	"go.uber.org/zap"
)

type RegistryMsg interface{ isRegistryMsg() }

// Create spins up a store for a new room. The registry assigns a join
// code that is unique among currently active rooms and writes it into
// the room document before the first snapshot is published.
type Create struct {
	Room  game.Room
	Host  game.Player
	Reply chan Created
}

type Created struct {
	Code string
	Room *Room
}

type Get struct {
	Code  string
	Reply chan *Room // nil if no such code
}

// Remove deletes a room: subscribers see a final Exists:false snapshot.
type Remove struct{ Code string }

type ShutdownRegistry struct{}

func (Create) isRegistryMsg()           {}
func (Get) isRegistryMsg()              {}
func (Remove) isRegistryMsg()           {}
func (ShutdownRegistry) isRegistryMsg() {}

// Registry owns the code -> room-store map.
type Registry struct {
	inbox  chan RegistryMsg
	rooms  map[string]*Room
	ctx    context.Context
	cancel context.CancelFunc
	log    *zap.Logger
}

func NewRegistry(parent context.Context, log *zap.Logger) *Registry {
	ctx, cancel := context.WithCancel(parent)
	reg := &Registry{
		inbox:  make(chan RegistryMsg, 64),
		rooms:  make(map[string]*Room),
		ctx:    ctx,
		cancel: cancel,
		log:    log,
	}
	go reg.loop()
	return reg
}

func (reg *Registry) Inbox() chan<- RegistryMsg { return reg.inbox }

func (reg *Registry) loop() {
	for {
		select {
		case <-reg.ctx.Done():
			return

		case m := <-reg.inbox:
			switch msg := m.(type) {
			case Create:
				code := reg.uniqueCode()
				room := msg.Room
				room.JoinCode = code
				initial := Snapshot{
					Room:    room,
					Players: map[string]game.Player{msg.Host.ID: msg.Host},
				}
				rs := NewRoom(reg.ctx, initial, reg.log)
				reg.rooms[code] = rs
				reg.log.Info("room created",
					zap.String("room", room.ID), zap.String("code", code))
				msg.Reply <- Created{Code: code, Room: rs}

			case Get:
				msg.Reply <- reg.rooms[msg.Code] // may be nil

			case Remove:
				if rs := reg.rooms[msg.Code]; rs != nil {
					rs.Inbox() <- Shutdown{Delete: true}
					delete(reg.rooms, msg.Code)
					reg.log.Info("room removed", zap.String("code", msg.Code))
				}

			case ShutdownRegistry:
				for code, rs := range reg.rooms {
					rs.Inbox() <- Shutdown{}
					delete(reg.rooms, code)
				}
				reg.cancel()
			}
		}
	}
}

// uniqueCode draws 6-digit codes until one misses every active room.
func (reg *Registry) uniqueCode() string {
	for {
		code, err := generateCode()
		if err != nil {
			// crypto/rand failing is not something we can recover from here
			reg.log.Error("join code generation failed", zap.Error(err))
			continue
		}
		if _, taken := reg.rooms[code]; !taken {
			return code
		}
		reg.log.Debug("collision on join code, regenerating")
	}
}

func generateCode() (string, error) {
	const charset = "0123456789"

	code := make([]byte, 6)
	for i := 0; i < 6; i++ {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		code[i] = charset[num.Int64()]
	}
	return string(code), nil
}
