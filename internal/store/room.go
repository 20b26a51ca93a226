package store

import (
	"context"

	"go.uber.org/zap"
)

type Msg interface{ isRoomMsg() }

// Subscribe registers a push subscription. The current snapshot is sent
// immediately, then every committed change.
type Subscribe struct {
	ClientID string
	Outbox   chan Snapshot
}

type Unsubscribe struct{ ClientID string }

// Apply commits a batch of ops atomically: one version bump, one
// notification. Writes are fire-and-forget, matching the store contract.
type Apply struct{ Ops []Op }

// GetSnapshot reflects current state without races (test hook).
type GetSnapshot struct{ Reply chan Snapshot }

// Shutdown stops the room loop. With Delete set, subscribers receive a
// final Exists:false snapshot first so they can classify the room as
// closed rather than just losing the feed.
type Shutdown struct{ Delete bool }

func (Subscribe) isRoomMsg()   {}
func (Unsubscribe) isRoomMsg() {}
func (Apply) isRoomMsg()       {}
func (GetSnapshot) isRoomMsg() {}
func (Shutdown) isRoomMsg()    {}

// Room is the store-side actor for one game session.
type Room struct {
	inbox   chan Msg
	doc     *doc
	version int
	subs    map[string]chan Snapshot
	ctx     context.Context
	cancel  context.CancelFunc
	log     *zap.Logger
}

func NewRoom(parent context.Context, initial Snapshot, log *zap.Logger) *Room {
	ctx, cancel := context.WithCancel(parent)
	d := newDoc(initial.Room)
	for k, v := range initial.Players {
		d.players[k] = v
	}
	for k, v := range initial.Songs {
		d.songs[k] = v
	}
	for k, v := range initial.Votes {
		d.votes[k] = v
	}
	r := &Room{
		inbox:   make(chan Msg, 64),
		doc:     d,
		subs:    make(map[string]chan Snapshot),
		ctx:     ctx,
		cancel:  cancel,
		log:     log.With(zap.String("room", initial.Room.ID)),
	}
	go r.loop()
	return r
}

func (r *Room) Inbox() chan<- Msg { return r.inbox }

func (r *Room) loop() {
	for {
		select {
		case <-r.ctx.Done():
			r.shutdown(false)
			return

		case m := <-r.inbox:
			switch msg := m.(type) {
			case Subscribe:
				r.subs[msg.ClientID] = msg.Outbox
				msg.Outbox <- r.doc.snapshot(r.version, true)

			case Unsubscribe:
				delete(r.subs, msg.ClientID)

			case Apply:
				for _, op := range msg.Ops {
					r.doc.apply(op)
				}
				r.version++
				r.broadcast(r.doc.snapshot(r.version, true))

			case GetSnapshot:
				msg.Reply <- r.doc.snapshot(r.version, true)

			case Shutdown:
				r.shutdown(msg.Delete)
				return
			}
		}
	}
}

func (r *Room) shutdown(deleted bool) {
	if deleted {
		r.version++
		r.broadcast(r.doc.snapshot(r.version, false))
	}
	for id, ch := range r.subs {
		close(ch)
		delete(r.subs, id)
	}
	r.cancel()
}

func (r *Room) broadcast(snap Snapshot) {
	for id, ch := range r.subs {
		select {
		case ch <- snap:
			// ok
		default:
			// Subscriber is slow/full - drop them.
			r.log.Warn("dropping slow subscriber", zap.String("client", id))
			close(ch)
			delete(r.subs, id)
		}
	}
}
