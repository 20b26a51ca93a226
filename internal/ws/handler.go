package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/PandakiraDev/song-guess/internal/game"
	"github.com/PandakiraDev/song-guess/internal/identity"
	"github.com/PandakiraDev/song-guess/internal/session"
	"github.com/PandakiraDev/song-guess/internal/store"
	"github.com/PandakiraDev/song-guess/pkg/types"
	"github.com/coder/websocket"
	"go.uber.org/zap"
)

const writeTimeout = 3 * time.Second

// Handler runs one protocol session per connection. Connecting with
// create=1 opens a new room with the caller as host; otherwise code=
// joins an existing lobby. A dropped connection leaves the room (and a
// dropped host closes it).
func Handler(reg *store.Registry, arch session.Archiver, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		id, err := identity.NewGuest(q.Get("name"))
		if err != nil {
			http.Error(w, "missing name", http.StatusBadRequest)
			return
		}

		cfg := session.Config{
			PlayerID: id.ID,
			Name:     id.Name,
			Avatar:   id.Avatar,
			Registry: reg,
			Archive:  arch,
			Log:      log,
		}

		var sess *session.Session
		code := q.Get("code")
		if q.Get("create") == "1" {
			sess, code, err = session.CreateRoom(r.Context(), cfg, game.DefaultSettings())
			if err != nil {
				http.Error(w, "failed to create room", http.StatusInternalServerError)
				return
			}
		} else {
			if code == "" {
				http.Error(w, "missing code", http.StatusBadRequest)
				return
			}
			sess, err = session.JoinRoom(r.Context(), cfg, code)
			switch {
			case errors.Is(err, session.ErrRoomNotFound):
				http.Error(w, "room not found", http.StatusNotFound)
				return
			case errors.Is(err, session.ErrRoomNotJoinable):
				http.Error(w, "game already in progress", http.StatusConflict)
				return
			case err != nil:
				http.Error(w, "failed to join", http.StatusInternalServerError)
				return
			}
		}
		defer func() { _ = sess.Leave() }()

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		// the renderer gets its own feed; the session keeps its own
		reply := make(chan *store.Room, 1)
		reg.Inbox() <- store.Get{Code: code, Reply: reply}
		rs := <-reply
		if rs == nil {
			return
		}
		feed := make(chan store.Snapshot, 16)
		feedID := id.ID + ":feed"
		rs.Inbox() <- store.Subscribe{ClientID: feedID, Outbox: feed}
		defer func() { rs.Inbox() <- store.Unsubscribe{ClientID: feedID} }()

		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go writer(writeCtx, conn, sess, feed, code, id.ID)

		// Reader loop
		for {
			ctx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
			_, data, err := conn.Read(ctx)
			cancel()
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
					return
				}
				return
			}

			var cm types.ClientMessage
			if err := json.Unmarshal(data, &cm); err != nil {
				writeMsg(writeCtx, conn, types.ServerMessage{Type: "Error", Error: "bad json"})
				continue
			}
			if err := dispatch(sess, cm); err != nil {
				writeMsg(writeCtx, conn, types.ServerMessage{Type: "Error", Error: err.Error()})
			}
		}
	}
}

func writer(ctx context.Context, conn *websocket.Conn, sess *session.Session, feed <-chan store.Snapshot, code, playerID string) {
	writeMsg(ctx, conn, types.ServerMessage{Type: "Joined", Code: code, Player: playerID})

	for {
		select {
		case <-ctx.Done():
			return

		case snap, ok := <-feed:
			if !ok {
				return
			}
			room := snap.Room
			writeMsg(ctx, conn, types.ServerMessage{
				Type:    "StateSnapshot",
				Version: snap.Version,
				Exists:  snap.Exists,
				Room:    &room,
				Players: snap.Players,
				Songs:   snap.Songs,
				Votes:   snap.Votes,
				Ranked:  game.RankPlayers(snap.Players, snap.Votes),
			})

		case ev, ok := <-sess.Events():
			if !ok {
				return
			}
			if ev.Kind == session.EventRoomClosed {
				writeMsg(ctx, conn, types.ServerMessage{Type: "RoomClosed", Deleted: ev.RoomDeleted})
			}
		}
	}
}

func writeMsg(ctx context.Context, conn *websocket.Conn, msg types.ServerMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return
	}
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	_ = conn.Write(wctx, websocket.MessageText, payload)
}

func dispatch(sess *session.Session, cm types.ClientMessage) error {
	switch cm.Type {
	case "SetReady":
		return sess.SetReady(cm.Ready)
	case "StartAddingSongs":
		return sess.StartAddingSongs()
	case "AddSong":
		return sess.AddSong(cm.VideoID, cm.Title, cm.Thumbnail)
	case "StartGame":
		return sess.StartGame()
	case "StartPlayback":
		return sess.StartPlayback()
	case "WidgetReady":
		return sess.MarkWidgetReady()
	case "ContentPlaying":
		return sess.SignalContentPlaying()
	case "CastVote":
		return sess.CastVote(cm.VotedFor)
	case "RevealNow":
		return sess.RevealNow()
	case "NextRound":
		return sess.NextRound()
	case "Replay":
		return sess.Replay()
	default:
		return errors.New("unknown message type")
	}
}
