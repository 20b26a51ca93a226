// Package archive persists finished games to postgres so sessions have
// a history beyond the life of the in-memory room. Losing a row is
// annoying but never a correctness problem for a running game, so
// failures are logged by the caller and the room plays on.
package archive

import (
	"fmt"
	"time"

	"github.com/PandakiraDev/song-guess/internal/game"
	"github.com/PandakiraDev/song-guess/internal/store"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

type GameRecord struct {
	ID         uint   `gorm:"primaryKey"`
	RoomID     string `gorm:"index"`
	JoinCode   string
	SongCount  int
	FinishedAt time.Time
	Results    []PlayerResult `gorm:"foreignKey:GameRecordID"`
}

type PlayerResult struct {
	ID           uint `gorm:"primaryKey"`
	GameRecordID uint `gorm:"index"`
	PlayerID     string
	Name         string
	Score        int
	Rank         int
	AvgCorrectMs float64
}

type Archive struct {
	db  *gorm.DB
	log *zap.Logger
}

// Open connects and migrates. dsn is a standard postgres DSN.
func Open(dsn string, log *zap.Logger) (*Archive, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("opening archive db: %w", err)
	}
	if err := db.AutoMigrate(&GameRecord{}, &PlayerResult{}); err != nil {
		return nil, fmt.Errorf("migrating archive schema: %w", err)
	}
	return &Archive{db: db, log: log}, nil
}

// SaveFinished writes one finished game with its final standings.
func (a *Archive) SaveFinished(snap store.Snapshot) error {
	ranked := game.RankPlayers(snap.Players, snap.Votes)

	rec := GameRecord{
		RoomID:     snap.Room.ID,
		JoinCode:   snap.Room.JoinCode,
		SongCount:  len(snap.Room.ShuffledSongIDs),
		FinishedAt: time.Now(),
	}
	for _, rp := range ranked {
		avg := rp.AvgCorrectMs
		if avg > 1e12 { // +Inf does not survive a numeric column
			avg = -1
		}
		rec.Results = append(rec.Results, PlayerResult{
			PlayerID:     rp.ID,
			Name:         rp.Name,
			Score:        rp.Score,
			Rank:         rp.Rank,
			AvgCorrectMs: avg,
		})
	}

	if err := a.db.Create(&rec).Error; err != nil {
		return fmt.Errorf("saving game record: %w", err)
	}
	a.log.Info("archived finished game",
		zap.String("room", snap.Room.ID), zap.Int("players", len(rec.Results)))
	return nil
}
