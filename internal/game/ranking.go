package game

import (
	"math"
	"sort"
)

type RankedPlayer struct {
	Player
	Rank int `json:"rank"`
	// AvgCorrectMs is the tie-break value: mean response time over this
	// player's correct votes, +Inf when they have none.
	AvgCorrectMs float64 `json:"avg_correct_ms"`
}

// RankPlayers produces the final standings: score descending, ties broken
// by ascending average correct-response time. Players sharing both values
// share a rank; the next distinct pair gets its 1-based position in the
// sorted sequence (standard competition ranking).
func RankPlayers(players map[string]Player, votes map[string]Vote) []RankedPlayer {
	sums := make(map[string]int64, len(players))
	counts := make(map[string]int, len(players))
	for _, v := range votes {
		if v.Correct {
			sums[v.VoterID] += v.ResponseTimeMs
			counts[v.VoterID]++
		}
	}

	ranked := make([]RankedPlayer, 0, len(players))
	for _, p := range players {
		avg := math.Inf(1)
		if counts[p.ID] > 0 {
			avg = float64(sums[p.ID]) / float64(counts[p.ID])
		}
		ranked = append(ranked, RankedPlayer{Player: p, AvgCorrectMs: avg})
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		if ranked[i].AvgCorrectMs != ranked[j].AvgCorrectMs {
			return ranked[i].AvgCorrectMs < ranked[j].AvgCorrectMs
		}
		return ranked[i].ID < ranked[j].ID // deterministic order among exact ties
	})

	for i := range ranked {
		if i > 0 && sameStanding(ranked[i], ranked[i-1]) {
			ranked[i].Rank = ranked[i-1].Rank
			continue
		}
		ranked[i].Rank = i + 1
	}
	return ranked
}

func sameStanding(a, b RankedPlayer) bool {
	if a.Score != b.Score {
		return false
	}
	// Inf == Inf holds, so "no correct votes" ties with itself.
	return a.AvgCorrectMs == b.AvgCorrectMs
}
