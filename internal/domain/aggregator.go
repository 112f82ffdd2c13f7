package domain

import (
	"sort"
)

// Standing is one leaderboard row.
type Standing struct {
	Rank        int
	Participant Participant
}

// RankParticipants orders participants by TotalScore descending. Equal
// scores keep creation order (Seq) and share a rank position.
// The input slice is not modified.
func RankParticipants(ps []Participant) []Standing {
	sorted := make([]Participant, len(ps))
	copy(sorted, ps)

	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].TotalScore != sorted[j].TotalScore {
			return sorted[i].TotalScore > sorted[j].TotalScore
		}
		return sorted[i].Seq < sorted[j].Seq
	})

	out := make([]Standing, len(sorted))
	for i, p := range sorted {
		rank := i + 1
		if i > 0 && p.TotalScore == sorted[i-1].TotalScore {
			rank = out[i-1].Rank
		}
		out[i] = Standing{Rank: rank, Participant: p}
	}
	return out
}
