package session

import (
	"sort"

	"github.com/stemsi/exstem-proctor/internal/model"
)

// SortLeaderboard returns a copy of entries ordered by correct answers,
// highest first. Ties keep the order the server sent them in.
func SortLeaderboard(entries []model.LeaderboardEntry) []model.LeaderboardEntry {
	sorted := append([]model.LeaderboardEntry(nil), entries...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CorrectAnswers > sorted[j].CorrectAnswers
	})
	return sorted
}
