package game

import (
	"github.com/wfunc/mafiaserver/models"
)

// TallyVotes counts current votes cast by living voters against living
// suspects and returns the plurality suspect. A tie for the highest count,
// or no countable votes at all, eliminates nobody (ok=false). The returned
// counts always reflect what was counted, for display.
func TallyVotes(players []models.Player, votes []models.Vote) (suspectID string, counts map[string]int, ok bool) {
	alive := make(map[string]bool, len(players))
	for _, p := range players {
		alive[p.ID] = p.IsAlive
	}

	counts = make(map[string]int)
	for _, v := range votes {
		if !alive[v.VoterID] || !alive[v.SuspectID] {
			continue
		}
		counts[v.SuspectID]++
	}

	best, bestCount, tied := "", 0, false
	for id, c := range counts {
		switch {
		case c > bestCount:
			best, bestCount, tied = id, c, false
		case c == bestCount:
			tied = true
		}
	}
	if bestCount == 0 || tied {
		return "", counts, false
	}
	return best, counts, true
}
