package game

import (
	"github.com/wfunc/mafiaserver/models"
)

// AliveCounts is the living-population snapshot per faction.
type AliveCounts struct {
	Mafia int
	Town  int
}

// CountAlive tallies living players by team.
func CountAlive(players []models.Player) AliveCounts {
	var counts AliveCounts
	for _, p := range players {
		if !p.IsAlive {
			continue
		}
		switch p.Team {
		case models.TeamMafia:
			counts.Mafia++
		case models.TeamTown:
			counts.Town++
		}
	}
	return counts
}

// EvaluateWin decides whether the game has ended, in this order:
// mafia >= town means mafia can no longer be outvoted, so MAFIA wins
// immediately (this covers town == 0); otherwise mafia == 0 means TOWN wins;
// otherwise the game continues with no winner.
func EvaluateWin(counts AliveCounts) (models.Winner, bool) {
	if counts.Mafia >= counts.Town {
		return models.WinnerMafia, true
	}
	if counts.Mafia == 0 {
		return models.WinnerTown, true
	}
	return models.WinnerNone, false
}
