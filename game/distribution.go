package game

import (
	"errors"

	"github.com/wfunc/mafiaserver/models"
)

// MinPlayers is the smallest roster a game can start with.
const MinPlayers = 4

// ErrInsufficientPlayers is returned when a room tries to start with fewer
// than MinPlayers players.
var ErrInsufficientPlayers = errors.New("minimum 4 players required")

// RoleDistribution returns the role multiset for a roster of playerCount
// players. The thresholds are fixed: 1 mafia up to 6 players, 2 up to 9,
// 3 from 10; always one doctor and one detective; citizens fill the rest.
func RoleDistribution(playerCount int) ([]models.Role, error) {
	if playerCount < MinPlayers {
		return nil, ErrInsufficientPlayers
	}

	var mafiaCount int
	switch {
	case playerCount <= 6:
		mafiaCount = 1
	case playerCount <= 9:
		mafiaCount = 2
	default:
		mafiaCount = 3
	}

	roles := make([]models.Role, 0, playerCount)
	for i := 0; i < mafiaCount; i++ {
		roles = append(roles, models.RoleMafia)
	}
	roles = append(roles, models.RoleDoctor, models.RoleDetective)
	for len(roles) < playerCount {
		roles = append(roles, models.RoleCitizen)
	}
	return roles, nil
}
