package game

import (
	"math/rand"

	"github.com/wfunc/mafiaserver/models"
)

// AssignRoles computes the role distribution for the roster, shuffles it with
// a Fisher-Yates pass over rng, and zips the permutation against the players
// in the order given (callers pass the roster in stable join order). Only the
// permutation is random; the distribution itself is fixed per roster size.
func AssignRoles(players []models.Player, rng *rand.Rand) ([]models.Assignment, error) {
	roles, err := RoleDistribution(len(players))
	if err != nil {
		return nil, err
	}

	shuffleRoles(roles, rng)

	assignments := make([]models.Assignment, len(players))
	for i, p := range players {
		assignments[i] = models.Assignment{
			PlayerID: p.ID,
			Role:     roles[i],
			Team:     roles[i].Team(),
		}
	}
	return assignments, nil
}

// shuffleRoles is an in-place Fisher-Yates shuffle. Iterating from the last
// index down and swapping with a uniformly chosen earlier-or-equal index
// makes every permutation equally likely.
func shuffleRoles(roles []models.Role, rng *rand.Rand) {
	for i := len(roles) - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		roles[i], roles[j] = roles[j], roles[i]
	}
}
