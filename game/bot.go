package game

import (
	"math/rand"

	"github.com/wfunc/mafiaserver/models"
)

// DefaultMafiaVoteBias is the probability with which a mafia-team bot votes
// for a town target when at least one town player is alive.
const DefaultMafiaVoteBias = 0.7

// BotPolicy decides night actions and day votes for computer-controlled
// players. All choices are uniform over a candidate set; the only bias is the
// mafia vote preference. Empty candidate sets yield a skip, never an error.
type BotPolicy struct {
	rng           *rand.Rand
	mafiaVoteBias float64
}

// NewBotPolicy creates a bot policy around the given random source. A bias
// outside (0, 1] falls back to DefaultMafiaVoteBias.
func NewBotPolicy(rng *rand.Rand, mafiaVoteBias float64) *BotPolicy {
	if mafiaVoteBias <= 0 || mafiaVoteBias > 1 {
		mafiaVoteBias = DefaultMafiaVoteBias
	}
	return &BotPolicy{rng: rng, mafiaVoteBias: mafiaVoteBias}
}

// NightAction picks a night action for bot against the given roster. It
// returns ok=false when the bot's role has no night action or no valid target
// exists. Callers are responsible for not invoking it for an actor that
// already acted this round.
func (p *BotPolicy) NightAction(bot models.Player, players []models.Player) (models.ActionType, string, bool) {
	actionType, ok := bot.Role.NightAction()
	if !ok {
		return "", "", false
	}

	candidates := livingTargets(players, bot.ID)
	if bot.Role == models.RoleMafia {
		nonMafia := filterTeam(candidates, models.TeamMafia, false)
		if len(nonMafia) > 0 {
			candidates = nonMafia
		}
	}
	if len(candidates) == 0 {
		return "", "", false
	}

	target := candidates[p.rng.Intn(len(candidates))]
	return actionType, target.ID, true
}

// VoteTarget picks a day-vote suspect for bot. Mafia-team bots prefer living
// town targets with probability mafiaVoteBias when any exist; otherwise the
// choice is uniform over all living players other than the bot itself.
func (p *BotPolicy) VoteTarget(bot models.Player, players []models.Player) (string, bool) {
	candidates := livingTargets(players, bot.ID)

	if bot.Team == models.TeamMafia {
		town := filterTeam(candidates, models.TeamTown, true)
		if len(town) > 0 && p.rng.Float64() < p.mafiaVoteBias {
			candidates = town
		}
	}
	if len(candidates) == 0 {
		return "", false
	}

	return candidates[p.rng.Intn(len(candidates))].ID, true
}

// livingTargets returns all living players except the actor itself.
func livingTargets(players []models.Player, selfID string) []models.Player {
	targets := make([]models.Player, 0, len(players))
	for _, p := range players {
		if p.IsAlive && p.ID != selfID {
			targets = append(targets, p)
		}
	}
	return targets
}

func filterTeam(players []models.Player, team models.Team, keep bool) []models.Player {
	filtered := make([]models.Player, 0, len(players))
	for _, p := range players {
		if (p.Team == team) == keep {
			filtered = append(filtered, p)
		}
	}
	return filtered
}
