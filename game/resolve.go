package game

import (
	"sort"

	"github.com/wfunc/mafiaserver/models"
)

// ResolveRound resolves one night round's actions into an outcome. It is a
// pure function of the roster and action snapshots; persisting the deaths and
// the phase change is the caller's job.
//
// Effects apply in strict priority order:
//
//  1. block: every block target has its own action this round voided.
//     Voiding removes the blocked actor's action from all later steps but
//     does not protect the blocked actor's target.
//  2. heal: among actions from living, unblocked actors, every heal target
//     is marked healed.
//  3. kill: among the same valid set, every kill target not in the healed
//     set dies. Heal strictly cancels kill; stacking never matters.
//  4. check: detective results record the target's role before this round's
//     kills, so a target that dies tonight still reveals truthfully.
//
// Only the first-seen action per actor counts; the store forbids duplicates
// but the engine deduplicates anyway in case a backend cannot enforce it.
func ResolveRound(players []models.Player, actions []models.GameAction) *models.ResolutionOutcome {
	playerByID := make(map[string]models.Player, len(players))
	for _, p := range players {
		playerByID[p.ID] = p
	}

	actions = dedupeByActor(actions)

	// Priority 1: blocks void their targets' actions.
	blocked := make(map[string]struct{})
	for _, a := range actions {
		if a.Type == models.ActionBlock && a.TargetID != "" {
			blocked[a.TargetID] = struct{}{}
		}
	}

	valid := make([]models.GameAction, 0, len(actions))
	for _, a := range actions {
		actor, ok := playerByID[a.ActorID]
		if !ok || !actor.IsAlive {
			continue
		}
		if _, isBlocked := blocked[a.ActorID]; isBlocked {
			continue
		}
		valid = append(valid, a)
	}

	// Priority 2: heals.
	healed := make(map[string]struct{})
	for _, a := range valid {
		if a.Type == models.ActionHeal && a.TargetID != "" {
			healed[a.TargetID] = struct{}{}
		}
	}

	// Priority 3: kills, minus healed targets.
	killed := make(map[string]struct{})
	for _, a := range valid {
		if a.Type != models.ActionKill || a.TargetID == "" {
			continue
		}
		if _, isHealed := healed[a.TargetID]; isHealed {
			continue
		}
		killed[a.TargetID] = struct{}{}
	}

	// Priority 4: detective checks against pre-kill role truth.
	var detectiveResults []models.DetectiveResult
	for _, a := range valid {
		if a.Type != models.ActionCheck || a.TargetID == "" {
			continue
		}
		target, ok := playerByID[a.TargetID]
		if !ok {
			continue
		}
		detectiveResults = append(detectiveResults, models.DetectiveResult{
			DetectiveID: a.ActorID,
			TargetID:    a.TargetID,
			TargetRole:  target.Role,
		})
	}

	// Apply deaths to the snapshot and evaluate the win condition on the
	// updated population.
	for id := range killed {
		if p, ok := playerByID[id]; ok {
			p.IsAlive = false
			playerByID[id] = p
		}
	}
	updated := make([]models.Player, 0, len(playerByID))
	for _, p := range playerByID {
		updated = append(updated, p)
	}
	counts := CountAlive(updated)
	winner, finished := EvaluateWin(counts)

	phase := models.PhaseDay
	if finished {
		phase = models.PhaseFinished
	}

	return &models.ResolutionOutcome{
		Blocked:          sortedIDs(blocked),
		Healed:           sortedIDs(healed),
		Killed:           sortedIDs(killed),
		DetectiveResults: detectiveResults,
		Phase:            phase,
		Winner:           winner,
		AliveMafia:       counts.Mafia,
		AliveTown:        counts.Town,
	}
}

// dedupeByActor keeps the first-seen action per actor.
func dedupeByActor(actions []models.GameAction) []models.GameAction {
	seen := make(map[string]struct{}, len(actions))
	deduped := make([]models.GameAction, 0, len(actions))
	for _, a := range actions {
		if _, dup := seen[a.ActorID]; dup {
			continue
		}
		seen[a.ActorID] = struct{}{}
		deduped = append(deduped, a)
	}
	return deduped
}

func sortedIDs(set map[string]struct{}) []string {
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
