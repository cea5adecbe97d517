package services

import (
	"errors"
	"math/rand"
	"os"
	"testing"

	"github.com/google/uuid"

	"github.com/wfunc/mafiaserver/game"
	"github.com/wfunc/mafiaserver/logger"
	"github.com/wfunc/mafiaserver/models"
	"github.com/wfunc/mafiaserver/persistence"
	"github.com/wfunc/mafiaserver/state"
)

func TestMain(m *testing.M) {
	logger.Init()
	os.Exit(m.Run())
}

// MockNotifier is a test double for the Notifier interface.
type MockNotifier struct {
	changed []string
}

func (n *MockNotifier) RoomChanged(roomID string) {
	n.changed = append(n.changed, roomID)
}

func newTestService(seed int64) (*GameService, *persistence.Memory, *MockNotifier) {
	db := persistence.NewMemory()
	notifier := &MockNotifier{}
	svc := NewGameService(db, notifier, rand.New(rand.NewSource(seed)), game.DefaultMafiaVoteBias, game.MinPlayers)
	return svc, db, notifier
}

// seedGame builds a room already in the given phase with preset roles.
func seedGame(db *persistence.Memory, phase models.Phase, roles map[string]models.Role) *models.Room {
	room := &models.Room{
		ID:          uuid.New().String(),
		Code:        "TEST01",
		HostID:      "p0",
		Phase:       phase,
		RoundNumber: 1,
	}
	db.CreateRoom(room)

	order := 0
	for id, role := range roles {
		db.CreatePlayer(&models.Player{
			ID:        id,
			RoomID:    room.ID,
			Nickname:  id,
			Role:      role,
			Team:      role.Team(),
			IsAlive:   true,
			JoinOrder: order,
		})
		order++
	}
	return room
}

func TestGameService_StartGame(t *testing.T) {
	svc, db, notifier := newTestService(1)

	room, host, err := svc.CreateRoom("alice")
	if err != nil {
		t.Fatal(err)
	}
	if room.HostID != host.ID {
		t.Errorf("Host should be recorded on the room: %s != %s", room.HostID, host.ID)
	}

	for _, name := range []string{"bob", "carol", "dave", "erin"} {
		if _, _, err := svc.JoinRoom(room.Code, name, false); err != nil {
			t.Fatalf("Join %s failed: %v", name, err)
		}
	}

	summary, err := svc.StartGame(room.ID)
	if err != nil {
		t.Fatalf("StartGame failed: %v", err)
	}
	if summary.PlayerCount != 5 || summary.Phase != models.PhaseNight {
		t.Errorf("Unexpected summary: %+v", summary)
	}

	players, _ := db.ListPlayers(room.ID)
	counts := make(map[models.Role]int)
	for _, p := range players {
		if p.Role == "" {
			t.Errorf("Player %s has no role after start", p.Nickname)
		}
		if p.Team != p.Role.Team() {
			t.Errorf("Player %s team %s inconsistent with role %s", p.Nickname, p.Team, p.Role)
		}
		counts[p.Role]++
	}
	// 5 players: 1 mafia, 1 doctor, 1 detective, 2 citizens in some order.
	if counts[models.RoleMafia] != 1 || counts[models.RoleDoctor] != 1 ||
		counts[models.RoleDetective] != 1 || counts[models.RoleCitizen] != 2 {
		t.Errorf("Unexpected distribution: %v", counts)
	}

	updated, _ := db.GetRoom(room.ID)
	if updated.Phase != models.PhaseNight {
		t.Errorf("Room should be in night, got %s", updated.Phase)
	}
	if len(notifier.changed) == 0 {
		t.Error("Expected a room-changed notification after start")
	}
}

func TestGameService_StartGame_InsufficientPlayers(t *testing.T) {
	svc, db, _ := newTestService(1)

	room, _, err := svc.CreateRoom("alice")
	if err != nil {
		t.Fatal(err)
	}
	svc.JoinRoom(room.Code, "bob", false)

	if _, err := svc.StartGame(room.ID); !errors.Is(err, game.ErrInsufficientPlayers) {
		t.Fatalf("Expected ErrInsufficientPlayers, got %v", err)
	}

	// No partial mutation: still lobby, nobody has a role.
	updated, _ := db.GetRoom(room.ID)
	if updated.Phase != models.PhaseLobby {
		t.Errorf("Room phase must stay lobby, got %s", updated.Phase)
	}
	players, _ := db.ListPlayers(room.ID)
	for _, p := range players {
		if p.Role != "" {
			t.Errorf("Player %s should have no role", p.Nickname)
		}
	}
}

func TestGameService_StartGame_ConfiguredMinimum(t *testing.T) {
	db := persistence.NewMemory()
	svc := NewGameService(db, nil, rand.New(rand.NewSource(1)), game.DefaultMafiaVoteBias, 6)

	room, _, err := svc.CreateRoom("alice")
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"bob", "carol", "dave", "erin"} {
		if _, _, err := svc.JoinRoom(room.Code, name, false); err != nil {
			t.Fatal(err)
		}
	}

	// 5 players would satisfy the distribution floor but not the room's
	// configured minimum of 6.
	if _, err := svc.StartGame(room.ID); !errors.Is(err, game.ErrInsufficientPlayers) {
		t.Fatalf("Expected ErrInsufficientPlayers below the configured minimum, got %v", err)
	}

	if _, _, err := svc.JoinRoom(room.Code, "frank", false); err != nil {
		t.Fatal(err)
	}
	summary, err := svc.StartGame(room.ID)
	if err != nil {
		t.Fatalf("StartGame with 6 players failed: %v", err)
	}
	if summary.PlayerCount != 6 {
		t.Errorf("Expected 6 players, got %d", summary.PlayerCount)
	}
}

func TestGameService_StartGame_WrongPhase(t *testing.T) {
	svc, db, _ := newTestService(1)
	room := seedGame(db, models.PhaseNight, map[string]models.Role{
		"m1": models.RoleMafia, "d1": models.RoleDoctor,
		"i1": models.RoleDetective, "c1": models.RoleCitizen,
	})

	if _, err := svc.StartGame(room.ID); !errors.Is(err, state.ErrTransitionNotAllowed) {
		t.Fatalf("Expected ErrTransitionNotAllowed, got %v", err)
	}
}

func TestGameService_ResolveNight_HealBeatsKill(t *testing.T) {
	svc, db, _ := newTestService(3)
	room := seedGame(db, models.PhaseNight, map[string]models.Role{
		"m1": models.RoleMafia, "d1": models.RoleDoctor,
		"i1": models.RoleDetective, "c1": models.RoleCitizen, "c2": models.RoleCitizen,
	})

	if err := svc.SubmitAction(room.ID, "m1", "c1", models.ActionKill); err != nil {
		t.Fatal(err)
	}
	if err := svc.SubmitAction(room.ID, "d1", "c1", models.ActionHeal); err != nil {
		t.Fatal(err)
	}
	if err := svc.SubmitAction(room.ID, "i1", "m1", models.ActionCheck); err != nil {
		t.Fatal(err)
	}

	outcome, err := svc.ResolveNight(room.ID, 1)
	if err != nil {
		t.Fatalf("ResolveNight failed: %v", err)
	}

	if len(outcome.Killed) != 0 {
		t.Errorf("Healed target must survive, killed=%v", outcome.Killed)
	}
	if outcome.Phase != models.PhaseDay || outcome.Winner != models.WinnerNone {
		t.Errorf("Expected day with no winner, got phase=%s winner=%q", outcome.Phase, outcome.Winner)
	}
	if len(outcome.DetectiveResults) != 1 || outcome.DetectiveResults[0].TargetRole != models.RoleMafia {
		t.Errorf("Detective should unmask m1: %+v", outcome.DetectiveResults)
	}

	updated, _ := db.GetRoom(room.ID)
	if updated.RoundNumber != 2 {
		t.Errorf("Round number should advance to 2, got %d", updated.RoundNumber)
	}
}

func TestGameService_ResolveNight_Idempotent(t *testing.T) {
	svc, db, _ := newTestService(4)
	room := seedGame(db, models.PhaseNight, map[string]models.Role{
		"m1": models.RoleMafia, "d1": models.RoleDoctor,
		"i1": models.RoleDetective, "c1": models.RoleCitizen, "c2": models.RoleCitizen,
	})

	svc.SubmitAction(room.ID, "m1", "c1", models.ActionKill)

	first, err := svc.ResolveNight(room.ID, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(first.Killed) != 1 || first.Killed[0] != "c1" {
		t.Fatalf("Expected c1 killed, got %v", first.Killed)
	}

	second, err := svc.ResolveNight(room.ID, 1)
	if err != nil {
		t.Fatalf("Repeat resolution must be a no-op, got error %v", err)
	}
	if !second.AlreadyResolved {
		t.Error("Repeat resolution should be marked already resolved")
	}
	if len(second.Killed) != 0 {
		t.Errorf("Repeat resolution must not kill again: %v", second.Killed)
	}

	players, _ := db.ListPlayers(room.ID)
	deadCount := 0
	for _, p := range players {
		if !p.IsAlive {
			deadCount++
		}
	}
	if deadCount != 1 {
		t.Errorf("Exactly one player should be dead, got %d", deadCount)
	}
}

func TestGameService_ResolveNight_RoundMismatch(t *testing.T) {
	svc, db, _ := newTestService(4)
	room := seedGame(db, models.PhaseNight, map[string]models.Role{
		"m1": models.RoleMafia, "d1": models.RoleDoctor,
		"i1": models.RoleDetective, "c1": models.RoleCitizen,
	})

	if _, err := svc.ResolveNight(room.ID, 5); !errors.Is(err, ErrRoundMismatch) {
		t.Fatalf("Expected ErrRoundMismatch, got %v", err)
	}
}

func TestGameService_ResolveNight_SynthesizesBotActions(t *testing.T) {
	svc, db, _ := newTestService(6)
	room := seedGame(db, models.PhaseNight, map[string]models.Role{
		"d1": models.RoleDoctor, "i1": models.RoleDetective,
		"c1": models.RoleCitizen, "c2": models.RoleCitizen, "c3": models.RoleCitizen,
	})
	// The only mafia is a bot; it must kill without anyone submitting.
	db.CreatePlayer(&models.Player{
		ID: "mbot", RoomID: room.ID, Nickname: "mbot", IsBot: true,
		Role: models.RoleMafia, Team: models.TeamMafia, IsAlive: true, JoinOrder: 5,
	})

	outcome, err := svc.ResolveNight(room.ID, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(outcome.Killed) != 1 {
		t.Fatalf("Bot mafia should have killed someone, killed=%v", outcome.Killed)
	}
	if outcome.Killed[0] == "mbot" {
		t.Error("Bot must not target itself")
	}
}

func TestGameService_SubmitAction_DuplicateIgnored(t *testing.T) {
	svc, db, _ := newTestService(5)
	room := seedGame(db, models.PhaseNight, map[string]models.Role{
		"m1": models.RoleMafia, "d1": models.RoleDoctor,
		"i1": models.RoleDetective, "c1": models.RoleCitizen, "c2": models.RoleCitizen,
	})

	if err := svc.SubmitAction(room.ID, "m1", "c1", models.ActionKill); err != nil {
		t.Fatal(err)
	}
	// Retry with a different target: ignored, first action stands.
	if err := svc.SubmitAction(room.ID, "m1", "c2", models.ActionKill); err != nil {
		t.Fatalf("Duplicate submission must be a no-op success, got %v", err)
	}

	actions, _ := db.ListActions(room.ID, 1)
	if len(actions) != 1 || actions[0].TargetID != "c1" {
		t.Errorf("First-seen action must stand: %+v", actions)
	}
}

func TestGameService_SubmitAction_Validation(t *testing.T) {
	svc, db, _ := newTestService(5)
	room := seedGame(db, models.PhaseNight, map[string]models.Role{
		"m1": models.RoleMafia, "d1": models.RoleDoctor,
		"i1": models.RoleDetective, "c1": models.RoleCitizen,
	})

	if err := svc.SubmitAction(room.ID, "c1", "m1", models.ActionKill); !errors.Is(err, ErrWrongRole) {
		t.Errorf("Citizen kill should be rejected, got %v", err)
	}
	if err := svc.SubmitAction(room.ID, "m1", "c1", models.ActionHeal); !errors.Is(err, ErrWrongRole) {
		t.Errorf("Mafia heal should be rejected, got %v", err)
	}

	db.ApplyResolution(room.ID, []string{"c1"}, models.PhaseNight, models.WinnerNone, 1)
	if err := svc.SubmitAction(room.ID, "c1", "m1", models.ActionKill); !errors.Is(err, ErrDeadPlayer) {
		t.Errorf("Dead actor should be rejected, got %v", err)
	}
	if err := svc.SubmitAction(room.ID, "m1", "c1", models.ActionKill); !errors.Is(err, ErrInvalidTarget) {
		t.Errorf("Dead target should be rejected, got %v", err)
	}
}

func TestGameService_CastVote_Upsert(t *testing.T) {
	svc, db, _ := newTestService(7)
	room := seedGame(db, models.PhaseDay, map[string]models.Role{
		"a": models.RoleCitizen, "b": models.RoleCitizen,
		"c": models.RoleCitizen, "m": models.RoleMafia,
	})

	if err := svc.CastVote(room.ID, "a", "b"); err != nil {
		t.Fatal(err)
	}
	if err := svc.CastVote(room.ID, "a", "c"); err != nil {
		t.Fatal(err)
	}

	votes, _ := db.ListVotes(room.ID)
	if len(votes) != 1 {
		t.Fatalf("Expected one current vote for voter a, got %d", len(votes))
	}
	if votes[0].SuspectID != "c" {
		t.Errorf("Expected replacement vote for c, got %s", votes[0].SuspectID)
	}
}

func TestGameService_CastVote_RejectedAtNight(t *testing.T) {
	svc, db, _ := newTestService(7)
	room := seedGame(db, models.PhaseNight, map[string]models.Role{
		"a": models.RoleCitizen, "b": models.RoleCitizen,
	})

	if err := svc.CastVote(room.ID, "a", "b"); !errors.Is(err, state.ErrTransitionNotAllowed) {
		t.Fatalf("Night vote should be rejected, got %v", err)
	}
}

func TestGameService_GenerateBotVotes(t *testing.T) {
	svc, db, _ := newTestService(8)
	room := seedGame(db, models.PhaseDay, map[string]models.Role{
		"h1": models.RoleCitizen, "h2": models.RoleDoctor,
	})
	db.CreatePlayer(&models.Player{
		ID: "b1", RoomID: room.ID, Nickname: "b1", IsBot: true,
		Role: models.RoleCitizen, Team: models.TeamTown, IsAlive: true, JoinOrder: 2,
	})
	db.CreatePlayer(&models.Player{
		ID: "b2", RoomID: room.ID, Nickname: "b2", IsBot: true,
		Role: models.RoleMafia, Team: models.TeamMafia, IsAlive: true, JoinOrder: 3,
	})

	added, err := svc.GenerateBotVotes(room.ID)
	if err != nil {
		t.Fatal(err)
	}
	if added != 2 {
		t.Fatalf("Expected 2 bot votes, got %d", added)
	}

	votes, _ := db.ListVotes(room.ID)
	for _, v := range votes {
		if v.VoterID == v.SuspectID {
			t.Errorf("Bot %s voted for itself", v.VoterID)
		}
	}

	// Second invocation must not add or replace anything.
	added, err = svc.GenerateBotVotes(room.ID)
	if err != nil {
		t.Fatal(err)
	}
	if added != 0 {
		t.Errorf("Repeat bot vote generation must be idempotent, added %d", added)
	}
}

func TestGameService_OpenVoting_KeepsDayVotes(t *testing.T) {
	svc, db, _ := newTestService(8)
	room := seedGame(db, models.PhaseDay, map[string]models.Role{
		"a": models.RoleCitizen, "b": models.RoleCitizen,
		"c": models.RoleCitizen, "m": models.RoleMafia,
	})

	if err := svc.CastVote(room.ID, "a", "m"); err != nil {
		t.Fatal(err)
	}
	if err := svc.OpenVoting(room.ID); err != nil {
		t.Fatal(err)
	}

	updated, _ := db.GetRoom(room.ID)
	if updated.Phase != models.PhaseVoting {
		t.Fatalf("Expected voting phase, got %s", updated.Phase)
	}
	votes, _ := db.ListVotes(room.ID)
	if len(votes) != 1 {
		t.Fatalf("Vote cast during day must survive opening the voting window, got %d votes", len(votes))
	}
	if votes[0].VoterID != "a" || votes[0].SuspectID != "m" {
		t.Errorf("Unexpected surviving vote: %+v", votes[0])
	}

	// And it still counts in the tally.
	svc.CastVote(room.ID, "b", "m")
	outcome, err := svc.AdvanceDay(room.ID)
	if err != nil {
		t.Fatal(err)
	}
	if outcome.EliminatedID != "m" {
		t.Errorf("Day vote should have counted toward elimination, got %q", outcome.EliminatedID)
	}
}

func TestGameService_AdvanceDay_PluralityElimination(t *testing.T) {
	svc, db, _ := newTestService(9)
	room := seedGame(db, models.PhaseDay, map[string]models.Role{
		"a": models.RoleCitizen, "b": models.RoleCitizen, "c": models.RoleCitizen,
		"d": models.RoleDoctor, "m": models.RoleMafia,
	})

	svc.CastVote(room.ID, "a", "m")
	svc.CastVote(room.ID, "b", "m")
	svc.CastVote(room.ID, "c", "a")

	outcome, err := svc.AdvanceDay(room.ID)
	if err != nil {
		t.Fatal(err)
	}
	if outcome.EliminatedID != "m" {
		t.Fatalf("Expected m eliminated, got %q", outcome.EliminatedID)
	}
	// Last mafia eliminated: town wins.
	if outcome.Phase != models.PhaseFinished || outcome.Winner != models.WinnerTown {
		t.Errorf("Expected TOWN win, got phase=%s winner=%q", outcome.Phase, outcome.Winner)
	}

	votes, _ := db.ListVotes(room.ID)
	if len(votes) != 0 {
		t.Errorf("Votes must be cleared after advancing, got %d", len(votes))
	}
}

func TestGameService_AdvanceDay_TieContinues(t *testing.T) {
	svc, db, _ := newTestService(9)
	room := seedGame(db, models.PhaseVoting, map[string]models.Role{
		"a": models.RoleCitizen, "b": models.RoleCitizen, "c": models.RoleCitizen,
		"m": models.RoleMafia,
	})

	svc.CastVote(room.ID, "a", "b")
	svc.CastVote(room.ID, "b", "a")

	outcome, err := svc.AdvanceDay(room.ID)
	if err != nil {
		t.Fatal(err)
	}
	if outcome.EliminatedID != "" {
		t.Fatalf("Tie must eliminate nobody, got %q", outcome.EliminatedID)
	}
	if outcome.Phase != models.PhaseNight {
		t.Errorf("Game should return to night, got %s", outcome.Phase)
	}
}

func TestGameService_JoinRoom_AfterStartRejected(t *testing.T) {
	svc, db, _ := newTestService(10)
	seedGame(db, models.PhaseNight, map[string]models.Role{
		"m1": models.RoleMafia, "c1": models.RoleCitizen,
	})

	if _, _, err := svc.JoinRoom("TEST01", "late", false); !errors.Is(err, ErrGameStarted) {
		t.Fatalf("Joining a started game should fail, got %v", err)
	}
}

func TestGameService_RoomSnapshot_HidesLivingRoles(t *testing.T) {
	svc, db, _ := newTestService(11)
	room := seedGame(db, models.PhaseNight, map[string]models.Role{
		"m1": models.RoleMafia, "c1": models.RoleCitizen,
	})
	db.ApplyResolution(room.ID, []string{"c1"}, models.PhaseDay, models.WinnerNone, 2)

	_, roster, err := svc.RoomSnapshot(room.ID)
	if err != nil {
		t.Fatal(err)
	}
	for _, p := range roster {
		if p.IsAlive && p.Role != "" {
			t.Errorf("Living player %s must not expose role %s", p.ID, p.Role)
		}
		if !p.IsAlive && p.Role == "" {
			t.Errorf("Dead player %s should reveal role", p.ID)
		}
	}
}
