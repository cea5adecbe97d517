package persistence

import (
	"testing"

	"github.com/wfunc/mafiaserver/models"
)

func TestMemory_InsertAction_RejectsDuplicate(t *testing.T) {
	db := NewMemory()

	first := &models.GameAction{ID: "a1", RoomID: "r1", ActorID: "p1", TargetID: "p2", Type: models.ActionKill, RoundNumber: 1}
	if err := db.InsertAction(first); err != nil {
		t.Fatalf("First insert failed: %v", err)
	}

	dup := &models.GameAction{ID: "a2", RoomID: "r1", ActorID: "p1", TargetID: "p3", Type: models.ActionKill, RoundNumber: 1}
	if err := db.InsertAction(dup); err != ErrDuplicateAction {
		t.Fatalf("Expected ErrDuplicateAction, got %v", err)
	}

	actions, err := db.ListActions("r1", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(actions) != 1 || actions[0].TargetID != "p2" {
		t.Errorf("Duplicate must not replace the first action: %+v", actions)
	}

	// A new round is a fresh slot for the same actor.
	next := &models.GameAction{ID: "a3", RoomID: "r1", ActorID: "p1", TargetID: "p3", Type: models.ActionKill, RoundNumber: 2}
	if err := db.InsertAction(next); err != nil {
		t.Errorf("Next round insert failed: %v", err)
	}
}

func TestMemory_UpsertVote_LastWriteWins(t *testing.T) {
	db := NewMemory()

	if err := db.UpsertVote(&models.Vote{RoomID: "r1", VoterID: "v1", SuspectID: "b"}); err != nil {
		t.Fatal(err)
	}
	if err := db.UpsertVote(&models.Vote{RoomID: "r1", VoterID: "v1", SuspectID: "c"}); err != nil {
		t.Fatal(err)
	}

	votes, err := db.ListVotes("r1")
	if err != nil {
		t.Fatal(err)
	}
	if len(votes) != 1 {
		t.Fatalf("Expected a single current vote, got %d", len(votes))
	}
	if votes[0].SuspectID != "c" {
		t.Errorf("Expected the replacement vote c, got %s", votes[0].SuspectID)
	}
}

func TestMemory_UpdateRoomPhase_LeavesVotes(t *testing.T) {
	db := NewMemory()

	if err := db.CreateRoom(&models.Room{ID: "r1", Code: "ROOM01", Phase: models.PhaseDay, RoundNumber: 2}); err != nil {
		t.Fatal(err)
	}
	if err := db.UpsertVote(&models.Vote{RoomID: "r1", VoterID: "v1", SuspectID: "s1"}); err != nil {
		t.Fatal(err)
	}

	if err := db.UpdateRoomPhase("r1", models.PhaseVoting); err != nil {
		t.Fatal(err)
	}

	room, err := db.GetRoom("r1")
	if err != nil {
		t.Fatal(err)
	}
	if room.Phase != models.PhaseVoting {
		t.Errorf("Expected voting phase, got %s", room.Phase)
	}
	if room.RoundNumber != 2 {
		t.Errorf("Round number must be untouched, got %d", room.RoundNumber)
	}

	votes, err := db.ListVotes("r1")
	if err != nil {
		t.Fatal(err)
	}
	if len(votes) != 1 {
		t.Errorf("Phase update must not clear votes, got %d", len(votes))
	}

	if err := db.UpdateRoomPhase("missing", models.PhaseVoting); err != ErrRecordNotFound {
		t.Errorf("Expected ErrRecordNotFound for unknown room, got %v", err)
	}
}

func TestMemory_ListPlayers_JoinOrder(t *testing.T) {
	db := NewMemory()
	db.CreatePlayer(&models.Player{ID: "p2", RoomID: "r1", JoinOrder: 1})
	db.CreatePlayer(&models.Player{ID: "p3", RoomID: "r1", JoinOrder: 2})
	db.CreatePlayer(&models.Player{ID: "p1", RoomID: "r1", JoinOrder: 0})
	db.CreatePlayer(&models.Player{ID: "x1", RoomID: "r2", JoinOrder: 0})

	players, err := db.ListPlayers("r1")
	if err != nil {
		t.Fatal(err)
	}
	if len(players) != 3 {
		t.Fatalf("Expected 3 players, got %d", len(players))
	}
	for i, want := range []string{"p1", "p2", "p3"} {
		if players[i].ID != want {
			t.Errorf("Position %d: expected %s, got %s", i, want, players[i].ID)
		}
	}
}

func TestMemory_ApplyResolution(t *testing.T) {
	db := NewMemory()
	db.CreateRoom(&models.Room{ID: "r1", Phase: models.PhaseNight, RoundNumber: 1})
	db.CreatePlayer(&models.Player{ID: "p1", RoomID: "r1", IsAlive: true})
	db.CreatePlayer(&models.Player{ID: "p2", RoomID: "r1", IsAlive: true})

	err := db.ApplyResolution("r1", []string{"p2"}, models.PhaseDay, models.WinnerNone, 2)
	if err != nil {
		t.Fatal(err)
	}

	room, _ := db.GetRoom("r1")
	if room.Phase != models.PhaseDay || room.RoundNumber != 2 {
		t.Errorf("Room not advanced: %+v", room)
	}
	p2, _ := db.GetPlayer("p2")
	if p2.IsAlive {
		t.Error("Killed player should be dead")
	}
	p1, _ := db.GetPlayer("p1")
	if !p1.IsAlive {
		t.Error("Surviving player should stay alive")
	}
}

func TestMemory_ApplyElimination_ClearsVotes(t *testing.T) {
	db := NewMemory()
	db.CreateRoom(&models.Room{ID: "r1", Phase: models.PhaseDay, RoundNumber: 2})
	db.CreatePlayer(&models.Player{ID: "p1", RoomID: "r1", IsAlive: true})
	db.UpsertVote(&models.Vote{RoomID: "r1", VoterID: "p1", SuspectID: "p2"})

	if err := db.ApplyElimination("r1", "p1", models.PhaseNight, models.WinnerNone); err != nil {
		t.Fatal(err)
	}

	votes, _ := db.ListVotes("r1")
	if len(votes) != 0 {
		t.Errorf("Votes must be cleared after elimination, got %d", len(votes))
	}
	p1, _ := db.GetPlayer("p1")
	if p1.IsAlive {
		t.Error("Eliminated player should be dead")
	}
}
