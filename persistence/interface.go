// persistence/interface.go
package persistence

import (
	"fmt"

	"github.com/wfunc/mafiaserver/models"
)

// Database 数据库接口
// Multi-row operations (ApplyAssignments, ApplyResolution, ApplyElimination)
// are atomic: either every row changes or none does. Uniqueness invariants
// (one action per actor per round, one current vote per voter per room) are
// enforced at the point of write, not by a read-then-write check.
type Database interface {
	CreateRoom(room *models.Room) error
	GetRoom(roomID string) (*models.Room, error)
	GetRoomByCode(code string) (*models.Room, error)
	// UpdateRoomPhase moves the room to a new phase and touches nothing
	// else; votes and players are untouched.
	UpdateRoomPhase(roomID string, phase models.Phase) error

	CreatePlayer(player *models.Player) error
	GetPlayer(playerID string) (*models.Player, error)
	// ListPlayers returns the roster in stable join order.
	ListPlayers(roomID string) ([]models.Player, error)

	// ApplyAssignments persists every player's role and team and the room's
	// new phase in one transaction.
	ApplyAssignments(roomID string, assignments []models.Assignment, phase models.Phase) error

	// InsertAction records a night action. A second action for the same
	// (actor, round) is rejected with ErrDuplicateAction and leaves the
	// first one untouched.
	InsertAction(action *models.GameAction) error
	ListActions(roomID string, round int) ([]models.GameAction, error)

	// UpsertVote is last-write-wins per (voter, room).
	UpsertVote(vote *models.Vote) error
	ListVotes(roomID string) ([]models.Vote, error)

	// ApplyResolution marks the killed players dead and moves the room to
	// phase/winner with the next round number, all in one transaction.
	ApplyResolution(roomID string, killed []string, phase models.Phase, winner models.Winner, nextRound int) error

	// ApplyElimination applies a day-vote elimination (eliminatedID may be
	// empty for a tie), sets the room phase/winner, and clears the room's
	// votes, all in one transaction.
	ApplyElimination(roomID string, eliminatedID string, phase models.Phase, winner models.Winner) error

	// SaveRoundSummary archives a resolved round's outcome for history.
	SaveRoundSummary(roomID string, round int, summary interface{}) error

	Close() error
}

// 错误定义
var (
	ErrRecordNotFound  = fmt.Errorf("record not found")
	ErrDuplicateAction = fmt.Errorf("action already recorded for this actor and round")
)
