// models/models.go
package models

import (
	"time"
)

// Role 玩家角色
type Role string

const (
	RoleMafia     Role = "mafia"
	RoleDoctor    Role = "doctor"
	RoleDetective Role = "detective"
	RoleCitizen   Role = "citizen"
)

// Team returns the faction a role belongs to.
func (r Role) Team() Team {
	if r == RoleMafia {
		return TeamMafia
	}
	return TeamTown
}

// NightAction returns the night action type a role performs, if any.
func (r Role) NightAction() (ActionType, bool) {
	switch r {
	case RoleMafia:
		return ActionKill, true
	case RoleDoctor:
		return ActionHeal, true
	case RoleDetective:
		return ActionCheck, true
	default:
		return "", false
	}
}

// Team 阵营
type Team string

const (
	TeamMafia Team = "mafia"
	TeamTown  Team = "town"
)

// Phase 房间阶段
type Phase string

const (
	PhaseLobby    Phase = "lobby"
	PhaseNight    Phase = "night"
	PhaseDay      Phase = "day"
	PhaseVoting   Phase = "voting"
	PhaseFinished Phase = "finished"
)

// ActionType 夜晚行动类型
type ActionType string

const (
	ActionKill  ActionType = "kill"
	ActionHeal  ActionType = "heal"
	ActionCheck ActionType = "check"
	ActionBlock ActionType = "block"
)

// Winner is the faction that won a finished game.
type Winner string

const (
	WinnerNone  Winner = ""
	WinnerMafia Winner = "MAFIA"
	WinnerTown  Winner = "TOWN"
)

// Room 房间数据模型
type Room struct {
	ID          string    `json:"id"`
	Code        string    `json:"code"`
	HostID      string    `json:"host_id"`
	Phase       Phase     `json:"phase"`
	Winner      Winner    `json:"winner,omitempty"`
	RoundNumber int       `json:"round_number"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Player 玩家数据模型
type Player struct {
	ID        string    `json:"id"`
	RoomID    string    `json:"room_id"`
	Nickname  string    `json:"nickname"`
	IsBot     bool      `json:"is_bot"`
	Role      Role      `json:"role,omitempty"`
	Team      Team      `json:"team,omitempty"`
	IsAlive   bool      `json:"is_alive"`
	JoinOrder int       `json:"join_order"`
	CreatedAt time.Time `json:"created_at"`
}

// GameAction is one submitted night intent for a round.
type GameAction struct {
	ID          string     `json:"id"`
	RoomID      string     `json:"room_id"`
	ActorID     string     `json:"actor_id"`
	TargetID    string     `json:"target_id,omitempty"`
	Type        ActionType `json:"action_type"`
	RoundNumber int        `json:"round_number"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Vote is the current day-phase vote of one voter in a room.
type Vote struct {
	ID        string    `json:"id"`
	RoomID    string    `json:"room_id"`
	VoterID   string    `json:"voter_id"`
	SuspectID string    `json:"suspect_id"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Assignment binds a role and derived team to one player at game start.
type Assignment struct {
	PlayerID string `json:"player_id"`
	Role     Role   `json:"role"`
	Team     Team   `json:"team"`
}

// DetectiveResult 侦探调查结果
type DetectiveResult struct {
	DetectiveID string `json:"detective_id"`
	TargetID    string `json:"target_id"`
	TargetRole  Role   `json:"target_role"`
}

// ResolutionOutcome is the structured result of resolving one night round.
// It is the causal record applied to room and player state; it is not
// persisted as its own entity.
type ResolutionOutcome struct {
	Blocked          []string          `json:"blocked"`
	Healed           []string          `json:"healed"`
	Killed           []string          `json:"killed"`
	DetectiveResults []DetectiveResult `json:"detective_results"`
	Phase            Phase             `json:"phase"`
	Winner           Winner            `json:"winner,omitempty"`
	AliveMafia       int               `json:"alive_mafia"`
	AliveTown        int               `json:"alive_town"`
	// AlreadyResolved marks a repeated trigger for a round whose kills were
	// applied earlier. The repeat is a no-op, not an error.
	AlreadyResolved bool `json:"already_resolved,omitempty"`
}

// DayOutcome is the result of tallying day votes and advancing the room.
type DayOutcome struct {
	EliminatedID string         `json:"eliminated_id,omitempty"`
	VoteCounts   map[string]int `json:"vote_counts"`
	Phase        Phase          `json:"phase"`
	Winner       Winner         `json:"winner,omitempty"`
}

// StartSummary 开局结果
type StartSummary struct {
	PlayerCount int   `json:"player_count"`
	Phase       Phase `json:"phase"`
}

// PublicPlayer is the roster view sent to clients. Role and team are hidden
// while a player is alive and the game is running.
type PublicPlayer struct {
	ID       string `json:"id"`
	Nickname string `json:"nickname"`
	IsBot    bool   `json:"is_bot"`
	IsAlive  bool   `json:"is_alive"`
	Role     Role   `json:"role,omitempty"`
	Team     Team   `json:"team,omitempty"`
}

// PublicView redacts hidden information from a player record. Dead players
// and finished games reveal everything.
func (p Player) PublicView(gameOver bool) PublicPlayer {
	view := PublicPlayer{
		ID:       p.ID,
		Nickname: p.Nickname,
		IsBot:    p.IsBot,
		IsAlive:  p.IsAlive,
	}
	if !p.IsAlive || gameOver {
		view.Role = p.Role
		view.Team = p.Team
	}
	return view
}
