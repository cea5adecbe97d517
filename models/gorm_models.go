// models/gorm_models.go
package models

import (
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// GormRoom 房间模型
type GormRoom struct {
	gorm.Model
	RoomID      string `gorm:"uniqueIndex;not null"`
	Code        string `gorm:"uniqueIndex;not null"`
	HostID      string `gorm:"not null"`
	Phase       string `gorm:"not null;default:'lobby'"`
	Winner      string
	RoundNumber int `gorm:"not null;default:1"`
}

// GormPlayer 玩家模型
type GormPlayer struct {
	gorm.Model
	PlayerID  string `gorm:"uniqueIndex;not null"`
	RoomID    string `gorm:"index;not null"`
	Nickname  string `gorm:"not null"`
	IsBot     bool   `gorm:"not null;default:false"`
	Role      string
	Team      string
	IsAlive   bool `gorm:"not null;default:true"`
	JoinOrder int  `gorm:"not null"`
}

// GormGameAction 夜晚行动模型
// The composite unique index enforces one action per (actor, round); a
// duplicate insert is the store's duplicate-action conflict, never a second
// row.
type GormGameAction struct {
	gorm.Model
	ActionID    string `gorm:"uniqueIndex;not null"`
	RoomID      string `gorm:"index;not null"`
	ActorID     string `gorm:"uniqueIndex:idx_actor_round;not null"`
	RoundNumber int    `gorm:"uniqueIndex:idx_actor_round;not null"`
	TargetID    string
	ActionType  string `gorm:"not null"`
}

// GormVote 投票模型
// One current vote per (voter, room); new votes replace the old row.
type GormVote struct {
	gorm.Model
	RoomID    string `gorm:"uniqueIndex:idx_voter_room;not null"`
	VoterID   string `gorm:"uniqueIndex:idx_voter_room;not null"`
	SuspectID string `gorm:"not null"`
}

// GormRoundRecord 回合记录模型
type GormRoundRecord struct {
	gorm.Model
	RoomID      string         `gorm:"index;not null"`
	RoundNumber int            `gorm:"not null"`
	Summary     datatypes.JSON `gorm:"type:jsonb;not null"`
}
