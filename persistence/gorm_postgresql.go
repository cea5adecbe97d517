// persistence/gorm_postgresql.go
package persistence

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/wfunc/mafiaserver/models"
)

// GormPostgreSQL 使用GORM的PostgreSQL实现
type GormPostgreSQL struct {
	db *gorm.DB
}

// NewGormPostgreSQL 创建GORM PostgreSQL数据库连接
func NewGormPostgreSQL(host string, port int, user, password, dbname string) (*GormPostgreSQL, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)

	gormLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold: time.Second,
			LogLevel:      logger.Silent,
			Colorful:      false,
		},
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	// 设置连接池
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := autoMigrate(db); err != nil {
		return nil, err
	}

	return &GormPostgreSQL{db: db}, nil
}

// autoMigrate 自动迁移表结构
func autoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.GormRoom{},
		&models.GormPlayer{},
		&models.GormGameAction{},
		&models.GormVote{},
		&models.GormRoundRecord{},
	)
}

func (p *GormPostgreSQL) CreateRoom(room *models.Room) error {
	record := models.GormRoom{
		RoomID:      room.ID,
		Code:        room.Code,
		HostID:      room.HostID,
		Phase:       string(room.Phase),
		Winner:      string(room.Winner),
		RoundNumber: room.RoundNumber,
	}
	return p.db.Create(&record).Error
}

func (p *GormPostgreSQL) GetRoom(roomID string) (*models.Room, error) {
	var record models.GormRoom
	if err := p.db.Where("room_id = ?", roomID).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return roomFromGorm(&record), nil
}

func (p *GormPostgreSQL) GetRoomByCode(code string) (*models.Room, error) {
	var record models.GormRoom
	if err := p.db.Where("code = ?", code).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return roomFromGorm(&record), nil
}

func (p *GormPostgreSQL) UpdateRoomPhase(roomID string, phase models.Phase) error {
	result := p.db.Model(&models.GormRoom{}).
		Where("room_id = ?", roomID).
		Update("phase", string(phase))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (p *GormPostgreSQL) CreatePlayer(player *models.Player) error {
	record := models.GormPlayer{
		PlayerID:  player.ID,
		RoomID:    player.RoomID,
		Nickname:  player.Nickname,
		IsBot:     player.IsBot,
		Role:      string(player.Role),
		Team:      string(player.Team),
		IsAlive:   player.IsAlive,
		JoinOrder: player.JoinOrder,
	}
	return p.db.Create(&record).Error
}

func (p *GormPostgreSQL) GetPlayer(playerID string) (*models.Player, error) {
	var record models.GormPlayer
	if err := p.db.Where("player_id = ?", playerID).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	player := playerFromGorm(&record)
	return &player, nil
}

func (p *GormPostgreSQL) ListPlayers(roomID string) ([]models.Player, error) {
	var records []models.GormPlayer
	if err := p.db.Where("room_id = ?", roomID).Order("join_order asc").Find(&records).Error; err != nil {
		return nil, err
	}
	players := make([]models.Player, len(records))
	for i := range records {
		players[i] = playerFromGorm(&records[i])
	}
	return players, nil
}

func (p *GormPostgreSQL) ApplyAssignments(roomID string, assignments []models.Assignment, phase models.Phase) error {
	return p.db.Transaction(func(tx *gorm.DB) error {
		for _, a := range assignments {
			result := tx.Model(&models.GormPlayer{}).
				Where("player_id = ?", a.PlayerID).
				Updates(map[string]interface{}{"role": string(a.Role), "team": string(a.Team)})
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected == 0 {
				return ErrRecordNotFound
			}
		}
		return tx.Model(&models.GormRoom{}).
			Where("room_id = ?", roomID).
			Update("phase", string(phase)).Error
	})
}

func (p *GormPostgreSQL) InsertAction(action *models.GameAction) error {
	record := models.GormGameAction{
		ActionID:    action.ID,
		RoomID:      action.RoomID,
		ActorID:     action.ActorID,
		RoundNumber: action.RoundNumber,
		TargetID:    action.TargetID,
		ActionType:  string(action.Type),
	}
	// The (actor_id, round_number) unique index closes the check-then-insert
	// race: a concurrent duplicate simply affects zero rows.
	result := p.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "actor_id"}, {Name: "round_number"}},
		DoNothing: true,
	}).Create(&record)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrDuplicateAction
	}
	return nil
}

func (p *GormPostgreSQL) ListActions(roomID string, round int) ([]models.GameAction, error) {
	var records []models.GormGameAction
	err := p.db.Where("room_id = ? AND round_number = ?", roomID, round).
		Order("created_at asc").Find(&records).Error
	if err != nil {
		return nil, err
	}
	actions := make([]models.GameAction, len(records))
	for i, r := range records {
		actions[i] = models.GameAction{
			ID:          r.ActionID,
			RoomID:      r.RoomID,
			ActorID:     r.ActorID,
			TargetID:    r.TargetID,
			Type:        models.ActionType(r.ActionType),
			RoundNumber: r.RoundNumber,
			CreatedAt:   r.CreatedAt,
		}
	}
	return actions, nil
}

func (p *GormPostgreSQL) UpsertVote(vote *models.Vote) error {
	record := models.GormVote{
		RoomID:    vote.RoomID,
		VoterID:   vote.VoterID,
		SuspectID: vote.SuspectID,
	}
	return p.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "room_id"}, {Name: "voter_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"suspect_id", "updated_at"}),
	}).Create(&record).Error
}

func (p *GormPostgreSQL) ListVotes(roomID string) ([]models.Vote, error) {
	var records []models.GormVote
	if err := p.db.Where("room_id = ?", roomID).Find(&records).Error; err != nil {
		return nil, err
	}
	votes := make([]models.Vote, len(records))
	for i, r := range records {
		votes[i] = models.Vote{
			RoomID:    r.RoomID,
			VoterID:   r.VoterID,
			SuspectID: r.SuspectID,
			UpdatedAt: r.UpdatedAt,
		}
	}
	return votes, nil
}

func (p *GormPostgreSQL) ApplyResolution(roomID string, killed []string, phase models.Phase, winner models.Winner, nextRound int) error {
	return p.db.Transaction(func(tx *gorm.DB) error {
		if len(killed) > 0 {
			if err := tx.Model(&models.GormPlayer{}).
				Where("player_id IN ?", killed).
				Update("is_alive", false).Error; err != nil {
				return err
			}
		}
		return tx.Model(&models.GormRoom{}).
			Where("room_id = ?", roomID).
			Updates(map[string]interface{}{
				"phase":        string(phase),
				"winner":       string(winner),
				"round_number": nextRound,
			}).Error
	})
}

func (p *GormPostgreSQL) ApplyElimination(roomID string, eliminatedID string, phase models.Phase, winner models.Winner) error {
	return p.db.Transaction(func(tx *gorm.DB) error {
		if eliminatedID != "" {
			if err := tx.Model(&models.GormPlayer{}).
				Where("player_id = ?", eliminatedID).
				Update("is_alive", false).Error; err != nil {
				return err
			}
		}
		if err := tx.Model(&models.GormRoom{}).
			Where("room_id = ?", roomID).
			Updates(map[string]interface{}{
				"phase":  string(phase),
				"winner": string(winner),
			}).Error; err != nil {
			return err
		}
		return tx.Where("room_id = ?", roomID).Delete(&models.GormVote{}).Error
	})
}

func (p *GormPostgreSQL) SaveRoundSummary(roomID string, round int, summary interface{}) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return err
	}
	record := models.GormRoundRecord{
		RoomID:      roomID,
		RoundNumber: round,
		Summary:     data,
	}
	return p.db.Create(&record).Error
}

// Close 关闭数据库连接
func (p *GormPostgreSQL) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func roomFromGorm(r *models.GormRoom) *models.Room {
	return &models.Room{
		ID:          r.RoomID,
		Code:        r.Code,
		HostID:      r.HostID,
		Phase:       models.Phase(r.Phase),
		Winner:      models.Winner(r.Winner),
		RoundNumber: r.RoundNumber,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

func playerFromGorm(r *models.GormPlayer) models.Player {
	return models.Player{
		ID:        r.PlayerID,
		RoomID:    r.RoomID,
		Nickname:  r.Nickname,
		IsBot:     r.IsBot,
		Role:      models.Role(r.Role),
		Team:      models.Team(r.Team),
		IsAlive:   r.IsAlive,
		JoinOrder: r.JoinOrder,
		CreatedAt: r.CreatedAt,
	}
}
