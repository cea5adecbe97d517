// persistence/postgresql.go
package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	// PostgreSQL 驱动
	_ "github.com/lib/pq"

	"github.com/wfunc/mafiaserver/models"
)

// PostgreSQL is the database/sql implementation of Database, kept alongside
// the GORM one for deployments that want plain SQL.
type PostgreSQL struct {
	db *sql.DB
}

// NewPostgreSQL 创建 PostgreSQL 数据库连接
func NewPostgreSQL(host string, port int, user, password, dbname string) (*PostgreSQL, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := initTables(db); err != nil {
		return nil, err
	}

	return &PostgreSQL{db: db}, nil
}

// initTables 初始化数据库表结构
func initTables(db *sql.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS rooms (
            id SERIAL PRIMARY KEY,
            room_id TEXT UNIQUE NOT NULL,
            code TEXT UNIQUE NOT NULL,
            host_id TEXT NOT NULL,
            phase TEXT NOT NULL DEFAULT 'lobby',
            winner TEXT NOT NULL DEFAULT '',
            round_number INT NOT NULL DEFAULT 1,
            created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
            updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
        )`,
		`CREATE TABLE IF NOT EXISTS players (
            id SERIAL PRIMARY KEY,
            player_id TEXT UNIQUE NOT NULL,
            room_id TEXT NOT NULL,
            nickname TEXT NOT NULL,
            is_bot BOOLEAN NOT NULL DEFAULT FALSE,
            role TEXT NOT NULL DEFAULT '',
            team TEXT NOT NULL DEFAULT '',
            is_alive BOOLEAN NOT NULL DEFAULT TRUE,
            join_order INT NOT NULL,
            created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
        )`,
		`CREATE TABLE IF NOT EXISTS game_actions (
            id SERIAL PRIMARY KEY,
            action_id TEXT UNIQUE NOT NULL,
            room_id TEXT NOT NULL,
            actor_id TEXT NOT NULL,
            target_id TEXT NOT NULL DEFAULT '',
            action_type TEXT NOT NULL,
            round_number INT NOT NULL,
            created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
            UNIQUE (actor_id, round_number)
        )`,
		`CREATE TABLE IF NOT EXISTS votes (
            id SERIAL PRIMARY KEY,
            room_id TEXT NOT NULL,
            voter_id TEXT NOT NULL,
            suspect_id TEXT NOT NULL,
            updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
            UNIQUE (room_id, voter_id)
        )`,
		`CREATE TABLE IF NOT EXISTS round_records (
            id SERIAL PRIMARY KEY,
            room_id TEXT NOT NULL,
            round_number INT NOT NULL,
            summary JSONB NOT NULL,
            created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
        )`,
		`CREATE INDEX IF NOT EXISTS idx_players_room ON players (room_id)`,
		`CREATE INDEX IF NOT EXISTS idx_actions_room_round ON game_actions (room_id, round_number)`,
	}
	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (p *PostgreSQL) CreateRoom(room *models.Room) error {
	_, err := p.db.Exec(
		`INSERT INTO rooms (room_id, code, host_id, phase, winner, round_number) VALUES ($1, $2, $3, $4, $5, $6)`,
		room.ID, room.Code, room.HostID, string(room.Phase), string(room.Winner), room.RoundNumber)
	return err
}

func (p *PostgreSQL) GetRoom(roomID string) (*models.Room, error) {
	return p.scanRoom(`SELECT room_id, code, host_id, phase, winner, round_number, created_at, updated_at
        FROM rooms WHERE room_id = $1`, roomID)
}

func (p *PostgreSQL) GetRoomByCode(code string) (*models.Room, error) {
	return p.scanRoom(`SELECT room_id, code, host_id, phase, winner, round_number, created_at, updated_at
        FROM rooms WHERE code = $1`, code)
}

func (p *PostgreSQL) scanRoom(query, arg string) (*models.Room, error) {
	var room models.Room
	var phase, winner string
	err := p.db.QueryRow(query, arg).Scan(
		&room.ID, &room.Code, &room.HostID, &phase, &winner, &room.RoundNumber,
		&room.CreatedAt, &room.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	room.Phase = models.Phase(phase)
	room.Winner = models.Winner(winner)
	return &room, nil
}

func (p *PostgreSQL) UpdateRoomPhase(roomID string, phase models.Phase) error {
	result, err := p.db.Exec(
		`UPDATE rooms SET phase = $1, updated_at = CURRENT_TIMESTAMP WHERE room_id = $2`,
		string(phase), roomID)
	if err != nil {
		return err
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (p *PostgreSQL) CreatePlayer(player *models.Player) error {
	_, err := p.db.Exec(
		`INSERT INTO players (player_id, room_id, nickname, is_bot, role, team, is_alive, join_order)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		player.ID, player.RoomID, player.Nickname, player.IsBot,
		string(player.Role), string(player.Team), player.IsAlive, player.JoinOrder)
	return err
}

func (p *PostgreSQL) GetPlayer(playerID string) (*models.Player, error) {
	row := p.db.QueryRow(
		`SELECT player_id, room_id, nickname, is_bot, role, team, is_alive, join_order, created_at
        FROM players WHERE player_id = $1`, playerID)
	player, err := scanPlayer(row)
	if err != nil {
		return nil, err
	}
	return player, nil
}

func (p *PostgreSQL) ListPlayers(roomID string) ([]models.Player, error) {
	rows, err := p.db.Query(
		`SELECT player_id, room_id, nickname, is_bot, role, team, is_alive, join_order, created_at
        FROM players WHERE room_id = $1 ORDER BY join_order ASC`, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var players []models.Player
	for rows.Next() {
		player, err := scanPlayer(rows)
		if err != nil {
			return nil, err
		}
		players = append(players, *player)
	}
	return players, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPlayer(row rowScanner) (*models.Player, error) {
	var player models.Player
	var role, team string
	err := row.Scan(&player.ID, &player.RoomID, &player.Nickname, &player.IsBot,
		&role, &team, &player.IsAlive, &player.JoinOrder, &player.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	player.Role = models.Role(role)
	player.Team = models.Team(team)
	return &player, nil
}

func (p *PostgreSQL) ApplyAssignments(roomID string, assignments []models.Assignment, phase models.Phase) error {
	tx, err := p.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, a := range assignments {
		result, err := tx.Exec(`UPDATE players SET role = $1, team = $2 WHERE player_id = $3`,
			string(a.Role), string(a.Team), a.PlayerID)
		if err != nil {
			return err
		}
		if affected, _ := result.RowsAffected(); affected == 0 {
			return ErrRecordNotFound
		}
	}
	if _, err := tx.Exec(
		`UPDATE rooms SET phase = $1, updated_at = CURRENT_TIMESTAMP WHERE room_id = $2`,
		string(phase), roomID); err != nil {
		return err
	}
	return tx.Commit()
}

func (p *PostgreSQL) InsertAction(action *models.GameAction) error {
	result, err := p.db.Exec(
		`INSERT INTO game_actions (action_id, room_id, actor_id, target_id, action_type, round_number)
        VALUES ($1, $2, $3, $4, $5, $6)
        ON CONFLICT (actor_id, round_number) DO NOTHING`,
		action.ID, action.RoomID, action.ActorID, action.TargetID, string(action.Type), action.RoundNumber)
	if err != nil {
		return err
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return ErrDuplicateAction
	}
	return nil
}

func (p *PostgreSQL) ListActions(roomID string, round int) ([]models.GameAction, error) {
	rows, err := p.db.Query(
		`SELECT action_id, room_id, actor_id, target_id, action_type, round_number, created_at
        FROM game_actions WHERE room_id = $1 AND round_number = $2 ORDER BY created_at ASC`,
		roomID, round)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var actions []models.GameAction
	for rows.Next() {
		var a models.GameAction
		var actionType string
		if err := rows.Scan(&a.ID, &a.RoomID, &a.ActorID, &a.TargetID, &actionType, &a.RoundNumber, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.Type = models.ActionType(actionType)
		actions = append(actions, a)
	}
	return actions, rows.Err()
}

func (p *PostgreSQL) UpsertVote(vote *models.Vote) error {
	_, err := p.db.Exec(
		`INSERT INTO votes (room_id, voter_id, suspect_id)
        VALUES ($1, $2, $3)
        ON CONFLICT (room_id, voter_id)
        DO UPDATE SET suspect_id = EXCLUDED.suspect_id, updated_at = CURRENT_TIMESTAMP`,
		vote.RoomID, vote.VoterID, vote.SuspectID)
	return err
}

func (p *PostgreSQL) ListVotes(roomID string) ([]models.Vote, error) {
	rows, err := p.db.Query(
		`SELECT room_id, voter_id, suspect_id, updated_at FROM votes WHERE room_id = $1`, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var votes []models.Vote
	for rows.Next() {
		var v models.Vote
		if err := rows.Scan(&v.RoomID, &v.VoterID, &v.SuspectID, &v.UpdatedAt); err != nil {
			return nil, err
		}
		votes = append(votes, v)
	}
	return votes, rows.Err()
}

func (p *PostgreSQL) ApplyResolution(roomID string, killed []string, phase models.Phase, winner models.Winner, nextRound int) error {
	tx, err := p.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, id := range killed {
		if _, err := tx.Exec(`UPDATE players SET is_alive = FALSE WHERE player_id = $1`, id); err != nil {
			return err
		}
	}
	if _, err := tx.Exec(
		`UPDATE rooms SET phase = $1, winner = $2, round_number = $3, updated_at = CURRENT_TIMESTAMP
        WHERE room_id = $4`,
		string(phase), string(winner), nextRound, roomID); err != nil {
		return err
	}
	return tx.Commit()
}

func (p *PostgreSQL) ApplyElimination(roomID string, eliminatedID string, phase models.Phase, winner models.Winner) error {
	tx, err := p.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if eliminatedID != "" {
		if _, err := tx.Exec(`UPDATE players SET is_alive = FALSE WHERE player_id = $1`, eliminatedID); err != nil {
			return err
		}
	}
	if _, err := tx.Exec(
		`UPDATE rooms SET phase = $1, winner = $2, updated_at = CURRENT_TIMESTAMP WHERE room_id = $3`,
		string(phase), string(winner), roomID); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM votes WHERE room_id = $1`, roomID); err != nil {
		return err
	}
	return tx.Commit()
}

func (p *PostgreSQL) SaveRoundSummary(roomID string, round int, summary interface{}) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return err
	}
	_, err = p.db.Exec(
		`INSERT INTO round_records (room_id, round_number, summary) VALUES ($1, $2, $3)`,
		roomID, round, data)
	return err
}

// Close 关闭数据库连接
func (p *PostgreSQL) Close() error {
	return p.db.Close()
}
