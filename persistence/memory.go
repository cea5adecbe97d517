// persistence/memory.go
package persistence

import (
	"sync"
	"time"

	"github.com/wfunc/mafiaserver/models"
)

// Memory is an in-process Database used by tests and by running the server
// without Postgres. It enforces the same uniqueness invariants the SQL
// schemas do.
type Memory struct {
	mutex   sync.RWMutex
	rooms   map[string]*models.Room
	players map[string]*models.Player
	// actions keyed by (actorID, round); votes keyed by (roomID, voterID).
	actions   map[actionKey]*models.GameAction
	votes     map[voteKey]*models.Vote
	summaries map[string][]interface{}
}

type actionKey struct {
	actorID string
	round   int
}

type voteKey struct {
	roomID  string
	voterID string
}

// NewMemory 创建内存数据库
func NewMemory() *Memory {
	return &Memory{
		rooms:     make(map[string]*models.Room),
		players:   make(map[string]*models.Player),
		actions:   make(map[actionKey]*models.GameAction),
		votes:     make(map[voteKey]*models.Vote),
		summaries: make(map[string][]interface{}),
	}
}

func (m *Memory) CreateRoom(room *models.Room) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	stored := *room
	stored.CreatedAt = time.Now()
	stored.UpdatedAt = stored.CreatedAt
	m.rooms[room.ID] = &stored
	return nil
}

func (m *Memory) GetRoom(roomID string) (*models.Room, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	room, exists := m.rooms[roomID]
	if !exists {
		return nil, ErrRecordNotFound
	}
	copied := *room
	return &copied, nil
}

func (m *Memory) GetRoomByCode(code string) (*models.Room, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	for _, room := range m.rooms {
		if room.Code == code {
			copied := *room
			return &copied, nil
		}
	}
	return nil, ErrRecordNotFound
}

func (m *Memory) UpdateRoomPhase(roomID string, phase models.Phase) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	room, exists := m.rooms[roomID]
	if !exists {
		return ErrRecordNotFound
	}
	room.Phase = phase
	room.UpdatedAt = time.Now()
	return nil
}

func (m *Memory) CreatePlayer(player *models.Player) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	stored := *player
	stored.CreatedAt = time.Now()
	m.players[player.ID] = &stored
	return nil
}

func (m *Memory) GetPlayer(playerID string) (*models.Player, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	player, exists := m.players[playerID]
	if !exists {
		return nil, ErrRecordNotFound
	}
	copied := *player
	return &copied, nil
}

func (m *Memory) ListPlayers(roomID string) ([]models.Player, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	var players []models.Player
	for _, p := range m.players {
		if p.RoomID == roomID {
			players = append(players, *p)
		}
	}
	// Stable join order, as the SQL implementations guarantee.
	for i := 1; i < len(players); i++ {
		for j := i; j > 0 && players[j].JoinOrder < players[j-1].JoinOrder; j-- {
			players[j], players[j-1] = players[j-1], players[j]
		}
	}
	return players, nil
}

func (m *Memory) ApplyAssignments(roomID string, assignments []models.Assignment, phase models.Phase) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	room, exists := m.rooms[roomID]
	if !exists {
		return ErrRecordNotFound
	}
	for _, a := range assignments {
		if _, exists := m.players[a.PlayerID]; !exists {
			return ErrRecordNotFound
		}
	}
	for _, a := range assignments {
		player := m.players[a.PlayerID]
		player.Role = a.Role
		player.Team = a.Team
	}
	room.Phase = phase
	room.UpdatedAt = time.Now()
	return nil
}

func (m *Memory) InsertAction(action *models.GameAction) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	key := actionKey{actorID: action.ActorID, round: action.RoundNumber}
	if _, exists := m.actions[key]; exists {
		return ErrDuplicateAction
	}
	stored := *action
	stored.CreatedAt = time.Now()
	m.actions[key] = &stored
	return nil
}

func (m *Memory) ListActions(roomID string, round int) ([]models.GameAction, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	var actions []models.GameAction
	for _, a := range m.actions {
		if a.RoomID == roomID && a.RoundNumber == round {
			actions = append(actions, *a)
		}
	}
	return actions, nil
}

func (m *Memory) UpsertVote(vote *models.Vote) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	key := voteKey{roomID: vote.RoomID, voterID: vote.VoterID}
	stored := *vote
	stored.UpdatedAt = time.Now()
	m.votes[key] = &stored
	return nil
}

func (m *Memory) ListVotes(roomID string) ([]models.Vote, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	var votes []models.Vote
	for key, v := range m.votes {
		if key.roomID == roomID {
			votes = append(votes, *v)
		}
	}
	return votes, nil
}

func (m *Memory) ApplyResolution(roomID string, killed []string, phase models.Phase, winner models.Winner, nextRound int) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	room, exists := m.rooms[roomID]
	if !exists {
		return ErrRecordNotFound
	}
	for _, id := range killed {
		if player, exists := m.players[id]; exists {
			player.IsAlive = false
		}
	}
	room.Phase = phase
	room.Winner = winner
	room.RoundNumber = nextRound
	room.UpdatedAt = time.Now()
	return nil
}

func (m *Memory) ApplyElimination(roomID string, eliminatedID string, phase models.Phase, winner models.Winner) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	room, exists := m.rooms[roomID]
	if !exists {
		return ErrRecordNotFound
	}
	if eliminatedID != "" {
		if player, exists := m.players[eliminatedID]; exists {
			player.IsAlive = false
		}
	}
	room.Phase = phase
	room.Winner = winner
	room.UpdatedAt = time.Now()
	for key := range m.votes {
		if key.roomID == roomID {
			delete(m.votes, key)
		}
	}
	return nil
}

func (m *Memory) SaveRoundSummary(roomID string, round int, summary interface{}) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.summaries[roomID] = append(m.summaries[roomID], summary)
	return nil
}

func (m *Memory) Close() error {
	return nil
}
