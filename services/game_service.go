// services/game_service.go
package services

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"

	"github.com/google/uuid"

	"github.com/wfunc/mafiaserver/game"
	"github.com/wfunc/mafiaserver/logger"
	"github.com/wfunc/mafiaserver/models"
	"github.com/wfunc/mafiaserver/persistence"
	"github.com/wfunc/mafiaserver/state"
)

var (
	ErrGameStarted   = errors.New("game already started")
	ErrDeadPlayer    = errors.New("dead players cannot act")
	ErrWrongRole     = errors.New("action type does not match the actor's role")
	ErrInvalidTarget = errors.New("target is not a living player in this room")
	ErrRoundMismatch = errors.New("round is not the room's current round")
)

// Notifier is the sink told that a room's state changed after a mutation.
// Callers re-read the room; the notification carries no game data.
type Notifier interface {
	RoomChanged(roomID string)
}

// GameService runs the mafia rules against the store. StartGame, ResolveNight
// and AdvanceDay are critical sections per room id; action and vote writes
// rely on the store's uniqueness constraints instead of room-wide locking.
type GameService struct {
	db         persistence.Database
	notifier   Notifier
	machine    *state.Machine
	bots       *game.BotPolicy
	minPlayers int

	// rng backs shuffling and bot decisions; rand.Rand is not safe for
	// concurrent use, so every draw goes through randMutex.
	rng       *rand.Rand
	randMutex sync.Mutex

	locks      map[string]*sync.Mutex
	locksMutex sync.Mutex
}

// NewGameService 创建游戏服务
// minPlayers raises the lobby size needed to start; the role distribution's
// floor of 4 is the hard lower bound.
func NewGameService(db persistence.Database, notifier Notifier, rng *rand.Rand, mafiaVoteBias float64, minPlayers int) *GameService {
	if minPlayers < game.MinPlayers {
		minPlayers = game.MinPlayers
	}
	return &GameService{
		db:         db,
		notifier:   notifier,
		machine:    state.NewMachine(),
		bots:       game.NewBotPolicy(rng, mafiaVoteBias),
		minPlayers: minPlayers,
		rng:        rng,
		locks:      make(map[string]*sync.Mutex),
	}
}

const roomCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
const roomCodeLength = 6

// CreateRoom opens a lobby and seats the host as the first player.
func (s *GameService) CreateRoom(hostNickname string) (*models.Room, *models.Player, error) {
	hostID := uuid.New().String()
	room := &models.Room{
		ID:          uuid.New().String(),
		Code:        s.newRoomCode(),
		HostID:      hostID,
		Phase:       models.PhaseLobby,
		RoundNumber: 1,
	}
	if err := s.db.CreateRoom(room); err != nil {
		return nil, nil, err
	}

	host := &models.Player{
		ID:        hostID,
		RoomID:    room.ID,
		Nickname:  hostNickname,
		IsAlive:   true,
		JoinOrder: 0,
	}
	if err := s.db.CreatePlayer(host); err != nil {
		return nil, nil, err
	}
	logger.Log.Infof("Room %s created by %s (code %s)", room.ID, hostNickname, room.Code)
	return room, host, nil
}

// JoinRoom seats a player (or bot) in a lobby identified by its code.
func (s *GameService) JoinRoom(code, nickname string, isBot bool) (*models.Room, *models.Player, error) {
	room, err := s.db.GetRoomByCode(code)
	if err != nil {
		return nil, nil, err
	}
	if room.Phase != models.PhaseLobby {
		return nil, nil, ErrGameStarted
	}

	players, err := s.db.ListPlayers(room.ID)
	if err != nil {
		return nil, nil, err
	}

	player := &models.Player{
		ID:        uuid.New().String(),
		RoomID:    room.ID,
		Nickname:  nickname,
		IsBot:     isBot,
		IsAlive:   true,
		JoinOrder: len(players),
	}
	if err := s.db.CreatePlayer(player); err != nil {
		return nil, nil, err
	}

	s.notifyRoomChanged(room.ID)
	return room, player, nil
}

// StartGame assigns roles to the lobby and opens the first night. Either
// every player gets a role and the phase advances, or nothing changes.
func (s *GameService) StartGame(roomID string) (*models.StartSummary, error) {
	unlock := s.lockRoom(roomID)
	defer unlock()

	room, err := s.db.GetRoom(roomID)
	if err != nil {
		return nil, err
	}
	if err := s.machine.Validate(room.Phase, models.PhaseNight); err != nil {
		return nil, fmt.Errorf("cannot start game in phase %s: %w", room.Phase, err)
	}

	players, err := s.db.ListPlayers(roomID)
	if err != nil {
		return nil, err
	}
	if len(players) < s.minPlayers {
		return nil, fmt.Errorf("room has %d of %d players: %w", len(players), s.minPlayers, game.ErrInsufficientPlayers)
	}

	s.randMutex.Lock()
	assignments, err := game.AssignRoles(players, s.rng)
	s.randMutex.Unlock()
	if err != nil {
		return nil, err
	}

	if err := s.db.ApplyAssignments(roomID, assignments, models.PhaseNight); err != nil {
		return nil, err
	}

	logger.Log.Infof("Room %s started with %d players", roomID, len(players))
	s.notifyRoomChanged(roomID)
	return &models.StartSummary{PlayerCount: len(players), Phase: models.PhaseNight}, nil
}

// SubmitAction records one player's night intent for the current round.
// A duplicate submission for the same round is ignored, not an error, so
// client retries stay idempotent.
func (s *GameService) SubmitAction(roomID, actorID, targetID string, actionType models.ActionType) error {
	room, err := s.db.GetRoom(roomID)
	if err != nil {
		return err
	}
	if !state.AcceptsNightActions(room.Phase) {
		return fmt.Errorf("night actions are not accepted in phase %s: %w", room.Phase, state.ErrTransitionNotAllowed)
	}

	actor, err := s.db.GetPlayer(actorID)
	if err != nil {
		return err
	}
	if actor.RoomID != roomID {
		return persistence.ErrRecordNotFound
	}
	if !actor.IsAlive {
		return ErrDeadPlayer
	}
	if want, ok := actor.Role.NightAction(); !ok || want != actionType {
		return ErrWrongRole
	}

	if targetID != "" {
		target, err := s.db.GetPlayer(targetID)
		if err != nil || target.RoomID != roomID || !target.IsAlive {
			return ErrInvalidTarget
		}
	}

	err = s.db.InsertAction(&models.GameAction{
		ID:          uuid.New().String(),
		RoomID:      roomID,
		ActorID:     actorID,
		TargetID:    targetID,
		Type:        actionType,
		RoundNumber: room.RoundNumber,
	})
	if errors.Is(err, persistence.ErrDuplicateAction) {
		logger.Log.Debugf("Actor %s already acted in room %s round %d, ignoring", actorID, roomID, room.RoundNumber)
		return nil
	}
	if err != nil {
		return err
	}

	s.notifyRoomChanged(roomID)
	return nil
}

// CastVote upserts the voter's current suspect; a new vote replaces the old
// one, it never accumulates.
func (s *GameService) CastVote(roomID, voterID, suspectID string) error {
	room, err := s.db.GetRoom(roomID)
	if err != nil {
		return err
	}
	if !state.AcceptsVotes(room.Phase) {
		return fmt.Errorf("votes are not accepted in phase %s: %w", room.Phase, state.ErrTransitionNotAllowed)
	}

	voter, err := s.db.GetPlayer(voterID)
	if err != nil {
		return err
	}
	if voter.RoomID != roomID {
		return persistence.ErrRecordNotFound
	}
	if !voter.IsAlive {
		return ErrDeadPlayer
	}
	suspect, err := s.db.GetPlayer(suspectID)
	if err != nil || suspect.RoomID != roomID || !suspect.IsAlive {
		return ErrInvalidTarget
	}

	if err := s.db.UpsertVote(&models.Vote{
		RoomID:    roomID,
		VoterID:   voterID,
		SuspectID: suspectID,
	}); err != nil {
		return err
	}

	s.notifyRoomChanged(roomID)
	return nil
}

// GenerateBotVotes casts a vote for every living bot that has none yet.
// Safe to call repeatedly within a day; bots that voted are skipped.
func (s *GameService) GenerateBotVotes(roomID string) (int, error) {
	room, err := s.db.GetRoom(roomID)
	if err != nil {
		return 0, err
	}
	if !state.AcceptsVotes(room.Phase) {
		return 0, fmt.Errorf("votes are not accepted in phase %s: %w", room.Phase, state.ErrTransitionNotAllowed)
	}

	players, err := s.db.ListPlayers(roomID)
	if err != nil {
		return 0, err
	}
	votes, err := s.db.ListVotes(roomID)
	if err != nil {
		return 0, err
	}
	voted := make(map[string]struct{}, len(votes))
	for _, v := range votes {
		voted[v.VoterID] = struct{}{}
	}

	votesAdded := 0
	for _, bot := range players {
		if !bot.IsBot || !bot.IsAlive {
			continue
		}
		if _, already := voted[bot.ID]; already {
			continue
		}

		s.randMutex.Lock()
		suspectID, ok := s.bots.VoteTarget(bot, players)
		s.randMutex.Unlock()
		if !ok {
			continue
		}

		if err := s.db.UpsertVote(&models.Vote{
			RoomID:    roomID,
			VoterID:   bot.ID,
			SuspectID: suspectID,
		}); err != nil {
			return votesAdded, err
		}
		votesAdded++
	}

	if votesAdded > 0 {
		logger.Log.Infof("Room %s: %d bot votes added", roomID, votesAdded)
		s.notifyRoomChanged(roomID)
	}
	return votesAdded, nil
}

// ResolveNight resolves the given round for the room: missing bot actions are
// synthesized first, then the engine applies block/heal/kill/check in
// priority order, deaths are persisted in one batch, and the room advances
// per the win evaluation. Invoking it again after success is a no-op
// already-resolved outcome, so host retries are safe.
func (s *GameService) ResolveNight(roomID string, round int) (*models.ResolutionOutcome, error) {
	unlock := s.lockRoom(roomID)
	defer unlock()

	room, err := s.db.GetRoom(roomID)
	if err != nil {
		return nil, err
	}

	if room.Phase != models.PhaseNight {
		if round < room.RoundNumber && room.Phase != models.PhaseLobby {
			return s.alreadyResolvedOutcome(room)
		}
		return nil, fmt.Errorf("cannot resolve night in phase %s: %w", room.Phase, state.ErrTransitionNotAllowed)
	}
	if round != room.RoundNumber {
		return nil, fmt.Errorf("%w: got %d, current is %d", ErrRoundMismatch, round, room.RoundNumber)
	}

	players, err := s.db.ListPlayers(roomID)
	if err != nil {
		return nil, err
	}

	if err := s.synthesizeBotActions(roomID, round, players); err != nil {
		return nil, err
	}

	actions, err := s.db.ListActions(roomID, round)
	if err != nil {
		return nil, err
	}

	outcome := game.ResolveRound(players, actions)
	if err := s.machine.Validate(room.Phase, outcome.Phase); err != nil {
		return nil, err
	}

	if err := s.db.ApplyResolution(roomID, outcome.Killed, outcome.Phase, outcome.Winner, round+1); err != nil {
		return nil, err
	}
	if err := s.db.SaveRoundSummary(roomID, round, outcome); err != nil {
		// History only; the resolution itself is already committed.
		logger.Log.Warnf("Room %s: failed to archive round %d summary: %v", roomID, round, err)
	}

	logger.Log.Infof("Room %s round %d resolved: killed=%d phase=%s winner=%q",
		roomID, round, len(outcome.Killed), outcome.Phase, outcome.Winner)
	s.notifyRoomChanged(roomID)
	return outcome, nil
}

// synthesizeBotActions inserts a night action for every living bot that has
// not acted this round. The store's uniqueness constraint absorbs races with
// a bot's own earlier submission.
func (s *GameService) synthesizeBotActions(roomID string, round int, players []models.Player) error {
	for _, bot := range players {
		if !bot.IsBot || !bot.IsAlive {
			continue
		}

		s.randMutex.Lock()
		actionType, targetID, ok := s.bots.NightAction(bot, players)
		s.randMutex.Unlock()
		if !ok {
			continue
		}

		err := s.db.InsertAction(&models.GameAction{
			ID:          uuid.New().String(),
			RoomID:      roomID,
			ActorID:     bot.ID,
			TargetID:    targetID,
			Type:        actionType,
			RoundNumber: round,
		})
		if errors.Is(err, persistence.ErrDuplicateAction) {
			continue // bot already acted
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *GameService) alreadyResolvedOutcome(room *models.Room) (*models.ResolutionOutcome, error) {
	players, err := s.db.ListPlayers(room.ID)
	if err != nil {
		return nil, err
	}
	counts := game.CountAlive(players)
	return &models.ResolutionOutcome{
		Blocked:         []string{},
		Healed:          []string{},
		Killed:          []string{},
		Phase:           room.Phase,
		Winner:          room.Winner,
		AliveMafia:      counts.Mafia,
		AliveTown:       counts.Town,
		AlreadyResolved: true,
	}, nil
}

// OpenVoting moves a room from day to the voting window. The two phases
// accept the same votes; the split exists for presentation.
func (s *GameService) OpenVoting(roomID string) error {
	unlock := s.lockRoom(roomID)
	defer unlock()

	room, err := s.db.GetRoom(roomID)
	if err != nil {
		return err
	}
	if err := s.machine.Validate(room.Phase, models.PhaseVoting); err != nil {
		return fmt.Errorf("cannot open voting in phase %s: %w", room.Phase, err)
	}
	// Phase change only. Votes cast during day carry over into the voting
	// window and count in the day tally.
	if err := s.db.UpdateRoomPhase(roomID, models.PhaseVoting); err != nil {
		return err
	}
	s.notifyRoomChanged(roomID)
	return nil
}

// AdvanceDay tallies the day's votes, eliminates the plurality suspect (ties
// eliminate nobody), evaluates the win condition on the post-elimination
// population, clears the votes and moves the room to night or finished.
func (s *GameService) AdvanceDay(roomID string) (*models.DayOutcome, error) {
	unlock := s.lockRoom(roomID)
	defer unlock()

	room, err := s.db.GetRoom(roomID)
	if err != nil {
		return nil, err
	}
	if !state.AcceptsVotes(room.Phase) {
		return nil, fmt.Errorf("cannot advance day in phase %s: %w", room.Phase, state.ErrTransitionNotAllowed)
	}

	players, err := s.db.ListPlayers(roomID)
	if err != nil {
		return nil, err
	}
	votes, err := s.db.ListVotes(roomID)
	if err != nil {
		return nil, err
	}

	suspectID, counts, eliminated := game.TallyVotes(players, votes)
	if eliminated {
		for i := range players {
			if players[i].ID == suspectID {
				players[i].IsAlive = false
			}
		}
	} else {
		suspectID = ""
	}

	winner, finished := game.EvaluateWin(game.CountAlive(players))
	phase := models.PhaseNight
	if finished {
		phase = models.PhaseFinished
	}
	if err := s.machine.Validate(room.Phase, phase); err != nil {
		return nil, err
	}

	if err := s.db.ApplyElimination(roomID, suspectID, phase, winner); err != nil {
		return nil, err
	}

	logger.Log.Infof("Room %s day advanced: eliminated=%q phase=%s winner=%q", roomID, suspectID, phase, winner)
	s.notifyRoomChanged(roomID)
	return &models.DayOutcome{
		EliminatedID: suspectID,
		VoteCounts:   counts,
		Phase:        phase,
		Winner:       winner,
	}, nil
}

// RoomSnapshot returns the room and the redacted roster clients may see.
func (s *GameService) RoomSnapshot(roomID string) (*models.Room, []models.PublicPlayer, error) {
	room, err := s.db.GetRoom(roomID)
	if err != nil {
		return nil, nil, err
	}
	players, err := s.db.ListPlayers(roomID)
	if err != nil {
		return nil, nil, err
	}
	gameOver := state.IsTerminal(room.Phase)
	views := make([]models.PublicPlayer, len(players))
	for i, p := range players {
		views[i] = p.PublicView(gameOver)
	}
	return room, views, nil
}

// GetRoom exposes the raw room record to transports (host checks, scheduling).
func (s *GameService) GetRoom(roomID string) (*models.Room, error) {
	return s.db.GetRoom(roomID)
}

// lockRoom serializes the multi-step operations for one room. Rooms are
// independent; each has its own mutex.
func (s *GameService) lockRoom(roomID string) func() {
	s.locksMutex.Lock()
	lock, exists := s.locks[roomID]
	if !exists {
		lock = &sync.Mutex{}
		s.locks[roomID] = lock
	}
	s.locksMutex.Unlock()

	lock.Lock()
	return lock.Unlock
}

func (s *GameService) notifyRoomChanged(roomID string) {
	if s.notifier != nil {
		s.notifier.RoomChanged(roomID)
	}
}

func (s *GameService) newRoomCode() string {
	s.randMutex.Lock()
	defer s.randMutex.Unlock()

	code := make([]byte, roomCodeLength)
	for i := range code {
		code[i] = roomCodeAlphabet[s.rng.Intn(len(roomCodeAlphabet))]
	}
	return string(code)
}
