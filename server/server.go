package server

import (
	"encoding/json"
	"errors"
	"math/rand"
	"net/http"
	"net/rpc"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/wfunc/mafiaserver/broadcast"
	"github.com/wfunc/mafiaserver/config"
	"github.com/wfunc/mafiaserver/logger"
	"github.com/wfunc/mafiaserver/models"
	"github.com/wfunc/mafiaserver/monitor"
	"github.com/wfunc/mafiaserver/network"
	"github.com/wfunc/mafiaserver/persistence"
	mafiaserver_rpc "github.com/wfunc/mafiaserver/rpc"
	"github.com/wfunc/mafiaserver/services"
	"github.com/wfunc/mafiaserver/session"
	"github.com/wfunc/mafiaserver/timer"
)

var ErrNotHost = errors.New("only the host may do this")

type GameServer struct {
	addr           string
	upgrader       websocket.Upgrader
	sessionManager *session.Manager
	gameService    *services.GameService
	broadcaster    broadcast.Broadcaster
	rpcServer      *mafiaserver_rpc.Server
	scheduler      *timer.Scheduler
	monitor        *monitor.Monitor
	gameCfg        config.GameConfig
	shutdownChan   chan struct{}
}

// NewGameServer wires the full stack: session registry, broadcaster,
// game service, RPC surface and the phase scheduler. relay may be nil
// when the server runs as a single instance without NATS.
func NewGameServer(cfg *config.Config, db persistence.Database, relay broadcast.Broadcaster, mon *monitor.Monitor) *GameServer {
	s := &GameServer{
		addr:           cfg.Server.HTTPAddress,
		sessionManager: session.NewManager(),
		scheduler:      timer.NewScheduler(),
		monitor:        mon,
		gameCfg:        cfg.Game,
		shutdownChan:   make(chan struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // 允许所有跨域请求
			},
		},
	}

	// 初始化广播器
	local := broadcast.NewRoomBroadcaster(s.sessionManager)
	if relay != nil {
		s.broadcaster = broadcast.NewFanout(local, relay)
	} else {
		s.broadcaster = local
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	notifier := broadcast.NewRoomChangeNotifier(s.broadcaster)
	s.gameService = services.NewGameService(db, notifier, rng, cfg.Game.MafiaVoteBias, cfg.Game.MinPlayers)

	// 初始化RPC服务器
	rpcServer, err := mafiaserver_rpc.NewServer(cfg.Server.RPCAddress)
	if err != nil {
		logger.Log.Fatalf("Failed to create RPC server: %v", err)
	}
	s.rpcServer = rpcServer

	// 注册RPC服务
	rpc.Register(mafiaserver_rpc.NewGameService(s.gameService))

	return s
}

// GameService exposes the service layer to embedding callers (tests, tools).
func (s *GameServer) GameService() *services.GameService {
	return s.gameService
}

func (s *GameServer) Start() error {
	go s.rpcServer.Start()

	http.HandleFunc("/ws", s.handleWebSocket)
	logger.Log.Infof("Game server listening on %s", s.addr)
	return http.ListenAndServe(s.addr, nil)
}

func (s *GameServer) Shutdown() {
	close(s.shutdownChan)
	s.scheduler.Stop()
	s.rpcServer.Stop()
}

func (s *GameServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Infof("Failed to upgrade connection: %v", err)
		return
	}
	s.handleConnection(conn)
}

func (s *GameServer) handleConnection(conn *websocket.Conn) {
	wsConn := network.NewWSConnection(conn)
	sess := session.NewSession(uuid.New().String(), wsConn)
	s.sessionManager.Add(sess)
	s.monitor.IncOnlinePlayers()

	logger.Log.Infof("New connection from %s, session ID: %s", wsConn.RemoteAddr(), sess.GetID())

	defer func() {
		logger.Log.Infof("Connection closed from %s, session ID: %s", wsConn.RemoteAddr(), sess.GetID())
		s.sessionManager.Remove(sess.GetID())
		s.monitor.DecOnlinePlayers()
		wsConn.Close()
	}()

	for {
		select {
		case <-s.shutdownChan:
			return
		default:
			packet, err := wsConn.ReadPacket()
			if err != nil {
				return
			}
			s.handlePacket(sess, packet)
		}
	}
}

func (s *GameServer) handlePacket(sess *session.Session, packet *network.Packet) {
	switch packet.MsgID {
	case network.MsgTypeHeartbeat:
		sess.LastActive = time.Now()
	case network.MsgTypeCreateRoom:
		s.handleCreateRoom(sess, packet)
	case network.MsgTypeJoinRoom:
		s.handleJoinRoom(sess, packet)
	case network.MsgTypeLeaveRoom:
		s.handleLeaveRoom(sess, packet)
	case network.MsgTypeAddBot:
		s.handleAddBot(sess, packet)
	case network.MsgTypeStartGame:
		s.handleStartGame(sess, packet)
	case network.MsgTypeNightAction:
		s.handleNightAction(sess, packet)
	case network.MsgTypeCastVote:
		s.handleCastVote(sess, packet)
	case network.MsgTypeResolveNight:
		s.handleResolveNight(sess, packet)
	case network.MsgTypeOpenVoting:
		s.handleOpenVoting(sess, packet)
	case network.MsgTypeAdvanceDay:
		s.handleAdvanceDay(sess, packet)
	case network.MsgTypeRoomState:
		s.handleRoomState(sess, packet)
	default:
		logger.Log.Infof("Unknown message type: %d", packet.MsgID)
	}
}

func (s *GameServer) sendError(sess *session.Session, err error) {
	data, _ := json.Marshal(map[string]string{"error": err.Error()})
	sess.Send(network.MsgTypeError, data)
}

func (s *GameServer) sendJSON(sess *session.Session, msgID uint16, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		logger.Log.Errorf("Failed to marshal response for msg %d: %v", msgID, err)
		return
	}
	sess.Send(msgID, data)
}

// requireHost loads the session's room and checks the sender is its host.
func (s *GameServer) requireHost(sess *session.Session) (*models.Room, error) {
	if sess.RoomID == "" {
		return nil, persistence.ErrRecordNotFound
	}
	room, err := s.gameService.GetRoom(sess.RoomID)
	if err != nil {
		return nil, err
	}
	if room.HostID != sess.PlayerID {
		return nil, ErrNotHost
	}
	return room, nil
}

func (s *GameServer) handleCreateRoom(sess *session.Session, packet *network.Packet) {
	var req struct {
		Nickname string `json:"nickname"`
	}
	if err := json.Unmarshal(packet.Data, &req); err != nil {
		s.sendError(sess, err)
		return
	}

	room, host, err := s.gameService.CreateRoom(req.Nickname)
	if err != nil {
		s.sendError(sess, err)
		return
	}

	sess.RoomID = room.ID
	sess.PlayerID = host.ID
	sess.Nickname = host.Nickname

	logger.Log.Infof("Session %s created room %s", sess.GetID(), room.ID)
	s.sendJSON(sess, network.MsgTypeCreateRoom, map[string]string{
		"room_id":   room.ID,
		"room_code": room.Code,
		"player_id": host.ID,
	})
}

func (s *GameServer) handleJoinRoom(sess *session.Session, packet *network.Packet) {
	var req struct {
		RoomCode string `json:"room_code"`
		Nickname string `json:"nickname"`
	}
	if err := json.Unmarshal(packet.Data, &req); err != nil {
		s.sendError(sess, err)
		return
	}

	room, player, err := s.gameService.JoinRoom(req.RoomCode, req.Nickname, false)
	if err != nil {
		s.sendError(sess, err)
		return
	}

	sess.RoomID = room.ID
	sess.PlayerID = player.ID
	sess.Nickname = player.Nickname

	logger.Log.Infof("Session %s joined room %s", sess.GetID(), room.ID)
	s.sendJSON(sess, network.MsgTypeJoinRoom, map[string]string{
		"room_id":   room.ID,
		"player_id": player.ID,
	})
}

func (s *GameServer) handleLeaveRoom(sess *session.Session, packet *network.Packet) {
	sess.RoomID = ""
	sess.PlayerID = ""
	sess.Send(network.MsgTypeLeaveRoom, nil)
}

func (s *GameServer) handleAddBot(sess *session.Session, packet *network.Packet) {
	room, err := s.requireHost(sess)
	if err != nil {
		s.sendError(sess, err)
		return
	}

	var req struct {
		Nickname string `json:"nickname"`
	}
	if err := json.Unmarshal(packet.Data, &req); err != nil {
		s.sendError(sess, err)
		return
	}

	_, bot, err := s.gameService.JoinRoom(room.Code, req.Nickname, true)
	if err != nil {
		s.sendError(sess, err)
		return
	}
	s.sendJSON(sess, network.MsgTypeAddBot, map[string]string{"player_id": bot.ID})
}

func (s *GameServer) handleStartGame(sess *session.Session, packet *network.Packet) {
	room, err := s.requireHost(sess)
	if err != nil {
		s.sendError(sess, err)
		return
	}

	summary, err := s.gameService.StartGame(room.ID)
	if err != nil {
		s.sendError(sess, err)
		return
	}
	s.monitor.IncActiveGames()

	s.scheduleNightResolution(room.ID, room.RoundNumber)
	s.sendJSON(sess, network.MsgTypeStartGame, summary)
}

func (s *GameServer) handleNightAction(sess *session.Session, packet *network.Packet) {
	var req struct {
		TargetID   string `json:"target_id"`
		ActionType string `json:"action_type"`
	}
	if err := json.Unmarshal(packet.Data, &req); err != nil {
		s.sendError(sess, err)
		return
	}

	err := s.gameService.SubmitAction(sess.RoomID, sess.PlayerID, req.TargetID, models.ActionType(req.ActionType))
	if err != nil {
		s.sendError(sess, err)
		return
	}
	s.monitor.IncActionsReceived()
	sess.Send(network.MsgTypeNightAction, nil)
}

func (s *GameServer) handleCastVote(sess *session.Session, packet *network.Packet) {
	var req struct {
		SuspectID string `json:"suspect_id"`
	}
	if err := json.Unmarshal(packet.Data, &req); err != nil {
		s.sendError(sess, err)
		return
	}

	if err := s.gameService.CastVote(sess.RoomID, sess.PlayerID, req.SuspectID); err != nil {
		s.sendError(sess, err)
		return
	}
	s.monitor.IncVotesReceived()
	sess.Send(network.MsgTypeCastVote, nil)
}

func (s *GameServer) handleResolveNight(sess *session.Session, packet *network.Packet) {
	room, err := s.requireHost(sess)
	if err != nil {
		s.sendError(sess, err)
		return
	}

	var req struct {
		Round int `json:"round"`
	}
	if err := json.Unmarshal(packet.Data, &req); err != nil {
		s.sendError(sess, err)
		return
	}

	outcome, err := s.resolveNight(room.ID, req.Round)
	if err != nil {
		s.sendError(sess, err)
		return
	}
	s.sendJSON(sess, network.MsgTypeResolveNight, outcome)
}

func (s *GameServer) handleOpenVoting(sess *session.Session, packet *network.Packet) {
	room, err := s.requireHost(sess)
	if err != nil {
		s.sendError(sess, err)
		return
	}
	if err := s.gameService.OpenVoting(room.ID); err != nil {
		s.sendError(sess, err)
		return
	}
	sess.Send(network.MsgTypeOpenVoting, nil)
}

func (s *GameServer) handleAdvanceDay(sess *session.Session, packet *network.Packet) {
	room, err := s.requireHost(sess)
	if err != nil {
		s.sendError(sess, err)
		return
	}

	outcome, err := s.gameService.AdvanceDay(room.ID)
	if err != nil {
		s.sendError(sess, err)
		return
	}

	switch outcome.Phase {
	case models.PhaseFinished:
		s.finishGame(room.ID, outcome.Winner)
	case models.PhaseNight:
		if updated, err := s.gameService.GetRoom(room.ID); err == nil {
			s.scheduleNightResolution(room.ID, updated.RoundNumber)
		}
	}
	s.sendJSON(sess, network.MsgTypeAdvanceDay, outcome)
}

func (s *GameServer) handleRoomState(sess *session.Session, packet *network.Packet) {
	if sess.RoomID == "" {
		s.sendError(sess, persistence.ErrRecordNotFound)
		return
	}
	room, players, err := s.gameService.RoomSnapshot(sess.RoomID)
	if err != nil {
		s.sendError(sess, err)
		return
	}
	s.sendJSON(sess, network.MsgTypeRoomState, map[string]interface{}{
		"room":    room,
		"players": players,
	})
}

// resolveNight runs the resolution with metrics and follow-up scheduling:
// a day opens a bot vote nudge, a finish tears the game down.
func (s *GameServer) resolveNight(roomID string, round int) (*models.ResolutionOutcome, error) {
	start := time.Now()
	outcome, err := s.gameService.ResolveNight(roomID, round)
	if err != nil {
		return nil, err
	}
	s.monitor.ObserveResolution(string(outcome.Phase), time.Since(start))

	if outcome.AlreadyResolved {
		return outcome, nil
	}

	switch outcome.Phase {
	case models.PhaseFinished:
		s.finishGame(roomID, outcome.Winner)
	case models.PhaseDay:
		if s.gameCfg.AutoResolve {
			s.scheduler.Schedule(s.gameCfg.BotVoteDelay, 0, func() {
				if _, err := s.gameService.GenerateBotVotes(roomID); err != nil {
					logger.Log.Warnf("Bot votes for room %s failed: %v", roomID, err)
				}
			})
		}
	}
	return outcome, nil
}

// scheduleNightResolution arms the night deadline. The round is captured at
// scheduling time; if the host resolved manually first, the deferred call
// lands on an older round and comes back as already resolved.
func (s *GameServer) scheduleNightResolution(roomID string, round int) {
	if !s.gameCfg.AutoResolve {
		return
	}
	s.scheduler.Schedule(s.gameCfg.NightDuration, 0, func() {
		if _, err := s.resolveNight(roomID, round); err != nil {
			logger.Log.Warnf("Auto-resolution of room %s round %d failed: %v", roomID, round, err)
		}
	})
}

func (s *GameServer) finishGame(roomID string, winner models.Winner) {
	s.monitor.DecActiveGames()
	data, _ := json.Marshal(map[string]string{"winner": string(winner)})
	s.broadcaster.BroadcastToRoom(roomID, network.MsgTypeGameEnd, data)
}
