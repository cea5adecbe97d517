package rpc

import (
	"net"
	"net/rpc"

	"github.com/wfunc/mafiaserver/logger"
	"github.com/wfunc/mafiaserver/models"
	"github.com/wfunc/mafiaserver/services"
)

// Server manages the RPC listener. Game operations are exposed over it for
// admin tooling and ops scripts that bypass the websocket surface.
type Server struct {
	listener net.Listener
	address  string
}

// NewServer creates a new RPC server.
func NewServer(addr string) (*Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Server{
		listener: listener,
		address:  addr,
	}, nil
}

// Start begins listening for RPC requests.
func (s *Server) Start() {
	logger.Log.Infof("RPC server listening on %s", s.address)
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			// Check if the error is due to the listener being closed.
			if _, ok := err.(*net.OpError); ok {
				logger.Log.Info("RPC server listener closed.")
				return
			}
			logger.Log.Errorf("RPC server accept error: %v", err)
			continue
		}
		go rpc.ServeConn(conn)
	}
}

// Stop closes the RPC listener.
func (s *Server) Stop() {
	if s.listener != nil {
		logger.Log.Info("Stopping RPC server.")
		s.listener.Close()
	}
}

// GameService is the struct that exposes RPC methods. Every method follows
// the net/rpc signature: exported method, exported arguments, second
// argument a pointer, error return.
type GameService struct {
	gameService *services.GameService
}

// NewGameService creates a new GameService.
func NewGameService(gs *services.GameService) *GameService {
	return &GameService{gameService: gs}
}

type StartGameArgs struct {
	RoomID string
}

type StartGameReply struct {
	PlayerCount int
	Phase       models.Phase
}

func (gs *GameService) StartGame(args *StartGameArgs, reply *StartGameReply) error {
	summary, err := gs.gameService.StartGame(args.RoomID)
	if err != nil {
		return err
	}
	reply.PlayerCount = summary.PlayerCount
	reply.Phase = summary.Phase
	return nil
}

type ResolveNightArgs struct {
	RoomID string
	Round  int
}

type ResolveNightReply struct {
	Outcome *models.ResolutionOutcome
}

func (gs *GameService) ResolveNight(args *ResolveNightArgs, reply *ResolveNightReply) error {
	outcome, err := gs.gameService.ResolveNight(args.RoomID, args.Round)
	if err != nil {
		return err
	}
	reply.Outcome = outcome
	return nil
}

type BotVotesArgs struct {
	RoomID string
}

type BotVotesReply struct {
	VotesAdded int
}

func (gs *GameService) GenerateBotVotes(args *BotVotesArgs, reply *BotVotesReply) error {
	added, err := gs.gameService.GenerateBotVotes(args.RoomID)
	if err != nil {
		return err
	}
	reply.VotesAdded = added
	return nil
}

type AdvanceDayArgs struct {
	RoomID string
}

type AdvanceDayReply struct {
	Outcome *models.DayOutcome
}

func (gs *GameService) AdvanceDay(args *AdvanceDayArgs, reply *AdvanceDayReply) error {
	outcome, err := gs.gameService.AdvanceDay(args.RoomID)
	if err != nil {
		return err
	}
	reply.Outcome = outcome
	return nil
}

type RoomSummaryArgs struct {
	RoomID string
}

type RoomSummaryReply struct {
	Room    *models.Room
	Players []models.PublicPlayer
}

func (gs *GameService) RoomSummary(args *RoomSummaryArgs, reply *RoomSummaryReply) error {
	room, players, err := gs.gameService.RoomSnapshot(args.RoomID)
	if err != nil {
		return err
	}
	reply.Room = room
	reply.Players = players
	return nil
}
