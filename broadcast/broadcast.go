// broadcast/broadcast.go
package broadcast

import (
	"encoding/json"

	"github.com/wfunc/mafiaserver/logger"
	"github.com/wfunc/mafiaserver/network"
	"github.com/wfunc/mafiaserver/session"
)

// 广播接口
type Broadcaster interface {
	BroadcastToRoom(roomID string, msgID uint16, data []byte) error
	BroadcastToAll(msgID uint16, data []byte) error
	BroadcastToPlayers(playerIDs []string, msgID uint16, data []byte) error
}

// RoomBroadcaster fans a message out to every live session, looked up
// through the session manager.
type RoomBroadcaster struct {
	sessionManager *session.Manager
}

func NewRoomBroadcaster(sessionManager *session.Manager) *RoomBroadcaster {
	return &RoomBroadcaster{sessionManager: sessionManager}
}

func (b *RoomBroadcaster) BroadcastToRoom(roomID string, msgID uint16, data []byte) error {
	for _, s := range b.sessionManager.GetByRoom(roomID) {
		if err := s.Send(msgID, data); err != nil {
			// 发送失败的连接留给读循环清理
			continue
		}
	}
	return nil
}

func (b *RoomBroadcaster) BroadcastToAll(msgID uint16, data []byte) error {
	for _, s := range b.sessionManager.All() {
		s.Send(msgID, data)
	}
	return nil
}

func (b *RoomBroadcaster) BroadcastToPlayers(playerIDs []string, msgID uint16, data []byte) error {
	for _, playerID := range playerIDs {
		for _, s := range b.sessionManager.GetByPlayerID(playerID) {
			if err := s.Send(msgID, data); err != nil {
				continue
			}
		}
	}
	return nil
}

// Fanout duplicates every broadcast across several sinks, typically the
// in-process sessions plus NATS for other server instances.
type Fanout struct {
	sinks []Broadcaster
}

func NewFanout(sinks ...Broadcaster) *Fanout {
	return &Fanout{sinks: sinks}
}

func (f *Fanout) BroadcastToRoom(roomID string, msgID uint16, data []byte) error {
	for _, sink := range f.sinks {
		if err := sink.BroadcastToRoom(roomID, msgID, data); err != nil {
			logger.Log.Warnf("Broadcast to room %s failed on one sink: %v", roomID, err)
		}
	}
	return nil
}

func (f *Fanout) BroadcastToAll(msgID uint16, data []byte) error {
	for _, sink := range f.sinks {
		sink.BroadcastToAll(msgID, data)
	}
	return nil
}

func (f *Fanout) BroadcastToPlayers(playerIDs []string, msgID uint16, data []byte) error {
	for _, sink := range f.sinks {
		sink.BroadcastToPlayers(playerIDs, msgID, data)
	}
	return nil
}

// RoomChangeNotifier adapts a Broadcaster to the services layer: any room
// mutation becomes a room-changed push and clients re-fetch the state.
type RoomChangeNotifier struct {
	broadcaster Broadcaster
}

func NewRoomChangeNotifier(broadcaster Broadcaster) *RoomChangeNotifier {
	return &RoomChangeNotifier{broadcaster: broadcaster}
}

func (n *RoomChangeNotifier) RoomChanged(roomID string) {
	data, _ := json.Marshal(map[string]string{"room_id": roomID})
	n.broadcaster.BroadcastToRoom(roomID, network.MsgTypeRoomChanged, data)
}
