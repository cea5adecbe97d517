// broadcast/nats.go
package broadcast

import (
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/wfunc/mafiaserver/logger"
	"github.com/wfunc/mafiaserver/network"
)

const (
	roomSubjectPrefix = "mafia.room."
	allSubject        = "mafia.all"
	playerSubject     = "mafia.player."
)

// NatsBroadcaster relays broadcasts through NATS so that clients connected
// to another server instance still receive room pushes. Messages keep the
// websocket wire framing; a subscribing instance forwards the bytes as-is.
type NatsBroadcaster struct {
	conn *nats.Conn
}

func NewNatsBroadcaster(url string) (*NatsBroadcaster, error) {
	conn, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Log.Warnf("NATS disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Log.Infof("NATS reconnected to %s", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats at %s: %w", url, err)
	}
	return &NatsBroadcaster{conn: conn}, nil
}

func (b *NatsBroadcaster) BroadcastToRoom(roomID string, msgID uint16, data []byte) error {
	return b.conn.Publish(roomSubjectPrefix+roomID, network.EncodePacket(msgID, data))
}

func (b *NatsBroadcaster) BroadcastToAll(msgID uint16, data []byte) error {
	return b.conn.Publish(allSubject, network.EncodePacket(msgID, data))
}

func (b *NatsBroadcaster) BroadcastToPlayers(playerIDs []string, msgID uint16, data []byte) error {
	packet := network.EncodePacket(msgID, data)
	for _, playerID := range playerIDs {
		if err := b.conn.Publish(playerSubject+playerID, packet); err != nil {
			return err
		}
	}
	return nil
}

// SubscribeRoom forwards relayed packets for one room into the local
// broadcaster. Used when rooms are spread over several instances.
func (b *NatsBroadcaster) SubscribeRoom(roomID string, local Broadcaster) (*nats.Subscription, error) {
	return b.conn.Subscribe(roomSubjectPrefix+roomID, func(msg *nats.Msg) {
		packet, err := network.DecodePacket(msg.Data)
		if err != nil {
			logger.Log.Warnf("Dropping malformed relayed packet on %s: %v", msg.Subject, err)
			return
		}
		local.BroadcastToRoom(roomID, packet.MsgID, packet.Data)
	})
}

func (b *NatsBroadcaster) Close() {
	if b.conn != nil {
		b.conn.Drain()
	}
}
