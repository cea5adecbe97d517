package main

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"log"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

const (
	MsgTypeCreateRoom   = 101
	MsgTypeJoinRoom     = 102
	MsgTypeAddBot       = 104
	MsgTypeStartGame    = 201
	MsgTypeNightAction  = 202
	MsgTypeCastVote     = 203
	MsgTypeResolveNight = 204
	MsgTypeAdvanceDay   = 205
	MsgTypeRoomState    = 302
)

// send formats and sends a message to the WebSocket server.
func send(c *websocket.Conn, msgID uint16, data []byte) error {
	packet := make([]byte, 4+len(data))
	binary.BigEndian.PutUint16(packet[0:2], msgID)
	binary.BigEndian.PutUint16(packet[2:4], uint16(len(data)))
	copy(packet[4:], data)

	return c.WriteMessage(websocket.BinaryMessage, packet)
}

func sendJSON(c *websocket.Conn, msgID uint16, payload interface{}) {
	data, _ := json.Marshal(payload)
	if err := send(c, msgID, data); err != nil {
		log.Println("Write error:", err)
	}
}

func main() {
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	u := url.URL{Scheme: "ws", Host: "localhost:8080", Path: "/ws"}
	log.Printf("Connecting to %s", u.String())

	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("Dial failed: %v", err)
	}
	defer c.Close()

	done := make(chan struct{})

	// Read loop
	go func() {
		defer close(done)
		for {
			_, message, err := c.ReadMessage()
			if err != nil {
				log.Println("Read error:", err)
				return
			}
			if len(message) < 4 {
				log.Printf("Received invalid packet of size %d", len(message))
				continue
			}
			msgID := binary.BigEndian.Uint16(message[0:2])
			data := message[4:]
			log.Printf("<- RECV (ID: %d): %s", msgID, string(data))
		}
	}()

	log.Println("Commands:")
	log.Println("  create <nickname>        join <code> <nickname>   bot <nickname>")
	log.Println("  start                    kill|heal|check <player_id>")
	log.Println("  vote <player_id>         resolve <round>          advance   state")

	// Write loop
	reader := bufio.NewReader(os.Stdin)
	for {
		select {
		case <-done:
			return
		case <-interrupt:
			log.Println("Interrupt received, closing connection.")
			err := c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			if err != nil {
				log.Println("Write close error:", err)
			}
			select {
			case <-done:
			case <-time.After(time.Second):
			}
			return
		default:
			text, _ := reader.ReadString('\n')
			fields := strings.Fields(strings.TrimSpace(text))
			if len(fields) == 0 {
				continue
			}

			switch fields[0] {
			case "create":
				if len(fields) > 1 {
					sendJSON(c, MsgTypeCreateRoom, map[string]string{"nickname": fields[1]})
				}
			case "join":
				if len(fields) > 2 {
					sendJSON(c, MsgTypeJoinRoom, map[string]string{"room_code": fields[1], "nickname": fields[2]})
				}
			case "bot":
				if len(fields) > 1 {
					sendJSON(c, MsgTypeAddBot, map[string]string{"nickname": fields[1]})
				}
			case "start":
				sendJSON(c, MsgTypeStartGame, map[string]string{})
			case "kill", "heal", "check":
				if len(fields) > 1 {
					sendJSON(c, MsgTypeNightAction, map[string]string{
						"action_type": fields[0],
						"target_id":   fields[1],
					})
				}
			case "vote":
				if len(fields) > 1 {
					sendJSON(c, MsgTypeCastVote, map[string]string{"suspect_id": fields[1]})
				}
			case "resolve":
				round := 1
				if len(fields) > 1 {
					if n, err := strconv.Atoi(fields[1]); err == nil {
						round = n
					}
				}
				sendJSON(c, MsgTypeResolveNight, map[string]int{"round": round})
			case "advance":
				sendJSON(c, MsgTypeAdvanceDay, map[string]string{})
			case "state":
				sendJSON(c, MsgTypeRoomState, map[string]string{})
			default:
				log.Printf("Unknown command: %s", fields[0])
			}
		}
	}
}
