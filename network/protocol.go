package network

// 消息类型
const (
	MsgTypeHeartbeat = 1

	MsgTypeCreateRoom = 101
	MsgTypeJoinRoom   = 102
	MsgTypeLeaveRoom  = 103
	MsgTypeAddBot     = 104

	MsgTypeStartGame    = 201
	MsgTypeNightAction  = 202
	MsgTypeCastVote     = 203
	MsgTypeResolveNight = 204
	MsgTypeAdvanceDay   = 205
	MsgTypeOpenVoting   = 206

	MsgTypeRoomChanged = 301
	MsgTypeRoomState   = 302
	MsgTypeGameEnd     = 303
	MsgTypeError       = 305
)
