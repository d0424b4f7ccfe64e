package model

// Websocket message types pushed to session subscribers.
const (
	TurnMessageChunk  = "turn_chunk"
	TurnMessageTool   = "turn_tool"
	TurnMessageStatus = "turn_status"
	TurnMessageDone   = "turn_done"
	TurnMessageFailed = "turn_failed"
)

// TurnMessage is the envelope for every websocket push.
type TurnMessage struct {
	Type      string      `json:"type"`
	SessionID string      `json:"session_id"`
	Data      interface{} `json:"data,omitempty"`
}
