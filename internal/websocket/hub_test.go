package websocket

import (
	"encoding/json"
	"testing"
	"time"

	"qa-guru-be/internal/model"
)

type nopLogger struct{}

func (nopLogger) Debug(module, message string, details map[string]interface{}) {}
func (nopLogger) Info(module, message string, details map[string]interface{})  {}
func (nopLogger) Warn(module, message string, details map[string]interface{})  {}
func (nopLogger) Error(module, message string, details map[string]interface{}) {}
func (nopLogger) Sync() error                                                  { return nil }

func addClient(h *Hub, sessionID string, buffer int) *Client {
	client := &Client{Hub: h, SessionID: sessionID, UserID: "u1", Send: make(chan []byte, buffer)}
	h.mu.Lock()
	h.clients[sessionID] = append(h.clients[sessionID], client)
	h.mu.Unlock()
	return client
}

func TestNotifyDeliversToSubscribers(t *testing.T) {
	h := NewHub(nopLogger{})
	go h.Run()
	client := addClient(h, "s1", 4)

	h.Notify("s1", model.TurnMessageChunk, "hello")

	select {
	case payload := <-client.Send:
		var msg model.TurnMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if msg.Type != model.TurnMessageChunk || msg.SessionID != "s1" {
			t.Errorf("message = %+v", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("no message delivered")
	}
}

func TestNotifyDropsSlowClientOnce(t *testing.T) {
	h := NewHub(nopLogger{})
	go h.Run()

	// An unbuffered Send with no reader: the first Notify must drop the
	// client through the hub loop without panicking on a double close.
	slow := addClient(h, "s1", 0)

	h.Notify("s1", model.TurnMessageChunk, "first")

	select {
	case _, ok := <-slow.Send:
		if ok {
			t.Fatal("expected closed channel, got a message")
		}
	case <-time.After(time.Second):
		t.Fatal("slow client was never unregistered")
	}

	// The session is gone from the hub; a second push is a no-op.
	h.Notify("s1", model.TurnMessageChunk, "second")

	h.mu.RLock()
	_, found := h.clients["s1"]
	h.mu.RUnlock()
	if found {
		t.Error("slow client still registered")
	}
}
