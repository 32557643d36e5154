// ABOUTME: Tests for the gateway link manager
// ABOUTME: Tests retry budget, join handshake, observer delivery, and state
package link

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/finger563/esp-timing-tests/internal/protocol"
)

func TestConnectAttemptsExactlyNTimes(t *testing.T) {
	for _, retries := range []int{1, 3, 5} {
		m := NewManager(Config{
			Gateway:       "gateway.invalid:8927",
			MaxRetries:    retries,
			RetryInterval: time.Millisecond,
		})

		attempts := 0
		m.dial = func(string) (*websocket.Conn, error) {
			attempts++
			return nil, errors.New("no route to gateway")
		}
		m.sleep = func(time.Duration) {}

		err := m.Connect()
		if !errors.Is(err, ErrRetriesExhausted) {
			t.Errorf("retries=%d: expected ErrRetriesExhausted, got %v", retries, err)
		}
		if attempts != retries {
			t.Errorf("retries=%d: expected exactly %d attempts, got %d", retries, retries, attempts)
		}
		if m.State() != Failed {
			t.Errorf("retries=%d: expected terminal Failed state, got %v", retries, m.State())
		}
	}
}

// fakeGateway accepts one websocket connection and answers link/join
func fakeGateway(t *testing.T, respond func(req protocol.JoinRequest) protocol.Message) string {
	t.Helper()

	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var msg struct {
			Type    string               `json:"type"`
			Payload protocol.JoinRequest `json:"payload"`
		}
		if err := json.Unmarshal(data, &msg); err != nil || msg.Type != "link/join" {
			conn.Close()
			return
		}

		conn.WriteJSON(respond(msg.Payload))
		// keep the link open so the watcher does not mark it down
		conn.ReadMessage()
	}))
	t.Cleanup(srv.Close)

	return strings.TrimPrefix(srv.URL, "http://")
}

type recordingObserver struct {
	addr chan string
}

func (o *recordingObserver) NotifyAddress(addr string) { o.addr <- addr }

func TestConnectJoinHandshake(t *testing.T) {
	gateway := fakeGateway(t, func(req protocol.JoinRequest) protocol.Message {
		if req.Network != "lab" || req.Secret != "hunter2" {
			return protocol.Message{Type: "link/reject", Payload: protocol.JoinReject{Reason: "bad credentials"}}
		}
		return protocol.Message{Type: "link/accept", Payload: protocol.JoinAccept{Address: "192.168.4.17"}}
	})

	obs := &recordingObserver{addr: make(chan string, 1)}
	m := NewManager(Config{
		Gateway:       gateway,
		Network:       "lab",
		Secret:        "hunter2",
		NodeID:        "node-1",
		MaxRetries:    3,
		RetryInterval: time.Millisecond,
		Observer:      obs,
	})
	defer m.Close()

	if err := m.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if !m.IsConnected() {
		t.Error("expected IsConnected after successful join")
	}
	if m.Address() != "192.168.4.17" {
		t.Errorf("unexpected assigned address: %q", m.Address())
	}

	select {
	case addr := <-obs.addr:
		if addr != "192.168.4.17" {
			t.Errorf("observer got wrong address: %q", addr)
		}
	case <-time.After(time.Second):
		t.Error("observer was not notified")
	}
}

func TestConnectRejectedCredentials(t *testing.T) {
	gateway := fakeGateway(t, func(protocol.JoinRequest) protocol.Message {
		return protocol.Message{Type: "link/reject", Payload: protocol.JoinReject{Reason: "bad credentials"}}
	})

	m := NewManager(Config{
		Gateway:       gateway,
		Network:       "lab",
		Secret:        "wrong",
		MaxRetries:    1,
		RetryInterval: time.Millisecond,
	})

	err := m.Connect()
	if !errors.Is(err, ErrRetriesExhausted) {
		t.Errorf("expected ErrRetriesExhausted, got %v", err)
	}
	if m.IsConnected() {
		t.Error("expected link down after rejection")
	}
}

type panickingObserver struct{}

func (panickingObserver) NotifyAddress(string) { panic("observer bug") }

func TestObserverPanicDoesNotFailConnect(t *testing.T) {
	gateway := fakeGateway(t, func(protocol.JoinRequest) protocol.Message {
		return protocol.Message{Type: "link/accept", Payload: protocol.JoinAccept{Address: "192.168.4.20"}}
	})

	m := NewManager(Config{
		Gateway:       gateway,
		MaxRetries:    1,
		RetryInterval: time.Millisecond,
		Observer:      panickingObserver{},
	})
	defer m.Close()

	if err := m.Connect(); err != nil {
		t.Fatalf("connect failed because of observer: %v", err)
	}
	if !m.IsConnected() {
		t.Error("expected connected state despite observer panic")
	}
}

func TestStateStrings(t *testing.T) {
	if Disconnected.String() != "disconnected" || Failed.String() != "failed" {
		t.Error("unexpected state strings")
	}
}
