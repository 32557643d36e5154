// ABOUTME: Gateway link manager handling association with bounded retry
// ABOUTME: Dials the gateway websocket, performs the join handshake, tracks state
package link

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/finger563/esp-timing-tests/internal/protocol"
	"github.com/finger563/esp-timing-tests/internal/version"
)

// State represents the link association state
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Failed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// ErrRetriesExhausted is returned when every connect attempt failed.
// It is the only error in the node that is fatal to the whole process.
var ErrRetriesExhausted = errors.New("link: connect retries exhausted")

// AddressObserver is notified with the gateway-assigned address after a
// successful join. Notification is fire-and-forget: a misbehaving
// observer must not fail the connect operation.
type AddressObserver interface {
	NotifyAddress(addr string)
}

// Config holds link association parameters
type Config struct {
	Gateway       string
	Network       string
	Secret        string
	NodeID        string
	Name          string
	BootCount     int
	MaxRetries    int
	RetryInterval time.Duration
	Observer      AddressObserver
}

const handshakeTimeout = 5 * time.Second

// Manager establishes and reports gateway reachability. Connect is a
// blocking operation; callers poll IsConnected rather than receiving
// events.
type Manager struct {
	config Config

	mu      sync.RWMutex
	state   State
	conn    *websocket.Conn
	address string

	dial  func(gateway string) (*websocket.Conn, error)
	sleep func(time.Duration)
}

// NewManager creates a link manager
func NewManager(config Config) *Manager {
	return &Manager{
		config: config,
		state:  Disconnected,
		dial:   dialGateway,
		sleep:  time.Sleep,
	}
}

func dialGateway(gateway string) (*websocket.Conn, error) {
	u := url.URL{Scheme: "ws", Host: gateway, Path: "/link"}
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	return conn, err
}

// Connect attempts to associate with the gateway, retrying up to
// MaxRetries times with a fixed pause between attempts. Exhausting the
// budget sets the terminal Failed state and returns ErrRetriesExhausted.
func (m *Manager) Connect() error {
	m.setState(Connecting)

	var lastErr error
	for attempt := 1; attempt <= m.config.MaxRetries; attempt++ {
		conn, err := m.dial(m.config.Gateway)
		if err != nil {
			lastErr = err
			log.Printf("Connect attempt %d/%d failed: %v", attempt, m.config.MaxRetries, err)
			if attempt < m.config.MaxRetries {
				m.sleep(m.config.RetryInterval)
			}
			continue
		}

		addr, err := m.join(conn)
		if err != nil {
			conn.Close()
			lastErr = err
			log.Printf("Join attempt %d/%d failed: %v", attempt, m.config.MaxRetries, err)
			if attempt < m.config.MaxRetries {
				m.sleep(m.config.RetryInterval)
			}
			continue
		}

		m.mu.Lock()
		m.conn = conn
		m.address = addr
		m.state = Connected
		m.mu.Unlock()

		log.Printf("Link up, assigned address %s", addr)
		m.notifyObserver(addr)
		go m.watch(conn)
		return nil
	}

	m.setState(Failed)
	return fmt.Errorf("%w after %d attempts, last error: %v",
		ErrRetriesExhausted, m.config.MaxRetries, lastErr)
}

// join performs the credential handshake and returns the assigned address
func (m *Manager) join(conn *websocket.Conn) (string, error) {
	req := protocol.Message{
		Type: "link/join",
		Payload: protocol.JoinRequest{
			NodeID:    m.config.NodeID,
			Name:      m.config.Name,
			Network:   m.config.Network,
			Secret:    m.config.Secret,
			BootCount: m.config.BootCount,
			Device: &protocol.DeviceInfo{
				ProductName:     version.Product,
				Manufacturer:    version.Manufacturer,
				SoftwareVersion: version.Version,
			},
		},
	}

	if err := conn.WriteJSON(req); err != nil {
		return "", fmt.Errorf("failed to send link/join: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	_, data, err := conn.ReadMessage()
	if err != nil {
		return "", fmt.Errorf("failed to read join response: %w", err)
	}
	conn.SetReadDeadline(time.Time{})

	var msg protocol.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return "", fmt.Errorf("failed to parse join response: %w", err)
	}

	payloadBytes, _ := json.Marshal(msg.Payload)

	switch msg.Type {
	case "link/accept":
		var accept protocol.JoinAccept
		if err := json.Unmarshal(payloadBytes, &accept); err != nil {
			return "", fmt.Errorf("failed to parse link/accept: %w", err)
		}
		if accept.Address == "" {
			return "", fmt.Errorf("gateway accepted join but assigned no address")
		}
		return accept.Address, nil

	case "link/reject":
		var reject protocol.JoinReject
		json.Unmarshal(payloadBytes, &reject)
		return "", fmt.Errorf("gateway rejected join: %s", reject.Reason)

	default:
		return "", fmt.Errorf("expected link/accept, got %s", msg.Type)
	}
}

// notifyObserver delivers the assigned address. A panicking observer is
// logged and otherwise ignored.
func (m *Manager) notifyObserver(addr string) {
	if m.config.Observer == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Address observer failed: %v", r)
		}
	}()
	m.config.Observer.NotifyAddress(addr)
}

// watch marks the link down when the gateway connection drops. No
// reconnection is attempted here.
func (m *Manager) watch(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			m.mu.Lock()
			if m.conn == conn && m.state == Connected {
				m.state = Disconnected
				log.Printf("Link lost: %v", err)
			}
			m.mu.Unlock()
			return
		}
	}
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = s
}

// IsConnected reports whether the link is up
func (m *Manager) IsConnected() bool {
	return m.State() == Connected
}

// State returns the current link state
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Address returns the gateway-assigned address, empty until connected
func (m *Manager) Address() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.address
}

// Close tears down the gateway connection
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
	if m.state == Connected {
		m.state = Disconnected
	}
}
