// ABOUTME: UDP multicast publisher for timestamped beacon datagrams
// ABOUTME: Formats ISO-8601 payloads with a sync-validity marker
package beacon

import (
	"fmt"
	"net"
	"time"

	"golang.org/x/sys/unix"
)

// payloadTimeLayout carries microsecond resolution, matching the
// beacon wire format 2024-01-15T10:30:05.123456
const payloadTimeLayout = "2006-01-02T15:04:05.000000"

// Validity markers appended to every payload so downstream consumers
// can discard timestamps taken from an unconfirmed clock.
const (
	markerSynced   = "synced"
	markerUnsynced = "unsynced"
)

// FormatPayload renders the beacon datagram body
func FormatPayload(ts time.Time, synced bool) string {
	marker := markerSynced
	if !synced {
		marker = markerUnsynced
	}
	return ts.Format(payloadTimeLayout) + " " + marker
}

// Config describes the beacon destination. Multicast controls whether
// the socket is given multicast options (TTL, loopback) or plain
// unicast semantics.
type Config struct {
	Group     string
	Port      int
	Multicast bool
	TTL       int
	Loopback  bool
}

// Publisher owns the outbound socket. It is used from a single worker
// goroutine; the send blocks only until the datagram reaches the local
// stack's outbound queue. Multicast is inherently unacknowledged, so no
// response of any kind is awaited.
type Publisher struct {
	conn *net.UDPConn
	dest string
}

// NewPublisher opens the socket to the configured group and port
func NewPublisher(cfg Config) (*Publisher, error) {
	ip := net.ParseIP(cfg.Group)
	if ip == nil {
		return nil, fmt.Errorf("beacon group is not a valid IP: %q", cfg.Group)
	}

	dest := &net.UDPAddr{IP: ip, Port: cfg.Port}
	conn, err := net.DialUDP("udp", nil, dest)
	if err != nil {
		return nil, fmt.Errorf("beacon socket to %s: %w", dest, err)
	}

	if cfg.Multicast {
		if err := setMulticastOptions(conn, ip, cfg.TTL, cfg.Loopback); err != nil {
			conn.Close()
			return nil, err
		}
	}

	return &Publisher{conn: conn, dest: dest.String()}, nil
}

// setMulticastOptions applies TTL and loopback on the outbound socket
func setMulticastOptions(conn *net.UDPConn, ip net.IP, ttl int, loopback bool) error {
	raw, err := conn.SyscallConn()
	if err != nil {
		return fmt.Errorf("beacon socket control: %w", err)
	}

	loop := 0
	if loopback {
		loop = 1
	}

	var optErr error
	err = raw.Control(func(fd uintptr) {
		if ip.To4() != nil {
			optErr = unix.SetsockoptInt(int(fd), unix.IPPROTO_IP, unix.IP_MULTICAST_TTL, ttl)
			if optErr == nil {
				optErr = unix.SetsockoptInt(int(fd), unix.IPPROTO_IP, unix.IP_MULTICAST_LOOP, loop)
			}
		} else {
			optErr = unix.SetsockoptInt(int(fd), unix.IPPROTO_IPV6, unix.IPV6_MULTICAST_HOPS, ttl)
			if optErr == nil {
				optErr = unix.SetsockoptInt(int(fd), unix.IPPROTO_IPV6, unix.IPV6_MULTICAST_LOOP, loop)
			}
		}
	})
	if err != nil {
		return fmt.Errorf("beacon socket control: %w", err)
	}
	if optErr != nil {
		return fmt.Errorf("beacon multicast options: %w", optErr)
	}
	return nil
}

// Publish sends one timestamped datagram. Errors are reported to the
// caller without retry; the next scheduled boundary is the retry.
func (p *Publisher) Publish(ts time.Time, synced bool) error {
	payload := FormatPayload(ts, synced)
	if _, err := p.conn.Write([]byte(payload)); err != nil {
		return fmt.Errorf("beacon send to %s: %w", p.dest, err)
	}
	return nil
}

// Dest returns the destination address string
func (p *Publisher) Dest() string {
	return p.dest
}

// Close releases the socket
func (p *Publisher) Close() error {
	return p.conn.Close()
}
