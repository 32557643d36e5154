// ABOUTME: SNTP (RFC 4330) client packet handling and query exchange
// ABOUTME: Single poll-mode UDP round trip yielding clock offset and delay
package timesync

import (
	"encoding/binary"
	"fmt"
	"net"
	"strings"
	"time"
)

const (
	ntpPort       = "123"
	packetSize    = 48
	clientMode    = 3
	serverMode    = 4
	ntpVersion    = 4
	kissOfDeath   = 0 // stratum 0 replies must be discarded
	maxStratum    = 15
	ntpEpochDelta = 2208988800 // seconds between 1900-01-01 and 1970-01-01
)

// queryFunc performs one SNTP exchange. Swappable in tests.
type queryFunc func(server string, timeout time.Duration) (offset, delay time.Duration, err error)

// Query sends a single mode-3 client packet to server and computes the
// local clock offset and round-trip delay from the reply. The server
// may be a bare hostname (port 123 assumed) or host:port.
func Query(server string, timeout time.Duration) (time.Duration, time.Duration, error) {
	addr := server
	if !strings.Contains(addr, ":") {
		addr = net.JoinHostPort(addr, ntpPort)
	}

	conn, err := net.Dial("udp", addr)
	if err != nil {
		return 0, 0, fmt.Errorf("sntp dial %s: %w", server, err)
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		return 0, 0, fmt.Errorf("sntp deadline: %w", err)
	}

	req := make([]byte, packetSize)
	req[0] = ntpVersion<<3 | clientMode

	t1 := time.Now()
	binary.BigEndian.PutUint64(req[40:], toNTPTime(t1))

	if _, err := conn.Write(req); err != nil {
		return 0, 0, fmt.Errorf("sntp send %s: %w", server, err)
	}

	resp := make([]byte, packetSize)
	if _, err := conn.Read(resp); err != nil {
		return 0, 0, fmt.Errorf("sntp receive %s: %w", server, err)
	}
	t4 := time.Now()

	return parseReply(resp, t1, t4, server)
}

// parseReply validates a server packet and derives offset and delay
// from the four-timestamp exchange.
func parseReply(resp []byte, t1, t4 time.Time, server string) (time.Duration, time.Duration, error) {
	if len(resp) < packetSize {
		return 0, 0, fmt.Errorf("sntp reply from %s too short: %d bytes", server, len(resp))
	}
	if mode := resp[0] & 0x07; mode != serverMode {
		return 0, 0, fmt.Errorf("sntp reply from %s has mode %d, want %d", server, mode, serverMode)
	}
	stratum := resp[1]
	if stratum == kissOfDeath || stratum > maxStratum {
		return 0, 0, fmt.Errorf("sntp reply from %s has unusable stratum %d", server, stratum)
	}
	// Originate timestamp must echo our transmit time (within the
	// fixed-point conversion error); anything else is a stale reply.
	origin := fromNTPTime(binary.BigEndian.Uint64(resp[24:]))
	if d := origin.Sub(t1); d > time.Millisecond || d < -time.Millisecond {
		return 0, 0, fmt.Errorf("sntp reply from %s does not echo request", server)
	}

	t2 := fromNTPTime(binary.BigEndian.Uint64(resp[32:]))
	t3 := fromNTPTime(binary.BigEndian.Uint64(resp[40:]))

	offset, delay := exchangeOffset(t1, t2, t3, t4)
	return offset, delay, nil
}

// exchangeOffset computes clock offset and round-trip delay from the
// classic four-timestamp sample: t1 client send, t2 server receive,
// t3 server send, t4 client receive.
func exchangeOffset(t1, t2, t3, t4 time.Time) (offset, delay time.Duration) {
	offset = (t2.Sub(t1) + t3.Sub(t4)) / 2
	delay = t4.Sub(t1) - t3.Sub(t2)
	return
}

// toNTPTime converts wall-clock time to the 64-bit NTP fixed-point
// format: 32 bits of seconds since 1900, 32 bits of fraction.
func toNTPTime(t time.Time) uint64 {
	secs := uint64(t.Unix()) + ntpEpochDelta
	frac := uint64(t.Nanosecond()) << 32 / uint64(time.Second)
	return secs<<32 | frac
}

// fromNTPTime converts the NTP fixed-point format back to time.Time
func fromNTPTime(v uint64) time.Time {
	secs := int64(v>>32) - ntpEpochDelta
	nanos := (v & 0xFFFFFFFF) * uint64(time.Second) >> 32
	return time.Unix(secs, int64(nanos))
}
