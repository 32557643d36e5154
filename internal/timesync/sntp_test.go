// ABOUTME: Tests for SNTP packet handling and the query exchange
// ABOUTME: Tests offset math, timestamp conversion, and a fake UDP server round trip
package timesync

import (
	"encoding/binary"
	"net"
	"testing"
	"time"
)

func TestExchangeOffset(t *testing.T) {
	// Client clock is 250ms behind the server, network adds 10ms each way
	base := time.Date(2024, 1, 15, 10, 30, 5, 0, time.UTC)

	t1 := base
	t2 := base.Add(250*time.Millisecond + 10*time.Millisecond)
	t3 := t2.Add(1 * time.Millisecond)
	t4 := t1.Add(21 * time.Millisecond)

	offset, delay := exchangeOffset(t1, t2, t3, t4)

	if offset != 250*time.Millisecond {
		t.Errorf("expected offset 250ms, got %v", offset)
	}
	if delay != 20*time.Millisecond {
		t.Errorf("expected delay 20ms, got %v", delay)
	}
}

func TestNTPTimeRoundTrip(t *testing.T) {
	in := time.Date(2024, 1, 15, 10, 30, 5, 500000000, time.UTC)
	out := fromNTPTime(toNTPTime(in))

	if d := out.Sub(in); d > time.Microsecond || d < -time.Microsecond {
		t.Errorf("round trip drifted by %v", d)
	}
}

func TestParseReplyRejectsBadPackets(t *testing.T) {
	t1 := time.Now()
	t4 := t1.Add(10 * time.Millisecond)

	good := make([]byte, packetSize)
	good[0] = ntpVersion<<3 | serverMode
	good[1] = 2 // stratum
	binary.BigEndian.PutUint64(good[24:], toNTPTime(t1))
	binary.BigEndian.PutUint64(good[32:], toNTPTime(t1.Add(5*time.Millisecond)))
	binary.BigEndian.PutUint64(good[40:], toNTPTime(t1.Add(6*time.Millisecond)))

	if _, _, err := parseReply(good, t1, t4, "test"); err != nil {
		t.Fatalf("expected valid reply to parse: %v", err)
	}

	short := good[:20]
	if _, _, err := parseReply(short, t1, t4, "test"); err == nil {
		t.Error("expected error for truncated reply")
	}

	badMode := append([]byte(nil), good...)
	badMode[0] = ntpVersion<<3 | clientMode
	if _, _, err := parseReply(badMode, t1, t4, "test"); err == nil {
		t.Error("expected error for client-mode reply")
	}

	kod := append([]byte(nil), good...)
	kod[1] = 0
	if _, _, err := parseReply(kod, t1, t4, "test"); err == nil {
		t.Error("expected error for kiss-of-death stratum")
	}

	stale := append([]byte(nil), good...)
	binary.BigEndian.PutUint64(stale[24:], toNTPTime(t1.Add(-time.Hour)))
	if _, _, err := parseReply(stale, t1, t4, "test"); err == nil {
		t.Error("expected error for non-echoing originate timestamp")
	}
}

// fakeServer answers one SNTP request with a reply whose server clock
// runs ahead of the local clock by the given offset.
func fakeServer(t *testing.T, serverOffset time.Duration) string {
	t.Helper()

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	go func() {
		buf := make([]byte, packetSize)
		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil || n < packetSize {
			return
		}

		now := time.Now().Add(serverOffset)
		resp := make([]byte, packetSize)
		resp[0] = ntpVersion<<3 | serverMode
		resp[1] = 2
		copy(resp[24:32], buf[40:48]) // echo client transmit as originate
		binary.BigEndian.PutUint64(resp[32:], toNTPTime(now))
		binary.BigEndian.PutUint64(resp[40:], toNTPTime(now))
		conn.WriteToUDP(resp, addr)
	}()

	return conn.LocalAddr().String()
}

func TestQueryAgainstFakeServer(t *testing.T) {
	addr := fakeServer(t, 2*time.Second)

	offset, delay, err := Query(addr, time.Second)
	if err != nil {
		t.Fatalf("query: %v", err)
	}

	// Offset should be close to the configured 2s skew; loopback delay
	// is small but nonzero.
	if offset < 1900*time.Millisecond || offset > 2100*time.Millisecond {
		t.Errorf("expected offset near 2s, got %v", offset)
	}
	if delay < 0 || delay > 500*time.Millisecond {
		t.Errorf("unexpected delay %v", delay)
	}
}

func TestQueryTimeout(t *testing.T) {
	// A listener that never answers
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer conn.Close()

	if _, _, err := Query(conn.LocalAddr().String(), 50*time.Millisecond); err == nil {
		t.Error("expected timeout error")
	}
}
