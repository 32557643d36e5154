// ABOUTME: Poll-mode time synchronization client with bounded retry
// ABOUTME: Tracks sync status and applies smoothed clock offset to local reads
package timesync

import (
	"context"
	"log"
	"sync"
	"time"
)

// Status represents the synchronization state of the local clock
type Status int

const (
	Unsynced Status = iota
	Syncing
	Synced
	TimedOut
)

func (s Status) String() string {
	switch s {
	case Unsynced:
		return "unsynced"
	case Syncing:
		return "syncing"
	case Synced:
		return "synced"
	case TimedOut:
		return "timed out"
	default:
		return "unknown"
	}
}

// maxSaneDelay rejects samples whose round trip suggests congestion
// or an unreachable path; applying them would corrupt the offset.
const maxSaneDelay = 10 * time.Second

// smoothingRate is the weight given to new offset samples after the first
const smoothingRate = 0.1

// Client drives poll-mode SNTP against an ordered server list. The
// first server is primary; the rest are fallbacks tried in order each
// poll. Reaching the wait ceiling without a sample is not an error:
// the node degrades to unsynchronized local-clock timestamps.
type Client struct {
	mu      sync.RWMutex
	status  Status
	offset  time.Duration
	delay   time.Duration
	samples int

	servers      []string
	pollInterval time.Duration
	queryTimeout time.Duration

	query queryFunc
	sleep func(time.Duration)
}

// NewClient creates a time sync client for the given server list
func NewClient(servers []string, pollInterval, queryTimeout time.Duration) *Client {
	return &Client{
		status:       Unsynced,
		servers:      servers,
		pollInterval: pollInterval,
		queryTimeout: queryTimeout,
		query:        Query,
		sleep:        time.Sleep,
	}
}

// Start launches the background poll loop. It queries the server list
// immediately and then at every poll interval until ctx is cancelled.
func (c *Client) Start(ctx context.Context) {
	c.setStatus(Syncing)

	go func() {
		c.pollOnce()

		ticker := time.NewTicker(c.pollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				c.pollOnce()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// pollOnce walks the server list in order until one usable sample arrives
func (c *Client) pollOnce() {
	for _, server := range c.servers {
		offset, delay, err := c.query(server, c.queryTimeout)
		if err != nil {
			log.Printf("Time sync query failed: %v", err)
			continue
		}
		if c.applySample(offset, delay) {
			return
		}
	}
}

// applySample folds one measurement into the tracked offset. The first
// sample is taken as-is; later samples are smoothed so a single noisy
// exchange cannot yank the clock.
func (c *Client) applySample(offset, delay time.Duration) bool {
	if delay > maxSaneDelay || delay < 0 {
		log.Printf("Discarding time sync sample: round trip %v", delay)
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.samples == 0 {
		c.offset = offset
		log.Printf("Initial time sync: offset=%v, delay=%v", offset, delay)
	} else {
		c.offset += time.Duration(smoothingRate * float64(offset-c.offset))
	}
	c.delay = delay
	c.samples++
	c.status = Synced
	return true
}

// WaitSync polls the sync status at a fixed interval until it observes
// Synced or exhausts maxPolls checks. No backoff is applied: the
// ceiling already bounds the worst-case wait. Reaching the ceiling
// marks and returns TimedOut, which callers treat as a degraded mode,
// not a failure.
func (c *Client) WaitSync(maxPolls int, interval time.Duration) Status {
	for attempt := 1; attempt <= maxPolls; attempt++ {
		if c.Status() == Synced {
			return Synced
		}
		log.Printf("Waiting for system time to be set... (%d/%d)", attempt, maxPolls)
		if attempt < maxPolls {
			c.sleep(interval)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status != Synced {
		c.status = TimedOut
		return TimedOut
	}
	return Synced
}

// Status returns the current synchronization state
func (c *Client) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// Synced reports whether the clock is confirmed against a time authority
func (c *Client) Synced() bool {
	return c.Status() == Synced
}

// Now returns the local wall clock corrected by the current offset.
// Before any sample arrives the offset is zero and this is plain
// local time.
func (c *Client) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Now().Add(c.offset)
}

// Stats returns the tracked offset and last round-trip delay
func (c *Client) Stats() (offset, delay time.Duration) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.offset, c.delay
}

func (c *Client) setStatus(s Status) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status = s
}
