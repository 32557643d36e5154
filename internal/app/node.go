// ABOUTME: Main node orchestration: boot, connect, sync, broadcast
// ABOUTME: Coordinates link, time sync, beacon, discovery, and the TUI
package app

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"

	"github.com/finger563/esp-timing-tests/internal/beacon"
	"github.com/finger563/esp-timing-tests/internal/bootcount"
	"github.com/finger563/esp-timing-tests/internal/config"
	"github.com/finger563/esp-timing-tests/internal/discovery"
	"github.com/finger563/esp-timing-tests/internal/link"
	"github.com/finger563/esp-timing-tests/internal/timesync"
	"github.com/finger563/esp-timing-tests/internal/ui"
)

// discoveryTimeout bounds the wait for a gateway to appear via mDNS
const discoveryTimeout = 30 * time.Second

// Node is the orchestrator: it sequences boot, gateway association,
// time synchronization, and the broadcast worker, then idles in a
// supervisory loop that only keeps the process alive.
type Node struct {
	cfg       *config.Config
	name      string
	bootCount int

	link      *link.Manager
	tsync     *timesync.Client
	publisher *beacon.Publisher
	scheduler *beacon.Scheduler
	discovery *discovery.Manager
	tuiProg   *tea.Program

	mu          sync.Mutex
	lastPayload string

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a node. The TUI program may be nil for streaming-log mode.
func New(cfg *config.Config, name string, tuiProg *tea.Program) *Node {
	ctx, cancel := context.WithCancel(context.Background())

	n := &Node{
		cfg:     cfg,
		name:    name,
		tuiProg: tuiProg,
		ctx:     ctx,
		cancel:  cancel,
	}
	n.tsync = timesync.NewClient(
		cfg.TimeSync.Servers,
		cfg.TimeSync.PollInterval(),
		cfg.TimeSync.QueryTimeout(),
	)
	return n
}

// Start runs the boot sequence and blocks in the supervisory loop.
// A connectivity failure is the only error returned; everything else
// degrades and the node keeps broadcasting.
func (n *Node) Start() error {
	log.Printf("Bootup")

	count, err := bootcount.Next(filepath.Join(n.cfg.Node.StateDir, "bootcount"))
	if err != nil {
		// diagnostics only, never worth halting the boot
		log.Printf("Boot counter unavailable: %v", err)
	}
	n.bootCount = count
	log.Printf("Boot count: %d", count)

	gateway, err := n.resolveGateway()
	if err != nil {
		return err
	}

	n.link = link.NewManager(link.Config{
		Gateway:       gateway,
		Network:       n.cfg.Link.Network,
		Secret:        n.cfg.Link.Secret,
		NodeID:        uuid.New().String(),
		Name:          n.name,
		BootCount:     count,
		MaxRetries:    n.cfg.Link.MaxConnectRetries,
		RetryInterval: n.cfg.Link.RetryInterval(),
		Observer:      n,
	})

	log.Printf("Connecting to gateway %s", gateway)
	if err := n.link.Connect(); err != nil {
		return fmt.Errorf("gateway connection failed: %w", err)
	}

	// Callers poll link status rather than receiving an event
	for !n.link.IsConnected() {
		log.Printf("Waiting for link...")
		time.Sleep(time.Second)
	}

	log.Printf("Synchronizing clock...")
	n.tsync.Start(n.ctx)
	if status := n.tsync.WaitSync(n.cfg.TimeSync.MaxPolls, n.cfg.TimeSync.PollInterval()); status == timesync.TimedOut {
		log.Printf("Time sync timed out, proceeding with unsynchronized local clock")
	}

	if err := n.initBeacon(); err != nil {
		return err
	}
	go n.scheduler.Run(n.ctx)
	log.Printf("Broadcasting to %s every second", n.publisher.Dest())

	n.supervise()
	return nil
}

// resolveGateway returns the configured gateway or discovers one via mDNS
func (n *Node) resolveGateway() (string, error) {
	if n.cfg.Link.Gateway != "" {
		return n.cfg.Link.Gateway, nil
	}

	n.discovery = discovery.NewManager(discovery.Config{
		NodeName: n.name,
		Port:     n.cfg.Beacon.Port,
	})
	if err := n.discovery.Advertise(); err != nil {
		log.Printf("mDNS advertisement failed: %v", err)
	}
	if err := n.discovery.Browse(); err != nil {
		return "", fmt.Errorf("gateway discovery failed: %w", err)
	}

	log.Printf("No gateway configured, browsing via mDNS...")
	select {
	case gw := <-n.discovery.Gateways():
		return gw.Addr(), nil
	case <-time.After(discoveryTimeout):
		return "", fmt.Errorf("no gateway discovered within %v", discoveryTimeout)
	case <-n.ctx.Done():
		return "", n.ctx.Err()
	}
}

// initBeacon opens the multicast socket and builds the aligned scheduler
func (n *Node) initBeacon() error {
	pub, err := beacon.NewPublisher(beacon.Config{
		Group:     n.cfg.Beacon.Group,
		Port:      n.cfg.Beacon.Port,
		Multicast: n.cfg.Beacon.Multicast,
		TTL:       n.cfg.Beacon.TTL,
		Loopback:  n.cfg.Beacon.Loopback,
	})
	if err != nil {
		return err
	}
	n.publisher = pub
	n.scheduler = beacon.NewScheduler(n.broadcast, beacon.NewClock(n.tsync.Now))
	return nil
}

// broadcast is the scheduled action: one timestamped datagram per tick
func (n *Node) broadcast(now time.Time) error {
	synced := n.tsync.Synced()
	if err := n.publisher.Publish(now, synced); err != nil {
		return err
	}

	n.mu.Lock()
	n.lastPayload = beacon.FormatPayload(now, synced)
	n.mu.Unlock()
	return nil
}

// NotifyAddress implements link.AddressObserver for diagnostics
func (n *Node) NotifyAddress(addr string) {
	log.Printf("Got address: %s", addr)
}

// supervise keeps the main context alive and pushes status snapshots
// to the TUI. It does no useful work beyond that.
func (n *Node) supervise() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			n.pushStatus()
		case <-n.ctx.Done():
			return
		}
	}
}

// pushStatus sends a snapshot of all component state to the TUI
func (n *Node) pushStatus() {
	if n.tuiProg == nil {
		return
	}

	linkState := n.link.State()
	syncStatus := n.tsync.Status()
	offset, delay := n.tsync.Stats()
	sent, failed := n.scheduler.Stats()

	n.mu.Lock()
	last := n.lastPayload
	n.mu.Unlock()

	n.tuiProg.Send(ui.StatusMsg{
		LinkState:   &linkState,
		Gateway:     n.cfg.Link.Gateway,
		Address:     n.link.Address(),
		SyncStatus:  &syncStatus,
		SyncOffset:  offset,
		SyncDelay:   delay,
		Dest:        n.publisher.Dest(),
		Sent:        sent,
		Failed:      failed,
		LastPayload: last,
		BootCount:   n.bootCount,
	})
}

// Stop tears the node down
func (n *Node) Stop() {
	n.cancel()

	if n.link != nil {
		n.link.Close()
	}
	if n.publisher != nil {
		n.publisher.Close()
	}
	if n.discovery != nil {
		n.discovery.Stop()
	}
	if n.tuiProg != nil {
		n.tuiProg.Quit()
	}
}
