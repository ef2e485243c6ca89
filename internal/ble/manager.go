package ble

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/flitebridge/flitebridge/internal/ble/definition"
)

var (
	// ErrUnknownDefinition indicates a connect request named a definition
	// that is not registered.
	ErrUnknownDefinition = errors.New("ble: unknown definition")
	// ErrDeviceExcluded indicates the target address is on the exclusion
	// list.
	ErrDeviceExcluded = errors.New("ble: device excluded")
	// ErrDuplicateDevice indicates a device with the target address is
	// already active.
	ErrDuplicateDevice = errors.New("ble: device already connected")
	// ErrShutdown indicates the manager has been shut down. Shutdown is
	// terminal; a new manager is required afterwards.
	ErrShutdown = errors.New("ble: manager is shut down")
)

// Options configures a Manager. Zero values fall back to the defaults below.
type Options struct {
	TickInterval     time.Duration // registry housekeeping cadence
	RescanAfterTicks int           // ticks between liveness sweeps
	ScanTimeout      time.Duration // per-definition discovery window
	EventBuffer      int           // outbound event channel capacity
	Excluded         []string      // addresses never auto-connected
	Clock            Clock
	Logger           *slog.Logger
}

// DefaultOptions returns the reference cadence: 50ms ticks with a liveness
// sweep every 100 ticks (5s).
func DefaultOptions() Options {
	return Options{
		TickInterval:     50 * time.Millisecond,
		RescanAfterTicks: 100,
		ScanTimeout:      5 * time.Second,
		EventBuffer:      64,
	}
}

// Statistics is a telemetry snapshot: total active devices and connected
// count per definition name.
type Statistics struct {
	Total        int
	ByDefinition map[string]int
}

// Manager owns the registry of connected devices. It drives a periodic tick
// loop for registry housekeeping, serializes discovery scans across known
// definitions, applies the exclusion list, deduplicates by address, and
// aggregates per-device events onto a single outbound channel.
//
// The active, excluded, and pending-removal collections are owned and
// mutated only by the manager; devices never touch them. Structural removal
// from the active registry happens only on a tick, so a disconnect callback
// never races registry iteration.
type Manager struct {
	adapter Adapter
	defs    *definition.Registry
	opts    Options
	clock   Clock
	logger  *slog.Logger

	events    chan Event
	devEvents chan deviceEvent

	mu             sync.Mutex
	active         map[string]*Device // keyed by normalized address
	order          []string           // registration order of addresses
	excluded       map[string]bool
	pendingRemoval []string
	tickCount      int
	started        bool
	shutdown       bool
	closed         bool

	scanInFlight atomic.Bool
	scanCancel   context.CancelFunc
	scanWG       sync.WaitGroup

	runCancel context.CancelFunc
	runWG     sync.WaitGroup
}

// NewManager creates a manager over the given adapter and definition
// registry. Definitions are scanned in registration order.
func NewManager(adapter Adapter, defs *definition.Registry, opts Options) *Manager {
	def := DefaultOptions()
	if opts.TickInterval <= 0 {
		opts.TickInterval = def.TickInterval
	}
	if opts.RescanAfterTicks <= 0 {
		opts.RescanAfterTicks = def.RescanAfterTicks
	}
	if opts.ScanTimeout <= 0 {
		opts.ScanTimeout = def.ScanTimeout
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = def.EventBuffer
	}
	if opts.Clock == nil {
		opts.Clock = realClock{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	excluded := make(map[string]bool, len(opts.Excluded))
	for _, addr := range opts.Excluded {
		excluded[normalizeAddr(addr)] = true
	}

	return &Manager{
		adapter:   adapter,
		defs:      defs,
		opts:      opts,
		clock:     opts.Clock,
		logger:    opts.Logger.With("component", "ble_manager"),
		events:    make(chan Event, opts.EventBuffer),
		devEvents: make(chan deviceEvent, opts.EventBuffer*4),
		active:    make(map[string]*Device),
		excluded:  excluded,
	}
}

func normalizeAddr(addr string) string {
	return strings.ToUpper(strings.TrimSpace(addr))
}

// Events returns the outbound event channel. It is closed by Shutdown.
func (m *Manager) Events() <-chan Event {
	return m.events
}

// Start begins the periodic tick loop. Calling Start twice is a no-op.
func (m *Manager) Start() {
	m.mu.Lock()
	if m.started || m.shutdown {
		m.mu.Unlock()
		return
	}
	m.started = true
	ctx, cancel := context.WithCancel(context.Background())
	m.runCancel = cancel
	m.mu.Unlock()

	m.runWG.Add(1)
	go m.run(ctx)
}

// run is the single goroutine that serializes registry housekeeping with
// per-device event dispatch.
func (m *Manager) run(ctx context.Context) {
	defer m.runWG.Done()
	ticker := m.clock.NewTicker(m.opts.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-m.devEvents:
			m.dispatch(ev)
		case <-ticker.C():
			m.tick()
		}
	}
}

// dispatch republishes device input events and queues disconnects for
// removal on the next tick. Disconnects never mutate the active registry
// here.
func (m *Manager) dispatch(ev deviceEvent) {
	if ev.input != nil {
		m.emit(Event{Type: EventInput, Input: ev.input})
		return
	}
	if ev.disconnected {
		addr := normalizeAddr(ev.address)
		m.mu.Lock()
		if _, ok := m.active[addr]; ok {
			m.pendingRemoval = append(m.pendingRemoval, addr)
		}
		m.mu.Unlock()
	}
}

// tick drains the pending-removal queue (the only place the active registry
// shrinks outside Shutdown) and runs the periodic liveness sweep.
func (m *Manager) tick() {
	var removed []string

	m.mu.Lock()
	for _, addr := range m.pendingRemoval {
		if _, ok := m.active[addr]; !ok {
			continue
		}
		delete(m.active, addr)
		for i, a := range m.order {
			if a == addr {
				m.order = append(m.order[:i], m.order[i+1:]...)
				break
			}
		}
		removed = append(removed, addr)
	}
	m.pendingRemoval = m.pendingRemoval[:0]

	m.tickCount++
	sweep := m.tickCount >= m.opts.RescanAfterTicks
	if sweep {
		m.tickCount = 0
		// Presence re-check: catch connections that died without the
		// platform delivering a disconnect callback.
		for addr, dev := range m.active {
			if !dev.IsConnected() {
				m.pendingRemoval = append(m.pendingRemoval, addr)
			}
		}
	}
	m.mu.Unlock()

	for _, addr := range removed {
		m.logger.Info("device removed from registry", "address", addr)
		m.emit(Event{Type: EventDeviceRemoved, Address: addr})
	}
}

// Connect launches the scan-and-connect sequence without blocking the
// caller. At most one scan runs at a time; a request while one is in flight
// is logged and dropped, not queued. EventScanComplete fires when the
// sequence finishes regardless of outcome.
func (m *Manager) Connect() {
	if !m.scanInFlight.CompareAndSwap(false, true) {
		m.logger.Info("scan already in progress, ignoring connect request")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.mu.Lock()
	if m.shutdown {
		m.mu.Unlock()
		cancel()
		m.scanInFlight.Store(false)
		return
	}
	m.scanCancel = cancel
	// Add under mu so a concurrent Shutdown cannot Wait between the
	// shutdown check and the Add.
	m.scanWG.Add(1)
	m.mu.Unlock()

	go func() {
		defer m.scanWG.Done()
		defer cancel()
		defer m.scanInFlight.Store(false)

		m.scan(ctx)

		m.emit(Event{Type: EventScanComplete})
		if m.DeviceCount() > 0 {
			m.emit(Event{Type: EventConnected})
		}
	}()
}

// scan visits definitions strictly sequentially, in registration order, so
// exclusion and duplicate checks observe a consistent registry snapshot. A
// failure for one definition is logged and does not abort the rest.
func (m *Manager) scan(ctx context.Context) {
	for _, def := range m.defs.All() {
		if ctx.Err() != nil {
			m.logger.Info("scan cancelled", "remaining_at", def.Name)
			return
		}
		if err := m.scanDefinition(ctx, def); err != nil {
			m.logger.Error("scan failed for definition", "definition", def.Name, "err", err)
		}
	}
}

func (m *Manager) scanDefinition(ctx context.Context, def *definition.DeviceDefinition) error {
	scanCtx, cancel := context.WithTimeout(ctx, m.opts.ScanTimeout)
	defer cancel()

	discovered, err := m.adapter.Scan(scanCtx, def.ServiceUUID)
	if err != nil {
		return fmt.Errorf("discover %s: %w", def.Name, err)
	}
	if len(discovered) == 0 {
		m.logger.Debug("no device found for definition", "definition", def.Name)
		return nil
	}

	for _, found := range discovered {
		addr := normalizeAddr(found.Address)

		m.mu.Lock()
		excluded := m.excluded[addr]
		_, dup := m.active[addr]
		m.mu.Unlock()

		if excluded {
			m.logger.Info("skipping excluded device", "definition", def.Name, "address", addr)
			continue
		}
		if dup {
			m.logger.Info("skipping already-connected device", "definition", def.Name, "address", addr)
			continue
		}

		// One device per definition per scan. Connect failures are logged
		// and dropped; there is no automatic retry.
		if err := m.connectAndRegister(ctx, def, found.Address); err != nil {
			return fmt.Errorf("connect %s: %w", found.Address, err)
		}
		return nil
	}
	return nil
}

// connectAndRegister runs the full device connect and, on success, adds the
// device to the active registry and announces it.
func (m *Manager) connectAndRegister(ctx context.Context, def *definition.DeviceDefinition, address string) error {
	dev := newDevice(m.adapter, def, address, m.devEvents, m.opts.Logger)
	if err := dev.Connect(ctx); err != nil {
		return err
	}

	addr := normalizeAddr(address)
	m.mu.Lock()
	if m.shutdown {
		m.mu.Unlock()
		dev.Disconnect()
		return ErrShutdown
	}
	if _, dup := m.active[addr]; dup {
		m.mu.Unlock()
		dev.Disconnect()
		return ErrDuplicateDevice
	}
	m.active[addr] = dev
	m.order = append(m.order, addr)
	m.mu.Unlock()

	m.emit(Event{Type: EventConnected, Address: addr})
	return nil
}

// ConnectByAddress connects directly to a known address using the named
// definition, bypassing discovery. The exclusion list and duplicate check
// still apply.
func (m *Manager) ConnectByAddress(ctx context.Context, address, definitionName string) error {
	def := m.defs.Get(definitionName)
	if def == nil {
		return fmt.Errorf("%w: %q", ErrUnknownDefinition, definitionName)
	}

	addr := normalizeAddr(address)
	m.mu.Lock()
	if m.shutdown {
		m.mu.Unlock()
		return ErrShutdown
	}
	if m.excluded[addr] {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDeviceExcluded, addr)
	}
	if _, dup := m.active[addr]; dup {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicateDevice, addr)
	}
	m.mu.Unlock()

	return m.connectAndRegister(ctx, def, address)
}

// Stop pauses input processing on every active device without tearing down
// connections. Resume undoes it.
func (m *Manager) Stop() {
	for _, dev := range m.Devices() {
		dev.pause()
	}
}

func (m *Manager) Resume() {
	for _, dev := range m.Devices() {
		dev.resume()
	}
}

// Shutdown is terminal: it cancels any in-flight scan and waits for it,
// stops the tick loop, disconnects every active device, clears all registry
// collections, and closes the outbound event channel. The manager cannot be
// restarted afterwards.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	if m.shutdown {
		m.mu.Unlock()
		return
	}
	m.shutdown = true
	scanCancel := m.scanCancel
	runCancel := m.runCancel
	m.mu.Unlock()

	if scanCancel != nil {
		scanCancel()
	}
	m.scanWG.Wait()

	if runCancel != nil {
		runCancel()
	}
	m.runWG.Wait()

	m.mu.Lock()
	devices := make([]*Device, 0, len(m.active))
	for _, dev := range m.active {
		devices = append(devices, dev)
	}
	m.active = make(map[string]*Device)
	m.order = nil
	m.pendingRemoval = nil
	m.excluded = make(map[string]bool)
	m.mu.Unlock()

	for _, dev := range devices {
		dev.Disconnect()
	}

	m.mu.Lock()
	m.closed = true
	close(m.events)
	m.mu.Unlock()

	m.logger.Info("manager shut down")
}

// emit publishes to the outbound channel without ever blocking; a full
// buffer drops the event.
func (m *Manager) emit(ev Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	select {
	case m.events <- ev:
	default:
		m.logger.Warn("event buffer full, dropping event", "type", ev.Type)
	}
}

// Devices returns the active devices in registration order.
func (m *Manager) Devices() []*Device {
	m.mu.Lock()
	defer m.mu.Unlock()
	devices := make([]*Device, 0, len(m.order))
	for _, addr := range m.order {
		if dev, ok := m.active[addr]; ok {
			devices = append(devices, dev)
		}
	}
	return devices
}

// DeviceCount returns the number of active devices.
func (m *Manager) DeviceCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

// ExcludedAddresses returns the exclusion list, sorted.
func (m *Manager) ExcludedAddresses() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	addrs := make([]string, 0, len(m.excluded))
	for addr := range m.excluded {
		addrs = append(addrs, addr)
	}
	sort.Strings(addrs)
	return addrs
}

// FindBySerial returns the active device with the given serial, or nil.
func (m *Manager) FindBySerial(serial string) *Device {
	for _, dev := range m.Devices() {
		if dev.Serial == serial {
			return dev
		}
	}
	return nil
}

// Statistics returns a telemetry snapshot of the registry.
func (m *Manager) Statistics() Statistics {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := Statistics{
		Total:        len(m.active),
		ByDefinition: make(map[string]int),
	}
	for _, dev := range m.active {
		stats.ByDefinition[dev.Name]++
	}
	return stats
}

// MapInputLabel validates an input name against the known definitions'
// inputs: the canonical label is returned when one matches, otherwise the
// input is echoed back. Kept for API symmetry with the sibling hardware
// backends, which perform real remapping here.
func (m *Manager) MapInputLabel(deviceName, inputName string) string {
	for _, def := range m.defs.All() {
		for i := range def.Inputs {
			if def.Inputs[i].Label == inputName {
				return def.Inputs[i].Label
			}
		}
	}
	return inputName
}
