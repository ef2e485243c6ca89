package ble

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/flitebridge/flitebridge/internal/ble/definition"
)

// ErrAlreadyConnected indicates Connect was called twice on one Device.
// A Device instance connects at most once; retrying requires a new instance.
var ErrAlreadyConnected = errors.New("ble: device already connected")

// Device owns one physical connection: it connects, subscribes to the
// definition's notify characteristic, decodes notifications into input
// events, and reports them on the manager's inbound channel. Its mutable
// state is only touched by its own Connect/Disconnect/notification paths.
type Device struct {
	def     *definition.DeviceDefinition
	adapter Adapter
	logger  *slog.Logger
	events  chan<- deviceEvent

	// Address is the platform BLE identifier; Serial the derived display
	// string; Name is copied from the definition.
	Address string
	Serial  string
	Name    string

	mu         sync.Mutex
	conn       Connection
	char       Characteristic
	connecting bool
	connected  bool
	lost       bool // link dropped at least once, even during setup
	paused     bool
	signaled   bool // disconnect event already sent
}

func newDevice(adapter Adapter, def *definition.DeviceDefinition, address string, events chan<- deviceEvent, logger *slog.Logger) *Device {
	return &Device{
		def:     def,
		adapter: adapter,
		logger:  logger.With("device", def.Name, "address", address),
		events:  events,
		Address: address,
		Serial:  deriveSerial(def.Name, address),
		Name:    def.Name,
	}
}

// deriveSerial builds the display serial from the definition name and the
// tail of the platform address.
func deriveSerial(name, address string) string {
	tail := strings.NewReplacer(":", "", "-", "").Replace(strings.ToUpper(address))
	if len(tail) > 6 {
		tail = tail[len(tail)-6:]
	}
	return name + "/" + tail
}

// Connect acquires the GATT connection, resolves the definition's service
// and characteristic, and enables notifications. Only on full success does
// the device become connected; any failure along the path leaves it
// disconnected and is returned to the caller.
func (d *Device) Connect(ctx context.Context) error {
	d.mu.Lock()
	if d.connecting || d.connected {
		d.mu.Unlock()
		return ErrAlreadyConnected
	}
	d.connecting = true
	d.mu.Unlock()

	conn, err := d.adapter.Connect(ctx, d.Address)
	if err != nil {
		d.clearConnecting()
		return fmt.Errorf("ble: connect %s: %w", d.Serial, err)
	}

	char, err := conn.DiscoverCharacteristic(d.def.ServiceUUID, d.def.CharacteristicUUID)
	if err != nil {
		_ = conn.Disconnect()
		d.clearConnecting()
		return fmt.Errorf("ble: resolve %s: %w", d.Serial, err)
	}

	// Register the disconnect callback before subscribing, so a link that
	// dies mid-setup is always observed.
	conn.OnDisconnect(d.onConnectionLost)

	if err := char.Subscribe(d.handleNotification); err != nil {
		_ = conn.Disconnect()
		d.clearConnecting()
		return fmt.Errorf("ble: subscribe %s: %w", d.Serial, err)
	}

	d.mu.Lock()
	if d.lost {
		// The link dropped while setup was still running. Fail the attempt
		// instead of registering a connection that no longer exists.
		d.connecting = false
		d.mu.Unlock()
		_ = char.Unsubscribe()
		_ = conn.Disconnect()
		return fmt.Errorf("ble: connect %s: connection lost during setup", d.Serial)
	}
	d.conn = conn
	d.char = char
	d.connecting = false
	d.connected = true
	d.mu.Unlock()

	d.logger.Info("device connected", "serial", d.Serial)
	return nil
}

func (d *Device) clearConnecting() {
	d.mu.Lock()
	d.connecting = false
	d.mu.Unlock()
}

// IsConnected reports whether the device currently holds a live connection.
func (d *Device) IsConnected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connected
}

// pause stops input processing without dropping the connection; resume
// undoes it.
func (d *Device) pause() {
	d.mu.Lock()
	d.paused = true
	d.mu.Unlock()
}

func (d *Device) resume() {
	d.mu.Lock()
	d.paused = false
	d.mu.Unlock()
}

// handleNotification runs on the platform BLE stack's delivery goroutine.
// Empty payloads are ignored; unrecognized codes are logged and dropped,
// since partially-modeled hardware emits codes the definition does not know.
func (d *Device) handleNotification(data []byte) {
	if len(data) == 0 {
		return
	}
	d.mu.Lock()
	paused := d.paused
	d.mu.Unlock()
	if paused {
		return
	}

	code := hexCode(data)
	input := d.def.FindInputByHexCode(code)
	if input == nil {
		d.logger.Debug("unrecognized hex code", "code", code)
		return
	}

	var value InputValue
	switch d.def.EventTypeForHexCode(code) {
	case definition.EventPress:
		value = ValuePress
	case definition.EventRelease:
		value = ValueRelease
	case definition.EventIncrement:
		value = ValueRight
	case definition.EventDecrement:
		value = ValueLeft
	default:
		d.logger.Debug("hex code matches no directional field", "code", code, "input", input.Label)
		return
	}

	d.emit(deviceEvent{
		address: d.Address,
		input: &InputEvent{
			Serial:      d.Serial,
			DeviceName:  d.Name,
			DeviceID:    input.Label,
			DeviceLabel: input.Label,
			Kind:        input.Type,
			Value:       value,
		},
	})
}

// hexCode renders a notification payload as an uppercase hex string: two
// digits for a single byte, the concatenated hex of all bytes otherwise.
func hexCode(data []byte) string {
	if len(data) == 1 {
		return fmt.Sprintf("%02X", data[0])
	}
	return strings.ToUpper(hex.EncodeToString(data))
}

// emit never blocks waiting for a consumer; a full channel drops the event.
func (d *Device) emit(ev deviceEvent) {
	select {
	case d.events <- ev:
	default:
		d.logger.Warn("device event channel full, dropping event")
	}
}

// onConnectionLost fires when the platform stack reports the link dropped.
// It only records the loss and signals upward; registry removal happens on
// the manager's next tick. The loss is recorded even when it arrives before
// Connect finishes, so Connect fails the attempt instead of registering a
// dead link.
func (d *Device) onConnectionLost() {
	d.mu.Lock()
	d.lost = true
	wasConnected := d.connected
	d.connected = false
	d.conn = nil
	d.char = nil
	already := d.signaled
	if wasConnected {
		d.signaled = true
	}
	d.mu.Unlock()

	if !wasConnected || already {
		return
	}
	d.logger.Info("device connection lost", "serial", d.Serial)
	d.emit(deviceEvent{address: d.Address, disconnected: true})
}

// Disconnect unsubscribes and releases the connection. Idempotent: calling
// it on an already-disconnected device is a no-op. Teardown errors are
// logged, not propagated, since disconnect commonly runs during error
// recovery.
func (d *Device) Disconnect() {
	d.mu.Lock()
	conn := d.conn
	char := d.char
	wasConnected := d.connected
	already := d.signaled
	d.conn = nil
	d.char = nil
	d.connected = false
	if wasConnected {
		d.signaled = true
	}
	d.mu.Unlock()

	if !wasConnected {
		return
	}

	if char != nil {
		if err := char.Unsubscribe(); err != nil {
			d.logger.Debug("unsubscribe failed", "err", err)
		}
	}
	if conn != nil {
		if err := conn.Disconnect(); err != nil {
			d.logger.Debug("disconnect failed", "err", err)
		}
	}
	if !already {
		d.emit(deviceEvent{address: d.Address, disconnected: true})
	}
	d.logger.Info("device disconnected", "serial", d.Serial)
}
