// Package ble implements the Bluetooth Low Energy backend of the bridge: a
// registry of connected input devices, a per-device connection state machine,
// and decoding of characteristic notifications into semantic input events
// using data-driven device definitions.
package ble

import (
	"context"
	"errors"
)

var (
	// ErrServiceNotFound indicates the peripheral does not expose the
	// definition's primary service.
	ErrServiceNotFound = errors.New("ble: service not found")
	// ErrCharacteristicNotFound indicates the service does not expose the
	// definition's notify characteristic.
	ErrCharacteristicNotFound = errors.New("ble: characteristic not found")
)

// Characteristic is a subscribable GATT characteristic on a connected
// peripheral.
type Characteristic interface {
	// Subscribe registers a callback for value-changed notifications and
	// enables notification delivery. The callback runs on whatever goroutine
	// the platform BLE stack delivers notifications on.
	Subscribe(callback func(data []byte)) error
	// Unsubscribe disables notification delivery.
	Unsubscribe() error
}

// DiscoveredDevice is one peripheral seen during a scan. Address is the
// platform identifier: a MAC address on Linux/Windows, a CoreBluetooth UUID
// on macOS. It is treated as opaque throughout.
type DiscoveredDevice struct {
	Name    string
	Address string
	RSSI    int
}

// Connection is an active GATT connection to a peripheral.
type Connection interface {
	// DiscoverCharacteristic resolves the primary service by serviceUUID,
	// then the characteristic by charUUID within it. Returns an error
	// matching ErrServiceNotFound or ErrCharacteristicNotFound when either
	// lookup yields nothing.
	DiscoverCharacteristic(serviceUUID, charUUID string) (Characteristic, error)
	// Disconnect releases the connection.
	Disconnect() error
	// OnDisconnect registers a callback invoked when the connection drops.
	OnDisconnect(callback func())
}

// Adapter abstracts the platform BLE stack for testing.
type Adapter interface {
	// Enable powers on the BLE adapter.
	Enable() error
	// Scan discovers peripherals advertising the given service UUID until
	// ctx is done.
	Scan(ctx context.Context, serviceUUID string) ([]DiscoveredDevice, error)
	// Connect establishes a GATT connection to the device with the given
	// platform address.
	Connect(ctx context.Context, address string) (Connection, error)
}
