package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/flitebridge/flitebridge/internal/ble"
	"github.com/flitebridge/flitebridge/internal/ble/definition"
	"github.com/flitebridge/flitebridge/internal/config"
)

func main() {
	// CLI flags
	configPath := flag.String("config", "", "path to config file (default: ~/.config/flitebridge/config.yaml)")
	scanOnStart := flag.Bool("scan", true, "start a device scan immediately")
	flag.Parse()

	// Load configuration
	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("config validation: %v", err)
	}

	slog.SetLogLoggerLevel(config.ParseLogLevel(cfg.LogLevel))

	printBanner(cfg)

	// Load device definitions
	defs, err := definition.LoadDir(cfg.DefinitionsDir, slog.Default())
	if err != nil {
		log.Fatalf("definitions: %v", err)
	}
	if defs.HadLoadError() {
		log.Println("WARNING: some definition files failed to load, continuing with the rest")
	}
	log.Printf("Loaded %d device definition(s)", defs.Len())

	// Initialize the BLE adapter and manager
	adapter := ble.NewHardwareAdapter()
	if err := adapter.Enable(); err != nil {
		log.Fatalf("Failed to enable BLE adapter: %v\n\nEnsure Bluetooth is powered on and this process has permission to use it.", err)
	}

	manager := ble.NewManager(adapter, defs, ble.Options{
		TickInterval:     time.Duration(cfg.TickIntervalMS) * time.Millisecond,
		RescanAfterTicks: cfg.RescanAfterTicks,
		ScanTimeout:      time.Duration(cfg.ScanTimeoutMS) * time.Millisecond,
		Excluded:         cfg.ExcludedDevices,
	})
	manager.Start()
	log.Println("Device manager started")

	if *scanOnStart {
		log.Println("Scanning for devices...")
		manager.Connect()
	}

	// Signal handling for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Main event loop
	events := manager.Events()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				log.Println("Device manager stopped")
				return
			}

			switch ev.Type {
			case ble.EventInput:
				in := ev.Input
				log.Printf("Input: %s %s %s (%s)", in.Serial, in.DeviceLabel, in.Value, in.Kind)

			case ble.EventConnected:
				stats := manager.Statistics()
				log.Printf("Connected: %d device(s) active", stats.Total)

			case ble.EventScanComplete:
				log.Println("Scan complete")

			case ble.EventDeviceRemoved:
				log.Printf("Device removed: %s", ev.Address)
			}

		case sig := <-sigCh:
			log.Printf("Received %s, shutting down...", sig)
			manager.Shutdown()
			log.Println("Goodbye!")
			return
		}
	}
}

// loadConfig loads the config from the specified path, or falls back to
// the default config path, or uses built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}

	// Try default config path
	defaultPath := config.DefaultConfigPath()
	if _, err := os.Stat(defaultPath); err == nil {
		cfg, err := config.Load(defaultPath)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", defaultPath, err)
		}
		log.Printf("Config loaded from %s", defaultPath)
		return cfg, nil
	}

	// No config file yet; write a commented default so the next run has
	// one to edit.
	log.Println("No config file found, using defaults")
	written, werr := config.WriteDefault()
	if werr != nil {
		log.Printf("Could not write default config: %v", werr)
	} else if written != "" {
		log.Printf("Wrote default config to %s", written)
	}
	return config.Default(), nil
}

// printBanner displays the startup configuration summary.
func printBanner(cfg *config.Config) {
	fmt.Println("=== flitebridge ===")
	fmt.Printf("  Definitions: %s\n", cfg.DefinitionsDir)
	fmt.Printf("  Tick:        %dms (sweep every %d ticks)\n", cfg.TickIntervalMS, cfg.RescanAfterTicks)
	fmt.Printf("  Scan:        %dms per definition\n", cfg.ScanTimeoutMS)
	fmt.Printf("  Excluded:    %d device(s)\n", len(cfg.ExcludedDevices))
	fmt.Printf("  Log:         %s\n", cfg.LogLevel)
	fmt.Println("===================")
}
