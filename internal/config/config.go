// Package config holds meshnode's runtime configuration, populated from
// command-line flags the way cmd/dplaned/main.go populates its own flag
// set — no config-file layer exists here either.
package config

import "time"

// Config holds the options enumerated in spec.md §6.
type Config struct {
	MeshInterfaceName   string
	ListenPort          int
	DBPath              string
	TickInterval        time.Duration
	SlidingWindow       time.Duration
	PerRoundTimeout     time.Duration
	PerRequestTimeout   time.Duration
	MaxBatchSize        int
	MaxParallelPeerSyncs int
}

// Default returns the configuration defaults from spec.md §6.
func Default() Config {
	return Config{
		MeshInterfaceName:    "bat0",
		ListenPort:           80,
		DBPath:               "/var/lib/meshnode/meshnode.db",
		TickInterval:         2 * time.Second,
		SlidingWindow:        30 * time.Minute,
		PerRoundTimeout:      30 * time.Second,
		PerRequestTimeout:    10 * time.Second,
		MaxBatchSize:         1000,
		MaxParallelPeerSyncs: 64,
	}
}
