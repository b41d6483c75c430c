// Package config loads process configuration for both FleetWatch
// binaries from environment variables, layering a local .env file
// (github.com/joho/godotenv) under the process environment exactly as
// the teacher's cmd/server does before cli.App parses its flags.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/volaticloud/fleetwatch/internal/wire"
)

// LoadDotEnv loads a .env file from the current directory into the
// process environment, if one exists. A missing file is not an error —
// production deployments set the environment directly.
func LoadDotEnv() {
	_ = godotenv.Load()
}

// Defaults for the intervals and thresholds spec.md §6 names.
const (
	DefaultAgentScrapeInterval       = 30 * time.Second
	DefaultHeartbeatScanInterval     = 30 * time.Second
	DefaultClientHeartbeatThreshold  = 120 * time.Second
	DefaultMachineHeartbeatThreshold = 120 * time.Second
	DefaultNodeHeartbeatThreshold    = 300 * time.Second
)

// DurationSecsEnv reads key as a whole number of seconds, returning
// fallback if the variable is unset or not a valid integer.
func DurationSecsEnv(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	secs, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return time.Duration(secs) * time.Second
}

// StringEnv reads key, returning fallback if it is unset or empty.
func StringEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// LoadOrCreateMachineID reads the hex-encoded MachineID stored at path,
// generating and persisting a fresh one on first run. spec.md §2 calls
// this value "generated once per installed agent" — this is that
// generation point.
func LoadOrCreateMachineID(path string) (wire.MachineID, error) {
	raw, err := os.ReadFile(path)
	if err == nil {
		var id wire.MachineID
		if unmarshalErr := id.UnmarshalJSON([]byte(`"` + string(raw) + `"`)); unmarshalErr != nil {
			return wire.MachineID{}, fmt.Errorf("config: parsing machine id file %s: %w", path, unmarshalErr)
		}
		return id, nil
	}
	if !os.IsNotExist(err) {
		return wire.MachineID{}, fmt.Errorf("config: reading machine id file %s: %w", path, err)
	}

	id := wire.NewMachineID()
	if writeErr := os.WriteFile(path, []byte(id.String()), 0o600); writeErr != nil {
		return wire.MachineID{}, fmt.Errorf("config: persisting machine id file %s: %w", path, writeErr)
	}
	return id, nil
}
