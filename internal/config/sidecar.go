package config

import (
	"fmt"
	"os"
)

// SidecarConfig is the sidecar's runtime configuration, sourced entirely
// from the SIDECAR_ environment (spec.md §6) — the sidecar has no on-disk
// settings of its own.
type SidecarConfig struct {
	HTTPListen string
	TCPListen  string
	TargetTCP  string
	TargetUDS  string
}

// LoadSidecarConfig reads SIDECAR_HTTP_LISTEN, SIDECAR_TCP_LISTEN, and
// exactly one of SIDECAR_TARGET_TCP or SIDECAR_TARGET_UDS.
func LoadSidecarConfig() (*SidecarConfig, error) {
	cfg := &SidecarConfig{
		HTTPListen: os.Getenv("SIDECAR_HTTP_LISTEN"),
		TCPListen:  os.Getenv("SIDECAR_TCP_LISTEN"),
		TargetTCP:  os.Getenv("SIDECAR_TARGET_TCP"),
		TargetUDS:  os.Getenv("SIDECAR_TARGET_UDS"),
	}

	if cfg.HTTPListen == "" {
		cfg.HTTPListen = ":8080"
	}
	if cfg.TCPListen == "" {
		cfg.TCPListen = ":8888"
	}

	if cfg.TargetTCP == "" && cfg.TargetUDS == "" {
		return nil, fmt.Errorf("exactly one of SIDECAR_TARGET_TCP or SIDECAR_TARGET_UDS must be set")
	}
	if cfg.TargetTCP != "" && cfg.TargetUDS != "" {
		return nil, fmt.Errorf("only one of SIDECAR_TARGET_TCP or SIDECAR_TARGET_UDS may be set, got both")
	}

	return cfg, nil
}
