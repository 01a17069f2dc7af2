// Package config loads the hub and sidecar configuration from the process
// environment, layered over an optional on-disk TOML file for the hub's
// persistent settings.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/BurntSushi/toml"
)

// Config is the hub's runtime configuration, sourced from the HUB_
// environment with an on-disk settings.toml for values worth persisting
// across restarts (spec.md §6).
type Config struct {
	WorkshopName      string `toml:"workshop_name"`
	WorkshopNamespace string `toml:"workshop_namespace"`
	WorkshopTTLSeconds int   `toml:"workshop_ttl_seconds"`
	WorkshopIdleSeconds int  `toml:"workshop_idle_seconds"`
	WorkshopImage     string `toml:"workshop_image"`
	WorkshopPort      int32  `toml:"workshop_port"`
	WorkshopPodLimit  int    `toml:"workshop_pod_limit"`
	SidecarImageTag   string `toml:"sidecar_image"`
	CPURequest        string `toml:"cpu_request"`
	CPULimit          string `toml:"cpu_limit"`
	MemRequest        string `toml:"mem_request"`
	MemLimit          string `toml:"mem_limit"`

	DataDir                       string
	LogFormat                     string
	ProfilesFile                  string
	ReadinessTimeoutSeconds       int
	ReapIntervalSeconds           int
	HealthProbeTimeoutSeconds     int
	ListenAddr                    string
}

func defaults() *Config {
	return &Config{
		WorkshopName:              "workshop",
		WorkshopNamespace:         "default",
		WorkshopTTLSeconds:        28800,
		WorkshopIdleSeconds:       3600,
		WorkshopImage:             "nginx",
		WorkshopPort:              80,
		WorkshopPodLimit:          100,
		SidecarImageTag:           "ghcr.io/codespacesh/workshop-sidecar:latest",
		CPURequest:                "100m",
		CPULimit:                 "500m",
		MemRequest:                "128Mi",
		MemLimit:                 "512Mi",
		DataDir:                   "./data",
		LogFormat:                 "json",
		ProfilesFile:              "./profiles.yaml",
		ReadinessTimeoutSeconds:   180,
		ReapIntervalSeconds:       300,
		HealthProbeTimeoutSeconds: 5,
		ListenAddr:                ":8080",
	}
}

// Load reads settings.toml from dataDir (if present), then applies HUB_
// environment variable overrides on top, matching the teacher's
// file-then-env layering.
func Load(dataDir string) (*Config, error) {
	cfg := defaults()
	if dataDir != "" {
		cfg.DataDir = dataDir
	}

	path := filepath.Join(cfg.DataDir, "settings.toml")
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}

	applyStringEnv(&cfg.WorkshopName, "HUB_WORKSHOP_NAME")
	applyStringEnv(&cfg.WorkshopNamespace, "HUB_WORKSHOP_NAMESPACE")
	applyStringEnv(&cfg.WorkshopImage, "HUB_WORKSHOP_IMAGE")
	applyStringEnv(&cfg.SidecarImageTag, "HUB_SIDECAR_IMAGE")
	applyStringEnv(&cfg.CPURequest, "HUB_WORKSHOP_CPU_REQUEST")
	applyStringEnv(&cfg.CPULimit, "HUB_WORKSHOP_CPU_LIMIT")
	applyStringEnv(&cfg.MemRequest, "HUB_WORKSHOP_MEM_REQUEST")
	applyStringEnv(&cfg.MemLimit, "HUB_WORKSHOP_MEM_LIMIT")
	applyStringEnv(&cfg.DataDir, "HUB_DATA_DIR")
	applyStringEnv(&cfg.LogFormat, "HUB_LOG_FORMAT")
	applyStringEnv(&cfg.ProfilesFile, "HUB_PROFILES_FILE")
	applyStringEnv(&cfg.ListenAddr, "HUB_LISTEN_ADDR")

	if err := applyIntEnv(&cfg.WorkshopTTLSeconds, "HUB_WORKSHOP_TTL_SECONDS"); err != nil {
		return nil, err
	}
	if err := applyIntEnv(&cfg.WorkshopIdleSeconds, "HUB_WORKSHOP_IDLE_SECONDS"); err != nil {
		return nil, err
	}
	if err := applyIntEnv(&cfg.WorkshopPodLimit, "HUB_WORKSHOP_POD_LIMIT"); err != nil {
		return nil, err
	}
	if err := applyIntEnv(&cfg.ReadinessTimeoutSeconds, "HUB_READINESS_TIMEOUT_SECONDS"); err != nil {
		return nil, err
	}
	if err := applyIntEnv(&cfg.ReapIntervalSeconds, "HUB_REAP_INTERVAL_SECONDS"); err != nil {
		return nil, err
	}
	if err := applyIntEnv(&cfg.HealthProbeTimeoutSeconds, "HUB_HEALTH_PROBE_TIMEOUT_SECONDS"); err != nil {
		return nil, err
	}

	if port, ok := os.LookupEnv("HUB_WORKSHOP_PORT"); ok {
		p, err := strconv.ParseInt(port, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("parsing HUB_WORKSHOP_PORT: %w", err)
		}
		cfg.WorkshopPort = int32(p)
	}

	return cfg, nil
}

// SidecarImage returns the image used for the per-pod activity sidecar.
func (c *Config) SidecarImage() string {
	return c.SidecarImageTag
}

func applyStringEnv(field *string, key string) {
	if v := os.Getenv(key); v != "" {
		*field = v
	}
}

func applyIntEnv(field *int, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", key, err)
	}
	*field = n
	return nil
}

// Save persists Config to dataDir/settings.toml. Every exported field is
// written, including those without a toml tag, which are keyed by their
// Go field name.
func (c *Config) Save() error {
	if err := os.MkdirAll(c.DataDir, 0o755); err != nil {
		return fmt.Errorf("creating data dir: %w", err)
	}

	path := filepath.Join(c.DataDir, "settings.toml")
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()

	enc := toml.NewEncoder(f)
	if err := enc.Encode(c); err != nil {
		return fmt.Errorf("encoding settings.toml: %w", err)
	}
	return nil
}
