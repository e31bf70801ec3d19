// SPDX-License-Identifier: MIT

// Package config loads and validates daemon configuration with the
// precedence ENV > file > defaults.
package config

import "time"

// Camera roles recognised by the cluster. Every node is exactly one of
// these; the set also defines the canonical fan-out order.
var Roles = []string{"left", "center", "right"}

// PeerSeed is a manually configured peer entry from the config file.
type PeerSeed struct {
	CameraID string `yaml:"camera_id"`
	Address  string `yaml:"address"`
	Position string `yaml:"position"`
}

// AppConfig is the fully resolved runtime configuration.
type AppConfig struct {
	// Node identity
	CameraID   string
	Position   string
	ListenAddr string
	DataDir    string
	SpoolDir   string

	// Cluster
	MasterRole       string
	MasterAddr       string // empty enables simulated clock sync
	Peers            []PeerSeed
	StartLead        time.Duration
	FanoutTimeout    time.Duration
	SelfTestTimeout  time.Duration
	LivenessInterval time.Duration
	StatusTimeout    time.Duration
	SyncInterval     time.Duration
	MaxOffsetMS      float64
	SessionHistory   int

	// Preflight thresholds
	MinFreeBytes int64
	MaxTempC     float64

	// Offload
	ServerBaseURL  string
	MaxRetries     int
	RetryBaseDelay time.Duration
	SettleWindow   time.Duration
	UploadTimeout  time.Duration

	// Logging
	LogLevel   string
	LogService string
	Version    string
}

// FileConfig mirrors the YAML config file. Pointer fields distinguish
// "absent" from "zero" so file values only override defaults when present.
type FileConfig struct {
	CameraID   *string `yaml:"camera_id"`
	Position   *string `yaml:"position"`
	ListenAddr *string `yaml:"listen_addr"`
	DataDir    *string `yaml:"data_dir"`
	SpoolDir   *string `yaml:"spool_dir"`

	MasterRole       *string    `yaml:"master_role"`
	MasterAddr       *string    `yaml:"master_addr"`
	Peers            []PeerSeed `yaml:"peers"`
	StartLead        *string    `yaml:"start_lead"`
	FanoutTimeout    *string    `yaml:"fanout_timeout"`
	SelfTestTimeout  *string    `yaml:"selftest_timeout"`
	LivenessInterval *string    `yaml:"liveness_interval"`
	StatusTimeout    *string    `yaml:"status_timeout"`
	SyncInterval     *string    `yaml:"sync_interval"`
	MaxOffsetMS      *float64   `yaml:"max_offset_ms"`
	SessionHistory   *int       `yaml:"session_history"`

	MinFreeBytes *int64   `yaml:"min_free_bytes"`
	MaxTempC     *float64 `yaml:"max_temp_c"`

	ServerBaseURL  *string `yaml:"server_base_url"`
	MaxRetries     *int    `yaml:"max_retries"`
	RetryBaseDelay *string `yaml:"retry_base_delay"`
	SettleWindow   *string `yaml:"settle_window"`
	UploadTimeout  *string `yaml:"upload_timeout"`

	LogLevel   *string `yaml:"log_level"`
	LogService *string `yaml:"log_service"`
}

func defaults() AppConfig {
	return AppConfig{
		CameraID:   "center",
		ListenAddr: ":8580",
		DataDir:    "/var/lib/camsyncd",
		SpoolDir:   "/var/lib/camsyncd/spool",

		MasterRole:       "center",
		StartLead:        2 * time.Second,
		FanoutTimeout:    10 * time.Second,
		SelfTestTimeout:  30 * time.Second,
		LivenessInterval: 2 * time.Second,
		StatusTimeout:    2 * time.Second,
		SyncInterval:     30 * time.Second,
		MaxOffsetMS:      5,
		SessionHistory:   20,

		MinFreeBytes: 10 << 30, // 10 GiB
		MaxTempC:     75,

		MaxRetries:     5,
		RetryBaseDelay: 2 * time.Second,
		SettleWindow:   5 * time.Second,
		UploadTimeout:  10 * time.Minute,

		LogLevel:   "info",
		LogService: "camsyncd",
	}
}

// IsMaster reports whether this node is the configured clock master.
func (c AppConfig) IsMaster() bool {
	return c.CameraID == c.MasterRole
}
