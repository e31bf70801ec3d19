// SPDX-License-Identifier: MIT

package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Loader handles configuration loading with precedence ENV > File > Defaults.
type Loader struct {
	configPath string
	version    string
}

// NewLoader creates a new configuration loader.
func NewLoader(configPath, version string) *Loader {
	return &Loader{configPath: configPath, version: version}
}

// Load resolves the configuration: defaults, then file values, then
// environment overrides, then validation.
func (l *Loader) Load() (AppConfig, error) {
	cfg := defaults()
	cfg.Version = l.version

	if l.configPath != "" {
		fc, err := l.loadFile(l.configPath)
		if err != nil {
			return AppConfig{}, err
		}
		mergeFile(&cfg, fc)
	}

	mergeEnv(&cfg)

	if err := Validate(cfg); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

func (l *Loader) loadFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var fc FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&fc); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return &fc, nil
}

func mergeFile(cfg *AppConfig, fc *FileConfig) {
	setString(&cfg.CameraID, fc.CameraID)
	setString(&cfg.Position, fc.Position)
	setString(&cfg.ListenAddr, fc.ListenAddr)
	setString(&cfg.DataDir, fc.DataDir)
	setString(&cfg.SpoolDir, fc.SpoolDir)

	setString(&cfg.MasterRole, fc.MasterRole)
	setString(&cfg.MasterAddr, fc.MasterAddr)
	if len(fc.Peers) > 0 {
		cfg.Peers = append([]PeerSeed(nil), fc.Peers...)
	}
	setDuration(&cfg.StartLead, fc.StartLead)
	setDuration(&cfg.FanoutTimeout, fc.FanoutTimeout)
	setDuration(&cfg.SelfTestTimeout, fc.SelfTestTimeout)
	setDuration(&cfg.LivenessInterval, fc.LivenessInterval)
	setDuration(&cfg.StatusTimeout, fc.StatusTimeout)
	setDuration(&cfg.SyncInterval, fc.SyncInterval)
	if fc.MaxOffsetMS != nil {
		cfg.MaxOffsetMS = *fc.MaxOffsetMS
	}
	if fc.SessionHistory != nil {
		cfg.SessionHistory = *fc.SessionHistory
	}

	if fc.MinFreeBytes != nil {
		cfg.MinFreeBytes = *fc.MinFreeBytes
	}
	if fc.MaxTempC != nil {
		cfg.MaxTempC = *fc.MaxTempC
	}

	setString(&cfg.ServerBaseURL, fc.ServerBaseURL)
	if fc.MaxRetries != nil {
		cfg.MaxRetries = *fc.MaxRetries
	}
	setDuration(&cfg.RetryBaseDelay, fc.RetryBaseDelay)
	setDuration(&cfg.SettleWindow, fc.SettleWindow)
	setDuration(&cfg.UploadTimeout, fc.UploadTimeout)

	setString(&cfg.LogLevel, fc.LogLevel)
	setString(&cfg.LogService, fc.LogService)
}

func mergeEnv(cfg *AppConfig) {
	cfg.CameraID = ParseString("CAMSYNC_CAMERA_ID", cfg.CameraID)
	cfg.Position = ParseString("CAMSYNC_POSITION", cfg.Position)
	cfg.ListenAddr = ParseString("CAMSYNC_LISTEN", cfg.ListenAddr)
	cfg.DataDir = ParseString("CAMSYNC_DATA", cfg.DataDir)
	cfg.SpoolDir = ParseString("CAMSYNC_SPOOL", cfg.SpoolDir)

	cfg.MasterRole = ParseString("CAMSYNC_MASTER_ROLE", cfg.MasterRole)
	cfg.MasterAddr = ParseString("CAMSYNC_MASTER_ADDR", cfg.MasterAddr)
	cfg.StartLead = ParseDuration("CAMSYNC_START_LEAD", cfg.StartLead)
	cfg.FanoutTimeout = ParseDuration("CAMSYNC_FANOUT_TIMEOUT", cfg.FanoutTimeout)
	cfg.SelfTestTimeout = ParseDuration("CAMSYNC_SELFTEST_TIMEOUT", cfg.SelfTestTimeout)
	cfg.LivenessInterval = ParseDuration("CAMSYNC_LIVENESS_INTERVAL", cfg.LivenessInterval)
	cfg.StatusTimeout = ParseDuration("CAMSYNC_STATUS_TIMEOUT", cfg.StatusTimeout)
	cfg.SyncInterval = ParseDuration("CAMSYNC_SYNC_INTERVAL", cfg.SyncInterval)
	cfg.MaxOffsetMS = ParseFloat("CAMSYNC_MAX_OFFSET_MS", cfg.MaxOffsetMS)
	cfg.SessionHistory = ParseInt("CAMSYNC_SESSION_HISTORY", cfg.SessionHistory)

	cfg.MinFreeBytes = ParseInt64("CAMSYNC_MIN_FREE_BYTES", cfg.MinFreeBytes)
	cfg.MaxTempC = ParseFloat("CAMSYNC_MAX_TEMP_C", cfg.MaxTempC)

	cfg.ServerBaseURL = ParseString("CAMSYNC_SERVER_URL", cfg.ServerBaseURL)
	cfg.MaxRetries = ParseInt("CAMSYNC_MAX_RETRIES", cfg.MaxRetries)
	cfg.RetryBaseDelay = ParseDuration("CAMSYNC_RETRY_BASE_DELAY", cfg.RetryBaseDelay)
	cfg.SettleWindow = ParseDuration("CAMSYNC_SETTLE_WINDOW", cfg.SettleWindow)
	cfg.UploadTimeout = ParseDuration("CAMSYNC_UPLOAD_TIMEOUT", cfg.UploadTimeout)

	cfg.LogLevel = ParseString("CAMSYNC_LOG_LEVEL", cfg.LogLevel)
	cfg.LogService = ParseString("CAMSYNC_LOG_SERVICE", cfg.LogService)
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

// Durations are written as Go duration strings in YAML ("2s", "500ms").
// Invalid values are ignored here and caught by Validate when they leave a
// required field at an unusable zero.
func setDuration(dst *time.Duration, src *string) {
	if src == nil {
		return
	}
	if d, err := time.ParseDuration(*src); err == nil {
		*dst = d
	}
}
