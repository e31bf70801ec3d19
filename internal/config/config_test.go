package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	loader := NewLoader("", "v1.2.3")
	cfg, err := loader.Load()
	require.NoError(t, err)

	assert.Equal(t, "center", cfg.CameraID)
	assert.Equal(t, "center", cfg.MasterRole)
	assert.True(t, cfg.IsMaster())
	assert.Equal(t, 2*time.Second, cfg.StartLead)
	assert.Equal(t, 5.0, cfg.MaxOffsetMS)
	assert.Equal(t, 5, cfg.MaxRetries)
	assert.Equal(t, int64(10<<30), cfg.MinFreeBytes)
	assert.Equal(t, "v1.2.3", cfg.Version)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
camera_id: left
master_role: center
master_addr: "cam-center.local:8580"
start_lead: 3s
max_offset_ms: 8
peers:
  - camera_id: center
    address: "cam-center.local:8580"
    position: "halfway line"
  - camera_id: right
    address: "cam-right.local:8580"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := NewLoader(path, "").Load()
	require.NoError(t, err)

	assert.Equal(t, "left", cfg.CameraID)
	assert.False(t, cfg.IsMaster())
	assert.Equal(t, 3*time.Second, cfg.StartLead)
	assert.Equal(t, 8.0, cfg.MaxOffsetMS)
	require.Len(t, cfg.Peers, 2)
	assert.Equal(t, "halfway line", cfg.Peers[0].Position)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("camera_id: left\n"), 0o600))

	t.Setenv("CAMSYNC_CAMERA_ID", "right")
	t.Setenv("CAMSYNC_MAX_OFFSET_MS", "2.5")

	cfg, err := NewLoader(path, "").Load()
	require.NoError(t, err)
	assert.Equal(t, "right", cfg.CameraID)
	assert.Equal(t, 2.5, cfg.MaxOffsetMS)
}

func TestLoadRejectsUnknownFileKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("cmaera_id: left\n"), 0o600))

	_, err := NewLoader(path, "").Load()
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*AppConfig)
		wantErr error
	}{
		{
			name:   "defaults pass",
			mutate: func(c *AppConfig) {},
		},
		{
			name:    "bad camera id",
			mutate:  func(c *AppConfig) { c.CameraID = "goal" },
			wantErr: ErrInvalidCameraID,
		},
		{
			name:    "bad master role",
			mutate:  func(c *AppConfig) { c.MasterRole = "" },
			wantErr: ErrInvalidMaster,
		},
		{
			name: "duplicate peer",
			mutate: func(c *AppConfig) {
				c.CameraID = "center"
				c.Peers = []PeerSeed{
					{CameraID: "left", Address: "a:1"},
					{CameraID: "left", Address: "b:1"},
				}
			},
			wantErr: ErrDuplicatePeer,
		},
		{
			name: "peer is self",
			mutate: func(c *AppConfig) {
				c.Peers = []PeerSeed{{CameraID: c.CameraID, Address: "a:1"}}
			},
			wantErr: ErrSelfPeer,
		},
		{
			name:    "zero max offset",
			mutate:  func(c *AppConfig) { c.MaxOffsetMS = 0 },
			wantErr: ErrBadThreshold,
		},
		{
			name:    "zero retries",
			mutate:  func(c *AppConfig) { c.MaxRetries = 0 },
			wantErr: ErrBadThreshold,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaults()
			tt.mutate(&cfg)
			err := Validate(cfg)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}
