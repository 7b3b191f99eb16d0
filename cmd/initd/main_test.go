package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/initcore/initd/internal/buildinfo"
	"github.com/initcore/initd/internal/config"
	"github.com/initcore/initd/internal/daemon"
)

func TestConfigLoadAndApplyFlagsMatchesCLISurface(t *testing.T) {
	confDir := t.TempDir()
	cfg, err := config.Load(confDir)
	require.NoError(t, err)

	cfg.ApplyFlags(confDir, "", "log", false, false, false, false, 0, false, "boot")

	assert.Equal(t, confDir, cfg.ConfDir)
	assert.Equal(t, "log", cfg.DefaultConsole)
	assert.Equal(t, "boot", cfg.StartupEvent)
	assert.NoError(t, cfg.Validate())
}

func TestConfigLoadMissingFileStillValidates(t *testing.T) {
	confDir := filepath.Join(t.TempDir(), "missing")
	cfg, err := config.Load(confDir)
	require.NoError(t, err)
	cfg.ApplyFlags(confDir, "", "", false, false, false, false, 0, false, "startup")
	assert.NoError(t, cfg.Validate())
}

func TestRestartWithoutStateFDFailsValidation(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.ApplyFlags(cfg.ConfDir, "", "", false, false, false, true, 0, false, "startup")
	err := cfg.Validate()
	assert.Error(t, err, "--restart without a state fd should fail validation")
}

func TestVersionOutputIsNonEmpty(t *testing.T) {
	version := buildinfo.String()
	assert.NotEmpty(t, version)
}

func TestDaemonRunRejectsInvalidConfig(t *testing.T) {
	ctx := context.Background()
	err := daemon.Run(ctx, config.Config{})
	assert.Error(t, err, "daemon.Run should reject a config that fails Validate")
}

func TestNoLogSkipsLogDirRequirement(t *testing.T) {
	confDir := t.TempDir()
	dbDir := t.TempDir()
	runDir := t.TempDir()

	cfg := config.DefaultConfig()
	cfg.ConfDir = confDir
	cfg.NoLog = true
	cfg.LogDir = ""
	cfg.RunDir = runDir
	cfg.SocketPath = filepath.Join(runDir, "initctl.sock")
	cfg.DBPath = filepath.Join(dbDir, "audit.db")
	cfg.StartupEvent = "startup"

	assert.NoError(t, cfg.Validate())
	_, err := os.Stat(cfg.LogDir)
	assert.True(t, os.IsNotExist(err) || cfg.LogDir == "")
}
