package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	assert.Equal(t, 10, cfg.UpdateThreadTimeout)
	assert.Equal(t, 300, cfg.TempReservationTime)
	assert.Equal(t, 10*time.Second, cfg.RefreshInterval())
	assert.Equal(t, 300*time.Second, cfg.TempReservation())
}

func TestLoad_FillsOmittedOptionsWithDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sched.yaml")
	yaml := "size: 4\nhostfile: /etc/sched/hosts\nsimulation_mode: true\n"
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Size)
	assert.Equal(t, "/etc/sched/hosts", cfg.Hostfile)
	assert.True(t, cfg.SimulationMode)
	assert.False(t, cfg.RunRemote)
	assert.Equal(t, 10, cfg.UpdateThreadTimeout, "omitted option falls back to default")
	assert.Equal(t, 300, cfg.TempReservationTime, "omitted option falls back to default")
}

func TestLoad_HonorsExplicitOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sched.yaml")
	yaml := "UPDATE_THREAD_TIMEOUT: 5\nTEMP_RESERVATION_TIME: 600\nrun_remote: true\n"
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.UpdateThreadTimeout)
	assert.Equal(t, 600, cfg.TempReservationTime)
	assert.True(t, cfg.RunRemote)
	assert.Equal(t, 5*time.Second, cfg.RefreshInterval())
	assert.Equal(t, 600*time.Second, cfg.TempReservation())
}

func TestLoad_MissingFileErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.Error(t, err)
}

func TestLoad_ZeroOrNegativeTimeoutsFallBackToDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sched.yaml")
	yaml := "UPDATE_THREAD_TIMEOUT: 0\nTEMP_RESERVATION_TIME: -1\n"
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.UpdateThreadTimeout)
	assert.Equal(t, 300, cfg.TempReservationTime)
}

func TestLoadHostfile_SkipsBlankLinesAndComments(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hostfile")
	content := "vs1\n\n# a comment\nvs2\n   \nvs3\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	names, err := LoadHostfile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"vs1", "vs2", "vs3"}, names)
}

func TestLoadHostfile_MissingFileErrors(t *testing.T) {
	_, err := LoadHostfile(filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
}
