package cli

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVersionCommand(t *testing.T) {
	cmd := NewRootCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"version"})

	err := cmd.Execute()
	require.NoError(t, err)
	require.NotEmpty(t, buf.String())
}

func TestDoctorWithExampleConfig(t *testing.T) {
	cmd := NewRootCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	configPath, err := filepath.Abs(filepath.Join("..", "..", "configs", "config.example.yaml"))
	require.NoError(t, err)
	require.FileExists(t, configPath)

	cmd.SetArgs([]string{"doctor", "--config", configPath})

	err = cmd.Execute()
	require.NoError(t, err)
	require.Contains(t, buf.String(), "Config OK")
	require.Contains(t, buf.String(), "Orchestrator model: orchestrator")
}

func TestDaemonURL(t *testing.T) {
	require.Equal(t, "http://localhost:4075", daemonURL(":4075"))
	require.Equal(t, "http://10.0.0.5:4075", daemonURL("10.0.0.5:4075"))
	require.Equal(t, "https://bench.example.com", daemonURL("https://bench.example.com"))
}
