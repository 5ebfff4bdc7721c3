package setup

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegister_NewFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Claude", "claude_desktop_config.json")

	written, err := Register(Options{
		ConfigPath: path,
		BinaryPath: "/usr/local/bin/mcp-server",
		DataDir:    "/data/yuanqi",
	})
	require.NoError(t, err)
	assert.Equal(t, path, written)

	config, err := LoadClientConfig(path)
	require.NoError(t, err)
	entry, ok := config.MCPServers[ServerName]
	require.True(t, ok)
	assert.Equal(t, "/usr/local/bin/mcp-server", entry.Command)
	assert.Equal(t, "/data/yuanqi", entry.Env[DataDirEnv])
	assert.NotContains(t, entry.Env, "YUANQI_CATALOG_FILE")
}

func TestRegister_PreservesOtherEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "claude_desktop_config.json")
	existing := `{"theme":"dark","mcpServers":{"meal-log":{"command":"/opt/meal-log"}}}`
	require.NoError(t, os.WriteFile(path, []byte(existing), 0644))

	_, err := Register(Options{ConfigPath: path, BinaryPath: "/bin/mcp-server", CatalogFile: "/data/catalog.json"})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.JSONEq(t, `"dark"`, string(doc["theme"]))

	config, err := LoadClientConfig(path)
	require.NoError(t, err)
	assert.Len(t, config.MCPServers, 2)
	assert.Equal(t, "/opt/meal-log", config.MCPServers["meal-log"].Command)
	assert.Equal(t, "/data/catalog.json", config.MCPServers[ServerName].Env["YUANQI_CATALOG_FILE"])
}

func TestRegister_Errors(t *testing.T) {
	_, err := Register(Options{ConfigPath: filepath.Join(t.TempDir(), "c.json")})
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "broken.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))
	_, err = Register(Options{ConfigPath: path, BinaryPath: "/bin/x"})
	assert.Error(t, err)
}

func TestGetStatus(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "claude_desktop_config.json")

	status, err := GetStatus(path, filepath.Join(dir, "data"))
	require.NoError(t, err)
	assert.False(t, status.Registered)
	assert.Len(t, status.Issues, 1)

	binary := filepath.Join(dir, "mcp-server")
	require.NoError(t, os.WriteFile(binary, []byte("#!/bin/sh\n"), 0755))
	dataDir := filepath.Join(dir, "custom")
	require.NoError(t, os.MkdirAll(dataDir, 0755))

	_, err = Register(Options{ConfigPath: path, BinaryPath: binary, DataDir: dataDir})
	require.NoError(t, err)

	status, err = GetStatus(path, filepath.Join(dir, "data"))
	require.NoError(t, err)
	assert.True(t, status.Registered)
	assert.Equal(t, binary, status.ServerPath)
	assert.Equal(t, dataDir, status.DataDir)
	assert.Empty(t, status.Issues)
}

func TestCLI(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "claude_desktop_config.json")
	var out bytes.Buffer
	cli := NewCLI(&out, filepath.Join(dir, "data"))

	require.NoError(t, cli.Run(nil))
	assert.Contains(t, out.String(), "Usage:")

	out.Reset()
	require.NoError(t, cli.Run([]string{"claude-desktop", "-config", path, "-binary", "/bin/mcp-server"}))
	assert.Contains(t, out.String(), "Registered "+ServerName)

	out.Reset()
	require.NoError(t, cli.Run([]string{"status", "-config", path}))
	assert.Contains(t, out.String(), "Registered: yes (/bin/mcp-server)")

	assert.Error(t, cli.Run([]string{"wizard"}))
}
