// Package setup registers the assessment MCP server with desktop MCP clients.
package setup

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// ServerName is the key the server is registered under in the client config.
const ServerName = "yuanqi-assessment"

// DataDirEnv is passed to the server so it uses the chosen data directory.
const DataDirEnv = "YUANQI_DATA_DIR"

// ClientConfig represents the desktop client's configuration file structure.
// Keys other than mcpServers are preserved on save.
type ClientConfig struct {
	MCPServers map[string]MCPServerConfig `json:"mcpServers"`
	extra      map[string]json.RawMessage
}

// MCPServerConfig represents a single MCP server configuration.
type MCPServerConfig struct {
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
}

// Options contains options for registering the server.
type Options struct {
	ConfigPath  string // Client config file; empty resolves the platform default
	BinaryPath  string // Path to the mcp-server binary
	DataDir     string // Data directory passed via YUANQI_DATA_DIR
	CatalogFile string // Optional catalog seed passed via YUANQI_CATALOG_FILE
}

// DefaultConfigPath returns the path to Claude Desktop's config file on this platform.
func DefaultConfigPath() (string, error) {
	var configDir string

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(home, "Library", "Application Support", "Claude")
	case "linux":
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			configDir = filepath.Join(xdg, "Claude")
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", fmt.Errorf("failed to get home directory: %w", err)
			}
			configDir = filepath.Join(home, ".config", "Claude")
		}
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			return "", fmt.Errorf("APPDATA environment variable not set")
		}
		configDir = filepath.Join(appData, "Claude")
	default:
		return "", fmt.Errorf("unsupported operating system: %s", runtime.GOOS)
	}

	return filepath.Join(configDir, "claude_desktop_config.json"), nil
}

// LoadClientConfig reads the client configuration. A missing file yields an empty config.
func LoadClientConfig(path string) (*ClientConfig, error) {
	config := &ClientConfig{MCPServers: make(map[string]MCPServerConfig)}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return config, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := json.Unmarshal(data, &config.extra); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if raw, ok := config.extra["mcpServers"]; ok {
		if err := json.Unmarshal(raw, &config.MCPServers); err != nil {
			return nil, fmt.Errorf("failed to parse mcpServers: %w", err)
		}
		if config.MCPServers == nil {
			config.MCPServers = make(map[string]MCPServerConfig)
		}
	}
	return config, nil
}

// SaveClientConfig writes the configuration, creating its directory.
func SaveClientConfig(path string, config *ClientConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	doc := make(map[string]interface{}, len(config.extra)+1)
	for k, v := range config.extra {
		doc[k] = v
	}
	doc["mcpServers"] = config.MCPServers

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Register adds or updates the server entry and returns the config path written.
func Register(opts Options) (string, error) {
	path := opts.ConfigPath
	if path == "" {
		var err error
		if path, err = DefaultConfigPath(); err != nil {
			return "", err
		}
	}
	if opts.BinaryPath == "" {
		return "", fmt.Errorf("server binary path is required")
	}

	config, err := LoadClientConfig(path)
	if err != nil {
		return "", err
	}

	entry := MCPServerConfig{Command: opts.BinaryPath, Env: map[string]string{}}
	if opts.DataDir != "" {
		entry.Env[DataDirEnv] = opts.DataDir
	}
	if opts.CatalogFile != "" {
		entry.Env["YUANQI_CATALOG_FILE"] = opts.CatalogFile
	}
	config.MCPServers[ServerName] = entry

	if err := SaveClientConfig(path, config); err != nil {
		return "", err
	}
	return path, nil
}

// Status represents the current registration.
type Status struct {
	ConfigPath string
	Registered bool
	ServerPath string
	DataDir    string
	Issues     []string
}

// GetStatus inspects the client configuration at path.
func GetStatus(path, defaultDataDir string) (*Status, error) {
	status := &Status{ConfigPath: path, DataDir: defaultDataDir}

	config, err := LoadClientConfig(path)
	if err != nil {
		return nil, err
	}

	if entry, ok := config.MCPServers[ServerName]; ok {
		status.Registered = true
		status.ServerPath = entry.Command
		if _, err := os.Stat(entry.Command); err != nil {
			status.Issues = append(status.Issues, fmt.Sprintf("Server binary not found at: %s", entry.Command))
		}
		if dir := entry.Env[DataDirEnv]; dir != "" {
			status.DataDir = dir
		}
	}

	if status.DataDir != "" {
		if _, err := os.Stat(status.DataDir); os.IsNotExist(err) {
			status.Issues = append(status.Issues, fmt.Sprintf("Data directory will be created on first run: %s", status.DataDir))
		}
	}
	return status, nil
}
