package setup

import (
	"flag"
	"fmt"
	"io"
	"os"
)

const usage = `Usage:
  mcp-server setup <command> [options]

Commands:
  claude-desktop  Register this server in the Claude Desktop config
  status          Show the current registration

Options for claude-desktop:
  -config     client config file (default: platform location)
  -binary     server binary (default: this executable)
  -data-dir   data directory passed to the server
  -catalog    catalog JSON imported on startup
`

// CLI runs the setup subcommands.
type CLI struct {
	out            io.Writer
	defaultDataDir string
}

// NewCLI creates a setup CLI writing to out.
func NewCLI(out io.Writer, defaultDataDir string) *CLI {
	return &CLI{out: out, defaultDataDir: defaultDataDir}
}

// Run executes the setup command named by args[0].
func (c *CLI) Run(args []string) error {
	if len(args) == 0 {
		fmt.Fprint(c.out, usage)
		return nil
	}

	switch args[0] {
	case "claude-desktop":
		return c.register(args[1:])
	case "status":
		return c.status(args[1:])
	case "help", "--help", "-h":
		fmt.Fprint(c.out, usage)
		return nil
	default:
		fmt.Fprint(c.out, usage)
		return fmt.Errorf("unknown setup command: %s", args[0])
	}
}

func (c *CLI) register(args []string) error {
	fs := flag.NewFlagSet("claude-desktop", flag.ContinueOnError)
	fs.SetOutput(c.out)
	opts := Options{}
	fs.StringVar(&opts.ConfigPath, "config", "", "client config file")
	fs.StringVar(&opts.BinaryPath, "binary", "", "server binary")
	fs.StringVar(&opts.DataDir, "data-dir", c.defaultDataDir, "data directory")
	fs.StringVar(&opts.CatalogFile, "catalog", "", "catalog JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if opts.BinaryPath == "" {
		execPath, err := os.Executable()
		if err != nil {
			return fmt.Errorf("resolving executable: %w", err)
		}
		opts.BinaryPath = execPath
	}

	path, err := Register(opts)
	if err != nil {
		return fmt.Errorf("failed to configure Claude Desktop: %w", err)
	}

	fmt.Fprintf(c.out, "Registered %s in %s\n", ServerName, path)
	fmt.Fprintf(c.out, "Server binary: %s\n", opts.BinaryPath)
	if opts.DataDir != "" {
		fmt.Fprintf(c.out, "Data directory: %s\n", opts.DataDir)
	}
	fmt.Fprintln(c.out, "Restart Claude Desktop to load the new configuration.")
	return nil
}

func (c *CLI) status(args []string) error {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	fs.SetOutput(c.out)
	path := fs.String("config", "", "client config file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *path == "" {
		var err error
		if *path, err = DefaultConfigPath(); err != nil {
			return err
		}
	}

	status, err := GetStatus(*path, c.defaultDataDir)
	if err != nil {
		return err
	}

	fmt.Fprintf(c.out, "Config path: %s\n", status.ConfigPath)
	if status.Registered {
		fmt.Fprintf(c.out, "Registered: yes (%s)\n", status.ServerPath)
	} else {
		fmt.Fprintln(c.out, "Registered: no")
	}
	fmt.Fprintf(c.out, "Data directory: %s\n", status.DataDir)
	for _, issue := range status.Issues {
		fmt.Fprintf(c.out, "  ! %s\n", issue)
	}
	return nil
}
