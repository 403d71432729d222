package cli

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/dmdmdm-nz/devdwatch/internal/devd"
	"github.com/dmdmdm-nz/devdwatch/pkg/version"
)

// Config holds the application configuration from CLI flags
type Config struct {
	Socket         string
	WatchFile      string
	PollTimeout    time.Duration
	ReconnectDelay time.Duration
	QueueLen       int
	Port           int
	Host           string
	DisableAPI     bool
	LogLevel       string
}

// ParseFlags parses command line arguments and returns a Config
func ParseFlags() *Config {
	cfg, showVersion, err := parse(flag.CommandLine, os.Args[1:])
	if err != nil {
		os.Exit(2)
	}

	if showVersion {
		fmt.Printf("devdwatch version %s (commit: %s, built at: %s)\n",
			version.Version,
			version.CommitHash,
			version.BuildTime)
		os.Exit(0)
	}

	return cfg
}

func parse(fs *flag.FlagSet, args []string) (*Config, bool, error) {
	cfg := &Config{}

	fs.StringVar(&cfg.Socket, "socket", devd.DefaultSocketPath, "Path of the devd stream socket")
	fs.StringVar(&cfg.WatchFile, "watches", "", "YAML file with watch rules (built-in defaults when empty)")
	fs.DurationVar(&cfg.PollTimeout, "poll-timeout", time.Second, "How long to wait for devd data before re-checking for shutdown")
	fs.DurationVar(&cfg.ReconnectDelay, "reconnect-delay", 2*time.Second, "Delay between devd reconnect attempts")
	fs.IntVar(&cfg.QueueLen, "queue-len", 1024, "Maximum queued events per stream subscriber (0 for unbounded)")
	fs.IntVar(&cfg.Port, "port", 60106, "Port to listen on")
	fs.StringVar(&cfg.Host, "host", "127.0.0.1", "Host to bind to")
	fs.BoolVar(&cfg.DisableAPI, "no-api", false, "Do not start the HTTP API")
	fs.StringVar(&cfg.LogLevel, "log-level", "info", "Log level (trace, debug, info, warn, error)")
	showVersion := fs.Bool("version", false, "Show version information")

	if err := fs.Parse(args); err != nil {
		return nil, false, err
	}
	return cfg, *showVersion, nil
}

// String returns a string representation of the Config
func (c *Config) String() string {
	return fmt.Sprintf("Socket: %s, Watches: %q, Host: %s, Port: %d, API: %t, LogLevel: %s",
		c.Socket, c.WatchFile, c.Host, c.Port, !c.DisableAPI, c.LogLevel)
}
