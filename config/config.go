package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"framelog/sink"
)

// Config holds every configurable value of a logging run.
type Config struct {
	// Serial link
	Device   string `mapstructure:"device"`   // e.g. /dev/ttyACM1
	BaudRate int    `mapstructure:"baudrate"` // e.g. 9600

	// Run control
	Interactive    bool          `mapstructure:"interactive"`
	Seconds        int           `mapstructure:"seconds"` // standard mode duration
	Rounds         int           `mapstructure:"rounds"`  // frames per session, 0 = unbounded
	ReportInterval time.Duration `mapstructure:"report-interval"`
	PollInterval   time.Duration `mapstructure:"poll-interval"`

	// Sink
	URL         string        `mapstructure:"url"` // see sink.ParseDestination
	User        string        `mapstructure:"user"`
	Password    string        `mapstructure:"password"`
	Credentials string        `mapstructure:"credentials"` // KEY=value file with user/password
	Insecure    bool          `mapstructure:"insecure"`    // skip TLS verification
	SSHKey      string        `mapstructure:"ssh-key"`
	KnownHosts  string        `mapstructure:"known-hosts"`
	Timeout     time.Duration `mapstructure:"timeout"`

	// Observability
	LogLevel    string `mapstructure:"log-level"` // debug|info|warn|error
	LogFile     string `mapstructure:"log-file"`
	MetricsAddr string `mapstructure:"metrics-addr"` // e.g. :9108, empty = off
}

// NewFlagSet declares the command line. Flag values take precedence over
// the environment and the config file.
func NewFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("framelog", pflag.ContinueOnError)
	fs.StringP("device", "d", "/dev/ttyACM1", "serial device the board is connected to")
	fs.IntP("baudrate", "b", 9600, "baud rate of the serial line")
	fs.BoolP("interactive", "i", false, "prompt for control")
	fs.IntP("seconds", "s", 10, "how long to run if not in interactive mode")
	fs.IntP("rounds", "r", 0, "frames to read per device before stopping (0 = no limit)")
	fs.Duration("report-interval", 0, "report the snapshot periodically (0 = only on demand and at exit)")
	fs.Duration("poll-interval", 10*time.Millisecond, "sleep between polls when the device has no data")
	fs.StringP("url", "u", "", "destination: empty for stdout, a file path, http(s)://, sftp:// or sqlite:// URL")
	fs.String("user", "", "basic auth user for http destinations")
	fs.String("password", "", "basic auth password for http destinations")
	fs.String("credentials", "", "file with user=... and password=... lines")
	fs.Bool("insecure", false, "do not verify the server certificate")
	fs.String("ssh-key", "", "private key for sftp destinations (default ~/.ssh/id_rsa)")
	fs.String("known-hosts", "", "known_hosts file for sftp host key checking")
	fs.Duration("timeout", 10*time.Second, "timeout of a single delivery")
	fs.String("log-level", "info", "debug|info|warn|error")
	fs.String("log-file", "", "also write logs to this file (rotated)")
	fs.String("metrics-addr", "", "serve prometheus metrics on this address")
	fs.String("config", "", "config file (default ./configs/config.yaml if present)")
	return fs
}

// Load reads configuration from (in decreasing priority):
//  1. command-line flags in args
//  2. environment variables (FRAMELOG_DEVICE, FRAMELOG_LOG_LEVEL, ...)
//  3. a yaml file (./configs/config.yaml or --config) if it exists.
//  4. flag defaults
//
// It returns a validated *Config or an error. pflag.ErrHelp is returned
// unchanged when -h was given.
func Load(args []string) (*Config, error) {
	fs := NewFlagSet()
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	v := viper.New()
	if err := v.BindPFlags(fs); err != nil {
		return nil, fmt.Errorf("bind flags: %w", err)
	}

	v.SetEnvPrefix("FRAMELOG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if file, _ := fs.GetString("config"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath("./configs")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("cannot decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks ranges and that the destination parses.
func (c *Config) Validate() error {
	if c.BaudRate <= 0 {
		return fmt.Errorf("baudrate must be positive, got %d", c.BaudRate)
	}
	if c.Seconds < 0 {
		return fmt.Errorf("seconds must not be negative, got %d", c.Seconds)
	}
	if c.Rounds < 0 {
		return fmt.Errorf("rounds must not be negative, got %d", c.Rounds)
	}
	if c.ReportInterval < 0 {
		return fmt.Errorf("report-interval must not be negative")
	}
	if !c.Interactive && c.Device == "" {
		return fmt.Errorf("device must not be empty")
	}
	if _, err := sink.ParseDestination(c.URL); err != nil {
		return err
	}
	return nil
}

// Destination parses URL. Validate has already checked it.
func (c *Config) Destination() sink.Destination {
	d, _ := sink.ParseDestination(c.URL)
	return d
}
