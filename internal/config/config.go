package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the resolved settings for one initd run: the CLI
// surface (spec §6.5) plus the ambient daemon settings (control
// socket, audit DB, metrics listener, auth) that live in an optional
// YAML file under ConfDir.
type Config struct {
	ConfDir        string
	LogDir         string
	DefaultConsole string
	NoLog          bool
	NoSessions     bool
	NoStartupEvent bool
	Restart        bool
	StateFD        int
	Session        bool
	StartupEvent   string

	RunDir        string
	SocketPath    string
	DBPath        string
	MetricsListen string
	AuthToken     string
	AuthAllowCIDR []string
}

// FileConfig represents the optional YAML overrides read from
// <ConfDir>/initd.yaml. Everything in it is operational plumbing; job
// class definitions live as separate files under ConfDir and are
// loaded by the classdef package, not here.
type FileConfig struct {
	RunDir        string   `yaml:"run_dir"`
	SocketPath    string   `yaml:"socket_path"`
	DBPath        string   `yaml:"db_path"`
	MetricsListen string   `yaml:"metrics_listen"`
	AuthToken     string   `yaml:"auth_token"`
	AuthAllowCIDR []string `yaml:"auth_allow_cidr"`
	LogDir        string   `yaml:"log_dir"`
	DefaultConsole string  `yaml:"default_console"`
	StartupEvent  string   `yaml:"startup_event"`
}

// DefaultConfig returns the baseline configuration before CLI flags
// or an on-disk YAML file are applied.
func DefaultConfig() Config {
	runDir := "/run/initd"
	return Config{
		ConfDir:        "/etc/initd/conf.d",
		LogDir:         "/var/log/initd",
		DefaultConsole: "log",
		StartupEvent:   "startup",
		RunDir:         runDir,
		SocketPath:     filepath.Join(runDir, "initctl.sock"),
		DBPath:         "/var/lib/initd/audit.db",
		MetricsListen:  "",
	}
}

// Load applies the optional YAML file at <confDir>/initd.yaml on top
// of DefaultConfig. A missing file is not an error: a supervisor with
// no operational overrides is a normal, fully-valid configuration.
func Load(confDir string) (Config, error) {
	cfg := DefaultConfig()
	if confDir != "" {
		cfg.ConfDir = confDir
	}
	path := filepath.Join(cfg.ConfDir, "initd.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	var fileCfg FileConfig
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	applyFileConfig(&cfg, fileCfg)
	if fileCfg.RunDir != "" && fileCfg.SocketPath == "" {
		cfg.SocketPath = filepath.Join(cfg.RunDir, "initctl.sock")
	}
	return cfg, nil
}

func applyFileConfig(cfg *Config, fileCfg FileConfig) {
	if fileCfg.RunDir != "" {
		cfg.RunDir = fileCfg.RunDir
	}
	if fileCfg.SocketPath != "" {
		cfg.SocketPath = fileCfg.SocketPath
	}
	if fileCfg.DBPath != "" {
		cfg.DBPath = fileCfg.DBPath
	}
	if fileCfg.MetricsListen != "" {
		cfg.MetricsListen = fileCfg.MetricsListen
	}
	if fileCfg.AuthToken != "" {
		cfg.AuthToken = fileCfg.AuthToken
	}
	if len(fileCfg.AuthAllowCIDR) > 0 {
		cfg.AuthAllowCIDR = fileCfg.AuthAllowCIDR
	}
	if fileCfg.LogDir != "" {
		cfg.LogDir = fileCfg.LogDir
	}
	if fileCfg.DefaultConsole != "" {
		cfg.DefaultConsole = fileCfg.DefaultConsole
	}
	if fileCfg.StartupEvent != "" {
		cfg.StartupEvent = fileCfg.StartupEvent
	}
}

// ApplyFlags folds the CLI surface described in spec §6.5 onto cfg.
// Callers build cfg via Load first so that file-based overrides win
// over baked-in defaults but CLI flags win over both.
func (c *Config) ApplyFlags(confDir, logDir, defaultConsole string, noLog, noSessions, noStartupEvent, restart bool, stateFD int, session bool, startupEvent string) {
	if confDir != "" {
		c.ConfDir = confDir
	}
	if logDir != "" {
		c.LogDir = logDir
	}
	if defaultConsole != "" {
		c.DefaultConsole = defaultConsole
	}
	c.NoLog = noLog
	c.NoSessions = noSessions
	c.NoStartupEvent = noStartupEvent
	c.Restart = restart
	c.StateFD = stateFD
	c.Session = session
	if startupEvent != "" {
		c.StartupEvent = startupEvent
	}
}

// Validate performs basic sanity checks without touching the
// filesystem beyond what net.SplitHostPort needs.
func (c Config) Validate() error {
	if c.ConfDir == "" {
		return fmt.Errorf("confdir is required")
	}
	if !c.NoLog && c.LogDir == "" {
		return fmt.Errorf("logdir is required unless --no-log is set")
	}
	if c.RunDir == "" {
		return fmt.Errorf("run_dir is required")
	}
	if c.SocketPath == "" {
		return fmt.Errorf("socket_path is required")
	}
	if c.DBPath == "" {
		return fmt.Errorf("db_path is required")
	}
	if c.Restart && c.StateFD <= 0 {
		return fmt.Errorf("--restart requires --state-fd N")
	}
	if c.StartupEvent == "" {
		return fmt.Errorf("startup_event must not be empty")
	}
	if strings.TrimSpace(c.MetricsListen) != "" {
		host, _, err := net.SplitHostPort(c.MetricsListen)
		if err != nil {
			return fmt.Errorf("metrics_listen must be host:port: %w", err)
		}
		if !isLoopbackHost(host) {
			return fmt.Errorf("metrics_listen must be localhost-only (got %q)", host)
		}
	}
	for _, cidr := range c.AuthAllowCIDR {
		if _, _, err := net.ParseCIDR(cidr); err != nil {
			return fmt.Errorf("auth_allow_cidr entry %q: %w", cidr, err)
		}
	}
	return nil
}

func isLoopbackHost(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	return ip.IsLoopback()
}
