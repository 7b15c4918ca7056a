package config

import (
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full configuration shared by the agent and the background
// sync daemon.
type Config struct {
	HTTPServer `yaml:"http_server"`
	RemoteAPI  `yaml:"remote_api"`
	Queue      `yaml:"queue"`
	Sync       `yaml:"sync"`
	Logger     `yaml:"logger"`
}

// HTTPServer configures the agent's localhost API.
type HTTPServer struct {
	Addr    string        `yaml:"addr"`
	Timeout time.Duration `yaml:"timeout"`
}

// RemoteAPI locates the remote POS backend.
type RemoteAPI struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// Queue configures the on-disk pending-order store.
type Queue struct {
	Path        string        `yaml:"path"`
	LockTimeout time.Duration `yaml:"lock_timeout"`
}

// Sync configures connectivity probing and drain scheduling.
type Sync struct {
	ProbeAddr     string        `yaml:"probe_addr"`     // host:port dialed to detect connectivity
	ProbeInterval time.Duration `yaml:"probe_interval"` // how often to probe
	SettleDelay   time.Duration `yaml:"settle_delay"`   // wait after reconnect before draining
	AgentURL      string        `yaml:"agent_url"`      // where syncd posts drain reports
}

// Logger configures log verbosity.
type Logger struct {
	Level string `yaml:"level"`
}

// MustLoad reads the configuration from the file at configPath and exits the
// program on any error.
func MustLoad(configPath string) *Config {
	if configPath == "" {
		log.Fatal("config path is not set")
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		log.Fatalf("config file does not exist: %s", configPath)
	}

	file, err := os.ReadFile(configPath)
	if err != nil {
		log.Fatalf("failed to read config file: %s", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(file, &cfg); err != nil {
		log.Fatalf("failed to unmarshal config: %s", err)
	}
	cfg.applyDefaults()

	return &cfg
}

func (c *Config) applyDefaults() {
	if c.HTTPServer.Addr == "" {
		c.HTTPServer.Addr = "127.0.0.1:8090"
	}
	if c.HTTPServer.Timeout == 0 {
		c.HTTPServer.Timeout = 10 * time.Second
	}
	if c.RemoteAPI.Timeout == 0 {
		c.RemoteAPI.Timeout = 10 * time.Second
	}
	if c.Queue.Path == "" {
		c.Queue.Path = "offline-queue.db"
	}
	if c.Queue.LockTimeout == 0 {
		c.Queue.LockTimeout = time.Second
	}
	if c.Sync.ProbeInterval == 0 {
		c.Sync.ProbeInterval = 5 * time.Second
	}
	if c.Sync.SettleDelay == 0 {
		// let a freshly restored link settle before replaying the queue
		c.Sync.SettleDelay = 2 * time.Second
	}
	if c.Sync.AgentURL == "" {
		c.Sync.AgentURL = "http://" + c.HTTPServer.Addr
	}
}
