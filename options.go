package mqttd

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Listen is one network endpoint the broker binds to.
type Listen struct {
	URL      string `yaml:"url"`
	CertFile string `yaml:"certFile"`
	KeyFile  string `yaml:"keyFile"`
}

// Config is the broker's full runtime configuration, loaded from YAML at
// startup and validated with go-playground/validator struct tags.
type Config struct {
	MQTT      Listen `yaml:"mqtt" validate:"required"`
	WebSocket Listen `yaml:"websocket"`
	Metrics   Listen `yaml:"metrics"`

	// ConnectTimeout bounds how long a new connection has to send its
	// CONNECT packet before the broker drops it.
	ConnectTimeout time.Duration `yaml:"connectTimeout" validate:"required"`

	// QueuePoolSize bounds the number of concurrently running QoS 1/2
	// retry pumps (PublishQueue's ants/v2 worker pool).
	QueuePoolSize int `yaml:"queuePoolSize" validate:"required,min=1"`

	// Auth is the static username -> password table. A client that sends
	// no username is accepted regardless of this table; a client that
	// sends a username not present here, or a mismatched password, gets
	// CONNACK return code 4.
	Auth map[string]string `yaml:"auth"`

	// LogFile, if set, routes the broker's log output through
	// lumberjack instead of stderr.
	LogFile    string `yaml:"logFile"`
	LogMaxSize int    `yaml:"logMaxSizeMB"`
	LogMaxAge  int    `yaml:"logMaxAgeDays"`
	LogBackups int    `yaml:"logBackups"`
}

// DefaultConfig is used when no config file is given on the command line.
func DefaultConfig() *Config {
	return &Config{
		MQTT:           Listen{URL: ":1883"},
		WebSocket:      Listen{URL: ":8083"},
		Metrics:        Listen{URL: ":9090"},
		ConnectTimeout: 10 * time.Second,
		QueuePoolSize:  256,
		Auth:           map[string]string{"": ""},
	}
}

var validate = validator.New()

// LoadConfig reads and validates a YAML config file at path.
func LoadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("mqttd: read config: %w", err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("mqttd: parse config: %w", err)
	}
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("mqttd: invalid config: %w", err)
	}
	return cfg, nil
}
