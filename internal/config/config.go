package config

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	errs "github.com/404minds/gt06-receiver/internal/errors"
	"github.com/404minds/gt06-receiver/internal/protocols/gt06"
)

const (
	DirectoryStatic = "static"
	DirectoryMongo  = "mongo"
	DirectoryRemote = "remote"

	StoreLocal  = "local"
	StoreRemote = "remote"
	StoreMongo  = "mongo"
	StoreMqtt   = "mqtt"
)

type Config struct {
	Port int `yaml:"port"`
	// WebSocketPort serves the live position feed; 0 disables it.
	WebSocketPort int `yaml:"wsPort"`
	// GrpcPort serves the health service; 0 disables it.
	GrpcPort  int             `yaml:"grpcPort"`
	LogLevel  string          `yaml:"logLevel"`
	Decoder   gt06.Options    `yaml:"decoder"`
	Directory DirectoryConfig `yaml:"directory"`
	Store     StoreConfig     `yaml:"store"`
}

type DirectoryConfig struct {
	Type          string `yaml:"type"`
	File          string `yaml:"file"`
	MongoURI      string `yaml:"mongoUri"`
	MongoDatabase string `yaml:"mongoDatabase"`
	RemoteAddr    string `yaml:"remoteAddr"`
	// RedisURL puts a redis cache in front of the directory when set.
	RedisURL string        `yaml:"redisUrl"`
	CacheTTL time.Duration `yaml:"cacheTtl"`
}

type StoreConfig struct {
	Type          string `yaml:"type"`
	Path          string `yaml:"path"`
	RemoteAddr    string `yaml:"remoteAddr"`
	MongoURI      string `yaml:"mongoUri"`
	MongoDatabase string `yaml:"mongoDatabase"`
	MqttBroker    string `yaml:"mqttBroker"`
	MqttTopic     string `yaml:"mqttTopic"`
	MqttQoS       byte   `yaml:"mqttQos"`
}

func Default() Config {
	return Config{
		Port:     21000,
		GrpcPort: 22000,
		LogLevel: "info",
		Decoder:  gt06.DefaultOptions(),
		Directory: DirectoryConfig{
			Type:          DirectoryStatic,
			File:          "devices.yaml",
			MongoDatabase: "tracking",
			CacheTTL:      10 * time.Minute,
		},
		Store: StoreConfig{
			Type:          StoreLocal,
			Path:          "positions.json",
			MongoDatabase: "tracking",
			MqttTopic:     "gt06/positions",
		},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrapf(err, "failed to read config %s", path)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrapf(errs.ErrInvalidConfig, "config %s: %v", path, err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return errors.Wrapf(errs.ErrInvalidConfig, "port: %d out of range", c.Port)
	}
	if c.WebSocketPort < 0 || c.WebSocketPort > 65535 {
		return errors.Wrapf(errs.ErrInvalidConfig, "wsPort: %d out of range", c.WebSocketPort)
	}
	if c.GrpcPort < 0 || c.GrpcPort > 65535 {
		return errors.Wrapf(errs.ErrInvalidConfig, "grpcPort: %d out of range", c.GrpcPort)
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return errors.Wrapf(errs.ErrInvalidConfig, "logLevel: %v", err)
	}
	if err := c.Decoder.Validate(); err != nil {
		return err
	}
	if err := c.Directory.Validate(); err != nil {
		return err
	}
	return c.Store.Validate()
}

func (d DirectoryConfig) Validate() error {
	switch d.Type {
	case DirectoryStatic:
		if d.File == "" {
			return errors.Wrap(errs.ErrInvalidConfig, "directory.file: required for the static directory")
		}
	case DirectoryMongo:
		if d.MongoURI == "" {
			return errors.Wrap(errs.ErrInvalidConfig, "directory.mongoUri: required for the mongo directory")
		}
	case DirectoryRemote:
		if d.RemoteAddr == "" {
			return errors.Wrap(errs.ErrInvalidConfig, "directory.remoteAddr: required for the remote directory")
		}
	default:
		return errors.Wrapf(errs.ErrInvalidConfig, "directory.type: unknown type %q", d.Type)
	}
	if d.RedisURL != "" && d.CacheTTL <= 0 {
		return errors.Wrapf(errs.ErrInvalidConfig, "directory.cacheTtl: must be positive, got %s", d.CacheTTL)
	}
	return nil
}

func (s StoreConfig) Validate() error {
	switch s.Type {
	case StoreLocal:
		if s.Path == "" {
			return errors.Wrap(errs.ErrInvalidConfig, "store.path: required for the local store")
		}
	case StoreRemote:
		if s.RemoteAddr == "" {
			return errors.Wrap(errs.ErrInvalidConfig, "store.remoteAddr: required for the remote store")
		}
	case StoreMongo:
		if s.MongoURI == "" {
			return errors.Wrap(errs.ErrInvalidConfig, "store.mongoUri: required for the mongo store")
		}
	case StoreMqtt:
		if s.MqttBroker == "" {
			return errors.Wrap(errs.ErrInvalidConfig, "store.mqttBroker: required for the mqtt store")
		}
		if s.MqttQoS > 2 {
			return errors.Wrapf(errs.ErrInvalidConfig, "store.mqttQos: %d is not a valid qos", s.MqttQoS)
		}
	default:
		return errors.Wrapf(errs.ErrInvalidConfig, "store.type: unknown type %q", s.Type)
	}
	return nil
}
