package config

import (
	"bytes"
	"io"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const DefaultPort = 1935

const BuffioSize = 1024 * 64

// Chunk size every connection starts with in both directions.
const DefaultChunkSize uint32 = 128
const MaxChunkSize uint32 = 0x7FFFFFFF

const DefaultHandshakeTimeout = 10 * time.Second

// Config holds the complete server configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Chunk   ChunkConfig   `yaml:"chunk"`
	Storage StorageConfig `yaml:"storage"`
	Metrics MetricsConfig `yaml:"metrics"`
	Debug   bool          `yaml:"debug"`
}

type ServerConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	ReadBufferSize   int           `yaml:"read_buffer_size"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	// Zero disables the idle timeout
	IdleTimeout time.Duration `yaml:"idle_timeout"`
}

type ChunkConfig struct {
	// Chunk size used for outbound messages. Anything above the default is announced
	// to the peer right after the handshake.
	OutChunkSize uint32 `yaml:"out_chunk_size"`
}

type StorageConfig struct {
	// Media payloads are discarded when empty
	SavePath string `yaml:"save_path"`
}

type MetricsConfig struct {
	// HTTP address for /metrics and /healthz, disabled when empty
	Addr string `yaml:"addr"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	var cfg Config
	cfg.setDefaults()
	return &cfg
}

// Load reads configuration from a YAML file. Unknown fields are rejected.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config file")
	}
	return Parse(data)
}

// Parse decodes YAML configuration from data and applies defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	// An empty document leaves every field at its default
	if err := decoder.Decode(&cfg); err != nil && err != io.EOF {
		return nil, errors.Wrap(err, "decode config")
	}

	cfg.setDefaults()
	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}
	if c.Server.ReadBufferSize == 0 {
		c.Server.ReadBufferSize = BuffioSize
	}
	if c.Server.HandshakeTimeout == 0 {
		c.Server.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.Chunk.OutChunkSize == 0 {
		c.Chunk.OutChunkSize = DefaultChunkSize
	}
}

// Addr is the host:port the RTMP listener binds to.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}
