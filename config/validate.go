package config

import "github.com/pkg/errors"

// Validate returns an error describing the first value that is out of range.
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return errors.Wrap(err, "server config")
	}
	if err := c.Chunk.Validate(); err != nil {
		return errors.Wrap(err, "chunk config")
	}
	return nil
}

func (s *ServerConfig) Validate() error {
	if s.Port <= 0 || s.Port > 65535 {
		return errors.Errorf("port must be between 1 and 65535, got %d", s.Port)
	}
	if s.ReadBufferSize <= 0 {
		return errors.Errorf("read_buffer_size must be positive, got %d", s.ReadBufferSize)
	}
	if s.HandshakeTimeout < 0 {
		return errors.Errorf("handshake_timeout must not be negative, got %s", s.HandshakeTimeout)
	}
	if s.IdleTimeout < 0 {
		return errors.Errorf("idle_timeout must not be negative, got %s", s.IdleTimeout)
	}
	return nil
}

func (c *ChunkConfig) Validate() error {
	if c.OutChunkSize < 1 || c.OutChunkSize > MaxChunkSize {
		return errors.Errorf("out_chunk_size must be between 1 and %d, got %d", MaxChunkSize, c.OutChunkSize)
	}
	return nil
}
