package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/barnettlynn/securecard/pkg/securecard"
)

// ProfileAuto makes the reader probe every known applet and use the first
// one the card selects.
const ProfileAuto = "auto"

type ValidationMode int

const (
	ValidationFull ValidationMode = iota
	ValidationPromptKey
	ValidationEmulator
)

type Config struct {
	Profile  string         `yaml:"profile"`
	Keys     KeysConfig     `yaml:"keys"`
	Card     CardConfig     `yaml:"card"`
	Runtime  RuntimeConfig  `yaml:"runtime"`
	Emulator EmulatorConfig `yaml:"emulator"`
}

type KeysConfig struct {
	SharedKeyFile string `yaml:"shared_key_file"`
}

// CardConfig overrides profile values. Empty fields keep the profile's value.
type CardConfig struct {
	AID         string `yaml:"aid,omitempty"`
	ReaderNonce string `yaml:"reader_nonce,omitempty"`
	ChunkSize   *int   `yaml:"chunk_size,omitempty"`
	Retrieval   string `yaml:"retrieval,omitempty"`
	Padding     string `yaml:"padding,omitempty"`
	Delimiter   string `yaml:"delimiter,omitempty"`
	MaxPayload  *int   `yaml:"max_payload,omitempty"`
}

type RuntimeConfig struct {
	ReaderIndex *int `yaml:"reader_index"`
}

type EmulatorConfig struct {
	RecordFile string `yaml:"record_file,omitempty"`
}

func Load(path string) (*Config, error) {
	return LoadWithMode(path, ValidationFull)
}

func LoadWithMode(path string, mode ValidationMode) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(content))
	dec.KnownFields(true)

	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}
	cfg.resolvePaths(path)
	if err := cfg.ValidateWithMode(mode); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	return c.ValidateWithMode(ValidationFull)
}

func (c *Config) ValidateWithMode(mode ValidationMode) error {
	if err := c.validateCommon(); err != nil {
		return err
	}

	switch mode {
	case ValidationFull:
		if err := c.validateKeyFile(); err != nil {
			return err
		}
		return c.validateReader()
	case ValidationPromptKey:
		return c.validateReader()
	case ValidationEmulator:
		if c.IsAuto() {
			return fmt.Errorf("config.profile must name a profile in emulator mode")
		}
		if err := c.validateKeyFile(); err != nil {
			return err
		}
		if strings.TrimSpace(c.Emulator.RecordFile) == "" {
			return fmt.Errorf("config.emulator.record_file is required")
		}
		return validateReadableFile(c.Emulator.RecordFile, "config.emulator.record_file")
	default:
		return fmt.Errorf("unsupported validation mode: %d", mode)
	}
}

func (c *Config) validateCommon() error {
	name := strings.TrimSpace(c.Profile)
	if name == "" {
		return fmt.Errorf("config.profile is required")
	}
	if name != ProfileAuto {
		if _, ok := securecard.Profile(name); !ok {
			return fmt.Errorf("config.profile %q is unknown (known: %s, %s)",
				name, strings.Join(securecard.ProfileNames(), ", "), ProfileAuto)
		}
	}

	if strings.TrimSpace(c.Card.AID) != "" {
		aid, err := securecard.ParseHexBytes(c.Card.AID)
		if err != nil {
			return fmt.Errorf("config.card.aid: %w", err)
		}
		if len(aid) < 5 || len(aid) > 16 {
			return fmt.Errorf("config.card.aid must be 5..16 bytes, got %d", len(aid))
		}
	}
	if strings.TrimSpace(c.Card.ReaderNonce) != "" {
		nonce, err := securecard.ParseHexBytes(c.Card.ReaderNonce)
		if err != nil {
			return fmt.Errorf("config.card.reader_nonce: %w", err)
		}
		if len(nonce) != securecard.ReaderNonceSize {
			return fmt.Errorf("config.card.reader_nonce must be %d bytes, got %d", securecard.ReaderNonceSize, len(nonce))
		}
	}
	if c.Card.ChunkSize != nil && (*c.Card.ChunkSize < 1 || *c.Card.ChunkSize > 256) {
		return fmt.Errorf("config.card.chunk_size must be 1..256")
	}
	switch securecard.RetrievalMode(c.Card.Retrieval) {
	case "", securecard.RetrievalChunked, securecard.RetrievalSingle:
	default:
		return fmt.Errorf("config.card.retrieval must be %q or %q", securecard.RetrievalChunked, securecard.RetrievalSingle)
	}
	switch securecard.PaddingMode(c.Card.Padding) {
	case "", securecard.PaddingTrimNUL, securecard.PaddingLastDelimiter:
	default:
		return fmt.Errorf("config.card.padding must be %q or %q", securecard.PaddingTrimNUL, securecard.PaddingLastDelimiter)
	}
	if c.Card.Delimiter != "" && len(c.Card.Delimiter) != 1 {
		return fmt.Errorf("config.card.delimiter must be a single byte")
	}
	if c.Card.MaxPayload != nil && *c.Card.MaxPayload < 0 {
		return fmt.Errorf("config.card.max_payload must be >= 0")
	}
	return nil
}

func (c *Config) validateKeyFile() error {
	if strings.TrimSpace(c.Keys.SharedKeyFile) == "" {
		return fmt.Errorf("config.keys.shared_key_file is required")
	}
	return validateReadableFile(c.Keys.SharedKeyFile, "config.keys.shared_key_file")
}

func (c *Config) validateReader() error {
	if c.Runtime.ReaderIndex == nil {
		return fmt.Errorf("config.runtime.reader_index is required")
	}
	if *c.Runtime.ReaderIndex < 0 {
		return fmt.Errorf("config.runtime.reader_index must be >= 0")
	}
	return nil
}

// IsAuto reports whether the profile is detected from the card.
func (c *Config) IsAuto() bool {
	return strings.TrimSpace(c.Profile) == ProfileAuto
}

// BaseProfile returns the configured profile. It fails for ProfileAuto.
func (c *Config) BaseProfile() (securecard.Config, error) {
	p, ok := securecard.Profile(strings.TrimSpace(c.Profile))
	if !ok {
		return securecard.Config{}, fmt.Errorf("config.profile %q does not name a profile", c.Profile)
	}
	return p, nil
}

// Apply returns base with the card overrides applied and key installed.
func (c *Config) Apply(base securecard.Config, key []byte) (securecard.Config, error) {
	out := base
	if strings.TrimSpace(c.Card.AID) != "" {
		aid, err := securecard.ParseHexBytes(c.Card.AID)
		if err != nil {
			return securecard.Config{}, fmt.Errorf("config.card.aid: %w", err)
		}
		out.AID = aid
	}
	if strings.TrimSpace(c.Card.ReaderNonce) != "" {
		nonce, err := securecard.ParseHexBytes(c.Card.ReaderNonce)
		if err != nil {
			return securecard.Config{}, fmt.Errorf("config.card.reader_nonce: %w", err)
		}
		out.ReaderNonce = nonce
	}
	if c.Card.ChunkSize != nil {
		out.ChunkSize = *c.Card.ChunkSize
	}
	if c.Card.Retrieval != "" {
		out.Retrieval = securecard.RetrievalMode(c.Card.Retrieval)
	}
	if c.Card.Padding != "" {
		out.Padding = securecard.PaddingMode(c.Card.Padding)
	}
	if c.Card.Delimiter != "" {
		out.Delimiter = c.Card.Delimiter[0]
	}
	if c.Card.MaxPayload != nil {
		out.MaxPayload = *c.Card.MaxPayload
	}
	out.Key = append([]byte(nil), key...)
	if err := out.Validate(); err != nil {
		return securecard.Config{}, fmt.Errorf("profile %s: %w", out.Name, err)
	}
	return out, nil
}

func (c *Config) resolvePaths(configPath string) {
	configDir := filepath.Dir(configPath)
	c.Keys.SharedKeyFile = resolvePath(configDir, c.Keys.SharedKeyFile)
	c.Emulator.RecordFile = resolvePath(configDir, c.Emulator.RecordFile)
}

func resolvePath(baseDir, path string) string {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" || filepath.IsAbs(trimmed) {
		return trimmed
	}
	return filepath.Clean(filepath.Join(baseDir, trimmed))
}

func validateReadableFile(path string, field string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s must point to a file, got directory", field)
	}
	return nil
}
