package main

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	asemantic "github.com/asemantix/asemantic-go"
	"github.com/asemantix/asemantic-go/sqlstore"
)

// Protocol parameters shared by both endpoints
type ProtocolConfig struct {
	Mode   string `mapstructure:"mode"`   // "A" or "B"
	Domain string `mapstructure:"domain"` // hex, >= 16 bytes
	Seed   string `mapstructure:"seed"`   // hex, >= 32 bytes (Mode A)
	Bits   int    `mapstructure:"bits"`   // fragment length, >= 256
	Window int    `mapstructure:"window"` // search width
}

// Receiver state persistence
type StateConfig struct {
	Path   string `mapstructure:"path"`   // file-backed store
	Driver string `mapstructure:"driver"` // "sqlite" or "postgres"
	DSN    string `mapstructure:"dsn"`    // SQL-backed store
}

// Structure to hold the contents of the configuration file
type Config struct {
	Protocol ProtocolConfig `mapstructure:"protocol"`
	State    StateConfig    `mapstructure:"state"`
}

func (p *ProtocolConfig) validate() error {
	if p.Mode != "A" && p.Mode != "B" {
		return fmt.Errorf("protocol mode must be A or B, got %q", p.Mode)
	}
	if p.Domain == "" {
		return errors.New("a protocol domain tag is required")
	}
	domain, err := hex.DecodeString(p.Domain)
	if err != nil {
		return fmt.Errorf("protocol domain is not valid hex: %w", err)
	}
	if len(domain) < asemantic.MinDomainSize {
		return fmt.Errorf("protocol domain must be at least %d bytes", asemantic.MinDomainSize)
	}
	if p.Mode == "A" {
		seed, err := hex.DecodeString(p.Seed)
		if err != nil {
			return fmt.Errorf("protocol seed is not valid hex: %w", err)
		}
		if len(seed) < asemantic.MinSeedSize {
			return fmt.Errorf("protocol seed must be at least %d bytes", asemantic.MinSeedSize)
		}
	}
	if p.Bits < asemantic.MinFragmentBits || p.Bits%8 != 0 {
		return fmt.Errorf("protocol bits must be >= %d and a multiple of 8", asemantic.MinFragmentBits)
	}
	if p.Window < 0 {
		return errors.New("protocol window must not be negative")
	}
	return nil
}

func (s *StateConfig) validate() error {
	if s.Path != "" && s.DSN != "" {
		return errors.New("state path and state dsn are mutually exclusive")
	}
	if s.DSN != "" && s.Driver != "sqlite" && s.Driver != "postgres" {
		return fmt.Errorf("state driver must be sqlite or postgres, got %q", s.Driver)
	}
	return nil
}

// loadConfig decodes and validates the merged viper settings.
func loadConfig() (*Config, error) {
	cfg := &Config{
		Protocol: ProtocolConfig{
			Mode:   "A",
			Bits:   asemantic.DefaultFragmentBits,
			Window: asemantic.DefaultWindow,
		},
	}
	if err := mapstructure.Decode(viper.AllSettings(), cfg); err != nil {
		return nil, fmt.Errorf("decoding configuration: %w", err)
	}
	if err := cfg.Protocol.validate(); err != nil {
		return nil, err
	}
	if err := cfg.State.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// domainBytes returns the decoded domain tag. Call after validate.
func (p *ProtocolConfig) domainBytes() []byte {
	domain, _ := hex.DecodeString(p.Domain)
	return domain
}

// seedBytes returns the decoded seed. Call after validate.
func (p *ProtocolConfig) seedBytes() []byte {
	seed, _ := hex.DecodeString(p.Seed)
	return seed
}

// openStore builds the configured receiver-state store, or nil
// when persistence is not configured.
func (s *StateConfig) openStore() (asemantic.Store, error) {
	switch {
	case s.Path != "":
		return asemantic.NewFileStore(s.Path), nil
	case s.DSN != "":
		return sqlstore.Open(s.Driver, s.DSN)
	default:
		return nil, nil
	}
}
