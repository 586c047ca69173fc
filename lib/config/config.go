// Copyright 2026 The Savestream Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for the savestream
// tools.
//
// Configuration comes from a single YAML file named by:
//   - the SAVESTREAM_CONFIG environment variable, or
//   - the --config flag passed to the command.
//
// There is no file discovery and environment variables never override
// file values; a run is reproducible from the file alone. The file
// itself is optional: without one, the built-in defaults apply and the
// tools behave exactly like the engine writing a local save.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/croteam-tools/savestream/lib/keyring"
	"github.com/croteam-tools/savestream/lib/sigstream"
	"github.com/croteam-tools/savestream/lib/streamhash"
)

// EnvVar names the environment variable holding the config file path.
const EnvVar = "SAVESTREAM_CONFIG"

// Config is the tool configuration.
type Config struct {
	// Write configures envelope creation defaults. Flags still
	// override individual fields per invocation.
	Write WriteConfig `yaml:"write"`

	// UserID is bound into digests when creating signed streams,
	// and supplied as verification context when parsing. Platform
	// saves bind the owning account id this way.
	UserID string `yaml:"user_id"`

	// Keys adds signing keys to the built-in ring.
	Keys []KeyConfig `yaml:"keys"`
}

// WriteConfig holds envelope creation defaults.
type WriteConfig struct {
	// Version is the envelope version to write, 1 through 5.
	Version uint32 `yaml:"version"`

	// BlockSize is the signing granularity in bytes.
	BlockSize uint32 `yaml:"block_size"`

	// HashMethod is the digest algorithm: sha1, tiger or sha256.
	HashMethod string `yaml:"hash_method"`

	// GzipLevel is the compression level, 1 through 9.
	GzipLevel int `yaml:"gzip_level"`

	// KeyName selects the default signing key.
	KeyName string `yaml:"key_name"`

	// ByteOrder is "little" or "big".
	ByteOrder string `yaml:"byte_order"`
}

// KeyConfig is one additional key for the ring. Exactly one of File
// and PEM supplies the material.
type KeyConfig struct {
	// Name is the key name as it appears in stream headers.
	Name string `yaml:"name"`

	// File is a path to a PKCS#1 PEM file. ${HOME}-style variables
	// are expanded.
	File string `yaml:"file"`

	// PEM is inline PKCS#1 PEM material.
	PEM string `yaml:"pem"`

	// Public marks the material as a public key only; such a key
	// can verify but not sign.
	Public bool `yaml:"public"`
}

// Default returns the built-in configuration: the engine's own
// write parameters and an empty extra-key list.
func Default() *Config {
	return &Config{
		Write: WriteConfig{
			Version:    sigstream.DefaultVersion,
			BlockSize:  sigstream.DefaultBlockSize,
			HashMethod: "sha1",
			GzipLevel:  sigstream.DefaultGzipLevel,
			KeyName:    keyring.GameLocal,
			ByteOrder:  "little",
		},
	}
}

// Load loads configuration from the SAVESTREAM_CONFIG environment
// variable. When the variable is unset the defaults are returned;
// when it is set the named file must exist and parse.
func Load() (*Config, error) {
	path := os.Getenv(EnvVar)
	if path == "" {
		return Default(), nil
	}
	return LoadFile(path)
}

// LoadFile loads configuration from a specific file path, layered
// over the defaults.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	for i := range cfg.Keys {
		cfg.Keys[i].File = expandVars(cfg.Keys[i].File)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Method resolves the configured hash method name.
func (c *Config) Method() (streamhash.Method, error) {
	switch c.Write.HashMethod {
	case "sha1":
		return streamhash.MethodSHA1, nil
	case "tiger":
		return streamhash.MethodTiger, nil
	case "sha256":
		return streamhash.MethodSHA256, nil
	default:
		return 0, fmt.Errorf("unknown hash method %q (want sha1, tiger or sha256)", c.Write.HashMethod)
	}
}

// Ring builds the key ring: the built-in engine keys plus any
// configured additions. A configured key may shadow a built-in one by
// reusing its name.
func (c *Config) Ring() (*keyring.Ring, error) {
	ring := keyring.Default()
	for _, kc := range c.Keys {
		material := kc.PEM
		if kc.File != "" {
			data, err := os.ReadFile(kc.File)
			if err != nil {
				return nil, fmt.Errorf("key %q: %w", kc.Name, err)
			}
			material = string(data)
		}
		var err error
		if kc.Public {
			err = ring.AddPublicPEM(kc.Name, material)
		} else {
			err = ring.AddPrivatePEM(kc.Name, material)
		}
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", kc.Name, err)
		}
	}
	return ring, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Write.Version < 1 || c.Write.Version > sigstream.MaxVersion {
		errs = append(errs, fmt.Errorf("write.version must be 1 through %d", sigstream.MaxVersion))
	}
	if _, err := c.Method(); err != nil {
		errs = append(errs, fmt.Errorf("write.hash_method: %w", err))
	}
	if c.Write.GzipLevel < 1 || c.Write.GzipLevel > 9 {
		errs = append(errs, fmt.Errorf("write.gzip_level must be 1 through 9"))
	}
	if c.Write.ByteOrder != "little" && c.Write.ByteOrder != "big" {
		errs = append(errs, fmt.Errorf("write.byte_order must be \"little\" or \"big\""))
	}
	for i, kc := range c.Keys {
		if kc.Name == "" {
			errs = append(errs, fmt.Errorf("keys[%d]: name is required", i))
		}
		if (kc.File == "") == (kc.PEM == "") {
			errs = append(errs, fmt.Errorf("keys[%d]: exactly one of file and pem is required", i))
		}
	}

	return errors.Join(errs...)
}

// expandVars expands ${VAR} and ${VAR:-default} patterns from the
// environment.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		if len(parts) >= 3 {
			return parts[2]
		}
		return ""
	})
}
