// Package bjconfig loads ambient CLI settings (mount defaults, cache
// sizing, config file locations) the same way the rest of the
// corpus's tooling does: Viper, with environment-variable overrides
// and sane defaults when no config file is present.
package bjconfig

import (
	"fmt"

	"github.com/spf13/viper"
)

// Config holds settings read from bijou-config.{yaml,json,...}, the
// environment (BIJOU_ prefix), or built-in defaults; as Viper resolves
// it, precedence rises from defaults to file to env.
type Config struct {
	// DefaultBlockSize is the content block size new databases are
	// created with unless overridden on the command line (§4.3
	// "Blocks").
	DefaultBlockSize uint32 `mapstructure:"default_block_size"`
	// DefaultCipher selects the AEAD new databases use by default: 0
	// for AES-256-GCM, 1 for XChaCha20-Poly1305 (§2 "Cryptographic
	// primitives").
	DefaultCipher uint8 `mapstructure:"default_cipher"`
	// ClusterSize is the record count per cluster for raw stores that
	// use internal/rawstore.Clustered (§4.4 "Clustered").
	ClusterSize uint32 `mapstructure:"cluster_size"`
	// EntryTimeoutMillis and AttrTimeoutMillis are loaded and shown by
	// `bijou config`; `bijou mount` does not pass them on, and the
	// mount adapter caches entries and attributes for a fixed second.
	EntryTimeoutMillis int `mapstructure:"entry_timeout_ms"`
	AttrTimeoutMillis  int `mapstructure:"attr_timeout_ms"`
	// AllowOther permits non-owner access to the mount by default;
	// `bijou mount --allow-other` enables it for one invocation when
	// this is false, but no flag turns it off when this is true.
	AllowOther bool `mapstructure:"allow_other"`
}

// Load reads configuration from (in order) ./bijou-config.*,
// $HOME/.bijou, and /etc/bijou, falling back to built-in defaults for
// anything unset, with BIJOU_-prefixed environment variables taking
// precedence over all of them.
func Load() (*Config, error) {
	viper.SetConfigName("bijou-config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.bijou")
	viper.AddConfigPath("/etc/bijou")

	viper.SetDefault("default_block_size", 4096)
	viper.SetDefault("default_cipher", 0)
	viper.SetDefault("cluster_size", 1024)
	viper.SetDefault("entry_timeout_ms", 1000)
	viper.SetDefault("attr_timeout_ms", 1000)
	viper.SetDefault("allow_other", false)

	viper.SetEnvPrefix("BIJOU")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("bjconfig: reading config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("bjconfig: unmarshaling config: %w", err)
	}
	return &cfg, nil
}
