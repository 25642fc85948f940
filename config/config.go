// Package config loads the arsdkctl runtime profile. Unlike the config
// loader this stack is otherwise modeled on, values are read once by
// Load and threaded explicitly into constructors — there is no package
// global a later Reload call could yank out from under a running
// connection.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Log controls the zap/lumberjack sink, mirroring the shape the teacher's
// own config carries for its logger.
type Log struct {
	Level string `mapstructure:"level"`
	Path  string `mapstructure:"path"`
}

// Buffers overrides a product's buffer numbering; zero fields fall back to
// the product's built-in convention.
type Buffers struct {
	NonAck     uint8   `mapstructure:"non_ack"`
	Ack        uint8   `mapstructure:"ack"`
	HighPrio   uint8   `mapstructure:"high_prio"`
	HasHighPrio bool   `mapstructure:"has_high_prio"`
	RecvData   []uint8 `mapstructure:"recv_data"`
}

// Discovery controls how devices are located. HandshakePort and
// LocalD2CPort are loaded but not read by the connect path: the handshake
// dials the port the mDNS entry advertises, and the controller's d2c port
// is the fixed value in package device.
type Discovery struct {
	CacheTTL      time.Duration `mapstructure:"cache_ttl"`
	BrowseTimeout time.Duration `mapstructure:"browse_timeout"`
	HandshakePort int           `mapstructure:"handshake_port"`
	LocalD2CPort  int           `mapstructure:"local_d2c_port"`
}

// Config is the fully-resolved arsdkctl profile.
type Config struct {
	SchemaRoot string             `mapstructure:"schema_root"`
	Log        Log                `mapstructure:"log"`
	Discovery  Discovery          `mapstructure:"discovery"`
	Buffers    map[string]Buffers `mapstructure:"buffers"`
	MetricsAddr string            `mapstructure:"metrics_addr"`
}

// defaults fill in the schema root, log settings, discovery timeouts and
// ports; a profile only needs to override what differs. No buffer
// conventions are set here: a product without a buffers entry keeps its
// stock convention from package device.
func defaults(v *viper.Viper) {
	v.SetDefault("schema_root", "schema/xml")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.path", "")
	v.SetDefault("discovery.cache_ttl", 30*time.Second)
	v.SetDefault("discovery.browse_timeout", 5*time.Second)
	v.SetDefault("discovery.handshake_port", 44444)
	v.SetDefault("discovery.local_d2c_port", 43210)
	v.SetDefault("metrics_addr", "")
}

// Load reads path (YAML or JSON, by extension) through viper, applies
// environment-variable overrides under the ARSDK_ prefix (e.g.
// ARSDK_LOG_LEVEL), and returns the resolved Config. An empty path loads
// defaults only.
func Load(path string) (Config, error) {
	v := viper.New()
	defaults(v)
	v.SetEnvPrefix("arsdk")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config.Load: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config.Load: unmarshal: %w", err)
	}
	return cfg, nil
}
