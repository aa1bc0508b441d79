package reporter

import (
	"fmt"
	"time"

	"github.com/lcx/iast/codec"
)

// Default reporter settings.
const (
	DefaultInterval            = 60 * time.Second
	DefaultMaxSeriesPerRequest = 1000
	DefaultChunksPerSecond     = 10
	DefaultNATSSubject         = "iast.telemetry"
)

// Cfg is the "reporter" configuration document.
type Cfg struct {
	// Interval is the heartbeat period.
	Interval time.Duration `mapstructure:"interval"`
	// MaxSeriesPerRequest splits large drains into several requests.
	MaxSeriesPerRequest int `mapstructure:"maxSeriesPerRequest"`
	// ChunksPerSecond paces the requests of one drain. Zero disables pacing.
	ChunksPerSecond int `mapstructure:"chunksPerSecond"`

	Service string `mapstructure:"service"`
	Env     string `mapstructure:"env"`
	Version string `mapstructure:"version"`

	// HTTPURL is the agent base url, e.g. http://localhost:8126. Empty disables the HTTP sender.
	HTTPURL     string        `mapstructure:"httpUrl"`
	HTTPTimeout time.Duration `mapstructure:"httpTimeout"`
	Debug       bool          `mapstructure:"debug"`

	// NATSURL enables the NATS sender.
	NATSURL     string `mapstructure:"natsUrl"`
	NATSSubject string `mapstructure:"natsSubject"`
	Codec       string `mapstructure:"codec"`

	Prometheus bool `mapstructure:"prometheus"`
	OTel       bool `mapstructure:"otel"`
	Log        bool `mapstructure:"log"`
}

// GetName implements config.Config.
func (c *Cfg) GetName() string {
	return "reporter"
}

// Validate implements config.Config.
func (c *Cfg) Validate() error {
	if c.Interval < 0 {
		return fmt.Errorf("reporter interval must not be negative: %s", c.Interval)
	}
	if c.MaxSeriesPerRequest < 0 {
		return fmt.Errorf("reporter maxSeriesPerRequest must not be negative: %d", c.MaxSeriesPerRequest)
	}
	if c.ChunksPerSecond < 0 {
		return fmt.Errorf("reporter chunksPerSecond must not be negative: %d", c.ChunksPerSecond)
	}
	if c.Codec != "" {
		if _, err := codec.Get(c.Codec); err != nil {
			return fmt.Errorf("reporter codec: %w, available: %v", err, codec.Names())
		}
	}
	return nil
}

// withDefaults returns a copy of c with zero values replaced by defaults.
func (c Cfg) withDefaults() Cfg {
	if c.Interval == 0 {
		c.Interval = DefaultInterval
	}
	if c.MaxSeriesPerRequest == 0 {
		c.MaxSeriesPerRequest = DefaultMaxSeriesPerRequest
	}
	if c.HTTPTimeout == 0 {
		c.HTTPTimeout = 5 * time.Second
	}
	if c.NATSSubject == "" {
		c.NATSSubject = DefaultNATSSubject
	}
	if c.Codec == "" {
		c.Codec = codec.JSON
	}
	return c
}
