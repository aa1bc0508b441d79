package log

import "fmt"

// LogCfg is the "logger" configuration document.
type LogCfg struct {
	// Path is the target log file. Empty disables file output.
	Path string `mapstructure:"path"`

	// Level is the minimum level name: debug, info, warn, error or fatal.
	// It is hot-reloadable.
	Level string `mapstructure:"level"`

	// Encoding is "json" or "console".
	Encoding string `mapstructure:"encoding"`

	// Console enables stderr output.
	Console bool `mapstructure:"console"`

	// Caller adds the calling file and line to each entry.
	Caller bool `mapstructure:"caller"`
}

// GetName implements config.Config.
func (c *LogCfg) GetName() string {
	return "logger"
}

// Validate implements config.Config.
func (c *LogCfg) Validate() error {
	switch c.Encoding {
	case "", "json", "console":
	default:
		return fmt.Errorf("unsupported log encoding %q", c.Encoding)
	}
	return nil
}

// MinLevel returns the parsed minimum level.
func (c *LogCfg) MinLevel() Level {
	return ParseLevel(c.Level)
}

var _defaultCfg = &LogCfg{
	Level:    "info",
	Encoding: "json",
	Console:  true,
}

func getDefaultCfg() *LogCfg {
	return _defaultCfg
}
