package config

import (
	"fmt"

	"github.com/go-viper/mapstructure/v2"
)

// Decode decodes a loosely typed configuration block, such as one analyzer's
// section of the plugin document, into out. Durations may be given as strings.
func Decode(in map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return fmt.Errorf("create decoder failed: %w", err)
	}
	if err := dec.Decode(in); err != nil {
		return fmt.Errorf("decode config failed: %w", err)
	}
	return nil
}
