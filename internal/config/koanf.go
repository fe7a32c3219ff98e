package config

import (
	"fmt"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// Load reads a JSON configuration file at path, layering it over the
// built-in defaults, and validates the result.
//
// Unlike the pack's koanf user (tomtom215-lyrebirdaudio-go), there is no
// environment-variable provider layered on top and no Watch/hot-reload
// support: this system's configuration is immutable after startup, so
// that layering has nothing to serve.
func Load(path string) (Config, error) {
	k := koanf.New(".")

	def := Defaults()
	if err := k.Load(structs.Provider(def, "koanf"), nil); err != nil {
		return Config{}, fmt.Errorf("config: load defaults: %w", err)
	}

	if err := k.Load(file.Provider(path), json.Parser()); err != nil {
		return Config{}, fmt.Errorf("config: load %s: %w", path, err)
	}

	cfg := Defaults()
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// FromLegacyArgs synthesizes a Config from the legacy positional-argument
// form: `<prog> <srt_url> [<bg_file>]`.
func FromLegacyArgs(srtURL, bgFile string) (Config, error) {
	cfg := Defaults()
	cfg.SRTURL = srtURL
	if bgFile != "" {
		cfg.BGFile = bgFile
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
