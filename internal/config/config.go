// Package config handles tmdtool configuration loading and management.
package config

// Config holds all tool settings.
type Config struct {
	Codec   CodecConfig   `yaml:"codec"`
	Pack    PackConfig    `yaml:"pack"`
	Export  ExportConfig  `yaml:"export"`
	Logging LoggingConfig `yaml:"logging"`
}

// CodecConfig holds model codec settings.
type CodecConfig struct {
	TextEncoding string `yaml:"text_encoding"` // name table encoding label
}

// PackConfig holds compression wrapper settings.
type PackConfig struct {
	Format string `yaml:"format"` // PZZE tag written by pack and roundtrip
}

// ExportConfig holds glTF export settings.
type ExportConfig struct {
	SkipSkin   bool   `yaml:"skip_skin"`
	TextureDir string `yaml:"texture_dir"` // prefix for image URIs
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level     string `yaml:"level"`
	LogFile   string `yaml:"log_file"`
	MaxSizeMB int    `yaml:"max_size_mb"`
	Color     bool   `yaml:"color"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Codec: CodecConfig{
			TextEncoding: "cp932",
		},
		Pack: PackConfig{
			Format: "tmd2",
		},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSizeMB: 20,
			Color:     true,
		},
	}
}
