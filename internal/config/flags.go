package config

import "flag"

// Flags holds command-line overrides. Zero values leave the config alone.
type Flags struct {
	ConfigPath string
	Debug      bool
	Encoding   string
	LogFile    string
}

// Register binds the global tmdtool flags on fs.
func (f *Flags) Register(fs *flag.FlagSet) {
	fs.StringVar(&f.ConfigPath, "config", "", "Path to config file")
	fs.BoolVar(&f.Debug, "debug", false, "Enable debug logging")
	fs.StringVar(&f.Encoding, "encoding", "", "Name table text encoding (cp932, euc-kr, utf-8, ...)")
	fs.StringVar(&f.LogFile, "log", "", "Also write logs to this file")
}

// Resolve applies CLI flag overrides to the config.
func (c *Config) Resolve(f Flags) {
	if f.Debug {
		c.Logging.Level = "debug"
	}
	if f.Encoding != "" {
		c.Codec.TextEncoding = f.Encoding
	}
	if f.LogFile != "" {
		c.Logging.LogFile = f.LogFile
	}
}
