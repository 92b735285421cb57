// tmdtool is a CLI utility for inspecting and converting tmd0 model files and
// the archives they ship in.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/Faultbox/tmdkit/internal/config"
	"github.com/Faultbox/tmdkit/internal/logger"
	"github.com/Faultbox/tmdkit/pkg/tmd"
)

// errUsage makes main print the usage text instead of an error.
var errUsage = errors.New("usage")

type app struct {
	cfg  *config.Config
	opts []tmd.Option
}

func main() {
	var flags config.Flags
	global := flag.NewFlagSet("tmdtool", flag.ExitOnError)
	global.Usage = printUsage
	flags.Register(global)
	global.Parse(os.Args[1:])

	if global.NArg() < 1 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.Load(flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := initLogger(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	a := &app{
		cfg: cfg,
		opts: []tmd.Option{
			tmd.WithLogger(logger.Log),
			tmd.WithTextEncoding(cfg.Codec.TextEncoding),
		},
	}

	command, args := global.Arg(0), global.Args()[1:]
	switch command {
	case "info":
		err = a.cmdInfo(args)
	case "unpack":
		err = a.cmdUnpack(args)
	case "pack":
		err = a.cmdPack(args)
	case "roundtrip", "rt":
		err = a.cmdRoundtrip(args)
	case "dump":
		err = a.cmdDump(args)
	case "export":
		err = a.cmdExport(args)
	case "cats":
		err = a.cmdCats(args)
	case "cat":
		err = a.cmdCat(args)
	case "lds":
		err = a.cmdLds(args)
	case "config":
		err = a.cmdConfig(args)
	case "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}

	if errors.Is(err, errUsage) {
		printUsage()
		os.Exit(2)
	}
	if err != nil {
		logger.Error("command failed", zap.String("command", command), zap.Error(err))
		logger.Sync()
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	logger.Sync()
}

func initLogger(cfg *config.Config) error {
	opts := logger.Options{
		Level:   cfg.Logging.Level,
		Console: os.Stderr,
		Color:   cfg.Logging.Color,
	}
	if cfg.Logging.LogFile != "" {
		opts.File = logger.DefaultFileConfig(cfg.Logging.LogFile)
		if cfg.Logging.MaxSizeMB > 0 {
			opts.File.MaxSizeMB = cfg.Logging.MaxSizeMB
		}
	}
	return logger.Init(opts)
}

func printUsage() {
	fmt.Println(`tmdtool - tmd0 model container utility

Usage:
  tmdtool [-config file] [-debug] [-encoding name] [-log file] <command> [options]

Commands:
  info <file>                           Show header, layout and scene summary
  unpack <in> <out>                     Strip the PZZE wrapper
  pack [-format tmd2] <in> <out>        Wrap a raw file in PZZE
  roundtrip [-o out] [-fix-bounds] <file>
                                        Decode, re-encode and verify a model
  dump [-depth n] <file>                Print the decoded scene graph
  export [-o out.glb] [-textures dir] <file>
                                        Convert a model to binary glTF
  cats list <file>                      List archive entries
  cats extract <file> [dir]             Extract archive entries
  cat list <file>                       List CAT groups and items
  cat extract <file> [dir]              Extract CAT items
  lds extract <file> [dir]              Extract texture blobs as texture_N.dds
  config [path]                         Write the effective configuration

Model, archive and texture inputs may be raw or PZZE-wrapped.

Examples:
  tmdtool info pl002_hair00_00.tmd2
  tmdtool export -o hair.glb pl002_hair00_00.tmd2
  tmdtool -encoding euc-kr dump model.tmd2
  tmdtool cats extract bg000_00.cat ./bg000`)
}
