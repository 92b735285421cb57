package main

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/Faultbox/tmdkit/internal/logger"
	"github.com/Faultbox/tmdkit/pkg/cat"
	"github.com/Faultbox/tmdkit/pkg/cats"
	"github.com/Faultbox/tmdkit/pkg/lds"
	"github.com/Faultbox/tmdkit/pkg/pzze"
)

func (a *app) cmdCats(args []string) error {
	if len(args) < 2 {
		return errUsage
	}
	archive, err := cats.Open(args[1])
	if err != nil {
		return err
	}

	switch args[0] {
	case "list", "ls":
		return archive.Walk(func(e *cats.Entry) error {
			indent := strings.Repeat("  ", e.Depth)
			if e.Nested {
				fmt.Printf("%s%s/\n", indent, e.Path)
				return nil
			}
			fmt.Printf("%s%-48s %10d\n", indent, e.Path, e.Size)
			return nil
		})
	case "extract", "x":
		dir := "."
		if len(args) > 2 {
			dir = args[2]
		}
		n, err := archive.Extract(dir)
		if err != nil {
			return err
		}
		logger.Info("archive extracted", zap.String("path", args[1]), zap.String("dir", dir), zap.Int("files", n))
		fmt.Printf("Extracted %d files to %s\n", n, dir)
		return nil
	default:
		return errUsage
	}
}

func (a *app) cmdCat(args []string) error {
	if len(args) < 2 {
		return errUsage
	}
	archive, err := cat.Open(args[1])
	if err != nil {
		return err
	}

	switch args[0] {
	case "list", "ls":
		return archive.Walk(func(e *cat.Entry) error {
			indent := strings.Repeat("  ", e.Depth)
			if e.Kind != cat.KindFile {
				fmt.Printf("%s%s/ (%s type=%d)\n", indent, e.Path, e.Kind, e.Type)
				return nil
			}
			fmt.Printf("%s%-48s %10d\n", indent, e.Path, e.Size)
			return nil
		})
	case "extract", "x":
		dir := "."
		if len(args) > 2 {
			dir = args[2]
		}
		n, err := archive.Extract(dir)
		if err != nil {
			return err
		}
		logger.Info("container extracted", zap.String("path", args[1]), zap.String("dir", dir), zap.Int("files", n))
		fmt.Printf("Extracted %d files to %s\n", n, dir)
		return nil
	default:
		return errUsage
	}
}

func (a *app) cmdLds(args []string) error {
	if len(args) < 2 || args[0] != "extract" {
		return errUsage
	}
	c, err := pzze.Open(args[1])
	if err != nil {
		return err
	}
	pkg, err := lds.Parse(c.Data)
	if err != nil {
		return fmt.Errorf("%s: %w", args[1], err)
	}

	dir := "."
	if len(args) > 2 {
		dir = args[2]
	}
	paths, err := pkg.Extract(dir)
	if err != nil {
		return err
	}
	for i, p := range paths {
		logger.Debug("texture written", zap.String("path", p), zap.Int("size", len(pkg.Textures[i])))
	}
	fmt.Printf("Extracted %d textures to %s\n", len(paths), dir)
	return nil
}

// cmdConfig writes the effective configuration, to the user config
// directory unless a path is given.
func (a *app) cmdConfig(args []string) error {
	if len(args) > 0 {
		if err := a.cfg.SaveTo(args[0]); err != nil {
			return err
		}
		fmt.Printf("Wrote %s\n", args[0])
		return nil
	}
	path, err := a.cfg.Save()
	if err != nil {
		return err
	}
	fmt.Printf("Wrote %s\n", path)
	return nil
}
