package main

import (
	"bytes"
	"flag"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/davecgh/go-spew/spew"
	"go.uber.org/zap"

	"github.com/Faultbox/tmdkit/internal/logger"
	"github.com/Faultbox/tmdkit/pkg/pzze"
	"github.com/Faultbox/tmdkit/pkg/tmd"
)

// loadModel reads and decodes a model, unwrapping PZZE when present. The
// returned container keeps the raw bytes and the wrapper format tag.
func (a *app) loadModel(name string) (*tmd.File, *pzze.Container, error) {
	c, err := pzze.Open(name)
	if err != nil {
		return nil, nil, err
	}
	f, err := tmd.Decode(c.Data, a.opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", name, err)
	}
	logger.Debug("model loaded",
		zap.String("path", name),
		zap.String("wrapper", c.Format),
		zap.Int("size", len(c.Data)),
	)
	return f, c, nil
}

// stats is a structural summary used by info and roundtrip.
type stats struct {
	Models, Meshes, Submeshes  int
	Vertices, Triangles        int
	Materials, Textures, Bones int
}

func summarize(f *tmd.File) stats {
	s := stats{
		Models:    len(f.Models),
		Submeshes: len(f.Submeshes),
		Materials: len(f.Materials),
		Textures:  len(f.Textures),
		Bones:     len(f.Bones),
	}
	for _, m := range f.Models {
		s.Meshes += len(m.Meshes)
	}
	for _, g := range f.Submeshes {
		s.Vertices += len(g.Vertices)
		s.Triangles += len(g.Triangles)
	}
	return s
}

func (a *app) cmdInfo(args []string) error {
	if len(args) < 1 {
		return errUsage
	}
	c, err := pzze.Open(args[0])
	if err != nil {
		return err
	}
	h, err := tmd.ReadHeader(c.Data)
	if err != nil {
		return err
	}
	f, err := tmd.Decode(c.Data, a.opts...)
	if err != nil {
		return err
	}

	fmt.Printf("File:     %s\n", args[0])
	if c.Format != "" {
		fmt.Printf("Wrapper:  PZZE (%s), %d bytes decompressed\n", c.Format, len(c.Data))
	}
	fmt.Printf("Version:  0x%x\n", h.Version)
	fmt.Printf("Flags:    0x%04x (%s)\n", uint16(h.Flags), h.Flags)
	fmt.Printf("Frames:   %d\n", h.FrameCount)

	var fields []string
	for _, fl := range tmd.Layout(h.Flags) {
		fields = append(fields, fl.String())
	}
	fmt.Printf("Vertex:   %d bytes [%s]\n", tmd.RecordSize(h.Flags), strings.Join(fields, " "))

	s := summarize(f)
	fmt.Println()
	fmt.Printf("Models:     %d (%d meshes)\n", s.Models, s.Meshes)
	fmt.Printf("Submeshes:  %d (%d vertices, %d triangles)\n", s.Submeshes, s.Vertices, s.Triangles)
	fmt.Printf("Materials:  %d\n", s.Materials)
	fmt.Printf("Textures:   %d\n", s.Textures)
	fmt.Printf("Bones:      %d (%d index tables)\n", s.Bones, len(f.IndexTables))

	stored := tmd.BoundsFromBox(f.BoundingBox)
	fmt.Println()
	fmt.Printf("Bounds:     center %v size %v (stored)\n", stored.Center(), stored.Size())
	if b, ok := f.Bounds(); ok {
		fmt.Printf("            center %v size %v radius %.3f (geometry)\n", b.Center(), b.Size(), b.Radius())
	}

	if len(f.Models) > 0 {
		fmt.Println()
		fmt.Println("Models:")
		for i, m := range f.Models {
			fmt.Printf("  %3d %-32s meshes=%d materials=%d\n", i, m.Name, len(m.Meshes), len(m.Materials))
		}
	}
	if len(f.Bones) > 0 {
		world, err := f.BindPose()
		if err != nil {
			return err
		}
		fmt.Println()
		fmt.Println("Bones:")
		for i, b := range f.Bones {
			fmt.Printf("  %3d %-24s parent=%-4d world=%v\n", i, b.Name, b.Parent, world[i].Translation())
		}
	}
	if len(f.Materials) > 0 {
		fmt.Println()
		fmt.Println("Materials:")
		for i, m := range f.Materials {
			fmt.Printf("  %3d %-12s shader=%-4s textures=%d params=%d\n", i, m.Name(), m.ShaderID, len(m.Textures), len(m.Params))
		}
	}
	return nil
}

func (a *app) cmdUnpack(args []string) error {
	if len(args) < 2 {
		return errUsage
	}
	c, err := pzze.Open(args[0])
	if err != nil {
		return err
	}
	if c.Format == "" {
		logger.Warn("input is not PZZE-wrapped, copying as is", zap.String("path", args[0]))
	}
	if err := os.WriteFile(args[1], c.Data, 0o644); err != nil {
		return err
	}
	fmt.Printf("Unpacked %s -> %s (%d bytes)\n", args[0], args[1], len(c.Data))
	return nil
}

func (a *app) cmdPack(args []string) error {
	fs := flag.NewFlagSet("pack", flag.ExitOnError)
	format := fs.String("format", a.cfg.Pack.Format, "PZZE format tag")
	fs.Parse(args)
	if fs.NArg() < 2 {
		return errUsage
	}

	data, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return err
	}
	if pzze.IsCompressed(data) {
		return fmt.Errorf("%s is already PZZE-wrapped", fs.Arg(0))
	}
	packed, err := pzze.Compress(data, *format)
	if err != nil {
		return err
	}
	if err := os.WriteFile(fs.Arg(1), packed, 0o644); err != nil {
		return err
	}
	fmt.Printf("Packed %s -> %s (%d -> %d bytes)\n", fs.Arg(0), fs.Arg(1), len(data), len(packed))
	return nil
}

func (a *app) cmdRoundtrip(args []string) error {
	fs := flag.NewFlagSet("roundtrip", flag.ExitOnError)
	out := fs.String("o", "", "Write the re-encoded file here")
	fixBounds := fs.Bool("fix-bounds", false, "Recompute file and model bounding boxes from geometry")
	fs.Parse(args)
	if fs.NArg() < 1 {
		return errUsage
	}

	f, c, err := a.loadModel(fs.Arg(0))
	if err != nil {
		return err
	}
	if *fixBounds {
		f.RecomputeBounds()
	}
	encoded, err := f.Encode(a.opts...)
	if err != nil {
		return fmt.Errorf("re-encoding: %w", err)
	}
	again, err := tmd.Decode(encoded, a.opts...)
	if err != nil {
		return fmt.Errorf("decoding re-encoded data: %w", err)
	}

	before, after := summarize(f), summarize(again)
	if before != after {
		return fmt.Errorf("round trip changed the scene: %+v -> %+v", before, after)
	}

	identical := bytes.Equal(encoded, c.Data)
	fmt.Printf("Round trip OK: %d -> %d bytes, byte-identical: %v\n", len(c.Data), len(encoded), identical)

	if *out == "" {
		return nil
	}
	if c.Format != "" {
		if encoded, err = pzze.Compress(encoded, c.Format); err != nil {
			return err
		}
	}
	return os.WriteFile(*out, encoded, 0o644)
}

func (a *app) cmdDump(args []string) error {
	fs := flag.NewFlagSet("dump", flag.ExitOnError)
	depth := fs.Int("depth", 5, "Maximum nesting depth (0 = unlimited)")
	fs.Parse(args)
	if fs.NArg() < 1 {
		return errUsage
	}

	f, _, err := a.loadModel(fs.Arg(0))
	if err != nil {
		return err
	}

	cs := spew.NewDefaultConfig()
	cs.DisableCapacities = true
	cs.DisablePointerAddresses = true
	cs.SortKeys = true
	cs.MaxDepth = *depth
	cs.Fdump(os.Stdout, f)
	return nil
}

func (a *app) cmdExport(args []string) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	out := fs.String("o", "", "Output .glb path (default: input name with .glb)")
	textures := fs.String("textures", a.cfg.Export.TextureDir, "Directory prefix for texture URIs")
	noSkin := fs.Bool("no-skin", a.cfg.Export.SkipSkin, "Export geometry without the skeleton")
	fs.Parse(args)
	if fs.NArg() < 1 {
		return errUsage
	}

	f, _, err := a.loadModel(fs.Arg(0))
	if err != nil {
		return err
	}

	dir := *textures
	uri := func(t *tmd.Texture) string {
		return path.Join(dir, tmd.TextureFileName(t))
	}
	doc, err := f.ExportGLTF(tmd.ExportOptions{SkipSkin: *noSkin, TextureURI: uri})
	if err != nil {
		return err
	}

	target := *out
	if target == "" {
		target = strings.TrimSuffix(fs.Arg(0), filepath.Ext(fs.Arg(0))) + ".glb"
	}
	file, err := os.Create(target)
	if err != nil {
		return err
	}
	if err := tmd.WriteGLB(file, doc); err != nil {
		file.Close()
		return err
	}
	if err := file.Close(); err != nil {
		return err
	}
	fmt.Printf("Exported %s -> %s (%d meshes, %d nodes)\n", fs.Arg(0), target, len(doc.Meshes), len(doc.Nodes))
	return nil
}
