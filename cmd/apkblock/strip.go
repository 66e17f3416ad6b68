package main

import (
	"fmt"
	"os"
	"slices"

	"github.com/spf13/pflag"

	"github.com/arloliu/apkblock"
	"github.com/arloliu/apkblock/archive"
	"github.com/arloliu/apkblock/errs"
	"github.com/arloliu/apkblock/format"
	"github.com/arloliu/apkblock/internal/config"
	"github.com/arloliu/apkblock/optimize"
)

func stripCommand(fs *pflag.FlagSet, cfg *config.Config) func(e *env, args []string) error {
	var (
		output  string
		inPlace bool
	)
	fs.StringVarP(&output, "output", "o", "", "output file")
	fs.BoolVar(&inPlace, "in-place", false, "overwrite the input file")
	fs.Var(&cfg.Archive.Compression, "compression", "in-memory entry compression for APKs: none, zstd, s2, lz4")

	return func(e *env, args []string) error {
		input, err := oneArg(args)
		if err != nil {
			return err
		}
		switch {
		case output == "" && !inPlace:
			return fmt.Errorf("%w: give --output or --in-place", errUsage)
		case output != "" && inPlace:
			return fmt.Errorf("%w: --output and --in-place are exclusive", errUsage)
		case inPlace:
			output = input
		}

		data, err := os.ReadFile(input)
		if err != nil {
			return err
		}

		if isZip(data) {
			return stripAPK(e, input, output)
		}

		out, removed, err := stripContainer(data)
		if err != nil {
			return err
		}
		if err := os.WriteFile(output, out, 0o644); err != nil {
			return err
		}
		fmt.Fprintf(e.stdout, "%s: removed %d strings\n", input, removed)

		return nil
	}
}

func stripAPK(e *env, input, output string) error {
	apk, err := apkblock.OpenAPK(input,
		archive.WithCompression(e.cfg.Archive.Compression),
		archive.WithLogger(e.logger))
	if err != nil {
		return err
	}

	res, err := apkblock.StripStrings(e.ctx, apk, optimize.WithLogger(e.logger))
	if err != nil {
		return err
	}
	if err := apk.SaveZip(output); err != nil {
		return err
	}

	names := make([]string, 0, len(res.Removed))
	for name := range res.Removed {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		fmt.Fprintf(e.stdout, "%s: removed %d strings\n", name, res.Removed[name])
	}
	for name, err := range res.Skipped {
		fmt.Fprintf(e.stdout, "%s: skipped: %v\n", name, err)
	}

	return nil
}

// stripContainer removes unused strings from a single DEX, table or XML file.
func stripContainer(data []byte) ([]byte, int, error) {
	switch format.Detect(data) {
	case format.KindDex:
		d, err := apkblock.ParseDex(data)
		if err != nil {
			return nil, 0, err
		}
		n, err := d.RemoveUnusedStrings()
		if err != nil {
			return nil, 0, err
		}
		out, err := d.Bytes()

		return out, n, err
	case format.KindTable:
		t, err := apkblock.ParseTable(data)
		if err != nil {
			return nil, 0, err
		}
		n, err := t.RemoveUnusedStrings()
		if err != nil {
			return nil, 0, err
		}
		out, err := t.Bytes()

		return out, n, err
	case format.KindXML:
		d, err := apkblock.ParseXML(data)
		if err != nil {
			return nil, 0, err
		}
		n := d.RemoveUnusedStrings()
		out, err := d.Bytes()

		return out, n, err
	default:
		return nil, 0, fmt.Errorf("%w: unrecognized container", errs.ErrUnsupported)
	}
}
