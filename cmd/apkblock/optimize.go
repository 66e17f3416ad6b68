package main

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"

	"github.com/arloliu/apkblock"
	"github.com/arloliu/apkblock/archive"
	"github.com/arloliu/apkblock/internal/config"
	"github.com/arloliu/apkblock/optimize"
)

func optimizeCommand(fs *pflag.FlagSet, cfg *config.Config) func(e *env, args []string) error {
	var output string
	fs.StringVarP(&output, "output", "o", "", "output APK (default: <input>-optimized.apk)")
	fs.Var(&cfg.Archive.Compression, "compression", "in-memory entry compression: none, zstd, s2, lz4")
	fs.StringVar(&cfg.Optimize.FrameworkName, "name", cfg.Optimize.FrameworkName, "framework name when the manifest has no package")
	fs.StringSliceVar(&cfg.Optimize.Keep, "keep", cfg.Optimize.Keep, "extra entries to keep (repeatable)")

	return func(e *env, args []string) error {
		input, err := oneArg(args)
		if err != nil {
			return err
		}
		if output == "" {
			output = strings.TrimSuffix(input, ".apk") + "-optimized.apk"
		}

		apk, err := apkblock.OpenAPK(input,
			archive.WithCompression(e.cfg.Archive.Compression),
			archive.WithLogger(e.logger))
		if err != nil {
			return err
		}

		res, err := apkblock.OptimizeFramework(apk,
			optimize.WithLogger(e.logger),
			optimize.WithDefaultName(e.cfg.Optimize.FrameworkName),
			optimize.WithKeepEntries(e.cfg.Optimize.Keep...))
		if err != nil {
			return err
		}
		if err := apk.SaveZip(output); err != nil {
			return err
		}

		if res.AlreadyDone {
			fmt.Fprintf(e.stdout, "%s: already optimized (%s %d)\n", input, res.Name, res.Version)
			return nil
		}
		fmt.Fprintf(e.stdout, "%s -> %s: %s version %d, table -%d%%, manifest -%d%%, %d files removed\n",
			input, output, res.Name, res.Version,
			res.TableReduction(), res.ManifestReduction(), res.RemovedEntries)

		return nil
	}
}
