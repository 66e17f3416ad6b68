// apkblock edits the binary containers of Android packages.
//
// Usage:
//
//	apkblock optimize [flags] <framework.apk>
//	apkblock strip-strings [flags] <file.apk|classes.dex|resources.arsc|AndroidManifest.xml>
//	apkblock dump [flags] <file>
//
// Configuration is read from the file given by --config or APKBLOCK_CONFIG;
// flags override it.
package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/pflag"

	"github.com/arloliu/apkblock/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// env carries what every subcommand needs.
type env struct {
	ctx    context.Context
	cfg    *config.Config
	logger *slog.Logger
	stdout io.Writer
	stderr io.Writer
}

type command struct {
	name  string
	usage string
	flags func(fs *pflag.FlagSet, cfg *config.Config) func(e *env, args []string) error
}

var commands = []command{
	{"optimize", "reduce a framework APK to its resource table and manifest", optimizeCommand},
	{"strip-strings", "remove unused strings from an APK or a single container", stripCommand},
	{"dump", "print a container, or list the entries of an APK", dumpCommand},
}

var errUsage = errors.New("usage")

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		printUsage(stderr)
		if len(args) == 0 {
			return errUsage
		}

		return nil
	}

	var cmd *command
	for i := range commands {
		if commands[i].name == args[0] {
			cmd = &commands[i]
		}
	}
	if cmd == nil {
		printUsage(stderr)
		return fmt.Errorf("unknown command %q", args[0])
	}

	cfg, err := loadConfig(args[1:])
	if err != nil {
		return err
	}

	fs := pflag.NewFlagSet("apkblock "+cmd.name, pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.String("config", "", "YAML config file (default: $"+config.EnvVar+")")
	fs.StringVar(&cfg.Log.Level, "log-level", cfg.Log.Level, "log level: debug, info, warn, error")
	fs.StringVar(&cfg.Log.Format, "log-format", cfg.Log.Format, "log format: text or json")
	exec := cmd.flags(fs, cfg)

	if err := fs.Parse(args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}

		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := cfg.Log.NewLogger(stderr)
	if err != nil {
		return err
	}

	e := &env{ctx: ctx, cfg: cfg, logger: logger, stdout: stdout, stderr: stderr}
	if err := ctx.Err(); err != nil {
		return err
	}

	return exec(e, fs.Args())
}

// loadConfig finds --config among args before the flag set is parsed so the
// file provides the defaults the flags override.
func loadConfig(args []string) (*config.Config, error) {
	var path string
	for i, arg := range args {
		if arg == "--" {
			break
		}
		if v, ok := strings.CutPrefix(arg, "--config="); ok {
			path = v
		} else if arg == "--config" && i+1 < len(args) {
			path = args[i+1]
		}
	}

	if path != "" {
		return config.LoadFile(path)
	}

	return config.Load()
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "apkblock edits DEX files, resource tables and binary XML inside APKs.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  apkblock <command> [flags] <file>")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	for _, c := range commands {
		fmt.Fprintf(w, "  %-14s %s\n", c.name, c.usage)
	}
}

var zipMagic = []byte("PK\x03\x04")

func isZip(data []byte) bool {
	return bytes.HasPrefix(data, zipMagic)
}

// oneArg checks that exactly one positional argument was given.
func oneArg(args []string) (string, error) {
	if len(args) != 1 {
		return "", fmt.Errorf("%w: expected one input file, got %d arguments", errUsage, len(args))
	}

	return args[0], nil
}
