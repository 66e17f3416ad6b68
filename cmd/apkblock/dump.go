package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/pflag"

	"github.com/arloliu/apkblock"
	"github.com/arloliu/apkblock/archive"
	"github.com/arloliu/apkblock/errs"
	"github.com/arloliu/apkblock/internal/config"
)

func dumpCommand(fs *pflag.FlagSet, _ *config.Config) func(e *env, args []string) error {
	var (
		entry string
		chase string
	)
	fs.StringVar(&entry, "entry", "", "APK entry to print (default: list entries)")
	fs.StringVar(&chase, "chase", "", "resource id whose alias chain to print (tables only)")

	return func(e *env, args []string) error {
		input, err := oneArg(args)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(input)
		if err != nil {
			return err
		}

		if isZip(data) {
			apk, err := apkblock.OpenAPK(input, archive.WithLogger(e.logger))
			if err != nil {
				return err
			}
			if entry == "" {
				return listEntries(e, apk)
			}
			if data, err = apk.Get(entry); err != nil {
				return err
			}
		}

		if chase != "" {
			return printChase(e, data, chase)
		}

		return apkblock.Dump(e.stdout, data)
	}
}

func listEntries(e *env, apk *archive.Memory) error {
	for _, name := range apk.Names() {
		d, _ := apk.Digest(name)
		fmt.Fprintf(e.stdout, "%10d  %s  %s\n", apk.Size(name), d.String()[:16], name)
	}
	fmt.Fprintf(e.stdout, "%10d  total, %d entries\n", apk.TotalSize(), apk.Len())

	return nil
}

func printChase(e *env, data []byte, id string) error {
	rid, err := strconv.ParseUint(id, 0, 32)
	if err != nil {
		return fmt.Errorf("%w: resource id %q", errUsage, id)
	}
	table, err := apkblock.ParseTable(data)
	if err != nil {
		return err
	}

	chain, err := table.Chase(uint32(rid))
	for i, step := range chain {
		fmt.Fprintf(e.stdout, "%*s0x%08x\n", 2*i, "", step)
	}
	switch {
	case errors.Is(err, errs.ErrCircularReference):
		fmt.Fprintln(e.stdout, "circular reference")
	case errors.Is(err, errs.ErrDanglingReference):
		fmt.Fprintln(e.stdout, "dangling reference")
	case err != nil:
		return err
	default:
		v, _ := table.ResolveValue(uint32(rid))
		if v != nil {
			fmt.Fprintf(e.stdout, "= %s\n", v.Display())
		} else {
			fmt.Fprintln(e.stdout, "= bag")
		}
	}

	return nil
}
