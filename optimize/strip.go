package optimize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/arloliu/apkblock/archive"
	"github.com/arloliu/apkblock/arsc"
	"github.com/arloliu/apkblock/dex"
	"github.com/arloliu/apkblock/errs"
	"github.com/arloliu/apkblock/internal/options"
)

// StripResult counts removed strings per archive entry.
type StripResult struct {
	Removed map[string]int
	Skipped map[string]error // entries left untouched, with the reason
}

// Total returns the number of removed strings over all entries.
func (r StripResult) Total() int {
	n := 0
	for _, c := range r.Removed {
		n += c
	}

	return n
}

// Stripper removes unused strings from the DEX files, the resource table and
// the manifest of an APK.
type Stripper struct {
	cfg     *config
	workers int
}

// NewStripper creates a Stripper that processes up to GOMAXPROCS DEX files at
// once.
func NewStripper(opts ...Option) (*Stripper, error) {
	cfg := defaultConfig()
	if err := options.Apply(cfg, opts...); err != nil {
		return nil, err
	}

	return &Stripper{cfg: cfg, workers: runtime.GOMAXPROCS(0)}, nil
}

// Strip rewrites every supported entry of a whose string pool shrinks.
// An entry that cannot be swept safely (a table with opaque chunks, a DEX file
// with code or unmodelled sections) is reported in StripResult.Skipped; other
// parse failures abort.
func (s *Stripper) Strip(ctx context.Context, a archive.Archive) (StripResult, error) {
	res := StripResult{Removed: make(map[string]int), Skipped: make(map[string]error)}
	var mu sync.Mutex
	record := func(name string, n int, skipped error) {
		mu.Lock()
		defer mu.Unlock()
		if skipped != nil {
			res.Skipped[name] = skipped
			return
		}
		res.Removed[name] = n
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, name := range archive.DexNames(a) {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			n, err := s.stripDex(a, name)
			switch {
			case errors.Is(err, errs.ErrUnsafeSweep), errors.Is(err, errs.ErrUnsupported):
				record(name, 0, err)
			case err != nil:
				return fmt.Errorf("%s: %w", name, err)
			default:
				record(name, n, nil)
			}

			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, err
	}

	if a.Has(archive.TableName) {
		n, err := s.stripTable(a)
		switch {
		case errors.Is(err, errs.ErrUnsafeSweep):
			record(archive.TableName, 0, err)
		case err != nil:
			return res, fmt.Errorf("%s: %w", archive.TableName, err)
		default:
			record(archive.TableName, n, nil)
		}
	}

	if a.Has(archive.ManifestName) {
		n, err := s.stripManifest(a)
		if err != nil {
			return res, fmt.Errorf("%s: %w", archive.ManifestName, err)
		}
		record(archive.ManifestName, n, nil)
	}

	for name, err := range res.Skipped {
		s.cfg.logger.Warn("entry skipped", slog.String("name", name), slog.Any("error", err))
	}
	s.cfg.logger.Info("strings stripped", slog.Int("removed", res.Total()))

	return res, nil
}

func (s *Stripper) stripDex(a archive.Archive, name string) (int, error) {
	data, err := a.Get(name)
	if err != nil {
		return 0, err
	}
	d, err := dex.Parse(data)
	if err != nil {
		return 0, err
	}

	n, err := d.RemoveUnusedStrings()
	if err != nil {
		return 0, err
	}
	s.cfg.logger.Debug("dex swept", slog.String("name", name), slog.Int("removed", n))
	if n == 0 {
		return 0, nil
	}

	out, err := d.Bytes()
	if err != nil {
		return 0, err
	}

	return n, a.Replace(name, out)
}

func (s *Stripper) stripTable(a archive.Archive) (int, error) {
	data, err := a.Get(archive.TableName)
	if err != nil {
		return 0, err
	}
	table, err := arsc.ParseTable(data)
	if err != nil {
		return 0, err
	}

	n, err := table.RemoveUnusedStrings()
	if err != nil || n == 0 {
		return 0, err
	}
	out, err := table.Bytes()
	if err != nil {
		return 0, err
	}

	return n, a.Replace(archive.TableName, out)
}

func (s *Stripper) stripManifest(a archive.Archive) (int, error) {
	data, err := a.Get(archive.ManifestName)
	if err != nil {
		return 0, err
	}
	doc, err := arsc.ParseXML(data)
	if err != nil {
		return 0, err
	}

	n := doc.RemoveUnusedStrings()
	if n == 0 {
		return 0, nil
	}
	out, err := doc.Bytes()
	if err != nil {
		return 0, err
	}

	return n, a.Replace(archive.ManifestName, out)
}
