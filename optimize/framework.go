package optimize

import (
	"fmt"
	"log/slog"

	"github.com/arloliu/apkblock/archive"
	"github.com/arloliu/apkblock/arsc"
	"github.com/arloliu/apkblock/errs"
	"github.com/arloliu/apkblock/internal/options"
)

// FrameworkResult reports what FrameworkOptimizer did.
type FrameworkResult struct {
	Name           string
	Version        int
	AlreadyDone    bool // the table carried an optimize marker
	TableBefore    int
	TableAfter     int
	ManifestBefore int
	ManifestAfter  int
	InlinedValues  int
	RemovedEntries int
}

// TableReduction returns the table size reduction as an integer percentage.
func (r FrameworkResult) TableReduction() int {
	return percentReduced(r.TableBefore, r.TableAfter)
}

// ManifestReduction returns the manifest size reduction as an integer percentage.
func (r FrameworkResult) ManifestReduction() int {
	return percentReduced(r.ManifestBefore, r.ManifestAfter)
}

// FrameworkOptimizer reduces a framework APK to its resource table and a
// minimal manifest.
type FrameworkOptimizer struct {
	cfg *config
}

// NewFrameworkOptimizer creates an optimizer.
func NewFrameworkOptimizer(opts ...Option) (*FrameworkOptimizer, error) {
	cfg := defaultConfig()
	if err := options.Apply(cfg, opts...); err != nil {
		return nil, err
	}

	return &FrameworkOptimizer{cfg: cfg}, nil
}

// Optimize rewrites the resource table and manifest of a in place and removes
// every other entry.
//
// Returns:
//   - FrameworkResult: sizes and counts for reporting
//   - error: errs.ErrEntryNotFound when a has no resource table, or a parse error
func (o *FrameworkOptimizer) Optimize(a archive.Archive) (FrameworkResult, error) {
	log := o.cfg.logger

	if !a.Has(archive.TableName) {
		return FrameworkResult{}, fmt.Errorf("%w: %s", errs.ErrEntryNotFound, archive.TableName)
	}
	data, err := a.Get(archive.TableName)
	if err != nil {
		return FrameworkResult{}, err
	}
	table, err := arsc.ParseTable(data)
	if err != nil {
		return FrameworkResult{}, fmt.Errorf("parse %s: %w", archive.TableName, err)
	}
	if err := table.LoadErrors(); err != nil {
		log.Warn("table chunks kept opaque", slog.Any("error", err))
	}

	var manifest *arsc.Document
	if a.Has(archive.ManifestName) {
		data, err := a.Get(archive.ManifestName)
		if err != nil {
			return FrameworkResult{}, err
		}
		manifest, err = arsc.ParseXML(data)
		if err != nil {
			return FrameworkResult{}, fmt.Errorf("parse %s: %w", archive.ManifestName, err)
		}
	}

	res, err := o.OptimizeTable(table, manifest)
	if err != nil {
		return res, err
	}

	if !res.AlreadyDone {
		out, err := table.Bytes()
		if err != nil {
			return res, err
		}
		if err := a.Replace(archive.TableName, out); err != nil {
			return res, err
		}
		if manifest != nil {
			out, err := manifest.Bytes()
			if err != nil {
				return res, err
			}
			if err := a.Replace(archive.ManifestName, out); err != nil {
				return res, err
			}
		}
	}

	keep := append([]string{archive.TableName, archive.ManifestName}, o.cfg.keep...)
	if n := len(a.Names()); n > len(keep) {
		log.Info("removing files", slog.Int("count", n))
	}
	res.RemovedEntries = archive.RetainOnly(a, keep...)
	log.Info("optimized",
		slog.String("name", res.Name),
		slog.Int("version", res.Version),
		slog.Int("removed_files", res.RemovedEntries))

	return res, nil
}

// OptimizeTable optimizes table, taking the framework name and version from
// manifest when it is not nil. The manifest is compressed and its attribute
// references into table are replaced by the values they resolve to, except
// the application icon.
func (o *FrameworkOptimizer) OptimizeTable(table *arsc.Table, manifest *arsc.Document) (FrameworkResult, error) {
	log := o.cfg.logger
	res := FrameworkResult{Name: o.cfg.defaultName}

	if name, version, ok := table.FrameworkInfo(); ok {
		res.Name, res.Version, res.AlreadyDone = name, version, true
		log.Info("table already optimized", slog.String("name", name), slog.Int("version", version))

		return res, nil
	}

	log.Info("optimizing")
	res.TableBefore = table.CountBytes()

	if manifest != nil {
		if code, ok := manifest.VersionCode(); ok {
			res.Version = code
		}
		if name, ok := manifest.PackageName(); ok && name != "" {
			res.Name = name
		}

		res.ManifestBefore = manifest.CountBytes()
		compressManifest(manifest)
		res.InlinedValues = inlineValues(manifest, table)
		manifest.RemoveUnusedStrings()
		manifest.Refresh()
		res.ManifestAfter = manifest.CountBytes()
		log.Info("manifest compressed",
			slog.Int("reduced_percent", res.ManifestReduction()),
			slog.Int("inlined_values", res.InlinedValues))
	}

	log.Info("optimizing table")
	if err := table.Optimize(res.Name, res.Version); err != nil {
		return res, err
	}
	res.TableAfter = table.CountBytes()
	log.Info("table size reduced", slog.Int("reduced_percent", res.TableReduction()))

	return res, nil
}

// compressManifest removes every element under the manifest root except
// application, and every child of application.
func compressManifest(d *arsc.Document) {
	root, ok := d.Root()
	if !ok {
		return
	}
	for _, el := range root.Elements() {
		if el.Name() != arsc.TagApplication {
			root.RemoveNode(el)
		}
	}

	app, ok := root.Child(arsc.TagApplication)
	if !ok {
		return
	}
	for _, n := range app.Children() {
		app.RemoveNode(n)
	}
}

// inlineValues replaces reference attributes of the manifest by the simple
// values they resolve to in table. The application icon stays a reference.
//
// Returns:
//   - int: number of replaced attributes
func inlineValues(d *arsc.Document, table *arsc.Table) int {
	root, ok := d.Root()
	if !ok {
		return 0
	}

	var (
		icon    *arsc.Attribute
		iconRef uint32
	)
	if app, ok := root.Child(arsc.TagApplication); ok {
		if a, ok := app.Attribute(arsc.AttrIcon); ok && a.Value().Type() == arsc.TypeReference {
			icon, iconRef = a, a.Value().Data()
		}
	}

	n := 0
	root.Walk(func(e *arsc.Element) {
		for _, a := range e.Attributes() {
			if !a.Value().Type().IsReference() {
				continue
			}
			v, ok := table.ResolveValue(a.Value().Data())
			if !ok {
				continue
			}
			if err := a.SetValue(v); err != nil {
				continue
			}
			n++
		}
	})

	if icon != nil && (icon.Value().Type() != arsc.TypeReference || icon.Value().Data() != iconRef) {
		icon.SetTypeAndData(arsc.TypeReference, iconRef)
		n--
	}

	return n
}
