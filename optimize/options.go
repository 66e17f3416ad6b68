package optimize

import (
	"log/slog"

	"github.com/arloliu/apkblock/internal/options"
)

// DefaultFrameworkName names an optimized table when the APK has no manifest.
const DefaultFrameworkName = "framework"

type config struct {
	logger      *slog.Logger
	defaultName string
	keep        []string
}

func defaultConfig() *config {
	return &config{
		logger:      slog.New(slog.DiscardHandler),
		defaultName: DefaultFrameworkName,
	}
}

// Option configures a policy.
type Option = options.Option[*config]

// WithLogger sets the logger progress and size reductions are reported to.
func WithLogger(logger *slog.Logger) Option {
	return options.NoError(func(cfg *config) {
		if logger != nil {
			cfg.logger = logger
		}
	})
}

// WithDefaultName sets the framework name used when the manifest has no
// package name.
func WithDefaultName(name string) Option {
	return options.NoError(func(cfg *config) {
		if name != "" {
			cfg.defaultName = name
		}
	})
}

// WithKeepEntries adds archive entries that survive the framework optimizer
// besides the resource table and the manifest.
func WithKeepEntries(names ...string) Option {
	return options.NoError(func(cfg *config) {
		cfg.keep = append(cfg.keep, names...)
	})
}

// percentReduced returns the integer percentage by which size shrank from prev.
func percentReduced(prev, now int) int {
	if prev <= 0 {
		return 0
	}

	return (prev - now) * 100 / prev
}
