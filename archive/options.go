package archive

import (
	"log/slog"

	"github.com/arloliu/apkblock/compress"
	"github.com/arloliu/apkblock/format"
	"github.com/arloliu/apkblock/internal/options"
)

type config struct {
	compression format.CompressionType
	logger      *slog.Logger
}

func defaultConfig() *config {
	return &config{
		compression: format.CompressionNone,
		logger:      slog.New(slog.DiscardHandler),
	}
}

// Option configures a Memory archive.
type Option = options.Option[*config]

// WithCompression selects the codec entries are held with. Entries whose
// compressed form is not smaller than the original are stored as-is.
func WithCompression(c format.CompressionType) Option {
	return options.New(func(cfg *config) error {
		if _, err := compress.GetCodec(c); err != nil {
			return err
		}
		cfg.compression = c

		return nil
	})
}

// WithLogger sets the logger used for entry-level debug events.
func WithLogger(logger *slog.Logger) Option {
	return options.NoError(func(cfg *config) {
		if logger != nil {
			cfg.logger = logger
		}
	})
}
