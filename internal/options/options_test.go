package options

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type config struct {
	level int
	name  string
}

func withLevel(level int) Option[*config] {
	return New(func(c *config) error {
		if level < 0 {
			return errors.New("negative level")
		}
		c.level = level

		return nil
	})
}

func withName(name string) Option[*config] {
	return NoError(func(c *config) { c.name = name })
}

func TestApply(t *testing.T) {
	cfg := &config{}
	require.NoError(t, Apply(cfg, withLevel(3), nil, withName("framework")))
	require.Equal(t, 3, cfg.level)
	require.Equal(t, "framework", cfg.name)
}

func TestApply_StopsOnError(t *testing.T) {
	cfg := &config{}
	err := Apply(cfg, withLevel(-1), withName("skipped"))
	require.Error(t, err)
	require.Empty(t, cfg.name)
}
