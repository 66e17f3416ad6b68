package hash

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type textKey string

func (k textKey) String() string { return string(k) }

func TestKey(t *testing.T) {
	require.Equal(t, Key(textKey("Ljava/lang/Object;")), Key(textKey("Ljava/lang/Object;")))
	require.NotEqual(t, Key(textKey("a")), Key(textKey("b")))
	require.Equal(t, uint64(0xef46db3751d8e999), Key(textKey("")))
}
