package memory

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSinkPutAndFile(t *testing.T) {
	t.Parallel()

	s := New()
	uri, err := s.Put(context.Background(), "a.csv", "text/csv", strings.NewReader("x,y\n"))
	require.NoError(t, err)
	assert.Equal(t, "memory://a.csv", uri)

	data, ct, ok := s.File("a.csv")
	require.True(t, ok)
	assert.Equal(t, "x,y\n", string(data))
	assert.Equal(t, "text/csv", ct)
	assert.Equal(t, []string{"a.csv"}, s.Names())

	_, _, ok = s.File("missing")
	assert.False(t, ok)
}
