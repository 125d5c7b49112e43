package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInterceptor_StampsEachCompleteLine(t *testing.T) {
	var buf bytes.Buffer
	i := NewInterceptor(&buf)

	_, err := i.Write([]byte("hello\nworld\n"))
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "line=1")
	assert.Contains(t, lines[0], "hello")
	assert.Contains(t, lines[1], "line=2")
	assert.Contains(t, lines[1], "world")
}

func TestInterceptor_CloseFlushesTrailingPartialLine(t *testing.T) {
	var buf bytes.Buffer
	i := NewInterceptor(&buf)

	_, err := i.Write([]byte("no newline yet"))
	require.NoError(t, err)
	assert.Empty(t, buf.String())

	require.NoError(t, i.Close())
	assert.Contains(t, buf.String(), "no newline yet")
}
