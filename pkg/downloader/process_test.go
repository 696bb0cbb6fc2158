package downloader

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamCommand_DeliversBothStreams(t *testing.T) {
	bin := writeScript(t, t.TempDir(), "tool", `
echo "out one"
echo "err one" >&2
printf 'tick 10%%\rtick 20%%\r\n'
echo "out two"
`)

	var stdout, stderr []string
	err := streamCommand(context.Background(), bin, nil, func(line outputLine) {
		if line.source == stderrStream {
			stderr = append(stderr, line.text)
			return
		}
		stdout = append(stdout, line.text)
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"out one", "tick 10%", "tick 20%", "out two"}, stdout)
	assert.Equal(t, []string{"err one"}, stderr)
}

func TestStreamCommand_ExitErrorKeepsStderrTail(t *testing.T) {
	bin := writeScript(t, t.TempDir(), "tool", `
i=0
while [ $i -lt 30 ]; do echo "line $i" >&2; i=$((i+1)); done
exit 3
`)

	err := streamCommand(context.Background(), bin, nil, func(outputLine) {})

	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, 3, exitErr.Code)

	lines := strings.Split(exitErr.Stderr, "\n")
	assert.Len(t, lines, stderrTail)
	assert.Equal(t, "line 29", lines[len(lines)-1])
}

func TestStreamCommand_MissingBinary(t *testing.T) {
	err := streamCommand(context.Background(), "/nonexistent/tool", nil, func(outputLine) {})
	require.Error(t, err)

	var exitErr *ExitError
	assert.False(t, errors.As(err, &exitErr))
}

func TestToolchain_Resolve(t *testing.T) {
	binDir := t.TempDir()
	local := writeScript(t, binDir, ExtractorName, "exit 0")

	path, err := Toolchain{BinDir: binDir}.Extractor()
	require.NoError(t, err)
	assert.Equal(t, local, path)

	path, err = Toolchain{YTDLPPath: local}.Extractor()
	require.NoError(t, err)
	assert.Equal(t, local, path)

	_, err = Toolchain{YTDLPPath: "/nonexistent/yt-dlp", BinDir: binDir}.Extractor()
	assert.ErrorIs(t, err, ErrToolNotFound)
}
