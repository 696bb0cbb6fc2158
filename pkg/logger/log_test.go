package logger

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEmit_RespectsMinLevelAndPadsNames(t *testing.T) {
	var buf bytes.Buffer
	Log.SetOutput(&buf)
	Log.SetMinLevel(WARNING)
	t.Cleanup(func() {
		Log.SetOutput(nil)
		Log.SetMinLevel(INFO)
	})

	Get("Downloader").Emit(INFO, "hidden %d\n", 1)
	Get("API").Emit(ERROR, "visible %s", "yes")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "[API]")
	assert.Contains(t, out, "(!!) visible yes\n")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DEBUG, ParseLevel("Debug"))
	assert.Equal(t, WARNING, ParseLevel("warn"))
	assert.Equal(t, ERROR, ParseLevel("error"))
	assert.Equal(t, INFO, ParseLevel("nonsense"))
}
