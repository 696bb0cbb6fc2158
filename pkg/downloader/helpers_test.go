package downloader

import (
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"mediapull/pkg/progress"
)

// argParser is shared by the fake tools: it exposes $out (the -o template),
// $dir (its directory), $mode (json, mp3 or mp4) and $last (the final arg).
const argParser = `
out=""; mode="mp4"; prev=""; last=""
for a in "$@"; do
  case "$prev" in -o) out="$a" ;; esac
  case "$a" in -j) mode="json" ;; -x) mode="mp3" ;; esac
  prev="$a"; last="$a"
done
dir=$(dirname "$out")
`

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake tools are shell scripts")
	}

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+argParser+body), 0755))
	return path
}

// fakeMergingFFmpeg writes a stub output file and reports progress the way
// ffmpeg does with -progress pipe:1.
const fakeMergingFFmpeg = `
echo "  Duration: 00:00:10.00, start: 0.000000, bitrate: 128 kb/s" >&2
echo "out_time_us=2500000"
echo "progress=continue"
echo "out_time_us=5000000"
echo "progress=continue"
printf 'merged' > "$last"
echo "out_time_us=10000000"
echo "progress=end"
`

const fakeFailingFFmpeg = `
echo "Could not find tag for codec opus in stream #1" >&2
exit 1
`

const fakeMP4Extractor = `
echo "[youtube] abc: Downloading webpage"
echo "[download] Destination: $dir/Test_Video.f137.mp4"
echo "[download]  10.0% of 1.00MiB at 1.00MiB/s ETA 00:01"
echo "[download]  55.5% of 1.00MiB at 1.00MiB/s ETA 00:01"
printf 'video' > "$dir/Test_Video.f137.mp4"
echo "[download] 100% of 1.00MiB in 00:00:01"
echo "[download] Destination: $dir/Test_Video.f140.m4a"
echo "[download]  42.0% of 0.50MiB at 1.00MiB/s ETA 00:01"
printf 'audio' > "$dir/Test_Video.f140.m4a"
echo "[download] 100% of 0.50MiB in 00:00:01"
echo "[artifact] {\"title\": \"Test Video\", \"filepath\": \"$dir/Test_Video.f137.mp4\", \"vcodec\": \"avc1.640028\", \"acodec\": \"none\"}"
echo "[artifact] {\"title\": \"Test Video\", \"filepath\": \"$dir/Test_Video.f140.m4a\", \"vcodec\": \"none\", \"acodec\": \"mp4a.40.2\"}"
`

const fakeMP3Extractor = `
echo "[download] Destination: $dir/Song_Title.f251.webm"
echo "[download]  30.0% of 3.00MiB at 1.00MiB/s ETA 00:02"
printf 'webm' > "$dir/Song_Title.f251.webm"
echo "[download] 100% of 3.00MiB in 00:00:03"
echo "[ExtractAudio] Destination: $dir/Song_Title.f251.mp3"
printf 'mp3-data' > "$dir/Song_Title.f251.mp3"
rm -f "$dir/Song_Title.f251.webm"
echo "Deleting original file $dir/Song_Title.f251.webm (pass -k to keep)"
echo "[artifact] {\"title\": \"Song: Title\", \"filepath\": \"$dir/Song_Title.f251.mp3\", \"vcodec\": \"none\", \"acodec\": \"mp3\"}"
`

// fakeMuxedWebmExtractor reports a single file that already carries both
// streams, in a container other than mp4.
const fakeMuxedWebmExtractor = `
echo "[download] Destination: $dir/Clip.f43.webm"
echo "[download]  60.0% of 2.00MiB at 1.00MiB/s ETA 00:01"
printf 'webm' > "$dir/Clip.f43.webm"
echo "[download] 100% of 2.00MiB in 00:00:02"
echo "[artifact] {\"title\": \"Clip\", \"filepath\": \"$dir/Clip.f43.webm\", \"vcodec\": \"vp8.0\", \"acodec\": \"vorbis\"}"
`

const fakeFailingExtractor = `
echo "[download] Destination: $dir/Broken.f137.mp4"
printf 'partial' > "$dir/Broken.f137.mp4.part"
echo "[download]  12.0% of 1.00MiB"
echo "ERROR: [youtube] abc: Video unavailable" >&2
exit 1
`

type recorder struct {
	mu     sync.Mutex
	events []progress.Event
}

func (r *recorder) relay() *progress.Relay {
	return progress.NewRelay(func(ev progress.Event) {
		r.mu.Lock()
		r.events = append(r.events, ev)
		r.mu.Unlock()
	})
}

func (r *recorder) snapshot() []progress.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]progress.Event(nil), r.events...)
}

// newTestService builds a Service around the given fake tool bodies. An empty
// body leaves that tool unconfigured at a path that does not exist.
func newTestService(t *testing.T, extractor, transcoder string) (*Service, string) {
	t.Helper()

	binDir := t.TempDir()
	tools := Toolchain{
		YTDLPPath:  filepath.Join(binDir, "missing-yt-dlp"),
		FFMPEGPath: filepath.Join(binDir, "missing-ffmpeg"),
	}
	if extractor != "" {
		tools.YTDLPPath = writeScript(t, binDir, "yt-dlp", extractor)
	}
	if transcoder != "" {
		tools.FFMPEGPath = writeScript(t, binDir, "ffmpeg", transcoder)
	}

	tempDir := filepath.Join(t.TempDir(), "downloads")
	svc, err := New(Options{Tools: tools, TempDir: tempDir})
	require.NoError(t, err)
	return svc, tempDir
}

func dirEntries(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)

	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}
