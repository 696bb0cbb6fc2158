package downloader

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetection_ExplicitMarkersSupersedeHeuristics(t *testing.T) {
	d := &Detection{}

	started, consumed := d.Observe("[download] Destination: /tmp/x/Clip.f137.mp4")
	assert.True(t, consumed)
	assert.Equal(t, "/tmp/x/Clip.f137.mp4", started)

	_, consumed = d.Observe(`[artifact] {"title": "Clip!", "filepath": "/tmp/x/Clip.f137.mp4", "vcodec": "vp9", "acodec": "none"}`)
	assert.True(t, consumed)
	d.Observe(`[artifact] {"title": "Clip!", "filepath": "/tmp/x/Clip.f251.webm", "vcodec": "none", "acodec": "opus"}`)

	// Heuristic lines after an explicit report are ignored.
	d.Observe("[download] Destination: /tmp/x/Other.f1.mp4")

	assert.Equal(t, []Output{
		{Path: "/tmp/x/Clip.f137.mp4", Title: "Clip!", Kind: TrackVideoOnly},
		{Path: "/tmp/x/Clip.f251.webm", Title: "Clip!", Kind: TrackAudioOnly},
	}, d.Outputs())

	video, audio, ok := d.mergePlan()
	assert.True(t, ok)
	assert.Equal(t, "/tmp/x/Clip.f137.mp4", video)
	assert.Equal(t, "/tmp/x/Clip.f251.webm", audio)
}

func TestDetection_HeuristicFallback(t *testing.T) {
	d := &Detection{}

	d.Observe("[download] Destination: /tmp/x/Clip.f137.mp4")
	d.Observe("[download] /tmp/x/Clip.f140.m4a has already been downloaded")
	_, consumed := d.Observe("[download]  42.0% of 1.00MiB")
	assert.False(t, consumed)

	video, audio, ok := d.mergePlan()
	assert.True(t, ok)
	assert.Equal(t, "/tmp/x/Clip.f137.mp4", video)
	assert.Equal(t, "/tmp/x/Clip.f140.m4a", audio)

	d.Observe(`[Merger] Merging formats into "/tmp/x/Clip.mp4"`)
	assert.Equal(t, []Output{{Path: "/tmp/x/Clip.mp4", Title: "Clip", Kind: TrackUnknown}}, d.Outputs())
	_, _, ok = d.mergePlan()
	assert.False(t, ok)
}

func TestDetection_ExtractedAudioIsNotANewDownload(t *testing.T) {
	d := &Detection{}

	started, consumed := d.Observe("[download] Destination: /tmp/x/Song.f251.webm")
	assert.True(t, consumed)
	assert.Equal(t, "/tmp/x/Song.f251.webm", started)

	started, consumed = d.Observe("[ExtractAudio] Destination: /tmp/x/Song.f251.mp3")
	assert.True(t, consumed)
	assert.Empty(t, started)

	assert.Equal(t, []Output{
		{Path: "/tmp/x/Song.f251.webm", Title: "Song", Kind: TrackUnknown},
		{Path: "/tmp/x/Song.f251.mp3", Title: "Song", Kind: TrackUnknown},
	}, d.Outputs())
}

func TestDetection_DuplicatePathsCollapse(t *testing.T) {
	d := &Detection{}
	assert.False(t, d.Found())

	d.Observe(`[artifact] {"title": "Clip", "filepath": "/tmp/x/Clip.mp4", "vcodec": "avc1", "acodec": "mp4a"}`)
	d.Observe(`[artifact] {"title": "Clip", "filepath": "/tmp/x/Clip.mp4", "vcodec": "avc1", "acodec": "mp4a"}`)

	assert.True(t, d.Found())
	assert.Len(t, d.Outputs(), 1)
	assert.Equal(t, TrackMuxed, d.Outputs()[0].Kind)
}

func TestDetection_MalformedMarkerIsIgnored(t *testing.T) {
	d := &Detection{}

	_, consumed := d.Observe(`[artifact] {not json`)
	assert.False(t, consumed)
	_, consumed = d.Observe(`[artifact] {"title": "no path"}`)
	assert.False(t, consumed)
	assert.False(t, d.Found())
}

func TestTitleFromPath(t *testing.T) {
	assert.Equal(t, "My_Clip", titleFromPath("/tmp/x/My_Clip.f137.mp4"))
	assert.Equal(t, "My_Clip", titleFromPath("/tmp/x/My_Clip.mp3"))
	assert.Equal(t, "v1.2_release", titleFromPath("v1.2_release.webm"))
}
