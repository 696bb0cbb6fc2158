package downloader

import (
	"encoding/json"
	"path/filepath"
	"regexp"
	"strings"
)

// artifactMarker prefixes the line yt-dlp prints for every file once all
// post-processing has finished (see printTemplate).
const artifactMarker = "[artifact] "

var printTemplate = "after_move:" + artifactMarker + "%(.{title,filepath,vcodec,acodec})j"

// TrackKind describes which elementary streams a produced file holds.
type TrackKind int

const (
	TrackUnknown TrackKind = iota
	TrackMuxed
	TrackVideoOnly
	TrackAudioOnly
)

// Output is one file reported by the extraction tool.
type Output struct {
	Path  string
	Title string
	Kind  TrackKind
}

// Detection is the typed result of scanning tool output for produced files.
type Detection struct {
	outputs  []Output
	explicit bool
}

// Found reports whether at least one produced file was detected.
func (d *Detection) Found() bool {
	return len(d.outputs) > 0
}

// Outputs returns the distinct detected files in the order they appeared.
func (d *Detection) Outputs() []Output {
	return append([]Output(nil), d.outputs...)
}

var (
	destinationPattern = regexp.MustCompile(`^\[download\] Destination: (.+)$`)
	extractedPattern   = regexp.MustCompile(`^\[ExtractAudio\] Destination: (.+)$`)
	alreadyPattern     = regexp.MustCompile(`^\[download\] (.+) has already been downloaded`)
	mergerPattern      = regexp.MustCompile(`^\[Merger\] Merging formats into "(.+)"$`)
	formatSuffix       = regexp.MustCompile(`\.f[0-9A-Za-z_-]+$`)
)

type artifactLine struct {
	Title    string `json:"title"`
	Filepath string `json:"filepath"`
	VCodec   string `json:"vcodec"`
	ACodec   string `json:"acodec"`
}

// Observe inspects one output line. It returns the path of a newly started
// download (so the caller can begin a new progress phase), and
// whether the line was consumed as a path report.
func (d *Detection) Observe(line string) (started string, consumed bool) {
	if strings.HasPrefix(line, artifactMarker) {
		var a artifactLine
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, artifactMarker)), &a); err != nil || a.Filepath == "" {
			return "", false
		}
		if !d.explicit {
			// Explicit reports supersede anything guessed so far.
			d.outputs = nil
			d.explicit = true
		}
		d.add(Output{Path: a.Filepath, Title: a.Title, Kind: classifyCodecs(a.VCodec, a.ACodec)})
		return "", true
	}

	if m := destinationPattern.FindStringSubmatch(line); m != nil {
		d.heuristic(m[1])
		return m[1], true
	}
	if m := extractedPattern.FindStringSubmatch(line); m != nil {
		// Post-processing output of a finished track, not a new download.
		d.heuristic(m[1])
		return "", true
	}
	if m := alreadyPattern.FindStringSubmatch(line); m != nil {
		d.heuristic(m[1])
		return "", true
	}
	if m := mergerPattern.FindStringSubmatch(line); m != nil {
		if !d.explicit {
			// The merged file replaces the tracks it was built from.
			d.outputs = nil
		}
		d.heuristic(m[1])
		return "", true
	}

	return "", false
}

func (d *Detection) heuristic(path string) {
	if d.explicit {
		return
	}
	d.add(Output{Path: path, Title: titleFromPath(path), Kind: TrackUnknown})
}

func (d *Detection) add(o Output) {
	for i, existing := range d.outputs {
		if existing.Path == o.Path {
			if existing.Kind == TrackUnknown {
				d.outputs[i].Kind = o.Kind
			}
			return
		}
	}
	d.outputs = append(d.outputs, o)
}

func classifyCodecs(vcodec, acodec string) TrackKind {
	hasVideo := vcodec != "" && vcodec != "none"
	hasAudio := acodec != "" && acodec != "none"

	switch {
	case hasVideo && hasAudio:
		return TrackMuxed
	case hasVideo:
		return TrackVideoOnly
	case hasAudio:
		return TrackAudioOnly
	default:
		return TrackUnknown
	}
}

// titleFromPath derives a display title from a tool output path, dropping
// the extension and any per-format suffix such as ".f137".
func titleFromPath(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return formatSuffix.ReplaceAllString(base, "")
}

// mergePlan decides whether the detected outputs are separate video and
// audio tracks that must be muxed. It returns the video and audio inputs.
func (d *Detection) mergePlan() (video, audio string, ok bool) {
	if len(d.outputs) != 2 {
		return "", "", false
	}

	a, b := d.outputs[0], d.outputs[1]
	switch {
	case a.Kind == TrackAudioOnly && b.Kind != TrackAudioOnly:
		return b.Path, a.Path, true
	case b.Kind == TrackAudioOnly && a.Kind != TrackAudioOnly:
		return a.Path, b.Path, true
	case a.Kind == TrackUnknown && b.Kind == TrackUnknown:
		// yt-dlp fetches the video selector first.
		return a.Path, b.Path, true
	default:
		return "", "", false
	}
}
