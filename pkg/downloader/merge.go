package downloader

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"mediapull/pkg/logger"
	"mediapull/pkg/progress"
)

// MergeJob muxes the video stream of Video with the audio stream of Audio
// into Output. An empty Audio remuxes Video alone, keeping its own audio
// stream when it has one.
type MergeJob struct {
	Video  string
	Audio  string
	Output string
}

// mergeStrategies are tried in order. Stream copy is preferred; the second
// attempt re-encodes audio only, for codecs the mp4 container rejects, and
// the last re-encodes both streams.
var mergeStrategies = []struct {
	name  string
	codec []string
}{
	{name: "stream copy", codec: []string{"-c", "copy"}},
	{name: "aac audio", codec: []string{"-c:v", "copy", "-c:a", "aac", "-b:a", "192k"}},
	{name: "full transcode", codec: []string{"-c:v", "libx264", "-preset", "veryfast", "-crf", "23", "-c:a", "aac", "-b:a", "192k"}},
}

var durationPattern = regexp.MustCompile(`Duration: (\d+):(\d{2}):(\d{2}(?:\.\d+)?)`)

func (job MergeJob) args(codec []string) []string {
	args := []string{"-hide_banner", "-nostdin", "-y", "-i", job.Video}
	if job.Audio != "" {
		args = append(args, "-i", job.Audio, "-map", "0:v:0", "-map", "1:a:0")
	} else {
		args = append(args, "-map", "0:v:0", "-map", "0:a:0?")
	}
	args = append(args, codec...)
	return append(args,
		"-movflags", "+faststart",
		"-progress", "pipe:1",
		"-nostats",
		job.Output,
	)
}

func (job MergeJob) describe() string {
	if job.Audio == "" {
		return job.Video
	}
	return job.Video + " + " + job.Audio
}

// Merge runs the transcoding tool for job. Completion is the process's own
// exit; the caller's scope must already hold every path in job.
func (s *Service) Merge(ctx context.Context, job MergeJob, relay *progress.Relay) error {
	const op = "merge"

	bin, err := s.tools.Transcoder()
	if err != nil {
		return toolNotFound(op, TranscoderName, err)
	}

	var lastErr error
	for _, strategy := range mergeStrategies {
		relay.Begin(progress.PhaseMerge)

		tracker := &mergeProgress{relay: relay}
		lastErr = streamCommand(ctx, bin, job.args(strategy.codec), tracker.observe)
		if lastErr == nil {
			relay.Observe(100)
			s.log.Emit(logger.SUCCESS, "Wrote %s from %s using %s\n", job.Output, job.describe(), strategy.name)
			return nil
		}
		if ctx.Err() != nil {
			break
		}

		s.log.Emit(logger.WARNING, "Merge using %s failed: %s\n", strategy.name, describeExit(lastErr))
	}

	if job.Audio == "" {
		return newError(KindMerge, op, "Failed to convert video to mp4", lastErr)
	}
	return newError(KindMerge, op, "Failed to merge video and audio", lastErr)
}

// mergeProgress derives a percentage from ffmpeg's input duration banner
// and its -progress key=value stream.
type mergeProgress struct {
	relay    *progress.Relay
	duration time.Duration
}

func (m *mergeProgress) observe(line outputLine) {
	if line.source == stderrStream {
		if m.duration == 0 {
			if d, ok := parseDuration(line.text); ok {
				m.duration = d
			}
		}
		return
	}

	key, value, ok := strings.Cut(line.text, "=")
	if !ok {
		return
	}

	switch key {
	case "out_time_us", "out_time_ms":
		// Both keys carry microseconds.
		us, err := strconv.ParseInt(value, 10, 64)
		if err != nil || m.duration <= 0 || us < 0 {
			return
		}
		m.relay.Observe(int(time.Duration(us) * time.Microsecond * 100 / m.duration))
	case "progress":
		if value == "end" {
			m.relay.Observe(100)
		}
	}
}

func parseDuration(text string) (time.Duration, bool) {
	m := durationPattern.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}

	hours, _ := strconv.Atoi(m[1])
	minutes, _ := strconv.Atoi(m[2])
	seconds, err := strconv.ParseFloat(m[3], 64)
	if err != nil {
		return 0, false
	}

	d := time.Duration(hours)*time.Hour +
		time.Duration(minutes)*time.Minute +
		time.Duration(seconds*float64(time.Second))
	return d, d > 0
}
