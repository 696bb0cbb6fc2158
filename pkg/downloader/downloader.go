package downloader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"mediapull/pkg/logger"
	"mediapull/pkg/progress"
)

// Format is the container the client asked for.
type Format string

const (
	FormatMP4 Format = "mp4"
	FormatMP3 Format = "mp3"
)

// ParseFormat validates a client-supplied format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatMP4, FormatMP3:
		return f, nil
	default:
		return "", newError(KindClientInput, "format", "Invalid format. Use mp4 or mp3", fmt.Errorf("%w: %q", ErrUnsupportedType, s))
	}
}

// selectorArgs returns the tool flags choosing which streams to fetch.
func (f Format) selectorArgs() []string {
	if f == FormatMP3 {
		return []string{"-f", "bestaudio/best", "-x", "--audio-format", "mp3"}
	}
	// Separate best video and best audio files; a single muxed format is
	// used when the site offers nothing else.
	return []string{"-f", "bv/b,ba/b"}
}

// Request is a validated download request.
type Request struct {
	SourceURL string
	Format    Format
}

// Options configures a Service.
type Options struct {
	Tools           Toolchain
	TempDir         string
	CookiesPath     string
	RequestTimeout  time.Duration
	MetadataTimeout time.Duration
}

// Service runs the metadata, download and merge pipeline. It is safe for
// concurrent use; every download works in its own scope directory.
type Service struct {
	tools           Toolchain
	tempDir         string
	cookiesPath     string
	requestTimeout  time.Duration
	metadataTimeout time.Duration
	log             logger.Logger
}

// New prepares the temp directory and returns a Service.
func New(opts Options) (*Service, error) {
	if opts.TempDir == "" {
		opts.TempDir = filepath.Join(os.TempDir(), "mediapull")
	}
	if err := os.MkdirAll(opts.TempDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}

	return &Service{
		tools:           opts.Tools,
		tempDir:         opts.TempDir,
		cookiesPath:     opts.CookiesPath,
		requestTimeout:  opts.RequestTimeout,
		metadataTimeout: opts.MetadataTimeout,
		log:             logger.Get("Downloader"),
	}, nil
}

// Tools returns the configured toolchain.
func (s *Service) Tools() Toolchain {
	return s.tools
}

// commonArgs are passed to every extraction run.
func (s *Service) commonArgs() []string {
	var args []string
	if s.cookiesPath != "" {
		if _, err := os.Stat(s.cookiesPath); err == nil {
			args = append(args, "--cookies", s.cookiesPath)
		} else {
			s.log.Emit(logger.DEBUG, "Cookies file %s not usable: %v\n", s.cookiesPath, err)
		}
	}
	if ffmpeg, err := s.tools.Transcoder(); err == nil {
		args = append(args, "--ffmpeg-location", ffmpeg)
	}
	return args
}

func (s *Service) downloadArgs(req Request, dir string) []string {
	args := req.Format.selectorArgs()
	args = append(args,
		"--no-check-certificate",
		"--no-playlist",
		"--restrict-filenames",
		"--newline",
		"--progress",
		"--no-quiet",
		"-o", filepath.Join(dir, "%(title)s.f%(format_id)s.%(ext)s"),
		"--print", printTemplate,
	)
	args = append(args, s.commonArgs()...)
	return append(args, req.SourceURL)
}

// Download fetches req into a fresh scope, merges separate tracks when
// needed and returns the final file opened for reading. The caller must
// Close the artifact; that releases every temporary file of the request.
// On error nothing is left on disk. relay may be nil.
func (s *Service) Download(ctx context.Context, req Request, relay *progress.Relay) (artifact *Artifact, err error) {
	const op = "download"

	defer func() {
		if err != nil {
			relay.Finish(PublicMessage(err))
			return
		}
		relay.Finish("")
	}()

	if req.SourceURL == "" {
		return nil, newError(KindClientInput, op, "URL parameter is required", nil)
	}
	if _, err := ParseFormat(string(req.Format)); err != nil {
		return nil, err
	}

	bin, err := s.tools.Extractor()
	if err != nil {
		return nil, toolNotFound(op, ExtractorName, err)
	}

	if s.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.requestTimeout)
		defer cancel()
	}

	scope, err := NewScope(s.tempDir)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			scope.Release()
		}
	}()

	s.log.Emit(logger.NEW, "Downloading %s as %s into %s\n", req.SourceURL, req.Format, scope.Dir())
	relay.Begin(progress.PhaseDownload)

	detection, err := s.extract(ctx, bin, req, scope, relay)
	if err != nil {
		return nil, err
	}

	final, err := s.finalize(ctx, req, detection, scope, relay)
	if err != nil {
		return nil, err
	}

	artifact, err = openArtifact(final, scope)
	if err != nil {
		return nil, err
	}

	s.log.Emit(logger.SUCCESS, "Ready %s (%d bytes)\n", artifact.Filename, artifact.Size)
	return artifact, nil
}

// extract runs the extraction tool and consumes both of its streams in a
// single loop. Every reported path is registered with scope as soon as it
// is seen.
func (s *Service) extract(ctx context.Context, bin string, req Request, scope *Scope, relay *progress.Relay) (*Detection, error) {
	const op = "download"

	detection := &Detection{}
	tracks := 0

	err := streamCommand(ctx, bin, s.downloadArgs(req, scope.Dir()), func(line outputLine) {
		started, consumed := detection.Observe(line.text)
		if consumed {
			if started != "" {
				if tracks > 0 {
					relay.Begin(progress.PhaseDownload)
				}
				tracks++
				scope.Add(started)
			}
			return
		}

		if strings.HasPrefix(line.text, "[download]") {
			relay.Feed(line.text)
		}
	})

	for _, o := range detection.Outputs() {
		scope.Add(o.Path)
	}

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			s.log.Emit(logger.STOP, "Download of %s aborted: %v\n", req.SourceURL, ctxErr)
			return nil, newError(KindToolExecution, op, "Download was cancelled", err)
		}
		s.log.Emit(logger.ERROR, "Download of %s failed: %s\n", req.SourceURL, describeExit(err))
		return nil, newError(KindToolExecution, op, "Failed to download video", err)
	}

	if !detection.Found() {
		return nil, newError(KindDataParse, op, "Failed to locate downloaded file", ErrNoOutput)
	}

	return detection, nil
}

// finalize picks the file to deliver, merging separate tracks for MP4.
func (s *Service) finalize(ctx context.Context, req Request, detection *Detection, scope *Scope, relay *progress.Relay) (Output, error) {
	outputs := detection.Outputs()

	if req.Format == FormatMP3 {
		for i := len(outputs) - 1; i >= 0; i-- {
			if strings.EqualFold(filepath.Ext(outputs[i].Path), ".mp3") {
				return outputs[i], nil
			}
		}
		return outputs[len(outputs)-1], nil
	}

	final := Output{
		Path:  filepath.Join(scope.Dir(), "final.mp4"),
		Title: outputs[0].Title,
		Kind:  TrackMuxed,
	}

	video, audio, ok := detection.mergePlan()
	if !ok {
		single := outputs[0]
		for _, o := range outputs {
			if o.Kind != TrackAudioOnly {
				single = o
				break
			}
		}
		if strings.EqualFold(filepath.Ext(single.Path), ".mp4") {
			return single, nil
		}

		// Anything else is remuxed so an mp4 request always yields mp4.
		final.Title = single.Title
		if final.Title == "" {
			final.Title = titleFromPath(single.Path)
		}
		scope.Add(final.Path)
		if err := s.Merge(ctx, MergeJob{Video: single.Path, Output: final.Path}, relay); err != nil {
			return Output{}, err
		}
		scope.Discard(single.Path)
		return final, nil
	}

	scope.Add(final.Path)
	if err := s.Merge(ctx, MergeJob{Video: video, Audio: audio, Output: final.Path}, relay); err != nil {
		return Output{}, err
	}

	scope.Discard(video, audio)
	return final, nil
}

// Artifact is the final file of a download, open for reading.
type Artifact struct {
	Path        string
	Filename    string
	ContentType string
	Size        int64

	file  *os.File
	scope *Scope
}

func openArtifact(out Output, scope *Scope) (*Artifact, error) {
	const op = "deliver"

	f, err := os.Open(out.Path)
	if err != nil {
		return nil, newError(KindIO, op, "Failed to open downloaded file", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, newError(KindIO, op, "Failed to open downloaded file", err)
	}

	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(out.Path)), ".")

	title := out.Title
	if title == "" {
		title = titleFromPath(out.Path)
	}
	name := sanitizeFilename(title)
	if name == "" {
		name = "download"
	}

	return &Artifact{
		Path:        out.Path,
		Filename:    name + "." + ext,
		ContentType: contentType(ext),
		Size:        info.Size(),
		file:        f,
		scope:       scope,
	}, nil
}

func (a *Artifact) Read(p []byte) (int, error) {
	return a.file.Read(p)
}

// Close closes the file and removes every temporary file of the request.
// It is safe to call more than once.
func (a *Artifact) Close() error {
	err := a.file.Close()
	a.scope.Release()
	if errors.Is(err, os.ErrClosed) {
		return nil
	}
	return err
}

// ContentDisposition returns the attachment header value for the artifact.
func (a *Artifact) ContentDisposition() string {
	return fmt.Sprintf("attachment; filename=\"%s\"", a.Filename)
}

func contentType(ext string) string {
	switch ext {
	case "mp4", "m4v":
		return "video/mp4"
	case "mp3":
		return "audio/mpeg"
	case "m4a":
		return "audio/mp4"
	case "webm":
		return "video/webm"
	case "mkv":
		return "video/x-matroska"
	case "opus", "ogg":
		return "audio/ogg"
	default:
		return "application/octet-stream"
	}
}

// sanitizeFilename makes a title safe for a Content-Disposition filename.
func sanitizeFilename(name string) string {
	invalidChars := []string{"/", "\\", ":", "*", "?", "\"", "<", ">", "|", "\n", "\r", "\t"}
	result := name
	for _, char := range invalidChars {
		result = strings.ReplaceAll(result, char, "_")
	}

	// Limit length without splitting a multi-byte rune
	if runes := []rune(result); len(runes) > 100 {
		result = string(runes[:100])
	}
	return strings.TrimSpace(result)
}
