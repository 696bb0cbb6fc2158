package downloader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"mediapull/pkg/logger"
)

// Metadata is the preview shown to the user before a download starts.
type Metadata struct {
	Title     string `json:"title"`
	Thumbnail string `json:"thumbnail"`
}

type thumbnail struct {
	URL string `json:"url"`
}

type metadataDocument struct {
	Title      string       `json:"title"`
	Thumbnails *[]thumbnail `json:"thumbnails"`
}

// FetchMetadata runs the extraction tool in JSON-only mode and returns the
// title and the highest resolution thumbnail.
func (s *Service) FetchMetadata(ctx context.Context, url string) (*Metadata, error) {
	const op = "metadata"

	if url == "" {
		return nil, newError(KindClientInput, op, "URL parameter is required", nil)
	}

	bin, err := s.tools.Extractor()
	if err != nil {
		return nil, toolNotFound(op, ExtractorName, err)
	}

	if s.metadataTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.metadataTimeout)
		defer cancel()
	}

	args := append([]string{"-j", "--no-check-certificate", "--no-playlist", "--no-warnings"}, s.commonArgs()...)
	args = append(args, url)

	var stdout []byte
	err = streamCommand(ctx, bin, args, func(line outputLine) {
		if line.source == stdoutStream {
			stdout = append(stdout, line.text...)
			stdout = append(stdout, '\n')
		}
	})
	if err != nil {
		s.log.Emit(logger.ERROR, "Metadata lookup for %s failed: %v\n", url, describeExit(err))
		return nil, newError(KindToolExecution, op, "Failed to fetch video details", err)
	}

	return parseMetadata(stdout)
}

// parseMetadata extracts the title and last (highest resolution) thumbnail
// from a single yt-dlp JSON document.
func parseMetadata(raw []byte) (*Metadata, error) {
	const op = "metadata"

	var doc metadataDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, newError(KindDataParse, op, "Failed to parse video details", fmt.Errorf("failed to parse metadata JSON: %w", err))
	}

	if doc.Thumbnails == nil || len(*doc.Thumbnails) == 0 {
		return nil, newError(KindDataParse, op, "Failed to parse video details", ErrNoThumbnail)
	}

	thumbs := *doc.Thumbnails
	last := thumbs[len(thumbs)-1]
	if last.URL == "" {
		return nil, newError(KindDataParse, op, "Failed to parse video details", fmt.Errorf("%w: last thumbnail has no url", ErrNoThumbnail))
	}

	return &Metadata{Title: doc.Title, Thumbnail: last.URL}, nil
}

func describeExit(err error) string {
	var exitErr *ExitError
	if errors.As(err, &exitErr) && exitErr.Stderr != "" {
		return fmt.Sprintf("%v: %s", err, exitErr.Stderr)
	}
	return err.Error()
}
