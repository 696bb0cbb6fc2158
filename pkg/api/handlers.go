package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"mediapull/pkg/downloader"
	"mediapull/pkg/logger"
	"mediapull/pkg/progress"
)

const downloadIDHeader = "X-Download-ID"

func (s *Server) getMetadataHandler(c *gin.Context) {
	sourceURL, ok := requireURL(c)
	if !ok {
		return
	}

	metadata, err := s.pipeline.FetchMetadata(c.Request.Context(), sourceURL)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, metadata)
}

// downloadHandler runs the pipeline and streams the finished file. Progress
// for the request is published under the download id, which the client may
// choose via ?id= so it can subscribe first.
func (s *Server) downloadHandler(c *gin.Context) {
	sourceURL, ok := requireURL(c)
	if !ok {
		return
	}

	rawFormat := strings.TrimSpace(c.Query("format"))
	if rawFormat == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "format parameter is required"})
		return
	}

	format, err := downloader.ParseFormat(rawFormat)
	if err != nil {
		respondError(c, err)
		return
	}

	id := c.Query("id")
	if id == "" {
		id = uuid.NewString()
	}

	relay, err := s.hub.Open(id)
	if errors.Is(err, progress.ErrTopicBusy) {
		c.JSON(http.StatusConflict, gin.H{"error": "Download id is already in use"})
		return
	} else if err != nil {
		respondError(c, err)
		return
	}
	c.Header(downloadIDHeader, id)

	artifact, err := s.pipeline.Download(c.Request.Context(), downloader.Request{SourceURL: sourceURL, Format: format}, relay)
	if err != nil {
		respondError(c, err)
		return
	}
	defer artifact.Close()

	c.Header("Content-Disposition", artifact.ContentDisposition())
	c.Header("Content-Type", artifact.ContentType)
	c.Header("Content-Length", fmt.Sprintf("%d", artifact.Size))
	c.Status(http.StatusOK)

	written, err := io.Copy(c.Writer, artifact)
	if err != nil {
		// Headers are out; the client most likely went away.
		apiLogger.Emit(logger.WARNING, "Streaming %s aborted after %d/%d bytes: %v\n", artifact.Filename, written, artifact.Size, err)
		return
	}

	apiLogger.Emit(logger.SUCCESS, "Delivered %s (%d bytes) for download %s\n", artifact.Filename, written, id)
}

// requireURL reads and validates the url query parameter, answering 400
// itself when it is unusable.
func requireURL(c *gin.Context) (string, bool) {
	raw := strings.TrimSpace(c.Query("url"))
	if raw == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "URL parameter is required"})
		return "", false
	}

	if !isValidSourceURL(raw) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid URL"})
		return "", false
	}

	return raw, true
}

func isValidSourceURL(raw string) bool {
	u, err := url.ParseRequestURI(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// respondError maps a pipeline error to a status code and client-safe body.
// Once the response has started nothing more can be sent, so the error is
// only logged.
func respondError(c *gin.Context, err error) {
	if c.Writer.Written() {
		apiLogger.Emit(logger.ERROR, "Error after response started for %s: %v\n", c.Request.URL.Path, err)
		return
	}

	status := http.StatusInternalServerError
	if downloader.KindOf(err) == downloader.KindClientInput {
		status = http.StatusBadRequest
	}

	if status >= 500 {
		apiLogger.Emit(logger.ERROR, "%s failed: %v\n", c.Request.URL.Path, err)
	}

	c.JSON(status, gin.H{"error": downloader.PublicMessage(err)})
}
