package downloader

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/alessio/shellescape"
	"mediapull/pkg/logger"
)

var processLog = logger.Get("Process")

const (
	// lineBuffer bounds the queue between the stream readers and the single
	// consumer; readers block once it is full.
	lineBuffer = 64

	// maxLineSize caps a single output line; JSON info lines can be large.
	maxLineSize = 32 * 1024 * 1024

	// waitDelay bounds how long Wait keeps pipes open after the process
	// exits or is killed (yt-dlp children may still hold them).
	waitDelay = 5 * time.Second

	stderrTail = 20
)

type stream int

const (
	stdoutStream stream = iota
	stderrStream
)

func (s stream) String() string {
	if s == stderrStream {
		return "stderr"
	}
	return "stdout"
}

type outputLine struct {
	source stream
	text   string
}

// ExitError reports a non-zero exit and keeps the last stderr lines for logs.
type ExitError struct {
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// streamCommand runs a process and hands every stdout/stderr line, in
// arrival order, to consume on the calling goroutine. It returns once the
// process has exited and both streams are drained. The returned error is an
// *ExitError for non-zero exits, the context error if ctx ended first, or
// the start error.
func streamCommand(ctx context.Context, bin string, args []string, consume func(outputLine)) error {
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.WaitDelay = waitDelay

	stdoutR, stdoutW := io.Pipe()
	stderrR, stderrW := io.Pipe()
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	processLog.Emit(logger.DEBUG, "Spawning %s\n", shellescape.QuoteCommand(append([]string{bin}, args...)))

	if err := cmd.Start(); err != nil {
		stdoutW.Close()
		stderrW.Close()
		return fmt.Errorf("failed to start %s: %w", bin, err)
	}

	lines := make(chan outputLine, lineBuffer)
	tail := newTailBuffer(stderrTail)

	var wg sync.WaitGroup
	wg.Add(2)
	go pump(stdoutR, stdoutStream, lines, &wg)
	go pump(stderrR, stderrStream, lines, &wg)

	waitErr := make(chan error, 1)
	go func() {
		err := cmd.Wait()
		stdoutW.Close()
		stderrW.Close()
		waitErr <- err
	}()

	go func() {
		wg.Wait()
		close(lines)
	}()

	for line := range lines {
		if line.source == stderrStream {
			tail.add(line.text)
		}
		consume(line)
	}

	err := <-waitErr
	if ctx.Err() != nil {
		return ctx.Err()
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &ExitError{Code: exitErr.ExitCode(), Stderr: tail.String()}
	}
	if errors.Is(err, exec.ErrWaitDelay) {
		return nil
	}

	return err
}

// pump splits r into lines and forwards them. The reader is always drained
// so the writing side can never stall on a full pipe.
func pump(r io.ReadCloser, source stream, lines chan<- outputLine, wg *sync.WaitGroup) {
	defer wg.Done()
	defer r.Close()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	scanner.Split(scanLines)

	for scanner.Scan() {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		lines <- outputLine{source: source, text: text}
	}

	if err := scanner.Err(); err != nil {
		processLog.Emit(logger.WARNING, "%s scan error: %v\n", source, err)
		_, _ = io.Copy(io.Discard, r)
	}
}

// scanLines is bufio.ScanLines that also breaks on carriage returns, which
// progress meters use to redraw a line in place.
func scanLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

type tailBuffer struct {
	max   int
	lines []string
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

func (t *tailBuffer) add(line string) {
	t.lines = append(t.lines, line)
	if len(t.lines) > t.max {
		t.lines = t.lines[len(t.lines)-t.max:]
	}
}

func (t *tailBuffer) String() string {
	return strings.Join(t.lines, "\n")
}
