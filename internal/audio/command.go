package audio

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/hashicorp/go-multierror"

	apperrors "github.com/GriffinCanCode/wake-listener/internal/errors"
)

// CommandSource runs an external recorder (arecord, sox, ffmpeg) and reads PCM from its stdout.
type CommandSource struct {
	command   string
	format    Format
	chunkSize int

	mu     sync.Mutex
	cmd    *exec.Cmd
	reader *ReaderSource
	done   chan struct{}
}

// NewCommandSource parses command with whitespace splitting; quoting is not supported.
func NewCommandSource(command string, format Format, chunkSize int) *CommandSource {
	return &CommandSource{command: command, format: format, chunkSize: chunkSize, done: make(chan struct{})}
}

// Name implements Source.
func (s *CommandSource) Name() string {
	if fields := strings.Fields(s.command); len(fields) > 0 {
		return "command:" + fields[0]
	}
	return "command"
}

// Start implements Source.
func (s *CommandSource) Start(ctx context.Context, sink Sink) error {
	fields := strings.Fields(s.command)
	if len(fields) == 0 {
		return apperrors.New(apperrors.SetupFailed, "empty source command")
	}

	cmd := exec.CommandContext(ctx, fields[0], fields[1:]...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return apperrors.Wrap(err, apperrors.SetupFailed, "failed to open command stdout")
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return apperrors.Wrap(err, apperrors.SetupFailed, "failed to open command stderr")
	}
	if err := cmd.Start(); err != nil {
		return apperrors.Wrapf(err, apperrors.SetupFailed, "failed to start %q", fields[0])
	}

	go logLines(stderr, s.Name())

	reader := NewReaderSource(s.Name(), stdout, s.format, s.chunkSize)
	if err := reader.Start(ctx, sink); err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return err
	}

	s.mu.Lock()
	s.cmd = cmd
	s.reader = reader
	s.mu.Unlock()

	go func() {
		<-reader.Done()
		close(s.done)
	}()

	slog.Info("started audio command", "command", fields[0], "pid", cmd.Process.Pid)
	return nil
}

// Done implements Ender. It is closed once the recorder's output has been read to the end.
func (s *CommandSource) Done() <-chan struct{} { return s.done }

// Close kills the recorder and waits for it to exit.
func (s *CommandSource) Close() error {
	s.mu.Lock()
	cmd, reader := s.cmd, s.reader
	s.cmd, s.reader = nil, nil
	s.mu.Unlock()

	if cmd == nil {
		return nil
	}

	var result *multierror.Error
	if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		result = multierror.Append(result, err)
	}
	<-reader.Done()

	// An ExitError is expected after Kill.
	var exitErr *exec.ExitError
	if err := cmd.Wait(); err != nil && !errors.As(err, &exitErr) {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

func logLines(r io.Reader, source string) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		slog.Debug("audio command stderr", "source", source, "line", sc.Text())
	}
}
