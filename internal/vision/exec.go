package vision

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"

	shellwords "github.com/mattn/go-shellwords"
)

// ExecRecognizer runs an external face recognition process and reads
// one JSON sighting per line from its stdout. The process owns the
// camera and the face gallery; the match tolerance is passed through
// on its command line.
type ExecRecognizer struct {
	argv      []string
	tolerance float64
	logger    *slog.Logger
}

func NewExecRecognizer(command string, tolerance float64, logger *slog.Logger) (*ExecRecognizer, error) {
	argv, err := shellwords.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse vision command: %w", err)
	}
	if len(argv) == 0 {
		return nil, fmt.Errorf("vision command is empty")
	}
	return &ExecRecognizer{
		argv:      argv,
		tolerance: tolerance,
		logger:    logger.With("component", "vision", "backend", "exec"),
	}, nil
}

func (r *ExecRecognizer) Watch(ctx context.Context) (<-chan Sighting, error) {
	args := append([]string{}, r.argv[1:]...)
	args = append(args, "--tolerance", strconv.FormatFloat(r.tolerance, 'f', -1, 64))

	cmd := exec.CommandContext(ctx, r.argv[0], args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("pipe recognizer stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start recognizer: %w", err)
	}
	r.logger.Info("recognizer started", "command", r.argv[0])

	out := make(chan Sighting)
	go func() {
		defer close(out)
		scanner := bufio.NewScanner(stdout)
		for scanner.Scan() {
			var s Sighting
			if err := json.Unmarshal(scanner.Bytes(), &s); err != nil {
				r.logger.Warn("discarding malformed sighting", "line", scanner.Text())
				continue
			}
			if s.Name == "" {
				continue
			}
			select {
			case out <- s:
			case <-ctx.Done():
			}
			if ctx.Err() != nil {
				break
			}
		}
		if err := cmd.Wait(); err != nil && ctx.Err() == nil {
			r.logger.Warn("recognizer exited", "error", err)
		}
	}()
	return out, nil
}

func (r *ExecRecognizer) Close() error { return nil }
