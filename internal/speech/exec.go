package speech

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"

	shellwords "github.com/mattn/go-shellwords"
)

// ExecSpeaker shells out to a text-to-speech engine, eSpeak by
// default, once per phrase.
type ExecSpeaker struct {
	argv   []string
	voice  string
	logger *slog.Logger
}

func NewExecSpeaker(command, voice string, logger *slog.Logger) (*ExecSpeaker, error) {
	argv, err := shellwords.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse speech command: %w", err)
	}
	if len(argv) == 0 {
		return nil, fmt.Errorf("speech command is empty")
	}
	return &ExecSpeaker{
		argv:   argv,
		voice:  voice,
		logger: logger.With("component", "speech", "backend", "exec"),
	}, nil
}

func (s *ExecSpeaker) Speak(ctx context.Context, phrase string) error {
	args := make([]string, 0, len(s.argv)+2)
	args = append(args, s.argv[1:]...)
	if s.voice != "" {
		args = append(args, "-v", s.voice)
	}
	args = append(args, phrase)

	cmd := exec.CommandContext(ctx, s.argv[0], args...)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("speak %q: %w", phrase, err)
	}
	s.logger.Debug("spoke phrase", "phrase", phrase)
	return nil
}

func (s *ExecSpeaker) Close() error { return nil }
