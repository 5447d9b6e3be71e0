package worker

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"
)

// Annotator runs the annotation tool on a staged input. It must leave the
// result and log files next to the input.
type Annotator interface {
	Annotate(ctx context.Context, inputPath string) error
}

// CommandAnnotator runs an external command with the input path appended
type CommandAnnotator struct {
	command string
	args    []string
	logger  *slog.Logger
}

// NewCommandAnnotator creates a CommandAnnotator from a command line
func NewCommandAnnotator(commandLine string, logger *slog.Logger) (*CommandAnnotator, error) {
	fields := strings.Fields(commandLine)
	if len(fields) == 0 {
		return nil, fmt.Errorf("annotator command is empty")
	}
	return &CommandAnnotator{
		command: fields[0],
		args:    fields[1:],
		logger:  logger,
	}, nil
}

func (a *CommandAnnotator) Annotate(ctx context.Context, inputPath string) error {
	args := append(append([]string(nil), a.args...), inputPath)
	cmd := exec.CommandContext(ctx, a.command, args...)
	cmd.Dir = filepath.Dir(inputPath)

	output, err := cmd.CombinedOutput()
	if err != nil {
		a.logger.Error("Annotator command failed",
			slog.String("command", a.command),
			slog.String("input", inputPath),
			slog.String("output", string(output)),
		)
		return fmt.Errorf("annotator command: %w", err)
	}

	a.logger.Debug("Annotator command output",
		slog.String("input", inputPath),
		slog.String("output", string(output)),
	)
	return nil
}
