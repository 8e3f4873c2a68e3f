package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// CommandExtractor runs an external program per image. The image path is
// appended to argv, the image bytes are written to stdin, and stdout must be
// a JSON array of floats.
type CommandExtractor struct {
	argv  []string
	model string
}

func NewCommandExtractor(argv []string, model string) (*CommandExtractor, error) {
	if len(argv) == 0 || argv[0] == "" {
		return nil, fmt.Errorf("command extractor requires extractor.command")
	}
	return &CommandExtractor{
		argv:  append([]string(nil), argv...),
		model: model,
	}, nil
}

func (e *CommandExtractor) Extract(ctx context.Context, path string, image []byte) ([]float32, error) {
	args := append(append([]string(nil), e.argv[1:]...), path)
	cmd := exec.CommandContext(ctx, e.argv[0], args...)
	cmd.Stdin = bytes.NewReader(image)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			// the extractor ran and rejected the image, e.g. no face found
			return nil, Permanent(fmt.Errorf("%s exited with %d: %s",
				e.argv[0], exitErr.ExitCode(), strings.TrimSpace(preview(stderr.Bytes()))))
		}
		return nil, fmt.Errorf("failed to run %s: %w", e.argv[0], err)
	}

	var vec []float32
	if err := json.Unmarshal(bytes.TrimSpace(stdout.Bytes()), &vec); err != nil {
		return nil, Permanent(fmt.Errorf("failed to parse extractor output (output: %s): %w", preview(stdout.Bytes()), err))
	}
	return vec, nil
}

func (e *CommandExtractor) Version() string {
	return "command:" + e.model
}
