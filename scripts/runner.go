package scripts

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Runner executes external media tools.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// Config holds the configuration for the ScriptRunner
type Config struct {
	WorkDir     string
	Environment []string // Additional environment variables
	// MaxStderr bounds how much stderr is kept on failure.
	MaxStderr int
}

type ScriptRunner struct {
	config Config
	logger *logrus.Logger
}

func NewScriptRunner(cfg Config, logger *logrus.Logger) *ScriptRunner {
	if cfg.MaxStderr <= 0 {
		cfg.MaxStderr = 4096
	}
	return &ScriptRunner{config: cfg, logger: logger}
}

// Run executes name with args and returns stdout. The process is killed
// when ctx is done.
func (r *ScriptRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	const op = "ScriptRunner.Run"
	logger := r.logger.WithContext(ctx).WithFields(logrus.Fields{
		"command": name,
		"args":    strings.Join(args, " "),
	})

	logger.Debug("Executing command")

	cmd := exec.CommandContext(ctx, name, args...)
	if r.config.WorkDir != "" {
		cmd.Dir = r.config.WorkDir
	}
	cmd.Env = buildEnvironment(r.config.Environment)

	start := time.Now()
	output, stderr, err := r.executeCommand(cmd)
	if err != nil {
		if ctx.Err() != nil {
			err = fmt.Errorf("%w: %v", ctx.Err(), err)
		}
		logger.WithError(err).WithField("stderr", stderr).Error("Command execution failed")
		scriptErr := newScriptError(op, err, fmt.Sprintf("%s failed", name))
		scriptErr.Stderr = stderr
		return nil, scriptErr
	}

	logger.WithField("duration", time.Since(start)).Debug("Command finished")
	return output, nil
}

func buildEnvironment(additionalEnv []string) []string {
	env := os.Environ()
	if len(additionalEnv) > 0 {
		env = append(env, additionalEnv...)
	}
	return env
}

func (r *ScriptRunner) executeCommand(cmd *exec.Cmd) ([]byte, string, error) {
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, tail(stderr.String(), r.config.MaxStderr), err
	}

	return stdout.Bytes(), "", nil
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
