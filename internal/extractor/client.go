package extractor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// Executor abstracts command execution for testability.
type Executor interface {
	Run(ctx context.Context, binary string, args []string, dir string, onStdout func(string)) error
}

// Option configures the client.
type Option func(*Client)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(c *Client) {
		if exec != nil {
			c.exec = exec
		}
	}
}

// Client wraps the extraction utility's CLI contract. The utility is always
// invoked as a literal argument vector; no value ever passes through a shell.
type Client struct {
	binary  string
	timeout time.Duration
	workDir string
	exec    Executor
}

// New constructs an extractor client.
func New(binary string, timeout time.Duration, workDir string, opts ...Option) (*Client, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		return nil, errors.New("extractor binary required")
	}
	client := &Client{
		binary:  binary,
		timeout: timeout,
		workDir: workDir,
		exec:    commandExecutor{},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Extract runs the utility against sourceURL, writing the extracted audio via
// outputTemplate. Progress lines are surfaced through onLine as they arrive.
// It returns the destination path reported by the utility, or an error
// carrying the process's own diagnostic text.
func (c *Client) Extract(ctx context.Context, sourceURL, format, outputTemplate string, onLine func(Update)) (string, error) {
	runCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	args := []string{
		sourceURL,
		"-x",
		"--audio-format", format,
		"-o", outputTemplate,
		"--newline",
	}

	var destination string
	var sawCompletion bool
	err := c.exec.Run(runCtx, c.binary, args, c.workDir, func(line string) {
		if dest, ok := parseDestination(line); ok {
			destination = dest
			return
		}
		update, ok := parseProgressLine(line)
		if !ok {
			return
		}
		if update.Percent >= 100 {
			sawCompletion = true
		}
		if onLine != nil {
			onLine(update)
		}
	})
	if err != nil {
		return "", err
	}
	if destination == "" && !sawCompletion {
		return "", errors.New("extractor exited without confirming completion")
	}
	return destination, nil
}

// stderrTailLimit bounds how much diagnostic output is retained for failures.
const stderrTailLimit = 4096

type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, binary string, args []string, dir string, onStdout func(string)) error {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	cmd.Dir = dir

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start extractor: %w", err)
	}

	var wg sync.WaitGroup
	var tail strings.Builder

	wg.Add(2)
	go func() {
		defer wg.Done()
		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			if onStdout != nil {
				onStdout(scanner.Text())
			}
		}
	}()
	go func() {
		defer wg.Done()
		scanner := bufio.NewScanner(stderr)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			if tail.Len()+len(line) < stderrTailLimit {
				tail.WriteString(line)
				tail.WriteByte('\n')
			}
		}
	}()
	wg.Wait()

	if err := cmd.Wait(); err != nil {
		diagnostic := strings.TrimSpace(tail.String())
		if diagnostic == "" {
			diagnostic = err.Error()
		}
		if ctx.Err() != nil {
			return fmt.Errorf("extractor timed out: %s", diagnostic)
		}
		return errors.New(diagnostic)
	}
	return nil
}
