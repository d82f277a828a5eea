package build

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
)

// Follow streams the captured engine output line by line: the last tail
// lines first (all of them when tail is zero), then new lines as a
// concurrent bake appends them when follow is set. The channel closes when
// the context ends or, without follow, at end of file.
func (m *manager) Follow(ctx context.Context, id string, tail int, follow bool) (<-chan string, error) {
	if _, err := readRecord(m.paths, id); err != nil {
		return nil, err
	}

	logPath := m.paths.BuildLog(id)
	if _, err := os.Stat(logPath); os.IsNotExist(err) {
		// A bake that failed before provisioning has a record but no log.
		out := make(chan string)
		close(out)
		return out, nil
	}

	n := "+1"
	if tail > 0 {
		n = strconv.Itoa(tail)
	}
	args := []string{"-n", n}
	if follow {
		args = append(args, "-f")
	}
	args = append(args, logPath)

	cmd := exec.CommandContext(ctx, "tail", args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start tail: %w", err)
	}

	out := make(chan string, 100)
	go func() {
		defer close(out)
		defer cmd.Process.Kill()

		scanner := bufio.NewScanner(stdout)
		for scanner.Scan() {
			select {
			case <-ctx.Done():
				return
			case out <- scanner.Text():
			}
		}

		// Wait for tail to exit (matters for non-follow mode).
		cmd.Wait()
	}()

	return out, nil
}
