package database

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// command is one invocation of a database client tool. env is added to
// the process environment.
type command struct {
	name string
	args []string
	env  []string
}

func (c command) run(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, c.name, c.args...)
	if len(c.env) > 0 {
		cmd.Env = append(os.Environ(), c.env...)
	}

	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(output.String()); msg != "" {
			return fmt.Errorf("%s failed: %w: %s", c.name, err, msg)
		}
		return fmt.Errorf("%s failed: %w", c.name, err)
	}
	return nil
}

func flag(name string, value interface{}) string {
	return fmt.Sprintf("--%s=%v", name, value)
}
