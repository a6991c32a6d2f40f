package health

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Tool is an external program the manager shells out to
type Tool struct {
	Name   string
	Binary string

	// VersionArgs, when set, are run to prove the binary executes. Some
	// tools (mosquitto_passwd) have no harmless invocation and are only
	// looked up.
	VersionArgs []string
}

// ToolChecker reports whether the programs needed by apply and certificate
// generation are installed
type ToolChecker struct {
	Tools   []Tool
	Timeout time.Duration

	lookPath func(string) (string, error)
}

// NewToolChecker creates a checker for tools
func NewToolChecker(tools ...Tool) *ToolChecker {
	return &ToolChecker{
		Tools:    tools,
		Timeout:  5 * time.Second,
		lookPath: exec.LookPath,
	}
}

// Check resolves every tool and runs its version command
func (c *ToolChecker) Check(ctx context.Context) Result {
	start := time.Now()
	if len(c.Tools) == 0 {
		return fail(start, "no tools configured")
	}

	found := make([]string, 0, len(c.Tools))
	for _, tool := range c.Tools {
		path, err := c.lookPath(tool.Binary)
		if err != nil {
			return fail(start, "%s not found: %v", tool.Name, err)
		}
		if len(tool.VersionArgs) == 0 {
			found = append(found, tool.Name)
			continue
		}
		version, err := c.version(ctx, path, tool.VersionArgs)
		if err != nil {
			return fail(start, "%s: %v", tool.Name, err)
		}
		found = append(found, version)
	}
	return pass(start, "%s", strings.Join(found, ", "))
}

func (c *ToolChecker) version(ctx context.Context, path string, args []string) (string, error) {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}
	out, err := exec.CommandContext(ctx, path, args...).CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("%w: %s", err, firstLine(out))
	}
	return firstLine(out), nil
}

// Type returns the check type
func (c *ToolChecker) Type() CheckType {
	return CheckTypeTool
}

// WithTimeout sets the version command timeout
func (c *ToolChecker) WithTimeout(timeout time.Duration) *ToolChecker {
	if timeout > 0 {
		c.Timeout = timeout
	}
	return c
}

func firstLine(b []byte) string {
	s := strings.TrimSpace(string(b))
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 100 {
		s = s[:100] + "..."
	}
	return s
}
