package broker

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
)

// CredentialTool adds or replaces one account in a broker password file
type CredentialTool interface {
	SetPassword(ctx context.Context, file, username, password string) error
}

// PasswdTool runs mosquitto_passwd in batch mode. Arguments are passed as
// argv, never through a shell, so passwords may contain any character.
type PasswdTool struct {
	Binary string
}

// NewPasswdTool returns a tool using mosquitto_passwd from PATH
func NewPasswdTool() *PasswdTool {
	return &PasswdTool{Binary: "mosquitto_passwd"}
}

// SetPassword hashes password into file for username
func (t *PasswdTool) SetPassword(ctx context.Context, file, username, password string) error {
	binary := t.Binary
	if binary == "" {
		binary = "mosquitto_passwd"
	}

	cmd := exec.CommandContext(ctx, binary, "-b", file, username, password)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s failed for user %s: %w: %s", binary, username, err, bytes.TrimSpace(stderr.Bytes()))
	}
	return nil
}
