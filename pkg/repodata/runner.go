package repodata

import (
	"context"
	"os"
	"os/exec"

	pkgerrors "github.com/AlmaLinux/pungi-scripts-public/pkg/errors"
)

// CommandRunner executes an external repository tool. Tests substitute it to
// observe invocations without shelling out.
type CommandRunner func(ctx context.Context, name string, args ...string) error

// ExecRunner runs the tool as a subprocess, streaming its output. A non-zero
// exit is fatal to the publish run.
func ExecRunner(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return pkgerrors.Wrap(err, pkgerrors.ErrCodeExternalTool, "external tool failed").
			WithContext("tool", name)
	}
	return nil
}
