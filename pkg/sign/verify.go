package sign

import (
	"context"
	"os"
	"os/exec"
	"strings"

	pkgerrors "github.com/AlmaLinux/pungi-scripts-public/pkg/errors"
	"github.com/AlmaLinux/pungi-scripts-public/pkg/logging"
)

// VerifyTool is the local signature-verification tool.
const VerifyTool = "gpg"

// CommandRunner executes the verification tool. Tests substitute it.
type CommandRunner func(ctx context.Context, name string, args ...string) error

// ExecRunner runs the tool as a subprocess; non-zero exit is fatal.
func ExecRunner(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return pkgerrors.Wrap(err, pkgerrors.ErrCodeExternalTool, "signature verification failed").
			WithContext("tool", name)
	}
	return nil
}

// Verifier checks signatures produced by the signing service before the
// tree is promoted.
type Verifier struct {
	Run CommandRunner
}

// NewVerifier constructs a Verifier backed by the real tool.
func NewVerifier() *Verifier {
	return &Verifier{Run: ExecRunner}
}

// Verify validates a signature locally: a detached .asc sidecar is checked
// against its signed file, anything else is treated as a clear-signed
// document.
func (v *Verifier) Verify(ctx context.Context, path string) error {
	logging.Info("sign", "verifying signature", "path", path)
	if strings.HasSuffix(path, DetachedSuffix) {
		return v.Run(ctx, VerifyTool, "--verify", path, strings.TrimSuffix(path, DetachedSuffix))
	}
	return v.Run(ctx, VerifyTool, "--verify", path)
}
