package publish

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/AlmaLinux/pungi-scripts-public/pkg/compose"
	pkgerrors "github.com/AlmaLinux/pungi-scripts-public/pkg/errors"
	"github.com/AlmaLinux/pungi-scripts-public/pkg/logging"
	"github.com/AlmaLinux/pungi-scripts-public/pkg/utils"
)

// Promoter finalizes a published result: it renames the in-progress real
// directory behind the latest symlink to a timestamp-prefixed name and
// repoints the symlink. Promotion is the last pipeline step; once it runs
// the directory is eligible for external consumption and aging cleanup.
type Promoter struct {
	// InProgressPrefix gates which real directories may be promoted.
	InProgressPrefix string
	// Now supplies the promotion timestamp; tests pin it.
	Now func() time.Time
}

// NewPromoter constructs a Promoter with the given in-progress prefix.
func NewPromoter(inProgressPrefix string) *Promoter {
	return &Promoter{InProgressPrefix: inProgressPrefix, Now: time.Now}
}

// Promote inspects the result's latest symlink. When the symlink target's
// name starts with the in-progress prefix, the real directory is renamed to
// <unix-timestamp>-<name> and the symlink is retargeted. Targets with any
// other name, and results that are not symlinks at all, are left untouched.
func (p *Promoter) Promote(res compose.Result) error {
	target, err := os.Readlink(res.Root)
	if err != nil {
		logging.Warn("promote", "result is not a symlink, skipping promotion", "path", res.Root)
		return nil
	}

	realName := filepath.Base(target)
	if !strings.HasPrefix(realName, p.InProgressPrefix) {
		logging.Info("promote", "target is not an in-progress build, leaving as is",
			"target", realName, "prefix", p.InProgressPrefix)
		return nil
	}

	resultsDir := filepath.Dir(res.Root)
	oldPath := filepath.Join(resultsDir, realName)
	if !utils.DirExists(oldPath) {
		logging.Warn("promote", "symlink target is absent, skipping promotion", "target", oldPath)
		return nil
	}

	newName := fmt.Sprintf("%d-%s", p.Now().Unix(), realName)
	newPath := filepath.Join(resultsDir, newName)
	logging.Info("promote", "promoting build", "old", oldPath, "new", newPath)

	if err := os.Rename(oldPath, newPath); err != nil {
		return pkgerrors.Wrap(err, pkgerrors.ErrCodePromotion, "rename in-progress directory").
			WithContext("old", oldPath).
			WithContext("new", newPath)
	}
	if err := os.Remove(res.Root); err != nil {
		return pkgerrors.Wrap(err, pkgerrors.ErrCodePromotion, "remove stale latest symlink").
			WithContext("path", res.Root)
	}
	if err := os.Symlink(newPath, res.Root); err != nil {
		return pkgerrors.Wrap(err, pkgerrors.ErrCodePromotion, "retarget latest symlink").
			WithContext("path", res.Root).
			WithContext("target", newPath)
	}
	return nil
}
