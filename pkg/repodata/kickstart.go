package repodata

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/AlmaLinux/pungi-scripts-public/pkg/compose"
	"github.com/AlmaLinux/pungi-scripts-public/pkg/layout"
	"github.com/AlmaLinux/pungi-scripts-public/pkg/logging"
	"github.com/AlmaLinux/pungi-scripts-public/pkg/utils"
)

// MirrorKickstart duplicates a variant's os tree into a kickstart tree.
// Ordinary files are hardlinked to avoid doubling storage; the repodata
// directory is an independent copy because the kickstart metadata is
// rewritten later and a hardlinked repodata would corrupt the os tree.
// The mirror is skipped when the os tree is absent or the kickstart tree
// already exists, which makes a re-run safe.
func MirrorKickstart(res compose.Result, variant, arch string) error {
	src := res.OSDir(variant, arch)
	dst := res.KickstartDir(variant, arch)
	if !utils.DirExists(src) {
		logging.Warn("kickstart", "os tree is absent, skipping mirror", "variant", variant, "arch", arch)
		return nil
	}
	if utils.DirExists(dst) {
		logging.Info("kickstart", "kickstart tree already exists, skipping mirror", "variant", variant, "arch", arch)
		return nil
	}

	logging.Info("kickstart", "mirroring os tree into kickstart", "variant", variant, "arch", arch)
	if err := utils.CopyTree(src, dst, true); err != nil {
		return fmt.Errorf("mirror %s -> %s: %w", src, dst, err)
	}

	srcRepodata := filepath.Join(src, layout.RepodataDir)
	if !utils.DirExists(srcRepodata) {
		return nil
	}
	dstRepodata := filepath.Join(dst, layout.RepodataDir)
	logging.Info("kickstart", "copying repodata without hardlinks", "variant", variant, "arch", arch)
	if err := os.RemoveAll(dstRepodata); err != nil {
		return fmt.Errorf("remove hardlinked repodata %s: %w", dstRepodata, err)
	}
	if err := utils.CopyTree(srcRepodata, dstRepodata, false); err != nil {
		return fmt.Errorf("copy repodata %s -> %s: %w", srcRepodata, dstRepodata, err)
	}
	return nil
}
