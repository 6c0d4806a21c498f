// Package iso consolidates the per-variant iso directories of a compose
// into the shared isos/<arch> directory of the published tree.
package iso

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/AlmaLinux/pungi-scripts-public/pkg/compose"
	"github.com/AlmaLinux/pungi-scripts-public/pkg/layout"
	"github.com/AlmaLinux/pungi-scripts-public/pkg/logging"
	"github.com/AlmaLinux/pungi-scripts-public/pkg/utils"
)

// DefaultExtensions are the artifact patterns gathered from iso directories:
// the images themselves and their checksum manifest sidecars.
var DefaultExtensions = []string{"*.iso", "*.manifest"}

// Collector gathers ISO images and their sidecars into isos/<arch>.
type Collector struct {
	Extensions []string
}

// NewCollector returns a Collector for the default artifact extensions.
func NewCollector() *Collector {
	return &Collector{Extensions: DefaultExtensions}
}

// Collect moves the matching artifacts of one variant's iso directory into
// the consolidated isos/<arch> directory of dst (or of src when dst is nil,
// the usual case), appends the variant's CHECKSUM onto the shared one and
// removes the emptied iso directory. Files already present at the
// destination are skipped, so a re-run converges without clobbering.
func (c *Collector) Collect(src compose.Result, variant, arch string, dst *compose.Result) error {
	target := src
	if dst != nil {
		target = *dst
	}
	isosDir := target.IsosArchDir(arch)
	if err := os.MkdirAll(isosDir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", isosDir, err)
	}

	isoDir := src.IsoDir(variant, arch)
	if !utils.DirExists(isoDir) {
		return nil
	}

	for _, ext := range c.Extensions {
		matches, err := filepath.Glob(filepath.Join(isoDir, ext))
		if err != nil {
			return fmt.Errorf("glob %s in %s: %w", ext, isoDir, err)
		}
		for _, match := range matches {
			dstFile := filepath.Join(isosDir, filepath.Base(match))
			if utils.FileExists(dstFile) {
				logging.Info("iso", "artifact already collected, skipping", "file", filepath.Base(match))
				continue
			}
			logging.Info("iso", "collecting artifact", "src", match, "dst", dstFile)
			if err := os.Rename(match, dstFile); err != nil {
				return fmt.Errorf("move %s -> %s: %w", match, dstFile, err)
			}
		}
	}

	srcChecksum := filepath.Join(isoDir, layout.ChecksumFile)
	if utils.FileExists(srcChecksum) {
		dstChecksum := filepath.Join(isosDir, layout.ChecksumFile)
		logging.Info("iso", "appending checksum manifest", "variant", variant, "dst", dstChecksum)
		if err := utils.AppendFile(srcChecksum, dstChecksum); err != nil {
			return err
		}
	}

	if err := os.RemoveAll(isoDir); err != nil {
		return fmt.Errorf("remove %s: %w", isoDir, err)
	}
	return nil
}
