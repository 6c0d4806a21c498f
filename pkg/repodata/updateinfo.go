// Package repodata mutates the package-manager metadata of published
// repositories: it injects updateinfo records from previously published
// platform repositories and derives kickstart repositories from os trees.
package repodata

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/AlmaLinux/pungi-scripts-public/pkg/compose"
	"github.com/AlmaLinux/pungi-scripts-public/pkg/layout"
	"github.com/AlmaLinux/pungi-scripts-public/pkg/logging"
	"github.com/AlmaLinux/pungi-scripts-public/pkg/utils"
)

// ModifyrepoTool is the external metadata-index tool used to register an
// injected updateinfo file.
const ModifyrepoTool = "modifyrepo_c"

// Injector copies updateinfo metadata from a store of previously published
// platform repositories into freshly composed ones.
type Injector struct {
	// PlatformReposDir is the store searched for platform repositories.
	PlatformReposDir string
	// Product is the product name used in platform repository directory
	// names (e.g. "almalinux").
	Product string
	// Run invokes the metadata-index tool.
	Run CommandRunner
}

// NewInjector constructs an Injector backed by the real metadata-index tool.
func NewInjector(platformReposDir, product string) *Injector {
	return &Injector{
		PlatformReposDir: platformReposDir,
		Product:          product,
		Run:              ExecRunner,
	}
}

// Inject locates the platform repository matching the variant and
// architecture, copies its updateinfo file into the destination os tree's
// repodata and registers it with the metadata-index tool. A missing os tree
// or a missing source file is a warning, not an error, and at most one
// updateinfo file is ever injected per destination.
func (i *Injector) Inject(ctx context.Context, res compose.Result, variant, arch string) error {
	osDir := res.OSDir(variant, arch)
	if !utils.DirExists(osDir) {
		logging.Warn("updateinfo", "os tree is absent, skipping injection",
			"variant", variant, "arch", arch)
		return nil
	}

	pattern := filepath.Join(
		i.PlatformReposDir,
		fmt.Sprintf("platform-%s-[0-9]-%s-%s", i.Product, strings.ToLower(variant), arch),
		layout.RepodataDir,
		"*updateinfo*",
	)
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return fmt.Errorf("glob %s: %w", pattern, err)
	}
	if len(matches) == 0 {
		logging.Warn("updateinfo", "no updateinfo found in platform repos",
			"variant", variant, "arch", arch, "pattern", pattern)
		return nil
	}

	// First match wins.
	src := matches[0]
	repodataDir := filepath.Join(osDir, layout.RepodataDir)
	dst := filepath.Join(repodataDir, filepath.Base(src))
	if utils.FileExists(dst) {
		logging.Info("updateinfo", "updateinfo already injected", "variant", variant, "path", dst)
		return nil
	}

	logging.Info("updateinfo", "copying updateinfo into repo", "variant", variant, "src", src)
	if err := utils.CopyFile(src, dst); err != nil {
		return err
	}
	logging.Info("updateinfo", "registering updateinfo with metadata index", "variant", variant)
	return i.Run(ctx, ModifyrepoTool, "--mdtype=updateinfo", dst, repodataDir)
}
