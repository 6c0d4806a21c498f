// Package compose models one output tree of a distribution compose run and
// the reorganization that moves its repositories into the canonical
// publishable layout.
package compose

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/AlmaLinux/pungi-scripts-public/pkg/layout"
)

// ResultsDirName is the directory the compose tool writes its result trees
// into, relative to the build environment path.
const ResultsDirName = "pungi-results"

// LatestPrefix marks result entries that are candidates for publishing.
const LatestPrefix = "latest-"

// Result is one compose output tree (a "latest-*" entry). Root is the path
// of that entry; all published content lives under its compose/ subtree.
type Result struct {
	Root string
}

// ComposeDir returns the root of the publishable subtree.
func (r Result) ComposeDir() string {
	return filepath.Join(r.Root, layout.ComposeDir)
}

// VariantDir returns the directory of a named repository variant.
func (r Result) VariantDir(variant string) string {
	return filepath.Join(r.ComposeDir(), variant)
}

// OSDir returns the binary repository tree of a variant/arch.
func (r Result) OSDir(variant, arch string) string {
	return filepath.Join(r.ComposeDir(), variant, arch, layout.OSDir)
}

// KickstartDir returns the kickstart repository tree of a variant/arch.
func (r Result) KickstartDir(variant, arch string) string {
	return filepath.Join(r.ComposeDir(), variant, arch, layout.KickstartDir)
}

// IsoDir returns the per-variant iso directory the compose tool produced.
func (r Result) IsoDir(variant, arch string) string {
	return filepath.Join(r.ComposeDir(), variant, arch, layout.IsoDir)
}

// IsosArchDir returns the consolidated per-arch iso directory.
func (r Result) IsosArchDir(arch string) string {
	return filepath.Join(r.ComposeDir(), layout.IsosDir, arch)
}

// MetadataDir returns the manifest directory of the compose.
func (r Result) MetadataDir() string {
	return filepath.Join(r.ComposeDir(), layout.MetadataDir)
}

// MetadataArchDir returns the per-arch manifest directory.
func (r Result) MetadataArchDir(arch string) string {
	return filepath.Join(r.MetadataDir(), arch)
}

// DiscoverLatest lists the publishable result entries under a pungi-results
// directory, sorted by name for a deterministic processing order.
func DiscoverLatest(resultsDir string) ([]Result, error) {
	matches, err := filepath.Glob(filepath.Join(resultsDir, LatestPrefix+"*"))
	if err != nil {
		return nil, fmt.Errorf("glob %s: %w", resultsDir, err)
	}
	sort.Strings(matches)
	results := make([]Result, 0, len(matches))
	for _, match := range matches {
		results = append(results, Result{Root: match})
	}
	return results, nil
}
