// Package layout defines the canonical directory layout of a published
// compose and the mapping from artifact categories to their canonical
// subdirectories. Both the filesystem reorganization and the manifest
// rewriting resolve paths through the same Scheme, so they cannot disagree
// about where an artifact ends up.
package layout

import "strings"

// Directory names fixed by the publishable layout contract.
const (
	ComposeDir   = "compose"
	OSDir        = "os"
	KickstartDir = "kickstart"
	SourceDir    = "Source"
	IsoDir       = "iso"
	IsosDir      = "isos"
	MetadataDir  = "metadata"
	RepodataDir  = "repodata"
	TreeinfoFile = ".treeinfo"
	ChecksumFile = "CHECKSUM"
	RepomdFile   = "repomd.xml"
)

// Category names an artifact category as it appears in compose manifests.
type Category string

// Categories with a canonical location in the published tree. Manifest
// path-types such as "source_tree" are categories of their own.
const (
	CategoryDebug            Category = "debug"
	CategorySource           Category = "source"
	CategorySourcePackages   Category = "source_packages"
	CategorySourceRepository Category = "source_repository"
	CategorySourceTree       Category = "source_tree"
	CategoryDebugPackages    Category = "debug_packages"
	CategoryDebugRepository  Category = "debug_repository"
	CategoryDebugTree        Category = "debug_tree"
)

const archToken = "{arch}"

// Scheme maps artifact categories to canonical relative subdirectory
// templates. The template may contain "{arch}" which Resolve substitutes.
// Categories absent from the scheme have no canonical location and are
// deliberately left unrewritten by every consumer.
type Scheme struct {
	paths map[Category]string
}

// DefaultScheme returns the canonical category mapping of the published
// layout: sources under Source/, debug RPMs under debug/<arch>/.
func DefaultScheme() *Scheme {
	return &Scheme{paths: map[Category]string{
		CategoryDebug:            "debug/" + archToken,
		CategorySource:           SourceDir,
		CategorySourcePackages:   SourceDir + "/Packages",
		CategorySourceRepository: SourceDir,
		CategorySourceTree:       SourceDir,
		CategoryDebugPackages:    "debug/" + archToken + "/Packages",
		CategoryDebugRepository:  "debug/" + archToken,
		CategoryDebugTree:        "debug/" + archToken,
	}}
}

// Resolve returns the canonical relative subdirectory for a category and
// architecture. The second return is false for categories with no mapping;
// callers must then leave the original path untouched.
func (s *Scheme) Resolve(cat Category, arch string) (string, bool) {
	template, ok := s.paths[cat]
	if !ok {
		return "", false
	}
	return strings.ReplaceAll(template, archToken, arch), true
}

// DebugPath is the canonical debug tree location for an architecture.
func (s *Scheme) DebugPath(arch string) string {
	path, _ := s.Resolve(CategoryDebug, arch)
	return path
}

// SourcePath is the canonical source tree location.
func (s *Scheme) SourcePath() string {
	path, _ := s.Resolve(CategorySource, "")
	return path
}
