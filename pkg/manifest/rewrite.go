package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/AlmaLinux/pungi-scripts-public/pkg/compose"
	"github.com/AlmaLinux/pungi-scripts-public/pkg/layout"
	"github.com/AlmaLinux/pungi-scripts-public/pkg/logging"
)

// RelocateToArchDir moves the compose's top-level metadata/*.json manifests
// into the per-architecture metadata/<arch>/ directory.
func RelocateToArchDir(res compose.Result, arch string) error {
	archDir := res.MetadataArchDir(arch)
	if err := os.MkdirAll(archDir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", archDir, err)
	}
	matches, err := filepath.Glob(filepath.Join(res.MetadataDir(), "*.json"))
	if err != nil {
		return fmt.Errorf("glob metadata: %w", err)
	}
	for _, match := range matches {
		dst := filepath.Join(archDir, filepath.Base(match))
		logging.Info("manifest", "moving manifest to arch directory", "file", filepath.Base(match), "arch", arch)
		if err := os.Rename(match, dst); err != nil {
			return fmt.Errorf("move %s -> %s: %w", match, dst, err)
		}
	}
	return nil
}

// RewriteComposeInfo rewrites every canonical path entry in composeinfo.json
// to the published layout and drops excluded variants. Path-types with no
// canonical mapping are left exactly as the compose tool wrote them.
func RewriteComposeInfo(res compose.Result, scheme *layout.Scheme, arch string, drop []string) error {
	path := filepath.Join(res.MetadataArchDir(arch), ComposeInfoFile)
	doc, err := loadIfPresent(path)
	if err != nil || doc == nil {
		return err
	}
	logging.Info("manifest", "rewriting composeinfo paths", "arch", arch)

	variants := doc.payloadSection("variants")
	for name, rawVariant := range variants {
		if slices.Contains(drop, name) {
			continue
		}
		variant, ok := rawVariant.(map[string]any)
		if !ok {
			continue
		}
		paths, ok := variant["paths"].(map[string]any)
		if !ok {
			continue
		}
		for pathType, rawByArch := range paths {
			byArch, ok := rawByArch.(map[string]any)
			if !ok {
				continue
			}
			for archKey := range byArch {
				resolved, ok := scheme.Resolve(layout.Category(pathType), archKey)
				if !ok {
					continue
				}
				byArch[archKey] = filepath.Join(name, resolved)
			}
		}
	}
	dropVariants(variants, drop)
	return doc.Save(path)
}

// RewriteRPMs rewrites the path of every RPM artifact in rpms.json according
// to its declared category, preserving the immediate parent directory and
// file name so per-package sharding survives. Artifacts with an unrecognized
// category are passed through unchanged.
func RewriteRPMs(res compose.Result, scheme *layout.Scheme, arch string, drop []string) error {
	path := filepath.Join(res.MetadataArchDir(arch), RPMsFile)
	doc, err := loadIfPresent(path)
	if err != nil || doc == nil {
		return err
	}
	logging.Info("manifest", "rewriting rpm artifact paths", "arch", arch)

	rpms := doc.payloadSection("rpms")
	for name, rawVariant := range rpms {
		if slices.Contains(drop, name) {
			continue
		}
		byArch, ok := rawVariant.(map[string]any)
		if !ok {
			continue
		}
		for archKey, rawSrpms := range byArch {
			srpms, ok := rawSrpms.(map[string]any)
			if !ok {
				continue
			}
			for _, rawArtifacts := range srpms {
				artifacts, ok := rawArtifacts.(map[string]any)
				if !ok {
					continue
				}
				for _, rawArtifact := range artifacts {
					artifact, ok := rawArtifact.(map[string]any)
					if !ok {
						continue
					}
					category, _ := artifact["category"].(string)
					origPath, _ := artifact["path"].(string)
					resolved, ok := scheme.Resolve(layout.Category(category), archKey)
					if !ok || origPath == "" {
						continue
					}
					artifact["path"] = filepath.Join(
						name,
						resolved,
						filepath.Base(filepath.Dir(origPath)),
						filepath.Base(origPath),
					)
				}
			}
		}
	}
	dropVariants(rpms, drop)
	return doc.Save(path)
}

// RewriteImages repoints every image path in images.json at the consolidated
// isos/<arch>/ directory and drops excluded variants.
func RewriteImages(res compose.Result, arch string, drop []string) error {
	path := filepath.Join(res.MetadataArchDir(arch), ImagesFile)
	doc, err := loadIfPresent(path)
	if err != nil || doc == nil {
		return err
	}
	logging.Info("manifest", "rewriting image paths", "arch", arch)

	images := doc.payloadSection("images")
	for name, rawVariant := range images {
		if slices.Contains(drop, name) {
			continue
		}
		byArch, ok := rawVariant.(map[string]any)
		if !ok {
			continue
		}
		for archKey, rawList := range byArch {
			list, ok := rawList.([]any)
			if !ok {
				continue
			}
			for _, rawImage := range list {
				image, ok := rawImage.(map[string]any)
				if !ok {
					continue
				}
				origPath, _ := image["path"].(string)
				if origPath == "" {
					continue
				}
				image["path"] = filepath.Join(layout.IsosDir, archKey, filepath.Base(origPath))
			}
		}
	}
	dropVariants(images, drop)
	return doc.Save(path)
}

func dropVariants(section map[string]any, drop []string) {
	for _, name := range drop {
		if _, ok := section[name]; ok {
			logging.Info("manifest", "dropping excluded variant from manifest", "variant", name)
			delete(section, name)
		}
	}
}
