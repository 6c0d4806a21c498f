// Package treeinfo reads and rewrites .treeinfo install-tree descriptors,
// the sectioned key/value files that describe an installable tree's layout
// and variants.
package treeinfo

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/ini.v1"

	"github.com/AlmaLinux/pungi-scripts-public/pkg/layout"
	"github.com/AlmaLinux/pungi-scripts-public/pkg/logging"
	"github.com/AlmaLinux/pungi-scripts-public/pkg/utils"
)

var loadOptions = ini.LoadOptions{
	// .treeinfo carries keys like "variants" whose values contain commas;
	// they must survive a load/save round trip untouched.
	IgnoreInlineComment: true,
}

// SetTimestamps stamps general.timestamp and tree.build_timestamp with the
// build timestamp. Missing descriptor files are skipped silently.
func SetTimestamps(path string, timestamp int64) error {
	if !utils.FileExists(path) {
		return nil
	}
	cfg, err := ini.LoadSources(loadOptions, path)
	if err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	value := strconv.FormatInt(timestamp, 10)
	cfg.Section("general").Key("timestamp").SetValue(value)
	cfg.Section("tree").Key("build_timestamp").SetValue(value)
	logging.Info("treeinfo", "updating build timestamp", "path", path, "timestamp", value)
	return cfg.SaveTo(path)
}

// RedirectVariantToKickstart rewrites the packages and repository locations
// of the named variant's section so they point into the kickstart tree
// instead of the os tree. The descriptor is removed before being written
// fresh: right after the kickstart mirror it is still a hardlink shared
// with the os tree, and writing through the link would corrupt both copies.
func RedirectVariantToKickstart(path, variant string) error {
	cfg, err := ini.LoadSources(loadOptions, path)
	if err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}

	sectionName := "variant-" + variant
	section, err := cfg.GetSection(sectionName)
	if err != nil {
		logging.Warn("treeinfo", "variant section is absent, nothing to redirect",
			"path", path, "section", sectionName)
		return nil
	}

	logging.Info("treeinfo", "redirecting variant locations to kickstart",
		"path", path, "section", sectionName)
	for _, key := range []string{"packages", "repository"} {
		current := section.Key(key).String()
		section.Key(key).SetValue(strings.ReplaceAll(current, layout.OSDir, layout.KickstartDir))
	}

	if err := os.Remove(path); err != nil {
		return fmt.Errorf("unlink %s: %w", path, err)
	}
	return cfg.SaveTo(path)
}
