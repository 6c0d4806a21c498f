// Package manifest rewrites the compose's JSON manifests (composeinfo, rpms,
// images) so that every artifact path matches the reorganized filesystem
// layout, and prunes variants excluded from publication. All rewriters
// resolve target paths through the same layout.Scheme the filesystem
// reorganization used, so manifests and filesystem cannot drift apart.
package manifest

import (
	"encoding/json"
	"os"
	"path/filepath"

	pkgerrors "github.com/AlmaLinux/pungi-scripts-public/pkg/errors"
	"github.com/AlmaLinux/pungi-scripts-public/pkg/logging"
)

// Manifest file names within metadata/<arch>/.
const (
	ComposeInfoFile = "composeinfo.json"
	RPMsFile        = "rpms.json"
	ImagesFile      = "images.json"
)

// Document is one manifest loaded whole into memory. Mutations happen on the
// generic tree; Save marshals it back with stable (sorted) key ordering.
type Document map[string]any

// Load reads and parses a manifest file.
func Load(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrCodeManifestParse, "read manifest").
			WithContext("path", path)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrCodeManifestParse, "parse manifest").
			WithContext("path", path)
	}
	return doc, nil
}

// Save writes the manifest back with four-space indentation, matching the
// format the compose tool emits.
func (d Document) Save(path string) error {
	data, err := json.MarshalIndent(d, "", "    ")
	if err != nil {
		return pkgerrors.Wrap(err, pkgerrors.ErrCodeManifestWrite, "encode manifest").
			WithContext("path", path)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return pkgerrors.Wrap(err, pkgerrors.ErrCodeManifestWrite, "write manifest").
			WithContext("path", path)
	}
	return nil
}

// payloadSection returns payload.<key> as an object, or nil when the
// document does not carry it.
func (d Document) payloadSection(key string) map[string]any {
	payload, ok := d["payload"].(map[string]any)
	if !ok {
		return nil
	}
	section, ok := payload[key].(map[string]any)
	if !ok {
		return nil
	}
	return section
}

// loadIfPresent loads a manifest, logging a warning and returning nil when
// the file is absent. Absent manifests are skipped, not errors.
func loadIfPresent(path string) (Document, error) {
	if _, err := os.Stat(path); err != nil {
		logging.Warn("manifest", "manifest is absent, skipping", "path", filepath.Base(path))
		return nil, nil
	}
	return Load(path)
}
