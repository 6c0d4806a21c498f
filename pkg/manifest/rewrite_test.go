package manifest

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AlmaLinux/pungi-scripts-public/pkg/compose"
	"github.com/AlmaLinux/pungi-scripts-public/pkg/layout"
)

func newTestResult(t *testing.T) compose.Result {
	t.Helper()
	return compose.Result{Root: filepath.Join(t.TempDir(), "latest-x")}
}

func writeManifest(t *testing.T, res compose.Result, arch, name string, doc map[string]any) string {
	t.Helper()
	path := filepath.Join(res.MetadataArchDir(arch), name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	data, err := json.MarshalIndent(doc, "", "    ")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func readManifest(t *testing.T, path string) map[string]any {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	return doc
}

func composeInfoFixture() map[string]any {
	variantPaths := func() map[string]any {
		return map[string]any{
			"os_tree":           map[string]any{"x86_64": "BaseOS/x86_64/os"},
			"source_tree":       map[string]any{"x86_64": "BaseOS/source/tree"},
			"debug_tree":        map[string]any{"x86_64": "BaseOS/x86_64/debug/tree"},
			"debug_packages":    map[string]any{"x86_64": "BaseOS/x86_64/debug/tree/Packages"},
			"source_repository": map[string]any{"x86_64": "BaseOS/source/tree"},
		}
	}
	return map[string]any{
		"header": map[string]any{"version": "1.2"},
		"payload": map[string]any{
			"variants": map[string]any{
				"BaseOS":  map[string]any{"paths": variantPaths()},
				"Minimal": map[string]any{"paths": variantPaths()},
			},
		},
	}
}

func TestRewriteComposeInfo(t *testing.T) {
	res := newTestResult(t)
	path := writeManifest(t, res, "x86_64", ComposeInfoFile, composeInfoFixture())

	require.NoError(t, RewriteComposeInfo(res, layout.DefaultScheme(), "x86_64", []string{"Minimal"}))

	doc := readManifest(t, path)
	variants := doc["payload"].(map[string]any)["variants"].(map[string]any)
	require.Contains(t, variants, "BaseOS")
	assert.NotContains(t, variants, "Minimal")

	paths := variants["BaseOS"].(map[string]any)["paths"].(map[string]any)
	get := func(pathType string) string {
		return paths[pathType].(map[string]any)["x86_64"].(string)
	}
	assert.Equal(t, "BaseOS/Source", get("source_tree"))
	assert.Equal(t, "BaseOS/debug/x86_64", get("debug_tree"))
	assert.Equal(t, "BaseOS/debug/x86_64/Packages", get("debug_packages"))
	assert.Equal(t, "BaseOS/Source", get("source_repository"))
	// Unmapped path-types keep the compose tool's layout.
	assert.Equal(t, "BaseOS/x86_64/os", get("os_tree"))
	// Header untouched.
	assert.Equal(t, "1.2", doc["header"].(map[string]any)["version"])
}

func rpmsFixture() map[string]any {
	artifactSet := func() map[string]any {
		return map[string]any{
			"bash-5.1-2.el9.src": map[string]any{
				"bash-5.1-2.el9.src": map[string]any{
					"category": "source",
					"path":     "BaseOS/source/tree/Packages/b/bash-5.1-2.el9.src.rpm",
				},
				"bash-5.1-2.el9.x86_64": map[string]any{
					"category": "binary",
					"path":     "BaseOS/x86_64/os/Packages/b/bash-5.1-2.el9.x86_64.rpm",
				},
				"bash-debuginfo-5.1-2.el9.x86_64": map[string]any{
					"category": "debug",
					"path":     "BaseOS/x86_64/debug/tree/Packages/b/bash-debuginfo-5.1-2.el9.x86_64.rpm",
				},
			},
		}
	}
	return map[string]any{
		"payload": map[string]any{
			"rpms": map[string]any{
				"BaseOS":  map[string]any{"x86_64": artifactSet()},
				"Minimal": map[string]any{"x86_64": artifactSet()},
			},
		},
	}
}

func TestRewriteRPMs(t *testing.T) {
	res := newTestResult(t)
	path := writeManifest(t, res, "x86_64", RPMsFile, rpmsFixture())

	require.NoError(t, RewriteRPMs(res, layout.DefaultScheme(), "x86_64", []string{"Minimal"}))

	doc := readManifest(t, path)
	rpms := doc["payload"].(map[string]any)["rpms"].(map[string]any)
	assert.NotContains(t, rpms, "Minimal")

	artifacts := rpms["BaseOS"].(map[string]any)["x86_64"].(map[string]any)["bash-5.1-2.el9.src"].(map[string]any)
	get := func(artifact string) string {
		return artifacts[artifact].(map[string]any)["path"].(string)
	}
	// <variant>/<mapped-subpath>/<original-parent-dir>/<original-filename>
	assert.Equal(t, "BaseOS/Source/b/bash-5.1-2.el9.src.rpm", get("bash-5.1-2.el9.src"))
	assert.Equal(t, "BaseOS/debug/x86_64/b/bash-debuginfo-5.1-2.el9.x86_64.rpm",
		get("bash-debuginfo-5.1-2.el9.x86_64"))
	// Unrecognized category passes through unchanged.
	assert.Equal(t, "BaseOS/x86_64/os/Packages/b/bash-5.1-2.el9.x86_64.rpm",
		get("bash-5.1-2.el9.x86_64"))
}

func imagesFixture() map[string]any {
	imageList := func() []any {
		return []any{
			map[string]any{
				"path":   "Minimal/x86_64/iso/AlmaLinux-9-x86_64-minimal.iso",
				"format": "iso",
			},
		}
	}
	return map[string]any{
		"payload": map[string]any{
			"images": map[string]any{
				"BaseOS":  map[string]any{"x86_64": imageList()},
				"Minimal": map[string]any{"x86_64": imageList()},
			},
		},
	}
}

func TestRewriteImages(t *testing.T) {
	res := newTestResult(t)
	path := writeManifest(t, res, "x86_64", ImagesFile, imagesFixture())

	require.NoError(t, RewriteImages(res, "x86_64", []string{"Minimal"}))

	doc := readManifest(t, path)
	images := doc["payload"].(map[string]any)["images"].(map[string]any)
	assert.NotContains(t, images, "Minimal")

	list := images["BaseOS"].(map[string]any)["x86_64"].([]any)
	image := list[0].(map[string]any)
	assert.Equal(t, "isos/x86_64/AlmaLinux-9-x86_64-minimal.iso", image["path"])
	assert.Equal(t, "iso", image["format"])
}

func TestRewriteMissingManifestIsNoop(t *testing.T) {
	res := newTestResult(t)
	require.NoError(t, RewriteComposeInfo(res, layout.DefaultScheme(), "x86_64", nil))
	require.NoError(t, RewriteRPMs(res, layout.DefaultScheme(), "x86_64", nil))
	require.NoError(t, RewriteImages(res, "x86_64", nil))
}

func TestRelocateToArchDir(t *testing.T) {
	res := newTestResult(t)
	require.NoError(t, os.MkdirAll(res.MetadataDir(), 0o755))
	for _, name := range []string{ComposeInfoFile, RPMsFile, ImagesFile} {
		require.NoError(t, os.WriteFile(filepath.Join(res.MetadataDir(), name), []byte("{}"), 0o644))
	}

	require.NoError(t, RelocateToArchDir(res, "x86_64"))

	for _, name := range []string{ComposeInfoFile, RPMsFile, ImagesFile} {
		assert.FileExists(t, filepath.Join(res.MetadataArchDir("x86_64"), name))
		assert.NoFileExists(t, filepath.Join(res.MetadataDir(), name))
	}
}

func TestDocumentRoundTripStableOrder(t *testing.T) {
	res := newTestResult(t)
	path := writeManifest(t, res, "x86_64", ComposeInfoFile, composeInfoFixture())

	doc, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, doc.Save(path))
	first, err := os.ReadFile(path)
	require.NoError(t, err)

	doc, err = Load(path)
	require.NoError(t, err)
	require.NoError(t, doc.Save(path))
	second, err := os.ReadFile(path)
	require.NoError(t, err)

	assert.Equal(t, string(first), string(second))
}
