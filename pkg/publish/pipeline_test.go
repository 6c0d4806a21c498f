package publish

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/ini.v1"

	"github.com/AlmaLinux/pungi-scripts-public/pkg/compose"
	"github.com/AlmaLinux/pungi-scripts-public/pkg/config"
	"github.com/AlmaLinux/pungi-scripts-public/pkg/sign"
	"github.com/AlmaLinux/pungi-scripts-public/pkg/utils"
)

const testArch = "x86_64"

const osTreeinfo = `[general]
arch = x86_64
family = AlmaLinux
timestamp = 1600000000

[tree]
arch = x86_64
build_timestamp = 1600000000

[variant-AppStream]
id = AppStream
name = AppStream
packages = ../../../AppStream/x86_64/os/Packages
repository = ../../../AppStream/x86_64/os
`

type testEnv struct {
	envPath        string
	resultsDir     string
	sourceRepos    string
	result         compose.Result
	modifyrepoArgs [][]string
	verifiedPaths  []string
}

func write(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// seedVariant creates the raw compose layout for one variant: source and
// debug trees in the compose tool's internal shape, an os tree with
// repodata and treeinfo, and a per-variant iso directory.
func seedVariant(t *testing.T, res compose.Result, variant string) {
	t.Helper()
	variantDir := res.VariantDir(variant)
	write(t, filepath.Join(variantDir, "source", "tree", "Packages", "b", variant+".src.rpm"), "srpm")
	write(t, filepath.Join(variantDir, "source", "tree", "repodata", "repomd.xml"), "<repomd/>")
	write(t, filepath.Join(variantDir, testArch, "debug", "tree", "Packages", "b", variant+"-debuginfo.rpm"), "debug")
	write(t, filepath.Join(variantDir, testArch, "debug", "tree", "repodata", "repomd.xml"), "<repomd/>")
	write(t, filepath.Join(res.OSDir(variant, testArch), "Packages", "b", variant+".rpm"), "rpm")
	write(t, filepath.Join(res.OSDir(variant, testArch), "repodata", "repomd.xml"), "<repomd/>")
	write(t, filepath.Join(res.OSDir(variant, testArch), ".treeinfo"), osTreeinfo)
	write(t, filepath.Join(res.IsoDir(variant, testArch), variant+".iso"), variant+"-iso-bytes")
	write(t, filepath.Join(res.IsoDir(variant, testArch), variant+".iso.manifest"), "manifest")
	write(t, filepath.Join(res.IsoDir(variant, testArch), "CHECKSUM"), "sum-"+variant+"\n")
}

func seedManifests(t *testing.T, res compose.Result, variants []string) {
	t.Helper()
	composeVariants := map[string]any{}
	rpmVariants := map[string]any{}
	imageVariants := map[string]any{}
	for _, variant := range variants {
		composeVariants[variant] = map[string]any{
			"paths": map[string]any{
				"os_tree":     map[string]any{testArch: variant + "/x86_64/os"},
				"source_tree": map[string]any{testArch: variant + "/source/tree"},
				"debug_tree":  map[string]any{testArch: variant + "/x86_64/debug/tree"},
			},
		}
		rpmVariants[variant] = map[string]any{
			testArch: map[string]any{
				variant + "-1.0-1.el9.src": map[string]any{
					variant + "-1.0-1.el9.src": map[string]any{
						"category": "source",
						"path":     variant + "/source/tree/Packages/b/" + variant + ".src.rpm",
					},
				},
			},
		}
		imageVariants[variant] = map[string]any{
			testArch: []any{
				map[string]any{"path": variant + "/x86_64/iso/" + variant + ".iso"},
			},
		}
	}
	writeJSON := func(name string, payloadKey string, section map[string]any) {
		doc := map[string]any{"payload": map[string]any{payloadKey: section}}
		data, err := json.MarshalIndent(doc, "", "    ")
		require.NoError(t, err)
		write(t, filepath.Join(res.MetadataDir(), name), string(data))
	}
	writeJSON("composeinfo.json", "variants", composeVariants)
	writeJSON("rpms.json", "rpms", rpmVariants)
	writeJSON("images.json", "images", imageVariants)
}

func newTestEnv(t *testing.T, variants []string) *testEnv {
	t.Helper()
	env := &testEnv{envPath: t.TempDir()}
	env.resultsDir = filepath.Join(env.envPath, compose.ResultsDirName)
	env.sourceRepos = filepath.Join(env.envPath, "platform-repos")

	realDir := filepath.Join(env.resultsDir, "last_compose_dir")
	require.NoError(t, os.MkdirAll(realDir, 0o755))
	link := filepath.Join(env.resultsDir, "latest-AlmaLinux-9")
	require.NoError(t, os.Symlink(realDir, link))
	env.result = compose.Result{Root: link}

	for _, variant := range variants {
		seedVariant(t, env.result, variant)
	}
	seedManifests(t, env.result, variants)

	write(t, filepath.Join(env.sourceRepos,
		"platform-almalinux-9-baseos-"+testArch, "repodata", "xyz-updateinfo.xml.xz"), "<updates/>")
	return env
}

func (env *testEnv) options(repos, middle, notNeeded []string) Options {
	return Options{
		EnvPath:        env.envPath,
		Arch:           testArch,
		SourceReposDir: env.sourceRepos,
		Repos:          repos,
		MiddleRepos:    middle,
		NotNeededRepos: notNeeded,
	}
}

// newTestPipeline builds a pipeline with pinned time and stubbed external
// tools so no subprocess ever runs.
func newTestPipeline(t *testing.T, env *testEnv, cfg *config.Config, opts Options) *Pipeline {
	t.Helper()
	p := New(cfg, opts)
	p.Now = func() time.Time { return time.Unix(1717171717, 0) }
	p.Promoter.Now = p.Now
	p.Injector.Run = func(ctx context.Context, name string, args ...string) error {
		env.modifyrepoArgs = append(env.modifyrepoArgs, append([]string{name}, args...))
		return nil
	}
	p.Verifier.Run = func(ctx context.Context, name string, args ...string) error {
		env.verifiedPaths = append(env.verifiedPaths, args[len(args)-1])
		return nil
	}
	return p
}

func readDoc(t *testing.T, path string) map[string]any {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	return doc
}

func TestPipelineEndToEnd(t *testing.T) {
	env := newTestEnv(t, []string{"BaseOS", "AppStream", "Minimal"})
	opts := env.options([]string{"BaseOS", "AppStream", "Minimal"}, nil, []string{"Minimal"})
	p := newTestPipeline(t, env, config.Default(), opts)

	require.NoError(t, p.Run(context.Background(), opts))
	res := env.result

	// Published variants carry the canonical layout.
	for _, variant := range []string{"BaseOS", "AppStream"} {
		assert.True(t, utils.DirExists(filepath.Join(res.VariantDir(variant), "Source")), variant)
		assert.True(t, utils.DirExists(filepath.Join(res.VariantDir(variant), "debug", testArch)), variant)
		assert.True(t, utils.DirExists(res.KickstartDir(variant, testArch)), variant)
		assert.False(t, utils.DirExists(filepath.Join(res.VariantDir(variant), "source")), variant)
	}

	// The not-needed variant is gone from filesystem and every manifest.
	assert.False(t, utils.DirExists(res.VariantDir("Minimal")))
	metaDir := res.MetadataArchDir(testArch)
	for _, name := range []string{"composeinfo.json", "rpms.json", "images.json"} {
		doc := readDoc(t, filepath.Join(metaDir, name))
		payload := doc["payload"].(map[string]any)
		for _, section := range payload {
			assert.NotContains(t, section.(map[string]any), "Minimal", name)
		}
	}

	// ISOs of both published variants consolidated with a merged CHECKSUM.
	isosDir := res.IsosArchDir(testArch)
	assert.FileExists(t, filepath.Join(isosDir, "BaseOS.iso"))
	assert.FileExists(t, filepath.Join(isosDir, "AppStream.iso"))
	checksum, err := os.ReadFile(filepath.Join(isosDir, "CHECKSUM"))
	require.NoError(t, err)
	assert.Equal(t, "sum-BaseOS\nsum-AppStream\nsum-Minimal\n", string(checksum))

	// Manifest paths reflect the reorganized layout.
	rpms := readDoc(t, filepath.Join(metaDir, "rpms.json"))["payload"].(map[string]any)["rpms"].(map[string]any)
	artifact := rpms["BaseOS"].(map[string]any)[testArch].(map[string]any)["BaseOS-1.0-1.el9.src"].(map[string]any)["BaseOS-1.0-1.el9.src"].(map[string]any)
	assert.Equal(t, "BaseOS/Source/b/BaseOS.src.rpm", artifact["path"])

	images := readDoc(t, filepath.Join(metaDir, "images.json"))["payload"].(map[string]any)["images"].(map[string]any)
	image := images["BaseOS"].(map[string]any)[testArch].([]any)[0].(map[string]any)
	assert.Equal(t, "isos/x86_64/BaseOS.iso", image["path"])

	// Updateinfo was injected into BaseOS and registered exactly once.
	require.Len(t, env.modifyrepoArgs, 1)
	assert.Equal(t, "modifyrepo_c", env.modifyrepoArgs[0][0])
	assert.FileExists(t, filepath.Join(res.OSDir("BaseOS", testArch), "repodata", "xyz-updateinfo.xml.xz"))

	// Treeinfo files were stamped; the kickstart copy points at kickstart.
	osCfg, err := ini.Load(filepath.Join(res.OSDir("BaseOS", testArch), ".treeinfo"))
	require.NoError(t, err)
	assert.Equal(t, "1717171717", osCfg.Section("general").Key("timestamp").String())
	ksCfg, err := ini.Load(filepath.Join(res.KickstartDir("BaseOS", testArch), ".treeinfo"))
	require.NoError(t, err)
	assert.Equal(t, "../../../AppStream/x86_64/kickstart",
		ksCfg.Section("variant-AppStream").Key("repository").String())
	assert.Equal(t, "../../../AppStream/x86_64/os",
		osCfg.Section("variant-AppStream").Key("repository").String())

	// The build was promoted.
	target, err := os.Readlink(res.Root)
	require.NoError(t, err)
	assert.Equal(t, "1717171717-last_compose_dir", filepath.Base(target))
}

func TestPipelineRunIsRerunSafeBeforeManifests(t *testing.T) {
	env := newTestEnv(t, []string{"BaseOS"})
	opts := env.options([]string{"BaseOS"}, nil, nil)
	p := newTestPipeline(t, env, config.Default(), opts)

	// Simulate the filesystem half of an interrupted run, then a full run.
	res := env.result
	require.NoError(t, p.Injector.Inject(context.Background(), res, "BaseOS", testArch))
	require.NoError(t, p.Run(context.Background(), opts))

	assert.True(t, utils.DirExists(filepath.Join(res.VariantDir("BaseOS"), "Source")))
	require.Len(t, env.modifyrepoArgs, 1, "updateinfo must not be registered twice")
}

func TestPipelineMergesIntermediateResult(t *testing.T) {
	env := newTestEnv(t, []string{"BaseOS", "Minimal"})

	intermediateDir := filepath.Join(t.TempDir(), "minimal_iso")
	intermediate := compose.Result{Root: intermediateDir}
	write(t, filepath.Join(intermediate.IsoDir("Minimal", testArch), "Minimal.iso"), "minimal-bytes")
	write(t, filepath.Join(intermediate.IsoDir("Minimal", testArch), "CHECKSUM"), "sum-intermediate\n")

	opts := env.options([]string{"BaseOS", "Minimal"}, []string{"Minimal"}, nil)
	opts.IntermediateDir = intermediateDir
	p := newTestPipeline(t, env, config.Default(), opts)

	require.NoError(t, p.Run(context.Background(), opts))
	res := env.result

	// The middle variant's tree is stripped from the final compose, its
	// ISO merged from the intermediate result, which is then deleted.
	assert.False(t, utils.DirExists(res.VariantDir("Minimal")))
	assert.FileExists(t, filepath.Join(res.IsosArchDir(testArch), "Minimal.iso"))
	assert.NoDirExists(t, intermediateDir)

	checksum, err := os.ReadFile(filepath.Join(res.IsosArchDir(testArch), "CHECKSUM"))
	require.NoError(t, err)
	assert.Equal(t, "sum-BaseOS\nsum-intermediate\n", string(checksum))
}

func TestPipelineSignsRepomdAndChecksum(t *testing.T) {
	env := newTestEnv(t, []string{"BaseOS"})

	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"token": "batch-token"})
	})
	mux.HandleFunc("/sign", func(w http.ResponseWriter, r *http.Request) {
		file, _, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		content, _ := io.ReadAll(file)
		if r.URL.Query().Get("sign_type") == string(sign.ModeClear) {
			io.WriteString(w, "-----BEGIN PGP SIGNED MESSAGE-----\n"+string(content))
			return
		}
		io.WriteString(w, "-----BEGIN PGP SIGNATURE-----")
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	cfg := config.Default()
	cfg.Signing = config.SigningConfig{
		Endpoint: server.URL,
		Username: "builder@example.com",
		Password: "secret",
		KeyID:    "ABCDEF01",
	}
	opts := env.options([]string{"BaseOS"}, nil, nil)
	p := newTestPipeline(t, env, cfg, opts)

	require.NoError(t, p.Run(context.Background(), opts))
	res := env.result

	// Detached signatures next to every repomd the variant ended up with.
	for _, repomd := range []string{
		filepath.Join(res.OSDir("BaseOS", testArch), "repodata", "repomd.xml.asc"),
		filepath.Join(res.KickstartDir("BaseOS", testArch), "repodata", "repomd.xml.asc"),
		filepath.Join(res.VariantDir("BaseOS"), "Source", "repodata", "repomd.xml.asc"),
		filepath.Join(res.VariantDir("BaseOS"), "debug", testArch, "repodata", "repomd.xml.asc"),
	} {
		assert.FileExists(t, repomd)
	}

	// The consolidated CHECKSUM was clear-signed in place.
	checksum, err := os.ReadFile(filepath.Join(res.IsosArchDir(testArch), "CHECKSUM"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(checksum), "-----BEGIN PGP SIGNED MESSAGE-----"))

	// Every signature was verified.
	assert.Len(t, env.verifiedPaths, 5)
}
