// Package publish orchestrates the post-compose publishing pipeline: tree
// reorganization, updateinfo injection, kickstart mirroring, manifest
// rewriting, signing, ISO consolidation and the final promotion of the
// latest symlink. The pipeline is strictly sequential and performs no
// rollback: a failure aborts the run and leaves the tree in its partial
// state, relying on the idempotence of the filesystem steps for re-runs.
package publish

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/AlmaLinux/pungi-scripts-public/pkg/compose"
	"github.com/AlmaLinux/pungi-scripts-public/pkg/config"
	"github.com/AlmaLinux/pungi-scripts-public/pkg/iso"
	"github.com/AlmaLinux/pungi-scripts-public/pkg/layout"
	"github.com/AlmaLinux/pungi-scripts-public/pkg/logging"
	"github.com/AlmaLinux/pungi-scripts-public/pkg/manifest"
	"github.com/AlmaLinux/pungi-scripts-public/pkg/repodata"
	"github.com/AlmaLinux/pungi-scripts-public/pkg/sign"
	"github.com/AlmaLinux/pungi-scripts-public/pkg/treeinfo"
	"github.com/AlmaLinux/pungi-scripts-public/pkg/utils"
)

// Options selects what one publish run operates on.
type Options struct {
	// EnvPath is the build environment directory containing pungi-results.
	EnvPath string
	// Arch is the architecture of the distribution being published.
	Arch string
	// SourceReposDir stores previously published platform repositories
	// searched for updateinfo files.
	SourceReposDir string
	// Repos is the ordered list of repository variants in the compose.
	Repos []string
	// MiddleRepos were built in an earlier intermediate pass; their trees
	// are dropped from this compose and their ISOs merged in from
	// IntermediateDir instead.
	MiddleRepos []string
	// NotNeededRepos are deleted from the filesystem and all manifests.
	NotNeededRepos []string
	// IntermediateDir is the completed intermediate result directory the
	// middle repos' ISOs are merged from. Deleted after the run.
	IntermediateDir string
}

// Pipeline wires the publishing components together for one configuration.
type Pipeline struct {
	Config    *config.Config
	Scheme    *layout.Scheme
	Injector  *repodata.Injector
	Collector *iso.Collector
	Verifier  *sign.Verifier
	Promoter  *Promoter

	// Authenticate obtains the batch signing session; tests substitute it.
	Authenticate func(ctx context.Context, creds sign.Credentials) (*sign.Session, error)
	// Now supplies the build timestamp stamped into treeinfo files.
	Now func() time.Time
}

// New constructs a Pipeline for the given configuration and options.
func New(cfg *config.Config, opts Options) *Pipeline {
	return &Pipeline{
		Config:       cfg,
		Scheme:       layout.DefaultScheme(),
		Injector:     repodata.NewInjector(opts.SourceReposDir, cfg.Product),
		Collector:    iso.NewCollector(),
		Verifier:     sign.NewVerifier(),
		Promoter:     NewPromoter(cfg.InProgressPrefix),
		Authenticate: sign.Authenticate,
		Now:          time.Now,
	}
}

// Run executes the full pipeline over every latest result of the
// environment. Components run strictly in order; the first error aborts the
// run for all remaining results.
func (p *Pipeline) Run(ctx context.Context, opts Options) error {
	runID := uuid.NewString()
	start := time.Now()
	metricRunsTotal.Inc()

	resultsDir := filepath.Join(opts.EnvPath, compose.ResultsDirName)
	results, err := compose.DiscoverLatest(resultsDir)
	if err != nil {
		return err
	}
	logging.Info("publish", "starting publish run",
		"run_id", runID, "arch", opts.Arch, "results", len(results))

	// One signing session per batch. The original design re-authenticated
	// for every file; a single batch-scoped session avoids hammering the
	// token endpoint at the cost of assuming the token outlives the run.
	var session *sign.Session
	creds := sign.Credentials{
		Username: p.Config.Signing.Username,
		Password: p.Config.Signing.Password,
		Endpoint: p.Config.Signing.Endpoint,
		KeyID:    p.Config.Signing.KeyID,
	}
	if creds.Configured() {
		session, err = p.Authenticate(ctx, creds)
		if err != nil {
			return err
		}
	}

	for _, res := range results {
		if err := p.publishResult(ctx, res, session, creds.KeyID, opts); err != nil {
			return err
		}
	}

	if opts.IntermediateDir != "" && utils.DirExists(opts.IntermediateDir) {
		logging.Info("publish", "removing merged intermediate result", "path", opts.IntermediateDir)
		if err := os.RemoveAll(opts.IntermediateDir); err != nil {
			return fmt.Errorf("remove intermediate result %s: %w", opts.IntermediateDir, err)
		}
	}

	metricRunDuration.Set(time.Since(start).Seconds())
	pushMetrics(p.Config.Metrics, runID, opts.Arch)
	logging.Info("publish", "publish run finished", "run_id", runID, "duration", time.Since(start).Round(time.Second))
	return nil
}

// publishResult runs every transformation for one latest result tree and
// promotes it at the end.
func (p *Pipeline) publishResult(ctx context.Context, res compose.Result, session *sign.Session, keyid string, opts Options) error {
	buildTimestamp := p.Now().Unix()

	for _, repo := range opts.Repos {
		if !utils.DirExists(res.VariantDir(repo)) {
			logging.Warn("publish", "variant is absent from compose, skipping", "variant", repo)
			continue
		}
		if slices.Contains(opts.MiddleRepos, repo) {
			logging.Info("publish", "removing intermediate-only variant from final tree", "variant", repo)
			if err := os.RemoveAll(res.VariantDir(repo)); err != nil {
				return fmt.Errorf("remove middle variant %s: %w", repo, err)
			}
			metricVariantsRemoved.Inc()
			continue
		}

		if err := compose.Reorganize(res, p.Scheme, repo, opts.Arch); err != nil {
			return err
		}
		if err := p.Injector.Inject(ctx, res, repo, opts.Arch); err != nil {
			return err
		}
		if err := repodata.MirrorKickstart(res, repo, opts.Arch); err != nil {
			return err
		}
		if session != nil {
			if err := p.signRepomdFiles(ctx, session, res, repo, keyid, opts.Arch); err != nil {
				return err
			}
		}
		if err := p.Collector.Collect(res, repo, opts.Arch, nil); err != nil {
			return err
		}
		if err := p.stampTreeinfoFiles(res, repo, buildTimestamp); err != nil {
			return err
		}
		metricVariantsPublished.Inc()
	}

	if err := manifest.RelocateToArchDir(res, opts.Arch); err != nil {
		return err
	}
	if err := manifest.RewriteComposeInfo(res, p.Scheme, opts.Arch, opts.NotNeededRepos); err != nil {
		return err
	}
	if err := manifest.RewriteRPMs(res, p.Scheme, opts.Arch, opts.NotNeededRepos); err != nil {
		return err
	}
	if err := manifest.RewriteImages(res, opts.Arch, opts.NotNeededRepos); err != nil {
		return err
	}

	if session != nil {
		if err := p.signIsosChecksum(ctx, session, res, keyid, opts.Arch); err != nil {
			return err
		}
	}

	for _, repo := range opts.MiddleRepos {
		if opts.IntermediateDir == "" {
			continue
		}
		intermediate := compose.Result{Root: opts.IntermediateDir}
		if err := p.Collector.Collect(intermediate, repo, opts.Arch, &res); err != nil {
			return err
		}
	}

	for _, repo := range opts.NotNeededRepos {
		if !utils.DirExists(res.VariantDir(repo)) {
			continue
		}
		logging.Info("publish", "removing not needed variant", "variant", repo)
		if err := os.RemoveAll(res.VariantDir(repo)); err != nil {
			return fmt.Errorf("remove not needed variant %s: %w", repo, err)
		}
		metricVariantsRemoved.Inc()
	}

	return p.Promoter.Promote(res)
}

// signRepomdFiles signs and verifies the repository metadata index of every
// repository tree the variant ended up with.
func (p *Pipeline) signRepomdFiles(ctx context.Context, session *sign.Session, res compose.Result, variant, keyid, arch string) error {
	variantDir := res.VariantDir(variant)
	repomdPaths := []string{
		filepath.Join(res.OSDir(variant, arch), layout.RepodataDir, layout.RepomdFile),
		filepath.Join(res.KickstartDir(variant, arch), layout.RepodataDir, layout.RepomdFile),
		filepath.Join(variantDir, p.Scheme.SourcePath(), layout.RepodataDir, layout.RepomdFile),
		filepath.Join(variantDir, p.Scheme.DebugPath(arch), layout.RepodataDir, layout.RepomdFile),
	}
	logging.Info("sign", "signing repomd files", "variant", variant)
	for _, repomdPath := range repomdPaths {
		if !utils.FileExists(repomdPath) {
			continue
		}
		signed, err := session.Sign(ctx, repomdPath, keyid, sign.ModeDetach)
		if err != nil {
			return err
		}
		if err := p.Verifier.Verify(ctx, signed); err != nil {
			return err
		}
		metricFilesSigned.Inc()
	}
	return nil
}

// signIsosChecksum clear-signs and verifies the consolidated per-arch
// CHECKSUM file.
func (p *Pipeline) signIsosChecksum(ctx context.Context, session *sign.Session, res compose.Result, keyid, arch string) error {
	checksumPath := filepath.Join(res.IsosArchDir(arch), layout.ChecksumFile)
	if !utils.FileExists(checksumPath) {
		logging.Warn("sign", "consolidated CHECKSUM is absent, skipping", "arch", arch)
		return nil
	}
	signed, err := session.Sign(ctx, checksumPath, keyid, sign.ModeClear)
	if err != nil {
		return err
	}
	if err := p.Verifier.Verify(ctx, signed); err != nil {
		return err
	}
	metricFilesSigned.Inc()
	return nil
}

// stampTreeinfoFiles updates the build timestamps of every .treeinfo under
// the variant and redirects the kickstart copies at the kickstart tree.
func (p *Pipeline) stampTreeinfoFiles(res compose.Result, variant string, buildTimestamp int64) error {
	return filepath.WalkDir(res.VariantDir(variant), func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || d.Name() != layout.TreeinfoFile {
			return nil
		}
		if err := treeinfo.SetTimestamps(path, buildTimestamp); err != nil {
			return err
		}
		if filepath.Base(filepath.Dir(path)) == layout.KickstartDir {
			return treeinfo.RedirectVariantToKickstart(path, p.Config.IncludedToKickstartRepo)
		}
		return nil
	})
}
