package main

import (
	"context"
	"flag"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/AlmaLinux/pungi-scripts-public/pkg/config"
	pkgerrors "github.com/AlmaLinux/pungi-scripts-public/pkg/errors"
	"github.com/AlmaLinux/pungi-scripts-public/pkg/publish"
	"github.com/AlmaLinux/pungi-scripts-public/pkg/utils"
)

type publishFlags struct {
	envPath         string
	arch            string
	sourceRepos     string
	repos           string
	middleRepos     string
	notNeededRepos  string
	intermediateDir string
	configPath      string

	signEndpoint string
	signUsername string
	signPassword string
	signKeyID    string
}

func newPublishFlagSet(values *publishFlags) *flag.FlagSet {
	fs := flag.NewFlagSet("publish", flag.ContinueOnError)
	fs.StringVar(&values.envPath, "env-path", "", "build environment root containing pungi-results")
	fs.StringVar(&values.arch, "arch", "", "architecture being published (e.g. x86_64)")
	fs.StringVar(&values.sourceRepos, "source-repos-folder", "", "directory with platform repositories providing updateinfo")
	fs.StringVar(&values.repos, "repos", "", "comma-separated variants to publish, in order")
	fs.StringVar(&values.middleRepos, "middle-repos", "", "comma-separated variants built in an intermediate result")
	fs.StringVar(&values.notNeededRepos, "not-needed-repos", "", "comma-separated variants removed from the final tree and manifests")
	fs.StringVar(&values.intermediateDir, "middle-result-directory", "", "intermediate result directory to merge ISOs from")
	fs.StringVar(&values.configPath, "config", "", "path to YAML configuration file")
	fs.StringVar(&values.signEndpoint, "sign-service-endpoint", "", "signing service endpoint (overrides config)")
	fs.StringVar(&values.signUsername, "sign-service-username", "", "signing service username (overrides config)")
	fs.StringVar(&values.signPassword, "sign-service-password", "", "signing service password (overrides config)")
	fs.StringVar(&values.signKeyID, "pgp-sign-keyid", "", "PGP key id used for signing (overrides config)")
	return fs
}

func (f *publishFlags) validate() error {
	if f.envPath == "" {
		return pkgerrors.New(pkgerrors.ErrCodeInvalidInput, "--env-path is required")
	}
	if !utils.DirExists(f.envPath) {
		return pkgerrors.New(pkgerrors.ErrCodeInvalidInput,
			fmt.Sprintf("--env-path %s does not exist", f.envPath))
	}
	if f.arch == "" {
		return pkgerrors.New(pkgerrors.ErrCodeInvalidInput, "--arch is required")
	}
	if f.repos == "" {
		return pkgerrors.New(pkgerrors.ErrCodeInvalidInput, "--repos is required")
	}
	return nil
}

func runPublishCommand(args []string) error {
	var values publishFlags
	fs := newPublishFlagSet(&values)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := values.validate(); err != nil {
		return err
	}

	cfg, err := config.Load(values.configPath)
	if err != nil {
		return err
	}
	if values.signEndpoint != "" {
		cfg.Signing.Endpoint = values.signEndpoint
	}
	if values.signUsername != "" {
		cfg.Signing.Username = values.signUsername
	}
	if values.signPassword != "" {
		cfg.Signing.Password = values.signPassword
	}
	if values.signKeyID != "" {
		cfg.Signing.KeyID = values.signKeyID
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	opts := publish.Options{
		EnvPath:         values.envPath,
		Arch:            values.arch,
		SourceReposDir:  values.sourceRepos,
		Repos:           splitList(values.repos),
		MiddleRepos:     splitList(values.middleRepos),
		NotNeededRepos:  splitList(values.notNeededRepos),
		IntermediateDir: values.intermediateDir,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return publish.New(cfg, opts).Run(ctx, opts)
}
