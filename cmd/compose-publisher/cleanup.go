package main

import (
	"flag"
	"fmt"
	"path/filepath"

	"github.com/AlmaLinux/pungi-scripts-public/pkg/compose"
	"github.com/AlmaLinux/pungi-scripts-public/pkg/config"
	pkgerrors "github.com/AlmaLinux/pungi-scripts-public/pkg/errors"
	"github.com/AlmaLinux/pungi-scripts-public/pkg/publish"
	"github.com/AlmaLinux/pungi-scripts-public/pkg/utils"
)

func runCleanupCommand(args []string) error {
	fs := flag.NewFlagSet("cleanup", flag.ContinueOnError)
	envPath := fs.String("env-path", "", "build environment root containing pungi-results")
	keepBuilds := fs.Int("keep-builds", 0, "number of newest builds to keep (0 removes all unprotected builds)")
	excludedDirs := fs.String("excluded-dirs", "", "comma-separated directory prefixes to never remove")
	configPath := fs.String("config", "", "path to YAML configuration file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *envPath == "" {
		return pkgerrors.New(pkgerrors.ErrCodeInvalidInput, "--env-path is required")
	}
	if !utils.DirExists(*envPath) {
		return pkgerrors.New(pkgerrors.ErrCodeInvalidInput,
			fmt.Sprintf("--env-path %s does not exist", *envPath))
	}
	if *keepBuilds < 0 {
		return pkgerrors.New(pkgerrors.ErrCodeInvalidInput, "--keep-builds must not be negative")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	protected := append([]string{}, cfg.ProtectedPrefixes...)
	protected = append(protected, splitList(*excludedDirs)...)

	resultsDir := filepath.Join(*envPath, compose.ResultsDirName)
	return publish.PruneOldResults(resultsDir, *keepBuilds, protected)
}
