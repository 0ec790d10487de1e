package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/flakewright/flakewright/inspect"
	"github.com/flakewright/flakewright/verify"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	var codeDir, outDir, substituter, language string
	var timeout time.Duration
	cmdFlags := flag.NewFlagSet("flakewright-runtime", flag.ContinueOnError)
	cmdFlags.StringVar(&codeDir, "code", "/code", "Directory containing the flake to verify.")
	cmdFlags.StringVar(&outDir, "out", "/out", "Directory to write the verification report to.")
	cmdFlags.StringVar(&substituter, "substituter", "", "Extra binary cache to substitute from.")
	cmdFlags.StringVar(&language, "language", "", "Project language (rust or go), detected when unset.")
	cmdFlags.DurationVar(&timeout, "timeout", verify.DefaultStepTimeout, "Wall clock budget per verification step.")
	if err := cmdFlags.Parse(os.Args[1:]); err != nil {
		os.Exit(1)
	}

	allPassed, err := run(context.Background(), log, codeDir, outDir, substituter, language, timeout)
	if err != nil {
		log.Error("fatal error", slog.Any("error", err))
		os.Exit(1)
	}
	log.Info("runtime complete", slog.Bool("allPassed", allPassed))
	if !allPassed {
		os.Exit(1)
	}
}

func run(ctx context.Context, log *slog.Logger, codeDir, outDir, substituter, language string, timeout time.Duration) (allPassed bool, err error) {
	if substituter != "" {
		// The host cache serves unsigned paths, so substitution from it
		// needs require-sigs off.
		nixConfig := fmt.Sprintf("extra-substituters = %s\nrequire-sigs = false\n", substituter)
		if err := os.Setenv("NIX_CONFIG", nixConfig); err != nil {
			return false, fmt.Errorf("failed to set NIX_CONFIG: %w", err)
		}
		log.Info("substituting from host cache", slog.String("substituter", substituter))
	}

	var lang inspect.Language
	if language != "" {
		lang, err = inspect.ParseLanguage(language)
	} else {
		lang, err = inspect.DetectLanguage(codeDir)
	}
	if err != nil {
		return false, err
	}

	results, runErr := verify.Run(ctx, log, verify.DefaultSuite(codeDir, lang), timeout)
	if err := writeReport(filepath.Join(outDir, verify.ReportFileName), results); err != nil {
		return false, err
	}
	if runErr != nil {
		return false, runErr
	}
	return verify.AllPassed(results), nil
}

func writeReport(path string, results []verify.StepResult) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report: %w", err)
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(results); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return nil
}
