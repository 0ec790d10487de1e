package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/flakewright/flakewright/config"
	"github.com/flakewright/flakewright/initcmd"
	"github.com/flakewright/flakewright/inspect"
	"github.com/flakewright/flakewright/render"
	"github.com/flakewright/flakewright/report"
	"github.com/flakewright/flakewright/resolve"
	"github.com/flakewright/flakewright/verify"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd(log).ExecuteContext(ctx); err != nil {
		log.Error("error", slog.Any("error", err))
		os.Exit(exitCode(err))
	}
}

// exitCode maps the error taxonomy to process exit codes: 2 manifest
// errors, 3 hash resolution exhausted, 4 verification failed, 5 build
// timeout, 1 anything else.
func exitCode(err error) int {
	var parseErr *inspect.ParseError
	switch {
	case errors.Is(err, inspect.ErrManifestNotFound) || errors.As(err, &parseErr):
		return 2
	case errors.Is(err, resolve.ErrExhausted):
		return 3
	case errors.Is(err, verify.ErrVerificationFailed):
		return 4
	case errors.Is(err, resolve.ErrBuildTimeout):
		return 5
	}
	return 1
}

func newRootCmd(log *slog.Logger) *cobra.Command {
	root := &cobra.Command{
		Use:   "flakewright",
		Short: "Package Rust and Go projects as Nix flakes",
		Long: `flakewright inspects a project's manifest, renders a flake.nix for it,
resolves the dependency hash by driving nix build, and verifies the
result with the standard flake check suite.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringP("language", "l", "", "project language (rust or go), detected when unset")
	root.PersistentFlags().StringP("output", "o", "", "output format: table, json or yaml")
	root.PersistentFlags().String("nixpkgs", "", "nixpkgs flake ref for rendered flakes")
	root.PersistentFlags().Int("max-attempts", 0, "hash resolution attempt budget")
	root.PersistentFlags().Duration("build-timeout", 0, "wall clock budget per nix invocation")
	_ = viper.BindPFlag(config.KeyLanguage, root.PersistentFlags().Lookup("language"))
	_ = viper.BindPFlag(config.KeyOutput, root.PersistentFlags().Lookup("output"))
	_ = viper.BindPFlag(config.KeyNixpkgs, root.PersistentFlags().Lookup("nixpkgs"))
	_ = viper.BindPFlag(config.KeyMaxAttempts, root.PersistentFlags().Lookup("max-attempts"))
	_ = viper.BindPFlag(config.KeyBuildTimeout, root.PersistentFlags().Lookup("build-timeout"))

	root.AddCommand(
		initCommand(log),
		inspectCommand(),
		renderCommand(log),
		resolveCommand(log),
		verifyCommand(log),
		versionCommand(),
	)
	return root
}

func initCommand(log *slog.Logger) *cobra.Command {
	var force, noResolve, noVerify bool
	var projectVersion string
	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Inspect, render, resolve and verify in one pass",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := projectDir(args)
			if err := config.Init(viper.GetViper(), dir); err != nil {
				return err
			}
			format, err := report.ParseFormat(viper.GetString(config.KeyOutput))
			if err != nil {
				return err
			}
			summary, err := initcmd.Run(cmd.Context(), log, initcmd.Args{
				Dir:          dir,
				Language:     viper.GetString(config.KeyLanguage),
				Version:      projectVersion,
				NixpkgsRef:   viper.GetString(config.KeyNixpkgs),
				Force:        force,
				SkipResolve:  noResolve,
				SkipVerify:   noVerify,
				MaxAttempts:  viper.GetInt(config.KeyMaxAttempts),
				BuildTimeout: viper.GetDuration(config.KeyBuildTimeout),
			})
			// A late stage failing still leaves earlier results worth
			// showing.
			if printErr := printSummary(os.Stdout, format, summary); printErr != nil && err == nil {
				err = printErr
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing flake.nix")
	cmd.Flags().BoolVar(&noResolve, "no-resolve", false, "skip hash resolution")
	cmd.Flags().BoolVar(&noVerify, "no-verify", false, "skip the verification suite")
	cmd.Flags().StringVar(&projectVersion, "project-version", "", "override the inspected project version")
	return cmd
}

func printSummary(w io.Writer, format report.Format, summary initcmd.Summary) error {
	if format != report.FormatTable {
		return report.Write(w, format, summary)
	}
	if summary.Metadata.Name != "" {
		if err := report.Metadata(w, format, summary.Metadata); err != nil {
			return err
		}
	}
	if summary.Resolution != nil {
		if err := report.Resolution(w, format, *summary.Resolution); err != nil {
			return err
		}
	}
	if len(summary.Steps) > 0 {
		report.Checklist(w, summary.Steps)
	}
	return nil
}

func inspectCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect [path]",
		Short: "Print the project metadata nix packaging needs",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := projectDir(args)
			if err := config.Init(viper.GetViper(), dir); err != nil {
				return err
			}
			format, err := report.ParseFormat(viper.GetString(config.KeyOutput))
			if err != nil {
				return err
			}
			lang, err := language()
			if err != nil {
				return err
			}
			meta, err := inspect.Inspect(dir, lang)
			if err != nil {
				return err
			}
			return report.Metadata(os.Stdout, format, meta)
		},
	}
}

func renderCommand(log *slog.Logger) *cobra.Command {
	var write bool
	var projectVersion string
	cmd := &cobra.Command{
		Use:   "render [path]",
		Short: "Render the flake.nix for a project",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := projectDir(args)
			if err := config.Init(viper.GetViper(), dir); err != nil {
				return err
			}
			lang, err := language()
			if err != nil {
				return err
			}
			meta, err := inspect.Inspect(dir, lang)
			if err != nil {
				return err
			}
			if projectVersion != "" {
				meta.Version = projectVersion
			}
			rendered, err := render.Render(meta, render.Options{NixpkgsRef: viper.GetString(config.KeyNixpkgs)})
			if err != nil {
				return err
			}
			if !write {
				fmt.Fprint(os.Stdout, rendered)
				return nil
			}
			path := filepath.Join(dir, "flake.nix")
			if err := os.WriteFile(path, []byte(rendered), 0o644); err != nil {
				return fmt.Errorf("failed to write flake.nix: %w", err)
			}
			log.Info("wrote flake.nix", slog.String("path", path))
			return nil
		},
	}
	cmd.Flags().BoolVar(&write, "write", false, "write flake.nix instead of printing it")
	cmd.Flags().StringVar(&projectVersion, "project-version", "", "override the inspected project version")
	return cmd
}

func resolveCommand(log *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve [path]",
		Short: "Converge the dependency hash of an existing flake",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := projectDir(args)
			if err := config.Init(viper.GetViper(), dir); err != nil {
				return err
			}
			format, err := report.ParseFormat(viper.GetString(config.KeyOutput))
			if err != nil {
				return err
			}
			res, runErr := resolve.Run(cmd.Context(), log, resolve.Args{
				Dir:          dir,
				MaxAttempts:  viper.GetInt(config.KeyMaxAttempts),
				BuildTimeout: viper.GetDuration(config.KeyBuildTimeout),
			})
			if err := report.Resolution(os.Stdout, format, res); err != nil && runErr == nil {
				runErr = err
			}
			return runErr
		},
	}
}

func verifyCommand(log *slog.Logger) *cobra.Command {
	var cleanRoom bool
	cmd := &cobra.Command{
		Use:   "verify [path]",
		Short: "Run the verification suite against an existing flake",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := projectDir(args)
			if err := config.Init(viper.GetViper(), dir); err != nil {
				return err
			}
			format, err := report.ParseFormat(viper.GetString(config.KeyOutput))
			if err != nil {
				return err
			}
			lang, err := language()
			if err != nil {
				return err
			}
			if lang == "" {
				lang, err = inspect.DetectLanguage(dir)
				if err != nil {
					return err
				}
			}
			timeout := viper.GetDuration(config.KeyBuildTimeout)
			var results []verify.StepResult
			if cleanRoom {
				results, err = verify.CleanRoom(cmd.Context(), log, verify.CleanRoomArgs{
					Dir:         dir,
					Image:       viper.GetString(config.KeyImage),
					Language:    lang,
					StepTimeout: timeout,
					CacheAddr:   viper.GetString(config.KeyCacheAddr),
					Platform:    viper.GetString(config.KeyPlatform),
					Logs:        os.Stderr,
				})
			} else {
				results, err = verify.Run(cmd.Context(), log, verify.DefaultSuite(dir, lang), timeout)
			}
			if err != nil {
				return err
			}
			if err := report.Steps(os.Stdout, format, results); err != nil {
				return err
			}
			if !verify.AllPassed(results) {
				return verify.ErrVerificationFailed
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&cleanRoom, "clean-room", false, "run the suite in a fresh container")
	cmd.Flags().String("image", "", "runtime image for --clean-room")
	cmd.Flags().String("cache-addr", "", "listen address for the host binary cache")
	cmd.Flags().String("platform", "", "container platform, e.g. linux/amd64")
	_ = viper.BindPFlag(config.KeyImage, cmd.Flags().Lookup("image"))
	_ = viper.BindPFlag(config.KeyCacheAddr, cmd.Flags().Lookup("cache-addr"))
	_ = viper.BindPFlag(config.KeyPlatform, cmd.Flags().Lookup("platform"))
	return cmd
}

func versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the flakewright version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			version := "devel"
			if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
				version = info.Main.Version
			}
			fmt.Fprintln(cmd.OutOrStdout(), "flakewright", version)
		},
	}
}

func projectDir(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return "."
}

func language() (inspect.Language, error) {
	s := viper.GetString(config.KeyLanguage)
	if s == "" {
		return "", nil
	}
	return inspect.ParseLanguage(s)
}
