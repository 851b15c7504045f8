// Package vexcmd implements the `vex` command-line interface as a
// star.Command tree with commands grouped into a directory listing.
// Colon-named commands (branch:new, fileprops:get, ...) nest under star's
// directory dispatch the same way any other subcommand does.
package vexcmd

import (
	"context"
	"os"

	"go.brendoncarroll.net/star"
	"go.brendoncarroll.net/stdctx/logctx"
	"go.uber.org/zap"

	"github.com/vexvcs/vex/internal/vexerr"
	"github.com/vexvcs/vex/internal/vexrepo"
)

// Main is the main function for the vex CLI.
func Main() {
	logger := func() *zap.Logger {
		log, _ := zap.NewProduction()
		return log
	}()
	ctx := context.Background()
	ctx = logctx.NewContext(ctx, logger)
	star.Main(rootCmd, star.MainBackground(ctx))
}

// Root returns the root command for the vex CLI.
func Root() star.Command {
	return rootCmd
}

var rootCmd = star.NewGroupedDir(
	star.Metadata{
		Short: "vex is a version control system",
	}, []star.Group{
		{Title: "REPOSITORY", Commands: []string{
			"init",
			"status",
			"history",
			"switch",
			"purge",
		}},
		{Title: "STAGING", Commands: []string{
			"add",
			"forget",
			"remove",
			"materialize",
			"ignore",
			"include",
			"restore",
		}},
		{Title: "COMMIT", Commands: []string{
			"commit",
			"commit:amend",
			"commit:prepare",
		}},
		{Title: "BRANCHES", Commands: []string{
			"branch:new",
			"branch:open",
			"branch:saveas",
			"branch:swap",
			"branch:forget",
		}},
		{Title: "UNDO & REDO", Commands: []string{
			"undo",
			"redo",
			"undo:list",
			"redo:list",
		}},
		{Title: "MISCELLANEOUS", Commands: []string{
			"fileprops:get",
			"fileprops:set",
			"debug:cat",
			"version",
		}},
	}, map[string]star.Command{
		"init":    initCmd,
		"status":  statusCmd,
		"history": historyCmd,
		"log":     historyCmd,

		"add":         addCmd,
		"forget":      forgetCmd,
		"remove":      removeCmd,
		"materialize": materializeCmd,
		"ignore":      ignoreCmd,
		"include":     includeCmd,
		"restore":     restoreCmd,

		"commit":         commitCmd,
		"commit:amend":   commitAmendCmd,
		"commit:prepare": commitPrepareCmd,

		"switch":        switchCmd,
		"branch:new":    branchNewCmd,
		"branch:open":   branchOpenCmd,
		"branch:saveas": branchSaveasCmd,
		"branch:swap":   branchSwapCmd,
		"branch:forget": branchForgetCmd,
		"purge":         purgeCmd,

		"undo":      undoCmd,
		"redo":      redoCmd,
		"undo:list": undoListCmd,
		"redo:list": redoListCmd,

		"fileprops:get": filepropsGetCmd,
		"fileprops:set": filepropsSetCmd,
		"debug:cat":     debugCatCmd,
		"version":       versionCmd,
	},
)

// openRepo opens the repository rooted at the current directory.
func openRepo() (*vexrepo.Repo, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	return vexrepo.Open(context.Background(), wd)
}

// exitCodeFor maps a command error onto the process exit codes from spec
// §6, defaulting to 1 for an error that never crossed vexerr.
func exitCodeFor(err error) int {
	if err == nil {
		return 0
	}
	if kind, ok := vexerr.KindOf(err); ok {
		return kind.ExitCode()
	}
	return 1
}

// wrapExit enforces the non-default exit codes from spec §6 directly,
// since star's own dispatcher only distinguishes success from failure.
// Codes that already match star's default (1) fall through to a plain
// error return.
func wrapExit(err error) error {
	if err == nil {
		return nil
	}
	if code := exitCodeFor(err); code != 1 {
		os.Exit(code)
	}
	return err
}
