package vexcmd

import (
	"go.brendoncarroll.net/star"

	"github.com/vexvcs/vex/internal/vexrepo"
)

var commitMessageParam = star.Optional[string]{
	ID:       "message",
	ShortDoc: "the commit message",
	Parse:    star.ParseString,
}

var commitCmd = star.Command{
	Metadata: star.Metadata{Short: "folds staged changes into a new commit on the active branch"},
	Flags:    map[string]star.Flag{"message": commitMessageParam},
	F: func(c star.Context) error {
		repo, err := openRepo()
		if err != nil {
			return err
		}
		msg, _ := commitMessageParam.LoadOpt(c)
		return wrapExit(repo.Commit(c.Context, vexrepo.CommitOptions{Message: msg}))
	},
}

var commitAmendCmd = star.Command{
	Metadata: star.Metadata{Short: "replaces the active branch's head commit with one folding in the staged changes"},
	Flags:    map[string]star.Flag{"message": commitMessageParam},
	F: func(c star.Context) error {
		repo, err := openRepo()
		if err != nil {
			return err
		}
		msg, _ := commitMessageParam.LoadOpt(c)
		return wrapExit(repo.Commit(c.Context, vexrepo.CommitOptions{Message: msg, Amend: true}))
	},
}

var commitPrepareCmd = star.Command{
	Metadata: star.Metadata{Short: "stages the working manifest into a not-yet-applied commit"},
	Flags:    map[string]star.Flag{"message": commitMessageParam},
	F: func(c star.Context) error {
		repo, err := openRepo()
		if err != nil {
			return err
		}
		msg, _ := commitMessageParam.LoadOpt(c)
		return wrapExit(repo.CommitPrepare(c.Context, msg))
	},
}
