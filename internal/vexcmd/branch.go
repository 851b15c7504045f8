package vexcmd

import (
	"go.brendoncarroll.net/star"
)

var branchNameParam = star.Required[string]{
	ID:       "name",
	ShortDoc: "a branch name",
	Parse:    star.ParseString,
}

var switchPrefixParam = star.Required[string]{
	ID:       "prefix",
	ShortDoc: "the tree path to root the working copy's checkout at",
	Parse:    star.ParseString,
}

var switchCmd = star.Command{
	Metadata: star.Metadata{Short: "narrows or widens the checkout to the subtree rooted at prefix"},
	Pos:      []star.Positional{switchPrefixParam},
	F: func(c star.Context) error {
		repo, err := openRepo()
		if err != nil {
			return err
		}
		return wrapExit(repo.Switch(c.Context, switchPrefixParam.Load(c)))
	},
}

var branchNewCmd = star.Command{
	Metadata: star.Metadata{Short: "creates a new, empty branch; the active session stays on its current branch"},
	Pos:      []star.Positional{branchNameParam},
	F: func(c star.Context) error {
		repo, err := openRepo()
		if err != nil {
			return err
		}
		return wrapExit(repo.BranchNew(c.Context, branchNameParam.Load(c)))
	},
}

var branchOpenCmd = star.Command{
	Metadata: star.Metadata{Short: "switches the active session onto a branch, creating it from the active branch's head if it does not exist"},
	Pos:      []star.Positional{branchNameParam},
	F: func(c star.Context) error {
		repo, err := openRepo()
		if err != nil {
			return err
		}
		return wrapExit(repo.BranchOpen(c.Context, branchNameParam.Load(c)))
	},
}

var branchSaveasCmd = star.Command{
	Metadata: star.Metadata{Short: "registers the active session's branch state under a new name"},
	Pos:      []star.Positional{branchNameParam},
	F: func(c star.Context) error {
		repo, err := openRepo()
		if err != nil {
			return err
		}
		return wrapExit(repo.BranchSaveas(c.Context, branchNameParam.Load(c)))
	},
}

var branchNameAParam = star.Required[string]{
	ID:       "a",
	ShortDoc: "the first branch name",
	Parse:    star.ParseString,
}

var branchNameBParam = star.Required[string]{
	ID:       "b",
	ShortDoc: "the second branch name",
	Parse:    star.ParseString,
}

var branchSwapCmd = star.Command{
	Metadata: star.Metadata{Short: "swaps the registry rows of two branches"},
	Pos:      []star.Positional{branchNameAParam, branchNameBParam},
	F: func(c star.Context) error {
		repo, err := openRepo()
		if err != nil {
			return err
		}
		return wrapExit(repo.BranchSwap(c.Context, branchNameAParam.Load(c), branchNameBParam.Load(c)))
	},
}

var branchForgetCmd = star.Command{
	Metadata: star.Metadata{Short: "permanently unregisters a branch"},
	Pos:      []star.Positional{branchNameParam},
	F: func(c star.Context) error {
		repo, err := openRepo()
		if err != nil {
			return err
		}
		return wrapExit(repo.BranchForget(c.Context, branchNameParam.Load(c)))
	},
}

var purgePathsParam = star.Repeated[string]{
	ID:       "paths",
	ShortDoc: "paths to scrub from every commit on the active branch that touched them",
	Parse:    star.ParseString,
}

var purgeCmd = star.Command{
	Metadata: star.Metadata{Short: "rewrites the active branch's history, scrubbing paths from every commit"},
	Pos:      []star.Positional{purgePathsParam},
	F: func(c star.Context) error {
		repo, err := openRepo()
		if err != nil {
			return err
		}
		return wrapExit(repo.Purge(c.Context, purgePathsParam.Load(c)))
	},
}
