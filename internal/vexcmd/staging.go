package vexcmd

import (
	"go.brendoncarroll.net/star"
)

var pathsParam = star.Repeated[string]{
	ID:       "paths",
	ShortDoc: "one or more working-copy paths",
	Parse:    star.ParseString,
}

var addCmd = star.Command{
	Metadata: star.Metadata{Short: "tracks the working-copy content of paths"},
	Pos:      []star.Positional{pathsParam},
	F: func(c star.Context) error {
		repo, err := openRepo()
		if err != nil {
			return err
		}
		return wrapExit(repo.Add(c.Context, pathsParam.Load(c)))
	},
}

var forgetCmd = star.Command{
	Metadata: star.Metadata{Short: "removes paths from the working manifest without touching the working copy"},
	Pos:      []star.Positional{pathsParam},
	F: func(c star.Context) error {
		repo, err := openRepo()
		if err != nil {
			return err
		}
		return wrapExit(repo.Forget(c.Context, pathsParam.Load(c)))
	},
}

var removeCmd = star.Command{
	Metadata: star.Metadata{Short: "deletes paths from the working copy and marks them removed"},
	Pos:      []star.Positional{pathsParam},
	F: func(c star.Context) error {
		repo, err := openRepo()
		if err != nil {
			return err
		}
		return wrapExit(repo.Remove(c.Context, pathsParam.Load(c)))
	},
}

var materializeCmd = star.Command{
	Metadata: star.Metadata{Short: "re-writes paths to the working copy from the staged or committed content"},
	Pos:      []star.Positional{pathsParam},
	F: func(c star.Context) error {
		repo, err := openRepo()
		if err != nil {
			return err
		}
		return wrapExit(repo.Materialize(c.Context, pathsParam.Load(c)))
	},
}

var patternsParam = star.Repeated[string]{
	ID:       "patterns",
	ShortDoc: "one or more glob patterns",
	Parse:    star.ParseString,
}

var ignoreCmd = star.Command{
	Metadata: star.Metadata{Short: "appends patterns to the repository's ignore list"},
	Pos:      []star.Positional{patternsParam},
	F: func(c star.Context) error {
		repo, err := openRepo()
		if err != nil {
			return err
		}
		return wrapExit(repo.Ignore(c.Context, patternsParam.Load(c)))
	},
}

var includeCmd = star.Command{
	Metadata: star.Metadata{Short: "appends patterns to the repository's include list, overriding a broader ignore pattern"},
	Pos:      []star.Positional{patternsParam},
	F: func(c star.Context) error {
		repo, err := openRepo()
		if err != nil {
			return err
		}
		return wrapExit(repo.Include(c.Context, patternsParam.Load(c)))
	},
}

var restoreCmd = star.Command{
	Metadata: star.Metadata{Short: "resets paths in the working manifest back to the active branch's head"},
	Pos:      []star.Positional{pathsParam},
	F: func(c star.Context) error {
		repo, err := openRepo()
		if err != nil {
			return err
		}
		return wrapExit(repo.Restore(c.Context, pathsParam.Load(c)))
	},
}
