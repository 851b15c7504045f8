package vexcmd

import (
	"fmt"

	"go.brendoncarroll.net/star"
)

var undoCmd = star.Command{
	Metadata: star.Metadata{Short: "reverts the most recent action and pushes it onto the redo stack"},
	F: func(c star.Context) error {
		repo, err := openRepo()
		if err != nil {
			return err
		}
		return wrapExit(repo.Undo(c.Context))
	},
}

var redoChoiceParam = star.Optional[int]{
	ID:       "choice",
	ShortDoc: "which redo option to apply when the redo stack has branched (0 is the default)",
	Parse: func(s string) (int, error) {
		var n int
		_, err := fmt.Sscanf(s, "%d", &n)
		return n, err
	},
}

var redoCmd = star.Command{
	Metadata: star.Metadata{Short: "re-applies the action at the top of the redo stack"},
	Flags:    map[string]star.Flag{"choice": redoChoiceParam},
	F: func(c star.Context) error {
		repo, err := openRepo()
		if err != nil {
			return err
		}
		choice, _ := redoChoiceParam.LoadOpt(c)
		return wrapExit(repo.Redo(c.Context, choice))
	},
}

var undoListLimitParam = star.Optional[int]{
	ID:       "limit",
	ShortDoc: "maximum number of action log entries to show (0 means unbounded)",
	Parse: func(s string) (int, error) {
		var n int
		_, err := fmt.Sscanf(s, "%d", &n)
		return n, err
	},
}

var undoListCmd = star.Command{
	Metadata: star.Metadata{Short: "lists the action log from most to least recent"},
	Flags:    map[string]star.Flag{"limit": undoListLimitParam},
	F: func(c star.Context) error {
		repo, err := openRepo()
		if err != nil {
			return err
		}
		limit, _ := undoListLimitParam.LoadOpt(c)
		records, err := repo.UndoList(c.Context, limit)
		if err != nil {
			return wrapExit(err)
		}
		for _, rec := range records {
			fmt.Fprintf(c.StdOut, "%d %s\n", rec.Seq, rec.Summary())
		}
		return nil
	},
}

var redoListCmd = star.Command{
	Metadata: star.Metadata{Short: "shows the options available at the top of the redo stack"},
	F: func(c star.Context) error {
		repo, err := openRepo()
		if err != nil {
			return err
		}
		entry, ok, err := repo.RedoList(c.Context)
		if err != nil {
			return wrapExit(err)
		}
		if !ok {
			c.Printf("nothing to redo\n")
			return nil
		}
		for i, opt := range entry.Options {
			c.Printf("%d: %s\n", i+1, opt.Summary)
		}
		return nil
	},
}
