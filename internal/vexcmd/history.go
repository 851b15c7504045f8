package vexcmd

import (
	"fmt"

	"go.brendoncarroll.net/star"
)

var historyPathParam = star.Optional[string]{
	ID:       "path",
	ShortDoc: "restrict history to commits that touched this path",
	Parse:    star.ParseString,
}

var historyLimitParam = star.Optional[int]{
	ID:       "limit",
	ShortDoc: "maximum number of commits to show (0 means unbounded)",
	Parse: func(s string) (int, error) {
		var n int
		_, err := fmt.Sscanf(s, "%d", &n)
		return n, err
	},
}

var historyCmd = star.Command{
	Metadata: star.Metadata{Short: "walks the active branch's commit chain"},
	Flags: map[string]star.Flag{
		"path":  historyPathParam,
		"limit": historyLimitParam,
	},
	F: func(c star.Context) error {
		repo, err := openRepo()
		if err != nil {
			return err
		}
		pathFilter, _ := historyPathParam.LoadOpt(c)
		limit, _ := historyLimitParam.LoadOpt(c)
		entries, err := repo.History(c.Context, pathFilter, limit)
		if err != nil {
			return wrapExit(err)
		}
		for _, e := range entries {
			fmt.Fprintf(c.StdOut, "%s %s\n", e.Hash, e.Commit.Message)
		}
		return nil
	},
}
