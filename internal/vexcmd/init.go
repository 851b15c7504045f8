package vexcmd

import (
	"os"
	"strings"

	"go.brendoncarroll.net/star"

	"github.com/vexvcs/vex/internal/vexrepo"
)

var initCmd = star.Command{
	Metadata: star.Metadata{
		Short: "initializes a repository in the current directory",
	},
	Flags: map[string]star.Flag{
		"include": includeFlagParam,
		"ignore":  ignoreFlagParam,
	},
	F: func(c star.Context) error {
		wd, err := os.Getwd()
		if err != nil {
			return err
		}
		include, _ := includeFlagParam.LoadOpt(c)
		ignore, _ := ignoreFlagParam.LoadOpt(c)
		_, err = vexrepo.Init(c.Context, wd, vexrepo.InitOptions{
			Include: splitCommaList(include),
			Ignore:  splitCommaList(ignore),
		})
		if err != nil {
			return wrapExit(err)
		}
		c.Printf("initialized a vex repository in %s\n", wd)
		return nil
	},
}

var includeFlagParam = star.Optional[string]{
	ID:       "include",
	ShortDoc: "comma-separated glob patterns to include, overriding a broader ignore pattern",
	Parse:    star.ParseString,
}

var ignoreFlagParam = star.Optional[string]{
	ID:       "ignore",
	ShortDoc: "comma-separated glob patterns to ignore",
	Parse:    star.ParseString,
}

func splitCommaList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

var versionCmd = star.Command{
	Metadata: star.Metadata{Short: "prints version information"},
	F: func(c star.Context) error {
		c.Printf("vex (unreleased)\n")
		return nil
	},
}
