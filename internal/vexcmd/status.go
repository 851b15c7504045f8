package vexcmd

import (
	"fmt"

	"github.com/fatih/color"
	"go.brendoncarroll.net/star"

	"github.com/vexvcs/vex/internal/objects"
)

func colorizeTrackStatus(s objects.TrackStatus) string {
	switch s {
	case objects.TrackDeleted:
		return color.RedString(string(s))
	case objects.TrackAdded, objects.TrackUntracked:
		return color.BlueString(string(s))
	case objects.TrackModified:
		return color.GreenString(string(s))
	default:
		return string(s)
	}
}

var statusCmd = star.Command{
	Metadata: star.Metadata{Short: "compares the working copy, staging area, and HEAD"},
	F: func(c star.Context) error {
		repo, err := openRepo()
		if err != nil {
			return err
		}
		entries, err := repo.Status(c.Context)
		if err != nil {
			return wrapExit(err)
		}
		for _, e := range entries {
			fmt.Fprintf(c.StdOut, "%-10s %s\n", colorizeTrackStatus(e.State), e.Path)
		}
		return nil
	},
}
