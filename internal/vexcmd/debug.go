package vexcmd

import (
	"go.brendoncarroll.net/star"

	"github.com/vexvcs/vex/internal/codec"
)

var objectHashParam = star.Required[string]{
	ID:       "hash",
	ShortDoc: "a hex-encoded object hash",
	Parse:    star.ParseString,
}

var debugCatCmd = star.Command{
	Metadata: star.Metadata{Short: "dumps a raw object's bytes by hash"},
	Pos:      []star.Positional{objectHashParam},
	F: func(c star.Context) error {
		repo, err := openRepo()
		if err != nil {
			return err
		}
		h, err := codec.ParseHash(objectHashParam.Load(c))
		if err != nil {
			return wrapExit(err)
		}
		data, err := repo.DebugCat(c.Context, h)
		if err != nil {
			return wrapExit(err)
		}
		_, err = c.StdOut.Write(data)
		return err
	},
}
