package vexcmd

import (
	"go.brendoncarroll.net/star"

	"github.com/vexvcs/vex/internal/objects"
)

var filePathParam = star.Required[string]{
	ID:       "path",
	ShortDoc: "a working-copy path",
	Parse:    star.ParseString,
}

var filepropsGetCmd = star.Command{
	Metadata: star.Metadata{Short: "prints the properties recorded for a path"},
	Pos:      []star.Positional{filePathParam},
	F: func(c star.Context) error {
		repo, err := openRepo()
		if err != nil {
			return err
		}
		props, err := repo.FilePropsGet(c.Context, filePathParam.Load(c))
		if err != nil {
			return wrapExit(err)
		}
		c.Printf("executable=%v mime_hint=%q line_ending=%q\n", props.Executable, props.MimeHint, props.LineEnding)
		return nil
	},
}

var executableFlagParam = star.Optional[bool]{
	ID: "executable",
	Parse: func(s string) (bool, error) {
		return s == "" || s == "true", nil
	},
}

var mimeHintFlagParam = star.Optional[string]{
	ID:       "mime",
	ShortDoc: "a mime type hint for the path",
	Parse:    star.ParseString,
}

var lineEndingFlagParam = star.Optional[string]{
	ID:       "line-ending",
	ShortDoc: "the line-ending policy for the path",
	Parse:    star.ParseString,
}

var filepropsSetCmd = star.Command{
	Metadata: star.Metadata{Short: "sets the properties recorded for a path"},
	Flags: map[string]star.Flag{
		"executable":  executableFlagParam,
		"mime":        mimeHintFlagParam,
		"line-ending": lineEndingFlagParam,
	},
	Pos: []star.Positional{filePathParam},
	F: func(c star.Context) error {
		repo, err := openRepo()
		if err != nil {
			return err
		}
		executable, _ := executableFlagParam.LoadOpt(c)
		mimeHint, _ := mimeHintFlagParam.LoadOpt(c)
		lineEnding, _ := lineEndingFlagParam.LoadOpt(c)
		props := objects.FileProperties{
			Executable: executable,
			MimeHint:   mimeHint,
			LineEnding: lineEnding,
		}
		return wrapExit(repo.FilePropsSet(c.Context, filePathParam.Load(c), props))
	},
}
