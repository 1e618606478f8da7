package cli

import (
	"encoding/json"
	"io"
)

// output writes a result as JSON or as text.
type output struct {
	format string
	w      io.Writer
}

func newOutput(opts *RootOptions, w io.Writer) output {
	return output{format: opts.Format, w: w}
}

func (o output) write(value any, text func(io.Writer)) error {
	if o.format == "json" {
		enc := json.NewEncoder(o.w)
		enc.SetIndent("", "  ")
		return enc.Encode(value)
	}
	text(o.w)
	return nil
}
