package pdf

import (
	"context"
	"io"

	"go.uber.org/fx"
)

// Document is a tabular operator report: a title block, summary fields and one table.
type Document struct {
	Title    string
	Subtitle string
	Summary  []Field
	Columns  []Column
	Rows     [][]string
	Notes    []string
}

type Field struct {
	Label string
	Value string
}

// Column widths are maroto grid units; a row's widths should add up to 12.
type Column struct {
	Header string
	Width  int
	Right  bool
}

type Provider interface {
	Render(ctx context.Context, doc Document) (io.Reader, error)
}

var Module = fx.Module("pdf.provider",
	fx.Provide(New),
)
