package pdf

import (
	"bytes"
	"context"
	"errors"
	"io"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

var ErrEmptyDocument = errors.New("empty_document")

type MarotoProvider struct{}

func New() Provider {
	return &MarotoProvider{}
}

func (p *MarotoProvider) Render(ctx context.Context, doc Document) (io.Reader, error) {
	if doc.Title == "" {
		return nil, ErrEmptyDocument
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(12,
		text.NewCol(12, doc.Title, props.Text{
			Size:  18,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
	)
	if doc.Subtitle != "" {
		m.AddRow(8, text.NewCol(12, doc.Subtitle, props.Text{Size: 9}))
	}

	for _, f := range doc.Summary {
		m.AddRow(6,
			text.NewCol(4, f.Label, props.Text{Size: 9, Style: fontstyle.Bold}),
			text.NewCol(8, f.Value, props.Text{Size: 9}),
		)
	}

	if len(doc.Columns) > 0 {
		m.AddRow(6, col.New(12))
		m.AddRow(8, headerCols(doc.Columns)...)
		for _, row := range doc.Rows {
			m.AddRow(6, rowCols(doc.Columns, row)...)
		}
	}

	for _, note := range doc.Notes {
		m.AddRow(6, text.NewCol(12, note, props.Text{Size: 8}))
	}

	out, err := m.Generate()
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(out.GetBytes()), nil
}

func headerCols(columns []Column) []core.Col {
	cols := make([]core.Col, 0, len(columns))
	for _, c := range columns {
		cols = append(cols, text.NewCol(c.Width, c.Header, props.Text{Size: 9, Style: fontstyle.Bold, Align: alignFor(c)}))
	}
	return cols
}

func rowCols(columns []Column, row []string) []core.Col {
	cols := make([]core.Col, 0, len(columns))
	for i, c := range columns {
		value := ""
		if i < len(row) {
			value = row[i]
		}
		cols = append(cols, text.NewCol(c.Width, value, props.Text{Size: 8, Align: alignFor(c)}))
	}
	return cols
}

func alignFor(c Column) align.Type {
	if c.Right {
		return align.Right
	}
	return align.Left
}
