package main

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// tableView is a header plus rows; numeric columns are right aligned.
type tableView struct {
	headers []string
	rows    [][]string
	numeric map[int]bool
	footer  []string
}

func (v tableView) render() string {
	if len(v.headers) == 0 {
		return ""
	}
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(toRow(v.headers, len(v.headers)))
	for _, row := range v.rows {
		tw.AppendRow(toRow(row, len(v.headers)))
	}
	if len(v.footer) > 0 {
		tw.AppendFooter(toRow(v.footer, len(v.headers)))
	}

	configs := make([]table.ColumnConfig, 0, len(v.headers))
	for i := range v.headers {
		align := text.AlignLeft
		if v.numeric[i] {
			align = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
			AlignFooter: align,
		})
	}
	tw.SetColumnConfigs(configs)
	return tw.Render()
}

func toRow(values []string, width int) table.Row {
	row := make(table.Row, width)
	for i := range row {
		if i < len(values) {
			row[i] = values[i]
		} else {
			row[i] = ""
		}
	}
	return row
}
