package main

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

// tableView is a rounded go-pretty table. Rows shorter than headers are
// padded; extra cells are dropped.
type tableView struct {
	headers []string
	aligns  []columnAlignment
	rows    [][]string
	footer  []string
}

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	return tableView{headers: headers, rows: rows, aligns: aligns}.render()
}

func (v tableView) render() string {
	if len(v.headers) == 0 {
		return ""
	}
	tw := table.NewWriter()
	style := table.StyleRounded
	style.Format.Footer = text.FormatDefault
	tw.SetStyle(style)

	tw.AppendHeader(v.row(v.headers))
	for _, cells := range v.rows {
		tw.AppendRow(v.row(cells))
	}
	if len(v.footer) > 0 {
		tw.AppendFooter(v.row(v.footer))
	}

	configs := make([]table.ColumnConfig, len(v.headers))
	for i := range v.headers {
		align := text.AlignLeft
		if i < len(v.aligns) && v.aligns[i] == alignRight {
			align = text.AlignRight
		}
		configs[i] = table.ColumnConfig{Number: i + 1, Align: align, AlignFooter: align, AlignHeader: text.AlignLeft}
	}
	tw.SetColumnConfigs(configs)
	return tw.Render()
}

func (v tableView) row(cells []string) table.Row {
	r := make(table.Row, len(v.headers))
	for i := range r {
		if i < len(cells) {
			r[i] = cells[i]
		} else {
			r[i] = ""
		}
	}
	return r
}
