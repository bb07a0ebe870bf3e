package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
)

// printer writes aligned human output or indented JSON.
type printer struct {
	w  io.Writer
	tw *tabwriter.Writer
}

func newPrinter(w io.Writer) *printer {
	return &printer{w: w, tw: tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)}
}

func (p *printer) section(title string) {
	fmt.Fprintf(p.tw, "\n%s\n", title)
}

func (p *printer) field(name, value string) {
	fmt.Fprintf(p.tw, "  %s\t%s\n", name, value)
}

func (p *printer) row(cols ...string) {
	fmt.Fprintln(p.tw, strings.Join(cols, "\t"))
}

func (p *printer) line(format string, args ...any) {
	fmt.Fprintf(p.tw, format+"\n", args...)
}

func (p *printer) flush() error {
	return p.tw.Flush()
}

func (p *printer) json(v any) error {
	enc := json.NewEncoder(p.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func onOff(b bool) string {
	if b {
		return "enabled"
	}
	return "disabled"
}

func joinOr(items []string, empty string) string {
	if len(items) == 0 {
		return empty
	}
	return strings.Join(items, ", ")
}
