package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
)

// stdout receives all command output. Tests swap it for a buffer.
var stdout io.Writer = os.Stdout

// field is one labelled line of a detail view.
type field struct {
	label string
	value string
}

func printJSON(v interface{}) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to marshal JSON: %v\n", err)
		return
	}
	fmt.Fprintln(stdout, string(data))
}

// printTable writes rows under headers. An empty result prints "(none)" instead of a bare header.
func printTable(headers []string, rows [][]string) {
	if len(rows) == 0 {
		fmt.Fprintln(stdout, "(none)")
		return
	}
	w := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, strings.Join(headers, "\t"))
	for _, row := range rows {
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	w.Flush()
}

// printFields writes "label: value" lines with the values aligned. Empty values are skipped.
func printFields(fields ...field) {
	w := tabwriter.NewWriter(stdout, 0, 0, 1, ' ', 0)
	for _, f := range fields {
		if f.value == "" {
			continue
		}
		fmt.Fprintf(w, "%s:\t%s\n", f.label, f.value)
	}
	w.Flush()
}

func printMessage(msg string) {
	fmt.Fprintln(stdout, msg)
}
