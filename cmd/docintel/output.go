package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/bull/docintel/internal/documents"
	"github.com/bull/docintel/internal/storage"
)

var (
	bold    = color.New(color.Bold)
	faint   = color.New(color.Faint)
	success = color.New(color.FgGreen)
	warning = color.New(color.FgYellow)
	failure = color.New(color.FgRed)
	pending = color.New(color.FgCyan)
)

func statusColor(state storage.State, degraded bool) *color.Color {
	switch {
	case state == storage.StateFailed:
		return failure
	case degraded:
		return warning
	case state == storage.StateCompleted:
		return success
	default:
		return pending
	}
}

func printView(w io.Writer, v *documents.View) {
	bold.Fprintln(w, v.Filename)
	fmt.Fprintf(w, "  ID:       %s\n", v.ID)
	fmt.Fprintf(w, "  Status:   %s\n", statusColor(v.State, v.Degraded).Sprint(v.Status))
	fmt.Fprintf(w, "  Uploaded: %s by %s\n", v.UploadedAt.Format("2006-01-02 15:04"), v.UploadedBy)
	fmt.Fprintf(w, "  Summary:  %s\n", v.Summary)
}
