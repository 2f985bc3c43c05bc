package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"

	"github.com/absfs/sealbackup"
)

var (
	successMark = color.New(color.FgGreen).Sprint("✓")
	errorMark   = color.New(color.FgRed).Sprint("✗")
	infoMark    = color.New(color.FgCyan).Sprint("→")
	highlight   = color.New(color.FgYellow)
	muted       = color.New(color.Faint)
)

// startSpinner shows progress on stderr unless verbose logging is on, in
// which case log lines already report progress
func startSpinner(message string, quiet bool) func() {
	if quiet {
		return func() {}
	}
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
	s.Suffix = " " + message
	_ = s.Color("cyan")
	s.Start()
	return s.Stop
}

// formatError renders err with its failure class so a wrong password reads
// differently from a corrupt backup or a filesystem problem
func formatError(err error) string {
	kind := sealbackup.Classify(err)
	label := color.New(color.FgRed, color.Bold).Sprint(kind.String())
	return fmt.Sprintf("%s %s: %v", errorMark, label, err)
}

func printf(w io.Writer, format string, a ...any) {
	fmt.Fprintf(w, format, a...)
}
