package main

import (
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
)

type tone int

const (
	toneInfo tone = iota
	toneOK
	toneWarn
	toneError
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

func (t tone) label() string {
	switch t {
	case toneOK:
		return "OK"
	case toneWarn:
		return "WARN"
	case toneError:
		return "FAIL"
	default:
		return "INFO"
	}
}

func (t tone) color() string {
	switch t {
	case toneOK:
		return ansiGreen
	case toneWarn:
		return ansiYellow
	case toneError:
		return ansiRed
	default:
		return ansiBlue
	}
}

// checkLine renders "  label:   [TONE] message", coloured when colorize is set.
func checkLine(label string, t tone, message string, colorize bool) string {
	line := fmt.Sprintf("  %-22s [%s]", label+":", t.label())
	if message != "" {
		line += " " + message
	}
	if colorize {
		return t.color() + line + ansiReset
	}
	return line
}

func sectionHeader(title string, colorize bool) string {
	line := "== " + title + " =="
	if colorize {
		return ansiBlue + line + ansiReset
	}
	return line
}

func shouldColorize(w io.Writer) bool {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
