package shared

import (
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// Package-level color variables
var (
	ColorInfo    = color.New(color.FgCyan)
	ColorSuccess = color.New(color.FgGreen)
	ColorWarning = color.New(color.FgYellow)
	ColorError   = color.New(color.FgRed)
	ColorPrompt  = color.New(color.FgBlue, color.Bold)
	ColorMuted   = color.New(color.FgHiBlack)
	ColorGenre   = color.New(color.FgMagenta, color.Bold)
)

// InitializeColors turns colored output off when stdout is not a terminal or
// when the caller asks for plain output.
func InitializeColors(plain bool) {
	color.NoColor = plain || !isatty.IsTerminal(os.Stdout.Fd())
}

// IsTTY reports whether stdout is an interactive terminal.
func IsTTY() bool {
	return isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
}
