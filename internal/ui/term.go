package ui

import (
	"fmt"
	"io"

	"golang.org/x/term"
)

// IsTTY reports whether the given file descriptor refers to a terminal.
func IsTTY(fd uintptr) bool {
	return term.IsTerminal(int(fd)) //nolint:gosec // G115: fd fits in int
}

// TermWidth returns the terminal width in columns, or 80 if it cannot be determined.
func TermWidth(fd uintptr) int {
	w, _, err := term.GetSize(int(fd)) //nolint:gosec // G115: fd fits in int
	if err != nil || w <= 0 {
		return 80
	}
	return w
}

// ReadPassword prints prompt to w and reads a line from the terminal fd
// without echo.
func ReadPassword(fd uintptr, w io.Writer, prompt string) (string, error) {
	if !IsTTY(fd) {
		return "", fmt.Errorf("password prompt requires a terminal")
	}
	fmt.Fprint(w, prompt)
	b, err := term.ReadPassword(int(fd)) //nolint:gosec // G115: fd fits in int
	fmt.Fprintln(w)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(b), nil
}
