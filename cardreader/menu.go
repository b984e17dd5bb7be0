package main

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/barnettlynn/securecard/pkg/securecard"
)

// selectMenu draws items and lets the user move with the arrow keys. It
// returns the chosen index, or -1 when stdin is not a terminal.
func selectMenu(prompt string, items []string, selected int) int {
	if len(items) == 0 {
		return -1
	}
	if selected < 0 || selected >= len(items) {
		selected = 0
	}

	oldState, err := term.MakeRaw(int(os.Stdin.Fd()))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error setting raw mode: %v\r\n", err)
		return -1
	}
	defer term.Restore(int(os.Stdin.Fd()), oldState)

	draw := func() {
		for i, item := range items {
			fmt.Print("\033[2K\r")
			if i == selected {
				fmt.Printf("> %s\r\n", item)
			} else {
				fmt.Printf("  %s\r\n", item)
			}
		}
	}
	fmt.Printf("%s\r\n", prompt)
	draw()

	buf := make([]byte, 3)
	for {
		n, err := os.Stdin.Read(buf)
		if err != nil {
			return selected
		}
		switch {
		case n == 1 && (buf[0] == 0x0D || buf[0] == 0x0A):
			fmt.Printf("\r\n")
			return selected
		case n == 1 && buf[0] == 0x03: // Ctrl-C
			term.Restore(int(os.Stdin.Fd()), oldState)
			fmt.Printf("\r\n")
			os.Exit(130)
		case n == 3 && buf[0] == 0x1B && buf[1] == '[':
			moved := false
			switch buf[2] {
			case 'A':
				if selected > 0 {
					selected--
					moved = true
				}
			case 'B':
				if selected < len(items)-1 {
					selected++
					moved = true
				}
			}
			if moved {
				fmt.Printf("\033[%dA", len(items))
				draw()
			}
		}
	}
}

// pickReader lets the user choose among the attached PC/SC readers.
func pickReader(defaultIdx int) (int, error) {
	readers, err := securecard.ListReaders()
	if err != nil {
		return 0, err
	}
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return defaultIdx, nil
	}
	idx := selectMenu("Select reader:", readers, defaultIdx)
	if idx < 0 {
		return defaultIdx, nil
	}
	return idx, nil
}

// promptKey reads the shared key from the terminal without echo.
func promptKey() ([]byte, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return nil, fmt.Errorf("-prompt-key needs an interactive terminal")
	}
	fmt.Fprint(os.Stderr, "Shared key (32 hex chars): ")
	line, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("read key: %w", err)
	}
	return securecard.ParseKeyHex(strings.TrimSpace(string(line)))
}
