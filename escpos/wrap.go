package escpos

import (
	"strings"
	"unicode/utf8"
)

// Wrap splits text into lines of at most cols characters. Embedded newlines
// start a new line. Long lines break at the last space that fits; a run
// with no space is hard-cut at the column boundary.
func Wrap(text string, cols int) []string {
	if cols <= 0 {
		cols = 1
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\t", " ")

	var lines []string
	for _, raw := range strings.Split(text, "\n") {
		lines = append(lines, wrapLine([]rune(raw), cols)...)
	}
	return lines
}

func wrapLine(r []rune, cols int) []string {
	var out []string
	for len(r) > cols {
		brk := lastSpace(r[:cols+1])
		head := ""
		if brk > 0 {
			head = strings.TrimRight(string(r[:brk]), " ")
		}
		if head == "" {
			out = append(out, string(r[:cols]))
			r = r[cols:]
		} else {
			out = append(out, head)
			r = r[brk+1:]
		}
		r = trimLeadingSpaces(r)
		if len(r) == 0 {
			return out
		}
	}
	return append(out, string(r))
}

func lastSpace(r []rune) int {
	for i := len(r) - 1; i >= 0; i-- {
		if r[i] == ' ' {
			return i
		}
	}
	return -1
}

func trimLeadingSpaces(r []rune) []rune {
	for len(r) > 0 && r[0] == ' ' {
		r = r[1:]
	}
	return r
}

// Width returns the printed width of a line in characters.
func Width(line string) int {
	return utf8.RuneCountInString(line)
}
