package wire

import (
	"bufio"
	"io"
	"strings"
)

// DotStuff returns body with any line beginning with '.' prefixed with
// an extra '.', ready to be followed by the ".\r\n" terminator.
// body uses LF line endings; the returned text uses CRLF.
func DotStuff(body string) string {
	lines := strings.Split(body, "\n")
	var b strings.Builder
	for _, line := range lines {
		if strings.HasPrefix(line, ".") {
			b.WriteByte('.')
		}
		b.WriteString(line)
		b.WriteString("\r\n")
	}
	return b.String()
}

// WriteDotStuffed writes body (LF-separated) dot-stuffed to w, followed
// by the ".\r\n" terminator line.
func WriteDotStuffed(w io.Writer, body string) error {
	if _, err := io.WriteString(w, DotStuff(body)); err != nil {
		return err
	}
	_, err := io.WriteString(w, ".\r\n")
	return err
}

// ReadDotStuffed reads lines from r until a line containing only "."
// terminates the payload, undoing dot-stuffing and CRLF line endings.
// The returned body uses LF line endings and has no trailing newline
// after the last content line.
func ReadDotStuffed(r *bufio.Reader) (string, error) {
	var b strings.Builder
	first := true
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return "", err
		}
		trimmed := strings.TrimRight(line, "\r\n")
		if trimmed == "." {
			break
		}
		if !first {
			b.WriteByte('\n')
		}
		first = false
		if strings.HasPrefix(trimmed, "..") {
			trimmed = trimmed[1:]
		} else if trimmed == "." {
			trimmed = ""
		}
		b.WriteString(trimmed)
	}
	return b.String(), nil
}
