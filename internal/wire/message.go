// Package wire implements the NNTP line protocol codec: command lines,
// response lines, RFC-5536-style messages with header folding, and
// dot-stuffing for multi-line payloads (spec.md §4.A).
package wire

import (
	"crypto/sha1"
	"fmt"
	"strings"
	"time"
)

// Header is one (possibly duplicated) header entry, preserving
// insertion order and the original, case-preserved name.
type Header struct {
	Name  string
	Value string
}

// Message is a parsed article: an ordered header list (case-insensitive
// lookup, duplicates allowed) plus a body. Body lines are joined with
// LF internally; the wire form uses CRLF.
type Message struct {
	Headers []Header
	Body    string
}

// Get returns the first header value matching name case-insensitively,
// and whether one was found.
func (m *Message) Get(name string) (string, bool) {
	for _, h := range m.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value, true
		}
	}
	return "", false
}

// GetAll returns every header value matching name case-insensitively,
// in header order.
func (m *Message) GetAll(name string) []string {
	var out []string
	for _, h := range m.Headers {
		if strings.EqualFold(h.Name, name) {
			out = append(out, h.Value)
		}
	}
	return out
}

// Set replaces the first occurrence of name, or appends if absent.
func (m *Message) Set(name, value string) {
	for i := range m.Headers {
		if strings.EqualFold(m.Headers[i].Name, name) {
			m.Headers[i].Value = value
			return
		}
	}
	m.Headers = append(m.Headers, Header{Name: name, Value: value})
}

// Add appends a new header occurrence without touching existing ones.
func (m *Message) Add(name, value string) {
	m.Headers = append(m.Headers, Header{Name: name, Value: value})
}

// Delete removes every occurrence of name.
func (m *Message) Delete(name string) {
	out := m.Headers[:0]
	for _, h := range m.Headers {
		if !strings.EqualFold(h.Name, name) {
			out = append(out, h)
		}
	}
	m.Headers = out
}

// ParseError reports a structural parse failure; no bracket-substitution
// sugar, plain constructor per spec.md §4.A.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string { return "parse error: " + e.Reason }

// ParseMessage parses a header block terminated by a blank line,
// followed by a body, from CRLF- or LF-terminated input. Header folding
// (continuation lines starting with SPACE/TAB) is supported; a
// continuation is appended to the previous value joined by one space.
func ParseMessage(raw string) (*Message, error) {
	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	lines := strings.Split(raw, "\n")

	msg := &Message{}
	i := 0
	for ; i < len(lines); i++ {
		line := lines[i]
		if line == "" {
			i++
			break
		}
		if line[0] == ' ' || line[0] == '\t' {
			if len(msg.Headers) == 0 {
				return nil, &ParseError{Reason: "continuation line before any header"}
			}
			last := &msg.Headers[len(msg.Headers)-1]
			last.Value = last.Value + " " + strings.TrimSpace(line)
			continue
		}
		name, value, ok := splitHeaderLine(line)
		if !ok {
			return nil, &ParseError{Reason: fmt.Sprintf("malformed header line %q", line)}
		}
		msg.Headers = append(msg.Headers, Header{Name: name, Value: value})
	}
	msg.Body = strings.Join(lines[i:], "\n")
	return msg, nil
}

func splitHeaderLine(line string) (name, value string, ok bool) {
	idx := strings.IndexByte(line, ':')
	if idx <= 0 {
		return "", "", false
	}
	name = line[:idx]
	if strings.ContainsAny(name, ":\n") {
		return "", "", false
	}
	value = strings.TrimSpace(line[idx+1:])
	return name, value, true
}

// RenderMessage formats a Message back onto the wire: CRLF header
// lines, a blank line, then the body with CRLF line endings. It does
// not re-fold; callers that need wrapped long values must fold before
// calling RenderMessage.
func RenderMessage(m *Message) string {
	var b strings.Builder
	for _, h := range m.Headers {
		b.WriteString(h.Name)
		b.WriteString(": ")
		b.WriteString(h.Value)
		b.WriteString("\r\n")
	}
	b.WriteString("\r\n")
	if m.Body != "" {
		b.WriteString(strings.ReplaceAll(m.Body, "\n", "\r\n"))
	}
	return b.String()
}

// EnsureMessageID synthesises a Message-ID from the SHA-1 of the CRLF
// body when absent, and a Date header from now, both per spec.md
// "Article format". host is used as the local part's domain.
func EnsureMessageID(m *Message, host string) {
	if _, ok := m.Get("Message-ID"); !ok {
		body := strings.ReplaceAll(m.Body, "\n", "\r\n")
		sum := sha1.Sum([]byte(body))
		m.Set("Message-ID", fmt.Sprintf("<%x@%s>", sum, host))
	}
	if _, ok := m.Get("Date"); !ok {
		m.Set("Date", time.Now().UTC().Format(time.RFC1123Z))
	}
}
