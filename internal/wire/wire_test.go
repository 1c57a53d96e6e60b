package wire

import (
	"bufio"
	"strings"
	"testing"
)

func TestParseCommand(t *testing.T) {
	c, err := ParseCommand("group misc.test\r\n")
	if err != nil {
		t.Fatal(err)
	}
	if c.Name != "GROUP" || len(c.Args) != 1 || c.Args[0] != "misc.test" {
		t.Fatalf("got %+v", c)
	}

	if _, err := ParseCommand(""); err == nil {
		t.Fatal("expected error on empty line")
	}
	if _, err := ParseCommand("GR0UP x\r\n"); err == nil {
		t.Fatal("expected error on non-letter command name")
	}
}

func TestParseResponse(t *testing.T) {
	r, err := ParseResponse("211 1 1 1 misc.test\r\n")
	if err != nil {
		t.Fatal(err)
	}
	if r.Code != 211 || r.Text != "1 1 1 misc.test" {
		t.Fatalf("got %+v", r)
	}
}

func TestMessageRoundTrip(t *testing.T) {
	m := &Message{
		Headers: []Header{
			{Name: "From", Value: "a@b"},
			{Name: "Subject", Value: "hello"},
			{Name: "Newsgroups", Value: "misc.test"},
		},
		Body: "line one\nline two",
	}
	rendered := RenderMessage(m)
	parsed, err := ParseMessage(rendered)
	if err != nil {
		t.Fatal(err)
	}
	if len(parsed.Headers) != len(m.Headers) {
		t.Fatalf("header count mismatch: %+v", parsed.Headers)
	}
	for i, h := range m.Headers {
		if parsed.Headers[i].Name != h.Name || parsed.Headers[i].Value != h.Value {
			t.Errorf("header %d mismatch: got %+v want %+v", i, parsed.Headers[i], h)
		}
	}
	if parsed.Body != m.Body {
		t.Errorf("body mismatch: got %q want %q", parsed.Body, m.Body)
	}
}

func TestHeaderFolding(t *testing.T) {
	raw := "Subject: a long\r\n subject line\r\nFrom: x@y\r\n\r\nbody\r\n"
	m, err := ParseMessage(raw)
	if err != nil {
		t.Fatal(err)
	}
	v, ok := m.Get("Subject")
	if !ok || v != "a long subject line" {
		t.Fatalf("got %q", v)
	}
}

func TestDotStuffRoundTrip(t *testing.T) {
	body := "hello\n.world\n..already\nend"
	stuffed := DotStuff(body)
	r := bufio.NewReader(strings.NewReader(stuffed + ".\r\n"))
	got, err := ReadDotStuffed(r)
	if err != nil {
		t.Fatal(err)
	}
	if got != body {
		t.Fatalf("got %q want %q", got, body)
	}
}
