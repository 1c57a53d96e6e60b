package session

import (
	"bufio"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nntpcore/newsd/internal/auth"
	"github.com/nntpcore/newsd/internal/config"
	"github.com/nntpcore/newsd/internal/control"
	"github.com/nntpcore/newsd/internal/filter"
	"github.com/nntpcore/newsd/internal/queue"
	"github.com/nntpcore/newsd/internal/store"
	"github.com/nntpcore/newsd/internal/usage"
	"github.com/nntpcore/newsd/internal/wire"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	st, err := store.Open("file::memory:?cache=shared")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })
	as, err := auth.Open("file::memory:?cache=shared")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { as.Close() })

	if err := st.AddGroup("misc.test", false); err != nil {
		t.Fatal(err)
	}
	if err := as.AddUser("alice", "wonderland"); err != nil {
		t.Fatal(err)
	}

	cfg := config.Default()
	cfg.Hostname = "test.invalid"
	cfg.AllowPostingInsecure = true
	cfg.AllowAuthInsecure = true
	cfg.IdleTimeout = 5 * time.Second
	cell := config.NewCell(cfg)

	tracker := usage.New(as, auth.Limits{})
	deps := filter.Deps{Store: st, Auth: as, Config: cfg}
	chain := filter.NewChain()
	ctl := control.New(st, as)
	q := queue.New(16, 2, deps, chain, ctl)
	t.Cleanup(q.Stop)

	var wg sync.WaitGroup
	return NewServer(cell, st, as, tracker, q, &wg)
}

// clientHarness drives one side of a net.Pipe connection as an NNTP client.
type clientHarness struct {
	conn net.Conn
	r    *bufio.Reader
}

func newClientHarness(t *testing.T, server *Server) *clientHarness {
	t.Helper()
	clientConn, serverConn := net.Pipe()
	sess := newSession(serverConn, server, false)
	go func() {
		sess.Handle()
		serverConn.Close()
	}()
	t.Cleanup(func() { clientConn.Close() })
	return &clientHarness{conn: clientConn, r: bufio.NewReader(clientConn)}
}

func (c *clientHarness) send(t *testing.T, line string) {
	t.Helper()
	if _, err := c.conn.Write([]byte(line + "\r\n")); err != nil {
		t.Fatalf("write %q: %v", line, err)
	}
}

func (c *clientHarness) readResponse(t *testing.T) *wire.Response {
	t.Helper()
	line, err := c.r.ReadString('\n')
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	resp, perr := wire.ParseResponse(line)
	if perr != nil {
		t.Fatalf("parse response %q: %v", line, perr)
	}
	return resp
}

func (c *clientHarness) readDotBlock(t *testing.T) string {
	t.Helper()
	body, err := wire.ReadDotStuffed(c.r)
	if err != nil {
		t.Fatalf("read dot-stuffed block: %v", err)
	}
	return body
}

func TestGreetingAllowsPostingInsecure(t *testing.T) {
	server := newTestServer(t)
	c := newClientHarness(t, server)
	resp := c.readResponse(t)
	if resp.Code != 200 {
		t.Fatalf("expected 200 greeting, got %d %s", resp.Code, resp.Text)
	}
}

func TestCapabilities(t *testing.T) {
	server := newTestServer(t)
	c := newClientHarness(t, server)
	c.readResponse(t) // greeting

	c.send(t, "CAPABILITIES")
	resp := c.readResponse(t)
	if resp.Code != 101 {
		t.Fatalf("expected 101, got %d", resp.Code)
	}
	body := c.readDotBlock(t)
	for _, want := range []string{
		"VERSION 2",
		"IMPLEMENTATION newsd",
		"READER",
		"NEWNEWS",
		"IHAVE",
		"STREAMING",
		"OVER MSGID",
		"HDR",
		"LIST ACTIVE NEWSGROUPS ACTIVE.TIMES OVERVIEW.FMT HEADERS",
		"AUTHINFO USER",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %q in capabilities, got %q", want, body)
		}
	}
}

func TestAuthAndPostAndRetrieve(t *testing.T) {
	server := newTestServer(t)
	c := newClientHarness(t, server)
	c.readResponse(t) // greeting

	c.send(t, "AUTHINFO USER alice")
	if resp := c.readResponse(t); resp.Code != 381 {
		t.Fatalf("expected 381, got %d", resp.Code)
	}
	c.send(t, "AUTHINFO PASS wonderland")
	if resp := c.readResponse(t); resp.Code != 281 {
		t.Fatalf("expected 281, got %d", resp.Code)
	}

	c.send(t, "POST")
	if resp := c.readResponse(t); resp.Code != 340 {
		t.Fatalf("expected 340, got %d", resp.Code)
	}
	article := "From: alice@test.invalid\r\n" +
		"Subject: hello\r\n" +
		"Newsgroups: misc.test\r\n" +
		"\r\n" +
		"body text\r\n" +
		".\r\n"
	c.send2(t, article)
	if resp := c.readResponse(t); resp.Code != 240 {
		t.Fatalf("expected 240, got %d %s", resp.Code, resp.Text)
	}

	c.send(t, "GROUP misc.test")
	resp := c.readResponse(t)
	if resp.Code != 211 {
		t.Fatalf("expected 211, got %d", resp.Code)
	}
	if !strings.HasPrefix(resp.Text, "1 1 1 ") {
		t.Fatalf("expected one article at number 1, got %q", resp.Text)
	}

	c.send(t, "STAT 1")
	resp = c.readResponse(t)
	if resp.Code != 223 {
		t.Fatalf("expected 223, got %d", resp.Code)
	}
}

// send2 writes raw text verbatim (already CRLF-terminated), for
// multi-line payloads like a posted article.
func (c *clientHarness) send2(t *testing.T, raw string) {
	t.Helper()
	if _, err := c.conn.Write([]byte(raw)); err != nil {
		t.Fatalf("write raw: %v", err)
	}
}

func TestPostRejectedWithoutAuth(t *testing.T) {
	server := newTestServer(t)
	c := newClientHarness(t, server)
	c.readResponse(t) // greeting

	c.send(t, "POST")
	resp := c.readResponse(t)
	if resp.Code != 440 {
		t.Fatalf("expected 440 without authentication, got %d", resp.Code)
	}
}

func TestGroupNotFound(t *testing.T) {
	server := newTestServer(t)
	c := newClientHarness(t, server)
	c.readResponse(t) // greeting

	c.send(t, "GROUP nonexistent.group")
	resp := c.readResponse(t)
	if resp.Code != 411 {
		t.Fatalf("expected 411, got %d", resp.Code)
	}
}

func TestQuitClosesConnection(t *testing.T) {
	server := newTestServer(t)
	c := newClientHarness(t, server)
	c.readResponse(t) // greeting

	c.send(t, "QUIT")
	resp := c.readResponse(t)
	if resp.Code != 205 {
		t.Fatalf("expected 205, got %d", resp.Code)
	}
}
