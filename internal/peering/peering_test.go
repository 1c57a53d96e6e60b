package peering

import (
	"bufio"
	"net"
	"testing"
	"time"

	"github.com/nntpcore/newsd/internal/wire"
)

func samplePeerMsg(id string) *wire.Message {
	msg := &wire.Message{Body: "hello there"}
	msg.Set("Message-ID", id)
	msg.Set("Newsgroups", "misc.test")
	msg.Set("Subject", "test")
	return msg
}

func TestPathHasToken(t *testing.T) {
	msg := samplePeerMsg("<a@test>")
	msg.Set("Path", "siteA!siteB!not-for-mail")
	if !pathHasToken(msg, "siteB") {
		t.Fatal("expected siteB to be found in Path")
	}
	if pathHasToken(msg, "siteC") {
		t.Fatal("did not expect siteC in Path")
	}
	if pathHasToken(msg, "") {
		t.Fatal("empty token must never match")
	}
}

func TestPrependPath(t *testing.T) {
	msg := samplePeerMsg("<a@test>")
	prependPath(msg, "local.example")
	got, _ := msg.Get("Path")
	if got != "local.example" {
		t.Fatalf("expected bare local site on empty Path, got %q", got)
	}
	prependPath(msg, "other.example")
	got, _ = msg.Get("Path")
	if got != "other.example!local.example" {
		t.Fatalf("expected prepend, got %q", got)
	}
}

// fakePeerServer speaks just enough NNTP to exercise iHave/takeThis
// over a net.Pipe, standing in for a real peer on the other end of
// a TLS connection (peerConn only depends on the net.Conn interface).
type fakePeerServer struct {
	conn   net.Conn
	reader *bufio.Reader
}

func newFakePeerServer(conn net.Conn) *fakePeerServer {
	return &fakePeerServer{conn: conn, reader: bufio.NewReader(conn)}
}

func (f *fakePeerServer) writeLine(line string) {
	f.conn.Write([]byte(line + "\r\n"))
}

func (f *fakePeerServer) readLine() string {
	line, _ := f.reader.ReadString('\n')
	return line
}

func (f *fakePeerServer) readDotBlock() string {
	body, _ := wire.ReadDotStuffed(f.reader)
	return body
}

func TestIHaveAcceptsArticle(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	pc := &peerConn{conn: client, reader: bufio.NewReader(client), writer: bufio.NewWriter(client)}
	fake := newFakePeerServer(server)

	done := make(chan error, 1)
	go func() {
		msg := samplePeerMsg("<a@test>")
		done <- pc.iHave("<a@test>", msg)
	}()

	if cmd := fake.readLine(); cmd != "IHAVE <a@test>\r\n" {
		t.Fatalf("unexpected command: %q", cmd)
	}
	fake.writeLine("335 send article")
	body := fake.readDotBlock()
	if body == "" {
		t.Fatal("expected a dot-stuffed article body")
	}
	fake.writeLine("235 article transferred ok")

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("iHave returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for iHave")
	}
}

func TestIHaveRejectedOnDecline(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	pc := &peerConn{conn: client, reader: bufio.NewReader(client), writer: bufio.NewWriter(client)}
	fake := newFakePeerServer(server)

	done := make(chan error, 1)
	go func() {
		msg := samplePeerMsg("<b@test>")
		done <- pc.iHave("<b@test>", msg)
	}()

	fake.readLine()
	fake.writeLine("435 article not wanted - do not send it")

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected an error on 435 decline")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for iHave")
	}
}

func TestTakeThisAccepted(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	pc := &peerConn{conn: client, reader: bufio.NewReader(client), writer: bufio.NewWriter(client)}
	fake := newFakePeerServer(server)

	done := make(chan error, 1)
	go func() {
		msg := samplePeerMsg("<c@test>")
		done <- pc.takeThis("<c@test>", msg)
	}()

	if cmd := fake.readLine(); cmd != "TAKETHIS <c@test>\r\n" {
		t.Fatalf("unexpected command: %q", cmd)
	}
	fake.readDotBlock()
	fake.writeLine("239 <c@test> transferred ok")

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("takeThis returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for takeThis")
	}
}
