package peering

import (
	"bufio"
	"crypto/tls"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/nntpcore/newsd/internal/config"
	"github.com/nntpcore/newsd/internal/wire"
)

const dialTimeout = 30 * time.Second

// peerConn is a one-shot outbound transfer connection, adapted from
// the teacher's BackendConn (nntp-client.go) down to exactly what a
// peer job needs: dial, greeting, a handful of commands, close. No
// pooling or reuse across jobs, since each tick opens a fresh
// connection and closes it at the end of the loop.
type peerConn struct {
	conn   net.Conn
	reader *bufio.Reader
	writer *bufio.Writer
}

func dialPeer(pc config.PeerConfig) (*peerConn, error) {
	host, _, err := net.SplitHostPort(pc.Addr)
	if err != nil {
		host = pc.Addr
	}
	tlsCfg := &tls.Config{
		ServerName:         host,
		InsecureSkipVerify: pc.TLSInsecureSkipVerify,
		MinVersion:         tls.VersionTLS12,
	}
	conn, err := tls.DialWithDialer(&net.Dialer{Timeout: dialTimeout}, "tcp", pc.Addr, tlsCfg)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", pc.Addr, err)
	}
	return &peerConn{
		conn:   conn,
		reader: bufio.NewReader(conn),
		writer: bufio.NewWriter(conn),
	}, nil
}

func (c *peerConn) close() error {
	return c.conn.Close()
}

func (c *peerConn) readGreeting() error {
	resp, err := c.readResponse()
	if err != nil {
		return err
	}
	if resp.Code != 200 && resp.Code != 201 {
		return fmt.Errorf("unexpected greeting %d %s", resp.Code, resp.Text)
	}
	return nil
}

func (c *peerConn) sendModeStream() {
	c.writeLine("MODE STREAM")
	c.readResponse() // response intentionally ignored, per spec.md §4.J step 4
}

// iHave sends IHAVE, proceeds only on 335, then streams the article
// and reads the final 235/437 response.
func (c *peerConn) iHave(id string, msg *wire.Message) error {
	c.writeLine(fmt.Sprintf("IHAVE %s", id))
	resp, err := c.readResponse()
	if err != nil {
		return err
	}
	if resp.Code != 335 {
		return fmt.Errorf("peer declined %s: %d %s", id, resp.Code, resp.Text)
	}
	if err := c.streamArticle(msg); err != nil {
		return err
	}
	resp, err = c.readResponse()
	if err != nil {
		return err
	}
	if resp.Code != 235 {
		return fmt.Errorf("peer rejected %s: %d %s", id, resp.Code, resp.Text)
	}
	return nil
}

// takeThis streams the article immediately (no prompt) and reads the
// final 239/439 response, per streaming-mode feeds.
func (c *peerConn) takeThis(id string, msg *wire.Message) error {
	c.writeLine(fmt.Sprintf("TAKETHIS %s", id))
	if err := c.streamArticle(msg); err != nil {
		return err
	}
	resp, err := c.readResponse()
	if err != nil {
		return err
	}
	if resp.Code != 239 {
		return fmt.Errorf("peer rejected %s: %d %s", id, resp.Code, resp.Text)
	}
	return nil
}

// streamArticle writes headers, a blank line, and the dot-stuffed body
// (spec.md §4.J step 4).
func (c *peerConn) streamArticle(msg *wire.Message) error {
	var b strings.Builder
	for _, h := range msg.Headers {
		b.WriteString(h.Name)
		b.WriteString(": ")
		b.WriteString(h.Value)
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(msg.Body)
	if err := wire.WriteDotStuffed(c.writer, b.String()); err != nil {
		return fmt.Errorf("stream article: %w", err)
	}
	return c.writer.Flush()
}

func (c *peerConn) writeLine(line string) error {
	if _, err := c.writer.WriteString(line + "\r\n"); err != nil {
		return err
	}
	return c.writer.Flush()
}

func (c *peerConn) readResponse() (*wire.Response, error) {
	line, err := c.reader.ReadString('\n')
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	resp, perr := wire.ParseResponse(line)
	if perr != nil {
		return nil, fmt.Errorf("parse response %q: %w", line, perr)
	}
	return resp, nil
}
