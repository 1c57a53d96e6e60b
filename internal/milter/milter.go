// Package milter implements the optional milter predicate of spec.md
// §4.F: a TCP/TLS/Unix-socket connection framed as BE32(len) | CMD |
// DATA, speaking CONNECT -> per-header HEADER -> END_HEADERS -> BODY ->
// END_MESSAGE and mapping the response to Ok/Reject/Discard/TempFail.
//
// No milter client exists anywhere in the retrieval pack (see
// DESIGN.md); this is built directly on net/crypto-tls framing in the
// same raw-socket style as the teacher's internal/nntp/nntp-client.go
// and internal/nntp/nntp-peering.go (dial, write framed commands, read
// one response, close) rather than as a stand-in for an ecosystem
// library, since none was retrieved to stand in for.
package milter

import (
	"crypto/tls"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"time"
)

// Command bytes, per the libmilter wire protocol.
const (
	cmdConnect    = 'C'
	cmdHeader     = 'L'
	cmdEndHeaders = 'N'
	cmdBody       = 'B'
	cmdEndMessage = 'E'
)

// Response bytes.
const (
	respAccept   = 'a'
	respContinue = 'c'
	respReject   = 'r'
	respDiscard  = 'd'
	respTempFail = 't'
)

// Verdict is the outcome a milter server returns.
type Verdict int

const (
	Ok Verdict = iota
	Reject
	Discard
	TempFail
)

// Client dials a milter server for one article verdict per call. It is
// not pooled: each article opens, speaks, and closes, matching the
// teacher's per-article peering connection lifecycle.
type Client struct {
	Network string // "tcp", "tcp4", "tcp6", "unix"
	Addr    string
	UseTLS  bool
	Timeout time.Duration
}

// Check submits one article's headers and body and returns the
// aggregated verdict (the first non-accept response wins).
func (c *Client) Check(from string, headers map[string]string, body string) (Verdict, error) {
	timeout := c.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	dialer := net.Dialer{Timeout: timeout}
	var conn net.Conn
	var err error
	if c.UseTLS {
		conn, err = tls.DialWithDialer(&dialer, c.Network, c.Addr, nil)
	} else {
		conn, err = dialer.Dial(c.Network, c.Addr)
	}
	if err != nil {
		return TempFail, fmt.Errorf("milter dial: %w", err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(timeout))

	if v, err := c.roundTrip(conn, cmdConnect, []byte(from+"\x00")); err != nil || v != Ok {
		return v, err
	}
	for name, value := range headers {
		payload := append([]byte(name+"\x00"), []byte(value+"\x00")...)
		if v, err := c.roundTrip(conn, cmdHeader, payload); err != nil || v != Ok {
			return v, err
		}
	}
	if v, err := c.roundTrip(conn, cmdEndHeaders, nil); err != nil || v != Ok {
		return v, err
	}
	if v, err := c.roundTrip(conn, cmdBody, []byte(body)); err != nil || v != Ok {
		return v, err
	}
	return c.roundTrip(conn, cmdEndMessage, nil)
}

func (c *Client) roundTrip(conn net.Conn, cmd byte, data []byte) (Verdict, error) {
	if err := writeFrame(conn, cmd, data); err != nil {
		return TempFail, fmt.Errorf("milter write: %w", err)
	}
	respCmd, _, err := readFrame(conn)
	if err != nil {
		return TempFail, fmt.Errorf("milter read: %w", err)
	}
	return verdictFor(respCmd), nil
}

func verdictFor(respCmd byte) Verdict {
	switch respCmd {
	case respAccept, respContinue:
		return Ok
	case respReject:
		return Reject
	case respDiscard:
		return Discard
	default:
		return TempFail
	}
}

func writeFrame(w io.Writer, cmd byte, data []byte) error {
	frame := make([]byte, 4+1+len(data))
	binary.BigEndian.PutUint32(frame[0:4], uint32(1+len(data)))
	frame[4] = cmd
	copy(frame[5:], data)
	_, err := w.Write(frame)
	return err
}

func readFrame(r io.Reader) (cmd byte, data []byte, err error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return 0, nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n == 0 {
		return 0, nil, fmt.Errorf("empty milter frame")
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return 0, nil, err
	}
	return buf[0], buf[1:], nil
}
