// Package missionwire carries session commands over TCP. Every message is
// one frame: a 4-byte big-endian length followed by that many bytes of JSON.
// A client writes a Request and reads back the Response with the same ID;
// requests on one connection are answered in order against that
// connection's session.
package missionwire

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"github.com/tuannm99/sqlmission/internal/catalog"
	"github.com/tuannm99/sqlmission/internal/feedback"
	"github.com/tuannm99/sqlmission/internal/sql/executor"
)

// MaxFrameSize bounds a single frame body.
const MaxFrameSize = 8 << 20 // 8 MiB

// Op selects what a Request asks the session to do.
type Op string

const (
	OpExec   Op = "exec"   // run SQL against the session tables
	OpDiff   Op = "diff"   // grade SQL against Expected
	OpReset  Op = "reset"  // restore the seed tables
	OpTables Op = "tables" // snapshot the session tables
)

// Request is a single command. An empty Op means OpExec.
type Request struct {
	ID       uint64 `json:"id"`
	Op       Op     `json:"op"`
	SQL      string `json:"sql,omitempty"`
	Expected string `json:"expected,omitempty"`
}

// Response is the response for a request ID. Error is set exactly when the
// request failed.
type Response struct {
	ID       uint64           `json:"id"`
	Result   *executor.Result `json:"result,omitempty"`
	Feedback *feedback.Report `json:"feedback,omitempty"`
	Tables   []*catalog.Table `json:"tables,omitempty"`
	Error    string           `json:"error,omitempty"`
}

func ReadRequest(r io.Reader) (Request, error) {
	var req Request
	if err := readFrame(r, "request", &req); err != nil {
		return Request{}, err
	}
	return req, nil
}

func WriteRequest(w io.Writer, req Request) error {
	return writeFrame(w, fmt.Sprintf("request %d (%s)", req.ID, req.Op), req)
}

func ReadResponse(r io.Reader) (Response, error) {
	var resp Response
	if err := readFrame(r, "response", &resp); err != nil {
		return Response{}, err
	}
	return resp, nil
}

func WriteResponse(w io.Writer, resp Response) error {
	return writeFrame(w, fmt.Sprintf("response %d", resp.ID), resp)
}

// readFrame returns io.EOF untouched so callers can tell a clean close.
func readFrame(r io.Reader, what string, v any) error {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return err
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if n == 0 {
		return fmt.Errorf("missionwire: %s: empty frame", what)
	}
	if n > MaxFrameSize {
		return fmt.Errorf("missionwire: %s: frame too large: %d > %d", what, n, MaxFrameSize)
	}

	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return fmt.Errorf("missionwire: %s: truncated frame: %w", what, err)
	}
	if err := json.Unmarshal(buf, v); err != nil {
		return fmt.Errorf("missionwire: %s: bad json: %w", what, err)
	}
	return nil
}

func writeFrame(w io.Writer, what string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("missionwire: %s: marshal: %w", what, err)
	}
	if len(b) > MaxFrameSize {
		return fmt.Errorf("missionwire: %s: too large: %d > %d", what, len(b), MaxFrameSize)
	}

	// header and body in one write so concurrent writers never interleave
	out := make([]byte, 4+len(b))
	binary.BigEndian.PutUint32(out[:4], uint32(len(b)))
	copy(out[4:], b)
	_, err = w.Write(out)
	return err
}
