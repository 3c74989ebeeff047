package protocol

import (
	"bufio"
	"errors"
	"io"
	"strconv"
)

// frameBufferSize bounds how large a single inbound frame can be: PeekFrameLen
// only ever inspects bytes already sitting in the bufio.Reader's internal
// buffer, so that buffer must be large enough to hold one whole command
// (array header + every bulk header/payload). Large XADD/RPUSH calls are
// the realistic way to exceed this; the snapshot payload is read with
// ReadRaw and is not bounded by it.
const frameBufferSize = 64 * 1024

// Reader parses inbound RESP-style array-of-bulk-strings frames per
// spec.md §4.A.
type Reader struct {
	br *bufio.Reader
}

// NewReader wraps r in a buffered Reader sized to hold one full frame.
func NewReader(r io.Reader) *Reader {
	return &Reader{br: bufio.NewReaderSize(r, frameBufferSize)}
}

// Raw exposes the underlying buffered reader, e.g. for consuming the fixed
// number of snapshot payload bytes during replica bootstrap.
func (r *Reader) Raw() *bufio.Reader { return r.br }

// ReadCommand reads exactly one inbound array frame and returns its bulk
// arguments along with n, the exact number of bytes the frame occupied on
// the wire. n is what a master adds to its replication offset (spec.md §3
// invariant 5) and what a replica adds to master_repl_offset after applying
// the frame (spec.md §4.E).
func (r *Reader) ReadCommand() (args [][]byte, n int, err error) {
	for {
		n, err = PeekFrameLen(r.br)
		if err != nil {
			return nil, 0, err
		}
		if n > 0 {
			break
		}
		if err = waitForMore(r.br); err != nil {
			return nil, 0, err
		}
	}

	buf := make([]byte, n)
	if _, err = io.ReadFull(r.br, buf); err != nil {
		return nil, 0, err
	}
	args, _, err = scanFrame(buf, true)
	if err != nil {
		return nil, 0, err
	}
	return args, n, nil
}

// PeekFrameLen computes the exact byte length of the next fully-buffered
// array frame without consuming it from br. It never triggers a socket
// read: it inspects only bytes br already has buffered. If those bytes
// don't yet contain a complete frame, it returns (0, nil) so the caller can
// wait for more data and retry. A frame that is structurally invalid given
// the bytes seen so far is reported as ErrProtocol immediately, even if
// incomplete, since no amount of additional data fixes bad framing.
func PeekFrameLen(br *bufio.Reader) (int, error) {
	avail := br.Buffered()
	if avail == 0 {
		return 0, nil
	}
	data, _ := br.Peek(avail)
	_, n, err := scanFrame(data, false)
	return n, err
}

func waitForMore(br *bufio.Reader) error {
	cur := br.Buffered()
	_, err := br.Peek(cur + 1)
	if err != nil {
		if errors.Is(err, bufio.ErrBufferFull) {
			return ErrProtocol
		}
		return err
	}
	return nil
}

// scanFrame walks the array-of-bulk-strings grammar over data. It returns
// the parsed args (only when extract is true), the number of bytes the
// frame occupies (0 if data does not yet hold a complete frame), and a
// non-nil error only for structurally invalid input.
func scanFrame(data []byte, extract bool) (args [][]byte, n int, err error) {
	pos := 0

	if pos >= len(data) {
		return nil, 0, nil
	}
	if data[pos] != '*' {
		return nil, 0, ErrProtocol
	}
	pos++

	lineEnd := indexCRLF(data, pos)
	if lineEnd < 0 {
		return nil, 0, nil
	}
	count, ok := parseInt(data[pos:lineEnd])
	if !ok || count < 0 {
		return nil, 0, ErrProtocol
	}
	pos = lineEnd + 2

	if extract {
		args = make([][]byte, 0, count)
	}

	for i := int64(0); i < count; i++ {
		if pos >= len(data) {
			return nil, 0, nil
		}
		if data[pos] != '$' {
			return nil, 0, ErrProtocol
		}
		pos++

		lineEnd = indexCRLF(data, pos)
		if lineEnd < 0 {
			return nil, 0, nil
		}
		blen, ok := parseInt(data[pos:lineEnd])
		if !ok || blen < 0 {
			return nil, 0, ErrProtocol
		}
		pos = lineEnd + 2

		need := pos + int(blen) + 2
		if need > len(data) {
			return nil, 0, nil
		}
		if extract {
			b := make([]byte, blen)
			copy(b, data[pos:pos+int(blen)])
			args = append(args, b)
		}
		if data[pos+int(blen)] != '\r' || data[pos+int(blen)+1] != '\n' {
			return nil, 0, ErrProtocol
		}
		pos = need
	}

	return args, pos, nil
}

// ReadBulkHeader reads a "$<len>\r\n" header with no trailing payload, as
// used by the snapshot transfer (spec.md §4.A): the master sends the
// header followed by exactly len raw bytes and no closing CRLF.
func (r *Reader) ReadBulkHeader() (int, error) {
	line, err := r.br.ReadString('\n')
	if err != nil {
		return 0, err
	}
	if len(line) < 3 || line[0] != '$' || line[len(line)-2] != '\r' {
		return 0, ErrProtocol
	}
	n, ok := parseInt([]byte(line[1 : len(line)-2]))
	if !ok || n < 0 {
		return 0, ErrProtocol
	}
	return int(n), nil
}

// ReadRaw reads exactly n unframed bytes, e.g. the snapshot payload that
// follows a bulk header during replica sync.
func (r *Reader) ReadRaw(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(r.br, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func indexCRLF(data []byte, from int) int {
	for i := from; i+1 < len(data); i++ {
		if data[i] == '\r' && data[i+1] == '\n' {
			return i
		}
	}
	return -1
}

func parseInt(b []byte) (int64, bool) {
	if len(b) == 0 {
		return 0, false
	}
	n, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
