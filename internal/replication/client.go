package replication

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/emberdb/emberdb/internal/commands"
	"github.com/emberdb/emberdb/internal/protocol"
)

// linkSink is the sink.Sink a replica link presents to the command layer:
// writing ACK frames back to the master over the same connection the
// command stream arrives on (spec.md §4.C REPLCONF GETACK handling).
type linkSink struct {
	conn net.Conn
}

func (s *linkSink) Send(p []byte) error {
	_, err := s.conn.Write(p)
	return err
}

func (s *linkSink) RemoteAddr() string { return s.conn.RemoteAddr().String() }

// Client is a replica's connection to its master: handshake, snapshot
// ingest, and the continuous replay loop with self-ACK (spec.md §4.E).
// Grounded on the teacher's Kafka consumer's persistent-connection +
// reconnect-on-failure shape (ws/kafka/consumer.go's Consumer), adapted
// from a broker dial to a raw master TCP dial since nothing here speaks
// Kafka's protocol.
type Client struct {
	host string
	port int

	ownPort int // this replica's own listening port, reported via REPLCONF

	ctx    *commands.Context
	logger zerolog.Logger

	offset atomic.Int64
	replID atomic.Value // string
	linkUp atomic.Bool
}

// NewClient constructs a replica link against ctx's keyspace. Call Run to
// connect and replay forever (with reconnect-on-failure) until done
// closes.
func NewClient(host string, port, ownPort int, ctx *commands.Context, logger zerolog.Logger) *Client {
	c := &Client{host: host, port: port, ownPort: ownPort, ctx: ctx, logger: logger}
	c.replID.Store("")
	return c
}

// Offset returns the number of replication-stream bytes fully applied so
// far (spec.md §4.E) — the value INFO replication and WAIT-adjacent ACK
// bookkeeping read on a replica.
func (c *Client) Offset() int64 { return c.offset.Load() }

// ReplID returns the replid reported by the master at the last successful
// FULLRESYNC.
func (c *Client) ReplID() string { return c.replID.Load().(string) }

// LinkUp reports whether the master connection is currently established.
func (c *Client) LinkUp() bool { return c.linkUp.Load() }

// Run connects to the master and replays its command stream forever,
// reconnecting with bounded exponential backoff on any link failure
// (spec.md §7 taxonomy class 6: log and retry, the replica keeps serving
// stale reads meanwhile). It returns only when done is closed.
func (c *Client) Run(done <-chan struct{}) {
	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		select {
		case <-done:
			return
		default:
		}

		if err := c.connectAndReplay(done); err != nil {
			c.linkUp.Store(false)
			c.logger.Error().Err(err).Str("master", fmt.Sprintf("%s:%d", c.host, c.port)).Msg("replica link down, retrying")
		}

		select {
		case <-done:
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func (c *Client) connectAndReplay(done <-chan struct{}) error {
	conn, err := net.Dial("tcp", net.JoinHostPort(c.host, strconv.Itoa(c.port)))
	if err != nil {
		return fmt.Errorf("dial master: %w", err)
	}
	defer conn.Close()

	reader := protocol.NewReader(conn)

	if err := c.handshake(conn, reader); err != nil {
		return fmt.Errorf("handshake: %w", err)
	}

	c.linkUp.Store(true)
	c.logger.Info().Str("master", fmt.Sprintf("%s:%d", c.host, c.port)).Int64("offset", c.offset.Load()).Msg("replica link established")

	closed := make(chan struct{})
	defer close(closed)
	go func() {
		select {
		case <-done:
			conn.Close()
		case <-closed:
		}
	}()

	sess := commands.NewSession(0, &linkSink{conn: conn})
	sess.IsReplicaLink = true

	for {
		args, n, err := reader.ReadCommand()
		if err != nil {
			c.linkUp.Store(false)
			return fmt.Errorf("replay: %w", err)
		}
		// Reply suppression (spec.md §4.E): Execute's own reply is simply
		// discarded. REPLCONF GETACK is the one command whose handler
		// writes its own out-of-band ACK frame directly to sess.Sink
		// before this call returns.
		commands.Execute(c.ctx, sess, args)
		c.offset.Add(int64(n))
	}
}

// handshake runs the fixed exchange spec.md §4.E describes: PING,
// REPLCONF listening-port, REPLCONF capa psync2, PSYNC ? -1, then consumes
// the snapshot blob and replaces local keyspace state with it.
func (c *Client) handshake(conn net.Conn, reader *protocol.Reader) error {
	if err := c.sendExpectLine(conn, reader, "+PONG", "PING"); err != nil {
		return err
	}
	if err := c.sendExpectLine(conn, reader, "+OK", "REPLCONF", "listening-port", strconv.Itoa(c.ownPort)); err != nil {
		return err
	}
	if err := c.sendExpectLine(conn, reader, "+OK", "REPLCONF", "capa", "psync2"); err != nil {
		return err
	}

	if _, err := conn.Write(protocol.EncodeCommand("PSYNC", "?", "-1")); err != nil {
		return err
	}
	line, err := readLine(reader)
	if err != nil {
		return err
	}
	replID, offset, err := parseFullResync(line)
	if err != nil {
		return err
	}
	c.replID.Store(replID)
	c.offset.Store(offset)

	n, err := reader.ReadBulkHeader()
	if err != nil {
		return fmt.Errorf("snapshot header: %w", err)
	}
	blob, err := reader.ReadRaw(n)
	if err != nil {
		return fmt.Errorf("snapshot payload: %w", err)
	}
	records, err := Decode(blob)
	if err != nil {
		return fmt.Errorf("snapshot decode: %w", err)
	}

	c.ctx.Keyspace.FlushAll()
	for _, rec := range records {
		c.ctx.Keyspace.Set(string(rec.Key), rec.Value, rec.ExpireAt)
	}
	return nil
}

func (c *Client) sendExpectLine(conn net.Conn, reader *protocol.Reader, want string, cmd ...string) error {
	if _, err := conn.Write(protocol.EncodeCommand(cmd...)); err != nil {
		return err
	}
	line, err := readLine(reader)
	if err != nil {
		return err
	}
	if line != want {
		return fmt.Errorf("unexpected reply to %v: %q", cmd, line)
	}
	return nil
}

// readLine reads one "+...\r\n"-style simple-string line using the same
// buffered reader the frame parser uses, so bytes aren't lost across the
// handshake/replay transition.
func readLine(reader *protocol.Reader) (string, error) {
	line, err := reader.Raw().ReadString('\n')
	if err != nil {
		return "", err
	}
	if len(line) < 2 || line[len(line)-2] != '\r' {
		return "", fmt.Errorf("malformed line %q", line)
	}
	return line[:len(line)-2], nil
}

func parseFullResync(line string) (replID string, offset int64, err error) {
	if len(line) == 0 || line[0] != '+' {
		return "", 0, fmt.Errorf("malformed FULLRESYNC line %q", line)
	}
	fields := strings.Fields(line[1:])
	if len(fields) != 3 || fields[0] != "FULLRESYNC" {
		return "", 0, fmt.Errorf("malformed FULLRESYNC line %q", line)
	}
	offset, err = strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("malformed FULLRESYNC offset in %q: %w", line, err)
	}
	return fields[1], offset, nil
}
