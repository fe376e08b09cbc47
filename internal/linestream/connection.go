package linestream

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/katatrina/auction-house/internal/auction"
	"github.com/katatrina/auction-house/internal/event"
	"github.com/katatrina/auction-house/internal/validator"
	"github.com/rs/zerolog/log"
)

const maxLineLength = 4096

// connection is one participant's socket. It is also that participant's
// Deliverer: the dispatcher writes pushed events through it.
type connection struct {
	server *Server
	conn   net.Conn

	writeMu   sync.Mutex
	closeOnce sync.Once

	// only touched by the serve goroutine
	session *event.Session
}

func newConnection(server *Server, conn net.Conn) *connection {
	return &connection{server: server, conn: conn}
}

func (c *connection) Deliver(ctx context.Context, ev event.Event) error {
	line, ok := FormatEvent(ev)
	if !ok {
		return nil
	}
	return c.writeLine(ctx, line)
}

func (c *connection) writeLine(ctx context.Context, line string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline := time.Now().Add(c.server.writeTimeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}

	_, err := io.WriteString(c.conn, line+"\n")
	return err
}

// reply writes a direct answer to the client. It reports whether the
// connection is still usable.
func (c *connection) reply(format string, args ...interface{}) bool {
	if err := c.writeLine(context.Background(), fmt.Sprintf(format, args...)); err != nil {
		log.Debug().Err(err).Str("remote", c.conn.RemoteAddr().String()).Msg("failed to write reply")
		return false
	}
	return true
}

func (c *connection) close() {
	c.closeOnce.Do(func() {
		_ = c.conn.Close()
	})
}

func (c *connection) serve() {
	defer c.close()
	defer c.leave()

	log.Debug().Str("remote", c.conn.RemoteAddr().String()).Msg("line client connected")

	if !c.reply("%s Welcome! Commands: JOIN <nick>, MSG <text>, BID <value>, INFO_REQUEST, QUIT", PrefixSystem) {
		return
	}

	scanner := bufio.NewScanner(c.conn)
	scanner.Buffer(make([]byte, 0, 512), maxLineLength)

	for scanner.Scan() {
		command, argument := ParseCommand(scanner.Text())
		if command == "" {
			continue
		}
		if !c.handle(command, argument) {
			return
		}
	}

	if err := scanner.Err(); err != nil && !errors.Is(err, net.ErrClosed) {
		log.Debug().Err(err).Str("remote", c.conn.RemoteAddr().String()).Msg("line client read failed")
	}
}

// handle runs one command and reports whether to keep reading.
func (c *connection) handle(command string, argument string) bool {
	switch command {
	case CommandQuit:
		c.reply("%s Goodbye", PrefixSystem)
		return false
	case CommandJoin:
		return c.join(argument)
	}

	if c.session == nil {
		return c.reply("%s You must JOIN <nickname> first", PrefixSystem)
	}

	switch command {
	case CommandMessage:
		return c.chat(argument)
	case CommandBid:
		return c.bid(argument)
	case CommandInfo:
		return c.info()
	default:
		return c.reply("%s Unknown command: %s", PrefixSystem, command)
	}
}

func (c *connection) join(nickname string) bool {
	if c.session != nil {
		return c.reply("%s Already joined as %s", PrefixSystem, c.session.Name)
	}

	// The catch-up INFO and the join announcement arrive through Deliver.
	session, _, err := c.server.auction.Register(nickname, c)
	switch {
	case errors.Is(err, auction.ErrInvalidNickname):
		return c.reply("%s Invalid nickname: use 3-16 letters, digits or underscores", PrefixSystem)
	case errors.Is(err, auction.ErrNameInUse):
		return c.reply("%s Nickname already in use", PrefixSystem)
	case err != nil:
		c.reply("%s %s", PrefixSystem, err.Error())
		return false
	}

	c.session = &session
	return true
}

func (c *connection) chat(message string) bool {
	err := c.server.auction.SendChatMessage(c.session.Name, message)
	switch {
	case errors.Is(err, auction.ErrEmptyMessage):
		return c.reply("%s Empty message", PrefixSystem)
	case err != nil:
		return c.lost(err)
	}
	return true
}

func (c *connection) bid(raw string) bool {
	amount, err := validator.ParseAmount(raw)
	if err != nil {
		return c.reply("%s Invalid amount: %s", PrefixBidFail, raw)
	}

	// The outcome arrives through Deliver as BIDOK or BIDFAIL.
	_, err = c.server.auction.SubmitBid(c.session.Name, amount)
	switch {
	case errors.Is(err, auction.ErrNoActiveRound):
		return c.reply("%s No active round", PrefixBidFail)
	case errors.Is(err, auction.ErrInvalidAmount):
		return c.reply("%s Amount must be positive", PrefixBidFail)
	case err != nil:
		return c.lost(err)
	}
	return true
}

func (c *connection) info() bool {
	line, ok := FormatState(c.server.auction.Snapshot())
	if !ok {
		return c.reply("%s No active round", PrefixSystem)
	}
	return c.reply("%s", line)
}

// lost handles a session the dispatcher already evicted.
func (c *connection) lost(err error) bool {
	if errors.Is(err, auction.ErrNotRegistered) {
		c.session = nil
		c.reply("%s You are no longer registered", PrefixSystem)
		return false
	}
	return c.reply("%s %s", PrefixSystem, err.Error())
}

func (c *connection) leave() {
	if c.session == nil {
		return
	}
	if c.server.auction.Disconnect(*c.session) {
		log.Info().Str("nickname", c.session.Name).Msg("line client left")
	}
	c.session = nil
}
