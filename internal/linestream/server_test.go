package linestream

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/katatrina/auction-house/internal/auction"
	"github.com/katatrina/auction-house/internal/engine"
	"github.com/katatrina/auction-house/internal/event"
	"github.com/katatrina/auction-house/internal/scheduler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startServer(t *testing.T) (*engine.Engine, string) {
	t.Helper()

	registry := event.NewRegistry()
	dispatcher := event.NewDispatcher(registry, time.Second)
	go dispatcher.Run()

	local, err := scheduler.NewLocal()
	require.NoError(t, err)

	auctionEngine := engine.New(auction.DefaultCatalog(), registry, dispatcher, local)
	require.NoError(t, auctionEngine.Start())

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	server := NewServer(auctionEngine, time.Second)
	go func() {
		_ = server.Serve(listener)
	}()

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
		_ = auctionEngine.Shutdown()
	})

	return auctionEngine, listener.Addr().String()
}

type lineClient struct {
	t      *testing.T
	conn   net.Conn
	reader *bufio.Reader
}

func dial(t *testing.T, address string) *lineClient {
	t.Helper()

	conn, err := net.Dial("tcp", address)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	client := &lineClient{t: t, conn: conn, reader: bufio.NewReader(conn)}
	client.expect("SYSTEM Welcome!")
	return client
}

func (c *lineClient) send(line string) {
	c.t.Helper()

	_, err := fmt.Fprintf(c.conn, "%s\n", line)
	require.NoError(c.t, err)
}

// expect reads lines until one starts with prefix.
func (c *lineClient) expect(prefix string) string {
	c.t.Helper()

	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var seen []string
	for {
		line, err := c.reader.ReadString('\n')
		require.NoError(c.t, err, "waiting for %q, got %v", prefix, seen)

		line = strings.TrimRight(line, "\r\n")
		if strings.HasPrefix(line, prefix) {
			return line
		}
		seen = append(seen, line)
	}
}

func TestServer_CommandsRequireJoin(t *testing.T) {
	_, address := startServer(t)
	client := dial(t, address)

	client.send("BID 600")
	client.expect("SYSTEM You must JOIN <nickname> first")

	client.send("JOIN ab")
	client.expect("SYSTEM Invalid nickname")
}

func TestServer_JoinBidAndInfo(t *testing.T) {
	_, address := startServer(t)
	alice := dial(t, address)

	alice.send("join alice")
	assert.Equal(t, "INFO Laptop|500.00|10.00", alice.expect("INFO"))
	alice.expect("SYSTEM alice joined the auction")

	alice.send("BID 505")
	assert.Equal(t, "BIDFAIL Bid too low: minimum required 510.00 €", alice.expect("BIDFAIL"))

	alice.send("BID 510,00")
	assert.Equal(t, "BIDOK 510.00|alice", alice.expect("BIDOK"))

	alice.send("INFO_REQUEST")
	assert.Equal(t, "INFO Laptop|510.00|10.00|alice", alice.expect("INFO Laptop|510"))

	alice.send("BID abc")
	alice.expect("BIDFAIL Invalid amount: abc")
}

func TestServer_DuplicateNickname(t *testing.T) {
	_, address := startServer(t)

	alice := dial(t, address)
	alice.send("JOIN alice")
	alice.expect("SYSTEM alice joined the auction")

	impostor := dial(t, address)
	impostor.send("JOIN alice")
	impostor.expect("SYSTEM Nickname already in use")
}

func TestServer_ChatAndDeparture(t *testing.T) {
	auctionEngine, address := startServer(t)

	bob := dial(t, address)
	bob.send("JOIN bob")
	bob.expect("SYSTEM bob joined the auction")

	alice := dial(t, address)
	alice.send("JOIN alice")
	bob.expect("SYSTEM alice joined the auction")

	alice.send("MSG hello everyone")
	bob.expect("SYSTEM [alice] hello everyone")

	alice.send("QUIT")
	alice.expect("SYSTEM Goodbye")
	bob.expect("SYSTEM alice left the auction")

	assert.Eventually(t, func() bool {
		names := auctionEngine.Participants()
		return len(names) == 1 && names[0] == "bob"
	}, 5*time.Second, 20*time.Millisecond)
}

func TestServer_ClosedConnectionUnregisters(t *testing.T) {
	auctionEngine, address := startServer(t)

	bob := dial(t, address)
	bob.send("JOIN bob")
	bob.expect("SYSTEM bob joined the auction")

	alice := dial(t, address)
	alice.send("JOIN alice")
	bob.expect("SYSTEM alice joined the auction")

	require.NoError(t, alice.conn.Close())
	bob.expect("SYSTEM alice left the auction")
	assert.Equal(t, []string{"bob"}, auctionEngine.Participants())
}
