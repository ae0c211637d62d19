package dispatch

import (
	"bufio"
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aoikida/Orthrus/internal/arena"
	"github.com/aoikida/Orthrus/internal/kv"
	"github.com/aoikida/Orthrus/internal/logmgr"
	"github.com/aoikida/Orthrus/internal/redundancy"
	"github.com/aoikida/Orthrus/internal/ring"
	"github.com/aoikida/Orthrus/internal/wire"
)

// newTestGroup wires a Group against an async, fully-sampled runner so
// every SET/GET still gets a frame committed (exercising the redundancy
// path) without the test having to block on synchronous tickets.
func newTestGroup(t *testing.T) (*Group, func()) {
	a := arena.New(4096)
	mgr := logmgr.New(a, 4096, 256, nil)
	r := ring.New(16)
	runner := redundancy.New(a, mgr, r, redundancy.Config{SamplingRate: 1.0})

	table := kv.New(16, 4, 8)
	g := &Group{ID: 0, Codec: wire.NewCodec(4, 8), Table: table, Runner: runner}

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		runner.ValidateLoop(g.Validator, func() bool {
			select {
			case <-stop:
				return true
			default:
				return false
			}
		})
		close(done)
	}()
	return g, func() { close(stop); <-done }
}

func serveOverPipe(t *testing.T, g *Group) (*bufio.ReadWriter, func()) {
	clientConn, serverConn := net.Pipe()
	go g.handleConn(serverConn)
	rw := bufio.NewReadWriter(bufio.NewReader(clientConn), bufio.NewWriter(clientConn))
	return rw, func() { clientConn.Close() }
}

func sendLine(t *testing.T, rw *bufio.ReadWriter, line string) string {
	_, err := rw.WriteString(line)
	require.NoError(t, err)
	require.NoError(t, rw.Flush())
	resp, err := rw.ReadString('\n')
	require.NoError(t, err)
	return resp
}

func TestScenarioS1InsertThenRead(t *testing.T) {
	g, stop := newTestGroup(t)
	defer stop()
	rw, closeConn := serveOverPipe(t, g)
	defer closeConn()

	require.Equal(t, "CREATED\r\n", sendLine(t, rw, "set abcd 12345678\r\n"))
	require.Equal(t, "VALUE 12345678\r\n", sendLine(t, rw, "get abcd\r\n"))
}

func TestScenarioS2InsertThenUpdate(t *testing.T) {
	g, stop := newTestGroup(t)
	defer stop()
	rw, closeConn := serveOverPipe(t, g)
	defer closeConn()

	require.Equal(t, "CREATED\r\n", sendLine(t, rw, "set abcd 12345678\r\n"))
	require.Equal(t, "STORED\r\n", sendLine(t, rw, "set abcd ABCDEFGH\r\n"))
	require.Equal(t, "VALUE ABCDEFGH\r\n", sendLine(t, rw, "get abcd\r\n"))
}

func TestScenarioS3GetMiss(t *testing.T) {
	g, stop := newTestGroup(t)
	defer stop()
	rw, closeConn := serveOverPipe(t, g)
	defer closeConn()

	require.Equal(t, "NOT_FOUND\r\n", sendLine(t, rw, "get zzzz\r\n"))
}

func TestScenarioS4DeleteBoundary(t *testing.T) {
	g, stop := newTestGroup(t)
	defer stop()
	rw, closeConn := serveOverPipe(t, g)
	defer closeConn()

	require.Equal(t, "NOT_FOUND\r\n", sendLine(t, rw, "del abcd\r\n"))
	require.Equal(t, "CREATED\r\n", sendLine(t, rw, "set abcd 00000000\r\n"))
	require.Equal(t, "DELETED\r\n", sendLine(t, rw, "del abcd\r\n"))
}

func TestScenarioS5UnknownVerbKeepsConnectionOpen(t *testing.T) {
	g, stop := newTestGroup(t)
	defer stop()
	rw, closeConn := serveOverPipe(t, g)
	defer closeConn()

	require.Equal(t, "ERROR\r\n", sendLine(t, rw, "foo abcd 00000000\r\n"))
	require.Equal(t, "NOT_FOUND\r\n", sendLine(t, rw, "get abcd\r\n"))
}

func TestScenarioS6CRCPrefixIsStripped(t *testing.T) {
	g, stop := newTestGroup(t)
	defer stop()
	rw, closeConn := serveOverPipe(t, g)
	defer closeConn()

	require.Equal(t, "CREATED\r\n", sendLine(t, rw, "123456789#set abcd 12345678\r\n"))
}

func TestQuitClosesConnectionWithoutAResponse(t *testing.T) {
	g, stop := newTestGroup(t)
	defer stop()
	rw, closeConn := serveOverPipe(t, g)
	defer closeConn()

	_, err := rw.WriteString("quit\n")
	require.NoError(t, err)
	require.NoError(t, rw.Flush())

	_, err = rw.ReadString('\n')
	require.Error(t, err, "quit closes the connection with no response line")
}

func TestOrderingWithinAConnection(t *testing.T) {
	g, stop := newTestGroup(t)
	defer stop()
	rw, closeConn := serveOverPipe(t, g)
	defer closeConn()

	require.Equal(t, "CREATED\r\n", sendLine(t, rw, "set aaaa 11111111\r\n"))
	require.Equal(t, "CREATED\r\n", sendLine(t, rw, "set bbbb 22222222\r\n"))
	require.Equal(t, "VALUE 11111111\r\n", sendLine(t, rw, "get aaaa\r\n"))
	require.Equal(t, "VALUE 22222222\r\n", sendLine(t, rw, "get bbbb\r\n"))
}
