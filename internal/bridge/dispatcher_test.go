package bridge

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/loomhost/internal/core/coretest"
)

func startedBridge(t *testing.T, fake *coretest.Fake) *Bridge {
	t.Helper()
	b, _ := newTestBridge(t, fake)
	require.NoError(t, b.Initialize(`{}`))
	require.NoError(t, b.Start())
	return b
}

func TestSendWireFormat(t *testing.T) {
	fake := coretest.NewFake()
	b := startedBridge(t, fake)

	resp, err := b.Send("ping", map[string]any{})
	require.NoError(t, err)
	assert.True(t, resp.OK)

	sent := fake.SentCommands()
	require.Len(t, sent, 1)
	assert.Equal(t, `{"v":1,"request_id":"req-1","command":"ping","payload":{}}`, sent[0])
}

func TestSendNilPayloadBecomesEmptyObject(t *testing.T) {
	fake := coretest.NewFake()
	b := startedBridge(t, fake)

	_, err := b.Send("host.ping", nil)
	require.NoError(t, err)

	sent := fake.SentCommands()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0], `"payload":{}`)
}

func TestRequestIDsStrictlyIncrease(t *testing.T) {
	fake := coretest.NewFake()
	b := startedBridge(t, fake)

	_, err := b.Send("host.ping", nil)
	require.NoError(t, err)
	_, err = b.Send("runtime.status", map[string]any{"verbose": true})
	require.NoError(t, err)

	sent := fake.SentCommands()
	require.Len(t, sent, 2)
	assert.Contains(t, sent[0], `"request_id":"req-1"`)
	assert.Contains(t, sent[1], `"request_id":"req-2"`)
}

func TestConcurrentSendIDsUnique(t *testing.T) {
	fake := coretest.NewFake()
	b := startedBridge(t, fake)

	const n = 40
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = b.Send("host.ping", map[string]any{"i": i})
		}()
	}
	wg.Wait()

	seen := make(map[int]bool)
	for _, wire := range fake.SentCommands() {
		idx := strings.Index(wire, `"request_id":"req-`)
		require.GreaterOrEqual(t, idx, 0)
		rest := wire[idx+len(`"request_id":"req-`):]
		numStr := rest[:strings.Index(rest, `"`)]
		num, err := strconv.Atoi(numStr)
		require.NoError(t, err)
		assert.False(t, seen[num], "duplicate request id req-%d", num)
		seen[num] = true
	}
	assert.Len(t, seen, n)
}

func TestSendBeforeStartMakesNoBoundaryCall(t *testing.T) {
	fake := coretest.NewFake()
	b, _ := newTestBridge(t, fake)
	require.NoError(t, b.Initialize(`{}`))

	_, err := b.Send("host.ping", nil)
	assert.ErrorIs(t, err, ErrNotRunning)
	assert.Equal(t, 0, fake.CallCount("send_command"))
}

func TestSendSerializationFailureMakesNoBoundaryCall(t *testing.T) {
	fake := coretest.NewFake()
	b := startedBridge(t, fake)

	_, err := b.Send("host.ping", map[string]any{"ch": make(chan int)})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotRunning)
	assert.Equal(t, 0, fake.CallCount("send_command"))

	// The failed attempt still consumed a request id; the next send's id
	// keeps increasing rather than reusing it.
	_, err = b.Send("host.ping", nil)
	require.NoError(t, err)
	assert.Contains(t, fake.SentCommands()[0], `"request_id":"req-2"`)
}

func TestSendNullResponse(t *testing.T) {
	fake := coretest.NewFake()
	fake.RespondWith = map[string]string{"host.void": ""}
	b := startedBridge(t, fake)

	resp, err := b.Send("host.void", nil)
	assert.Nil(t, resp)
	assert.ErrorIs(t, err, ErrNullResponse)

	// Null responses still count as boundary calls, but there is no buffer
	// to release.
	assert.Equal(t, 1, fake.CallCount("send_command"))
	assert.Empty(t, fake.Buffers())
}

func TestResponseBufferReleasedExactlyOnce(t *testing.T) {
	fake := coretest.NewFake()
	fake.RespondWith = map[string]string{
		"host.good": `{"v":1,"request_id":"req-1","ok":true,"payload":{"pong":true}}`,
		"host.junk": `not json at all`,
	}
	b := startedBridge(t, fake)

	_, err := b.Send("host.good", nil)
	require.NoError(t, err)

	_, err = b.Send("host.junk", nil)
	require.Error(t, err, "undecodable response must surface as an error")

	bufs := fake.Buffers()
	require.Len(t, bufs, 2)
	for i, buf := range bufs {
		assert.Equal(t, 1, buf.Released, "buffer %d released %d times", i, buf.Released)
	}
}

func TestSendErrorResponsePassesThrough(t *testing.T) {
	fake := coretest.NewFake()
	fake.RespondWith = map[string]string{
		"bad.cmd": `{"v":1,"request_id":"req-1","ok":false,"error":"unknown command"}`,
	}
	b := startedBridge(t, fake)

	resp, err := b.Send("bad.cmd", nil)
	require.NoError(t, err, "a well-formed error envelope is not a transport error")
	assert.False(t, resp.OK)
	assert.Equal(t, "unknown command", resp.Error)
}

func TestStatsCountRequests(t *testing.T) {
	fake := coretest.NewFake()
	b := startedBridge(t, fake)

	for i := range 3 {
		_, err := b.Send("host.ping", map[string]any{"i": i})
		require.NoError(t, err)
	}

	stats := b.Stats()
	assert.Equal(t, "running", stats.State)
	assert.Equal(t, uint64(3), stats.RequestsSent)
}

func ExampleBridge_Send() {
	fake := coretest.NewFake()
	b := New(fake, nil, Options{})
	defer b.Close()

	_ = b.Initialize(`{}`)
	_ = b.Start()

	resp, _ := b.Send("host.ping", map[string]any{})
	fmt.Println(resp.OK)
	// Output: true
}
