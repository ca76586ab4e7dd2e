package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chunkReader 按脚本分块返回数据的流式 body，模拟 HTTP 分块传输
// 中记录被任意切分的场景。
type chunkReader struct {
	chunks [][]byte
	idx    int
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if r.idx >= len(r.chunks) {
		return 0, io.EOF
	}
	n := copy(p, r.chunks[r.idx])
	r.idx++
	return n, nil
}

func (r *chunkReader) Close() error { return nil }

// newTestWatchStream 构造直连脚本 body 的监听流。
func newTestWatchStream(t *testing.T, chunks ...string) *WatchStream {
	t.Helper()
	host := fmt.Sprintf("%s:2379", t.Name())
	t.Cleanup(func() { resetHealth(host) })

	raw := make([][]byte, 0, len(chunks))
	for _, c := range chunks {
		raw = append(raw, []byte(c))
	}
	return &WatchStream{
		body:     &chunkReader{chunks: raw},
		ctx:      context.Background(),
		cancel:   func() {},
		endpoint: &Endpoint{Host: host},
		health:   newHealthTracker(HealthConfig{Enabled: true, MaxFails: 1, FailTimeout: time.Minute}),
		codec:    &codec{prefix: "/app/", serializer: RawSerializer{}},
		logger:   slog.Default(),
		closedCh: make(chan struct{}),
	}
}

// putRecord 构造单 PUT 事件的 result 记录（含换行）。
func putRecord(key, value string, rev int64) string {
	return fmt.Sprintf(
		`{"result":{"header":{"revision":"%d"},"events":[{"kv":{"key":"%s","value":"%s","mod_revision":"%d"}}]}}`+"\n",
		rev, b64(key), b64(value), rev)
}

func TestWatchStreamSingleRecord(t *testing.T) {
	ws := newTestWatchStream(t, putRecord("/app/conf", "v1", 10))

	events, err := ws.Next()
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, EventPut, events[0].Type)
	assert.Equal(t, "conf", events[0].KV.Key)
	assert.Equal(t, "v1", events[0].KV.Value)
	assert.Equal(t, int64(10), events[0].KV.ModRevision)

	// clean stream end
	events, err = ws.Next()
	assert.NoError(t, err)
	assert.Nil(t, events)
}

func TestWatchStreamRecordSplitAcrossChunks(t *testing.T) {
	record := putRecord("/app/conf", "split-value", 11)
	mid := len(record) / 2
	// neither chunk ends with a newline except the last one
	ws := newTestWatchStream(t, record[:mid], record[mid:])

	events, err := ws.Next()
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "split-value", events[0].KV.Value)
}

func TestWatchStreamMultipleRecordsOneChunk(t *testing.T) {
	ws := newTestWatchStream(t, putRecord("/app/a", "1", 1)+putRecord("/app/b", "2", 2))

	first, err := ws.Next()
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, "a", first[0].KV.Key)

	second, err := ws.Next()
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, "b", second[0].KV.Key)
}

func TestWatchStreamChunkBoundaryOnNewline(t *testing.T) {
	// the first chunk ends exactly on the record boundary: it must be
	// decoded immediately, not deferred until more data arrives
	ws := newTestWatchStream(t,
		putRecord("/app/x", "first", 1),
		putRecord("/app/y", "second", 2),
	)

	events, err := ws.Next()
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "x", events[0].KV.Key)

	events, err = ws.Next()
	require.NoError(t, err)
	assert.Equal(t, "y", events[0].KV.Key)
}

func TestWatchStreamSkipsCreatedNotification(t *testing.T) {
	created := `{"result":{"header":{"revision":"5"},"created":true}}` + "\n"
	ws := newTestWatchStream(t, created+putRecord("/app/conf", "v", 6))

	events, err := ws.Next()
	require.NoError(t, err)
	require.Len(t, events, 1, "created notification must be skipped, not surfaced as an empty batch")
	assert.Equal(t, "conf", events[0].KV.Key)
}

func TestWatchStreamDeleteEvent(t *testing.T) {
	record := fmt.Sprintf(
		`{"result":{"header":{"revision":"9"},"events":[{"type":"DELETE","kv":{"key":"%s","mod_revision":"9"},"prev_kv":{"key":"%s","value":"%s"}}]}}`+"\n",
		b64("/app/gone"), b64("/app/gone"), b64("old"))
	ws := newTestWatchStream(t, record)

	events, err := ws.Next()
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, EventDelete, events[0].Type)
	assert.Equal(t, "gone", events[0].KV.Key)
	assert.Nil(t, events[0].KV.Value, "deleted values are never deserialized")
	require.NotNil(t, events[0].PrevKV)
	assert.Equal(t, "old", events[0].PrevKV.Value)
}

func TestWatchStreamBatchOrder(t *testing.T) {
	record := fmt.Sprintf(
		`{"result":{"header":{"revision":"3"},"events":[{"kv":{"key":"%s","value":"%s"}},{"kv":{"key":"%s","value":"%s"}}]}}`+"\n",
		b64("/app/k1"), b64("a"), b64("/app/k2"), b64("b"))
	ws := newTestWatchStream(t, record)

	events, err := ws.Next()
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "k1", events[0].KV.Key)
	assert.Equal(t, "k2", events[1].KV.Key)
}

func TestWatchStreamServerErrorRecord(t *testing.T) {
	record := `{"error":{"grpc_code":14,"http_code":503,"message":"etcdserver: no leader","http_status":"Service Unavailable"}}` + "\n"
	ws := newTestWatchStream(t, record)

	_, err := ws.Next()
	require.ErrorIs(t, err, ErrStreamDecode)
	assert.Contains(t, err.Error(), "no leader")
	// a 5xx stream error counts against the endpoint
	assert.False(t, ws.health.IsHealthy(ws.endpoint.Host))
}

func TestWatchStreamClientErrorRecord(t *testing.T) {
	record := `{"error":{"grpc_code":3,"http_code":400,"message":"invalid watch request"}}` + "\n"
	ws := newTestWatchStream(t, record)

	_, err := ws.Next()
	require.ErrorIs(t, err, ErrStreamDecode)
	// request-level errors do not punish the endpoint
	assert.True(t, ws.health.IsHealthy(ws.endpoint.Host))
}

func TestWatchStreamGarbageLine(t *testing.T) {
	ws := newTestWatchStream(t, "not json at all\n")
	_, err := ws.Next()
	assert.ErrorIs(t, err, ErrStreamDecode)
}

func TestWatchStreamCompaction(t *testing.T) {
	record := `{"result":{"header":{"revision":"20"},"canceled":true,"compact_revision":"15"}}` + "\n"
	ws := newTestWatchStream(t, record)

	_, err := ws.Next()
	require.ErrorIs(t, err, ErrStreamDecode)
	assert.Equal(t, int64(15), ws.CompactRevision())
}

func TestWatchStreamClose(t *testing.T) {
	ws := newTestWatchStream(t, putRecord("/app/k", "v", 1))

	require.NoError(t, ws.Close())
	require.NoError(t, ws.Close(), "Close is idempotent")

	_, err := ws.Next()
	assert.ErrorIs(t, err, ErrWatchClosed)
	assert.True(t, IsWatchClosed(err))
}

func TestWatchStreamAbruptDisconnect(t *testing.T) {
	// a mid-stream transport failure with a live context is a real
	// endpoint fault: retryable error plus a health report
	ws := newTestWatchStream(t)
	ws.body = &failingBody{err: errors.New("read tcp: connection reset by peer")}

	_, err := ws.Next()
	require.Error(t, err)
	assert.True(t, IsRetryable(err))
	assert.False(t, ws.health.IsHealthy(ws.endpoint.Host))
}

func TestWatchStreamCanceledContext(t *testing.T) {
	// canceling the watch context without calling Close terminates the
	// stream normally: ErrWatchClosed, and the endpoint stays healthy
	ws := newTestWatchStream(t)
	ctx, cancel := context.WithCancel(context.Background())
	ws.ctx = ctx
	cancel()
	ws.body = &failingBody{err: errors.New("read tcp: use of closed network connection")}

	_, err := ws.Next()
	assert.ErrorIs(t, err, ErrWatchClosed)
	assert.True(t, ws.health.IsHealthy(ws.endpoint.Host))
}

func TestWatchStreamReadErrorWrapsCancellation(t *testing.T) {
	// some transports surface the cancellation inside the read error
	// instead of (or before) the stream context reporting it
	ws := newTestWatchStream(t)
	ws.body = &failingBody{err: fmt.Errorf("read tcp 127.0.0.1:2379: %w", context.Canceled)}

	_, err := ws.Next()
	assert.ErrorIs(t, err, ErrWatchClosed)
	assert.True(t, ws.health.IsHealthy(ws.endpoint.Host))
}

func TestClientWatchChannel(t *testing.T) {
	eps := uniqueEndpoints(t, 1)
	body := putRecord("/app/conf", "v1", 1) + putRecord("/app/conf", "v2", 2)
	transport := newStubTransport(func(r *http.Request) (*http.Response, error) {
		if r.URL.Path != "/v3/watch" {
			return jsonResponse(http.StatusNotFound, "{}"), nil
		}
		return &http.Response{
			StatusCode: http.StatusOK,
			Header:     http.Header{"Content-Type": []string{"application/json"}},
			Body:       &chunkReader{chunks: [][]byte{[]byte(body)}},
		}, nil
	})
	cfg := testConfig(eps)
	cfg.KeyPrefix = "/app/"
	client := newTestClient(t, cfg, transport)

	ch, err := client.Watch(context.Background(), "conf")
	require.NoError(t, err)

	var values []any
	for resp := range ch {
		require.NoError(t, resp.Err)
		for _, event := range resp.Events {
			values = append(values, event.KV.Value)
		}
	}
	assert.Equal(t, []any{"v1", "v2"}, values)
}

func TestClientWatchCancel(t *testing.T) {
	eps := uniqueEndpoints(t, 1)
	blocker := make(chan struct{})
	transport := newStubTransport(func(r *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       &blockingBody{unblock: blocker},
		}, nil
	})
	client := newTestClient(t, testConfig(eps), transport)

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := client.Watch(ctx, "conf")
	require.NoError(t, err)

	cancel()
	close(blocker)

	// cancellation is a normal termination: the channel closes
	// without delivering an error, and the endpoint is not blamed
	// for the interrupted read
	for resp := range ch {
		assert.NoError(t, resp.Err)
	}
	assert.True(t, client.health.IsHealthy(eps[0]))
}

// blockingBody 阻塞到 unblock 关闭后返回网络错误的 body，
// 模拟 ctx 取消后传输层中断读取的形态。
type blockingBody struct {
	unblock <-chan struct{}
}

func (b *blockingBody) Read(p []byte) (int, error) {
	<-b.unblock
	return 0, fmt.Errorf("read tcp 127.0.0.1:2379: %w", context.Canceled)
}

func (b *blockingBody) Close() error { return nil }

// failingBody 每次读取返回固定错误的 body。
type failingBody struct {
	err error
}

func (b *failingBody) Read(p []byte) (int, error) { return 0, b.err }

func (b *failingBody) Close() error { return nil }
