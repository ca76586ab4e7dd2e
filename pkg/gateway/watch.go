package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
)

// pathWatch 监听接口路径。
const pathWatch = "/watch"

// 监听流读取参数。
const (
	watchReadChunk        = 4 << 10
	defaultWatchBufferLen = 16
)

// EventType 监听事件类型。
type EventType int

// 事件类型取值。
const (
	EventPut EventType = iota
	EventDelete
)

// String 返回事件类型的可读表示。
func (t EventType) String() string {
	switch t {
	case EventPut:
		return "PUT"
	case EventDelete:
		return "DELETE"
	default:
		return fmt.Sprintf("EventType(%d)", int(t))
	}
}

// Event 一次键变更事件。
// 删除事件的 KV 只携带键与版本信息，Value 恒为 nil——被删除的
// 值已不存在于网关响应中，不经过序列化器。
type Event struct {
	Type   EventType
	KV     KeyValue
	PrevKV *KeyValue
}

// watchSettings 监听的可选参数集合。
type watchSettings struct {
	prefix         bool
	rangeEnd       string
	startRev       int64
	prevKV         bool
	progressNotify bool
	bufferLen      int
}

// WatchOption 定制监听行为。
type WatchOption func(*watchSettings)

// WithPrefix 监听所有以给定键为前缀的键。
func WithPrefix() WatchOption {
	return func(s *watchSettings) { s.prefix = true }
}

// WithRange 监听 [key, rangeEnd) 区间。
func WithRange(rangeEnd string) WatchOption {
	return func(s *watchSettings) { s.rangeEnd = rangeEnd }
}

// WithStartRev 从指定 revision 开始回放历史事件。
func WithStartRev(rev int64) WatchOption {
	return func(s *watchSettings) { s.startRev = rev }
}

// WithWatchPrevKV 事件中附带变更前的键值对。
func WithWatchPrevKV() WatchOption {
	return func(s *watchSettings) { s.prevKV = true }
}

// WithProgressNotify 周期性接收进度通知（空事件批，revision 前进）。
func WithProgressNotify() WatchOption {
	return func(s *watchSettings) { s.progressNotify = true }
}

// WithBufferLen 指定 Watch 通道容量，仅对通道式 Watch 生效。
func WithBufferLen(n int) WatchOption {
	return func(s *watchSettings) {
		if n > 0 {
			s.bufferLen = n
		}
	}
}

// WatchStream 监听流的同步读取句柄。
//
// 网关的 /watch 是分块传输的长连接，每条记录是一行 JSON，但
// HTTP 分块边界与记录边界无关：一条记录可能被拆进多个分块，
// 一个分块也可能携带多条记录。WatchStream 维护跨分块的增量
// 缓冲：只有当本次读取以换行符收尾（或流结束）时才解码缓冲，
// 保证每次解码面对的都是完整记录。
//
// 并发模型：Next 与 Close 可由不同 goroutine 调用；
// Next 自身不可并发。
type WatchStream struct {
	body   io.ReadCloser
	ctx    context.Context
	cancel context.CancelFunc

	endpoint *Endpoint
	health   *healthTracker
	codec    *codec
	logger   *slog.Logger

	buf     []byte   // 跨分块的记录缓冲
	chunk   []byte   // 单次读取的临时缓冲
	pending [][]Event
	eof     bool

	compactRev int64

	closeOnce sync.Once
	closedCh  chan struct{}
}

// Next 返回下一批事件，按网关下发顺序排列。
//
// 阻塞直到有事件到达、流结束或出错：
//   - 流被服务端正常结束时返回 (nil, nil)；
//   - Close 或 context 取消后返回 ErrWatchClosed；
//   - 流内错误记录或不可解码数据返回 ErrStreamDecode。
//
// 空事件批（创建确认、进度通知）被跳过，不会返回空切片。
func (ws *WatchStream) Next() ([]Event, error) {
	for {
		if len(ws.pending) > 0 {
			batch := ws.pending[0]
			ws.pending = ws.pending[1:]
			return batch, nil
		}
		if ws.eof {
			return nil, nil
		}
		if ws.isClosed() || ws.ctx.Err() != nil {
			return nil, ErrWatchClosed
		}

		if ws.chunk == nil {
			ws.chunk = make([]byte, watchReadChunk)
		}
		n, err := ws.body.Read(ws.chunk)
		if n > 0 {
			ws.buf = append(ws.buf, ws.chunk[:n]...)
			// 记录边界判定：读到的最后一个字节是换行符时缓冲内
			// 只含完整记录，可安全解码；否则继续累积。
			if ws.chunk[n-1] == '\n' {
				if derr := ws.decodeBuffered(); derr != nil {
					return nil, derr
				}
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				ws.eof = true
				// 流结束也是记录边界，残余缓冲整体解码。
				if derr := ws.decodeBuffered(); derr != nil {
					return nil, derr
				}
				continue
			}
			// Close 与 ctx 取消是正常终止：此时的读取错误来自
			// 调用方主动断流，不计入端点失败。
			if ws.isClosed() || ws.ctx.Err() != nil ||
				errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, ErrWatchClosed
			}
			// 流中途断开：连接已建立过，仍计入端点失败。
			ws.health.ReportFailure(ws.endpoint.Host)
			return nil, NewTemporaryError(fmt.Errorf("gateway: watch stream read: %w", err))
		}
	}
}

// Close 关闭监听流并释放底层连接。幂等。
func (ws *WatchStream) Close() error {
	ws.closeOnce.Do(func() {
		close(ws.closedCh)
		ws.cancel()
		_ = ws.body.Close()
	})
	return nil
}

// CompactRevision 返回导致监听取消的压缩 revision，0 表示未发生。
// 取此 revision 之后重新发起 WithStartRev 监听可恢复。
func (ws *WatchStream) CompactRevision() int64 {
	return ws.compactRev
}

// isClosed 报告 Close 是否已调用。
func (ws *WatchStream) isClosed() bool {
	select {
	case <-ws.closedCh:
		return true
	default:
		return false
	}
}

// decodeBuffered 解码缓冲内的全部完整记录并清空缓冲。
func (ws *WatchStream) decodeBuffered() error {
	if len(ws.buf) == 0 {
		return nil
	}
	lines := bytes.Split(ws.buf, []byte{'\n'})
	ws.buf = ws.buf[:0]
	for _, line := range lines {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		if err := ws.decodeRecord(line); err != nil {
			return err
		}
	}
	return nil
}

// decodeRecord 解码单条记录并归类。
func (ws *WatchStream) decodeRecord(line []byte) error {
	var record wireWatchRecord
	if err := json.Unmarshal(line, &record); err != nil {
		return fmt.Errorf("%w: %w", ErrStreamDecode, err)
	}

	if record.Error != nil {
		// 流内 5xx 级错误说明端点自身故障，计入健康状态；
		// 4xx 级（权限、参数）是请求问题，不惩罚端点。
		if record.Error.HTTPCode >= http.StatusInternalServerError {
			ws.health.ReportFailure(ws.endpoint.Host)
		}
		ws.logger.Warn("watch stream error record",
			slog.String("endpoint", ws.endpoint.Host),
			slog.Int("http_code", record.Error.HTTPCode),
			slog.String("message", record.Error.Message),
		)
		return fmt.Errorf("%w: gateway error (http %d): %s",
			ErrStreamDecode, record.Error.HTTPCode, record.Error.Message)
	}
	if record.Result == nil {
		return fmt.Errorf("%w: record has neither result nor error", ErrStreamDecode)
	}

	result := record.Result
	if result.Canceled {
		ws.eof = true
		if result.CompactRevision > 0 {
			ws.compactRev = result.CompactRevision
			return fmt.Errorf("%w: watch canceled, revision compacted at %d",
				ErrStreamDecode, result.CompactRevision)
		}
		return nil
	}
	if len(result.Events) == 0 {
		// 创建确认与进度通知不携带事件，跳过。
		return nil
	}

	batch := make([]Event, 0, len(result.Events))
	for i := range result.Events {
		event, err := ws.decodeEvent(&result.Events[i])
		if err != nil {
			return err
		}
		batch = append(batch, event)
	}
	ws.pending = append(ws.pending, batch)
	return nil
}

// decodeEvent 解码单个事件。
func (ws *WatchStream) decodeEvent(wire *wireWatchEvent) (Event, error) {
	if wire.KV == nil {
		return Event{}, fmt.Errorf("%w: event missing kv", ErrStreamDecode)
	}
	// 删除事件以 type 字段或 value 缺失判定，二者在网关不同
	// 版本下的行为不完全一致。
	isDelete := wire.Type == "DELETE" || wire.KV.Value == ""
	eventType := EventPut
	if isDelete {
		eventType = EventDelete
	}

	kv, err := ws.codec.decodeKV(wire.KV, !isDelete)
	if err != nil {
		return Event{}, fmt.Errorf("%w: %w", ErrStreamDecode, err)
	}
	event := Event{Type: eventType, KV: kv}
	if wire.PrevKV != nil {
		prev, err := ws.codec.decodeKV(wire.PrevKV, wire.PrevKV.Value != "")
		if err != nil {
			return Event{}, fmt.Errorf("%w: %w", ErrStreamDecode, err)
		}
		event.PrevKV = &prev
	}
	return event, nil
}

// WatchStream 打开一条监听流，返回同步读取句柄。
// 流的生命周期受传入 ctx 约束，ctx 取消后 Next 返回 ErrWatchClosed。
func (c *Client) WatchStream(ctx context.Context, key string, opts ...WatchOption) (*WatchStream, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}
	s := &watchSettings{bufferLen: defaultWatchBufferLen}
	for _, opt := range opts {
		opt(s)
	}

	create := wireWatchCreateRequest{
		Key:            c.codec.encodeKey(key),
		StartRevision:  s.startRev,
		PrevKV:         s.prevKV,
		ProgressNotify: s.progressNotify,
	}
	if s.prefix {
		full := c.codec.fullKey(key)
		create.Key = c.codec.encodeRawKey(full)
		create.RangeEnd = c.codec.encodeRawKey(prefixEnd(full))
	} else if s.rangeEnd != "" {
		create.RangeEnd = c.codec.encodeKey(s.rangeEnd)
	}

	streamCtx, cancel := context.WithCancel(ctx)
	resp, ep, err := c.dispatcher.openStream(streamCtx, &request{
		method: http.MethodPost,
		path:   pathWatch,
		body:   &wireWatchRequest{CreateRequest: create},
		auth:   true,
		stream: true,
	})
	if err != nil {
		cancel()
		return nil, err
	}

	return &WatchStream{
		body:     resp.Body,
		ctx:      streamCtx,
		cancel:   cancel,
		endpoint: ep,
		health:   c.health,
		codec:    c.codec,
		logger:   c.logger,
		closedCh: make(chan struct{}),
	}, nil
}

// WatchResponse 通道式监听的一次投递：事件批或终止错误。
// Err 非 nil 时通道随后关闭。
type WatchResponse struct {
	Events []Event
	Err    error
}

// Watch 打开监听流并以通道形式投递事件。
//
// 通道在流正常结束、出错或 ctx 取消后关闭；取消属于正常
// 终止，不投递错误。不做自动重连——压缩等不可恢复场景需要
// 调用方决定恢复起点。
func (c *Client) Watch(ctx context.Context, key string, opts ...WatchOption) (<-chan WatchResponse, error) {
	s := &watchSettings{bufferLen: defaultWatchBufferLen}
	for _, opt := range opts {
		opt(s)
	}
	stream, err := c.WatchStream(ctx, key, opts...)
	if err != nil {
		return nil, err
	}

	ch := make(chan WatchResponse, s.bufferLen)
	go func() {
		defer close(ch)
		defer func() { _ = stream.Close() }()
		for {
			events, err := stream.Next()
			if err != nil {
				if errors.Is(err, ErrWatchClosed) || ctx.Err() != nil {
					return
				}
				select {
				case ch <- WatchResponse{Err: err}:
				case <-ctx.Done():
				}
				return
			}
			if events == nil {
				return
			}
			select {
			case ch <- WatchResponse{Events: events}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}
