package gateway

import (
	"context"
	"net/http"
)

// KV 接口路径。
const (
	pathRange       = "/kv/range"
	pathPut         = "/kv/put"
	pathDeleteRange = "/kv/deleterange"
)

// SortOrder 范围查询的排序方向。
type SortOrder string

// 排序方向取值。
const (
	SortNone    SortOrder = "NONE"
	SortAscend  SortOrder = "ASCEND"
	SortDescend SortOrder = "DESCEND"
)

// SortTarget 范围查询的排序字段。
type SortTarget string

// 排序字段取值。
const (
	SortByKey            SortTarget = "KEY"
	SortByVersion        SortTarget = "VERSION"
	SortByCreateRevision SortTarget = "CREATE"
	SortByModRevision    SortTarget = "MOD"
	SortByValue          SortTarget = "VALUE"
)

// Header 网关响应头，携带集群与版本信息。
type Header struct {
	ClusterID uint64
	MemberID  uint64
	Revision  int64
	RaftTerm  uint64
}

// KeyValue 一个键值对及其版本信息。
// Key 是剥离公共前缀后的应用层键名；Value 类型由序列化器决定，
// 默认 RawSerializer 下为 string。
type KeyValue struct {
	Key            string
	Value          any
	CreateRevision int64
	ModRevision    int64
	Version        int64
	Lease          int64
}

// GetResponse 范围读取结果。
type GetResponse struct {
	Header Header
	KVs    []KeyValue
	More   bool
	Count  int64
}

// PutResponse 写入结果。PrevKV 仅在 WithPrevKV 时返回。
type PutResponse struct {
	Header Header
	PrevKV *KeyValue
}

// DeleteResponse 删除结果。PrevKVs 仅在 WithPrevKV 时返回。
type DeleteResponse struct {
	Header  Header
	Deleted int64
	PrevKVs []KeyValue
}

// opSettings 单次 KV 操作的可选参数集合。
type opSettings struct {
	limit        int64
	revision     int64
	sortOrder    SortOrder
	sortTarget   SortTarget
	serializable bool
	keysOnly     bool
	countOnly    bool
	prevKV       bool
	lease        int64
	ignoreValue  bool
	ignoreLease  bool
	minModRev    int64
	maxModRev    int64
	minCreateRev int64
	maxCreateRev int64
}

// OpOption 定制单次 KV 操作。
type OpOption func(*opSettings)

// WithLimit 限制返回的键值对数量，0 表示不限制。
func WithLimit(n int64) OpOption {
	return func(s *opSettings) { s.limit = n }
}

// WithRev 在指定 revision 上读取（时间点读）。
func WithRev(rev int64) OpOption {
	return func(s *opSettings) { s.revision = rev }
}

// WithSort 指定排序字段与方向。
func WithSort(target SortTarget, order SortOrder) OpOption {
	return func(s *opSettings) {
		s.sortTarget = target
		s.sortOrder = order
	}
}

// WithSerializable 使用可串行化读，不经 quorum 确认，
// 延迟更低但可能读到旧数据。
func WithSerializable() OpOption {
	return func(s *opSettings) { s.serializable = true }
}

// WithKeysOnly 只返回键，不返回值。
func WithKeysOnly() OpOption {
	return func(s *opSettings) { s.keysOnly = true }
}

// WithCountOnly 只返回计数，不返回键值对。
func WithCountOnly() OpOption {
	return func(s *opSettings) { s.countOnly = true }
}

// WithPrevKV 在 Put/Delete 响应中返回被覆盖或删除前的键值对。
func WithPrevKV() OpOption {
	return func(s *opSettings) { s.prevKV = true }
}

// WithLease 将键绑定到指定租约，租约到期后键自动删除。
func WithLease(id int64) OpOption {
	return func(s *opSettings) { s.lease = id }
}

// WithIgnoreValue 更新键的其他属性（如租约）而保留当前值。
func WithIgnoreValue() OpOption {
	return func(s *opSettings) { s.ignoreValue = true }
}

// WithIgnoreLease 更新值而保留键当前绑定的租约。
func WithIgnoreLease() OpOption {
	return func(s *opSettings) { s.ignoreLease = true }
}

// WithMinModRev 过滤 mod revision 小于给定值的键。
func WithMinModRev(rev int64) OpOption {
	return func(s *opSettings) { s.minModRev = rev }
}

// WithMaxModRev 过滤 mod revision 大于给定值的键。
func WithMaxModRev(rev int64) OpOption {
	return func(s *opSettings) { s.maxModRev = rev }
}

// WithMinCreateRev 过滤 create revision 小于给定值的键。
func WithMinCreateRev(rev int64) OpOption {
	return func(s *opSettings) { s.minCreateRev = rev }
}

// WithMaxCreateRev 过滤 create revision 大于给定值的键。
func WithMaxCreateRev(rev int64) OpOption {
	return func(s *opSettings) { s.maxCreateRev = rev }
}

// applyOpts 汇总可选参数。
func applyOpts(opts []OpOption) *opSettings {
	s := &opSettings{}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// fromWireHeader 转换响应头。
func fromWireHeader(h wireHeader) Header {
	return Header{
		ClusterID: h.ClusterID,
		MemberID:  h.MemberID,
		Revision:  h.Revision,
		RaftTerm:  h.RaftTerm,
	}
}

// fillRangeOptions 把可选参数映射到范围请求。
func fillRangeOptions(req *wireRangeRequest, s *opSettings) {
	req.Limit = s.limit
	req.Revision = s.revision
	req.SortOrder = string(s.sortOrder)
	req.SortTarget = string(s.sortTarget)
	req.Serializable = s.serializable
	req.KeysOnly = s.keysOnly
	req.CountOnly = s.countOnly
	req.MinModRevision = s.minModRev
	req.MaxModRevision = s.maxModRev
	req.MinCreateRevision = s.minCreateRev
	req.MaxCreateRevision = s.maxCreateRev
}

// Get 读取单个键。键不存在时返回空 KVs，不报错。
func (c *Client) Get(ctx context.Context, key string, opts ...OpOption) (*GetResponse, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}
	req := &wireRangeRequest{Key: c.codec.encodeKey(key)}
	fillRangeOptions(req, applyOpts(opts))
	return c.doRange(ctx, req)
}

// GetPrefix 读取所有以 prefix 开头的键。
func (c *Client) GetPrefix(ctx context.Context, prefix string, opts ...OpOption) (*GetResponse, error) {
	if prefix == "" {
		return nil, ErrEmptyKey
	}
	full := c.codec.fullKey(prefix)
	req := &wireRangeRequest{
		Key:      c.codec.encodeRawKey(full),
		RangeEnd: c.codec.encodeRawKey(prefixEnd(full)),
	}
	fillRangeOptions(req, applyOpts(opts))
	return c.doRange(ctx, req)
}

// GetRange 读取 [key, rangeEnd) 区间内的键。
func (c *Client) GetRange(ctx context.Context, key, rangeEnd string, opts ...OpOption) (*GetResponse, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}
	req := &wireRangeRequest{
		Key:      c.codec.encodeKey(key),
		RangeEnd: c.codec.encodeKey(rangeEnd),
	}
	fillRangeOptions(req, applyOpts(opts))
	return c.doRange(ctx, req)
}

// doRange 发送范围请求并解码。
func (c *Client) doRange(ctx context.Context, req *wireRangeRequest) (*GetResponse, error) {
	var wire wireRangeResponse
	if err := c.do(ctx, &request{method: http.MethodPost, path: pathRange, body: req, auth: true}, &wire); err != nil {
		return nil, err
	}
	// KeysOnly 响应的 value 字段缺失，跳过值反序列化。
	kvs, err := c.codec.decodeKVs(wire.KVs, !req.KeysOnly)
	if err != nil {
		return nil, err
	}
	return &GetResponse{
		Header: fromWireHeader(wire.Header),
		KVs:    kvs,
		More:   wire.More,
		Count:  wire.Count,
	}, nil
}

// Put 写入键值对。
func (c *Client) Put(ctx context.Context, key string, value any, opts ...OpOption) (*PutResponse, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}
	s := applyOpts(opts)
	req := &wirePutRequest{
		Key:         c.codec.encodeKey(key),
		Lease:       s.lease,
		PrevKV:      s.prevKV,
		IgnoreValue: s.ignoreValue,
		IgnoreLease: s.ignoreLease,
	}
	if !s.ignoreValue {
		encoded, err := c.codec.encodeValue(value)
		if err != nil {
			return nil, err
		}
		req.Value = encoded
	}

	var wire wirePutResponse
	if err := c.do(ctx, &request{method: http.MethodPost, path: pathPut, body: req, auth: true}, &wire); err != nil {
		return nil, err
	}
	out := &PutResponse{Header: fromWireHeader(wire.Header)}
	if wire.PrevKV != nil {
		kv, err := c.codec.decodeKV(wire.PrevKV, true)
		if err != nil {
			return nil, err
		}
		out.PrevKV = &kv
	}
	return out, nil
}

// Delete 删除单个键。
func (c *Client) Delete(ctx context.Context, key string, opts ...OpOption) (*DeleteResponse, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}
	s := applyOpts(opts)
	return c.doDeleteRange(ctx, &wireDeleteRangeRequest{
		Key:    c.codec.encodeKey(key),
		PrevKV: s.prevKV,
	})
}

// DeletePrefix 删除所有以 prefix 开头的键。
func (c *Client) DeletePrefix(ctx context.Context, prefix string, opts ...OpOption) (*DeleteResponse, error) {
	if prefix == "" {
		return nil, ErrEmptyKey
	}
	s := applyOpts(opts)
	full := c.codec.fullKey(prefix)
	return c.doDeleteRange(ctx, &wireDeleteRangeRequest{
		Key:      c.codec.encodeRawKey(full),
		RangeEnd: c.codec.encodeRawKey(prefixEnd(full)),
		PrevKV:   s.prevKV,
	})
}

// DeleteRange 删除 [key, rangeEnd) 区间内的键。
func (c *Client) DeleteRange(ctx context.Context, key, rangeEnd string, opts ...OpOption) (*DeleteResponse, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}
	s := applyOpts(opts)
	return c.doDeleteRange(ctx, &wireDeleteRangeRequest{
		Key:      c.codec.encodeKey(key),
		RangeEnd: c.codec.encodeKey(rangeEnd),
		PrevKV:   s.prevKV,
	})
}

// doDeleteRange 发送删除请求并解码。
func (c *Client) doDeleteRange(ctx context.Context, req *wireDeleteRangeRequest) (*DeleteResponse, error) {
	var wire wireDeleteRangeResponse
	if err := c.do(ctx, &request{method: http.MethodPost, path: pathDeleteRange, body: req, auth: true}, &wire); err != nil {
		return nil, err
	}
	prevKVs, err := c.codec.decodeKVs(wire.PrevKVs, true)
	if err != nil {
		return nil, err
	}
	return &DeleteResponse{
		Header:  fromWireHeader(wire.Header),
		Deleted: wire.Deleted,
		PrevKVs: prevKVs,
	}, nil
}
