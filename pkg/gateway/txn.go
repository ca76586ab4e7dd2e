package gateway

import (
	"context"
	"fmt"
	"net/http"
)

// pathTxn 事务接口路径。
const pathTxn = "/kv/txn"

// CompareResult 比较谓词的判定方向。
type CompareResult string

// 判定方向取值。
const (
	CompareEqual    CompareResult = "EQUAL"
	CompareGreater  CompareResult = "GREATER"
	CompareLess     CompareResult = "LESS"
	CompareNotEqual CompareResult = "NOT_EQUAL"
)

// Cmp 一条事务比较谓词。经 CmpValue 等构造函数创建，
// 键前缀与值序列化在 Commit 时由客户端编解码器统一处理。
type Cmp struct {
	target string
	result CompareResult
	key    string
	value  any
	intVal int64
}

// CmpValue 比较键的当前值。
func CmpValue(key string, result CompareResult, value any) Cmp {
	return Cmp{target: "VALUE", result: result, key: key, value: value}
}

// CmpVersion 比较键的版本号。Version 为 0 可用于"键不存在"判定。
func CmpVersion(key string, result CompareResult, version int64) Cmp {
	return Cmp{target: "VERSION", result: result, key: key, intVal: version}
}

// CmpCreateRevision 比较键的创建 revision。
func CmpCreateRevision(key string, result CompareResult, rev int64) Cmp {
	return Cmp{target: "CREATE", result: result, key: key, intVal: rev}
}

// CmpModRevision 比较键的修改 revision。
func CmpModRevision(key string, result CompareResult, rev int64) Cmp {
	return Cmp{target: "MOD", result: result, key: key, intVal: rev}
}

// CmpLease 比较键绑定的租约 ID。
func CmpLease(key string, result CompareResult, lease int64) Cmp {
	return Cmp{target: "LEASE", result: result, key: key, intVal: lease}
}

// opKind 事务分支操作类型。
type opKind int

const (
	opGet opKind = iota
	opPut
	opDelete
)

// Op 一个事务分支操作，经 OpGet/OpPut/OpDelete 构造。
type Op struct {
	kind     opKind
	key      string
	rangeEnd string
	prefix   bool
	value    any
	opts     []OpOption
}

// OpGet 构造范围读取操作。
func OpGet(key string, opts ...OpOption) Op {
	return Op{kind: opGet, key: key, opts: opts}
}

// OpGetPrefix 构造前缀读取操作。
func OpGetPrefix(prefix string, opts ...OpOption) Op {
	return Op{kind: opGet, key: prefix, prefix: true, opts: opts}
}

// OpGetRange 构造区间读取操作。
func OpGetRange(key, rangeEnd string, opts ...OpOption) Op {
	return Op{kind: opGet, key: key, rangeEnd: rangeEnd, opts: opts}
}

// OpPut 构造写入操作。
func OpPut(key string, value any, opts ...OpOption) Op {
	return Op{kind: opPut, key: key, value: value, opts: opts}
}

// OpDelete 构造删除操作。
func OpDelete(key string, opts ...OpOption) Op {
	return Op{kind: opDelete, key: key, opts: opts}
}

// OpDeletePrefix 构造前缀删除操作。
func OpDeletePrefix(prefix string, opts ...OpOption) Op {
	return Op{kind: opDelete, key: prefix, prefix: true, opts: opts}
}

// OpResponse 单个事务分支的响应，三个字段有且仅有一个非 nil，
// 与对应分支的操作类型一致。
type OpResponse struct {
	Get    *GetResponse
	Put    *PutResponse
	Delete *DeleteResponse
}

// TxnResponse 事务提交结果。
// Succeeded 为 true 时 Responses 对应 Then 分支，否则对应 Else 分支。
type TxnResponse struct {
	Header    Header
	Succeeded bool
	Responses []OpResponse
}

// Txn 原子事务构造器，If/Then/Else 依次声明后 Commit 提交。
// 构造器非并发安全，单次使用后废弃。
type Txn struct {
	c       *Client
	cmps    []Cmp
	thenOps []Op
	elseOps []Op
}

// Txn 开启一个事务构造器。
func (c *Client) Txn() *Txn {
	return &Txn{c: c}
}

// If 声明比较谓词，全部成立时执行 Then 分支。
func (t *Txn) If(cmps ...Cmp) *Txn {
	t.cmps = append(t.cmps, cmps...)
	return t
}

// Then 声明谓词成立时执行的操作。
func (t *Txn) Then(ops ...Op) *Txn {
	t.thenOps = append(t.thenOps, ops...)
	return t
}

// Else 声明谓词不成立时执行的操作。
func (t *Txn) Else(ops ...Op) *Txn {
	t.elseOps = append(t.elseOps, ops...)
	return t
}

// Commit 提交事务。
// 未声明任何比较谓词时返回 ErrEmptyCompare——无条件批量
// 操作应显式写出谓词（如 CmpVersion(key, CompareGreater, -1)），
// 避免误把半成品事务发往网关。
func (t *Txn) Commit(ctx context.Context) (*TxnResponse, error) {
	if len(t.cmps) == 0 {
		return nil, ErrEmptyCompare
	}

	req := &wireTxnRequest{}
	for _, cmp := range t.cmps {
		wc, err := t.c.encodeCmp(cmp)
		if err != nil {
			return nil, err
		}
		req.Compare = append(req.Compare, wc)
	}
	for _, op := range t.thenOps {
		wo, err := t.c.encodeOp(op)
		if err != nil {
			return nil, err
		}
		req.Success = append(req.Success, wo)
	}
	for _, op := range t.elseOps {
		wo, err := t.c.encodeOp(op)
		if err != nil {
			return nil, err
		}
		req.Failure = append(req.Failure, wo)
	}

	var wire wireTxnResponse
	if err := t.c.do(ctx, &request{method: http.MethodPost, path: pathTxn, body: req, auth: true}, &wire); err != nil {
		return nil, err
	}
	return t.c.decodeTxnResponse(&wire)
}

// encodeCmp 把比较谓词编码为线上形式。
func (c *Client) encodeCmp(cmp Cmp) (wireCompare, error) {
	if cmp.key == "" {
		return wireCompare{}, ErrEmptyKey
	}
	wc := wireCompare{
		Result: string(cmp.result),
		Target: cmp.target,
		Key:    c.codec.encodeKey(cmp.key),
	}
	switch cmp.target {
	case "VALUE":
		encoded, err := c.codec.encodeValue(cmp.value)
		if err != nil {
			return wireCompare{}, err
		}
		wc.Value = encoded
	case "VERSION":
		wc.Version = cmp.intVal
	case "CREATE":
		wc.CreateRevision = cmp.intVal
	case "MOD":
		wc.ModRevision = cmp.intVal
	case "LEASE":
		wc.Lease = cmp.intVal
	}
	return wc, nil
}

// encodeOp 把分支操作编码为线上形式。
func (c *Client) encodeOp(op Op) (wireRequestOp, error) {
	if op.key == "" {
		return wireRequestOp{}, ErrEmptyKey
	}
	s := applyOpts(op.opts)

	key := c.codec.encodeKey(op.key)
	rangeEnd := ""
	if op.prefix {
		full := c.codec.fullKey(op.key)
		key = c.codec.encodeRawKey(full)
		rangeEnd = c.codec.encodeRawKey(prefixEnd(full))
	} else if op.rangeEnd != "" {
		rangeEnd = c.codec.encodeKey(op.rangeEnd)
	}

	switch op.kind {
	case opGet:
		rr := &wireRangeRequest{Key: key, RangeEnd: rangeEnd}
		fillRangeOptions(rr, s)
		return wireRequestOp{RequestRange: rr}, nil
	case opPut:
		pr := &wirePutRequest{
			Key:         key,
			Lease:       s.lease,
			PrevKV:      s.prevKV,
			IgnoreValue: s.ignoreValue,
			IgnoreLease: s.ignoreLease,
		}
		if !s.ignoreValue {
			encoded, err := c.codec.encodeValue(op.value)
			if err != nil {
				return wireRequestOp{}, err
			}
			pr.Value = encoded
		}
		return wireRequestOp{RequestPut: pr}, nil
	case opDelete:
		return wireRequestOp{RequestDeleteRange: &wireDeleteRangeRequest{
			Key:      key,
			RangeEnd: rangeEnd,
			PrevKV:   s.prevKV,
		}}, nil
	default:
		return wireRequestOp{}, fmt.Errorf("gateway: unknown txn op kind %d", op.kind)
	}
}

// decodeTxnResponse 解码事务响应，按分支类型还原各操作结果。
func (c *Client) decodeTxnResponse(wire *wireTxnResponse) (*TxnResponse, error) {
	out := &TxnResponse{
		Header:    fromWireHeader(wire.Header),
		Succeeded: wire.Succeeded,
	}
	for i := range wire.Responses {
		resp := &wire.Responses[i]
		var op OpResponse
		switch {
		case resp.ResponseRange != nil:
			kvs, err := c.codec.decodeKVs(resp.ResponseRange.KVs, true)
			if err != nil {
				return nil, err
			}
			op.Get = &GetResponse{
				Header: fromWireHeader(resp.ResponseRange.Header),
				KVs:    kvs,
				More:   resp.ResponseRange.More,
				Count:  resp.ResponseRange.Count,
			}
		case resp.ResponsePut != nil:
			op.Put = &PutResponse{Header: fromWireHeader(resp.ResponsePut.Header)}
			if resp.ResponsePut.PrevKV != nil {
				kv, err := c.codec.decodeKV(resp.ResponsePut.PrevKV, true)
				if err != nil {
					return nil, err
				}
				op.Put.PrevKV = &kv
			}
		case resp.ResponseDeleteRange != nil:
			prevKVs, err := c.codec.decodeKVs(resp.ResponseDeleteRange.PrevKVs, true)
			if err != nil {
				return nil, err
			}
			op.Delete = &DeleteResponse{
				Header:  fromWireHeader(resp.ResponseDeleteRange.Header),
				Deleted: resp.ResponseDeleteRange.Deleted,
				PrevKVs: prevKVs,
			}
		}
		out.Responses = append(out.Responses, op)
	}
	return out, nil
}
