package gateway

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// codec 键值编解码器。
// 负责三件事：键前缀的透明拼接/剥离、值的序列化、base64 线上编码。
// 不含并发状态，构造后只读。
type codec struct {
	prefix     string
	serializer Serializer
}

// encodeKey 将逻辑键编码为线上形式（前缀 + base64）。
func (c *codec) encodeKey(key string) string {
	return base64.StdEncoding.EncodeToString([]byte(c.prefix + key))
}

// fullKey 返回拼接公共前缀后的完整键。
func (c *codec) fullKey(key string) string {
	return c.prefix + key
}

// encodeRawKey 编码不经前缀的原始键（range_end 增量计算后使用）。
func (c *codec) encodeRawKey(key string) string {
	return base64.StdEncoding.EncodeToString([]byte(key))
}

// encodeValue 将逻辑值编码为线上形式（序列化 + base64）。
func (c *codec) encodeValue(value any) (string, error) {
	data, err := c.serializer.Serialize(value)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// decodeKey 解码线上键并剥离前缀。
// 前缀不匹配时原样返回——范围查询可能越出前缀命名空间，
// 剥离失败不应该让整个响应作废。
func (c *codec) decodeKey(encoded string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("gateway: decode key: %w", err)
	}
	key := string(raw)
	if c.prefix != "" && strings.HasPrefix(key, c.prefix) {
		key = key[len(c.prefix):]
	}
	return key, nil
}

// decodeValue 解码线上值（base64 + 反序列化）。
func (c *codec) decodeValue(encoded string) (any, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("gateway: decode value: %w", err)
	}
	return c.serializer.Deserialize(raw)
}

// decodeKV 将线上键值对解码为公开类型。
// hasValue 为 false 时（删除事件的 kv）不经过序列化器，值保持 nil。
func (c *codec) decodeKV(wire *wireKeyValue, hasValue bool) (KeyValue, error) {
	key, err := c.decodeKey(wire.Key)
	if err != nil {
		return KeyValue{}, err
	}
	kv := KeyValue{
		Key:            key,
		CreateRevision: wire.CreateRevision,
		ModRevision:    wire.ModRevision,
		Version:        wire.Version,
		Lease:          wire.Lease,
	}
	if hasValue {
		value, err := c.decodeValue(wire.Value)
		if err != nil {
			return KeyValue{}, err
		}
		kv.Value = value
	}
	return kv, nil
}

// decodeKVs 批量解码键值对。
func (c *codec) decodeKVs(wires []wireKeyValue, hasValue bool) ([]KeyValue, error) {
	if len(wires) == 0 {
		return nil, nil
	}
	kvs := make([]KeyValue, 0, len(wires))
	for i := range wires {
		kv, err := c.decodeKV(&wires[i], hasValue)
		if err != nil {
			return nil, err
		}
		kvs = append(kvs, kv)
	}
	return kvs, nil
}

// prefixEnd 计算前缀范围查询的 range_end：
// 前缀最后一个非 0xff 字节加一，其后截断。
// 全 0xff 的前缀退化为 "\x00"（etcd 协议中表示"键空间末尾"）。
func prefixEnd(prefix string) string {
	end := []byte(prefix)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return string(end[:i+1])
		}
	}
	return "\x00"
}
