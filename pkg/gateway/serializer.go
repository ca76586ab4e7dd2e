package gateway

import (
	"encoding/json"
	"fmt"
)

// Serializer 值序列化接口。
// 所有写入网关的值先经 Serialize 转为字节，再做 base64 线上编码；
// 读取方向对称。实现必须是并发安全的。
type Serializer interface {
	// Serialize 将逻辑值编码为字节。
	Serialize(value any) ([]byte, error)

	// Deserialize 将字节解码为逻辑值。
	Deserialize(data []byte) (any, error)
}

// RawSerializer 透传序列化器：值按原始字节/字符串处理。
// 这是默认序列化器，与 etcdctl 的行为一致。
type RawSerializer struct{}

// Serialize 仅接受 string、[]byte 与 nil。
// 其他类型返回错误，避免 fmt.Sprintf 之类的隐式转换悄悄破坏数据。
func (RawSerializer) Serialize(value any) ([]byte, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case string:
		return []byte(v), nil
	case []byte:
		return v, nil
	default:
		return nil, fmt.Errorf("gateway: raw serializer requires string or []byte, got %T", value)
	}
}

// Deserialize 返回字符串形式的原始字节。
// 设计决策: 返回 string 而非 []byte，因为解码后的值会与键一起
// 出现在比较、日志等场景，字符串是 Go 中更自然的只读形式。
func (RawSerializer) Deserialize(data []byte) (any, error) {
	return string(data), nil
}

// JSONSerializer 结构化序列化器：值按 JSON 编解码。
// 适用于存储结构化配置的场景；Deserialize 返回 json.Unmarshal
// 的默认类型（map[string]any、[]any、float64 等）。
type JSONSerializer struct{}

// Serialize 将值编码为 JSON 字节。
func (JSONSerializer) Serialize(value any) ([]byte, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("gateway: json serialize: %w", err)
	}
	return data, nil
}

// Deserialize 将 JSON 字节解码为值。
func (JSONSerializer) Deserialize(data []byte) (any, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("gateway: json deserialize: %w", err)
	}
	return v, nil
}

// 编译时接口检查
var (
	_ Serializer = RawSerializer{}
	_ Serializer = JSONSerializer{}
)
