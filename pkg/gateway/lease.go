package gateway

import (
	"context"
	"fmt"
	"net/http"
)

// 租约接口路径。revoke 与 timetolive 挂在 /kv 命名空间下，
// 与 grant/keepalive/leases 不同，这是网关侧的既定路由。
const (
	pathLeaseGrant      = "/lease/grant"
	pathLeaseRevoke     = "/kv/lease/revoke"
	pathLeaseKeepAlive  = "/lease/keepalive"
	pathLeaseTimeToLive = "/kv/lease/timetolive"
	pathLeaseLeases     = "/lease/leases"
)

// LeaseGrantResponse 租约创建结果。
type LeaseGrantResponse struct {
	Header Header
	ID     int64
	TTL    int64
}

// LeaseKeepAliveResponse 租约续期结果。
type LeaseKeepAliveResponse struct {
	Header Header
	ID     int64
	TTL    int64
}

// LeaseTimeToLiveResponse 租约剩余时间查询结果。
// TTL 为 -1 表示租约已过期或不存在。
type LeaseTimeToLiveResponse struct {
	Header     Header
	ID         int64
	TTL        int64
	GrantedTTL int64
	Keys       []string
}

// LeasesResponse 存活租约列表。
type LeasesResponse struct {
	Header Header
	IDs    []int64
}

// LeaseGrant 创建租约。ttl 单位为秒，传 0 使用配置的默认 TTL；
// id 传 0 由服务端分配。
func (c *Client) LeaseGrant(ctx context.Context, ttl int64, id int64) (*LeaseGrantResponse, error) {
	if ttl <= 0 {
		ttl = c.cfg.LeaseTTL
	}
	var wire wireLeaseGrantResponse
	req := &wireLeaseGrantRequest{TTL: ttl, ID: id}
	if err := c.do(ctx, &request{method: http.MethodPost, path: pathLeaseGrant, body: req, auth: true}, &wire); err != nil {
		return nil, err
	}
	// 网关对部分租约错误（如 ID 冲突）返回 200 + error 字段。
	if wire.Error != "" {
		return nil, fmt.Errorf("gateway: lease grant: %s", wire.Error)
	}
	return &LeaseGrantResponse{
		Header: fromWireHeader(wire.Header),
		ID:     wire.ID,
		TTL:    wire.TTL,
	}, nil
}

// LeaseRevoke 撤销租约，绑定的键立即删除。
func (c *Client) LeaseRevoke(ctx context.Context, id int64) (Header, error) {
	var wire wireLeaseRevokeResponse
	req := &wireLeaseRevokeRequest{ID: id}
	if err := c.do(ctx, &request{method: http.MethodPost, path: pathLeaseRevoke, body: req, auth: true}, &wire); err != nil {
		return Header{}, err
	}
	return fromWireHeader(wire.Header), nil
}

// LeaseKeepAlive 续期一次租约。
// 网关的 keepalive 是流式端点，单次请求返回一条 result 包裹记录；
// 周期续期由调用方按返回 TTL 自行调度。
func (c *Client) LeaseKeepAlive(ctx context.Context, id int64) (*LeaseKeepAliveResponse, error) {
	var wire wireLeaseKeepAliveResult
	req := &wireLeaseKeepAliveRequest{ID: id}
	if err := c.do(ctx, &request{method: http.MethodPost, path: pathLeaseKeepAlive, body: req, auth: true}, &wire); err != nil {
		return nil, err
	}
	return &LeaseKeepAliveResponse{
		Header: fromWireHeader(wire.Result.Header),
		ID:     wire.Result.ID,
		TTL:    wire.Result.TTL,
	}, nil
}

// LeaseTimeToLive 查询租约剩余时间。withKeys 为 true 时一并返回
// 绑定的键列表（剥离公共前缀后的应用层键名）。
func (c *Client) LeaseTimeToLive(ctx context.Context, id int64, withKeys bool) (*LeaseTimeToLiveResponse, error) {
	var wire wireLeaseTimeToLiveResponse
	req := &wireLeaseTimeToLiveRequest{ID: id, Keys: withKeys}
	if err := c.do(ctx, &request{method: http.MethodPost, path: pathLeaseTimeToLive, body: req, auth: true}, &wire); err != nil {
		return nil, err
	}
	out := &LeaseTimeToLiveResponse{
		Header:     fromWireHeader(wire.Header),
		ID:         wire.ID,
		TTL:        wire.TTL,
		GrantedTTL: wire.GrantedTTL,
	}
	for _, encoded := range wire.Keys {
		key, err := c.codec.decodeKey(encoded)
		if err != nil {
			return nil, err
		}
		out.Keys = append(out.Keys, key)
	}
	return out, nil
}

// Leases 列出所有存活租约。
func (c *Client) Leases(ctx context.Context) (*LeasesResponse, error) {
	var wire wireLeasesResponse
	if err := c.do(ctx, &request{method: http.MethodPost, path: pathLeaseLeases, body: struct{}{}, auth: true}, &wire); err != nil {
		return nil, err
	}
	out := &LeasesResponse{Header: fromWireHeader(wire.Header)}
	for _, lease := range wire.Leases {
		out.IDs = append(out.IDs, lease.ID)
	}
	return out, nil
}
