package gateway

import (
	"crypto/rand"
	"encoding/binary"
	"sync/atomic"
)

// cursorBound 轮转游标的回绕上界。
// 游标只用于取模选择端点，回绕对选择结果无影响，
// 仅避免长生命周期进程中计数器无界增长。
const cursorBound = 1 << 30

// balancer 健康感知的轮转负载均衡器。
// 游标为共享可变状态，并发调用交错推进；近似公平即可，
// 不保证并发下的严格轮转顺序。
type balancer struct {
	endpoints []Endpoint
	health    *healthTracker
	cursor    atomic.Uint64
}

// newBalancer 创建负载均衡器。
// seed 为 nil 时随机化起始游标，避免多个进程启动后同时压向首个端点。
func newBalancer(endpoints []Endpoint, health *healthTracker, seed *uint64) *balancer {
	b := &balancer{
		endpoints: endpoints,
		health:    health,
	}
	if seed != nil {
		b.cursor.Store(*seed % cursorBound)
	} else {
		b.cursor.Store(randomCursor())
	}
	return b
}

// Choose 选出下一个健康端点。
// 从游标位置起按序检查每个候选，返回第一个健康者；
// 全部不健康时返回 ErrNoHealthyEndpoint（当前调用的终态，不在内部重试）。
func (b *balancer) Choose() (*Endpoint, error) {
	n := uint64(len(b.endpoints))
	start := b.advance()
	for i := uint64(0); i < n; i++ {
		ep := &b.endpoints[(start+i)%n]
		if b.health.IsHealthy(ep.Host) {
			return ep, nil
		}
	}
	return nil, ErrNoHealthyEndpoint
}

// advance 推进共享游标一格并返回推进前的位置。
// 超过上界时重置为零；CompareAndSwap 失败说明有并发调用已处理，直接继续。
func (b *balancer) advance() uint64 {
	cur := b.cursor.Add(1) - 1
	if cur >= cursorBound {
		b.cursor.CompareAndSwap(cur+1, 0)
		cur %= cursorBound
	}
	return cur
}

// randomCursor 生成随机起始游标。
// crypto/rand 失败时落回固定值零，仅影响起始位置的分散程度。
func randomCursor() uint64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0
	}
	return binary.LittleEndian.Uint64(buf[:]) % cursorBound
}
