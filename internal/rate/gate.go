package rate

import (
	"context"
	"sync"
	"time"

	xrate "golang.org/x/time/rate"

	"sfebot/pkg/contract"
)

// LimitKey: 限流分组键（站点 + 请求类别）。
type LimitKey string

// Limits: 每分组的限额配置。RPM=0 表示该分组不限速。
type Limits struct {
	RPM   int // requests per minute
	Burst int // 允许的突发请求数，<=0 时取 1
}

// Ask: 一次放行申请。
type Ask struct {
	Key      LimitKey
	Requests int // 必须 >=1
}

// Gate: 限流闸门（并发安全）。
type Gate interface {
	// Wait: 阻塞直到额度可用或 ctx 取消。
	Wait(ctx context.Context, a Ask) error
	// Try: 非阻塞尝试；不足时返回 false。
	Try(a Ask) bool
}

// Snapshoter: 可选诊断接口。
type Snapshoter interface {
	Snapshot(key LimitKey) (avail int)
}

// NewGate: 从静态配置构造闸门；clk 为空则使用 time.Now。
func NewGate(m map[LimitKey]Limits, clk func() time.Time) Gate {
	if clk == nil {
		clk = time.Now
	}
	g := &gate{clk: clk, m: make(map[LimitKey]*entry, len(m))}
	for k, lim := range m {
		g.m[k] = newEntry(lim)
	}
	return g
}

type gate struct {
	clk func() time.Time
	mu  sync.Mutex
	m   map[LimitKey]*entry
}

type entry struct {
	lim Limits
	l   *xrate.Limiter // nil 表示不限速
}

func newEntry(lim Limits) *entry {
	e := &entry{lim: lim}
	if lim.RPM > 0 {
		burst := lim.Burst
		if burst <= 0 {
			burst = 1
		}
		e.l = xrate.NewLimiter(xrate.Every(time.Minute/time.Duration(lim.RPM)), burst)
	}
	return e
}

func (g *gate) get(key LimitKey) *entry {
	g.mu.Lock()
	defer g.mu.Unlock()
	e := g.m[key]
	if e == nil {
		// 未配置的 key 视为不限额
		e = newEntry(Limits{})
		g.m[key] = e
	}
	return e
}

func (g *gate) Try(a Ask) bool {
	if a.Requests <= 0 {
		return false
	}
	e := g.get(a.Key)
	if e.l == nil {
		return true
	}
	return e.l.AllowN(g.clk(), a.Requests)
}

func (g *gate) Wait(ctx context.Context, a Ask) error {
	if a.Requests <= 0 {
		return contract.ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	e := g.get(a.Key)
	if e.l == nil {
		return nil
	}
	now := g.clk()
	r := e.l.ReserveN(now, a.Requests)
	if !r.OK() {
		// 超过突发上限，永远无法满足
		return contract.ErrInvalidInput
	}
	if err := sleepCtx(ctx, r.DelayFrom(now)); err != nil {
		r.CancelAt(g.clk())
		return err
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Snapshot: 返回当前可用请求数的向下取整估值（仅诊断）；不限速的分组返回 -1。
func (g *gate) Snapshot(key LimitKey) (avail int) {
	e := g.get(key)
	if e.l == nil {
		return -1
	}
	v := e.l.TokensAt(g.clk())
	if v < 0 {
		return 0
	}
	return int(v)
}

var _ Gate = (*gate)(nil)
var _ Snapshoter = (*gate)(nil)
