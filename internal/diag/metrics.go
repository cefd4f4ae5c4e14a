package diag

import (
	"sort"
	"sync"
)

// 进程内指标计数：
// - op_total{comp,stage,result}
// - error_total{comp,code}
// - op_duration_ms{comp,stage}（累计）
// 运行结束时由报告层读取快照。

type metricKey struct{ a, b, c string }

var (
	metricsMu sync.Mutex
	ops       = map[metricKey]int64{}
	errs      = map[metricKey]int64{}
	durs      = map[metricKey]int64{}
)

// IncOp 累加操作计数（result=success|error|skip）。
func IncOp(comp, stage, result string) {
	metricsMu.Lock()
	ops[metricKey{comp, stage, result}]++
	metricsMu.Unlock()
}

// IncError 按分类累加错误计数。
func IncError(comp, code string) {
	metricsMu.Lock()
	errs[metricKey{a: comp, b: code}]++
	metricsMu.Unlock()
}

// ObserveDuration 记录阶段耗时（毫秒）。
func ObserveDuration(comp, stage string, durMS int64) {
	metricsMu.Lock()
	durs[metricKey{a: comp, b: stage}] += durMS
	metricsMu.Unlock()
}

// Sample 是一条指标快照。
type Sample struct {
	Name   string
	Labels []string
	Value  int64
}

// Snapshot 返回按名称与标签排序的全部指标。
func Snapshot() []Sample {
	metricsMu.Lock()
	defer metricsMu.Unlock()
	out := make([]Sample, 0, len(ops)+len(errs)+len(durs))
	for k, v := range ops {
		out = append(out, Sample{Name: "op_total", Labels: []string{k.a, k.b, k.c}, Value: v})
	}
	for k, v := range errs {
		out = append(out, Sample{Name: "error_total", Labels: []string{k.a, k.b}, Value: v})
	}
	for k, v := range durs {
		out = append(out, Sample{Name: "op_duration_ms", Labels: []string{k.a, k.b}, Value: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		li, lj := out[i].Labels, out[j].Labels
		for n := 0; n < len(li) && n < len(lj); n++ {
			if li[n] != lj[n] {
				return li[n] < lj[n]
			}
		}
		return len(li) < len(lj)
	})
	return out
}

// ResetMetrics 清空计数（测试与多次运行之间使用）。
func ResetMetrics() {
	metricsMu.Lock()
	ops = map[metricKey]int64{}
	errs = map[metricKey]int64{}
	durs = map[metricKey]int64{}
	metricsMu.Unlock()
}
