package wikitext

import "fmt"

type fieldOp uint8

const (
	opKeep fieldOp = iota
	opClear
	opSet
)

// Field 是三态更新字段：保留 / 清空 / 设为某值。零值为 Keep。
type Field struct {
	op    fieldOp
	value string
}

// Keep 保留原值。
func Keep() Field { return Field{} }

// Clear 清空原值。
func Clear() Field { return Field{op: opClear} }

// Set 替换为 v（v 可以为空串，与 Clear 区分）。
func Set(v string) Field { return Field{op: opSet, value: v} }

func (f Field) IsKeep() bool  { return f.op == opKeep }
func (f Field) IsClear() bool { return f.op == opClear }
func (f Field) IsSet() bool   { return f.op == opSet }

// Value 返回 Set 的值；其它状态返回空串。
func (f Field) Value() string {
	if f.op == opSet {
		return f.value
	}
	return ""
}

// Resolve 根据三态计算最终值。
func (f Field) Resolve(original string) string {
	switch f.op {
	case opSet:
		return f.value
	case opClear:
		return ""
	default:
		return original
	}
}

func (f Field) String() string {
	switch f.op {
	case opSet:
		return fmt.Sprintf("set(%q)", f.value)
	case opClear:
		return "clear"
	default:
		return "keep"
	}
}
