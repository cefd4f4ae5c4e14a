package wikitext

// Outcome 是每个变换随文本一起返回的结果信号。
type Outcome int

const (
	// Unchanged 定位成功但内容已是目标值。
	Unchanged Outcome = iota
	// Changed 文本已更新。
	Changed
	// Absent 所需结构未找到，输入原样返回。
	Absent
)

func (o Outcome) String() string {
	switch o {
	case Changed:
		return "changed"
	case Absent:
		return "absent"
	default:
		return "unchanged"
	}
}
