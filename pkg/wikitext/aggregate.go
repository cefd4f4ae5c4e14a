package wikitext

// AggregateResult 汇总结果。
type AggregateResult struct {
	EntryCount int             `json:"entry_count" yaml:"entry_count"`
	TotalScore float64         `json:"total_score" yaml:"total_score"`
	Items      []TemplateMatch `json:"items" yaml:"items"`
}

// UpdatedItem 是一条针对已提取模板的修改。
// 通过 (LineNumber, TemplateIndex) 定位；OriginalTemplate 非空时改写前会核对。
type UpdatedItem struct {
	TemplateMatch
	NewScore  Field
	NewStatus Field
	NewRemark Field
}

// Key 返回定位键。
func (m TemplateMatch) Key() ItemKey { return ItemKey{Line: m.LineNumber, Index: m.TemplateIndex} }

// ItemKey 行号与行内序号。
type ItemKey struct {
	Line  int
	Index int
}

// Aggregate 计数并累加各条目的有效分值。
func Aggregate(items []TemplateMatch) AggregateResult {
	res := AggregateResult{EntryCount: len(items), Items: items}
	for _, it := range items {
		v, _ := ParseScore(it.Score)
		res.TotalScore += v
	}
	return res
}

// Recompute 应用修改后重新汇总。未被修改的条目按原分值计入；
// 被修改的条目按三态取值：Set 解析新值，Clear 记 0，Keep 取原值。
// 返回的 Items 反映修改后的状态与分值。
func Recompute(items []TemplateMatch, updates []UpdatedItem) AggregateResult {
	byKey := make(map[ItemKey]UpdatedItem, len(updates))
	for _, u := range updates {
		byKey[u.Key()] = u
	}
	out := make([]TemplateMatch, len(items))
	res := AggregateResult{EntryCount: len(items), Items: out}
	for i, it := range items {
		cur := it
		if u, ok := byKey[it.Key()]; ok {
			cur.Score = u.NewScore.Resolve(it.Score)
			cur.Status = u.NewStatus.Resolve(it.Status)
			if !u.NewRemark.IsKeep() {
				cur.Remark = formattedRemarkText(u.NewRemark.Value())
			}
		}
		out[i] = cur
		v, _ := ParseScore(cur.Score)
		res.TotalScore += v
	}
	return res
}

func formattedRemarkText(v string) string {
	return RemarkText(FormatRemark(v))
}
