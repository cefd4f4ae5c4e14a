package wikitext

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

var leadingNumberRe = regexp.MustCompile(`^[+-]?(?:\d+(?:\.\d*)?|\.\d+)(?:[eE][+-]?\d+)?`)

// ParseScore 取分值文本开头的十进制数。无前导数字或结果非有限值时返回 (0,false)。
// "1.5分" 记 1.5，"待定" 记 0。
func ParseScore(s string) (float64, bool) {
	t := strings.TrimSpace(s)
	m := leadingNumberRe.FindString(t)
	if m == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// RoundTo 四舍五入（0.5 向正无穷）到 places 位小数。
func RoundTo(v float64, places int) float64 {
	p := math.Pow10(places)
	return math.Floor(v*p+0.5) / p
}

// FormatNumber 以最短十进制形式输出。
func FormatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// FormatScore 先保留 4 位小数再以最短形式输出：12.34567 → "12.3457"，3 → "3"。
func FormatScore(v float64) string {
	return FormatNumber(RoundTo(v, 4))
}
