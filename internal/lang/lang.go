// 包 lang 提供语言识别：站点级依据 <html lang>，缺省时与文章级一样按字符分布估计。
// 结果均为 BCP 47 基础语言代码（zh/ja/ko/en …）。
package lang

import (
	"strings"
	"unicode"

	"golang.org/x/text/language"

	"indie-blog-circles/internal/page"
)

// Detector 为语言识别接口，便于替换为更精确的实现。
type Detector interface {
	// Site 返回站点语言标签，无法判断时返回 nil
	Site(p *page.Page) []string
	// Text 返回一段文本的语言，无法判断时返回空串
	Text(s string) string
}

// 判定阈值。
const (
	minLetters   = 20
	kanaRatio    = 0.05
	hangulRatio  = 0.2
	hanRatio     = 0.2
	latinRatio   = 0.6
	maxTextRunes = 4000
)

// Heuristic 为基于 Unicode 脚本分布的启发式实现，零值可用。
type Heuristic struct{}

var _ Detector = Heuristic{}

// Site 优先使用 <html lang>，否则按页面可见文本估计。
func (h Heuristic) Site(p *page.Page) []string {
	if code := Canonical(p.Lang()); code != "" {
		return []string{code}
	}
	if code := h.Text(p.Text()); code != "" {
		return []string{code}
	}
	return nil
}

// Text 统计汉字/假名/谚文/拉丁字母占比；字母过少时放弃判断。
func (Heuristic) Text(s string) string {
	var han, kana, hangul, latin, total int
	n := 0
	for _, r := range s {
		if n >= maxTextRunes {
			break
		}
		n++
		switch {
		case unicode.Is(unicode.Hiragana, r), unicode.Is(unicode.Katakana, r):
			kana++
		case unicode.Is(unicode.Hangul, r):
			hangul++
		case unicode.Is(unicode.Han, r):
			han++
		case unicode.Is(unicode.Latin, r):
			latin++
		case unicode.IsLetter(r):
		default:
			continue
		}
		total++
	}
	if total < minLetters {
		return ""
	}
	ratio := func(v int) float64 { return float64(v) / float64(total) }
	switch {
	// 日文混用汉字，少量假名即可判定
	case ratio(kana) >= kanaRatio:
		return "ja"
	case ratio(hangul) >= hangulRatio:
		return "ko"
	case ratio(han) >= hanRatio:
		return "zh"
	case ratio(latin) >= latinRatio:
		return "en"
	}
	return ""
}

// Canonical 将语言标签规范为基础语言代码；无法解析或为 und 时返回空串。
func Canonical(tag string) string {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return ""
	}
	t, err := language.Parse(tag)
	if err != nil || t == language.Und {
		return ""
	}
	base, conf := t.Base()
	if conf == language.No || base.String() == "und" {
		return ""
	}
	return base.String()
}

// Merge 合并语言标签，保持首次出现的顺序并去重。
func Merge(lists ...[]string) []string {
	seen := map[string]bool{}
	var out []string
	for _, l := range lists {
		for _, v := range l {
			if v != "" && !seen[v] {
				seen[v] = true
				out = append(out, v)
			}
		}
	}
	return out
}
