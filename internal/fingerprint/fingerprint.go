// 包 fingerprint 根据 HTML 信号识别站点生成器、主题与评论系统，不执行脚本。
package fingerprint

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"indie-blog-circles/internal/page"
)

// Result 为一次指纹识别的结果；未识别的字段为空串。
type Result struct {
	SSG           string
	Theme         string
	CommentSystem string
	Confidence    float64  // 生成器命中规则的置信度
	Signals       []string // 命中的信号，形如 "ssg:meta:hexo"
}

// Fingerprint 解析 HTML 后识别。
func Fingerprint(html string) Result {
	return Detect(page.Parse(html, ""))
}

// Detect 在已解析的页面上识别。
func Detect(p *page.Page) Result {
	in := collect(p)
	var res Result

	best := 0.0
	var bestKind Kind
	for _, g := range generators {
		for _, ru := range g.rules {
			// 严格大于：置信度相同时保留先声明者
			if ru.conf > best && in.match(ru) != "" {
				best, bestKind, res.SSG = ru.conf, ru.kind, g.name
			}
		}
	}
	if res.SSG != "" {
		res.Confidence = best
		res.Signals = append(res.Signals, "ssg:"+string(bestKind)+":"+res.SSG)
		res.Theme, res.Signals = detectTheme(in, res.SSG, res.Signals)
	}

	res.CommentSystem = detectComments(p.Raw)
	if res.CommentSystem != "" {
		res.Signals = append(res.Signals, "comment:"+res.CommentSystem)
	}
	return res
}

func detectTheme(in inputs, ssg string, signals []string) (string, []string) {
	var theme string
	themeBest := 0.0
	var themeKind Kind
	candidates := append(append([]themeRule{}, themes[ssg]...), genericThemes...)
	for _, tr := range candidates {
		if tr.conf <= themeBest {
			continue
		}
		for _, m := range in.matchAll(tr.rule) {
			name := tr.theme
			if name == "" {
				name = strings.ToLower(m)
			}
			if themeStopwords[name] {
				continue
			}
			themeBest, themeKind, theme = tr.conf, tr.kind, name
			break
		}
	}
	if theme != "" {
		signals = append(signals, "theme:"+string(themeKind)+":"+theme)
	}
	return theme, signals
}

func detectComments(raw string) string {
	for _, cs := range commentSystems {
		if cs.re.MatchString(raw) {
			return cs.name
		}
	}
	return ""
}

// inputs 为从页面一次性收集的各类信号文本。
type inputs struct {
	generator string
	comments  []string
	paths     []string
	scripts   []string
	markup    []string
}

func collect(p *page.Page) inputs {
	in := inputs{
		generator: p.MetaContent("generator"),
		comments:  p.Comments(),
		scripts:   p.Attrs("script[src]", "src"),
	}
	in.paths = append(in.paths, p.Attrs("link[href]", "href")...)
	in.paths = append(in.paths, in.scripts...)
	in.paths = append(in.paths, p.Attrs("img[src]", "src")...)
	in.paths = append(in.paths, p.Attrs("a[href]", "href")...)

	p.Doc.Find("*").Each(func(_ int, s *goquery.Selection) {
		if class, ok := s.Attr("class"); ok {
			in.markup = append(in.markup, strings.Fields(class)...)
		}
		if id, ok := s.Attr("id"); ok && id != "" {
			in.markup = append(in.markup, id)
		}
		if name := goquery.NodeName(s); strings.Contains(name, "-") {
			in.markup = append(in.markup, name)
		}
	})
	return in
}

// match 返回第一个命中；规则带分组时取第一个分组。
func (in inputs) match(ru rule) string {
	if all := in.matchAll(ru); len(all) > 0 {
		return all[0]
	}
	return ""
}

func (in inputs) matchAll(ru rule) []string {
	var pool []string
	switch ru.kind {
	case KindMeta:
		if in.generator != "" {
			pool = []string{in.generator}
		}
	case KindComment:
		pool = in.comments
	case KindPath:
		pool = in.paths
	case KindScript:
		pool = in.scripts
	case KindClass:
		pool = in.markup
	}
	var out []string
	for _, s := range pool {
		m := ru.re.FindStringSubmatch(s)
		if m == nil {
			continue
		}
		if len(m) > 1 && m[1] != "" {
			out = append(out, m[1])
		} else if m[0] != "" {
			out = append(out, m[0])
		}
	}
	return out
}
