// 包 friends 从页面抽取友链关系。抽取分三轮，严格按优先级执行：
//   - XFN rel 关系（按关系强弱 0.6~0.9）
//   - 微格式 following 关系（0.85）
//   - 启发式回退：主题预设选择器、友链容器、友链标题之后的链接（0.6）
//
// 高优先级轮次已收录的目标 URL 不会被低优先级轮次覆盖。
package friends

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"indie-blog-circles/internal/links"
	"indie-blog-circles/internal/model"
	"indie-blog-circles/internal/page"
	"indie-blog-circles/internal/rules"
)

// 各轮次的置信度。
const (
	ConfidenceFollowing = 0.85
	ConfidenceHeuristic = 0.6
)

// xfnConfidence 按关系强弱给出置信度；rel=me 不计入。
var xfnConfidence = map[string]float64{
	"friend":       0.9,
	"met":          0.85,
	"co-worker":    0.8,
	"colleague":    0.8,
	"co-resident":  0.8,
	"spouse":       0.8,
	"sibling":      0.8,
	"child":        0.8,
	"parent":       0.8,
	"kin":          0.8,
	"acquaintance": 0.7,
	"neighbor":     0.7,
	"muse":         0.7,
	"crush":        0.7,
	"date":         0.7,
	"sweetheart":   0.7,
	"contact":      0.6,
}

// Link 为一条抽取出的友链。URL 为目标站点首页（已规范化）。
type Link struct {
	URL        string
	Name       string
	Method     string
	Confidence float64
}

// Extractor 持有链接过滤规则与主题预设，可并发使用。
type Extractor struct {
	blocklist *links.Blocklist
	rules     *rules.Rules
}

// New 创建抽取器；bl 为 nil 时使用内置屏蔽名单，rs 可为 nil。
func New(bl *links.Blocklist, rs *rules.Rules) *Extractor {
	if bl == nil {
		bl = links.DefaultBlocklist()
	}
	return &Extractor{blocklist: bl, rules: rs}
}

// Extract 解析 HTML 后抽取。
func (e *Extractor) Extract(html, pageURL string) []Link {
	return e.ExtractPage(page.Parse(html, pageURL), "")
}

// ExtractPage 在已解析的页面上抽取；theme 用于选取 rules.yaml 中的预设。
func (e *Extractor) ExtractPage(p *page.Page, theme string) []Link {
	c := &collector{e: e, p: p, seen: map[string]bool{}}
	c.xfn()
	c.following()
	c.heuristic(theme)
	return c.out
}

type collector struct {
	e    *Extractor
	p    *page.Page
	seen map[string]bool
	out  []Link
}

// add 校验并收录一条链接；已收录的目标不覆盖。
func (c *collector) add(href, name, method string, conf float64) {
	abs := c.p.Resolve(href)
	if abs == "" {
		return
	}
	abs, ok := c.e.blocklist.IsCandidate(c.p.URL, abs)
	if !ok {
		return
	}
	target := links.Origin(abs)
	if target == "" || c.seen[target] {
		return
	}
	c.seen[target] = true
	c.out = append(c.out, Link{URL: target, Name: cleanName(name), Method: method, Confidence: conf})
}

func (c *collector) xfn() {
	c.p.Doc.Find("a[rel][href]").Each(func(_ int, s *goquery.Selection) {
		best := 0.0
		for _, tok := range page.RelTokens(s) {
			if tok == "me" {
				// rel=me 指向本人的其他身份，不是友链
				return
			}
			if v, ok := xfnConfidence[tok]; ok && v > best {
				best = v
			}
		}
		if best == 0 {
			return
		}
		href, _ := s.Attr("href")
		c.add(href, anchorName(s), model.MethodXFN, best)
	})
}

func (c *collector) following() {
	c.p.Doc.Find("a.u-follow-of[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		c.add(href, anchorName(s), model.MethodMicroformat, ConfidenceFollowing)
	})
	c.p.Doc.Find(".h-card").Each(func(_ int, s *goquery.Selection) {
		if s.ParentsFiltered("[class*='following']").Length() == 0 {
			return
		}
		a := s
		if goquery.NodeName(s) != "a" {
			a = s.Find("a.u-url[href]").First()
			if a.Length() == 0 {
				a = s.Find("a[href]").First()
			}
		}
		href, ok := a.Attr("href")
		if !ok {
			return
		}
		name := strings.TrimSpace(s.Find(".p-name").First().Text())
		if name == "" {
			name = anchorName(a)
		}
		c.add(href, name, model.MethodMicroformat, ConfidenceFollowing)
	})
}

var (
	containerPattern = regexp.MustCompile(`(?i)friend|link|blogroll|友链|友情`)
	headingPattern   = regexp.MustCompile(`(?i)friends?|blogroll|links|友链|友情链接|朋友|小伙伴`)
	headingTag       = regexp.MustCompile(`^h[1-6]$`)
)

func (c *collector) heuristic(theme string) {
	if preset, ok := c.e.rules.GetPreset(theme); ok && preset.FriendsPage != nil && preset.FriendsPage.Item != "" {
		fp := preset.FriendsPage
		c.p.Doc.Find(fp.Item).Each(func(_ int, s *goquery.Selection) {
			link := rules.Value(s, fp.Link)
			if link == "" {
				return
			}
			c.add(link, rules.Value(s, fp.Name), model.MethodHeuristic, ConfidenceHeuristic)
		})
	}

	c.p.Doc.Find("div, section, ul, ol, nav, aside").Each(func(_ int, s *goquery.Selection) {
		class, _ := s.Attr("class")
		id, _ := s.Attr("id")
		if !containerPattern.MatchString(class) && !containerPattern.MatchString(id) {
			return
		}
		c.anchorsIn(s)
	})

	c.p.Doc.Find("h1, h2, h3, h4, h5, h6").Each(func(_ int, h *goquery.Selection) {
		if !headingPattern.MatchString(h.Text()) {
			return
		}
		// 标题之后、下一个同级标题之前的兄弟元素
		for sib := h.Next(); sib.Length() > 0; sib = sib.Next() {
			if headingTag.MatchString(goquery.NodeName(sib)) {
				break
			}
			c.anchorsIn(sib)
		}
	})
}

// anchorsIn 收录 scope（含其自身若为 <a>）内的全部链接。
func (c *collector) anchorsIn(scope *goquery.Selection) {
	scope.Find("a[href]").AddSelection(scope.Filter("a[href]")).Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		c.add(href, anchorName(a), model.MethodHeuristic, ConfidenceHeuristic)
	})
}

func anchorName(a *goquery.Selection) string {
	if t := strings.TrimSpace(a.Text()); t != "" {
		return t
	}
	if v, _ := a.Attr("title"); strings.TrimSpace(v) != "" {
		return v
	}
	v, _ := a.Find("img[alt]").First().Attr("alt")
	return v
}

func cleanName(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
