// 包 protocol 探测 IndieWeb 互通信号：OPML 博客圈、WebMention 端点、
// 微格式、XFN 关系与 RSS/Atom 自动发现。所有返回的 URL 均已相对页面基准 URL 绝对化。
package protocol

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"indie-blog-circles/internal/page"
)

// xfnWhitelist 为 XFN 1.1 的社交关系关键字。
var xfnWhitelist = map[string]bool{
	"friend": true, "acquaintance": true, "contact": true,
	"met": true,
	"co-worker": true, "colleague": true,
	"co-resident": true, "neighbor": true,
	"child": true, "parent": true, "sibling": true, "spouse": true, "kin": true,
	"muse": true, "crush": true, "date": true, "sweetheart": true,
	"me": true,
}

// IsXFN 判断 token 是否为 XFN 关系。
func IsXFN(token string) bool { return xfnWhitelist[strings.ToLower(token)] }

// XFNLink 为带 XFN 关系的链接；Rels 只保留白名单内的 token。
type XFNLink struct {
	URL  string
	Name string
	Rels []string
}

// Microformats 记录页面上出现的根微格式。
type Microformats struct {
	HCard  bool
	HEntry bool
	HFeed  bool
}

// Any 是否出现任一微格式。
func (m Microformats) Any() bool { return m.HCard || m.HEntry || m.HFeed }

// Result 汇总各子探测器的结果；未发现的信号为空值。
type Result struct {
	OPML         string
	WebMention   string
	Microformats Microformats
	XFN          []XFNLink
	Feeds        []string
	Author       string
}

// DetectAll 解析 HTML 后执行全部探测。
func DetectAll(html, baseURL string) Result {
	return Detect(page.Parse(html, baseURL))
}

// Detect 在已解析的页面上执行全部探测。
func Detect(p *page.Page) Result {
	return Result{
		OPML:         DetectOPML(p),
		WebMention:   DetectWebMention(p),
		Microformats: DetectMicroformats(p),
		XFN:          DetectXFN(p),
		Feeds:        DetectFeeds(p),
		Author:       DetectAuthor(p),
	}
}

// DetectOPML 依次查找 <link rel="blogroll">、<link type="text/x-opml">、指向 .opml 的 <a>。
func DetectOPML(p *page.Page) string {
	var out string
	p.Doc.Find("link[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		typ, _ := s.Attr("type")
		if page.HasRel(s, "blogroll") || page.HasRel(s, "outline") || strings.EqualFold(strings.TrimSpace(typ), "text/x-opml") {
			href, _ := s.Attr("href")
			out = p.Resolve(href)
		}
		return out == ""
	})
	if out != "" {
		return out
	}
	p.Doc.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, _ := s.Attr("href")
		h := strings.ToLower(strings.TrimSpace(href))
		if i := strings.IndexAny(h, "?#"); i >= 0 {
			h = h[:i]
		}
		if strings.HasSuffix(h, ".opml") || page.HasRel(s, "blogroll") {
			out = p.Resolve(href)
		}
		return out == ""
	})
	return out
}

// DetectWebMention 优先 <link rel="webmention">，其次 <a rel="webmention">。
// 空 href 指向页面自身。
func DetectWebMention(p *page.Page) string {
	for _, tag := range []string{"link", "a"} {
		var out string
		p.Doc.Find(tag + "[rel]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if !page.HasRel(s, "webmention") && !page.HasRel(s, "http://webmention.org/") {
				return true
			}
			href, ok := s.Attr("href")
			if !ok {
				return true
			}
			if strings.TrimSpace(href) == "" {
				out = p.Base()
			} else {
				out = p.Resolve(href)
			}
			return out == ""
		})
		if out != "" {
			return out
		}
	}
	return ""
}

// DetectMicroformats 检查 h-card / h-entry / h-feed 类名。
func DetectMicroformats(p *page.Page) Microformats {
	return Microformats{
		HCard:  p.Doc.Find(".h-card").Length() > 0,
		HEntry: p.Doc.Find(".h-entry").Length() > 0,
		HFeed:  p.Doc.Find(".h-feed").Length() > 0,
	}
}

// DetectXFN 返回带有白名单关系的 <a>/<link>，按文档顺序、按 URL 去重。
func DetectXFN(p *page.Page) []XFNLink {
	var out []XFNLink
	seen := map[string]bool{}
	p.Doc.Find("a[rel][href], link[rel][href]").Each(func(_ int, s *goquery.Selection) {
		var rels []string
		for _, tok := range page.RelTokens(s) {
			if IsXFN(tok) {
				rels = append(rels, tok)
			}
		}
		if len(rels) == 0 {
			return
		}
		href, _ := s.Attr("href")
		abs := p.Resolve(href)
		if abs == "" || seen[abs] {
			return
		}
		seen[abs] = true
		name := strings.TrimSpace(s.Text())
		if name == "" {
			name, _ = s.Attr("title")
		}
		out = append(out, XFNLink{URL: abs, Name: strings.TrimSpace(name), Rels: rels})
	})
	return out
}

var feedTypes = map[string]bool{
	"application/rss+xml":   true,
	"application/atom+xml":  true,
	"application/feed+json": true,
	"application/rdf+xml":   true,
}

// DetectFeeds 返回 <link rel="alternate"> 自动发现的订阅地址，按文档顺序去重。
func DetectFeeds(p *page.Page) []string {
	var out []string
	seen := map[string]bool{}
	p.Doc.Find("link[href]").Each(func(_ int, s *goquery.Selection) {
		if !page.HasRel(s, "alternate") {
			return
		}
		typ, _ := s.Attr("type")
		if !feedTypes[strings.ToLower(strings.TrimSpace(typ))] {
			return
		}
		href, _ := s.Attr("href")
		if abs := p.Resolve(href); abs != "" && !seen[abs] {
			seen[abs] = true
			out = append(out, abs)
		}
	})
	return out
}

// DetectAuthor 依次取 <meta name="author">、rel=author 链接（文字、title 或地址）、h-card 的 p-name。
func DetectAuthor(p *page.Page) string {
	if v := p.MetaContent("author"); v != "" {
		return v
	}
	var out string
	p.Doc.Find("a[rel][href], link[rel][href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if !page.HasRel(s, "author") {
			return true
		}
		out = strings.TrimSpace(s.Text())
		if out == "" {
			v, _ := s.Attr("title")
			out = strings.TrimSpace(v)
		}
		if out == "" {
			href, _ := s.Attr("href")
			out = p.Resolve(href)
		}
		return out == ""
	})
	if out != "" {
		return out
	}
	return strings.TrimSpace(p.Doc.Find(".h-card .p-name, .h-card.p-name").First().Text())
}
