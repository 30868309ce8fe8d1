// 包 page 将抓取到的 HTML 解析一次，供指纹识别、协议探测与友链抽取共享。
// 所有 HTML 信号提取都经由这里，上层的信任/图谱逻辑不接触 HTML。
package page

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"indie-blog-circles/internal/links"
)

// Page 为解析后的页面；解析只读，可被多个 goroutine 并发读取。
type Page struct {
	URL  string
	Raw  string
	Doc  *goquery.Document
	base string
}

// Parse 解析 HTML；畸形输入退化为空文档而不是报错。
func Parse(raw, pageURL string) *Page {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		doc = goquery.NewDocumentFromNode(&html.Node{Type: html.DocumentNode})
	}
	p := &Page{URL: pageURL, Raw: raw, Doc: doc, base: pageURL}
	if href, ok := doc.Find("base[href]").First().Attr("href"); ok {
		if abs := links.Resolve(pageURL, href); abs != "" {
			p.base = abs
		}
	}
	return p
}

// Base 返回解析相对链接使用的基准 URL（考虑 <base href>）。
func (p *Page) Base() string { return p.base }

// Resolve 将相对链接绝对化。
func (p *Page) Resolve(ref string) string { return links.Resolve(p.base, ref) }

// Comments 返回文档中的全部 HTML 注释文本。
func (p *Page) Comments() []string {
	var out []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.CommentNode {
			out = append(out, n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range p.Doc.Nodes {
		walk(n)
	}
	return out
}

// MetaContent 返回 <meta name|property=key> 的 content。
func (p *Page) MetaContent(key string) string {
	var out string
	p.Doc.Find("meta").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		name, _ := s.Attr("name")
		prop, _ := s.Attr("property")
		if strings.EqualFold(name, key) || strings.EqualFold(prop, key) {
			out, _ = s.Attr("content")
			out = strings.TrimSpace(out)
			return out == ""
		}
		return true
	})
	return out
}

// Attrs 返回所有匹配 selector 的元素的 attr 属性值。
func (p *Page) Attrs(selector, attr string) []string {
	var out []string
	p.Doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		if v, ok := s.Attr(attr); ok && v != "" {
			out = append(out, v)
		}
	})
	return out
}

// RelTokens 拆分 rel 属性为小写 token。
func RelTokens(s *goquery.Selection) []string {
	rel, _ := s.Attr("rel")
	return strings.Fields(strings.ToLower(rel))
}

// HasRel 判断元素的 rel 是否包含 token。
func HasRel(s *goquery.Selection, token string) bool {
	for _, t := range RelTokens(s) {
		if t == token {
			return true
		}
	}
	return false
}

// HasClass 判断元素 class 是否包含某个完整的类名。
func HasClass(s *goquery.Selection, class string) bool {
	return s.HasClass(class)
}

var titleSuffix = regexp.MustCompile(`\s*[-|–—｜·]\s.*$`)

// SiteName 依次取 og:site_name、<title>（去掉 " - 副标题" 后缀）、主机名。
func (p *Page) SiteName() string {
	if v := p.MetaContent("og:site_name"); v != "" {
		return v
	}
	if t := strings.TrimSpace(p.Doc.Find("title").First().Text()); t != "" {
		if s := strings.TrimSpace(titleSuffix.ReplaceAllString(t, "")); s != "" {
			return s
		}
		return t
	}
	return links.Host(p.URL)
}

// Lang 返回 <html lang> 属性。
func (p *Page) Lang() string {
	v, _ := p.Doc.Find("html").First().Attr("lang")
	return strings.TrimSpace(v)
}

// Text 返回 body 的可见文本。
func (p *Page) Text() string {
	body := p.Doc.Find("body")
	if body.Length() == 0 {
		return p.Doc.Text()
	}
	return body.Text()
}
