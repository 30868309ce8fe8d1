package feeds

import (
	"bytes"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"indie-blog-circles/internal/links"
)

// maxDescription 为摘要的最大字符数。
const maxDescription = 300

// Entry 为归一化后的文章记录（供上层转换为 model.Article）。
type Entry struct {
	Title       string
	URL         string
	Description string
	CoverImage  string
	Author      string
	PublishedAt *time.Time
	Content     string // 正文文本，仅用于语言检测
}

// ParseBytes 解析订阅原文；条目中的相对链接相对 feedURL 绝对化，缺少链接的条目被丢弃。
func ParseBytes(data []byte, feedURL string) ([]Entry, error) {
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", feedURL, err)
	}
	base := feedURL
	if feed.Link != "" {
		base = links.Resolve(feedURL, feed.Link)
	}
	out := make([]Entry, 0, len(feed.Items))
	for _, it := range feed.Items {
		link := links.Resolve(base, strings.TrimSpace(it.Link))
		if link == "" {
			continue
		}
		e := Entry{
			Title:       strings.TrimSpace(it.Title),
			URL:         link,
			Author:      authorName(it, feed),
			PublishedAt: pickTime(it.PublishedParsed, it.UpdatedParsed),
		}
		html := it.Content
		if html == "" {
			html = it.Description
		}
		e.Description = truncate(htmlText(it.Description), maxDescription)
		if e.Description == "" {
			e.Description = truncate(htmlText(it.Content), maxDescription)
		}
		e.Content = htmlText(html)
		if img := coverImage(it, html); img != "" {
			e.CoverImage = links.Resolve(link, img)
		}
		out = append(out, e)
	}
	return out, nil
}

// coverImage 依次取条目图片、图片类 enclosure、media:thumbnail / media:content、正文第一张 <img>。
func coverImage(it *gofeed.Item, html string) string {
	if it.Image != nil && it.Image.URL != "" {
		return it.Image.URL
	}
	for _, enc := range it.Enclosures {
		if enc != nil && strings.HasPrefix(strings.ToLower(enc.Type), "image/") && enc.URL != "" {
			return enc.URL
		}
	}
	if media, ok := it.Extensions["media"]; ok {
		for _, key := range []string{"thumbnail", "content"} {
			for _, ext := range media[key] {
				if key == "content" && ext.Attrs["medium"] != "image" && !strings.HasPrefix(ext.Attrs["type"], "image/") {
					continue
				}
				if u := ext.Attrs["url"]; u != "" {
					return u
				}
			}
		}
	}
	if html == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	src, _ := doc.Find("img[src]").First().Attr("src")
	return strings.TrimSpace(src)
}

func htmlText(s string) string {
	if s == "" {
		return ""
	}
	if !strings.Contains(s, "<") {
		return strings.Join(strings.Fields(s), " ")
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return strings.Join(strings.Fields(s), " ")
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "…"
}

func pickTime(a, b *time.Time) *time.Time {
	for _, t := range []*time.Time{a, b} {
		if t != nil && !t.IsZero() {
			v := t.UTC()
			return &v
		}
	}
	return nil
}

func authorName(it *gofeed.Item, feed *gofeed.Feed) string {
	for _, p := range append([]*gofeed.Person{it.Author}, it.Authors...) {
		if p != nil && p.Name != "" {
			return strings.TrimSpace(p.Name)
		}
	}
	if feed.Author != nil {
		return strings.TrimSpace(feed.Author.Name)
	}
	return ""
}
