// 包 seeds 从社区入口（博客圈/开往/友链目录等）发现博客站点：
// 抓取来源页面，按友链抽取同一套过滤规则提取外链，逐个以来源语言登记为站点。
// 来源返回 JSON 时从 url/link/homepage/blog_url 字段取地址。
package seeds

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"

	"indie-blog-circles/internal/config"
	"indie-blog-circles/internal/fetch"
	"indie-blog-circles/internal/links"
	"indie-blog-circles/internal/logx"
	"indie-blog-circles/internal/page"
	"indie-blog-circles/internal/pool"
	"indie-blog-circles/internal/store"
)

// jsonURLKeys 为 JSON 来源中可能携带博客地址的字段。
var jsonURLKeys = map[string]bool{
	"url":      true,
	"link":     true,
	"homepage": true,
	"blog_url": true,
}

// SourceResult 为单个来源的处理结果。
type SourceResult struct {
	Source config.SeedSource
	Found  int // 提取到的候选站点数
	Added  int // 新登记的站点数
	Err    error
}

// Report 为一次发现的汇总。
type Report struct {
	Sources   []SourceResult
	Succeeded int
	Failed    int
	Found     int
	Added     int
}

// Discoverer 为种子发现器。
type Discoverer struct {
	store       *store.SQLite
	fetch       *fetch.Client
	blocklist   *links.Blocklist
	concurrency int
	log         *slog.Logger
}

// New 创建发现器；bl 为 nil 时使用内置屏蔽名单。
func New(s *store.SQLite, cl *fetch.Client, bl *links.Blocklist, concurrency int) *Discoverer {
	if bl == nil {
		bl = links.DefaultBlocklist()
	}
	return &Discoverer{store: s, fetch: cl, blocklist: bl, concurrency: concurrency, log: logx.Component("seeds")}
}

// Discover 并发处理全部来源；单个来源失败只计入 Failed。
func (d *Discoverer) Discover(ctx context.Context, sources []config.SeedSource) Report {
	p := pool.New(d.discoverOne, pool.Options{Concurrency: d.concurrency})
	rep := p.Run(ctx, sources)

	var out Report
	for _, r := range rep.Results {
		sr := r.Value
		sr.Source, sr.Err = r.Job, r.Err
		if r.Err != nil {
			out.Failed++
			d.log.Warn("seed source failed", "source", r.Job.URL, "err", r.Err)
		} else {
			out.Succeeded++
			d.log.Info("seed source done", "source", r.Job.URL, "type", r.Job.Type, "found", sr.Found, "added", sr.Added)
		}
		out.Found += sr.Found
		out.Added += sr.Added
		out.Sources = append(out.Sources, sr)
	}
	return out
}

func (d *Discoverer) discoverOne(ctx context.Context, src config.SeedSource) (SourceResult, error) {
	var res SourceResult
	body, ct, err := d.fetch.GetBody(ctx, src.URL)
	if err != nil {
		return res, fmt.Errorf("fetch source %s: %w", src.URL, err)
	}
	urls := ExtractURLs(body, ct, src.URL, d.blocklist)
	res.Found = len(urls)
	for _, u := range urls {
		created, err := d.store.EnsureSite(ctx, u, src.Languages)
		if err != nil {
			return res, err
		}
		if created {
			res.Added++
		}
	}
	return res, nil
}

// ExtractURLs 从来源内容中提取候选站点首页，保持出现顺序并去重。
func ExtractURLs(body []byte, contentType, sourceURL string, bl *links.Blocklist) []string {
	var raw []string
	if isJSON(contentType, body) {
		var v any
		if err := json.Unmarshal(body, &v); err == nil {
			walkJSON(v, &raw)
		}
	} else {
		p := page.Parse(string(body), sourceURL)
		raw = p.Attrs("a[href]", "href")
	}

	seen := map[string]bool{}
	var out []string
	for _, href := range raw {
		abs, ok := bl.IsCandidate(sourceURL, href)
		if !ok {
			continue
		}
		site := links.Origin(abs)
		if site == "" || seen[site] {
			continue
		}
		seen[site] = true
		out = append(out, site)
	}
	return out
}

func isJSON(contentType string, body []byte) bool {
	if strings.Contains(strings.ToLower(contentType), "json") {
		return true
	}
	trimmed := strings.TrimSpace(string(body[:min(len(body), 64)]))
	return strings.HasPrefix(trimmed, "[") || strings.HasPrefix(trimmed, "{")
}

// walkJSON 递归收集对象中 jsonURLKeys 字段的字符串值，对象内按键名排序保证结果稳定。
func walkJSON(v any, out *[]string) {
	switch t := v.(type) {
	case []any:
		for _, e := range t {
			walkJSON(e, out)
		}
	case map[string]any:
		for _, k := range slices.Sorted(maps.Keys(t)) {
			e := t[k]
			if s, ok := e.(string); ok && jsonURLKeys[strings.ToLower(k)] {
				*out = append(*out, s)
				continue
			}
			walkJSON(e, out)
		}
	}
}
