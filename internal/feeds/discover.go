// 包 feeds 负责订阅发现与解析：
// - Fetcher.FetchArticles：按生成器对应的常见路径探测订阅，回退到首页 <link> 自动发现
// - Fetcher.FetchFeed：对已知订阅地址发条件请求
// - ParseBytes：使用 gofeed 解析 RSS/Atom/JSON Feed 并归一化为文章记录
package feeds

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"indie-blog-circles/internal/fetch"
	"indie-blog-circles/internal/logx"
	"indie-blog-circles/internal/page"
	"indie-blog-circles/internal/protocol"
)

// ErrNoFeed 表示所有候选路径与自动发现均未找到订阅。
var ErrNoFeed = errors.New("no feed discovered")

// probeTimeout 为单个候选路径的探测超时，避免串行探测拖慢整体速度。
const probeTimeout = 6 * time.Second

// ssgPaths 为各生成器默认输出的订阅路径（相对站点目录）。
var ssgPaths = map[string][]string{
	"hexo":      {"atom.xml", "rss.xml", "rss2.xml", "feed.xml"},
	"hugo":      {"index.xml", "feed.xml", "rss.xml"},
	"wordpress": {"feed/", "rss/", "feed/rss2/", "feed/atom/"},
	"typecho":   {"feed/", "feed/atom/"},
	"jekyll":    {"feed.xml", "atom.xml", "rss.xml"},
	"ghost":     {"rss/", "feed/"},
	"astro":     {"rss.xml", "feed.xml", "atom.xml"},
	"nextjs":    {"feed.xml", "rss.xml", "api/rss"},
	"11ty":      {"feed.xml", "feed/feed.xml", "rss.xml"},
	"vitepress": {"feed.xml", "rss.xml"},
	"gatsby":    {"rss.xml", "feed.xml"},
	"halo":      {"rss.xml", "feed.xml", "atom.xml"},
	"zola":      {"atom.xml", "rss.xml"},
}

// defaultPaths 用于未知生成器。
var defaultPaths = []string{"feed.xml", "rss.xml", "atom.xml", "index.xml", "feed/", "rss/", "feed.json"}

// CandidatePaths 返回生成器对应的候选路径；未知生成器使用默认列表。
func CandidatePaths(ssg string) []string {
	if p, ok := ssgPaths[strings.ToLower(ssg)]; ok {
		return p
	}
	return defaultPaths
}

// Result 为一次订阅抓取的结果。Unchanged 时 Articles 为空。
type Result struct {
	FeedURL    string
	Validators fetch.Validators
	Unchanged  bool
	Articles   []Entry
}

// Fetcher 使用共享的 HTTP 客户端抓取订阅。
type Fetcher struct {
	cl *fetch.Client
}

func NewFetcher(cl *fetch.Client) *Fetcher { return &Fetcher{cl: cl} }

// FetchArticles 以站点 URL 与生成器提示探测订阅并解析文章。
func (f *Fetcher) FetchArticles(ctx context.Context, siteURL, ssgHint string) (Result, error) {
	for _, p := range CandidatePaths(ssgHint) {
		u := joinURLDir(siteURL, p)
		logx.Debugf("探测候选订阅：%s", u)
		res := f.cl.Fetch(ctx, u, fetch.Validators{}, probeTimeout)
		if res.Status != fetch.StatusOK || !looksLikeFeed(res.ContentType, res.Body) {
			if ctx.Err() != nil {
				return Result{}, ctx.Err()
			}
			continue
		}
		entries, err := ParseBytes(res.Body, u)
		if err != nil {
			continue
		}
		return Result{FeedURL: u, Validators: res.Validators, Articles: entries}, nil
	}

	// 回退：抓取首页解析 <link rel="alternate">
	home := f.cl.Fetch(ctx, siteURL, fetch.Validators{}, 0)
	if home.Err != nil {
		return Result{}, fmt.Errorf("GET site %s: %w", siteURL, home.Err)
	}
	for _, u := range protocol.DetectFeeds(page.Parse(string(home.Body), siteURL)) {
		res, err := f.FetchFeed(ctx, u, fetch.Validators{})
		if err == nil {
			logx.Debugf("从 <link> 发现订阅：%s", u)
			return res, nil
		}
	}
	return Result{}, fmt.Errorf("%s: %w", siteURL, ErrNoFeed)
}

// FetchFeed 对已知订阅地址发条件请求；304 时返回 Unchanged。
func (f *Fetcher) FetchFeed(ctx context.Context, feedURL string, v fetch.Validators) (Result, error) {
	res := f.cl.Fetch(ctx, feedURL, v, 0)
	switch res.Status {
	case fetch.StatusUnchanged:
		return Result{FeedURL: feedURL, Validators: res.Validators, Unchanged: true}, nil
	case fetch.StatusError:
		return Result{}, res.Err
	}
	entries, err := ParseBytes(res.Body, feedURL)
	if err != nil {
		return Result{}, err
	}
	return Result{FeedURL: feedURL, Validators: res.Validators, Articles: entries}, nil
}

// looksLikeFeed 按 Content-Type 与内容开头粗略判断是否为订阅，避免把 HTML 误判为订阅。
func looksLikeFeed(contentType string, body []byte) bool {
	ct := strings.ToLower(contentType)
	head := bytes.ToLower(body[:min(len(body), 2048)])
	if strings.Contains(ct, "html") {
		return false
	}
	if strings.Contains(ct, "rss") || strings.Contains(ct, "atom") || strings.Contains(ct, "xml") {
		return true
	}
	if bytes.Contains(head, []byte("<rss")) || bytes.Contains(head, []byte("<feed")) || bytes.Contains(head, []byte("<rdf")) {
		return true
	}
	return bytes.Contains(head, []byte("jsonfeed.org/version"))
}

// joinURLDir 将 base 视为目录进行相对拼接（即便 base 不以 / 结尾），
// 适配 https://host/blog 这类子路径站点。
func joinURLDir(base, ref string) string {
	if strings.HasPrefix(ref, "http") {
		return ref
	}
	u, err := url.Parse(base)
	if err != nil {
		b := base
		if !strings.HasSuffix(b, "/") {
			b += "/"
		}
		return b + strings.TrimPrefix(ref, "/")
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	ru, err := url.Parse(strings.TrimPrefix(ref, "/"))
	if err != nil {
		return u.String() + strings.TrimPrefix(ref, "/")
	}
	return u.ResolveReference(ru).String()
}
