// 包 orchestrator 为爬取编排：对单个站点并发执行指纹识别、协议探测与友链抽取，
// 写回识别结果与友链关系；信任传播、衍生种子筛选与图谱统计为独立的显式步骤。
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"indie-blog-circles/internal/fetch"
	"indie-blog-circles/internal/fingerprint"
	"indie-blog-circles/internal/friends"
	"indie-blog-circles/internal/links"
	"indie-blog-circles/internal/logx"
	"indie-blog-circles/internal/metrics"
	"indie-blog-circles/internal/model"
	"indie-blog-circles/internal/page"
	"indie-blog-circles/internal/pool"
	"indie-blog-circles/internal/protocol"
	"indie-blog-circles/internal/rules"
	"indie-blog-circles/internal/store"
)

// DefaultMaxHops 为信任传播的最大跳数。
const DefaultMaxHops = 10

// Options 为编排器参数。
type Options struct {
	// RootSeeds 为信任锚点（ROOT_SEEDS ∪ 种子来源 URL）
	RootSeeds   []string
	MaxHops     int
	Concurrency int
	// FetchOPML 为 true 时抓取站点发布的 OPML 友链清单
	FetchOPML bool
	// FollowFriendsPage 为 true 时额外抓取首页导航中的友链页
	FollowFriendsPage bool
	Timeout           time.Duration
	Now               func() time.Time
}

// Orchestrator 持有存储、HTTP 客户端与友链抽取器。
type Orchestrator struct {
	store     *store.SQLite
	fetch     *fetch.Client
	blocklist *links.Blocklist
	extractor *friends.Extractor
	roots     []string
	opts      Options
	log       *slog.Logger
}

// New 创建编排器；bl 为 nil 时使用内置屏蔽名单，rs 可为 nil。
func New(s *store.SQLite, cl *fetch.Client, bl *links.Blocklist, rs *rules.Rules, opts Options) *Orchestrator {
	if bl == nil {
		bl = links.DefaultBlocklist()
	}
	if opts.MaxHops <= 0 {
		opts.MaxHops = DefaultMaxHops
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	seen := map[string]bool{}
	var roots []string
	for _, r := range opts.RootSeeds {
		if u := links.Normalize(r); u != "" && !seen[u] {
			seen[u] = true
			roots = append(roots, u)
		}
	}
	return &Orchestrator{
		store:     s,
		fetch:     cl,
		blocklist: bl,
		extractor: friends.New(bl, rs),
		roots:     roots,
		opts:      opts,
		log:       logx.Component("orchestrator"),
	}
}

// SiteReport 为单个站点的处理结果。
type SiteReport struct {
	URL         string
	Name        string
	Fingerprint fingerprint.Result
	Protocols   protocol.Result
	Links       []friends.Link
	FriendsPage string
	// Unchanged 表示首页返回 304，本次未重新识别
	Unchanged bool
}

// CrawlSite 以条件请求抓取首页并处理；首页未变化时跳过识别。
func (o *Orchestrator) CrawlSite(ctx context.Context, siteURL string) (SiteReport, error) {
	siteURL = links.Normalize(siteURL)
	if siteURL == "" {
		return SiteReport{}, errors.New("invalid site url")
	}
	if _, err := o.store.EnsureSite(ctx, siteURL, nil); err != nil {
		return SiteReport{}, err
	}
	st, err := o.store.GetSite(ctx, siteURL)
	if err != nil {
		return SiteReport{}, err
	}
	res := o.fetch.Fetch(ctx, siteURL, fetch.Validators{ETag: st.PageETag, LastModified: st.PageLastModified}, o.opts.Timeout)
	switch res.Status {
	case fetch.StatusUnchanged:
		metrics.SitesCrawled.WithLabelValues("unchanged").Inc()
		return SiteReport{URL: siteURL, Unchanged: true}, nil
	case fetch.StatusError:
		metrics.SitesCrawled.WithLabelValues("error").Inc()
		return SiteReport{URL: siteURL}, fmt.Errorf("crawl %s: %w", siteURL, res.Err)
	}
	return o.process(ctx, siteURL, string(res.Body), res.Validators)
}

// ProcessSite 处理已获取的首页 HTML。
func (o *Orchestrator) ProcessSite(ctx context.Context, siteURL, html string) (SiteReport, error) {
	siteURL = links.Normalize(siteURL)
	if siteURL == "" {
		return SiteReport{}, errors.New("invalid site url")
	}
	if _, err := o.store.EnsureSite(ctx, siteURL, nil); err != nil {
		return SiteReport{}, err
	}
	return o.process(ctx, siteURL, html, fetch.Validators{})
}

func (o *Orchestrator) process(ctx context.Context, siteURL, html string, v fetch.Validators) (SiteReport, error) {
	p := page.Parse(html, siteURL)
	rep := SiteReport{URL: siteURL, Name: p.SiteName()}

	// 三个探测器只读同一份文档，互不依赖
	var (
		wg        sync.WaitGroup
		homeLinks []friends.Link
	)
	wg.Add(3)
	go func() {
		defer wg.Done()
		rep.Fingerprint = fingerprint.Detect(p)
	}()
	go func() {
		defer wg.Done()
		rep.Protocols = protocol.Detect(p)
	}()
	go func() {
		defer wg.Done()
		homeLinks = o.extractor.ExtractPage(p, "")
	}()
	wg.Wait()

	fp, pr := rep.Fingerprint, rep.Protocols
	sg := store.Signals{
		Name:               rep.Name,
		SSG:                fp.SSG,
		Theme:              fp.Theme,
		CommentSystem:      fp.CommentSystem,
		Author:             pr.Author,
		OPMLURL:            pr.OPML,
		WebMentionEndpoint: pr.WebMention,
		HasMicroformats:    pr.Microformats.Any(),
		PageETag:           v.ETag,
		PageLastModified:   v.LastModified,
	}
	if len(pr.Feeds) > 0 {
		sg.AdvertisedFeed = pr.Feeds[0]
	}
	if err := o.store.UpdateSignals(ctx, siteURL, sg); err != nil {
		metrics.SitesCrawled.WithLabelValues("error").Inc()
		return rep, err
	}

	// OPML 与友链页并发抓取；单个抓取失败视为没有信号，取消则放弃整个站点
	var opml, pageLinks []friends.Link
	g, gctx := errgroup.WithContext(ctx)
	if pr.OPML != "" && o.opts.FetchOPML {
		g.Go(func() error {
			var err error
			opml, err = o.opmlLinks(gctx, siteURL, pr.OPML)
			if err != nil {
				if cerr := gctx.Err(); cerr != nil {
					return cerr
				}
				o.log.Warn("opml fetch failed", "site", siteURL, "opml", pr.OPML, "err", err)
			}
			return nil
		})
	}
	if o.opts.FollowFriendsPage {
		rep.FriendsPage = friends.FindFriendsPage(p)
		if rep.FriendsPage != "" {
			g.Go(func() error {
				pageLinks = o.friendsPageLinks(gctx, rep.FriendsPage, fp.Theme)
				return gctx.Err()
			})
		}
	}
	if err := g.Wait(); err != nil {
		metrics.SitesCrawled.WithLabelValues("error").Inc()
		return rep, err
	}

	// 优先级：OPML > 首页抽取 > 友链页抽取；先收录者不被覆盖
	all := make([]friends.Link, 0, len(opml)+len(homeLinks)+len(pageLinks))
	all = append(all, opml...)
	all = append(all, homeLinks...)
	all = append(all, pageLinks...)
	rep.Links = dedupLinks(all)

	for _, l := range rep.Links {
		if err := o.recordLink(ctx, siteURL, l); err != nil {
			metrics.SitesCrawled.WithLabelValues("error").Inc()
			return rep, err
		}
	}
	metrics.SitesCrawled.WithLabelValues("ok").Inc()
	o.log.Info("site processed", "site", siteURL, "ssg", fp.SSG, "theme", fp.Theme,
		"comments", fp.CommentSystem, "opml", pr.OPML != "", "links", len(rep.Links))
	return rep, nil
}

// recordLink 按需创建目标站点并写入关系边。
func (o *Orchestrator) recordLink(ctx context.Context, source string, l friends.Link) error {
	if l.URL == source {
		return nil
	}
	if _, err := o.store.EnsureSite(ctx, l.URL, nil); err != nil {
		return err
	}
	err := o.store.UpsertRelationship(ctx, model.Relationship{
		SourceURL:  source,
		TargetURL:  l.URL,
		Kind:       model.KindFriendLink,
		Method:     l.Method,
		Confidence: l.Confidence,
		LastSeenAt: o.opts.Now(),
	})
	if err != nil {
		return err
	}
	metrics.FriendLinks.WithLabelValues(l.Method).Inc()
	return nil
}

// opmlLinks 抓取 OPML 清单并转换为友链。
func (o *Orchestrator) opmlLinks(ctx context.Context, siteURL, opmlURL string) ([]friends.Link, error) {
	res := o.fetch.Fetch(ctx, opmlURL, fetch.Validators{}, o.opts.Timeout)
	if res.Err != nil {
		return nil, res.Err
	}
	entries, err := parseOPML(res.Body)
	if err != nil {
		return nil, err
	}
	var out []friends.Link
	for _, e := range entries {
		// xmlUrl 指向订阅文件，先取站点首页再过滤，避免被静态资源规则拒绝
		target := links.Origin(links.Resolve(opmlURL, e.URL))
		if target == "" {
			continue
		}
		if _, ok := o.blocklist.IsCandidate(siteURL, target); !ok {
			continue
		}
		out = append(out, friends.Link{URL: target, Name: e.Name, Method: model.MethodOPML, Confidence: ConfidenceOPML})
	}
	return out, nil
}

// friendsPageLinks 抓取友链页并抽取；失败时视为没有信号。
func (o *Orchestrator) friendsPageLinks(ctx context.Context, pageURL, theme string) []friends.Link {
	res := o.fetch.Fetch(ctx, pageURL, fetch.Validators{}, o.opts.Timeout)
	if res.Err != nil {
		o.log.Debug("friends page fetch failed", "page", pageURL, "err", res.Err)
		return nil
	}
	return o.extractor.ExtractPage(page.Parse(string(res.Body), pageURL), theme)
}

func dedupLinks(in []friends.Link) []friends.Link {
	seen := make(map[string]bool, len(in))
	out := make([]friends.Link, 0, len(in))
	for _, l := range in {
		if seen[l.URL] {
			continue
		}
		seen[l.URL] = true
		out = append(out, l)
	}
	return out
}

// CrawlReport 为一轮全量爬取的汇总。
type CrawlReport struct {
	Total     int
	Succeeded int
	Failed    int
	Unchanged int
	Links     int
	Cancelled bool
}

// CrawlAll 并发爬取当前全部站点；单个站点失败不影响其他站点。
func (o *Orchestrator) CrawlAll(ctx context.Context) (CrawlReport, error) {
	sites, err := o.store.ListSites(ctx)
	if err != nil {
		return CrawlReport{}, err
	}
	urls := make([]string, len(sites))
	for i, st := range sites {
		urls[i] = st.URL
	}
	p := pool.New(o.CrawlSite, pool.Options{Concurrency: o.opts.Concurrency})
	rep := p.Run(ctx, urls)

	out := CrawlReport{Total: len(urls), Succeeded: rep.Succeeded, Failed: rep.Failed, Cancelled: rep.Cancelled}
	for _, r := range rep.Results {
		if r.Err != nil {
			o.log.Warn("crawl failed", "site", r.Job, "err", r.Err)
			continue
		}
		if r.Value.Unchanged {
			out.Unchanged++
		}
		out.Links += len(r.Value.Links)
	}
	return out, nil
}
