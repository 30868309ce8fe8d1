// 包 indexer 为批量索引：按"从未抓取优先、其次最早抓取"的顺序遍历全部站点，
// 经任务池并发抓取订阅、写入新文章与评论快照，并维护每个站点的抓取分层与错误计数。
// 单个站点失败只记录在该站点上，不中断整轮扫描。
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"indie-blog-circles/internal/events"
	"indie-blog-circles/internal/feeds"
	"indie-blog-circles/internal/fetch"
	"indie-blog-circles/internal/lang"
	"indie-blog-circles/internal/logx"
	"indie-blog-circles/internal/metrics"
	"indie-blog-circles/internal/model"
	"indie-blog-circles/internal/page"
	"indie-blog-circles/internal/pool"
	"indie-blog-circles/internal/store"
	"indie-blog-circles/internal/tier"
)

// ErrSweepRunning 表示已有一轮扫描在进行。
var ErrSweepRunning = errors.New("sweep already running")

// CommentCounter 抓取文章当前的评论数；system 为站点识别出的评论系统。
type CommentCounter interface {
	CommentCount(ctx context.Context, articleURL, system string) (int, error)
}

// CommentCounterFunc 让普通函数实现 CommentCounter。
type CommentCounterFunc func(ctx context.Context, articleURL, system string) (int, error)

func (f CommentCounterFunc) CommentCount(ctx context.Context, articleURL, system string) (int, error) {
	return f(ctx, articleURL, system)
}

// Options 为索引器参数。
type Options struct {
	Concurrency int
	// DueOnly 为 true 时跳过尚未到期的站点
	DueOnly bool
	Sink    events.Sink
	// Comments 为 nil 时不抓取评论数
	Comments CommentCounter
	// Lang 为 nil 时使用 lang.Heuristic
	Lang lang.Detector
	Now  func() time.Time
}

// Indexer 持有存储与 HTTP 客户端；同一时刻最多运行一轮扫描。
type Indexer struct {
	store *store.SQLite
	fetch *fetch.Client
	feeds *feeds.Fetcher
	opts  Options
	log   *slog.Logger

	mu     sync.Mutex
	active *Sweep
}

// New 创建索引器。
func New(s *store.SQLite, cl *fetch.Client, opts Options) *Indexer {
	if opts.Sink == nil {
		opts.Sink = events.Nop
	}
	if opts.Lang == nil {
		opts.Lang = lang.Heuristic{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Indexer{store: s, fetch: cl, feeds: feeds.NewFetcher(cl), opts: opts, log: logx.Component("indexer")}
}

// Active 返回正在运行的扫描，没有时返回 nil。
func (ix *Indexer) Active() *Sweep {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.active
}

// Start 载入站点并在后台开始一轮扫描；已有扫描在运行时返回 ErrSweepRunning。
func (ix *Indexer) Start(ctx context.Context) (*Sweep, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.active != nil {
		return nil, ErrSweepRunning
	}
	sites, err := ix.store.ListSitesForSweep(ctx)
	if err != nil {
		return nil, fmt.Errorf("load sites: %w", err)
	}
	now := ix.opts.Now()
	if ix.opts.DueOnly {
		due := sites[:0]
		for _, st := range sites {
			if tier.ShouldCrawlNow(st.NextCrawlAt, now) {
				due = append(due, st)
			}
		}
		sites = due
	}

	sw := &Sweep{ID: uuid.NewString(), now: ix.opts.Now, startedAt: now, total: len(sites), done: make(chan struct{})}
	sw.pool = pool.New(func(ctx context.Context, st model.Site) (int, error) {
		return ix.processSite(ctx, sw, st)
	}, pool.Options{
		Concurrency: ix.opts.Concurrency,
		OnProgress:  func(p pool.Progress) { ix.onProgress(sw, p) },
	})
	ix.active = sw
	ix.log.Info("sweep started", "sweep", sw.ID, "sites", len(sites), "due_only", ix.opts.DueOnly)

	go func() {
		rep := sw.pool.Run(ctx, sites)
		elapsed := ix.opts.Now().Sub(sw.startedAt)
		metrics.SweepDuration.Observe(elapsed.Seconds())

		sw.mu.Lock()
		sw.processed, sw.succeeded, sw.failed = len(rep.Results), rep.Succeeded, rep.Failed
		sw.cancelled = rep.Cancelled
		sw.elapsed = elapsed
		sw.finished = true
		sw.mu.Unlock()

		ix.mu.Lock()
		ix.active = nil
		ix.mu.Unlock()
		st := sw.Stats()
		ix.log.Info("sweep finished", "sweep", sw.ID, "processed", st.Processed, "succeeded", st.Succeeded,
			"failed", st.Failed, "new_articles", st.NewArticles, "cancelled", st.Cancelled, "elapsed", elapsed.Round(time.Millisecond))
		close(sw.done)
	}()
	return sw, nil
}

// Run 执行一轮扫描并等待结束。
func (ix *Indexer) Run(ctx context.Context) (Stats, error) {
	sw, err := ix.Start(ctx)
	if err != nil {
		return Stats{}, err
	}
	return sw.Wait(), nil
}

func (ix *Indexer) onProgress(sw *Sweep, p pool.Progress) {
	sw.mu.Lock()
	sw.processed, sw.succeeded, sw.failed = p.Completed, p.Succeeded, p.Failed
	sw.mu.Unlock()
	st := sw.Stats()
	ix.opts.Sink.Emit(events.Event{
		Type:    events.Progress,
		SweepID: sw.ID,
		Progress: &events.ProgressInfo{
			Processed:   st.Processed,
			Total:       st.Total,
			Succeeded:   st.Succeeded,
			Failed:      st.Failed,
			NewArticles: st.NewArticles,
			Remaining:   st.Remaining,
		},
		At: ix.opts.Now(),
	})
}

// processSite 处理单个站点，返回新插入的文章数。
func (ix *Indexer) processSite(ctx context.Context, sw *Sweep, st model.Site) (int, error) {
	ix.emit(sw, events.Event{Type: events.BlogStart, SiteURL: st.URL})
	now := ix.opts.Now()

	// 仅首次抓取时识别站点语言
	if st.LastCrawledAt == nil {
		st.Languages = ix.detectSiteLanguages(ctx, st)
	}

	var (
		res feeds.Result
		err error
	)
	switch {
	case st.FeedURL != "":
		res, err = ix.feeds.FetchFeed(ctx, st.FeedURL, fetch.Validators{ETag: st.ETag, LastModified: st.LastModified})
	case st.AdvertisedFeed != "":
		// 首页声明的订阅优先，不可用时再按路径探测
		if res, err = ix.feeds.FetchFeed(ctx, st.AdvertisedFeed, fetch.Validators{}); err != nil {
			ix.log.Debug("advertised feed failed", "site", st.URL, "feed", st.AdvertisedFeed, "err", err)
			res, err = ix.feeds.FetchArticles(ctx, st.URL, st.SSG)
		}
	default:
		res, err = ix.feeds.FetchArticles(ctx, st.URL, st.SSG)
	}
	if err != nil {
		return 0, ix.fail(ctx, sw, st, fmt.Errorf("fetch feed: %w", err))
	}

	added := 0
	for _, e := range res.Articles {
		a := model.Article{
			SiteID:       st.ID,
			URL:          e.URL,
			Title:        e.Title,
			Description:  e.Description,
			CoverImage:   e.CoverImage,
			Author:       e.Author,
			Language:     ix.articleLanguage(e, st.Languages),
			PublishedAt:  e.PublishedAt,
			DiscoveredAt: now,
		}
		id, inserted, err := ix.store.InsertArticle(ctx, a)
		if err != nil {
			return added, ix.fail(ctx, sw, st, err)
		}
		if !inserted {
			continue
		}
		a.ID = id
		added++
		sw.newArticles.Add(1)
		ix.emit(sw, events.Event{Type: events.NewArticle, SiteURL: st.URL, Article: &a})
		ix.snapshotComments(ctx, sw, st, a)
	}

	stats, err := ix.store.SiteArticleStats(ctx, st.ID, time.Time{})
	if err != nil {
		return added, ix.fail(ctx, sw, st, err)
	}
	t := tier.DetermineTier(stats.Latest, now)
	err = ix.store.RecordSiteSuccess(ctx, st.URL, store.CrawlSuccess{
		CrawledAt:    now,
		Tier:         string(t),
		NextCrawlAt:  tier.NextCrawlAt(t, &now, now),
		FeedURL:      res.FeedURL,
		ETag:         res.Validators.ETag,
		LastModified: res.Validators.LastModified,
	})
	if err != nil {
		return added, ix.fail(ctx, sw, st, err)
	}
	ix.emit(sw, events.Event{Type: events.BlogComplete, SiteURL: st.URL, NewArticles: added})
	return added, nil
}

// fail 记录站点错误并发出 error 事件，返回原错误。
func (ix *Indexer) fail(ctx context.Context, sw *Sweep, st model.Site, err error) error {
	if rerr := ix.store.RecordSiteError(context.WithoutCancel(ctx), st.URL, err.Error()); rerr != nil {
		ix.log.Warn("record site error failed", "site", st.URL, "err", rerr)
	}
	ix.emit(sw, events.Event{Type: events.Error, SiteURL: st.URL, Err: err.Error()})
	return err
}

// detectSiteLanguages 抓取首页识别语言并与已有标签合并；失败时保留原值。
func (ix *Indexer) detectSiteLanguages(ctx context.Context, st model.Site) []string {
	home := ix.fetch.Fetch(ctx, st.URL, fetch.Validators{}, 0)
	if home.Err != nil {
		ix.log.Debug("language probe failed", "site", st.URL, "err", home.Err)
		return st.Languages
	}
	found := ix.opts.Lang.Site(page.Parse(string(home.Body), st.URL))
	if len(found) == 0 {
		return st.Languages
	}
	merged := lang.Merge(found, st.Languages)
	if err := ix.store.SetLanguages(ctx, st.URL, merged); err != nil {
		ix.log.Warn("save languages failed", "site", st.URL, "err", err)
		return st.Languages
	}
	return merged
}

// articleLanguage 依据标题、摘要与正文识别；无法判断时沿用站点首选语言。
func (ix *Indexer) articleLanguage(e feeds.Entry, siteLangs []string) string {
	text := strings.Join([]string{e.Title, e.Description, e.Content}, " ")
	if code := ix.opts.Lang.Text(text); code != "" {
		return code
	}
	if len(siteLangs) > 0 {
		return siteLangs[0]
	}
	return ""
}

// snapshotComments 评论数与最近一次快照不同时追加快照。
func (ix *Indexer) snapshotComments(ctx context.Context, sw *Sweep, st model.Site, a model.Article) {
	if ix.opts.Comments == nil || st.CommentSystem == "" {
		return
	}
	n, err := ix.opts.Comments.CommentCount(ctx, a.URL, st.CommentSystem)
	if err != nil {
		ix.log.Debug("comment count failed", "article", a.URL, "err", err)
		return
	}
	prev, ok, err := ix.store.LatestCommentCount(ctx, a.ID)
	if err != nil {
		ix.log.Warn("load comment snapshot failed", "article", a.URL, "err", err)
		return
	}
	if ok && prev == n {
		return
	}
	if err := ix.store.InsertCommentSnapshot(ctx, a.ID, n, ix.opts.Now()); err != nil {
		ix.log.Warn("save comment snapshot failed", "article", a.URL, "err", err)
		return
	}
	ix.emit(sw, events.Event{Type: events.NewComment, SiteURL: st.URL, Article: &a, Comments: n})
}

func (ix *Indexer) emit(sw *Sweep, e events.Event) {
	e.SweepID = sw.ID
	if e.At.IsZero() {
		e.At = ix.opts.Now()
	}
	ix.opts.Sink.Emit(e)
}

// BackfillLanguages 为缺少语言的文章补充语言，返回更新条数。
func (ix *Indexer) BackfillLanguages(ctx context.Context, limit int) (int, error) {
	list, err := ix.store.ArticlesMissingLanguage(ctx, limit)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, a := range list {
		code := ix.opts.Lang.Text(a.Title + " " + a.Description)
		if code == "" {
			continue
		}
		if err := ix.store.SetArticleLanguage(ctx, a.ID, code); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// Stats 为扫描的计数快照。
type Stats struct {
	ID          string
	Total       int
	Processed   int
	Succeeded   int
	Failed      int
	NewArticles int
	Cancelled   bool
	Elapsed     time.Duration
	// Remaining 为预计剩余时间：已用时 ÷ 已处理 × 剩余数
	Remaining time.Duration
}

// Sweep 为一轮正在进行或已结束的扫描。
type Sweep struct {
	ID string

	pool        *pool.Pool[model.Site, int]
	now         func() time.Time
	startedAt   time.Time
	total       int
	newArticles atomic.Int64
	done        chan struct{}

	mu        sync.Mutex
	processed int
	succeeded int
	failed    int
	cancelled bool
	finished  bool
	elapsed   time.Duration
}

// Cancel 停止领取新站点，进行中的站点会处理完；可重复调用。
func (s *Sweep) Cancel() { s.pool.Cancel() }

// Done 在扫描结束后关闭。
func (s *Sweep) Done() <-chan struct{} { return s.done }

// Wait 等待扫描结束并返回最终计数。
func (s *Sweep) Wait() Stats {
	<-s.done
	return s.Stats()
}

// Stats 返回当前计数快照。
func (s *Sweep) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Stats{
		ID:          s.ID,
		Total:       s.total,
		Processed:   s.processed,
		Succeeded:   s.succeeded,
		Failed:      s.failed,
		NewArticles: int(s.newArticles.Load()),
		Cancelled:   s.cancelled,
		Elapsed:     s.elapsed,
	}
	if !s.finished {
		st.Elapsed = s.now().Sub(s.startedAt)
		st.Cancelled = s.pool.Cancelled()
	}
	if st.Processed > 0 && st.Processed < st.Total {
		st.Remaining = time.Duration(float64(st.Elapsed) / float64(st.Processed) * float64(st.Total-st.Processed))
	}
	return st
}
