package indexer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"indie-blog-circles/internal/events"
	"indie-blog-circles/internal/fetch"
	"indie-blog-circles/internal/model"
	"indie-blog-circles/internal/pool"
	"indie-blog-circles/internal/store"
)

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

const feedBody = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel><title>Alice</title>
<item><title>Rebuilding my blogroll page</title><link>/posts/1/</link><pubDate>Thu, 30 May 2024 08:00:00 GMT</pubDate></item>
<item><title>Notes on static site generators</title><link>/posts/2/</link><pubDate>Mon, 01 Jan 2024 08:00:00 GMT</pubDate></item>
</channel></rss>`

// blogServer 提供首页与 /feed.xml；带上次 ETag 的请求返回 304。
func blogServer(t *testing.T, feedHits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/":
			_, _ = w.Write([]byte(`<html lang="zh-CN"><head><title>Alice</title></head><body>hi</body></html>`))
		case "/feed.xml":
			if feedHits != nil {
				feedHits.Add(1)
			}
			if r.Header.Get("If-None-Match") == `"v1"` {
				w.WriteHeader(http.StatusNotModified)
				return
			}
			w.Header().Set("Content-Type", "application/rss+xml")
			w.Header().Set("ETag", `"v1"`)
			_, _ = w.Write([]byte(feedBody))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func deadServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(srv.Close)
	return srv
}

func setup(t *testing.T, opts Options) (*Indexer, *store.SQLite) {
	t.Helper()
	s, err := store.OpenSQLite(filepath.Join(t.TempDir(), "idx.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	cl, err := fetch.New(fetch.Options{Timeout: 5 * time.Second})
	require.NoError(t, err)
	if opts.Now == nil {
		opts.Now = func() time.Time { return testNow }
	}
	return New(s, cl, opts), s
}

func TestSweep_IndexesArticlesAndIsolatesFailures(t *testing.T) {
	ctx := context.Background()
	rec := &events.Recorder{}
	ix, s := setup(t, Options{Concurrency: 2, Sink: rec})
	good, bad := blogServer(t, nil), deadServer(t)
	_, err := s.EnsureSite(ctx, good.URL, []string{"en"})
	require.NoError(t, err)
	_, err = s.EnsureSite(ctx, bad.URL, nil)
	require.NoError(t, err)

	stats, err := ix.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 2, stats.Processed)
	assert.Equal(t, 1, stats.Succeeded)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 2, stats.NewArticles)
	assert.False(t, stats.Cancelled)
	assert.NotEmpty(t, stats.ID)

	site, err := s.GetSite(ctx, good.URL)
	require.NoError(t, err)
	assert.Equal(t, good.URL+"/feed.xml", site.FeedURL)
	assert.Equal(t, `"v1"`, site.ETag)
	assert.Equal(t, "active", site.CrawlTier)
	require.NotNil(t, site.NextCrawlAt)
	assert.True(t, site.NextCrawlAt.Equal(testNow.Add(time.Hour)))
	assert.Equal(t, []string{"zh", "en"}, site.Languages)
	assert.Zero(t, site.ErrorCount)

	arts, err := s.ListArticles(ctx, site.ID)
	require.NoError(t, err)
	require.Len(t, arts, 2)
	assert.Equal(t, good.URL+"/posts/1/", arts[0].URL)
	assert.Equal(t, "en", arts[0].Language)

	failed, err := s.GetSite(ctx, bad.URL)
	require.NoError(t, err)
	assert.Equal(t, 1, failed.ErrorCount)
	assert.NotEmpty(t, failed.LastError)
	assert.Nil(t, failed.LastCrawledAt)

	assert.Len(t, rec.OfType(events.BlogStart), 2)
	assert.Len(t, rec.OfType(events.BlogComplete), 1)
	assert.Len(t, rec.OfType(events.Error), 1)
	assert.Len(t, rec.OfType(events.NewArticle), 2)
	progress := rec.OfType(events.Progress)
	require.Len(t, progress, 2)
	assert.Equal(t, 2, progress[1].Progress.Processed)
	for _, e := range rec.Events() {
		assert.Equal(t, stats.ID, e.SweepID)
	}
}

func TestSweep_ConditionalRefetch(t *testing.T) {
	ctx := context.Background()
	var hits atomic.Int32
	ix, s := setup(t, Options{})
	srv := blogServer(t, &hits)
	_, err := s.EnsureSite(ctx, srv.URL, nil)
	require.NoError(t, err)

	first, err := ix.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, first.NewArticles)

	second, err := ix.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, second.Succeeded)
	assert.Zero(t, second.NewArticles)
	assert.EqualValues(t, 2, hits.Load())

	site, err := s.GetSite(ctx, srv.URL)
	require.NoError(t, err)
	assert.Equal(t, `"v1"`, site.ETag)
}

func TestSweep_DueOnlySkipsScheduledSites(t *testing.T) {
	ctx := context.Background()
	ix, s := setup(t, Options{DueOnly: true})
	srv := blogServer(t, nil)
	_, err := s.EnsureSite(ctx, srv.URL, nil)
	require.NoError(t, err)
	err = s.RecordSiteSuccess(ctx, srv.URL, store.CrawlSuccess{
		CrawledAt:   testNow,
		Tier:        "normal",
		NextCrawlAt: testNow.Add(6 * time.Hour),
	})
	require.NoError(t, err)

	stats, err := ix.Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Total)
	assert.Zero(t, stats.Processed)
}

func TestSweep_CommentSnapshotsOnlyOnChange(t *testing.T) {
	ctx := context.Background()
	rec := &events.Recorder{}
	var calls atomic.Int32
	counter := CommentCounterFunc(func(_ context.Context, _, system string) (int, error) {
		calls.Add(1)
		assert.Equal(t, "giscus", system)
		return 3, nil
	})
	ix, s := setup(t, Options{Sink: rec, Comments: counter})
	srv := blogServer(t, nil)
	_, err := s.EnsureSite(ctx, srv.URL, nil)
	require.NoError(t, err)
	require.NoError(t, s.UpdateSignals(ctx, srv.URL, store.Signals{CommentSystem: "giscus"}))

	_, err = ix.Run(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, calls.Load())
	assert.Len(t, rec.OfType(events.NewComment), 2)

	site, err := s.GetSite(ctx, srv.URL)
	require.NoError(t, err)
	arts, err := s.ListArticles(ctx, site.ID)
	require.NoError(t, err)
	n, ok, err := s.LatestCommentCount(ctx, arts[0].ID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 3, n)

	// 已存在的文章不再抓取评论数
	_, err = ix.Run(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, calls.Load())
}

func TestStart_RejectsConcurrentSweep(t *testing.T) {
	ctx := context.Background()
	release := make(chan struct{})
	entered := make(chan struct{})
	var once sync.Once
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		once.Do(func() { close(entered) })
		<-release
		http.NotFound(w, r)
	}))
	defer srv.Close()

	ix, s := setup(t, Options{Concurrency: 1})
	_, err := s.EnsureSite(ctx, srv.URL, nil)
	require.NoError(t, err)

	sw, err := ix.Start(ctx)
	require.NoError(t, err)
	<-entered
	assert.Same(t, sw, ix.Active())
	_, err = ix.Start(ctx)
	assert.ErrorIs(t, err, ErrSweepRunning)

	close(release)
	stats := sw.Wait()
	assert.Equal(t, 1, stats.Processed)
	assert.Nil(t, ix.Active())

	again, err := ix.Start(ctx)
	require.NoError(t, err)
	again.Wait()
}

func TestSweep_CancelStopsNewSites(t *testing.T) {
	ctx := context.Background()
	release := make(chan struct{})
	entered := make(chan struct{})
	var once sync.Once
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		once.Do(func() { close(entered) })
		<-release
		http.NotFound(w, r)
	}))
	defer srv.Close()

	ix, s := setup(t, Options{Concurrency: 1})
	for _, p := range []string{"/a", "/b", "/c"} {
		_, err := s.EnsureSite(ctx, srv.URL+p, nil)
		require.NoError(t, err)
	}
	sw, err := ix.Start(ctx)
	require.NoError(t, err)
	<-entered
	sw.Cancel()
	sw.Cancel()
	close(release)

	stats := sw.Wait()
	assert.True(t, stats.Cancelled)
	assert.Equal(t, 1, stats.Processed)
	assert.Equal(t, 3, stats.Total)
}

func TestStats_Remaining(t *testing.T) {
	clock := testNow
	p := pool.New(func(context.Context, model.Site) (int, error) { return 0, nil }, pool.Options{})
	sw := &Sweep{pool: p, now: func() time.Time { return clock }, startedAt: testNow, total: 4}
	sw.processed = 1
	clock = testNow.Add(10 * time.Second)
	assert.Equal(t, 30*time.Second, sw.Stats().Remaining)
	assert.False(t, sw.Stats().Cancelled)
	// 取消请求在扫描结束前即可见
	sw.Cancel()
	assert.True(t, sw.Stats().Cancelled)
	sw.processed = 4
	assert.Zero(t, sw.Stats().Remaining)
}

func TestBackfillLanguages(t *testing.T) {
	ctx := context.Background()
	ix, s := setup(t, Options{})
	_, err := s.EnsureSite(ctx, "https://alice.dev", nil)
	require.NoError(t, err)
	site, err := s.GetSite(ctx, "https://alice.dev")
	require.NoError(t, err)
	_, _, err = s.InsertArticle(ctx, articleWith(site.ID, "https://alice.dev/p/1", "今天折腾了一下博客的友情链接页面顺便升级了主题"))
	require.NoError(t, err)
	_, _, err = s.InsertArticle(ctx, articleWith(site.ID, "https://alice.dev/p/2", "42"))
	require.NoError(t, err)

	n, err := ix.BackfillLanguages(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	arts, err := s.ArticlesMissingLanguage(ctx, 10)
	require.NoError(t, err)
	require.Len(t, arts, 1)
	assert.Equal(t, "https://alice.dev/p/2", arts[0].URL)
}

func articleWith(siteID int64, url, title string) model.Article {
	return model.Article{SiteID: siteID, URL: url, Title: title}
}

func TestSweep_PrefersAdvertisedFeed(t *testing.T) {
	ctx := context.Background()
	var probes atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/":
			_, _ = w.Write([]byte(`<html lang="en"><body>hi</body></html>`))
		case "/custom/index.atom":
			w.Header().Set("Content-Type", "application/atom+xml")
			_, _ = w.Write([]byte(`<?xml version="1.0" encoding="utf-8"?>
<feed xmlns="http://www.w3.org/2005/Atom"><title>Alice</title><author><name>Alice Liddell</name></author>
<entry><title>Hello again</title><link href="/p/hello/"/><updated>2024-05-30T08:00:00Z</updated></entry>
</feed>`))
		default:
			probes.Add(1)
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)

	ix, s := setup(t, Options{})
	_, err := s.EnsureSite(ctx, srv.URL, nil)
	require.NoError(t, err)
	require.NoError(t, s.UpdateSignals(ctx, srv.URL, store.Signals{AdvertisedFeed: srv.URL + "/custom/index.atom"}))

	stats, err := ix.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Succeeded)
	assert.Zero(t, probes.Load())

	site, err := s.GetSite(ctx, srv.URL)
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/custom/index.atom", site.FeedURL)

	arts, err := s.ListArticles(ctx, site.ID)
	require.NoError(t, err)
	require.Len(t, arts, 1)
	// 条目没有署名时沿用订阅级作者
	assert.Equal(t, "Alice Liddell", arts[0].Author)
}
