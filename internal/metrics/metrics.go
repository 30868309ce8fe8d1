// 包 metrics 暴露 Prometheus 指标，并提供一个把生命周期事件转为计数的 Sink。
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"indie-blog-circles/internal/events"
)

var (
	// FetchResults 按结果（ok/unchanged/error/timeout）统计条件请求。
	FetchResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "circles_fetch_results_total",
		Help: "Conditional fetches by outcome.",
	}, []string{"outcome"})
	// SitesIndexed 按结果统计批量索引处理的站点。
	SitesIndexed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "circles_sites_indexed_total",
		Help: "Sites processed by the batch indexer, by result.",
	}, []string{"result"})
	NewArticles = promauto.NewCounter(prometheus.CounterOpts{
		Name: "circles_new_articles_total",
		Help: "Newly inserted articles.",
	})
	CommentChanges = promauto.NewCounter(prometheus.CounterOpts{
		Name: "circles_comment_snapshots_total",
		Help: "Comment snapshots written after a count change.",
	})
	// SitesCrawled 按结果统计编排器处理的站点。
	SitesCrawled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "circles_sites_crawled_total",
		Help: "Sites fingerprinted by the crawl orchestrator, by result.",
	}, []string{"result"})
	FriendLinks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "circles_friend_links_total",
		Help: "Friend-link edges upserted, by discovery method.",
	}, []string{"method"})
	// TrustReached 为最近一次信任传播中可达的站点数。
	TrustReached = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "circles_trust_reached_sites",
		Help: "Sites reachable from a root seed after the last trust propagation.",
	})
	SweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "circles_sweep_duration_seconds",
		Help:    "Batch indexer sweep duration.",
		Buckets: prometheus.ExponentialBuckets(1, 4, 8),
	})
)

// EventSink 将生命周期事件映射为计数器。
type EventSink struct{}

func (EventSink) Emit(e events.Event) {
	switch e.Type {
	case events.BlogComplete:
		SitesIndexed.WithLabelValues("ok").Inc()
	case events.Error:
		SitesIndexed.WithLabelValues("error").Inc()
	case events.NewArticle:
		NewArticles.Inc()
	case events.NewComment:
		CommentChanges.Inc()
	}
}
