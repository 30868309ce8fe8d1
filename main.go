// 命令行入口：
// - 解析 flags 与 settings.yaml/rules.yaml
// - 初始化日志、HTTP 客户端、数据库
// - 按 flags 依次执行：种子发现 → 站点爬取 → 信任传播 → 批量索引 → 统计/导出
// - -daemon 时按 CRON 定时执行索引与信任重建，并暴露 /metrics
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"syscall"

	"indie-blog-circles/internal/config"
	"indie-blog-circles/internal/events"
	"indie-blog-circles/internal/export"
	"indie-blog-circles/internal/fetch"
	"indie-blog-circles/internal/indexer"
	"indie-blog-circles/internal/links"
	"indie-blog-circles/internal/logx"
	"indie-blog-circles/internal/metrics"
	"indie-blog-circles/internal/orchestrator"
	"indie-blog-circles/internal/rules"
	"indie-blog-circles/internal/seeds"
	"indie-blog-circles/internal/store"
)

func main() {
	var (
		configPath = flag.String("config", "settings.yaml", "path to settings.yaml")
		rulesPath  = flag.String("rules", "rules.yaml", "path to rules.yaml (optional)")
		exportPath = flag.String("export", "", "write the graph as json to this path")
		site       = flag.String("site", "", "crawl a single site and print the detected signals")
		reset      = flag.Bool("reset", false, "clear all tables before running")
		doSeeds    = flag.Bool("seeds", false, "discover sites from SEED_SOURCES")
		doCrawl    = flag.Bool("crawl", false, "fingerprint every known site and record friend links")
		doTrust    = flag.Bool("trust", false, "propagate trust scores from the root seeds")
		doSweep    = flag.Bool("sweep", false, "index articles from every site's feed")
		backfill   = flag.Int("backfill", 0, "detect language for up to N articles missing one")
		candidates = flag.Bool("candidates", false, "print derived seed candidates")
		stats      = flag.Bool("stats", false, "print graph statistics")
		daemon     = flag.Bool("daemon", false, "run sweeps and trust rebuilds on the CRON schedule")
	)
	flag.Parse()

	// 1) 加载配置与规则
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	var rl *rules.Rules
	if *rulesPath != "" {
		if r, err := rules.Load(*rulesPath); err == nil {
			rl = r
		} else if !errors.Is(err, fs.ErrNotExist) {
			log.Printf("load rules failed: %v", err)
		}
	}
	// 2) 初始化日志：级别/格式/语言/颜色
	logx.Init(cfg.LogLevel, cfg.LogFormat, cfg.LogLocale, cfg.LogColor)

	// 3) 初始化 HTTP 客户端（代理、超时、按主机限速）
	cl, err := fetch.New(fetch.Options{
		ProxyHTTP:  cfg.Proxy.HTTP,
		ProxyHTTPS: cfg.Proxy.HTTPS,
		Timeout:    cfg.Crawl.Timeout(),
		Retry:      cfg.Concurrency.Retry,
		UserAgent:  cfg.Crawl.UserAgent,
		PerHostRPS: cfg.Crawl.PerHostRPS,
	})
	if err != nil {
		log.Fatalf("http client: %v", err)
	}

	// 4) 数据存储
	st, err := store.OpenSQLite(cfg.Database.DSN)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *reset {
		if err := st.Reset(ctx); err != nil {
			logx.Warnf("启动清理数据库失败：%v", err)
		} else {
			logx.Infof("已清理数据库表（sites/relationships/articles/comment_snapshots）")
		}
	}

	bl := links.DefaultBlocklist(cfg.Blocklist...)
	orch := orchestrator.New(st, cl, bl, rl, orchestrator.Options{
		RootSeeds:         cfg.RootSeedURLs(),
		MaxHops:           cfg.Crawl.MaxHops,
		Concurrency:       cfg.Concurrency.Fetch,
		FetchOPML:         cfg.Crawl.OPMLEnabled(),
		FollowFriendsPage: true,
		Timeout:           cfg.Crawl.Timeout(),
	})
	// 未接入评论计数器：不写评论快照
	idx := indexer.New(st, cl, indexer.Options{
		Concurrency: cfg.Concurrency.Fetch,
		DueOnly:     cfg.Crawl.DueOnly,
		Sink:        events.Multi(events.LogSink{}, metrics.EventSink{}),
	})
	app := &app{cfg: cfg, store: st, fetch: cl, blocklist: bl, orch: orch, idx: idx}

	if *site != "" {
		// 调试：仅处理单个站点并打印识别结果后退出
		rep, err := orch.CrawlSite(ctx, *site)
		if err != nil {
			log.Fatalf("crawl %s: %v", *site, err)
		}
		printJSON(rep)
		return
	}
	if *daemon {
		if err := app.runDaemon(ctx); err != nil {
			logx.Errorf("守护进程退出：%v", err)
			os.Exit(1)
		}
		return
	}

	// 未指定任何步骤时执行完整流程
	if !*doSeeds && !*doCrawl && !*doTrust && !*doSweep && *backfill == 0 && !*candidates && !*stats && *exportPath == "" {
		*doSeeds, *doCrawl, *doTrust, *doSweep, *stats = true, true, true, true, true
	}
	if *doSeeds {
		app.discoverSeeds(ctx)
	}
	if *doCrawl {
		if err := app.crawl(ctx); err != nil {
			log.Fatalf("crawl: %v", err)
		}
	}
	if *doTrust {
		if _, err := orch.BuildTrustGraph(ctx); err != nil {
			log.Fatalf("build trust graph: %v", err)
		}
	}
	if *doSweep {
		if err := app.sweep(ctx); err != nil {
			log.Fatalf("sweep: %v", err)
		}
	}
	if *backfill > 0 {
		n, err := idx.BackfillLanguages(ctx, *backfill)
		if err != nil {
			log.Fatalf("backfill languages: %v", err)
		}
		logx.Infof("已回填 %d 篇文章的语言", n)
	}
	if *candidates {
		list, err := orch.FindDerivedSeedCandidates(ctx)
		if err != nil {
			log.Fatalf("candidates: %v", err)
		}
		for _, c := range list {
			logx.Infof("- %s 信任=%.3f 出边=%d OPML=%s", c.Site.URL, c.Site.TrustScore, c.OutboundCount, c.Site.OPMLURL)
		}
		logx.Infof("衍生种子候选：%d", len(list))
	}
	if *stats {
		gs, err := orch.GraphStats(ctx)
		if err != nil {
			log.Fatalf("graph stats: %v", err)
		}
		printJSON(gs)
	}
	if *exportPath != "" {
		if err := app.export(ctx, *exportPath); err != nil {
			log.Fatalf("export json: %v", err)
		}
		logx.Infof("已导出 %s", *exportPath)
	}
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

// app 汇总各组件，供命令行与守护进程共用。
type app struct {
	cfg       *config.Config
	store     *store.SQLite
	fetch     *fetch.Client
	blocklist *links.Blocklist
	orch      *orchestrator.Orchestrator
	idx       *indexer.Indexer
}

func (a *app) discoverSeeds(ctx context.Context) {
	if len(a.cfg.SeedSources) == 0 {
		logx.Warnf("未配置 SEED_SOURCES，跳过种子发现")
		return
	}
	rep := seeds.New(a.store, a.fetch, a.blocklist, a.cfg.Concurrency.Seeds).Discover(ctx, a.cfg.SeedSources)
	logx.Infof("种子发现完成：来源成功=%d 失败=%d 候选=%d 新站点=%d", rep.Succeeded, rep.Failed, rep.Found, rep.Added)
}

func (a *app) crawl(ctx context.Context) error {
	rep, err := a.orch.CrawlAll(ctx)
	if err != nil {
		return err
	}
	logx.Infof("爬取完成：站点=%d 成功=%d 失败=%d 未变化=%d 友链=%d", rep.Total, rep.Succeeded, rep.Failed, rep.Unchanged, rep.Links)
	return nil
}

func (a *app) sweep(ctx context.Context) error {
	s, err := a.idx.Run(ctx)
	if err != nil {
		return err
	}
	logx.Infof("索引完成：处理=%d/%d 成功=%d 失败=%d 新文章=%d 取消=%v", s.Processed, s.Total, s.Succeeded, s.Failed, s.NewArticles, s.Cancelled)
	return nil
}

func (a *app) export(ctx context.Context, path string) error {
	gs, err := a.orch.GraphStats(ctx)
	if err != nil {
		return err
	}
	list, err := a.orch.FindDerivedSeedCandidates(ctx)
	if err != nil {
		return err
	}
	urls := make([]string, 0, len(list))
	for _, c := range list {
		urls = append(urls, c.Site.URL)
	}
	return export.ToJSON(ctx, a.store, gs, urls, path)
}
