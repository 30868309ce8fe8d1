package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"

	"indie-blog-circles/internal/indexer"
	"indie-blog-circles/internal/logx"
)

const (
	defaultSweepSchedule = "@every 1h"
	defaultTrustSchedule = "@every 6h"
)

// runDaemon 按 CRON 定时执行：种子发现+爬取+信任重建，以及批量索引；阻塞至 ctx 取消。
func (a *app) runDaemon(ctx context.Context) error {
	if a.cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv := &http.Server{Addr: a.cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			logx.Infof("metrics 监听 %s", a.cfg.MetricsAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logx.Errorf("metrics 服务退出：%v", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	cronLog := cron.PrintfLogger(log.Default())
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cronLog), cron.Recover(cronLog)))

	sweepSpec := orDefault(a.cfg.Cron.Sweep, defaultSweepSchedule)
	if _, err := c.AddFunc(sweepSpec, func() {
		if sw := a.idx.Active(); sw != nil {
			st := sw.Stats()
			logx.Warnf("上一轮索引 %s 仍在进行（%d/%d），跳过", st.ID, st.Processed, st.Total)
			return
		}
		if err := a.sweep(ctx); err != nil {
			if errors.Is(err, indexer.ErrSweepRunning) {
				logx.Warnf("上一轮索引仍在进行，跳过")
				return
			}
			logx.Errorf("定时索引失败：%v", err)
		}
	}); err != nil {
		return err
	}
	trustSpec := orDefault(a.cfg.Cron.Trust, defaultTrustSchedule)
	if _, err := c.AddFunc(trustSpec, func() { a.rebuild(ctx) }); err != nil {
		return err
	}

	logx.Infof("守护进程启动：索引=%s 信任重建=%s", sweepSpec, trustSpec)
	// 启动时先完整执行一次
	a.rebuild(ctx)
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	logx.Infof("守护进程已停止")
	return nil
}

// rebuild 扩展站点集合并重建信任图谱。
func (a *app) rebuild(ctx context.Context) {
	a.discoverSeeds(ctx)
	if err := a.crawl(ctx); err != nil {
		logx.Errorf("定时爬取失败：%v", err)
		return
	}
	if _, err := a.orch.BuildTrustGraph(ctx); err != nil {
		logx.Errorf("信任重建失败：%v", err)
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
