package orchestrator

import (
	"context"
	"errors"
	"time"

	"indie-blog-circles/internal/metrics"
	"indie-blog-circles/internal/model"
	"indie-blog-circles/internal/store"
	"indie-blog-circles/internal/trust"
)

// qualityWindow 为计算发文频率的时间窗口。
const qualityWindow = 30 * 24 * time.Hour

// TrustReport 为一次信任传播的结果。
type TrustReport struct {
	Roots    int
	Reached  int   // 可达站点数（含根种子）
	MaxHop   int   // 实际到达的最大跳数
	Floored  int64 // 不可达、信任分被置为下限的站点数
	Duration time.Duration
}

type hopScore struct {
	url   string
	trust float64
	hop   *int
}

// BuildTrustGraph 从根种子出发逐跳传播信任：
// 第 h 跳只处理由第 h-1 跳站点指向、且自身跳数未知的站点，
// 只按跳数不超过 h-1 的入边计算信任与跳数；没有新站点或到达最大跳数时停止。
// 传播结束后仍不可达的站点信任分置为下限。
func (o *Orchestrator) BuildTrustGraph(ctx context.Context) (TrustReport, error) {
	start := o.opts.Now()
	rep := TrustReport{Roots: len(o.roots)}
	if err := o.store.ResetHops(ctx); err != nil {
		return rep, err
	}
	zero := 0
	for _, r := range o.roots {
		if _, err := o.store.EnsureSite(ctx, r, nil); err != nil {
			return rep, err
		}
		if err := o.store.SetTrust(ctx, r, trust.RootTrust, &zero); err != nil {
			return rep, err
		}
	}
	rep.Reached = len(o.roots)

	for hop := 1; hop <= o.opts.MaxHops; hop++ {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		targets, err := o.store.FrontierTargets(ctx, hop-1)
		if err != nil {
			return rep, err
		}
		if len(targets) == 0 {
			break
		}
		// 先算完整跳再统一写回：同跳站点之间互不可见
		scored := make([]hopScore, 0, len(targets))
		for _, t := range targets {
			score, h, err := o.scoreSite(ctx, t)
			if err != nil {
				return rep, err
			}
			scored = append(scored, hopScore{url: t, trust: score, hop: h})
		}
		for _, sc := range scored {
			if err := o.store.SetTrust(ctx, sc.url, sc.trust, sc.hop); err != nil {
				return rep, err
			}
		}
		rep.Reached += len(targets)
		rep.MaxHop = hop
		o.log.Debug("trust hop done", "hop", hop, "sites", len(targets))
	}

	n, err := o.store.FloorUnreached(ctx, trust.MinTrust)
	if err != nil {
		return rep, err
	}
	rep.Floored = n
	rep.Duration = o.opts.Now().Sub(start)
	metrics.TrustReached.Set(float64(rep.Reached))
	o.log.Info("trust graph built", "roots", rep.Roots, "reached", rep.Reached, "max_hop", rep.MaxHop, "unreached", rep.Floored)
	return rep, nil
}

// scoreSite 以已知跳数的入边计算站点的信任分与跳数。
func (o *Orchestrator) scoreSite(ctx context.Context, url string) (float64, *int, error) {
	edges, err := o.store.IncomingEdges(ctx, url)
	if err != nil {
		return 0, nil, err
	}
	in := trust.Input{}
	for _, e := range edges {
		if e.SourceHop == nil {
			continue
		}
		in.Incoming = append(in.Incoming, trust.Incoming{
			SourceURL:   e.SourceURL,
			SourceTrust: e.SourceTrust,
			SourceHop:   e.SourceHop,
			Confidence:  e.Confidence,
			Method:      e.Method,
		})
	}
	q, err := o.quality(ctx, url)
	if err != nil {
		return 0, nil, err
	}
	return trust.FinalTrust(in, q), trust.HopCount(in), nil
}

// quality 由站点文章统计得出内容质量输入；站点行缺失时按无信息处理。
// 作者信息来自首页的作者声明、微格式或订阅文章的署名，任一即可。
func (o *Orchestrator) quality(ctx context.Context, url string) (trust.Quality, error) {
	st, err := o.store.GetSite(ctx, url)
	if errors.Is(err, store.ErrNotFound) {
		return trust.Quality{}, nil
	}
	if err != nil {
		return trust.Quality{}, err
	}
	stats, err := o.store.SiteArticleStats(ctx, st.ID, o.opts.Now().Add(-qualityWindow))
	if err != nil {
		return trust.Quality{}, err
	}
	return trust.Quality{
		PostsPerDay:      float64(stats.Recent) / (qualityWindow.Hours() / 24),
		HasAuthorInfo:    st.Author != "" || st.HasMicroformats || stats.Authored > 0,
		HasOriginalDates: stats.Dated > 0,
	}, nil
}

// FindDerivedSeedCandidates 先按关系条件筛选，再以同一判定在进程内复核。
func (o *Orchestrator) FindDerivedSeedCandidates(ctx context.Context) ([]store.CandidateRow, error) {
	rows, err := o.store.DerivedSeedCandidates(ctx, trust.PromoteMinTrust, trust.PromoteMinLinks)
	if err != nil {
		return nil, err
	}
	out := rows[:0]
	for _, r := range rows {
		c := trust.Candidate{TrustScore: r.Site.TrustScore, HasOPML: r.Site.HasOPML, FriendLinkCount: r.OutboundCount}
		if trust.ShouldPromoteToDerivedSeed(c) {
			out = append(out, r)
		}
	}
	return out, nil
}

// GraphStats 返回图谱覆盖度统计，含当前衍生种子候选数。
func (o *Orchestrator) GraphStats(ctx context.Context) (model.GraphStats, error) {
	st, err := o.store.GraphStats(ctx)
	if err != nil {
		return st, err
	}
	cands, err := o.FindDerivedSeedCandidates(ctx)
	if err != nil {
		return st, err
	}
	st.Candidates = len(cands)
	return st, nil
}
