// 包 trust 为纯计算：根据入边计算站点信任分与跳数、内容质量修正与衍生种子判定。
package trust

import "indie-blog-circles/internal/model"

const (
	RootTrust   = 1.0
	MinTrust    = 0.1 // 无入边站点的下限：可能只是新发现，不等于不可信
	DecayFactor = 0.8

	PromoteMinTrust = 0.8
	PromoteMinLinks = 10
)

// methodBonus 奖励基于协议的发现方式。
var methodBonus = map[string]float64{
	model.MethodOPML:        0.2,
	model.MethodXFN:         0.1,
	model.MethodMicroformat: 0.1,
	model.MethodHeuristic:   0,
}

// MethodBonus 返回发现方式的加成，未知方式为 0。
func MethodBonus(method string) float64 { return methodBonus[method] }

// Incoming 为一条入边及其来源站点的当前状态。
type Incoming struct {
	SourceURL   string
	SourceTrust float64
	SourceHop   *int // nil 表示来源尚不可达
	Confidence  float64
	Method      string
}

// Input 为单个站点的计算输入。
type Input struct {
	IsRootSeed bool
	Incoming   []Incoming
}

// EdgeTrust 为单条入边贡献的信任：来源信任 × 衰减 × min(1, 置信度 + 方式加成)。
func EdgeTrust(in Incoming) float64 {
	return in.SourceTrust * DecayFactor * min(1.0, in.Confidence+MethodBonus(in.Method))
}

// TrustFromSeeds 计算信任分：根种子为 1；无入边为下限；否则取各入边贡献的最大值。
func TrustFromSeeds(in Input) float64 {
	if in.IsRootSeed {
		return RootTrust
	}
	if len(in.Incoming) == 0 {
		return MinTrust
	}
	best := 0.0
	for _, e := range in.Incoming {
		best = max(best, EdgeTrust(e))
	}
	return clamp(best, 0, 1)
}

// HopCount 根种子为 0；否则为已知来源跳数的最小值加 1；没有已知来源返回 nil。
func HopCount(in Input) *int {
	if in.IsRootSeed {
		return intPtr(0)
	}
	var best *int
	for _, e := range in.Incoming {
		if e.SourceHop == nil {
			continue
		}
		if best == nil || *e.SourceHop < *best {
			v := *e.SourceHop
			best = &v
		}
	}
	if best == nil {
		return nil
	}
	return intPtr(*best + 1)
}

// Quality 为内容质量修正的输入。
type Quality struct {
	PostsPerDay      float64
	HasAuthorInfo    bool
	HasOriginalDates bool
}

const (
	spamPostsPerDay = 10.0
	minQuality      = 0.3
	maxQuality      = 1.2
)

// ContentQuality 返回 [0.3, 1.2] 内的修正系数：
// 日更超过 10 篇按比例压低；缺作者信息 ×0.95；有原始发布日期 ×1.02。
func ContentQuality(q Quality) float64 {
	m := 1.0
	if q.PostsPerDay > spamPostsPerDay {
		m /= q.PostsPerDay / spamPostsPerDay
	}
	if !q.HasAuthorInfo {
		m *= 0.95
	}
	if q.HasOriginalDates {
		m *= 1.02
	}
	return clamp(m, minQuality, maxQuality)
}

// FinalTrust = clamp01(TrustFromSeeds × ContentQuality)。
func FinalTrust(in Input, q Quality) float64 {
	if in.IsRootSeed {
		return RootTrust
	}
	return clamp(TrustFromSeeds(in)*ContentQuality(q), 0, 1)
}

// Candidate 为衍生种子判定的输入。
type Candidate struct {
	TrustScore      float64
	HasOPML         bool
	FriendLinkCount int
}

// ShouldPromoteToDerivedSeed 三个条件必须同时满足：信任 ≥ 0.8、发布 OPML、出边 ≥ 10。
func ShouldPromoteToDerivedSeed(c Candidate) bool {
	return c.TrustScore >= PromoteMinTrust && c.HasOPML && c.FriendLinkCount >= PromoteMinLinks
}

func clamp(v, lo, hi float64) float64 {
	return max(lo, min(hi, v))
}

func intPtr(v int) *int { return &v }
