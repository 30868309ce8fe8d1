// 包 tier 按更新活跃度划分抓取档位并计算下次可抓取时间，均为纯函数。
package tier

import "time"

// Tier 为站点的抓取档位。
type Tier string

const (
	Active  Tier = "active"  // 7 天内有更新
	Normal  Tier = "normal"  // 90 天内有更新
	Dormant Tier = "dormant" // 超过 90 天或从未更新
)

// 档位阈值（按整天计）。
const (
	activeDays = 7
	normalDays = 90
)

var intervals = map[Tier]time.Duration{
	Active:  time.Hour,
	Normal:  6 * time.Hour,
	Dormant: 7 * 24 * time.Hour,
}

// Interval 返回档位的复查间隔；未知档位按 Dormant 处理。
func Interval(t Tier) time.Duration {
	if d, ok := intervals[t]; ok {
		return d
	}
	return intervals[Dormant]
}

// DetermineTier 根据最近一篇文章的发布时间划分档位，边界含 7 天与 90 天。
func DetermineTier(lastPost *time.Time, now time.Time) Tier {
	if lastPost == nil || lastPost.IsZero() {
		return Dormant
	}
	days := int(now.Sub(*lastPost) / (24 * time.Hour))
	switch {
	case days <= activeDays:
		return Active
	case days <= normalDays:
		return Normal
	default:
		return Dormant
	}
}

// NextCrawlAt 从未抓取过返回 now（立即），否则为上次抓取时间加档位间隔。
func NextCrawlAt(t Tier, lastCrawled *time.Time, now time.Time) time.Time {
	if lastCrawled == nil || lastCrawled.IsZero() {
		return now
	}
	return lastCrawled.Add(Interval(t))
}

// ShouldCrawlNow 没有排期视为立即抓取。
func ShouldCrawlNow(next *time.Time, now time.Time) bool {
	if next == nil || next.IsZero() {
		return true
	}
	return !now.Before(*next)
}
