// 包 links 提供 URL 规范化、相对链接绝对化与"是否像独立博客"的过滤规则，
// 友链抽取与种子发现共用同一套校验与屏蔽名单。
package links

import (
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// Normalize 规范化站点 URL 以便去重：
// - 缺省协议补 https://，协议不区分大小写
// - host 小写并去掉 www.
// - 去掉结尾斜杠、query 与 fragment
func Normalize(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	lower := strings.ToLower(raw)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		if strings.Contains(raw, "://") {
			return ""
		}
		raw = "https://" + strings.TrimPrefix(raw, "//")
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	host := strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	path := strings.TrimRight(u.EscapedPath(), "/")
	return strings.ToLower(u.Scheme) + "://" + host + path
}

// Origin 返回 scheme://host 形式的站点首页（已规范化）。
func Origin(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return ""
	}
	return Normalize(u.Scheme + "://" + u.Host)
}

// Resolve 将 ref 相对 base 绝对化，失败返回空串。
func Resolve(base, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	ru, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	if ru.IsAbs() {
		return ru.String()
	}
	bu, err := url.Parse(base)
	if err != nil {
		return ""
	}
	return bu.ResolveReference(ru).String()
}

// Host 返回去掉 www. 的小写主机名。
func Host(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

// SameSite 判断两个 URL 是否属于同一注册域（eTLD+1），
// 解析失败时退化为主机名比较。
func SameSite(a, b string) bool {
	ha, hb := Host(a), Host(b)
	if ha == "" || hb == "" {
		return ha == hb
	}
	if ha == hb {
		return true
	}
	ra, errA := publicsuffix.EffectiveTLDPlusOne(ha)
	rb, errB := publicsuffix.EffectiveTLDPlusOne(hb)
	if errA != nil || errB != nil {
		return false
	}
	// 公共后缀表包含 github.io 等托管平台，a.github.io 与 b.github.io 不会被视为同站
	return ra == rb
}
