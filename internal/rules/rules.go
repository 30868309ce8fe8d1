// 包 rules 加载主题预设（rules.yaml）：以主题名（如 butterfly/stellar）为键，
// 给出友链页的 CSS 选择器，供友链抽取的启发式阶段使用。
package rules

import (
	"fmt"
	"os"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"gopkg.in/yaml.v3"
)

// Rules 表示全部规则集合：键为主题名，值为具体规则。
type Rules struct {
	Presets map[string]Preset `yaml:",inline"`
}

// Preset 为单个主题预设的解析规则集合。
type Preset struct {
	FriendsPage *FriendsPage `yaml:"friends_page"`
}

// FriendsPage 描述友链页的选择器：
// - item：每个朋友条目容器
// - name/link：取文本或属性（支持 a@href / @data-href），"||" 分隔多个候选
type FriendsPage struct {
	Item string `yaml:"item"`
	Name string `yaml:"name"`
	Link string `yaml:"link"`
}

// Load 从文件加载 YAML。
func Load(path string) (*Rules, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules %s: %w", path, err)
	}
	return Parse(b)
}

// Parse 解析 YAML 内容。
func Parse(b []byte) (*Rules, error) {
	var r Rules
	if err := yaml.Unmarshal(b, &r.Presets); err != nil {
		return nil, fmt.Errorf("unmarshal rules: %w", err)
	}
	return &r, nil
}

// Lookup 按主题名查找预设（不区分大小写），不做回退。
func (r *Rules) Lookup(theme string) (Preset, bool) {
	if r == nil || theme == "" {
		return Preset{}, false
	}
	if p, ok := r.Presets[theme]; ok {
		return p, true
	}
	for k, v := range r.Presets {
		if strings.EqualFold(k, theme) {
			return v, true
		}
	}
	return Preset{}, false
}

// GetPreset 与 Lookup 相同，但未命中时回退到 "default" 预设。
func (r *Rules) GetPreset(theme string) (Preset, bool) {
	if p, ok := r.Lookup(theme); ok {
		return p, true
	}
	return r.Lookup("default")
}

// Value 按表达式从 scope 中取值：
// - "." 当前项文本；".name" 子元素文本
// - "a@href" 子元素属性；"@href" 当前项属性
// - "||" 连接多个候选，按顺序取第一个非空值
func Value(scope *goquery.Selection, expr string) string {
	for _, part := range strings.Split(expr, "||") {
		if v := single(scope, strings.TrimSpace(part)); v != "" {
			return v
		}
	}
	return ""
}

func single(scope *goquery.Selection, expr string) string {
	if expr == "" {
		return ""
	}
	if expr == "." {
		return strings.TrimSpace(scope.Text())
	}
	if at := strings.Index(expr, "@"); at != -1 {
		sel, attr := strings.TrimSpace(expr[:at]), strings.TrimSpace(expr[at+1:])
		target := scope
		if sel != "" {
			target = scope.Find(sel).First()
		}
		v, _ := target.Attr(attr)
		return strings.TrimSpace(v)
	}
	return strings.TrimSpace(scope.Find(expr).First().Text())
}
