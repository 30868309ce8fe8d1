// 包 logx 是对标准库 slog 的薄封装：
// - Init 按级别/格式/语言/颜色初始化全局日志器
// - pretty 格式输出本地化等级标签（[信息]/[INFO]）
// - Component 返回带 component 字段的子日志器，供长时间运行的组件输出结构化字段
package logx

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// levelSilent 高于所有等级，用于完全关闭输出。
const levelSilent slog.Level = 100

// Init 根据配置初始化全局日志器，输出到 stdout。
func Init(level, format, locale, colorMode string) {
	InitTo(os.Stdout, level, format, locale, colorMode)
}

// InitTo 同 Init，但可指定输出目标（测试中常用 bytes.Buffer）。
func InitTo(w io.Writer, level, format, locale, colorMode string) {
	lv := ParseLevel(level)
	opts := &slog.HandlerOptions{Level: lv}
	var h slog.Handler
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "json":
		h = slog.NewJSONHandler(w, opts)
	case "text":
		h = slog.NewTextHandler(w, opts)
	default:
		h = NewPrettyHandler(w, lv, locale, colorMode)
	}
	slog.SetDefault(slog.New(h))
}

// ParseLevel 将字符串级别解析为 slog.Level，未知值回退到 info。
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	case "none", "silent", "off":
		return levelSilent
	default:
		return slog.LevelInfo
	}
}

// Component 返回带 component=<name> 字段的日志器。
func Component(name string) *slog.Logger {
	return slog.Default().With("component", name)
}

func Debugf(format string, v ...any) { slog.Debug(fmt.Sprintf(format, v...)) }
func Infof(format string, v ...any)  { slog.Info(fmt.Sprintf(format, v...)) }
func Warnf(format string, v ...any)  { slog.Warn(fmt.Sprintf(format, v...)) }
func Errorf(format string, v ...any) { slog.Error(fmt.Sprintf(format, v...)) }
