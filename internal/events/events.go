// 包 events 定义索引与爬取过程中的生命周期事件，以及事件接收端（Sink）。
// 事件按完成顺序发出，消费方不应假设同一站点的事件顺序之外的任何次序。
package events

import (
	"sync"
	"time"

	"indie-blog-circles/internal/logx"
	"indie-blog-circles/internal/model"
)

// Type 为事件类型。
type Type string

const (
	BlogStart    Type = "blog-start"
	BlogComplete Type = "blog-complete"
	NewArticle   Type = "new-article"
	NewComment   Type = "new-comment"
	Progress     Type = "progress"
	Error        Type = "error"
)

// ProgressInfo 为进度快照。
type ProgressInfo struct {
	Processed   int           `json:"processed"`
	Total       int           `json:"total"`
	Succeeded   int           `json:"succeeded"`
	Failed      int           `json:"failed"`
	NewArticles int           `json:"new_articles"`
	Remaining   time.Duration `json:"remaining"`
}

// Event 为一次生命周期事件，按 Type 填充相应字段。
type Event struct {
	Type        Type           `json:"type"`
	SweepID     string         `json:"sweep_id,omitempty"`
	SiteURL     string         `json:"site_url,omitempty"`
	Article     *model.Article `json:"article,omitempty"`
	Comments    int            `json:"comments,omitempty"`
	NewArticles int            `json:"new_articles,omitempty"`
	Progress    *ProgressInfo  `json:"progress,omitempty"`
	Err         string         `json:"error,omitempty"`
	At          time.Time      `json:"at"`
}

// Sink 接收事件；实现需可被多个 worker 并发调用。
type Sink interface {
	Emit(Event)
}

// SinkFunc 让普通函数实现 Sink。
type SinkFunc func(Event)

func (f SinkFunc) Emit(e Event) { f(e) }

// Multi 将事件依次转发给多个 Sink。
func Multi(sinks ...Sink) Sink {
	out := make(multi, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

type multi []Sink

func (m multi) Emit(e Event) {
	for _, s := range m {
		s.Emit(e)
	}
}

// Nop 丢弃所有事件。
var Nop Sink = SinkFunc(func(Event) {})

// Recorder 在内存中记录事件，主要用于测试与调试输出。
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Emit(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

// Events 返回已记录事件的副本。
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// OfType 返回指定类型的事件。
func (r *Recorder) OfType(t Type) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// LogSink 将事件写入日志，进度事件使用 debug 级别。
type LogSink struct{}

func (LogSink) Emit(e Event) {
	switch e.Type {
	case BlogStart:
		logx.Debugf("开始处理：%s", e.SiteURL)
	case BlogComplete:
		logx.Infof("[%s] 完成，新文章=%d", e.SiteURL, e.NewArticles)
	case NewArticle:
		if e.Article != nil {
			logx.Debugf("[%s] 新文章：%s", e.SiteURL, e.Article.Title)
		}
	case NewComment:
		logx.Debugf("[%s] 评论数变化：%d", e.SiteURL, e.Comments)
	case Progress:
		if p := e.Progress; p != nil {
			logx.Debugf("进度 %d/%d 成功=%d 失败=%d 预计剩余=%s", p.Processed, p.Total, p.Succeeded, p.Failed, p.Remaining.Round(time.Second))
		}
	case Error:
		logx.Warnf("[%s] 处理失败：%s", e.SiteURL, e.Err)
	}
}
