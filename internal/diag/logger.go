package diag

import (
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level 是日志级别。
type Level int

const (
	Debug Level = iota
	Info
	Warn
	Error
)

func (l Level) String() string {
	switch l {
	case Debug:
		return "debug"
	case Info:
		return "info"
	case Warn:
		return "warn"
	case Error:
		return "error"
	default:
		return "info"
	}
}

func (l Level) zap() zapcore.Level {
	switch l {
	case Debug:
		return zapcore.DebugLevel
	case Warn:
		return zapcore.WarnLevel
	case Error:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// ParseLevel 解析 debug|info|warn|error，未知值按 info。
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return Debug
	case "warn":
		return Warn
	case "error":
		return Error
	default:
		return Info
	}
}

// Logger 是事件式结构化日志器：每条事件一行 JSON，字段固定为
// level/ts/corr_id/comp/stage/code/dur_ms/count/page/msg/kv。
type Logger struct {
	z    *zap.Logger
	sink *RotatingFile
}

// NewLogger 按 level 初始化，写入 logs/sfebot-current.txt，10MiB 轮转。
func NewLogger(corrID, level string) *Logger {
	sink := NewRotatingFile("logs", 10*1024*1024)
	core := zapcore.NewCore(NewEncoder(), zapcore.Lock(sink), zap.NewAtomicLevelAt(ParseLevel(level).zap()))
	l := NewLoggerWithCore(corrID, core)
	l.sink = sink
	return l
}

// NewLoggerWithCore 以给定 core 构造（测试可传入 observer core）。
func NewLoggerWithCore(corrID string, core zapcore.Core) *Logger {
	return &Logger{z: zap.New(core).With(zap.String("corr_id", corrID))}
}

// NewEncoder 返回事件日志使用的 JSON 编码器（UTC RFC3339 时间）。
func NewEncoder() zapcore.Encoder {
	cfg := zapcore.EncoderConfig{
		LevelKey:       "level",
		TimeKey:        "ts",
		MessageKey:     "msg",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     utcTimeEncoder,
		EncodeDuration: zapcore.MillisDurationEncoder,
	}
	return zapcore.NewJSONEncoder(cfg)
}

func utcTimeEncoder(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(t.UTC().Format(time.RFC3339))
}

// Nop 返回丢弃一切的日志器。
func Nop() *Logger { return &Logger{z: zap.NewNop()} }

// Event 为标准事件结构。
type Event struct {
	Comp  string
	Stage string // start|finish|error|warn
	Code  string
	DurMS int64
	Count int64
	Page  string
	Msg   string
	KV    map[string]string
}

func (e Event) fields() []zap.Field {
	fs := make([]zap.Field, 0, 7)
	fs = append(fs, zap.String("comp", e.Comp), zap.String("stage", e.Stage))
	if e.Code != "" {
		fs = append(fs, zap.String("code", e.Code))
	}
	if e.DurMS != 0 {
		fs = append(fs, zap.Int64("dur_ms", e.DurMS))
	}
	if e.Count != 0 {
		fs = append(fs, zap.Int64("count", e.Count))
	}
	if e.Page != "" {
		fs = append(fs, zap.String("page", e.Page))
	}
	if len(e.KV) > 0 {
		fs = append(fs, zap.Any("kv", e.KV))
	}
	return fs
}

func (l *Logger) log(lv Level, ev Event) {
	if l == nil || l.z == nil {
		return
	}
	if ce := l.z.Check(lv.zap(), ev.Msg); ce != nil {
		ce.Write(ev.fields()...)
	}
}

// Sync 刷新并关闭文件 sink。
func (l *Logger) Sync() error {
	if l == nil || l.z == nil {
		return nil
	}
	err := l.z.Sync()
	if l.sink != nil {
		if cerr := l.sink.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// Start 记录 start 事件；返回计时器用于 Finish。
func (l *Logger) Start(comp, msg string) *Timer {
	l.log(Info, Event{Comp: comp, Stage: "start", Msg: msg})
	return &Timer{l: l, comp: comp, t0: time.Now()}
}

// StartWith 记录带 page 的 start。
func (l *Logger) StartWith(comp, msg, page string) *Timer {
	l.log(Info, Event{Comp: comp, Stage: "start", Page: page, Msg: msg})
	return &Timer{l: l, comp: comp, page: page, t0: time.Now()}
}

// StartWithKV 记录带 page 与键值的 start。
func (l *Logger) StartWithKV(comp, msg, page string, kv map[string]string) *Timer {
	l.log(Info, Event{Comp: comp, Stage: "start", Page: page, Msg: msg, KV: kv})
	return &Timer{l: l, comp: comp, page: page, t0: time.Now()}
}

func since(t *time.Time) int64 {
	if t == nil {
		return 0
	}
	return time.Since(*t).Milliseconds()
}

// Error 记录 error 事件。
func (l *Logger) Error(comp, code, msg string, durSince *time.Time) {
	l.log(Error, Event{Comp: comp, Stage: "error", Code: code, DurMS: since(durSince), Msg: msg})
}

// ErrorWith 支持 page。
func (l *Logger) ErrorWith(comp, code, msg string, durSince *time.Time, page string) {
	l.log(Error, Event{Comp: comp, Stage: "error", Code: code, DurMS: since(durSince), Msg: msg, Page: page})
}

// ErrorWithKV 支持附带键值对（例如 HTTP 状态码、上游错误片段）。
func (l *Logger) ErrorWithKV(comp, code, msg string, durSince *time.Time, page string, kv map[string]string) {
	l.log(Error, Event{Comp: comp, Stage: "error", Code: code, DurMS: since(durSince), Msg: msg, Page: page, KV: kv})
}

// Warn 记录可降级处理的问题（流程继续）。
func (l *Logger) Warn(comp, code, msg, page string, kv map[string]string) {
	l.log(Warn, Event{Comp: comp, Stage: "warn", Code: code, Msg: msg, Page: page, KV: kv})
}

// InfoFinish 在已有起点的情况下记录 finish。
func (l *Logger) InfoFinish(comp, msg string, start time.Time, count int64) {
	l.log(Info, Event{Comp: comp, Stage: "finish", DurMS: time.Since(start).Milliseconds(), Count: count, Msg: msg})
}

// DebugStart 输出调试级别的 start 类事件（仅在 level=debug 时生效）。
func (l *Logger) DebugStart(comp, msg, page string, kv map[string]string) {
	l.log(Debug, Event{Comp: comp, Stage: "start", Page: page, Msg: msg, KV: kv})
}

// Timer 用于 start→finish 计时。
type Timer struct {
	l    *Logger
	comp string
	page string
	t0   time.Time
}

// Finish 记录 finish；可选 count。
func (t *Timer) Finish(msg string, count int64) {
	t.FinishKV(msg, count, nil)
}

// FinishKV 记录带键值的 finish。
func (t *Timer) FinishKV(msg string, count int64, kv map[string]string) {
	if t == nil || t.l == nil {
		return
	}
	t.l.log(Info, Event{Comp: t.comp, Stage: "finish", DurMS: time.Since(t.t0).Milliseconds(), Count: count, Page: t.page, Msg: msg, KV: kv})
}

// Started 返回起点时间。
func (t *Timer) Started() time.Time {
	if t == nil {
		return time.Time{}
	}
	return t.t0
}
