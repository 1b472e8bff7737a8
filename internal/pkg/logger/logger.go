// internal/pkg/logger/logger.go
package logger

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/trace"
)

// Options 日志初始化参数
type Options struct {
	Level   string
	Pretty  bool
	Service string
	Output  io.Writer
}

func init() {
	l := zerolog.New(os.Stderr).With().Timestamp().Logger()
	zerolog.DefaultContextLogger = &l
}

// Init 初始化进程级 logger，同时替换 zerolog 全局 logger 和默认的上下文 logger
func Init(opts Options) {
	level, err := zerolog.ParseLevel(opts.Level)
	if err != nil || opts.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	if opts.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.TimeOnly}
	}

	ctx := zerolog.New(out).With().Timestamp()
	if opts.Service != "" {
		ctx = ctx.Str("service", opts.Service)
	}
	l := ctx.Logger()

	log.Logger = l
	zerolog.DefaultContextLogger = &l
}

// Ctx 返回上下文中的 logger，存在 span 时附带 trace_id
func Ctx(ctx context.Context) *zerolog.Logger {
	l := zerolog.Ctx(ctx)
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return l
	}
	withTrace := l.With().Str("trace_id", sc.TraceID().String()).Logger()
	return &withTrace
}

// WithField 把带字段的 logger 放进上下文
func WithField(ctx context.Context, key, value string) context.Context {
	l := zerolog.Ctx(ctx).With().Str(key, value).Logger()
	return l.WithContext(ctx)
}
