package logger

import (
	"context"
	"io"

	"github.com/sirupsen/logrus"
)

type requestIDKey struct{}

// New 初始化日志。release 模式输出 JSON，其他模式输出便于阅读的文本并打开 debug 级别。
func New(output io.Writer, mode string) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(output)
	l.SetFormatter(new(logrus.JSONFormatter))
	l.SetLevel(logrus.InfoLevel)
	l.AddHook(RequestIDHook{})

	if mode != "release" {
		l.SetLevel(logrus.DebugLevel)
		l.SetFormatter(new(logrus.TextFormatter))
	}

	return l
}

func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

func RequestIDFrom(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// RequestIDHook 把 entry.Context 里的请求ID写进日志字段，配合 WithContext(ctx) 使用
type RequestIDHook struct{}

func (RequestIDHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (RequestIDHook) Fire(entry *logrus.Entry) error {
	if id := RequestIDFrom(entry.Context); id != "" {
		entry.Data["request_id"] = id
	}
	return nil
}
