package logging

import (
	"sync"

	"go.uber.org/zap"
)

type Fields struct {
	Service    string
	RequestID  string
	OrderID    string
	EventID    string
	Step       string
	Status     string
	DurationMS int64
	Message    string
	Err        error
}

var (
	mu     sync.RWMutex
	logger *zap.Logger
)

// Logger returns the process-wide logger, building a production JSON logger
// on first use.
func Logger() *zap.Logger {
	mu.RLock()
	l := logger
	mu.RUnlock()
	if l != nil {
		return l
	}

	mu.Lock()
	defer mu.Unlock()
	if logger == nil {
		built, err := zap.NewProduction()
		if err != nil {
			built = zap.NewNop()
		}
		logger = built
	}
	return logger
}

// SetLogger replaces the process-wide logger. Passing nil restores the default.
func SetLogger(l *zap.Logger) {
	mu.Lock()
	logger = l
	mu.Unlock()
}

func Sync() {
	_ = Logger().Sync()
}

func Log(fields Fields) {
	zf := make([]zap.Field, 0, 8)
	zf = append(zf, zap.String("service", fields.Service))
	if fields.RequestID != "" {
		zf = append(zf, zap.String("request_id", fields.RequestID))
	}
	if fields.OrderID != "" {
		zf = append(zf, zap.String("order_id", fields.OrderID))
	}
	if fields.EventID != "" {
		zf = append(zf, zap.String("event_id", fields.EventID))
	}
	if fields.Step != "" {
		zf = append(zf, zap.String("step", fields.Step))
	}
	if fields.Status != "" {
		zf = append(zf, zap.String("status", fields.Status))
	}
	if fields.DurationMS > 0 {
		zf = append(zf, zap.Int64("duration_ms", fields.DurationMS))
	}

	msg := fields.Message
	if msg == "" {
		msg = fields.Step
	}
	if fields.Err != nil {
		Logger().Error(msg, append(zf, zap.Error(fields.Err))...)
		return
	}
	Logger().Info(msg, zf...)
}
