package utils

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"time"

	"gorm.io/gorm/logger"
)

// CustomGormLogger wraps a gorm logger and drops the trace lines of noisy
// polling queries. Failed statements are always logged, filtered or not.
type CustomGormLogger struct {
	logger.Interface
	ignoredQueryPatterns []string
}

// NewCustomGormLogger creates a logger that hides successful statements
// containing any of ignoredPatterns.
func NewCustomGormLogger(l logger.Interface, ignoredPatterns ...string) *CustomGormLogger {
	return &CustomGormLogger{
		Interface:            l,
		ignoredQueryPatterns: ignoredPatterns,
	}
}

// LogMode implements logger.Interface
func (l *CustomGormLogger) LogMode(level logger.LogLevel) logger.Interface {
	return &CustomGormLogger{
		Interface:            l.Interface.LogMode(level),
		ignoredQueryPatterns: l.ignoredQueryPatterns,
	}
}

// Trace implements logger.Interface
func (l *CustomGormLogger) Trace(ctx context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	sql, rows := fc()

	if err == nil && l.Ignored(sql) {
		return
	}

	caller := findCaller()
	l.Interface.Trace(ctx, begin, func() (string, int64) {
		if caller != "" {
			return fmt.Sprintf("[Caller: %s] %s", caller, sql), rows
		}
		return sql, rows
	}, err)
}

// Ignored reports whether sql matches one of the ignored patterns.
func (l *CustomGormLogger) Ignored(sql string) bool {
	for _, pattern := range l.ignoredQueryPatterns {
		if strings.Contains(sql, pattern) {
			return true
		}
	}
	return false
}

// findCaller returns the first frame outside gorm and this package, which is
// the store method that issued the query.
func findCaller() string {
	for i := 2; i < 15; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}

		if strings.Contains(file, "gorm.io") ||
			strings.Contains(file, "internal/utils/db_logger.go") {
			continue
		}

		if fn := runtime.FuncForPC(pc); fn != nil {
			name := fn.Name()
			if idx := strings.LastIndexByte(name, '/'); idx != -1 {
				name = name[idx+1:]
			}
			return fmt.Sprintf("%s() at %s:%d", name, file, line)
		}
		return fmt.Sprintf("%s:%d", file, line)
	}

	return ""
}
