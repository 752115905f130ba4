package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger 全局结构化日志器
var Logger *slog.Logger

// ParseLevel maps debug/info/warn/error to a slog level; anything else is info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Init 初始化结构化日志，输出到 stdout 并设为 slog 默认日志器
func Init(level, format string) *slog.Logger {
	return InitWriter(os.Stdout, level, format)
}

// InitWriter is Init with an explicit destination.
func InitWriter(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}

	if strings.EqualFold(format, "text") {
		// 文本格式，便于开发调试
		Logger = slog.New(slog.NewTextHandler(w, opts))
	} else {
		// JSON 格式，便于日志收集系统处理
		Logger = slog.New(slog.NewJSONHandler(w, opts))
	}

	slog.SetDefault(Logger)
	return Logger
}
