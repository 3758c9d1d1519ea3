package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// Logger wraps slog.Logger with convenience methods.
type Logger struct {
	*slog.Logger
}

// LogLevel represents logging levels.
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

var (
	defaultLogger *Logger
	currentLevel  = LevelInfo
)

// Init initializes the global logger with the given level name.
func Init(level string) {
	switch strings.ToLower(level) {
	case "debug":
		currentLevel = LevelDebug
	case "info", "":
		currentLevel = LevelInfo
	case "warn", "warning":
		currentLevel = LevelWarn
	case "error":
		currentLevel = LevelError
	default:
		currentLevel = LevelInfo
	}

	var slogLevel slog.Level
	switch currentLevel {
	case LevelDebug:
		slogLevel = slog.LevelDebug
	case LevelInfo:
		slogLevel = slog.LevelInfo
	case LevelWarn:
		slogLevel = slog.LevelWarn
	case LevelError:
		slogLevel = slog.LevelError
	}

	opts := &slog.HandlerOptions{
		Level:     slogLevel,
		AddSource: false,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				return slog.Attr{Key: a.Key, Value: slog.StringValue(a.Value.Time().Format("15:04:05"))}
			}
			if a.Key == slog.LevelKey {
				level := a.Value.Any().(slog.Level)
				switch level {
				case slog.LevelDebug:
					a.Value = slog.StringValue("DEBUG")
				case slog.LevelInfo:
					a.Value = slog.StringValue("INFO ")
				case slog.LevelWarn:
					a.Value = slog.StringValue("WARN ")
				case slog.LevelError:
					a.Value = slog.StringValue("ERROR")
				}
			}
			return a
		},
	}

	handler := slog.NewTextHandler(os.Stdout, opts)
	defaultLogger = &Logger{slog.New(handler)}
}

// Get returns the default logger instance, initializing from LOG_LEVEL
// on first use.
func Get() *Logger {
	if defaultLogger == nil {
		Init(os.Getenv("LOG_LEVEL"))
	}
	return defaultLogger
}

func GetLevel() LogLevel {
	return currentLevel
}

func Debug(msg string, args ...any) {
	if currentLevel <= LevelDebug {
		Get().Debug(msg, args...)
	}
}

func Info(msg string, args ...any) {
	if currentLevel <= LevelInfo {
		Get().Info(msg, args...)
	}
}

func Warn(msg string, args ...any) {
	if currentLevel <= LevelWarn {
		Get().Warn(msg, args...)
	}
}

func Error(msg string, args ...any) {
	if currentLevel <= LevelError {
		Get().Error(msg, args...)
	}
}

// WithContext returns a logger with one additional structured field
// attached to every subsequent call.
func WithContext(key string, value any) *Logger {
	return &Logger{Get().With(key, value)}
}

// Startup prints a clean boot-time line plus a structured debug record.
func Startup(step, message string, args ...any) {
	if currentLevel <= LevelInfo {
		fmt.Printf("\033[36m[+]\033[0m %s\n", message)
	}
	if currentLevel <= LevelDebug {
		Debug("Startup step", append([]any{"step", step, "message", message}, args...)...)
	}
}

// PipelineStarted logs the first-pass ASR kickoff for a job.
func PipelineStarted(jobID, filename string) {
	Info("Job started", "file", filename)
	Debug("Job started with details", "job_id", jobID, "file", filename)
}

// PipelineCompleted logs a job reaching COMPLETED.
func PipelineCompleted(jobID string, duration time.Duration, applied, skipped int) {
	Info("Job completed", "duration", duration.String(), "applied", applied, "skipped", skipped)
	Debug("Job completed with details", "job_id", jobID, "duration", duration.String(), "applied", applied, "skipped", skipped)
}

// PipelineFailed logs a job reaching FAILED.
func PipelineFailed(jobID string, duration time.Duration, err error) {
	Error("Job failed", "error", err.Error())
	Debug("Job failed with details", "job_id", jobID, "duration", duration.String(), "error", err.Error())
}

// CorrectionDecision logs a single reconciliation verdict.
func CorrectionDecision(jobID string, clipStart, clipEnd float64, applied bool, reason string) {
	Debug("Correction evaluated",
		"job_id", jobID,
		"clip_start", clipStart,
		"clip_end", clipEnd,
		"applied", applied,
		"reason", reason)
}

// WorkerOperation logs a single worker loop step.
func WorkerOperation(jobID string, operation string, args ...any) {
	Debug("Worker operation", append([]any{"job_id", jobID, "operation", operation}, args...)...)
}

// Performance logs a stage's wall-clock cost, for debugging only.
func Performance(operation string, duration time.Duration, details ...any) {
	Debug("Performance", append([]any{"operation", operation, "duration", duration.String()}, details...)...)
}

// GinLogger is a minimal request logger for the admin HTTP surface.
func GinLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		duration := time.Since(start)
		if raw != "" {
			path = path + "?" + raw
		}

		status := c.Writer.Status()

		if currentLevel <= LevelDebug {
			Debug("admin request",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"duration", fmt.Sprintf("%.2fms", float64(duration.Nanoseconds())/1e6))
			return
		}

		if path == "/healthz" {
			return
		}
		fmt.Printf("INFO  %s %s %s %s%d%s %s\n",
			time.Now().Format("15:04:05"),
			c.Request.Method,
			path,
			statusColor(status),
			status,
			"\033[0m",
			fmt.Sprintf("%.2fms", float64(duration.Nanoseconds())/1e6))
	}
}

func statusColor(status int) string {
	switch {
	case status >= 200 && status < 300:
		return "\033[32m"
	case status >= 300 && status < 400:
		return "\033[33m"
	case status >= 400 && status < 500:
		return "\033[31m"
	case status >= 500:
		return "\033[35m"
	default:
		return "\033[37m"
	}
}

// SetGinOutput suppresses gin's own default logging in favor of GinLogger.
func SetGinOutput() {
	gin.DefaultWriter = io.Discard
}
