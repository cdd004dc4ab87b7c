package log

import (
	"io"
	"os"
	"path"
	"sync"

	global_config "lifemonitor/app/config"
	"lifemonitor/pkg/contextx"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	defaultLoggerName = "lifemonitor"
	loggerMu          sync.Mutex
	logger            *logrus.Logger
)

func Initialize(format string, timeFormat string) {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	cfg := global_config.Config.LOG
	if format != "" {
		cfg.Format = format
	}
	if timeFormat != "" {
		cfg.TimestampFormat = timeFormat
	}
	logger = setupLogger(cfg)
}

// SetOutput redirects the shared logger, mostly for tests.
func SetOutput(w io.Writer) {
	getLogger().SetOutput(w)
}

func output(cfg global_config.LogConfig) io.Writer {
	if cfg.DirPath == "" {
		return os.Stderr
	}
	if err := os.MkdirAll(cfg.DirPath, 0770); err != nil {
		return os.Stderr
	}
	return &lumberjack.Logger{
		Filename:   path.Join(cfg.DirPath, "lifemonitor.log"),
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
	}
}

func setupLogger(cfg global_config.LogConfig) *logrus.Logger {
	formatter := NewLogFormatter()
	if cfg.TimestampFormat != "" {
		formatter.TimestampFormat = cfg.TimestampFormat
	}
	if cfg.Format != "" {
		formatter.OutputFormat = cfg.Format
	}

	l := logrus.New()
	l.SetOutput(output(cfg))
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)
	l.SetFormatter(formatter)
	return l
}

func getLogger() *logrus.Logger {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	if logger == nil {
		logger = setupLogger(global_config.Config.LOG)
	}
	return logger
}

func GetLogger(ctx interface{}, name string) *logrus.Entry {
	job := "-"
	requestId := "-"
	switch t := ctx.(type) {
	case string:
		job = t
	case *contextx.Context:
		if t != nil {
			if j := t.JobID(); j != "" {
				job = j
			}
			if r := t.RequestID(); r != "" {
				requestId = r
			}
		}
	case map[string]interface{}:
		if j, ok := t[contextx.JobKey].(string); ok {
			job = j
		}
		if r, ok := t[contextx.RequestIDKey].(string); ok {
			requestId = r
		}
	}
	return getLogger().WithFields(map[string]interface{}{
		"name":      name,
		"requestId": requestId,
		"job":       job,
	})
}

func IsDebugEnabled() bool {
	return getLogger().IsLevelEnabled(logrus.DebugLevel)
}

func Info(ctx interface{}, args ...interface{}) {
	GetLogger(ctx, defaultLoggerName).Info(args...)
}

func Debug(ctx interface{}, args ...interface{}) {
	GetLogger(ctx, defaultLoggerName).Debug(args...)
}

func Trace(ctx interface{}, args ...interface{}) {
	GetLogger(ctx, defaultLoggerName).Trace(args...)
}

func Warn(ctx interface{}, args ...interface{}) {
	GetLogger(ctx, defaultLoggerName).Warn(args...)
}

func Error(ctx interface{}, args ...interface{}) {
	GetLogger(ctx, defaultLoggerName).Error(args...)
}

func Infof(ctx interface{}, format string, args ...interface{}) {
	GetLogger(ctx, defaultLoggerName).Infof(format, args...)
}

func Debugf(ctx interface{}, format string, args ...interface{}) {
	GetLogger(ctx, defaultLoggerName).Debugf(format, args...)
}

func Tracef(ctx interface{}, format string, args ...interface{}) {
	GetLogger(ctx, defaultLoggerName).Tracef(format, args...)
}

func Warnf(ctx interface{}, format string, args ...interface{}) {
	GetLogger(ctx, defaultLoggerName).Warnf(format, args...)
}

func Errorf(ctx interface{}, format string, args ...interface{}) {
	GetLogger(ctx, defaultLoggerName).Errorf(format, args...)
}
