package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// ILogger is the structured logger every component receives.
// Records carry the component name under "module" and free-form details.
type ILogger interface {
	Debug(module, message string, details map[string]interface{})
	Info(module, message string, details map[string]interface{})
	Warn(module, message string, details map[string]interface{})
	Error(module, message string, details map[string]interface{})
	Sync() error
}

type ZapLogger struct {
	logger  *zap.Logger
	rotator *lumberjack.Logger
}

func newRotator(logFilePath string) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   logFilePath,
		MaxSize:    5, // MB, a client log stays small
		MaxBackups: 3,
		MaxAge:     14, // days
		Compress:   true,
	}
}

func fileEncoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "timestamp"
	cfg.MessageKey = "message"
	cfg.LevelKey = "level"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	return cfg
}

// NewZapLogger writes JSON lines to a rotated file and mirrors them to stderr.
// Stdout is left alone so the CLI can print the assistant's answer there.
func NewZapLogger(logFilePath string, isProd bool) *ZapLogger {
	rotator := newRotator(logFilePath)
	fileEncoder := zapcore.NewJSONEncoder(fileEncoderConfig())

	console := zapcore.NewCore(
		zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
		zapcore.Lock(os.Stderr),
		zap.DebugLevel,
	)
	if isProd {
		console = zapcore.NewCore(fileEncoder, zapcore.Lock(os.Stderr), zap.WarnLevel)
	}

	core := zapcore.NewTee(
		zapcore.NewCore(fileEncoder, zapcore.AddSync(rotator), zap.InfoLevel),
		console,
	)
	return &ZapLogger{
		logger:  zap.New(core, zap.AddCaller(), zap.AddCallerSkip(2)),
		rotator: rotator,
	}
}

// NewIsolatedLogger writes only to its own file, at debug level.
// Websocket frame traffic goes here; it would drown the main log.
func NewIsolatedLogger(logFilePath string) *ZapLogger {
	rotator := newRotator(logFilePath)
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(fileEncoderConfig()),
		zapcore.AddSync(rotator),
		zap.DebugLevel,
	)
	return &ZapLogger{
		logger:  zap.New(core, zap.AddCaller(), zap.AddCallerSkip(2)),
		rotator: rotator,
	}
}

func NewNopLogger() *ZapLogger {
	return &ZapLogger{logger: zap.NewNop()}
}

func (l *ZapLogger) write(level zapcore.Level, module, message string, details map[string]interface{}) {
	ce := l.logger.Check(level, message)
	if ce == nil {
		return
	}
	fields := []zap.Field{zap.String("module", module)}
	if len(details) > 0 {
		fields = append(fields, zap.Any("details", details))
	}
	// lift the error out so log queries can filter on it
	if err, ok := details["error"]; ok && level >= zapcore.WarnLevel {
		fields = append(fields, zap.Any("error", err))
	}
	ce.Write(fields...)
}

func (l *ZapLogger) Debug(module, message string, details map[string]interface{}) {
	l.write(zapcore.DebugLevel, module, message, details)
}

func (l *ZapLogger) Info(module, message string, details map[string]interface{}) {
	l.write(zapcore.InfoLevel, module, message, details)
}

func (l *ZapLogger) Warn(module, message string, details map[string]interface{}) {
	l.write(zapcore.WarnLevel, module, message, details)
}

func (l *ZapLogger) Error(module, message string, details map[string]interface{}) {
	l.write(zapcore.ErrorLevel, module, message, details)
}

// Sync flushes buffered entries. Syncing stderr fails on some terminals; that is ignored.
func (l *ZapLogger) Sync() error {
	_ = l.logger.Sync()
	return nil
}

// Close flushes and releases the log file.
func (l *ZapLogger) Close() error {
	_ = l.logger.Sync()
	if l.rotator == nil {
		return nil
	}
	return l.rotator.Close()
}
