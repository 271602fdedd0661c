package logger

import (
	"context"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type ctxKey struct{}

// ReqIDField is the field name the request id is logged under.
const ReqIDField = "req_id"

// Log is the process logger. It discards everything until Init is called.
var Log = zap.NewNop()

var level = zap.NewAtomicLevelAt(zap.InfoLevel)

// Init logs to stdout only.
func Init(service, lvl string) {
	build(service, lvl, nil)
}

// InitWithFile logs to stdout and appends to file. An empty file means
// logs/<service>.log. A file that cannot be opened is skipped.
func InitWithFile(service, lvl, file string) {
	if file == "" {
		file = filepath.Join("logs", service+".log")
	}
	var extra []zapcore.WriteSyncer
	if err := os.MkdirAll(filepath.Dir(file), 0o755); err == nil {
		if f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
			extra = append(extra, zapcore.AddSync(f))
		}
	}
	build(service, lvl, extra)
}

// InitWriter logs only to w. Used by programs that own stdout.
func InitWriter(service, lvl string, w zapcore.WriteSyncer) {
	setLevel(lvl)
	Log = zap.New(zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig()), w, level),
		zap.AddCaller(), zap.AddCallerSkip(1)).With(zap.String("service", service))
}

func build(service, lvl string, extra []zapcore.WriteSyncer) {
	setLevel(lvl)
	sinks := append([]zapcore.WriteSyncer{zapcore.AddSync(os.Stdout)}, extra...)
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig()),
		zapcore.NewMultiWriteSyncer(sinks...),
		level,
	)
	// skip one frame: callers go through the helpers below
	Log = zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)).With(zap.String("service", service))
}

func encoderConfig() zapcore.EncoderConfig {
	c := zap.NewProductionEncoderConfig()
	c.EncodeTime = zapcore.ISO8601TimeEncoder
	c.EncodeLevel = zapcore.CapitalLevelEncoder
	c.MessageKey = "msg"
	return c
}

func setLevel(lvl string) {
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(lvl)); err != nil {
		l = zap.InfoLevel
	}
	level.SetLevel(l)
}

// SetLevel changes the level of the running logger.
func SetLevel(lvl string) { setLevel(lvl) }

func Level() zapcore.Level { return level.Level() }

// WithReqID returns a context whose log lines carry id.
func WithReqID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

func ReqID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

func Info(ctx context.Context, msg string, fields ...zap.Field) {
	Log.Info(msg, withReq(ctx, fields)...)
}

func Error(ctx context.Context, msg string, fields ...zap.Field) {
	Log.Error(msg, withReq(ctx, fields)...)
}

func Warn(ctx context.Context, msg string, fields ...zap.Field) {
	Log.Warn(msg, withReq(ctx, fields)...)
}

func Debug(ctx context.Context, msg string, fields ...zap.Field) {
	Log.Debug(msg, withReq(ctx, fields)...)
}

// Fatal logs and exits the process.
func Fatal(ctx context.Context, msg string, fields ...zap.Field) {
	Log.Fatal(msg, withReq(ctx, fields)...)
}

func withReq(ctx context.Context, fields []zap.Field) []zap.Field {
	if id := ReqID(ctx); id != "" {
		fields = append(fields, zap.String(ReqIDField, id))
	}
	return fields
}

func Sync() {
	if Log != nil {
		_ = Log.Sync()
	}
}
