package logger

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config содержит настройки для логгера.
type Config struct {
	Level      string `env:"LOG_LEVEL" env-default:"info"`    // debug, info, warn, error
	Encoding   string `env:"LOG_ENCODING" env-default:"json"` // json или console
	OutputPath string `env:"LOG_OUTPUT_PATH" env-default:""`  // пусто = stdout
}

// parseLevel возвращает уровень из конфигурации. Неизвестное значение
// не считается фатальным: сервис стартует на info и сообщает об этом в stderr.
func parseLevel(raw string) zapcore.Level {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return zapcore.InfoLevel
	}
	lvl, err := zapcore.ParseLevel(raw)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: unknown level %q, falling back to info\n", raw)
		return zapcore.InfoLevel
	}
	return lvl
}

func newEncoder(encoding string) zapcore.Encoder {
	ec := zap.NewProductionEncoderConfig()
	ec.TimeKey = "timestamp"
	ec.EncodeTime = zapcore.ISO8601TimeEncoder
	ec.EncodeLevel = zapcore.CapitalLevelEncoder

	if strings.EqualFold(encoding, "console") {
		return zapcore.NewConsoleEncoder(ec)
	}
	return zapcore.NewJSONEncoder(ec)
}

// New собирает zap.Logger: ядро с выбранным энкодером пишет в файл или stdout,
// внутренние ошибки самого zap уходят в stderr.
func New(cfg Config) (*zap.Logger, error) {
	target := cfg.OutputPath
	if target == "" {
		target = "stdout"
	}

	sink, closeSink, err := zap.Open(target)
	if err != nil {
		return nil, fmt.Errorf("failed to open log output %q: %w", target, err)
	}

	core := zapcore.NewCore(newEncoder(cfg.Encoding), sink, zap.NewAtomicLevelAt(parseLevel(cfg.Level)))

	errSink, _, err := zap.Open("stderr")
	if err != nil {
		closeSink()
		return nil, fmt.Errorf("failed to open logger error output: %w", err)
	}

	return zap.New(core, zap.ErrorOutput(errSink)), nil
}
