package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"kagami/internal/config"
)

// New は設定に従ってzapロガーを作成する
//
// 戻り値の close はバッファのフラッシュとログファイルのクローズを行う。
// コンソール出力は標準エラーに書く (標準出力はメニュー表示に使う)
func New(cfg config.LoggingConfig) (*zap.Logger, func() error, error) {
	return newLogger(cfg, os.Stderr)
}

func newLogger(cfg config.LoggingConfig, console io.Writer) (*zap.Logger, func() error, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	consoleConfig := encoderConfig
	consoleConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	consoleCore := zapcore.NewCore(zapcore.NewConsoleEncoder(consoleConfig), zapcore.AddSync(console), level)

	var (
		core       zapcore.Core
		fileWriter *lumberjack.Logger
	)
	switch cfg.Output {
	case "file", "both":
		fileWriter, err = newFileWriter(cfg)
		if err != nil {
			return nil, nil, err
		}
		fileCore := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.AddSync(fileWriter), level)
		if cfg.Output == "both" {
			core = zapcore.NewTee(consoleCore, fileCore)
		} else {
			core = fileCore
		}
	default:
		core = consoleCore
	}

	logger := zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))

	closeFn := func() error {
		_ = logger.Sync() // 端末への Sync は EINVAL を返すことがある
		if fileWriter != nil {
			return fileWriter.Close()
		}
		return nil
	}
	return logger, closeFn, nil
}

// newFileWriter はローテーション付きのログファイルを作成する
func newFileWriter(cfg config.LoggingConfig) (*lumberjack.Logger, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0o755); err != nil {
		return nil, fmt.Errorf("ログディレクトリの作成に失敗: %w", err)
	}

	return &lumberjack.Logger{
		Filename:   cfg.FilePath,
		MaxSize:    cfg.MaxSize,    // MB
		MaxBackups: cfg.MaxBackups, // 保持する世代数
		MaxAge:     cfg.MaxAge,     // 日数
		LocalTime:  true,
		Compress:   cfg.Compress,
	}, nil
}
