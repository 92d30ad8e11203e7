package app

import (
	"fmt"

	"go.uber.org/zap"

	"kagami/internal/camera"
	"kagami/internal/config"
	"kagami/internal/permission"
	"kagami/internal/preference"
)

// NewLinux は設定からLinux用の構成要素を組み立ててAppを作成する
func NewLinux(cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	classes, err := cfg.Camera.Classes()
	if err != nil {
		return nil, err
	}

	notifier, err := NewNotifier(cfg.Camera, logger.Named("notifier"))
	if err != nil {
		return nil, err
	}

	a, err := New(Options{
		Discovery:       camera.NewLinuxDiscovery(cfg.Camera.SysRoot, cfg.Camera.DevRoot, classes),
		Factory:         camera.NewV4L2SessionFactory(cfg.Camera.FFmpegPath, cfg.Camera.Settings(), logger.Named("session")),
		Notifier:        notifier,
		Authorizer:      permission.NewLinuxAuthorizer(cfg.Camera.DevRoot),
		Preferences:     preference.NewStore(cfg.Preference.Path, logger.Named("preference")),
		ConnectDebounce: cfg.Camera.ConnectDebounce,
		StartDelay:      cfg.Camera.StartDelay,
		Logger:          logger,
	})
	if err != nil {
		_ = notifier.Close()
		return nil, err
	}
	return a, nil
}

// NewNotifier は設定された方法でホットプラグ通知を作成する
// auto の場合は fsnotify を試し、使えなければポーリングにする
func NewNotifier(cfg config.CameraConfig, logger *zap.Logger) (camera.Notifier, error) {
	switch cfg.WatchMode {
	case "poll":
		return camera.NewPollingNotifier(cfg.DevRoot, cfg.PollInterval, logger), nil
	case "fsnotify":
		n, err := camera.NewFSNotifier(cfg.DevRoot, logger)
		if err != nil {
			return nil, fmt.Errorf("ホットプラグ監視の開始に失敗: %w", err)
		}
		return n, nil
	default:
		n, err := camera.NewFSNotifier(cfg.DevRoot, logger)
		if err != nil {
			logger.Info("fsnotify が使えないためポーリングで監視します", zap.Error(err))
			return camera.NewPollingNotifier(cfg.DevRoot, cfg.PollInterval, logger), nil
		}
		return n, nil
	}
}
