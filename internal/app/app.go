// Package app はメニュー (UI層) から見たアプリケーションの窓口
//
// UI からの操作はメインループへ投入してすぐに戻る。読み取り系のメソッドは
// atomic に公開された状態を返すため、どのゴルーチンからでも呼び出せる
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"kagami/internal/camera"
	"kagami/internal/permission"
	"kagami/internal/preference"
	"kagami/internal/runloop"
)

// StatusTextNoAccess はカメラへのアクセスが拒否されている場合のステータス
const StatusTextNoAccess = "カメラへのアクセスが許可されていません"

// shutdownTimeout は終了時にセッションを止める際の上限
const shutdownTimeout = 5 * time.Second

// Options はAppの構成要素
type Options struct {
	Discovery   camera.Discovery
	Factory     camera.SessionFactory
	Notifier    camera.Notifier
	Authorizer  permission.Authorizer
	Preferences *preference.Store

	ConnectDebounce time.Duration
	StartDelay      time.Duration

	Logger *zap.Logger
}

// App はレジストリ・コントローラー・ウォッチャー・権限ゲート・設定をまとめる
type App struct {
	loop       *runloop.Loop
	registry   *camera.Registry
	controller *camera.Controller
	watcher    *camera.Watcher
	gate       *permission.Gate
	prefs      *preference.Store
	notifier   camera.Notifier
	logger     *zap.Logger

	mirrorMu sync.Mutex
	mirrored atomic.Bool
	denied   atomic.Bool

	// Run が設定し、メインループ上の処理だけが参照する
	ctx context.Context
}

// New は新しいAppを作成する
func New(opts Options) (*App, error) {
	switch {
	case opts.Discovery == nil:
		return nil, errors.New("Discovery が指定されていません")
	case opts.Factory == nil:
		return nil, errors.New("SessionFactory が指定されていません")
	case opts.Notifier == nil:
		return nil, errors.New("Notifier が指定されていません")
	case opts.Authorizer == nil:
		return nil, errors.New("Authorizer が指定されていません")
	case opts.Preferences == nil:
		return nil, errors.New("Preferences が指定されていません")
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	loop := runloop.New(logger.Named("loop"))
	registry := camera.NewRegistry(opts.Discovery, logger.Named("registry"))
	controller := camera.NewController(loop, registry, opts.Factory, opts.StartDelay, logger.Named("controller"))

	a := &App{
		loop:       loop,
		registry:   registry,
		controller: controller,
		watcher:    camera.NewWatcher(loop, opts.Notifier, controller, opts.ConnectDebounce, logger.Named("watcher")),
		gate:       permission.NewGate(loop, opts.Authorizer, logger.Named("permission")),
		prefs:      opts.Preferences,
		notifier:   opts.Notifier,
		logger:     logger,
		ctx:        context.Background(),
	}
	a.mirrored.Store(opts.Preferences.Load())
	return a, nil
}

// Run はメインループとウォッチャーを動かし、最初のデバイス検出を行う
// コンテキストがキャンセルされるとセッションを止めて戻る
func (a *App) Run(ctx context.Context) error {
	a.ctx = ctx

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := a.watcher.Run(ctx); err != nil {
			a.logger.Warn("ホットプラグ監視が終了しました", zap.Error(err))
		}
	}()

	a.loop.Post(func() {
		if err := a.controller.Resync(ctx); err != nil {
			a.logger.Warn("初回のデバイス検出に失敗しました", zap.Error(err))
		}
	})

	err := a.loop.Run(ctx)

	if cerr := a.notifier.Close(); cerr != nil {
		a.logger.Warn("ホットプラグ監視の終了に失敗しました", zap.Error(cerr))
	}
	wg.Wait()
	a.shutdown()

	if err != nil {
		return fmt.Errorf("メインループの実行に失敗: %w", err)
	}
	return nil
}

// shutdown は残っているセッションを同期的に停止する
func (a *App) shutdown() {
	session := a.controller.Current()
	if session == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := session.Stop(ctx); err != nil {
		a.logger.Warn("終了時のセッション停止に失敗しました", zap.Error(err))
	}
}

// DeviceNames はメニューに表示するデバイス名を返す
func (a *App) DeviceNames() []string {
	return a.registry.DeviceNames()
}

// Devices は現在のデバイス一覧を返す
func (a *App) Devices() []camera.Device {
	return a.registry.Snapshot().Devices
}

// CurrentDeviceIndex は選択中のデバイス位置を返す。無い場合は camera.NoSelection
func (a *App) CurrentDeviceIndex() int {
	return a.registry.SelectedIndex()
}

// HasCameraAccess は最後に確認したカメラ権限を返す
func (a *App) HasCameraAccess() bool {
	return a.gate.HasAccess()
}

// IsMirrored はプレビューを左右反転するかを返す
func (a *App) IsMirrored() bool {
	return a.mirrored.Load()
}

// Status はメニューに表示するステータス文字列を返す
func (a *App) Status() string {
	if a.denied.Load() {
		return StatusTextNoAccess
	}
	return a.controller.Status()
}

// SwitchTo は index 番目のデバイスへの切り替えを要求する
func (a *App) SwitchTo(index int) {
	a.loop.Post(func() {
		if err := a.controller.SwitchTo(a.ctx, index); err != nil && !errors.Is(err, camera.ErrIndexOutOfRange) {
			a.logger.Warn("デバイスの切り替えに失敗しました", zap.Int("index", index), zap.Error(err))
		}
	})
}

// StartSession は権限を確認してからプレビューを開始する
// 権限の確認はセッションを開始するたびに行う
func (a *App) StartSession() {
	a.loop.Post(func() {
		a.gate.CheckAuthorization(func(granted bool) {
			a.denied.Store(!granted)
			if !granted {
				a.logger.Warn("カメラへのアクセスが無いためプレビューを開始できません")
				return
			}
			if err := a.controller.Start(a.ctx); err != nil {
				if errors.Is(err, camera.ErrNoDevice) {
					a.logger.Info("プレビューできるカメラがありません")
					return
				}
				a.logger.Warn("プレビューの開始に失敗しました", zap.Error(err))
			}
		})
	})
}

// StopSession はプレビューを停止する
func (a *App) StopSession() {
	a.loop.Post(func() { a.controller.Stop(a.ctx) })
}

// ToggleMirror は左右反転を切り替えて保存し、新しい値を返す
// 保存に失敗しても表示上の値は切り替える
func (a *App) ToggleMirror() bool {
	a.mirrorMu.Lock()
	defer a.mirrorMu.Unlock()

	v := !a.mirrored.Load()
	a.mirrored.Store(v)
	if err := a.prefs.Set(v); err != nil {
		a.logger.Warn("左右反転の設定を保存できませんでした", zap.Error(err))
	}
	return v
}

// Refresh はデバイスの再検出を要求する
func (a *App) Refresh() {
	a.loop.Post(func() {
		if err := a.controller.Resync(a.ctx); err != nil {
			a.logger.Warn("デバイスの再検出に失敗しました", zap.Error(err))
		}
	})
}

// AttachPreview はプレビューを現在と今後のセッションに付ける
func (a *App) AttachPreview(p *camera.Preview) {
	a.loop.Post(func() { a.controller.AttachPreview(p) })
}

// DetachPreview はプレビューを外す
func (a *App) DetachPreview(p *camera.Preview) {
	a.loop.Post(func() { a.controller.DetachPreview(p) })
}
