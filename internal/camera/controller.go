package camera

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"kagami/internal/runloop"
)

const (
	// DefaultStartDelay は新しいセッションを公開してから開始するまでの待ち時間
	DefaultStartDelay = 250 * time.Millisecond
	// sessionTimeout はセッションの開始・停止1回あたりの上限
	sessionTimeout = 10 * time.Second
)

// ステータス文字列
const (
	StatusTextNoCameras = "カメラが見つかりません"
	StatusTextStopped   = "プレビューを停止しました"
)

// sessionHandle は公開中のセッションと、その公開世代
type sessionHandle struct {
	session    Session
	generation uint64
}

// Controller は現在のセッションを1つだけ保持し、デバイスの切り替えを行う
//
// Current / Status 以外のメソッドはメインループ上で呼び出すこと
type Controller struct {
	loop       *runloop.Loop
	registry   *Registry
	factory    SessionFactory
	logger     *zap.Logger
	startDelay time.Duration

	current atomic.Pointer[sessionHandle]
	status  atomic.Pointer[string]

	// 以下はメインループ上でのみ扱う
	wantRunning  bool
	generation   uint64
	previews     map[string]*Preview
	pendingStops int     // 停止が完了していないセッションの数
	starting     Session // 開始処理中のセッション
	interrupted  bool    // 開始処理中に停止が要求された
}

// NewController は新しいControllerを作成する
func NewController(loop *runloop.Loop, registry *Registry, factory SessionFactory, startDelay time.Duration, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	if startDelay < 0 {
		startDelay = 0
	}
	c := &Controller{
		loop:       loop,
		registry:   registry,
		factory:    factory,
		logger:     logger,
		startDelay: startDelay,
		previews:   make(map[string]*Preview),
	}
	c.setStatus("")
	return c
}

// Current は公開中のセッションを返す。無い場合は nil
// どのゴルーチンからでも呼び出せる
func (c *Controller) Current() Session {
	if h := c.current.Load(); h != nil {
		return h.session
	}
	return nil
}

// Status は表示用のステータス文字列を返す
// どのゴルーチンからでも呼び出せる
func (c *Controller) Status() string {
	return *c.status.Load()
}

// Running はUIがセッションの動作を要求しているかを返す
func (c *Controller) Running() bool {
	return c.wantRunning
}

func (c *Controller) setStatus(text string) {
	c.status.Store(&text)
}

// SwitchTo は index 番目のデバイスへ切り替える
//
// 範囲外の index は何もせず ErrIndexOutOfRange を返す。
// デバイスの確保に失敗した場合は現在のセッションを維持したまま失敗を返す。
// 成功した場合は新しいセッションを公開してから古いセッションを破棄し、
// UIが動作を要求していれば少し待ってから開始する
func (c *Controller) SwitchTo(ctx context.Context, index int) error {
	snap := c.registry.Snapshot()
	if index < 0 || index >= len(snap.Devices) {
		c.logger.Debug("範囲外のデバイス選択を無視しました",
			zap.Int("index", index),
			zap.Int("count", len(snap.Devices)),
		)
		return fmt.Errorf("%w: %d (デバイス数 %d)", ErrIndexOutOfRange, index, len(snap.Devices))
	}

	device := snap.Devices[index]
	session, err := c.factory.CreateSession(ctx, device)
	if err != nil {
		c.setStatus(fmt.Sprintf("%s に切り替えできませんでした", device.Name))
		c.logger.Warn("デバイスの切り替えに失敗しました",
			zap.String("device_id", device.ID),
			zap.Error(err),
		)
		return fmt.Errorf("カメラ %s への切り替えに失敗: %w", device.Name, err)
	}

	c.registry.Select(index)
	c.publish(ctx, session)
	c.logger.Info("デバイスを切り替えました",
		zap.String("device_id", device.ID),
		zap.String("device_name", device.Name),
		zap.String("session_id", session.ID()),
	)
	return nil
}

// Reconcile はレジストリの選択に現在のセッションを合わせる
//
// 一覧が空ならセッションを破棄する。選択中のデバイスに既に正常なセッションが
// あれば何もしない
func (c *Controller) Reconcile(ctx context.Context) error {
	snap := c.registry.Snapshot()
	device, ok := snap.SelectedDevice()
	if !ok {
		c.Clear(ctx)
		c.setStatus(StatusTextNoCameras)
		return nil
	}

	if h := c.current.Load(); h != nil {
		if h.session.Device().ID == device.ID && h.session.GetStatus() != StatusError {
			return nil
		}
	}
	return c.SwitchTo(ctx, snap.Selected)
}

// Resync はデバイスを再検出し、選択に合わせてセッションを切り替える
func (c *Controller) Resync(ctx context.Context) error {
	if _, err := c.registry.Refresh(ctx); err != nil {
		c.setStatus("カメラの検出に失敗しました")
		return err
	}
	return c.Reconcile(ctx)
}

// Start はUIの表示に合わせてセッションを開始する
func (c *Controller) Start(ctx context.Context) error {
	c.wantRunning = true

	h := c.current.Load()
	if h == nil {
		snap := c.registry.Snapshot()
		if snap.Selected == NoSelection {
			c.setStatus(StatusTextNoCameras)
			return ErrNoDevice
		}
		// 公開後に開始が予約される
		return c.SwitchTo(ctx, snap.Selected)
	}

	if s := h.session.GetStatus(); s != StatusActive || c.pendingStops > 0 {
		c.setStatus(fmt.Sprintf("%s を準備中", h.session.Device().Name))
	}
	c.startSession(ctx, h.generation)
	return nil
}

// Stop はUIが閉じられたときにセッションを停止する
func (c *Controller) Stop(ctx context.Context) {
	c.wantRunning = false
	if h := c.current.Load(); h != nil {
		c.stopAsync(ctx, h.session)
	}
	c.setStatus(StatusTextStopped)
}

// Clear は現在のセッションを破棄し、セッション無しの状態にする
func (c *Controller) Clear(ctx context.Context) {
	c.generation++
	h := c.current.Swap(nil)
	if h == nil {
		return
	}
	for _, p := range c.previews {
		h.session.DetachPreview(p)
	}
	c.stopAsync(ctx, h.session)
	c.logger.Info("セッションを破棄しました", zap.String("session_id", h.session.ID()))
}

// AttachPreview はプレビューを登録し、現在のセッションにも付ける
func (c *Controller) AttachPreview(p *Preview) {
	if p == nil {
		return
	}
	c.previews[p.ID()] = p
	if s := c.Current(); s != nil {
		s.AttachPreview(p)
	}
}

// DetachPreview はプレビューの登録を解除する
func (c *Controller) DetachPreview(p *Preview) {
	if p == nil {
		return
	}
	delete(c.previews, p.ID())
	if s := c.Current(); s != nil {
		s.DetachPreview(p)
	}
}

// publish は新しいセッションを現在のセッションとして差し替える
func (c *Controller) publish(ctx context.Context, next Session) {
	c.generation++
	gen := c.generation

	for _, p := range c.previews {
		next.AttachPreview(p)
	}

	prev := c.current.Swap(&sessionHandle{session: next, generation: gen})
	if c.wantRunning {
		c.setStatus(fmt.Sprintf("%s を準備中", next.Device().Name))
	} else {
		c.setStatus(fmt.Sprintf("%s を選択中", next.Device().Name))
	}

	if prev == nil {
		c.scheduleStart(ctx, gen)
		return
	}

	for _, p := range c.previews {
		prev.session.DetachPreview(p)
	}

	// 新しいセッションは古いセッションの停止完了後に開始される
	c.stopAsync(ctx, prev.session)
}

// scheduleStart は startDelay 後にセッションを開始する
func (c *Controller) scheduleStart(ctx context.Context, gen uint64) {
	if !c.wantRunning {
		return
	}
	c.loop.After(c.startDelay, func() { c.startSession(ctx, gen) })
}

// startSession は gen 世代のセッションがまだ現在のものであれば開始する
//
// デバイスを手放していないセッションが残っている間は開始しない。
// 最後の停止が完了した時点で onStopped が開始を予約し直す
func (c *Controller) startSession(ctx context.Context, gen uint64) {
	h := c.current.Load()
	if h == nil || h.generation != gen || !c.wantRunning {
		return // 後続の切り替えに置き換えられた
	}
	if c.pendingStops > 0 {
		return
	}
	session := h.session
	if c.starting == session {
		return
	}
	switch session.GetStatus() {
	case StatusActive:
		c.setStatus(fmt.Sprintf("%s を表示中", session.Device().Name))
		return
	case StatusStarting:
		return
	}

	c.starting = session
	go func() {
		startCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sessionTimeout)
		defer cancel()
		err := session.Start(startCtx)
		c.loop.Post(func() { c.onStarted(ctx, gen, session, err) })
	}()
}

// onStarted は開始処理の結果をメインループ上で反映する
func (c *Controller) onStarted(ctx context.Context, gen uint64, session Session, err error) {
	interrupted := false
	if c.starting == session {
		c.starting = nil
		interrupted, c.interrupted = c.interrupted, false
	}
	h := c.current.Load()
	superseded := h == nil || h.generation != gen

	if err != nil {
		c.logger.Warn("セッションの開始に失敗しました",
			zap.String("session_id", session.ID()),
			zap.Error(err),
		)
		if !superseded {
			c.setStatus(fmt.Sprintf("%s を開始できませんでした", session.Device().Name))
		}
		return
	}

	// 開始中に置き換えられた、または停止を要求された場合は止める
	if superseded || !c.wantRunning {
		c.stopAsync(ctx, session)
		return
	}

	// 開始と停止が重なった場合は停止の完了後に開始し直す
	if interrupted {
		c.scheduleStart(ctx, gen)
		return
	}

	c.setStatus(fmt.Sprintf("%s を表示中", session.Device().Name))
	c.logger.Info("プレビューを開始しました",
		zap.String("session_id", session.ID()),
		zap.String("device_name", session.Device().Name),
	)
}

// stopAsync はセッションを別ゴルーチンで停止し、完了をメインループへ通知する
func (c *Controller) stopAsync(ctx context.Context, session Session) {
	if c.starting == session {
		c.interrupted = true
	}
	c.pendingStops++
	go func() {
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sessionTimeout)
		defer cancel()
		if err := session.Stop(stopCtx); err != nil && !errors.Is(err, context.Canceled) {
			c.logger.Warn("セッションの停止に失敗しました",
				zap.String("session_id", session.ID()),
				zap.Error(err),
			)
		}
		c.loop.Post(func() { c.onStopped(ctx) })
	}()
}

// onStopped は停止の完了を反映し、すべて完了していれば現在のセッションの開始を予約する
func (c *Controller) onStopped(ctx context.Context) {
	c.pendingStops--
	if c.pendingStops > 0 {
		return
	}
	if h := c.current.Load(); h != nil {
		c.scheduleStart(ctx, h.generation)
	}
}
