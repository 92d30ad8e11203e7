package camera

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// MockSessionFactory はテスト用のSessionFactory実装
type MockSessionFactory struct {
	mu         sync.Mutex
	bindErrors map[string]error
	failStart  map[string]bool
	stopDelay  time.Duration
	sessions   []*MockSession
	holders    holderCount
}

// holderCount はデバイスを確保している稼働中セッションの数を数える
type holderCount struct {
	current atomic.Int32
	max     atomic.Int32
}

func (h *holderCount) acquire() {
	n := h.current.Add(1)
	for {
		m := h.max.Load()
		if n <= m || h.max.CompareAndSwap(m, n) {
			return
		}
	}
}

func (h *holderCount) release() {
	h.current.Add(-1)
}

// NewMockSessionFactory は新しいMockSessionFactoryを作成する
func NewMockSessionFactory() *MockSessionFactory {
	return &MockSessionFactory{
		bindErrors: make(map[string]error),
		failStart:  make(map[string]bool),
	}
}

// CreateSession はモックSessionを作成する
func (f *MockSessionFactory) CreateSession(_ context.Context, device Device) (Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err, ok := f.bindErrors[device.ID]; ok {
		return nil, fmt.Errorf("%w: %s: %w", ErrBindFailed, device.Name, err)
	}

	session := NewMockSession(device)
	session.shouldFailStart = f.failStart[device.ID]
	session.stopDelay = f.stopDelay
	session.holders = &f.holders
	f.sessions = append(f.sessions, session)
	return session, nil
}

// SetBindError は指定デバイスの確保を失敗させる。nil で解除する
func (f *MockSessionFactory) SetBindError(deviceID string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.bindErrors, deviceID)
		return
	}
	f.bindErrors[deviceID] = err
}

// SetFailStart は指定デバイスのセッションが Start に失敗するようにする
func (f *MockSessionFactory) SetFailStart(deviceID string, fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failStart[deviceID] = fail
}

// SetStopDelay は以降に作成するセッションの Stop を d だけ遅らせる
func (f *MockSessionFactory) SetStopDelay(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopDelay = d
}

// MaxHolders は同時に稼働していたセッション数の最大値を返す
func (f *MockSessionFactory) MaxHolders() int {
	return int(f.holders.max.Load())
}

// Sessions は作成済みのセッションを作成順に返す
func (f *MockSessionFactory) Sessions() []*MockSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*MockSession(nil), f.sessions...)
}

// MockSession はテスト用のモックセッション実装
type MockSession struct {
	id       string
	device   Device
	previews previewSet

	mu         sync.Mutex
	status     Status
	startCalls int
	stopCalls  int

	// テスト制御用
	shouldFailStart bool
	stopDelay       time.Duration
	holders         *holderCount
}

// NewMockSession は新しいMockSessionを作成する
func NewMockSession(device Device) *MockSession {
	return &MockSession{
		id:     uuid.NewString(),
		device: device,
		status: StatusInactive,
	}
}

func (m *MockSession) ID() string     { return m.id }
func (m *MockSession) Device() Device { return m.device }

// Start はモックセッションを開始する
func (m *MockSession) Start(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.startCalls++
	if m.status == StatusActive {
		return fmt.Errorf("セッション %s は既に開始されています", m.id)
	}
	if m.shouldFailStart {
		m.status = StatusError
		return fmt.Errorf("モック: セッション開始に失敗")
	}

	m.status = StatusActive
	if m.holders != nil {
		m.holders.acquire()
	}
	return nil
}

// Stop はモックセッションを停止する
func (m *MockSession) Stop(_ context.Context) error {
	if m.stopDelay > 0 {
		time.Sleep(m.stopDelay)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.stopCalls++
	if m.status == StatusActive && m.holders != nil {
		m.holders.release()
	}
	m.status = StatusInactive
	return nil
}

// GetStatus は現在の状態を取得する
func (m *MockSession) GetStatus() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

func (m *MockSession) AttachPreview(p *Preview) { m.previews.add(p) }
func (m *MockSession) DetachPreview(p *Preview) { m.previews.remove(p) }

// PreviewCount は付けられているプレビューの数を返す
func (m *MockSession) PreviewCount() int {
	return m.previews.len()
}

// EmitFrame は動作中であればフレームをプレビューへ配信する
func (m *MockSession) EmitFrame(frame []byte) bool {
	if m.GetStatus() != StatusActive {
		return false
	}
	m.previews.broadcast(frame)
	return true
}

// Calls は Start / Stop の呼び出し回数を返す
func (m *MockSession) Calls() (starts, stops int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.startCalls, m.stopCalls
}

// SetShouldFailStart はテスト用にStart失敗を設定する
func (m *MockSession) SetShouldFailStart(shouldFail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shouldFailStart = shouldFail
}
