package camera

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Preview はUI側が所有するフレームの受け口
//
// セッションの切り替えをまたいで生き続け、コントローラーが新しいセッションへ
// 付け替える。受け取り側が遅い場合は古いフレームから破棄する
type Preview struct {
	id     string
	frames chan []byte

	mu        sync.Mutex
	delivered atomic.Uint64
	dropped   atomic.Uint64
}

// NewPreview は buffer 枚分のフレームを保持する Preview を作成する
func NewPreview(buffer int) *Preview {
	if buffer <= 0 {
		buffer = 1
	}
	return &Preview{
		id:     uuid.NewString(),
		frames: make(chan []byte, buffer),
	}
}

// ID はプレビューの識別子を返す
func (p *Preview) ID() string {
	return p.id
}

// Frames はフレームの受信チャンネルを返す。このチャンネルはクローズされない
func (p *Preview) Frames() <-chan []byte {
	return p.frames
}

// Deliver はフレームを配送する。満杯の場合は最も古いフレームを捨てる
func (p *Preview) Deliver(frame []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()

	select {
	case p.frames <- frame:
		p.delivered.Add(1)
		return
	default:
	}

	// チャンネルがフルの場合は古いフレームを破棄
	select {
	case <-p.frames:
		p.dropped.Add(1)
	default:
	}
	select {
	case p.frames <- frame:
		p.delivered.Add(1)
	default:
		p.dropped.Add(1)
	}
}

// Stats は配送数と破棄数を返す
func (p *Preview) Stats() (delivered, dropped uint64) {
	return p.delivered.Load(), p.dropped.Load()
}

// previewSet はセッションに付けられたプレビューの集合
type previewSet struct {
	mu    sync.RWMutex
	items map[string]*Preview
}

func (s *previewSet) add(p *Preview) {
	if p == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.items == nil {
		s.items = make(map[string]*Preview)
	}
	s.items[p.ID()] = p
}

func (s *previewSet) remove(p *Preview) {
	if p == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, p.ID())
}

func (s *previewSet) len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

func (s *previewSet) broadcast(frame []byte) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.items {
		p.Deliver(frame)
	}
}
