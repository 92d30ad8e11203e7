package permission

import (
	"sync/atomic"

	"go.uber.org/zap"

	"kagami/internal/runloop"
)

// Gate はカメラ権限を確認し、結果をキャッシュする
//
// CheckAuthorization はメインループ上で呼び出すこと。
// HasAccess はどのゴルーチンからでも読み取れる
type Gate struct {
	loop       *runloop.Loop
	authorizer Authorizer
	logger     *zap.Logger

	access atomic.Bool

	// 以下はメインループ上でのみ扱う
	requesting bool
	waiters    []func(bool)
}

// NewGate は新しいGateを作成する
func NewGate(loop *runloop.Loop, authorizer Authorizer, logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{
		loop:       loop,
		authorizer: authorizer,
		logger:     logger,
	}
}

// HasAccess は最後に確認した権限の有無を返す
func (g *Gate) HasAccess() bool {
	return g.access.Load()
}

// CheckAuthorization は権限を確認し、結果を cb に渡す
//
// 許可済みなら同期的に true、拒否・制限されていればプロンプトを出さずに false を返す。
// 未確認の場合だけ1回プロンプトを出し、結果はメインループ上で通知する
func (g *Gate) CheckAuthorization(cb func(granted bool)) {
	if cb == nil {
		cb = func(bool) {}
	}

	status := g.authorizer.Status()
	switch status {
	case StatusAuthorized:
		g.access.Store(true)
		cb(true)

	case StatusNotDetermined:
		g.waiters = append(g.waiters, cb)
		if g.requesting {
			return // 応答待ちのプロンプトに相乗りする
		}
		g.requesting = true
		g.logger.Info("カメラへのアクセスを要求します")
		g.authorizer.RequestAccess(func(granted bool) {
			g.loop.Post(func() { g.resolve(granted) })
		})

	default:
		if g.access.Swap(false) {
			g.logger.Warn("カメラへのアクセスが取り消されました", zap.Stringer("status", status))
		}
		cb(false)
	}
}

// resolve はプロンプトの結果を待機中の呼び出し元に配る
func (g *Gate) resolve(granted bool) {
	g.requesting = false
	g.access.Store(granted)
	if granted {
		g.logger.Info("カメラへのアクセスが許可されました")
	} else {
		g.logger.Warn("カメラへのアクセスが拒否されました")
	}

	waiters := g.waiters
	g.waiters = nil
	for _, cb := range waiters {
		cb(granted)
	}
}
