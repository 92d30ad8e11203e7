// Package permission はカメラへのアクセス権限の確認と要求を扱う
package permission

import (
	"errors"
	"path/filepath"
	"sort"
	"sync"

	"golang.org/x/sys/unix"
)

// Status はカメラへのアクセス権限の状態
type Status int

const (
	StatusNotDetermined Status = iota // まだ確認していない
	StatusRestricted                  // システムの制約で利用できない
	StatusDenied                      // 拒否された
	StatusAuthorized                  // 許可された
)

func (s Status) String() string {
	switch s {
	case StatusNotDetermined:
		return "not_determined"
	case StatusRestricted:
		return "restricted"
	case StatusDenied:
		return "denied"
	case StatusAuthorized:
		return "authorized"
	default:
		return "unknown"
	}
}

// Authorizer はプラットフォームの権限確認
type Authorizer interface {
	// Status は現在の権限状態を返す。プロンプトは出さない
	Status() Status
	// RequestAccess は権限を要求する。cb は任意のゴルーチンから1回呼ばれる
	RequestAccess(cb func(granted bool))
}

// LinuxAuthorizer はデバイスノードの読み書き権限で判定する
//
// Linux には権限プロンプトが無いため、RequestAccess は状態を再評価するだけ
type LinuxAuthorizer struct {
	devRoot string
}

// NewLinuxAuthorizer は新しいLinuxAuthorizerを作成する
func NewLinuxAuthorizer(devRoot string) *LinuxAuthorizer {
	if devRoot == "" {
		devRoot = "/dev"
	}
	return &LinuxAuthorizer{devRoot: devRoot}
}

// Status はいずれかの videoN ノードを読み書きできれば許可とみなす
func (a *LinuxAuthorizer) Status() Status {
	nodes, err := filepath.Glob(filepath.Join(a.devRoot, "video[0-9]*"))
	if err != nil || len(nodes) == 0 {
		return StatusNotDetermined
	}
	sort.Strings(nodes)

	status := StatusNotDetermined
	for _, node := range nodes {
		err := unix.Access(node, unix.R_OK|unix.W_OK)
		switch {
		case err == nil:
			return StatusAuthorized
		case errors.Is(err, unix.EACCES), errors.Is(err, unix.EPERM):
			status = StatusDenied
		case errors.Is(err, unix.ENOENT):
			// 確認中に外された
		default:
			if status != StatusDenied {
				status = StatusRestricted
			}
		}
	}
	return status
}

// RequestAccess は状態を再評価して結果を通知する
// デバイスノードが1つも無い場合は拒否ではないため許可として返す
func (a *LinuxAuthorizer) RequestAccess(cb func(granted bool)) {
	go func() {
		s := a.Status()
		cb(s == StatusAuthorized || s == StatusNotDetermined)
	}()
}

// MockAuthorizer はテスト用のAuthorizer実装
// RequestAccess の結果で状態が確定し、以降は同じ状態を返す
type MockAuthorizer struct {
	mu       sync.Mutex
	status   Status
	grant    bool
	requests int
}

// NewMockAuthorizer は status から始まるMockAuthorizerを作成する
// grant は RequestAccess に対するユーザーの応答
func NewMockAuthorizer(status Status, grant bool) *MockAuthorizer {
	return &MockAuthorizer{status: status, grant: grant}
}

// Status は現在の状態を返す
func (m *MockAuthorizer) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// RequestAccess はプロンプトの応答を非同期に返す
func (m *MockAuthorizer) RequestAccess(cb func(granted bool)) {
	m.mu.Lock()
	m.requests++
	granted := m.grant
	if granted {
		m.status = StatusAuthorized
	} else {
		m.status = StatusDenied
	}
	m.mu.Unlock()

	go cb(granted)
}

// SetStatus は状態を書き換える (設定画面で変更された場合など)
func (m *MockAuthorizer) SetStatus(status Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status = status
}

// Requests は RequestAccess の呼び出し回数を返す
func (m *MockAuthorizer) Requests() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests
}
