package camera

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrIndexOutOfRange は範囲外のデバイス番号が指定された場合に返される
	ErrIndexOutOfRange = errors.New("デバイス番号が範囲外です")
	// ErrNoDevice は選択可能なデバイスが存在しない場合に返される
	ErrNoDevice = errors.New("カメラが見つかりません")
	// ErrBindFailed はデバイスをセッションの入力として確保できなかった場合に返される
	ErrBindFailed = errors.New("デバイスの確保に失敗")
)

// Status はセッションの動作状態を表す
type Status string

const (
	StatusInactive Status = "inactive" // 停止中
	StatusStarting Status = "starting" // 開始処理中
	StatusActive   Status = "active"   // フレーム配信中
	StatusError    Status = "error"    // エラーで停止
)

// Connectivity はデバイスの接続状態
type Connectivity int

const (
	ConnectivityConnected Connectivity = iota
	ConnectivitySuspended
	ConnectivityDisconnected
)

func (c Connectivity) String() string {
	switch c {
	case ConnectivityConnected:
		return "connected"
	case ConnectivitySuspended:
		return "suspended"
	case ConnectivityDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Position はデバイスの取り付け位置
type Position int

const (
	PositionUnspecified Position = iota
	PositionFront
	PositionRear
	PositionExternal
)

func (p Position) String() string {
	switch p {
	case PositionFront:
		return "front"
	case PositionRear:
		return "rear"
	case PositionExternal:
		return "external"
	default:
		return "unspecified"
	}
}

// DeviceClass は検出対象とするデバイスの種類
type DeviceClass string

const (
	ClassBuiltIn  DeviceClass = "builtin"  // 内蔵カメラ
	ClassExternal DeviceClass = "external" // 外付けカメラ
)

// DefaultDeviceClasses は内蔵・外付けの両方を対象にする
var DefaultDeviceClasses = []DeviceClass{ClassBuiltIn, ClassExternal}

// ParseDeviceClass は文字列を DeviceClass に変換する
func ParseDeviceClass(s string) (DeviceClass, error) {
	switch c := DeviceClass(strings.ToLower(strings.TrimSpace(s))); c {
	case ClassBuiltIn, ClassExternal:
		return c, nil
	default:
		return "", fmt.Errorf("不明なデバイス種別: %q", s)
	}
}

// Matches はデバイスがこの種別に該当するか判定する
func (c DeviceClass) Matches(d Device) bool {
	switch c {
	case ClassExternal:
		return d.Position == PositionExternal
	case ClassBuiltIn:
		return d.Position != PositionExternal
	default:
		return false
	}
}

// Device は検出時点のカメラデバイス情報。検出のたびに作り直され、変更されない
type Device struct {
	ID       string       // プロセスをまたいで安定した識別子
	Name     string       // 表示名
	Path     string       // デバイスノード（例: /dev/video0）
	State    Connectivity // 接続状態
	Position Position     // 取り付け位置
}

// Settings はキャプチャの設定を表す
type Settings struct {
	FPS    int // フレームレート
	Width  int // 画像幅
	Height int // 画像高さ
}

// Discovery はカメラデバイスの検出機能を提供する
type Discovery interface {
	// ScanDevices は利用可能なカメラデバイスをプラットフォームの順序で返す
	ScanDevices(ctx context.Context) ([]Device, error)
}

// Session は1台のデバイスを入力とし、0個以上のプレビューへフレームを配信する
type Session interface {
	// ID はセッションごとに一意な識別子を返す
	ID() string

	// Device は入力として確保したデバイスを返す
	Device() Device

	// Start はフレーム配信を開始する
	Start(ctx context.Context) error

	// Stop はフレーム配信を停止し、デバイスを解放する
	Stop(ctx context.Context) error

	// GetStatus は現在の状態を取得する
	GetStatus() Status

	// AttachPreview はプレビュー出力を追加する
	AttachPreview(p *Preview)

	// DetachPreview はプレビュー出力を取り外す
	DetachPreview(p *Preview)
}

// SessionFactory はデバイスを入力として確保した新しいセッションを作成する
type SessionFactory interface {
	CreateSession(ctx context.Context, device Device) (Session, error)
}

// EventKind はホットプラグイベントの種類
type EventKind int

const (
	EventConnected EventKind = iota
	EventDisconnected
)

func (k EventKind) String() string {
	if k == EventDisconnected {
		return "disconnected"
	}
	return "connected"
}

// DeviceEvent はデバイスの接続・切断通知
type DeviceEvent struct {
	Kind EventKind
	Path string
}

// Notifier はホットプラグ通知の購読を提供する
type Notifier interface {
	// Events は通知チャンネルを返す。Close 後にクローズされる
	Events() <-chan DeviceEvent

	// Close は購読を終了する
	Close() error
}
