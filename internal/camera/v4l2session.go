package camera

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// V4L2SessionFactory はffmpegでフレームを取得するセッションを作成する
type V4L2SessionFactory struct {
	ffmpegPath string
	settings   Settings
	logger     *zap.Logger
}

// NewV4L2SessionFactory は新しいV4L2SessionFactoryを作成する
func NewV4L2SessionFactory(ffmpegPath string, settings Settings, logger *zap.Logger) *V4L2SessionFactory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &V4L2SessionFactory{
		ffmpegPath: ffmpegPath,
		settings:   settings,
		logger:     logger,
	}
}

// CreateSession はデバイスを確保できることを確認してからセッションを作成する
func (f *V4L2SessionFactory) CreateSession(_ context.Context, device Device) (Session, error) {
	if err := bindDevice(device.Path); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrBindFailed, device.Name, err)
	}

	id := uuid.NewString()
	return &v4l2Session{
		id:       id,
		device:   device,
		capturer: NewV4L2Capturer(f.ffmpegPath, device.Path, f.settings),
		logger:   f.logger.With(zap.String("session_id", id), zap.String("device", device.Path)),
		status:   StatusInactive,
	}, nil
}

// bindDevice はデバイスノードが読み書き可能なキャラクタデバイスか確認する
func bindDevice(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.Mode()&os.ModeCharDevice == 0 {
		return fmt.Errorf("キャラクタデバイスではありません: %s", path)
	}

	fd, err := unix.Open(path, unix.O_RDWR|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return fmt.Errorf("デバイスを開けません: %s: %w", path, err)
	}
	return unix.Close(fd)
}

// v4l2Session はV4L2デバイス1台分のプレビューセッション
type v4l2Session struct {
	id       string
	device   Device
	capturer *V4L2Capturer
	logger   *zap.Logger
	previews previewSet

	mu     sync.Mutex
	status Status
	cancel context.CancelFunc
	done   chan struct{}
}

func (s *v4l2Session) ID() string     { return s.id }
func (s *v4l2Session) Device() Device { return s.device }

// Start はffmpegを起動してフレーム配信を開始する
func (s *v4l2Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == StatusActive {
		return nil // 既に開始済み
	}
	if s.cancel != nil {
		// 異常終了した前回のストリームを片付ける
		s.cancel()
	}

	// 呼び出し元のコンテキストが終わってもストリームは Stop まで続ける
	streamCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stream, err := s.capturer.Open(streamCtx)
	if err != nil {
		cancel()
		s.status = StatusError
		return fmt.Errorf("カメラ %s の開始に失敗: %w", s.device.Name, err)
	}

	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	s.status = StatusActive

	go func() {
		defer close(done)
		err := stream.Read(s.previews.broadcast)

		s.mu.Lock()
		defer s.mu.Unlock()
		if s.done != done {
			return
		}
		if err != nil {
			s.logger.Warn("フレーム取得が終了しました", zap.Error(err))
			s.status = StatusError
			return
		}
		if s.status == StatusActive {
			s.status = StatusInactive
		}
	}()

	s.logger.Info("セッションを開始しました")
	return nil
}

// Stop はffmpegを停止し、読み取りゴルーチンの終了を待つ
func (s *v4l2Session) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.status = StatusInactive
	s.mu.Unlock()

	if cancel == nil {
		return nil // 既に停止している
	}
	cancel()

	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("カメラ %s の停止待ちが中断されました: %w", s.device.Name, ctx.Err())
	}

	s.logger.Info("セッションを停止しました")
	return nil
}

func (s *v4l2Session) GetStatus() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *v4l2Session) AttachPreview(p *Preview) { s.previews.add(p) }
func (s *v4l2Session) DetachPreview(p *Preview) { s.previews.remove(p) }
