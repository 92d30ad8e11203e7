package camera

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"sync"
)

var (
	jpegSOI = []byte{0xFF, 0xD8}
	jpegEOI = []byte{0xFF, 0xD9}
)

// V4L2Capturer はffmpeg経由でV4L2デバイスからMJPEGフレームを取得する
type V4L2Capturer struct {
	ffmpegPath string
	devicePath string
	settings   Settings
}

// NewV4L2Capturer は新しいV4L2Capturerを作成する
func NewV4L2Capturer(ffmpegPath, devicePath string, settings Settings) *V4L2Capturer {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &V4L2Capturer{
		ffmpegPath: ffmpegPath,
		devicePath: devicePath,
		settings:   settings,
	}
}

// Args はffmpegに渡す引数を返す
func (c *V4L2Capturer) Args() []string {
	args := []string{"-hide_banner", "-loglevel", "error", "-f", "v4l2"}
	if c.settings.Width > 0 && c.settings.Height > 0 {
		args = append(args, "-video_size", fmt.Sprintf("%dx%d", c.settings.Width, c.settings.Height))
	}
	if c.settings.FPS > 0 {
		args = append(args, "-framerate", strconv.Itoa(c.settings.FPS))
	}
	return append(args,
		"-i", c.devicePath,
		"-f", "image2pipe",
		"-c:v", "mjpeg",
		"-q:v", "3",
		"-",
	)
}

// Open はffmpegを起動し、フレームを読み出すストリームを返す
func (c *V4L2Capturer) Open(ctx context.Context) (*FrameStream, error) {
	cmd := exec.CommandContext(ctx, c.ffmpegPath, c.Args()...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdoutパイプの作成に失敗: %w", err)
	}

	stderr := &tailBuffer{limit: 4096}
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("ffmpegの起動に失敗: %w", err)
	}

	return &FrameStream{cmd: cmd, stdout: stdout, stderr: stderr}, nil
}

// FrameStream は起動済みffmpegプロセスの出力
type FrameStream struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr *tailBuffer
}

// Read はプロセスが終了するまでフレームを読み取り、onFrame に渡す
func (s *FrameStream) Read(onFrame func([]byte)) error {
	var splitter jpegSplitter
	buffer := make([]byte, 64*1024)

	var readErr error
	for {
		n, err := s.stdout.Read(buffer)
		if n > 0 {
			splitter.Feed(buffer[:n], onFrame)
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				readErr = fmt.Errorf("フレーム読み取りエラー: %w", err)
			}
			break
		}
	}

	if err := s.cmd.Wait(); err != nil {
		// コンテキストキャンセルによる終了はエラーとしない
		if s.cmd.ProcessState != nil && !s.cmd.ProcessState.Exited() {
			return readErr
		}
		return fmt.Errorf("ffmpegが異常終了: %w (stderr: %s)", err, s.stderr.String())
	}
	return readErr
}

// jpegSplitter はバイト列をJPEGのSOI/EOIマーカーで区切る
type jpegSplitter struct {
	pending []byte
}

// Feed はデータを追加し、完成したフレームごとに emit を呼ぶ
func (s *jpegSplitter) Feed(p []byte, emit func([]byte)) {
	s.pending = append(s.pending, p...)

	for {
		start := bytes.Index(s.pending, jpegSOI)
		if start < 0 {
			// マーカーがチャンク境界で分断されている可能性があるため末尾の0xFFは残す
			if n := len(s.pending); n > 0 && s.pending[n-1] == 0xFF {
				s.pending = append(s.pending[:0], 0xFF)
			} else {
				s.pending = s.pending[:0]
			}
			return
		}

		end := bytes.Index(s.pending[start+len(jpegSOI):], jpegEOI)
		if end < 0 {
			// 完全なフレームがまだない
			if start > 0 {
				s.pending = append(s.pending[:0], s.pending[start:]...)
			}
			return
		}

		end += start + len(jpegSOI) + len(jpegEOI)
		frame := make([]byte, end-start)
		copy(frame, s.pending[start:end])
		emit(frame)

		s.pending = append(s.pending[:0], s.pending[end:]...)
	}
}

// tailBuffer は末尾 limit バイトだけを保持する
type tailBuffer struct {
	mu    sync.Mutex
	limit int
	buf   []byte
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.limit; over > 0 {
		b.buf = append(b.buf[:0], b.buf[over:]...)
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(bytes.TrimSpace(b.buf))
}
