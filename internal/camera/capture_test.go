package camera

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func jpegFrame(body string) []byte {
	frame := append([]byte{}, jpegSOI...)
	frame = append(frame, body...)
	return append(frame, jpegEOI...)
}

func TestJPEGSplitter(t *testing.T) {
	a, b := jpegFrame("first"), jpegFrame("second")

	tests := []struct {
		name   string
		chunks [][]byte
		want   [][]byte
	}{
		{
			name:   "1チャンクに1フレーム",
			chunks: [][]byte{a},
			want:   [][]byte{a},
		},
		{
			name:   "1チャンクに2フレーム",
			chunks: [][]byte{append(append([]byte{}, a...), b...)},
			want:   [][]byte{a, b},
		},
		{
			name:   "先頭のゴミを読み飛ばす",
			chunks: [][]byte{append([]byte("garbage"), a...)},
			want:   [][]byte{a},
		},
		{
			name:   "フレームがチャンクをまたぐ",
			chunks: [][]byte{a[:4], a[4:]},
			want:   [][]byte{a},
		},
		{
			name:   "SOIマーカーが分断される",
			chunks: [][]byte{{'x', 0xFF}, a[1:]},
			want:   [][]byte{a},
		},
		{
			name:   "EOIマーカーが分断される",
			chunks: [][]byte{a[:len(a)-1], a[len(a)-1:]},
			want:   [][]byte{a},
		},
		{
			name:   "未完成のフレームは出力しない",
			chunks: [][]byte{a, b[:5]},
			want:   [][]byte{a},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var splitter jpegSplitter
			var got [][]byte
			for _, chunk := range tt.chunks {
				splitter.Feed(chunk, func(frame []byte) {
					got = append(got, frame)
				})
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestJPEGSplitter_FramesAreCopied(t *testing.T) {
	var splitter jpegSplitter
	chunk := jpegFrame("data")

	var got []byte
	splitter.Feed(chunk, func(frame []byte) { got = frame })
	chunk[2] = 'X'

	assert.True(t, bytes.Equal(jpegFrame("data"), got))
}

func TestV4L2Capturer_Args(t *testing.T) {
	tests := []struct {
		name     string
		settings Settings
		want     []string
	}{
		{
			name:     "設定なし",
			settings: Settings{},
			want: []string{
				"-hide_banner", "-loglevel", "error", "-f", "v4l2",
				"-i", "/dev/video0",
				"-f", "image2pipe", "-c:v", "mjpeg", "-q:v", "3", "-",
			},
		},
		{
			name:     "解像度とフレームレート",
			settings: Settings{FPS: 30, Width: 1280, Height: 720},
			want: []string{
				"-hide_banner", "-loglevel", "error", "-f", "v4l2",
				"-video_size", "1280x720", "-framerate", "30",
				"-i", "/dev/video0",
				"-f", "image2pipe", "-c:v", "mjpeg", "-q:v", "3", "-",
			},
		},
		{
			name:     "幅だけの指定は無視する",
			settings: Settings{Width: 640},
			want: []string{
				"-hide_banner", "-loglevel", "error", "-f", "v4l2",
				"-i", "/dev/video0",
				"-f", "image2pipe", "-c:v", "mjpeg", "-q:v", "3", "-",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewV4L2Capturer("", "/dev/video0", tt.settings)
			assert.Equal(t, tt.want, c.Args())
			assert.Equal(t, "ffmpeg", c.ffmpegPath)
		})
	}
}

func TestTailBuffer(t *testing.T) {
	b := &tailBuffer{limit: 8}
	_, _ = b.Write([]byte("0123456789"))
	_, _ = b.Write([]byte("ab"))
	assert.Equal(t, "456789ab", b.String())
}
