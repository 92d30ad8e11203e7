// Package preference はユーザー設定 (左右反転の有無) を永続化する
package preference

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// KeyMirrored は左右反転フラグのキー
const KeyMirrored = "isMirrored"

// document は設定ファイルの内容
type document struct {
	Mirrored bool `yaml:"isMirrored"`
}

// Store はYAMLファイルに1つの真偽値を保存する
type Store struct {
	path   string
	logger *zap.Logger
	mu     sync.Mutex
}

// NewStore は path を保存先とするStoreを作成する
func NewStore(path string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{path: path, logger: logger}
}

// Path は保存先のパスを返す
func (s *Store) Path() string {
	return s.path
}

// Load は保存されている左右反転フラグを返す
// ファイルが無い、または読めない場合は false
func (s *Store) Load() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("設定ファイルの読み込みに失敗しました", zap.String("path", s.path), zap.Error(err))
		}
		return false
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		s.logger.Warn("設定ファイルの解析に失敗しました", zap.String("path", s.path), zap.Error(err))
		return false
	}
	return doc.Mirrored
}

// Set は左右反転フラグを保存する
// 一時ファイルに書いてからリネームするため、途中で失敗しても元の内容は壊れない
func (s *Store) Set(mirrored bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := yaml.Marshal(document{Mirrored: mirrored})
	if err != nil {
		return fmt.Errorf("設定のエンコードに失敗: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("設定ディレクトリの作成に失敗: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".preferences-*.yaml")
	if err != nil {
		return fmt.Errorf("一時ファイルの作成に失敗: %w", err)
	}
	defer os.Remove(tmp.Name()) // リネーム後は何もしない

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("設定の書き込みに失敗: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("設定の書き込みに失敗: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("設定の書き込みに失敗: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("設定ファイルの置き換えに失敗: %w", err)
	}

	s.logger.Debug("設定を保存しました", zap.Bool(KeyMirrored, mirrored))
	return nil
}
