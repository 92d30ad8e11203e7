package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"kagami/internal/camera"
)

// EnvPrefix は環境変数による上書きの接頭辞 (例: KAGAMI_LOGGING_LEVEL)
const EnvPrefix = "KAGAMI"

// Config はアプリケーション全体の設定を保持する構造体
type Config struct {
	Logging    LoggingConfig    `mapstructure:"logging"`
	Camera     CameraConfig     `mapstructure:"camera"`
	Preference PreferenceConfig `mapstructure:"preference"`
}

// LoggingConfig はログ出力の設定
type LoggingConfig struct {
	Level    string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Output   string `mapstructure:"output" validate:"oneof=console file both"`
	FilePath string `mapstructure:"file_path" validate:"required_unless=Output console"`

	// ローテーション設定
	MaxSize    int  `mapstructure:"max_size" validate:"gte=0"`    // MB
	MaxBackups int  `mapstructure:"max_backups" validate:"gte=0"` // 世代数
	MaxAge     int  `mapstructure:"max_age" validate:"gte=0"`     // 日数
	Compress   bool `mapstructure:"compress"`
}

// CameraConfig はカメラ関連の設定
type CameraConfig struct {
	DevRoot string `mapstructure:"dev_root" validate:"required"` // デバイスノードのディレクトリ
	SysRoot string `mapstructure:"sys_root" validate:"required"` // video4linux のsysfsディレクトリ

	// 対象にするデバイスの種類 (builtin / external)
	DeviceClasses []string `mapstructure:"device_classes" validate:"min=1,dive,oneof=builtin external"`

	FFmpegPath string `mapstructure:"ffmpeg_path" validate:"required"`
	FPS        int    `mapstructure:"fps" validate:"gte=0,lte=120"`
	Width      int    `mapstructure:"width" validate:"gte=0"`
	Height     int    `mapstructure:"height" validate:"gte=0"`

	// 接続通知から再検出までの待ち時間
	ConnectDebounce time.Duration `mapstructure:"connect_debounce" validate:"gte=0"`
	// セッション公開から開始までの待ち時間
	StartDelay time.Duration `mapstructure:"start_delay" validate:"gte=0"`

	// ホットプラグの検知方法 (auto: fsnotify が使えなければポーリング)
	WatchMode    string        `mapstructure:"watch_mode" validate:"oneof=auto fsnotify poll"`
	PollInterval time.Duration `mapstructure:"poll_interval" validate:"gte=0"`
}

// PreferenceConfig はユーザー設定ファイルの設定
type PreferenceConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

// Load は設定を読み込む
// path が空の場合はデフォルト値と環境変数だけを使う
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("設定ファイル %s の読み込みに失敗: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("設定の変換に失敗: %w", err)
	}

	// 設定の検証
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("設定の検証に失敗: %w", err)
	}

	return &cfg, nil
}

// setDefaults はすべてのキーにデフォルト値を設定する
// AutomaticEnv はデフォルトのあるキーだけを Unmarshal で拾う
func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.output", "console")
	v.SetDefault("logging.file_path", filepath.Join(defaultDir(), "kagami.log"))
	v.SetDefault("logging.max_size", 10)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age", 28)
	v.SetDefault("logging.compress", false)

	v.SetDefault("camera.dev_root", camera.DefaultDevRoot)
	v.SetDefault("camera.sys_root", camera.DefaultSysRoot)
	v.SetDefault("camera.device_classes", []string{string(camera.ClassBuiltIn), string(camera.ClassExternal)})
	v.SetDefault("camera.ffmpeg_path", "ffmpeg")
	v.SetDefault("camera.fps", 30)
	v.SetDefault("camera.width", 1280)
	v.SetDefault("camera.height", 720)
	v.SetDefault("camera.connect_debounce", camera.DefaultConnectDebounce)
	v.SetDefault("camera.start_delay", camera.DefaultStartDelay)
	v.SetDefault("camera.watch_mode", "auto")
	v.SetDefault("camera.poll_interval", camera.DefaultPollInterval)

	v.SetDefault("preference.path", filepath.Join(defaultDir(), "preferences.yaml"))
}

// defaultDir はユーザー設定ディレクトリ配下のアプリ用ディレクトリを返す
func defaultDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "."
	}
	return filepath.Join(dir, "kagami")
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate は設定の妥当性を検証する
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("無効な設定値 %s=%v (%s)", fe.Namespace(), fe.Value(), fe.Tag())
		}
		return err
	}

	// フレームサイズは幅と高さの両方を指定する
	if (c.Camera.Width == 0) != (c.Camera.Height == 0) {
		return fmt.Errorf("無効なフレームサイズ: %dx%d", c.Camera.Width, c.Camera.Height)
	}

	return nil
}

// Classes は設定されたデバイスの種類を返す
func (c *CameraConfig) Classes() ([]camera.DeviceClass, error) {
	classes := make([]camera.DeviceClass, 0, len(c.DeviceClasses))
	for _, name := range c.DeviceClasses {
		class, err := camera.ParseDeviceClass(name)
		if err != nil {
			return nil, err
		}
		classes = append(classes, class)
	}
	return classes, nil
}

// Settings はセッションに渡すキャプチャ設定を返す
func (c *CameraConfig) Settings() camera.Settings {
	return camera.Settings{
		FPS:    c.FPS,
		Width:  c.Width,
		Height: c.Height,
	}
}
