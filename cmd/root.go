// Package cmd はkagamiのコマンドラインを定義する
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"kagami/internal/config"
	"kagami/internal/logging"
)

// env はサブコマンドが共有する設定とロガー
type env struct {
	configPath string
	logLevel   string

	cfg      *config.Config
	logger   *zap.Logger
	closeLog func() error
}

// RootCommand はルートコマンドを作成する
func RootCommand() *cobra.Command {
	e := &env{}

	rootCmd := &cobra.Command{
		Use:           "kagami",
		Short:         "Webカメラのプレビューとデバイス切り替え",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&e.configPath, "config", "c", "", "設定ファイルのパス (YAML)")
	rootCmd.PersistentFlags().StringVar(&e.logLevel, "log-level", "", "ログレベル (debug / info / warn / error)")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return e.setup()
	}
	rootCmd.PersistentPostRunE = func(cmd *cobra.Command, args []string) error {
		return e.teardown()
	}

	rootCmd.AddCommand(
		menuCommand(e),
		devicesCommand(e),
		watchCommand(e),
		mirrorCommand(e),
	)
	return rootCmd
}

// setup は設定を読み込み、ロガーを作成する
func (e *env) setup() error {
	cfg, err := config.Load(e.configPath)
	if err != nil {
		return err
	}
	if e.logLevel != "" {
		cfg.Logging.Level = e.logLevel
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("設定の検証に失敗: %w", err)
		}
	}

	logger, closeLog, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("ロガーの作成に失敗: %w", err)
	}

	e.cfg = cfg
	e.logger = logger
	e.closeLog = closeLog
	return nil
}

func (e *env) teardown() error {
	if e.closeLog == nil {
		return nil
	}
	return e.closeLog()
}
