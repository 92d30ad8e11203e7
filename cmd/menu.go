package cmd

import (
	"context"
	"fmt"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"kagami/internal/app"
	"kagami/internal/tui"
)

func menuCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "menu",
		Short: "ターミナルメニューを開く",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.NewLinux(e.cfg, e.logger)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			var wg sync.WaitGroup
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := a.Run(ctx); err != nil {
					e.logger.Error("アプリケーションが異常終了しました", zap.Error(err))
				}
			}()

			program := tea.NewProgram(tui.New(a), tea.WithAltScreen(), tea.WithContext(ctx))
			_, runErr := program.Run()

			cancel()
			wg.Wait()

			if runErr != nil && ctx.Err() == nil {
				return fmt.Errorf("メニューの表示に失敗: %w", runErr)
			}
			return nil
		},
	}
}
