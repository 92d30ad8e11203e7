package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"kagami/internal/app"
	"kagami/internal/camera"
)

func watchCommand(e *env) *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "メニューを開かずにプレビューを動かし、状態をログに出す",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.NewLinux(e.cfg, e.logger)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			preview := camera.NewPreview(8)
			a.AttachPreview(preview)
			a.StartSession()
			go reportFrames(ctx, a, preview, interval, e.logger.Named("watch"))

			return a.Run(ctx)
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", 5*time.Second, "状態を出力する間隔")
	return cmd
}

// reportFrames はフレームを読み捨てながら定期的に状態を出力する
func reportFrames(ctx context.Context, a *app.App, preview *camera.Preview, interval time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastStatus string
	for {
		select {
		case <-ctx.Done():
			return
		case <-preview.Frames():
		case <-ticker.C:
			delivered, dropped := preview.Stats()
			logger.Info("プレビューの状態",
				zap.String("status", a.Status()),
				zap.Strings("devices", a.DeviceNames()),
				zap.Int("selected", a.CurrentDeviceIndex()),
				zap.Uint64("frames", delivered),
				zap.Uint64("dropped", dropped),
			)
		}

		if s := a.Status(); s != lastStatus {
			lastStatus = s
			logger.Info("ステータスが変わりました", zap.String("status", s))
		}
	}
}
