package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"kagami/internal/preference"
)

func mirrorCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:       "mirror [on|off|toggle]",
		Short:     "プレビューの左右反転を表示・変更する",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"on", "off", "toggle"},
		RunE: func(cmd *cobra.Command, args []string) error {
			store := preference.NewStore(e.cfg.Preference.Path, e.logger.Named("preference"))
			mirrored := store.Load()

			if len(args) == 1 {
				switch args[0] {
				case "on":
					mirrored = true
				case "off":
					mirrored = false
				case "toggle":
					mirrored = !mirrored
				}
				if err := store.Set(mirrored); err != nil {
					return err
				}
			}

			state := "off"
			if mirrored {
				state = "on"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", preference.KeyMirrored, state)
			return nil
		},
	}
}
