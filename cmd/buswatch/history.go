package main

import (
	"fmt"

	"buswatch/internal/recorder"

	"github.com/spf13/cobra"
)

func historyCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print recently recorded signals, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			store, err := recorder.Open(cfg.Record.DBPath, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			entries, err := store.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			for _, e := range entries {
				fmt.Printf("%s  %s.%s  sender=%s path=%s body=%s\n",
					e.ReceivedAt.Format("2006-01-02 15:04:05"),
					e.Interface, e.Member, e.Sender, e.Path, e.Body)
			}
			if len(entries) == 0 {
				fmt.Println("no recorded signals")
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of entries to print")
	return cmd
}
