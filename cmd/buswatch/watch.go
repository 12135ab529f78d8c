package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"buswatch/internal/bus"
	"buswatch/internal/domain"
	"buswatch/internal/profile"
	"buswatch/internal/recorder"

	"github.com/spf13/cobra"
)

func watchCmd() *cobra.Command {
	var ff filterFlags
	var profilePath string
	var record bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Subscribe to matching signals and print them until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			kind, err := busType(cfg)
			if err != nil {
				return err
			}

			conn, err := bus.Acquire(kind, bus.WithLogger(logger))
			if err != nil {
				return err
			}
			defer conn.Release()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			var store *recorder.Store
			if record {
				store, err = recorder.Open(cfg.Record.DBPath, logger)
				if err != nil {
					return err
				}
				defer store.Close()
				if cfg.Record.RetentionDays > 0 {
					retention := time.Duration(cfg.Record.RetentionDays) * 24 * time.Hour
					if _, err := store.Prune(ctx, retention); err != nil {
						logger.Warn("cannot prune old signals", "err", err)
					}
				}
			}

			handler := printHandler(ctx, store)

			if profilePath != "" {
				p, err := profile.Load(profilePath)
				if err != nil {
					return err
				}
				defaultKeywords(p)
				if err := p.Apply(ctx, conn, handler); err != nil {
					return err
				}
				logger.Info("watching", "bus", kind.String(), "profile", p.Name, "subscriptions", len(p.Subscriptions))
			} else {
				f, err := ff.filter()
				if err != nil {
					return err
				}
				// Bind the message fields as keywords so the handler can
				// print and record them.
				f.MemberKeyword = "member"
				f.InterfaceKeyword = "interface"
				f.SenderKeyword = "sender"
				f.PathKeyword = "path"
				if err := conn.Subscribe(ctx, handler, f); err != nil {
					return err
				}
				logger.Info("watching", "bus", kind.String(), "unique_name", conn.UniqueName())
			}

			err = conn.Run(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	ff.register(cmd)
	cmd.Flags().StringVar(&profilePath, "profile", "", "YAML watch profile to subscribe from")
	cmd.Flags().BoolVar(&record, "record", false, "record matching signals to the signal database")
	return cmd
}

// defaultKeywords fills in the standard keyword bindings on profile
// subscriptions that did not choose their own, so the print handler always
// sees the message fields.
func defaultKeywords(p *profile.Profile) {
	for i := range p.Subscriptions {
		s := &p.Subscriptions[i]
		if s.MemberKeyword == "" {
			s.MemberKeyword = "member"
		}
		if s.InterfaceKeyword == "" {
			s.InterfaceKeyword = "interface"
		}
		if s.SenderKeyword == "" {
			s.SenderKeyword = "sender"
		}
		if s.PathKeyword == "" {
			s.PathKeyword = "path"
		}
	}
}

// printHandler logs each delivery's keyword bindings and body, and records
// it when a store is given.
func printHandler(ctx context.Context, store *recorder.Store) domain.Handler {
	return func(d domain.Delivery) {
		keys := make([]string, 0, len(d.Keywords))
		for k := range d.Keywords {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		attrs := make([]any, 0, 2*len(keys)+2)
		for _, k := range keys {
			attrs = append(attrs, k, d.Keywords[k])
		}
		attrs = append(attrs, "body", fmt.Sprintf("%v", d.Body))
		logger.Info("signal", attrs...)

		if store != nil {
			sig := domain.Signal{
				Member:    d.Keywords["member"],
				Interface: d.Keywords["interface"],
				Sender:    d.Keywords["sender"],
				Path:      d.Keywords["path"],
				Body:      d.Body,
			}
			if err := store.Record(ctx, sig); err != nil {
				logger.Warn("cannot record signal", "err", err)
			}
		}
	}
}
