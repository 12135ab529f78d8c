package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"buswatch/internal/bus"
	"buswatch/internal/config"
	"buswatch/internal/domain"
	"buswatch/internal/match"

	"github.com/spf13/cobra"
)

var (
	version    = "0.1.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
	busFlag    string // overridable via --bus flag
)

func main() {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := &cobra.Command{
		Use:   "buswatch",
		Short: "buswatch: watch, resolve and record D-Bus signals",
		Long:  "buswatch subscribes to D-Bus signals with multi-field match rules and prints or records the matching traffic.",
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.json (default: ~/.buswatch/config.json)")
	root.PersistentFlags().StringVar(&busFlag, "bus", "", "bus to attach to: session, system or starter (default from config)")

	root.AddCommand(initCmd())
	root.AddCommand(watchCmd())
	root.AddCommand(ownerCmd())
	root.AddCommand(activateCmd())
	root.AddCommand(ruleCmd())
	root.AddCommand(historyCmd())
	root.AddCommand(versionCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the configured (or default) config file, falling back to
// defaults when it is missing, and re-levels the logger.
func loadConfig() *config.Config {
	path := configPath
	if path == "" {
		path = config.DefaultConfigPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		if configPath != "" {
			logger.Warn("cannot load config, using defaults", "path", path, "err", err)
		}
		cfg = config.Defaults()
	}
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel()}))
	return cfg
}

func busType(cfg *config.Config) (domain.BusType, error) {
	name := busFlag
	if name == "" {
		name = cfg.General.Bus
	}
	return domain.ParseBusType(name)
}

// filterFlags collects the match-filter flags shared by watch and rule.
type filterFlags struct {
	member string
	iface  string
	sender string
	path   string
	args   []string
}

func (ff *filterFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&ff.member, "member", "", "signal name to match")
	cmd.Flags().StringVar(&ff.iface, "interface", "", "interface name to match")
	cmd.Flags().StringVar(&ff.sender, "sender", "", "sender bus name to match (well-known names are resolved)")
	cmd.Flags().StringVar(&ff.path, "path", "", "object path to match")
	cmd.Flags().StringArrayVar(&ff.args, "arg", nil, "positional argument constraint, N=VALUE (repeatable)")
}

// filter validates the flag values into the engine's typed filter shape.
func (ff *filterFlags) filter() (match.Filter, error) {
	f := match.Filter{
		Member:    ff.member,
		Interface: ff.iface,
		Sender:    ff.sender,
		Path:      ff.path,
	}
	for _, spec := range ff.args {
		k, v, ok := strings.Cut(spec, "=")
		if !ok {
			return f, fmt.Errorf("malformed --arg %q (want N=VALUE)", spec)
		}
		idx, err := strconv.Atoi(k)
		if err != nil || idx < 0 {
			return f, fmt.Errorf("malformed --arg index %q (want a non-negative integer)", k)
		}
		if f.Args == nil {
			f.Args = make(map[int]string)
		}
		f.Args[idx] = v
	}
	return f, nil
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write the default config and create the profile directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := configPath
			if cfgPath == "" {
				cfgPath = config.DefaultConfigPath()
			}
			cfg := config.Defaults()
			if err := config.Save(cfgPath, cfg); err != nil {
				return err
			}
			profileDir := filepath.Join(config.DefaultConfigDir(), "profiles")
			if err := os.MkdirAll(profileDir, 0o755); err != nil {
				return err
			}
			logger.Info("initialized", "config", cfgPath, "profiles", profileDir)
			return nil
		},
	}
}

func ownerCmd() *cobra.Command {
	var uid bool
	cmd := &cobra.Command{
		Use:   "owner NAME",
		Short: "Resolve a well-known bus name to its current unique owner",
		Args:  cobra.ExactArgs(1),
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

			owner, err := conn.NameOwner(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Println(owner)

			if uid {
				u, err := conn.UnixUser(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Printf("uid=%d\n", u)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&uid, "uid", false, "also print the unix uid owning the name")
	return cmd
}

func activateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "activate NAME",
		Short: "Ask the daemon to start the service implementing a bus name",
		Args:  cobra.ExactArgs(1),
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

			reply, err := conn.StartServiceByName(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			switch reply {
			case bus.StartReplyAlreadyRunning:
				fmt.Println("already running")
			default:
				fmt.Println("started")
			}
			return nil
		},
	}
}

func ruleCmd() *cobra.Command {
	var ff filterFlags
	cmd := &cobra.Command{
		Use:   "rule",
		Short: "Print the serialized daemon match rule for a filter",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := ff.filter()
			if err != nil {
				return err
			}
			r, err := match.NewRule(f)
			if err != nil {
				return err
			}
			fmt.Println(r.String())
			return nil
		},
	}
	ff.register(cmd)
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the buswatch version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("buswatch " + version)
		},
	}
}
