package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"strconv"

	"github.com/BearBump/ParcelHub/config"
	"github.com/BearBump/ParcelHub/internal/app"
	"github.com/BearBump/ParcelHub/internal/services/packages"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var Version = "dev"

// builder assembles runtime deps from the config path.
type builder func(ctx context.Context, cfgPath string) (*app.Deps, error)

func defaultBuilder(ctx context.Context, cfgPath string) (*app.Deps, error) {
	if cfgPath == "" {
		return nil, errors.New("config path is required (--config or $configPath)")
	}
	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		return nil, err
	}
	return app.Build(ctx, cfg, app.DefaultFactories(), slog.New(slog.NewTextHandler(os.Stderr, nil)))
}

func newRootCmd(build builder, out io.Writer) *cobra.Command {
	var cfgPath string

	root := &cobra.Command{
		Use:           "parcelctl",
		Short:         "Operator tooling for package tracking sync",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", os.Getenv("configPath"), "Path to the YAML config")

	// withDeps runs fn against freshly built deps and prints its result as JSON.
	withDeps := func(fn func(cmd *cobra.Command, d *app.Deps, args []string) (any, error)) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			d, err := build(cmd.Context(), cfgPath)
			if err != nil {
				return err
			}
			defer d.Close()

			res, err := fn(cmd, d, args)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		}
	}

	root.AddCommand(
		syncAllCmd(withDeps),
		syncCmd(withDeps),
		registerCmd(withDeps),
		detectCarrierCmd(withDeps),
		untrackCmd(withDeps),
		setStatusCmd(withDeps),
	)
	return root
}

type runner func(fn func(cmd *cobra.Command, d *app.Deps, args []string) (any, error)) func(*cobra.Command, []string) error

func packageID(arg string) (uint64, error) {
	id, err := strconv.ParseUint(arg, 10, 64)
	if err != nil || id == 0 {
		return 0, errors.Errorf("bad package id %q", arg)
	}
	return id, nil
}

func syncAllCmd(run runner) *cobra.Command {
	return &cobra.Command{
		Use:   "sync-all",
		Short: "Pull tracking for every active package",
		Args:  cobra.NoArgs,
		RunE: run(func(cmd *cobra.Command, d *app.Deps, _ []string) (any, error) {
			return d.Synchronizer.SyncAllActivePackages(cmd.Context())
		}),
	}
}

func syncCmd(run runner) *cobra.Command {
	var events int
	cmd := &cobra.Command{
		Use:   "sync [package-id]",
		Short: "Pull tracking for one package and print its latest events",
		Args:  cobra.ExactArgs(1),
		RunE: run(func(cmd *cobra.Command, d *app.Deps, args []string) (any, error) {
			id, err := packageID(args[0])
			if err != nil {
				return nil, err
			}
			res, err := d.Synchronizer.SyncTrackingEvents(cmd.Context(), id)
			if err != nil {
				return nil, err
			}
			svc := packages.New(d.Store, d.Sink, d.Logger)
			evs, err := svc.ListTrackingEvents(cmd.Context(), id, events, 0)
			if err != nil {
				return nil, err
			}
			return map[string]any{"result": res, "events": evs}, nil
		}),
	}
	cmd.Flags().IntVarP(&events, "events", "n", 10, "How many recent events to print")
	return cmd
}

func registerCmd(run runner) *cobra.Command {
	return &cobra.Command{
		Use:   "register [package-id]",
		Short: "Subscribe the package's tracking number at the gateway",
		Args:  cobra.ExactArgs(1),
		RunE: run(func(cmd *cobra.Command, d *app.Deps, args []string) (any, error) {
			id, err := packageID(args[0])
			if err != nil {
				return nil, err
			}
			return d.Synchronizer.RegisterPackageTracking(cmd.Context(), id)
		}),
	}
}

func detectCarrierCmd(run runner) *cobra.Command {
	return &cobra.Command{
		Use:   "detect-carrier [package-id]",
		Short: "Detect and store the carrier when the package has none",
		Args:  cobra.ExactArgs(1),
		RunE: run(func(cmd *cobra.Command, d *app.Deps, args []string) (any, error) {
			id, err := packageID(args[0])
			if err != nil {
				return nil, err
			}
			code, err := d.Synchronizer.DetectAndSetCarrier(cmd.Context(), id)
			if err != nil {
				return nil, err
			}
			return map[string]string{"carrierCode": code}, nil
		}),
	}
}

func untrackCmd(run runner) *cobra.Command {
	return &cobra.Command{
		Use:   "untrack [package-id]",
		Short: "Stop gateway tracking for the package",
		Args:  cobra.ExactArgs(1),
		RunE: run(func(cmd *cobra.Command, d *app.Deps, args []string) (any, error) {
			id, err := packageID(args[0])
			if err != nil {
				return nil, err
			}
			if err := d.Synchronizer.UnregisterPackageTracking(cmd.Context(), id); err != nil {
				return nil, err
			}
			return map[string]bool{"untracked": true}, nil
		}),
	}
}

func setStatusCmd(run runner) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "set-status [package-id] [status]",
		Short: "Admin override of a package status",
		Args:  cobra.ExactArgs(2),
		RunE: run(func(cmd *cobra.Command, d *app.Deps, args []string) (any, error) {
			id, err := packageID(args[0])
			if err != nil {
				return nil, err
			}
			tr, err := packages.New(d.Store, d.Sink, d.Logger).ChangeStatus(cmd.Context(), id, args[1], reason)
			if err != nil {
				return nil, err
			}
			if tr == nil {
				return map[string]bool{"changed": false}, nil
			}
			return map[string]any{"changed": true, "from": tr.From, "to": tr.To}, nil
		}),
	}
	cmd.Flags().StringVar(&reason, "reason", "", "Free-form reason kept in the audit record")
	return cmd
}
