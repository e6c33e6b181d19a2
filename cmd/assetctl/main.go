// Command assetctl lists and snapshots assets against the locally configured cache.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"go.uber.org/zap"

	"github.com/Checker-Finance/assetcache/internal/app"
	"github.com/Checker-Finance/assetcache/internal/view"
	"github.com/Checker-Finance/assetcache/pkg/config"
	"github.com/Checker-Finance/assetcache/pkg/logger"
)

const usage = `usage: assetctl [flags] <command>

commands:
  list             list assets (network first, cached snapshot on failure)
  show <id>        show one asset
  save             fetch live assets and save them as the offline snapshot
  last-update      print when the snapshot was last saved
  clear            drop the snapshot

flags:
`

var errUsage = errors.New("usage")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("assetctl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var refresh, verbose bool
	fs.BoolVar(&refresh, "refresh", false, "bypass the cached snapshot for list")
	fs.BoolVar(&verbose, "v", false, "log to stdout")
	fs.Usage = func() {
		fmt.Fprint(stderr, usage)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}

	cfg := config.Load()
	log := zap.NewNop()
	if verbose {
		l, err := logger.New(cfg.ServiceName, cfg.Env, cfg.LogLevel)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		log = l
		defer func() { _ = log.Sync() }()
	}

	a, err := app.Bootstrap(ctx, cfg, log, app.Options{SkipEvents: true})
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer func() {
		if err := a.Close(); err != nil {
			fmt.Fprintf(stderr, "Error: close store: %v\n", err)
		}
	}()

	err = dispatch(ctx, a, fs.Args(), refresh, stdout)
	if errors.Is(err, errUsage) {
		fs.Usage()
		return 2
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func dispatch(ctx context.Context, a *app.App, args []string, refresh bool, out io.Writer) error {
	switch args[0] {
	case "list":
		l := view.NewAssetList(ctx, a.Coordinator)
		st := l.Load(ctx, refresh)
		if st.Error != "" {
			return errors.New(st.Error)
		}
		printList(out, st)
		return nil

	case "show":
		if len(args) < 2 {
			return errUsage
		}
		st := view.NewAssetDetail(a.Coordinator).Load(ctx, args[1])
		if st.Error != "" {
			return errors.New(st.Error)
		}
		printDetail(out, st)
		return nil

	case "save":
		l := view.NewAssetList(ctx, a.Coordinator)
		if st := l.Load(ctx, true); st.Error != "" {
			return errors.New(st.Error)
		}
		st := l.SaveOffline(ctx)
		if st.Error != "" {
			return errors.New(st.Error)
		}
		fmt.Fprintf(out, "saved %d assets at %s\n", len(st.Assets), st.Banner())
		return nil

	case "last-update":
		ts, ok := a.Coordinator.LastUpdateTimestamp(ctx)
		if !ok {
			fmt.Fprintln(out, "never")
			return nil
		}
		fmt.Fprintln(out, view.FormatTimestamp(ts, ok))
		return nil

	case "clear":
		if err := a.Coordinator.InvalidateCache(ctx); err != nil {
			return err
		}
		fmt.Fprintln(out, "snapshot cleared")
		return nil

	default:
		return errUsage
	}
}

func printList(out io.Writer, st view.ListState) {
	if st.FromCache {
		fmt.Fprintf(out, "offline: showing data from %s\n", st.Banner())
	}
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tSYMBOL\tNAME\tPRICE\t24H")
	for _, asset := range st.Assets {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			asset.Rank, asset.Symbol, asset.Name,
			view.FormatPrice(asset.Price(), 2), view.FormatChange(asset.ChangePercent()))
	}
	_ = tw.Flush()
}

func printDetail(out io.Writer, st view.DetailState) {
	a := st.Asset
	if st.FromCache {
		fmt.Fprintf(out, "offline: showing data from %s\n", st.Banner())
	}
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Name\t%s (%s)\n", a.Name, a.Symbol)
	fmt.Fprintf(tw, "Rank\t%s\n", a.Rank)
	fmt.Fprintf(tw, "Price\t%s\n", view.FormatPrice(a.Price(), 4))
	fmt.Fprintf(tw, "24h\t%s\n", view.FormatChange(a.ChangePercent()))
	fmt.Fprintf(tw, "Market cap\t$%s\n", view.FormatLargeNumber(a.MarketCap()))
	fmt.Fprintf(tw, "Supply\t%s\n", view.FormatLargeNumber(a.SupplyValue()))
	fmt.Fprintf(tw, "Max supply\t%s\n", view.FormatMaxSupply(*a))
	fmt.Fprintf(tw, "Volume 24h\t$%s\n", view.FormatLargeNumber(a.Volume24h()))
	if a.Explorer != nil {
		fmt.Fprintf(tw, "Explorer\t%s\n", *a.Explorer)
	}
	_ = tw.Flush()
}
