package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/cargodesk/cargodesk/cmd/cargodeskctl/cli"
	"github.com/cargodesk/cargodesk/internal/app"
	"github.com/cargodesk/cargodesk/internal/platform/db"
	"github.com/cargodesk/cargodesk/internal/rbac"
	"github.com/cargodesk/cargodesk/internal/support"
)

const usage = `cargodeskctl: operator tooling for CargoDesk.

Usage:
  cargodeskctl permissions --user ID [--json]
  cargodeskctl sla-check [--json]
  cargodeskctl queue [--retry]
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		_, _ = fmt.Fprint(stderr, usage)
		return 2
	}
	cfg, err := app.LoadConfig()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "cargodeskctl: %v\n", err)
		return 1
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "permissions":
		return runPermissions(ctx, cfg, rest, stdout, stderr)
	case "sla-check":
		return runSLACheck(ctx, cfg, rest, stdout, stderr)
	case "queue":
		return runQueue(ctx, cfg, rest, stdout, stderr)
	default:
		_, _ = fmt.Fprintf(stderr, "cargodeskctl: unknown command %q\n\n%s", cmd, usage)
		return 2
	}
}

func parseFlags(flagSet *pflag.FlagSet, args []string, stderr io.Writer) (bool, int) {
	flagSet.SetOutput(stderr)
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return false, 0
		}
		return false, 2
	}
	if extra := flagSet.Args(); len(extra) > 0 {
		_, _ = fmt.Fprintf(stderr, "%s: unexpected argument %s\n", flagSet.Name(), extra[0])
		return false, 2
	}
	return true, 0
}

func runPermissions(ctx context.Context, cfg *app.Config, args []string, stdout, stderr io.Writer) int {
	var opts cli.PermissionsOptions
	flagSet := pflag.NewFlagSet("permissions", pflag.ContinueOnError)
	flagSet.Int64VarP(&opts.UserID, "user", "u", 0, "user ID to resolve")
	flagSet.BoolVar(&opts.JSONOutput, "json", false, "print JSON")
	if ok, code := parseFlags(flagSet, args, stderr); !ok {
		return code
	}

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PoolOptions())
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "permissions: %v\n", err)
		return 1
	}
	defer pool.Close()

	resolver := rbac.NewResolver(rbac.NewRepository(pool), cfg.PermissionCacheTTL())
	command, err := cli.NewPermissionsCLI(resolver)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "permissions: %v\n", err)
		return 1
	}
	opts.Stdout, opts.Stderr = stdout, stderr
	return command.Command(ctx, opts)
}

func runSLACheck(ctx context.Context, cfg *app.Config, args []string, stdout, stderr io.Writer) int {
	var opts cli.SLACheckOptions
	flagSet := pflag.NewFlagSet("sla-check", pflag.ContinueOnError)
	flagSet.BoolVar(&opts.JSONOutput, "json", false, "print JSON")
	if ok, code := parseFlags(flagSet, args, stderr); !ok {
		return code
	}

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PoolOptions())
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "sla-check: %v\n", err)
		return 1
	}
	defer pool.Close()

	command, err := cli.NewComplianceCLI(support.NewRepository(pool), cfg.Thresholds(), cfg.Routes())
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "sla-check: %v\n", err)
		return 1
	}
	opts.Stdout, opts.Stderr = stdout, stderr
	return command.CheckCommand(ctx, opts)
}

func runQueue(ctx context.Context, cfg *app.Config, args []string, stdout, stderr io.Writer) int {
	var opts cli.QueueOptions
	flagSet := pflag.NewFlagSet("queue", pflag.ContinueOnError)
	flagSet.BoolVar(&opts.ShowRetry, "retry", false, "list deliveries waiting for retry")
	if ok, code := parseFlags(flagSet, args, stderr); !ok {
		return code
	}

	command, err := cli.NewQueueCLI(cfg.AsynqRedis(), cfg.NotifyQueue)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "queue: %v\n", err)
		return 1
	}
	defer func() {
		if err := command.Close(); err != nil {
			slog.Default().Warn("queue inspector close", slog.Any("error", err))
		}
	}()
	opts.Stdout, opts.Stderr = stdout, stderr
	return command.Command(ctx, opts)
}
