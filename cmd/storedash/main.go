package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"storedash/internal/api"
	"storedash/internal/config"
)

type runFunc func(ctx context.Context, a *app, args []string, out io.Writer) error

var commands = map[string]runFunc{
	"products": runProducts,
	"variants": runVariants,
	"resolve":  runResolve,
	"variant":  runVariant,
	"explore":  runExplore,
	"media":    runMedia,
	"login":    runLogin,
	"logout":   runLogout,
	"logs":     runLogs,
}

var commandOrder = []string{"products", "variants", "resolve", "variant", "explore", "media", "login", "logout", "logs"}

var usages = map[string]string{
	"products": "products [-page N] [-per-page N] [-status S] [-category ID] [-search Q] [-prefetch]",
	"variants": "variants [-all] [-min P] [-max P] <productID>",
	"resolve":  "resolve <productID>",
	"variant":  "variant <variantID>",
	"explore":  "explore",
	"media":    "media stores|overview|assets|blob|delete|mine|sync ...",
	"login":    "login [token]",
	"logout":   "logout",
	"logs":     "logs [-hours N] [-level L]",
}

func usageErr(name string) error {
	return errors.New("usage: storedash " + usages[name])
}

func main() {
	var verbose bool
	flag.BoolVar(&verbose, "v", false, "Verbose logging")
	flag.Usage = func() { showHelp(os.Stderr) }
	flag.Parse()

	if flag.NArg() == 0 {
		showHelp(os.Stderr)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	os.Exit(run(ctx, flag.Arg(0), flag.Args()[1:], os.Stdout, level))
}

func run(ctx context.Context, name string, args []string, out io.Writer, level slog.Level) int {
	switch name {
	case "help", "-h", "--help":
		showHelp(out)
		return 0
	case "schema":
		if err := printSchema(out); err != nil {
			return exitErr(err)
		}
		return 0
	}

	runCmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", name)
		showHelp(os.Stderr)
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		return exitErr(err)
	}
	a, err := newApp(ctx, cfg, level)
	if err != nil {
		return exitErr(err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := a.Close(shutdownCtx); err != nil {
			slog.Warn("shutdown", "error", err)
		}
	}()

	if err := runCmd(ctx, a, args, out); err != nil {
		return exitErr(err)
	}
	return 0
}

// exitErr prints the user-facing message and returns the exit code.
func exitErr(err error) int {
	var apiErr *api.Error
	if errors.As(err, &apiErr) {
		if apiErr.Kind == api.KindAborted {
			return 130
		}
		fmt.Fprintln(os.Stderr, "Error:", api.UserMessage(err))
		slog.Debug("request failed", "error", err)
		return 1
	}
	fmt.Fprintln(os.Stderr, "Error:", err)
	return 1
}

func showHelp(w io.Writer) {
	fmt.Fprintln(w, "storedash - store catalog and media dashboard")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  storedash [-v] <command> [options]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	for _, name := range commandOrder {
		fmt.Fprintf(w, "  %s\n", usages[name])
	}
	fmt.Fprintln(w, "  schema")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Configuration is read from .env and STOREDASH_* environment variables.")
}
