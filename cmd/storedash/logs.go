package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"storedash/internal/logsink"
)

func runLogs(ctx context.Context, a *app, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("logs", flag.ContinueOnError)
	hours := fs.Int("hours", 24, "How far back to read")
	level := fs.String("level", "", "Only show this level (DEBUG, INFO, WARN, ERROR)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if !a.cfg.Logs.Enabled() {
		return errors.New("log sink is not configured (set STOREDASH_LOG_ACCOUNT_NAME)")
	}

	r, err := logsink.NewReader(a.cfg.Logs)
	if err != nil {
		return err
	}
	entries, err := r.Entries(ctx, time.Now().Add(-time.Duration(max(*hours, 1))*time.Hour))
	if err != nil {
		return err
	}
	for _, e := range entries {
		if *level != "" && !strings.EqualFold(e.Level, *level) {
			continue
		}
		fmt.Fprintf(out, "%s %-5s %s", e.Time.Format(time.RFC3339), e.Level, e.Msg)
		for k, v := range e.Attrs {
			fmt.Fprintf(out, " %s=%v", k, v)
		}
		fmt.Fprintln(out)
	}
	return nil
}
