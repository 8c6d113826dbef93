package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"storedash/internal/query"
)

const settleTimeout = 30 * time.Second

var errQuit = errors.New("quit")

func runExplore(ctx context.Context, a *app, _ []string, out io.Writer) error {
	c := query.NewController(a.catalog, a.details, query.Options{
		PerPage:  a.cfg.Query.PerPage,
		Debounce: a.cfg.Query.Debounce,
		Logger:   a.logger,
	})
	defer c.Close()

	c.Start()
	if err := settleAndRender(ctx, c, out); err != nil {
		return err
	}
	fmt.Fprintln(out, `Commands: search <q>, status <s>, category <id>, page <n>, perpage <n>, price <min> <max>, expand <id>, collapse <id>, all <id>, refresh, quit`)

	sc := bufio.NewScanner(os.Stdin)
	for {
		fmt.Fprint(out, "> ")
		if !sc.Scan() {
			return sc.Err()
		}
		err := apply(c, sc.Text())
		if errors.Is(err, errQuit) {
			return nil
		}
		if err != nil {
			fmt.Fprintln(out, err)
			continue
		}
		if err := settleAndRender(ctx, c, out); err != nil {
			return err
		}
	}
}

func settleAndRender(ctx context.Context, c *query.Controller, out io.Writer) error {
	ctx, cancel := context.WithTimeout(ctx, settleTimeout)
	defer cancel()
	v, err := c.WaitSettled(ctx)
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	renderView(out, v)
	return nil
}

// apply runs one explore command line against c.
func apply(c *query.Controller, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	verb, rest := strings.ToLower(fields[0]), fields[1:]
	arg := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), fields[0]))

	switch verb {
	case "quit", "exit", "q":
		return errQuit
	case "refresh":
		c.Refresh()
	case "search":
		c.SetSearch(arg)
	case "status":
		c.SetStatus(arg)
	case "category":
		c.SetCategory(arg)
	case "page":
		n, err := intArg(rest)
		if err != nil {
			return err
		}
		c.SetPage(n)
	case "perpage":
		n, err := intArg(rest)
		if err != nil {
			return err
		}
		return c.SetPerPage(n)
	case "price":
		if len(rest) > 2 {
			return errors.New("usage: price <min|-> <max|->")
		}
		var bounds [2]string
		copy(bounds[:], rest)
		for i, b := range bounds {
			if b == "-" {
				bounds[i] = ""
			}
		}
		minPrice, err := parsePrice(bounds[0])
		if err != nil {
			return err
		}
		maxPrice, err := parsePrice(bounds[1])
		if err != nil {
			return err
		}
		c.SetPriceRange(minPrice, maxPrice)
	case "expand", "collapse", "all", "toggle":
		if arg == "" {
			return fmt.Errorf("usage: %s <productID>", verb)
		}
		switch verb {
		case "expand":
			c.Expand(arg)
		case "collapse":
			c.Collapse(arg)
		case "toggle":
			c.Toggle(arg)
		default:
			c.ShowAll(arg)
		}
	default:
		return fmt.Errorf("unknown command %q", verb)
	}
	return nil
}

func intArg(rest []string) (int, error) {
	if len(rest) != 1 {
		return 0, errors.New("expected one number")
	}
	n, err := strconv.Atoi(rest[0])
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", rest[0])
	}
	return n, nil
}
