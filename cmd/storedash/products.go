package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"storedash/internal/catalog"
	"storedash/internal/normalize"
	"storedash/internal/query"

	"github.com/invopop/jsonschema"
	"golang.org/x/sync/errgroup"
)

const prefetchLimit = 4

func runProducts(ctx context.Context, a *app, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("products", flag.ContinueOnError)
	var params catalog.ListParams
	var prefetch bool
	fs.IntVar(&params.Page, "page", 1, "Page number")
	fs.IntVar(&params.PerPage, "per-page", a.cfg.Query.PerPage, "Products per page (20, 50, 100, 200)")
	fs.StringVar(&params.Status, "status", catalog.StatusAll, "Product status filter")
	fs.StringVar(&params.Category, "category", "", "Category id")
	fs.StringVar(&params.Search, "search", "", "Search keyword")
	fs.BoolVar(&prefetch, "prefetch", false, "Load details for every listed product")
	if err := fs.Parse(args); err != nil {
		return err
	}

	listing, err := a.catalog.ListProducts(ctx, params)
	if err != nil {
		return err
	}

	counts := map[string]int{}
	if prefetch {
		if counts, err = prefetchVariantCounts(ctx, a.details, listing.Items); err != nil {
			return err
		}
	}

	totalPages := normalize.TotalPages(listing.Pagination, params.PerPage)
	fmt.Fprintf(out, "Page %d of %d\n", max(params.Page, 1), totalPages)
	renderProducts(out, listing.Items, counts)
	return nil
}

// prefetchVariantCounts loads details for each listed product through the
// shared loader and counts their variants.
func prefetchVariantCounts(ctx context.Context, loader normalize.ProductLoader, items []json.RawMessage) (map[string]int, error) {
	var mu sync.Mutex
	counts := make(map[string]int, len(items))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(prefetchLimit)
	for _, item := range items {
		id := normalize.ExtractID(item)
		if id == nil {
			continue
		}
		g.Go(func() error {
			raw, err := loader.ProductDetails(gctx, *id)
			if err != nil {
				slog.WarnContext(gctx, "failed to prefetch product", "product_id", *id, "error", err)
				return nil
			}
			n := len(normalize.ExtractVariants(raw, normalize.Options{}))
			mu.Lock()
			counts[*id] = n
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return counts, ctx.Err()
}

func parsePrice(s string) (*float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	var f float64
	if _, err := fmt.Sscanf(s, "%g", &f); err != nil || f < 0 {
		return nil, fmt.Errorf("invalid price %q", s)
	}
	return &f, nil
}

func runVariants(ctx context.Context, a *app, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("variants", flag.ContinueOnError)
	all := fs.Bool("all", false, "Show every variant")
	minArg := fs.String("min", "", "Minimum price")
	maxArg := fs.String("max", "", "Maximum price")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return usageErr("variants")
	}
	minPrice, err := parsePrice(*minArg)
	if err != nil {
		return err
	}
	maxPrice, err := parsePrice(*maxArg)
	if err != nil {
		return err
	}

	raw, err := a.details.ProductDetails(ctx, fs.Arg(0))
	if err != nil {
		return err
	}
	variants := normalize.FilterByPrice(
		normalize.ExtractVariants(raw, normalize.Options{IncludeDefault: true}),
		minPrice, maxPrice,
	)
	shown := variants
	if !*all && len(shown) > query.DefaultVisibleVariants {
		shown = shown[:query.DefaultVisibleVariants]
	}
	renderVariants(out, shown)
	if len(shown) < len(variants) {
		fmt.Fprintf(out, "... %d more (use -all)\n", len(variants)-len(shown))
	}
	return nil
}

func runResolve(ctx context.Context, a *app, args []string, out io.Writer) error {
	if len(args) != 1 || strings.TrimSpace(args[0]) == "" {
		return usageErr("resolve")
	}
	id := strings.TrimSpace(args[0])
	ref := normalize.Variant{
		ProductID:       &id,
		VariantID:       "product:" + id,
		RefType:         normalize.RefProduct,
		IsActive:        true,
		NeedsResolution: true,
	}
	return writeJSON(out, normalize.ResolveVariant(ctx, ref, a.details))
}

func runVariant(ctx context.Context, a *app, args []string, out io.Writer) error {
	if len(args) != 1 {
		return usageErr("variant")
	}
	v, err := a.catalog.VariantDetails(ctx, args[0])
	if err != nil {
		return err
	}
	return writeJSON(out, v)
}

func runLogin(ctx context.Context, a *app, args []string, out io.Writer) error {
	var token string
	switch len(args) {
	case 0:
		fmt.Fprint(out, "Token: ")
		sc := bufio.NewScanner(os.Stdin)
		if sc.Scan() {
			token = sc.Text()
		}
		if err := sc.Err(); err != nil {
			return err
		}
	case 1:
		token = args[0]
	default:
		return usageErr("login")
	}
	if err := a.session.Login(ctx, a.catalog, token); err != nil {
		return err
	}
	fmt.Fprintln(out, "Signed in.")
	return nil
}

func runLogout(_ context.Context, a *app, _ []string, out io.Writer) error {
	if err := a.session.Clear(); err != nil {
		return err
	}
	fmt.Fprintln(out, "Signed out.")
	return nil
}

func printSchema(out io.Writer) error {
	r := &jsonschema.Reflector{}
	return writeJSON(out, r.Reflect(&normalize.Variant{}))
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
