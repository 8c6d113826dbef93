package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"storedash/internal/media"
)

const mediaPageSize = 24

func runMedia(ctx context.Context, a *app, args []string, out io.Writer) error {
	if len(args) == 0 {
		return usageErr("media")
	}
	sub, args := args[0], args[1:]

	switch sub {
	case "stores":
		fs := flag.NewFlagSet("media stores", flag.ContinueOnError)
		var p media.StoresParams
		fs.StringVar(&p.Query, "q", "", "Store name filter")
		fs.StringVar(&p.Sort, "sort", media.DefaultSort, "Sort order")
		fs.IntVar(&p.Page, "page", 1, "Page number")
		fs.IntVar(&p.Limit, "limit", mediaPageSize, "Stores per page")
		if err := fs.Parse(args); err != nil {
			return err
		}
		page, err := a.media.Stores(ctx, p)
		if err != nil {
			return err
		}
		renderStores(out, page, p.Limit)

	case "overview":
		fs := flag.NewFlagSet("media overview", flag.ContinueOnError)
		top := fs.Int("top", media.DefaultTop, "Top stores")
		latest := fs.Int("latest", media.DefaultLatest, "Latest assets")
		if err := fs.Parse(args); err != nil {
			return err
		}
		ov, err := a.media.Overview(ctx, *top, *latest)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%d stores, %d assets, last upload %s\n", ov.Stats.TotalStores, ov.Stats.TotalAssets, orDash(ov.Stats.LastAt))
		if ov.LastUploader != nil {
			fmt.Fprintf(out, "Last uploader: %s (%s)\n", orDash(ov.LastUploader.Info.Name), ov.LastUploader.StoreID)
		}
		renderAssets(out, &media.AssetsPage{Total: len(ov.LatestAssets), Items: ov.LatestAssets}, *latest)

	case "assets", "mine":
		fs := flag.NewFlagSet("media "+sub, flag.ContinueOnError)
		var p media.AssetsParams
		fs.StringVar(&p.ResourceType, "type", media.ResourceTypeAll, "image, video, raw or all")
		fs.StringVar(&p.Query, "q", "", "File name filter")
		fs.IntVar(&p.Page, "page", 1, "Page number")
		fs.IntVar(&p.Limit, "limit", mediaPageSize, "Assets per page")
		if err := fs.Parse(args); err != nil {
			return err
		}
		var (
			page *media.AssetsPage
			err  error
		)
		if sub == "mine" {
			page, err = a.media.MerchantAssets(ctx, p)
		} else {
			if fs.NArg() != 1 {
				return errors.New("usage: media assets [-type T] [-q Q] [-page N] [-limit N] <storeID>")
			}
			page, err = a.media.StoreAssets(ctx, fs.Arg(0), p)
		}
		if err != nil {
			return err
		}
		renderAssets(out, page, p.Limit)

	case "blob":
		fs := flag.NewFlagSet("media blob", flag.ContinueOnError)
		dest := fs.String("o", "", "Write to file instead of stdout")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if fs.NArg() != 1 {
			return errors.New("usage: media blob [-o file] <assetID>")
		}
		blob, err := a.media.AssetBlob(ctx, fs.Arg(0))
		if err != nil {
			return err
		}
		if *dest == "" {
			_, err = out.Write(blob.Data)
			return err
		}
		if err := os.WriteFile(*dest, blob.Data, 0o644); err != nil {
			return err
		}
		fmt.Fprintf(out, "Wrote %d bytes (%s) to %s\n", len(blob.Data), orDash(blob.ContentType), *dest)

	case "delete":
		if len(args) != 1 {
			return errors.New("usage: media delete <assetID>")
		}
		if err := a.media.DeleteAsset(ctx, args[0]); err != nil {
			return err
		}
		fmt.Fprintln(out, "Deleted", args[0])

	case "sync":
		fs := flag.NewFlagSet("media sync", flag.ContinueOnError)
		rt := fs.String("type", media.ResourceTypeAll, "image, video, raw or all")
		maxResults := fs.Int("max", media.DefaultSyncLimit, "Maximum assets to pull")
		if err := fs.Parse(args); err != nil {
			return err
		}
		res, err := a.media.Sync(ctx, *rt, *maxResults)
		if err != nil {
			return err
		}
		if len(res.Errors) == 0 {
			fmt.Fprintln(out, "Sync complete.")
			return nil
		}
		fmt.Fprintf(out, "Sync finished with %d errors:\n", len(res.Errors))
		for _, e := range res.Errors {
			fmt.Fprintln(out, "  "+e)
		}

	default:
		return fmt.Errorf("unknown media command %q", sub)
	}
	return nil
}
