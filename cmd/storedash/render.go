package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"storedash/internal/media"
	"storedash/internal/normalize"
	"storedash/internal/query"
)

const placeholder = "—"

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return placeholder
	}
	return s
}

func ptrOrDash(s *string) string {
	if s == nil {
		return placeholder
	}
	return orDash(*s)
}

func stockString(stock *int) string {
	if stock == nil {
		return placeholder
	}
	return fmt.Sprint(*stock)
}

func renderProducts(out io.Writer, items []json.RawMessage, counts map[string]int) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tPRICE\tVARIANTS")
	for _, item := range items {
		id := ptrOrDash(normalize.ExtractID(item))
		name, price := placeholder, placeholder
		if variants := normalize.ExtractVariants(item, normalize.Options{IncludeDefault: true}); len(variants) > 0 {
			name = orDash(variants[0].ProductName)
			price = normalize.FormatMoney(variants[0].Price)
		}
		n := placeholder
		if c, ok := counts[id]; ok {
			n = fmt.Sprint(c)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", id, name, price, n)
	}
	_ = tw.Flush()
}

func renderVariants(out io.Writer, variants []normalize.Variant) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "VARIANT\tNAME\tSKU\tCOLOR\tSIZE\tPRICE\tSTOCK\tACTIVE")
	for _, v := range variants {
		id := v.VariantID
		if v.NeedsResolution {
			id += " (unresolved)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%t\n",
			id, orDash(v.Name), ptrOrDash(v.SKU), ptrOrDash(v.Color), ptrOrDash(v.Size),
			normalize.FormatMoney(v.Price), stockString(v.Stock), v.IsActive)
	}
	_ = tw.Flush()
}

func renderView(out io.Writer, v query.View) {
	fmt.Fprintf(out, "[%s] page %d/%d, %d per page, status=%s", v.Phase, v.Page, v.TotalPages, v.PerPage, v.Status)
	if v.Category != "" {
		fmt.Fprintf(out, " category=%s", v.Category)
	}
	if v.Search != "" {
		fmt.Fprintf(out, " search=%q", v.Search)
	}
	if v.MinPrice != nil || v.MaxPrice != nil {
		fmt.Fprintf(out, " price=%s..%s", normalize.FormatMoney(v.MinPrice), normalize.FormatMoney(v.MaxPrice))
	}
	fmt.Fprintln(out)

	if v.Phase == query.PhaseError {
		fmt.Fprintln(out, "Error:", v.Error)
		return
	}
	for _, p := range v.Products {
		marker := "+"
		if p.Expanded {
			marker = "-"
		}
		fmt.Fprintf(out, "%s %s  %s\n", marker, orDash(p.ID), orDash(p.Name))
		if !p.Expanded {
			continue
		}
		switch {
		case p.DetailsLoading:
			fmt.Fprintln(out, "    loading variants...")
		case p.DetailsError != "":
			fmt.Fprintln(out, "    "+p.DetailsError)
		}
		for _, variant := range p.Variants {
			fmt.Fprintf(out, "    %s  %s  %s  stock %s\n", variant.VariantID, orDash(variant.Name),
				normalize.FormatMoney(variant.Price), stockString(variant.Stock))
		}
		if p.HasMore {
			fmt.Fprintf(out, "    ... %d more (all %s)\n", p.TotalVariants-len(p.Variants), p.ID)
		}
	}
}

func renderStores(out io.Writer, page *media.StoresPage, limit int) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STORE\tNAME\tTOTAL\tIMAGES\tVIDEOS\tRAW\tLAST UPLOAD")
	for _, s := range page.Stores {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\t%s\n", s.StoreID, orDash(s.Info.Name), s.Total, s.Images, s.Videos, s.Raws, orDash(s.LastAt))
	}
	_ = tw.Flush()
	fmt.Fprintf(out, "%d stores, %d pages\n", page.Total, media.TotalPages(page.Total, limit))
}

func renderAssets(out io.Writer, page *media.AssetsPage, limit int) {
	if page.Store != nil {
		fmt.Fprintf(out, "%s (%s)\n", orDash(page.Store.Name), orDash(page.StoreID))
	}
	if s := page.Summary; s != nil {
		fmt.Fprintf(out, "%d assets: %d images, %d videos, %d raw\n", s.Total, s.Images, s.Videos, s.Raws)
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTYPE\tFILE\tSIZE\tCREATED\tURL")
	for _, a := range page.Items {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", a.ID, orDash(a.ResourceType), orDash(a.OriginalFilename),
			dimensions(a), orDash(a.CreatedAt), orDash(a.URL))
	}
	_ = tw.Flush()
	fmt.Fprintf(out, "%d assets, %d pages\n", page.Total, media.TotalPages(page.Total, limit))
}

func dimensions(a media.Asset) string {
	if a.Width > 0 && a.Height > 0 {
		return fmt.Sprintf("%dx%d", a.Width, a.Height)
	}
	return placeholder
}
