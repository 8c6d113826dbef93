package query

import (
	"encoding/json"

	"storedash/internal/normalize"
)

type Phase int

const (
	PhaseIdle Phase = iota
	PhasePending
	PhaseLoading
	PhaseSuccess
	PhaseError
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhasePending:
		return "pending"
	case PhaseLoading:
		return "loading"
	case PhaseSuccess:
		return "success"
	case PhaseError:
		return "error"
	default:
		return "unknown"
	}
}

// View is an immutable snapshot of the controller.
type View struct {
	Phase Phase
	// Error is set only in PhaseError; the listing is empty then.
	Error string

	Page       int
	PerPage    int
	TotalPages int

	Status        string
	Category      string
	Search        string
	PendingSearch string
	MinPrice      *float64
	MaxPrice      *float64

	Products []Product
}

// Product is one listed product with its price-filtered variants.
type Product struct {
	ID   string
	Name string
	Raw  json.RawMessage

	Expanded       bool
	DetailsLoaded  bool
	DetailsLoading bool
	DetailsError   string

	// Variants holds at most the visible limit unless ShowAll was called.
	Variants      []normalize.Variant
	TotalVariants int
	HasMore       bool
}

func (c *Controller) Snapshot() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() View {
	v := View{
		Phase:         c.phase,
		Error:         c.errMsg,
		Page:          c.page,
		PerPage:       c.perPage,
		TotalPages:    1,
		Status:        c.status,
		Category:      c.category,
		Search:        c.search,
		PendingSearch: c.pendingSearch,
		MinPrice:      copyFloat(c.minPrice),
		MaxPrice:      copyFloat(c.maxPrice),
		Products:      []Product{},
	}
	if c.pending {
		v.Phase = PhasePending
	}
	if c.listing == nil {
		return v
	}

	v.TotalPages = normalize.TotalPages(c.listing.Pagination, c.perPage)
	for _, item := range c.listing.Items {
		v.Products = append(v.Products, c.productLocked(item))
	}
	return v
}

func (c *Controller) productLocked(item json.RawMessage) Product {
	p := Product{Raw: item}
	if id := normalize.ExtractID(item); id != nil {
		p.ID = *id
	}

	source := item
	limit := c.opts.VisibleVariants
	if st, ok := c.productDetails[p.ID]; ok && p.ID != "" {
		p.Expanded = st.expanded
		p.DetailsLoading = st.loading
		p.DetailsError = st.err
		if st.product != nil {
			source = st.product
			p.DetailsLoaded = true
		}
		if st.showAll {
			limit = -1
		}
	}

	all := normalize.ExtractVariants(source, normalize.Options{IncludeDefault: true, Now: c.opts.Now})
	if len(all) > 0 {
		p.Name = all[0].ProductName
	}
	filtered := normalize.FilterByPrice(all, c.minPrice, c.maxPrice)
	p.TotalVariants = len(filtered)
	if limit >= 0 && len(filtered) > limit {
		p.Variants = filtered[:limit]
		p.HasMore = true
	} else {
		p.Variants = filtered
	}
	return p
}
