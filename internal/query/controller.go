// Package query owns the product listing state: filters, paging, debounced
// search and per-product variant expansion. Every fetch is cancellable and
// stamped with a generation; a response that is no longer current is dropped.
package query

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"storedash/internal/api"
	"storedash/internal/catalog"
	"storedash/internal/normalize"

	"github.com/samber/lo"
)

const (
	DefaultPerPage         = 50
	DefaultDebounce        = 300 * time.Millisecond
	DefaultVisibleVariants = 20

	MsgListFailed    = "Failed to fetch products."
	MsgDetailsFailed = "Failed to load product variants."
	MsgEmptyProduct  = "Empty product payload"
)

var PerPageOptions = []int{20, 50, 100, 200}

var ErrInvalidPerPage = fmt.Errorf("per page must be one of %v", PerPageOptions)

type Lister interface {
	ListProducts(ctx context.Context, params catalog.ListParams) (*normalize.Listing, error)
}

type Options struct {
	PerPage         int
	Status          string
	Debounce        time.Duration
	VisibleVariants int
	// OnUpdate receives a snapshot after every state change. Calls are
	// serialized and never go back in time; views superseded while an earlier
	// call was running are skipped. It may be called from any goroutine and
	// must not call back into the controller's setters synchronously.
	OnUpdate func(View)
	Logger   *slog.Logger
	// Now stamps placeholder variant ids; defaults to time.Now.
	Now func() time.Time
}

type detailState struct {
	expanded bool
	showAll  bool
	loading  bool
	err      string
	product  json.RawMessage
	gen      uint64
	cancel   context.CancelFunc
}

type Controller struct {
	lister  Lister
	details normalize.ProductLoader
	opts    Options
	logger  *slog.Logger

	baseCtx    context.Context
	baseCancel context.CancelFunc

	mu            sync.Mutex
	page          int
	perPage       int
	status        string
	category      string
	search        string
	pendingSearch string
	minPrice      *float64
	maxPrice      *float64

	phase      Phase
	errMsg     string
	listing    *normalize.Listing
	generation uint64
	cancel     context.CancelFunc

	debounceSeq uint64
	timer       *time.Timer
	pending     bool

	productDetails map[string]*detailState
	changed        chan struct{}
	closed         bool
	version        uint64

	// publishMu orders OnUpdate calls; published is the newest version
	// delivered so far.
	publishMu sync.Mutex
	published uint64
}

// NewController builds an idle controller. Nothing is fetched until Start.
func NewController(lister Lister, details normalize.ProductLoader, opts Options) *Controller {
	if !lo.Contains(PerPageOptions, opts.PerPage) {
		opts.PerPage = DefaultPerPage
	}
	if strings.TrimSpace(opts.Status) == "" {
		opts.Status = catalog.StatusAll
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.VisibleVariants <= 0 {
		opts.VisibleVariants = DefaultVisibleVariants
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		lister:         lister,
		details:        details,
		opts:           opts,
		logger:         logger,
		baseCtx:        ctx,
		baseCancel:     cancel,
		page:           1,
		perPage:        opts.PerPage,
		status:         strings.TrimSpace(opts.Status),
		phase:          PhaseIdle,
		productDetails: map[string]*detailState{},
		changed:        make(chan struct{}),
	}
}

// Start issues the first listing fetch.
func (c *Controller) Start() {
	c.update(func() bool {
		c.fetchLocked()
		return true
	})
}

// Refresh re-fetches the current page with the current filters.
func (c *Controller) Refresh() {
	c.Start()
}

func (c *Controller) SetPage(page int) {
	page = max(page, 1)
	c.update(func() bool {
		if page == c.page {
			return false
		}
		c.page = page
		c.fetchLocked()
		return true
	})
}

// SetPerPage accepts only PerPageOptions and resets to the first page.
func (c *Controller) SetPerPage(perPage int) error {
	if !lo.Contains(PerPageOptions, perPage) {
		return ErrInvalidPerPage
	}
	c.update(func() bool {
		if perPage == c.perPage {
			return false
		}
		c.perPage = perPage
		c.page = 1
		c.fetchLocked()
		return true
	})
	return nil
}

// SetStatus filters by upstream status; blank means all.
func (c *Controller) SetStatus(status string) {
	status = strings.TrimSpace(status)
	if status == "" {
		status = catalog.StatusAll
	}
	c.update(func() bool {
		if status == c.status {
			return false
		}
		c.status = status
		c.page = 1
		c.fetchLocked()
		return true
	})
}

// SetCategory keeps only the digits of category.
func (c *Controller) SetCategory(category string) {
	category = catalog.DigitsOnly(category)
	c.update(func() bool {
		if category == c.category {
			return false
		}
		c.category = category
		c.page = 1
		c.fetchLocked()
		return true
	})
}

// SetSearch records input and (re)arms the debounce timer. Only the value
// present when the timer fires is fetched, on page 1.
func (c *Controller) SetSearch(search string) {
	c.update(func() bool {
		if c.closed {
			return false
		}
		c.pendingSearch = search
		c.pending = true
		c.debounceSeq++
		seq := c.debounceSeq
		if c.timer != nil {
			c.timer.Stop()
		}
		c.timer = time.AfterFunc(c.opts.Debounce, func() { c.commitSearch(seq) })
		return true
	})
}

func (c *Controller) commitSearch(seq uint64) {
	c.update(func() bool {
		if c.closed || seq != c.debounceSeq {
			return false
		}
		c.pending = false
		c.timer = nil
		search := strings.TrimSpace(c.pendingSearch)
		if search == c.search {
			return true
		}
		c.search = search
		c.page = 1
		c.fetchLocked()
		return true
	})
}

// SetPriceRange applies a client-side price filter to already fetched
// variants. Nothing is re-fetched.
func (c *Controller) SetPriceRange(minPrice, maxPrice *float64) {
	c.update(func() bool {
		c.minPrice = copyFloat(minPrice)
		c.maxPrice = copyFloat(maxPrice)
		return true
	})
}

// Expand shows a product's variants, fetching its details once. Later expands
// reuse the stored details.
func (c *Controller) Expand(productID string) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return
	}
	c.update(func() bool {
		c.expandLocked(productID, c.detailLocked(productID))
		return true
	})
}

// Collapse hides a product's variants and cancels its detail fetch if one is
// still running.
func (c *Controller) Collapse(productID string) {
	productID = strings.TrimSpace(productID)
	c.update(func() bool {
		st, ok := c.productDetails[productID]
		if !ok || !st.expanded {
			return false
		}
		c.collapseLocked(st)
		return true
	})
}

func (c *Controller) Toggle(productID string) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return
	}
	c.update(func() bool {
		st := c.detailLocked(productID)
		if st.expanded {
			c.collapseLocked(st)
		} else {
			c.expandLocked(productID, st)
		}
		return true
	})
}

func (c *Controller) expandLocked(productID string, st *detailState) {
	st.expanded = true
	if st.product == nil && !st.loading {
		c.loadDetailLocked(productID, st)
	}
}

func (c *Controller) collapseLocked(st *detailState) {
	st.expanded = false
	if st.loading {
		st.cancel()
		st.cancel = nil
		st.loading = false
		st.gen++
	}
}

// ShowAll lifts the visible-variant limit for one product.
func (c *Controller) ShowAll(productID string) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return
	}
	c.update(func() bool {
		st := c.detailLocked(productID)
		if st.showAll {
			return false
		}
		st.showAll = true
		return true
	})
}

// ResolveVariant confirms the identity of a placeholder variant using the
// product's details. Failures return v unchanged.
func (c *Controller) ResolveVariant(ctx context.Context, v normalize.Variant) normalize.Variant {
	return normalize.ResolveVariant(ctx, v, loaderFunc(c.loadProduct))
}

type loaderFunc func(ctx context.Context, productID string) (json.RawMessage, error)

func (f loaderFunc) ProductDetails(ctx context.Context, productID string) (json.RawMessage, error) {
	return f(ctx, productID)
}

func (c *Controller) loadProduct(ctx context.Context, productID string) (json.RawMessage, error) {
	c.mu.Lock()
	if st, ok := c.productDetails[productID]; ok && st.product != nil {
		raw := st.product
		c.mu.Unlock()
		return raw, nil
	}
	c.mu.Unlock()

	raw, err := c.details.ProductDetails(ctx, productID)
	if err != nil {
		return nil, err
	}
	c.update(func() bool {
		if c.closed {
			return false
		}
		st := c.detailLocked(productID)
		st.product = raw
		return true
	})
	return raw, nil
}

// Close cancels all in-flight work. The controller ignores later calls.
func (c *Controller) Close() {
	c.update(func() bool {
		if c.closed {
			return false
		}
		c.closed = true
		if c.timer != nil {
			c.timer.Stop()
		}
		c.pending = false
		for _, st := range c.productDetails {
			if st.cancel != nil {
				st.cancel()
			}
			st.loading = false
		}
		if c.phase == PhaseLoading {
			c.phase = PhaseIdle
		}
		c.baseCancel()
		return true
	})
}

// WaitSettled blocks until no search is pending and neither the listing nor
// any product detail is loading.
func (c *Controller) WaitSettled(ctx context.Context) (View, error) {
	for {
		c.mu.Lock()
		if c.settledLocked() {
			v := c.snapshotLocked()
			c.mu.Unlock()
			return v, nil
		}
		ch := c.changed
		c.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return c.Snapshot(), ctx.Err()
		}
	}
}

func (c *Controller) settledLocked() bool {
	if c.pending || c.phase == PhaseLoading {
		return false
	}
	for _, st := range c.productDetails {
		if st.loading {
			return false
		}
	}
	return true
}

// update runs fn under the lock and, when fn reports a change, wakes waiters
// and publishes a snapshot outside the lock. Snapshots are versioned under the
// lock so a subscriber never receives an older view after a newer one.
func (c *Controller) update(fn func() bool) {
	c.mu.Lock()
	changed := fn()
	var (
		view    View
		version uint64
	)
	if changed {
		close(c.changed)
		c.changed = make(chan struct{})
		if c.opts.OnUpdate != nil {
			c.version++
			version = c.version
			view = c.snapshotLocked()
		}
	}
	c.mu.Unlock()

	if version == 0 {
		return
	}
	c.publishMu.Lock()
	defer c.publishMu.Unlock()
	if version <= c.published {
		return
	}
	c.published = version
	c.opts.OnUpdate(view)
}

func (c *Controller) paramsLocked() catalog.ListParams {
	return catalog.ListParams{
		Page:     c.page,
		PerPage:  c.perPage,
		Status:   c.status,
		Category: c.category,
		Search:   c.search,
	}
}

// fetchLocked supersedes any running fetch and starts a new one.
func (c *Controller) fetchLocked() {
	if c.closed {
		return
	}
	if c.cancel != nil {
		c.cancel()
	}
	c.generation++
	gen := c.generation
	ctx, cancel := context.WithCancel(c.baseCtx)
	c.cancel = cancel
	c.phase = PhaseLoading
	c.errMsg = ""
	params := c.paramsLocked()

	go c.runFetch(ctx, cancel, gen, params)
}

func (c *Controller) runFetch(ctx context.Context, cancel context.CancelFunc, gen uint64, params catalog.ListParams) {
	defer cancel()

	listing, err := c.lister.ListProducts(ctx, params)

	c.update(func() bool {
		if c.closed || gen != c.generation {
			c.logger.DebugContext(ctx, "discarding stale product listing", "generation", gen, "current", c.generation)
			return false
		}
		if err != nil && api.IsAborted(err) {
			return false
		}
		c.cancel = nil
		if err != nil {
			c.logger.WarnContext(ctx, "failed to list products", "page", params.Page, "error", err)
			c.phase = PhaseError
			c.errMsg = listErrorMessage(err)
			c.listing = nil
			return true
		}
		c.phase = PhaseSuccess
		c.listing = listing
		return true
	})
}

func (c *Controller) detailLocked(productID string) *detailState {
	st, ok := c.productDetails[productID]
	if !ok {
		st = &detailState{}
		c.productDetails[productID] = st
	}
	return st
}

func (c *Controller) loadDetailLocked(productID string, st *detailState) {
	if c.closed {
		return
	}
	st.gen++
	gen := st.gen
	ctx, cancel := context.WithCancel(c.baseCtx)
	st.cancel = cancel
	st.loading = true
	st.err = ""

	go func() {
		defer cancel()

		raw, err := c.details.ProductDetails(ctx, productID)

		c.update(func() bool {
			if c.closed || st.gen != gen {
				return false
			}
			if err != nil && api.IsAborted(err) {
				return false
			}
			st.loading = false
			st.cancel = nil
			if err != nil {
				c.logger.WarnContext(ctx, "failed to load product details", "product_id", productID, "error", err)
				st.err = detailErrorMessage(err)
				return true
			}
			st.product = raw
			return true
		})
	}()
}

func listErrorMessage(err error) string {
	if api.KindOf(err) == "" {
		return MsgListFailed
	}
	return api.UserMessage(err)
}

func detailErrorMessage(err error) string {
	switch {
	case errors.Is(err, catalog.ErrEmptyProduct):
		return MsgEmptyProduct
	case api.KindOf(err) == "":
		return MsgDetailsFailed
	default:
		return api.UserMessage(err)
	}
}

func copyFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}
