// Package logsink ships slog records as JSON lines to an Azure append blob.
package logsink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"sync"
	"time"

	"storedash/internal/config"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/appendblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
)

// maxBlock stays under the service's append block limit.
const maxBlock = 4 << 20

// ErrClosed is returned by Handle once the upload loop has stopped.
var ErrClosed = errors.New("log sink closed")

type appender interface {
	AppendBlock(ctx context.Context, body io.ReadSeekCloser, o *appendblob.AppendBlockOptions) (appendblob.AppendBlockResponse, error)
}

type sink struct {
	ab     appender
	ch     chan []byte
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	every  time.Duration
	once   sync.Once

	// mu guards closed; senders hold it shared so the final drain sees every
	// accepted line.
	mu     sync.RWMutex
	closed bool
}

// Handler is a slog.Handler. Handlers derived through WithAttrs and
// WithGroup share one upload loop; Close the root handler to flush it.
type Handler struct {
	sink   *sink
	level  slog.Leveler
	attrs  []groupedAttr
	groups []string
}

type groupedAttr struct {
	groups []string
	attr   slog.Attr
}

// New connects to the configured container. With no account key it falls
// back to the default Azure credential chain.
func New(ctx context.Context, cfg config.LogsConfig, level slog.Leveler) (*Handler, error) {
	if cfg.AccountName == "" || cfg.Container == "" {
		return nil, errors.New("log sink needs an account name and container")
	}
	if cfg.BlobName == "" {
		host, _ := os.Hostname()
		cfg.BlobName = BlobName(time.Now(), host)
	}

	// BlobName may include slashes; don't path-escape it.
	blobURL := "https://" + cfg.AccountName + ".blob.core.windows.net/" +
		url.PathEscape(cfg.Container) + "/" + cfg.BlobName

	var (
		ab  *appendblob.Client
		err error
	)
	if cfg.AccountKey != "" {
		cred, cerr := azblob.NewSharedKeyCredential(cfg.AccountName, cfg.AccountKey)
		if cerr != nil {
			return nil, fmt.Errorf("shared key credential: %w", cerr)
		}
		ab, err = appendblob.NewClientWithSharedKeyCredential(blobURL, cred, nil)
	} else {
		cred, cerr := azidentity.NewDefaultAzureCredential(nil)
		if cerr != nil {
			return nil, fmt.Errorf("default azure credential: %w", cerr)
		}
		ab, err = appendblob.NewClient(blobURL, cred, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("append blob client: %w", err)
	}

	etag := azcore.ETagAny
	_, err = ab.Create(ctx, &appendblob.CreateOptions{
		AccessConditions: &blob.AccessConditions{
			ModifiedAccessConditions: &blob.ModifiedAccessConditions{IfNoneMatch: &etag},
		},
	})
	if err != nil && !bloberror.HasCode(err, bloberror.BlobAlreadyExists, bloberror.ConditionNotMet) {
		return nil, fmt.Errorf("create log blob %s: %w", cfg.BlobName, err)
	}

	return newHandler(ctx, ab, cfg.FlushEvery, level), nil
}

func newHandler(ctx context.Context, ab appender, every time.Duration, level slog.Leveler) *Handler {
	if every <= 0 {
		every = 2 * time.Second
	}
	if level == nil {
		level = slog.LevelInfo
	}
	ctx, cancel := context.WithCancel(ctx)
	s := &sink{
		ab:     ab,
		ch:     make(chan []byte, 1024),
		ctx:    ctx,
		cancel: cancel,
		every:  every,
	}
	s.wg.Add(1)
	go s.loop()
	return &Handler{sink: s, level: level}
}

// Close stops the upload loop after a final flush.
func (h *Handler) Close() error {
	h.sink.once.Do(func() {
		h.sink.cancel()
		h.sink.wg.Wait()
	})
	return nil
}

func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	ev := map[string]any{}
	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	ev["ts"] = ts.UTC().Format(time.RFC3339Nano)
	ev["level"] = r.Level.String()
	ev["msg"] = r.Message

	for _, ga := range h.attrs {
		put(target(ev, ga.groups), ga.attr)
	}
	dst := target(ev, h.groups)
	r.Attrs(func(a slog.Attr) bool {
		put(dst, a)
		return true
	})

	var b bytes.Buffer
	enc := json.NewEncoder(&b)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(ev); err != nil {
		return err
	}

	return h.sink.send(b.Bytes())
}

func (s *sink) send(line []byte) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	select {
	case s.ch <- line:
		return nil
	case <-s.ctx.Done():
		return ErrClosed
	}
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	next := *h
	next.attrs = append([]groupedAttr{}, h.attrs...)
	for _, a := range attrs {
		next.attrs = append(next.attrs, groupedAttr{groups: h.groups, attr: a})
	}
	return &next
}

func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.groups = append(append([]string{}, h.groups...), name)
	return &next
}

func target(ev map[string]any, groups []string) map[string]any {
	m := ev
	for _, g := range groups {
		child, ok := m[g].(map[string]any)
		if !ok {
			child = map[string]any{}
			m[g] = child
		}
		m = child
	}
	return m
}

func put(m map[string]any, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if a.Value.Kind() != slog.KindGroup {
		v := a.Value.Any()
		if err, ok := v.(error); ok {
			v = err.Error()
		}
		m[a.Key] = v
		return
	}
	attrs := a.Value.Group()
	if len(attrs) == 0 {
		return
	}
	dst := m
	if a.Key != "" {
		dst = target(m, []string{a.Key})
	}
	for _, aa := range attrs {
		put(dst, aa)
	}
}

func (s *sink) loop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.every)
	defer ticker.Stop()

	var buf []byte
	flush := func(ctx context.Context) {
		if len(buf) == 0 {
			return
		}
		if _, err := s.ab.AppendBlock(ctx, readSeekNopCloser{bytes.NewReader(buf)}, nil); err != nil {
			// Logging here would feed back into this sink.
			fmt.Fprintf(os.Stderr, "logsink: append failed: %v\n", err)
		}
		buf = buf[:0]
	}

	for {
		select {
		case <-s.ctx.Done():
			s.mu.Lock()
			s.closed = true
			s.mu.Unlock()
		drain:
			for {
				select {
				case line := <-s.ch:
					buf = append(buf, line...)
				default:
					break drain
				}
			}
			flush(context.WithoutCancel(s.ctx))
			return
		case line := <-s.ch:
			if len(buf)+len(line) > maxBlock {
				flush(s.ctx)
			}
			buf = append(buf, line...)
		case <-ticker.C:
			flush(s.ctx)
		}
	}
}

type readSeekNopCloser struct{ io.ReadSeeker }

func (r readSeekNopCloser) Close() error { return nil }
