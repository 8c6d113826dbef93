package logsink

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"storedash/internal/config"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/tidwall/gjson"
)

// Entry is one line written by Handler.
type Entry struct {
	Time  time.Time
	Level string
	Msg   string
	Attrs map[string]any
	Raw   string
}

// Reader reads back the JSON lines written by Handler.
type Reader struct {
	container string
	// blob is the configured STOREDASH_LOG_BLOB, read in addition to the
	// dated folders when set.
	blob   string
	client *azblob.Client
}

func NewReader(cfg config.LogsConfig) (*Reader, error) {
	if cfg.AccountName == "" || cfg.Container == "" {
		return nil, errors.New("log reader needs an account name and container")
	}

	serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net/", cfg.AccountName)
	var (
		client *azblob.Client
		err    error
	)
	if cfg.AccountKey != "" {
		cred, cerr := azblob.NewSharedKeyCredential(cfg.AccountName, cfg.AccountKey)
		if cerr != nil {
			return nil, fmt.Errorf("shared key credential: %w", cerr)
		}
		client, err = azblob.NewClientWithSharedKeyCredential(serviceURL, cred, nil)
	} else {
		cred, cerr := azidentity.NewDefaultAzureCredential(nil)
		if cerr != nil {
			return nil, fmt.Errorf("default azure credential: %w", cerr)
		}
		client, err = azblob.NewClient(serviceURL, cred, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("blob client: %w", err)
	}
	return &Reader{container: cfg.Container, blob: cfg.BlobName, client: client}, nil
}

// Entries returns entries at or after since, oldest first, across every
// day folder in range plus the configured blob when it lives elsewhere.
func (r *Reader) Entries(ctx context.Context, since time.Time) ([]Entry, error) {
	var all []Entry
	seen := map[string]bool{}
	for _, prefix := range datePrefixes(since, time.Now()) {
		pager := r.client.NewListBlobsFlatPager(r.container, &azblob.ListBlobsFlatOptions{Prefix: &prefix})
		for pager.More() {
			resp, err := pager.NextPage(ctx)
			if err != nil {
				return nil, fmt.Errorf("list log blobs: %w", err)
			}
			for _, item := range resp.Segment.BlobItems {
				if item.Name == nil {
					continue
				}
				if p := item.Properties; p != nil && p.LastModified != nil && p.LastModified.Before(since) {
					continue
				}
				seen[*item.Name] = true
				entries, err := r.readBlob(ctx, *item.Name, since)
				if err != nil {
					slog.WarnContext(ctx, "skipping unreadable log blob", "blob", *item.Name, "error", err)
					continue
				}
				all = append(all, entries...)
			}
		}
	}
	if r.blob != "" && !seen[r.blob] {
		entries, err := r.readBlob(ctx, r.blob, since)
		switch {
		case bloberror.HasCode(err, bloberror.BlobNotFound):
		case err != nil:
			return nil, err
		default:
			all = append(all, entries...)
		}
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].Time.Before(all[j].Time) })
	return all, nil
}

func (r *Reader) readBlob(ctx context.Context, name string, since time.Time) ([]Entry, error) {
	resp, err := r.client.DownloadStream(ctx, r.container, name, nil)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", name, err)
	}
	defer resp.Body.Close()
	return parseEntries(resp.Body, since)
}

func datePrefixes(since, until time.Time) []string {
	var prefixes []string
	current := since.UTC().Truncate(24 * time.Hour)
	end := until.UTC().Truncate(24 * time.Hour)
	for !current.After(end) {
		prefixes = append(prefixes, FormatDateFolder(current.Year(), int(current.Month()), current.Day())+"/")
		current = current.Add(24 * time.Hour)
	}
	return prefixes
}

func parseEntries(src io.Reader, since time.Time) ([]Entry, error) {
	var entries []Entry
	sc := bufio.NewScanner(src)
	sc.Buffer(make([]byte, 0, 64*1024), maxBlock)

	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || !gjson.Valid(line) {
			continue
		}
		doc := gjson.Parse(line)
		if !doc.IsObject() {
			continue
		}
		e := Entry{
			Level: doc.Get("level").String(),
			Msg:   doc.Get("msg").String(),
			Attrs: map[string]any{},
			Raw:   line,
		}
		if ts, err := time.Parse(time.RFC3339Nano, doc.Get("ts").String()); err == nil {
			if ts.Before(since) {
				continue
			}
			e.Time = ts
		}
		doc.ForEach(func(k, v gjson.Result) bool {
			switch k.String() {
			case "ts", "level", "msg":
			default:
				e.Attrs[k.String()] = v.Value()
			}
			return true
		})
		entries = append(entries, e)
	}
	if err := sc.Err(); err != nil {
		return entries, fmt.Errorf("scan log blob: %w", err)
	}
	return entries, nil
}
