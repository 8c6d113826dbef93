package logsink

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
)

func TestParseEntries(t *testing.T) {
	t.Parallel()

	input := strings.Join([]string{
		`{"ts":"2024-03-07T10:00:00Z","level":"INFO","msg":"old"}`,
		`not json`,
		``,
		`{"ts":"2024-03-07T12:00:00Z","level":"WARN","msg":"rate limited","status":429,"req":{"path":"/api/products"}}`,
		`{"level":"ERROR","msg":"no timestamp"}`,
	}, "\n")

	since := time.Date(2024, 3, 7, 11, 0, 0, 0, time.UTC)
	entries, err := parseEntries(strings.NewReader(input), since)
	if err != nil {
		t.Fatalf("parseEntries: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d: %+v", len(entries), entries)
	}

	e := entries[0]
	if e.Msg != "rate limited" || e.Level != "WARN" || !e.Time.Equal(since.Add(time.Hour)) {
		t.Fatalf("unexpected entry %+v", e)
	}
	if e.Attrs["status"] != float64(429) {
		t.Fatalf("unexpected status attr %v", e.Attrs["status"])
	}
	if req, ok := e.Attrs["req"].(map[string]any); !ok || req["path"] != "/api/products" {
		t.Fatalf("unexpected req attr %v", e.Attrs["req"])
	}
	if entries[1].Msg != "no timestamp" || !entries[1].Time.IsZero() {
		t.Fatalf("unexpected entry %+v", entries[1])
	}
}

func TestDatePrefixes(t *testing.T) {
	t.Parallel()

	since := time.Date(2024, 2, 28, 22, 0, 0, 0, time.UTC)
	until := time.Date(2024, 3, 1, 1, 0, 0, 0, time.UTC)
	got := datePrefixes(since, until)
	want := []string{"2024/02/28/", "2024/02/29/", "2024/03/01/"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("datePrefixes = %v, want %v", got, want)
	}
}

func TestEntries_ReadsConfiguredBlobOutsideDateFolders(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Query().Get("comp") == "list":
			w.Header().Set("Content-Type", "application/xml")
			fmt.Fprintf(w, `<?xml version="1.0" encoding="utf-8"?><EnumerationResults ContainerName="logs"><Prefix>%s</Prefix><Blobs></Blobs><NextMarker/></EnumerationResults>`, r.URL.Query().Get("prefix"))
		case r.URL.Path == "/logs/custom/app.jsonl":
			fmt.Fprintf(w, "{\"ts\":%q,\"level\":\"INFO\",\"msg\":\"custom\"}\n", now.Format(time.RFC3339Nano))
		default:
			w.Header().Set("x-ms-error-code", "BlobNotFound")
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)

	client, err := azblob.NewClientWithNoCredential(srv.URL+"/", nil)
	if err != nil {
		t.Fatalf("client: %v", err)
	}

	r := &Reader{container: "logs", blob: "custom/app.jsonl", client: client}
	entries, err := r.Entries(context.Background(), now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if len(entries) != 1 || entries[0].Msg != "custom" {
		t.Fatalf("unexpected entries %+v", entries)
	}

	r.blob = "custom/missing.jsonl"
	entries, err = r.Entries(context.Background(), now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("Entries with missing blob: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no entries, got %+v", entries)
	}
}
