package logsink

import (
	"fmt"
	"time"
)

// DateFolderFormat lays blobs out as YYYY/MM/DD.
const DateFolderFormat = "%d/%02d/%02d"

func FormatDateFolder(year int, month int, day int) string {
	return fmt.Sprintf(DateFolderFormat, year, month, day)
}

// BlobName is the default blob for a host: one file per host per UTC day.
func BlobName(t time.Time, host string) string {
	if host == "" {
		host = "storedash"
	}
	t = t.UTC()
	return FormatDateFolder(t.Year(), int(t.Month()), t.Day()) + "/" + host + ".jsonl"
}
