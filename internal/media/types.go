package media

import (
	"math"

	"storedash/internal/lookup"

	"github.com/samber/lo"
	"github.com/tidwall/gjson"
)

type StoreInfo struct {
	Name    string `json:"name,omitempty"`
	Domain  string `json:"domain,omitempty"`
	URL     string `json:"url,omitempty"`
	LogoURL string `json:"logoUrl,omitempty"`
}

// StoreSummary is a store with its asset counters.
type StoreSummary struct {
	StoreID string    `json:"storeId"`
	Total   int       `json:"total"`
	Images  int       `json:"images"`
	Videos  int       `json:"videos"`
	Raws    int       `json:"raws"`
	FirstAt string    `json:"firstAt,omitempty"`
	LastAt  string    `json:"lastAt,omitempty"`
	Info    StoreInfo `json:"store"`
}

type Asset struct {
	ID               string  `json:"id"`
	PublicID         string  `json:"publicId,omitempty"`
	ResourceType     string  `json:"resourceType,omitempty"`
	URL              string  `json:"url,omitempty"`
	OriginalFilename string  `json:"originalFilename,omitempty"`
	Folder           string  `json:"folder,omitempty"`
	Bytes            int64   `json:"bytes,omitempty"`
	Width            int     `json:"width,omitempty"`
	Height           int     `json:"height,omitempty"`
	Duration         float64 `json:"duration,omitempty"`
	CreatedAt        string  `json:"createdAt,omitempty"`
	StoreID          string  `json:"storeId,omitempty"`
	StoreName        string  `json:"storeName,omitempty"`
}

type StoresPage struct {
	Total  int
	Stores []StoreSummary
}

type Stats struct {
	TotalStores int
	TotalAssets int
	FirstAt     string
	LastAt      string
}

type Overview struct {
	Stats        Stats
	LastUploader *StoreSummary
	LatestAssets []Asset
}

type AssetsPage struct {
	Total   int
	Items   []Asset
	StoreID string
	Store   *StoreInfo
	Summary *StoreSummary
}

type SyncResult struct {
	Errors []string
}

// TotalPages is max(1, ceil(total/limit)).
func TotalPages(total, limit int) int {
	if limit <= 0 || total <= 0 {
		return 1
	}
	return max(1, int(math.Ceil(float64(total)/float64(limit))))
}

func str(doc gjson.Result, paths ...string) string {
	s, _ := lookup.FirstString(doc, paths...)
	return s
}

func num(doc gjson.Result, paths ...string) int {
	n, _ := lookup.FirstFunc(doc, lookup.Int, paths...)
	return n
}

func parseStoreInfo(doc gjson.Result) StoreInfo {
	return StoreInfo{
		Name:    str(doc, "name", "info.name"),
		Domain:  str(doc, "domain", "info.domain"),
		URL:     str(doc, "url", "info.url"),
		LogoURL: str(doc, "logoUrl", "logo", "info.logoUrl"),
	}
}

func parseStoreSummary(doc gjson.Result) StoreSummary {
	return StoreSummary{
		StoreID: str(doc, "storeId", "store.storeId", "id"),
		Total:   num(doc, "total"),
		Images:  num(doc, "images"),
		Videos:  num(doc, "videos"),
		Raws:    num(doc, "raws"),
		FirstAt: str(doc, "firstAt"),
		LastAt:  str(doc, "lastAt", "at"),
		Info:    parseStoreInfo(doc.Get("store")),
	}
}

func parseAsset(doc gjson.Result) Asset {
	duration, _ := lookup.FirstFunc(doc, lookup.Amount, "duration")
	bytes, _ := lookup.FirstFunc(doc, lookup.Amount, "bytes")
	return Asset{
		ID:               str(doc, "id", "_id"),
		PublicID:         str(doc, "publicId", "public_id"),
		ResourceType:     str(doc, "resourceType", "resource_type"),
		URL:              str(doc, "secureUrl", "secure_url", "url"),
		OriginalFilename: str(doc, "originalFilename", "original_filename"),
		Folder:           str(doc, "folder"),
		Bytes:            int64(bytes),
		Width:            num(doc, "width"),
		Height:           num(doc, "height"),
		Duration:         duration,
		CreatedAt:        str(doc, "cloudinaryCreatedAt", "createdAt", "at"),
		StoreID:          str(doc, "storeId"),
		StoreName:        str(doc, "store.name"),
	}
}

func parseAssets(doc gjson.Result, paths ...string) []Asset {
	items, _ := lookup.FirstArray(doc, paths...)
	return lo.Map(items, func(r gjson.Result, _ int) Asset { return parseAsset(r) })
}
