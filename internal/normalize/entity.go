package normalize

import (
	"strings"

	"storedash/internal/lookup"

	"github.com/tidwall/gjson"
)

var (
	productIDPaths = []string{"id", "product_id", "productId"}
	categoryPaths  = []string{"category.name", "category.title", "category_name", "categories.0.name"}
	imagePaths     = []string{"image", "images", "photos", "media"}
	imageURLPaths  = []string{"url", "src", "original", "full", "medium", "small", "path", "data.url"}
)

// ExtractID returns the first non-empty identifier of a product payload.
func ExtractID(entity []byte) *string {
	return ExtractProductID(parse(entity))
}

func ExtractProductID(product gjson.Result) *string {
	return firstString(product, productIDPaths...)
}

func ExtractCategoryName(product gjson.Result) *string {
	return firstString(product, categoryPaths...)
}

// FirstImageURL scans image, images, photos and media, each of which may be a
// single value or a list of strings or objects, and returns the first URL.
func FirstImageURL(entity gjson.Result) *string {
	for _, path := range imagePaths {
		r := entity.Get(path)
		if !r.Exists() {
			continue
		}
		candidates := []gjson.Result{r}
		if r.IsArray() {
			candidates = r.Array()
		}
		for _, c := range candidates {
			if u := imageURL(c); u != "" {
				return &u
			}
		}
	}
	return nil
}

func imageURL(c gjson.Result) string {
	switch {
	case c.Type == gjson.String:
		return strings.TrimSpace(c.Str)
	case c.IsObject():
		u, _ := lookup.FirstString(c, imageURLPaths...)
		return u
	default:
		return ""
	}
}
