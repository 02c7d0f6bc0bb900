package catalog

// mosaicsResponse is the catalog response for a mosaic name lookup.
type mosaicsResponse struct {
	Mosaics []mosaicEntry `json:"mosaics"`
}

// mosaicEntry is a single mosaic in a catalog listing.
type mosaicEntry struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// quadsResponse is one page of a mosaic's quad listing.
type quadsResponse struct {
	Items []quadEntry `json:"items"`
	Links pageLinks   `json:"_links"`
}

// pageLinks holds the continuation link of a quad page, when present.
type pageLinks struct {
	Next string `json:"_next"`
}

// quadEntry is a single quad in a listing page.
type quadEntry struct {
	ID    string    `json:"id"`
	Links quadLinks `json:"_links"`
}

type quadLinks struct {
	Download string `json:"download"`
}

// Quad is one raster tile of a monthly mosaic.
type Quad struct {
	// ID is the catalog quad identifier (e.g. "631-1024").
	ID string

	// DownloadURL is the self-contained link to the quad's GeoTIFF.
	DownloadURL string
}
