package model

// Document is one input PDF, read once at ingestion and never mutated.
type Document struct {
	Path        string   `json:"path"`
	ContentHash string   `json:"content_hash"`
	PageCount   int      `json:"page_count"`
	Pages       []string `json:"-"`
}

// FirstPage returns the text of the first page, or "" for an empty document.
func (d *Document) FirstPage() string {
	if len(d.Pages) == 0 {
		return ""
	}
	return d.Pages[0]
}

// Text returns the full document text with pages joined by newlines.
func (d *Document) Text() string {
	var out string
	for i, p := range d.Pages {
		if i > 0 {
			out += "\n"
		}
		out += p
	}
	return out
}
