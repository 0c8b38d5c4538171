package catalog

import "github.com/tidwall/gjson"

// Volume is a book as described by the Google Books volumes API.
type Volume struct {
	ID            string   `json:"id"`
	Title         string   `json:"title"`
	Authors       []string `json:"authors"`
	Categories    []string `json:"categories,omitempty"`
	Publisher     string   `json:"publisher,omitempty"`
	PublishedDate string   `json:"published_date,omitempty"`
	Description   string   `json:"description,omitempty"`
	Thumbnail     string   `json:"thumbnail,omitempty"`
	PageCount     int      `json:"page_count,omitempty"`
	AverageRating float64  `json:"average_rating,omitempty"`
	Language      string   `json:"-"`
}

func parseVolume(item gjson.Result) Volume {
	info := item.Get("volumeInfo")
	return Volume{
		ID:            item.Get("id").String(),
		Title:         info.Get("title").String(),
		Authors:       stringList(info.Get("authors")),
		Categories:    stringList(info.Get("categories")),
		Publisher:     info.Get("publisher").String(),
		PublishedDate: info.Get("publishedDate").String(),
		Description:   info.Get("description").String(),
		Thumbnail:     info.Get("imageLinks.thumbnail").String(),
		PageCount:     int(info.Get("pageCount").Int()),
		AverageRating: info.Get("averageRating").Float(),
		Language:      info.Get("language").String(),
	}
}

func stringList(result gjson.Result) []string {
	values := []string{}
	result.ForEach(func(_, value gjson.Result) bool {
		if text := value.String(); text != "" {
			values = append(values, text)
		}
		return true
	})
	return values
}
