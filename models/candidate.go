package models

// Candidate is a clip observed on the source platform.
type Candidate struct {
	SourceID  string `json:"source_id"`
	URL       string `json:"url"`
	ViewCount int64  `json:"view_count"`
	Caption   string `json:"caption"`
}

// Metadata is the publish-ready description of a composed video.
type Metadata struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
}
