package opensearch

import (
	"errors"
	"fmt"
)

var (
	ErrIndexNotFound      = errors.New("index not found")
	ErrDocumentNotFound   = errors.New("document not found")
	ErrIndexAlreadyExists = errors.New("index already exists")
)

// Document is one stored document. Index is the concrete index it lives in;
// for writes an empty Index means "the default index of the bulk call".
type Document struct {
	ID     string
	Index  string
	Source map[string]any
}

type SearchResult struct {
	Hits  []Document
	Total int64
}

type BulkItemResult struct {
	Action string
	ID     string
	Index  string
	Status int
	Error  string
}

func (r BulkItemResult) Failed() bool {
	return r.Error != "" || r.Status < 200 || r.Status >= 300
}

type BulkResult struct {
	Took   int64
	Errors bool
	Items  []BulkItemResult
}

func (r *BulkResult) Failures() []BulkItemResult {
	if r == nil {
		return nil
	}

	var failures []BulkItemResult
	for _, item := range r.Items {
		if item.Failed() {
			failures = append(failures, item)
		}
	}

	return failures
}

type ResponseError struct {
	Operation string
	Status    int
	Type      string
	Body      string
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("OpenSearch %s returned status %d: %s", e.Operation, e.Status, e.Body)
}

// OpenSearch API DTOs (partial, only fields we need)

type openSearchSearchResponse struct {
	Took int64 `json:"took"`
	Hits struct {
		Total struct {
			Value int64  `json:"value"`
			Rel   string `json:"relation"`
		} `json:"total"`
		Hits []struct {
			Index  string         `json:"_index"`
			ID     string         `json:"_id"`
			Source map[string]any `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

type openSearchGetResponse struct {
	Index  string         `json:"_index"`
	ID     string         `json:"_id"`
	Found  bool           `json:"found"`
	Source map[string]any `json:"_source"`
}

type openSearchDeleteByQueryResponse struct {
	Took     int64 `json:"took"`
	TimedOut bool  `json:"timed_out"`
	Total    int64 `json:"total"`
	Deleted  int64 `json:"deleted"`
}

type openSearchCatIndex struct {
	Index string `json:"index"`
}
