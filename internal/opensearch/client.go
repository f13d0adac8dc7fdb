package opensearch

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/klauspost/compress/gzip"
	"github.com/valyala/fastjson"
)

type ClientConfig struct {
	BaseURL            string
	Username           string
	Password           string
	InsecureSkipVerify bool
	CompressRequests   bool
	// BulkRefresh is passed as the bulk "refresh" parameter: "", "true" or "wait_for".
	BulkRefresh string
	Timeout     time.Duration
}

type Client struct {
	client      *resty.Client
	compress    bool
	bulkRefresh string
	logger      *slog.Logger
	parsers     fastjson.ParserPool
}

func NewClient(config ClientConfig, logger *slog.Logger) *Client {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(config.BaseURL, "/")).
		SetTimeout(timeout).
		SetTransport(&http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			MaxConnsPerHost:     50,
			IdleConnTimeout:     90 * time.Second,
			ForceAttemptHTTP2:   false, // Stick to HTTP/1.1 for OpenSearch
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: config.InsecureSkipVerify, //nolint:gosec // opt-in for self-signed dev clusters
			},
		})

	if config.Username != "" {
		client.SetBasicAuth(config.Username, config.Password)
	}

	return &Client{
		client:      client,
		compress:    config.CompressRequests,
		bulkRefresh: config.BulkRefresh,
		logger:      logger,
	}
}

// Get fetches a single document by id from a concrete index.
func (c *Client) Get(ctx context.Context, index string, id string) (*Document, error) {
	response, err := c.client.R().
		SetContext(ctx).
		Get("/" + index + "/_doc/" + url.PathEscape(id))
	if err != nil {
		return nil, fmt.Errorf("failed to execute get: %w", err)
	}

	if response.StatusCode() == http.StatusNotFound {
		if errorType(response.Body()) == "index_not_found_exception" {
			return nil, ErrIndexNotFound
		}
		return nil, ErrDocumentNotFound
	}
	if response.StatusCode() != http.StatusOK {
		return nil, newResponseError("get", response)
	}

	var getResponse openSearchGetResponse
	if err := json.Unmarshal(response.Body(), &getResponse); err != nil {
		return nil, fmt.Errorf("failed to parse get response: %w", err)
	}
	if !getResponse.Found {
		return nil, ErrDocumentNotFound
	}

	return &Document{ID: getResponse.ID, Index: getResponse.Index, Source: getResponse.Source}, nil
}

func (c *Client) Search(ctx context.Context, index string, body map[string]any) (*SearchResult, error) {
	searchPayload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal search body: %w", err)
	}

	response, err := c.jsonRequest(ctx, searchPayload).Post("/" + index + "/_search")
	if err != nil {
		return nil, fmt.Errorf("failed to execute search: %w", err)
	}

	if response.StatusCode() == http.StatusNotFound && errorType(response.Body()) == "index_not_found_exception" {
		return nil, ErrIndexNotFound
	}
	if response.StatusCode() != http.StatusOK {
		return nil, newResponseError("search", response)
	}

	var searchResponse openSearchSearchResponse
	if err := json.Unmarshal(response.Body(), &searchResponse); err != nil {
		return nil, fmt.Errorf("failed to parse search response: %w", err)
	}

	result := &SearchResult{
		Hits:  make([]Document, 0, len(searchResponse.Hits.Hits)),
		Total: searchResponse.Hits.Total.Value,
	}
	for _, hit := range searchResponse.Hits.Hits {
		result.Hits = append(result.Hits, Document{ID: hit.ID, Index: hit.Index, Source: hit.Source})
	}

	return result, nil
}

// Bulk upserts documents with "index" actions keyed by document id. Item
// failures do not fail the call; they are reported in the result.
func (c *Client) Bulk(ctx context.Context, defaultIndex string, documents []Document) (*BulkResult, error) {
	if len(documents) == 0 {
		return &BulkResult{}, nil
	}

	var bulkRequestBuilder bytes.Buffer

	for _, document := range documents {
		indexName := document.Index
		if indexName == "" {
			indexName = defaultIndex
		}

		metadata := map[string]any{
			"index": map[string]any{
				"_index": indexName,
				"_id":    document.ID,
			},
		}

		metadataBytes, err := json.Marshal(metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal metadata: %w", err)
		}

		bulkRequestBuilder.Write(metadataBytes)
		bulkRequestBuilder.WriteByte('\n')

		documentBytes, err := json.Marshal(document.Source)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal document %s: %w", document.ID, err)
		}

		bulkRequestBuilder.Write(documentBytes)
		bulkRequestBuilder.WriteByte('\n')
	}

	request, err := c.request(ctx, bulkRequestBuilder.Bytes(), "application/x-ndjson")
	if err != nil {
		return nil, err
	}
	if c.bulkRefresh != "" && c.bulkRefresh != "false" {
		request.SetQueryParam("refresh", c.bulkRefresh)
	}

	response, err := request.Post("/_bulk")
	if err != nil {
		return nil, fmt.Errorf("failed to send documents to OpenSearch: %w", err)
	}
	if response.StatusCode() < 200 || response.StatusCode() >= 300 {
		return nil, newResponseError("bulk", response)
	}

	return c.parseBulkResponse(response.Body())
}

func (c *Client) DeleteByQuery(ctx context.Context, index string, body map[string]any) (int64, error) {
	queryPayload, err := json.Marshal(body)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal delete query: %w", err)
	}

	response, err := c.jsonRequest(ctx, queryPayload).
		SetQueryParams(map[string]string{
			"conflicts": "proceed",
			"refresh":   "true",
		}).
		Post("/" + index + "/_delete_by_query")
	if err != nil {
		return 0, fmt.Errorf("failed to execute delete_by_query: %w", err)
	}

	if response.StatusCode() == http.StatusNotFound && errorType(response.Body()) == "index_not_found_exception" {
		return 0, ErrIndexNotFound
	}
	if response.StatusCode() < 200 || response.StatusCode() >= 300 {
		return 0, newResponseError("delete_by_query", response)
	}

	var deleteResponse openSearchDeleteByQueryResponse
	if err := json.Unmarshal(response.Body(), &deleteResponse); err != nil {
		return 0, fmt.Errorf("failed to parse delete_by_query response: %w", err)
	}

	return deleteResponse.Deleted, nil
}

func (c *Client) IndexExists(ctx context.Context, index string) (bool, error) {
	response, err := c.client.R().SetContext(ctx).Head("/" + index)
	if err != nil {
		return false, fmt.Errorf("failed to check index existence: %w", err)
	}

	switch response.StatusCode() {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, newResponseError("index exists", response)
	}
}

func (c *Client) CreateIndex(ctx context.Context, index string, body map[string]any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal index definition: %w", err)
	}

	response, err := c.jsonRequest(ctx, payload).Put("/" + index)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	if response.StatusCode() == http.StatusBadRequest &&
		errorType(response.Body()) == "resource_already_exists_exception" {
		return ErrIndexAlreadyExists
	}
	if response.StatusCode() < 200 || response.StatusCode() >= 300 {
		return newResponseError("create index", response)
	}

	return nil
}

func (c *Client) DeleteIndex(ctx context.Context, index string) error {
	response, err := c.client.R().SetContext(ctx).Delete("/" + index)
	if err != nil {
		return fmt.Errorf("failed to delete index: %w", err)
	}

	if response.StatusCode() == http.StatusNotFound {
		return ErrIndexNotFound
	}
	if response.StatusCode() < 200 || response.StatusCode() >= 300 {
		return newResponseError("delete index", response)
	}

	return nil
}

// ListIndices resolves a pattern such as "telescope-*" to concrete index names.
func (c *Client) ListIndices(ctx context.Context, pattern string) ([]string, error) {
	var catIndices []openSearchCatIndex

	response, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{"format": "json", "h": "index"}).
		SetResult(&catIndices).
		Get("/_cat/indices/" + pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to list indices: %w", err)
	}

	if response.StatusCode() == http.StatusNotFound {
		return []string{}, nil
	}
	if response.StatusCode() != http.StatusOK {
		return nil, newResponseError("cat indices", response)
	}

	indices := make([]string, 0, len(catIndices))
	for _, catIndex := range catIndices {
		indices = append(indices, catIndex.Index)
	}

	return indices, nil
}

// Refresh makes recently written documents searchable.
func (c *Client) Refresh(ctx context.Context, index string) error {
	response, err := c.client.R().SetContext(ctx).Post("/" + index + "/_refresh")
	if err != nil {
		return fmt.Errorf("failed to execute refresh: %w", err)
	}

	if response.StatusCode() != http.StatusOK {
		return newResponseError("refresh", response)
	}

	return nil
}

func (c *Client) Ping(ctx context.Context) error {
	response, err := c.client.R().SetContext(ctx).Get("/_cluster/health")
	if err != nil {
		return fmt.Errorf("failed to connect to OpenSearch: %w", err)
	}

	if response.StatusCode() < 200 || response.StatusCode() >= 300 {
		return newResponseError("health check", response)
	}

	return nil
}

func (c *Client) jsonRequest(ctx context.Context, payload []byte) *resty.Request {
	request, err := c.request(ctx, payload, "application/json")
	if err != nil {
		// compression failed, fall back to the plain body
		c.logger.Warn("failed to compress request body, sending uncompressed", "error", err)
		return c.client.R().
			SetContext(ctx).
			SetHeader("Content-Type", "application/json").
			SetBody(payload)
	}

	return request
}

func (c *Client) request(ctx context.Context, payload []byte, contentType string) (*resty.Request, error) {
	request := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", contentType)

	if !c.compress {
		return request.SetBody(payload), nil
	}

	compressed, err := gzipBytes(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to compress request body: %w", err)
	}

	return request.
		SetHeader("Content-Encoding", "gzip").
		SetBody(compressed), nil
}

func (c *Client) parseBulkResponse(body []byte) (*BulkResult, error) {
	parser := c.parsers.Get()
	defer c.parsers.Put(parser)

	value, err := parser.ParseBytes(body)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal bulk response: %w", err)
	}

	items := value.GetArray("items")
	result := &BulkResult{
		Took:   value.GetInt64("took"),
		Errors: value.GetBool("errors"),
		Items:  make([]BulkItemResult, 0, len(items)),
	}

	for _, item := range items {
		object, err := item.Object()
		if err != nil {
			continue
		}

		// each item is {"<action>": {...}}
		object.Visit(func(action []byte, outcome *fastjson.Value) {
			itemResult := BulkItemResult{
				Action: string(action),
				ID:     string(outcome.GetStringBytes("_id")),
				Index:  string(outcome.GetStringBytes("_index")),
				Status: outcome.GetInt("status"),
			}

			if itemError := outcome.Get("error"); itemError != nil {
				itemResult.Error = describeError(itemError)
			}

			result.Items = append(result.Items, itemResult)
		})
	}

	return result, nil
}

func describeError(value *fastjson.Value) string {
	if value.Type() == fastjson.TypeString {
		return string(value.GetStringBytes())
	}

	errorType := string(value.GetStringBytes("type"))
	reason := string(value.GetStringBytes("reason"))
	switch {
	case errorType != "" && reason != "":
		return errorType + ": " + reason
	case errorType != "":
		return errorType
	default:
		return value.String()
	}
}

func errorType(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	return fastjson.GetString(body, "error", "type")
}

func newResponseError(operation string, response *resty.Response) *ResponseError {
	return &ResponseError{
		Operation: operation,
		Status:    response.StatusCode(),
		Type:      errorType(response.Body()),
		Body:      string(response.Body()),
	}
}

func gzipBytes(payload []byte) ([]byte, error) {
	var buffer bytes.Buffer

	writer := gzip.NewWriter(&buffer)
	if _, err := writer.Write(payload); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	return buffer.Bytes(), nil
}
