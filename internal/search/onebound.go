// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/pdiddy/source-retriever/internal/httputil"
	"github.com/pdiddy/source-retriever/pkg/types"
)

// oneBoundAPIURL is the OneBound WeChat article search endpoint. Declared as
// a var so tests can substitute an httptest server.
var oneBoundAPIURL = "https://api-gw.onebound.cn/weixin/item_search"

const maxOneBoundResponse = 8 << 20

var oneBoundFields = fieldPaths{
	Title:     []string{"title"},
	URL:       []string{"z_url", "url", "detail_url"},
	Snippet:   []string{"desc", "description", "title"},
	Published: []string{"publish_time", "publish_date"},
}

// OneBoundBackend queries the OneBound WeChat article search API.
type OneBoundBackend struct {
	Client     *http.Client
	APIKey     string
	APISecret  string
	UserAgent  string
	MaxRetries int
}

// Name returns the backend identifier.
func (b *OneBoundBackend) Name() string { return "onebound" }

// Tag returns the source tag of every OneBound candidate.
func (b *OneBoundBackend) Tag() types.SourceTag { return types.SourceWeChat }

// Search requests the first result page. OneBound has no page-size parameter,
// so count is not sent.
func (b *OneBoundBackend) Search(ctx context.Context, query string, _ int) ([]types.CandidateResult, error) {
	if b.APIKey == "" {
		return nil, fmt.Errorf("%w: onebound api key", ErrNotConfigured)
	}

	params := url.Values{
		"key":  {b.APIKey},
		"q":    {query},
		"page": {"1"},
	}
	if b.APISecret != "" {
		params.Set("secret", b.APISecret)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, oneBoundAPIURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if b.UserAgent != "" {
		req.Header.Set("User-Agent", b.UserAgent)
	}

	resp, err := httputil.DoWithRetry(ctx, b.Client, req, b.MaxRetries)
	if err != nil {
		// The request URL carries the key; report only the cause.
		return nil, fmt.Errorf("onebound request: %w", unwrapURLError(err))
	}
	defer resp.Body.Close()

	if !httputil.IsSuccess(resp.StatusCode) {
		return nil, fmt.Errorf("%w: onebound returned HTTP %d", ErrHTTPStatus, resp.StatusCode)
	}

	body, err := httputil.ReadLimited(resp.Body, maxOneBoundResponse)
	if err != nil {
		return nil, fmt.Errorf("reading onebound response: %w", err)
	}
	return parseOneBoundResponse(body)
}

// parseOneBoundResponse accepts {items:{item:[...]}}, {item:[...]} or
// {items:[...]}. A non-"0000" error_code is reported as ErrBackendError.
func parseOneBoundResponse(body []byte) ([]types.CandidateResult, error) {
	root, err := parseJSON(body)
	if err != nil {
		return nil, err
	}
	if code := root.Get("error_code").String(); code != "" && code != "0000" {
		return nil, fmt.Errorf("%w: onebound error_code %s: %s", ErrBackendError, code, root.Get("reason").String())
	}
	items, ok := firstArray(root, "items.item", "item", "items")
	if !ok {
		return nil, fmt.Errorf("%w: onebound response has no item list", ErrMalformedResponse)
	}
	return normalizeItems("onebound", types.SourceWeChat, items, oneBoundFields), nil
}

// unwrapURLError drops the *url.Error wrapper, whose message includes the
// full request URL.
func unwrapURLError(err error) error {
	if ue, ok := err.(*url.Error); ok {
		return ue.Err
	}
	return err
}
