package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"wallet-risk-monitor/internal/core/domain"
	"wallet-risk-monitor/internal/core/ports"
	"wallet-risk-monitor/pkg/apperror"
)

const defaultPageSize = 100

// HTTPClient interface for testability.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPAdapter reads a wallet's transactions from an indexer exposing
//
//	GET {endpoint}/v1/addresses/{address}/transactions?after_block=&after_index=&limit=
//
// The response is {"transactions": [...], "next": {"block": n, "index": n}}.
type HTTPAdapter struct {
	chain    string
	endpoint string
	pageSize int
	timeout  time.Duration
	client   HTTPClient
}

// NewHTTPAdapter creates an adapter for one chain.
func NewHTTPAdapter(chain, endpoint string, pageSize int, timeout time.Duration, client HTTPClient) *HTTPAdapter {
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	return &HTTPAdapter{
		chain:    chain,
		endpoint: strings.TrimRight(endpoint, "/"),
		pageSize: pageSize,
		timeout:  timeout,
		client:   client,
	}
}

type fetchResponse struct {
	Transactions []domain.RawTransaction `json:"transactions"`
	Next         *domain.Position        `json:"next"`
}

// Fetch returns the next page strictly after cursor.
func (a *HTTPAdapter) Fetch(ctx context.Context, wallet *domain.Wallet, cursor *domain.Cursor) (*ports.FetchResult, error) {
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.url(wallet.Address, cursor), nil)
	if err != nil {
		return nil, apperror.ErrPermanentUnitFailure(fmt.Sprintf("build %s request: %v", a.chain, err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, apperror.ErrAdapterUnavailable(fmt.Errorf("%s indexer: %w", a.chain, err))
	}
	defer resp.Body.Close()

	if err := classifyStatus(a.chain, resp); err != nil {
		return nil, err
	}

	var body fetchResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, apperror.ErrAdapterUnavailable(fmt.Errorf("%s indexer: decode response: %w", a.chain, err))
	}
	return page(cursor, body), nil
}

func (a *HTTPAdapter) url(address string, cursor *domain.Cursor) string {
	q := url.Values{}
	if cursor != nil {
		q.Set("after_block", strconv.FormatInt(cursor.LastBlock, 10))
		q.Set("after_index", strconv.FormatInt(cursor.LastIndex, 10))
	}
	q.Set("limit", strconv.Itoa(a.pageSize))
	return fmt.Sprintf("%s/v1/addresses/%s/transactions?%s", a.endpoint, url.PathEscape(address), q.Encode())
}

func classifyStatus(chain string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	cause := fmt.Errorf("%s indexer: status %d: %s", chain, resp.StatusCode, strings.TrimSpace(string(snippet)))

	switch {
	case resp.StatusCode == http.StatusConflict, resp.StatusCode == http.StatusGone:
		return apperror.ErrInvalidCursor(cause)
	case resp.StatusCode >= 500,
		resp.StatusCode == http.StatusRequestTimeout,
		resp.StatusCode == http.StatusTooManyRequests:
		return apperror.ErrAdapterUnavailable(cause)
	default:
		return apperror.ErrPermanentUnitFailure(cause.Error())
	}
}

// page drops records at or before the cursor, which some indexers replay
// on the boundary block, and fills in Next when the indexer omits it.
func page(cursor *domain.Cursor, body fetchResponse) *ports.FetchResult {
	out := &ports.FetchResult{Transactions: make([]domain.RawTransaction, 0, len(body.Transactions))}
	for _, raw := range body.Transactions {
		if !cursor.Advances(raw.Position()) {
			continue
		}
		out.Transactions = append(out.Transactions, raw)
	}
	out.Next = body.Next
	if out.Next == nil && len(out.Transactions) > 0 {
		last := out.Transactions[len(out.Transactions)-1].Position()
		out.Next = &last
	}
	return out
}
