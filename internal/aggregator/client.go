package aggregator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Client is the routing collaborator contract. Quote returns (nil, nil) when
// the aggregator knows no route for the pair.
type Client interface {
	Quote(ctx context.Context, inputMint, outputMint string, amountRaw *big.Int, slippageBps int) (*Quote, error)
	Swap(ctx context.Context, quote *Quote, userPublicKey string, priorityFeeLamports int64) (*SwapResponse, error)
}

const (
	defaultTimeout = 15 * time.Second
	maxAttempts    = 3
	baseBackoff    = 300 * time.Millisecond
)

// HTTPClient implements Client against a Jupiter-style HTTP API.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient creates an aggregator client for the given base URL.
func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: defaultTimeout},
	}
}

// Quote requests a route for swapping amountRaw of inputMint into outputMint.
func (c *HTTPClient) Quote(ctx context.Context, inputMint, outputMint string, amountRaw *big.Int, slippageBps int) (*Quote, error) {
	q := url.Values{}
	q.Set("inputMint", inputMint)
	q.Set("outputMint", outputMint)
	q.Set("amount", amountRaw.String())
	q.Set("slippageBps", strconv.Itoa(slippageBps))

	body, status, err := c.get(ctx, "/quote?"+q.Encode())
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound || status == http.StatusBadRequest {
		// No route for this pair
		return nil, nil
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("quote status %d: %s", status, string(body))
	}

	var quote Quote
	if err := json.Unmarshal(body, &quote); err != nil {
		return nil, fmt.Errorf("unmarshal quote: %w", err)
	}
	if quote.OutAmount == "" || quote.OutAmount == "0" {
		return nil, nil
	}
	return &quote, nil
}

// Swap requests an unsigned transaction built from a previously fetched
// quote. The quote is passed through verbatim, never re-fetched.
func (c *HTTPClient) Swap(ctx context.Context, quote *Quote, userPublicKey string, priorityFeeLamports int64) (*SwapResponse, error) {
	reqBody, err := json.Marshal(swapRequest{
		QuoteResponse:             quote,
		UserPublicKey:             userPublicKey,
		WrapAndUnwrapSol:          true,
		PrioritizationFeeLamports: priorityFeeLamports,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal swap request: %w", err)
	}

	body, status, err := c.post(ctx, "/swap", reqBody)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("swap status %d: %s", status, string(body))
	}

	var resp SwapResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal swap response: %w", err)
	}
	if resp.SwapTransaction == "" {
		return nil, fmt.Errorf("swap response missing transaction")
	}
	return &resp, nil
}

func (c *HTTPClient) get(ctx context.Context, path string) ([]byte, int, error) {
	return c.do(ctx, http.MethodGet, path, nil)
}

func (c *HTTPClient) post(ctx context.Context, path string, body []byte) ([]byte, int, error) {
	return c.do(ctx, http.MethodPost, path, body)
}

// do performs the request with bounded retries on transport errors and 429.
// HTTP-level answers (including 4xx) are returned to the caller.
func (c *HTTPClient) do(ctx context.Context, method, path string, body []byte) ([]byte, int, error) {
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return nil, 0, ctx.Err()
			case <-time.After(baseBackoff * time.Duration(attempt)):
			}
		}

		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return nil, 0, fmt.Errorf("create request: %w", err)
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("http request: %w", err)
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("status %d: %s", resp.StatusCode, string(respBody))
			continue
		}

		return respBody, resp.StatusCode, nil
	}

	return nil, 0, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// OutAmountRaw parses the quote's output amount into a big integer.
func (q *Quote) OutAmountRaw() (*big.Int, bool) {
	return new(big.Int).SetString(q.OutAmount, 10)
}

// PriceImpactBps converts the quote's fractional price impact into basis
// points. A quote reporting "0.015" yields 150.
func (q *Quote) PriceImpactBps() int {
	f, err := strconv.ParseFloat(q.PriceImpactPct, 64)
	if err != nil {
		return 0
	}
	return int(f * 10_000)
}
