// Package brapi is a client for the brapi.dev B3 market data API.
package brapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aristath/carteira/internal/utils"
	"github.com/rs/zerolog"
)

// DefaultBaseURL is the public brapi endpoint
const DefaultBaseURL = "https://brapi.dev/api"

// Client for brapi.dev
type Client struct {
	baseURL string
	token   string
	client  *http.Client
	log     zerolog.Logger
}

// NewClient creates a new brapi client. token may be empty; the free tier
// serves a small set of tickers without one.
func NewClient(baseURL, token string, log zerolog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: 10 * time.Second},
		log:     log.With().Str("client", "brapi").Logger(),
	}
}

// CashDividend is one declared distribution
type CashDividend struct {
	PaymentDate   time.Time `json:"paymentDate"`
	LastDatePrior time.Time `json:"lastDatePrior"`
	Label         string    `json:"label"`
	Rate          float64   `json:"rate"`
}

// ExDate is the first day the share trades without the dividend
func (d CashDividend) ExDate() time.Time {
	return utils.Day(d.LastDatePrior).AddDate(0, 0, 1)
}

// Profile is company classification metadata
type Profile struct {
	Sector   string `json:"sector"`
	Industry string `json:"industry"`
}

type quoteResult struct {
	SummaryProfile *Profile `json:"summaryProfile"`
	DividendsData  *struct {
		CashDividends []CashDividend `json:"cashDividends"`
	} `json:"dividendsData"`
	Symbol             string  `json:"symbol"`
	RegularMarketPrice float64 `json:"regularMarketPrice"`
}

type quoteResponse struct {
	Results []quoteResult `json:"results"`
	Error   bool          `json:"error"`
	Message string        `json:"message"`
}

// GetQuotes returns the regular market price of each ticker. Tickers the
// API does not know are absent from the map.
func (c *Client) GetQuotes(ctx context.Context, tickers []string) (map[string]float64, error) {
	prices := make(map[string]float64, len(tickers))
	if len(tickers) == 0 {
		return prices, nil
	}

	resp, err := c.quote(ctx, tickers, nil)
	if err != nil {
		return nil, err
	}
	for _, r := range resp.Results {
		if r.RegularMarketPrice > 0 {
			prices[utils.NormalizeTicker(r.Symbol)] = r.RegularMarketPrice
		}
	}

	c.log.Debug().
		Int("requested", len(tickers)).
		Int("priced", len(prices)).
		Msg("Fetched quotes")
	return prices, nil
}

// GetDividends returns the cash dividends declared for ticker
func (c *Client) GetDividends(ctx context.Context, ticker string) ([]CashDividend, error) {
	resp, err := c.quote(ctx, []string{ticker}, url.Values{"dividends": {"true"}})
	if err != nil {
		return nil, err
	}
	if len(resp.Results) == 0 || resp.Results[0].DividendsData == nil {
		return []CashDividend{}, nil
	}
	return resp.Results[0].DividendsData.CashDividends, nil
}

// GetProfile returns the sector and industry of ticker, or nil if unknown
func (c *Client) GetProfile(ctx context.Context, ticker string) (*Profile, error) {
	resp, err := c.quote(ctx, []string{ticker}, url.Values{"modules": {"summaryProfile"}})
	if err != nil {
		return nil, err
	}
	if len(resp.Results) == 0 || resp.Results[0].SummaryProfile == nil {
		return nil, nil
	}
	return resp.Results[0].SummaryProfile, nil
}

func (c *Client) quote(ctx context.Context, tickers []string, params url.Values) (*quoteResponse, error) {
	if params == nil {
		params = url.Values{}
	}
	if c.token != "" {
		params.Set("token", c.token)
	}

	endpoint := fmt.Sprintf("%s/quote/%s", c.baseURL, strings.Join(tickers, ","))
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	var body quoteResponse
	decodeErr := json.NewDecoder(resp.Body).Decode(&body)

	if resp.StatusCode != http.StatusOK {
		if decodeErr == nil && body.Message != "" {
			return nil, fmt.Errorf("API returned status %d: %s", resp.StatusCode, body.Message)
		}
		return nil, fmt.Errorf("API returned status %d", resp.StatusCode)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("failed to parse response: %w", decodeErr)
	}
	if body.Error {
		return nil, fmt.Errorf("API error: %s", body.Message)
	}
	return &body, nil
}
