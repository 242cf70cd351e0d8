// Package client is the Go client for the dax auction service.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/luxfi/dax/pkg/analytics"
	"github.com/luxfi/dax/pkg/auction"
	"github.com/luxfi/dax/pkg/ids"
	"github.com/luxfi/dax/pkg/registry"
	"github.com/luxfi/dax/pkg/settlement"
)

// Client talks to a dax server over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the server at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// APIError is the decoded error payload of a non-2xx response.
type APIError struct {
	StatusCode int    `json:"-"`
	Message    string `json:"error"`
	Category   string `json:"category"`
}

func (e *APIError) Error() string {
	if e.Category != "" {
		return fmt.Sprintf("%s (status %d, %s)", e.Message, e.StatusCode, e.Category)
	}
	return fmt.Sprintf("%s (status %d)", e.Message, e.StatusCode)
}

// Health checks server liveness.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, "GET", "/healthz", nil, nil)
}

// CreateAuction registers a new auction and returns its initial snapshot.
func (c *Client) CreateAuction(ctx context.Context, params registry.CreateParams) (*auction.Snapshot, error) {
	var snap auction.Snapshot
	if err := c.do(ctx, "POST", "/v1/auctions", params, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// GetAuction fetches the current snapshot of one auction.
func (c *Client) GetAuction(ctx context.Context, id ids.ID) (*auction.Snapshot, error) {
	var snap auction.Snapshot
	if err := c.do(ctx, "GET", "/v1/auctions/"+id.String(), nil, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// ListAuctions fetches snapshots of every known auction.
func (c *Client) ListAuctions(ctx context.Context) ([]auction.Snapshot, error) {
	var out struct {
		Auctions []auction.Snapshot `json:"auctions"`
	}
	if err := c.do(ctx, "GET", "/v1/auctions", nil, &out); err != nil {
		return nil, err
	}
	return out.Auctions, nil
}

// PriceQuote reports the current price of an auction.
type PriceQuote struct {
	AuctionID    ids.ID         `json:"auction_id"`
	Status       auction.Status `json:"status"`
	CurrentPrice uint64         `json:"current_price"`
	StartPrice   uint64         `json:"start_price"`
	MinimumPrice uint64         `json:"minimum_price"`
}

// GetPrice quotes the current price of an auction.
func (c *Client) GetPrice(ctx context.Context, id ids.ID) (*PriceQuote, error) {
	var quote PriceQuote
	if err := c.do(ctx, "GET", "/v1/auctions/"+id.String()+"/price", nil, &quote); err != nil {
		return nil, err
	}
	return &quote, nil
}

// Activate starts the price clock of an approved auction.
func (c *Client) Activate(ctx context.Context, id ids.ID) (*auction.Snapshot, error) {
	var snap auction.Snapshot
	if err := c.do(ctx, "POST", "/v1/auctions/"+id.String()+"/activate", nil, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// Purchase buys the item at the current price. The payment must cover the
// price; any overpayment is refunded in the settlement.
func (c *Client) Purchase(ctx context.Context, id, payer ids.ID, payment uint64) (*settlement.Receipt, error) {
	body := map[string]any{"payer": payer, "payment": payment}
	var receipt settlement.Receipt
	if err := c.do(ctx, "POST", "/v1/auctions/"+id.String()+"/purchase", body, &receipt); err != nil {
		return nil, err
	}
	return &receipt, nil
}

// ExpireResult reports the outcome of an expiry check.
type ExpireResult struct {
	AuctionID ids.ID         `json:"auction_id"`
	Expired   bool           `json:"expired"`
	Status    auction.Status `json:"status"`
}

// Expire asks the server to check one auction's deadline.
func (c *Client) Expire(ctx context.Context, id ids.ID) (*ExpireResult, error) {
	var out ExpireResult
	if err := c.do(ctx, "POST", "/v1/auctions/"+id.String()+"/expire", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Approve marks an auction sellable. Only the platform owner may call it.
func (c *Client) Approve(ctx context.Context, caller, id ids.ID) error {
	body := map[string]any{"caller": caller}
	return c.do(ctx, "POST", "/v1/admin/approve/"+id.String(), body, nil)
}

// Withdrawal reports a completed fee withdrawal.
type Withdrawal struct {
	Entry  string `json:"entry"`
	Amount uint64 `json:"amount"`
}

// WithdrawFees moves accrued platform fees to a payout account. A zero
// amount withdraws the full balance.
func (c *Client) WithdrawFees(ctx context.Context, caller, to ids.ID, amount uint64) (*Withdrawal, error) {
	body := map[string]any{"caller": caller, "to": to, "amount": amount}
	var out Withdrawal
	if err := c.do(ctx, "POST", "/v1/admin/withdraw", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// StatsReport bundles sales analytics with the undistributed fee balance.
type StatsReport struct {
	Sales       analytics.Stats `json:"sales"`
	FeesAccrued uint64          `json:"fees_accrued"`
}

// Stats fetches platform sales analytics.
func (c *Client) Stats(ctx context.Context) (*StatsReport, error) {
	var out StatsReport
	if err := c.do(ctx, "GET", "/v1/stats", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PutDescriptor stores an item descriptor document and returns its hash.
func (c *Client) PutDescriptor(ctx context.Context, doc []byte) (ids.ID, error) {
	req, err := http.NewRequestWithContext(ctx, "PUT", c.baseURL+"/v1/descriptors", bytes.NewReader(doc))
	if err != nil {
		return ids.Empty, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ids.Empty, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return ids.Empty, decodeError(resp)
	}
	var out struct {
		Hash ids.ID `json:"hash"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return ids.Empty, err
	}
	return out.Hash, nil
}

// GetDescriptor fetches a stored descriptor document by hash.
func (c *Client) GetDescriptor(ctx context.Context, hash ids.ID) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/v1/descriptors/"+hash.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, decodeError(resp)
	}
	return io.ReadAll(resp.Body)
}

// Account reports a ledger balance.
type Account struct {
	Account ids.ID `json:"account"`
	Balance uint64 `json:"balance"`
}

// Deposit credits an account and returns the new balance.
func (c *Client) Deposit(ctx context.Context, account ids.ID, amount uint64, memo string) (*Account, error) {
	body := map[string]any{"amount": amount, "memo": memo}
	var out Account
	if err := c.do(ctx, "POST", "/v1/accounts/"+account.String()+"/deposit", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetAccount fetches an account balance.
func (c *Client) GetAccount(ctx context.Context, account ids.ID) (*Account, error) {
	var out Account
	if err := c.do(ctx, "GET", "/v1/accounts/"+account.String(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// StreamedEvent is one lifecycle event from the event stream. Fields past
// the shared three are set only for the event types that carry them.
type StreamedEvent struct {
	Type       auction.EventType `json:"type"`
	AuctionID  ids.ID            `json:"auction_id"`
	Timestamp  time.Time         `json:"timestamp"`
	StartTime  time.Time         `json:"start_time"`
	Winner     ids.ID            `json:"winner"`
	FinalPrice uint64            `json:"final_price"`
}

// EventStream is a live websocket subscription to auction lifecycle
// events.
type EventStream struct {
	conn *websocket.Conn
}

// StreamEvents opens the event stream.
func (c *Client) StreamEvents(ctx context.Context) (*EventStream, error) {
	wsURL := "ws" + strings.TrimPrefix(c.baseURL, "http") + "/v1/events"
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return nil, err
	}
	return &EventStream{conn: conn}, nil
}

// SetReadDeadline bounds how long Next may block.
func (s *EventStream) SetReadDeadline(t time.Time) error {
	return s.conn.SetReadDeadline(t)
}

// Next blocks until the next event arrives or the stream closes.
func (s *EventStream) Next() (*StreamedEvent, error) {
	_, raw, err := s.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	var event StreamedEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		return nil, err
	}
	return &event, nil
}

// Close tears down the stream.
func (s *EventStream) Close() error {
	return s.conn.Close()
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	if err := json.NewDecoder(resp.Body).Decode(apiErr); err != nil || apiErr.Message == "" {
		apiErr.Message = resp.Status
	}
	return apiErr
}
