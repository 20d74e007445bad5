package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ZilDuck/nft-marketplace/internal/api"
	"github.com/ZilDuck/nft-marketplace/internal/entity"
	"github.com/ZilDuck/nft-marketplace/internal/marketplace"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/holiman/uint256"
	"go.uber.org/zap"
)

// Error is a non-2xx answer from the marketplace API. It matches the marketplace error kinds
// with errors.Is.
type Error struct {
	Status   int
	Response api.ErrorResponse
}

func (e *Error) Error() string {
	return fmt.Sprintf("%d %s: %s", e.Status, e.Response.Error, e.Response.Message)
}

func (e *Error) Is(target error) bool {
	kind := marketplace.Kind(target)
	return kind != "" && kind == e.Response.Error
}

// Client talks to a marketplace daemon. Writes are sent on behalf of Caller.
type Client struct {
	url        string
	caller     entity.Principal
	httpClient *retryablehttp.Client
	debug      bool
}

func NewClient(baseUrl string, timeout int, debug bool) (*Client, error) {
	if len(baseUrl) == 0 {
		return nil, errors.New("bad call missing argument host")
	}

	retryClient := retryablehttp.NewClient()
	retryClient.Logger = nil
	retryClient.RetryMax = 3
	retryClient.RetryWaitMin = 100 * time.Millisecond
	retryClient.HTTPClient.Timeout = time.Duration(timeout) * time.Second
	retryClient.CheckRetry = retryPolicy

	return &Client{
		url:        strings.TrimSuffix(baseUrl, "/"),
		httpClient: retryClient,
		debug:      debug,
	}, nil
}

// retryPolicy only retries requests the daemon never executed. Marketplace writes are not
// idempotent, so a 5xx answer from a handler is final.
func retryPolicy(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil {
		return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
	}

	return resp.StatusCode == http.StatusServiceUnavailable, nil
}

// As returns a copy of the client acting for caller.
func (c *Client) As(caller entity.Principal) *Client {
	clone := *c
	clone.caller = caller

	return &clone
}

func (c *Client) Caller() entity.Principal {
	return c.caller
}

func (c *Client) Marketplace(ctx context.Context) (entity.Principal, error) {
	var resp api.MarketplaceResponse
	err := c.call(ctx, "GET", "/marketplace", nil, &resp)

	return resp.Address, err
}

func (c *Client) Mint(ctx context.Context, collection, to entity.Principal) (*uint256.Int, error) {
	var resp api.MintResponse
	req := api.MintRequest{}
	if to != entity.ZeroPrincipal {
		req.To = to.Hex()
	}
	if err := c.call(ctx, "POST", collectionPath(collection)+"/tokens", req, &resp); err != nil {
		return nil, err
	}

	return entity.ParseValue(resp.TokenId)
}

func (c *Client) Approve(ctx context.Context, collection entity.Principal, tokenId *uint256.Int, operator entity.Principal) error {
	return c.call(ctx, "POST", tokenPath(collection, tokenId)+"/approve", api.ApproveRequest{Operator: operator.Hex()}, nil)
}

func (c *Client) SetApprovalForAll(ctx context.Context, collection, operator entity.Principal, approved bool) error {
	return c.call(ctx, "POST", collectionPath(collection)+"/operators", api.OperatorRequest{Operator: operator.Hex(), Approved: approved}, nil)
}

func (c *Client) OwnerOf(ctx context.Context, collection entity.Principal, tokenId *uint256.Int) (entity.Principal, error) {
	var resp api.OwnerResponse
	err := c.call(ctx, "GET", tokenPath(collection, tokenId)+"/owner", nil, &resp)

	return resp.Owner, err
}

func (c *Client) ListItem(ctx context.Context, collection entity.Principal, tokenId, price *uint256.Int) error {
	return c.call(ctx, "POST", listingPath(collection, tokenId), api.PriceRequest{Price: price.Dec()}, nil)
}

func (c *Client) UpdateListing(ctx context.Context, collection entity.Principal, tokenId, price *uint256.Int) error {
	return c.call(ctx, "PUT", listingPath(collection, tokenId), api.PriceRequest{Price: price.Dec()}, nil)
}

func (c *Client) DeleteListing(ctx context.Context, collection entity.Principal, tokenId *uint256.Int) error {
	return c.call(ctx, "DELETE", listingPath(collection, tokenId), nil, nil)
}

func (c *Client) BuyItem(ctx context.Context, collection entity.Principal, tokenId, value *uint256.Int) error {
	return c.call(ctx, "POST", listingPath(collection, tokenId)+"/buy", api.BuyRequest{Value: entity.ValueString(value)}, nil)
}

func (c *Client) GetListing(ctx context.Context, collection entity.Principal, tokenId *uint256.Int) (entity.Listing, error) {
	listing := entity.EmptyListing()
	err := c.call(ctx, "GET", listingPath(collection, tokenId), nil, &listing)

	return listing, err
}

func (c *Client) WithdrawProceeds(ctx context.Context) error {
	return c.call(ctx, "POST", "/proceeds/withdraw", nil, nil)
}

func (c *Client) GetProceeds(ctx context.Context, principal entity.Principal) (*uint256.Int, error) {
	var resp api.ProceedsResponse
	if err := c.call(ctx, "GET", "/proceeds/"+principal.Hex(), nil, &resp); err != nil {
		return nil, err
	}

	return entity.ParseValue(resp.Proceeds)
}

func (c *Client) Fund(ctx context.Context, principal entity.Principal, amount *uint256.Int) error {
	return c.call(ctx, "POST", "/accounts/"+principal.Hex()+"/fund", api.FundRequest{Amount: amount.Dec()}, nil)
}

func (c *Client) BalanceOf(ctx context.Context, principal entity.Principal) (*uint256.Int, error) {
	var resp api.BalanceResponse
	if err := c.call(ctx, "GET", "/accounts/"+principal.Hex()+"/balance", nil, &resp); err != nil {
		return nil, err
	}

	return entity.ParseValue(resp.Balance)
}

func (c *Client) Events(ctx context.Context, since uint64) ([]entity.Event, error) {
	events := make([]entity.Event, 0)
	query := url.Values{"since": []string{strconv.FormatUint(since, 10)}}
	err := c.call(ctx, "GET", "/events?"+query.Encode(), nil, &events)

	return events, err
}

// History returns the indexed actions of a token, oldest first. Only served when the daemon
// runs with Elasticsearch.
func (c *Client) History(ctx context.Context, collection entity.Principal, tokenId *uint256.Int) ([]entity.MarketplaceAction, error) {
	actions := make([]entity.MarketplaceAction, 0)
	err := c.call(ctx, "GET", listingPath(collection, tokenId)+"/history", nil, &actions)

	return actions, err
}

func (c *Client) CollectionListings(ctx context.Context, collection entity.Principal, status entity.ListingStatus) ([]entity.MarketplaceListing, error) {
	listings := make([]entity.MarketplaceListing, 0)
	path := collectionPath(collection) + "/listings"
	if status != "" {
		path += "?" + url.Values{"status": []string{string(status)}}.Encode()
	}
	err := c.call(ctx, "GET", path, nil, &listings)

	return listings, err
}

func (c *Client) call(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var payload io.Reader
	if body != nil {
		payloadBuffer := &bytes.Buffer{}
		if err := json.NewEncoder(payloadBuffer).Encode(body); err != nil {
			return err
		}
		if c.debug {
			zap.L().With(zap.String("request", payloadBuffer.String())).Debug("Client: Request body")
		}
		payload = payloadBuffer
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.url+path, payload)
	if err != nil {
		return err
	}
	req.Header.Add("Content-Type", "application/json;charset=utf-8")
	req.Header.Add("Accept", "application/json")
	if c.caller != entity.ZeroPrincipal {
		req.Header.Add(api.CallerHeader, c.caller.Hex())
	}

	zap.L().With(zap.String("method", method), zap.String("path", path)).Debug("Client: Request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		zap.L().With(zap.Error(err)).Warn("Client: Request failure")
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if c.debug {
		zap.L().With(zap.Int("status", resp.StatusCode), zap.String("response", string(data))).Debug("Client: Response")
	}

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &Error{Status: resp.StatusCode}
		if err := json.Unmarshal(data, &apiErr.Response); err != nil {
			apiErr.Response = api.ErrorResponse{Error: http.StatusText(resp.StatusCode), Message: string(data)}
		}
		return apiErr
	}

	if out == nil {
		return nil
	}

	return json.Unmarshal(data, out)
}

func collectionPath(collection entity.Principal) string {
	return "/collections/" + collection.Hex()
}

func tokenPath(collection entity.Principal, tokenId *uint256.Int) string {
	return collectionPath(collection) + "/tokens/" + tokenId.Dec()
}

func listingPath(collection entity.Principal, tokenId *uint256.Int) string {
	return "/listings/" + collection.Hex() + "/" + tokenId.Dec()
}
