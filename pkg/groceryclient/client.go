package groceryclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"groceryapp/pkg/domain"
)

const apiPrefix = "/api/v1"

// Client calls the grocery API with a GitHub bearer credential.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// APIError represents an error response from the API.
type APIError struct {
	Status    int
	Message   string
	Code      string
	RequestID string
}

func (e *APIError) Error() string {
	return e.Message
}

// NewClient constructs a client that sends token as the bearer credential.
func NewClient(baseURL, token string) *Client {
	base := &http.Client{Timeout: 10 * time.Second}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"})),
	}
}

// Page is one page of a paginated listing.
type Page[T any] struct {
	Data []T             `json:"data"`
	Meta domain.PageMeta `json:"meta"`
}

// Resource is the CRUD surface shared by shopping lists and grocery items.
type Resource[T any] struct {
	c    *Client
	path string
	// wrapped resources answer single-object calls as {"data": ...}.
	wrapped bool
}

func (c *Client) ShoppingLists() Resource[domain.ShoppingList] {
	return Resource[domain.ShoppingList]{c: c, path: apiPrefix + "/shopping-lists"}
}

func (c *Client) Items() Resource[domain.GroceryItem] {
	return Resource[domain.GroceryItem]{c: c, path: apiPrefix + "/grocery", wrapped: true}
}

func (r Resource[T]) List(ctx context.Context, query url.Values) (Page[T], error) {
	var page Page[T]
	err := r.c.doJSON(ctx, http.MethodGet, withQuery(r.path, query), nil, &page)
	return page, err
}

func (r Resource[T]) Get(ctx context.Context, id string) (T, error) {
	return r.one(ctx, http.MethodGet, r.path+"/"+url.PathEscape(id), nil)
}

func (r Resource[T]) Create(ctx context.Context, body any) (T, error) {
	return r.one(ctx, http.MethodPost, r.path, body)
}

// Update sends a partial update.
func (r Resource[T]) Update(ctx context.Context, id string, body any) (T, error) {
	return r.one(ctx, http.MethodPatch, r.path+"/"+url.PathEscape(id), body)
}

// Replace sends a full update.
func (r Resource[T]) Replace(ctx context.Context, id string, body any) (T, error) {
	return r.one(ctx, http.MethodPut, r.path+"/"+url.PathEscape(id), body)
}

func (r Resource[T]) Delete(ctx context.Context, id string) error {
	return r.c.doJSON(ctx, http.MethodDelete, r.path+"/"+url.PathEscape(id), nil, nil)
}

func (r Resource[T]) one(ctx context.Context, method, path string, body any) (T, error) {
	if !r.wrapped {
		var out T
		err := r.c.doJSON(ctx, method, path, body, &out)
		return out, err
	}
	var out struct {
		Data T `json:"data"`
	}
	err := r.c.doJSON(ctx, method, path, body, &out)
	return out.Data, err
}

// BulkStatusResult is the outcome of a bulk status update.
type BulkStatusResult struct {
	Message string   `json:"message"`
	Count   int      `json:"count"`
	IDs     []string `json:"updatedIds"`
}

// ItemHistory returns one page of an item's status history, newest first.
func (c *Client) ItemHistory(ctx context.Context, id string, page, limit int) (Page[domain.GroceryItemHistory], error) {
	q := url.Values{}
	if page > 0 {
		q.Set("page", fmt.Sprint(page))
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	var out Page[domain.GroceryItemHistory]
	err := c.doJSON(ctx, http.MethodGet, withQuery(apiPrefix+"/grocery/"+url.PathEscape(id)+"/history", q), nil, &out)
	return out, err
}

// BulkUpdateStatus sets status on every item in ids.
func (c *Client) BulkUpdateStatus(ctx context.Context, ids []string, status domain.ItemStatus) (BulkStatusResult, error) {
	var out BulkStatusResult
	body := map[string]any{"ids": ids, "status": status}
	err := c.doJSON(ctx, http.MethodPost, apiPrefix+"/grocery/bulk-update-status", body, &out)
	return out, err
}

// DeleteItems removes every item in ids, or none of them.
func (c *Client) DeleteItems(ctx context.Context, ids []string) error {
	return c.doJSON(ctx, http.MethodDelete, apiPrefix+"/grocery/bulk", map[string]any{"ids": ids}, nil)
}

// DeleteRanOut removes the RANOUT items of a list and returns how many went.
func (c *Client) DeleteRanOut(ctx context.Context, shoppingListID string) (int64, error) {
	var out struct {
		Count int64 `json:"count"`
	}
	q := url.Values{"shoppingListId": {shoppingListID}}
	err := c.doJSON(ctx, http.MethodDelete, withQuery(apiPrefix+"/grocery/runout", q), nil, &out)
	return out.Count, err
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
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
	if resp.StatusCode >= 400 {
		var errResp struct {
			Error     string `json:"error"`
			Code      string `json:"code"`
			RequestID string `json:"requestId"`
		}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&errResp)
		msg := errResp.Error
		if msg == "" {
			msg = resp.Status
		}
		return &APIError{
			Status:    resp.StatusCode,
			Message:   msg,
			Code:      strings.TrimSpace(errResp.Code),
			RequestID: errResp.RequestID,
		}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func withQuery(path string, q url.Values) string {
	if len(q) == 0 {
		return path
	}
	return path + "?" + q.Encode()
}
