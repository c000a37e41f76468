package notion

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jomei/notionapi"
	"golang.org/x/time/rate"
)

// pageSize is the largest page the Notion API returns for paginated endpoints.
const pageSize = 100

// blockAPI is the subset of notionapi.BlockService the client needs.
type blockAPI interface {
	GetChildren(ctx context.Context, id notionapi.BlockID, pagination *notionapi.Pagination) (*notionapi.GetChildrenResponse, error)
}

// databaseAPI is the subset of notionapi.DatabaseService the client needs.
type databaseAPI interface {
	Query(ctx context.Context, id notionapi.DatabaseID, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error)
}

// userAPI is the subset of notionapi.UserService the client needs.
type userAPI interface {
	Me(ctx context.Context) (*notionapi.User, error)
}

// QueryParams narrows and orders a database query.
type QueryParams struct {
	Filter notionapi.Filter
	Sorts  []notionapi.SortObject
}

// Client wraps the Notion API client with request pacing, retries on
// rate-limit responses, and cursor pagination.
type Client struct {
	blocks   blockAPI
	database databaseAPI
	users    userAPI
	limiter  *rate.Limiter
	retry    RetryPolicy
	logger   *slog.Logger
	observer RetryObserver

	httpClient *http.Client
}

// RetryObserver is told about every backoff between attempts.
type RetryObserver interface {
	APIRetried()
}

// ClientOption configures the client.
type ClientOption func(*Client)

// WithRetryPolicy overrides the default rate-limit retry policy.
func WithRetryPolicy(p RetryPolicy) ClientOption {
	return func(c *Client) {
		c.retry = p
	}
}

// WithLimiter overrides the request pacing limiter.
func WithLimiter(l *rate.Limiter) ClientOption {
	return func(c *Client) {
		c.limiter = l
	}
}

// WithRetryObserver reports each retry to o.
func WithRetryObserver(o RetryObserver) ClientOption {
	return func(c *Client) {
		c.observer = o
	}
}

// WithHTTPClient sets the HTTP client used for API requests.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient creates a Notion client authenticated with token.
// notionapi's own 429 loop is limited to a single request so that the
// client's RetryPolicy is the only retry schedule.
func NewClient(token string, logger *slog.Logger, opts ...ClientOption) *Client {
	c := newClient(nil, nil, nil, logger, opts...)

	apiOpts := []notionapi.ClientOption{notionapi.WithRetry(1)}
	if c.httpClient != nil {
		apiOpts = append(apiOpts, notionapi.WithHTTPClient(c.httpClient))
	}
	api := notionapi.NewClient(notionapi.Token(token), apiOpts...)
	c.blocks, c.database, c.users = api.Block, api.Database, api.User
	return c
}

func newClient(blocks blockAPI, database databaseAPI, users userAPI, logger *slog.Logger, opts ...ClientOption) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	c := &Client{
		blocks:   blocks,
		database: database,
		users:    users,
		limiter:  DefaultLimiter(),
		retry:    DefaultRetryPolicy(),
		logger:   logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// policy returns the retry policy with client-level logging attached.
func (c *Client) policy(op, id string) RetryPolicy {
	p := c.retry
	next := p.OnRetry
	p.OnRetry = func(err error, wait time.Duration) {
		c.logger.Warn("rate limited by Notion API, backing off",
			"op", op,
			"id", id,
			"wait", wait,
			"error", err,
		)
		if c.observer != nil {
			c.observer.APIRetried()
		}
		if next != nil {
			next(err, wait)
		}
	}
	return p
}

// EachChild walks every page of a block's children, calling fn once per API
// response in order. It stops at the first error from the API or from fn.
func (c *Client) EachChild(ctx context.Context, blockID string, fn func([]notionapi.Block) error) error {
	var cursor notionapi.Cursor
	policy := c.policy("list_children", blockID)

	for {
		pagination := &notionapi.Pagination{
			StartCursor: cursor,
			PageSize:    pageSize,
		}

		resp, err := Retry(ctx, policy, func() (*notionapi.GetChildrenResponse, error) {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, err
			}
			c.logger.Debug("fetching block children", "block_id", blockID, "cursor", cursor)
			return c.blocks.GetChildren(ctx, notionapi.BlockID(blockID), pagination)
		})
		if err != nil {
			return fmt.Errorf("listing children of %s: %w", blockID, err)
		}

		if err := fn(resp.Results); err != nil {
			return err
		}

		if !resp.HasMore || resp.NextCursor == "" {
			return nil
		}
		cursor = notionapi.Cursor(resp.NextCursor)
	}
}

// ListChildren retrieves all direct child blocks of a block.
func (c *Client) ListChildren(ctx context.Context, blockID string) ([]notionapi.Block, error) {
	var all []notionapi.Block
	err := c.EachChild(ctx, blockID, func(batch []notionapi.Block) error {
		all = append(all, batch...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return all, nil
}

// EachPage walks every page of database query results, calling fn once per
// API response in order.
func (c *Client) EachPage(ctx context.Context, databaseID string, params QueryParams, fn func([]notionapi.Page) error) error {
	var cursor notionapi.Cursor
	policy := c.policy("query_database", databaseID)

	for {
		req := &notionapi.DatabaseQueryRequest{
			Filter:      params.Filter,
			Sorts:       params.Sorts,
			StartCursor: cursor,
			PageSize:    pageSize,
		}

		resp, err := Retry(ctx, policy, func() (*notionapi.DatabaseQueryResponse, error) {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, err
			}
			c.logger.Debug("querying database", "database_id", databaseID, "cursor", cursor)
			return c.database.Query(ctx, notionapi.DatabaseID(databaseID), req)
		})
		if err != nil {
			return fmt.Errorf("querying database %s: %w", databaseID, err)
		}

		if err := fn(resp.Results); err != nil {
			return err
		}

		if !resp.HasMore || resp.NextCursor == "" {
			return nil
		}
		cursor = notionapi.Cursor(resp.NextCursor)
	}
}

// QueryDatabase retrieves every page matching params.
func (c *Client) QueryDatabase(ctx context.Context, databaseID string, params QueryParams) ([]notionapi.Page, error) {
	var all []notionapi.Page
	err := c.EachPage(ctx, databaseID, params, func(batch []notionapi.Page) error {
		all = append(all, batch...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return all, nil
}

// GetCurrentUser retrieves the bot user behind the token.
// Useful for validating the token.
func (c *Client) GetCurrentUser(ctx context.Context) (*notionapi.User, error) {
	return Retry(ctx, c.policy("me", ""), func() (*notionapi.User, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		c.logger.Debug("fetching current user")
		return c.users.Me(ctx)
	})
}
