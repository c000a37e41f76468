package notion

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/jomei/notionapi"
	"golang.org/x/time/rate"
)

// fakeBlocks serves canned GetChildren responses keyed by start cursor.
type fakeBlocks struct {
	pages   map[string]*notionapi.GetChildrenResponse
	errs    []error // returned in order before any page is served
	calls   int
	cursors []string
}

func (f *fakeBlocks) GetChildren(_ context.Context, _ notionapi.BlockID, p *notionapi.Pagination) (*notionapi.GetChildrenResponse, error) {
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return nil, err
	}
	cursor := string(p.StartCursor)
	f.cursors = append(f.cursors, cursor)
	return f.pages[cursor], nil
}

// fakeDatabase serves canned query responses keyed by start cursor.
type fakeDatabase struct {
	pages map[string]*notionapi.DatabaseQueryResponse
	err   error
	calls int
}

func (f *fakeDatabase) Query(_ context.Context, _ notionapi.DatabaseID, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.pages[string(req.StartCursor)], nil
}

func testPolicy() RetryPolicy {
	p := DefaultRetryPolicy()
	p.BaseDelay = time.Millisecond
	p.MaxDelay = 4 * time.Millisecond
	return p
}

func newTestClient(blocks blockAPI, db databaseAPI) *Client {
	return newClient(blocks, db, nil, nil,
		WithLimiter(rate.NewLimiter(rate.Inf, 1)),
		WithRetryPolicy(testPolicy()),
	)
}

func paragraph(id string) notionapi.Block {
	return &notionapi.ParagraphBlock{
		BasicBlock: notionapi.BasicBlock{
			Object: "block",
			ID:     notionapi.BlockID(id),
			Type:   notionapi.BlockTypeParagraph,
		},
	}
}

var rateLimitErr = &notionapi.Error{
	Status:  http.StatusTooManyRequests,
	Code:    "rate_limited",
	Message: "You have been rate limited.",
}

func TestListChildren_Paginates(t *testing.T) {
	blocks := &fakeBlocks{
		pages: map[string]*notionapi.GetChildrenResponse{
			"": {
				Results:    []notionapi.Block{paragraph("a"), paragraph("b")},
				HasMore:    true,
				NextCursor: "cursor-2",
			},
			"cursor-2": {
				Results: []notionapi.Block{paragraph("c")},
				HasMore: false,
			},
		},
	}
	client := newTestClient(blocks, nil)

	got, err := client.ListChildren(context.Background(), "root")
	if err != nil {
		t.Fatalf("ListChildren() error = %v", err)
	}

	if len(got) != 3 {
		t.Fatalf("expected 3 blocks, got %d", len(got))
	}
	for i, want := range []string{"a", "b", "c"} {
		if string(got[i].GetID()) != want {
			t.Errorf("block %d: got id %q, want %q", i, got[i].GetID(), want)
		}
	}
	if len(blocks.cursors) != 2 || blocks.cursors[1] != "cursor-2" {
		t.Errorf("unexpected cursor sequence: %v", blocks.cursors)
	}
}

func TestListChildren_StopsWithoutCursor(t *testing.T) {
	blocks := &fakeBlocks{
		pages: map[string]*notionapi.GetChildrenResponse{
			"": {
				Results: []notionapi.Block{paragraph("a")},
				HasMore: true,
			},
		},
	}
	client := newTestClient(blocks, nil)

	got, err := client.ListChildren(context.Background(), "root")
	if err != nil {
		t.Fatalf("ListChildren() error = %v", err)
	}
	if len(got) != 1 {
		t.Errorf("expected 1 block, got %d", len(got))
	}
	if blocks.calls != 1 {
		t.Errorf("expected 1 call, got %d", blocks.calls)
	}
}

func TestListChildren_RetriesRateLimit(t *testing.T) {
	blocks := &fakeBlocks{
		errs: []error{rateLimitErr, rateLimitErr},
		pages: map[string]*notionapi.GetChildrenResponse{
			"": {Results: []notionapi.Block{paragraph("a")}},
		},
	}
	client := newTestClient(blocks, nil)

	got, err := client.ListChildren(context.Background(), "root")
	if err != nil {
		t.Fatalf("ListChildren() error = %v", err)
	}
	if len(got) != 1 {
		t.Errorf("expected 1 block, got %d", len(got))
	}
	if blocks.calls != 3 {
		t.Errorf("expected 3 calls (2 throttled + 1 success), got %d", blocks.calls)
	}
}

func TestListChildren_GivesUpAfterMaxAttempts(t *testing.T) {
	errs := make([]error, 10)
	for i := range errs {
		errs[i] = rateLimitErr
	}
	blocks := &fakeBlocks{errs: errs}
	client := newTestClient(blocks, nil)

	_, err := client.ListChildren(context.Background(), "root")
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if !IsRateLimited(err) {
		t.Errorf("expected rate-limit error, got %v", err)
	}
	if blocks.calls != 6 {
		t.Errorf("expected 6 attempts, got %d", blocks.calls)
	}
}

func TestListChildren_NonRateLimitErrorNotRetried(t *testing.T) {
	notFound := &notionapi.Error{Status: http.StatusNotFound, Code: "object_not_found"}
	blocks := &fakeBlocks{errs: []error{notFound}}
	client := newTestClient(blocks, nil)

	_, err := client.ListChildren(context.Background(), "root")
	if err == nil {
		t.Fatal("expected error")
	}

	var apiErr *notionapi.Error
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusNotFound {
		t.Errorf("expected wrapped 404 error, got %v", err)
	}
	if blocks.calls != 1 {
		t.Errorf("expected 1 attempt, got %d", blocks.calls)
	}
}

func TestQueryDatabase_Paginates(t *testing.T) {
	db := &fakeDatabase{
		pages: map[string]*notionapi.DatabaseQueryResponse{
			"": {
				Results:    []notionapi.Page{{ID: "p1"}, {ID: "p2"}},
				HasMore:    true,
				NextCursor: "next",
			},
			"next": {
				Results: []notionapi.Page{{ID: "p3"}},
			},
		},
	}
	client := newTestClient(nil, db)

	pages, err := client.QueryDatabase(context.Background(), "db", QueryParams{})
	if err != nil {
		t.Fatalf("QueryDatabase() error = %v", err)
	}
	if len(pages) != 3 {
		t.Fatalf("expected 3 pages, got %d", len(pages))
	}
	if pages[2].ID != "p3" {
		t.Errorf("expected last page p3, got %s", pages[2].ID)
	}
}

func TestQueryDatabase_ErrorPropagates(t *testing.T) {
	db := &fakeDatabase{err: errors.New("boom")}
	client := newTestClient(nil, db)

	pages, err := client.QueryDatabase(context.Background(), "db", QueryParams{})
	if err == nil {
		t.Fatal("expected error")
	}
	if pages != nil {
		t.Errorf("expected no pages on error, got %d", len(pages))
	}
	if db.calls != 1 {
		t.Errorf("expected 1 call, got %d", db.calls)
	}
}

func TestEachPage_CallbackErrorStops(t *testing.T) {
	db := &fakeDatabase{
		pages: map[string]*notionapi.DatabaseQueryResponse{
			"": {Results: []notionapi.Page{{ID: "p1"}}, HasMore: true, NextCursor: "next"},
		},
	}
	client := newTestClient(nil, db)
	stop := errors.New("stop")

	err := client.EachPage(context.Background(), "db", QueryParams{}, func([]notionapi.Page) error {
		return stop
	})
	if !errors.Is(err, stop) {
		t.Errorf("expected stop error, got %v", err)
	}
	if db.calls != 1 {
		t.Errorf("expected 1 call, got %d", db.calls)
	}
}

type countingObserver struct{ retries int }

func (o *countingObserver) APIRetried() { o.retries++ }

func TestListChildren_ReportsRetries(t *testing.T) {
	blocks := &fakeBlocks{
		errs: []error{rateLimitErr},
		pages: map[string]*notionapi.GetChildrenResponse{
			"": {Results: []notionapi.Block{paragraph("a")}},
		},
	}
	obs := &countingObserver{}
	client := newClient(blocks, nil, nil, nil,
		WithLimiter(rate.NewLimiter(rate.Inf, 1)),
		WithRetryPolicy(testPolicy()),
		WithRetryObserver(obs),
	)

	if _, err := client.ListChildren(context.Background(), "root"); err != nil {
		t.Fatalf("ListChildren() error = %v", err)
	}
	if obs.retries != 1 {
		t.Errorf("expected 1 retry reported, got %d", obs.retries)
	}
}

// scriptedTransport answers requests with the given status codes in order,
// repeating the last one once the script runs out.
type scriptedTransport struct {
	statuses []int
	hits     int
}

func (s *scriptedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	status := s.statuses[len(s.statuses)-1]
	if s.hits < len(s.statuses) {
		status = s.statuses[s.hits]
	}
	s.hits++

	body := `{"object":"list","results":[],"has_more":false}`
	if status != http.StatusOK {
		body = `{"object":"error","status":429,"code":"rate_limited","message":"slow down"}`
	}
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
		Request:    req,
	}, nil
}

func newHTTPTestClient(rt http.RoundTripper, obs RetryObserver) *Client {
	policy := testPolicy()
	policy.MaxAttempts = 4
	return NewClient("secret_test", nil,
		WithHTTPClient(&http.Client{Transport: rt}),
		WithLimiter(rate.NewLimiter(rate.Inf, 1)),
		WithRetryPolicy(policy),
		WithRetryObserver(obs),
	)
}

func TestNewClient_RetryPolicyOwnsRateLimits(t *testing.T) {
	rt := &scriptedTransport{statuses: []int{http.StatusTooManyRequests}}
	obs := &countingObserver{}
	client := newHTTPTestClient(rt, obs)

	_, err := client.ListChildren(context.Background(), "abc")
	if err == nil {
		t.Fatal("expected error from always-429 server")
	}
	if !IsRateLimited(err) {
		t.Errorf("IsRateLimited(%v) = false, want true", err)
	}
	if rt.hits != 4 {
		t.Errorf("http requests = %d, want 4 (one per policy attempt)", rt.hits)
	}
	if obs.retries != 3 {
		t.Errorf("policy retries = %d, want 3", obs.retries)
	}
}

func TestNewClient_RecoversAfterRateLimit(t *testing.T) {
	rt := &scriptedTransport{statuses: []int{http.StatusTooManyRequests, http.StatusTooManyRequests, http.StatusOK}}
	obs := &countingObserver{}
	client := newHTTPTestClient(rt, obs)

	got, err := client.ListChildren(context.Background(), "abc")
	if err != nil {
		t.Fatalf("ListChildren() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %d blocks, want 0", len(got))
	}
	if rt.hits != 3 || obs.retries != 2 {
		t.Errorf("hits = %d, retries = %d; want 3 and 2", rt.hits, obs.retries)
	}
}
