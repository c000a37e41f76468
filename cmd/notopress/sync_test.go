package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/jomei/notionapi"

	"github.com/natikgadzhi/notopress/internal/config"
	"github.com/natikgadzhi/notopress/internal/sync"
)

func TestQueryParams(t *testing.T) {
	tests := []struct {
		name       string
		src        config.SourceConfig
		wantFilter bool
		wantSorts  int
	}{
		{"bare database", config.SourceConfig{Database: "db"}, false, 0},
		{"published filter", config.SourceConfig{FilterProperty: "Published"}, true, 0},
		{"sorted", config.SourceConfig{SortProperty: "Date"}, false, 1},
		{"both", config.SourceConfig{FilterProperty: "Published", SortProperty: "Date"}, true, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := queryParams(tt.src)
			if (q.Filter != nil) != tt.wantFilter {
				t.Errorf("filter = %#v, want present=%v", q.Filter, tt.wantFilter)
			}
			if len(q.Sorts) != tt.wantSorts {
				t.Fatalf("sorts = %v, want %d", q.Sorts, tt.wantSorts)
			}
			if tt.wantSorts > 0 && q.Sorts[0].Direction != notionapi.SortOrderDESC {
				t.Errorf("direction = %v, want descending", q.Sorts[0].Direction)
			}
		})
	}
}

func TestQueryParams_FilterTargetsCheckbox(t *testing.T) {
	q := queryParams(config.SourceConfig{FilterProperty: "Published"})
	f, ok := q.Filter.(*notionapi.PropertyFilter)
	if !ok {
		t.Fatalf("filter type = %T", q.Filter)
	}
	if f.Property != "Published" || f.Checkbox == nil || !f.Checkbox.Equals {
		t.Errorf("filter = %+v", f)
	}
}

func TestPrintSummary(t *testing.T) {
	res := &sync.Result{
		RunID:     "run-1",
		Committed: 2,
		Fallbacks: 1,
		Unchanged: 5,
		Deleted:   1,
		Failed:    1,
		Pages: []sync.PageResult{
			{ID: "p1", Title: "Broken", Outcome: sync.OutcomeFailed, Err: errors.New("disk full")},
			{ID: "p2", Title: "Fine", Outcome: sync.OutcomeCommitted},
		},
	}

	var buf bytes.Buffer
	printSummary(&buf, res)
	out := buf.String()

	for _, want := range []string{"Sync run-1\n", "committed: 2 (fallback: 1)", "unchanged: 5", "deleted:   1", `p1 "Broken": disk full`} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "pending") || strings.Contains(out, "Fine") {
		t.Errorf("unexpected lines:\n%s", out)
	}
}

func TestPrintSummary_DryRun(t *testing.T) {
	var buf bytes.Buffer
	printSummary(&buf, &sync.Result{RunID: "r", DryRun: true, Pending: 3})

	out := buf.String()
	if !strings.Contains(out, "(dry run)") || !strings.Contains(out, "pending:   3") {
		t.Errorf("output:\n%s", out)
	}
}

func TestVersionCmd(t *testing.T) {
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"version"})

	if err := root.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if got := out.String(); got != "notopress version "+version+"\n" {
		t.Errorf("version output = %q", got)
	}
}
