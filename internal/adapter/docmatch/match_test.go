package docmatch_test

import (
	"testing"

	"github.com/neomorfeo/procura/internal/adapter/docmatch"
	"github.com/neomorfeo/procura/internal/domain"
)

func TestMatch(t *testing.T) {
	fields, err := docmatch.Fields([]byte(`{"status":"OPEN","rank":3,"done":false,"entity":{"entityId":"e-1"}}`))
	if err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name    string
		filters []domain.Filter
		want    bool
	}{
		{"no filters", nil, true},
		{"string", []domain.Filter{domain.Where("status", "OPEN")}, true},
		{"named string", []domain.Filter{domain.Where("status", domain.TaskOpen)}, true},
		{"int vs float", []domain.Filter{domain.Where("rank", 3)}, true},
		{"bool", []domain.Filter{domain.Where("done", false)}, true},
		{"nested", []domain.Filter{domain.Where("entity.entityId", "e-1")}, true},
		{"missing field", []domain.Filter{domain.Where("nope", "x")}, false},
		{"mismatch", []domain.Filter{domain.Where("status", "CLOSED")}, false},
		{"in", []domain.Filter{domain.WhereIn("status", []string{"CLOSED", "OPEN"})}, true},
		{"in miss", []domain.Filter{domain.WhereIn("status", []string{"CLOSED"})}, false},
		{"in on number", []domain.Filter{domain.WhereIn("rank", []string{"3"})}, false},
	}
	for _, tc := range cases {
		got, err := docmatch.Match(fields, tc.filters)
		if err != nil {
			t.Errorf("%s: %v", tc.name, err)
			continue
		}
		if got != tc.want {
			t.Errorf("%s: Match = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestValidate(t *testing.T) {
	if err := docmatch.Validate([]domain.Filter{{Field: "x", Op: ">", Value: 1}}); err == nil {
		t.Error("unknown op should fail")
	}
	if err := docmatch.Validate([]domain.Filter{{Field: "x", Op: domain.OpIn, Value: "a"}}); err == nil {
		t.Error("non-slice IN should fail")
	}
	if err := docmatch.Validate([]domain.Filter{domain.WhereIn("x", make([]string, domain.MaxInFilterValues))}); err != nil {
		t.Errorf("IN at the limit should pass: %v", err)
	}
}

func TestFinish(t *testing.T) {
	cands := []docmatch.Candidate{
		{ID: "b", Data: []byte(`{}`), Fields: map[string]any{"n": 2.0}},
		{ID: "a", Data: []byte(`{}`), Fields: map[string]any{"n": 2.0}},
		{ID: "c", Data: []byte(`{}`), Fields: map[string]any{}},
		{ID: "d", Data: []byte(`{}`), Fields: map[string]any{"n": 10.0}},
	}

	docs := docmatch.Finish(domain.Query{OrderBy: "n", Descending: true, Limit: 3}, cands)
	got := make([]string, len(docs))
	for i, d := range docs {
		got[i] = d.ID
	}
	want := []string{"d", "b", "a"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestCompare_Timestamps(t *testing.T) {
	cases := []struct {
		name string
		a, b any
		want int
	}{
		{"whole second before fraction", "2026-03-14T09:30:00Z", "2026-03-14T09:30:00.5Z", -1},
		{"fraction before next second", "2026-03-14T09:30:00.999Z", "2026-03-14T09:30:01Z", -1},
		{"equal instants", "2026-03-14T09:30:00.500Z", "2026-03-14T09:30:00.5Z", 0},
		{"plain strings", "b", "a", 1},
		{"missing first", nil, "a", -1},
		{"numbers before strings", 3.0, "2026-03-14T09:30:00Z", -1},
	}
	for _, tc := range cases {
		if got := docmatch.Compare(tc.a, tc.b); got != tc.want {
			t.Errorf("%s: Compare(%v, %v) = %d, want %d", tc.name, tc.a, tc.b, got, tc.want)
		}
	}
}
