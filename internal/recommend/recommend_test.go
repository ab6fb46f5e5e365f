package recommend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/media-query-api/internal/catalog"
	"github.com/media-query-api/internal/metrics"
	"github.com/media-query-api/internal/proxypool"
	"github.com/media-query-api/internal/upstream"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
)

type call struct {
	amount bool
	page   int64
	vars   map[string]interface{}
}

// fakeCatalog answers the page-count query with lastPage and each
// recommendation page from pages (missing pages are empty).
type fakeCatalog struct {
	lastPage string
	pages    map[int64][]int64
	pageErr  map[int64]error
	calls    []call
}

func (f *fakeCatalog) Execute(ctx context.Context, query string, variables map[string]interface{}) ([]byte, error) {
	if query == catalog.MustQuery(catalog.QueryRecommendationAmount) {
		f.calls = append(f.calls, call{amount: true, vars: variables})
		return []byte(`{"data":{"Page":{"pageInfo":{"lastPage":` + f.lastPage + `},"media":[]}}}`), nil
	}

	page := variables["page"].(int64)
	f.calls = append(f.calls, call{page: page, vars: variables})
	if err := f.pageErr[page]; err != nil {
		return nil, err
	}
	media := make([]string, 0, len(f.pages[page]))
	for _, id := range f.pages[page] {
		media = append(media, fmt.Sprintf(`{"id":%d}`, id))
	}
	return []byte(`{"data":{"Page":{"pageInfo":{"lastPage":1},"media":[` + strings.Join(media, ",") + `]}}}`), nil
}

func (f *fakeCatalog) pageCalls() []int64 {
	var pages []int64
	for _, c := range f.calls {
		if !c.amount {
			pages = append(pages, c.page)
		}
	}
	return pages
}

func newSampler(exec upstream.Executor, pick func(n int64) int64) (*Sampler, *prometheus.Registry) {
	l := log.New()
	l.SetOutput(io.Discard)
	reg := prometheus.NewRegistry()
	m := metrics.NewCollector("test", reg)
	return New(exec, DefaultPerPage, m, log.NewEntry(l)).WithRand(pick), reg
}

func fallbacks(t *testing.T, reg *prometheus.Registry) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	for _, mf := range families {
		if mf.GetName() == "test_recommend_fallbacks_total" {
			return mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	return 0
}

func TestRecommendUsesRandomPage(t *testing.T) {
	f := &fakeCatalog{lastPage: "10", pages: map[int64][]int64{4: {11, 22, 33}}}
	var bounds []int64
	s, m := newSampler(f, func(n int64) int64 {
		bounds = append(bounds, n)
		if n == 9 {
			return 3 // page 4
		}
		return 1 // second id
	})

	id, err := s.Recommend(context.Background(), "anime", []string{"Action"})
	if err != nil {
		t.Fatalf("Recommend: %v", err)
	}
	if id != 22 {
		t.Errorf("id = %d, want 22", id)
	}
	if len(bounds) != 2 || bounds[0] != 9 || bounds[1] != 3 {
		t.Errorf("random bounds = %v, want [9 3]", bounds)
	}
	if got := f.pageCalls(); len(got) != 1 || got[0] != 4 {
		t.Errorf("page fetches = %v, want [4]", got)
	}
	if f.calls[0].vars["type"] != "ANIME" || f.calls[0].vars["perPage"] != DefaultPerPage {
		t.Errorf("page count variables = %v", f.calls[0].vars)
	}
	if g := f.calls[1].vars["genres"].([]string); len(g) != 1 || g[0] != "Action" {
		t.Errorf("genres = %v", g)
	}
	if v := fallbacks(t, m); v != 0 {
		t.Errorf("fallbacks = %v, want 0", v)
	}
}

func TestRecommendFallsBackOnceToPageOne(t *testing.T) {
	f := &fakeCatalog{lastPage: "5", pages: map[int64][]int64{1: {99}}}
	s, m := newSampler(f, func(n int64) int64 { return n - 1 })

	id, err := s.Recommend(context.Background(), "manga", nil)
	if err != nil {
		t.Fatalf("Recommend: %v", err)
	}
	if id != 99 {
		t.Errorf("id = %d, want 99", id)
	}
	if got := f.pageCalls(); len(got) != 2 || got[0] != 4 || got[1] != 1 {
		t.Errorf("page fetches = %v, want [4 1]", got)
	}
	if v := fallbacks(t, m); v != 1 {
		t.Errorf("fallbacks = %v, want 1", v)
	}
}

func TestRecommendNoRecommendations(t *testing.T) {
	f := &fakeCatalog{lastPage: "3"}
	s, _ := newSampler(f, func(n int64) int64 { return 0 })

	_, err := s.Recommend(context.Background(), "anime", []string{"Nonexistent"})
	if !errors.Is(err, ErrNoRecommendations) {
		t.Fatalf("err = %v, want ErrNoRecommendations", err)
	}
	if got := f.pageCalls(); len(got) != 2 {
		t.Errorf("page fetches = %v, want exactly one fallback", got)
	}
}

func TestRecommendSinglePageGoesStraightToPageOne(t *testing.T) {
	f := &fakeCatalog{lastPage: "1", pages: map[int64][]int64{1: {5, 6}}}
	s, m := newSampler(f, func(n int64) int64 {
		if n < 1 {
			t.Fatalf("random draw over empty range [0, %d)", n)
		}
		return 0
	})

	id, err := s.Recommend(context.Background(), "anime", nil)
	if err != nil {
		t.Fatalf("Recommend: %v", err)
	}
	if id != 5 {
		t.Errorf("id = %d, want 5", id)
	}
	if got := f.pageCalls(); len(got) != 1 || got[0] != 1 {
		t.Errorf("page fetches = %v, want [1]", got)
	}
	if v := fallbacks(t, m); v != 1 {
		t.Errorf("fallbacks = %v, want 1", v)
	}
}

func TestRecommendMalformedPageCountMeansOnePage(t *testing.T) {
	for _, lastPage := range []string{"null", `"many"`, "0"} {
		f := &fakeCatalog{lastPage: lastPage, pages: map[int64][]int64{1: {8}}}
		s, _ := newSampler(f, func(n int64) int64 { return 0 })

		id, err := s.Recommend(context.Background(), "anime", nil)
		if err != nil || id != 8 {
			t.Errorf("lastPage %s: got %d, %v", lastPage, id, err)
		}
		if got := f.pageCalls(); len(got) != 1 || got[0] != 1 {
			t.Errorf("lastPage %s: page fetches = %v, want [1]", lastPage, got)
		}
	}
}

func TestRecommendUpstreamErrorOnRandomPageFallsBack(t *testing.T) {
	f := &fakeCatalog{
		lastPage: "7",
		pages:    map[int64][]int64{1: {3}},
		pageErr:  map[int64]error{2: &upstream.Error{Status: http.StatusInternalServerError}},
	}
	s, _ := newSampler(f, func(n int64) int64 {
		if n == 6 {
			return 1
		}
		return 0
	})

	id, err := s.Recommend(context.Background(), "anime", nil)
	if err != nil || id != 3 {
		t.Fatalf("got %d, %v; want 3", id, err)
	}
}

func TestRecommendPoolEmptyIsFatal(t *testing.T) {
	f := &fakeCatalog{lastPage: "7", pageErr: map[int64]error{2: proxypool.ErrPoolEmpty}}
	s, _ := newSampler(f, func(n int64) int64 { return 1 })

	if _, err := s.Recommend(context.Background(), "anime", nil); !errors.Is(err, proxypool.ErrPoolEmpty) {
		t.Fatalf("err = %v, want ErrPoolEmpty", err)
	}
	if got := f.pageCalls(); len(got) != 1 {
		t.Errorf("page fetches = %v, want no fallback", got)
	}
}
