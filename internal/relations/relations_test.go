package relations

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/media-query-api/internal/proxypool"
	"github.com/media-query-api/internal/relevance"
	"github.com/media-query-api/internal/similarity"
	"github.com/media-query-api/internal/types"
	log "github.com/sirupsen/logrus"
)

type stubExecutor struct {
	body string
	err  error
	vars map[string]interface{}
}

func (s *stubExecutor) Execute(ctx context.Context, query string, variables map[string]interface{}) ([]byte, error) {
	s.vars = variables
	if s.err != nil {
		return nil, s.err
	}
	return []byte(s.body), nil
}

func newService(exec *stubExecutor) *Service {
	l := log.New()
	l.SetOutput(io.Discard)
	return New(exec, relevance.NewRanker(similarity.NewScorer()), log.NewEntry(l))
}

const searchPayload = `{"data":{"Page":{"media":[
	{"id": 269, "type": "ANIME", "title": {"romaji": "BLEACH", "english": "Bleach", "native": "ブリーチ"}, "synonyms": ["Burîchi"]},
	{"id": 20, "type": "ANIME", "title": {"romaji": "NARUTO", "english": "Naruto", "native": "ナルト"}, "synonyms": null},
	{"id": 1735, "type": "ANIME", "title": {"romaji": "Naruto: Shippuuden", "english": null, "native": "ナルト- 疾風伝"}, "synonyms": ["Naruto Hurricane Chronicles"]}
]}}}`

func TestSearchRanksHits(t *testing.T) {
	exec := &stubExecutor{body: searchPayload}
	s := newService(exec)

	got, err := s.Search(context.Background(), "naruto", "anime")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if exec.vars["search"] != "naruto" || exec.vars["type"] != "ANIME" {
		t.Errorf("variables = %v", exec.vars)
	}
	if len(got) != 3 {
		t.Fatalf("got %d candidates, want 3", len(got))
	}
	if got[0].ID != 20 || got[0].Similarity != 1.0 {
		t.Errorf("top hit = %d (%.3f), want 20 with 1.0", got[0].ID, got[0].Similarity)
	}
	if got[2].ID != 269 {
		t.Errorf("last hit = %d, want 269", got[2].ID)
	}
	for i, c := range got {
		if c.DataFrom != types.FromAPI {
			t.Errorf("candidate %d provenance = %q", i, c.DataFrom)
		}
		if c.Synonyms == nil {
			t.Errorf("candidate %d has nil synonyms", i)
		}
		if i > 0 && got[i-1].Similarity < c.Similarity {
			t.Errorf("not sorted at %d", i)
		}
	}
	if got[1].English != "" {
		t.Errorf("null english title = %q, want empty", got[1].English)
	}
}

func TestSearchEmptyPage(t *testing.T) {
	s := newService(&stubExecutor{body: `{"data":{"Page":{"media":[]}}}`})
	got, err := s.Search(context.Background(), "nothing", "manga")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("got %v, want no candidates", got)
	}
}

func TestSearchPropagatesPoolEmpty(t *testing.T) {
	s := newService(&stubExecutor{err: proxypool.ErrPoolEmpty})
	if _, err := s.Search(context.Background(), "x", "anime"); !errors.Is(err, proxypool.ErrPoolEmpty) {
		t.Errorf("err = %v, want ErrPoolEmpty", err)
	}
}
