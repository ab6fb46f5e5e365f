// Package catalog holds the GraphQL documents sent to the media catalog and
// the response shapes the services read back.
package catalog

import (
	"embed"
	"fmt"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/media-query-api/internal/types"
)

const (
	QueryMedia                = "media"
	QueryRelations            = "relations"
	QueryRecommendationAmount = "recommendation_amount"
	QueryRecommendation       = "recommendation"
)

//go:embed queries/*.graphql
var queryFS embed.FS

// Query returns the document registered under name.
func Query(name string) (string, error) {
	data, err := queryFS.ReadFile("queries/" + name + ".graphql")
	if err != nil {
		return "", fmt.Errorf("unknown query %q: %w", name, err)
	}
	return string(data), nil
}

// MustQuery is Query for names known at compile time.
func MustQuery(name string) string {
	q, err := Query(name)
	if err != nil {
		panic(err)
	}
	return q
}

type Title struct {
	Romaji  *string `json:"romaji"`
	English *string `json:"english"`
	Native  *string `json:"native"`
}

// FuzzyDate is a date whose parts may each be unknown.
type FuzzyDate struct {
	Year  *int `json:"year"`
	Month *int `json:"month"`
	Day   *int `json:"day"`
}

// String renders day/month/year, with "?" for unknown parts.
func (d FuzzyDate) String() string {
	part := func(p *int) string {
		if p == nil {
			return "?"
		}
		return strconv.Itoa(*p)
	}
	return part(d.Day) + "/" + part(d.Month) + "/" + part(d.Year)
}

// Media is a catalog item as returned by the media and relations queries.
type Media struct {
	ID             int64             `json:"id"`
	Type           string            `json:"type"`
	Title          Title             `json:"title"`
	Synonyms       []string          `json:"synonyms"`
	Status         string            `json:"status"`
	Format         string            `json:"format"`
	Genres         []string          `json:"genres"`
	AverageScore   *int              `json:"averageScore"`
	MeanScore      *int              `json:"meanScore"`
	Popularity     *int              `json:"popularity"`
	Favourites     *int              `json:"favourites"`
	Duration       *int              `json:"duration"`
	Episodes       *int              `json:"episodes"`
	Chapters       *int              `json:"chapters"`
	Volumes        *int              `json:"volumes"`
	SiteURL        string            `json:"siteUrl"`
	BannerImage    *string           `json:"bannerImage"`
	CoverImage     *types.CoverImage `json:"coverImage"`
	StartDate      FuzzyDate         `json:"startDate"`
	EndDate        FuzzyDate         `json:"endDate"`
	AiringSchedule struct {
		Nodes []types.AiringEvent `json:"nodes"`
	} `json:"airingSchedule"`
}

type MediaResponse struct {
	Data struct {
		Media *Media `json:"Media"`
	} `json:"data"`
}

type PageResponse struct {
	Data struct {
		Page struct {
			PageInfo struct {
				LastPage json.RawMessage `json:"lastPage"`
			} `json:"pageInfo"`
			Media []struct {
				ID json.RawMessage `json:"id"`
			} `json:"media"`
		} `json:"Page"`
	} `json:"data"`
}

type RelationsResponse struct {
	Data struct {
		Page struct {
			Media []Media `json:"media"`
		} `json:"Page"`
	} `json:"data"`
}

// DecodeMedia extracts the single Media object of a media query response.
func DecodeMedia(body []byte) (*Media, error) {
	var resp MediaResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode media response: %w", err)
	}
	if resp.Data.Media == nil {
		return nil, fmt.Errorf("decode media response: no media in payload")
	}
	return resp.Data.Media, nil
}

// DecodeRelations extracts the search hits of a relations query response.
func DecodeRelations(body []byte) ([]Media, error) {
	var resp RelationsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode relations response: %w", err)
	}
	return resp.Data.Page.Media, nil
}

// DecodePage reads pagination metadata and the ids on one result page.
// lastPage falls back to 1 when missing, malformed or below 1; entries
// without a usable integer id are skipped.
func DecodePage(body []byte) (lastPage int64, ids []int64, err error) {
	var resp PageResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return 1, nil, fmt.Errorf("decode page response: %w", err)
	}

	lastPage = 1
	if n, ok := parseInt(resp.Data.Page.PageInfo.LastPage); ok && n >= 1 {
		lastPage = n
	}

	for _, m := range resp.Data.Page.Media {
		if id, ok := parseInt(m.ID); ok {
			ids = append(ids, id)
		}
	}
	return lastPage, ids, nil
}

func parseInt(raw json.RawMessage) (int64, bool) {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return 0, false
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Deref returns the pointed-to string or "".
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
