package types

// Provenance tags where a response was assembled from.
type Provenance string

const (
	FromAPI   Provenance = "API"
	FromCache Provenance = "Cache"
)

// AiringEvent is one node of a title's airing schedule.
type AiringEvent struct {
	AiringAt        int64 `json:"airingAt"`
	TimeUntilAiring int64 `json:"timeUntilAiring"`
	Episode         int   `json:"episode"`
}

// CoverImage holds the cover art urls of a catalog entry.
type CoverImage struct {
	ExtraLarge string `json:"extraLarge,omitempty"`
	Large      string `json:"large,omitempty"`
	Medium     string `json:"medium,omitempty"`
	Color      string `json:"color,omitempty"`
}

// MediaEntry is the transformed, cached shape of one catalog item.
//
// Airing is empty unless the title is currently releasing. When it is not
// empty, Airing[0].TimeUntilAiring doubles as the cache lifetime.
type MediaEntry struct {
	ID           int64         `json:"id"`
	Romaji       string        `json:"romaji"`
	Airing       []AiringEvent `json:"airing"`
	AverageScore *int          `json:"averageScore"`
	MeanScore    *int          `json:"meanScore"`
	Banner       *string       `json:"banner"`
	Cover        *CoverImage   `json:"cover"`
	Duration     *int          `json:"duration"`
	Episodes     *int          `json:"episodes"`
	Chapters     *int          `json:"chapters"`
	Volumes      *int          `json:"volumes"`
	Format       string        `json:"format"`
	Genres       []string      `json:"genres"`
	Popularity   *int          `json:"popularity"`
	Favourites   *int          `json:"favourites"`
	Status       string        `json:"status"`
	URL          string        `json:"url"`
	EndDate      string        `json:"endDate"`
	StartDate    string        `json:"startDate"`
	DataFrom     Provenance    `json:"dataFrom"`

	// LeftUntilExpire is only set on answers served from cache.
	LeftUntilExpire *int64 `json:"leftUntilExpire,omitempty"`
}

// IsAiring reports whether the entry carries a live airing schedule.
func (m *MediaEntry) IsAiring() bool {
	return len(m.Airing) > 0
}

// RelationCandidate is one search hit, annotated with its relevance to the query.
type RelationCandidate struct {
	ID         int64      `json:"id"`
	Romaji     string     `json:"romaji"`
	English    string     `json:"english"`
	Native     string     `json:"native"`
	Synonyms   []string   `json:"synonyms"`
	Type       string     `json:"type"`
	Similarity float64    `json:"similarity"`
	DataFrom   Provenance `json:"dataFrom"`
}

// Titles returns the localized title fields in romaji, english, native order.
func (r *RelationCandidate) Titles() []string {
	return []string{r.Romaji, r.English, r.Native}
}

// RelationRequest is the body of a relation search.
type RelationRequest struct {
	MediaName string `json:"media_name" binding:"required"`
	MediaType string `json:"media_type" binding:"required"`
}

// MediaRequest is the body of a media lookup.
type MediaRequest struct {
	MediaID   int64  `json:"media_id" binding:"required"`
	MediaType string `json:"media_type" binding:"required"`
}

// RecommendRequest is the body of a "recommend a title" call.
type RecommendRequest struct {
	Media  string   `json:"media" binding:"required"`
	Genres []string `json:"genres"`
}

// ExpireRequest asks for a cached media record to be dropped.
type ExpireRequest struct {
	MediaID int64 `json:"media_id" binding:"required"`
}
