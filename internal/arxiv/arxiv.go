package arxiv

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/MetaHackathon/DataEngineX/internal/models"
)

const (
	UserAgent = "DataEngine/1.0 (https://github.com/NeuxsAI/DataEngine)"

	// delay before the single retry after a 429
	rateLimitDelay = time.Second

	trendingCategories = "cat:cs.AI OR cat:cs.LG OR cat:cs.ML OR cat:stat.ML"
	recentYearFloor    = 2020
)

var majorCategories = map[string]struct{}{
	"cs.AI":   {},
	"cs.LG":   {},
	"cs.CL":   {},
	"stat.ML": {},
}

// Client queries the ArXiv Atom API. BaseURL is settable for tests. The
// limiter keeps the export API's pacing guidance of one request per 3s.
type Client struct {
	BaseURL string
	http    *http.Client
	limiter *rate.Limiter
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		BaseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Every(3*time.Second), 1),
	}
}

// Search runs a free-form query. Queries without a field expression get
// the all: prefix; cat: and submittedDate: expressions pass through.
func (c *Client) Search(ctx context.Context, query string, start, maxResults int, sortBy, sortOrder string) ([]models.Paper, error) {
	q := strings.TrimSpace(query)
	if !strings.Contains(q, "cat:") && !strings.Contains(q, "submittedDate:") {
		q = "all:" + q
	}
	params := url.Values{}
	params.Set("search_query", q)
	params.Set("start", strconv.Itoa(start))
	params.Set("max_results", strconv.Itoa(maxResults))
	if sortBy == "" {
		sortBy = "relevance"
	}
	if sortOrder == "" {
		sortOrder = "descending"
	}
	params.Set("sortBy", sortBy)
	params.Set("sortOrder", sortOrder)
	return c.fetch(ctx, params)
}

// Trending returns the last 30 days of the major ML categories, newest
// first.
func (c *Client) Trending(ctx context.Context, limit int) ([]models.Paper, error) {
	since := time.Now().AddDate(0, 0, -30).Format("20060102")
	q := fmt.Sprintf("(%s) AND submittedDate:[%s0000 TO 99991231235959]", trendingCategories, since)
	return c.Search(ctx, q, 0, limit, "submittedDate", "descending")
}

func (c *Client) Recommended(ctx context.Context, limit int) ([]models.Paper, error) {
	return c.Search(ctx, trendingCategories, 0, limit, "submittedDate", "descending")
}

func (c *Client) ByCategory(ctx context.Context, category string, limit int) ([]models.Paper, error) {
	return c.Search(ctx, "cat:"+strings.TrimSpace(category), 0, limit, "submittedDate", "descending")
}

// ByID fetches one paper through the id_list parameter. Returns nil when
// ArXiv has no entry for the id.
func (c *Client) ByID(ctx context.Context, id string) (*models.Paper, error) {
	params := url.Values{}
	params.Set("id_list", strings.TrimSpace(id))
	params.Set("max_results", "1")
	papers, err := c.fetch(ctx, params)
	if err != nil {
		return nil, err
	}
	if len(papers) == 0 {
		return nil, nil
	}
	return &papers[0], nil
}

func (c *Client) fetch(ctx context.Context, params url.Values) ([]models.Paper, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	body, status, err := c.get(ctx, params)
	if err != nil {
		return nil, err
	}
	if status == http.StatusTooManyRequests {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(rateLimitDelay):
		}
		body, status, err = c.get(ctx, params)
		if err != nil {
			return nil, err
		}
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("arxiv query error %d: %s", status, strings.TrimSpace(firstLine(body)))
	}
	var f feed
	if err := xml.Unmarshal(body, &f); err != nil {
		return nil, fmt.Errorf("decode arxiv feed: %w", err)
	}
	out := make([]models.Paper, 0, len(f.Entries))
	for _, e := range f.Entries {
		p, ok := normalizeEntry(e)
		if !ok {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, params url.Values) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, 0, fmt.Errorf("build arxiv request: %w", err)
	}
	req.Header.Set("User-Agent", UserAgent)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("arxiv request failed: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return body, resp.StatusCode, nil
}

type feed struct {
	Entries []entry `xml:"entry"`
}

type entry struct {
	ID         string     `xml:"id"`
	Title      string     `xml:"title"`
	Summary    string     `xml:"summary"`
	Published  string     `xml:"published"`
	Authors    []author   `xml:"author"`
	Categories []category `xml:"category"`
}

type author struct {
	Name string `xml:"name"`
}

type category struct {
	Term string `xml:"term,attr"`
}

// normalizeEntry maps one Atom entry onto the API paper shape. Entries
// without a usable id are skipped.
func normalizeEntry(e entry) (models.Paper, bool) {
	id := e.ID
	if i := strings.LastIndex(id, "/abs/"); i >= 0 {
		id = id[i+len("/abs/"):]
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return models.Paper{}, false
	}

	year := time.Now().Year()
	if len(e.Published) >= 4 {
		if y, err := strconv.Atoi(e.Published[:4]); err == nil {
			year = y
		}
	}

	authors := make([]string, 0, len(e.Authors))
	for _, a := range e.Authors {
		if name := strings.TrimSpace(a.Name); name != "" {
			authors = append(authors, name)
		}
	}
	topics := make([]string, 0, len(e.Categories))
	for _, c := range e.Categories {
		if c.Term != "" {
			topics = append(topics, c.Term)
		}
	}

	impact := "low"
	if year >= recentYearFloor && hasMajorCategory(topics) {
		impact = "high"
	}

	return models.Paper{
		ID:        id,
		Title:     collapseSpace(e.Title),
		Authors:   authors,
		Abstract:  collapseSpace(e.Summary),
		Year:      year,
		Citations: 0,
		Impact:    impact,
		URL:       "https://arxiv.org/pdf/" + id + ".pdf",
		Topics:    topics,
	}, true
}

func hasMajorCategory(topics []string) bool {
	for _, t := range topics {
		if _, ok := majorCategories[t]; ok {
			return true
		}
	}
	return false
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func firstLine(b []byte) string {
	s := string(b)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
