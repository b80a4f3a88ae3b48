package matching

import (
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/getmockd/testproxy/pkg/recording"
)

// Matcher compares an incoming request with a recorded one.
type Matcher interface {
	// Name identifies the matcher in logs and admin listings.
	Name() string
	// Compare evaluates every field without short-circuiting.
	Compare(incoming, recorded *recording.Request) *Result
}

// Result is the field-by-field outcome of one comparison.
type Result struct {
	Fields           []FieldResult `json:"fields"`
	Score            int           `json:"score"`
	MaxPossibleScore int           `json:"maxPossibleScore"`
}

// Matched reports whether every compared field matched.
func (r *Result) Matched() bool {
	for i := range r.Fields {
		if !r.Fields[i].Matched {
			return false
		}
	}
	return true
}

func (r *Result) add(f FieldResult) {
	if f.Matched {
		f.Score = f.MaxScore
	}
	r.Fields = append(r.Fields, f)
	r.Score += f.Score
	r.MaxPossibleScore += f.MaxScore
}

// DefaultExcludedHeaders vary between runs of the same test and are never
// compared by the record matcher.
var DefaultExcludedHeaders = []string{
	"Accept",
	"Accept-Encoding",
	"Accept-Language",
	"Connection",
	"Content-Length",
	"Date",
	"Host",
	"Request-Id",
	"Traceparent",
	"User-Agent",
	"X-Ms-Client-Request-Id",
	"X-Ms-Date",
	"X-Ms-Return-Client-Request-Id",
}

// RecordMatcher is the default playback policy. It compares method, absolute
// URI, headers and, optionally, bodies. The proxy's own x-recording-*
// headers are never compared.
type RecordMatcher struct {
	name string

	// CompareBodies enables byte-for-byte body comparison. A missing body and
	// an empty body compare equal.
	CompareBodies bool

	// IgnoreQueryOrdering compares query parameters as a sorted set.
	IgnoreQueryOrdering bool

	// ExcludeAllHeaders skips header comparison entirely.
	ExcludeAllHeaders bool

	// ExcludedHeaders are not compared at all.
	ExcludedHeaders []string

	// IgnoredHeaders must be present on both sides but their values are not
	// compared.
	IgnoredHeaders []string

	// IncludedHeaders are compared even when listed in ExcludedHeaders.
	IncludedHeaders []string

	// IgnoredQueryParameters are removed from both URIs before comparison.
	IgnoredQueryParameters []string
}

// NewRecordMatcher returns the default matcher: bodies compared, volatile
// headers excluded.
func NewRecordMatcher() *RecordMatcher {
	return &RecordMatcher{
		name:            NameRecord,
		CompareBodies:   true,
		ExcludedHeaders: DefaultExcludedHeaders,
	}
}

// NewBodilessMatcher returns a record matcher that ignores bodies.
func NewBodilessMatcher() *RecordMatcher {
	m := NewRecordMatcher()
	m.name = NameBodiless
	m.CompareBodies = false
	return m
}

// NewHeaderlessMatcher returns a record matcher that ignores headers.
func NewHeaderlessMatcher() *RecordMatcher {
	m := NewRecordMatcher()
	m.name = NameHeaderless
	m.ExcludeAllHeaders = true
	return m
}

func (m *RecordMatcher) Name() string {
	if m.name == "" {
		return NameCustom
	}
	return m.name
}

func (m *RecordMatcher) Compare(incoming, recorded *recording.Request) *Result {
	result := &Result{}

	result.add(FieldResult{
		Field:    "method",
		Matched:  strings.EqualFold(incoming.Method, recorded.Method),
		MaxScore: ScoreMethod,
		Expected: recorded.Method,
		Actual:   incoming.Method,
	})

	incomingURI := m.normalizeURI(incoming.URI)
	recordedURI := m.normalizeURI(recorded.URI)
	result.add(FieldResult{
		Field:    "uri",
		Matched:  incomingURI == recordedURI,
		MaxScore: ScoreURI,
		Expected: recorded.URI,
		Actual:   incoming.URI,
	})

	if !m.ExcludeAllHeaders {
		if f, ok := m.compareHeaders(incoming.Headers, recorded.Headers); ok {
			result.add(f)
		}
	}

	if m.CompareBodies {
		result.add(FieldResult{
			Field:    "body",
			Matched:  BodiesEqual(incoming.Body, recorded.Body),
			MaxScore: ScoreBody,
			Expected: truncate(string(recorded.Body), 200),
			Actual:   truncate(string(incoming.Body), 200),
		})
	}

	return result
}

// compareHeaders returns false when no header took part in the comparison.
func (m *RecordMatcher) compareHeaders(incoming, recorded http.Header) (FieldResult, bool) {
	names := make(map[string]struct{})
	for name := range incoming {
		names[http.CanonicalHeaderKey(name)] = struct{}{}
	}
	for name := range recorded {
		names[http.CanonicalHeaderKey(name)] = struct{}{}
	}

	sorted := make([]string, 0, len(names))
	for name := range names {
		if recording.IsControlHeader(name) || m.excluded(name) {
			continue
		}
		sorted = append(sorted, name)
	}
	if len(sorted) == 0 {
		return FieldResult{}, false
	}
	sort.Strings(sorted)

	allMatched := true
	details := make([]HeaderDetail, 0, len(sorted))
	for _, name := range sorted {
		expected, hasExpected := lookupHeader(recorded, name)
		actual, hasActual := lookupHeader(incoming, name)

		var matched bool
		if containsHeader(m.IgnoredHeaders, name) {
			matched = hasExpected == hasActual
		} else {
			matched = hasExpected == hasActual && expected == actual
		}
		if !matched {
			allMatched = false
		}

		if !hasExpected {
			expected = "(missing)"
		}
		if !hasActual {
			actual = "(missing)"
		}
		details = append(details, HeaderDetail{
			Key:      name,
			Expected: expected,
			Actual:   actual,
			Matched:  matched,
		})
	}

	score := 0
	for _, d := range details {
		if d.Matched {
			score += ScoreHeader
		}
	}

	return FieldResult{
		Field:    "headers",
		Matched:  allMatched,
		Score:    score,
		MaxScore: len(details) * ScoreHeader,
		Details:  details,
	}, true
}

func (m *RecordMatcher) excluded(name string) bool {
	if containsHeader(m.IncludedHeaders, name) {
		return false
	}
	return containsHeader(m.ExcludedHeaders, name)
}

// normalizeURI applies the query options. URIs that do not parse are
// compared verbatim.
func (m *RecordMatcher) normalizeURI(raw string) string {
	if !m.IgnoreQueryOrdering && len(m.IgnoredQueryParameters) == 0 {
		return raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}

	query := u.Query()
	for _, p := range m.IgnoredQueryParameters {
		query.Del(p)
	}

	if m.IgnoreQueryOrdering {
		// url.Values.Encode sorts by key.
		u.RawQuery = query.Encode()
		return u.String()
	}

	if len(m.IgnoredQueryParameters) > 0 {
		u.RawQuery = removeParams(u.RawQuery, m.IgnoredQueryParameters)
	}
	return u.String()
}
