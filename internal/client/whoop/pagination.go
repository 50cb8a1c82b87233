package whoop

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

const MaxLimit = 25

var ErrInvalidListParams = errors.New("invalid list parameters")

type ListParams struct {
	Limit     int
	Start     *time.Time
	End       *time.Time
	NextToken *string
}

func (p *ListParams) Values() url.Values {
	if p == nil {
		return nil
	}

	v := make(url.Values)

	if p.Limit > 0 {
		v.Set("limit", strconv.Itoa(p.Limit))
	}
	if p.Start != nil {
		v.Set("start", p.Start.Format(time.RFC3339))
	}
	if p.End != nil {
		v.Set("end", p.End.Format(time.RFC3339))
	}
	if p.NextToken != nil {
		v.Set("nextToken", *p.NextToken)
	}

	return v
}

// ParseListParams reads limit, start, end and nextToken from a query string.
// It returns nil when none are present.
func ParseListParams(q url.Values) (*ListParams, error) {
	var (
		p   ListParams
		set bool
	)

	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > MaxLimit {
			return nil, fmt.Errorf("%w: limit must be between 1 and %d", ErrInvalidListParams, MaxLimit)
		}
		p.Limit, set = n, true
	}

	for _, f := range []struct {
		key string
		dst **time.Time
	}{
		{key: "start", dst: &p.Start},
		{key: "end", dst: &p.End},
	} {
		s := q.Get(f.key)
		if s == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return nil, fmt.Errorf("%w: %s must be RFC 3339", ErrInvalidListParams, f.key)
		}
		*f.dst, set = &t, true
	}

	if p.Start != nil && p.End != nil && p.End.Before(*p.Start) {
		return nil, fmt.Errorf("%w: end before start", ErrInvalidListParams)
	}

	if s := q.Get("nextToken"); s != "" {
		p.NextToken, set = &s, true
	}

	if !set {
		return nil, nil
	}
	return &p, nil
}

type PaginatedResponse[T any] struct {
	Records   []T     `json:"records"`
	NextToken *string `json:"next_token,omitempty"`
}
