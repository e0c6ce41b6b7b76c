package provisioning

import (
	"context"
	"strconv"
	"sync"

	"deployassist/pkg/platform/sentinel"
)

// InMemorySource is a RecordSource backed by a slice. It paginates the way
// the real source does so orchestration code exercises continuation logic in
// tests without a live upstream.
type InMemorySource struct {
	mu          sync.RWMutex
	records     []RawRecord
	unavailable bool
}

// NewInMemorySource creates an empty in-memory source.
func NewInMemorySource() *InMemorySource {
	return &InMemorySource{}
}

// Seed replaces the source contents.
func (s *InMemorySource) Seed(records ...RawRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append([]RawRecord(nil), records...)
}

// SetUnavailable makes subsequent fetches fail with ErrSourceUnavailable.
func (s *InMemorySource) SetUnavailable(down bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unavailable = down
}

// FetchRecords returns one page of seeded records. The page token is the
// offset of the next record.
func (s *InMemorySource) FetchRecords(ctx context.Context, filter Filter) (Page, error) {
	if err := ctx.Err(); err != nil {
		return Page{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.unavailable {
		return Page{}, sentinel.ErrSourceUnavailable
	}

	offset := 0
	if filter.PageToken != "" {
		n, err := strconv.Atoi(filter.PageToken)
		if err != nil || n < 0 {
			return Page{}, sentinel.ErrMalformedRecord
		}
		offset = n
	}
	if offset >= len(s.records) {
		return Page{}, nil
	}

	size := filter.PageSize
	if size <= 0 {
		size = 100
	}
	end := offset + size
	if end > len(s.records) {
		end = len(s.records)
	}

	page := Page{Records: append([]RawRecord(nil), s.records[offset:end]...)}
	if end < len(s.records) {
		page.NextPageToken = strconv.Itoa(end)
	}
	return page, nil
}
