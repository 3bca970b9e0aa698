package rollup

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/home-dashboard/httping/internal/models"
)

type bucketKey struct {
	site  int64
	g     models.Granularity
	start int64
}

// MemoryStore is a process-local Store. It backs the daemon when no database
// is configured and the engine tests.
type MemoryStore struct {
	mu      sync.RWMutex
	sites   map[string]int64
	samples map[int64][]models.Sample
	buckets map[bucketKey]models.IntervalBucket
	nextID  int64
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sites:   make(map[string]int64),
		samples: make(map[int64][]models.Sample),
		buckets: make(map[bucketKey]models.IntervalBucket),
	}
}

func (m *MemoryStore) EnsureSite(_ context.Context, internalName string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.sites[internalName]; ok {
		return id, nil
	}
	m.nextID++
	m.sites[internalName] = m.nextID
	return m.nextID, nil
}

func (m *MemoryStore) checkSite(site int64) error {
	if site <= 0 || site > m.nextID {
		return ErrUnknownSite
	}
	return nil
}

func (m *MemoryStore) InsertSample(_ context.Context, site int64, s models.Sample) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkSite(site); err != nil {
		return err
	}
	rows := m.samples[site]
	i := sort.Search(len(rows), func(i int) bool { return !rows[i].Timestamp.Before(s.Timestamp) })
	if i < len(rows) && rows[i].Timestamp.Equal(s.Timestamp) {
		rows[i] = s
		return nil
	}
	rows = append(rows, models.Sample{})
	copy(rows[i+1:], rows[i:])
	rows[i] = s
	m.samples[site] = rows
	return nil
}

func (m *MemoryStore) SamplesSince(_ context.Context, site int64, since time.Time) ([]models.Sample, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.checkSite(site); err != nil {
		return nil, err
	}
	rows := m.samples[site]
	i := sort.Search(len(rows), func(i int) bool { return !rows[i].Timestamp.Before(since) })
	out := make([]models.Sample, len(rows)-i)
	copy(out, rows[i:])
	return out, nil
}

func (m *MemoryStore) UpsertBucket(_ context.Context, site int64, b models.IntervalBucket) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkSite(site); err != nil {
		return err
	}
	m.buckets[bucketKey{site: site, g: b.Granularity, start: b.Start.Unix()}] = b
	return nil
}

func (m *MemoryStore) RecentBuckets(_ context.Context, site int64, g models.Granularity, limit int) ([]models.IntervalBucket, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.checkSite(site); err != nil {
		return nil, err
	}
	var out []models.IntervalBucket
	for k, b := range m.buckets {
		if k.site == site && k.g == g {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (m *MemoryStore) DeleteBucket(_ context.Context, site int64, g models.Granularity, start time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkSite(site); err != nil {
		return err
	}
	delete(m.buckets, bucketKey{site: site, g: g, start: start.Unix()})
	return nil
}
