package rollup

import (
	"testing"
	"time"

	"github.com/home-dashboard/httping/internal/models"
)

func TestFillSeriesGaps(t *testing.T) {
	h := base
	queue := []models.IntervalBucket{
		{Granularity: models.Hourly, Start: h, Total: 10},
		{Granularity: models.Hourly, Start: h.Add(time.Hour), Total: 11},
		{Granularity: models.Hourly, Start: h.Add(4 * time.Hour), Total: 14},
	}
	now := h.Add(5*time.Hour + 20*time.Minute)

	series := FillSeries(queue, models.Hourly, time.UTC, now, 30)
	if len(series) != 30 {
		t.Fatalf("len = %d, want 30", len(series))
	}

	tests := []struct {
		slot  int
		start time.Time
		total int
	}{
		{29, h.Add(4 * time.Hour), 14},
		{28, h.Add(3 * time.Hour), 0},
		{27, h.Add(2 * time.Hour), 0},
		{26, h.Add(time.Hour), 11},
		{25, h, 10},
		{24, h.Add(-time.Hour), 0},
		{0, h.Add(-25 * time.Hour), 0},
	}
	for _, tt := range tests {
		got := series[tt.slot]
		if !got.Start.Equal(tt.start) || got.Total != tt.total {
			t.Errorf("slot %d = {%v, %d}, want {%v, %d}", tt.slot, got.Start, got.Total, tt.start, tt.total)
		}
	}
	for i := 1; i < len(series); i++ {
		if !series[i].Start.Equal(series[i-1].Start.Add(time.Hour)) {
			t.Fatalf("series not contiguous at %d", i)
		}
	}
}

func TestFillSeriesSkipsOpenBucket(t *testing.T) {
	now := base.Add(30 * time.Minute)
	queue := []models.IntervalBucket{
		{Start: base.Add(-time.Hour), Total: 1},
		{Start: base, Total: 2}, // current, still open period
	}

	series := FillSeries(queue, models.Hourly, time.UTC, now, 3)
	if !series[2].Start.Equal(base.Add(-time.Hour)) || series[2].Total != 1 {
		t.Errorf("newest slot = %+v, want the 11:00 bucket", series[2])
	}
	if series[2].Granularity != models.Hourly {
		t.Errorf("granularity = %s, want hourly", series[2].Granularity)
	}
}

func TestAssemble(t *testing.T) {
	target := models.Target{Name: "Router", InternalName: "router", Location: time.UTC}
	a := NewAggregator(time.UTC, 0)
	now := base.Add(24 * time.Hour)

	for _, s := range []models.Sample{
		models.NewSample(now.Add(-40*time.Minute), 50),
		models.NewSample(now.Add(-10*time.Minute), 20),
		models.NewSample(now.Add(-time.Minute), models.LatencyTimeout),
	} {
		if _, err := a.Append(s); err != nil {
			t.Fatal(err)
		}
	}

	snap := Assemble(target, a, now, 10*time.Second)

	if snap.Name != "Router" || snap.InternalName != "router" {
		t.Errorf("identity = %q/%q", snap.Name, snap.InternalName)
	}
	if !snap.GeneratedAt.Equal(now) || !snap.ValidUntil.Equal(now.Add(10*time.Second)) {
		t.Errorf("validity = %v..%v", snap.GeneratedAt, snap.ValidUntil)
	}

	if len(snap.Recent) != models.SnapshotLength {
		t.Fatalf("recent length = %d", len(snap.Recent))
	}
	for i := 0; i < 27; i++ {
		if snap.Recent[i] != models.NoData {
			t.Fatalf("recent[%d] = %d, want NoData", i, snap.Recent[i])
		}
	}
	if snap.Recent[27] != 50 || snap.Recent[28] != 20 || snap.Recent[29] != 65535 {
		t.Errorf("recent tail = %v", snap.Recent[27:])
	}

	for _, g := range models.Granularities {
		if got := len(snap.Buckets(g)); got != models.SnapshotLength {
			t.Errorf("%s length = %d", g, got)
		}
	}

	if snap.Last30Minutes.Total != 2 || snap.Last30Minutes.Timeouts != 1 || snap.Last30Minutes.P50 != 20 {
		t.Errorf("last 30 minutes = %+v", snap.Last30Minutes)
	}
	if snap.Last24Hours.Total != 3 || snap.Last24Hours.P99 != 20 || snap.Last24Hours.P1 != 20 {
		t.Errorf("last 24 hours = %+v", snap.Last24Hours)
	}
	if snap.Last30Days.Total != 3 {
		t.Errorf("last 30 days = %+v", snap.Last30Days)
	}
}
