package anomaly

import (
	"math"
	"sort"
	"time"

	"github.com/loganix/logwarden/internal/model"
)

// hourBucket is one hour's worth of records, grouped by EventTime.
type hourBucket struct {
	hour    time.Time
	records []model.LogRecord
}

// bucketByHour resamples records into a contiguous hourly series, oldest
// first: every hour between the earliest and latest event time gets a
// bucket, zero-count hours included, matching the resample('1H').size()
// idiom the strategies are derived from. A gap hour with no records is a
// real data point (e.g. for VOLUME_DROP), not an absence to skip over.
func bucketByHour(records []model.LogRecord) []hourBucket {
	if len(records) == 0 {
		return nil
	}

	byHour := map[time.Time][]model.LogRecord{}
	var earliest, latest time.Time
	for i, rec := range records {
		h := rec.EventTime.UTC().Truncate(time.Hour)
		byHour[h] = append(byHour[h], rec)
		if i == 0 || h.Before(earliest) {
			earliest = h
		}
		if i == 0 || h.After(latest) {
			latest = h
		}
	}

	out := make([]hourBucket, 0, int(latest.Sub(earliest).Hours())+1)
	for h := earliest; !h.After(latest); h = h.Add(time.Hour) {
		out = append(out, hourBucket{hour: h, records: byHour[h]})
	}
	return out
}

// meanStd returns the arithmetic mean and population standard deviation.
func meanStd(values []float64) (mean, std float64) {
	if len(values) == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean = sum / float64(len(values))

	var variance float64
	for _, v := range values {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(values))
	return mean, math.Sqrt(variance)
}

// percentile returns the value at the given percentile (0..1) of a sorted
// copy of values, using linear interpolation between closest ranks.
func percentile(values []int64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]int64, len(values))
	copy(sorted, values)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	if p <= 0 {
		return float64(sorted[0])
	}
	if p >= 1 {
		return float64(sorted[len(sorted)-1])
	}
	idx := p * float64(len(sorted)-1)
	lo := int(math.Floor(idx))
	hi := int(math.Ceil(idx))
	if lo == hi {
		return float64(sorted[lo])
	}
	frac := idx - float64(lo)
	return float64(sorted[lo])*(1-frac) + float64(sorted[hi])*frac
}
