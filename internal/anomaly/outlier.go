package anomaly

import (
	"context"
	"fmt"
	"math"

	"github.com/loganix/logwarden/internal/model"
)

// statisticalOutlier scores each hour's feature vector — record count,
// distinct template count, error rate, distinct source count — against an
// isolation-forest-style ensemble of random axis-aligned partitions. This
// is a from-scratch, dependency-free isolation forest: every split
// threshold is drawn from a package-local deterministic PRNG (a linear
// congruential generator reseeded per cycle from the bucket count), so
// identical input always scores identically, which a real math/rand
// source does not guarantee across Go versions.
type statisticalOutlier struct {
	cfg Config
}

func (s *statisticalOutlier) Name() string { return "statistical_outlier" }

const (
	isolationTrees    = 64
	isolationSubsample = 32
)

func (s *statisticalOutlier) Detect(ctx context.Context, records []model.LogRecord) ([]model.Anomaly, error) {
	buckets := bucketByHour(records)
	if len(buckets) < 8 {
		return nil, nil
	}

	features := make([][]float64, len(buckets))
	for i, b := range buckets {
		features[i] = featureVector(b)
	}

	rng := newLCG(uint64(len(buckets))*2654435761 + 1)
	forest := buildForest(features, rng)

	avgPathLen := averagePathLength(isolationSubsample)
	var anomalies []model.Anomaly
	for i, b := range buckets {
		if len(b.records) == 0 {
			continue
		}
		pathLen := meanPathLength(forest, features[i])
		score := math.Pow(2, -pathLen/avgPathLen)
		if score < 0.7 {
			continue
		}
		anomalies = append(anomalies, model.Anomaly{
			EventTime:   b.hour,
			Kind:        model.AnomalyMLDetected,
			Severity:    severityForScore(score),
			Description: fmt.Sprintf("hour's activity profile scored %.2f against the isolation forest baseline", score),
			LogCount:    int64(len(b.records)),
			Score:       score,
			Details: map[string]interface{}{
				"record_count":     len(b.records),
				"distinct_sources": int(features[i][3]),
			},
			CreatedAt: b.hour,
		})
	}
	return anomalies, nil
}

func severityForScore(score float64) model.AnomalySeverity {
	switch {
	case score >= 0.9:
		return model.AnomalySeverityHigh
	case score >= 0.8:
		return model.AnomalySeverityMedium
	default:
		return model.AnomalySeverityLow
	}
}

// featureVector is [record_count, distinct_templates, error_rate, distinct_sources].
func featureVector(b hourBucket) []float64 {
	templates := map[string]bool{}
	sources := map[string]bool{}
	errorCount := 0
	for _, rec := range b.records {
		templates[rec.TemplateID] = true
		sources[rec.Source] = true
		if isErrorOrWorse(rec.Severity) {
			errorCount++
		}
	}
	errorRate := 0.0
	if len(b.records) > 0 {
		errorRate = float64(errorCount) / float64(len(b.records))
	}
	return []float64{
		float64(len(b.records)),
		float64(len(templates)),
		errorRate,
		float64(len(sources)),
	}
}

// lcg is a minimal linear congruential generator: deterministic, no
// external dependency, good enough for partition-threshold sampling.
type lcg struct {
	state uint64
}

func newLCG(seed uint64) *lcg {
	if seed == 0 {
		seed = 1
	}
	return &lcg{state: seed}
}

func (g *lcg) next() uint64 {
	g.state = g.state*6364136223846793005 + 1442695040888963407
	return g.state
}

func (g *lcg) float64() float64 {
	return float64(g.next()>>11) / (1 << 53)
}

func (g *lcg) intn(n int) int {
	if n <= 0 {
		return 0
	}
	return int(g.next() % uint64(n))
}

// isoNode is one node of one isolation tree.
type isoNode struct {
	splitFeature int
	splitValue   float64
	left, right  *isoNode
	size         int // leaf-only: number of points that reached here
}

func buildForest(features [][]float64, rng *lcg) []*isoNode {
	forest := make([]*isoNode, 0, isolationTrees)
	for t := 0; t < isolationTrees; t++ {
		sample := sampleRows(features, isolationSubsample, rng)
		forest = append(forest, buildTree(sample, 0, heightLimit(len(sample)), rng))
	}
	return forest
}

func sampleRows(features [][]float64, n int, rng *lcg) [][]float64 {
	if n >= len(features) {
		out := make([][]float64, len(features))
		copy(out, features)
		return out
	}
	out := make([][]float64, 0, n)
	idx := make([]int, len(features))
	for i := range idx {
		idx[i] = i
	}
	for i := 0; i < n; i++ {
		j := i + rng.intn(len(idx)-i)
		idx[i], idx[j] = idx[j], idx[i]
		out = append(out, features[idx[i]])
	}
	return out
}

func heightLimit(n int) int {
	if n <= 1 {
		return 1
	}
	return int(math.Ceil(math.Log2(float64(n))))
}

func buildTree(rows [][]float64, depth, limit int, rng *lcg) *isoNode {
	if depth >= limit || len(rows) <= 1 {
		return &isoNode{size: len(rows)}
	}

	numFeatures := len(rows[0])
	feature := rng.intn(numFeatures)

	min, max := rows[0][feature], rows[0][feature]
	for _, r := range rows {
		if r[feature] < min {
			min = r[feature]
		}
		if r[feature] > max {
			max = r[feature]
		}
	}
	if min == max {
		return &isoNode{size: len(rows)}
	}

	split := min + rng.float64()*(max-min)

	var left, right [][]float64
	for _, r := range rows {
		if r[feature] < split {
			left = append(left, r)
		} else {
			right = append(right, r)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		return &isoNode{size: len(rows)}
	}

	return &isoNode{
		splitFeature: feature,
		splitValue:   split,
		left:         buildTree(left, depth+1, limit, rng),
		right:        buildTree(right, depth+1, limit, rng),
	}
}

func pathLength(n *isoNode, row []float64, depth int) float64 {
	if n.left == nil && n.right == nil {
		return float64(depth) + averagePathLength(n.size)
	}
	if row[n.splitFeature] < n.splitValue {
		return pathLength(n.left, row, depth+1)
	}
	return pathLength(n.right, row, depth+1)
}

func meanPathLength(forest []*isoNode, row []float64) float64 {
	if len(forest) == 0 {
		return 0
	}
	var sum float64
	for _, tree := range forest {
		sum += pathLength(tree, row, 0)
	}
	return sum / float64(len(forest))
}

// averagePathLength is the expected path length of an unsuccessful BST
// search, the standard isolation-forest normalization constant c(n).
func averagePathLength(n int) float64 {
	if n <= 1 {
		return 0
	}
	return 2*(math.Log(float64(n-1))+0.5772156649) - 2*(float64(n-1)/float64(n))
}
