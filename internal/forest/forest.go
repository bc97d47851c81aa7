package forest

import (
	"fmt"
	"hash/fnv"
	"math"
	"math/rand"
	"time"

	"github.com/rawblock/txrisk-engine/pkg/models"
)

// Isolation Forest
//
// Anomalous points isolate quickly: a random axis-aligned split tree needs
// few cuts to corner an outlier, many to corner a point inside a dense
// cluster. The anomaly score is derived from the average isolation depth
// across an ensemble of such trees:
//
//	s(x) = 2^(-E[pathLength(x)] / c(sampleSize))   in (0, 1)
//
// where c(n) is the expected path length of an unsuccessful BST search,
// the standard normalization. Scores near 1 are anomalies; near 0.5 and
// below is unremarkable.
//
// Training is deterministic per client: the RNG is seeded from the client
// id, so retraining on identical samples reproduces identical trees.

// Defaults per the published algorithm.
const (
	DefaultNumTrees   = 100
	DefaultSampleSize = 256
	MinTrainSamples   = 50
)

// ModelError marks a missing, stale or malformed model.
type ModelError struct {
	ClientID string
	Msg      string
}

func (e *ModelError) Error() string {
	return fmt.Sprintf("isolation forest model for %s: %s", e.ClientID, e.Msg)
}

// Train builds a forest from the client's feature vectors. Fewer than
// MinTrainSamples vectors cannot produce a usable model.
func Train(clientID string, samples [][]float64, numTrees, sampleSize int) (*models.IsolationForestModel, error) {
	if len(samples) < MinTrainSamples {
		return nil, &ModelError{ClientID: clientID,
			Msg: fmt.Sprintf("need at least %d samples, have %d", MinTrainSamples, len(samples))}
	}
	for i, s := range samples {
		if len(s) != models.FeatureCount {
			return nil, &ModelError{ClientID: clientID,
				Msg: fmt.Sprintf("sample %d has %d features, want %d", i, len(s), models.FeatureCount)}
		}
	}
	if numTrees <= 0 {
		numTrees = DefaultNumTrees
	}
	if sampleSize <= 0 {
		sampleSize = DefaultSampleSize
	}
	if sampleSize > len(samples) {
		sampleSize = len(samples)
	}
	heightLimit := int(math.Ceil(math.Log2(float64(sampleSize))))

	rng := rand.New(rand.NewSource(seedFor(clientID)))
	trees := make([]models.ForestTree, numTrees)
	for t := range trees {
		sub := subSample(rng, samples, sampleSize)
		b := &treeBuilder{rng: rng}
		b.build(sub, 0, heightLimit)
		trees[t] = models.ForestTree{
			Feature: b.feature, Split: b.split,
			Left: b.left, Right: b.right, Size: b.size,
		}
	}

	return &models.IsolationForestModel{
		ClientID:    clientID,
		Version:     models.ForestModelVersion,
		NumTrees:    numTrees,
		SampleSize:  sampleSize,
		HeightLimit: heightLimit,
		Trees:       trees,
		SampleCount: len(samples),
		TrainedAt:   time.Now().UnixMilli(),
	}, nil
}

// Score computes the anomaly score of one feature vector, in (0, 1).
func Score(m *models.IsolationForestModel, x []float64) (float64, error) {
	if m.Version != models.ForestModelVersion {
		return 0, &ModelError{ClientID: m.ClientID, Msg: "unknown model version " + m.Version}
	}
	if len(x) != models.FeatureCount {
		return 0, &ModelError{ClientID: m.ClientID,
			Msg: fmt.Sprintf("vector has %d features, want %d", len(x), models.FeatureCount)}
	}
	if len(m.Trees) == 0 {
		return 0, &ModelError{ClientID: m.ClientID, Msg: "empty tree ensemble"}
	}

	var total float64
	for i := range m.Trees {
		total += pathLength(&m.Trees[i], x)
	}
	avg := total / float64(len(m.Trees))
	return math.Pow(2, -avg/cFactor(m.SampleSize)), nil
}

// ─── Tree construction ──────────────────────────────────────────────

// treeBuilder flattens the recursion into parallel node arrays; node 0 is
// the root and -1 marks a leaf child.
type treeBuilder struct {
	rng     *rand.Rand
	feature []int
	split   []float64
	left    []int
	right   []int
	size    []int
}

// build appends the subtree for data and returns its node index.
func (b *treeBuilder) build(data [][]float64, depth, heightLimit int) int {
	idx := len(b.feature)
	b.feature = append(b.feature, -1)
	b.split = append(b.split, 0)
	b.left = append(b.left, -1)
	b.right = append(b.right, -1)
	b.size = append(b.size, len(data))

	if depth >= heightLimit || len(data) <= 1 {
		return idx
	}

	// Random feature, random split within the column's observed range.
	// A pure column cannot split; try the remaining features before giving up.
	perm := b.rng.Perm(models.FeatureCount)
	for _, f := range perm {
		lo, hi := columnRange(data, f)
		if hi <= lo {
			continue
		}
		split := lo + b.rng.Float64()*(hi-lo)

		var leftData, rightData [][]float64
		for _, row := range data {
			if row[f] < split {
				leftData = append(leftData, row)
			} else {
				rightData = append(rightData, row)
			}
		}
		if len(leftData) == 0 || len(rightData) == 0 {
			continue
		}

		b.feature[idx] = f
		b.split[idx] = split
		b.left[idx] = b.build(leftData, depth+1, heightLimit)
		b.right[idx] = b.build(rightData, depth+1, heightLimit)
		return idx
	}
	return idx // all columns pure: leaf
}

func columnRange(data [][]float64, f int) (float64, float64) {
	lo, hi := data[0][f], data[0][f]
	for _, row := range data[1:] {
		if row[f] < lo {
			lo = row[f]
		}
		if row[f] > hi {
			hi = row[f]
		}
	}
	return lo, hi
}

// subSample draws sampleSize rows without replacement.
func subSample(rng *rand.Rand, samples [][]float64, sampleSize int) [][]float64 {
	if sampleSize >= len(samples) {
		return samples
	}
	idx := rng.Perm(len(samples))[:sampleSize]
	out := make([][]float64, sampleSize)
	for i, j := range idx {
		out[i] = samples[j]
	}
	return out
}

// ─── Scoring ────────────────────────────────────────────────────────

// pathLength walks x down one tree; leaves holding more than one training
// sample are credited their expected remaining depth c(size).
func pathLength(t *models.ForestTree, x []float64) float64 {
	depth := 0.0
	node := 0
	for {
		f := t.Feature[node]
		if f < 0 { // leaf
			return depth + cFactor(t.Size[node])
		}
		depth++
		if x[f] < t.Split[node] {
			node = t.Left[node]
		} else {
			node = t.Right[node]
		}
	}
}

// cFactor is c(n), the average path length of an unsuccessful BST search:
// 2H(n-1) - 2(n-1)/n with H the harmonic number (ln n + Euler-Mascheroni).
func cFactor(n int) float64 {
	if n <= 1 {
		return 0
	}
	h := math.Log(float64(n-1)) + 0.5772156649015329
	return 2*h - 2*float64(n-1)/float64(n)
}

// seedFor derives the deterministic per-client RNG seed.
func seedFor(clientID string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(clientID))
	return int64(h.Sum64())
}
