package fingerprint

import (
	"context"
	"fmt"
	"sort"
	"time"

	"clipper/internal/database"
	"clipper/internal/metrics"
	"clipper/internal/phash"
	"clipper/internal/unionfind"
)

// DuplicateMatch is one candidate item found similar to a query, per §4.6
// "check-duplicate".
type DuplicateMatch struct {
	MediaItemID     int64   `json:"mediaItemId"`
	MinDistance     int     `json:"minDistance"`
	SimilarityPct   float64 `json:"similarityPercent"`
}

// CheckDuplicate computes a transient fingerprint set for queryHashes (the
// caller need not have persisted them) and returns every library item whose
// minimum Hamming distance is ≤ threshold, ascending by distance. category
// restricts the candidate set when non-empty.
func (e *Engine) CheckDuplicate(ctx context.Context, queryHashes []string, category string, threshold int) ([]DuplicateMatch, error) {
	if threshold <= 0 {
		threshold = DefaultDuplicateThreshold
	}
	start := time.Now()
	defer func() {
		metrics.FingerprintDuplicateScanDuration.WithLabelValues("single").Observe(time.Since(start).Seconds())
	}()
	metrics.FingerprintDuplicateScansTotal.WithLabelValues("single").Inc()

	candidates, err := e.db.FingerprintsForDuplicateScan(ctx, category)
	if err != nil {
		return nil, fmt.Errorf("load candidate fingerprints: %w", err)
	}

	byItem := groupByItem(candidates)
	var matches []DuplicateMatch
	for itemID, hashes := range byItem {
		dist, ok, err := minDistance(queryHashes, hashes)
		if err != nil {
			return nil, err
		}
		if !ok || dist > threshold {
			continue
		}
		matches = append(matches, DuplicateMatch{
			MediaItemID:   itemID,
			MinDistance:   dist,
			SimilarityPct: phash.SimilarityPercent(dist),
		})
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].MinDistance < matches[j].MinDistance })
	return matches, nil
}

// DuplicateGroup is one transitive cluster of similar items.
type DuplicateGroup struct {
	Members []DuplicateGroupMember `json:"members"`
}

// DuplicateGroupMember is one item within a DuplicateGroup, carrying its
// similarity to the group's first member.
type DuplicateGroupMember struct {
	MediaItemID   int64   `json:"mediaItemId"`
	SimilarityPct float64 `json:"similarityPercent"`
}

// FindAllDuplicates restricts to fingerprinted items (optionally within one
// category), computes pairwise min-distance similarity, and returns the
// transitive closure via union-find: groups of size ≥ 2, ordered by size
// descending, each member scored against the group's first.
func (e *Engine) FindAllDuplicates(ctx context.Context, category string, threshold int) ([]DuplicateGroup, error) {
	if threshold <= 0 {
		threshold = DefaultDuplicateThreshold
	}
	start := time.Now()
	defer func() {
		metrics.FingerprintDuplicateScanDuration.WithLabelValues("library").Observe(time.Since(start).Seconds())
	}()
	metrics.FingerprintDuplicateScansTotal.WithLabelValues("library").Inc()

	rows, err := e.db.FingerprintsForDuplicateScan(ctx, category)
	if err != nil {
		return nil, fmt.Errorf("load fingerprints: %w", err)
	}
	byItem := groupByItem(rows)

	ids := make([]int64, 0, len(byItem))
	for id := range byItem {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	index := make(map[int64]int, len(ids))
	for i, id := range ids {
		index[id] = i
	}
	dsu := unionfind.New(len(ids))

	var pairs []pairDist

	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			d, ok, err := minDistance(byItem[ids[i]], byItem[ids[j]])
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			if d <= threshold {
				dsu.Union(i, j)
			}
			pairs = append(pairs, pairDist{a: i, b: j, dist: d})
		}
	}

	groups := dsu.Groups(2)
	result := make([]DuplicateGroup, 0, len(groups))
	for _, group := range groups {
		first := group[0]
		members := make([]DuplicateGroupMember, 0, len(group))
		members = append(members, DuplicateGroupMember{MediaItemID: ids[first], SimilarityPct: 100})
		for _, idx := range group[1:] {
			dist := lookupPair(pairs, first, idx)
			members = append(members, DuplicateGroupMember{
				MediaItemID:   ids[idx],
				SimilarityPct: phash.SimilarityPercent(dist),
			})
		}
		result = append(result, DuplicateGroup{Members: members})
	}
	return result, nil
}

// pairDist records the pre-computed min Hamming distance between the
// fingerprint sets of two candidate items, addressed by their index in the
// ids slice.
type pairDist struct {
	a, b int
	dist int
}

func lookupPair(pairs []pairDist, a, b int) int {
	lo, hi := a, b
	if lo > hi {
		lo, hi = hi, lo
	}
	for _, p := range pairs {
		pa, pb := p.a, p.b
		if pa > pb {
			pa, pb = pb, pa
		}
		if pa == lo && pb == hi {
			return p.dist
		}
	}
	return DefaultDuplicateThreshold
}

func groupByItem(rows []database.VideoFingerprint) map[int64][]string {
	out := make(map[int64][]string)
	for _, r := range rows {
		out[r.MediaItemID] = append(out[r.MediaItemID], r.PHash)
	}
	return out
}

// minDistance returns the minimum Hamming distance across every (a, b)
// frame-hash pair. Returns ok=false when either side has no hashes at all,
// which the caller treats as "does not participate", not an error.
func minDistance(a, b []string) (int, bool, error) {
	if len(a) == 0 || len(b) == 0 {
		return 0, false, nil
	}
	best := -1
	for _, ha := range a {
		for _, hb := range b {
			d, err := phash.Hamming(ha, hb)
			if err != nil {
				return 0, false, err
			}
			if best == -1 || d < best {
				best = d
			}
		}
	}
	return best, true, nil
}
