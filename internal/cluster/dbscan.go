// Package cluster groups unclustered facts into cross-source
// equivalence classes by embedding their text and running density-based
// clustering over the vectors.
package cluster

import "math"

// Noise is the label for points that do not belong to any dense group.
const Noise int64 = -1

// labelUnvisited marks points not yet examined during a scan.
const labelUnvisited int64 = -2

// DBSCAN partitions vectors into dense groups under cosine distance,
// labeling sparse points Noise. Labels are assigned in discovery order
// and neighbors are visited in index order, so for a fixed input the
// output is fully deterministic.
func DBSCAN(vectors [][]float32, eps float64, minPoints int) []int64 {
	n := len(vectors)
	labels := make([]int64, n)
	for i := range labels {
		labels[i] = labelUnvisited
	}

	var nextLabel int64
	for i := 0; i < n; i++ {
		if labels[i] != labelUnvisited {
			continue
		}

		neighbors := regionQuery(vectors, i, eps)
		if len(neighbors) < minPoints {
			labels[i] = Noise
			continue
		}

		label := nextLabel
		nextLabel++
		labels[i] = label

		// Breadth-first expansion; the seed list grows as new core
		// points are reached.
		seeds := append([]int(nil), neighbors...)
		for head := 0; head < len(seeds); head++ {
			j := seeds[head]
			if labels[j] == Noise {
				// Border point previously labeled noise joins the group.
				labels[j] = label
			}
			if labels[j] != labelUnvisited {
				continue
			}
			labels[j] = label

			jNeighbors := regionQuery(vectors, j, eps)
			if len(jNeighbors) >= minPoints {
				seeds = append(seeds, jNeighbors...)
			}
		}
	}
	return labels
}

// regionQuery returns the indices within eps cosine distance of point i,
// in ascending index order. The point itself is included, matching the
// classic definition of an eps-neighborhood.
func regionQuery(vectors [][]float32, i int, eps float64) []int {
	var neighbors []int
	for j := range vectors {
		if j == i || cosineDistance(vectors[i], vectors[j]) <= eps {
			neighbors = append(neighbors, j)
		}
	}
	return neighbors
}

// cosineDistance is 1 - cosine similarity. Vectors with zero norm are
// maximally distant from everything.
func cosineDistance(a, b []float32) float64 {
	var dot, normA, normB float64
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(normA)*math.Sqrt(normB))
}
