// Package clustering groups first-pass ASR words flagged as
// low-confidence into time-proximate clusters and widens each into a
// correction window sized for a single second-pass call.
package clustering

// Word is the minimal shape clustering needs from a first-pass segment.
type Word struct {
	Text        string
	Start       float64
	End         float64
	Probability float64
}

// Cluster is one group of uncertain words plus the wider clip window
// the second-pass model should be given.
type Cluster struct {
	Words             []Word
	StartTime         float64
	EndTime           float64
	CenterTime        float64
	AverageConfidence float64
	ClipStart         float64
	ClipEnd           float64
}

// Params configures the clustering pass. Zero values are invalid;
// callers should use config-derived defaults (τ=0.60, p=5s, W=20s).
type Params struct {
	ConfidenceThreshold float64 // τ
	ProximitySeconds    float64 // p
	CorrectionWindow    float64 // W
}

// Cluster implements spec §4.5's four-step algorithm: filter by
// confidence, group by time proximity, annotate each group with a
// correction window, then merge windows that overlap.
func Cluster(words []Word, p Params) []Cluster {
	low := filter(words, p.ConfidenceThreshold)
	if len(low) == 0 {
		return nil
	}

	groups := groupByProximity(low, p.ProximitySeconds)

	clusters := make([]Cluster, 0, len(groups))
	for _, g := range groups {
		clusters = append(clusters, annotate(g, p.CorrectionWindow))
	}

	return mergeOverlaps(clusters)
}

func filter(words []Word, threshold float64) []Word {
	out := make([]Word, 0, len(words))
	for _, w := range words {
		if w.Probability < threshold {
			out = append(out, w)
		}
	}
	return out
}

// groupByProximity walks the filtered words in order, starting a new
// group whenever the gap to the previous word's end exceeds p. A gap
// of exactly zero (identical start/end timestamps) is not a break.
func groupByProximity(words []Word, proximity float64) [][]Word {
	if len(words) == 0 {
		return nil
	}

	groups := make([][]Word, 0)
	current := []Word{words[0]}

	for i := 1; i < len(words); i++ {
		w := words[i]
		last := current[len(current)-1]
		gap := w.Start - last.End
		if gap <= proximity {
			current = append(current, w)
		} else {
			groups = append(groups, current)
			current = []Word{w}
		}
	}
	groups = append(groups, current)

	return groups
}

func annotate(words []Word, window float64) Cluster {
	first := words[0]
	last := words[len(words)-1]

	startTime := first.Start
	endTime := last.End
	centerTime := (startTime + endTime) / 2

	sum := 0.0
	for _, w := range words {
		sum += w.Probability
	}
	avgConfidence := sum / float64(len(words))

	clipStart := centerTime - window/2
	if clipStart < 0 {
		clipStart = 0
	}
	clipEnd := centerTime + window/2

	return Cluster{
		Words:             words,
		StartTime:         startTime,
		EndTime:           endTime,
		CenterTime:        centerTime,
		AverageConfidence: avgConfidence,
		ClipStart:         clipStart,
		ClipEnd:           clipEnd,
	}
}

// mergeOverlaps performs a single left-to-right pass, merging any
// cluster whose clip window overlaps (or touches) the next one's.
// CenterTime of a merge is the midpoint of the two centers being
// merged, not recomputed from the merged word list — this is the
// documented contract, not an approximation.
func mergeOverlaps(clusters []Cluster) []Cluster {
	if len(clusters) == 0 {
		return nil
	}

	merged := make([]Cluster, 0, len(clusters))
	current := clusters[0]

	for i := 1; i < len(clusters); i++ {
		next := clusters[i]
		if current.ClipEnd >= next.ClipStart {
			current = mergeTwo(current, next)
		} else {
			merged = append(merged, current)
			current = next
		}
	}
	merged = append(merged, current)

	return merged
}

func mergeTwo(a, b Cluster) Cluster {
	words := make([]Word, 0, len(a.Words)+len(b.Words))
	words = append(words, a.Words...)
	words = append(words, b.Words...)

	startTime := min(a.StartTime, b.StartTime)
	endTime := max(a.EndTime, b.EndTime)
	clipStart := min(a.ClipStart, b.ClipStart)
	clipEnd := max(a.ClipEnd, b.ClipEnd)
	centerTime := (a.CenterTime + b.CenterTime) / 2

	na, nb := float64(len(a.Words)), float64(len(b.Words))
	avgConfidence := (a.AverageConfidence*na + b.AverageConfidence*nb) / (na + nb)

	return Cluster{
		Words:             words,
		StartTime:         startTime,
		EndTime:           endTime,
		CenterTime:        centerTime,
		AverageConfidence: avgConfidence,
		ClipStart:         clipStart,
		ClipEnd:           clipEnd,
	}
}

func min(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func max(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
