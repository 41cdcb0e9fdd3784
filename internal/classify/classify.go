// Package classify computes natural-breaks thresholds and maps values onto
// the choropleth color scale.
package classify

import (
	"fmt"
	"math"
	"sort"

	"github.com/rotisserie/eris"
)

// NumClasses is the number of color buckets on the map.
const NumClasses = 6

// NoDataColor fills tracts whose value is missing.
const NoDataColor = "#cccccc"

// Palette is the 6-color diverging scale, darkest-low to darkest-high.
var Palette = [NumClasses]string{
	"#2166ac",
	"#67a9cf",
	"#d1e5f0",
	"#fddbc7",
	"#ef8a62",
	"#b2182b",
}

// ErrInsufficientValues is returned when there are fewer distinct values
// than requested classes.
var ErrInsufficientValues = eris.New("classify: not enough distinct values")

// Breaks holds the ordered thresholds separating the color buckets. Bucket 0
// holds values <= Breaks[0]; bucket i holds values > Breaks[i-1].
type Breaks []float64

// ComputeBreaks runs Fisher-Jenks natural breaks over values and returns
// numClasses-1 thresholds, the upper bound of every class but the last.
// Non-finite values are ignored. Equal values always land in the same class.
func ComputeBreaks(values []float64, numClasses int) (Breaks, error) {
	if numClasses < 2 {
		return nil, eris.Errorf("classify: numClasses must be >= 2, got %d", numClasses)
	}

	distinct, weights := compress(values)
	if len(distinct) < numClasses {
		return nil, eris.Wrapf(ErrInsufficientValues, "classify: %d distinct values for %d classes", len(distinct), numClasses)
	}

	ends := jenks(distinct, weights, numClasses)
	breaks := make(Breaks, 0, numClasses-1)
	for _, end := range ends[:numClasses-1] {
		breaks = append(breaks, distinct[end])
	}
	return breaks, nil
}

// compress sorts the finite values and collapses duplicates into weights.
func compress(values []float64) ([]float64, []float64) {
	sorted := make([]float64, 0, len(values))
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		sorted = append(sorted, v)
	}
	sort.Float64s(sorted)

	var distinct, weights []float64
	for _, v := range sorted {
		n := len(distinct)
		if n > 0 && distinct[n-1] == v {
			weights[n-1]++
			continue
		}
		distinct = append(distinct, v)
		weights = append(weights, 1)
	}
	return distinct, weights
}

// jenks returns, for each class, the index of its last element in x. It
// minimizes the weighted within-class sum of squared deviations with the
// classic dynamic program. len(x) must be >= k.
func jenks(x, w []float64, k int) []int {
	n := len(x)

	// Prefix sums of weight, weight*x and weight*x^2.
	sw := make([]float64, n+1)
	swx := make([]float64, n+1)
	swx2 := make([]float64, n+1)
	for i := range n {
		sw[i+1] = sw[i] + w[i]
		swx[i+1] = swx[i] + w[i]*x[i]
		swx2[i+1] = swx2[i] + w[i]*x[i]*x[i]
	}
	ssd := func(i, j int) float64 { // inclusive range [i, j]
		cw := sw[j+1] - sw[i]
		cx := swx[j+1] - swx[i]
		return (swx2[j+1] - swx2[i]) - cx*cx/cw
	}

	// cost[c][j]: best cost of splitting x[0..j] into c+1 classes.
	// split[c][j]: first index of the last class in that split.
	cost := make([][]float64, k)
	split := make([][]int, k)
	for c := range k {
		cost[c] = make([]float64, n)
		split[c] = make([]int, n)
	}
	for j := range n {
		cost[0][j] = ssd(0, j)
	}
	for c := 1; c < k; c++ {
		for j := c; j < n; j++ {
			best := math.Inf(1)
			bestStart := c
			for start := c; start <= j; start++ {
				v := cost[c-1][start-1] + ssd(start, j)
				if v < best {
					best = v
					bestStart = start
				}
			}
			cost[c][j] = best
			split[c][j] = bestStart
		}
	}

	ends := make([]int, k)
	end := n - 1
	for c := k - 1; c >= 0; c-- {
		ends[c] = end
		if c > 0 {
			end = split[c][end] - 1
		}
	}
	return ends
}

// ColorFor returns the palette color for v. NaN and infinities map to
// NoDataColor, as does any value when breaks is empty.
func ColorFor(v float64, breaks Breaks) string {
	idx := Bucket(v, breaks)
	if idx < 0 {
		return NoDataColor
	}
	return Palette[idx]
}

// Bucket returns the bucket index of v, or -1 for missing values. A value
// equal to a threshold stays in the class that threshold closes; only values
// strictly above it move up. The minimum lands in bucket 0.
func Bucket(v float64, breaks Breaks) int {
	if math.IsNaN(v) || math.IsInf(v, 0) || len(breaks) == 0 {
		return -1
	}
	top := min(len(breaks), NumClasses-1)
	for i := top; i >= 1; i-- {
		if v > breaks[i-1] {
			return i
		}
	}
	return 0
}

// LegendEntry is one labeled swatch of a legend control.
type LegendEntry struct {
	Color string `json:"color"`
	Label string `json:"label"`
	// Dashed marks border-only entries (race overlay legend).
	Dashed bool `json:"dashed,omitempty"`
}

// Legend returns one entry per bucket, lowest first.
func Legend(breaks Breaks) []LegendEntry {
	if len(breaks) == 0 {
		return []LegendEntry{{Color: NoDataColor, Label: "No data"}}
	}
	n := min(len(breaks), NumClasses-1)
	entries := make([]LegendEntry, 0, n+1)
	entries = append(entries, LegendEntry{Color: Palette[0], Label: "≤ " + FormatValue(breaks[0])})
	for i := 1; i < n; i++ {
		entries = append(entries, LegendEntry{
			Color: Palette[i],
			Label: fmt.Sprintf("%s – %s", FormatValue(breaks[i-1]), FormatValue(breaks[i])),
		})
	}
	entries = append(entries, LegendEntry{Color: Palette[n], Label: "> " + FormatValue(breaks[n-1])})
	return entries
}

// FormatValue renders a value the way legends and tooltips show it.
func FormatValue(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "N/A"
	}
	return fmt.Sprintf("%.2f", v)
}
