package yolods

// Deterministic train/val/test partitioning of image/label pairs.

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
)

// The split names, in assignment order.
const (
	SplitTrain = "train"
	SplitVal   = "val"
	SplitTest  = "test"
)

// SplitNames lists the split names in assignment order.
var SplitNames = []string{SplitTrain, SplitVal, SplitTest}

// proportionEpsilon is the tolerance for the proportions adding up to 1.
const proportionEpsilon = 1e-6

// Pair is an image and its label file, matched by base name.
type Pair struct {
	Name      string // Base name without extension.
	ImagePath string
	LabelPath string
}

// Proportions are the target fractions of the three splits.
type Proportions struct {
	Train, Val, Test float64
}

// values returns the proportions in SplitNames order.
func (p Proportions) values() []float64 {
	return []float64{p.Train, p.Val, p.Test}
}

// Validate checks that no proportion is negative and that they add up to 1.
func (p Proportions) Validate() error {
	sum := 0.0
	for i, v := range p.values() {
		if v < 0 || math.IsNaN(v) {
			return fmt.Errorf("%w: negative %s proportion %v", ErrConfig, SplitNames[i], v)
		}
		sum += v
	}
	if math.Abs(sum-1) > proportionEpsilon {
		return fmt.Errorf("%w: split proportions add up to %v, not 1", ErrConfig, sum)
	}
	return nil
}

// SplitSizes returns the subset sizes for n items, in SplitNames order.
//
// The proportions are scaled to sum to exactly 1. Every split gets floor(n*p) items. The
// remaining items go one each to the splits with the largest fractional remainders, ties going to
// the split listed first. The sizes always add up to n.
func (p Proportions) SplitSizes(n int) []int {
	props := p.values()
	sum := 0.0
	for _, v := range props {
		sum += v
	}
	if sum > 0 {
		for i := range props {
			props[i] /= sum
		}
	}

	sizes := make([]int, len(props))
	rems := make([]float64, len(props))
	assigned := 0
	for i, v := range props {
		exact := float64(n) * v
		sizes[i] = int(math.Floor(exact))
		rems[i] = exact - float64(sizes[i])
		assigned += sizes[i]
	}

	order := []int{0, 1, 2}
	sort.SliceStable(order, func(a, b int) bool {
		return rems[order[a]] > rems[order[b]]
	})
	for i := 0; assigned < n; i = (i + 1) % len(order) {
		sizes[order[i]]++
		assigned++
	}
	// Rounding error can still overshoot; take the excess from the smallest remainders.
	for i := len(order) - 1; assigned > n; i = (i + len(order) - 1) % len(order) {
		if sizes[order[i]] > 0 {
			sizes[order[i]]--
			assigned--
		}
	}

	return sizes
}

// Assign partitions pairs into the train, val and test splits with the given proportions.
//
// The pairs are sorted by name and shuffled with a generator seeded by seed before slicing, so
// the same input and seed always give the same partition regardless of the input order. Every
// pair ends up in exactly one split. The input slice is not modified.
func Assign(pairs []Pair, proportions Proportions, seed int64) (map[string][]Pair, error) {
	if err := proportions.Validate(); err != nil {
		return nil, err
	}

	shuffled := make([]Pair, len(pairs))
	copy(shuffled, pairs)
	sort.SliceStable(shuffled, func(i, j int) bool {
		if shuffled[i].Name != shuffled[j].Name {
			return shuffled[i].Name < shuffled[j].Name
		}
		return shuffled[i].ImagePath < shuffled[j].ImagePath
	})
	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	sizes := proportions.SplitSizes(len(shuffled))
	splits := make(map[string][]Pair, len(SplitNames))
	start := 0
	for i, name := range SplitNames {
		end := start + sizes[i]
		splits[name] = shuffled[start:end:end]
		start = end
	}

	return splits, nil
}

// PairFiles matches the images in imagesDir to the label files in labelsDir by base name.
//
// Returns the complete pairs sorted by name, plus the images without a label and the labels
// without an image.
func PairFiles(imagesDir, labelsDir string) (pairs []Pair, unlabelled, orphans []string,
	err error) {

	imageFiles, err := filesByExtInDir(imagesDir, imageFileExts...)
	if err != nil {
		return nil, nil, nil, err
	}
	labelFiles, err := filesByExtInDir(labelsDir, LabelFileExt)
	if err != nil {
		return nil, nil, nil, err
	}
	labelFiles = withoutClassList(labelFiles)

	labelsByName := mapBaseNamesToPaths(labelFiles, nil)
	matched := make(map[string]bool, len(labelsByName))
	for name, imagePath := range mapBaseNamesToPaths(imageFiles, nil) {
		labelPath, ok := labelsByName[name]
		if !ok {
			unlabelled = append(unlabelled, imagePath)
			continue
		}
		matched[name] = true
		pairs = append(pairs, Pair{Name: name, ImagePath: imagePath, LabelPath: labelPath})
	}
	for name, labelPath := range labelsByName {
		if !matched[name] {
			orphans = append(orphans, labelPath)
		}
	}

	sort.Slice(pairs, func(i, j int) bool { return pairs[i].Name < pairs[j].Name })
	sort.Strings(unlabelled)
	sort.Strings(orphans)
	return pairs, unlabelled, orphans, nil
}

