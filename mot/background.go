package mot

import (
	"context"
	"image"
	"image/color"
	"math"
	"sort"
	"sync/atomic"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"
)

// FrameSource gives random access to grayscale frames of a movie
type FrameSource interface {
	Frame(ctx context.Context, index int) (*image.Gray, error)
	NFrames() int
}

// Foreground is the classification of one frame
type Foreground struct {
	Mask     *image.Gray
	Labeling Labeling
}

// BackgroundModel separates moving objects from the static scene
type BackgroundModel interface {
	// Classify thresholds a frame against the installed background
	Classify(ctx context.Context, index int, img *image.Gray) (Foreground, error)
	// Recompute estimates background over frames [first, last] and installs it once complete
	Recompute(ctx context.Context, first, last int) (*image.Gray, error)
}

// BackgroundWindow is the range of frames a background was estimated from
type BackgroundWindow struct {
	First int `yaml:"first"`
	Last  int `yaml:"last"`
}

// BackgroundRecord is one background of the run together with the window it was estimated from
type BackgroundRecord struct {
	Window BackgroundWindow
	Image  *image.Gray
}

// MedianBackground is per-pixel median of frames sampled evenly from a window
type MedianBackground struct {
	src       FrameSource
	threshold float64
	nFrames   int
	mergeGap  int
	current   atomic.Pointer[image.Gray]
}

// NewMedianBackground creates median background model over the frame source
func NewMedianBackground(src FrameSource, cfg Config) *MedianBackground {
	return &MedianBackground{
		src:       src,
		threshold: cfg.BackgroundThreshold,
		nFrames:   maxInt(1, cfg.BackgroundFrames),
		mergeGap:  cfg.MergeGap,
	}
}

// Background returns currently installed background; nil before first Recompute
func (bg *MedianBackground) Background() *image.Gray {
	return bg.current.Load()
}

// Install replaces the background
func (bg *MedianBackground) Install(img *image.Gray) {
	bg.current.Store(img)
}

// Recompute implements BackgroundModel
func (bg *MedianBackground) Recompute(ctx context.Context, first, last int) (*image.Gray, error) {
	if n := bg.src.NFrames(); last >= n {
		last = n - 1
	}
	if first < 0 || last < first {
		return nil, errors.Errorf("empty background window [%d, %d]", first, last)
	}
	indices := sampleFrames(first, last, bg.nFrames)
	frames := make([]*image.Gray, 0, len(indices))
	var bounds image.Rectangle
	for i, index := range indices {
		img, err := bg.src.Frame(ctx, index)
		if err != nil {
			return nil, errors.Wrapf(err, "read frame %d", index)
		}
		if i == 0 {
			bounds = img.Bounds()
		} else if img.Bounds().Dx() != bounds.Dx() || img.Bounds().Dy() != bounds.Dy() {
			return nil, newInputError(index, "frame is %v, expected %v", img.Bounds().Size(), bounds.Size())
		}
		frames = append(frames, img)
	}

	width, height := bounds.Dx(), bounds.Dy()
	out := image.NewGray(image.Rect(0, 0, width, height))
	samples := make([]float64, len(frames))
	for y := 0; y < height; y++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for x := 0; x < width; x++ {
			for k, img := range frames {
				b := img.Bounds()
				samples[k] = float64(img.GrayAt(b.Min.X+x, b.Min.Y+y).Y)
			}
			sort.Float64s(samples)
			median := stat.Quantile(0.5, stat.Empirical, samples, nil)
			out.SetGray(x, y, grayOf(median))
		}
	}
	bg.current.Store(out)
	logger.WithField("first", first).WithField("last", last).WithField("samples", len(frames)).Info("background recomputed")
	return out, nil
}

// Classify implements BackgroundModel
func (bg *MedianBackground) Classify(ctx context.Context, index int, img *image.Gray) (Foreground, error) {
	background := bg.current.Load()
	if background == nil {
		return Foreground{}, errors.New("background is not computed")
	}
	if img == nil {
		return Foreground{}, newInputError(index, "nil frame")
	}
	b := img.Bounds()
	if b.Dx() != background.Bounds().Dx() || b.Dy() != background.Bounds().Dy() {
		return Foreground{}, newInputError(index, "frame is %v, background is %v", b.Size(), background.Bounds().Size())
	}
	mask := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			diff := math.Abs(float64(img.GrayAt(b.Min.X+x, b.Min.Y+y).Y) - float64(background.GrayAt(x, y).Y))
			if diff > bg.threshold {
				mask.Pix[y*mask.Stride+x] = 255
			}
		}
	}
	if err := ctx.Err(); err != nil {
		return Foreground{}, err
	}
	return Foreground{
		Mask:     mask,
		Labeling: LabelComponents(mask, bg.mergeGap),
	}, nil
}

// sampleFrames picks up to n frame indices spread evenly over [first, last]
func sampleFrames(first, last, n int) []int {
	total := last - first + 1
	if n > total {
		n = total
	}
	if n <= 1 {
		return []int{first + (total-1)/2}
	}
	out := make([]int, n)
	for i := 0; i < n; i++ {
		out[i] = first + i*(total-1)/(n-1)
	}
	return out
}

func grayOf(v float64) color.Gray {
	return color.Gray{Y: uint8(math.Max(0, math.Min(255, math.Round(v))))}
}

// LabelComponents labels 4-connected foreground regions of the mask in scan order.
// With mergeGap > 0 components whose bounding boxes are separated by fewer than mergeGap pixels are grouped.
func LabelComponents(mask *image.Gray, mergeGap int) Labeling {
	bounds := mask.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	lab := Labeling{
		Width:  width,
		Height: height,
		Labels: make([]int32, width*height),
	}
	isForeground := func(x, y int) bool {
		return mask.GrayAt(bounds.Min.X+x, bounds.Min.Y+y).Y != 0
	}
	boxes := []image.Rectangle{}
	queue := make([]image.Point, 0, 64)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if lab.Labels[y*width+x] != 0 || !isForeground(x, y) {
				continue
			}
			lab.Count++
			label := int32(lab.Count)
			lab.Labels[y*width+x] = label
			box := image.Rect(x, y, x+1, y+1)
			queue = append(queue[:0], image.Point{X: x, Y: y})
			for k := 0; k < len(queue); k++ {
				pt := queue[k]
				box = box.Union(image.Rect(pt.X, pt.Y, pt.X+1, pt.Y+1))
				neighbors := [4]image.Point{{pt.X, pt.Y - 1}, {pt.X, pt.Y + 1}, {pt.X - 1, pt.Y}, {pt.X + 1, pt.Y}}
				for _, p := range neighbors {
					if p.X < 0 || p.Y < 0 || p.X >= width || p.Y >= height {
						continue
					}
					idx := p.Y*width + p.X
					if lab.Labels[idx] != 0 || !isForeground(p.X, p.Y) {
						continue
					}
					lab.Labels[idx] = label
					queue = append(queue, p)
				}
			}
			boxes = append(boxes, box)
		}
	}
	if mergeGap > 0 {
		lab.Groups = groupNearby(boxes, mergeGap)
	}
	return lab
}

// groupNearby clusters boxes closer than gap pixels; only clusters of two or more are returned
func groupNearby(boxes []image.Rectangle, gap int) [][]int32 {
	parent := make([]int, len(boxes))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		if parent[i] != i {
			parent[i] = find(parent[i])
		}
		return parent[i]
	}
	for i := range boxes {
		grown := boxes[i].Inset(-gap)
		for j := i + 1; j < len(boxes); j++ {
			if grown.Overlaps(boxes[j]) {
				ri, rj := find(i), find(j)
				if ri != rj {
					parent[maxInt(ri, rj)] = minInt(ri, rj)
				}
			}
		}
	}
	members := make(map[int][]int32)
	roots := []int{}
	for i := range boxes {
		root := find(i)
		if _, ok := members[root]; !ok {
			roots = append(roots, root)
		}
		members[root] = append(members[root], int32(i+1))
	}
	groups := [][]int32{}
	for _, root := range roots {
		if len(members[root]) > 1 {
			groups = append(groups, members[root])
		}
	}
	return groups
}
