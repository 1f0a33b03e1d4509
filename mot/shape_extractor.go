package mot

import (
	"context"
	"image"
	"math"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Labeling is a connected-component labeling of a foreground mask.
// Labels is row-major, 0 is background and 1..Count are components.
type Labeling struct {
	Width  int
	Height int
	Labels []int32
	Count  int
	// Components pre-merged by the mask producer; each group yields a single observation
	Groups [][]int32
}

// component is one unit of extraction: a single label or a group of labels
type component struct {
	labels []int32
}

// ExtractShapes fits an ellipse to every component of the labeling.
// Output is in label order (a group takes the position of its smallest label).
func ExtractShapes(ctx context.Context, frame int, mask *image.Gray, lab Labeling, cfg Config) ([]Ellipse, error) {
	if err := validateLabeling(frame, mask, lab); err != nil {
		return nil, err
	}
	units, err := componentsOf(frame, lab)
	if err != nil {
		return nil, err
	}

	// Pixel coordinates per label
	pixels := make([][]float64, lab.Count+1)
	for idx, label := range lab.Labels {
		if label == 0 {
			continue
		}
		pixels[label] = append(pixels[label], float64(idx%lab.Width), float64(idx/lab.Width))
	}

	shapes := make([]Ellipse, len(units))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxInt(1, cfg.Workers))
	for i := range units {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			shape, err := fitComponent(units[i], pixels)
			if err != nil {
				return errors.Wrapf(err, "frame %d: component %v", frame, units[i].labels)
			}
			shapes[i] = shape
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]Ellipse, 0, len(shapes))
	for _, shape := range shapes {
		if shape.Area < cfg.MinShapeArea {
			continue
		}
		if cfg.MaxShapeArea > 0 && shape.Area > cfg.MaxShapeArea {
			continue
		}
		out = append(out, shape)
	}
	return out, nil
}

func validateLabeling(frame int, mask *image.Gray, lab Labeling) error {
	if mask == nil {
		return newInputError(frame, "nil foreground mask")
	}
	bounds := mask.Bounds()
	if bounds.Dx() != lab.Width || bounds.Dy() != lab.Height {
		return newInputError(frame, "mask is %dx%d but labeling is %dx%d", bounds.Dx(), bounds.Dy(), lab.Width, lab.Height)
	}
	if len(lab.Labels) != lab.Width*lab.Height {
		return newInputError(frame, "labeling has %d labels for %dx%d pixels", len(lab.Labels), lab.Width, lab.Height)
	}
	if lab.Count < 0 {
		return newInputError(frame, "negative component count %d", lab.Count)
	}
	present := make([]bool, lab.Count+1)
	for idx, label := range lab.Labels {
		if label < 0 || int(label) > lab.Count {
			return newInputError(frame, "label %d at pixel %d is outside [0, %d]", label, idx, lab.Count)
		}
		if label == 0 {
			continue
		}
		present[label] = true
		x := bounds.Min.X + idx%lab.Width
		y := bounds.Min.Y + idx/lab.Width
		if mask.GrayAt(x, y).Y == 0 {
			return newInputError(frame, "pixel (%d, %d) has label %d but is background in the mask", x, y, label)
		}
	}
	for label := 1; label <= lab.Count; label++ {
		if !present[label] {
			return newInputError(frame, "component %d of %d has no pixels", label, lab.Count)
		}
	}
	return nil
}

func componentsOf(frame int, lab Labeling) ([]component, error) {
	groupOf := make(map[int32]int, len(lab.Groups))
	for gi, group := range lab.Groups {
		if len(group) == 0 {
			return nil, newInputError(frame, "group %d is empty", gi)
		}
		for _, label := range group {
			if label <= 0 || int(label) > lab.Count {
				return nil, newInputError(frame, "group %d references unknown label %d", gi, label)
			}
			if _, ok := groupOf[label]; ok {
				return nil, newInputError(frame, "label %d is grouped twice", label)
			}
			groupOf[label] = gi
		}
	}
	units := make([]component, 0, lab.Count)
	emitted := make(map[int]struct{}, len(lab.Groups))
	for label := int32(1); int(label) <= lab.Count; label++ {
		gi, grouped := groupOf[label]
		if !grouped {
			units = append(units, component{labels: []int32{label}})
			continue
		}
		if _, ok := emitted[gi]; ok {
			continue
		}
		emitted[gi] = struct{}{}
		units = append(units, component{labels: lab.Groups[gi]})
	}
	return units, nil
}

// fitComponent fits centroid and second moments of the component pixels.
// Variance along a semi-axis of a uniformly filled ellipse is a²/4, so semi-axes are 2*sqrt(eigenvalue).
func fitComponent(unit component, pixels [][]float64) (Ellipse, error) {
	n := 0
	for _, label := range unit.labels {
		n += len(pixels[label]) / 2
	}
	if n == 0 {
		return Ellipse{}, nil
	}
	coords := make([]float64, 0, 2*n)
	for _, label := range unit.labels {
		coords = append(coords, pixels[label]...)
	}
	data := mat.NewDense(n, 2, coords)
	center := Point{
		X: stat.Mean(mat.Col(nil, 0, data), nil),
		Y: stat.Mean(mat.Col(nil, 1, data), nil),
	}

	shape := Ellipse{Center: center, Area: float64(n)}
	if len(unit.labels) > 1 {
		shape.MergedAreas = make([]float64, len(unit.labels))
		for i, label := range unit.labels {
			shape.MergedAreas[i] = float64(len(pixels[label]) / 2)
		}
	}
	if n == 1 {
		// Single pixel: unit square has variance 1/12 along both axes
		shape.Major = 2 * math.Sqrt(1.0/12.0)
		shape.Minor = shape.Major
		return shape, nil
	}

	var cov mat.SymDense
	stat.CovarianceMatrix(&cov, data, nil)
	// Population moments, not the unbiased estimate
	cov.ScaleSym(float64(n-1)/float64(n), &cov)

	var eig mat.EigenSym
	if ok := eig.Factorize(&cov, true); !ok {
		return Ellipse{}, errors.New("eigen decomposition of second moments failed")
	}
	values := eig.Values(nil)
	var vectors mat.Dense
	eig.VectorsTo(&vectors)
	// Values are ascending: column 1 is the major axis
	shape.Angle = normalizeAngle(math.Atan2(vectors.At(1, 1), vectors.At(0, 1)))
	shape.Major = 2 * math.Sqrt(math.Max(values[1], 0))
	shape.Minor = 2 * math.Sqrt(math.Max(values[0], 0))
	return shape, nil
}
