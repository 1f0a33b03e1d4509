package mot

import (
	"context"
	"image"
	"math"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// maskWith paints filled rectangles (x0, y0, x1, y1 exclusive) on an empty mask
func maskWith(width, height int, rects ...image.Rectangle) *image.Gray {
	mask := image.NewGray(image.Rect(0, 0, width, height))
	for _, rect := range rects {
		for y := rect.Min.Y; y < rect.Max.Y; y++ {
			for x := rect.Min.X; x < rect.Max.X; x++ {
				mask.Pix[y*mask.Stride+x] = 255
			}
		}
	}
	return mask
}

func TestExtractShapesEllipseFit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinShapeArea = 1
	mask := maskWith(40, 30, image.Rect(5, 5, 15, 9), image.Rect(30, 10, 33, 25))
	shapes, err := ExtractShapes(context.Background(), 0, mask, LabelComponents(mask, 0), cfg)
	if err != nil {
		t.Fatalf("ExtractShapes: %v", err)
	}
	if len(shapes) != 2 {
		t.Fatalf("Expected 2 shapes, got %d", len(shapes))
	}

	horizontal := shapes[0]
	if horizontal.Area != 40 {
		t.Errorf("Expected area 40, got %f", horizontal.Area)
	}
	if math.Abs(horizontal.Center.X-9.5) > 1e-9 || math.Abs(horizontal.Center.Y-6.5) > 1e-9 {
		t.Errorf("Expected center (9.5, 6.5), got %+v", horizontal.Center)
	}
	// Discrete uniform variance over n pixels is (n^2-1)/12
	wantMajor := 2 * math.Sqrt(99.0/12.0)
	wantMinor := 2 * math.Sqrt(15.0/12.0)
	if math.Abs(horizontal.Major-wantMajor) > 1e-9 {
		t.Errorf("Expected major %f, got %f", wantMajor, horizontal.Major)
	}
	if math.Abs(horizontal.Minor-wantMinor) > 1e-9 {
		t.Errorf("Expected minor %f, got %f", wantMinor, horizontal.Minor)
	}
	if math.Abs(horizontal.Angle) > 1e-9 {
		t.Errorf("Expected horizontal orientation, got %f", horizontal.Angle)
	}

	vertical := shapes[1]
	if math.Abs(math.Abs(vertical.Angle)-math.Pi/2) > 1e-9 {
		t.Errorf("Expected vertical orientation, got %f", vertical.Angle)
	}
	if vertical.Major <= vertical.Minor {
		t.Errorf("Major axis %f must exceed minor axis %f", vertical.Major, vertical.Minor)
	}
}

func TestExtractShapesAreaFilters(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinShapeArea = 10
	cfg.MaxShapeArea = 50
	mask := maskWith(60, 20, image.Rect(1, 1, 3, 3), image.Rect(10, 1, 15, 5), image.Rect(20, 1, 30, 11))
	shapes, err := ExtractShapes(context.Background(), 0, mask, LabelComponents(mask, 0), cfg)
	if err != nil {
		t.Fatalf("ExtractShapes: %v", err)
	}
	if len(shapes) != 1 {
		t.Fatalf("Expected only the 20 pixel blob, got %d shapes", len(shapes))
	}
	if shapes[0].Area != 20 {
		t.Errorf("Expected area 20, got %f", shapes[0].Area)
	}
}

func TestExtractShapesGroups(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinShapeArea = 1
	mask := maskWith(40, 10, image.Rect(1, 1, 5, 5), image.Rect(7, 1, 10, 5), image.Rect(30, 1, 32, 3))
	lab := LabelComponents(mask, 3)
	if len(lab.Groups) != 1 {
		t.Fatalf("Expected one group, got %v", lab.Groups)
	}
	shapes, err := ExtractShapes(context.Background(), 0, mask, lab, cfg)
	if err != nil {
		t.Fatalf("ExtractShapes: %v", err)
	}
	if len(shapes) != 2 {
		t.Fatalf("Expected 2 shapes, got %d", len(shapes))
	}
	if diff := cmp.Diff([]float64{16, 12}, shapes[0].MergedAreas); diff != "" {
		t.Errorf("Merged areas mismatch (-want +got):\n%s", diff)
	}
	if shapes[0].Area != 28 {
		t.Errorf("Expected group area 28, got %f", shapes[0].Area)
	}
	if len(shapes[1].MergedAreas) != 0 {
		t.Errorf("Single component must not carry merged areas")
	}
}

func TestExtractShapesParallelMatchesSequential(t *testing.T) {
	mask := maskWith(64, 64,
		image.Rect(2, 2, 8, 5), image.Rect(20, 3, 23, 12), image.Rect(40, 40, 50, 44),
		image.Rect(5, 30, 9, 34), image.Rect(55, 10, 60, 20), image.Rect(30, 55, 40, 58),
	)
	lab := LabelComponents(mask, 0)
	cfg := DefaultConfig()
	sequential, err := ExtractShapes(context.Background(), 0, mask, lab, cfg)
	if err != nil {
		t.Fatalf("Sequential: %v", err)
	}
	cfg.Workers = 4
	parallel, err := ExtractShapes(context.Background(), 0, mask, lab, cfg)
	if err != nil {
		t.Fatalf("Parallel: %v", err)
	}
	if diff := cmp.Diff(sequential, parallel); diff != "" {
		t.Errorf("Parallel extraction differs (-sequential +parallel):\n%s", diff)
	}
}

func TestExtractShapesInputErrors(t *testing.T) {
	mask := maskWith(4, 4, image.Rect(0, 0, 2, 2))
	good := LabelComponents(mask, 0)
	cases := []struct {
		name string
		mask *image.Gray
		lab  func() Labeling
	}{
		{"dimension mismatch", maskWith(5, 4), func() Labeling { return good }},
		{"label count", mask, func() Labeling {
			lab := good
			lab.Labels = lab.Labels[:10]
			return lab
		}},
		{"label above count", mask, func() Labeling {
			lab := good
			lab.Labels = append([]int32(nil), good.Labels...)
			lab.Labels[0] = 2
			return lab
		}},
		{"negative label", mask, func() Labeling {
			lab := good
			lab.Labels = append([]int32(nil), good.Labels...)
			lab.Labels[0] = -1
			return lab
		}},
		{"label on background", mask, func() Labeling {
			lab := good
			lab.Labels = append([]int32(nil), good.Labels...)
			lab.Labels[15] = 1
			return lab
		}},
		{"unknown group label", mask, func() Labeling {
			lab := good
			lab.Groups = [][]int32{{1, 4}}
			return lab
		}},
		{"label grouped twice", mask, func() Labeling {
			lab := good
			lab.Groups = [][]int32{{1}, {1}}
			return lab
		}},
		{"nil mask", nil, func() Labeling { return good }},
	}
	for _, tc := range cases {
		_, err := ExtractShapes(context.Background(), 7, tc.mask, tc.lab(), DefaultConfig())
		if !IsInputError(err) {
			t.Errorf("[%s] Expected InputError, got %v", tc.name, err)
		}
	}
}

func TestExtractShapesEmptyComponent(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinShapeArea = 0
	mask := maskWith(4, 4, image.Rect(0, 0, 2, 2))
	lab := LabelComponents(mask, 0)
	// Count claims a second component that has no pixels
	lab.Count = 2
	_, err := ExtractShapes(context.Background(), 0, mask, lab, cfg)
	if !IsInputError(err) {
		t.Fatalf("Expected input error for a component without pixels, got %v", err)
	}
	if !strings.Contains(err.Error(), "component 2 of 2") {
		t.Errorf("Expected the empty component to be named, got %v", err)
	}
}
