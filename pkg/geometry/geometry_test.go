package geometry

import (
	"image"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const eps = 1e-9

func TestInitialCropScenario(t *testing.T) {
	img := Dimensions{Width: 1000, Height: 800}
	face := FaceBox{X: 400, Y: 200, Width: 200, Height: 200}

	got := InitialCrop(face, img)

	assert.Equal(t, Rect{X: 340, Y: 50, Width: 320, Height: 650}, got)
	assert.True(t, got.Within(img))
}

func TestInitialCropClampsToImage(t *testing.T) {
	tests := []struct {
		name string
		face FaceBox
		img  Dimensions
		want Rect
	}{
		{
			name: "face near top-left corner",
			face: FaceBox{X: 10, Y: 10, Width: 100, Height: 100},
			img:  Dimensions{Width: 500, Height: 500},
			want: Rect{X: 0, Y: 0, Width: 160, Height: 325},
		},
		{
			name: "chest room cut by bottom edge",
			face: FaceBox{X: 400, Y: 500, Width: 200, Height: 200},
			img:  Dimensions{Width: 1000, Height: 800},
			want: Rect{X: 340, Y: 350, Width: 320, Height: 450},
		},
		{
			name: "shoulders cut by right edge",
			face: FaceBox{X: 900, Y: 200, Width: 100, Height: 100},
			img:  Dimensions{Width: 1000, Height: 800},
			want: Rect{X: 870, Y: 125, Width: 130, Height: 325},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := InitialCrop(tt.face, tt.img)
			assert.InDelta(t, tt.want.X, got.X, eps)
			assert.InDelta(t, tt.want.Y, got.Y, eps)
			assert.InDelta(t, tt.want.Width, got.Width, eps)
			assert.InDelta(t, tt.want.Height, got.Height, eps)
			assert.True(t, got.Within(tt.img), "crop %+v escapes %+v", got, tt.img)
		})
	}
}

func TestInitialCropStaysInsideImage(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 2000; i++ {
		img := Dimensions{Width: 50 + rng.Float64()*3000, Height: 50 + rng.Float64()*3000}
		w := 1 + rng.Float64()*(img.Width-1)
		h := 1 + rng.Float64()*(img.Height-1)
		face := FaceBox{
			X:      rng.Float64() * (img.Width - w),
			Y:      rng.Float64() * (img.Height - h),
			Width:  w,
			Height: h,
		}

		got := InitialCrop(face, img)
		require.GreaterOrEqual(t, got.X, 0.0)
		require.GreaterOrEqual(t, got.Y, 0.0)
		require.LessOrEqual(t, got.Right(), img.Width+eps)
		require.LessOrEqual(t, got.Bottom(), img.Height+eps)
	}
}

func TestFramingFactors(t *testing.T) {
	assert.InDelta(t, 1.6, DefaultFraming.WidthFactor(), eps)
	assert.InDelta(t, 3.25, DefaultFraming.HeightFactor(), eps)
}

func TestCoverFitExportScenario(t *testing.T) {
	img := Dimensions{Width: 1000, Height: 800}
	target := Aspect(413, 531)

	got := CoverFit(Rect{X: 0, Y: 0, Width: 400, Height: 200}, target, img)

	assert.InDelta(t, 200*target, got.Width, eps)
	assert.InDelta(t, (400-200*target)/2, got.X, eps)
	assert.InDelta(t, 155.556, got.Width, 1e-3)
	assert.InDelta(t, 122.222, got.X, 1e-3)
	assert.Equal(t, 200.0, got.Height)
	assert.Equal(t, 0.0, got.Y)
}

func TestCoverFitTrimsHeightForWiderTarget(t *testing.T) {
	img := Dimensions{Width: 1000, Height: 1000}

	got := CoverFit(Rect{X: 100, Y: 100, Width: 200, Height: 400}, 1, img)

	assert.Equal(t, Rect{X: 100, Y: 200, Width: 200, Height: 200}, got)
}

func TestCoverFitMatchesTargetAspect(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	targets := []float64{1, Aspect(413, 531), 16.0 / 9.0, 0.5, 3}

	for i := 0; i < 2000; i++ {
		img := Dimensions{Width: 100 + rng.Float64()*2000, Height: 100 + rng.Float64()*2000}
		r := randomRectIn(rng, img)
		target := targets[i%len(targets)]

		got := CoverFit(r, target, img)
		require.InDelta(t, target, got.Aspect(), 1e-6, "rect %+v target %v", r, target)
		require.True(t, got.Within(img) || nearlyWithin(got, img), "cover %+v escapes %+v", got, img)

		again := CoverFit(got, target, img)
		require.InDelta(t, got.X, again.X, 1e-6)
		require.InDelta(t, got.Y, again.Y, 1e-6)
		require.InDelta(t, got.Width, again.Width, 1e-6)
		require.InDelta(t, got.Height, again.Height, 1e-6)
	}
}

func TestCoverFitDegenerateInput(t *testing.T) {
	img := Dimensions{Width: 100, Height: 100}
	r := Rect{X: 10, Y: 10, Width: 0, Height: 20}

	assert.Equal(t, r, CoverFit(r, 1, img))
	assert.Equal(t, Rect{X: 1, Y: 1, Width: 2, Height: 2}, CoverFit(Rect{X: 1, Y: 1, Width: 2, Height: 2}, 0, img))
}

func TestMapperRoundTrip(t *testing.T) {
	source := Dimensions{Width: 2000, Height: 1000}
	display := FitWidth(source, 500)
	require.Equal(t, Dimensions{Width: 500, Height: 250}, display)

	s := NewScale(source, display)
	assert.Equal(t, Scale{X: 4, Y: 4}, s)

	r := Rect{X: 400, Y: 200, Width: 800, Height: 400}
	d := ToDisplay(r, s)
	assert.Equal(t, Rect{X: 100, Y: 50, Width: 200, Height: 100}, d)

	p := ToSource(Point{X: d.X, Y: d.Y}, s)
	assert.Equal(t, Point{X: r.X, Y: r.Y}, p)

	delta := ToSourceDelta(Point{X: 10, Y: 10}, Point{X: 15, Y: 7}, s)
	assert.Equal(t, Point{X: 20, Y: -12}, delta)
}

func TestFitWidthNeverEnlarges(t *testing.T) {
	small := Dimensions{Width: 320, Height: 240}
	assert.Equal(t, small, FitWidth(small, 500))
	assert.Equal(t, small, FitWidth(small, 0))
}

func TestNewScaleDegenerate(t *testing.T) {
	assert.Equal(t, Identity, NewScale(Dimensions{Width: 10, Height: 10}, Dimensions{}))
}

func TestRectImage(t *testing.T) {
	r := Rect{X: 10.4, Y: 5.6, Width: 20.2, Height: 9.7}
	assert.Equal(t, image.Rect(15, 26, 36, 35), r.Image(image.Pt(5, 20)))
}

func randomRectIn(rng *rand.Rand, img Dimensions) Rect {
	w := 1 + rng.Float64()*(img.Width-1)
	h := 1 + rng.Float64()*(img.Height-1)
	return Rect{
		X:      rng.Float64() * (img.Width - w),
		Y:      rng.Float64() * (img.Height - h),
		Width:  w,
		Height: h,
	}
}

func nearlyWithin(r Rect, img Dimensions) bool {
	return r.X >= -eps && r.Y >= -eps && r.Right() <= img.Width+1e-6 && r.Bottom() <= img.Height+1e-6
}

func BenchmarkCoverFit(b *testing.B) {
	img := Dimensions{Width: 4000, Height: 3000}
	r := Rect{X: 1200, Y: 400, Width: 900, Height: 1700}
	target := Aspect(413, 531)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		CoverFit(r, target, img)
	}
}
