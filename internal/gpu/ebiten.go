package gpu

import (
	"image"

	"github.com/hajimehoshi/ebiten/v2"
)

// EbitenContext renders tiles onto an ebiten target image. The target
// is re-bound every frame from the game's Draw callback.
type EbitenContext struct {
	target *ebiten.Image
}

func NewEbiten() *EbitenContext {
	return &EbitenContext{}
}

// SetTarget binds the image draws go to for the current frame.
func (c *EbitenContext) SetTarget(target *ebiten.Image) {
	c.target = target
}

type ebitenTexture struct {
	img       *ebiten.Image
	smoothing bool
}

func (t *ebitenTexture) Size() (int, int) {
	b := t.img.Bounds()
	return b.Dx(), b.Dy()
}

func (c *EbitenContext) CreateTexture(bm *image.RGBA, smoothing bool) (Texture, error) {
	return &ebitenTexture{
		img:       ebiten.NewImageFromImage(bm),
		smoothing: smoothing,
	}, nil
}

func (c *EbitenContext) UpdateTexture(tex Texture, bm *image.RGBA) error {
	t := tex.(*ebitenTexture)
	b := t.img.Bounds()
	if b.Dx() != bm.Rect.Dx() || b.Dy() != bm.Rect.Dy() {
		t.img.Deallocate()
		t.img = ebiten.NewImageFromImage(bm)
		return nil
	}
	t.img.WritePixels(bm.Pix)
	return nil
}

func (c *EbitenContext) DeleteTexture(tex Texture) {
	tex.(*ebitenTexture).img.Deallocate()
}

func (c *EbitenContext) Draw(tex Texture, op DrawOptions) {
	if c.target == nil || tex == nil {
		return
	}
	t := tex.(*ebitenTexture)

	var dio ebiten.DrawImageOptions
	dio.GeoM.Scale(op.Transform.ScaleX, op.Transform.ScaleY)
	dio.GeoM.Translate(op.Transform.TX, op.Transform.TY)
	dio.ColorScale.ScaleAlpha(float32(op.Opacity))
	if t.smoothing {
		dio.Filter = ebiten.FilterLinear
	}
	c.target.DrawImage(t.img, &dio)
}
