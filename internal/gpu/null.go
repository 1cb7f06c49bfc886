package gpu

import (
	"fmt"
	"image"
)

// NullContext is a headless backend that records operations instead of
// touching a GPU. It backs tests and can drive the engine without a
// display.
type NullContext struct {
	nextID   int
	live     map[int]*nullTexture
	draws    []DrawOptions
	created  int
	deleted  int
	updated  int
	failNext bool
}

func NewNull() *NullContext {
	return &NullContext{live: map[int]*nullTexture{}}
}

// FailNextCreate makes the next CreateTexture call return
// ErrResourceCreation.
func (c *NullContext) FailNextCreate() {
	c.failNext = true
}

// LiveTextures reports how many handles exist and have not been deleted.
func (c *NullContext) LiveTextures() int {
	return len(c.live)
}

// Counts returns total creates, updates and deletes so far.
func (c *NullContext) Counts() (created, updated, deleted int) {
	return c.created, c.updated, c.deleted
}

// Draws returns the draw calls issued since the last ResetDraws.
func (c *NullContext) Draws() []DrawOptions {
	return c.draws
}

func (c *NullContext) ResetDraws() {
	c.draws = c.draws[:0]
}

type nullTexture struct {
	id   int
	w, h int
}

func (t *nullTexture) Size() (int, int) {
	return t.w, t.h
}

func (c *NullContext) CreateTexture(bm *image.RGBA, smoothing bool) (Texture, error) {
	if c.failNext {
		c.failNext = false
		return nil, ErrResourceCreation
	}
	c.nextID++
	t := &nullTexture{id: c.nextID, w: bm.Rect.Dx(), h: bm.Rect.Dy()}
	c.live[t.id] = t
	c.created++
	return t, nil
}

func (c *NullContext) UpdateTexture(tex Texture, bm *image.RGBA) error {
	t := tex.(*nullTexture)
	if _, ok := c.live[t.id]; !ok {
		return fmt.Errorf("gpu: update of deleted texture %d", t.id)
	}
	t.w, t.h = bm.Rect.Dx(), bm.Rect.Dy()
	c.updated++
	return nil
}

func (c *NullContext) DeleteTexture(tex Texture) {
	t := tex.(*nullTexture)
	delete(c.live, t.id)
	c.deleted++
}

func (c *NullContext) Draw(tex Texture, op DrawOptions) {
	c.draws = append(c.draws, op)
}
