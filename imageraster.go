package georaster

import (
	"fmt"
	"image"
	"sync/atomic"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

// An ImageRaster is a raster of packed RGBA colors.
type ImageRaster struct {
	rgba     *image.RGBA
	sector   Sector
	metadata *Metadata
	disposed atomic.Bool
}

// NewImageRaster returns a new ImageRaster holding img, converted to RGBA if
// needed, laid over sector.
func NewImageRaster(img image.Image, sector Sector, metadata *Metadata) (*ImageRaster, error) {
	bounds := img.Bounds()
	if err := checkFrame(bounds.Dx(), bounds.Dy(), sector); err != nil {
		return nil, err
	}
	rgba, ok := img.(*image.RGBA)
	if !ok || bounds.Min != (image.Point{}) {
		rgba = image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
		draw.Draw(rgba, rgba.Bounds(), img, bounds.Min, draw.Src)
	}
	return newImageRaster(rgba, sector, metadata)
}

// NewImageCanvas returns a new transparent ImageRaster.
func NewImageCanvas(width, height int, sector Sector, metadata *Metadata) (*ImageRaster, error) {
	if err := checkFrame(width, height, sector); err != nil {
		return nil, err
	}
	return newImageRaster(image.NewRGBA(image.Rect(0, 0, width, height)), sector, metadata)
}

func newImageRaster(rgba *image.RGBA, sector Sector, metadata *Metadata) (*ImageRaster, error) {
	m := metadata.Clone()
	if err := m.SetWidth(rgba.Rect.Dx()); err != nil {
		return nil, err
	}
	if err := m.SetHeight(rgba.Rect.Dy()); err != nil {
		return nil, err
	}
	m.SetSector(sector)
	m.PixelFormat = PixelFormatImage
	return &ImageRaster{
		rgba:     rgba,
		sector:   sector,
		metadata: m,
	}, nil
}

func (r *ImageRaster) Width() int { return r.rgba.Rect.Dx() }
func (r *ImageRaster) Height() int { return r.rgba.Rect.Dy() }
func (r *ImageRaster) Sector() Sector { return r.sector }
func (r *ImageRaster) Metadata() *Metadata { return r.metadata }
func (r *ImageRaster) SizeInBytes() int64 { return int64(len(r.rgba.Pix)) }

// Image returns r's pixels.
func (r *ImageRaster) Image() *image.RGBA {
	return r.rgba
}

// DrawOnTo draws r onto canvas, which must be an *ImageRaster, with bilinear
// interpolation.
func (r *ImageRaster) DrawOnTo(canvas DataRaster) error {
	if r.disposed.Load() {
		return ErrDisposed
	}
	dst, ok := canvas.(*ImageRaster)
	if !ok {
		return fmt.Errorf("%T: %w", canvas, ErrIncompatibleRaster)
	}
	if !r.sector.Intersects(dst.sector) {
		return nil
	}
	drawImage(dst, r.rgba, frameOf(r))
	return nil
}

// SubRaster returns a new ImageRaster resampled from r.
func (r *ImageRaster) SubRaster(width, height int, sector Sector, metadata *Metadata) (DataRaster, error) {
	m, err := subRasterMetadata(width, height, sector, metadata, r.metadata)
	if err != nil {
		return nil, err
	}
	canvas, err := NewImageCanvas(width, height, sector, m)
	if err != nil {
		return nil, err
	}
	if err := r.DrawOnTo(canvas); err != nil {
		return nil, err
	}
	return canvas, nil
}

// Dispose marks r as disposed. The pixels are released to the garbage
// collector once no longer referenced.
func (r *ImageRaster) Dispose() error {
	r.disposed.Store(true)
	return nil
}

// Disposed returns whether r has been disposed.
func (r *ImageRaster) Disposed() bool {
	return r.disposed.Load()
}

// drawImage draws src, which covers srcFrame, over dst.
func drawImage(dst *ImageRaster, src *image.RGBA, srcFrame Frame) {
	dstFrame := frameOf(dst)
	s2d := ComputeTransform(srcFrame, dstFrame)
	clip := ClipRect(s2d, srcFrame, dstFrame)
	if clip.Empty() {
		return
	}
	drawTransformed(dst.rgba.SubImage(clip).(*image.RGBA), s2d, src)
}

func drawTransformed(dst *image.RGBA, s2d f64.Aff3, src *image.RGBA) {
	draw.BiLinear.Transform(dst, s2d, src, src.Bounds(), draw.Over, nil)
}

// A MipMappedImageRaster is an ImageRaster with a precomputed chain of
// progressively halved versions, used when drawing onto coarser canvases.
type MipMappedImageRaster struct {
	*ImageRaster
	levels []*image.RGBA
}

// NewMipMappedImageRaster returns a new MipMappedImageRaster. Levels are
// halved until either dimension reaches one pixel.
func NewMipMappedImageRaster(img image.Image, sector Sector, metadata *Metadata) (*MipMappedImageRaster, error) {
	imageRaster, err := NewImageRaster(img, sector, metadata)
	if err != nil {
		return nil, err
	}
	levels := []*image.RGBA{imageRaster.rgba}
	for level := levels[0]; level.Rect.Dx() > 1 && level.Rect.Dy() > 1; {
		next := image.NewRGBA(image.Rect(0, 0, max(level.Rect.Dx()/2, 1), max(level.Rect.Dy()/2, 1)))
		draw.BiLinear.Scale(next, next.Rect, level, level.Rect, draw.Src, nil)
		levels = append(levels, next)
		level = next
	}
	return &MipMappedImageRaster{
		ImageRaster: imageRaster,
		levels:      levels,
	}, nil
}

// MaxLevel returns the index of r's coarsest level.
func (r *MipMappedImageRaster) MaxLevel() int {
	return len(r.levels) - 1
}

// LevelImage returns the image at level.
func (r *MipMappedImageRaster) LevelImage(level int) *image.RGBA {
	return r.levels[level]
}

// DrawOnTo draws the level of r that best matches canvas's resolution.
func (r *MipMappedImageRaster) DrawOnTo(canvas DataRaster) error {
	if r.disposed.Load() {
		return ErrDisposed
	}
	dst, ok := canvas.(*ImageRaster)
	if !ok {
		return fmt.Errorf("%T: %w", canvas, ErrIncompatibleRaster)
	}
	if !r.sector.Intersects(dst.sector) {
		return nil
	}
	level := MipLevel(ComputeTransform(frameOf(r), frameOf(dst)), r.MaxLevel())
	levelImage := r.levels[level]
	drawImage(dst, levelImage, Frame{
		Width:  levelImage.Rect.Dx(),
		Height: levelImage.Rect.Dy(),
		Sector: r.sector,
	})
	return nil
}

// SubRaster returns a new ImageRaster resampled from the best matching level
// of r.
func (r *MipMappedImageRaster) SubRaster(width, height int, sector Sector, metadata *Metadata) (DataRaster, error) {
	m, err := subRasterMetadata(width, height, sector, metadata, r.metadata)
	if err != nil {
		return nil, err
	}
	canvas, err := NewImageCanvas(width, height, sector, m)
	if err != nil {
		return nil, err
	}
	if err := r.DrawOnTo(canvas); err != nil {
		return nil, err
	}
	return canvas, nil
}

// SizeInBytes returns the size of all of r's levels.
func (r *MipMappedImageRaster) SizeInBytes() int64 {
	var size int64
	for _, level := range r.levels {
		size += int64(len(level.Pix))
	}
	return size
}
