package tools

import (
	"image"
	"image/color"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/driver/desktop"
	"fyne.io/fyne/v2/widget"
)

// CropperWidget displays a screenshot and lets the user drag out a
// rectangle, reported in screenshot pixels.
type CropperWidget struct {
	widget.BaseWidget

	originalImg image.Image
	startPos    fyne.Position
	currentPos  fyne.Position
	isDragging  bool

	raster    *canvas.Image
	selection *canvas.Rectangle

	OnSelected func(rect image.Rectangle)
}

func NewCropperWidget(img image.Image, onSelected func(image.Rectangle)) *CropperWidget {
	c := &CropperWidget{
		originalImg: img,
		OnSelected:  onSelected,
	}
	c.ExtendBaseWidget(c)

	c.raster = canvas.NewImageFromImage(img)
	c.raster.ScaleMode = canvas.ImageScalePixels // no smoothing, the crop must match raw pixels
	c.raster.FillMode = canvas.ImageFillContain

	c.selection = canvas.NewRectangle(color.RGBA{R: 255, G: 0, B: 0, A: 60})
	c.selection.StrokeColor = color.RGBA{R: 255, G: 0, B: 0, A: 255}
	c.selection.StrokeWidth = 2
	c.selection.Hide()

	return c
}

func (c *CropperWidget) CreateRenderer() fyne.WidgetRenderer {
	return &cropperRenderer{
		cropper: c,
		objects: []fyne.CanvasObject{c.raster, c.selection},
	}
}

func (c *CropperWidget) Dragged(e *fyne.DragEvent) {
	if !c.isDragging {
		c.isDragging = true
		c.startPos = e.Position.Subtract(e.Dragged)
		c.selection.Show()
	}
	c.currentPos = e.Position
	c.Refresh()
}

func (c *CropperWidget) DragEnd() {
	c.isDragging = false
	c.Refresh()
	if c.OnSelected == nil {
		return
	}
	r := selectionToImage(c.Size(), c.originalImg.Bounds(), c.startPos, c.currentPos)
	if !r.Empty() {
		c.OnSelected(r)
	}
}

// Tapped resets the selection.
func (c *CropperWidget) Tapped(e *fyne.PointEvent) {
	c.startPos = e.Position
	c.currentPos = e.Position
	c.selection.Hide()
	c.Refresh()
}

func (c *CropperWidget) Cursor() desktop.Cursor {
	return desktop.CrosshairCursor
}

// fitRect is where an image of size img lands inside view under
// ImageFillContain.
func fitRect(view fyne.Size, img image.Rectangle) (pos fyne.Position, size fyne.Size) {
	if view.Width == 0 || view.Height == 0 || img.Dx() == 0 || img.Dy() == 0 {
		return fyne.Position{}, fyne.Size{}
	}
	aspect := float32(img.Dx()) / float32(img.Dy())
	if view.Width/view.Height > aspect {
		// View is wider: fit height
		w := view.Height * aspect
		return fyne.NewPos((view.Width-w)/2, 0), fyne.NewSize(w, view.Height)
	}
	h := view.Width / aspect
	return fyne.NewPos(0, (view.Height-h)/2), fyne.NewSize(view.Width, h)
}

// selectionToImage maps a drag from a to b in widget space onto image
// pixels, clipped to the drawn image.
func selectionToImage(view fyne.Size, img image.Rectangle, a, b fyne.Position) image.Rectangle {
	pos, size := fitRect(view, img)
	if size.Width == 0 {
		return image.Rectangle{}
	}

	x0 := max(pos.X, min(a.X, b.X))
	y0 := max(pos.Y, min(a.Y, b.Y))
	x1 := min(pos.X+size.Width, max(a.X, b.X))
	y1 := min(pos.Y+size.Height, max(a.Y, b.Y))
	if x1 <= x0 || y1 <= y0 {
		return image.Rectangle{}
	}

	sx := float32(img.Dx()) / size.Width
	sy := float32(img.Dy()) / size.Height
	r := image.Rect(
		img.Min.X+int((x0-pos.X)*sx),
		img.Min.Y+int((y0-pos.Y)*sy),
		img.Min.X+int((x1-pos.X)*sx),
		img.Min.Y+int((y1-pos.Y)*sy),
	)
	return r.Intersect(img)
}

type cropperRenderer struct {
	cropper *CropperWidget
	objects []fyne.CanvasObject
}

func (r *cropperRenderer) Layout(s fyne.Size) {
	r.objects[0].Resize(s)
	r.objects[0].Move(fyne.NewPos(0, 0))
	r.placeSelection()
}

func (r *cropperRenderer) placeSelection() {
	c := r.cropper
	minX, minY := min(c.startPos.X, c.currentPos.X), min(c.startPos.Y, c.currentPos.Y)
	maxX, maxY := max(c.startPos.X, c.currentPos.X), max(c.startPos.Y, c.currentPos.Y)
	r.objects[1].Move(fyne.NewPos(minX, minY))
	r.objects[1].Resize(fyne.NewSize(maxX-minX, maxY-minY))
}

func (r *cropperRenderer) MinSize() fyne.Size {
	return fyne.NewSize(100, 100)
}

func (r *cropperRenderer) Refresh() {
	r.placeSelection()
	canvas.Refresh(r.cropper)
}

func (r *cropperRenderer) Objects() []fyne.CanvasObject {
	return r.objects
}

func (r *cropperRenderer) Destroy() {}
