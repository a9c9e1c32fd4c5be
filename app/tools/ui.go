package tools

import (
	"context"
	"fmt"
	"image"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"

	"github.com/ConserveLee/exchange-scout/internal/engine"
	"github.com/ConserveLee/exchange-scout/internal/engine/screen"
)

const gotoTimeout = 30 * time.Second

// NewToolsPanel creates the UI panel for reference capture and detection
// checks. They need a prepared session.
func NewToolsPanel(win fyne.Window, sc *engine.Scanner, assetsDir, target string) fyne.CanvasObject {
	if assetsDir == "" {
		assetsDir = "assets"
	}

	// 1. Goto form
	kingdomEntry := widget.NewEntry()
	kingdomEntry.SetPlaceHolder("K")
	xEntry := widget.NewEntry()
	xEntry.SetPlaceHolder("X")
	yEntry := widget.NewEntry()
	yEntry.SetPlaceHolder("Y")

	resultLabel := widget.NewLabel("1. 登录后跳转到目标附近\n2. 点击“截取并裁切”框选建筑\n3. 保存为参考图\n4. 用“检测”验证匹配")
	resultLabel.Alignment = fyne.TextAlignCenter

	gotoBtn := widget.NewButton("跳转 (Goto)", func() {
		k, x, y, err := parseGoto(kingdomEntry.Text, xEntry.Text, yEntry.Text)
		if err != nil {
			dialog.ShowError(err, win)
			return
		}
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), gotoTimeout)
			defer cancel()
			_, err := sc.Goto(ctx, k, x, y)
			fyne.Do(func() {
				if err != nil {
					dialog.ShowError(err, win)
					return
				}
				resultLabel.SetText(fmt.Sprintf("已跳转 K:%d X:%d Y:%d", k, x, y))
			})
		}()
	})

	// 2. Capture & Crop
	cropBtn := widget.NewButton("截取并裁切 (Capture & Crop)", func() {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), gotoTimeout)
			defer cancel()
			shot, err := sc.Screenshot(ctx)
			var img image.Image
			if err == nil {
				img, err = screen.Decode(shot)
			}
			fyne.Do(func() {
				if err != nil {
					dialog.ShowError(err, win)
					return
				}
				showCropperWindow(img, assetsDir, screen.RefFileBase(target))
			})
		}()
	})
	cropBtn.Importance = widget.HighImportance

	// 3. Detect on the last capture
	detectBtn := widget.NewButton("检测 (Detect)", func() {
		det, err := sc.DetectLast()
		if err != nil {
			dialog.ShowError(err, win)
			return
		}
		resultLabel.SetText(formatDetection(det))
		log.Info().Bool("found", det.Found).Float32("score", det.Match.Score).
			Int("dx", det.WorldDX).Int("dy", det.WorldDY).Msg("Manual detection")
	})

	openDirBtn := widget.NewButton("打开素材目录 (Open Assets)", func() {
		openDir(assetsDir)
	})

	content := container.NewVBox(
		widget.NewLabel("跳转坐标:"),
		container.NewGridWithColumns(4, kingdomEntry, xEntry, yEntry, gotoBtn),
		widget.NewSeparator(),
		resultLabel,
		layoutSpacer(),
		cropBtn,
		detectBtn,
		layoutSpacer(),
		widget.NewSeparator(),
		openDirBtn,
	)

	return content
}

func layoutSpacer() fyne.CanvasObject {
	return widget.NewLabel("") // rudimentary spacer
}

func parseGoto(ks, xs, ys string) (k, x, y int, err error) {
	vals := make([]int, 3)
	for i, s := range []string{ks, xs, ys} {
		v, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil || v < 0 {
			return 0, 0, 0, fmt.Errorf("invalid coordinate %q", s)
		}
		vals[i] = v
	}
	return vals[0], vals[1], vals[2], nil
}

func formatDetection(det engine.Detection) string {
	if !det.HasMatch {
		return "未检测到 (no match)"
	}
	verdict := "未达阈值 (below threshold)"
	if det.Found {
		verdict = "找到 (found)"
	}
	return fmt.Sprintf("%s\nscore %.3f / %.2f at (%d, %d)\nworld offset dx=%d dy=%d",
		verdict, det.Match.Score, det.Threshold, det.Match.X, det.Match.Y, det.WorldDX, det.WorldDY)
}

func openDir(path string) {
	var cmd *exec.Cmd
	absPath, _ := filepath.Abs(path)

	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", absPath)
	case "windows":
		cmd = exec.Command("explorer", absPath)
	default:
		cmd = exec.Command("xdg-open", absPath)
	}
	if err := cmd.Run(); err != nil {
		log.Warn().Err(err).Str("dir", absPath).Msg("Failed to open directory")
	}
}

func showCropperWindow(fullImg image.Image, dir, base string) {
	w := fyne.CurrentApp().NewWindow("裁切参考图 (Crop Reference)")
	w.Resize(fyne.NewSize(800, 600))

	lbl := widget.NewLabel("请在图片上拖拽鼠标框选建筑...")
	lbl.Alignment = fyne.TextAlignCenter

	saveBtn := widget.NewButton("保存选区", nil)
	saveBtn.Disable()

	var currentSelection image.Rectangle

	cropper := NewCropperWidget(fullImg, func(rect image.Rectangle) {
		currentSelection = rect
		lbl.SetText(fmt.Sprintf("已选区: %v (点击保存)", rect))
		saveBtn.Enable()
	})

	saveBtn.OnTapped = func() {
		if currentSelection.Empty() {
			return
		}
		sub, ok := fullImg.(interface {
			SubImage(r image.Rectangle) image.Image
		})
		if !ok {
			dialog.ShowError(fmt.Errorf("image type does not support cropping"), w)
			return
		}
		showSaveForm(w, sub.SubImage(currentSelection), dir, base)
	}

	content := container.NewBorder(
		nil,
		container.NewVBox(lbl, saveBtn),
		nil, nil,
		cropper,
	)

	w.SetContent(content)
	w.Show()
}

func showSaveForm(win fyne.Window, img image.Image, dir, base string) {
	imageObj := canvas.NewImageFromImage(img)
	imageObj.FillMode = canvas.ImageFillContain
	imageObj.SetMinSize(fyne.NewSize(100, 100))

	nameEntry := widget.NewEntry()
	nameEntry.SetText(nextRefName(dir, base))

	b := img.Bounds()
	content := container.NewVBox(
		widget.NewLabel("确认保存此参考图?"),
		container.NewCenter(imageObj),
		widget.NewLabel(fmt.Sprintf("%dx%d, 保存至 %s", b.Dx(), b.Dy(), dir)),
		widget.NewLabel("文件名 (Suggestion):"),
		nameEntry,
	)

	dialog.ShowCustomConfirm("保存参考图", "保存", "取消", content, func(confirm bool) {
		if !confirm {
			return
		}
		name := strings.TrimSpace(nameEntry.Text)
		if name == "" {
			dialog.ShowError(fmt.Errorf("文件名不能为空"), win)
			return
		}
		if !strings.HasPrefix(name, base) || filepath.Ext(name) != ".png" {
			dialog.ShowError(fmt.Errorf("文件名须为 %s*.png", base), win)
			return
		}

		if err := os.MkdirAll(dir, 0o755); err != nil {
			dialog.ShowError(err, win)
			return
		}
		path := filepath.Join(dir, name)
		if err := screen.SavePNG(path, img); err != nil {
			dialog.ShowError(err, win)
			return
		}
		log.Info().Str("path", path).Msg("Saved reference image; restart to load it")

		dialog.ShowInformation("成功", fmt.Sprintf("已保存: %s\n重启后生效", name), win)
		win.Close()
	}, win)
}

// nextRefName suggests the next free reference file name:
// "<base>.png", then "<base>_2.png", "<base>_3.png" and so on.
func nextRefName(dir, base string) string {
	files, _ := filepath.Glob(filepath.Join(dir, base+"*.png"))
	if len(files) == 0 {
		return base + ".png"
	}

	maxIdx := 1
	for _, f := range files {
		name := strings.TrimSuffix(filepath.Base(f), ".png")
		suffix := strings.TrimPrefix(strings.TrimPrefix(name, base), "_")
		if idx, err := strconv.Atoi(suffix); err == nil && idx > maxIdx {
			maxIdx = idx
		}
	}
	return fmt.Sprintf("%s_%d.png", base, maxIdx+1)
}
