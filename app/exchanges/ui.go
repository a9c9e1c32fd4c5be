package exchanges

import (
	"bytes"
	"fmt"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"

	"github.com/ConserveLee/exchange-scout/internal/constants"
	"github.com/ConserveLee/exchange-scout/internal/engine"
	"github.com/ConserveLee/exchange-scout/internal/engine/exchange"
)

// NewExchangesPanel lists the exchanges found this session. Selecting a row
// shows the popup captured when it was confirmed.
func NewExchangesPanel(sc *engine.Scanner) fyne.CanvasObject {
	var items []exchange.Exchange

	preview := canvas.NewImageFromResource(nil)
	preview.FillMode = canvas.ImageFillContain
	preview.SetMinSize(fyne.NewSize(320, 200))
	detail := widget.NewLabel("选择一条记录查看截图")

	list := widget.NewList(
		func() int { return len(items) },
		func() fyne.CanvasObject { return widget.NewLabel("K:000 X:0000 Y:0000") },
		func(i widget.ListItemID, o fyne.CanvasObject) {
			o.(*widget.Label).SetText(formatExchange(items[i]))
		},
	)
	list.OnSelected = func(i widget.ListItemID) {
		shot, err := sc.ExchangeScreenshot(i)
		if err != nil {
			detail.SetText(err.Error())
			preview.Resource = nil
			preview.Refresh()
			return
		}
		detail.SetText(formatExchange(items[i]))
		preview.Resource = fyne.NewStaticResource(fmt.Sprintf("exchange_%d.png", i), shot)
		preview.Refresh()
	}

	countLabel := widget.NewLabel("")
	refresh := func() {
		items = sc.Exchanges()
		countLabel.SetText(fmt.Sprintf("共 %d 个 (Found)", len(items)))
		list.Refresh()
	}
	refresh()

	refreshBtn := widget.NewButton("刷新 (Refresh)", refresh)

	go func() {
		ticker := time.NewTicker(constants.PhasePollInterval * 4)
		defer ticker.Stop()
		n := len(items)
		for range ticker.C {
			if latest := sc.Status().Exchanges; latest != n {
				n = latest
				fyne.Do(refresh)
			}
		}
	}()

	top := container.NewHBox(countLabel, refreshBtn)
	bottom := container.NewVBox(detail, preview)
	return container.NewBorder(top, bottom, nil, nil, list)
}

func formatExchange(e exchange.Exchange) string {
	var b bytes.Buffer
	fmt.Fprintf(&b, "K:%d X:%d Y:%d", e.Kingdom, e.X, e.Y)
	if e.Confirmed {
		b.WriteString(" confirmed")
	} else {
		b.WriteString(" estimated")
	}
	if !e.FoundAt.IsZero() {
		fmt.Fprintf(&b, " at %s", e.FoundAt.Format(time.TimeOnly))
	}
	if e.ScanDuration > 0 {
		fmt.Fprintf(&b, " (scan %s)", e.ScanDuration.Round(time.Second))
	}
	return b.String()
}
