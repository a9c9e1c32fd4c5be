package scanner

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/data/binding"
	"fyne.io/fyne/v2/widget"

	"github.com/ConserveLee/exchange-scout/internal/constants"
	"github.com/ConserveLee/exchange-scout/internal/engine"
	"github.com/ConserveLee/exchange-scout/internal/viewport/desktop"
)

// DisplayPicker is implemented by launchers bound to a local monitor.
type DisplayPicker interface {
	SetDisplayID(id int)
}

// NewScannerPanel creates the control panel for the exchange scanner.
// picker is nil when the viewport is not a local display.
func NewScannerPanel(sc *engine.Scanner, logData binding.StringList, picker DisplayPicker) fyne.CanvasObject {
	statusData := binding.NewString()
	statusData.Set(formatStatus(sc.Status()))

	// 1. Screen Selector (desktop driver only)
	var displaySelect *widget.Select
	if picker != nil {
		displayOptions := desktop.Displays()
		if len(displayOptions) == 0 {
			displayOptions = []string{"Display 0 (Default)"}
		}
		displaySelect = widget.NewSelect(displayOptions, func(selected string) {
			var id int
			if _, err := fmt.Sscanf(selected, "Display %d", &id); err != nil {
				id = 0
			}
			picker.SetDisplayID(id)
			log.Info().Int("display", id).Msg("Switched display")
		})
		displaySelect.SetSelected(displayOptions[0])
	}

	// 2. Status & Logs
	statusLabel := widget.NewLabelWithData(statusData)
	statusLabel.TextStyle = fyne.TextStyle{Bold: true}

	logList := widget.NewListWithData(
		logData,
		func() fyne.CanvasObject { return widget.NewLabel("Log entry template") },
		func(i binding.DataItem, o fyne.CanvasObject) { o.(*widget.Label).Bind(i.(binding.String)) },
	)

	// Auto-scroll
	logData.AddListener(binding.NewDataListener(func() {
		if logData.Length() > 0 {
			logList.ScrollToBottom()
		}
	}))

	// 3. Buttons
	run := func(name string, op func() error) func() {
		return func() {
			if err := op(); err != nil {
				log.Warn().Err(err).Str("op", name).Msg("Scanner command rejected")
			}
		}
	}
	prepareBtn := widget.NewButton("登录 (Prepare)", run("prepare", sc.Prepare))
	startBtn := widget.NewButton("开始 (Start)", run("start", sc.Start))
	startBtn.Importance = widget.HighImportance
	pauseBtn := widget.NewButton("暂停 (Pause)", run("pause", sc.Pause))
	stopBtn := widget.NewButton("停止 (Stop)", run("stop", sc.Stop))
	logoutBtn := widget.NewButton("退出 (Logout)", run("logout", sc.Logout))

	apply := func(st engine.Status) {
		statusData.Set(formatStatus(st))
		b := buttonsFor(st)
		setEnabled(prepareBtn, b.prepare)
		setEnabled(startBtn, b.start)
		setEnabled(pauseBtn, b.pause)
		setEnabled(stopBtn, b.stop)
		setEnabled(logoutBtn, b.logout)
		if displaySelect != nil {
			setEnabled(displaySelect, st.Phase == engine.Idle)
		}
	}
	apply(sc.Status())

	go func() {
		ticker := time.NewTicker(constants.PhasePollInterval)
		defer ticker.Stop()
		for range ticker.C {
			st := sc.Status()
			fyne.Do(func() { apply(st) })
		}
	}()

	// --- Layout ---
	top := []fyne.CanvasObject{widget.NewLabel("交易所扫描 (Exchange Scan):")}
	if displaySelect != nil {
		top = append(top, container.NewHBox(widget.NewLabel("Screen:"), displaySelect))
	}
	top = append(top,
		statusLabel,
		container.NewHBox(prepareBtn, startBtn, pauseBtn, stopBtn, logoutBtn),
		widget.NewSeparator(),
		widget.NewLabel("运行日志:"),
	)

	return container.NewBorder(container.NewVBox(top...), nil, nil, nil, logList)
}

type buttonState struct {
	prepare, start, pause, stop, logout bool
}

func buttonsFor(st engine.Status) buttonState {
	switch st.Phase {
	case engine.Idle:
		return buttonState{prepare: true, start: true}
	case engine.Preparing:
		return buttonState{stop: true, logout: true}
	case engine.Ready:
		return buttonState{start: true, logout: true}
	case engine.Scanning:
		return buttonState{pause: true, stop: true, logout: true}
	case engine.Paused:
		return buttonState{start: true, stop: true, logout: true}
	}
	return buttonState{}
}

func formatStatus(st engine.Status) string {
	text := "Status: " + st.Phase.String()
	if st.HasKingdom && (st.Running || st.Paused) {
		text += fmt.Sprintf(" | Kingdom %d", st.CurrentKingdom)
	}
	return text + fmt.Sprintf(" | Exchanges: %d", st.Exchanges)
}

type disableable interface {
	Enable()
	Disable()
}

func setEnabled(w disableable, on bool) {
	if on {
		w.Enable()
	} else {
		w.Disable()
	}
}
