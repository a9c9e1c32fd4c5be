package constants

import "time"

// Scan Configuration
const (
	// Scan Timing
	KingdomCooldown      = 2 * time.Minute        // Minimum time between full scans of one kingdom
	ExchangeDedupWindow  = 5 * time.Minute        // Same (K, X, Y) inside this window is a duplicate
	DefaultNavigateDelay = 750 * time.Millisecond // Wait after the coordinate dialog is submitted
	SettleDelay          = 2 * time.Second        // Wait after navigating before a screenshot
	PopupDelay           = 2 * time.Second        // Wait after clicking for the info popup
	DismissDelay         = 500 * time.Millisecond // Wait after dismissing the popup
	PhasePollInterval    = 500 * time.Millisecond // Headless runner and UI status refresh

	// Scan Patterns
	ScanStep       = 25  // World units between spiral positions
	WideScanStep   = 50  // World units between wide spiral positions
	GridMin        = 30  // First grid coordinate
	GridMax        = 970 // Last grid coordinate
	GridStep       = 30  // Grid spacing
	WorldMax       = 1023
	WorldCenter    = 512
	RingsSingle    = 4
	RingsMulti     = 4
	RingsWide      = 9
	RingsKnown     = 1
	DefaultPattern = "grid"

	// Detection
	MatchThreshold       = 0.98 // Cascade acceptance threshold, every channel
	VerifyScoreThreshold = 0.90 // Calibration and re-verify acceptance
	ManualDetectFound    = 0.88 // Threshold reported by the detect-once diagnostics
	NearCenterPx         = 80.0 // Max |dx| and |dy| from screen center for "near center"
	DedupDistancePx      = 40.0 // Matches closer than this on both axes collapse
	DefaultScaleDown     = 1

	// Geometry (1920x1080 viewport, zoomed fully out)
	ViewportMinX  = 160
	ViewportMinY  = 60
	ViewportMaxX  = 1860
	ViewportMaxY  = 1000
	ScreenCenterX = 760.0
	ScreenCenterY = 400.0
	PxPerWorldX   = 49.40
	PxPerWorldY   = 28.32
	TiltY         = -1.50

	// Audit / UI
	DefaultAuditPath = "exchanges.jsonl"
	UILogLines       = 100
)
