package domain

// Mode is the fetcher's ingestion mode.
type Mode string

const (
	// ModeCatchUp pulls logs in bounded windows until the safe head.
	ModeCatchUp Mode = "catch_up"
	// ModeRealtime polls an installed log filter.
	ModeRealtime Mode = "realtime"
)
