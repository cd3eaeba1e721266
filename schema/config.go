package schema

// ManagerConfig defines defaults and limits for the terminal manager.
type ManagerConfig struct {
	// ScrollbackLines caps the per-session scrollback ring.
	ScrollbackLines int
	// KillGraceMillis is how long a terminated child gets between SIGTERM
	// and SIGKILL.
	KillGraceMillis int
	// DefaultSize is used when an attach request carries no geometry.
	DefaultSize TermSize
}

// DefaultScrollbackLines is the default per-session scrollback limit.
const DefaultScrollbackLines = 10000

// DefaultKillGraceMillis is the default SIGTERM-to-SIGKILL grace period.
const DefaultKillGraceMillis = 500

// NormalizeManagerConfig applies defaults and validates the config.
func NormalizeManagerConfig(cfg ManagerConfig) ManagerConfig {
	if cfg.ScrollbackLines <= 0 {
		cfg.ScrollbackLines = DefaultScrollbackLines
	}
	if cfg.KillGraceMillis <= 0 {
		cfg.KillGraceMillis = DefaultKillGraceMillis
	}
	if cfg.DefaultSize.Rows <= 0 || cfg.DefaultSize.Cols <= 0 {
		cfg.DefaultSize = TermSize{Rows: 24, Cols: 80}
	}
	return cfg
}
