package observerproto

import "github.com/MoniVibe/PureDOTS-sub002/internal/sim/health"

// Version is the observer protocol version.
const Version = "1"

// Client -> Server. First message on the observer WS connection; may be
// re-sent to change settings.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`

	// EveryTicks thins the stream to one message per N ticks.
	EveryTicks int  `json:"every_ticks,omitempty"`
	Occupancy  bool `json:"occupancy,omitempty"`
}

// HTTP response for GET /observer/bootstrap.
type BootstrapResponse struct {
	ProtocolVersion string     `json:"protocol_version"`
	WorldID         string     `json:"world_id"`
	RunID           string     `json:"run_id"`
	Tick            uint64     `json:"tick"`
	TickRateHz      int        `json:"tick_rate_hz"`
	Seed            int64      `json:"seed"`
	Grid            GridParams `json:"grid"`
	Resources       []string   `json:"resources"`
	Archetypes      []string   `json:"archetypes"`
}

type GridParams struct {
	WorldMin   [3]float64 `json:"world_min"`
	WorldMax   [3]float64 `json:"world_max"`
	CellSize   float64    `json:"cell_size"`
	CellCounts [3]int     `json:"cell_counts"`
	Provider   string     `json:"provider"`
}

// Server -> Client. Sent after every recorded or played-back tick.
type TickMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`

	WorldID   string          `json:"world_id"`
	Tick      uint64          `json:"tick"`
	Mode      string          `json:"mode"`
	Version   uint64          `json:"grid_version"`
	Strategy  string          `json:"strategy"`
	Villagers int             `json:"villagers"`
	Resources int             `json:"resources"`
	Counters  health.Counters `json:"counters"`
	Level     string          `json:"level"`
	Reasons   []string        `json:"reasons,omitempty"`
	Digest    string          `json:"digest"`

	// Occupancy is base64 varint run-length pairs of per-cell counts.
	Occupancy string `json:"occupancy,omitempty"`
}
