// Package components defines ECS components for erosion agents.
package components

// Position is an agent's continuous position in cell units.
// The integer part selects the cell, the fraction is the sub-cell offset.
type Position struct {
	X, Y float32
}

// Flow holds the smoothed fall direction and speed of an agent.
type Flow struct {
	X, Y, Z float32 // Normalized fall vector from the last step
	Speed   float32 // Low-pass filtered slope proxy
}

// Sediment holds the material an agent is transporting.
type Sediment struct {
	Amount   float32 // Mass being carried
	Capacity float32 // Max mass at current speed
	Decay    float32 // Age factor; the agent resets once it reaches 1
}

// Kind distinguishes agent populations that share the component layout.
type Kind uint8

const (
	KindWater Kind = iota
	KindWind
)

// Tag marks an agent's population and counts its resets.
type Tag struct {
	Kind   Kind
	Resets uint32
}
