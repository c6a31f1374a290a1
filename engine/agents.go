package engine

import (
	"math/rand"

	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/erosion/components"
	"github.com/pthm-cable/erosion/systems"
)

// agentStore keeps erosion agents as entities in an ark world.
type agentStore struct {
	world *ecs.World

	mapper *ecs.Map4[
		components.Position,
		components.Flow,
		components.Sediment,
		components.Tag,
	]
	filter *ecs.Filter4[
		components.Position,
		components.Flow,
		components.Sediment,
		components.Tag,
	]

	count [2]int // per components.Kind
}

func newAgentStore() *agentStore {
	world := ecs.NewWorld()
	return &agentStore{
		world: world,
		mapper: ecs.NewMap4[
			components.Position,
			components.Flow,
			components.Sediment,
			components.Tag,
		](world),
		filter: ecs.NewFilter4[
			components.Position,
			components.Flow,
			components.Sediment,
			components.Tag,
		](world),
	}
}

// spawn creates n agents of kind at random cells of a w x h grid.
func (s *agentStore) spawn(kind components.Kind, n, w, h int, decay float32, rng *rand.Rand) {
	for i := 0; i < n; i++ {
		var (
			pos  components.Position
			flow components.Flow
			sed  components.Sediment
		)
		tag := components.Tag{Kind: kind}
		systems.ResetAgent(systems.Agent{Pos: &pos, Flow: &flow, Sed: &sed}, rng.Intn(w), rng.Intn(h), decay, rng)
		s.mapper.NewEntity(&pos, &flow, &sed, &tag)
	}
	s.count[kind] += n
}

// Count returns how many agents of kind exist.
func (s *agentStore) Count(kind components.Kind) int {
	return s.count[kind]
}

// each visits every agent of kind in storage order.
// Agents of one kind always run on one goroutine since they mutate the grid directly.
func (s *agentStore) each(kind components.Kind, fn func(a systems.Agent, tag *components.Tag)) {
	query := s.filter.Query()
	for query.Next() {
		pos, flow, sed, tag := query.Get()
		if tag.Kind != kind {
			continue
		}
		fn(systems.Agent{Pos: pos, Flow: flow, Sed: sed}, tag)
	}
}

// scatter drops whatever every agent of kind carries and re-places it at random.
// Used after the grid is replaced wholesale, where carried load no longer belongs to any cell.
func (s *agentStore) scatter(kind components.Kind, w, h int, decay float32, rng *rand.Rand) {
	s.each(kind, func(a systems.Agent, tag *components.Tag) {
		systems.ResetAgent(a, rng.Intn(w), rng.Intn(h), decay, rng)
		tag.Resets = 0
	})
}

// totalResets sums the reset counters of kind.
func (s *agentStore) totalResets(kind components.Kind) uint64 {
	var n uint64
	s.each(kind, func(_ systems.Agent, tag *components.Tag) {
		n += uint64(tag.Resets)
	})
	return n
}

// carried sums the mass held by agents of kind.
func (s *agentStore) carried(kind components.Kind) float64 {
	var m float64
	s.each(kind, func(a systems.Agent, _ *components.Tag) {
		m += float64(a.Sed.Amount)
	})
	return m
}
