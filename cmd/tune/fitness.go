package main

import (
	"io"
	"log/slog"
	"math"
	"sync"

	"github.com/pthm-cable/erosion/config"
	"github.com/pthm-cable/erosion/engine"
	"github.com/pthm-cable/erosion/systems"
	"github.com/pthm-cable/erosion/telemetry"
)

// Objective weights.
const (
	weightRelief  = 1.0
	weightDrift   = 50.0
	weightRepairs = 100.0
	weightResets  = 5.0
)

// failedFitness is returned for runs that produced no stats at all.
const failedFitness = 1e6

// FitnessEvaluator runs headless erosion runs and scores the resulting terrain.
type FitnessEvaluator struct {
	params       *ParamVector
	maxTicks     uint64
	seeds        []int64
	baseConfig   *config.Config
	targetRelief float64 // Wanted final/initial height std ratio
	logger       *slog.Logger

	mu         sync.Mutex
	lastRelief float64 // relief ratio from the most recent Evaluate call
}

// NewFitnessEvaluator creates a new evaluator.
func NewFitnessEvaluator(params *ParamVector, maxTicks uint64, seeds []int64, baseCfg *config.Config, targetRelief float64) *FitnessEvaluator {
	return &FitnessEvaluator{
		params:       params,
		maxTicks:     maxTicks,
		seeds:        seeds,
		baseConfig:   baseCfg,
		targetRelief: targetRelief,
		logger:       slog.New(slog.NewJSONHandler(io.Discard, nil)),
	}
}

// LastRelief returns the mean relief ratio from the most recent evaluation.
func (fe *FitnessEvaluator) LastRelief() float64 {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	return fe.lastRelief
}

// runResult holds the results from a single simulation run.
type runResult struct {
	initialStd   float64
	initialSolid float64
	cells        int
	agents       int
	ticks        uint64
	windows      []telemetry.WindowStats
}

// Evaluate computes fitness for a parameter vector (lower = better).
func (fe *FitnessEvaluator) Evaluate(x []float64) float64 {
	type seedResult struct {
		fitness float64
		relief  float64
	}

	// Run all seeds in parallel
	results := make([]seedResult, len(fe.seeds))
	var wg sync.WaitGroup

	for i, seed := range fe.seeds {
		wg.Add(1)
		go func(idx int, s int64) {
			defer wg.Done()
			r, err := fe.runSimulation(x, s)
			if err != nil {
				fe.logger.Error("run failed", "seed", s, "error", err)
				results[idx] = seedResult{fitness: failedFitness}
				return
			}
			results[idx] = seedResult{
				fitness: computeFitness(r, fe.targetRelief),
				relief:  reliefRatio(r),
			}
		}(i, seed)
	}
	wg.Wait()

	var totalFitness, totalRelief float64
	for _, r := range results {
		totalFitness += r.fitness
		totalRelief += r.relief
	}
	n := float64(len(fe.seeds))

	fe.mu.Lock()
	fe.lastRelief = totalRelief / n
	fe.mu.Unlock()

	return totalFitness / n
}

// runSimulation executes a single headless run for maxTicks.
func (fe *FitnessEvaluator) runSimulation(x []float64, seed int64) (*runResult, error) {
	cfg := fe.copyConfig()
	fe.params.ApplyToConfig(cfg, x)

	eng, err := engine.New(cfg, seed, fe.logger)
	if err != nil {
		return nil, err
	}
	defer eng.Close()
	eng.InitTerrain()

	heights := make([]float64, 0, len(eng.Cells()))
	result := &runResult{
		cells:  len(eng.Cells()),
		agents: cfg.Hydraulic.NumAgents,
		ticks:  fe.maxTicks,
	}
	for _, c := range eng.Cells() {
		h := float64(systems.Height(c))
		heights = append(heights, h)
		result.initialSolid += h
	}
	result.initialStd = telemetry.ComputeHeightStats(heights).Std

	for tick := uint64(1); tick <= fe.maxTicks; tick++ {
		eng.ModifyTerrain(tick)
		if stats, fresh := eng.Stats(); fresh {
			result.windows = append(result.windows, stats)
		}
	}
	return result, nil
}

// copyConfig returns a copy of the base config that runs can mutate.
// Noise layer slices are shared; runs never write them.
func (fe *FitnessEvaluator) copyConfig() *config.Config {
	cfg := *fe.baseConfig
	cfg.Mode = config.ModeWater
	cfg.Parallel.Workers = 1 // seeds already run in parallel
	return &cfg
}

// reliefRatio is the final height std over the initial one.
func reliefRatio(r *runResult) float64 {
	if len(r.windows) == 0 || r.initialStd == 0 {
		return 0
	}
	return r.windows[len(r.windows)-1].HeightStd / r.initialStd
}

// computeFitness scores a run (lower = better).
// Relief error is measured in log space so over- and under-erosion weigh alike.
func computeFitness(r *runResult, targetRelief float64) float64 {
	if len(r.windows) == 0 {
		return failedFitness
	}

	ratio := reliefRatio(r)
	relief := failedFitness
	if ratio > 0 && targetRelief > 0 {
		e := math.Log(ratio / targetRelief)
		relief = e * e
	}

	var drift float64
	var repairs, badResets int
	for _, w := range r.windows {
		drift += math.Abs(w.SolidDrift)
		repairs += w.Repairs
		badResets += w.ResetsDegenerate + w.ResetsStalled + w.ResetsUphill
	}

	var driftFrac, repairRate, resetRate float64
	if r.initialSolid > 0 {
		driftFrac = drift / r.initialSolid
	}
	if r.cells > 0 && r.ticks > 0 {
		repairRate = float64(repairs) / (float64(r.cells) * float64(r.ticks))
	}
	if r.agents > 0 && r.ticks > 0 {
		resetRate = float64(badResets) / (float64(r.agents) * float64(r.ticks))
	}

	return weightRelief*relief +
		weightDrift*driftFrac +
		weightRepairs*repairRate +
		weightResets*resetRate
}
