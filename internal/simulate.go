package internal

import (
	"context"
	"errors"
	"time"

	"github.com/markusressel/heat2go/internal/configuration"
	"github.com/markusressel/heat2go/internal/status"
	"github.com/markusressel/heat2go/internal/thermal"
)

// SimulationResult is the temperature history of a channel in a virtual time simulation.
type SimulationResult struct {
	Channel      string
	Target       float64
	Interval     time.Duration
	Temperatures []float64
	Powers       []float64
	Fault        *thermal.FaultSnapshot
}

// Simulate heats a channel of the simulated board to target in virtual time
// and samples its temperature every interval.
func Simulate(config *configuration.Configuration, channelId string, target float64, duration time.Duration, interval time.Duration) (*SimulationResult, error) {
	if interval <= 0 || duration < interval {
		return nil, errors.New("duration must be at least one interval")
	}

	board, err := NewBoard(config, BoardOptions{
		Reporter: status.NewReporter(status.Options{}),
		Virtual:  true,
	})
	if err != nil {
		return nil, err
	}
	id, err := board.Manager.Lookup(channelId)
	if err != nil {
		return nil, err
	}
	if err := board.Manager.SetTarget(id, target); err != nil {
		return nil, err
	}
	target, _ = board.Manager.GetTarget(id)

	result := &SimulationResult{Channel: channelId, Target: target, Interval: interval}
	for elapsed := time.Duration(0); elapsed < duration; elapsed += interval {
		board.RunVirtual(interval)
		snapshot := board.Manager.Snapshot()
		channel, _ := snapshot.Channel(channelId)
		result.Temperatures = append(result.Temperatures, channel.Current)
		result.Powers = append(result.Powers, float64(channel.Power))
		if snapshot.Halted {
			result.Fault = snapshot.Fault
			break
		}
	}
	return result, nil
}

// AutotuneVirtual runs an autotune on the simulated board in virtual time.
func AutotuneVirtual(ctx context.Context, config *configuration.Configuration, channelId string, request thermal.AutotuneRequest, store thermal.ConstantsStore) (*thermal.AutotuneReport, error) {
	board, err := NewBoard(config, BoardOptions{
		Reporter: status.NewReporter(status.Options{}),
		Store:    store,
		Virtual:  true,
	})
	if err != nil {
		return nil, err
	}
	id, err := board.Manager.Lookup(channelId)
	if err != nil {
		return nil, err
	}
	request.Channel = id
	return board.Manager.Autotune(ctx, request)
}
