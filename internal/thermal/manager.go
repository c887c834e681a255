package thermal

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/markusressel/heat2go/internal/control_loop"
	"github.com/markusressel/heat2go/internal/hal"
	"github.com/markusressel/heat2go/internal/protection"
	"github.com/markusressel/heat2go/internal/sampler"
	"github.com/markusressel/heat2go/internal/sensors"
	"github.com/markusressel/heat2go/internal/softpwm"
	"github.com/markusressel/heat2go/internal/ui"
)

// observation is a fault seen during one Task pass.
type observation struct {
	channel *channel
	kind    ErrorKind
	err     error
}

type pendingFault struct {
	observation
	passes int
}

// Manager owns all channels. ISR must be called from exactly one goroutine
// at the interrupt frequency, Task, Idle and all blocking commands from
// exactly one other goroutine. SetTarget, DisableAll, the getters and
// Snapshot may be called from anywhere.
type Manager struct {
	hal      hal.Hal
	reporter StatusReporter
	stopper  MotionStopper
	store    ConstantsStore
	idleHook func()

	sampler *sampler.Sampler
	stage   *softpwm.Stage

	channels []*channel
	fans     []*fan
	byName   map[string]ChannelId
	raws     []sensors.Raw

	// period is the time between two readings in seconds
	period        float64
	confirmations int

	pending       *pendingFault
	nextAutoFanMs uint32
	tuning        bool

	halted atomic.Bool
	fault  atomic.Pointer[FatalError]
}

func New(config Config, options Options) (*Manager, error) {
	if options.Hal == nil {
		return nil, errors.New("no hal given")
	}
	if config.IsrFrequency <= 0 {
		config.IsrFrequency = DefaultIsrFrequency
	}
	if config.Oversample <= 0 {
		config.Oversample = DefaultOversample
	}
	if config.SensorsReadyDwell <= 0 {
		config.SensorsReadyDwell = DefaultSensorsReadyDwell
	}
	if config.FaultConfirmations <= 0 {
		config.FaultConfirmations = DefaultFaultConfirmations
	}

	stage, err := softpwm.NewStage(options.Hal, config.SoftPwm)
	if err != nil {
		return nil, err
	}

	m := &Manager{
		hal:           options.Hal,
		reporter:      options.Reporter,
		stopper:       options.Stopper,
		store:         options.Store,
		idleHook:      options.IdleHook,
		stage:         stage,
		byName:        map[string]ChannelId{},
		confirmations: config.FaultConfirmations,
	}

	var adcPins []hal.Pin
	for i, spec := range config.Channels {
		if _, exists := m.byName[spec.Id]; exists {
			return nil, fmt.Errorf("duplicate channel id '%s'", spec.Id)
		}
		ch := &channel{
			id:         ChannelId(i),
			spec:       spec,
			adcIndex:   -1,
			conversion: spec.Sensor.Conversion,
			fanScaler:  protection.FullFanScale,
		}
		switch {
		case spec.Sensor.AdcPin != nil:
			ch.adcIndex = len(adcPins)
			adcPins = append(adcPins, *spec.Sensor.AdcPin)
		case spec.Sensor.Thermocouple != nil:
			if options.Bus == nil {
				return nil, fmt.Errorf("channel %s: thermocouple configured but no bus available", spec.Id)
			}
			tc := spec.Sensor.Thermocouple
			ch.thermocouple = sensors.NewThermocoupleReader(options.Bus, tc.Cs, tc.Chip, tc.MaxErrors)
		default:
			return nil, fmt.Errorf("channel %s: no sensor input configured", spec.Id)
		}
		m.byName[spec.Id] = ch.id
		m.channels = append(m.channels, ch)
	}

	m.sampler, err = sampler.New(options.Hal, sampler.Config{
		Pins:         adcPins,
		Oversample:   config.Oversample,
		Dwell:        config.SensorsReadyDwell,
		StartupDelay: config.StartupDelay,
	})
	if err != nil {
		return nil, err
	}
	m.raws = make([]sensors.Raw, len(adcPins))
	m.period = m.sampler.Period(config.IsrFrequency)

	for _, spec := range config.Fans {
		f := &fan{spec: spec}
		f.output = stage.Add(spec.Pin, false, spec.Slow)
		if spec.Auto != nil {
			for _, id := range spec.Auto.Channels {
				ch, err := m.lookup(id)
				if err != nil {
					return nil, fmt.Errorf("fan %s: %w", spec.Id, err)
				}
				f.auto = append(f.auto, ch)
			}
		}
		for _, id := range spec.PartCooling {
			ch, err := m.lookup(id)
			if err != nil {
				return nil, fmt.Errorf("fan %s: %w", spec.Id, err)
			}
			f.partCooling = append(f.partCooling, ch)
		}
		m.fans = append(m.fans, f)
	}

	for _, ch := range m.channels {
		if err := m.setupChannel(ch, options); err != nil {
			return nil, fmt.Errorf("channel %s: %w", ch.name(), err)
		}
	}

	return m, nil
}

func (m *Manager) setupChannel(ch *channel, options Options) error {
	spec := ch.spec

	if spec.MaxTemp > spec.MinTemp {
		bounds, err := sensors.DeriveBounds(ch.conversion, spec.MinTemp, spec.MaxTemp)
		if err != nil {
			return err
		}
		ch.bounds = protection.NewBoundCheck(protection.BoundConfig{
			Bounds:                bounds,
			PreheatTime:           spec.PreheatTime,
			ConsecutiveLowAllowed: spec.ConsecutiveLowAllowed,
		})
	}

	if spec.RedundantOf != "" {
		primary, err := m.lookup(spec.RedundantOf)
		if err != nil {
			return err
		}
		ch.redundant = primary
	}

	if spec.Heater == nil {
		return nil
	}
	if !spec.Kind.Actuated() {
		return fmt.Errorf("channels of kind %s can not drive a heater", spec.Kind)
	}

	ch.output = m.stage.Add(spec.Heater.Pin, true, spec.Heater.Slow)
	ch.maxPower = control_loop.MaxPower
	if spec.Heater.MaxPower > 0 {
		ch.maxPower = float64(spec.Heater.MaxPower)
	}
	ch.idleTimeout = uint32(spec.IdleTimeout.Milliseconds())

	if spec.Control.Fan != "" {
		for _, f := range m.fans {
			if f.spec.Id == spec.Control.Fan {
				ch.fan = f
			}
		}
		if ch.fan == nil {
			return fmt.Errorf("%w: %s", ErrUnknownFan, spec.Control.Fan)
		}
	}

	var extrusion control_loop.ExtrusionSource
	if spec.Control.Extrusion && options.Motion != nil {
		extrusion = options.Motion
	}

	switch spec.Control.Kind {
	case ControlPid:
		ch.loop = control_loop.NewPidControlLoop(spec.Control.Pid, control_loop.PidOptions{
			Period:          m.period,
			MaxPower:        ch.maxPower,
			FunctionalRange: spec.Control.FunctionalRange,
			Extrusion:       extrusion,
			LagQueueLength:  spec.Control.LagQueueLength,
		})
	case ControlMpc:
		if err := spec.Control.Mpc.Validate(); err != nil {
			return err
		}
		mpcOptions := control_loop.MpcOptions{
			Period:    m.period,
			MaxPower:  ch.maxPower,
			Extrusion: extrusion,
		}
		if ch.fan != nil {
			mpcOptions.Fan = ch.fan
		}
		ch.loop = control_loop.NewMpcControlLoop(spec.Control.Mpc, mpcOptions)
	case ControlBangBang:
		ch.loop = control_loop.NewBangBangControlLoop(spec.Control.Hysteresis, ch.maxPower, spec.Kind == Cooler)
	default:
		return errors.New("no control configured")
	}

	// coolers work against the ambient, only the bounds apply
	if spec.Kind != Cooler {
		if spec.Runaway != nil {
			runaway := *spec.Runaway
			if spec.Variance != nil {
				runaway.Variance = protection.NewVarianceMonitor(spec.Variance.Window, spec.Variance.MinVariance)
			}
			ch.runaway = protection.NewRunawayMonitor(runaway)
		}
		if spec.Watch != nil {
			ch.watch = protection.NewHeaterWatch(*spec.Watch)
		}
	}
	return nil
}

func (m *Manager) lookup(name string) (*channel, error) {
	id, ok := m.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownChannel, name)
	}
	return m.channels[id], nil
}

func (m *Manager) channel(id ChannelId) (*channel, error) {
	if id < 0 || int(id) >= len(m.channels) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownChannel, id)
	}
	return m.channels[id], nil
}

// Period returns the time between two readings in seconds.
func (m *Manager) Period() float64 {
	return m.period
}

// ISR advances the sampler and the soft pwm stage by one tick.
func (m *Manager) ISR() {
	m.sampler.Step()
	m.stage.Step()
}

// Idle runs one Task pass followed by the idle hook. Every wait loop pumps Idle.
func (m *Manager) Idle() {
	m.Task()
	if m.idleHook != nil {
		m.idleHook()
	}
}

// Task processes the latest readings, if any.
func (m *Manager) Task() {
	m.hal.WatchdogRefresh()

	buffer := m.sampler.Buffer()
	if !buffer.Acquire(m.raws) {
		return
	}
	buffer.Release()

	now := m.hal.NowMs()
	var found *observation
	observe := func(o observation) {
		if found == nil {
			found = &o
		}
	}

	for _, ch := range m.channels {
		m.updateTemperature(now, ch, observe)
	}
	if m.halted.Load() {
		return
	}

	for _, ch := range m.channels {
		m.checkChannel(now, ch, observe)
	}
	for _, ch := range m.channels {
		m.controlChannel(now, ch)
	}
	m.updateFans(now)
	m.escalate(found)
}

func (m *Manager) updateTemperature(now uint32, ch *channel, observe func(observation)) {
	var raw sensors.Raw
	if ch.thermocouple != nil {
		var err error
		raw, err = ch.thermocouple.Read(now)
		if err != nil {
			observe(observation{channel: ch, kind: KindSensorFault, err: err})
		}
	} else {
		raw = m.raws[ch.adcIndex]
	}
	ch.raw.Store(int32(raw))
	ch.current.Store(ch.conversion.Celsius(raw))
}

// checkChannel runs all protections of a channel.
func (m *Manager) checkChannel(now uint32, ch *channel, observe func(observation)) {
	current := ch.current.Load()
	target := ch.target.Load()

	if ch.heated() && target != ch.appliedTarget {
		m.applyTarget(now, ch, target)
	}
	idle := ch.heated() && ch.idle(now)

	if ch.redundant != nil && protection.RedundantMismatch(ch.redundant.current.Load(), current, ch.redundantMaxDiff()) {
		observe(observation{
			channel: ch.redundant,
			kind:    KindRedundantMismatch,
			err:     fmt.Errorf("%s reads %.1f°C, %s reads %.1f°C", ch.redundant.name(), ch.redundant.current.Load(), ch.name(), current),
		})
	}

	if ch.bounds != nil {
		heating := target > 0 || ch.power() > 0
		switch ch.bounds.Check(now, sensors.Raw(ch.raw.Load()), heating) {
		case protection.BoundTooCold:
			observe(observation{channel: ch, kind: KindMinTemp, err: fmt.Errorf("%.1f°C is below %.1f°C", current, ch.spec.MinTemp)})
		case protection.BoundTooHot:
			observe(observation{channel: ch, kind: KindMaxTemp, err: fmt.Errorf("%.1f°C is above %.1f°C", current, ch.spec.MaxTemp)})
		}
	}

	if ch.runaway != nil {
		verdict := ch.runaway.Run(now, current, target, idle, ch.demand > 0)
		ch.runawayState.Store(uint32(verdict.State))
		ch.fanScaler = verdict.FanScaler
		if verdict.Entered && verdict.Fault() {
			ui.Warning("Channel %s: runaway monitor entered %s at %.1f°C (target %.1f°C)", ch.name(), verdict.State, current, target)
		}
		switch verdict.State {
		case protection.Runaway:
			observe(observation{channel: ch, kind: KindThermalRunaway})
		case protection.Malfunction:
			observe(observation{channel: ch, kind: KindThermalMalfunction})
		}
	}

	if ch.watch != nil && !idle && ch.watch.Check(now, current, target) {
		observe(observation{channel: ch, kind: KindHeatingFailed, err: errHeatingFailed})
	}
}

var errHeatingFailed = errors.New("temperature did not rise in time")

func (c *channel) redundantMaxDiff() float64 {
	if c.spec.RedundantMaxDiff > 0 {
		return c.spec.RedundantMaxDiff
	}
	return protection.DefaultRedundantMaxDiff
}

// applyTarget reacts to a new target of a heated channel.
func (m *Manager) applyTarget(now uint32, ch *channel, target float64) {
	previous := ch.appliedTarget
	ch.appliedTarget = target
	ui.Debug("Channel %s: target changed from %.1f°C to %.1f°C", ch.name(), previous, target)

	if ch.bounds != nil && previous == 0 && target > 0 {
		ch.bounds.StartPreheat(now)
	}
	if ch.watch != nil {
		if target > 0 {
			ch.watch.Start(now, ch.current.Load(), target)
		} else {
			ch.watch.Stop()
		}
	}
}

// controlChannel computes and applies the power of a heated channel.
func (m *Manager) controlChannel(now uint32, ch *channel) {
	if !ch.heated() {
		return
	}
	current := ch.current.Load()

	if ch.tuner != nil {
		ch.demand = ch.tuner.step(now, current)
	} else {
		target := ch.target.Load()
		if ch.idle(now) {
			target = 0
		}
		ch.demand = ch.loop.Loop(target, current)
	}

	if m.pending != nil {
		ch.setPower(0)
		return
	}
	ch.setPower(ch.demand)
}

func (m *Manager) updateFans(now uint32) {
	if hal.Elapsed(now, m.nextAutoFanMs) {
		for _, f := range m.fans {
			f.updateAuto()
		}
		m.nextAutoFanMs = now + autoFanIntervalMs
	}
	for _, f := range m.fans {
		f.apply()
	}
}

// escalate applies the fault confirmation policy to the fault found in this pass.
func (m *Manager) escalate(found *observation) {
	if found == nil {
		if m.pending != nil {
			ui.Info("Channel %s: %s cleared after %d pass(es)", m.pending.channel.name(), m.pending.kind, m.pending.passes)
			m.pending = nil
		}
		return
	}

	if m.pending == nil {
		m.pending = &pendingFault{observation: *found}
		ui.Warning("Channel %s: %s, disabling all heaters", found.channel.name(), found.kind)
	}
	m.pending.passes++

	for _, ch := range m.channels {
		ch.setPower(0)
	}
	m.hal.WatchdogRefresh()

	if m.pending.passes >= m.confirmations {
		m.halt(m.pending.observation)
	}
}

// halt permanently disables all heaters. Only a new Manager can heat again.
func (m *Manager) halt(o observation) {
	if m.halted.Swap(true) {
		return
	}
	m.stage.KillHeaters()
	for _, ch := range m.channels {
		ch.target.Store(0)
		ch.setPower(0)
	}
	m.hal.WatchdogRefresh()

	fatal := &FatalError{Channel: o.channel.name(), Kind: o.kind, Err: o.err}
	m.fault.Store(fatal)
	ui.Error("Thermal fault, heaters halted: %v", fatal)

	if m.stopper != nil {
		m.stopper.Stop()
	}
	if m.reporter != nil {
		m.reporter.ReportFatal(o.channel.name(), o.kind, fatal)
	}
}
