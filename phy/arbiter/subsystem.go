package arbiter

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"go.viam.com/combophy/logging"
	"go.viam.com/combophy/phy"
	"go.viam.com/combophy/phy/linktrain"
	"go.viam.com/combophy/phy/sequencer"
)

// InstanceConfig wires one PHY instance.
type InstanceConfig struct {
	Board    sequencer.Board
	Hardware sequencer.Hardware
}

// Config is everything a Subsystem is built from.
type Config struct {
	Instances []InstanceConfig
	// Shared is the subsystem's top-level register page.
	Shared   phy.RegisterPort
	Table    *linktrain.Table
	Options  sequencer.Options
	Notifier phy.NotificationPort
}

// Subsystem is the combo-PHY subsystem: the set of instances built from one board configuration
// and the operations the Type-C negotiator and host controllers call. Operations on one instance
// are serialized by its lock; different instances proceed concurrently.
type Subsystem struct {
	instances map[phy.InstanceID]*instance
	shared    *sequencer.Shared
	seq       *sequencer.Sequencer
	notifier  phy.NotificationPort
	logger    logging.Logger
}

type instance struct {
	mu      sync.Mutex
	board   sequencer.Board
	hw      sequencer.Hardware
	arbiter Arbiter
	logger  logging.Logger

	// state is written only with mu held and read without it.
	state atomic.Pointer[State]
}

// NewSubsystem builds the instances named by cfg, each starting idle.
func NewSubsystem(cfg Config, logger logging.Logger) (*Subsystem, error) {
	if cfg.Shared == nil {
		return nil, errors.New("shared register port is required")
	}
	if cfg.Table == nil {
		return nil, errors.New("link-training table is required")
	}
	notifier := cfg.Notifier
	if notifier == nil {
		notifier = discardNotifier{}
	}

	shared := sequencer.NewShared(cfg.Shared)
	s := &Subsystem{
		instances: map[phy.InstanceID]*instance{},
		shared:    shared,
		seq:       sequencer.New(cfg.Table, shared, cfg.Options),
		notifier:  notifier,
		logger:    logger,
	}
	for _, ic := range cfg.Instances {
		id := ic.Board.ID
		if CapabilitiesOf(id).Protocols.IsEmpty() {
			return nil, errors.Wrapf(phy.ErrUnknownInstance, "%s", id)
		}
		if _, ok := s.instances[id]; ok {
			return nil, errors.Errorf("instance %s configured twice", id)
		}
		if id == phy.AuxHpd && ic.Board.HasLanes {
			return nil, errors.Errorf("%s carries no lanes", id)
		}
		if ic.Hardware.Registers == nil || ic.Hardware.Clocks == nil || ic.Hardware.Resets == nil {
			return nil, errors.Errorf("%s: register, clock and reset ports are required", id)
		}
		inst := &instance{
			board:   ic.Board,
			hw:      ic.Hardware,
			arbiter: NewArbiter(ic.Board),
			logger:  logger.Sublogger(id.String()).WithFields("instance", id.String()),
		}
		st := InitialState(id, ic.Board.TypeC)
		inst.state.Store(&st)
		s.instances[id] = inst
	}
	return s, nil
}

// Init makes protocol an owner of the instance.
func (s *Subsystem) Init(id phy.InstanceID, protocol phy.Protocol) error {
	inst, err := s.instance(id)
	if err != nil {
		return err
	}
	inst.mu.Lock()
	defer inst.mu.Unlock()

	tr, err := inst.arbiter.Init(inst.current(), protocol)
	if err != nil {
		inst.logger.Debugw("init rejected", "protocol", protocol.String(), "error", err)
		return err
	}
	return s.apply(inst, tr)
}

// Exit releases protocol's ownership of the instance.
func (s *Subsystem) Exit(id phy.InstanceID, protocol phy.Protocol) error {
	inst, err := s.instance(id)
	if err != nil {
		return err
	}
	inst.mu.Lock()
	defer inst.mu.Unlock()

	tr, err := inst.arbiter.Exit(inst.current(), protocol)
	if err != nil {
		inst.logger.Debugw("exit rejected", "protocol", protocol.String(), "error", err)
		return err
	}
	return s.apply(inst, tr)
}

// SetMode applies a Type-C event. HPD is recorded and forwarded on every call, before and
// regardless of the orientation and altmode handling.
func (s *Subsystem) SetMode(id phy.InstanceID, orientation phy.Orientation, altmode phy.AltmodeState, hpd bool) error {
	inst, err := s.instance(id)
	if err != nil {
		return err
	}
	inst.mu.Lock()
	defer inst.mu.Unlock()

	st := inst.current()
	st.HPD = hpd
	inst.state.Store(&st)
	s.notifier.NotifyHPD(id, hpd)

	tr, err := inst.arbiter.SetMode(st, orientation, altmode)
	if err != nil {
		inst.logger.Debugw("set mode rejected", "orientation", orientation.String(), "altmode", altmode.String(),
			"error", err)
		return err
	}
	if err := s.apply(inst, tr); err != nil {
		return err
	}
	if tr.Next.Orientation != st.Orientation {
		s.notifier.NotifyOrientation(id, tr.Next.Orientation)
	}
	return nil
}

// ConfigureDisplayPort applies the set fields of cfg, each as its own validated sub-step in the
// order SSC, lanes, rate, voltage. A failing sub-step leaves the earlier ones committed.
func (s *Subsystem) ConfigureDisplayPort(id phy.InstanceID, cfg DisplayPortConfig) error {
	inst, err := s.instance(id)
	if err != nil {
		return err
	}
	inst.mu.Lock()
	defer inst.mu.Unlock()

	steps, err := inst.arbiter.ConfigureDisplayPort(inst.current(), cfg)
	if err != nil {
		inst.logger.Debugw("configure rejected", "error", err)
		return err
	}
	for _, step := range steps {
		tr, err := step.Decide(inst.current())
		if err != nil {
			inst.logger.Debugw("configure step rejected", "step", step.Name, "error", err)
			return errors.Wrap(err, step.Name)
		}
		if err := s.apply(inst, tr); err != nil {
			return errors.Wrap(err, step.Name)
		}
	}
	return nil
}

// Validate checks req against the instance's committed state. It has no side effects and does not
// wait for an in-flight operation on the instance.
func (s *Subsystem) Validate(id phy.InstanceID, req Request) error {
	inst, err := s.instance(id)
	if err != nil {
		return err
	}
	return Validate(inst.current(), inst.arbiter.Caps, req)
}

// State returns the committed state of an instance.
func (s *Subsystem) State(id phy.InstanceID) (State, error) {
	inst, err := s.instance(id)
	if err != nil {
		return State{}, err
	}
	return inst.current(), nil
}

// Instances returns the configured instance ids in id order.
func (s *Subsystem) Instances() []phy.InstanceID {
	var ids []phy.InstanceID
	for _, id := range phy.InstanceIDs {
		if _, ok := s.instances[id]; ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// Close powers off every owned instance, concurrently.
func (s *Subsystem) Close(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, inst := range s.instances {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			inst.mu.Lock()
			defer inst.mu.Unlock()
			return s.apply(inst, inst.arbiter.Shutdown(inst.current()))
		})
	}
	return g.Wait()
}

// apply runs tr's plan and commits tr.Next only if it succeeds. Expects inst.mu held.
func (s *Subsystem) apply(inst *instance, tr Transition) error {
	next := tr.Next
	if tr.Plan == nil {
		inst.state.Store(&next)
		return nil
	}
	res, err := s.seq.Apply(inst.logger, inst.board, inst.hw, *tr.Plan)
	if err != nil {
		inst.logger.Errorw("sequence failed, state unchanged", "plan", tr.Plan.Kind.String(), "error", err)
		return err
	}
	next.LaneOrder = res.LaneOrder
	inst.state.Store(&next)
	inst.logger.Infow("mode committed", "plan", tr.Plan.Kind.String(), "mode", next.Mode().String(),
		"owned", next.Owned.String(), "orientation", next.Orientation.String())
	return nil
}

func (s *Subsystem) instance(id phy.InstanceID) (*instance, error) {
	inst, ok := s.instances[id]
	if !ok {
		return nil, errors.Wrapf(phy.ErrUnknownInstance, "%s", id)
	}
	return inst, nil
}

func (inst *instance) current() State {
	return *inst.state.Load()
}

type discardNotifier struct{}

func (discardNotifier) NotifyHPD(phy.InstanceID, bool)                    {}
func (discardNotifier) NotifyOrientation(phy.InstanceID, phy.Orientation) {}
