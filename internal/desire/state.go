package desire

import (
	"log/slog"
	"strings"
	"sync"
	"time"
)

const DefaultThreshold = 0.6

type Options struct {
	Threshold float64
	Specs     []Spec
	Now       func() time.Time
}

// Impulse is a drive that crossed its threshold, optionally focused on a
// curiosity target.
type Impulse struct {
	Drive  Drive
	Level  float64
	Target string
}

// Prompt renders the impulse as a self-originated request.
func (i Impulse) Prompt(companion string) string {
	return Prompt(i.Drive, i.Target, companion)
}

// Label names the impulse for display.
func (i Impulse) Label() string {
	if i.Target != "" {
		return string(i.Drive) + ": " + i.Target
	}
	return string(i.Drive)
}

type Reading struct {
	Drive     Drive
	Level     float64
	Threshold float64
}

func (r Reading) Ready() bool {
	return r.Level >= r.Threshold
}

// State holds drive levels and the pending curiosity target. Every
// mutation is written through to the store.
type State struct {
	mu        sync.Mutex
	store     *Store
	specs     []Spec
	levels    map[Drive]float64
	curiosity string
	threshold float64
	lastTick  time.Time
	now       func() time.Time
}

func NewState(store *Store, opts Options) *State {
	if opts.Threshold <= 0 {
		opts.Threshold = DefaultThreshold
	}
	if len(opts.Specs) == 0 {
		opts.Specs = DefaultSpecs()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	s := &State{
		store:     store,
		levels:    make(map[Drive]float64, len(opts.Specs)),
		threshold: opts.Threshold,
		lastTick:  opts.Now(),
		now:       opts.Now,
	}
	s.specs = make([]Spec, len(opts.Specs))
	for i, spec := range opts.Specs {
		if spec.Threshold <= 0 {
			spec.Threshold = opts.Threshold
		}
		s.specs[i] = spec
		s.levels[spec.Drive] = spec.Baseline
	}

	if snap, ok := store.Load(); ok {
		for _, spec := range s.specs {
			if v, found := snap.Levels[spec.Drive]; found {
				s.levels[spec.Drive] = clamp(v)
			}
		}
		s.curiosity = strings.TrimSpace(snap.Curiosity)
	}
	return s
}

// Threshold is the default applied to drives without their own.
func (s *State) Threshold() float64 {
	return s.threshold
}

// Tick grows every drive by the time elapsed since the previous tick.
func (s *State) Tick(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tick(now)
	s.save()
}

func (s *State) tick(now time.Time) {
	elapsed := now.Sub(s.lastTick)
	if elapsed <= 0 {
		return
	}
	s.lastTick = now
	for _, spec := range s.specs {
		if spec.Grow == nil {
			continue
		}
		s.levels[spec.Drive] = clamp(spec.Grow(s.levels[spec.Drive], elapsed))
	}
}

// Fire ticks the state and returns the strongest drive at or above its
// threshold, resetting it to its baseline. Equal levels go to the drive
// with higher priority. When nothing is ready but a curiosity target is
// pending, the target fires as a look_around impulse.
func (s *State) Fire(now time.Time) (Impulse, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.save()

	s.tick(now)

	var (
		best  Spec
		level float64
		found bool
	)
	for _, spec := range s.specs {
		v := s.levels[spec.Drive]
		if v < spec.Threshold {
			continue
		}
		if !found || v > level || (v == level && rank(spec.Drive) < rank(best.Drive)) {
			best, level, found = spec, v, true
		}
	}

	if found {
		s.levels[best.Drive] = best.Baseline
		impulse := Impulse{Drive: best.Drive, Level: level}
		if s.curiosity != "" && (best.Drive == LookAround || best.Drive == Explore) {
			impulse.Target = s.curiosity
			s.curiosity = ""
		}
		slog.Info("Desire fired", "drive", impulse.Drive, "level", level, "target", impulse.Target)
		return impulse, true
	}

	if s.curiosity != "" {
		impulse := Impulse{Drive: LookAround, Level: s.levels[LookAround], Target: s.curiosity}
		s.curiosity = ""
		slog.Info("Curiosity fired", "target", impulse.Target)
		return impulse, true
	}
	return Impulse{}, false
}

// Satisfy resets a drive to its baseline.
func (s *State) Satisfy(d Drive) {
	s.mu.Lock()
	defer s.mu.Unlock()
	spec, ok := s.spec(d)
	if !ok {
		return
	}
	s.levels[d] = spec.Baseline
	s.save()
}

func (s *State) Boost(d Drive, amount float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.spec(d); !ok || amount == 0 {
		return
	}
	s.levels[d] = clamp(s.levels[d] + amount)
	s.save()
}

// SetCuriosity records target unless one is already pending.
func (s *State) SetCuriosity(target string) bool {
	target = strings.TrimSpace(target)
	s.mu.Lock()
	defer s.mu.Unlock()
	if target == "" || s.curiosity != "" {
		return false
	}
	s.curiosity = target
	s.save()
	return true
}

func (s *State) Curiosity() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.curiosity
}

func (s *State) Level(d Drive) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.levels[d]
}

// Readings returns every drive level in display order.
func (s *State) Readings() []Reading {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Reading, 0, len(s.specs))
	for _, spec := range s.specs {
		out = append(out, Reading{Drive: spec.Drive, Level: s.levels[spec.Drive], Threshold: spec.Threshold})
	}
	return out
}

func (s *State) spec(d Drive) (Spec, bool) {
	for _, spec := range s.specs {
		if spec.Drive == d {
			return spec, true
		}
	}
	return Spec{}, false
}

func (s *State) save() {
	levels := make(map[Drive]float64, len(s.levels))
	for d, v := range s.levels {
		levels[d] = v
	}
	snap := Snapshot{Levels: levels, Curiosity: s.curiosity, UpdatedAt: s.now()}
	if err := s.store.Save(snap); err != nil {
		slog.Warn("Could not save desires", "path", s.store.Path(), "error", err)
	}
}
