package desire

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct{ t time.Time }

func (c *clock) Now() time.Time { return c.t }

func (c *clock) advance(d time.Duration) time.Time {
	c.t = c.t.Add(d)
	return c.t
}

func newTestState(t *testing.T) (*State, *clock, *Store) {
	t.Helper()
	c := &clock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	store := NewStore(filepath.Join(t.TempDir(), "desires.json"))
	return NewState(store, Options{Now: c.Now}), c, store
}

func TestState_Defaults(t *testing.T) {
	s, _, _ := newTestState(t)

	assert.InDelta(t, 0.1, s.Level(LookAround), 1e-9)
	assert.InDelta(t, 0.1, s.Level(Explore), 1e-9)
	assert.Zero(t, s.Level(GreetCompanion))
	assert.Zero(t, s.Level(Rest))
	assert.Zero(t, s.Level(WorryCompanion))
	assert.Equal(t, DefaultThreshold, s.Threshold())

	readings := s.Readings()
	require.Len(t, readings, 5)
	assert.Equal(t, LookAround, readings[0].Drive)
	assert.False(t, readings[0].Ready())
}

func TestState_TickGrowsAndCaps(t *testing.T) {
	s, c, _ := newTestState(t)

	s.Tick(c.advance(10 * time.Second))
	assert.InDelta(t, 0.15, s.Level(LookAround), 1e-9)
	assert.InDelta(t, 0.18, s.Level(Explore), 1e-9)
	assert.InDelta(t, 0.02, s.Level(GreetCompanion), 1e-9)
	assert.Zero(t, s.Level(Rest))
	assert.Zero(t, s.Level(WorryCompanion))

	s.Tick(c.advance(time.Hour))
	assert.Equal(t, 1.0, s.Level(LookAround))
	assert.Equal(t, 1.0, s.Level(Explore))

	s.Tick(c.t.Add(-time.Minute))
	assert.Equal(t, 1.0, s.Level(Explore))
}

func TestState_FireNothingBelowThreshold(t *testing.T) {
	s, c, _ := newTestState(t)
	_, ok := s.Fire(c.advance(time.Second))
	assert.False(t, ok)
}

func TestState_FirePicksHighestAndResets(t *testing.T) {
	s, c, _ := newTestState(t)

	// explore crosses 0.6 first: (0.6-0.1)/0.008 = 62.5s
	impulse, ok := s.Fire(c.advance(63 * time.Second))
	require.True(t, ok)
	assert.Equal(t, Explore, impulse.Drive)
	assert.GreaterOrEqual(t, impulse.Level, 0.6)
	assert.InDelta(t, 0.1, s.Level(Explore), 1e-9)
	assert.Empty(t, impulse.Target)
	assert.Contains(t, impulse.Prompt(""), "(inner impulse)")
}

func TestState_FireTieBreaksByPriority(t *testing.T) {
	s, c, _ := newTestState(t)
	s.Boost(WorryCompanion, 0.9)
	s.Boost(Rest, 0.9)

	impulse, ok := s.Fire(c.advance(time.Millisecond))
	require.True(t, ok)
	assert.Equal(t, Rest, impulse.Drive)

	impulse, ok = s.Fire(c.advance(time.Millisecond))
	require.True(t, ok)
	assert.Equal(t, WorryCompanion, impulse.Drive)
	assert.Zero(t, s.Level(WorryCompanion))
}

func TestState_RestBeatsExploreAtThreshold(t *testing.T) {
	c := &clock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	store := NewStore(filepath.Join(t.TempDir(), "desires.json"))
	require.NoError(t, store.Save(Snapshot{Levels: map[Drive]float64{Rest: 0.6, Explore: 0.6}}))
	s := NewState(store, Options{Now: c.Now})

	impulse, ok := s.Fire(c.t)
	require.True(t, ok)
	assert.Equal(t, Rest, impulse.Drive)
	assert.Zero(t, s.Level(Rest))
	assert.Equal(t, 0.6, s.Level(Explore))
}

func TestState_PerDriveThreshold(t *testing.T) {
	c := &clock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	specs := DefaultSpecs()
	for i := range specs {
		if specs[i].Drive == Rest {
			specs[i].Threshold = 0.9
		}
	}
	s := NewState(NewStore(filepath.Join(t.TempDir(), "desires.json")), Options{Specs: specs, Now: c.Now})
	s.Boost(Rest, 0.7)

	_, ok := s.Fire(c.advance(time.Millisecond))
	assert.False(t, ok)

	for _, r := range s.Readings() {
		switch r.Drive {
		case Rest:
			assert.Equal(t, 0.9, r.Threshold)
			assert.False(t, r.Ready())
		default:
			assert.Equal(t, DefaultThreshold, r.Threshold)
		}
	}

	s.Boost(Rest, 0.3)
	impulse, ok := s.Fire(c.advance(time.Millisecond))
	require.True(t, ok)
	assert.Equal(t, Rest, impulse.Drive)
}

func TestState_CuriosityTargets(t *testing.T) {
	s, c, _ := newTestState(t)

	assert.False(t, s.SetCuriosity("  "))
	assert.True(t, s.SetCuriosity("the red bird on the balcony"))
	assert.False(t, s.SetCuriosity("something else"))
	assert.Equal(t, "the red bird on the balcony", s.Curiosity())

	impulse, ok := s.Fire(c.advance(time.Second))
	require.True(t, ok)
	assert.Equal(t, LookAround, impulse.Drive)
	assert.Equal(t, "the red bird on the balcony", impulse.Target)
	assert.Equal(t, "look_around: the red bird on the balcony", impulse.Label())
	assert.Contains(t, impulse.Prompt("Aki"), "the red bird on the balcony")
	assert.Empty(t, s.Curiosity())

	_, ok = s.Fire(c.advance(time.Second))
	assert.False(t, ok)
}

func TestState_ExploreConsumesCuriosity(t *testing.T) {
	s, c, _ := newTestState(t)
	require.True(t, s.SetCuriosity("a strange noise"))

	impulse, ok := s.Fire(c.advance(63 * time.Second))
	require.True(t, ok)
	assert.Equal(t, Explore, impulse.Drive)
	assert.Equal(t, "a strange noise", impulse.Target)
	assert.Empty(t, s.Curiosity())
}

func TestState_SatisfyAndBoost(t *testing.T) {
	s, c, _ := newTestState(t)
	s.Tick(c.advance(100 * time.Second))
	require.InDelta(t, 0.2, s.Level(GreetCompanion), 1e-9)

	s.Satisfy(GreetCompanion)
	assert.Zero(t, s.Level(GreetCompanion))
	s.Satisfy(Drive("unknown"))

	s.Boost(LookAround, 0.3)
	assert.InDelta(t, 0.9, s.Level(LookAround), 1e-9)
	s.Boost(LookAround, 0.5)
	assert.Equal(t, 1.0, s.Level(LookAround))
	s.Boost(Drive("unknown"), 0.5)
	assert.Zero(t, s.Level(Drive("unknown")))
}

func TestState_PersistsAcrossRestarts(t *testing.T) {
	s, c, store := newTestState(t)
	s.Boost(WorryCompanion, 0.4)
	require.True(t, s.SetCuriosity("a book title"))

	restored := NewState(store, Options{Now: c.Now})
	assert.InDelta(t, 0.4, restored.Level(WorryCompanion), 1e-9)
	assert.Equal(t, "a book title", restored.Curiosity())
}

func TestState_CorruptFileLoadsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "desires.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	s := NewState(NewStore(path), Options{})
	assert.InDelta(t, 0.1, s.Level(LookAround), 1e-9)

	s.Boost(Rest, 0.3)
	snap, ok := NewStore(path).Load()
	require.True(t, ok)
	assert.InDelta(t, 0.2, snap.Levels[Rest], 1e-9)
}

func TestState_OutOfRangeLevelsAreClamped(t *testing.T) {
	path := filepath.Join(t.TempDir(), "desires.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"levels":{"rest":3,"explore":-1,"bogus":0.9}}`), 0o644))

	s := NewState(NewStore(path), Options{})
	assert.Equal(t, 1.0, s.Level(Rest))
	assert.Zero(t, s.Level(Explore))
	assert.Zero(t, s.Level(Drive("bogus")))
}

func TestState_NilStoreWorksInMemory(t *testing.T) {
	s := NewState(nil, Options{Threshold: 0.5})
	s.Boost(Rest, 0.5)
	impulse, ok := s.Fire(time.Now().Add(time.Second))
	require.True(t, ok)
	assert.Equal(t, Rest, impulse.Drive)
}

func TestPrompt(t *testing.T) {
	assert.Contains(t, Prompt(GreetCompanion, "", "Aki"), "say something to Aki")
	assert.Contains(t, Prompt(WorryCompanion, "", ""), "worried about my companion")
	assert.Contains(t, Prompt(Rest, "ignored target", ""), "little break")
	assert.Contains(t, Prompt(Explore, "tea", ""), "caught my attention earlier: tea")
	assert.Empty(t, Prompt(Drive("unknown"), "", ""))
	assert.NotContains(t, Prompt(LookAround, "", ""), "0.")
}

func TestDetectWorry(t *testing.T) {
	tests := []struct {
		text string
		min  float64
		max  float64
	}{
		{text: "", min: 0, max: 0},
		{text: "今日はいい天気やね", min: 0, max: 0},
		{text: "昨日も寝不足でしんどい", min: 0.4, max: 1},
		{text: "全然眠れなくて", min: 0.4, max: 1},
		{text: "熱が出てきた気がする", min: 0.4, max: 1},
		{text: "今日ちょっと疲れたわ", min: 0.2, max: 0.2},
		{text: "仕事がしんどくてさ", min: 0.2, max: 0.2},
		{text: "I slept only 3 hours", min: 0.4, max: 0.4},
		{text: "So TIRED and Stressed", min: 0.4, max: 0.4},
		{text: "寝不足で風邪ひいて熱もあって眠れなくてしんどい疲れた", min: 1, max: 1},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got := DetectWorry(tt.text)
			assert.GreaterOrEqual(t, got, tt.min)
			assert.LessOrEqual(t, got, tt.max)
		})
	}
}
