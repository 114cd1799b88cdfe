package curiosity

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockCompleter struct {
	mock.Mock
}

func (m *mockCompleter) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	args := m.Called(ctx, prompt, maxTokens)
	return args.String(0), args.Error(1)
}

func TestExtract_Markers(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{name: "curious line", text: "I checked the news.\nCurious: the new comet sighting", want: "the new comet sighting"},
		{name: "bullet", text: "- curious: why the server was slow", want: "why the server was slow"},
		{name: "investigate", text: "Nice weather.\nI want to investigate the bakery that opened nearby.", want: "the bakery that opened nearby."},
		{name: "japanese", text: "気になる：ベランダの鳥", want: "ベランダの鳥"},
		{name: "bracket", text: "All quiet today [curious: that humming sound] and calm.", want: "that humming sound"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := NewExtractor(nil).Extract(context.Background(), tt.text)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtract_NoMarkerWithoutBackend(t *testing.T) {
	_, ok := NewExtractor(nil).Extract(context.Background(), "Nothing special happened.")
	assert.False(t, ok)

	_, ok = NewExtractor(nil).Extract(context.Background(), "Curious: none")
	assert.False(t, ok)

	_, ok = NewExtractor(nil).Extract(context.Background(), "   ")
	assert.False(t, ok)
}

func TestExtract_MarkerSkipsBackend(t *testing.T) {
	backend := &mockCompleter{}
	got, ok := NewExtractor(backend).Extract(context.Background(), "Curious: a blue light")
	require.True(t, ok)
	assert.Equal(t, "a blue light", got)
	backend.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything, mock.Anything)
}

func TestExtract_Classification(t *testing.T) {
	tests := []struct {
		name   string
		answer string
		err    error
		want   string
		wantOK bool
	}{
		{name: "target", answer: " \"The odd shadow on the wall.\" ", want: "The odd shadow on the wall.", wantOK: true},
		{name: "none", answer: "None.", wantOK: false},
		{name: "japanese none", answer: "なし", wantOK: false},
		{name: "empty", answer: "", wantOK: false},
		{name: "failure", err: errors.New("rate limited"), wantOK: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &mockCompleter{}
			backend.On("Complete", mock.Anything, mock.MatchedBy(func(p string) bool {
				return strings.Contains(p, "I walked around the room.") && strings.Contains(p, `"none"`)
			}), classifyMaxTokens).Return(tt.answer, tt.err).Once()

			got, ok := NewExtractor(backend).Extract(context.Background(), "I walked around the room.")
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
			backend.AssertExpectations(t)
		})
	}
}

func TestExtract_TruncatesLongTargets(t *testing.T) {
	got, ok := NewExtractor(nil).Extract(context.Background(), "Curious: "+strings.Repeat("あ", 300))
	require.True(t, ok)
	assert.Equal(t, targetChars, len([]rune(got)))
}
