package replacer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderAppliesToDocument(t *testing.T) {
	r := NewRecorder()
	r.Typed("Ghbdtn ")

	require.NoError(t, r.ReplaceText(context.Background(), 7, "Привет "))
	assert.Equal(t, "Привет ", r.Document())
	assert.Equal(t, []Call{{DeleteCount: 7, Text: "Привет "}}, r.Calls())
}

func TestRecorderClampsDelete(t *testing.T) {
	r := NewRecorder()
	r.Typed("ab")
	require.NoError(t, r.ReplaceText(context.Background(), 10, "x"))
	assert.Equal(t, "x", r.Document())
}

func TestRecorderFailure(t *testing.T) {
	r := NewRecorder()
	boom := errors.New("boom")
	r.Fail(boom)
	assert.ErrorIs(t, r.ReplaceText(context.Background(), 1, "a"), boom)
	assert.Len(t, r.Calls(), 1)
}

type fakeSuppressor struct {
	begins []int
	ends   int
	active bool
}

func (f *fakeSuppressor) BeginSuppress(n int) {
	f.begins = append(f.begins, n)
	f.active = true
}

func (f *fakeSuppressor) EndSuppress() {
	f.ends++
	f.active = false
}

type spyReplacer struct {
	sup      *fakeSuppressor
	activeAt bool
	err      error
}

func (p *spyReplacer) ReplaceText(context.Context, int, string) error {
	p.activeAt = p.sup.active
	return p.err
}

func TestSuppressingWindow(t *testing.T) {
	sup := &fakeSuppressor{}
	p := &spyReplacer{sup: sup}
	r := WithSuppression(p, sup)

	require.NoError(t, r.ReplaceText(context.Background(), 7, "Привет "))
	assert.True(t, p.activeAt, "suppression must be active during injection")
	assert.Equal(t, []int{14}, sup.begins)
	assert.Equal(t, 1, sup.ends)
	assert.False(t, sup.active)
}

func TestSuppressingEndsOnError(t *testing.T) {
	sup := &fakeSuppressor{}
	p := &spyReplacer{sup: sup, err: errors.New("xdotool missing")}
	r := WithSuppression(p, sup)

	assert.Error(t, r.ReplaceText(context.Background(), 1, "a"))
	assert.Equal(t, 1, sup.ends)
	assert.False(t, sup.active)
}

func TestExpectedEvents(t *testing.T) {
	assert.Equal(t, 0, ExpectedEvents(0, ""))
	assert.Equal(t, 9, ExpectedEvents(3, "дела "))
}

func TestNewXdotoolMissingTool(t *testing.T) {
	_, err := NewXdotool("kswitchd-no-such-tool")
	assert.ErrorIs(t, err, ErrToolNotFound)
}

func TestUnavailableFailsEveryCall(t *testing.T) {
	var r Replacer = Unavailable{Tool: "xdotool"}
	for i := 0; i < 2; i++ {
		err := r.ReplaceText(context.Background(), 3, "abc")
		assert.ErrorIs(t, err, ErrToolNotFound)
		assert.Contains(t, err.Error(), "xdotool")
	}

	sup := &fakeSuppressor{}
	err := WithSuppression(Unavailable{Tool: "xdotool"}, sup).ReplaceText(context.Background(), 1, "a")
	assert.ErrorIs(t, err, ErrToolNotFound)
	assert.Equal(t, 1, sup.ends, "window closes after a failed injection")
}
