package screen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleTree = `[FrameLayout] bounds=[0,0][1080,2280]
  [TextView] text="Settings" bounds=[48,120][400,180]
  [Button] text="Network" bounds=[48,300][1032,420] clickable
  [Button] text="Display" bounds=[48,440][1032,560] clickable
  [RecyclerView] bounds=[0,600][1080,2200] scrollable
`

func TestParseTree(t *testing.T) {
	elements := ParseTree(sampleTree)
	require.Len(t, elements, 5)

	assert.Equal(t, "TextView", elements[1].Class)
	assert.Equal(t, "Settings", elements[1].Text)
	assert.False(t, elements[1].Interactive())

	btn := elements[2]
	assert.True(t, btn.Clickable)
	assert.Equal(t, Rect{48, 300, 1032, 420}, btn.Bounds)
	cx, cy := btn.Bounds.Center()
	assert.Equal(t, 540, cx)
	assert.Equal(t, 360, cy)

	assert.True(t, elements[4].Scrollable)
}

func TestParseTreeEscapedQuotes(t *testing.T) {
	elements := ParseTree(`[TextView] text="say \"hi\"" bounds=[0,0][10,10]`)
	require.Len(t, elements, 1)
	assert.Equal(t, `say "hi"`, elements[0].Text)
}

func TestParseBounds(t *testing.T) {
	r, err := ParseBounds("[10,20][110,220]")
	require.NoError(t, err)
	assert.Equal(t, Rect{10, 20, 110, 220}, r)

	_, err = ParseBounds("10,20,110,220")
	assert.Error(t, err)
}

func TestEvaluateTreeAccepts(t *testing.T) {
	ok, reason := EvaluateTree(ParseTree(sampleTree))
	assert.True(t, ok)
	assert.Empty(t, reason)
}

func TestEvaluateTreeRejectsTooFew(t *testing.T) {
	ok, reason := EvaluateTree(ParseTree(`[Button] text="OK" bounds=[0,0][10,10] clickable`))
	assert.False(t, ok)
	assert.Contains(t, reason, "1 recognizable")
}

func TestEvaluateTreeRejectsAnonymousControls(t *testing.T) {
	tree := `[Button] bounds=[0,0][10,10] clickable
[Button] bounds=[0,20][10,30] clickable
[Button] bounds=[0,40][10,50] clickable
[ImageView] bounds=[0,60][10,70] clickable
[View] bounds=[0,80][100,200]`
	ok, reason := EvaluateTree(ParseTree(tree))
	assert.False(t, ok)
	assert.Contains(t, reason, "none with a name")
}
