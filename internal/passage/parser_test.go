package passage_test

import (
	"testing"

	"github.com/book-expert/audio-bible/internal/core"
	"github.com/book-expert/audio-bible/internal/passage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	assert.Equal(t, passage.LINE_BLANK, passage.Classify("   \t"))
	assert.Equal(t, passage.LINE_THEME, passage.Classify("The Gospel"))
	assert.Equal(t, passage.LINE_REFERENCE, passage.Classify("John 3:16"))
	assert.Equal(t, passage.LINE_REFERENCE, passage.Classify("1 Corinthians"))
}

func TestParse_Groups(t *testing.T) {
	t.Parallel()

	input := "The Gospel\nJohn 3:16-17\n\nRomans 5:8\nHope\n  Romans 8:28  \n"

	groups, err := passage.Parse(input)
	require.NoError(t, err)

	require.Equal(t, []passage.Group{
		{Theme: "The Gospel", References: []string{"John 3:16-17", "Romans 5:8"}},
		{Theme: "Hope", References: []string{"Romans 8:28"}},
	}, groups)
	assert.Equal(t, "John 3:16-17,Romans 5:8", groups[0].Query())
}

func TestParse_ThemeWithoutReferencesIsDropped(t *testing.T) {
	t.Parallel()

	groups, err := passage.Parse("Orphan\nGrace\nEphesians 2:8")
	require.NoError(t, err)

	require.Len(t, groups, 1)
	assert.Equal(t, "Grace", groups[0].Theme)
}

func TestParse_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		contains string
	}{
		{name: "empty", input: " \n\n ", contains: "please enter a theme"},
		{name: "reference first", input: "John 3:16\nThe Gospel", contains: "must start with a theme"},
		{name: "theme only", input: "Love\nFaith", contains: `"Faith"`},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			groups, err := passage.Parse(testCase.input)
			require.ErrorIs(t, err, core.ErrInput)
			assert.Contains(t, err.Error(), testCase.contains)
			assert.Nil(t, groups)
		})
	}
}
