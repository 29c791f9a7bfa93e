package slidetext

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormaliser_Name(t *testing.T) {
	assert.Equal(t, "slidetext", New().Name())
}

func TestDehyphenate(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"exam-\nple", "example"},
		{"distri-  \n  buted systems", "distributed systems"},
		{"Ethernet-\nBased", "Ethernet-\nBased"},
		{"well-known", "well-known"},
		{"a -\nb", "a -\nb"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Dehyphenate(tt.in), tt.in)
	}
}

func TestLineKey(t *testing.T) {
	assert.Equal(t, "slide # of ##", LineKey("  Slide 3   of 20 "))
	assert.Equal(t, LineKey("slide 4 of 20"), LineKey("SLIDE 5 OF 20"))
	assert.Equal(t, "", LineKey("   "))
}

func TestIsListItem(t *testing.T) {
	for _, s := range []string{"- item", "* item", "• item", "1. first", "12) twelfth", "a) option"} {
		assert.True(t, IsListItem(s), s)
	}
	for _, s := range []string{"-item", "1.5 million", "Overview", "", "2024. A year"} {
		assert.False(t, IsListItem(s), s)
	}
}

func TestNormalise_StripsBoilerplate(t *testing.T) {
	pages := [][]string{
		{"CS101 Operating Systems\nProcesses\nSlide 1"},
		{"CS101 Operating Systems\nThreads share memory.\nSlide 2"},
		{"CS101 Operating Systems\nScheduling picks the next thread.\nSlide 3"},
		{"Summary of the lecture.\nSlide 4"},
		{"Questions?"},
	}

	out := New().Normalise(pages)

	require.Len(t, out, 5)
	assert.Equal(t, "Processes", out[0])
	assert.Equal(t, "Threads share memory.", out[1])
	assert.Equal(t, "Scheduling picks the next thread.", out[2])
	assert.Equal(t, "Summary of the lecture.", out[3])
	assert.Equal(t, "Questions?", out[4])
}

func TestNormalise_BelowRatioKept(t *testing.T) {
	pages := [][]string{
		{"Header\nalpha"},
		{"Header\nbeta"},
		{"gamma"},
		{"delta"},
	}

	out := New().Normalise(pages)

	assert.Equal(t, "Header alpha", out[0])
}

func TestNormalise_ShortDeckNotStripped(t *testing.T) {
	pages := [][]string{
		{"Header\nalpha"},
		{"Header\nbeta"},
	}

	out := New().Normalise(pages)

	assert.Equal(t, "Header alpha", out[0])
	assert.Equal(t, "Header beta", out[1])
}

func TestNormalise_ParagraphsAndLists(t *testing.T) {
	pages := [][]string{{
		"Virtual   memory maps\npages to frames.\n\nKey ideas:\n- paging\n- segmen-\ntation with\n  hardware support\n1. TLB",
		"",
		"Second   region",
	}}

	out := New(WithMinPages(10)).Normalise(pages)

	want := "Virtual memory maps pages to frames.\n\n" +
		"Key ideas:\n\n" +
		"- paging\n- segmentation with hardware support\n1. TLB\n\n" +
		"Second region"
	assert.Equal(t, want, out[0])
}

func TestNormalise_Empty(t *testing.T) {
	assert.Empty(t, New().Normalise(nil))
	assert.Equal(t, []string{""}, New().Normalise([][]string{{}}))
}

func TestOptions_IgnoreInvalid(t *testing.T) {
	n := New(WithBoilerplateRatio(0), WithBoilerplateRatio(1.5), WithMinPages(-1))
	assert.Equal(t, DefaultBoilerplateRatio, n.ratio)
	assert.Equal(t, DefaultMinPages, n.minPages)
}
