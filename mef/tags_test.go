package mef

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestResolveTags(t *testing.T) {
	tests := []struct {
		name string
		sets []TagSet
		want []string
	}{
		{
			name: "union of adds",
			sets: []TagSet{Tags("A", "B"), Tags("C"), {}},
			want: []string{"A", "B", "C"},
		},
		{
			name: "remove beats add regardless of order",
			sets: []TagSet{Tags("RAW", "IMAGE"), {Remove: []string{"RAW"}, Add: []string{"PREPARED"}}},
			want: []string{"IMAGE", "PREPARED"},
		},
		{
			name: "blocks disable later adds",
			sets: []TagSet{Tags("SPECT"), {Add: []string{"IMAGE"}, Blocks: []string{"SPECT"}}},
			want: []string{"IMAGE"},
		},
		{
			name: "blocked by a confirmed tag",
			sets: []TagSet{Tags("DARK"), {Add: []string{"SCIENCE"}, BlockedBy: []string{"DARK"}}},
			want: []string{"DARK"},
		},
		{
			name: "if present satisfied",
			sets: []TagSet{{Add: []string{"NORTH"}, IfPresent: []string{"GMOS"}}, Tags("GMOS")},
			want: []string{"GMOS", "NORTH"},
		},
		{
			name: "if present unsatisfied",
			sets: []TagSet{{Add: []string{"NORTH"}, IfPresent: []string{"GMOS"}}, Tags("NIRI")},
			want: []string{"NIRI"},
		},
		{
			name: "nothing",
			sets: nil,
			want: []string{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolveTags(tt.sets)
			if len(tt.want) == 0 {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func permutations(sets []TagSet) [][]TagSet {
	if len(sets) <= 1 {
		return [][]TagSet{sets}
	}
	var out [][]TagSet
	for i := range sets {
		rest := append(append([]TagSet(nil), sets[:i]...), sets[i+1:]...)
		for _, p := range permutations(rest) {
			out = append(out, append([]TagSet{sets[i]}, p...))
		}
	}
	return out
}

func TestResolveTagsOrderIndependent(t *testing.T) {
	sets := []TagSet{
		Tags("RAW", "UNPREPARED"),
		{Add: []string{"PREPARED"}, Remove: []string{"UNPREPARED"}},
		{Add: []string{"IMAGE"}, Blocks: []string{"SPECT"}},
		Tags("SPECT"),
		{Add: []string{"ACQ"}, IfPresent: []string{"IMAGE"}},
		{Add: []string{"FLAT"}, BlockedBy: []string{"ACQ"}},
	}
	want := ResolveTags(sets)
	assert.Equal(t, []string{"ACQ", "FLAT", "IMAGE", "PREPARED", "RAW"}, want)
	for i, p := range permutations(sets) {
		require.Equal(t, want, ResolveTags(p), "permutation %d", i)
	}
}

func TestDatasetTags(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	d := New(NewHeader(Card{Key: "INSTRUME", Value: "GMOS-N"}))
	d.logger = zap.New(core)
	d.rules = []TagRule{
		{Name: "instrument", Eval: func(d *Dataset) (TagSet, error) {
			inst, err := d.Instrument()
			if err != nil {
				return TagSet{}, err
			}
			return Tags(inst), nil
		}},
		{Name: "object", Eval: func(d *Dataset) (TagSet, error) {
			obj, err := d.Object()
			if err != nil {
				return TagSet{}, err
			}
			return Tags(obj), nil
		}},
	}

	tags, err := d.Tags()
	require.NoError(t, err)
	assert.Equal(t, []string{"GMOS-N"}, tags)
	assert.Equal(t, 1, logs.FilterMessage("tag rule skipped").Len())

	d.rules = append(d.rules, TagRule{Name: "broken", Eval: func(*Dataset) (TagSet, error) {
		return TagSet{}, fmt.Errorf("wrapped: %w", errors.New("boom"))
	}})
	_, err = d.Tags()
	assert.ErrorContains(t, err, "tag rule broken")
}
