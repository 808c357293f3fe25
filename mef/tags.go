package mef

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"go.uber.org/zap"
)

// TagSet is the contribution of one tag rule.
//
//   - Add lists tags the rule confirms.
//   - Remove lists tags that later rules may no longer add.
//   - BlockedBy disables the rule when any of its tags is confirmed.
//   - Blocks disables later rules that would add any of its tags.
//   - IfPresent disables the rule unless all of its tags are confirmed.
type TagSet struct {
	Add       []string
	Remove    []string
	BlockedBy []string
	Blocks    []string
	IfPresent []string
}

// Tags returns a TagSet that only adds tags.
func Tags(add ...string) TagSet {
	return TagSet{Add: add}
}

// Empty reports whether the set would have no effect on resolution.
func (t TagSet) Empty() bool {
	return len(t.Add) == 0 && len(t.Remove) == 0 && len(t.Blocks) == 0
}

// TagRule computes a TagSet from a dataset.
type TagRule struct {
	Name string
	Eval func(*Dataset) (TagSet, error)
}

type tagSet map[string]struct{}

func newTagSet(tags []string) tagSet {
	s := make(tagSet, len(tags))
	for _, t := range tags {
		s[t] = struct{}{}
	}
	return s
}

func (s tagSet) has(t string) bool {
	_, ok := s[t]
	return ok
}

func (s tagSet) intersects(o tagSet) bool {
	for t := range o {
		if s.has(t) {
			return true
		}
	}
	return false
}

func (s tagSet) containsAll(o tagSet) bool {
	for t := range o {
		if !s.has(t) {
			return false
		}
	}
	return true
}

func (s tagSet) merge(o tagSet) {
	for t := range o {
		s[t] = struct{}{}
	}
}

func (s tagSet) key() string {
	return strings.Join(slices.Sorted(maps.Keys(s)), ",")
}

type resolvedSet struct {
	add, remove, blockedBy, blocks, ifPresent tagSet
}

func (r resolvedSet) key() string {
	return strings.Join([]string{r.add.key(), r.remove.key(), r.blockedBy.key(), r.blocks.key(), r.ifPresent.key()}, "|")
}

func (r resolvedSet) subtractive() int {
	n := len(r.remove)
	for t := range r.blocks {
		if !r.remove.has(t) {
			n++
		}
	}
	return n
}

// ResolveTags combines TagSets into the final tag list, sorted.
//
// The sets are ordered by three successive stable sorts: by the size of
// Remove ∪ Blocks descending, then by the size of BlockedBy ascending,
// then by the size of IfPresent ascending. The sets are first put into a
// canonical order so the result does not depend on the order of the
// input.
func ResolveTags(sets []TagSet) []string {
	rs := make([]resolvedSet, 0, len(sets))
	for _, t := range sets {
		if t.Empty() {
			continue
		}
		rs = append(rs, resolvedSet{
			add:       newTagSet(t.Add),
			remove:    newTagSet(t.Remove),
			blockedBy: newTagSet(t.BlockedBy),
			blocks:    newTagSet(t.Blocks),
			ifPresent: newTagSet(t.IfPresent),
		})
	}

	slices.SortStableFunc(rs, func(a, b resolvedSet) int {
		return strings.Compare(a.key(), b.key())
	})
	slices.SortStableFunc(rs, func(a, b resolvedSet) int {
		return b.subtractive() - a.subtractive()
	})
	slices.SortStableFunc(rs, func(a, b resolvedSet) int {
		return len(a.blockedBy) - len(b.blockedBy)
	})
	slices.SortStableFunc(rs, func(a, b resolvedSet) int {
		return len(a.ifPresent) - len(b.ifPresent)
	})

	confirmed, removals, blocked := tagSet{}, tagSet{}, tagSet{}
	for _, r := range rs {
		if !confirmed.containsAll(r.ifPresent) {
			continue
		}
		if confirmed.intersects(r.blockedBy) || blocked.intersects(r.add) {
			continue
		}
		removals.merge(r.remove)
		for t := range r.add {
			if !removals.has(t) {
				confirmed[t] = struct{}{}
			}
		}
		blocked.merge(r.blocks)
	}
	return slices.Sorted(maps.Keys(confirmed))
}

// evalTags runs every rule against d. A rule failing with ErrKeyNotFound
// contributes nothing; any other failure is returned.
func evalTags(d *Dataset, rules []TagRule) ([]TagSet, error) {
	sets := make([]TagSet, 0, len(rules))
	for _, r := range rules {
		ts, err := r.Eval(d)
		if errors.Is(err, ErrKeyNotFound) {
			d.log().Debug("tag rule skipped", zap.String("rule", r.Name), zap.Error(err))
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("tag rule %s: %w", r.Name, err)
		}
		sets = append(sets, ts)
	}
	return sets, nil
}
