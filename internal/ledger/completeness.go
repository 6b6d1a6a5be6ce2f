package ledger

import "sort"

// ledgerRange is an inclusive [Start, End] span of accepted ledger sequences.
type ledgerRange struct {
	Start, End uint32
}

func (r ledgerRange) contains(seq uint32) bool { return seq >= r.Start && seq <= r.End }

// completeSet tracks which ledger sequences are held locally as a sorted
// list of non-overlapping ranges, so historical accepted ledgers can be
// indexed by both seq and hash without scanning a full membership set.
type completeSet struct {
	ranges []ledgerRange
}

func (c *completeSet) add(seq uint32) {
	merged := make([]ledgerRange, 0, len(c.ranges)+1)
	added := false
	for _, r := range c.ranges {
		if seq+1 < r.Start || (r.End != ^uint32(0) && r.End+1 < seq) {
			merged = append(merged, r)
			continue
		}
		if !added {
			start, end := seq, seq
			if r.Start < start {
				start = r.Start
			}
			if r.End > end {
				end = r.End
			}
			merged = append(merged, ledgerRange{Start: start, End: end})
			added = true
		} else {
			last := &merged[len(merged)-1]
			if r.Start < last.Start {
				last.Start = r.Start
			}
			if r.End > last.End {
				last.End = r.End
			}
		}
	}
	if !added {
		merged = append(merged, ledgerRange{Start: seq, End: seq})
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].Start < merged[j].Start })
	c.ranges = coalesce(merged)
}

func coalesce(rs []ledgerRange) []ledgerRange {
	if len(rs) == 0 {
		return rs
	}
	out := []ledgerRange{rs[0]}
	for _, r := range rs[1:] {
		last := &out[len(out)-1]
		if r.Start <= last.End+1 {
			if r.End > last.End {
				last.End = r.End
			}
			continue
		}
		out = append(out, r)
	}
	return out
}

func (c *completeSet) contains(seq uint32) bool {
	for _, r := range c.ranges {
		if r.contains(seq) {
			return true
		}
	}
	return false
}
