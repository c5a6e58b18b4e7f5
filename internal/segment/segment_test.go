package segment

import "testing"

func TestDot_MatchesManualSum(t *testing.T) {
	a := Segment[float64]{Entries: []Entry[float64]{{Index: 1, V: 2}, {Index: 3, V: 4}}}
	b := Segment[float64]{Entries: []Entry[float64]{{Index: 1, V: 5}, {Index: 2, V: 100}, {Index: 3, V: 6}}}
	got := Dot(a, b)
	want := 2.0*5 + 4.0*6
	if got != want {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestAdd_MergesByIndex(t *testing.T) {
	a := Segment[float64]{Entries: []Entry[float64]{{Index: 1, V: 1}, {Index: 5, V: 2}}}
	b := Segment[float64]{Entries: []Entry[float64]{{Index: 1, V: 1}, {Index: 3, V: 7}}}
	out := Add(a, b)
	want := map[int64]float64{1: 2, 3: 7, 5: 2}
	if len(out.Entries) != len(want) {
		t.Fatalf("expected %d entries, got %+v", len(want), out.Entries)
	}
	for _, e := range out.Entries {
		if want[e.Index] != e.V {
			t.Fatalf("unexpected entry %+v", e)
		}
	}
}

func TestInfNorm(t *testing.T) {
	s := Segment[float64]{Entries: []Entry[float64]{{Index: 1, V: -3}, {Index: 2, V: 2}}}
	if got := InfNorm(s); got != 3 {
		t.Fatalf("expected 3, got %v", got)
	}
}

func TestScale_ZeroYieldsEmpty(t *testing.T) {
	s := Segment[float32]{Entries: []Entry[float32]{{Index: 1, V: 4}}}
	out := s.Scale(0)
	if len(out.Entries) != 0 {
		t.Fatalf("expected empty segment, got %+v", out.Entries)
	}
}
