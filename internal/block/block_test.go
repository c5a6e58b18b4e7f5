package block

import "testing"

func TestMultiply_NaiveAgreement(t *testing.T) {
	// left = [[1,2],[3,4]], right = [[5,6],[7,8]]
	left := Block[float64]{Entries: []Entry[float64]{
		{Row: 1, Col: 1, V: 1}, {Row: 1, Col: 2, V: 2},
		{Row: 2, Col: 1, V: 3}, {Row: 2, Col: 2, V: 4},
	}}
	right := Block[float64]{Entries: []Entry[float64]{
		{Row: 1, Col: 1, V: 5}, {Row: 1, Col: 2, V: 6},
		{Row: 2, Col: 1, V: 7}, {Row: 2, Col: 2, V: 8},
	}}
	got := Multiply(left, right)
	want := map[[2]int64]float64{
		{1, 1}: 19, {1, 2}: 22,
		{2, 1}: 43, {2, 2}: 50,
	}
	if len(got.Entries) != len(want) {
		t.Fatalf("expected %d entries, got %d: %+v", len(want), len(got.Entries), got.Entries)
	}
	for _, e := range got.Entries {
		wv, ok := want[[2]int64{e.Row, e.Col}]
		if !ok || wv != e.V {
			t.Fatalf("unexpected entry %+v", e)
		}
	}
}

func TestScale_ZeroYieldsEmpty(t *testing.T) {
	b := Block[float32]{Entries: []Entry[float32]{{Row: 1, Col: 1, V: 5}}}
	out := b.Scale(0)
	if len(out.Entries) != 0 {
		t.Fatalf("expected empty block, got %+v", out.Entries)
	}
}

func TestAdd_DropsBelowEpsilon(t *testing.T) {
	a := Block[float64]{Entries: []Entry[float64]{{Row: 1, Col: 1, V: 1e-3}}}
	b := Block[float64]{Entries: []Entry[float64]{{Row: 1, Col: 1, V: -1e-3}}}
	out := Add(a, b)
	if len(out.Entries) != 0 {
		t.Fatalf("expected cancellation to drop entry, got %+v", out.Entries)
	}
}

func TestTranspose_SwapsCoordsAndFlag(t *testing.T) {
	b := Block[float64]{Entries: []Entry[float64]{{Row: 1, Col: 2, V: 9}}}
	out := b.Transpose()
	if out.Entries[0].Row != 2 || out.Entries[0].Col != 1 {
		t.Fatalf("expected transposed coords, got %+v", out.Entries[0])
	}
	if !out.Transposed {
		t.Fatalf("expected Transposed flag set")
	}
}

func TestAddScaled_AccumulatesAcrossK(t *testing.T) {
	c := Block[float64]{Entries: []Entry[float64]{{Row: 1, Col: 1, V: 1}}}
	left := Block[float64]{Entries: []Entry[float64]{{Row: 1, Col: 1, V: 2}}}
	right := Block[float64]{Entries: []Entry[float64]{{Row: 1, Col: 1, V: 3}}}
	out := AddScaled(c, 1, left, right)
	if len(out.Entries) != 1 || out.Entries[0].V != 7 {
		t.Fatalf("expected 1 + 1*2*3 = 7, got %+v", out.Entries)
	}
}
