package ringkey

import "testing"

func TestRangeSplit(t *testing.T) {
	pred, joined := Full().Split()
	if pred.Lo != 0 || pred.Hi != Max/2 {
		t.Fatalf("unexpected predecessor range: %+v", pred)
	}
	if joined.Lo != pred.Hi+1 || joined.Hi != Max {
		t.Fatalf("unexpected joined range: %+v", joined)
	}
	// the split must partition the full space with no gap or overlap
	if pred.Hi+1 != joined.Lo {
		t.Fatalf("split leaves a gap or overlap: pred=%+v joined=%+v", pred, joined)
	}
}

func TestRangeContains(t *testing.T) {
	r := Range{Lo: 10, Hi: 20}
	for _, h := range []int32{10, 15, 20} {
		if !r.Contains(h) {
			t.Fatalf("expected range %+v to contain %d", r, h)
		}
	}
	for _, h := range []int32{9, 21} {
		if r.Contains(h) {
			t.Fatalf("expected range %+v to exclude %d", r, h)
		}
	}
}
