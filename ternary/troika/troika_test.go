package troika

import "testing"

func TestPermute729IsDeterministic(t *testing.T) {
	var a, b [Width]int8
	for i := range a {
		a[i] = int8(i % 3)
		b[i] = int8(i % 3)
	}
	Permute729(&a)
	Permute729(&b)
	if a != b {
		t.Fatalf("Permute729 is not deterministic for identical inputs")
	}
}

func TestPermute729ChangesState(t *testing.T) {
	var buf [Width]int8
	orig := buf
	Permute729(&buf)
	if buf == orig {
		t.Fatalf("Permute729 left the all-zero state unchanged")
	}
}

func TestPermute729StaysInRange(t *testing.T) {
	var buf [Width]int8
	for i := range buf {
		buf[i] = int8(i % 3)
	}
	Permute729(&buf)
	for i, v := range buf {
		if v < 0 || v > 2 {
			t.Fatalf("trit %d out of lifted range: %d", i, v)
		}
	}
}

func TestPermute729DiffersOnSingleBitChange(t *testing.T) {
	var a, b [Width]int8
	b[100] = 1
	Permute729(&a)
	Permute729(&b)
	if a == b {
		t.Fatalf("single-trit input difference produced identical output")
	}
}
