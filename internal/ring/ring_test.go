package ring

import (
	"reflect"
	"testing"
)

func TestBuffer_PushEvictsOldest(t *testing.T) {
	b := New[int](3)
	for i := 1; i <= 3; i++ {
		if b.Push(i) {
			t.Fatalf("Push(%d) evicted before buffer was full", i)
		}
	}
	if !b.Push(4) {
		t.Fatal("Push(4) on full buffer should evict")
	}
	if got, want := b.Slice(), []int{2, 3, 4}; !reflect.DeepEqual(got, want) {
		t.Errorf("Slice() = %v, want %v", got, want)
	}
}

func TestBuffer_Last(t *testing.T) {
	b := From(5, []int{1, 2, 3, 4, 5, 6, 7})
	tests := []struct {
		n    int
		want []int
	}{
		{0, nil},
		{1, []int{7}},
		{3, []int{5, 6, 7}},
		{10, []int{3, 4, 5, 6, 7}},
	}
	for _, tt := range tests {
		if got := b.Last(tt.n); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("Last(%d) = %v, want %v", tt.n, got, tt.want)
		}
	}
}

func TestBuffer_Clear(t *testing.T) {
	b := From(2, []string{"a", "b"})
	b.Clear()
	if b.Len() != 0 {
		t.Errorf("Len() after Clear = %d, want 0", b.Len())
	}
	b.Push("c")
	if got := b.Slice(); !reflect.DeepEqual(got, []string{"c"}) {
		t.Errorf("Slice() after Clear+Push = %v", got)
	}
}

func TestNew_MinimumCapacity(t *testing.T) {
	if c := New[int](0).Cap(); c != 1 {
		t.Errorf("Cap() = %d, want 1", c)
	}
}
