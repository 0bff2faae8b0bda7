package lsm

import "testing"

func TestLowerAllows(t *testing.T) {
	cases := []struct {
		bound Bound
		key   string
		want  bool
	}{
		{UnboundedBound(), "anything", true},
		{IncludedBound([]byte("b")), "a", false},
		{IncludedBound([]byte("b")), "b", true},
		{IncludedBound([]byte("b")), "c", true},
		{ExcludedBound([]byte("b")), "b", false},
		{ExcludedBound([]byte("b")), "c", true},
	}
	for _, c := range cases {
		if got := lowerAllows(c.bound, []byte(c.key)); got != c.want {
			t.Fatalf("lowerAllows(%+v, %q) = %v, want %v", c.bound, c.key, got, c.want)
		}
	}
}

func TestUpperAllows(t *testing.T) {
	cases := []struct {
		bound Bound
		key   string
		want  bool
	}{
		{UnboundedBound(), "anything", true},
		{IncludedBound([]byte("b")), "a", true},
		{IncludedBound([]byte("b")), "b", true},
		{IncludedBound([]byte("b")), "c", false},
		{ExcludedBound([]byte("b")), "a", true},
		{ExcludedBound([]byte("b")), "b", false},
	}
	for _, c := range cases {
		if got := upperAllows(c.bound, []byte(c.key)); got != c.want {
			t.Fatalf("upperAllows(%+v, %q) = %v, want %v", c.bound, c.key, got, c.want)
		}
	}
}
