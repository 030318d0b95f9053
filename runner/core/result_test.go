package core

import "testing"

func TestResultMerge(t *testing.T) {
	tests := []struct {
		a, b Result
		want Result
	}{
		{ResultPass, ResultPass, ResultPass},
		{ResultPass, ResultFail, ResultFail},
		{ResultFail, ResultPass, ResultFail},
		{ResultFail, ResultSkip, ResultFail},
		{ResultSkip, ResultFail, ResultFail},
		{ResultSkip, ResultPass, ResultPass},
		{ResultPass, ResultSkip, ResultPass},
		{ResultSkip, ResultSkip, ResultSkip},
	}
	for _, tt := range tests {
		if got := tt.a.Merge(tt.b); got != tt.want {
			t.Errorf("%v.Merge(%v) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestResultMergeAssociative(t *testing.T) {
	all := []Result{ResultPass, ResultFail, ResultSkip}
	for _, a := range all {
		for _, b := range all {
			for _, c := range all {
				left := a.Merge(b).Merge(c)
				right := a.Merge(b.Merge(c))
				if left != right {
					t.Errorf("merge not associative for %v %v %v: %v != %v", a, b, c, left, right)
				}
			}
		}
	}
}

func TestResultString(t *testing.T) {
	tests := []struct {
		r    Result
		want string
	}{
		{ResultPass, "pass"},
		{ResultFail, "fail"},
		{ResultSkip, "skip"},
		{Result(42), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.r.String(); got != tt.want {
			t.Errorf("Result(%d).String() = %q, want %q", tt.r, got, tt.want)
		}
	}
}
