package checksum

import "testing"

func TestSum(t *testing.T) {
	const emptySHA = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	if got := Sum(nil); got != emptySHA {
		t.Errorf("Sum(nil) = %q", got)
	}
}

func TestCombine_OrderIndependent(t *testing.T) {
	a := Combine(map[string]string{"x": "1", "y": "2", "z": "3"})
	b := Combine(map[string]string{"z": "3", "x": "1", "y": "2"})
	if a != b {
		t.Errorf("Combine depends on order: %s vs %s", a, b)
	}
	if c := Combine(map[string]string{"x": "1", "y": "2", "z": "4"}); c == a {
		t.Error("Combine should change when a part changes")
	}
}
