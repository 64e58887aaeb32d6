package trail

import "testing"

func TestArena_ChildRelease(t *testing.T) {
	root := newArena()
	child := root.Child()

	if child.Released() {
		t.Fatal("fresh child should not be released")
	}

	child.Release()
	if !child.Released() {
		t.Fatal("child should be released after Release")
	}
}

func TestArena_ReleaseAllCascades(t *testing.T) {
	root := newArena()
	a := root.Child()
	b := a.Child()

	root.releaseAll()

	if !a.Released() || !b.Released() {
		t.Fatal("releaseAll should cascade to grandchildren")
	}
}
