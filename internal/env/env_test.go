package env

import "testing"

func TestUnionOverwritesExistingKeys(t *testing.T) {
	base := EnvironmentVariableMap{"A": "1", "B": "2"}
	overlay := EnvironmentVariableMap{"B": "overridden", "C": "3"}

	base.Union(overlay)

	want := EnvironmentVariableMap{"A": "1", "B": "overridden", "C": "3"}
	if len(base) != len(want) {
		t.Fatalf("got %d keys, want %d", len(base), len(want))
	}
	for k, v := range want {
		if base[k] != v {
			t.Errorf("base[%q] = %q, want %q", k, base[k], v)
		}
	}
}

func TestUnionOfEmptyMapIsNoop(t *testing.T) {
	base := EnvironmentVariableMap{"A": "1"}
	base.Union(EnvironmentVariableMap{})

	if len(base) != 1 || base["A"] != "1" {
		t.Errorf("expected base to be unchanged, got %v", base)
	}
}
