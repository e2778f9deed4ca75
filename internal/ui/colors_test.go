package ui

import "testing"

func TestDimAndBoldWrapTheirInput(t *testing.T) {
	if got := Dim("x"); got == "" {
		t.Error("Dim(\"x\") returned empty string")
	}
	if got := Bold("x"); got == "" {
		t.Error("Bold(\"x\") returned empty string")
	}
}
