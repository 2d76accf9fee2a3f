package logging

import "testing"

func TestNewBuildsBothModes(t *testing.T) {
	for _, prod := range []bool{true, false} {
		logger, err := New(prod)
		if err != nil {
			t.Fatalf("New(%t): %v", prod, err)
		}
		if ce := logger.Check(-1, "debug"); (ce != nil) == prod {
			t.Fatalf("New(%t): debug enabled = %t", prod, ce != nil)
		}
	}
}
