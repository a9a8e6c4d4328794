package oracle

import (
	"context"
	"testing"
)

func TestStatic_Recommend(t *testing.T) {
	got, err := Static{}.Recommend(context.Background(), "t", "d", 1)
	if err != nil {
		t.Fatalf("Recommend() error: %v", err)
	}
	if got != DefaultRecommendation {
		t.Errorf("Recommend() = %q, want default", got)
	}

	got, _ = Static{Text: "fund it"}.Recommend(context.Background(), "t", "d", 1)
	if got != "fund it" {
		t.Errorf("Recommend() = %q, want %q", got, "fund it")
	}
}
