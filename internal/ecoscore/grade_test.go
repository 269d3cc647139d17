package ecoscore

import (
	"testing"

	"github.com/ntentasd/ecobin-api/pkg/types"
)

func TestLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		score float64
		want  types.EcoScoreLevel
	}{
		{100, types.EcoExcellent},
		{80, types.EcoExcellent},
		{79, types.EcoGood},
		{79.99, types.EcoGood},
		{60, types.EcoGood},
		{59, types.EcoFair},
		{40, types.EcoFair},
		{39, types.EcoPoor},
		{20, types.EcoPoor},
		{19.5, types.EcoVeryPoor},
		{0, types.EcoVeryPoor},
		{150, types.EcoExcellent},
		{-10, types.EcoVeryPoor},
	}

	for _, tc := range tests {
		if got := Level(tc.score); got != tc.want {
			t.Fatalf("Level(%v) = %s, want %s", tc.score, got, tc.want)
		}
	}
}

func TestLevelMonotonic(t *testing.T) {
	rank := map[types.EcoScoreLevel]int{
		types.EcoVeryPoor:  0,
		types.EcoPoor:      1,
		types.EcoFair:      2,
		types.EcoGood:      3,
		types.EcoExcellent: 4,
	}

	prev := rank[Level(100)]
	for s := 100.0; s >= 0; s -= 0.25 {
		r, ok := rank[Level(s)]
		if !ok {
			t.Fatalf("Level(%v) returned unknown level %q", s, Level(s))
		}
		if r > prev {
			t.Fatalf("quality increased as score decreased at %v", s)
		}
		prev = r
	}
}

func TestColorAndLabelFollowLevel(t *testing.T) {
	for _, s := range []float64{0, 20, 40, 60, 80, 100} {
		if Color(s) != LevelColor(Level(s)) {
			t.Fatalf("colour mismatch at %v", s)
		}
		if Label(s) == "" {
			t.Fatalf("empty label at %v", s)
		}
	}
	if Label(85) != "Excellent" || Label(5) != "Very Poor" {
		t.Fatalf("unexpected labels: %q %q", Label(85), Label(5))
	}
	if LevelColor("UNKNOWN") != "" {
		t.Fatal("expected empty colour for unknown level")
	}
}

func TestBarPosition(t *testing.T) {
	t.Parallel()

	tests := map[float64]float64{
		150: 100,
		-10: 0,
		55:  55,
		0:   0,
		100: 100,
	}
	for in, want := range tests {
		if got := BarPosition(in); got != want {
			t.Fatalf("BarPosition(%v) = %v, want %v", in, got, want)
		}
	}
}

func TestGrade(t *testing.T) {
	g := Grade(150)
	if g.Level != types.EcoExcellent || g.BarPosition != 100 || g.Score != 150 {
		t.Fatalf("unexpected grade: %+v", g)
	}
	if Grade(42) != Grade(42) {
		t.Fatal("grade is not deterministic")
	}
}
