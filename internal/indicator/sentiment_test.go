package indicator

import "testing"

func TestAnalyzeSentiment_Empty(t *testing.T) {
	got := AnalyzeSentiment(nil)
	if got.Score != 0 || got.Label != LabelNeutral || got.AnalyzedCount != 0 {
		t.Fatalf("empty input: got %+v", got)
	}
}

func TestAnalyzeSentiment_Mixed(t *testing.T) {
	got := AnalyzeSentiment([]string{
		"Bitcoin surges to record high",
		"Exchange hack causes panic",
		"Regulators approve spot ETF",
	})
	if got.BullishCount != 2 || got.BearishCount != 1 {
		t.Fatalf("counts = %d/%d, want 2/1", got.BullishCount, got.BearishCount)
	}
	if got.Score != 33 {
		t.Errorf("score = %d, want 33", got.Score)
	}
	if got.Label != LabelGreed {
		t.Errorf("label = %s, want Greed", got.Label)
	}
	if got.AnalyzedCount != 3 {
		t.Errorf("analyzed = %d, want 3", got.AnalyzedCount)
	}
}

func TestAnalyzeSentiment_Labels(t *testing.T) {
	cases := []struct {
		name      string
		headlines []string
		score     int
		label     string
	}{
		{"extreme fear", []string{"Market crash", "Token plunge", "Fraud lawsuit"}, -100, LabelExtremeFear},
		{"extreme greed", []string{"Rally continues", "Breakout confirmed"}, 100, LabelExtremeGreed},
		{"fear", []string{"Prices crash", "Quiet weekend", "Steady volume", "Dull session"}, -25, LabelFear},
		{"neutral tie", []string{"Bull and bear battle"}, 0, LabelNeutral},
		{"case insensitive", []string{"SURGE"}, 100, LabelExtremeGreed},
	}
	for _, c := range cases {
		got := AnalyzeSentiment(c.headlines)
		if got.Score != c.score || got.Label != c.label {
			t.Errorf("%s: got %d/%s, want %d/%s", c.name, got.Score, got.Label, c.score, c.label)
		}
	}
}
