package predict

import (
	"math"
	"reflect"
	"testing"
)

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestPredict_SinglePattern(t *testing.T) {
	t.Parallel()
	got := New().Predict("We finally got the job!")

	if len(got) != 4 {
		t.Fatalf("len = %d (%+v), want 4", len(got), got)
	}
	if got[0].Category != "excitement" || got[0].Emoji != "🤯" || got[0].Source != "good_news" {
		t.Errorf("top = %+v", got[0])
	}
	// Two triggers: "finally" and "got the job".
	if !approx(got[0].Confidence, 0.7) {
		t.Errorf("confidence = %v, want 0.7", got[0].Confidence)
	}
}

func TestPredict_MaxWinsAcrossPatterns(t *testing.T) {
	t.Parallel()
	// question (1 hit) and opinion (2 hits) both predict agreement.
	got := New().Predict("Honestly I think so, right?")

	byCat := map[string]Prediction{}
	for _, p := range got {
		byCat[p.Category] = p
	}
	agree, ok := byCat["agreement"]
	if !ok {
		t.Fatalf("agreement missing from %+v", got)
	}
	if !approx(agree.Confidence, 0.7) || agree.Source != "opinion" {
		t.Errorf("agreement = %+v, want 0.7 from opinion", agree)
	}
	if len(got) != 3 {
		t.Errorf("len = %d, want 3 distinct categories", len(got))
	}
}

func TestPredict_ConfidenceCapped(t *testing.T) {
	t.Parallel()
	got := New().Predict("so annoying, frustrating, unbelievable, I'm sick of it and fed up")
	if len(got) == 0 {
		t.Fatal("no predictions")
	}
	if !approx(got[0].Confidence, 0.9) {
		t.Errorf("confidence = %v, want capped 0.9", got[0].Confidence)
	}
}

func TestPredict_TopFive(t *testing.T) {
	t.Parallel()
	got := New().Predict("look at this puppy, so cute, I think it's adorable. guess what, we won")
	if len(got) != 5 {
		t.Errorf("len = %d, want 5", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].Confidence > got[i-1].Confidence {
			t.Errorf("not sorted: %+v", got)
		}
	}
}

func TestPredict_NoTriggers(t *testing.T) {
	t.Parallel()
	p := New()
	if got := p.Predict("the quarterly report is attached"); len(got) != 0 {
		t.Errorf("got %+v, want none", got)
	}
	if p.IsReactionLikely("the quarterly report is attached") {
		t.Error("IsReactionLikely = true")
	}
	if _, ok := p.Top(""); ok {
		t.Error("Top on empty text returned ok")
	}
}

func TestPredict_EmojiFallback(t *testing.T) {
	t.Parallel()
	got := New().Predict("you're kidding")
	var amusement Prediction
	for _, p := range got {
		if p.Category == "amusement" {
			amusement = p
		}
	}
	if amusement.Emoji != "🤣" {
		t.Errorf("amusement emoji = %q, want fallback 🤣", amusement.Emoji)
	}
}

func TestIsReactionLikelyAndCategories(t *testing.T) {
	t.Parallel()
	p := New()
	if !p.IsReactionLikely("aww") {
		t.Error("IsReactionLikely(aww) = false")
	}
	if got := p.Categories("aww"); !reflect.DeepEqual(got, []string{"love", "joy"}) {
		t.Errorf("Categories = %v", got)
	}
}

func TestFromHistory(t *testing.T) {
	t.Parallel()
	got := New().FromHistory([]string{"aww", "so cute, adorable, precious", "get this"})
	if len(got) == 0 || got[0].Category != "love" {
		t.Fatalf("got %+v, want love first", got)
	}
	if !approx(got[0].Confidence, 0.85) {
		t.Errorf("love confidence = %v, want 0.85", got[0].Confidence)
	}
}

func TestWithPatterns(t *testing.T) {
	t.Parallel()
	p := New(WithPatterns([]Pattern{{Name: "coffee", Triggers: []string{"espresso"}, Categories: []string{"joy"}}}))
	got := p.Predict("double espresso please")
	if len(got) != 1 || got[0].Category != "joy" || got[0].Emoji != "" {
		t.Errorf("got %+v", got)
	}
}
