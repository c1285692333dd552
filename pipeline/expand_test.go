package pipeline

import "testing"

func TestExpandQueryWithHint(t *testing.T) {
	conv := NewConversationContext(nil, "Amoxicillin", 6)
	variants := ExpandQuery("what's the dosage", conv)

	if len(variants) != 2 {
		t.Fatalf("ExpandQuery() returned %d variants, want 2", len(variants))
	}
	if variants[0].Text != "Amoxicillin what's the dosage" || variants[0].Weight != 2 {
		t.Errorf("primary variant = %+v, want hint-prefixed text at weight 2", variants[0])
	}
	if variants[1].Text != "what's the dosage" || variants[1].Weight != 1 {
		t.Errorf("second variant = %+v, want raw question at weight 1", variants[1])
	}
}

func TestExpandQueryHintAlreadyInQuestion(t *testing.T) {
	conv := NewConversationContext(nil, "Amoxicillin", 6)
	variants := ExpandQuery("is amoxicillin safe in pregnancy", conv)

	for _, v := range variants {
		if v.Text == "Amoxicillin" {
			t.Error("bare hint variant added although hint already appears in question")
		}
	}
	if len(variants) > 2 {
		t.Errorf("ExpandQuery() returned %d variants with hint, cap is 2", len(variants))
	}
}

func TestExpandQueryNoHintNoHistory(t *testing.T) {
	conv := NewConversationContext(nil, "", 6)
	variants := ExpandQuery("do we have paracetamol 500 mg", conv)

	if len(variants) != 1 {
		t.Fatalf("ExpandQuery() returned %d variants without hint, want 1", len(variants))
	}
	if variants[0].Text != "do we have paracetamol 500 mg" || variants[0].Weight != 1 {
		t.Errorf("variant = %+v, want raw question at weight 1", variants[0])
	}
}

func TestExpandQueryHistoryFallback(t *testing.T) {
	history := []string{
		"user: tell me about ibuprofen",
		"assistant: ibuprofen is an NSAID",
	}
	conv := NewConversationContext(history, "", 6)
	variants := ExpandQuery("what about the dosage", conv)

	// History-augmented variant outweighs the raw question, and the no-hint
	// retrieval cap keeps only the top one.
	if len(variants) != 1 {
		t.Fatalf("ExpandQuery() returned %d variants without hint, want 1", len(variants))
	}
	want := "tell me about ibuprofen what about the dosage"
	if variants[0].Text != want || variants[0].Weight != 1.5 {
		t.Errorf("variant = %+v, want %q at weight 1.5", variants[0], want)
	}
}

func TestExpandQueryCapEnforcement(t *testing.T) {
	tests := []struct {
		name    string
		hint    string
		history []string
		maxWant int
	}{
		{"no_hint", "", nil, 1},
		{"no_hint_with_history", "", []string{"user: metformin stock"}, 1},
		{"with_hint", "Metformin", nil, 2},
		{"with_hint_and_history", "Metformin", []string{"user: earlier question"}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conv := NewConversationContext(tt.history, tt.hint, 6)
			variants := ExpandQuery("any warnings for this", conv)
			if len(variants) > tt.maxWant {
				t.Errorf("ExpandQuery() returned %d variants, cap is %d", len(variants), tt.maxWant)
			}
		})
	}
}

func TestExpandQueryDeduplicates(t *testing.T) {
	// Question identical to the hint collapses hint-derived variants
	conv := NewConversationContext(nil, "Amoxicillin", 6)
	variants := ExpandQuery("Amoxicillin", conv)

	seen := make(map[string]bool)
	for _, v := range variants {
		if seen[v.Text] {
			t.Errorf("duplicate variant text %q", v.Text)
		}
		seen[v.Text] = true
	}
}
