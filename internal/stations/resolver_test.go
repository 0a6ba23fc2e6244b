package stations

import "testing"

func newTestResolver(t *testing.T) *Resolver {
	t.Helper()
	dir, err := NewDirectory()
	if err != nil {
		t.Fatalf("NewDirectory: %v", err)
	}
	return NewResolver(dir)
}

func TestResolver_ExactName(t *testing.T) {
	r := newTestResolver(t)

	matches := r.Resolve("brighton")
	if len(matches) == 0 {
		t.Fatal("expected at least one match for brighton")
	}
	if got := matches[0].Station.Code; got != "BTN" {
		t.Errorf("top match = %s, want BTN", got)
	}
	if matches[0].Score < 0.99 {
		t.Errorf("score = %.2f, want ~1.0 for an exact name", matches[0].Score)
	}
}

func TestResolver_PartialName(t *testing.T) {
	r := newTestResolver(t)

	// "london" matches every London terminus by token; the directory lists
	// London Bridge first, so a full tie keeps it on top.
	matches := r.Resolve("london")
	if len(matches) < 2 {
		t.Fatalf("expected several matches for london, got %d", len(matches))
	}
	if got := matches[0].Station.Name; got != "London Bridge" {
		t.Errorf("top match = %q, want London Bridge", got)
	}
}

func TestResolver_RankedDescending(t *testing.T) {
	r := newTestResolver(t)

	matches := r.Resolve("birmingham")
	for i := 1; i < len(matches); i++ {
		if matches[i].Score > matches[i-1].Score {
			t.Fatalf("matches not in descending score order at %d: %.3f > %.3f",
				i, matches[i].Score, matches[i-1].Score)
		}
	}
}

func TestResolver_PhoneticMisdictation(t *testing.T) {
	r := newTestResolver(t)

	// "brighten" is how dictation often renders Brighton.
	matches := r.Resolve("brighten")
	if len(matches) == 0 {
		t.Fatal("expected a phonetic match for brighten")
	}
	if got := matches[0].Station.Code; got != "BTN" {
		t.Errorf("top match = %s, want BTN", got)
	}
}

func TestResolver_EmptyPhrase(t *testing.T) {
	r := newTestResolver(t)

	if got := r.Resolve(""); len(got) != 0 {
		t.Errorf("Resolve(\"\") = %d matches, want 0", len(got))
	}
	if got := r.Resolve("   \t "); len(got) != 0 {
		t.Errorf("whitespace phrase = %d matches, want 0", len(got))
	}
}

func TestResolver_NoMatch(t *testing.T) {
	r := newTestResolver(t)

	if got := r.Resolve("elephant"); len(got) != 0 {
		t.Errorf("Resolve(elephant) = %d matches, want 0 (got %v)", len(got), got)
	}
}

func TestDirectory_Embedded(t *testing.T) {
	dir, err := NewDirectory()
	if err != nil {
		t.Fatalf("NewDirectory: %v", err)
	}
	if dir.Len() < 50 {
		t.Errorf("Len = %d, want the full embedded list", dir.Len())
	}
	for _, s := range dir.Stations() {
		if len(s.Code) != 3 {
			t.Errorf("station %q has malformed code %q", s.Name, s.Code)
		}
	}
}
