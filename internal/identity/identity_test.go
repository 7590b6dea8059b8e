package identity

import (
	"strings"
	"testing"
	"time"
)

func sentAt() *time.Time {
	t := time.Date(2024, 3, 5, 9, 30, 0, 0, time.FixedZone("CET", 3600))
	return &t
}

func TestDedupeHashDeterministic(t *testing.T) {
	a := DedupeHash("buyer@nissan.com", []string{"a@x.com", "b@x.com"}, "Quote", sentAt(), "body")
	b := DedupeHash("buyer@nissan.com", []string{"a@x.com", "b@x.com"}, "Quote", sentAt(), "body")
	if a != b {
		t.Errorf("identical inputs produced %s and %s", a, b)
	}
	if len(a) != 64 {
		t.Errorf("hash length = %d, want 64 hex chars", len(a))
	}
}

func TestDedupeHashRecipientOrderAndCase(t *testing.T) {
	a := DedupeHash("s@x.com", []string{"b@x.com", "A@x.com", "c@x.com"}, "S", sentAt(), "body")
	b := DedupeHash("s@x.com", []string{"c@x.com", "a@x.com", "B@X.com"}, "S", sentAt(), "body")
	if a != b {
		t.Error("recipient order or case changed the hash")
	}
}

func TestDedupeHashFieldSensitivity(t *testing.T) {
	base := DedupeHash("s@x.com", []string{"r@x.com"}, "S", sentAt(), "body")
	later := sentAt().Add(time.Second)

	variants := map[string]string{
		"sender":     DedupeHash("t@x.com", []string{"r@x.com"}, "S", sentAt(), "body"),
		"recipients": DedupeHash("s@x.com", []string{"q@x.com"}, "S", sentAt(), "body"),
		"subject":    DedupeHash("s@x.com", []string{"r@x.com"}, "S2", sentAt(), "body"),
		"sentAt":     DedupeHash("s@x.com", []string{"r@x.com"}, "S", &later, "body"),
		"undated":    DedupeHash("s@x.com", []string{"r@x.com"}, "S", nil, "body"),
		"body":       DedupeHash("s@x.com", []string{"r@x.com"}, "S", sentAt(), "body!"),
	}
	for field, h := range variants {
		if h == base {
			t.Errorf("changing %s did not change the hash", field)
		}
	}
}

func TestDedupeHashTimezoneIndependent(t *testing.T) {
	utc := sentAt().UTC()
	if DedupeHash("s", nil, "S", sentAt(), "b") != DedupeHash("s", nil, "S", &utc, "b") {
		t.Error("same instant in different zones hashed differently")
	}
}

func TestFormatTimeSubSecond(t *testing.T) {
	if got := FormatTime(*sentAt()); got != "2024-03-05T08:30:00Z" {
		t.Errorf("FormatTime(whole second) = %q", got)
	}
	frac := sentAt().Add(250 * time.Millisecond)
	if got := FormatTime(frac); got != "2024-03-05T08:30:00.25Z" {
		t.Errorf("FormatTime(fractional) = %q", got)
	}
	if DedupeHash("s", nil, "S", sentAt(), "b") == DedupeHash("s", nil, "S", &frac, "b") {
		t.Error("messages 250ms apart should not collide")
	}
}

func TestDedupeHashUndatedDuplicatesCollide(t *testing.T) {
	a := DedupeHash("s@x.com", nil, "S", nil, "body")
	b := DedupeHash("s@x.com", nil, "S", nil, "body")
	if a != b {
		t.Error("two undated copies should collide")
	}
}

func TestDedupeHashEmptySenderIsUnknown(t *testing.T) {
	if DedupeHash("", nil, "S", nil, "b") != DedupeHash(UnknownSender, nil, "S", nil, "b") {
		t.Error("empty sender should hash as the unknown sentinel")
	}
}

func TestDedupeHashUsesBodyPrefixOnly(t *testing.T) {
	head := strings.Repeat("é", BodyPrefixLen)
	a := DedupeHash("s", nil, "S", nil, head+"-- signature one")
	b := DedupeHash("s", nil, "S", nil, head+"-- a different footer")
	if a != b {
		t.Error("text past the body prefix changed the hash")
	}
	c := DedupeHash("s", nil, "S", nil, head[:len(head)-2]+"x")
	if a == c {
		t.Error("change inside the body prefix did not change the hash")
	}
}

func TestThreadGrouping(t *testing.T) {
	want := ThreadID("Quote for LCD")
	for _, s := range []string{"Re: Quote for LCD", "Fwd: Quote for LCD", "FW: Quote for LCD", "RE:quote for lcd", "[EXTERNAL] Quote for LCD", "  Quote for LCD  "} {
		if got := ThreadID(s); got != want {
			t.Errorf("ThreadID(%q) = %s, want %s", s, got, want)
		}
	}
	if ThreadID("Quote for LCD pt2") == want {
		t.Error("\"Quote for LCD pt2\" should start a different thread")
	}
}

func TestThreadIDMissingSubject(t *testing.T) {
	if got := ThreadID(""); got != UnknownThread {
		t.Errorf("ThreadID(empty) = %q, want %q", got, UnknownThread)
	}
	if got := ThreadID("   "); got != UnknownThread {
		t.Errorf("ThreadID(blank) = %q, want %q", got, UnknownThread)
	}
}

// Stacked markers are stripped to a fixed point by default, so a reply to a
// forward joins the original thread. SingleStrip keeps the one-marker rule.
func TestThreadIDStackedMarkers(t *testing.T) {
	root := ThreadID("Quote for LCD")
	if got := ThreadID("Re: Fwd: Quote for LCD"); got != root {
		t.Errorf("fixed-point strip: got %s, want root thread %s", got, root)
	}
	if got := ThreadID("[EXTERNAL] RE: FW: Quote for LCD"); got != root {
		t.Errorf("fixed-point strip with tag: got %s, want root thread %s", got, root)
	}

	single := Threader{SingleStrip: true}
	if got := single.ThreadID("Re: Fwd: Quote for LCD"); got == root {
		t.Error("single strip should leave the inner Fwd: marker in place")
	}
	if got := single.ThreadID("Re: Fwd: Quote for LCD"); got == single.ThreadID("Fwd: Quote for LCD") {
		t.Error("single strip: \"Re: Fwd: X\" should not match \"Fwd: X\"")
	}
	if got := single.ThreadID("Re: Quote for LCD"); got != root {
		t.Error("single strip should still group a plain reply")
	}
}

func TestNormalizeSubject(t *testing.T) {
	tests := []struct {
		in     string
		repeat bool
		want   string
	}{
		{"Re: Hello", false, "hello"},
		{"Read me", true, "read me"},
		{"Re: Re: Hello", false, "re: hello"},
		{"Re: Re: Hello", true, "hello"},
		{"[ext]: Hello", true, "hello"},
		{"Re:", true, ""},
	}
	for _, tt := range tests {
		if got := NormalizeSubject(tt.in, tt.repeat); got != tt.want {
			t.Errorf("NormalizeSubject(%q, %v) = %q, want %q", tt.in, tt.repeat, got, tt.want)
		}
	}
}
