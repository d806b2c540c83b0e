package profile

import "testing"

func TestDisplayName(t *testing.T) {
	p := VoiceProfile{AutoName: "Male 1"}
	if got := p.DisplayName(); got != "Male 1" {
		t.Errorf("DisplayName() = %q, want %q", got, "Male 1")
	}
	p.Nickname = "Alice"
	if got := p.DisplayName(); got != "Alice" {
		t.Errorf("DisplayName() = %q, want %q", got, "Alice")
	}
}

func TestColorFor(t *testing.T) {
	if ColorFor(0) != ColorFor(len(colorPalette)) {
		t.Error("palette should wrap around")
	}
	if ColorFor(0) == ColorFor(1) {
		t.Error("adjacent ordinals should get distinct colors")
	}
	if got := ColorFor(-3); got != colorPalette[0] {
		t.Errorf("ColorFor(-3) = %q, want first palette color", got)
	}
}
