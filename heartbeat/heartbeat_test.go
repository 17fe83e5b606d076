package heartbeat

import (
	"testing"
)

func TestEdgeFlip(t *testing.T) {
	if Rising.Flip() != Falling {
		t.Errorf("Rising.Flip() = %s, want FALLING", Rising.Flip())
	}
	if Falling.Flip() != Rising {
		t.Errorf("Falling.Flip() = %s, want RISING", Falling.Flip())
	}
	if Rising.Flip().Flip() != Rising {
		t.Error("double flip should return the original edge")
	}
}

func TestEdgeByte(t *testing.T) {
	if Rising.Byte() != '+' {
		t.Errorf("Rising.Byte() = %#02x, want '+'", Rising.Byte())
	}
	if Falling.Byte() != '.' {
		t.Errorf("Falling.Byte() = %#02x, want '.'", Falling.Byte())
	}
}

func TestEdgeString(t *testing.T) {
	if Rising.String() != "RISING" {
		t.Errorf("Rising.String() = %q, want RISING", Rising.String())
	}
	if Falling.String() != "FALLING" {
		t.Errorf("Falling.String() = %q, want FALLING", Falling.String())
	}
	if Edge('?').String() != "EDGE(0x3f)" {
		t.Errorf("unknown edge String() = %q, want EDGE(0x3f)", Edge('?').String())
	}
}

func TestEdgeFromByte(t *testing.T) {
	e, err := EdgeFromByte('+')
	if err != nil {
		t.Fatalf("EdgeFromByte('+') returned error: %v", err)
	}
	if e != Rising {
		t.Errorf("EdgeFromByte('+') = %s, want RISING", e)
	}

	e, err = EdgeFromByte('.')
	if err != nil {
		t.Fatalf("EdgeFromByte('.') returned error: %v", err)
	}
	if e != Falling {
		t.Errorf("EdgeFromByte('.') = %s, want FALLING", e)
	}
}

func TestEdgeFromByteRejectsUnknown(t *testing.T) {
	for _, b := range []byte{0, ' ', 'x', '-', 0xFF} {
		e, err := EdgeFromByte(b)
		if err == nil {
			t.Errorf("EdgeFromByte(%#02x) = %s, want error", b, e)
		}
	}
}

func TestEdgeRoundTrip(t *testing.T) {
	for _, want := range []Edge{Rising, Falling} {
		got, err := EdgeFromByte(want.Byte())
		if err != nil {
			t.Fatalf("round trip of %s returned error: %v", want, err)
		}
		if got != want {
			t.Errorf("round trip of %s = %s", want, got)
		}
	}
}
