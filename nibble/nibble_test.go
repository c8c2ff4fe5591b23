package nibble

import (
	"bytes"
	"testing"
)

func TestKeyPathLength(t *testing.T) {
	cases := [][]byte{[]byte("apple"), []byte(""), []byte("tangerine")}
	for _, key := range cases {
		path := KeyPath(key)
		if len(path) != PathLength {
			t.Errorf("KeyPath(%q) has %d nibbles, want %d", key, len(path), PathLength)
		}
		for _, nib := range path {
			if nib > 0x0f {
				t.Errorf("KeyPath(%q) produced out-of-range nibble %x", key, nib)
			}
		}
	}
}

func TestBytesNibblesRoundTrip(t *testing.T) {
	cases := [][]byte{{}, {0x01}, {0xab, 0xcd, 0xef}, {0x00, 0xff}}
	for _, b := range cases {
		n := BytesToNibbles(b)
		if got := NibblesToBytes(n); !bytes.Equal(got, b) {
			t.Errorf("round trip of % x produced % x", b, got)
		}
	}
}

func TestNibblesToBytesOddPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on odd-length nibble sequence")
		}
	}()
	NibblesToBytes(Nibbles{1, 2, 3})
}

func TestCommonPrefixLen(t *testing.T) {
	tests := []struct {
		name string
		a, b Nibbles
		want int
	}{
		{"identical", Nibbles{1, 2, 3}, Nibbles{1, 2, 3}, 3},
		{"no overlap", Nibbles{1, 2, 3}, Nibbles{4, 5, 6}, 0},
		{"partial", Nibbles{1, 2, 3, 9}, Nibbles{1, 2, 4}, 2},
		{"a shorter", Nibbles{1, 2}, Nibbles{1, 2, 3}, 2},
		{"empty", Nibbles{}, Nibbles{1}, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := CommonPrefixLen(tc.a, tc.b); got != tc.want {
				t.Errorf("CommonPrefixLen(%v, %v) = %d, want %d", tc.a, tc.b, got, tc.want)
			}
		})
	}
}

func TestPackUnpackPrefix(t *testing.T) {
	cases := []Nibbles{
		{},
		{5},
		{1, 2, 3, 4},
		{0xf, 0x0, 0xa, 0xb, 0xc},
	}
	for _, n := range cases {
		count, packed := PackPrefix(n)
		got, err := UnpackPrefix(count, packed)
		if err != nil {
			t.Fatalf("UnpackPrefix(%v): %v", n, err)
		}
		if !bytes.Equal(got, n) {
			t.Errorf("PackPrefix/UnpackPrefix(%v) round-tripped to %v", n, got)
		}
	}
}

func TestUnpackPrefixWrongLength(t *testing.T) {
	if _, err := UnpackPrefix(4, []byte{0x12}); err == nil {
		t.Fatal("expected error for mismatched packed length")
	}
}

func TestPackPrefixPanicsOverMax(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic exceeding MaxPrefixLength")
		}
	}()
	PackPrefix(make(Nibbles, MaxPrefixLength+1))
}
