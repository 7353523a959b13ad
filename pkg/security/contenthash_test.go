package security

import "testing"

func TestHashContentStable(t *testing.T) {
	data := []byte("hello world")
	h1 := HashContent(data)
	h2 := HashContent(data)
	if h1 != h2 {
		t.Fatalf("hash not stable: %s != %s", h1, h2)
	}
	if h1 == HashContent([]byte("hello worlD")) {
		t.Fatalf("different content hashed to same value")
	}
}

func TestBase58RoundTrip(t *testing.T) {
	cases := [][]byte{
		[]byte(""),
		[]byte("a"),
		[]byte{0, 0, 1, 2, 3},
		[]byte("the quick brown fox jumps over the lazy dog"),
	}
	for _, c := range cases {
		enc := EncodeBase58(c)
		dec, err := DecodeBase58(enc)
		if err != nil {
			t.Fatalf("decode %q: %v", enc, err)
		}
		if string(dec) != string(c) {
			t.Fatalf("round trip mismatch: got %q want %q", dec, c)
		}
	}
}
