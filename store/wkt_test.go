package store

import (
	"strings"
	"testing"

	"github.com/paulmach/orb"
)

func TestEncodeWKT(t *testing.T) {
	mp := orb.MultiPolygon{{orb.Ring{
		{4.123456789, 52.5}, {4.2, 52.5}, {4.2, 52.6}, {4.123456789, 52.5},
	}}}

	got := EncodeWKT(mp)
	if !strings.HasPrefix(got, "MULTIPOLYGON(((") {
		t.Errorf("WKT = %q, want MULTIPOLYGON prefix", got)
	}
	if got != strings.TrimSpace(got) {
		t.Error("WKT carries surrounding whitespace")
	}
	if strings.Contains(got, ",,") || strings.Contains(got, "()") {
		t.Errorf("malformed WKT: %q", got)
	}
	// Coordinates are truncated before encoding.
	if strings.Contains(got, "4.123456789") {
		t.Errorf("WKT not truncated: %q", got)
	}
}

func TestWKTRoundTrip(t *testing.T) {
	mp := orb.MultiPolygon{
		{orb.Ring{{0, 0}, {1, 0}, {1, 1}, {0, 1}, {0, 0}}},
		{orb.Ring{{5, 5}, {6, 5}, {6, 6}, {5, 5}}},
	}

	decoded, err := DecodeWKT(EncodeWKT(mp))
	if err != nil {
		t.Fatal(err)
	}
	if len(decoded) != 2 {
		t.Fatalf("round trip produced %d polygons, want 2", len(decoded))
	}
	if decoded[0][0][0] != (orb.Point{0, 0}) {
		t.Errorf("first vertex = %v, want (0,0)", decoded[0][0][0])
	}
}

func TestDecodeWKTPolygonNormalised(t *testing.T) {
	decoded, err := DecodeWKT("POLYGON((0 0,1 0,1 1,0 0))")
	if err != nil {
		t.Fatal(err)
	}
	if len(decoded) != 1 {
		t.Fatalf("bare polygon not normalised: %d polygons", len(decoded))
	}
}

func TestDecodeWKTRejectsNonPolygonal(t *testing.T) {
	if _, err := DecodeWKT("POINT(1 2)"); err == nil {
		t.Error("point WKT accepted as patch geometry")
	}
	if _, err := DecodeWKT("not wkt at all"); err == nil {
		t.Error("garbage WKT accepted")
	}
}
