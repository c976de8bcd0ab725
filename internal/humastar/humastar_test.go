package humastar

import "testing"

func TestSignals(t *testing.T) {
	in := &SignalsInput{RawBody: []byte(`{"source":"rede_kml","lon":-47.06,"all":true,"group":null}`)}
	s, err := in.MustParse()
	if err != nil {
		t.Fatal(err)
	}
	if s.String("source") != "rede_kml" || s.Float("lon") != -47.06 || !s.Bool("all") {
		t.Fatalf("signals = %v", s)
	}
	if s.Has("group") || s.Has("missing") || !s.Has("all") {
		t.Fatal("Has should ignore null and missing keys")
	}
	if s.String("lon") != "" || s.Bool("source") {
		t.Fatal("mismatched types should return zero values")
	}

	if _, err := (&SignalsInput{RawBody: []byte("{")}).MustParse(); err == nil {
		t.Fatal("expected error for malformed signals")
	}
}
