package crypto

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"
)

func TestSealRoundTrip(t *testing.T) {
	sealed, err := Seal("eyJhbGciOiJIUzI1NiJ9.payload.sig", "correct horse")
	if err != nil {
		t.Fatal(err)
	}
	pt, err := Unseal(sealed, "correct horse")
	if err != nil {
		t.Fatal(err)
	}
	if pt != "eyJhbGciOiJIUzI1NiJ9.payload.sig" {
		t.Fatalf("unexpected plaintext %q", pt)
	}
}

func TestSealWireFormat(t *testing.T) {
	sealed, err := Seal("test", "k")
	if err != nil {
		t.Fatal(err)
	}
	wire, _ := base64.StdEncoding.DecodeString(sealed)
	// 16 (salt) + 12 (nonce) + 4 (plaintext) + 16 (tag) = 48
	if len(wire) != 48 {
		t.Fatalf("expected wire length 48, got %d", len(wire))
	}
}

func TestSealDiffersEachTime(t *testing.T) {
	a, _ := Seal("same", "k")
	b, _ := Seal("same", "k")
	if a == b {
		t.Fatal("sealed values should differ for same plaintext")
	}
}

func TestUnsealWrongSecret(t *testing.T) {
	sealed, _ := Seal("secret", "right")
	_, err := Unseal(sealed, "wrong")
	if !errors.Is(err, ErrUnseal) {
		t.Fatalf("expected ErrUnseal, got %v", err)
	}
}

func TestUnsealTampered(t *testing.T) {
	sealed, _ := Seal("secret", "k")
	wire, _ := base64.StdEncoding.DecodeString(sealed)
	wire[len(wire)-1] ^= 0xFF

	_, err := Unseal(base64.StdEncoding.EncodeToString(wire), "k")
	if err == nil {
		t.Fatal("expected error with tampered data")
	}
}

func TestUnsealTruncated(t *testing.T) {
	_, err := Unseal(base64.StdEncoding.EncodeToString(make([]byte, 20)), "k")
	if !errors.Is(err, ErrUnseal) {
		t.Fatalf("expected ErrUnseal, got %v", err)
	}
}

func TestSealEmptySecret(t *testing.T) {
	if _, err := Seal("x", ""); !errors.Is(err, ErrEmptySecret) {
		t.Fatalf("expected ErrEmptySecret, got %v", err)
	}
}

func TestClientMessageIDsSortable(t *testing.T) {
	a := NewClientMessageID()
	b := NewClientMessageID()
	if len(a) != 26 || len(b) != 26 {
		t.Fatalf("expected 26-char ULIDs, got %q and %q", a, b)
	}
	if strings.Compare(a, b) > 0 {
		t.Fatalf("expected monotonic ids, got %s > %s", a, b)
	}
}

func TestNewUUIDv7(t *testing.T) {
	if v := NewUUIDv7().Version(); v != 7 {
		t.Fatalf("expected version 7, got %d", v)
	}
}
