package secret

import "testing"

func TestEncryptDecryptRoundTrip(t *testing.T) {
	c, err := New("test-secret")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	sealed, err := c.Encrypt("hello there")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if sealed == "hello there" {
		t.Fatalf("expected ciphertext to differ from plaintext")
	}
	if got := c.Decrypt(sealed); got != "hello there" {
		t.Fatalf("expected round trip, got %q", got)
	}
}

func TestDecryptPassesThroughPlaintext(t *testing.T) {
	c, err := New("test-secret")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := c.Decrypt("legacy plain message"); got != "legacy plain message" {
		t.Fatalf("expected passthrough, got %q", got)
	}
	if got := c.Decrypt("enc:v1:not-base64!!"); got != "enc:v1:not-base64!!" {
		t.Fatalf("expected passthrough for bad envelope, got %q", got)
	}
}

func TestDecryptWrongKeyFallsBack(t *testing.T) {
	c1, _ := New("secret-a")
	c2, _ := New("secret-b")
	sealed, err := c1.Encrypt("msg")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if got := c2.Decrypt(sealed); got != sealed {
		t.Fatalf("expected fallback to input on wrong key, got %q", got)
	}
}

func TestEncryptEmpty(t *testing.T) {
	c, _ := New("test-secret")
	sealed, err := c.Encrypt("")
	if err != nil || sealed != "" {
		t.Fatalf("expected empty passthrough, got %q err %v", sealed, err)
	}
}
