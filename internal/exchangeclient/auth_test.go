package exchangeclient

import "testing"

func TestSignIsDeterministic(t *testing.T) {
	a := sign("secret", 1000, "POST", "/v2/order", `{"market":"BTC-EUR"}`)
	b := sign("secret", 1000, "POST", "/v2/order", `{"market":"BTC-EUR"}`)
	if a != b {
		t.Fatalf("expected deterministic signature, got %q vs %q", a, b)
	}
	if len(a) != 64 {
		t.Fatalf("expected 64 hex chars (sha256), got %d: %q", len(a), a)
	}
}

func TestSignVariesWithInputs(t *testing.T) {
	base := sign("secret", 1000, "POST", "/v2/order", "")
	withBody := sign("secret", 1000, "POST", "/v2/order", `{"x":1}`)
	withDiffSecret := sign("other", 1000, "POST", "/v2/order", "")
	if base == withBody || base == withDiffSecret {
		t.Fatalf("expected signature to vary with body and secret")
	}
}
