package hosting

import "testing"

func TestRegisterAndNewRoundTrip(t *testing.T) {
	called := false
	Register("stub-for-test", func() (Provider, error) {
		called = true
		return nil, nil
	})
	if _, err := New("stub-for-test"); err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if !called {
		t.Error("registered factory was never invoked")
	}
}

func TestNewUnregisteredProviderErrors(t *testing.T) {
	if _, err := New("nonexistent-provider"); err == nil {
		t.Fatal("expected error for unregistered provider name")
	}
}
