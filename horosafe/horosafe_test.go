package horosafe

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateSecret(t *testing.T) {
	// WHAT: 32 bytes pass, less fails.
	if err := ValidateSecret([]byte(strings.Repeat("x", 32))); err != nil {
		t.Errorf("32 bytes rejected: %v", err)
	}
	if err := ValidateSecret([]byte("court")); !errors.Is(err, ErrSecretTooShort) {
		t.Errorf("short secret: %v", err)
	}
}

func TestValidateURL(t *testing.T) {
	// WHAT: Scheme and private-address checks on outbound URLs.
	// WHY: Feed refresh and article import fetch admin-supplied URLs;
	// without this an admin account reaches the internal network.
	bad := map[string]error{
		"ftp://example.com/x":        ErrUnsafeScheme,
		"javascript:alert(1)":        ErrUnsafeScheme,
		"http://127.0.0.1/admin":     ErrSSRF,
		"http://10.0.0.5/metadata":   ErrSSRF,
		"http://192.168.1.1/":        ErrSSRF,
		"http://169.254.169.254/iam": ErrSSRF,
		"http://[::1]/":              ErrSSRF,
	}
	for u, want := range bad {
		if err := ValidateURL(u); !errors.Is(err, want) {
			t.Errorf("ValidateURL(%q) = %v, want %v", u, err, want)
		}
	}
	if err := ValidateURL("http:///nohost"); err == nil {
		t.Error("hostless URL accepted")
	}
	if err := ValidateURL("https://93.184.216.34/"); err != nil {
		t.Errorf("public IP rejected: %v", err)
	}
}

func TestValidateIdentifier(t *testing.T) {
	for _, ok := range []string{"site_title", "maintenance", "a-b.c", "X9"} {
		if err := ValidateIdentifier(ok); err != nil {
			t.Errorf("ValidateIdentifier(%q): %v", ok, err)
		}
	}
	for _, bad := range []string{"", "clef; DROP TABLE", "a b", "é", strings.Repeat("x", 257)} {
		if err := ValidateIdentifier(bad); err == nil {
			t.Errorf("ValidateIdentifier(%q) accepted", bad)
		}
	}
}

func TestLimitedReadAll(t *testing.T) {
	// WHAT: Reads under the cap succeed; reads past it error rather
	// than truncate.
	// WHY: A silently truncated feed parses as a different document.
	data, err := LimitedReadAll(strings.NewReader("bonjour"), 16)
	if err != nil || string(data) != "bonjour" {
		t.Errorf("under cap: %q, %v", data, err)
	}
	if _, err := LimitedReadAll(strings.NewReader(strings.Repeat("x", 17)), 16); err == nil {
		t.Error("over cap succeeded")
	}
}
