package mysql

import (
	"strings"
	"testing"
)

func TestNormalizeDSN(t *testing.T) {
	t.Parallel()

	got, err := normalizeDSN("user:pw@tcp(db:3306)/daybook")
	if err != nil {
		t.Fatalf("normalizeDSN: %v", err)
	}
	if !strings.Contains(got, "clientFoundRows=true") {
		t.Fatalf("dsn %q lacks clientFoundRows", got)
	}
	if !strings.HasPrefix(got, "user:pw@tcp(db:3306)/daybook") {
		t.Fatalf("dsn %q lost its address", got)
	}

	if _, err := normalizeDSN("not a dsn"); err == nil {
		t.Fatalf("expected error for malformed dsn")
	}
}
