package webassets

import (
	"strings"
	"testing"
)

func TestEmbeddedApprovalPage(t *testing.T) {
	b, err := Files.ReadFile("index.html")
	if err != nil {
		t.Fatalf("embedded asset missing: %v", err)
	}
	page := string(b)
	for _, want := range []string{"pending_confirmations", "submit_confirmation", "thoughts"} {
		if !strings.Contains(page, want) {
			t.Errorf("approval page does not reference %q", want)
		}
	}
}
