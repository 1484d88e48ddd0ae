package version

import (
	"strings"
	"testing"
)

func TestInfoStrings(t *testing.T) {
	if Info() != Version {
		t.Fatalf("unexpected info %q", Info())
	}
	if !strings.Contains(FullInfo(), "commit="+Commit) {
		t.Fatalf("unexpected full info %q", FullInfo())
	}
	if UserAgent() != "tokligence-relay/"+Version {
		t.Fatalf("unexpected user agent %q", UserAgent())
	}
}
