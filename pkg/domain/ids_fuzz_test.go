//go:build go1.18

package domain

import (
	"strings"
	"testing"
)

// FuzzParseProjectID checks that parsing never panics on arbitrary input and
// that any accepted identity round-trips unchanged.
func FuzzParseProjectID(f *testing.F) {
	f.Add("")
	f.Add(ComputeProjectID("https://github.com/org/repo/pull/1", "abc").String())
	f.Add(strings.Repeat("0", 64))
	f.Add(strings.Repeat("z", 64))
	f.Add("'; DROP TABLE projects;--")
	f.Add(string([]byte{0x00, 0x01, 0x02}))

	f.Fuzz(func(t *testing.T, input string) {
		projectID, err := ParseProjectID(input)
		if err != nil {
			return
		}
		roundTrip, err := ParseProjectID(projectID.String())
		if err != nil {
			t.Errorf("accepted id failed round-trip: %v", err)
		}
		if roundTrip != projectID {
			t.Error("round-trip changed the id")
		}
	})
}
