package domainutil

import "testing"

func TestRegistrableDomain(t *testing.T) {
	cases := []struct {
		url  string
		want string
	}{
		{"https://www.example.co.uk/page", "example.co.uk"},
		{"https://chat.deepseek.com/", "deepseek.com"},
		{"http://sub.example.com", "example.com"},
		{"example.com", "example.com"},
		{"", UnknownDomain},
		{"://not a url", UnknownDomain},
		{"localhost", "localhost"},
	}
	for _, tc := range cases {
		got := RegistrableDomain(tc.url)
		if got != tc.want {
			t.Errorf("RegistrableDomain(%q) = %q, want %q", tc.url, got, tc.want)
		}
	}
}
