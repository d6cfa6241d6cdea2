package obs

import "testing"

func TestCanonicalPath(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"/healthz", "/healthz"},
		{"/v1/info", "/v1/info"},
		{"/v1/assets", "/v1/assets"},
		{"/v1/assets/3f2a1c", "/v1/assets/:id"},
		{"/v1/assets/3f2a1c/history", "/v1/assets/:id/history"},
		{"/v1/assets/3f2a1c/transfer", "/v1/assets/:id/transfer"},
		{"/v1/identities/0xAbC123", "/v1/identities/:address"},
		{"/v1/accounts/0xAbC123/assets", "/v1/accounts/:address/assets"},
		{"/v1/assets/3f2a1c?verbose=1", "/v1/assets/:id"},
		{"", "/"},
		{"/", "/"},
	}
	for _, tc := range cases {
		if got := CanonicalPath(tc.in); got != tc.want {
			t.Errorf("CanonicalPath(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
