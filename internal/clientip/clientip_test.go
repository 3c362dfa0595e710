package clientip

import (
	"net/http"
	"testing"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name       string
		headers    map[string]string
		remoteAddr string
		want       string
	}{
		{
			name:    "forwarded-for takes first entry",
			headers: map[string]string{"X-Forwarded-For": "203.0.113.5, 10.0.0.1"},
			want:    "203.0.113.5",
		},
		{
			name:       "forwarded-for wins over real-ip and peer",
			headers:    map[string]string{"X-Forwarded-For": "198.51.100.7", "X-Real-IP": "192.0.2.1"},
			remoteAddr: "10.1.1.1:5555",
			want:       "198.51.100.7",
		},
		{
			name:       "invalid forwarded-for falls through to real-ip",
			headers:    map[string]string{"X-Forwarded-For": "not-an-ip, 10.0.0.1", "X-Real-IP": "192.0.2.1"},
			remoteAddr: "10.1.1.1:5555",
			want:       "192.0.2.1",
		},
		{
			name:    "client-ip used when others are absent",
			headers: map[string]string{"Client-IP": " 2001:db8::1 "},
			want:    "2001:db8::1",
		},
		{
			name: "zoned forwarded-for is rejected",
			headers: map[string]string{
				"X-Forwarded-For": `::1%x - admin [01/Jan/2000:00:00:00 +0000] "GET /wp-admin/ HTTP/1.1" 200 1 "-" "x" [LOGIN:ROLE:administrator]`,
				"X-Real-IP":       "192.0.2.9",
			},
			want: "192.0.2.9",
		},
		{
			name:       "zoned peer address is rejected",
			remoteAddr: "[fe80::1%eth0]:443",
			want:       Sentinel,
		},
		{
			name:       "peer address with port",
			remoteAddr: "192.0.2.44:40000",
			want:       "192.0.2.44",
		},
		{
			name:       "ipv6 peer address with port",
			remoteAddr: "[2001:db8::2]:8443",
			want:       "2001:db8::2",
		},
		{
			name:       "bare peer address",
			remoteAddr: "192.0.2.45",
			want:       "192.0.2.45",
		},
		{
			name:       "everything invalid returns sentinel",
			headers:    map[string]string{"X-Forwarded-For": "unknown", "X-Real-IP": "999.1.1.1"},
			remoteAddr: "@",
			want:       Sentinel,
		},
		{
			name: "nothing at all returns sentinel",
			want: Sentinel,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			for k, v := range tt.headers {
				h.Set(k, v)
			}
			got := Resolve(h, tt.remoteAddr)
			if got != tt.want {
				t.Errorf("Resolve() = %q, want %q", got, tt.want)
			}
			if got == "" {
				t.Error("Resolve() returned empty string")
			}
		})
	}
}

func TestResolve_NilHeaders(t *testing.T) {
	if got := Resolve(nil, "203.0.113.9:80"); got != "203.0.113.9" {
		t.Errorf("Resolve(nil) = %q, want 203.0.113.9", got)
	}
}
