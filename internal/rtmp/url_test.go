package rtmp

import (
	"testing"
)

func TestParseURL(t *testing.T) {
	tests := []struct {
		name       string
		url        string
		pattern    string
		addr       string
		app        string
		tcurl      string
		streamName string
	}{
		{
			name:       "Default port",
			url:        "rtmp://localhost/live/johndoe",
			pattern:    DefaultPattern,
			addr:       "localhost:1935",
			app:        "live",
			tcurl:      "rtmp://localhost/live",
			streamName: "johndoe",
		},
		{
			name:       "Explicit port and stream key",
			url:        "rtmp://example.com:1936/live/alice?key=s3cr3t",
			pattern:    DefaultPattern,
			addr:       "example.com:1936",
			app:        "live",
			tcurl:      "rtmp://example.com:1936/live",
			streamName: "alice?key=s3cr3t",
		},
		{
			name:       "Literal segments belong to the application",
			url:        "rtmp://localhost/live/test/johndoe",
			pattern:    "/live/{app}/{stream}",
			addr:       "localhost:1935",
			app:        "live/test",
			tcurl:      "rtmp://localhost/live/test",
			streamName: "johndoe",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, err := ParseURL(tt.url, tt.pattern)
			if err != nil {
				t.Fatalf("ParseURL(%q) error = %v", tt.url, err)
			}
			if info.Addr != tt.addr {
				t.Errorf("Addr = %q, expected %q", info.Addr, tt.addr)
			}
			if info.App != tt.app {
				t.Errorf("App = %q, expected %q", info.App, tt.app)
			}
			if info.TCURL != tt.tcurl {
				t.Errorf("TCURL = %q, expected %q", info.TCURL, tt.tcurl)
			}
			if info.StreamName != tt.streamName {
				t.Errorf("StreamName = %q, expected %q", info.StreamName, tt.streamName)
			}
		})
	}
}

func TestParseURLRejects(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		pattern string
	}{
		{name: "Wrong scheme", url: "http://localhost/live/johndoe", pattern: DefaultPattern},
		{name: "Missing host", url: "rtmp:///live/johndoe", pattern: DefaultPattern},
		{name: "Wrong path", url: "rtmp://localhost/johndoe", pattern: DefaultPattern},
		{name: "Pattern without stream", url: "rtmp://localhost/live/test", pattern: "/{app}/test"},
		{name: "Invalid URL", url: "rtmp://[::1", pattern: DefaultPattern},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseURL(tt.url, tt.pattern); err == nil {
				t.Errorf("ParseURL(%q, %q) expected error", tt.url, tt.pattern)
			}
		})
	}
}

func TestExtractVariables(t *testing.T) {
	regexStr, varNames := patternToRegex("/live/{app}/{username}")
	if len(varNames) != 2 {
		t.Fatalf("expected 2 variables, got %v", varNames)
	}

	tests := []struct {
		name          string
		path          string
		expectedMatch bool
		expectedVars  map[string]string
	}{
		{
			name:          "Valid path with variables",
			path:          "/live/myapp/alice",
			expectedMatch: true,
			expectedVars:  map[string]string{"app": "myapp", "username": "alice"},
		},
		{
			name:          "Wrong prefix",
			path:          "/stream/test/johndoe",
			expectedMatch: false,
		},
		{
			name:          "Too many segments",
			path:          "/live/test/johndoe/extra",
			expectedMatch: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vars, ok := extractVariables(regexStr, tt.path)
			if ok != tt.expectedMatch {
				t.Errorf("extractVariables(%q) match = %v, expected %v", tt.path, ok, tt.expectedMatch)
			}
			for key, expectedVal := range tt.expectedVars {
				if actualVal, exists := vars[key]; !exists || actualVal != expectedVal {
					t.Errorf("Expected variable %s=%s, got %s=%s", key, expectedVal, key, actualVal)
				}
			}
		})
	}
}

func TestConnectionInfoVars(t *testing.T) {
	info, err := ParseURL("rtmp://localhost/live/alice", DefaultPattern)
	if err != nil {
		t.Fatal(err)
	}

	vars := info.GetVars()
	if v, ok := vars["stream"]; !ok || v != "alice" {
		t.Errorf("GetVars()[stream] = (%q, %v), expected (alice, true)", v, ok)
	}
	if _, ok := vars["nonexistent"]; ok {
		t.Error("GetVars()[nonexistent] should not exist")
	}

	vars["stream"] = "bob"
	if v := info.GetVars()["stream"]; v != "alice" {
		t.Error("GetVars must return a copy")
	}
}
