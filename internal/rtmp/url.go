package rtmp

import (
	"net"
	"net/url"
	"regexp"
	"strings"

	"github.com/pkg/errors"

	"surface-recorder/internal/models"
)

const defaultPort = "1935"

// DefaultPattern splits a publish path into application and stream name
const DefaultPattern = "/{app}/{stream}"

// patternToRegex converts a pattern with {var} to a regex and returns the regex and the variable names
func patternToRegex(pattern string) (string, []string) {
	varNames := []string{}
	escapedPattern := regexp.QuoteMeta(pattern)
	regex := regexp.MustCompile(`\\{([a-zA-Z0-9_]+)\\}`)
	regexPattern := regex.ReplaceAllStringFunc(escapedPattern, func(m string) string {
		name := m[2 : len(m)-2] // Remove \{ and \}
		varNames = append(varNames, name)
		return "(?P<" + name + ">[^/]+)"
	})
	return "^" + regexPattern + "$", varNames
}

// extractVariables matches path against the regex and extracts named variables
func extractVariables(regexStr string, path string) (map[string]string, bool) {
	regex, err := regexp.Compile(regexStr)
	if err != nil {
		return nil, false
	}
	match := regex.FindStringSubmatch(path)
	if match == nil {
		return nil, false
	}
	result := map[string]string{}
	for i, name := range regex.SubexpNames() {
		if i != 0 && name != "" {
			result[name] = match[i]
		}
	}
	return result, true
}

// ParseURL resolves a publish URL against pattern, which must name {app}
// and {stream}. The query string, often a stream key, stays attached to
// the stream name.
func ParseURL(rawURL, pattern string) (*models.ConnectionInfo, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, errors.Wrap(err, "rtmp: parse url")
	}
	if u.Scheme != "rtmp" {
		return nil, errors.Errorf("rtmp: unsupported scheme %q", u.Scheme)
	}
	if u.Hostname() == "" {
		return nil, errors.New("rtmp: url has no host")
	}

	regexStr, varNames := patternToRegex(pattern)
	vars, ok := extractVariables(regexStr, u.Path)
	if !ok {
		return nil, errors.Errorf("rtmp: path %q does not match %q", u.Path, pattern)
	}
	stream := vars["stream"]
	if vars["app"] == "" || stream == "" {
		return nil, errors.Errorf("rtmp: pattern %q must name {app} and {stream}, has %v", pattern, varNames)
	}
	// Everything before the stream name is the application, literal
	// segments of the pattern included.
	app := strings.TrimPrefix(strings.TrimSuffix(u.Path, "/"+stream), "/")

	port := u.Port()
	if port == "" {
		port = defaultPort
	}
	if u.RawQuery != "" {
		stream += "?" + u.RawQuery
	}

	tc := url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/" + app}
	return &models.ConnectionInfo{
		Addr:       net.JoinHostPort(u.Hostname(), port),
		App:        app,
		TCURL:      tc.String(),
		StreamName: stream,
		Vars:       vars,
	}, nil
}
