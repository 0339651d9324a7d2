package http

import (
	"fmt"
	"html"
	"io"
	"net/http"
	"os"

	"github.com/sirupsen/logrus"

	"surface-recorder/internal/config"
	"surface-recorder/internal/recorder"
)

// Server exposes the state of the recording sessions over HTTP
type Server struct {
	config   config.Config
	registry *recorder.Registry
	session  *recorder.Session
	log      logrus.FieldLogger
}

// NewServer creates a new HTTP server for session, whose peers are found in
// registry
func NewServer(cfg config.Config, registry *recorder.Registry, session *recorder.Session, log logrus.FieldLogger) *Server {
	return &Server{
		config:   cfg,
		registry: registry,
		session:  session,
		log:      log.WithField("component", "http"),
	}
}

// SetupServer sets up the HTTP server
func (s *Server) SetupServer() *http.Server {
	return &http.Server{
		Addr:    s.config.HTTPAddr,
		Handler: s.Handler(),
	}
}

// Handler returns the request multiplexer
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Recorded file download
	mux.HandleFunc("/recording", s.handleRecordingRequest)

	// Root handler (session list)
	mux.HandleFunc("/", s.handleRootRequest)

	return mux
}

// handleRecordingRequest serves the container file of the session once it
// is no longer recording
func (s *Server) handleRecordingRequest(w http.ResponseWriter, r *http.Request) {
	// Add CORS headers
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type")

	if r.Method == "OPTIONS" {
		return
	}

	out := s.session.Config().Output
	if out.Format == config.FormatRTMP {
		http.NotFound(w, r)
		return
	}
	if state := s.session.State(); state != recorder.StateIdle {
		http.Error(w, fmt.Sprintf("session is %s", state), http.StatusConflict)
		return
	}
	// Configure truncates the file; only a stopped recording is complete.
	if !s.session.Finished() {
		http.NotFound(w, r)
		return
	}
	if _, err := os.Stat(out.Path); os.IsNotExist(err) {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
	switch out.Format {
	case config.FormatMP4:
		w.Header().Set("Content-Type", "video/mp4")
	case config.FormatFLV:
		w.Header().Set("Content-Type", "video/x-flv")
	}

	s.log.WithField("path", out.Path).Debug("serving recording")
	http.ServeFile(w, r, out.Path)
}

// handleRootRequest handles requests to the root path
func (s *Server) handleRootRequest(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	sessions := s.registry.Sessions()
	if !contains(sessions, s.session) {
		sessions = append([]*recorder.Session{s.session}, sessions...)
	}

	w.Header().Set("Content-Type", "text/html")
	s.renderSessionList(w, sessions)
}

func contains(sessions []*recorder.Session, target *recorder.Session) bool {
	for _, s := range sessions {
		if s == target {
			return true
		}
	}
	return false
}

// renderSessionList renders the HTML page with the list of sessions
func (s *Server) renderSessionList(w io.Writer, sessions []*recorder.Session) {
	fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head>
    <title>Surface Recorder</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 40px; }
        table { border-collapse: collapse; margin-top: 20px; }
        td, th { padding: 8px 12px; border-bottom: 1px solid #ddd; text-align: left; }
        .code { background: #f0f0f0; padding: 5px; border-radius: 3px; font-family: monospace; }
    </style>
</head>
<body>
    <h1>Surface Recorder</h1>

    <h2>Sessions (%d)</h2>
    <table>
        <tr><th>Target</th><th>Session</th><th>State</th><th>Frames muxed</th></tr>`, len(sessions))

	for _, sess := range sessions {
		id := sess.ID()
		if id == "" {
			id = "-"
		}
		fmt.Fprintf(w, `
        <tr><td><span class="code">%s</span></td><td>%s</td><td>%s</td><td>%d</td></tr>`,
			html.EscapeString(sess.Target()), html.EscapeString(id), sess.State(), sess.FramesMuxed())
	}

	fmt.Fprintf(w, `
    </table>
    <p><a href="/recording">Download the recording</a> once the session is idle.</p>
</body>
</html>`)
}
