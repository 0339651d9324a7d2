package models

// ConnectionInfo describes where an RTMP publisher connects and publishes
type ConnectionInfo struct {
	Addr       string // host:port to dial
	App        string
	TCURL      string
	StreamName string
	Vars       map[string]string // Extracted variables from URL pattern matching
}

// GetVars returns all stored URL variables (copy to prevent modification)
func (c *ConnectionInfo) GetVars() map[string]string {
	vars := make(map[string]string, len(c.Vars))
	for k, v := range c.Vars {
		vars[k] = v
	}
	return vars
}
