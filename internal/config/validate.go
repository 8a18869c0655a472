package config

import "fmt"

// ValidationResult separates blocking problems from ones that were
// recovered by substituting a documented default (the BadArgument split
// in spec §7: "Recovered locally by substituting a default when safe;
// otherwise surfaced ... and the session terminates").
type ValidationResult struct {
	Fatals   []error
	Warnings []error
}

// HasFatals reports whether startup should be aborted.
func (r ValidationResult) HasFatals() bool {
	return len(r.Fatals) > 0
}

// Normalize applies §6's boundary behaviors in place and returns what it
// had to do: width rounds up to a multiple of 4, invalid integers fall
// back to the documented default with a warning, and color depth is
// restricted to {8,16,24,32} (§8's Open Question, resolved here: anything
// else becomes 16, not passed through).
func (c *Config) Normalize() ValidationResult {
	var r ValidationResult

	if c.Hostname == "" {
		r.Fatals = append(r.Fatals, fmt.Errorf("hostname is required"))
	}

	if c.Port <= 0 || c.Port > 65535 {
		r.Warnings = append(r.Warnings, fmt.Errorf("port %d invalid, falling back to 3389", c.Port))
		c.Port = 3389
	}

	if c.Width <= 0 {
		r.Warnings = append(r.Warnings, fmt.Errorf("width %d invalid, falling back to 1024", c.Width))
		c.Width = 1024
	}
	if rem := c.Width % 4; rem != 0 {
		rounded := c.Width + (4 - rem)
		r.Warnings = append(r.Warnings, fmt.Errorf("width %d is not a multiple of 4, rounding up to %d", c.Width, rounded))
		c.Width = rounded
	}

	if c.Height <= 0 {
		r.Warnings = append(r.Warnings, fmt.Errorf("height %d invalid, falling back to 768", c.Height))
		c.Height = 768
	}

	if !validColorDepths[c.ColorDepth] {
		r.Warnings = append(r.Warnings, fmt.Errorf("color depth %d is not one of {8,16,24,32}, falling back to 16", c.ColorDepth))
		c.ColorDepth = 16
	}

	if c.MaxFrameDurationMS <= 0 {
		r.Warnings = append(r.Warnings, fmt.Errorf("max_frame_duration_ms %d invalid, falling back to 40", c.MaxFrameDurationMS))
		c.MaxFrameDurationMS = 40
	}
	if c.LagThresholdMS <= 0 {
		r.Warnings = append(r.Warnings, fmt.Errorf("lag_threshold_ms %d invalid, falling back to 100", c.LagThresholdMS))
		c.LagThresholdMS = 100
	}
	if c.WaitTimeoutMS <= 0 {
		r.Warnings = append(r.Warnings, fmt.Errorf("wait_timeout_ms %d invalid, falling back to 1000", c.WaitTimeoutMS))
		c.WaitTimeoutMS = 1000
	}
	if c.MaxFlushRateHz < 0 {
		r.Warnings = append(r.Warnings, fmt.Errorf("max_flush_rate_hz %v invalid, falling back to 30", c.MaxFlushRateHz))
		c.MaxFlushRateHz = 30
	}

	if c.GridSnap <= 0 {
		r.Warnings = append(r.Warnings, fmt.Errorf("grid_snap %d invalid, falling back to 64", c.GridSnap))
		c.GridSnap = 64
	}
	if c.CopyQueueCapacity <= 0 {
		r.Warnings = append(r.Warnings, fmt.Errorf("copy_queue_capacity %d invalid, falling back to 256", c.CopyQueueCapacity))
		c.CopyQueueCapacity = 256
	}

	if c.LogFormat != "" && c.LogFormat != "text" && c.LogFormat != "json" {
		r.Warnings = append(r.Warnings, fmt.Errorf("log_format %q invalid, falling back to text", c.LogFormat))
		c.LogFormat = "text"
	}

	if c.ListenTransport != "tcp" && c.ListenTransport != "websocket" {
		r.Warnings = append(r.Warnings, fmt.Errorf("listen_transport %q invalid, falling back to tcp", c.ListenTransport))
		c.ListenTransport = "tcp"
	}

	return r
}
