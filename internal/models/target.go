package models

import (
	"fmt"
	"net/url"
	"time"
)

// ProbeTimeoutRatio is the share of the polling interval a probe may take.
const ProbeTimeoutRatio = 0.9

// Target is a monitored endpoint. It is immutable after configuration load;
// Location is resolved once so a later timezone database change cannot shift
// alignment mid-run.
type Target struct {
	// Name is the display name
	Name string

	// InternalName is the stable storage key
	InternalName string

	URL      string
	Interval time.Duration

	// Expect is a substring the response body must contain
	Expect string

	Location *time.Location
}

// ProbeTimeout is 90% of the polling interval.
func (t Target) ProbeTimeout() time.Duration {
	return time.Duration(float64(t.Interval) * ProbeTimeoutRatio)
}

// Loc returns the target timezone, UTC when unset.
func (t Target) Loc() *time.Location {
	if t.Location == nil {
		return time.UTC
	}
	return t.Location
}

// MinInterval keeps consecutive samples in distinct whole seconds, which is
// the resolution samples are stored at.
const MinInterval = 2 * time.Second

// Validate checks the target is usable by the engine.
func (t Target) Validate() error {
	if t.InternalName == "" {
		return fmt.Errorf("internal name is required")
	}
	if t.Name == "" {
		return fmt.Errorf("target %s: name is required", t.InternalName)
	}
	u, err := url.Parse(t.URL)
	if err != nil {
		return fmt.Errorf("target %s: invalid url: %w", t.InternalName, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("target %s: url scheme must be http or https", t.InternalName)
	}
	if t.Interval < MinInterval {
		return fmt.Errorf("target %s: interval must be at least %s", t.InternalName, MinInterval)
	}
	return nil
}
