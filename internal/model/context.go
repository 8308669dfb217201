package model

import "strings"

// Context is one unit of scan work: a set of roots to walk plus the install
// prefix and archive parent that describe where the files came from.
type Context struct {
	ExtractPaths    []string `json:"extractPaths" yaml:"extractPaths"`
	InstallPrefix   string   `json:"installPrefix,omitempty" yaml:"installPrefix,omitempty"`
	Archive         string   `json:"archive,omitempty" yaml:"archive,omitempty"`
	IncludeAllFiles bool     `json:"includeAllFiles,omitempty" yaml:"includeAllFiles,omitempty"`
}

// Normalize cleans up the context in place and returns human readable
// warnings about anything it had to fix. It must run once, at dequeue time.
//
// A non-empty install prefix always ends with "/" afterwards and never
// contains a backslash; extract paths never end with "/".
func (c *Context) Normalize() []string {
	var warnings []string
	if c.InstallPrefix != "" {
		if strings.Contains(c.InstallPrefix, `\`) {
			warnings = append(warnings, "installPrefix uses a backslash path separator; use / instead, even for Windows")
			c.InstallPrefix = strings.ReplaceAll(c.InstallPrefix, `\`, "/")
		}
		if !strings.HasSuffix(c.InstallPrefix, "/") {
			warnings = append(warnings, "installPrefix is missing its trailing /")
			c.InstallPrefix += "/"
		}
	}
	for i, p := range c.ExtractPaths {
		if len(p) > 1 {
			c.ExtractPaths[i] = strings.TrimRight(p, "/")
		}
	}
	return warnings
}
