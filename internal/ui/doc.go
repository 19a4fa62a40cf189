// Package ui renders terminal output for the rawws-server CLI.
//
// Components are plain lipgloss renderers that return strings, so commands
// decide where output goes:
//
//   - Header: banner with the command and its effective settings
//   - Result: success, failure or warning box with ordered details
//   - RenderServices: table of servers found by mDNS
//   - RenderCaptureSummary: frame counts from a capture file
//   - Confirm: warning box followed by a typed confirmation prompt
//
// The one interactive piece is ScanModel, a Bubble Tea model that shows a
// spinner while discovery runs. RunScan wraps it in a program and returns
// the scan result once the program exits.
package ui
