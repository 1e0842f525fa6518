// Package tui renders proxiscan output in the terminal.
//
// Two output modes are supported. When stdout is a terminal, scans run inside
// a Bubble Tea program (ScanModel) that shows a progress bar and a live,
// ordered device list for each channel. Otherwise a Reporter prints one plain
// line per engine event, which keeps piped output and logs readable.
//
// The history commands use the static renderers (RenderSessionTable,
// RenderSessionDetail, RenderSummary) in both modes.
//
// Logging is controlled separately by PROXISCAN_LOG_LEVEL; when it is unset
// zap is silent so the curated output is not interleaved with log lines.
package tui
