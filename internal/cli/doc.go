// Package cli holds the logic behind the stride command so it can be tested
// without cobra: configuration and engine setup, the HTTP serve loop,
// session housekeeping and offline reports.
package cli
