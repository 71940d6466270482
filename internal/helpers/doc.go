// Package helpers provides common utility functions shared across oidcmw's
// packages: string truncation for safe logging and loopback-hostname
// detection for redirect_uri validation.
//
// Key utilities:
//   - SafeTruncate: safely truncates strings for logging sensitive data
//   - IsLoopbackHostname: checks if a hostname represents a loopback address
package helpers
