// Package storage provides the TTL-keyed byte store the core uses to
// persist one-shot authorization codes and replay-detection markers. It
// implements provider.Cache; the in-memory implementation is suitable for
// development, testing, and single-instance deployments, following the
// same shape as a distributed backend would.
package storage
