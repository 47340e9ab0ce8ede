// Package middleware wraps archive and draft stores with privacy
// behavior: AES-GCM encryption of drafts at rest and masking of free-text
// health notes in archived records.
package middleware
