// Package services defines the shared error taxonomy and the context keys used
// to correlate log output across pipeline stages.
package services
