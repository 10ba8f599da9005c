// Package testing provides a reusable conformance suite for
// MetadataStore implementations.
package testing

import (
	"testing"

	"github.com/spacemaster/spacedrive/pkg/metadata"
)

// StoreTestSuite tests the MetadataStore interface contract, not
// implementation details, making it reusable across backends (memory,
// badger).
type StoreTestSuite struct {
	// NewStore creates a fresh MetadataStore for each test so tests
	// stay isolated.
	NewStore func(t *testing.T) metadata.MetadataStore
}

// Run executes all tests in the suite.
func (suite *StoreTestSuite) Run(test *testing.T) {
	test.Run("Namespace", suite.RunNamespaceTests)
	test.Run("Grants", suite.RunGrantTests)
	test.Run("Maintenance", suite.RunMaintenanceTests)
}
