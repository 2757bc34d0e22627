// Package preflight validates the environment before indexing or
// watching a corpus.
//
// The package checks:
//   - Corpus root access
//   - Write permissions for the storage directory
//   - Disk space availability (minimum 100MB)
//   - File descriptor limits (minimum 1024)
//
// Use the Checker type to run all validations:
//
//	checker := preflight.New()
//	results := checker.RunAll(ctx, corpusRoot, storageDir)
//	if checker.HasCriticalFailures(results) {
//	    // Handle failures
//	}
package preflight
