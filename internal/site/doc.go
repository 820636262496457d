// Package site defines the core types shared across the publishing pipeline:
// read and write records, the collaborator interfaces (render capability,
// template renderer, content store), filename derivation, and the error
// taxonomy used by the collector, reader, and writer.
package site
