// Package formats provides parsers for Daggerfall world data files.
//
// Parsers are pure: they take the file bytes and return the decoded
// structure or an error, and never register anything with the engine.
package formats
