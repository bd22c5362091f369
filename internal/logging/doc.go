// Package logging provides file-based structured logging with rotation.
// Logs are written as JSON to ~/.vaultrag/logs/vaultrag.log so that index
// runs can be inspected after the fact with `vaultrag logs`.
//
// Terminal output stays reserved for progress and results: stderr only
// receives log lines when explicitly requested.
package logging
