// Package pipeline drives spreadsheet files through the ingestion
// stages: structural validation, cleaning, and Paillier encryption.
//
// Each stage implements the Stage interface: it consumes the path it is
// given and either returns the path of the artifact it wrote or a
// *StageError explaining the rejection. The Runner consumes discovered
// files from the watcher channel one at a time, threads each file
// through the stages in order, and stops at the first failure; a file
// that fails validation is never cleaned, a file that fails cleaning is
// never encrypted. Failed files are dropped, not retried.
//
// Stage outputs chain by prefix: a.xlsx becomes validated_a.xlsx, then
// cleaned_validated_a.xlsx, then encrypted_cleaned_validated_a.cbor.
// The StatusTracker keeps an in-memory record of recent runs for the
// HTTP API, and every transition is published to the websocket hub as a
// PipelineEvent.
package pipeline
