// Package artifact decodes, encodes and fingerprints the schematic files
// that users post to chat.
//
// A schematic travels in three shapes: as a base64 string pasted inline
// (optionally fenced in a code block), as a ".msch" attachment, or as a
// file under a repository working tree. All three share one binary
// container, handled by Msch. Save files (".msav") are only inspected,
// never stored.
//
// Equality between artifacts is structural (see Equal). Two byte streams
// that decode to the same tags, size and tiles describe the same artifact
// even if their compression differs.
package artifact
