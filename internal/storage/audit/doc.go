// Package audit provides the durable, append-only audit log.
//
// Every evaluation and override is written here before the submitter sees
// a response. The log is the source of truth for review and for rebuilding
// non-durable session stores after a restart.
//
// Format:
//
//	audit-<segment-id>.log
//	[magic:8 "GAAUDIT\x01"]
//	[Frame]*
//	[checksum:32 SHA-256 of all bytes above] (absent on the active segment)
//
// Frame wire format:
//
//	[Length:4][CRC32:4][Kind:1][Payload:Length-5]
//
// Where:
//   - Length = CRC32 + Kind + Payload (big-endian uint32)
//   - CRC32 covers Kind+Payload (IEEE)
//   - Payload is the JSON encoded domain.AuditRecord
//   - Kind bit 0x80 marks a payload sealed with pkg/crypto/adaptive; the
//     kind byte is the associated data
//
// Sealed and plain frames may share a directory, so encryption can be
// enabled on an existing log. Opening a sealed frame without the key is
// an error, never a torn tail.
//
// A torn frame at the tail of a segment (crash mid-write) ends replay of
// that segment; earlier frames are kept.
package audit
