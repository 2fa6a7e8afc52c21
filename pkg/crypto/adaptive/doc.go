// Package adaptive seals byte payloads with an AEAD cipher chosen for the
// host.
//
// AES-256-GCM is used where the Go runtime has hardware AES (amd64,
// arm64) and ChaCha20-Poly1305 elsewhere. Either may be forced with
// NewWithType. Sealed output is nonce||ciphertext||tag, so a payload
// carries everything except the key needed to open it.
//
// Keys are supplied as text (hex or base64) through ParseKey.
package adaptive
