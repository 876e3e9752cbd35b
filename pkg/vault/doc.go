// Package vault encrypts and stores per-workspace credentials.
//
// Each workspace gets its own encryption key derived from the service
// master key with HKDF-SHA256 and a workspace-scoped info string, so a
// credential sealed for one workspace can never be opened with another
// workspace's key. Payloads are sealed with XChaCha20-Poly1305 using a
// fresh random nonce per credential, with the workspace id and credential
// id bound as additional authenticated data. Any tampering with the stored
// ciphertext, or an attempt to read it under the wrong workspace, fails
// loudly at decryption.
package vault
