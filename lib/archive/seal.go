// Copyright 2026 The Hearth Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"github.com/zeebo/blake3"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"github.com/hearthware/hearth/lib/secret"
)

// KeySize is the size in bytes of the master key and all derived
// per-dialogue keys.
const KeySize = 32

// SealedVersion is the version byte prepended to every sealed blob.
// It is included in the AEAD additional authenticated data, so
// tampering with it fails authentication.
const SealedVersion byte = 0x01

// SealedOverhead is the byte overhead per sealed blob:
// 1 (version) + 24 (XChaCha20-Poly1305 nonce) + 16 (Poly1305 tag).
const SealedOverhead = 1 + chacha20poly1305.NonceSizeX + chacha20poly1305.Overhead

// hkdfInfoDialogue is the HKDF info prefix for per-dialogue key
// derivation. Changing it invalidates every existing archive.
var hkdfInfoDialogue = []byte("hearth.archive.dialogue.v1")

// dialogueDigestKey is the BLAKE3 keyed-hash domain for dialogue
// identity digests. The digest, not the raw identifier, goes into the
// AEAD AAD so the AAD has a fixed length.
var dialogueDigestKey = [32]byte{
	'h', 'e', 'a', 'r', 't', 'h', '.', 'a', 'r', 'c', 'h', 'i', 'v', 'e',
	'.', 'i', 'd', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// Sealed is a transcript ready for storage: the encrypted blob plus
// the metadata needed to open it again.
type Sealed struct {
	// Blob is version byte + nonce + ciphertext + tag.
	Blob []byte

	// Compression is the algorithm applied before encryption.
	Compression CompressionTag

	// PlainSize is the transcript length before compression.
	PlainSize int
}

// Sealer compresses and encrypts transcripts under a deployment
// master key. Safe for concurrent use. Close zeroes the master key;
// after Close all methods fail.
type Sealer struct {
	masterKey   *secret.Buffer
	compression CompressionTag
}

// NewSealer creates a sealer. The masterKey buffer is owned by the
// Sealer and closed by [Sealer.Close]; the caller must not use it
// afterwards. The key must be exactly KeySize bytes.
func NewSealer(masterKey *secret.Buffer, compression CompressionTag) (*Sealer, error) {
	if masterKey.Len() != KeySize {
		return nil, fmt.Errorf("archive: master key must be %d bytes, got %d", KeySize, masterKey.Len())
	}
	switch compression {
	case CompressionNone, CompressionLZ4, CompressionZstd:
	default:
		return nil, fmt.Errorf("archive: unsupported compression tag: %d", compression)
	}
	return &Sealer{masterKey: masterKey, compression: compression}, nil
}

// Close zeroes and releases the master key. Idempotent.
func (s *Sealer) Close() error {
	return s.masterKey.Close()
}

// Seal compresses the transcript and encrypts it under the
// per-dialogue key. Incompressible transcripts are stored with
// CompressionNone.
func (s *Sealer) Seal(dialogueID string, transcript []byte) (*Sealed, error) {
	tag := s.compression
	compressed, err := Compress(transcript, tag)
	if err != nil {
		if !IsIncompressible(err) {
			return nil, fmt.Errorf("archive: compressing transcript: %w", err)
		}
		tag = CompressionNone
		compressed = transcript
	}

	key, err := s.deriveDialogueKey(dialogueID)
	if err != nil {
		return nil, err
	}
	defer key.Close()

	blob, err := encryptBlob(compressed, key, dialogueDigest(dialogueID))
	if err != nil {
		return nil, fmt.Errorf("archive: sealing transcript for %s: %w", dialogueID, err)
	}

	return &Sealed{
		Blob:        blob,
		Compression: tag,
		PlainSize:   len(transcript),
	}, nil
}

// Open decrypts and decompresses a sealed transcript. Fails if the
// blob was sealed for a different dialogue, the key is wrong, or the
// blob was tampered with.
func (s *Sealer) Open(dialogueID string, sealed *Sealed) ([]byte, error) {
	key, err := s.deriveDialogueKey(dialogueID)
	if err != nil {
		return nil, err
	}
	defer key.Close()

	compressed, err := decryptBlob(sealed.Blob, key, dialogueDigest(dialogueID))
	if err != nil {
		return nil, fmt.Errorf("archive: opening transcript for %s: %w", dialogueID, err)
	}

	plaintext, err := Decompress(compressed, sealed.Compression, sealed.PlainSize)
	if err != nil {
		return nil, fmt.Errorf("archive: decompressing transcript for %s: %w", dialogueID, err)
	}
	return plaintext, nil
}

// deriveDialogueKey derives the per-dialogue encryption key via
// HKDF-SHA256. The salt is nil: the master key is already uniformly
// random, so the extract phase with a zero key is appropriate per
// RFC 5869.
func (s *Sealer) deriveDialogueKey(dialogueID string) (*secret.Buffer, error) {
	info := make([]byte, 0, len(hkdfInfoDialogue)+len(dialogueID))
	info = append(info, hkdfInfoDialogue...)
	info = append(info, dialogueID...)

	reader := hkdf.New(sha256.New, s.masterKey.Bytes(), nil, info)
	derived := make([]byte, KeySize)
	if _, err := io.ReadFull(reader, derived); err != nil {
		secret.Zero(derived)
		return nil, fmt.Errorf("archive: HKDF key derivation failed: %w", err)
	}
	// NewFromBytes copies into mmap and zeroes the heap slice.
	return secret.NewFromBytes(derived)
}

// dialogueDigest computes the fixed-length identity digest of a
// dialogue ID for AAD binding.
func dialogueDigest(dialogueID string) [32]byte {
	hasher, err := blake3.NewKeyed(dialogueDigestKey[:])
	if err != nil {
		panic("archive: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write([]byte(dialogueID))
	var digest [32]byte
	copy(digest[:], hasher.Sum(nil))
	return digest
}

// encryptBlob encrypts plaintext with XChaCha20-Poly1305:
//
//	[Version: 1 byte] [Nonce: 24 bytes (random)] [Ciphertext+Tag]
//
// The version byte and identity digest form the AAD.
func encryptBlob(plaintext []byte, key *secret.Buffer, identity [32]byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key.Bytes())
	if err != nil {
		return nil, fmt.Errorf("creating XChaCha20-Poly1305 cipher: %w", err)
	}

	var nonce [chacha20poly1305.NonceSizeX]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("generating random nonce: %w", err)
	}

	aad := buildAAD(SealedVersion, identity)

	output := make([]byte, 1+chacha20poly1305.NonceSizeX, 1+chacha20poly1305.NonceSizeX+len(plaintext)+aead.Overhead())
	output[0] = SealedVersion
	copy(output[1:], nonce[:])

	return aead.Seal(output, nonce[:], plaintext, aad), nil
}

// decryptBlob reverses encryptBlob, authenticating against the
// version byte and identity digest.
func decryptBlob(blob []byte, key *secret.Buffer, identity [32]byte) ([]byte, error) {
	if len(blob) < SealedOverhead {
		return nil, fmt.Errorf("sealed blob is %d bytes, minimum is %d (version + nonce + tag)",
			len(blob), SealedOverhead)
	}

	version := blob[0]
	if version != SealedVersion {
		return nil, fmt.Errorf("sealed blob version %d is not supported (expected %d)",
			version, SealedVersion)
	}

	nonce := blob[1 : 1+chacha20poly1305.NonceSizeX]
	ciphertext := blob[1+chacha20poly1305.NonceSizeX:]

	aead, err := chacha20poly1305.NewX(key.Bytes())
	if err != nil {
		return nil, fmt.Errorf("creating XChaCha20-Poly1305 cipher: %w", err)
	}

	aad := buildAAD(version, identity)

	plaintext, err := aead.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, fmt.Errorf("AEAD decryption failed (wrong key, tampered data, or mismatched dialogue): %w", err)
	}
	return plaintext, nil
}

// buildAAD constructs the AEAD additional authenticated data: the
// version byte followed by the dialogue identity digest.
func buildAAD(version byte, identity [32]byte) []byte {
	aad := make([]byte, 1+len(identity))
	aad[0] = version
	copy(aad[1:], identity[:])
	return aad
}
