// Package signature implements the authorization scheme used to sign
// transfers on the ledger.
//
// WARNING: this is not public key cryptography. A credential pair is derived
// as (secret, public = sha256(secret)) and a signature is sha256(message ||
// secret). Verifying a signature requires the verifier to hold the signer's
// secret, which is provided through a SecretLookup. The scheme is kept as is
// so signatures already recorded on existing chains keep validating.
package signature

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// SecretLookup represents the behavior required to find the secret behind a
// public credential. The key registry provides this capability.
type SecretLookup interface {
	LookupSecret(publicKey string) (secret string, found bool)
}

// =============================================================================

// PublicKey derives the public credential for the specified secret.
func PublicKey(secret string) string {
	return digest(secret)
}

// Sign produces the signature of the message for the specified secret.
func Sign(message string, secret string) string {
	return digest(message + secret)
}

// Verify reports whether the signature was produced over the message by the
// holder of the secret behind the public credential. It returns false when no
// secret known to the lookup derives that public credential.
func Verify(message string, sig string, publicKey string, keys SecretLookup) bool {
	if keys == nil {
		return false
	}

	secret, found := keys.LookupSecret(publicKey)
	if !found {
		return false
	}

	exp := Sign(message, secret)
	return subtle.ConstantTimeCompare([]byte(exp), []byte(sig)) == 1
}

// =============================================================================

// digest returns the lowercase hex SHA-256 of the UTF-8 bytes of s.
func digest(s string) string {
	hash := sha256.Sum256([]byte(s))
	return hex.EncodeToString(hash[:])
}
