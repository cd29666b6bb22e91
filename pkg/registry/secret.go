package registry

import (
	"crypto/md5"
	"crypto/subtle"
	"encoding/hex"
)

// SecretDigest computes the stored one-way digest of a plugin secret. The
// digest binds the secret to its plugin id, so the same secret yields
// different digests for different ids.
func SecretDigest(pluginID, secretKey string) string {
	sum := md5.Sum([]byte(pluginID + secretKey))
	return hex.EncodeToString(sum[:])
}

// CheckSecret enforces the first-commit-wins rule: when no identity exists
// yet for the plugin id, any non-empty secret authenticates and thereby
// claims the id; otherwise the supplied secret's digest must equal the
// stored one. An empty secret never authenticates.
func CheckSecret(identity *PluginIdentity, pluginID, secretKey string) error {
	if secretKey == "" {
		return ErrSecretEmpty
	}
	if identity == nil {
		return nil
	}

	digest := SecretDigest(pluginID, secretKey)
	if subtle.ConstantTimeCompare([]byte(digest), []byte(identity.SecretKey)) != 1 {
		return ErrSecretMismatch
	}
	return nil
}
