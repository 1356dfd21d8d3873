package manifest

import digest "github.com/opencontainers/go-digest"

// Fingerprint hashes the manifest's canonical encoding, the same
// content-identity primitive internal/cas uses for blobs. A lockfile
// stamped with this value can tell, on the next install, whether the
// manifest it was produced from has since changed (spec.md §4.6's
// "locked, graph unchanged" fast path).
func (m *Manifest) Fingerprint() (string, error) {
	data, err := m.Encode()
	if err != nil {
		return "", err
	}
	return digest.FromBytes(data).String(), nil
}
