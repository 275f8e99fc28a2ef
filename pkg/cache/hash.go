package cache

import (
	"encoding/binary"
	"encoding/hex"
	"slices"

	"github.com/zeebo/blake3"
)

// Hash is a 32-byte BLAKE3 digest.
type Hash [32]byte

type domainKey [32]byte

// Domain separation keys: ASCII domain names zero-padded to 32 bytes. Changing one
// invalidates every hash in that domain.
var (
	sourceDomainKey  = newDomainKey("respimg.cache.source")
	keyDomainKey     = newDomainKey("respimg.cache.key")
	variantDomainKey = newDomainKey("respimg.cache.variant")
	imageDomainKey   = newDomainKey("respimg.cache.image")
)

// keyVersion is mixed into every cache key. Bump it when the encoder output for
// identical parameters changes.
const keyVersion = 1

// DigestLength is the number of hex characters kept in digests and fingerprints.
const DigestLength = 32

func newDomainKey(name string) domainKey {
	var k domainKey
	copy(k[:], name)
	return k
}

// String returns the hex encoding of h.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// HashSource hashes the raw bytes of a source image.
func HashSource(data []byte) Hash {
	return keyedHash(sourceDomainKey, data)
}

// Digest returns the short content digest of final variant bytes.
func Digest(data []byte) string {
	h := keyedHash(variantDomainKey, data)
	return h.String()[:DigestLength]
}

// Fingerprint combines the digests of every variant of one image into the
// image-wide fingerprint. The result does not depend on the order of digests.
func Fingerprint(digests []string) string {
	sorted := slices.Clone(digests)
	slices.Sort(sorted)
	var buf []byte
	for _, d := range sorted {
		buf = appendField(buf, d)
	}
	h := keyedHash(imageDomainKey, buf)
	return h.String()[:DigestLength]
}

// Key is the full parameterization of one variant computation.
type Key struct {
	SourceHash    Hash
	Width         int
	Format        string
	Quality       int
	PreSignature  string
	PostSignature string
}

// String returns the content address of k.
func (k Key) String() string {
	buf := make([]byte, 0, 128)
	buf = binary.AppendUvarint(buf, keyVersion)
	buf = append(buf, k.SourceHash[:]...)
	buf = binary.AppendUvarint(buf, uint64(k.Width))
	buf = appendField(buf, k.Format)
	buf = binary.AppendUvarint(buf, uint64(k.Quality))
	buf = appendField(buf, k.PreSignature)
	buf = appendField(buf, k.PostSignature)
	return keyedHash(keyDomainKey, buf).String()
}

func appendField(buf []byte, s string) []byte {
	buf = binary.AppendUvarint(buf, uint64(len(s)))
	return append(buf, s...)
}

func keyedHash(key domainKey, data []byte) Hash {
	// NewKeyed only fails for keys that are not 32 bytes long.
	hasher, err := blake3.NewKeyed(key[:])
	if err != nil {
		panic("cache: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	_, _ = hasher.Write(data)
	var h Hash
	copy(h[:], hasher.Sum(nil))
	return h
}
