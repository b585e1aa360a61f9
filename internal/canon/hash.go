package canon

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Hash domains. The version suffix leaves room to change the algorithm.
const (
	DomainInstance = "pledge/instance/v1"
	DomainHistory  = "pledge/history/v1"
)

// hashWithDomain is SHA256(domain || 0x00 || data), hex encoded.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Hash hashes the canonical form of v under domain.
func Hash(domain string, v any) (string, error) {
	data, err := MarshalStruct(v)
	if err != nil {
		return "", fmt.Errorf("hash %s: %w", domain, err)
	}
	return hashWithDomain(domain, data), nil
}

// InstanceHandle is the opaque handle of a commitment instance. It is a
// pure function of the kind, the arena id and the creator, so replaying
// the same history yields the same handles.
func InstanceHandle(kind string, id uint64, creator string) string {
	data, err := Marshal(Object{
		"kind":    String(kind),
		"id":      Int(int64(id)),
		"creator": String(creator),
	})
	if err != nil {
		// Strings and an int always encode.
		panic(fmt.Sprintf("instance handle: %v", err))
	}
	return hashWithDomain(DomainInstance, data)[:32]
}

// HistoryDigest hashes an ordered history (events, typically) so two runs
// can be compared with one string.
func HistoryDigest(history any) (string, error) {
	return Hash(DomainHistory, history)
}
