package archive

import (
	"bytes"

	"github.com/rzbill/linelog/pkg/id"
)

// Keyspace:
// - archive/{id_be16}

var keyPrefix = []byte("archive/")

func entryKey(i id.ID) []byte {
	k := make([]byte, 0, len(keyPrefix)+len(i))
	k = append(k, keyPrefix...)
	return append(k, i[:]...)
}

func idFromKey(k []byte) (id.ID, bool) {
	if !bytes.HasPrefix(k, keyPrefix) {
		return id.Zero, false
	}
	i, err := id.FromBytes(k[len(keyPrefix):])
	return i, err == nil
}
