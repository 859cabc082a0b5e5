package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"time"
)

const (
	version byte = 1

	// KindValue is a present entity payload.
	KindValue byte = 1
	// KindTombstone marks an id confirmed absent in the backing store.
	KindTombstone byte = 2
	// KindLogical is a payload wrapped with a logical expiry timestamp;
	// the store never physically evicts these.
	KindLogical byte = 3
)

var (
	ErrCorrupt = errors.New("surgecache: corrupt entry")
	magic4     = [...]byte{'S', 'R', 'G', 'C'}
)

// Entry is a decoded cache record. ExpireAt is meaningful only for KindLogical.
type Entry struct {
	Kind     byte
	ExpireAt time.Time
	Payload  []byte
}

// Expired reports whether a logical entry's expiry lies at or before now.
// Non-logical entries never expire at this layer.
func (e Entry) Expired(now time.Time) bool {
	return e.Kind == KindLogical && !e.ExpireAt.After(now)
}

func hasMagic(b []byte) bool {
	return len(b) >= 4 && bytes.Equal(b[:4], magic4[:])
}

// Value: magic(4) | ver(1) | kind(1=value) | vlen(u32 be) | payload(vlen)
func EncodeValue(payload []byte) []byte {
	return encode(KindValue, 0, payload)
}

// Tombstone: magic(4) | ver(1) | kind(2=tombstone) | vlen(u32 be, always 0)
func EncodeTombstone() []byte {
	return encode(KindTombstone, 0, nil)
}

// Logical: magic(4) | ver(1) | kind(3=logical) | expireAt(i64 be, unix ms) | vlen(u32 be) | payload(vlen)
func EncodeLogical(expireAt time.Time, payload []byte) []byte {
	return encode(KindLogical, expireAt.UnixMilli(), payload)
}

func encode(kind byte, expireAtMs int64, payload []byte) []byte {
	size := 4 + 1 + 1 + 4 + len(payload)
	if kind == KindLogical {
		size += 8
	}

	var buf bytes.Buffer
	buf.Grow(size)

	buf.Write(magic4[:])
	buf.WriteByte(version)
	buf.WriteByte(kind)

	var u8 [8]byte
	var u4 [4]byte

	if kind == KindLogical {
		binary.BigEndian.PutUint64(u8[:], uint64(expireAtMs))
		buf.Write(u8[:])
	}

	binary.BigEndian.PutUint32(u4[:], uint32(len(payload)))
	buf.Write(u4[:])
	buf.Write(payload)
	return buf.Bytes()
}

func Decode(b []byte) (Entry, error) {
	const hdr = 4 + 1 + 1
	if len(b) < hdr || !hasMagic(b) || b[4] != version {
		return Entry{}, ErrCorrupt
	}

	kind := b[5]
	off := 6

	var expireAt time.Time
	switch kind {
	case KindValue, KindTombstone:
	case KindLogical:
		if off+8 > len(b) {
			return Entry{}, ErrCorrupt
		}
		expireAt = time.UnixMilli(int64(binary.BigEndian.Uint64(b[off : off+8])))
		off += 8
	default:
		return Entry{}, ErrCorrupt
	}

	if off+4 > len(b) {
		return Entry{}, ErrCorrupt
	}
	vlen := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	if vlen < 0 || vlen > len(b)-off { // overflow-safe bound check
		return Entry{}, ErrCorrupt
	}
	if kind == KindTombstone && vlen != 0 {
		return Entry{}, ErrCorrupt
	}

	return Entry{Kind: kind, ExpireAt: expireAt, Payload: b[off : off+vlen]}, nil
}
