// Package replication implements the master/replica engine (spec.md §4.E):
// the master's replica registry and WAIT rendezvous, the replica's
// handshake and replay loop, and the RDB-style snapshot codec used for full
// resync.
package replication

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

// ErrBadSnapshot marks a structurally invalid snapshot blob.
var ErrBadSnapshot = errors.New("replication: malformed snapshot")

const snapshotMagic = "REDIS0011"

// RDB opcode bytes, per spec.md §4.E.
const (
	opAux      = 0xFA
	opSelectDB = 0xFE
	opResizeDB = 0xFB
	opExpireMS = 0xFD // 4-byte little-endian seconds
	opExpireMU = 0xFC // 8-byte little-endian milliseconds
	opEOF      = 0xFF

	typeString = 0x00
)

// Record is one decoded key/value pair, with its optional expiry instant.
type Record struct {
	Key      []byte
	Value    []byte
	ExpireAt time.Time // zero value means no expiry
}

// Decode parses a snapshot blob per spec.md §4.E's grammar: magic header,
// auxiliary metadata, an optional database selector, optional hash-table
// sizing hints, zero or more (expiry?, type, key, value) records, and an
// end-of-file marker. Anything after the EOF marker (the checksum trailer)
// is ignored.
func Decode(data []byte) ([]Record, error) {
	if len(data) < len(snapshotMagic) || string(data[:len(snapshotMagic)]) != snapshotMagic {
		return nil, ErrBadSnapshot
	}
	pos := len(snapshotMagic)

	var records []Record
	for {
		if pos >= len(data) {
			return nil, ErrBadSnapshot // missing EOF marker
		}
		op := data[pos]
		pos++

		switch op {
		case opEOF:
			return records, nil

		case opAux:
			var err error
			if _, pos, err = readString(data, pos); err != nil {
				return nil, err
			}
			if _, pos, err = readString(data, pos); err != nil {
				return nil, err
			}

		case opSelectDB:
			var err error
			if _, _, pos, err = readSize(data, pos); err != nil {
				return nil, err
			}

		case opResizeDB:
			var err error
			if _, _, pos, err = readSize(data, pos); err != nil {
				return nil, err
			}
			if _, _, pos, err = readSize(data, pos); err != nil {
				return nil, err
			}

		case opExpireMS:
			if pos+4 > len(data) {
				return nil, ErrBadSnapshot
			}
			secs := binary.LittleEndian.Uint32(data[pos:])
			pos += 4
			rec, newPos, err := readTypedRecord(data, pos, time.Unix(int64(secs), 0))
			if err != nil {
				return nil, err
			}
			pos = newPos
			records = append(records, rec)

		case opExpireMU:
			if pos+8 > len(data) {
				return nil, ErrBadSnapshot
			}
			ms := binary.LittleEndian.Uint64(data[pos:])
			pos += 8
			rec, newPos, err := readTypedRecord(data, pos, time.UnixMilli(int64(ms)))
			if err != nil {
				return nil, err
			}
			pos = newPos
			records = append(records, rec)

		case typeString:
			// No expiry prefix: the type byte we already consumed *is*
			// the record's type byte.
			rec, newPos, err := readTypedRecordFromType(data, pos, op, time.Time{})
			if err != nil {
				return nil, err
			}
			pos = newPos
			records = append(records, rec)

		default:
			return nil, ErrBadSnapshot
		}
	}
}

func readTypedRecord(data []byte, pos int, expireAt time.Time) (Record, int, error) {
	if pos >= len(data) {
		return Record{}, 0, ErrBadSnapshot
	}
	typ := data[pos]
	pos++
	return readTypedRecordFromType(data, pos, typ, expireAt)
}

func readTypedRecordFromType(data []byte, pos int, typ byte, expireAt time.Time) (Record, int, error) {
	if typ != typeString {
		return Record{}, 0, fmt.Errorf("%w: unsupported value type 0x%02x", ErrBadSnapshot, typ)
	}
	key, pos, err := readString(data, pos)
	if err != nil {
		return Record{}, 0, err
	}
	val, pos, err := readString(data, pos)
	if err != nil {
		return Record{}, 0, err
	}
	return Record{Key: key, Value: val, ExpireAt: expireAt}, pos, nil
}

// readSize decodes one length-encoded size field. If the encoding is an
// "integer-encoded string" form, isInt is true and n holds the signed
// integer value itself rather than a length.
func readSize(data []byte, pos int) (n int64, isInt bool, newPos int, err error) {
	if pos >= len(data) {
		return 0, false, 0, ErrBadSnapshot
	}
	first := data[pos]
	switch first >> 6 {
	case 0b00: // 6-bit length
		return int64(first & 0x3F), false, pos + 1, nil
	case 0b01: // 14-bit big-endian length
		if pos+1 >= len(data) {
			return 0, false, 0, ErrBadSnapshot
		}
		v := (int64(first&0x3F) << 8) | int64(data[pos+1])
		return v, false, pos + 2, nil
	case 0b10: // 32-bit big-endian length
		if pos+5 > len(data) {
			return 0, false, 0, ErrBadSnapshot
		}
		v := binary.BigEndian.Uint32(data[pos+1 : pos+5])
		return int64(v), false, pos + 5, nil
	default: // 0b11: integer-encoded string
		switch first & 0x3F {
		case 0:
			if pos+2 > len(data) {
				return 0, false, 0, ErrBadSnapshot
			}
			return int64(int8(data[pos+1])), true, pos + 2, nil
		case 1:
			if pos+3 > len(data) {
				return 0, false, 0, ErrBadSnapshot
			}
			return int64(int16(binary.LittleEndian.Uint16(data[pos+1 : pos+3]))), true, pos + 3, nil
		case 2:
			if pos+5 > len(data) {
				return 0, false, 0, ErrBadSnapshot
			}
			return int64(int32(binary.LittleEndian.Uint32(data[pos+1 : pos+5]))), true, pos + 5, nil
		default:
			return 0, false, 0, ErrBadSnapshot
		}
	}
}

func readString(data []byte, pos int) ([]byte, int, error) {
	n, isInt, newPos, err := readSize(data, pos)
	if err != nil {
		return nil, 0, err
	}
	if isInt {
		return []byte(fmt.Sprintf("%d", n)), newPos, nil
	}
	if n < 0 || newPos+int(n) > len(data) {
		return nil, 0, ErrBadSnapshot
	}
	out := make([]byte, n)
	copy(out, data[newPos:newPos+int(n)])
	return out, newPos + int(n), nil
}

// EmptySnapshotBlob returns the fixed 88-byte blob the master transmits
// during PSYNC (spec.md §4.A, §4.E): a structurally valid snapshot encoding
// zero keys. snapshot_test.go asserts its length and that it decodes to
// zero records.
func EmptySnapshotBlob() []byte {
	var b []byte
	b = append(b, snapshotMagic...)
	b = append(b, encodeAux("redis-ver", "7.2.0")...)
	b = append(b, encodeAux("redis-bits", "64")...)
	b = append(b, encodeAux("ember-snapshot", "0000000000000000")...)
	b = append(b, opSelectDB, 0x00)
	b = append(b, opResizeDB, 0x00, 0x00)
	b = append(b, opEOF)
	b = append(b, make([]byte, 8)...) // checksum disabled
	return b
}

func encodeAux(key, val string) []byte {
	var b []byte
	b = append(b, opAux)
	b = append(b, encodeSizeString(key)...)
	b = append(b, encodeSizeString(val)...)
	return b
}

func encodeSizeString(s string) []byte {
	out := make([]byte, 0, 1+len(s))
	out = append(out, encode6BitSize(len(s)))
	out = append(out, s...)
	return out
}

func encode6BitSize(n int) byte {
	return byte(n & 0x3F)
}
