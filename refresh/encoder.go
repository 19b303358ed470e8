package refresh

import (
	"encoding/binary"
	"errors"

	"github.com/google/uuid"
)

// CurrentSchemaVersion is the encoding version written by Encode.
const CurrentSchemaVersion = 1

// Fixed-offset layout. The flag byte, the timestamps, and the jti sit at
// constant positions so the store's Lua scripts can test and flip them
// without variable-length parsing:
//
//	[0]     schema version
//	[1]     flags (bit0 Used, bit1 Revoked, bit2 Active)
//	[2:10]  CreatedAt, big-endian
//	[10:18] UpdatedAt, big-endian
//	[18:26] ExpiresAt, big-endian
//	[26:42] JTI, raw uuid bytes
//	[42]    len(ID), followed by ID
//	[..]    len(OwnerID), followed by OwnerID
const (
	flagUsed    = 0x01
	flagRevoked = 0x02
	flagActive  = 0x04

	offsetFlags     = 1
	offsetCreatedAt = 2
	offsetUpdatedAt = 10
	offsetExpiresAt = 18
	offsetJTI       = 26
	offsetID        = 42

	jtiSize = 16
)

var (
	ErrEncodeTooLarge = errors.New("record field exceeds encodable size")
	ErrDecodeCorrupt  = errors.New("corrupt record encoding")
	ErrInvalidJTI     = errors.New("jti is not a valid uuid")
)

// Encode serializes a Record into the fixed-offset binary form.
func Encode(rec *Record) ([]byte, error) {
	if rec == nil {
		return nil, ErrDecodeCorrupt
	}
	if len(rec.ID) > 255 || len(rec.OwnerID) > 255 {
		return nil, ErrEncodeTooLarge
	}
	jti, err := uuid.Parse(rec.JTI)
	if err != nil {
		return nil, ErrInvalidJTI
	}

	buf := make([]byte, 0, offsetID+2+len(rec.ID)+len(rec.OwnerID))
	buf = append(buf, CurrentSchemaVersion)
	buf = append(buf, encodeFlags(rec))

	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(rec.CreatedAt))
	buf = append(buf, ts[:]...)
	binary.BigEndian.PutUint64(ts[:], uint64(rec.UpdatedAt))
	buf = append(buf, ts[:]...)
	binary.BigEndian.PutUint64(ts[:], uint64(rec.ExpiresAt))
	buf = append(buf, ts[:]...)

	buf = append(buf, jti[:]...)

	buf = append(buf, byte(len(rec.ID)))
	buf = append(buf, rec.ID...)
	buf = append(buf, byte(len(rec.OwnerID)))
	buf = append(buf, rec.OwnerID...)

	return buf, nil
}

// Decode parses a blob produced by Encode.
func Decode(data []byte) (*Record, error) {
	if len(data) < offsetID+1 {
		return nil, ErrDecodeCorrupt
	}
	if data[0] != CurrentSchemaVersion {
		return nil, ErrDecodeCorrupt
	}

	flags := data[offsetFlags]
	rec := &Record{
		Used:      flags&flagUsed != 0,
		Revoked:   flags&flagRevoked != 0,
		Active:    flags&flagActive != 0,
		CreatedAt: int64(binary.BigEndian.Uint64(data[offsetCreatedAt:])),
		UpdatedAt: int64(binary.BigEndian.Uint64(data[offsetUpdatedAt:])),
		ExpiresAt: int64(binary.BigEndian.Uint64(data[offsetExpiresAt:])),
	}

	var jti uuid.UUID
	copy(jti[:], data[offsetJTI:offsetJTI+jtiSize])
	rec.JTI = jti.String()

	idx := offsetID
	idLen := int(data[idx])
	idx++
	if len(data) < idx+idLen+1 {
		return nil, ErrDecodeCorrupt
	}
	rec.ID = string(data[idx : idx+idLen])
	idx += idLen

	ownerLen := int(data[idx])
	idx++
	if len(data) < idx+ownerLen {
		return nil, ErrDecodeCorrupt
	}
	rec.OwnerID = string(data[idx : idx+ownerLen])

	return rec, nil
}

func encodeFlags(rec *Record) byte {
	var flags byte
	if rec.Used {
		flags |= flagUsed
	}
	if rec.Revoked {
		flags |= flagRevoked
	}
	if rec.Active {
		flags |= flagActive
	}
	return flags
}
