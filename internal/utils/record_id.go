// SPDX-License-Identifier: Apache-2.0

package utils

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Record ids sort lexicographically newest-first: the prefix is a
// zero-padded reverse epoch-millisecond timestamp, so ascending id order is
// descending creation order and listing needs no secondary index.
const (
	// reverseEpochCeiling is the millisecond timestamp subtracted from to
	// build the reverse prefix. 13 decimal digits covers dates well past
	// the year 2200.
	reverseEpochCeiling int64 = 9_999_999_999_999

	reversePrefixLen = 13
	idSeparator      = "-"
)

var ErrMalformedRecordID = errors.New("malformed record id")

// NewRecordID builds a fresh record id for the given creation time:
// a 13-digit reverse timestamp, a separator, and a random suffix. The
// random suffix makes collisions between records created in the same
// millisecond vanishingly unlikely.
func NewRecordID(createdAt time.Time) string {
	reverse := reverseEpochCeiling - createdAt.UnixMilli()
	if reverse < 0 {
		reverse = 0
	}

	prefix := strconv.FormatInt(reverse, 10)
	if pad := reversePrefixLen - len(prefix); pad > 0 {
		prefix = strings.Repeat("0", pad) + prefix
	}

	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return prefix + idSeparator + suffix
}

// TimeFromRecordID recovers the creation time encoded in a record id.
// Returns ErrMalformedRecordID when the prefix is missing or not numeric;
// ingestion uses this as a timestamp fallback and must be able to tell
// "unparseable id" apart from a zero time.
func TimeFromRecordID(id string) (time.Time, error) {
	prefix, _, ok := strings.Cut(id, idSeparator)
	if !ok || len(prefix) != reversePrefixLen {
		return time.Time{}, ErrMalformedRecordID
	}

	reverse, err := strconv.ParseInt(prefix, 10, 64)
	if err != nil || reverse < 0 || reverse > reverseEpochCeiling {
		return time.Time{}, ErrMalformedRecordID
	}

	return time.UnixMilli(reverseEpochCeiling - reverse), nil
}
