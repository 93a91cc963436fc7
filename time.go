package quorum

import (
	"encoding/json"
	"time"

	"github.com/iov-one/quorum/errors"
)

// UnixTime is a second precision POSIX timestamp. Pending actions record
// their creation moment with it, so that the stored value does not depend on
// the monotonic clock reading or the location of time.Time.
type UnixTime int64

// Time converts back to a time.Time in the local location.
func (t UnixTime) Time() time.Time {
	return time.Unix(int64(t), 0)
}

// IsZero reports whether the timestamp was never set.
func (t UnixTime) IsZero() bool {
	return t == 0
}

// Add returns the timestamp moved by d. Sub-second parts of d are dropped.
func (t UnixTime) Add(d time.Duration) UnixTime {
	return t + UnixTime(d/time.Second)
}

// AsUnixTime truncates t to whole seconds.
func AsUnixTime(t time.Time) UnixTime {
	return UnixTime(t.Unix())
}

// UnmarshalJSON accepts either a number of seconds or an RFC 3339 string,
// so that hand written registry files may use a readable date.
func (t *UnixTime) UnmarshalJSON(raw []byte) error {
	var unix int64
	if err := json.Unmarshal(raw, &unix); err == nil {
		if unix < 0 {
			return errors.Wrap(errors.ErrInvalidInput, "time before epoch")
		}
		*t = UnixTime(unix)
		return nil
	}

	var stdtime time.Time
	if err := json.Unmarshal(raw, &stdtime); err == nil {
		unix := UnixTime(stdtime.Unix())
		if unix < 0 {
			return errors.Wrap(errors.ErrInvalidInput, "time before epoch")
		}
		*t = unix
		return nil
	}

	return errors.Wrap(errors.ErrInvalidInput, "invalid time format")
}

// Validate rejects timestamps before the epoch.
func (t UnixTime) Validate() error {
	if t < 0 {
		return errors.Wrap(errors.ErrInvalidState, "negative value")
	}
	return nil
}

// String formats the timestamp in UTC.
func (t UnixTime) String() string {
	return t.Time().UTC().String()
}
