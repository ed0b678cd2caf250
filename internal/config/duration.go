package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Duration is a poll_interval read from TOML as either a bare integer
// (seconds, the legacy form generated by earlier daemon versions) or a
// "<number><unit>" string with unit ms/s/m, the form new generated configs
// prefer. UnmarshalText handles only the string form; a bare TOML integer
// reaches Duration through fromTOMLValue.
type Duration time.Duration

func (d Duration) AsDuration() time.Duration { return time.Duration(d) }

// UnmarshalText implements the interface go-toml/v2 uses for scalar
// values that aren't one of its built-in Go types.
func (d *Duration) UnmarshalText(text []byte) error {
	s := strings.TrimSpace(string(text))
	if s == "" {
		return fmt.Errorf("config: empty duration")
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		*d = Duration(time.Duration(n) * time.Second)
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("config: invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// fromTOMLValue converts a poll_interval value already decoded by
// go-toml/v2 into a plain Go scalar (int64 for a bare TOML integer,
// string for a quoted TOML string) into a Duration. go-toml/v2 only
// consults encoding.TextUnmarshaler for TOML string values, never for
// integers, so the bare-integer form cannot be supported by an
// UnmarshalText/UnmarshalTOML hook on the field itself: the caller must
// decode poll_interval into an interface{} first and convert it through
// this function by hand.
func fromTOMLValue(value interface{}) (Duration, error) {
	switch v := value.(type) {
	case int64:
		return Duration(time.Duration(v) * time.Second), nil
	case string:
		var d Duration
		if err := d.UnmarshalText([]byte(v)); err != nil {
			return 0, err
		}
		return d, nil
	case nil:
		return 0, nil
	default:
		return 0, fmt.Errorf("config: unsupported poll_interval type %T", value)
	}
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}
