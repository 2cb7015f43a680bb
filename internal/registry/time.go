package registry

import (
	"encoding/json"
	"time"
)

// Time is a lenient RFC 3339 timestamp for registry records. Decoding never
// fails: anything that does not parse becomes the zero time, so one bad
// field cannot turn a whole registry read into an empty map. The zero time
// sorts before every valid timestamp.
type Time struct {
	time.Time
}

// Now returns the current time in UTC.
func Now() Time {
	return Time{time.Now().UTC()}
}

func (t Time) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return json.Marshal("")
	}
	return json.Marshal(t.Format(time.RFC3339))
}

func (t *Time) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		t.Time = time.Time{}
		return nil
	}
	parsed, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t.Time = time.Time{}
		return nil
	}
	t.Time = parsed
	return nil
}
