package events

import (
	"encoding/json"
	"math/bits"
	"strconv"
	"strings"
)

// Days is a set of day-of-month numbers (1-31) carrying a marker. It is a
// value type: copies handed to a display cell never alias cache storage.
type Days uint32

// NewDays builds a set; numbers outside 1..31 are dropped.
func NewDays(days ...int) Days {
	var s Days
	for _, d := range days {
		s = s.With(d)
	}
	return s
}

// With returns s plus day.
func (s Days) With(day int) Days {
	if day < 1 || day > 31 {
		return s
	}
	return s | 1<<uint(day-1)
}

func (s Days) Contains(day int) bool {
	if day < 1 || day > 31 {
		return false
	}
	return s&(1<<uint(day-1)) != 0
}

func (s Days) Union(o Days) Days { return s | o }

func (s Days) Len() int { return bits.OnesCount32(uint32(s)) }

func (s Days) Empty() bool { return s == 0 }

// Slice lists the days in ascending order.
func (s Days) Slice() []int {
	out := make([]int, 0, s.Len())
	for d := 1; d <= 31; d++ {
		if s.Contains(d) {
			out = append(out, d)
		}
	}
	return out
}

func (s Days) String() string {
	parts := make([]string, 0, s.Len())
	for _, d := range s.Slice() {
		parts = append(parts, strconv.Itoa(d))
	}
	return "{" + strings.Join(parts, ",") + "}"
}

func (s Days) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Slice())
}

func (s *Days) UnmarshalJSON(b []byte) error {
	var days []int
	if err := json.Unmarshal(b, &days); err != nil {
		return err
	}
	*s = NewDays(days...)
	return nil
}
