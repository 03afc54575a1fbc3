package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSession_Overlaps(t *testing.T) {
	day := func(n int) time.Time { return time.Date(2026, 1, n, 0, 0, 0, 0, time.UTC) }

	cases := []struct {
		name        string
		mappedAt    time.Time
		unmappedAt  *time.Time
		windowStart time.Time
		windowEnd   time.Time
		want        bool
	}{
		{
			name:        "still active, mapped before window",
			mappedAt:    day(1),
			unmappedAt:  nil,
			windowStart: day(5),
			windowEnd:   day(10),
			want:        true,
		},
		{
			name:        "mapped after window ends",
			mappedAt:    day(11),
			unmappedAt:  nil,
			windowStart: day(5),
			windowEnd:   day(10),
			want:        false,
		},
		{
			name:        "closed before window starts",
			mappedAt:    day(1),
			unmappedAt:  timePtr(day(4)),
			windowStart: day(5),
			windowEnd:   day(10),
			want:        false,
		},
		{
			name:        "closed inside window",
			mappedAt:    day(1),
			unmappedAt:  timePtr(day(6)),
			windowStart: day(5),
			windowEnd:   day(10),
			want:        true,
		},
		{
			name:        "closed exactly at window start",
			mappedAt:    day(1),
			unmappedAt:  timePtr(day(5)),
			windowStart: day(5),
			windowEnd:   day(10),
			want:        true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := Session{MappedAt: tc.mappedAt, UnmappedAt: tc.unmappedAt}
			assert.Equal(t, tc.want, s.Overlaps(tc.windowStart, tc.windowEnd))
		})
	}
}

func timePtr(t time.Time) *time.Time { return &t }
