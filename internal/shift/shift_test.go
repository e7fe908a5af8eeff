package shift

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var saoPaulo = time.FixedZone("BRT", -3*60*60)

func at(hour, minute int) time.Time {
	return time.Date(2024, time.May, 20, hour, minute, 0, 0, saoPaulo)
}

func ptr(t time.Time) *time.Time { return &t }

func TestParseTimeOfDay(t *testing.T) {
	tests := []struct {
		raw     string
		want    TimeOfDay
		wantErr bool
	}{
		{raw: "08:30", want: TimeOfDay{Hour: 8, Minute: 30}},
		{raw: "8:05", want: TimeOfDay{Hour: 8, Minute: 5}},
		{raw: " 23:59 ", want: TimeOfDay{Hour: 23, Minute: 59}},
		{raw: "00:00", want: TimeOfDay{}},
		{raw: "24:00", wantErr: true},
		{raw: "12:60", wantErr: true},
		{raw: "ab:cd", wantErr: true},
		{raw: "1230", wantErr: true},
		{raw: "-1:30", wantErr: true},
		{raw: "+1:30", wantErr: true},
		{raw: "", wantErr: true},
		{raw: "12:3", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.raw, func(t *testing.T) {
			got, err := ParseTimeOfDay(tc.raw)
			if tc.wantErr {
				require.ErrorIs(t, err, ErrInvalidTimeOfDay)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestTimeOfDayOnAndString(t *testing.T) {
	tod := TimeOfDay{Hour: 7, Minute: 3}
	assert.Equal(t, "07:03", tod.String())

	placed := tod.On(time.Date(2024, time.May, 20, 18, 44, 59, 0, saoPaulo))
	assert.Equal(t, time.Date(2024, time.May, 20, 7, 3, 0, 0, saoPaulo), placed)
}

func TestResolve(t *testing.T) {
	now := at(12, 0)

	t.Run("no schedule", func(t *testing.T) {
		iv := Resolve(Schedule{}, now)
		assert.False(t, iv.HasStart())
		assert.False(t, iv.HasEnd())
	})

	t.Run("full instants are used verbatim", func(t *testing.T) {
		start := time.Date(2024, time.May, 19, 23, 0, 0, 0, time.UTC)
		end := start.Add(DefaultDuration)
		iv := Resolve(Schedule{StartTime: "01:00", EndTime: "02:00", StartAt: &start, EndAt: &end}, now)
		assert.True(t, iv.Start.Equal(start))
		assert.True(t, iv.End.Equal(end))
		assert.Equal(t, saoPaulo, iv.Start.Location())
	})

	t.Run("start only", func(t *testing.T) {
		iv := Resolve(Schedule{StartTime: "09:15"}, now)
		assert.Equal(t, at(9, 15), iv.Start)
		assert.False(t, iv.HasEnd())
	})

	t.Run("start instant without end instant falls back to time of day", func(t *testing.T) {
		iv := Resolve(Schedule{StartTime: "09:15", EndTime: "10:30", StartAt: ptr(at(1, 0))}, now)
		assert.Equal(t, at(9, 15), iv.Start)
		assert.Equal(t, at(10, 30), iv.End)
	})

	t.Run("end before start rolls over", func(t *testing.T) {
		iv := Resolve(Schedule{StartTime: "23:50", EndTime: "00:20"}, now)
		require.True(t, iv.HasEnd())
		assert.Equal(t, at(23, 50), iv.Start)
		assert.Equal(t, time.Date(2024, time.May, 21, 0, 20, 0, 0, saoPaulo), iv.End)
		assert.True(t, iv.End.After(iv.Start))
	})

	t.Run("end equal to start rolls over", func(t *testing.T) {
		iv := Resolve(Schedule{StartTime: "10:00", EndTime: "10:00"}, now)
		assert.Equal(t, at(10, 0).AddDate(0, 0, 1), iv.End)
	})

	t.Run("corrupt start resolves as absent", func(t *testing.T) {
		iv := Resolve(Schedule{StartTime: "xx", EndTime: "10:00"}, now)
		assert.False(t, iv.HasStart())
	})

	t.Run("corrupt end resolves as open", func(t *testing.T) {
		iv := Resolve(Schedule{StartTime: "10:00", EndTime: "99:99"}, now)
		assert.True(t, iv.HasStart())
		assert.False(t, iv.HasEnd())
	})
}

func TestClassify(t *testing.T) {
	start := at(10, 0)
	end := start.Add(DefaultDuration)

	tests := []struct {
		name string
		now  time.Time
		iv   Interval
		want Status
	}{
		{name: "no start", now: start, iv: Interval{}, want: StatusPending},
		{name: "no start but end", now: start, iv: Interval{End: end}, want: StatusPending},
		{name: "before start", now: start.Add(-time.Second), iv: Interval{Start: start, End: end}, want: StatusPending},
		{name: "at start", now: start, iv: Interval{Start: start, End: end}, want: StatusActive},
		{name: "open ended", now: start.Add(48 * time.Hour), iv: Interval{Start: start}, want: StatusActive},
		{name: "open ended before start", now: start.Add(-time.Minute), iv: Interval{Start: start}, want: StatusPending},
		{name: "just before end", now: end.Add(-time.Second), iv: Interval{Start: start, End: end}, want: StatusActive},
		{name: "at end", now: end, iv: Interval{Start: start, End: end}, want: StatusDone},
		{name: "after end", now: end.Add(time.Hour), iv: Interval{Start: start, End: end}, want: StatusDone},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(tc.now, tc.iv))
		})
	}
}

func TestClassifyIsTotalAndDeterministic(t *testing.T) {
	start := at(10, 0)
	intervals := []Interval{
		{},
		{Start: start},
		{Start: start, End: start.Add(DefaultDuration)},
		{Start: start, End: start},
	}

	for offset := -90; offset <= 180; offset += 5 {
		now := start.Add(time.Duration(offset) * time.Minute)
		for _, iv := range intervals {
			first := Classify(now, iv)
			require.True(t, first.Valid())
			require.Equal(t, first, Classify(now, iv))
		}
	}
}

func TestShiftScenario(t *testing.T) {
	start := at(14, 0)
	iv := Window(start)

	assert.Equal(t, StatusActive, Classify(start.Add(10*time.Minute), iv))
	assert.Equal(t, StatusDone, Classify(start.Add(76*time.Minute), iv))
}

func TestParseStatus(t *testing.T) {
	for raw, want := range map[string]Status{
		"pending": StatusPending,
		"ACTIVE":  StatusActive,
		"done":    StatusDone,
		"🔴":       StatusPending,
		"🟡":       StatusActive,
		"🟢":       StatusDone,
	} {
		got, err := ParseStatus(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}

	_, err := ParseStatus("blue")
	require.Error(t, err)
}
