package timecalc

import (
	"errors"
	"testing"
	"time"
)

func at(hh, mm int) time.Time {
	return time.Date(2024, 3, 4, hh, mm, 0, 0, time.UTC)
}

func TestIsLateAndLateMinutes(t *testing.T) {
	start := at(8, 0)

	tests := []struct {
		name     string
		checkIn  time.Time
		wantLate bool
		wantMins int
	}{
		{"宽限内", at(8, 10), false, 0},
		{"恰好宽限边界", at(8, 15), false, 0},
		{"超出宽限从计划时间起算", at(8, 20), true, 20},
		{"提前到达", at(7, 45), false, 0},
		{"不足一分钟向下取整", at(8, 16).Add(59 * time.Second), true, 16},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsLate(tt.checkIn, start, DefaultGraceMinutes); got != tt.wantLate {
				t.Errorf("IsLate() = %v, want %v", got, tt.wantLate)
			}
			if got := LateMinutes(tt.checkIn, start, DefaultGraceMinutes); got != tt.wantMins {
				t.Errorf("LateMinutes() = %d, want %d", got, tt.wantMins)
			}
		})
	}
}

func TestWorkMinutes_NeverNegative(t *testing.T) {
	if got := WorkMinutes(at(9, 0), at(17, 0), 60); got != 420 {
		t.Errorf("期望 420，实际 %d", got)
	}
	if got := WorkMinutes(at(9, 0), at(9, 30), 45); got != 0 {
		t.Errorf("休息超过在岗时长时应为 0，实际 %d", got)
	}
	if got := WorkMinutes(at(9, 0), at(8, 0), 0); got != 0 {
		t.Errorf("时间倒挂时应为 0，实际 %d", got)
	}
}

func TestEarlyOutOrOvertime(t *testing.T) {
	end := at(17, 0)

	early, over := EarlyOutOrOvertime(at(16, 30), end)
	if early != 30 || over != 0 {
		t.Errorf("早退 30 分钟，实际 early=%d over=%d", early, over)
	}
	early, over = EarlyOutOrOvertime(at(18, 5), end)
	if early != 0 || over != 65 {
		t.Errorf("加班 65 分钟，实际 early=%d over=%d", early, over)
	}
	early, over = EarlyOutOrOvertime(end, end)
	if early != 0 || over != 0 {
		t.Errorf("准点下班两者均为 0，实际 early=%d over=%d", early, over)
	}
}

func TestParseClock(t *testing.T) {
	if h, m, err := ParseClock("08:30"); err != nil || h != 8 || m != 30 {
		t.Errorf("ParseClock(08:30) = %d,%d,%v", h, m, err)
	}
	for _, bad := range []string{"8:30", "24:00", "12:60", "ab:cd", ""} {
		if _, _, err := ParseClock(bad); !errors.Is(err, ErrInvalidClock) {
			t.Errorf("ParseClock(%q) 应返回 ErrInvalidClock，实际 %v", bad, err)
		}
	}
}

func TestCalendarDate_UsesLocation(t *testing.T) {
	shanghai := time.FixedZone("CST", 8*3600)
	// UTC 3 月 4 日 20:00 已是上海 3 月 5 日
	instant := time.Date(2024, 3, 4, 20, 0, 0, 0, time.UTC)

	got := CalendarDate(instant, shanghai)
	want := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("期望 %v，实际 %v", want, got)
	}
}

func TestScheduledEnd_SameDay(t *testing.T) {
	shiftDate := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)

	end, err := ScheduledEnd(shiftDate, at(9, 0), at(16, 0), "17:00", time.UTC)
	if err != nil {
		t.Fatalf("ScheduledEnd 失败: %v", err)
	}
	if !end.Equal(at(17, 0)) {
		t.Errorf("同日签退应锚定班次日期，实际 %v", end)
	}
}

func TestScheduledEnd_CrossMidnightAnchorsToCheckOutDay(t *testing.T) {
	shiftDate := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	checkIn := time.Date(2024, 3, 4, 22, 0, 0, 0, time.UTC)
	checkOut := time.Date(2024, 3, 5, 6, 0, 0, 0, time.UTC)

	end, err := ScheduledEnd(shiftDate, checkIn, checkOut, "07:00", time.UTC)
	if err != nil {
		t.Fatalf("ScheduledEnd 失败: %v", err)
	}
	want := time.Date(2024, 3, 5, 7, 0, 0, 0, time.UTC)
	if !end.Equal(want) {
		t.Errorf("跨午夜应锚定签退当天，期望 %v，实际 %v", want, end)
	}

	early, over := EarlyOutOrOvertime(checkOut, end)
	if early != 60 || over != 0 {
		t.Errorf("06:00 签退、07:00 下班应早退 60 分钟，实际 early=%d over=%d", early, over)
	}
	if got := WorkMinutes(checkIn, checkOut, 0); got != 480 {
		t.Errorf("跨午夜工时应为 480，实际 %d", got)
	}
}

func TestScheduledEnd_CrossMidnightDayShiftEnd(t *testing.T) {
	// 日班 17:00 下班但次日 01:00 才签退：锚定签退当天 17:00，产生大额早退
	shiftDate := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	checkIn := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	checkOut := time.Date(2024, 3, 5, 1, 0, 0, 0, time.UTC)

	end, err := ScheduledEnd(shiftDate, checkIn, checkOut, "17:00", time.UTC)
	if err != nil {
		t.Fatalf("ScheduledEnd 失败: %v", err)
	}
	early, over := EarlyOutOrOvertime(checkOut, end)
	if early != 16*60 || over != 0 {
		t.Errorf("期望早退 960 分钟，实际 early=%d over=%d", early, over)
	}
}
