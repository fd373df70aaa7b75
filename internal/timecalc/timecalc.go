// Package timecalc 考勤时间计算：迟到、早退、加班、实际工时。
// 全部为纯函数，分钟数一律向下取整。
package timecalc

import (
	"errors"
	"fmt"
	"time"
)

// DefaultGraceMinutes 默认迟到宽限（分钟）
const DefaultGraceMinutes = 15

// ErrInvalidClock 时刻格式不是 HH:MM
var ErrInvalidClock = errors.New("时刻格式必须为 HH:MM")

// IsLate 签到严格晚于「计划上班时间 + 宽限」时视为迟到
func IsLate(checkIn, scheduledStart time.Time, graceMinutes int) bool {
	return checkIn.After(scheduledStart.Add(time.Duration(graceMinutes) * time.Minute))
}

// LateMinutes 迟到分钟数，从计划上班时间起算（而非宽限结束）；未迟到返回 0
func LateMinutes(checkIn, scheduledStart time.Time, graceMinutes int) int {
	if !IsLate(checkIn, scheduledStart, graceMinutes) {
		return 0
	}
	return floorMinutes(checkIn.Sub(scheduledStart))
}

// WorkMinutes 实际工时 = max(0, 签到至签退分钟数 − 休息分钟数)
func WorkMinutes(checkIn, checkOut time.Time, breakMinutes int) int {
	elapsed := floorMinutes(checkOut.Sub(checkIn))
	if elapsed-breakMinutes < 0 {
		return 0
	}
	return elapsed - breakMinutes
}

// EarlyOutOrOvertime 签退早于计划下班为早退，晚于为加班；二者至多一个非零
func EarlyOutOrOvertime(checkOut, scheduledEnd time.Time) (earlyOut, overtime int) {
	switch {
	case checkOut.Before(scheduledEnd):
		return floorMinutes(scheduledEnd.Sub(checkOut)), 0
	case checkOut.After(scheduledEnd):
		return 0, floorMinutes(checkOut.Sub(scheduledEnd))
	}
	return 0, 0
}

// BreakMinutes 单段休息时长
func BreakMinutes(start, end time.Time) int {
	return floorMinutes(end.Sub(start))
}

// ParseClock 解析 HH:MM
func ParseClock(hhmm string) (hour, minute int, err error) {
	if _, err := fmt.Sscanf(hhmm, "%d:%d", &hour, &minute); err != nil || len(hhmm) != 5 {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidClock, hhmm)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidClock, hhmm)
	}
	return hour, minute, nil
}

// ClockOn 把 day 所在的日历日与 HH:MM 组合为 loc 时区下的时刻
// day 只取年月日（按 day 自身的时区读取）
func ClockOn(day time.Time, hhmm string, loc *time.Location) (time.Time, error) {
	h, m, err := ParseClock(hhmm)
	if err != nil {
		return time.Time{}, err
	}
	y, mo, d := day.Date()
	return time.Date(y, mo, d, h, m, 0, 0, loc), nil
}

// CalendarDate t 在 loc 时区下的日历日，以 UTC 零点表示，便于存入 date 列
func CalendarDate(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// SameCalendarDay 两个时刻在 loc 时区下是否同一天
func SameCalendarDay(a, b time.Time, loc *time.Location) bool {
	return CalendarDate(a, loc).Equal(CalendarDate(b, loc))
}

// ScheduledEnd 计划下班时间
// 通常锚定在班次日期；签退与签到不在同一日历日时锚定在签退当天
func ScheduledEnd(shiftDate, checkIn, checkOut time.Time, endHHMM string, loc *time.Location) (time.Time, error) {
	anchor := shiftDate
	if !SameCalendarDay(checkIn, checkOut, loc) {
		anchor = CalendarDate(checkOut, loc)
	}
	return ClockOn(anchor, endHHMM, loc)
}

func floorMinutes(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(d / time.Minute)
}
