package model

import (
	"encoding/json"
	"testing"
	"time"
)

func TestLocation_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantLabel string
		wantLat   *float64
		wantErr   bool
	}{
		{"纯文本", `"  Gate A "`, "Gate A", nil, false},
		{"null", `null`, "", nil, false},
		{"标准对象", `{"label":"HQ","latitude":31.2,"longitude":121.5}`, "HQ", ptrFloat(31.2), false},
		{"别名字段", `{"name":"Lab","lat":1.5,"lng":2.5}`, "Lab", ptrFloat(1.5), false},
		{"数字非法", `42`, "", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var loc Location
			err := json.Unmarshal([]byte(tt.input), &loc)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Unmarshal error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if loc.Label != tt.wantLabel {
				t.Errorf("期望 label=%q，实际=%q", tt.wantLabel, loc.Label)
			}
			if (tt.wantLat == nil) != (loc.Latitude == nil) {
				t.Fatalf("纬度存在性不一致: %v", loc.Latitude)
			}
			if tt.wantLat != nil && *loc.Latitude != *tt.wantLat {
				t.Errorf("期望纬度=%v，实际=%v", *tt.wantLat, *loc.Latitude)
			}
		})
	}
}

func TestLocation_RoundTrip(t *testing.T) {
	in := Location{Label: "Gate B", Latitude: ptrFloat(10), Longitude: ptrFloat(20)}
	b, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("Marshal 失败: %v", err)
	}
	var out Location
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("Unmarshal 失败: %v", err)
	}
	if out.Label != "Gate B" || out.Longitude == nil || *out.Longitude != 20 {
		t.Errorf("往返后内容不一致: %+v", out)
	}
}

func TestLocation_Valid(t *testing.T) {
	if !(Location{Label: "x"}).Valid() {
		t.Error("仅有标签的位置应合法")
	}
	if (Location{Latitude: ptrFloat(1)}).Valid() {
		t.Error("只有纬度没有经度应不合法")
	}
	if (Location{Latitude: ptrFloat(91), Longitude: ptrFloat(0)}).Valid() {
		t.Error("纬度越界应不合法")
	}
}

func TestPerson_WorksOn(t *testing.T) {
	p := Person{WorkDays: IntArray{1, 2, 3, 4, 5}}
	if !p.WorksOn(time.Monday) {
		t.Error("周一应为工作日")
	}
	if p.WorksOn(time.Sunday) {
		t.Error("周日不应为工作日")
	}

	p.WorkDays = IntArray{7}
	if !p.WorksOn(time.Sunday) {
		t.Error("ISO 7 应对应周日")
	}
}

func TestIntArray_ScanValue(t *testing.T) {
	v, err := IntArray{1, 3, 5}.Value()
	if err != nil {
		t.Fatalf("Value 失败: %v", err)
	}
	if v != "{1,3,5}" {
		t.Errorf("期望 {1,3,5}，实际 %v", v)
	}

	var a IntArray
	if err := a.Scan([]byte("{2, 4}")); err != nil {
		t.Fatalf("Scan 失败: %v", err)
	}
	if len(a) != 2 || a[1] != 4 {
		t.Errorf("解析结果错误: %v", a)
	}
}

func TestShiftRecord_Effective(t *testing.T) {
	in := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	out := in.Add(8 * time.Hour)
	r := ShiftRecord{
		CurrentState:      ShiftStateCheckedOut,
		CheckIn:           Capture{At: &in},
		CheckOut:          Capture{At: &out},
		ActualWorkMinutes: 480,
		IsLate:            true,
		LateMinutes:       20,
	}

	view := r.Effective()
	if view.ActualWorkMinutes != 480 {
		t.Error("无更正时视图应与原记录一致")
	}

	corrected := in.Add(-20 * time.Minute)
	r.Edits = []ShiftEdit{
		{Seq: 2, CheckInAt: corrected, CheckOutAt: out, ActualWorkMinutes: 500},
		{Seq: 1, CheckInAt: in, CheckOutAt: out, ActualWorkMinutes: 470},
	}
	view = r.Effective()
	if view.ActualWorkMinutes != 500 || view.IsLate {
		t.Errorf("应叠加最新一次更正: %+v", view)
	}
	if !view.CheckIn.At.Equal(corrected) {
		t.Errorf("签到时间应为更正值，实际 %v", view.CheckIn.At)
	}
	if !r.CheckIn.At.Equal(in) || !r.IsLate {
		t.Error("原记录不应被修改")
	}
}

func TestShiftRecord_OpenBreak(t *testing.T) {
	start := time.Now()
	end := start.Add(10 * time.Minute)
	r := ShiftRecord{Breaks: []ShiftBreak{
		{Seq: 1, StartAt: start, EndAt: &end, DurationMinutes: 10},
		{Seq: 2, StartAt: end},
	}}
	if ob := r.OpenBreak(); ob == nil || ob.Seq != 2 {
		t.Errorf("应返回第 2 段休息，实际 %+v", ob)
	}
	if r.SumBreakMinutes() != 10 {
		t.Errorf("只应统计已结束的休息段，实际 %d", r.SumBreakMinutes())
	}
}

func ptrFloat(f float64) *float64 { return &f }
