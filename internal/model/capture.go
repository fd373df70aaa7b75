package model

import (
	"bytes"
	"errors"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// 打卡方式
const (
	CaptureMethodScan   = "scan"
	CaptureMethodPhoto  = "photo"
	CaptureMethodManual = "manual"
)

// ValidCaptureMethod 是否为受支持的打卡方式
func ValidCaptureMethod(m string) bool {
	switch m {
	case CaptureMethodScan, CaptureMethodPhoto, CaptureMethodManual:
		return true
	}
	return false
}

// Location 打卡位置
// 客户端既可能上报纯文本（"Gate A"），也可能上报带坐标的对象，入库前统一为本结构
type Location struct {
	Label     string   `json:"label,omitempty"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
	Accuracy  *float64 `json:"accuracy_m,omitempty"`
}

// locationWire 兼容常见的字段别名
type locationWire struct {
	Label     string   `json:"label"`
	Name      string   `json:"name"`
	Address   string   `json:"address"`
	Latitude  *float64 `json:"latitude"`
	Lat       *float64 `json:"lat"`
	Longitude *float64 `json:"longitude"`
	Lng       *float64 `json:"lng"`
	Lon       *float64 `json:"lon"`
	Accuracy  *float64 `json:"accuracy_m"`
	Acc       *float64 `json:"accuracy"`
}

var errInvalidLocation = errors.New("location 必须是字符串或对象")

// UnmarshalJSON 接受字符串、对象或 null
func (l *Location) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*l = Location{}
		return nil
	}

	switch b[0] {
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*l = Location{Label: strings.TrimSpace(s)}
		return nil
	case '{':
		var w locationWire
		if err := json.Unmarshal(b, &w); err != nil {
			return err
		}
		*l = Location{
			Label:     strings.TrimSpace(firstNonEmpty(w.Label, w.Name, w.Address)),
			Latitude:  firstFloat(w.Latitude, w.Lat),
			Longitude: firstFloat(w.Longitude, w.Lng, w.Lon),
			Accuracy:  firstFloat(w.Accuracy, w.Acc),
		}
		return nil
	}
	return errInvalidLocation
}

// IsZero 未上报位置
func (l Location) IsZero() bool {
	return l.Label == "" && l.Latitude == nil && l.Longitude == nil
}

// Valid 坐标必须成对出现且在合法范围内
func (l Location) Valid() bool {
	if (l.Latitude == nil) != (l.Longitude == nil) {
		return false
	}
	if l.Latitude != nil && (*l.Latitude < -90 || *l.Latitude > 90) {
		return false
	}
	if l.Longitude != nil && (*l.Longitude < -180 || *l.Longitude > 180) {
		return false
	}
	return true
}

// Verification 打卡校验信息（二维码、照片、人工确认等）
type Verification struct {
	Kind      string   `json:"kind"` // qr | photo | pin | supervisor
	Reference string   `json:"reference,omitempty"`
	Score     *float64 `json:"score,omitempty"`
	Verified  bool     `json:"verified"`
}

// Capture 一次打卡的采集信息
// 以 check_in_ / check_out_ 前缀嵌入 ShiftRecord
type Capture struct {
	At           *time.Time    `json:"at,omitempty"`
	Location     Location      `gorm:"type:jsonb;serializer:json"  json:"location"`
	DeviceID     string        `gorm:"type:varchar(128)"           json:"device_id,omitempty"`
	Method       string        `gorm:"type:varchar(20)"            json:"method,omitempty"`
	Verification *Verification `gorm:"type:jsonb;serializer:json"  json:"verification,omitempty"`
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func firstFloat(vals ...*float64) *float64 {
	for _, v := range vals {
		if v != nil {
			return v
		}
	}
	return nil
}
