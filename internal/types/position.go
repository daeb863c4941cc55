package types

import (
	"time"
)

const ProtocolGT06 = "gt06"

// CellInfo is the serving cell reported by LBS-carrying messages.
type CellInfo struct {
	MCC    uint16 `json:"mcc" bson:"mcc"` // mobile country code
	MNC    uint8  `json:"mnc" bson:"mnc"` // mobile network code
	LAC    uint16 `json:"lac" bson:"lac"` // location area code
	CellID uint32 `json:"cellId" bson:"cellId"`
}

// Position is one decoded GPS-family message.
//
// Latitude and Longitude are trusted as sent by the device and are not range checked. Course is the raw
// 10-bit field and may exceed 359.
type Position struct {
	DeviceID    string    `json:"deviceId,omitempty" bson:"deviceId,omitempty"`
	Protocol    string    `json:"protocol" bson:"protocol"`
	MessageType string    `json:"messageType" bson:"messageType"`
	Index       uint16    `json:"index" bson:"index"`
	Timestamp   time.Time `json:"timestamp" bson:"timestamp"`
	Latitude    float64   `json:"latitude" bson:"latitude"`
	Longitude   float64   `json:"longitude" bson:"longitude"`
	Altitude    float64   `json:"altitude" bson:"altitude"`
	Speed       float64   `json:"speed" bson:"speed"` // km/h
	Course      uint16    `json:"course" bson:"course"`
	Valid       bool      `json:"valid" bson:"valid"`
	Satellites  uint8     `json:"satellites" bson:"satellites"`

	Cell      *CellInfo `json:"cell,omitempty" bson:"cell,omitempty"`
	Power     *uint8    `json:"power,omitempty" bson:"power,omitempty"`
	Alarm     *bool     `json:"alarm,omitempty" bson:"alarm,omitempty"`
	GSMSignal *uint8    `json:"gsmSignal,omitempty" bson:"gsmSignal,omitempty"`
}

// Fields flattens the position into plain values, e.g. for structpb or logging.
func (p *Position) Fields() map[string]interface{} {
	fields := map[string]interface{}{
		"deviceId":    p.DeviceID,
		"protocol":    p.Protocol,
		"messageType": p.MessageType,
		"index":       uint32(p.Index),
		"timestamp":   p.Timestamp.UTC().Format(time.RFC3339),
		"latitude":    p.Latitude,
		"longitude":   p.Longitude,
		"altitude":    p.Altitude,
		"speed":       p.Speed,
		"course":      uint32(p.Course),
		"valid":       p.Valid,
		"satellites":  uint32(p.Satellites),
	}
	if p.Cell != nil {
		fields["mcc"] = uint32(p.Cell.MCC)
		fields["mnc"] = uint32(p.Cell.MNC)
		fields["lac"] = uint32(p.Cell.LAC)
		fields["cellId"] = p.Cell.CellID
	}
	if p.Power != nil {
		fields["power"] = uint32(*p.Power)
	}
	if p.Alarm != nil {
		fields["alarm"] = *p.Alarm
	}
	if p.GSMSignal != nil {
		fields["gsmSignal"] = uint32(*p.GSMSignal)
	}
	return fields
}
