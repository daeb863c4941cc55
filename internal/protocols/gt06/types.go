package gt06

import (
	"bytes"
	"encoding/binary"
	"time"

	"github.com/404minds/gt06-receiver/internal/crc"
)

const (
	StartBitValue  = 0x7878
	StopBitValue   = 0x0D0A
	ResponseLength = 0x05
)

const (
	// the length field counts itself, the type, the index and the crc on top of the payload
	lengthOverhead = 5

	coordinateDivisor = 1800000.0
	gpsBlockLength    = 12
	lbsBlockLength    = 9
)

type MessageType byte

const (
	MSG_LoginData      MessageType = 0x01
	MSG_GPS            MessageType = 0x10
	MSG_LBS            MessageType = 0x11
	MSG_GPS_LBS        MessageType = 0x12
	MSG_StatusData     MessageType = 0x13
	MSG_StringData     MessageType = 0x15
	MSG_GPS_LBS_Status MessageType = 0x16
)

// MessageKind is the closed set of ways a frame can be handled.
type MessageKind int

const (
	// KindIgnored frames produce no position, no acknowledgment and leave the session untouched.
	KindIgnored MessageKind = iota
	KindLogin
	KindStatus
	KindLocation
)

func (mt MessageType) Kind() MessageKind {
	switch mt {
	case MSG_LoginData:
		return KindLogin
	case MSG_StatusData:
		return KindStatus
	case MSG_GPS, MSG_GPS_LBS, MSG_GPS_LBS_Status:
		return KindLocation
	default:
		return KindIgnored
	}
}

func (mt MessageType) HasLBS() bool {
	return mt == MSG_GPS_LBS || mt == MSG_GPS_LBS_Status
}

func (mt MessageType) HasStatus() bool {
	return mt == MSG_GPS_LBS_Status
}

func (mt MessageType) String() string {
	switch mt {
	case MSG_LoginData:
		return "MSG_LoginData"
	case MSG_GPS:
		return "MSG_GPS"
	case MSG_LBS:
		return "MSG_LBS"
	case MSG_GPS_LBS:
		return "MSG_GPS_LBS"
	case MSG_StatusData:
		return "MSG_StatusData"
	case MSG_StringData:
		return "MSG_StringData"
	case MSG_GPS_LBS_Status:
		return "MSG_GPS_LBS_Status"
	default:
		return "MSG_Unknown"
	}
}

// Packet is the common prefix of every inbound frame.
type Packet struct {
	StartBit     uint16
	PacketLength byte
	MessageType  MessageType
	DataLength   int
}

type GPSInformation struct {
	Timestamp          time.Time
	GPSInfoLength      uint8
	NumberOfSatellites uint8
	Latitude           float64
	Longitude          float64
	Speed              uint8
	Course             GPSCourse
}

type GPSCourse struct {
	Positioned bool // bit 12
	East       bool // bit 11, west when clear
	North      bool // bit 10, south when clear
	Degree     uint16
}

type ResponsePacket struct {
	StartBit                uint16
	PacketLength            byte
	ProtocolNumber          byte
	InformationSerialNumber uint16
	Crc                     uint16
	StopBits                uint16
}

func NewResponsePacket(messageType MessageType, index uint16) ResponsePacket {
	responsePacket := ResponsePacket{
		StartBit:                StartBitValue,
		PacketLength:            ResponseLength,
		ProtocolNumber:          byte(messageType),
		InformationSerialNumber: index,
		StopBits:                StopBitValue,
	}
	responsePacket.Crc = crc.Crc16Ccitt(responsePacket.ToBytes()[2:6])
	return responsePacket
}

func (r *ResponsePacket) ToBytes() []byte {
	var b bytes.Buffer
	_ = binary.Write(&b, binary.BigEndian, r.StartBit)
	_ = binary.Write(&b, binary.BigEndian, r.PacketLength)
	_ = binary.Write(&b, binary.BigEndian, r.ProtocolNumber)
	_ = binary.Write(&b, binary.BigEndian, r.InformationSerialNumber)
	_ = binary.Write(&b, binary.BigEndian, r.Crc)
	_ = binary.Write(&b, binary.BigEndian, r.StopBits)
	return b.Bytes()
}
