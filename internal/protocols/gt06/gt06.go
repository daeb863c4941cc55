package gt06

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/404minds/gt06-receiver/internal/crc"
	errs "github.com/404minds/gt06-receiver/internal/errors"
	configuredLogger "github.com/404minds/gt06-receiver/internal/logger"
	"github.com/404minds/gt06-receiver/internal/types"
)

var logger = configuredLogger.Logger

// DeviceDirectory resolves the identifier a device logs in with to the platform's device id.
// Implementations must be safe for concurrent lookups.
type DeviceDirectory interface {
	Lookup(ctx context.Context, imei string) (string, error)
}

// Session is the per-connection state shared by consecutive frames. It is owned by the connection
// handler; frames of one connection are decoded one at a time so it needs no locking.
type Session struct {
	IMEI     string
	DeviceID string
}

func (s *Session) LoggedIn() bool {
	return s.DeviceID != ""
}

type Decoder struct {
	directory DeviceDirectory
	options   Options
}

func NewDecoder(directory DeviceDirectory, options Options) *Decoder {
	return &Decoder{directory: directory, options: options}
}

// Decode handles one complete frame, starting at the 0x78 0x78 header.
//
// Acknowledgments are written to channel; a nil channel skips them. The returned position is nil for
// login, status, ignored message types and failed logins. Frames that cannot be decoded return an error
// matching errs.ErrMalformedFrame (or errs.ErrBadCrc under ChecksumReject) and are never acknowledged.
// A failed acknowledgment write is returned along with the decoded position.
func (d *Decoder) Decode(ctx context.Context, session *Session, frame []byte, channel io.Writer) (position *types.Position, err error) {
	defer func() {
		if r := recover(); r != nil {
			rErr, ok := r.(error)
			if !ok {
				rErr = fmt.Errorf("decode panic: %v", r)
			}
			position = nil
			if errors.Is(rErr, errs.ErrMalformedFrame) {
				err = rErr
			} else {
				err = errors.Wrapf(errs.ErrMalformedFrame, "%v", rErr)
			}
		}
	}()

	if session == nil {
		session = &Session{}
	}

	packet, body, err := d.parseHeader(frame)
	if err != nil {
		return nil, err
	}
	reader := bytes.NewReader(body)

	switch packet.MessageType.Kind() {
	case KindLogin:
		return nil, d.handleLogin(ctx, session, packet, reader, channel)
	case KindStatus:
		return nil, d.handleStatus(packet, reader, channel)
	case KindLocation:
		return d.handleLocation(session, packet, reader, channel)
	default:
		logger.Debug("ignoring gt06 message", zap.String("type", fmt.Sprintf("0x%02x", byte(packet.MessageType))))
		return nil, nil
	}
}

// parseHeader validates the prefix and returns the bytes following the type byte, trimmed to the
// declared frame size.
func (d *Decoder) parseHeader(frame []byte) (*Packet, []byte, error) {
	if len(frame) < 4 {
		return nil, nil, errors.Wrapf(errs.ErrMalformedFrame, "frame of %d bytes is too short", len(frame))
	}

	packet := &Packet{
		StartBit:     binary.BigEndian.Uint16(frame),
		PacketLength: frame[2],
		MessageType:  MessageType(frame[3]),
	}
	if packet.StartBit != StartBitValue {
		return nil, nil, errors.Wrapf(errs.ErrMalformedFrame, "invalid start bit %x", packet.StartBit)
	}
	if packet.PacketLength < lengthOverhead {
		return nil, nil, errors.Wrapf(errs.ErrMalformedFrame, "declared length %d is below the minimum", packet.PacketLength)
	}
	packet.DataLength = int(packet.PacketLength) - lengthOverhead

	// header + length byte + everything counted by the length byte, i.e. up to and including the crc
	crcEnd := 3 + int(packet.PacketLength)
	if len(frame) < crcEnd {
		return nil, nil, errors.Wrapf(errs.ErrMalformedFrame, "declared length %d exceeds the %d bytes available", packet.PacketLength, len(frame)-3)
	}
	if len(frame) > crcEnd+2 {
		frame = frame[:crcEnd+2]
	}

	if d.options.Checksum != ChecksumIgnore && d.options.Checksum != "" {
		expectedCrc := crc.Crc16Ccitt(frame[2 : crcEnd-2])
		actualCrc := binary.BigEndian.Uint16(frame[crcEnd-2 : crcEnd])
		if expectedCrc != actualCrc {
			logger.Sugar().Warnf("crc mismatch in %s frame: expected %x, got %x", packet.MessageType, expectedCrc, actualCrc)
			if d.options.Checksum == ChecksumReject {
				return nil, nil, errors.Wrapf(errs.ErrBadCrc, "expected %x, got %x", expectedCrc, actualCrc)
			}
		}
	}

	return packet, frame[4:], nil
}

func (d *Decoder) handleLogin(ctx context.Context, session *Session, packet *Packet, reader *bytes.Reader, channel io.Writer) error {
	var imeiBytes [8]byte
	checkErr(binary.Read(reader, binary.BigEndian, &imeiBytes))
	imei := decodeIdentifier(imeiBytes)

	deviceID, err := d.lookupDevice(ctx, imei)
	if err != nil {
		// the device retries the login on its own timeout
		logger.Warn("unknown device, login not acknowledged", zap.String("imei", imei), zap.Error(err))
		return nil
	}

	skip(reader, packet.DataLength-len(imeiBytes))
	index := readIndex(reader)

	session.IMEI = imei
	session.DeviceID = deviceID
	logger.Info("device logged in", zap.String("imei", imei), zap.String("deviceId", deviceID))

	return d.sendResponse(channel, packet.MessageType, index)
}

func (d *Decoder) lookupDevice(ctx context.Context, imei string) (string, error) {
	if d.directory == nil {
		return "", errors.Wrap(errs.ErrUnknownDevice, "no device directory configured")
	}
	if d.options.LookupTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.options.LookupTimeout)
		defer cancel()
	}

	deviceID, err := d.directory.Lookup(ctx, imei)
	if err != nil {
		return "", err
	}
	if deviceID == "" {
		return "", errs.ErrUnknownDevice
	}
	return deviceID, nil
}

func (d *Decoder) handleStatus(packet *Packet, reader *bytes.Reader, channel io.Writer) error {
	skip(reader, packet.DataLength)
	index := readIndex(reader)
	return d.sendResponse(channel, packet.MessageType, index)
}

func (d *Decoder) handleLocation(session *Session, packet *Packet, reader *bytes.Reader, channel io.Writer) (*types.Position, error) {
	gpsInfo, err := d.parseGPSInformation(reader)
	if err != nil {
		return nil, err
	}

	position := &types.Position{
		DeviceID:    session.DeviceID,
		Protocol:    types.ProtocolGT06,
		MessageType: packet.MessageType.String(),
		Timestamp:   gpsInfo.Timestamp,
		Latitude:    gpsInfo.Latitude,
		Longitude:   gpsInfo.Longitude,
		Altitude:    0,
		Speed:       float64(gpsInfo.Speed),
		Course:      gpsInfo.Course.Degree,
		Valid:       gpsInfo.Course.Positioned,
		Satellites:  gpsInfo.NumberOfSatellites,
	}

	skip(reader, int(gpsInfo.GPSInfoLength)-gpsBlockLength) // reserved

	if packet.MessageType.HasLBS() {
		lbsLength := 0
		if packet.MessageType.HasStatus() {
			lbsLength = int(readByte(reader))
		}
		position.Cell = d.parseLBSInformation(reader)
		skip(reader, lbsLength-lbsBlockLength)
	}

	if packet.MessageType.HasStatus() {
		_ = readByte(reader) // terminal information, not interpreted yet
		alarm := true
		power := readByte(reader)
		gsmSignal := readByte(reader)
		position.Alarm = &alarm
		position.Power = &power
		position.GSMSignal = &gsmSignal
	}

	// vendor specific fields may sit between the known blocks and the index; the index follows the
	// declared payload whether or not the stop bits are still attached
	consumed := int(reader.Size()) - reader.Len()
	if consumed > packet.DataLength {
		panic(errors.Wrapf(errs.ErrMalformedFrame, "%s blocks need %d bytes, declared payload is %d", packet.MessageType, consumed, packet.DataLength))
	}
	skip(reader, packet.DataLength-consumed)
	position.Index = readIndex(reader)

	err = d.sendResponse(channel, packet.MessageType, position.Index)

	if d.options.RequireLogin && !session.LoggedIn() {
		logger.Warn("dropping position received before login", zap.Uint16("index", position.Index))
		return nil, err
	}
	return position, err
}

func (d *Decoder) parseGPSInformation(reader *bytes.Reader) (gpsInfo GPSInformation, err error) {
	gpsInfo.Timestamp, err = d.parseTimestamp(reader)
	if err != nil {
		return gpsInfo, err
	}

	x := readByte(reader)
	gpsInfo.GPSInfoLength = x >> 4
	gpsInfo.NumberOfSatellites = x & 0x0f

	var latitude, longitude uint32
	checkErr(binary.Read(reader, binary.BigEndian, &latitude))
	checkErr(binary.Read(reader, binary.BigEndian, &longitude))

	gpsInfo.Speed = readByte(reader)

	var courseValue uint16
	checkErr(binary.Read(reader, binary.BigEndian, &courseValue))
	gpsInfo.Course = parseGpsCourse(courseValue)

	gpsInfo.Latitude = float64(latitude) / coordinateDivisor
	if !gpsInfo.Course.North {
		gpsInfo.Latitude = -gpsInfo.Latitude
	}
	gpsInfo.Longitude = float64(longitude) / coordinateDivisor
	if !gpsInfo.Course.East {
		gpsInfo.Longitude = -gpsInfo.Longitude
	}
	return gpsInfo, nil
}

func parseGpsCourse(courseValue uint16) (course GPSCourse) {
	course.Positioned = courseValue&0x1000 != 0
	course.East = courseValue&0x0800 != 0
	course.North = courseValue&0x0400 != 0
	course.Degree = courseValue & 0x03ff
	return
}

func (d *Decoder) parseTimestamp(reader *bytes.Reader) (time.Time, error) {
	var raw [6]byte
	checkErr(binary.Read(reader, binary.BigEndian, &raw))

	year := 2000 + int(raw[0])
	month, day := int(raw[1]), int(raw[2])
	hour, minute, second := int(raw[3]), int(raw[4]), int(raw[5])

	if d.options.TimeMode == TimeModeStrict {
		daysInMonth := 0
		if month >= 1 && month <= 12 {
			daysInMonth = time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
		}
		if daysInMonth == 0 || day < 1 || day > daysInMonth || hour > 23 || minute > 59 || second > 59 {
			return time.Time{}, errors.Wrapf(errs.ErrMalformedFrame, "invalid timestamp %s", hex.EncodeToString(raw[:]))
		}
	}

	return time.Date(year, time.Month(month), day, hour, minute, second, 0, time.UTC), nil
}

func (d *Decoder) parseLBSInformation(reader *bytes.Reader) *types.CellInfo {
	var cell types.CellInfo
	checkErr(binary.Read(reader, binary.BigEndian, &cell.MCC))
	checkErr(binary.Read(reader, binary.BigEndian, &cell.MNC))
	checkErr(binary.Read(reader, binary.BigEndian, &cell.LAC))

	var cellHigh uint16
	checkErr(binary.Read(reader, binary.BigEndian, &cellHigh))
	cellLow := readByte(reader)
	cell.CellID = combineCellID(cellHigh, cellLow, d.options.CellIDMode)
	return &cell
}

func combineCellID(high uint16, low byte, mode CellIDMode) uint32 {
	if mode == CellIDModeCorrected {
		return uint32(high)<<8 | uint32(low)
	}
	return uint32(high) << ((8 + uint32(low)) & 0x1f)
}

// decodeIdentifier turns the 8 login bytes into the 15-digit identifier: the low nibble of the first
// byte, then both nibbles of the remaining seven.
//
// Nibbles above 9 are written as the hex letters a-f, one character each, so the result is always 15
// characters long. Directory entries for such identifiers must use that form, not the decimal
// expansion ("10" for 0xa) some other decoders produce.
func decodeIdentifier(imeiBytes [8]byte) string {
	return hex.EncodeToString(imeiBytes[:])[1:]
}

func (d *Decoder) sendResponse(writer io.Writer, messageType MessageType, index uint16) error {
	if writer == nil {
		return nil
	}

	responsePacket := NewResponsePacket(messageType, index)
	if _, err := writer.Write(responsePacket.ToBytes()); err != nil {
		return errors.Wrapf(err, "failed to write response packet")
	}
	return nil
}

func readByte(reader *bytes.Reader) byte {
	b, err := reader.ReadByte()
	checkErr(err)
	return b
}

func readIndex(reader *bytes.Reader) uint16 {
	var index uint16
	checkErr(binary.Read(reader, binary.BigEndian, &index))
	return index
}

// skip advances past n bytes; negative counts mean the block is shorter than its known fields and
// nothing is skipped.
func skip(reader *bytes.Reader, n int) {
	if n <= 0 {
		return
	}
	if n > reader.Len() {
		panic(errors.Wrapf(errs.ErrMalformedFrame, "cannot skip %d bytes, %d left", n, reader.Len()))
	}
	_, err := reader.Seek(int64(n), io.SeekCurrent)
	checkErr(err)
}

func checkErr(err error) {
	if err != nil {
		panic(err)
	}
}
