package gt06

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/404minds/gt06-receiver/internal/crc"
	errs "github.com/404minds/gt06-receiver/internal/errors"
)

type stubDirectory map[string]string

func (s stubDirectory) Lookup(ctx context.Context, imei string) (string, error) {
	if deviceID, ok := s[imei]; ok {
		return deviceID, nil
	}
	return "", errs.ErrUnknownDevice
}

type failingWriter struct{}

func (failingWriter) Write(p []byte) (int, error) {
	return 0, errors.New("connection reset")
}

func decodeHex(t *testing.T, s string) []byte {
	data, err := hex.DecodeString(strings.ReplaceAll(s, " ", ""))
	require.NoError(t, err)
	return data
}

// buildFrame wraps body into a complete frame with a valid crc.
func buildFrame(messageType MessageType, body []byte, index uint16) []byte {
	length := byte(1 + len(body) + 2 + 2)
	core := append([]byte{length, byte(messageType)}, body...)
	core = append(core, byte(index>>8), byte(index))
	checksum := crc.Crc16Ccitt(core)
	frame := append([]byte{0x78, 0x78}, core...)
	return append(frame, byte(checksum>>8), byte(checksum), 0x0d, 0x0a)
}

func newTestDecoder(options Options) *Decoder {
	return NewDecoder(stubDirectory{"123456789012345": "42"}, options)
}

func TestParseLoginMessage(t *testing.T) {
	startBit := "7878"
	packetLength := "11" // 17
	messageType := "01"
	imei := "0123456789012345"
	typeIdentifier := "0518"
	timezone := "4dd8"
	informationNumber := "0001"
	crc := "cb97"
	stopBits := "0d0a"

	frame := decodeHex(t, startBit+packetLength+messageType+imei+typeIdentifier+timezone+informationNumber+crc+stopBits)

	var ack bytes.Buffer
	session := Session{}
	position, err := newTestDecoder(DefaultOptions()).Decode(context.Background(), &session, frame, &ack)

	assert.NoError(t, err, "login should succeed")
	assert.Nil(t, position, "login produces no position")
	assert.Equal(t, "123456789012345", session.IMEI, "imei should be parsed correctly")
	assert.Equal(t, "42", session.DeviceID, "device id should be bound to the session")
	assert.Equal(t, "787805010001d9dc0d0a", hex.EncodeToString(ack.Bytes()), "login ack should echo type and index")
}

func TestParseLoginMessageWithoutTerminalInfo(t *testing.T) {
	frame := decodeHex(t, "78780d0101234567890123450102a79e0d0a")

	var ack bytes.Buffer
	session := Session{}
	_, err := newTestDecoder(DefaultOptions()).Decode(context.Background(), &session, frame, &ack)

	assert.NoError(t, err)
	assert.Equal(t, "42", session.DeviceID)
	assert.Equal(t, "787805010102f29f0d0a", hex.EncodeToString(ack.Bytes()))
}

func TestLoginUnknownDevice(t *testing.T) {
	frame := decodeHex(t, "78781101012345678901234505184dd80001cb970d0a")

	var ack bytes.Buffer
	session := Session{IMEI: "111111111111111", DeviceID: "7"}
	decoder := NewDecoder(stubDirectory{}, DefaultOptions())
	position, err := decoder.Decode(context.Background(), &session, frame, &ack)

	assert.NoError(t, err, "an unresolved identifier is not a decode failure")
	assert.Nil(t, position)
	assert.Empty(t, ack.Bytes(), "failed login must not be acknowledged")
	assert.Equal(t, Session{IMEI: "111111111111111", DeviceID: "7"}, session, "session should be unchanged")
}

func TestLoginWithoutDirectory(t *testing.T) {
	frame := decodeHex(t, "78781101012345678901234505184dd80001cb970d0a")

	var ack bytes.Buffer
	session := Session{}
	_, err := NewDecoder(nil, DefaultOptions()).Decode(context.Background(), &session, frame, &ack)

	assert.NoError(t, err)
	assert.False(t, session.LoggedIn())
	assert.Empty(t, ack.Bytes())
}

type slowDirectory struct{}

func (slowDirectory) Lookup(ctx context.Context, imei string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestLoginLookupIsBounded(t *testing.T) {
	frame := decodeHex(t, "78781101012345678901234505184dd80001cb970d0a")

	options := DefaultOptions()
	options.LookupTimeout = 10 * time.Millisecond

	var ack bytes.Buffer
	session := Session{}
	started := time.Now()
	_, err := NewDecoder(slowDirectory{}, options).Decode(context.Background(), &session, frame, &ack)

	assert.NoError(t, err)
	assert.True(t, time.Since(started) < 2*time.Second, "lookup should be cut off by the timeout")
	assert.False(t, session.LoggedIn())
	assert.Empty(t, ack.Bytes())
}

func TestParseStatusPacket(t *testing.T) {
	frame := decodeHex(t, "78 78 0A 13 40 04 04 00 01 00 0F DC EE 0D 0A")

	var ack bytes.Buffer
	session := Session{}
	position, err := newTestDecoder(DefaultOptions()).Decode(context.Background(), &session, frame, &ack)

	assert.NoError(t, err)
	assert.Nil(t, position, "status produces no position")
	assert.Equal(t, "78780513000f008f0d0a", hex.EncodeToString(ack.Bytes()))
}

func TestParseGpsPacket(t *testing.T) {
	frame := decodeHex(t, "78 78 17 10 0f 0c 1d 02 33 05 c9 03 dc c5 00 0c 46 58 60 28 1d 54 00 03 7a 52 0d 0a")

	var ack bytes.Buffer
	session := Session{DeviceID: "42"}
	position, err := newTestDecoder(DefaultOptions()).Decode(context.Background(), &session, frame, &ack)
	require.NoError(t, err)
	require.NotNil(t, position)

	assert.Equal(t, "42", position.DeviceID)
	assert.Equal(t, "gt06", position.Protocol)
	assert.Equal(t, "MSG_GPS", position.MessageType)
	assert.Equal(t, time.Date(2015, 12, 29, 2, 51, 5, 0, time.UTC), position.Timestamp, "timestamp should match")
	assert.Equal(t, uint8(9), position.Satellites, "number of satellites should match")
	assert.Equal(t, 36.0, position.Latitude, "latitude should match")
	assert.InDelta(t, 114.409297, position.Longitude, 1e-6, "longitude should match")
	assert.Equal(t, 40.0, position.Speed)
	assert.Equal(t, uint16(340), position.Course)
	assert.True(t, position.Valid)
	assert.Equal(t, 0.0, position.Altitude)
	assert.Equal(t, uint16(3), position.Index)
	assert.Nil(t, position.Cell)
	assert.Nil(t, position.Power)
	assert.Nil(t, position.Alarm)
	assert.Nil(t, position.GSMSignal)
	assert.Equal(t, "78780510000325870d0a", hex.EncodeToString(ack.Bytes()))
}

func TestParseGpsLbsPacket(t *testing.T) {
	frame := decodeHex(t, "78 78 1f 12 0f 0c 1d 02 33 05 c9 02 7a c8 18 0c 46 58 60 00 14 00 01 cc 00 28 7d 00 1f 71 00 08 db f0 0d 0a")

	cases := []struct {
		mode   CellIDMode
		cellID uint32
	}{
		{CellIDModeLegacy, 0x3e000000},
		{CellIDModeCorrected, 0x1f71},
	}

	for _, c := range cases {
		options := DefaultOptions()
		options.CellIDMode = c.mode

		var ack bytes.Buffer
		position, err := newTestDecoder(options).Decode(context.Background(), &Session{}, frame, &ack)
		require.NoError(t, err)
		require.NotNil(t, position)

		assert.InDelta(t, 23.111693, position.Latitude, 1e-6, "north latitude stays positive")
		assert.InDelta(t, -114.409297, position.Longitude, 1e-6, "west longitude is negated")
		assert.True(t, position.Valid)
		assert.Equal(t, uint16(0), position.Course)
		if assert.NotNil(t, position.Cell) {
			assert.Equal(t, uint16(460), position.Cell.MCC)
			assert.Equal(t, uint8(0), position.Cell.MNC)
			assert.Equal(t, uint16(0x287d), position.Cell.LAC)
			assert.Equal(t, c.cellID, position.Cell.CellID, "cell id in %s mode", c.mode)
		}
		assert.Nil(t, position.Alarm, "no status block in gps+lbs messages")
		assert.Equal(t, uint16(8), position.Index)
		assert.Equal(t, "7878051200082eec0d0a", hex.EncodeToString(ack.Bytes()))
	}
}

func TestParseGpsLbsStatusPacket(t *testing.T) {
	// trailing 01 02 (alarm, language) is not interpreted and must be skipped before the index
	frame := decodeHex(t, "78 78 25 16 0f 0c 1d 02 33 05 c9 02 7a c8 18 0c 46 58 60 3c 09 54 09 01 cc 00 28 7d 00 1f 71 44 06 04 01 02 00 22 ec 52 0d 0a")

	var ack bytes.Buffer
	position, err := newTestDecoder(DefaultOptions()).Decode(context.Background(), &Session{}, frame, &ack)
	require.NoError(t, err)
	require.NotNil(t, position)

	assert.InDelta(t, -23.111693, position.Latitude, 1e-6, "south latitude is negated")
	assert.InDelta(t, 114.409297, position.Longitude, 1e-6, "east longitude stays positive")
	assert.False(t, position.Valid)
	assert.Equal(t, 60.0, position.Speed)
	assert.Equal(t, uint16(340), position.Course)
	if assert.NotNil(t, position.Cell) {
		assert.Equal(t, uint16(460), position.Cell.MCC)
	}
	if assert.NotNil(t, position.Alarm) {
		assert.True(t, *position.Alarm, "alarm is raised whenever the status block is present")
	}
	if assert.NotNil(t, position.Power) {
		assert.Equal(t, uint8(6), *position.Power)
	}
	if assert.NotNil(t, position.GSMSignal) {
		assert.Equal(t, uint8(4), *position.GSMSignal)
	}
	assert.Equal(t, uint16(0x22), position.Index)
	assert.Equal(t, "787805160022c3d50d0a", hex.EncodeToString(ack.Bytes()))
}

func TestParseGpsLbsStatusPacketWithoutStopBits(t *testing.T) {
	// same frame as above with 0d 0a already removed by the transport
	frame := decodeHex(t, "78 78 25 16 0f 0c 1d 02 33 05 c9 02 7a c8 18 0c 46 58 60 3c 09 54 09 01 cc 00 28 7d 00 1f 71 44 06 04 01 02 00 22 ec 52")

	var ack bytes.Buffer
	position, err := newTestDecoder(DefaultOptions()).Decode(context.Background(), &Session{}, frame, &ack)
	require.NoError(t, err)
	require.NotNil(t, position)

	assert.Equal(t, uint16(0x22), position.Index, "index is read after the declared payload, not from vendor bytes")
	assert.Equal(t, "787805160022c3d50d0a", hex.EncodeToString(ack.Bytes()))
}

func TestIdentifierKeepsHexNibbles(t *testing.T) {
	imei := decodeIdentifier([8]byte{0x0a, 0x12, 0x34, 0x56, 0x78, 0x9b, 0xcd, 0xef})

	assert.Equal(t, "a123456789bcdef", imei)
	assert.Len(t, imei, 15)
}

func TestUnsupportedTypesAreIgnored(t *testing.T) {
	frames := []string{
		"787813110f0c1d02330501cc00287d001f710004bdc20d0a", // lbs only
		"78780a1548656c6c6f0005d3660d0a",                   // device text
		"78780a99400404000100010000" + "0d0a",              // unknown type
	}

	for _, f := range frames {
		var ack bytes.Buffer
		session := Session{IMEI: "123456789012345", DeviceID: "42"}
		position, err := newTestDecoder(DefaultOptions()).Decode(context.Background(), &session, decodeHex(t, f), &ack)

		assert.NoError(t, err, "frame %s", f)
		assert.Nil(t, position, "frame %s", f)
		assert.Empty(t, ack.Bytes(), "frame %s", f)
		assert.Equal(t, Session{IMEI: "123456789012345", DeviceID: "42"}, session, "frame %s", f)
	}
}

func TestLoginThenGpsOnSameSession(t *testing.T) {
	decoder := newTestDecoder(DefaultOptions())
	session := Session{}
	var ack bytes.Buffer

	_, err := decoder.Decode(context.Background(), &session, decodeHex(t, "78780d0101234567890123450102a79e0d0a"), &ack)
	require.NoError(t, err)

	position, err := decoder.Decode(context.Background(), &session, decodeHex(t, "787817100f0c1d023305c903dcc5000c465860281d5400037a520d0a"), &ack)
	require.NoError(t, err)
	require.NotNil(t, position)

	assert.Equal(t, "42", position.DeviceID)
	assert.Equal(t, 36.0, position.Latitude)
	assert.True(t, position.Valid)
	assert.Equal(t, "787805010102f29f0d0a"+"78780510000325870d0a", hex.EncodeToString(ack.Bytes()))
}

func TestPositionBeforeLogin(t *testing.T) {
	frame := decodeHex(t, "787817100f0c1d023305c903dcc5000c465860281d5400037a520d0a")

	var ack bytes.Buffer
	position, err := newTestDecoder(DefaultOptions()).Decode(context.Background(), &Session{}, frame, &ack)
	require.NoError(t, err)
	if assert.NotNil(t, position, "positions without a login are accepted by default") {
		assert.Empty(t, position.DeviceID)
	}

	options := DefaultOptions()
	options.RequireLogin = true
	ack.Reset()
	position, err = newTestDecoder(options).Decode(context.Background(), &Session{}, frame, &ack)
	assert.NoError(t, err)
	assert.Nil(t, position, "positions without a login are dropped when login is required")
	assert.Equal(t, "78780510000325870d0a", hex.EncodeToString(ack.Bytes()), "dropped positions are still acknowledged")
}

func TestMalformedFrames(t *testing.T) {
	cases := []struct {
		name  string
		frame string
	}{
		{"too short", "7878"},
		{"bad header", "79790a134004040001000fdcee0d0a"},
		{"length below minimum", "787804130d0a"},
		{"declared length exceeds buffer", "78781f120f0c1d0233"},
		{"truncated gps block", "787808100f0c1d02330500000d0a"},
		{"status without index", "78780a1340040400010d0a"},
		{"gps block longer than declared payload", "787811100f0c1d023305c903dcc5000c465860281d540003"},
		{"lbs length beyond frame", "787825160f0c1d023305c9027ac8180c4658603c0954ff01cc00287d001f7144060401020022ec520d0a"},
	}

	for _, c := range cases {
		var ack bytes.Buffer
		session := Session{DeviceID: "42"}
		position, err := newTestDecoder(DefaultOptions()).Decode(context.Background(), &session, decodeHex(t, c.frame), &ack)

		assert.ErrorIs(t, err, errs.ErrMalformedFrame, c.name)
		assert.Nil(t, position, c.name)
		assert.Empty(t, ack.Bytes(), "%s: malformed frames are not acknowledged", c.name)
		assert.Equal(t, Session{DeviceID: "42"}, session, c.name)
	}
}

func TestChecksumPolicy(t *testing.T) {
	corrupted := "78 78 0A 13 40 04 04 00 01 00 0F 00 00 0D 0A"

	cases := []struct {
		policy ChecksumPolicy
		acked  bool
	}{
		{ChecksumIgnore, true},
		{ChecksumLog, true},
		{ChecksumReject, false},
	}

	for _, c := range cases {
		options := DefaultOptions()
		options.Checksum = c.policy

		var ack bytes.Buffer
		_, err := newTestDecoder(options).Decode(context.Background(), &Session{}, decodeHex(t, corrupted), &ack)
		if c.acked {
			assert.NoError(t, err, string(c.policy))
			assert.NotEmpty(t, ack.Bytes(), string(c.policy))
		} else {
			assert.ErrorIs(t, err, errs.ErrBadCrc, string(c.policy))
			assert.Empty(t, ack.Bytes(), string(c.policy))
		}
	}

	options := DefaultOptions()
	options.Checksum = ChecksumReject
	_, err := newTestDecoder(options).Decode(context.Background(), &Session{}, decodeHex(t, "78 78 0A 13 40 04 04 00 01 00 0F DC EE 0D 0A"), nil)
	assert.NoError(t, err, "valid crc passes the reject policy")
}

func TestTimeModes(t *testing.T) {
	// hour byte 0x18 (24)
	frame := decodeHex(t, "787817100f0c1d183305c903dcc5000c465860281d54000300000d0a")

	position, err := newTestDecoder(DefaultOptions()).Decode(context.Background(), &Session{}, frame, nil)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2015, 12, 30, 0, 51, 5, 0, time.UTC), position.Timestamp, "legacy mode rolls the hour over")

	options := DefaultOptions()
	options.TimeMode = TimeModeStrict
	position, err = newTestDecoder(options).Decode(context.Background(), &Session{}, frame, nil)
	assert.ErrorIs(t, err, errs.ErrMalformedFrame)
	assert.Nil(t, position)

	position, err = newTestDecoder(options).Decode(context.Background(), &Session{}, decodeHex(t, "787817100f0c1d173305c903dcc5000c465860281d54000300000d0a"), nil)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2015, 12, 29, 23, 51, 5, 0, time.UTC), position.Timestamp, "strict mode keeps afternoon hours")
}

func TestAckWriteFailureKeepsPosition(t *testing.T) {
	frame := decodeHex(t, "787817100f0c1d023305c903dcc5000c465860281d5400037a520d0a")

	position, err := newTestDecoder(DefaultOptions()).Decode(context.Background(), &Session{}, frame, failingWriter{})
	assert.Error(t, err)
	assert.NotErrorIs(t, err, errs.ErrMalformedFrame)
	assert.NotNil(t, position)
}

func TestResponsePacket(t *testing.T) {
	responsePacket := NewResponsePacket(MSG_StatusData, 1)

	assert.Equal(t, uint16(0xE9F1), responsePacket.Crc, "crc over 05 13 00 01")
	assert.Equal(t, []byte{0x78, 0x78, 0x05, 0x13, 0x00, 0x01, 0xE9, 0xF1, 0x0D, 0x0A}, responsePacket.ToBytes())
}

func TestMessageKinds(t *testing.T) {
	kinds := map[MessageType]MessageKind{
		MSG_LoginData:      KindLogin,
		MSG_GPS:            KindLocation,
		MSG_LBS:            KindIgnored,
		MSG_GPS_LBS:        KindLocation,
		MSG_StatusData:     KindStatus,
		MSG_StringData:     KindIgnored,
		MSG_GPS_LBS_Status: KindLocation,
		MessageType(0x22):  KindIgnored,
	}
	for messageType, kind := range kinds {
		assert.Equal(t, kind, messageType.Kind(), messageType.String())
	}
}
