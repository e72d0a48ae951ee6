package can

import (
	"bytes"
	"encoding/binary"
	"strconv"
	"strings"
	"sync/atomic"

	"DBCConverter/base"
	"DBCConverter/dbc"

	jsoniter "github.com/json-iterator/go"
)

var log = base.Logger

type PDU struct {
	UdpTimeStamp uint64
	Timestamp    int64
	CanId        uint32
	BusId        uint8
	Direction    uint8
	PayloadLen   uint16
	Payload      []byte
}

// SDPE Direction
const (
	SDPERecv = iota
	SDPESend
)

// pdu wire layout
const (
	TimeStampLen = 8
	CanIdLen     = 4
	BusIdLen     = 1
	DirectionLen = 1
	LengthLen    = 2

	PduHeaderLen = TimeStampLen + CanIdLen + BusIdLen + DirectionLen + LengthLen
)

// packet header
const (
	HeaderLen      = 8
	CanMirrorToETH = 2
)

// byte order
const (
	Motorola = iota
	Intel
)

var (
	TotalShortPacket atomic.Int64
	TotalMsgTypeErr  atomic.Int64
	TotalShortPdu    atomic.Int64
)

// DecodePacket splits one mirror datagram into PDUs. Truncated trailing
// data is dropped and counted, not fatal.
func DecodePacket(data []byte, recvTime int64) []PDU {
	if len(data) <= HeaderLen {
		log.Errorf("Invalid packet !!! dataLen(%d)", len(data))
		TotalShortPacket.Add(1)
		return nil
	}

	msgType := data[2]
	if CanMirrorToETH != msgType {
		log.Errorf("Unknown msg type !!! msgType(%d)", msgType)
		TotalMsgTypeErr.Add(1)
		return nil
	}

	var allPdu []PDU
	pdus := data[HeaderLen:]
	for len(pdus) > 0 {
		if len(pdus) < PduHeaderLen {
			log.Errorf("Invalid pdu header !!! dataLen(%d)", len(pdus))
			TotalShortPdu.Add(1)
			break
		}

		var pdu PDU
		pdu.Timestamp = recvTime
		pdu.UdpTimeStamp = binary.BigEndian.Uint64(pdus[:TimeStampLen])
		pdu.CanId = binary.BigEndian.Uint32(pdus[TimeStampLen : TimeStampLen+CanIdLen])
		pdu.BusId = pdus[TimeStampLen+CanIdLen]
		pdu.Direction = pdus[PduHeaderLen-LengthLen-DirectionLen]
		pdu.PayloadLen = binary.BigEndian.Uint16(pdus[PduHeaderLen-LengthLen : PduHeaderLen])

		pduLen := PduHeaderLen + int(pdu.PayloadLen)
		if len(pdus) < pduLen {
			log.Errorf("Invalid pdu !!! want(%d), has(%d), canId(%d)", pduLen, len(pdus), pdu.CanId)
			TotalShortPdu.Add(1)
			break
		}
		pdu.Payload = pdus[PduHeaderLen:pduLen]
		pdus = pdus[pduLen:]

		allPdu = append(allPdu, pdu)
	}

	return allPdu
}

type signal struct {
	signalName  string
	signalValue float64
}

type canFrame struct {
	timeStamp int64
	canName   string
	canId     uint32
	busId     uint8
	direction uint8
	signals   []*signal
	payLoad   []byte
}

// ParseToJson decodes the PDUs against the parsed database and returns the
// frame JSON. PDUs without a matching message definition are skipped.
func ParseToJson(data *dbc.DbcVO, pdus []PDU) []byte {
	var frames []*canFrame

	for _, pdu := range pdus {
		var frame canFrame
		frame.timeStamp = pdu.Timestamp / 1000
		frame.canId = pdu.CanId
		frame.busId = pdu.BusId
		frame.direction = pdu.Direction
		frame.payLoad = pdu.Payload

		if !decodeCan(data, pdu.CanId, &pdu, &frame) {
			continue
		}
		frames = append(frames, &frame)
	}

	return toFrameJson(frames)
}

func decodeCan(data *dbc.DbcVO, canId uint32, pdu *PDU, frame *canFrame) bool {
	boVO, ok := data.BoVoMap[uint64(canId)]
	if !ok {
		log.Warnf("No dbc data !!! canId(%d)", canId)
		return false
	}

	frame.canName = boVO.CanName
	// decode in dbc declaration order
	for _, sigName := range boVO.OrderedSignals {
		decodeSigValue(sigName, boVO, pdu, frame)
	}
	return true
}

func decodeSigValue(sigName string, boVO *dbc.BoVO, pdu *PDU, frame *canFrame) {
	sgVO, ok := boVO.SgVoMap[sigName]
	if !ok {
		log.Warnf("Decode (%s) failed ! not in dbc signal list", sigName)
		return
	}

	var retVal uint64
	startBit := sgVO.StartBit % 8
	startByte := sgVO.StartBit / 8

	for i := 0; i < sgVO.BitWidth; i++ {
		if startByte < 0 || startByte >= len(pdu.Payload) {
			continue
		}

		if Intel == sgVO.ByteOrder {
			retVal |= uint64((pdu.Payload[startByte]>>startBit)&0x01) << i
			if startBit >= 7 {
				startBit = 0
				startByte++
			} else {
				startBit++
			}
		} else if Motorola == sgVO.ByteOrder {
			retVal |= uint64((pdu.Payload[startByte]>>startBit)&0x01) << (sgVO.BitWidth - i - 1)
			if startBit >= 7 {
				startBit = 0
				startByte--
			} else {
				startBit++
			}
		}
	}

	var s signal
	s.signalName = sigName
	s.signalValue = float64(retVal)*sgVO.Factor + sgVO.Offset
	frame.signals = append(frame.signals, &s)
}

type CanData struct {
	CanId     uint32 `json:"id"`
	BusId     uint8  `json:"bus"`
	Direction uint8  `json:"d"`
	TimeStamp int64  `json:"t"`
	Signals   map[string]any
}

type JsonData struct {
	TimeStamp int64             `json:"ts"`
	Raw       map[string]string `json:"raw"`
	Attr      map[string]*CanData
}

func (j *JsonData) MarshalJSON() ([]byte, error) {
	datas := make(map[string]any)
	datas["ts"] = j.TimeStamp
	datas["raw"] = j.Raw

	for k, v := range j.Attr {
		cans := make(map[string]any)
		cans["id"] = v.CanId
		cans["bus"] = v.BusId
		cans["d"] = v.Direction
		cans["t"] = v.TimeStamp
		for k, v := range v.Signals {
			cans[k] = v
		}

		datas[k] = cans
	}

	return jsoniter.Marshal(datas)
}

func toFrameJson(canFrames []*canFrame) (retJson []byte) {
	if len(canFrames) <= 0 {
		return nil
	}

	timeStamp := canFrames[0].timeStamp

	jData := &JsonData{
		TimeStamp: timeStamp,
		Raw:       make(map[string]string),
		Attr:      make(map[string]*CanData),
	}

	for _, frame := range canFrames {
		//"1690681909000 8 00000174 Rx d 8 00 00 00 AA 0D 00 00 00"
		jData.Raw[frame.canName] = rawFrameLine(frame)

		canData := CanData{
			frame.canId,
			frame.busId,
			frame.direction,
			timeStamp,
			make(map[string]any),
		}
		for _, signal := range frame.signals {
			canData.Signals[signal.signalName] = signal.signalValue
		}
		jData.Attr[frame.canName] = &canData
	}

	retJson, err := jsoniter.Marshal(jData)
	if err != nil {
		log.Errorln(err)
	}

	return
}

func rawFrameLine(frame *canFrame) string {
	var strDirection string
	switch frame.direction {
	case SDPERecv:
		strDirection = "Rx d"
	case SDPESend:
		strDirection = "Tx d"
	default:
	}

	rawData := bytes.NewBuffer(make([]byte, 0))
	rawData.WriteString(strconv.FormatInt(frame.timeStamp, 10))
	rawData.WriteString(" ")
	rawData.WriteString(strconv.FormatUint(uint64(frame.canId), 10))
	rawData.WriteString(" ")
	rawData.WriteString(strconv.FormatUint(uint64(frame.busId), 10))
	rawData.WriteString(" ")
	rawData.WriteString(strDirection)
	rawData.WriteString(" ")
	rawData.WriteString(strconv.FormatUint(uint64(len(frame.payLoad)), 10))
	rawData.WriteString(" ")
	for _, oneByte := range frame.payLoad {
		rawData.Write(byteToHexChar(oneByte))
		rawData.WriteString(" ")
	}

	return string(bytes.TrimSpace(rawData.Bytes()))
}

func byteToHexChar(oneByte byte) []byte {
	high := strings.ToUpper(strconv.FormatUint(uint64(oneByte>>4), 16))
	low := strings.ToUpper(strconv.FormatUint(uint64(oneByte&0x0F), 16))
	return []byte(high + low)
}
