package dbc

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Messages sheet columns
const (
	MsgColCanId = iota
	MsgColName
	MsgColDLC
	MsgColTransmitter
	MsgColExtended
	MsgColComment
	MsgColumns
)

// Signals sheet columns
const (
	SigColCanId = iota
	SigColName
	SigColStartBit
	SigColBitWidth
	SigColOrderSign
	SigColFactorOffset
	SigColMinMax
	SigColUnit
	SigColReceivers
	SigColComment
	SigColInitialValue
	SigColValueType
	SigColSendType
	SigColMultiplexing
	SigColValueTable
	SigColumns
)

// ParseExcel rebuilds the message/signal model from the Messages and Signals
// sheets of a workbook produced by WriteExcel.
func ParseExcel(filename string) (*DbcVO, error) {
	f, err := excelize.OpenFile(filename)
	if err != nil {
		log.Errorln(err)
		return nil, err
	}
	defer f.Close()

	data := &DbcVO{BoVoMap: make(map[uint64]*BoVO)}

	rows, err := f.GetRows(SheetMessages)
	if err != nil {
		log.Errorln(err)
		return nil, err
	}
	for idx, row := range rows {
		if idx <= 0 {
			continue
		}

		canId, err := parseHexId(cell(row, MsgColCanId))
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", idx+1, err)
		}

		boVO := &BoVO{
			CanId:       canId,
			CanName:     cell(row, MsgColName),
			Transmitter: cell(row, MsgColTransmitter),
			Extended:    cell(row, MsgColExtended) == "TRUE",
			Comment:     cell(row, MsgColComment),
			SgVoMap:     make(map[string]*SgVO),
		}
		boVO.DataLength, _ = strconv.ParseUint(cell(row, MsgColDLC), 10, 64)

		data.BoVoMap[canId] = boVO
		data.BoVOList = append(data.BoVOList, boVO)
	}

	rows, err = f.GetRows(SheetSignals)
	if err != nil {
		log.Errorln(err)
		return nil, err
	}
	for idx, row := range rows {
		if idx <= 0 {
			continue
		}

		canId, err := parseHexId(cell(row, SigColCanId))
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", idx+1, err)
		}
		boVO, ok := data.BoVoMap[canId]
		if !ok {
			log.Warnf("Signal row %d references unknown message(0x%X)", idx+1, canId)
			continue
		}

		var sgVO SgVO
		sgVO.SignalName = cell(row, SigColName)
		sgVO.StartBit, _ = strconv.Atoi(cell(row, SigColStartBit))
		sgVO.BitWidth, _ = strconv.Atoi(cell(row, SigColBitWidth))
		sgVO.Unit = cell(row, SigColUnit)
		sgVO.Comment = cell(row, SigColComment)
		sgVO.Multiplexing = cell(row, SigColMultiplexing)
		if receivers := cell(row, SigColReceivers); receivers != "" {
			sgVO.Receivers = strings.Split(receivers, ",")
		}

		// "@{digit}{sign}"
		if orderSign := cell(row, SigColOrderSign); len(orderSign) >= 3 && orderSign[0] == '@' {
			sgVO.ByteOrder, _ = strconv.Atoi(orderSign[1:2])
			sgVO.ValueType = orderSign[2:]
		}

		// "(factor,offset)"
		factorOffset := strings.Trim(cell(row, SigColFactorOffset), "()")
		if factorRaw, offsetRaw, ok := strings.Cut(factorOffset, ","); ok {
			sgVO.FactorRaw = factorRaw
			sgVO.OffsetRaw = offsetRaw
			sgVO.Factor, _ = strconv.ParseFloat(factorRaw, 64)
			sgVO.Offset, _ = strconv.ParseFloat(offsetRaw, 64)
		}

		// "[min|max]"
		minMax := strings.Trim(cell(row, SigColMinMax), "[]")
		if min, max, ok := strings.Cut(minMax, "|"); ok {
			sgVO.Min = min
			sgVO.Max = max
		}

		boVO.SgVoMap[sgVO.SignalName] = &sgVO
		boVO.OrderedSignals = append(boVO.OrderedSignals, sgVO.SignalName)
	}

	return data, nil
}

func parseHexId(s string) (uint64, error) {
	trimmed := strings.TrimPrefix(s, "0x")
	if trimmed == s {
		trimmed = strings.TrimPrefix(s, "0X")
	}
	canId, err := strconv.ParseUint(trimmed, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid message id %q: %w", s, err)
	}
	return canId, nil
}

// cell tolerates the short rows excelize returns when trailing cells are
// empty.
func cell(row []string, idx int) string {
	if idx >= len(row) {
		return ""
	}
	return row[idx]
}
