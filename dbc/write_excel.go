package dbc

import (
	"fmt"
	"sort"
	"strings"

	"github.com/xuri/excelize/v2"
)

// sheet names, one per populated collection
const (
	SheetNodes       = "Nodes"
	SheetValueTables = "ValueTables"
	SheetMessages    = "Messages"
	SheetSignals     = "Signals"
	SheetBoTxBu      = "ExtraTransmitters"
	SheetEnvVars     = "EnvironmentVariables"
	SheetBaDef       = "BA_DEF"
	SheetBa          = "BA"
	SheetComments    = "Comments"
)

var envTypeNames = map[string]string{
	"0": "INT",
	"1": "FLOAT",
	"2": "STRING",
}

var sigValTypeNames = map[int]string{
	1: "FLOAT",
	2: "DOUBLE",
}

// WriteExcel serializes the model into a workbook, one sheet per entity
// kind. Optional sheets are omitted entirely when their collection is empty.
func WriteExcel(data *DbcVO, filename string) error {
	f := excelize.NewFile()
	defer f.Close()

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"CCCCCC"}, Pattern: 1},
	})
	if err != nil {
		return err
	}

	nodeRows := make([][]any, 0, len(data.Nodes))
	for _, node := range data.Nodes {
		nodeRows = append(nodeRows, []any{node})
	}
	if err := writeSheet(f, headerStyle, SheetNodes, []any{"NodeName"}, nodeRows); err != nil {
		return err
	}

	tableRows := make([][]any, 0, len(data.ValTableVOList))
	for _, valTable := range data.ValTableVOList {
		tableRows = append(tableRows, []any{valTable.TableName, formatDefineMap(valTable.DefineMap)})
	}
	tableHeaders := []any{"TableName", `Values (format: key:"value" key:"value")`}
	if err := writeSheet(f, headerStyle, SheetValueTables, tableHeaders, tableRows); err != nil {
		return err
	}

	msgRows := make([][]any, 0, len(data.BoVOList))
	for _, boVO := range data.BoVOList {
		msgRows = append(msgRows, []any{
			fmt.Sprintf("0x%X", boVO.CanId),
			boVO.CanName,
			boVO.DataLength,
			boVO.Transmitter,
			boolCell(boVO.Extended),
			boVO.Comment,
		})
	}
	msgHeaders := []any{"MessageID", "MessageName", "DLC", "Transmitter", "IsExtended", "Comment"}
	if err := writeSheet(f, headerStyle, SheetMessages, msgHeaders, msgRows); err != nil {
		return err
	}

	if err := writeSignalSheet(f, headerStyle, data); err != nil {
		return err
	}

	if len(data.BoTxBuVOList) > 0 {
		rows := make([][]any, 0, len(data.BoTxBuVOList))
		for _, boTxBuVO := range data.BoTxBuVOList {
			rows = append(rows, []any{
				fmt.Sprintf("0x%X", boTxBuVO.CanId),
				strings.Join(boTxBuVO.Transmitters, ","),
			})
		}
		headers := []any{"MessageID", "AdditionalTransmitters"}
		if err := writeSheet(f, headerStyle, SheetBoTxBu, headers, rows); err != nil {
			return err
		}
	}

	if len(data.EvVOList) > 0 {
		rows := make([][]any, 0, len(data.EvVOList))
		for _, evVO := range data.EvVOList {
			typeName, ok := envTypeNames[evVO.TypeCode]
			if !ok {
				typeName = "INT"
			}
			rows = append(rows, []any{
				evVO.Name, typeName, evVO.Min, evVO.Max, evVO.Default,
				evVO.Unit, evVO.Nodes, "", evVO.Comment,
			})
		}
		headers := []any{"Name", "Type", "Min", "Max", "Default", "Unit", "Nodes", "DataLength", "Comment"}
		if err := writeSheet(f, headerStyle, SheetEnvVars, headers, rows); err != nil {
			return err
		}
	}

	if len(data.BaDefVOList) > 0 {
		rows := make([][]any, 0, len(data.BaDefVOList))
		for _, baDefVO := range data.BaDefVOList {
			rows = append(rows, []any{
				baDefVO.Scope, baDefVO.PropertyName, baDefVO.TypeName,
				baDefVO.Min, baDefVO.Max, baDefVO.EnumValues,
			})
		}
		headers := []any{"Scope", "PropertyName", "Type", "Min", "Max", "EnumValues"}
		if err := writeSheet(f, headerStyle, SheetBaDef, headers, rows); err != nil {
			return err
		}
	}

	if len(data.BaVOList) > 0 {
		rows := make([][]any, 0, len(data.BaVOList))
		for _, baVO := range data.BaVOList {
			rows = append(rows, []any{baVO.Scope, baVO.ScopeId, baVO.AttrName, baVO.Value})
		}
		headers := []any{"Scope", "ScopeIdentifier", "AttributeName", "Value"}
		if err := writeSheet(f, headerStyle, SheetBa, headers, rows); err != nil {
			return err
		}
	}

	if len(data.CmVOList) > 0 {
		rows := make([][]any, 0, len(data.CmVOList))
		for _, cmVO := range data.CmVOList {
			rows = append(rows, []any{cmVO.ObjectType, cmVO.Scope, cmVO.Comment})
		}
		headers := []any{"Type", "Scope", "Comment"}
		if err := writeSheet(f, headerStyle, SheetComments, headers, rows); err != nil {
			return err
		}
	}

	if err := f.DeleteSheet("Sheet1"); err != nil {
		return err
	}

	return f.SaveAs(filename)
}

// writeSignalSheet emits one row per signal, grouped by ascending message id
// in declaration order within each message.
func writeSignalSheet(f *excelize.File, headerStyle int, data *DbcVO) error {
	inlineTables := make(map[string]string, len(data.ValVOList))
	for _, valVO := range data.ValVOList {
		inlineTables[fmt.Sprintf("%d:%s", valVO.CanId, valVO.SignalName)] = formatDefineMap(valVO.DefineMap)
	}

	valTypes := make(map[string]string, len(data.SigValTypeVOList))
	for _, sigValTypeVO := range data.SigValTypeVOList {
		valTypes[fmt.Sprintf("%d:%s", sigValTypeVO.CanId, sigValTypeVO.SignalName)] = sigValTypeNames[sigValTypeVO.ValType]
	}

	canIds := make([]uint64, 0, len(data.BoVoMap))
	for canId := range data.BoVoMap {
		canIds = append(canIds, canId)
	}
	sort.Slice(canIds, func(i, j int) bool { return canIds[i] < canIds[j] })

	var rows [][]any
	for _, canId := range canIds {
		boVO := data.BoVoMap[canId]
		for _, name := range boVO.OrderedSignals {
			sgVO := boVO.SgVoMap[name]
			key := fmt.Sprintf("%d:%s", canId, name)
			rows = append(rows, []any{
				fmt.Sprintf("0x%X", canId),
				sgVO.SignalName,
				sgVO.StartBit,
				sgVO.BitWidth,
				fmt.Sprintf("@%d%s", sgVO.ByteOrder, sgVO.ValueType),
				fmt.Sprintf("(%s,%s)", sgVO.FactorRaw, sgVO.OffsetRaw),
				fmt.Sprintf("[%s|%s]", sgVO.Min, sgVO.Max),
				sgVO.Unit,
				strings.Join(sgVO.Receivers, ","),
				sgVO.Comment,
				"", // InitialValue
				valTypes[key],
				"", // SendType
				sgVO.Multiplexing,
				inlineTables[key],
			})
		}
	}

	headers := []any{
		"MessageID", "SignalName", "StartBit", "Length", "ByteOrder@Sign",
		"Factor,Offset", "Min|Max", "Unit", "Receivers", "Comment",
		"InitialValue", "ValueType", "SendType", "Multiplexing", "ValueTable",
	}
	return writeSheet(f, headerStyle, SheetSignals, headers, rows)
}

func writeSheet(f *excelize.File, headerStyle int, name string, headers []any, rows [][]any) error {
	if _, err := f.NewSheet(name); err != nil {
		return err
	}

	if err := f.SetSheetRow(name, "A1", &headers); err != nil {
		return err
	}
	end, err := excelize.CoordinatesToCellName(len(headers), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(name, "A1", end, headerStyle); err != nil {
		return err
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(name, cell, &row); err != nil {
			return err
		}
	}

	log.Debugf("Wrote sheet(%s), rows(%d)", name, len(rows))
	return nil
}

func boolCell(b bool) string {
	if b {
		return "TRUE"
	}
	return "FALSE"
}
