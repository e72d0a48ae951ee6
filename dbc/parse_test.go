package dbc

import (
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func init() {
	log.SetLevel(logrus.FatalLevel)
}

func parseString(t *testing.T, s string) *DbcVO {
	t.Helper()

	p := NewParser(strings.NewReader(s))
	if !p.Parse() {
		t.Fatalf("Parse failed: %v", p.Err())
	}
	return p.Model()
}

func TestNormalizeCanId(t *testing.T) {
	tests := []struct {
		raw      uint64
		id       uint64
		extended bool
	}{
		{0, 0, false},
		{100, 100, false},
		{0x7FFFFFFF, 0x7FFFFFFF, false},
		{0x80000000, 0, true},
		{0x80000004, 4, true},
		{2147483748, 100, true},
	}

	for _, tt := range tests {
		id, extended := normalizeCanId(tt.raw)
		if id != tt.id || extended != tt.extended {
			t.Errorf("normalizeCanId(%d) = (%d, %v), want (%d, %v)", tt.raw, id, extended, tt.id, tt.extended)
		}
	}
}

func TestSignalNearestPrecedingMessage(t *testing.T) {
	src := `
BO_ 100 First: 8 ECU1
BO_ 200 Second: 8 ECU2
 SG_ SigA : 0|8@1+ (1,0) [0|255] "" ECU1
`
	data := parseString(t, src)

	if got := len(data.BoVoMap[100].OrderedSignals); got != 0 {
		t.Errorf("message 100 has %d signals, want 0", got)
	}
	if got := len(data.BoVoMap[200].OrderedSignals); got != 1 {
		t.Fatalf("message 200 has %d signals, want 1", got)
	}
	if data.BoVoMap[200].OrderedSignals[0] != "SigA" {
		t.Errorf("signal name = %s, want SigA", data.BoVoMap[200].OrderedSignals[0])
	}
}

func TestSignalAssociationInterleaved(t *testing.T) {
	src := `
BO_ 100 First: 8 ECU1
 SG_ A1 : 0|8@1+ (1,0) [0|255] "" ECU2
 SG_ A2 : 8|8@1+ (1,0) [0|255] "" ECU2
BO_ 200 Second: 8 ECU2
 SG_ B1 : 0|8@1+ (1,0) [0|255] "" ECU1
BO_ 300 Third: 4 ECU1
 SG_ C1 : 0|16@0- (0.1,-40) [-40|215] "degC" ECU2,ECU3
`
	data := parseString(t, src)

	want := map[uint64][]string{
		100: {"A1", "A2"},
		200: {"B1"},
		300: {"C1"},
	}
	for canId, names := range want {
		boVO := data.BoVoMap[canId]
		if boVO == nil {
			t.Fatalf("message %d not parsed", canId)
		}
		if len(boVO.OrderedSignals) != len(names) {
			t.Fatalf("message %d has signals %v, want %v", canId, boVO.OrderedSignals, names)
		}
		for i, name := range names {
			if boVO.OrderedSignals[i] != name {
				t.Errorf("message %d signal[%d] = %s, want %s", canId, i, boVO.OrderedSignals[i], name)
			}
		}
	}

	sgVO := data.BoVoMap[300].SgVoMap["C1"]
	if sgVO.StartBit != 0 || sgVO.BitWidth != 16 || sgVO.ByteOrder != 0 || sgVO.ValueType != "-" {
		t.Errorf("C1 layout = %d|%d@%d%s", sgVO.StartBit, sgVO.BitWidth, sgVO.ByteOrder, sgVO.ValueType)
	}
	if sgVO.FactorRaw != "0.1" || sgVO.OffsetRaw != "-40" || sgVO.Min != "-40" || sgVO.Max != "215" {
		t.Errorf("C1 scaling = (%s,%s) [%s|%s]", sgVO.FactorRaw, sgVO.OffsetRaw, sgVO.Min, sgVO.Max)
	}
	if sgVO.Unit != "degC" {
		t.Errorf("C1 unit = %q", sgVO.Unit)
	}
	if len(sgVO.Receivers) != 2 || sgVO.Receivers[0] != "ECU2" || sgVO.Receivers[1] != "ECU3" {
		t.Errorf("C1 receivers = %v", sgVO.Receivers)
	}
}

func TestOrphanSignalCounted(t *testing.T) {
	src := `
 SG_ Lost : 0|8@1+ (1,0) [0|255] "" ECU1
BO_ 100 First: 8 ECU1
`
	data := parseString(t, src)

	if data.OrphanSignals != 1 {
		t.Errorf("OrphanSignals = %d, want 1", data.OrphanSignals)
	}
	if got := len(data.BoVoMap[100].OrderedSignals); got != 0 {
		t.Errorf("message 100 has %d signals, want 0", got)
	}
}

func TestValTableRoundTrip(t *testing.T) {
	data := parseString(t, `VAL_TABLE_ Tbl 0 "Off" 1 "On" ;`)

	if len(data.ValTableVOList) != 1 {
		t.Fatalf("parsed %d value tables, want 1", len(data.ValTableVOList))
	}
	valTable := data.ValTableVOList[0]
	if valTable.TableName != "Tbl" {
		t.Errorf("table name = %s, want Tbl", valTable.TableName)
	}
	if len(valTable.DefineMap) != 2 || valTable.DefineMap[0] != "Off" || valTable.DefineMap[1] != "On" {
		t.Errorf("define map = %v", valTable.DefineMap)
	}

	if got := formatDefineMap(valTable.DefineMap); got != `0:"Off" 1:"On"` {
		t.Errorf("formatDefineMap = %s", got)
	}
}

func TestValTableNegativeAndDuplicateKeys(t *testing.T) {
	data := parseString(t, `VAL_TABLE_ Tbl -1 "Invalid" 0 "Off" 0 "Idle" ;`)

	defineMap := data.ValTableVOList[0].DefineMap
	if defineMap[-1] != "Invalid" {
		t.Errorf("key -1 = %q, want Invalid", defineMap[-1])
	}
	// duplicate keys: last occurrence wins
	if defineMap[0] != "Idle" {
		t.Errorf("key 0 = %q, want Idle", defineMap[0])
	}
	if got := formatDefineMap(defineMap); got != `-1:"Invalid" 0:"Idle"` {
		t.Errorf("formatDefineMap = %s", got)
	}
}

func TestValEntryDisambiguation(t *testing.T) {
	src := `
VAL_ 2147483748 SigA 0 "Off" 1 "On" ;
VAL_ EnvTemp 0 "Cold" 1 "Hot" ;
`
	data := parseString(t, src)

	if len(data.ValVOList) != 1 {
		t.Fatalf("parsed %d signal VAL_ entries, want 1", len(data.ValVOList))
	}
	valVO := data.ValVOList[0]
	if valVO.CanId != 100 || valVO.SignalName != "SigA" {
		t.Errorf("signal entry = (%d, %s), want (100, SigA)", valVO.CanId, valVO.SignalName)
	}
	if valVO.DefineMap[1] != "On" {
		t.Errorf("signal define map = %v", valVO.DefineMap)
	}

	if len(data.EnvValVOList) != 1 {
		t.Fatalf("parsed %d env VAL_ entries, want 1", len(data.EnvValVOList))
	}
	envValVO := data.EnvValVOList[0]
	if envValVO.EnvName != "EnvTemp" || envValVO.DefineMap[0] != "Cold" {
		t.Errorf("env entry = (%s, %v)", envValVO.EnvName, envValVO.DefineMap)
	}
}

func TestCommentWithoutMessage(t *testing.T) {
	data := parseString(t, `CM_ BO_ 100 "hello";`)

	if len(data.CmVOList) != 1 {
		t.Fatalf("parsed %d comments, want 1", len(data.CmVOList))
	}
	cmVO := data.CmVOList[0]
	if cmVO.ObjectType != "BO" || cmVO.Scope != "100" || cmVO.Comment != "hello" {
		t.Errorf("comment = %+v", cmVO)
	}
}

func TestCommentKinds(t *testing.T) {
	src := `
BO_ 100 First: 8 ECU1
 SG_ SigA : 0|8@1+ (1,0) [0|255] "" ECU1
CM_ BU_ ECU1 "main controller";
CM_ BO_ 100 "cyclic frame";
CM_ SG_ 2147483748 SigA "scaled value";
CM_ EV_ EnvTemp "outside temperature";
`
	data := parseString(t, src)

	if len(data.CmVOList) != 4 {
		t.Fatalf("parsed %d comments, want 4", len(data.CmVOList))
	}

	byType := make(map[string]CmVO)
	for _, cmVO := range data.CmVOList {
		byType[cmVO.ObjectType] = cmVO
	}
	if byType["BU"].Scope != "ECU1" {
		t.Errorf("BU scope = %s", byType["BU"].Scope)
	}
	if byType["BO"].Scope != "100" {
		t.Errorf("BO scope = %s", byType["BO"].Scope)
	}
	if byType["SG"].Scope != "100:SigA" {
		t.Errorf("SG scope = %s, want 100:SigA", byType["SG"].Scope)
	}
	if byType["EV"].Scope != "EnvTemp" {
		t.Errorf("EV scope = %s", byType["EV"].Scope)
	}

	// comments are attached onto declared targets
	if data.BoVoMap[100].Comment != "cyclic frame" {
		t.Errorf("message comment = %q", data.BoVoMap[100].Comment)
	}
	if data.BoVoMap[100].SgVoMap["SigA"].Comment != "scaled value" {
		t.Errorf("signal comment = %q", data.BoVoMap[100].SgVoMap["SigA"].Comment)
	}
}

func TestBaSignalScopeNormalized(t *testing.T) {
	data := parseString(t, `BA_ "Prop" SG_ 2147483652 SigA 5;`)

	if len(data.BaVOList) != 1 {
		t.Fatalf("parsed %d assignments, want 1", len(data.BaVOList))
	}
	baVO := data.BaVOList[0]
	if baVO.Scope != "SG" || baVO.ScopeId != "4:SigA" || baVO.AttrName != "Prop" || baVO.Value != "5" {
		t.Errorf("assignment = %+v", baVO)
	}
}

func TestBaScopes(t *testing.T) {
	src := `
BA_ "BusType" "CAN FD";
BA_ "NodeRole" BU_ ECU1 "gateway";
BA_ "GenMsgCycleTime" BO_ 100 20;
BA_ "EnvRate" EV_ EnvTemp 50;
`
	data := parseString(t, src)

	if len(data.BaVOList) != 4 {
		t.Fatalf("parsed %d assignments, want 4", len(data.BaVOList))
	}

	byAttr := make(map[string]BaVO)
	for _, baVO := range data.BaVOList {
		byAttr[baVO.AttrName] = baVO
	}

	if baVO := byAttr["BusType"]; baVO.Scope != "GLOBAL" || baVO.ScopeId != "" || baVO.Value != "CAN FD" {
		t.Errorf("global assignment = %+v", baVO)
	}
	if baVO := byAttr["NodeRole"]; baVO.Scope != "BU" || baVO.ScopeId != "ECU1" || baVO.Value != "gateway" {
		t.Errorf("node assignment = %+v", baVO)
	}
	if baVO := byAttr["GenMsgCycleTime"]; baVO.Scope != "BO" || baVO.ScopeId != "100" || baVO.Value != "20" {
		t.Errorf("message assignment = %+v", baVO)
	}
	if baVO := byAttr["EnvRate"]; baVO.Scope != "EV" || baVO.ScopeId != "EnvTemp" || baVO.Value != "50" {
		t.Errorf("env assignment = %+v", baVO)
	}
}

func TestBaDefTypes(t *testing.T) {
	src := `
BA_DEF_ "GlobalInt" INT 0 65535;
BA_DEF_ BO_ "GenMsgSendType" ENUM "Cyclic","Event","IfActive";
BA_DEF_ SG_ "GenSigStartValue" FLOAT -1e9 1e9;
BA_DEF_ BU_ "NodeVersion" STRING ;
BA_DEF_ EV_ "EnvScale" HEX 0 255;
`
	data := parseString(t, src)

	if len(data.BaDefVOList) != 5 {
		t.Fatalf("parsed %d definitions, want 5", len(data.BaDefVOList))
	}

	byName := make(map[string]BaDefVO)
	for _, baDefVO := range data.BaDefVOList {
		byName[baDefVO.PropertyName] = baDefVO
	}

	if d := byName["GlobalInt"]; d.Scope != "GLOBAL" || d.TypeName != "INT" || d.Min != "0" || d.Max != "65535" {
		t.Errorf("GlobalInt = %+v", d)
	}
	if d := byName["GenMsgSendType"]; d.Scope != "MESSAGE" || d.TypeName != "ENUM" || d.EnumValues != `"Cyclic","Event","IfActive"` {
		t.Errorf("GenMsgSendType = %+v", d)
	}
	if d := byName["GenSigStartValue"]; d.Scope != "SIGNAL" || d.TypeName != "FLOAT" || d.Min != "-1e9" || d.Max != "1e9" {
		t.Errorf("GenSigStartValue = %+v", d)
	}
	if d := byName["NodeVersion"]; d.Scope != "NODE" || d.TypeName != "STRING" || d.Min != "" || d.Max != "" || d.EnumValues != "" {
		t.Errorf("NodeVersion = %+v", d)
	}
	if d := byName["EnvScale"]; d.Scope != "ENV" || d.TypeName != "HEX" || d.Min != "0" || d.Max != "255" {
		t.Errorf("EnvScale = %+v", d)
	}
}

func TestMultiplexingTokens(t *testing.T) {
	src := `
BO_ 100 Muxed: 8 ECU1
 SG_ Selector M : 0|4@1+ (1,0) [0|15] "" ECU2
 SG_ GroupTwo m2 : 8|8@1+ (1,0) [0|255] "" ECU2
 SG_ Nested m2M : 16|8@1+ (1,0) [0|255] "" ECU2
 SG_ Plain : 24|8@1+ (1,0) [0|255] "" ECU2
`
	data := parseString(t, src)

	boVO := data.BoVoMap[100]
	want := map[string]string{
		"Selector": "M",
		"GroupTwo": "m2",
		"Nested":   "m2M",
		"Plain":    "",
	}
	for name, mux := range want {
		sgVO, ok := boVO.SgVoMap[name]
		if !ok {
			t.Fatalf("signal %s not parsed", name)
		}
		if sgVO.Multiplexing != mux {
			t.Errorf("signal %s multiplexing = %q, want %q", name, sgVO.Multiplexing, mux)
		}
	}
}

func TestExtendedMessage(t *testing.T) {
	src := `
BO_ 2147483748 ExtFrame: 8 ECU1
 SG_ SigA : 0|8@1+ (1,0) [0|255] "" Vector__XXX
BO_TX_BU_ 2147483748 : ECU2,ECU3;
SIG_VALTYPE_ 2147483748 SigA : 1;
`
	data := parseString(t, src)

	boVO, ok := data.BoVoMap[100]
	if !ok {
		t.Fatal("extended message not keyed by normalized id")
	}
	if !boVO.Extended {
		t.Error("Extended = false, want true")
	}
	if boVO.CanName != "ExtFrame" {
		t.Errorf("name = %s", boVO.CanName)
	}
	if got := boVO.SgVoMap["SigA"].Receivers; len(got) != 1 || got[0] != "Vector__XXX" {
		t.Errorf("receivers = %v, want the Vector__XXX sentinel kept as-is", got)
	}

	if len(data.BoTxBuVOList) != 1 {
		t.Fatalf("parsed %d extra transmitters, want 1", len(data.BoTxBuVOList))
	}
	boTxBuVO := data.BoTxBuVOList[0]
	if boTxBuVO.CanId != 100 || len(boTxBuVO.Transmitters) != 2 || boTxBuVO.Transmitters[1] != "ECU3" {
		t.Errorf("extra transmitters = %+v", boTxBuVO)
	}

	if len(data.SigValTypeVOList) != 1 {
		t.Fatalf("parsed %d value type overrides, want 1", len(data.SigValTypeVOList))
	}
	sigValTypeVO := data.SigValTypeVOList[0]
	if sigValTypeVO.CanId != 100 || sigValTypeVO.SignalName != "SigA" || sigValTypeVO.ValType != 1 {
		t.Errorf("value type override = %+v", sigValTypeVO)
	}
}

func TestEnvironmentVariable(t *testing.T) {
	src := `
EV_ EnvTemp : 1 [-40|125] "degC" 20 5 DUMMY_NODE_VECTOR0 ECU1,ECU2;
CM_ EV_ EnvTemp "outside temperature";
`
	data := parseString(t, src)

	if len(data.EvVOList) != 1 {
		t.Fatalf("parsed %d environment variables, want 1", len(data.EvVOList))
	}
	evVO := data.EvVOList[0]
	if evVO.Name != "EnvTemp" || evVO.TypeCode != "1" {
		t.Errorf("env var = %+v", evVO)
	}
	if evVO.Min != "-40" || evVO.Max != "125" || evVO.Unit != "degC" || evVO.Default != "20" {
		t.Errorf("env var fields = %+v", evVO)
	}
	if evVO.Nodes != "ECU1,ECU2" {
		t.Errorf("env var nodes = %q", evVO.Nodes)
	}
	if evVO.Comment != "outside temperature" {
		t.Errorf("env var comment = %q", evVO.Comment)
	}
}

func TestNodesLine(t *testing.T) {
	data := parseString(t, "BU_: ECU1 GW BMS\n")
	if len(data.Nodes) != 3 || data.Nodes[0] != "ECU1" || data.Nodes[2] != "BMS" {
		t.Errorf("nodes = %v", data.Nodes)
	}

	data = parseString(t, "VERSION \"1.0\"\n")
	if len(data.Nodes) != 0 {
		t.Errorf("nodes = %v, want empty without a BU_ line", data.Nodes)
	}
}

func TestMinimalEndToEnd(t *testing.T) {
	src := `
BU_: ECU1

BO_ 100 Msg1: 8 ECU1
 SG_ SigA : 0|8@1+ (1,0) [0|255] "" ECU1
`
	data := parseString(t, src)

	if len(data.Nodes) != 1 || data.Nodes[0] != "ECU1" {
		t.Errorf("nodes = %v, want [ECU1]", data.Nodes)
	}

	if len(data.BoVOList) != 1 {
		t.Fatalf("parsed %d messages, want 1", len(data.BoVOList))
	}
	boVO := data.BoVOList[0]
	if boVO.CanId != 100 || boVO.CanName != "Msg1" || boVO.DataLength != 8 ||
		boVO.Transmitter != "ECU1" || boVO.Extended {
		t.Errorf("message = %+v", boVO)
	}

	if len(boVO.OrderedSignals) != 1 {
		t.Fatalf("parsed %d signals, want 1", len(boVO.OrderedSignals))
	}
	sgVO := boVO.SgVoMap["SigA"]
	if sgVO.SignalName != "SigA" || sgVO.StartBit != 0 || sgVO.BitWidth != 8 ||
		sgVO.ByteOrder != 1 || sgVO.ValueType != "+" {
		t.Errorf("signal = %+v", sgVO)
	}
	if sgVO.FactorRaw != "1" || sgVO.OffsetRaw != "0" || sgVO.Min != "0" || sgVO.Max != "255" || sgVO.Unit != "" {
		t.Errorf("signal scaling = %+v", sgVO)
	}
	if len(sgVO.Receivers) != 1 || sgVO.Receivers[0] != "ECU1" {
		t.Errorf("signal receivers = %v", sgVO.Receivers)
	}

	// all optional collections stay empty
	if len(data.ValTableVOList) != 0 || len(data.ValVOList) != 0 || len(data.EnvValVOList) != 0 ||
		len(data.CmVOList) != 0 || len(data.BaDefVOList) != 0 || len(data.BaVOList) != 0 ||
		len(data.BoTxBuVOList) != 0 || len(data.EvVOList) != 0 || len(data.SigValTypeVOList) != 0 {
		t.Errorf("optional collections not empty: %+v", data)
	}
	if data.OrphanSignals != 0 {
		t.Errorf("OrphanSignals = %d, want 0", data.OrphanSignals)
	}
}

func TestMalformedLinesSkipped(t *testing.T) {
	src := `
this is not a dbc statement
BO_ notanumber Msg: 8 ECU1
BO_ 100 Msg1: 8 ECU1
 SG_ Broken 0|8@1+ missing colon
 SG_ SigA : 0|8@1+ (1,0) [0|255] "" ECU1
`
	data := parseString(t, src)

	if len(data.BoVOList) != 1 {
		t.Fatalf("parsed %d messages, want 1", len(data.BoVOList))
	}
	if got := data.BoVoMap[100].OrderedSignals; len(got) != 1 || got[0] != "SigA" {
		t.Errorf("signals = %v, want [SigA]", got)
	}
}
