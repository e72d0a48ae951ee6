package dbc

type SgVO struct {
	/**
	* signal name
	 */
	SignalName string
	/**
	* multiplexing token, kept verbatim:
	* a) empty, a plain signal.
	* b) M, the multiplexor signal.
	* c) m50, a multiplexed signal active when the multiplexor equals 50.
	*    A trailing M (m50M) marks a combined multiplexed multiplexor.
	 */
	Multiplexing string
	/**
	* start bit
	 */
	StartBit int
	/**
	* bit length
	 */
	BitWidth int
	/**
	* byte order: 0 Motorola, 1 Intel
	 */
	ByteOrder int
	/**
	* value sign: + unsigned, - signed
	 */
	ValueType string
	/**
	* scale factor, physical = raw * factor + offset
	 */
	Factor float64
	/**
	* offset
	 */
	Offset float64
	/**
	* factor/offset/min/max as written in the source, for sheet output
	 */
	FactorRaw string
	OffsetRaw string
	Min       string
	Max       string
	/**
	* unit
	 */
	Unit string
	/**
	* receiver nodes; a lone Vector__XXX sentinel is stored as-is
	 */
	Receivers []string
	/**
	* comment attached from a CM_ SG_ entry
	 */
	Comment string
	/**
	* dbc source line
	 */
	DbcContent string
}

type BoVO struct {
	/**
	* message id, normalized (extended flag bit cleared)
	 */
	CanId uint64
	/**
	* true when the raw id carried the 0x80000000 extended-frame bit
	 */
	Extended bool
	/**
	* message name
	 */
	CanName string
	/**
	* data length code in bytes
	 */
	DataLength uint64
	/**
	* transmitting node
	 */
	Transmitter string
	/**
	* signals by name
	 */
	SgVoMap map[string]*SgVO
	/**
	* signal names in declaration order
	 */
	OrderedSignals []string
	/**
	* comment attached from a CM_ BO_ entry
	 */
	Comment string
	/**
	* dbc source line
	 */
	DbcContent string
}

type ValTableVO struct {
	/**
	 * shared table name
	 */
	TableName string
	/**
	 * value definitions, raw value to label
	 */
	DefineMap map[int64]string
}

type ValVO struct {
	/**
	 * message id, normalized
	 */
	CanId uint64
	/**
	 * signal name
	 */
	SignalName string
	/**
	 * value definitions
	 */
	DefineMap map[int64]string
}

type EnvValVO struct {
	/**
	 * environment variable name
	 */
	EnvName string
	/**
	 * value definitions
	 */
	DefineMap map[int64]string
}

type CmVO struct {
	/**
	* annotated object kind: BO, SG, BU or EV
	 */
	ObjectType string
	/**
	* target identifier; SG uses "id:signal" with the id normalized
	 */
	Scope string
	/**
	* comment text
	 */
	Comment string
}

type BaDefVO struct {
	/**
	* GLOBAL, MESSAGE, NODE, SIGNAL or ENV
	 */
	Scope string
	/**
	* quoted property name
	 */
	PropertyName string
	/**
	* type token, uppercased: INT, HEX, FLOAT, ENUM, STRING, ...
	 */
	TypeName string
	/**
	* numeric bounds, only for INT/HEX/FLOAT
	 */
	Min string
	Max string
	/**
	* enumeration literals, verbatim, only for ENUM
	 */
	EnumValues string
}

type BaVO struct {
	/**
	* GLOBAL, BU, BO, SG or EV
	 */
	Scope string
	/**
	* scope identifier; SG uses "id:signal" with the id normalized
	 */
	ScopeId string
	/**
	* property name
	 */
	AttrName string
	/**
	* assigned value, surrounding quotes stripped
	 */
	Value string
}

type BoTxBuVO struct {
	/**
	 * message id, normalized
	 */
	CanId uint64
	/**
	 * additional transmitting nodes
	 */
	Transmitters []string
}

type EvVO struct {
	/**
	* variable name
	 */
	Name string
	/**
	* declared type code: 0 int, 1 float, 2 string
	 */
	TypeCode string
	/**
	* range, unit, default and access as written in the source
	 */
	Min     string
	Max     string
	Unit    string
	Default string
	Access  string
	/**
	* associated node list
	 */
	Nodes string
	/**
	* comment attached from a CM_ EV_ entry
	 */
	Comment string
}

type SigValTypeVO struct {
	/**
	 * message id, normalized
	 */
	CanId uint64
	/**
	 * signal name
	 */
	SignalName string
	/**
	 * decoded type override: 1 float32, 2 float64
	 */
	ValType int
}

type DbcVO struct {
	/**
	* network nodes, declaration order
	 */
	Nodes []string
	/**
	* shared value table definitions
	 */
	ValTableVOList []ValTableVO
	/**
	* message definitions, <canid, BO>
	 */
	BoVoMap map[uint64]*BoVO
	/**
	* messages in declaration order (duplicate ids kept)
	 */
	BoVOList []*BoVO
	/**
	* per-signal value tables
	 */
	ValVOList []ValVO
	/**
	* per-environment-variable value tables
	 */
	EnvValVOList []EnvValVO
	/**
	* annotations
	 */
	CmVOList []CmVO
	/**
	* custom attribute definitions
	 */
	BaDefVOList []BaDefVO
	/**
	* custom attribute assignments
	 */
	BaVOList []BaVO
	/**
	* additional transmitters per message
	 */
	BoTxBuVOList []BoTxBuVO
	/**
	* environment variables
	 */
	EvVOList []EvVO
	/**
	* signal value type overrides
	 */
	SigValTypeVOList []SigValTypeVO
	/**
	* signals discarded because no message declaration preceded them
	 */
	OrphanSignals int
}

// SignalCount sums the signals attached to every message.
func (d *DbcVO) SignalCount() int {
	var n int
	for _, boVO := range d.BoVoMap {
		n += len(boVO.OrderedSignals)
	}
	return n
}
