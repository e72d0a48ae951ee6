package dbc

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"DBCConverter/base"
)

var log = base.Logger

const (
	kBU         = "BU_"
	kBO         = "BO_"
	kSG         = "SG_"
	kEV         = "EV_"
	kValTable   = "VAL_TABLE_"
	kVAL        = "VAL_"
	kCM         = "CM_"
	kBaDef      = "BA_DEF_"
	kBa         = "BA_"
	kBoTxBu     = "BO_TX_BU_"
	kSigValType = "SIG_VALTYPE_"
)

// extended-frame flag bit on raw message ids
const extendedFlag uint64 = 0x80000000

var (
	reBU       = regexp.MustCompile(`BU_:[ \t]*(.*)`)
	reValTable = regexp.MustCompile(`VAL_TABLE_\s+(\S+)\s+(.+?)\s*;`)
	rePair     = regexp.MustCompile(`(-?\d+)\s+"([^"]*)"`)
	reBO       = regexp.MustCompile(`BO_\s+(\d+)\s+(\S+):\s*(\d+)\s+(\S+)`)
	reSG       = regexp.MustCompile(`SG_\s+(\S+)\s*(M|m\d+M?)?\s*:\s*(\d+)\|(\d+)@([01])([+-])\s*\(([^,]+),([^)]+)\)\s*\[([^|]+)\|([^\]]+)\]\s*"([^"]*)"\s*(.+)`)
	reValSig   = regexp.MustCompile(`VAL_\s+(\d+)\s+(\S+)\s+(.+?)\s*;`)
	reValEnv   = regexp.MustCompile(`VAL_\s+(\S+)\s+(.+?)\s*;`)
	reCmBO     = regexp.MustCompile(`CM_\s+BO_\s+(\d+)\s+"([^"]*)"\s*;`)
	reCmSG     = regexp.MustCompile(`CM_\s+SG_\s+(\d+)\s+(\S+)\s+"([^"]*)"\s*;`)
	reCmBU     = regexp.MustCompile(`CM_\s+BU_\s+(\S+)\s+"([^"]*)"\s*;`)
	reCmEV     = regexp.MustCompile(`CM_\s+EV_\s+(\S+)\s+"([^"]*)"\s*;`)
	reBaDef    = regexp.MustCompile(`BA_DEF_\s+(BU_|BO_|SG_|EV_)?\s*"([^"]+)"\s+(\S+)\s*([^;]*);`)
	reBa       = regexp.MustCompile(`BA_\s+"([^"]+)"\s+([^;]+);`)
	reBoTxBu   = regexp.MustCompile(`BO_TX_BU_\s+(\d+)\s*:\s*([^;]+);`)
	reEV       = regexp.MustCompile(`EV_\s+(\S+)\s*:\s*(\d+)\s*\[([^|]+)\|([^\]]+)\]\s*"([^"]*)"\s+(\S+)\s+(\d+)\s+(\S+)\s+(.+?);`)
	reSigVT    = regexp.MustCompile(`SIG_VALTYPE_\s+(\d+)\s+(\S+)\s*:\s*(\d+)\s*;`)
)

type Parser struct {
	r       io.Reader
	content string
	data    DbcVO
	err     error

	// BO_ declaration offsets and their normalized ids, in text order
	msgOffsets []int
	msgIds     []uint64
}

func NewParser(r io.Reader) *Parser {
	return &Parser{
		r: r,
	}
}

// normalizeCanId clears the extended-frame flag bit from a raw message id.
// Every id parsed out of the source must go through here before it is used
// as a lookup key.
func normalizeCanId(raw uint64) (uint64, bool) {
	if raw >= extendedFlag {
		return raw - extendedFlag, true
	}
	return raw, false
}

func (p *Parser) Parse() bool {
	raw, err := io.ReadAll(p.r)
	if err != nil {
		log.Errorln(err)
		p.setErr(err)
		return false
	}

	if f, ok := p.r.(*os.File); ok {
		log.Infoln("read dbc from ", f.Name())
	}

	p.content = string(raw)
	p.data = DbcVO{BoVoMap: make(map[uint64]*BoVO)}
	p.msgOffsets = p.msgOffsets[:0]
	p.msgIds = p.msgIds[:0]

	// independent passes over the same buffer; only SG_ depends on the BO_
	// offsets collected beforehand
	p.parseBU()
	p.parseValTable()
	p.parseBO()
	p.parseSG()
	p.parseVal()
	p.parseEnvVal()
	p.parseCM()
	p.parseBaDef()
	p.parseBa()
	p.parseBoTxBu()
	p.parseEV()
	p.parseSigValType()
	p.attachComments()

	return true
}

// Model returns the parsed database.
func (p *Parser) Model() *DbcVO {
	return &p.data
}

func (p *Parser) parseBU() {
	m := reBU.FindStringSubmatch(p.content)
	if m == nil {
		return
	}

	p.data.Nodes = append(p.data.Nodes, strings.Fields(m[1])...)
}

func (p *Parser) parseValTable() {
	for _, m := range reValTable.FindAllStringSubmatch(p.content, -1) {
		p.data.ValTableVOList = append(p.data.ValTableVOList, ValTableVO{
			TableName: m[1],
			DefineMap: parseDefineMap(m[2]),
		})
	}
}

// parseDefineMap parses a (integer, quoted label) pair sequence like
// `0 "Off" 1 "On"`. Shared by VAL_TABLE_ and both VAL_ entry kinds.
// Duplicate keys: last occurrence wins.
func parseDefineMap(s string) map[int64]string {
	defineMap := make(map[int64]string)
	for _, m := range rePair.FindAllStringSubmatch(s, -1) {
		key, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			continue
		}
		defineMap[key] = m[2]
	}
	return defineMap
}

// formatDefineMap is the inverse of parseDefineMap, sorted by key.
func formatDefineMap(defineMap map[int64]string) string {
	keys := make([]int64, 0, len(defineMap))
	for k := range defineMap {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, fmt.Sprintf("%d:%q", k, defineMap[k]))
	}
	return strings.Join(pairs, " ")
}

func (p *Parser) parseBO() {
	for _, m := range reBO.FindAllStringSubmatchIndex(p.content, -1) {
		rawId, err := strconv.ParseUint(p.content[m[2]:m[3]], 10, 64)
		if err != nil {
			continue
		}
		canId, extended := normalizeCanId(rawId)

		boVO := &BoVO{
			CanId:       canId,
			Extended:    extended,
			CanName:     p.content[m[4]:m[5]],
			Transmitter: p.content[m[8]:m[9]],
			SgVoMap:     make(map[string]*SgVO),
			DbcContent:  p.content[m[0]:m[1]],
		}
		boVO.DataLength, _ = strconv.ParseUint(p.content[m[6]:m[7]], 10, 64)

		p.data.BoVoMap[canId] = boVO
		p.data.BoVOList = append(p.data.BoVOList, boVO)
		p.msgOffsets = append(p.msgOffsets, m[0])
		p.msgIds = append(p.msgIds, canId)
	}
}

// messageBefore returns the message whose declaration is the nearest one
// preceding text offset pos, or nil when no message precedes it.
func (p *Parser) messageBefore(pos int) *BoVO {
	i := sort.Search(len(p.msgOffsets), func(i int) bool { return p.msgOffsets[i] >= pos })
	if i == 0 {
		return nil
	}
	return p.data.BoVoMap[p.msgIds[i-1]]
}

func (p *Parser) parseSG() {
	for _, m := range reSG.FindAllStringSubmatchIndex(p.content, -1) {
		group := func(i int) string {
			if m[2*i] < 0 {
				return ""
			}
			return p.content[m[2*i]:m[2*i+1]]
		}

		boVO := p.messageBefore(m[0])
		if boVO == nil {
			p.data.OrphanSignals++
			log.Warnf("Discard signal(%s), no preceding message declaration", group(1))
			continue
		}

		var sgVO SgVO
		sgVO.SignalName = group(1)
		sgVO.Multiplexing = group(2)
		sgVO.StartBit, _ = strconv.Atoi(group(3))
		sgVO.BitWidth, _ = strconv.Atoi(group(4))
		sgVO.ByteOrder, _ = strconv.Atoi(group(5))
		sgVO.ValueType = group(6)
		sgVO.FactorRaw = strings.TrimSpace(group(7))
		sgVO.OffsetRaw = strings.TrimSpace(group(8))
		sgVO.Factor, _ = strconv.ParseFloat(sgVO.FactorRaw, 64)
		sgVO.Offset, _ = strconv.ParseFloat(sgVO.OffsetRaw, 64)
		sgVO.Min = strings.TrimSpace(group(9))
		sgVO.Max = strings.TrimSpace(group(10))
		sgVO.Unit = group(11)
		sgVO.Receivers = strings.Fields(strings.ReplaceAll(group(12), ",", " "))
		sgVO.DbcContent = strings.TrimSpace(p.content[m[0]:m[1]])

		boVO.SgVoMap[sgVO.SignalName] = &sgVO
		boVO.OrderedSignals = append(boVO.OrderedSignals, sgVO.SignalName)
	}
}

func (p *Parser) parseVal() {
	for _, m := range reValSig.FindAllStringSubmatch(p.content, -1) {
		rawId, err := strconv.ParseUint(m[1], 10, 64)
		if err != nil {
			continue
		}
		canId, _ := normalizeCanId(rawId)

		p.data.ValVOList = append(p.data.ValVOList, ValVO{
			CanId:      canId,
			SignalName: m[2],
			DefineMap:  parseDefineMap(m[3]),
		})
	}
}

func (p *Parser) parseEnvVal() {
	for _, m := range reValEnv.FindAllStringSubmatch(p.content, -1) {
		// a numeric leading token is a signal-scoped entry, handled by parseVal
		if isNumber(m[1]) {
			continue
		}

		p.data.EnvValVOList = append(p.data.EnvValVOList, EnvValVO{
			EnvName:   m[1],
			DefineMap: parseDefineMap(m[2]),
		})
	}
}

func (p *Parser) parseCM() {
	for _, m := range reCmBO.FindAllStringSubmatch(p.content, -1) {
		rawId, err := strconv.ParseUint(m[1], 10, 64)
		if err != nil {
			continue
		}
		canId, _ := normalizeCanId(rawId)
		p.data.CmVOList = append(p.data.CmVOList, CmVO{
			ObjectType: "BO",
			Scope:      strconv.FormatUint(canId, 10),
			Comment:    m[2],
		})
	}

	for _, m := range reCmSG.FindAllStringSubmatch(p.content, -1) {
		rawId, err := strconv.ParseUint(m[1], 10, 64)
		if err != nil {
			continue
		}
		canId, _ := normalizeCanId(rawId)
		p.data.CmVOList = append(p.data.CmVOList, CmVO{
			ObjectType: "SG",
			Scope:      fmt.Sprintf("%d:%s", canId, m[2]),
			Comment:    m[3],
		})
	}

	for _, m := range reCmBU.FindAllStringSubmatch(p.content, -1) {
		p.data.CmVOList = append(p.data.CmVOList, CmVO{
			ObjectType: "BU",
			Scope:      m[1],
			Comment:    m[2],
		})
	}

	for _, m := range reCmEV.FindAllStringSubmatch(p.content, -1) {
		p.data.CmVOList = append(p.data.CmVOList, CmVO{
			ObjectType: "EV",
			Scope:      m[1],
			Comment:    m[2],
		})
	}
}

func (p *Parser) parseBaDef() {
	for _, m := range reBaDef.FindAllStringSubmatch(p.content, -1) {
		var scope string
		switch m[1] {
		case kBU:
			scope = "NODE"
		case kBO:
			scope = "MESSAGE"
		case kSG:
			scope = "SIGNAL"
		case kEV:
			scope = "ENV"
		default:
			scope = "GLOBAL"
		}

		baDefVO := BaDefVO{
			Scope:        scope,
			PropertyName: m[2],
			TypeName:     strings.ToUpper(m[3]),
		}

		params := strings.TrimSpace(m[4])
		switch baDefVO.TypeName {
		case "INT", "HEX", "FLOAT":
			fields := strings.Fields(params)
			if len(fields) >= 2 {
				baDefVO.Min = fields[0]
				baDefVO.Max = fields[1]
			}
		case "ENUM":
			baDefVO.EnumValues = params
		}

		p.data.BaDefVOList = append(p.data.BaDefVOList, baDefVO)
	}
}

func (p *Parser) parseBa() {
	for _, m := range reBa.FindAllStringSubmatch(p.content, -1) {
		baVO := BaVO{AttrName: m[1]}
		rest := strings.TrimSpace(m[2])

		var value string
		switch {
		case strings.HasPrefix(rest, kBU):
			baVO.Scope = "BU"
			parts := splitTokens(rest, 3)
			if len(parts) > 1 {
				baVO.ScopeId = parts[1]
			}
			if len(parts) > 2 {
				value = parts[2]
			}
		case strings.HasPrefix(rest, kBO):
			baVO.Scope = "BO"
			parts := splitTokens(rest, 3)
			if len(parts) > 1 {
				rawId, err := strconv.ParseUint(parts[1], 10, 64)
				if err != nil {
					continue
				}
				canId, _ := normalizeCanId(rawId)
				baVO.ScopeId = strconv.FormatUint(canId, 10)
			}
			if len(parts) > 2 {
				value = parts[2]
			}
		case strings.HasPrefix(rest, kSG):
			baVO.Scope = "SG"
			parts := splitTokens(rest, 4)
			if len(parts) > 2 {
				rawId, err := strconv.ParseUint(parts[1], 10, 64)
				if err != nil {
					continue
				}
				canId, _ := normalizeCanId(rawId)
				baVO.ScopeId = fmt.Sprintf("%d:%s", canId, parts[2])
			}
			if len(parts) > 3 {
				value = parts[3]
			}
		case strings.HasPrefix(rest, kEV):
			baVO.Scope = "EV"
			parts := splitTokens(rest, 3)
			if len(parts) > 1 {
				baVO.ScopeId = parts[1]
			}
			if len(parts) > 2 {
				value = parts[2]
			}
		default:
			baVO.Scope = "GLOBAL"
			value = rest
		}

		baVO.Value = strings.Trim(strings.TrimSpace(value), "\"")
		p.data.BaVOList = append(p.data.BaVOList, baVO)
	}
}

func (p *Parser) parseBoTxBu() {
	for _, m := range reBoTxBu.FindAllStringSubmatch(p.content, -1) {
		rawId, err := strconv.ParseUint(m[1], 10, 64)
		if err != nil {
			continue
		}
		canId, _ := normalizeCanId(rawId)

		p.data.BoTxBuVOList = append(p.data.BoTxBuVOList, BoTxBuVO{
			CanId:        canId,
			Transmitters: strings.Fields(strings.ReplaceAll(m[2], ",", " ")),
		})
	}
}

func (p *Parser) parseEV() {
	for _, m := range reEV.FindAllStringSubmatch(p.content, -1) {
		p.data.EvVOList = append(p.data.EvVOList, EvVO{
			Name:     m[1],
			TypeCode: m[2],
			Min:      strings.TrimSpace(m[3]),
			Max:      strings.TrimSpace(m[4]),
			Unit:     m[5],
			Default:  m[6],
			Access:   m[7],
			Nodes:    strings.TrimSpace(m[9]),
		})
	}
}

func (p *Parser) parseSigValType() {
	for _, m := range reSigVT.FindAllStringSubmatch(p.content, -1) {
		rawId, err := strconv.ParseUint(m[1], 10, 64)
		if err != nil {
			continue
		}
		canId, _ := normalizeCanId(rawId)

		valType, _ := strconv.Atoi(m[3])
		p.data.SigValTypeVOList = append(p.data.SigValTypeVOList, SigValTypeVO{
			CanId:      canId,
			SignalName: m[2],
			ValType:    valType,
		})
	}
}

// attachComments copies BO/SG/EV comments onto their targets when the target
// was declared in the same source. The flat CmVOList keeps every entry
// regardless.
func (p *Parser) attachComments() {
	for _, cmVO := range p.data.CmVOList {
		switch cmVO.ObjectType {
		case "BO":
			canId, err := strconv.ParseUint(cmVO.Scope, 10, 64)
			if err != nil {
				continue
			}
			if boVO, ok := p.data.BoVoMap[canId]; ok {
				boVO.Comment = cmVO.Comment
			}
		case "SG":
			id, name, ok := strings.Cut(cmVO.Scope, ":")
			if !ok {
				continue
			}
			canId, err := strconv.ParseUint(id, 10, 64)
			if err != nil {
				continue
			}
			if boVO, ok := p.data.BoVoMap[canId]; ok {
				if sgVO, ok := boVO.SgVoMap[name]; ok {
					sgVO.Comment = cmVO.Comment
				}
			}
		case "EV":
			for i := range p.data.EvVOList {
				if p.data.EvVOList[i].Name == cmVO.Scope {
					p.data.EvVOList[i].Comment = cmVO.Comment
				}
			}
		}
	}
}

// splitTokens splits s on whitespace into at most n tokens, the last token
// keeping the remainder verbatim.
func splitTokens(s string, n int) []string {
	var out []string
	s = strings.TrimSpace(s)
	for len(out) < n-1 && s != "" {
		i := strings.IndexFunc(s, unicode.IsSpace)
		if i < 0 {
			break
		}
		out = append(out, s[:i])
		s = strings.TrimLeftFunc(s[i:], unicode.IsSpace)
	}
	if s != "" {
		out = append(out, s)
	}
	return out
}

func isNumber(str string) bool {
	if str == "" {
		return false
	}

	for _, x := range []rune(str) {
		if !unicode.IsNumber(x) {
			return false
		}
	}
	return true
}

// Err returns the first non-EOF error encountered by the parser.
func (p *Parser) Err() error {
	if p.err == io.EOF {
		return nil
	}
	return p.err
}

// setErr records the first error encountered.
func (p *Parser) setErr(err error) {
	if p.err == nil || p.err == io.EOF {
		p.err = err
	}
}
