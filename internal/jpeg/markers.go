package jpeg

import "fmt"

// Marker codes, the byte following 0xFF.
const (
	markerSOF0 = 0xC0
	markerDHT  = 0xC4
	markerDAC  = 0xCC
	markerRST0 = 0xD0
	markerRST7 = 0xD7
	markerSOI  = 0xD8
	markerEOI  = 0xD9
	markerSOS  = 0xDA
	markerDQT  = 0xDB
	markerDRI  = 0xDD
	markerAPP0 = 0xE0
	markerAPP1 = 0xE1
	markerAPPE = 0xEE
	markerAPPF = 0xEF
	markerCOM  = 0xFE
)

// markerClass groups marker codes that share a parser and a position in the
// segment grammar.
type markerClass int

const (
	classSkip markerClass = iota // length-prefixed segment with no meaning here
	classSOI
	classAPP
	classCOM
	classDQT
	classDHT
	classDRI
	classSOF0
	classSOFOther
	classSOS
	classRST
	classEOI
	numClasses
)

func classify(m byte) markerClass {
	switch {
	case m == markerSOI:
		return classSOI
	case m == markerEOI:
		return classEOI
	case m == markerSOS:
		return classSOS
	case m == markerDQT:
		return classDQT
	case m == markerDHT:
		return classDHT
	case m == markerDRI:
		return classDRI
	case m == markerCOM:
		return classCOM
	case m == markerSOF0:
		return classSOF0
	case m >= markerAPP0 && m <= markerAPPF:
		return classAPP
	case m >= markerRST0 && m <= markerRST7:
		return classRST
	case m > markerSOF0 && m <= 0xCF && m != markerDHT:
		// SOF1..SOF15 plus DAC, which only appears with arithmetic coding.
		return classSOFOther
	default:
		return classSkip
	}
}

// markerName renders a marker for error messages, e.g. "SOF2 (progressive)".
func markerName(m byte) string {
	switch {
	case m == markerSOF0:
		return "SOF0"
	case m == markerDHT:
		return "DHT"
	case m == markerDAC:
		return "DAC (arithmetic coding)"
	case m > markerSOF0 && m <= 0xCF:
		n := int(m - markerSOF0)
		var kind string
		switch n {
		case 1:
			kind = "extended sequential"
		case 2:
			kind = "progressive"
		case 3:
			kind = "lossless"
		case 5, 6, 7:
			kind = "hierarchical"
		default:
			kind = "arithmetic coding"
		}
		return fmt.Sprintf("SOF%d (%s)", n, kind)
	case m >= markerRST0 && m <= markerRST7:
		return fmt.Sprintf("RST%d", m-markerRST0)
	case m == markerSOI:
		return "SOI"
	case m == markerEOI:
		return "EOI"
	case m == markerSOS:
		return "SOS"
	case m == markerDQT:
		return "DQT"
	case m == markerDRI:
		return "DRI"
	case m >= markerAPP0 && m <= markerAPPF:
		return fmt.Sprintf("APP%d", m-markerAPP0)
	case m == markerCOM:
		return "COM"
	default:
		return fmt.Sprintf("marker 0x%02X", m)
	}
}

// state is the decoder's position in the segment grammar:
//
//	SOI (APPn|COM|DQT|DHT|DRI)* SOF0 (APPn|COM|DQT|DHT|DRI)* (SOS data (APPn|COM|DQT|DHT|DRI)*)+ EOI
type state int

const (
	stateInvalid   state = iota
	stateExpectSOI       // nothing read yet
	stateHeaders         // after SOI, before the frame header
	stateScan            // after SOF0, before the first scan
	stateExpectEOI       // after at least one scan
	stateDone
)

func (s state) String() string {
	switch s {
	case stateExpectSOI:
		return "start of image"
	case stateHeaders:
		return "header segments"
	case stateScan:
		return "frame header"
	case stateExpectEOI:
		return "scan data"
	case stateDone:
		return "end of image"
	default:
		return "invalid"
	}
}

// transitions[s][c] is the state after a marker of class c in state s, or
// stateInvalid if the marker may not appear there.
var transitions = [...][numClasses]state{
	stateExpectSOI: {
		classSOI: stateHeaders,
	},
	stateHeaders: {
		classSkip: stateHeaders,
		classAPP:  stateHeaders,
		classCOM:  stateHeaders,
		classDQT:  stateHeaders,
		classDHT:  stateHeaders,
		classDRI:  stateHeaders,
		classSOF0: stateScan,
	},
	stateScan: {
		classSkip: stateScan,
		classAPP:  stateScan,
		classCOM:  stateScan,
		classDQT:  stateScan,
		classDHT:  stateScan,
		classDRI:  stateScan,
		classSOS:  stateExpectEOI,
	},
	stateExpectEOI: {
		classSkip: stateExpectEOI,
		classAPP:  stateExpectEOI,
		classCOM:  stateExpectEOI,
		classDQT:  stateExpectEOI,
		classDHT:  stateExpectEOI,
		classDRI:  stateExpectEOI,
		classSOS:  stateExpectEOI,
		classEOI:  stateDone,
	},
	stateDone: {},
}
