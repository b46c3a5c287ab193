package domain

// TerminusType classifies how a glacier terminates.
type TerminusType int

const (
	TerminusLand      TerminusType = 0
	TerminusTidewater TerminusType = 1
	TerminusLake      TerminusType = 2
	TerminusUnknown   TerminusType = -1
)

// Code returns the integer wire code for the terminus type and whether one
// exists. TerminusUnknown has no wire code and is published as NULL.
func (t TerminusType) Code() (int, bool) {
	if t == TerminusUnknown {
		return 0, false
	}
	return int(t), true
}

func (t TerminusType) String() string {
	switch t {
	case TerminusLand:
		return "land"
	case TerminusTidewater:
		return "tidewater"
	case TerminusLake:
		return "lake"
	default:
		return "unknown"
	}
}

// Decode tables for the packed classification string. New codes are added by
// extending these maps, not by adding branches.
var (
	// terminusByDigit keys on digit 2 of the packed code (1-indexed).
	terminusByDigit = map[byte]TerminusType{
		'0': TerminusLand,
		'1': TerminusTidewater,
		'2': TerminusLake,
	}

	// surgingDigits keys on digit 3 of the packed code. '1' marks observed
	// surges and '3' marks probable ones; both count as surging.
	surgingDigits = map[byte]bool{
		'1': true,
		'3': true,
	}
)

// DecodeClassification maps a packed 4-character classification code to its
// semantic fields. It is total: malformed, short, or unrecognized codes
// degrade to (TerminusUnknown, false) rather than failing, because upstream
// inventories routinely carry placeholder codes for unclassified glaciers.
func DecodeClassification(code string) (TerminusType, bool) {
	terminus := TerminusUnknown
	if len(code) >= 2 {
		if t, ok := terminusByDigit[code[1]]; ok {
			terminus = t
		}
	}

	surging := false
	if len(code) >= 3 {
		surging = surgingDigits[code[2]]
	}

	return terminus, surging
}
