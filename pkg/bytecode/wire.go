package bytecode

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// ObjectMagic identifies a serialized program: "BFKC" (BrainForK Compiled).
const ObjectMagic = "BFKC"

var (
	ErrInvalidMagic    = errors.New("invalid magic: expected " + ObjectMagic)
	ErrVersionMismatch = errors.New("object file version mismatch")
)

// object is the on-disk form of a Program.
type object struct {
	Magic     string           `cbor:"1,keyasint"`
	Version   uint16           `cbor:"2,keyasint"`
	Name      string           `cbor:"3,keyasint,omitempty"`
	Code      []Instruction    `cbor:"4,keyasint"`
	SourceMap []SourceLocation `cbor:"5,keyasint,omitempty"`
}

// cborEncMode uses canonical options so identical programs encode to
// identical bytes.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("bytecode: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// MarshalProgram serializes a Program to CBOR bytes. The name is recorded for
// listings and may be empty.
func MarshalProgram(p *Program, name string) ([]byte, error) {
	return cborEncMode.Marshal(&object{
		Magic:     ObjectMagic,
		Version:   ProgramVersion,
		Name:      name,
		Code:      p.Code,
		SourceMap: p.SourceMap,
	})
}

// UnmarshalProgram deserializes and validates a Program from CBOR bytes. It
// returns the recorded name alongside the program.
func UnmarshalProgram(data []byte) (*Program, string, error) {
	var o object
	if err := cbor.Unmarshal(data, &o); err != nil {
		return nil, "", fmt.Errorf("bytecode: unmarshal program: %w", err)
	}
	if o.Magic != ObjectMagic {
		return nil, "", ErrInvalidMagic
	}
	if o.Version != ProgramVersion {
		return nil, "", fmt.Errorf("%w: got %d, want %d", ErrVersionMismatch, o.Version, ProgramVersion)
	}
	p := &Program{Code: o.Code, SourceMap: o.SourceMap}
	if p.Code == nil {
		p.Code = []Instruction{}
	}
	if len(p.SourceMap) != 0 && len(p.SourceMap) != len(p.Code) {
		return nil, "", fmt.Errorf("bytecode: source map has %d entries for %d instructions", len(p.SourceMap), len(p.Code))
	}
	if err := p.Validate(); err != nil {
		return nil, "", fmt.Errorf("bytecode: invalid program: %w", err)
	}
	return p, o.Name, nil
}
