package bytecode

import (
	"encoding/binary"
	"math"

	"github.com/crytic/medusa-geth/common"
	"github.com/crytic/medusa-geth/core/vm"
	"github.com/pkg/errors"
)

// Assembler builds EVM bytecode from opcodes, pushes and named jump destinations. Jump targets are pushed as PUSH2
// placeholders and resolved when Bytes is called, so labels may be referenced before they are defined.
type Assembler struct {
	// code is the bytecode emitted so far.
	code []byte

	// labels maps a label name to the offset of its JUMPDEST.
	labels map[string]int

	// fixups maps the offset of a PUSH2 operand to the label it must be resolved to.
	fixups map[int]string

	// err is the first error encountered while assembling.
	err error
}

// NewAssembler returns an empty Assembler.
func NewAssembler() *Assembler {
	return &Assembler{
		code:   make([]byte, 0),
		labels: make(map[string]int),
		fixups: make(map[int]string),
	}
}

// Op emits the provided opcodes.
func (a *Assembler) Op(ops ...vm.OpCode) *Assembler {
	for _, op := range ops {
		a.code = append(a.code, byte(op))
	}
	return a
}

// Push emits the smallest PUSH instruction which fits the provided data. An empty value is pushed as a single zero
// byte.
func (a *Assembler) Push(data ...byte) *Assembler {
	if len(data) == 0 {
		data = []byte{0}
	}
	if len(data) > 32 {
		a.setError(errors.Errorf("could not push %d bytes, at most 32 bytes may be pushed", len(data)))
		return a
	}
	a.code = append(a.code, byte(vm.PUSH1)+byte(len(data)-1))
	a.code = append(a.code, data...)
	return a
}

// PushUint emits the smallest PUSH instruction which fits the provided integer.
func (a *Assembler) PushUint(value uint64) *Assembler {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, value)
	i := 0
	for i < len(buf)-1 && buf[i] == 0 {
		i++
	}
	return a.Push(buf[i:]...)
}

// PushAddress emits a PUSH20 of the provided address.
func (a *Assembler) PushAddress(address common.Address) *Assembler {
	a.code = append(a.code, byte(vm.PUSH20))
	a.code = append(a.code, address.Bytes()...)
	return a
}

// PushLabel emits a PUSH2 of the offset of the named label.
func (a *Assembler) PushLabel(name string) *Assembler {
	a.code = append(a.code, byte(vm.PUSH2))
	a.fixups[len(a.code)] = name
	a.code = append(a.code, 0x00, 0x00)
	return a
}

// Label defines a jump destination with the provided name at the current offset and emits its JUMPDEST.
func (a *Assembler) Label(name string) *Assembler {
	if _, ok := a.labels[name]; ok {
		a.setError(errors.Errorf("could not define label %q, it is already defined", name))
		return a
	}
	a.labels[name] = len(a.code)
	return a.Op(vm.JUMPDEST)
}

// Raw appends the provided bytes verbatim.
func (a *Assembler) Raw(data []byte) *Assembler {
	a.code = append(a.code, data...)
	return a
}

// Len returns the amount of bytes emitted so far.
func (a *Assembler) Len() int {
	return len(a.code)
}

// Bytes resolves all label references and returns the assembled bytecode.
// Returns an error if a label is undefined, defined twice, or out of PUSH2 range.
func (a *Assembler) Bytes() ([]byte, error) {
	if a.err != nil {
		return nil, a.err
	}

	code := make([]byte, len(a.code))
	copy(code, a.code)
	for offset, name := range a.fixups {
		destination, ok := a.labels[name]
		if !ok {
			return nil, errors.Errorf("could not resolve label %q, it was never defined", name)
		}
		if destination > math.MaxUint16 {
			return nil, errors.Errorf("could not resolve label %q, offset %d exceeds PUSH2 range", name, destination)
		}
		binary.BigEndian.PutUint16(code[offset:offset+2], uint16(destination))
	}
	return code, nil
}

// setError records the first error encountered while assembling.
func (a *Assembler) setError(err error) {
	if a.err == nil {
		a.err = err
	}
}
