package ir

import (
	"fmt"
)

// Verify checks op and everything nested inside it:
//   - every operation is registered (unless the context allows otherwise)
//   - every operand refers to a live value visible at the use
//   - symbols are unique within each symbol table
//   - each operation's dialect verifier accepts it
//
// The first problem found is returned as a *VerifyError.
func Verify(op *Operation) error {
	v := &verifier{positions: make(map[*Block]map[*Operation]int)}
	return v.verify(op)
}

type verifier struct {
	positions map[*Block]map[*Operation]int
}

func (v *verifier) verify(op *Operation) error {
	if op.erased {
		return &VerifyError{Op: op.name, Loc: op.loc, Message: "is erased"}
	}
	for i, operand := range op.operands {
		if operand == nil {
			return &VerifyError{Op: op.name, Loc: op.loc, Message: fmt.Sprintf("operand #%d is null", i)}
		}
		if !v.visible(operand, op) {
			return &VerifyError{Op: op.name, Loc: op.loc, Message: fmt.Sprintf("operand #%d (%s) does not dominate this use", i, operand)}
		}
	}
	// A nil def only happens when the context allows unregistered operations.
	if op.def != nil && op.def.Verify != nil {
		if err := op.def.Verify(op); err != nil {
			return &VerifyError{Op: op.name, Loc: op.loc, Message: err.Error()}
		}
	}
	if op.def != nil && op.def.SymbolTable {
		if err := verifySymbolTable(op); err != nil {
			return err
		}
	}
	for _, r := range op.regions {
		for _, b := range r.blocks {
			for _, nested := range b.ops {
				if nested.block != b {
					return &VerifyError{Op: nested.name, Loc: nested.loc, Message: "has inconsistent parent block"}
				}
				if err := v.verify(nested); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// visible reports whether val may be used by user: it must be defined in
// the user's block (earlier) or in an enclosing block, or be an argument of
// one of those blocks.
func (v *verifier) visible(val *Value, user *Operation) bool {
	if val.owner != nil && val.owner.erased {
		return false
	}
	defBlock := val.OwnerBlock()
	if defBlock == nil {
		return false
	}
	// Walk outwards from the user to find the ancestor that sits in defBlock.
	cur := user
	for cur != nil && cur.block != defBlock {
		cur = cur.ParentOp()
	}
	if cur == nil {
		return false
	}
	if val.owner == nil {
		return true
	}
	if cur == val.owner {
		return false
	}
	pos := v.blockPositions(defBlock)
	return pos[val.owner] < pos[cur]
}

func (v *verifier) blockPositions(b *Block) map[*Operation]int {
	if pos, ok := v.positions[b]; ok {
		return pos
	}
	pos := make(map[*Operation]int, len(b.ops))
	for i, op := range b.ops {
		pos[op] = i
	}
	v.positions[b] = pos
	return pos
}

func verifySymbolTable(op *Operation) error {
	seen := make(map[string]*Operation)
	for _, r := range op.regions {
		for _, b := range r.blocks {
			for _, nested := range b.ops {
				sym := nested.Symbol()
				if sym == "" {
					continue
				}
				if prev, dup := seen[sym]; dup {
					return &VerifyError{
						Op:      nested.name,
						Loc:     nested.loc,
						Message: fmt.Sprintf("redefinition of symbol @%s (previous definition at %s)", sym, prev.loc),
					}
				}
				seen[sym] = nested
			}
		}
	}
	return nil
}
