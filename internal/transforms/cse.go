package transforms

import (
	"fmt"
	"strings"

	"github.com/roach88/hwpipe/internal/ir"
	"github.com/roach88/hwpipe/internal/pass"
)

// CSE merges identical pure operations. An operation is replaced by an
// earlier identical one that is visible from it: earlier in the same
// block, or in an enclosing block.
type CSE struct{}

// NewCSE creates the cse pass.
func NewCSE() *CSE { return &CSE{} }

func (*CSE) Name() string { return "cse" }

func (*CSE) Run(op *ir.Operation, st *pass.State) error {
	c := &cse{}
	for _, r := range op.Regions() {
		c.region(r)
	}
	st.Logger().Debug("cse finished", "op", op.Describe(), "eliminated", c.eliminated)
	return nil
}

type cse struct {
	scopes     []map[string]*ir.Operation
	eliminated int
}

func (c *cse) region(r *ir.Region) {
	for _, b := range r.Blocks() {
		c.scopes = append(c.scopes, make(map[string]*ir.Operation))
		for _, op := range b.Operations() {
			if op.IsErased() {
				continue
			}
			if eligibleForCSE(op) {
				key := cseKey(op)
				if prev := c.lookup(key); prev != nil {
					for i, res := range op.Results() {
						res.ReplaceAllUsesWith(prev.Result(i))
					}
					op.Erase()
					c.eliminated++
					continue
				}
				c.scopes[len(c.scopes)-1][key] = op
			}
			for _, nested := range op.Regions() {
				c.region(nested)
			}
		}
		c.scopes = c.scopes[:len(c.scopes)-1]
	}
}

func (c *cse) lookup(key string) *ir.Operation {
	for i := len(c.scopes) - 1; i >= 0; i-- {
		if op, ok := c.scopes[i][key]; ok {
			return op
		}
	}
	return nil
}

func eligibleForCSE(op *ir.Operation) bool {
	return op.IsPure() && op.NumRegions() == 0 && op.NumResults() > 0
}

// cseKey identifies an operation by kind, operands (by identity),
// attributes and result types.
func cseKey(op *ir.Operation) string {
	var sb strings.Builder
	sb.WriteString(op.Name())
	for _, v := range op.Operands() {
		fmt.Fprintf(&sb, "|%p", v)
	}
	for _, na := range op.Attrs() {
		fmt.Fprintf(&sb, "|%s=%s", na.Name, na.Value)
	}
	for _, r := range op.Results() {
		fmt.Fprintf(&sb, "|:%s", r.Type())
	}
	return sb.String()
}
