package ir

// NearestSymbolTable returns the closest enclosing operation (including op
// itself) whose definition is a symbol table.
func NearestSymbolTable(op *Operation) *Operation {
	for cur := op; cur != nil; cur = cur.ParentOp() {
		if cur.def != nil && cur.def.SymbolTable {
			return cur
		}
	}
	return nil
}

// LookupSymbol resolves name starting at the nearest symbol table around
// from, then each enclosing symbol table outwards. Nested symbol tables are
// searched too so that a reference from the root finds a module defined
// inside a circuit.
func LookupSymbol(from *Operation, name string) *Operation {
	for table := NearestSymbolTable(from); table != nil; table = NearestSymbolTable(table.ParentOp()) {
		if found := lookupIn(table, name); found != nil {
			return found
		}
		if table.ParentOp() == nil {
			break
		}
	}
	return nil
}

func lookupIn(table *Operation, name string) *Operation {
	var found *Operation
	for _, r := range table.Regions() {
		for _, b := range r.Blocks() {
			for _, op := range b.ops {
				if op.Symbol() == name {
					return op
				}
				if op.def != nil && op.def.SymbolTable && found == nil {
					found = lookupIn(op, name)
				}
			}
		}
	}
	return found
}
