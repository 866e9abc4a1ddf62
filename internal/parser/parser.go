package parser

import (
	"errors"
	"os"
	"regexp"
	"strconv"

	"github.com/roach88/hwpipe/internal/ir"
)

// Parse reads source into a new Module owned by ctx. name is the buffer
// name used in locations.
//
// On failure no module is returned, the error is a *ParseError and it has
// also been reported to the context's diagnostic handler.
func Parse(ctx *ir.Context, name, source string, opts Options) (*ir.Module, error) {
	m, err := parse(ctx, name, source, opts.AnnotationSources, opts)
	if err != nil {
		report(ctx, err)
		return nil, err
	}
	return m, nil
}

// ParseFile reads the file at path plus any annotation files named in opts
// and parses them. A missing or unreadable input is an *IOError.
func ParseFile(ctx *ir.Context, path string, opts Options) (*ir.Module, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		ioErr := &IOError{Path: path, Err: err}
		ctx.EmitError(ir.UnknownLoc, "%s", ioErr.Error())
		return nil, ioErr
	}
	sources := append([]AnnotationSource(nil), opts.AnnotationSources...)
	for _, f := range opts.AnnotationFiles {
		text, err := os.ReadFile(f)
		if err != nil {
			ioErr := &IOError{Path: f, Err: err}
			ctx.EmitError(ir.UnknownLoc, "%s", ioErr.Error())
			return nil, ioErr
		}
		sources = append(sources, AnnotationSource{Name: f, Text: string(text)})
	}
	m, err := parse(ctx, path, string(data), sources, opts)
	if err != nil {
		report(ctx, err)
		return nil, err
	}
	return m, nil
}

func report(ctx *ir.Context, err error) {
	var pe *ParseError
	if errors.As(err, &pe) {
		ctx.Emit(ir.Diagnostic{Severity: ir.SeverityError, Loc: pe.Loc, Message: pe.Message})
		return
	}
	ctx.EmitError(ir.UnknownLoc, "%s", err.Error())
}

func parse(ctx *ir.Context, name, source string, annotations []AnnotationSource, opts Options) (*ir.Module, error) {
	if ctx.IsClosed() {
		return nil, ir.ErrContextClosed
	}
	toks, err := NewLexer(name, source).Tokenize()
	if err != nil {
		return nil, err
	}
	p := &parser{ctx: ctx, file: name, toks: toks, opts: opts}
	root, err := p.parseTopLevel()
	if err != nil {
		return nil, err
	}
	symbols := collectSymbols(root)
	for _, ref := range p.symbolRefs {
		if _, ok := symbols[ref.Text]; !ok {
			return nil, newParseError(p.tokenLoc(ref), nil, "reference to undefined symbol @%s", ref.Text)
		}
	}
	if err := applyAnnotations(root, symbols, annotations, opts.RawAnnotationMode); err != nil {
		return nil, err
	}
	return ctx.WrapModule(root)
}

func collectSymbols(root *ir.Operation) map[string]*ir.Operation {
	symbols := make(map[string]*ir.Operation)
	root.Walk(func(op *ir.Operation) ir.WalkResult {
		if sym := op.Symbol(); sym != "" {
			if _, dup := symbols[sym]; !dup {
				symbols[sym] = op
			}
		}
		return ir.WalkAdvance
	})
	return symbols
}

var integerType = regexp.MustCompile(`^i[0-9]+$`)

type parser struct {
	ctx        *ir.Context
	file       string
	toks       []Token
	pos        int
	opts       Options
	scopes     []map[string]*ir.Value
	symbolRefs []Token
}

func (p *parser) parseTopLevel() (*ir.Operation, error) {
	p.pushScope()
	defer p.popScope()

	var top []*ir.Operation
	for p.peek().Kind != TokenEOF {
		op, err := p.parseOperation()
		if err != nil {
			return nil, err
		}
		top = append(top, op)
	}
	if len(top) == 1 && top[0].Name() == ir.ModuleOpName {
		return top[0], nil
	}
	root, err := p.ctx.CreateOperation(ir.OperationState{Name: ir.ModuleOpName, Regions: 1})
	if err != nil {
		return nil, err
	}
	if !p.opts.IgnoreLocationInfo {
		root.SetLoc(ir.FileLineCol(p.file, 1, 1))
	}
	for _, op := range top {
		root.Body().Append(op)
	}
	return root, nil
}

func (p *parser) parseOperation() (*ir.Operation, error) {
	start := p.peek()

	var results []Token
	if p.peek().Kind == TokenValueID {
		for {
			tok, err := p.expect(TokenValueID)
			if err != nil {
				return nil, err
			}
			results = append(results, tok)
			if !p.accept(TokenComma) {
				break
			}
		}
		if _, err := p.expect(TokenEqual); err != nil {
			return nil, err
		}
	}

	nameTok, err := p.expect(TokenIdent)
	if err != nil {
		return nil, err
	}
	state := ir.OperationState{Name: nameTok.Text}
	if _, err := p.ctx.LookupOp(nameTok.Text); err != nil {
		return nil, newParseError(p.tokenLoc(nameTok), err, "%s", err.Error())
	}

	if p.peek().Kind == TokenSymbolRef {
		state.Symbol = p.next().Text
	}

	if p.accept(TokenLeftParen) {
		if !p.accept(TokenRightParen) {
			for {
				tok, err := p.expect(TokenValueID)
				if err != nil {
					return nil, err
				}
				v := p.lookupValue(tok.Text)
				if v == nil {
					return nil, newParseError(p.tokenLoc(tok), nil, "use of undefined value %%%s", tok.Text)
				}
				state.Operands = append(state.Operands, v)
				if !p.accept(TokenComma) {
					break
				}
			}
			if _, err := p.expect(TokenRightParen); err != nil {
				return nil, err
			}
		}
	}

	if p.atAttrDict() {
		attrs, err := p.parseAttrDict()
		if err != nil {
			return nil, err
		}
		state.Attrs = attrs
	}

	if p.accept(TokenColon) {
		for {
			t, err := p.parseType()
			if err != nil {
				return nil, err
			}
			state.ResultTypes = append(state.ResultTypes, t)
			if !p.accept(TokenComma) {
				break
			}
		}
	}
	if len(state.ResultTypes) != len(results) {
		return nil, newParseError(p.tokenLoc(nameTok), nil,
			"'%s' declares %d results but %d result types", nameTok.Text, len(results), len(state.ResultTypes))
	}
	for _, r := range results {
		state.ResultNames = append(state.ResultNames, r.Text)
	}

	op, err := p.ctx.CreateOperation(state)
	if err != nil {
		return nil, newParseError(p.tokenLoc(nameTok), err, "%s", err.Error())
	}

	for p.peek().Kind == TokenLeftBrace {
		if err := p.parseRegion(op); err != nil {
			return nil, err
		}
	}

	if !p.opts.IgnoreLocationInfo {
		op.SetLoc(p.tokenLoc(start))
	}
	if p.peek().Kind == TokenIdent && p.peek().Text == "loc" && p.peekAt(1).Kind == TokenLeftParen {
		loc, err := p.parseLoc()
		if err != nil {
			return nil, err
		}
		if !p.opts.IgnoreLocationInfo {
			op.SetLoc(loc)
		}
	}

	// Results become visible only after the operation, not inside its own
	// regions.
	for i, r := range results {
		if err := p.define(r, op.Result(i)); err != nil {
			return nil, err
		}
	}
	return op, nil
}

func (p *parser) parseRegion(op *ir.Operation) error {
	if _, err := p.expect(TokenLeftBrace); err != nil {
		return err
	}
	region := op.AddRegion()
	block := region.Front()
	p.pushScope()
	defer p.popScope()

	first := true
	for {
		switch p.peek().Kind {
		case TokenRightBrace:
			p.next()
			return nil
		case TokenEOF:
			_, err := p.expect(TokenRightBrace)
			return err
		case TokenCaret:
			if !first || !block.Empty() {
				block = region.AddBlock()
			}
			if err := p.parseBlockHeader(block); err != nil {
				return err
			}
		default:
			nested, err := p.parseOperation()
			if err != nil {
				return err
			}
			block.Append(nested)
		}
		first = false
	}
}

func (p *parser) parseBlockHeader(block *ir.Block) error {
	if _, err := p.expect(TokenCaret); err != nil {
		return err
	}
	if _, err := p.expect(TokenLeftParen); err != nil {
		return err
	}
	if !p.accept(TokenRightParen) {
		for {
			tok, err := p.expect(TokenValueID)
			if err != nil {
				return err
			}
			if _, err := p.expect(TokenColon); err != nil {
				return err
			}
			t, err := p.parseType()
			if err != nil {
				return err
			}
			if err := p.define(tok, block.AddArgument(t, tok.Text)); err != nil {
				return err
			}
			if !p.accept(TokenComma) {
				break
			}
		}
		if _, err := p.expect(TokenRightParen); err != nil {
			return err
		}
	}
	_, err := p.expect(TokenColon)
	return err
}

// atAttrDict distinguishes an attribute dictionary from a region: a
// dictionary starts with a name followed by '='.
func (p *parser) atAttrDict() bool {
	if p.peek().Kind != TokenLeftBrace {
		return false
	}
	key := p.peekAt(1).Kind
	return (key == TokenIdent || key == TokenString) && p.peekAt(2).Kind == TokenEqual
}

func (p *parser) parseAttrDict() ([]ir.NamedAttribute, error) {
	if _, err := p.expect(TokenLeftBrace); err != nil {
		return nil, err
	}
	var attrs []ir.NamedAttribute
	if p.accept(TokenRightBrace) {
		return attrs, nil
	}
	seen := make(map[string]bool)
	for {
		key := p.next()
		if key.Kind != TokenIdent && key.Kind != TokenString {
			return nil, p.unexpected(key, "attribute name")
		}
		if seen[key.Text] {
			return nil, newParseError(p.tokenLoc(key), nil, "duplicate attribute %q", key.Text)
		}
		seen[key.Text] = true
		if _, err := p.expect(TokenEqual); err != nil {
			return nil, err
		}
		value, err := p.parseAttribute()
		if err != nil {
			return nil, err
		}
		attrs = append(attrs, ir.NamedAttribute{Name: key.Text, Value: value})
		if !p.accept(TokenComma) {
			break
		}
	}
	if _, err := p.expect(TokenRightBrace); err != nil {
		return nil, err
	}
	return attrs, nil
}

func (p *parser) parseAttribute() (ir.Attribute, error) {
	tok := p.peek()
	switch tok.Kind {
	case TokenString:
		p.next()
		return ir.StringAttr(tok.Text), nil
	case TokenInt:
		p.next()
		v, err := strconv.ParseInt(tok.Text, 10, 64)
		if err != nil {
			return nil, newParseError(p.tokenLoc(tok), err, "integer %s out of range", tok.Text)
		}
		return ir.IntAttr(v), nil
	case TokenSymbolRef:
		p.next()
		p.symbolRefs = append(p.symbolRefs, tok)
		return ir.SymbolRefAttr(tok.Text), nil
	case TokenIdent:
		switch {
		case tok.Text == "true" || tok.Text == "false":
			p.next()
			return ir.BoolAttr(tok.Text == "true"), nil
		case integerType.MatchString(tok.Text):
			t, err := p.parseType()
			return ir.TypeAttr(t), err
		}
	case TokenDialectType:
		t, err := p.parseType()
		return ir.TypeAttr(t), err
	case TokenLeftBracket:
		p.next()
		arr := ir.ArrayAttr{}
		if p.accept(TokenRightBracket) {
			return arr, nil
		}
		for {
			elem, err := p.parseAttribute()
			if err != nil {
				return nil, err
			}
			arr = append(arr, elem)
			if !p.accept(TokenComma) {
				break
			}
		}
		if _, err := p.expect(TokenRightBracket); err != nil {
			return nil, err
		}
		return arr, nil
	case TokenLeftBrace:
		attrs, err := p.parseAttrDict()
		if err != nil {
			return nil, err
		}
		return ir.DictAttr(attrs), nil
	}
	return nil, p.unexpected(tok, "attribute value")
}

func (p *parser) parseType() (ir.Type, error) {
	tok := p.next()
	switch tok.Kind {
	case TokenIdent:
		if integerType.MatchString(tok.Text) {
			return ir.Type(tok.Text), nil
		}
	case TokenDialectType:
		text := "!" + tok.Text
		if p.accept(TokenLess) {
			width, err := p.expect(TokenInt)
			if err != nil {
				return ir.NoType, err
			}
			if _, err := p.expect(TokenGreater); err != nil {
				return ir.NoType, err
			}
			text += "<" + width.Text + ">"
		}
		return ir.Type(text), nil
	}
	return ir.NoType, p.unexpected(tok, "type")
}

func (p *parser) parseLoc() (ir.Location, error) {
	p.next() // loc
	if _, err := p.expect(TokenLeftParen); err != nil {
		return ir.UnknownLoc, err
	}
	file, err := p.expect(TokenString)
	if err != nil {
		return ir.UnknownLoc, err
	}
	if _, err := p.expect(TokenColon); err != nil {
		return ir.UnknownLoc, err
	}
	line, err := p.expectNumber()
	if err != nil {
		return ir.UnknownLoc, err
	}
	if _, err := p.expect(TokenColon); err != nil {
		return ir.UnknownLoc, err
	}
	col, err := p.expectNumber()
	if err != nil {
		return ir.UnknownLoc, err
	}
	if _, err := p.expect(TokenRightParen); err != nil {
		return ir.UnknownLoc, err
	}
	return ir.FileLineCol(file.Text, line, col), nil
}

func (p *parser) expectNumber() (int, error) {
	tok, err := p.expect(TokenInt)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(tok.Text)
	if err != nil || n < 0 {
		return 0, newParseError(p.tokenLoc(tok), err, "invalid location number %s", tok.Text)
	}
	return n, nil
}

func (p *parser) pushScope() {
	p.scopes = append(p.scopes, make(map[string]*ir.Value))
}

func (p *parser) popScope() {
	p.scopes = p.scopes[:len(p.scopes)-1]
}

func (p *parser) lookupValue(name string) *ir.Value {
	for i := len(p.scopes) - 1; i >= 0; i-- {
		if v, ok := p.scopes[i][name]; ok {
			return v
		}
	}
	return nil
}

func (p *parser) define(tok Token, v *ir.Value) error {
	if p.lookupValue(tok.Text) != nil {
		return newParseError(p.tokenLoc(tok), nil, "redefinition of value %%%s", tok.Text)
	}
	p.scopes[len(p.scopes)-1][tok.Text] = v
	return nil
}

func (p *parser) peek() Token {
	return p.toks[p.pos]
}

func (p *parser) peekAt(n int) Token {
	if p.pos+n >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}
	return p.toks[p.pos+n]
}

func (p *parser) next() Token {
	tok := p.toks[p.pos]
	if tok.Kind != TokenEOF {
		p.pos++
	}
	return tok
}

func (p *parser) accept(kind TokenKind) bool {
	if p.peek().Kind == kind {
		p.next()
		return true
	}
	return false
}

func (p *parser) expect(kind TokenKind) (Token, error) {
	tok := p.peek()
	if tok.Kind != kind {
		return tok, p.unexpected(tok, kind.String())
	}
	p.next()
	return tok, nil
}

func (p *parser) unexpected(tok Token, want string) error {
	return newParseError(p.tokenLoc(tok), nil, "expected %s, found %s", want, tok.describe())
}

func (p *parser) tokenLoc(tok Token) ir.Location {
	return ir.FileLineCol(p.file, tok.Line, tok.Column)
}
