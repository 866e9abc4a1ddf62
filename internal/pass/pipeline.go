package pass

import (
	"fmt"
	"strings"
	"unicode"
)

// String prints the manager as a textual pipeline, e.g.
//
//	builtin.module(canonicalize{max-iterations=10 top-down=true}, firrtl.circuit(cse))
func (pm *Manager) String() string {
	var sb strings.Builder
	sb.WriteString(pm.anchor)
	sb.WriteString("(")
	pm.writeEntries(&sb)
	sb.WriteString(")")
	return sb.String()
}

func (pm *Manager) writeEntries(sb *strings.Builder) {
	for i, e := range pm.entries {
		if i > 0 {
			sb.WriteString(", ")
		}
		switch e.Kind {
		case EntryPass:
			sb.WriteString(e.Pass.Name())
			if c, ok := e.Pass.(Configurable); ok {
				sb.WriteString(FormatOptions(c.Options()))
			}
		case EntryNested:
			sb.WriteString(e.Nested.String())
		}
	}
}

// PipelineError reports malformed pipeline text.
type PipelineError struct {
	Text   string
	Offset int
	Err    error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("invalid pass pipeline at column %d: %v", e.Offset+1, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }

// ParsePipeline parses text and appends the described passes to pm.
//
// Two forms are accepted: a bare list "canonicalize, cse" that is added to
// pm directly, and an anchored form "builtin.module(...)" whose anchor must
// match pm. Nested pipelines are written "kind(...)" and passes take
// options in braces: "canonicalize{top-down=false max-iterations=4}".
func ParsePipeline(pm *Manager, text string, reg *Registry) error {
	pp := &pipelineParser{text: text, reg: reg}
	pp.skipSpace()
	if pp.atEnd() {
		return nil
	}

	// Anchored form: the whole text is "<anchor>(...)".
	save := pp.pos
	name := pp.name()
	pp.skipSpace()
	if name == pm.anchor && pp.peek() == '(' {
		pp.pos++
		if err := pp.list(pm, ')'); err != nil {
			return err
		}
		pp.skipSpace()
		if !pp.atEnd() {
			return pp.errorf("unexpected trailing text %q", pp.text[pp.pos:])
		}
		return nil
	}
	pp.pos = save
	return pp.list(pm, 0)
}

type pipelineParser struct {
	text string
	pos  int
	reg  *Registry
}

// list parses comma-separated elements until the closing rune (0 = end).
func (pp *pipelineParser) list(pm *Manager, closing rune) error {
	for {
		pp.skipSpace()
		if closing != 0 && pp.peek() == closing {
			pp.pos++
			return nil
		}
		if err := pp.element(pm); err != nil {
			return err
		}
		pp.skipSpace()
		switch {
		case pp.peek() == ',':
			pp.pos++
		case closing != 0 && pp.peek() == closing:
			pp.pos++
			return nil
		case closing == 0 && pp.atEnd():
			return nil
		case pp.atEnd():
			return pp.errorf("expected '%c'", closing)
		default:
			return pp.errorf("expected ',' but found %q", string(pp.peek()))
		}
	}
}

func (pp *pipelineParser) element(pm *Manager) error {
	start := pp.pos
	name := pp.name()
	if name == "" {
		if pp.atEnd() {
			return pp.errorf("expected a pass name")
		}
		return pp.errorf("expected a pass name but found %q", string(pp.peek()))
	}
	pp.skipSpace()
	switch pp.peek() {
	case '(':
		pp.pos++
		nested, err := pm.Nest(name)
		if err != nil {
			return &PipelineError{Text: pp.text, Offset: start, Err: err}
		}
		return pp.list(nested, ')')
	case '{':
		pp.pos++
		opts, err := pp.options()
		if err != nil {
			return err
		}
		return pp.addPass(pm, name, opts, start)
	default:
		return pp.addPass(pm, name, nil, start)
	}
}

func (pp *pipelineParser) addPass(pm *Manager, name string, opts Options, start int) error {
	if pp.reg == nil {
		return &PipelineError{Text: pp.text, Offset: start, Err: fmt.Errorf("no pass registry to resolve %q", name)}
	}
	p, err := pp.reg.Create(name, opts)
	if err != nil {
		return &PipelineError{Text: pp.text, Offset: start, Err: err}
	}
	if err := pm.Add(p); err != nil {
		return &PipelineError{Text: pp.text, Offset: start, Err: err}
	}
	return nil
}

// options parses "k=v k2=v2}" (commas are also accepted as separators).
func (pp *pipelineParser) options() (Options, error) {
	opts := Options{}
	for {
		pp.skipSpace()
		if pp.peek() == ',' {
			pp.pos++
			continue
		}
		if pp.peek() == '}' {
			pp.pos++
			return opts, nil
		}
		if pp.atEnd() {
			return nil, pp.errorf("unterminated option list")
		}
		key := pp.name()
		if key == "" {
			return nil, pp.errorf("expected an option name")
		}
		if pp.peek() != '=' {
			return nil, pp.errorf("expected '=' after option %q", key)
		}
		pp.pos++
		start := pp.pos
		for !pp.atEnd() && !unicode.IsSpace(pp.peek()) && pp.peek() != '}' && pp.peek() != ',' {
			pp.pos++
		}
		if _, dup := opts[key]; dup {
			return nil, pp.errorf("option %q given twice", key)
		}
		opts[key] = pp.text[start:pp.pos]
	}
}

func (pp *pipelineParser) name() string {
	start := pp.pos
	for !pp.atEnd() {
		r := pp.peek()
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '-' || r == '.' || r == '$' {
			pp.pos++
			continue
		}
		break
	}
	return pp.text[start:pp.pos]
}

func (pp *pipelineParser) skipSpace() {
	for !pp.atEnd() && unicode.IsSpace(pp.peek()) {
		pp.pos++
	}
}

func (pp *pipelineParser) peek() rune {
	if pp.atEnd() {
		return 0
	}
	return rune(pp.text[pp.pos])
}

func (pp *pipelineParser) atEnd() bool {
	return pp.pos >= len(pp.text)
}

func (pp *pipelineParser) errorf(format string, args ...any) error {
	return &PipelineError{Text: pp.text, Offset: pp.pos, Err: fmt.Errorf(format, args...)}
}
