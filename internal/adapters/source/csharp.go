// Package source finds type and member declarations in C# source files.
//
// The scanner is structural, not semantic: it tracks braces, namespaces, type
// declarations and the attributes in front of them. That is enough to decide which
// test classes and methods a set of changed lines falls into without a compiler.
package source

import (
	"bytes"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/MyCarrier-DevOps/changegate/internal/domain"
)

var errUnbalancedBraces = errors.New("unbalanced braces")

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// CSharpScanner implements domain.TestClassFinder for .cs files.
type CSharpScanner struct{}

// NewCSharpScanner creates a CSharpScanner.
func NewCSharpScanner() *CSharpScanner {
	return &CSharpScanner{}
}

// IsSource reports whether p is a C# source file.
func (c *CSharpScanner) IsSource(p string) bool {
	return strings.EqualFold(path.Ext(p), ".cs")
}

// FindTypes returns every type declared in content, ordered by position.
// Nested types are named Outer+Inner, matching the runtime's reflection names.
func (c *CSharpScanner) FindTypes(filePath string, content []byte) ([]domain.TypeDecl, error) {
	toks, err := newLexer(bytes.TrimPrefix(content, utf8BOM)).tokens()
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", filePath, err)
	}

	s := newScanner()
	for _, t := range toks {
		if err := s.feed(t); err != nil {
			return nil, fmt.Errorf("failed to scan %s: line %d: %w", filePath, t.line, err)
		}
	}
	if len(s.stack) != 1 {
		return nil, fmt.Errorf("failed to scan %s: %w", filePath, errUnbalancedBraces)
	}

	sort.SliceStable(s.types, func(i, j int) bool {
		return s.types[i].Span.Start < s.types[j].Span.Start
	})
	return s.types, nil
}

type frameKind int

const (
	frameNamespace frameKind = iota
	frameType
	frameBody
)

type frame struct {
	kind    frameKind
	name    string
	decl    *domain.TypeDecl
	pending pending
}

// pending accumulates the declaration currently being read at one nesting level.
type pending struct {
	started   bool
	startLine int
	bodyStart int
	attrs     []string
	attr      attrState

	keyword string
	name    string
	nameDot bool

	signature  bool
	lastIdent  string
	member     string
	sawParen   bool
	sawAssign  bool
	parenDepth int
	angleDepth int

	// bodyClosed is set once a member's block body closed; a following '=' turns it
	// into a property initializer.
	bodyClosed bool
	bodyEnd    int
}

type attrState struct {
	depth  int
	paren  int
	expect bool
	dot    bool
	name   string
}

type scanner struct {
	stack         []*frame
	fileNamespace string
	types         []domain.TypeDecl
}

func newScanner() *scanner {
	return &scanner{stack: []*frame{{kind: frameNamespace}}}
}

func (s *scanner) top() *frame {
	return s.stack[len(s.stack)-1]
}

func (s *scanner) push(f *frame) {
	s.stack = append(s.stack, f)
}

func (s *scanner) pop() {
	s.stack = s.stack[:len(s.stack)-1]
}

func (s *scanner) feed(t token) error {
	f := s.top()
	if f.kind == frameBody {
		if t.kind != tokPunct {
			return nil
		}
		switch t.text {
		case "{":
			s.push(&frame{kind: frameBody})
		case "}":
			s.pop()
			if parent := s.top(); parent.kind != frameBody && !parent.pending.sawAssign {
				parent.pending.bodyClosed = true
				parent.pending.bodyEnd = t.line
			}
		}
		return nil
	}
	return s.declToken(f, t)
}

func (s *scanner) declToken(f *frame, t token) error {
	p := &f.pending
	if p.bodyClosed {
		if t.text == "=" {
			p.bodyClosed = false
			p.sawAssign = true
			return nil
		}
		s.finishMember(f, p.bodyEnd)
	}
	if p.attr.depth > 0 {
		p.attrToken(t)
		return nil
	}

	if t.kind == tokPunct && t.text == "}" {
		return s.closeBrace(t)
	}

	if !p.started {
		p.started = true
		p.startLine = t.line
	}

	if t.kind == tokIdent {
		p.ident(t.text)
		p.signature = true
		return nil
	}
	if t.kind != tokPunct {
		p.signature = true
		return nil
	}

	switch t.text {
	case "[":
		if p.parenDepth == 0 && !p.signature {
			p.attr = attrState{depth: 1, expect: true}
			return nil
		}
	case "{":
		s.openBrace(f, t)
		return nil
	case ";":
		if p.parenDepth == 0 {
			s.endStatement(f, t.line)
			return nil
		}
	case ".":
		if p.keyword == "namespace" && p.name != "" {
			p.nameDot = true
		}
	case "(":
		if p.parenDepth == 0 && !p.sawParen && !p.sawAssign {
			p.member = p.lastIdent
			p.sawParen = true
		}
		p.parenDepth++
	case ")":
		if p.parenDepth > 0 {
			p.parenDepth--
		}
	case "<":
		if p.parenDepth == 0 && !p.sawAssign {
			p.angleDepth++
		}
	case ">":
		if p.angleDepth > 0 {
			p.angleDepth--
		}
	case "=", "=>":
		if p.parenDepth == 0 {
			p.sawAssign = true
		}
	}
	p.signature = true
	return nil
}

func (p *pending) ident(text string) {
	if p.parenDepth > 0 {
		return
	}
	switch {
	case p.keyword != "" && p.name == "":
		if p.keyword == "record" && (text == "class" || text == "struct") {
			return
		}
		p.name = text
	case p.keyword == "namespace" && p.nameDot:
		p.name += "." + text
		p.nameDot = false
	case p.keyword == "" && !p.sawParen && !p.sawAssign && isDeclKeyword(text):
		p.keyword = text
	case p.angleDepth == 0 && !p.sawParen && !p.sawAssign:
		p.lastIdent = text
	}
}

func (p *pending) attrToken(t token) {
	a := &p.attr
	if a.paren > 0 {
		switch t.text {
		case "(":
			a.paren++
		case ")":
			a.paren--
		}
		return
	}

	switch {
	case t.kind == tokIdent && a.expect:
		a.name, a.expect, a.dot = t.text, false, false
	case t.kind == tokIdent && a.dot:
		a.name += "." + t.text
		a.dot = false
	case t.text == ".":
		a.dot = a.name != ""
	case t.text == ":":
		// Target specifier such as [return: ...] or [assembly: ...].
		a.name, a.expect = "", true
	case t.text == "(":
		p.flushAttr()
		a.paren = 1
	case t.text == ",":
		p.flushAttr()
		a.expect = true
	case t.text == "[":
		a.depth++
	case t.text == "]":
		a.depth--
		if a.depth == 0 {
			p.flushAttr()
		}
	}
}

func (p *pending) flushAttr() {
	name := p.attr.name
	p.attr.name = ""
	if name == "" {
		return
	}
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	if trimmed := strings.TrimSuffix(name, "Attribute"); trimmed != "" {
		name = trimmed
	}
	p.attrs = append(p.attrs, name)
}

func (s *scanner) openBrace(f *frame, t token) {
	p := &f.pending
	switch {
	case p.keyword == "namespace" && p.name != "":
		s.push(&frame{kind: frameNamespace, name: p.name})
		f.pending = pending{}
	case isTypeKeyword(p.keyword) && p.name != "" && !p.sawAssign:
		decl := s.newType(p, t.line)
		s.push(&frame{kind: frameType, decl: decl})
		f.pending = pending{}
	default:
		if p.bodyStart == 0 {
			p.bodyStart = t.line
		}
		s.push(&frame{kind: frameBody})
	}
}

func (s *scanner) closeBrace(t token) error {
	if len(s.stack) == 1 {
		return errUnbalancedBraces
	}
	f := s.top()
	if f.kind == frameType {
		if f.pending.started {
			s.finishMember(f, t.line)
		}
		s.addType(f.decl, t.line)
	}
	s.pop()
	return nil
}

func (s *scanner) endStatement(f *frame, line int) {
	p := &f.pending
	switch {
	case p.keyword == "namespace" && p.name != "":
		// File-scoped namespace applies to the rest of the file.
		s.fileNamespace = p.name
		f.pending = pending{}
	case isTypeKeyword(p.keyword) && p.name != "" && !p.sawAssign:
		// Body-less declaration, e.g. a positional record.
		decl := s.newType(p, line)
		s.addType(decl, line)
		f.pending = pending{}
	default:
		s.finishMember(f, line)
	}
}

func (s *scanner) finishMember(f *frame, endLine int) {
	p := f.pending
	f.pending = pending{}
	if f.kind != frameType {
		return
	}

	name := p.member
	if name == "" {
		name = p.lastIdent
	}
	if name == "" && len(p.attrs) == 0 {
		return
	}

	headerEnd := p.bodyStart
	if headerEnd == 0 {
		headerEnd = endLine
	}
	f.decl.Members = append(f.decl.Members, domain.SourceSpan{
		Name:       name,
		Header:     domain.LineRange{Start: p.startLine, End: headerEnd},
		Span:       domain.LineRange{Start: p.startLine, End: endLine},
		Attributes: p.attrs,
	})
}

func (s *scanner) newType(p *pending, headerEnd int) *domain.TypeDecl {
	name := p.name
	for i := len(s.stack) - 1; i >= 0; i-- {
		if outer := s.stack[i]; outer.kind == frameType {
			name = outer.decl.Name + "+" + name
			break
		}
	}

	decl := &domain.TypeDecl{Namespace: s.namespace()}
	decl.Name = name
	decl.Attributes = p.attrs
	decl.Header = domain.LineRange{Start: p.startLine, End: headerEnd}
	return decl
}

func (s *scanner) addType(decl *domain.TypeDecl, endLine int) {
	decl.Span = domain.LineRange{Start: decl.Header.Start, End: endLine}
	decl.IsTestClass = domain.HasTestAttribute(decl.Attributes) || len(decl.TestMethods()) > 0
	s.types = append(s.types, *decl)
}

func (s *scanner) namespace() string {
	var parts []string
	if s.fileNamespace != "" {
		parts = append(parts, s.fileNamespace)
	}
	for _, f := range s.stack {
		if f.kind == frameNamespace && f.name != "" {
			parts = append(parts, f.name)
		}
	}
	return strings.Join(parts, ".")
}

func isTypeKeyword(word string) bool {
	switch word {
	case "class", "struct", "interface", "enum", "record":
		return true
	}
	return false
}

func isDeclKeyword(word string) bool {
	return word == "namespace" || isTypeKeyword(word)
}
