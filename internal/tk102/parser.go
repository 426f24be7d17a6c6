package tk102

// Recognizer decodes one sentence format. It returns false when raw is not in
// its format or any field fails to convert; it must never return a partially
// filled Report.
type Recognizer func(raw string) (Report, bool)

// Parser tries its recognizers in order and returns the first match.
// A Parser is immutable and safe for concurrent use.
type Parser struct {
	recognizers []Recognizer
}

func NewParser(recognizers ...Recognizer) *Parser {
	p := &Parser{recognizers: make([]Recognizer, 0, len(recognizers))}
	for _, r := range recognizers {
		if r != nil {
			p.recognizers = append(p.recognizers, r)
		}
	}
	return p
}

// Default returns the parser used by the daemon: TK102 GPRMC reports first,
// then bare NMEA RMC sentences.
func Default() *Parser {
	return NewParser(TK102, NMEARMC)
}

// With returns a new Parser that tries recognizers after the existing ones.
func (p *Parser) With(recognizers ...Recognizer) *Parser {
	var cur []Recognizer
	if p != nil {
		cur = p.recognizers
	}
	all := make([]Recognizer, 0, len(cur)+len(recognizers))
	all = append(all, cur...)
	all = append(all, recognizers...)
	return NewParser(all...)
}

func (p *Parser) Len() int {
	if p == nil {
		return 0
	}
	return len(p.recognizers)
}

func (p *Parser) Parse(raw string) (Report, bool) {
	if p == nil {
		return Report{}, false
	}
	for _, r := range p.recognizers {
		if rep, ok := try(r, raw); ok {
			return rep, true
		}
	}
	return Report{}, false
}

// try runs one recognizer; a panic counts as no match.
func try(r Recognizer, raw string) (rep Report, ok bool) {
	defer func() {
		if recover() != nil {
			rep, ok = Report{}, false
		}
	}()
	return r(raw)
}

var defaultParser = Default()

// Parse runs the default parser.
func Parse(raw string) (Report, bool) {
	return defaultParser.Parse(raw)
}
