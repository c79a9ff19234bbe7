package memform

import (
	"bufio"
	"encoding/base64"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/objform/objform"
)

// Codec reads and writes [Node] trees in a compact text syntax:
//
//	_                null
//	t f              booleans
//	i:-3 u:7 d:2.5   integers and floats
//	"hi" b:aGk= @"…" strings, byte strings (base64), timestamps
//	(a b c)          list
//	{k v k v}        map, alternating keys and values
//	["Name" v …]     record; "Name"/"Owner" v when disambiguated
//	&1(…) ^1         referable mark and back-reference
//	!"tag"v !!"tag"v short and qualified type tags, prefixing a node
//
// Numbers are stored at full width, so a round trip widens an int32 to
// int64; the engine narrows on deserialization. The codec recurses on
// the tree shape, so it is not suitable for forms nested deeper than
// the goroutine stack allows.
type Codec struct{}

// Encode writes n to w.
func (Codec) Encode(w io.Writer, n *Node) error {
	bw := bufio.NewWriter(w)
	if err := writeNode(bw, n); err != nil {
		return err
	}
	return bw.Flush()
}

// Decode reads one node from r.
func (Codec) Decode(r io.Reader) (*Node, error) {
	p := &parser{r: bufio.NewReader(r)}
	n, err := p.parseNode()
	if err != nil {
		return nil, fmt.Errorf("memform: %w", err)
	}
	return n, nil
}

// Marshal renders n as text.
func Marshal(n *Node) ([]byte, error) {
	var sb strings.Builder
	if err := (Codec{}).Encode(&sb, n); err != nil {
		return nil, err
	}
	return []byte(sb.String()), nil
}

// Unmarshal parses a node from text.
func Unmarshal(data []byte) (*Node, error) {
	return Codec{}.Decode(strings.NewReader(string(data)))
}

func writeNode(w *bufio.Writer, n *Node) error {
	if n == nil {
		return fmt.Errorf("memform: nil node")
	}
	if n.ID != 0 {
		fmt.Fprintf(w, "&%d", n.ID)
	}
	if n.HasTag {
		if n.TagQualified {
			w.WriteString("!!")
		} else {
			w.WriteByte('!')
		}
		w.WriteString(strconv.Quote(n.Tag))
	}
	switch n.Kind {
	case KindNull:
		w.WriteByte('_')
	case KindRef:
		fmt.Fprintf(w, "^%d", n.Ref)
	case KindScalar:
		return writeScalar(w, n.Scalar)
	case KindList:
		w.WriteByte('(')
		for i, e := range n.Elems {
			if i > 0 {
				w.WriteByte(' ')
			}
			if err := writeNode(w, e); err != nil {
				return err
			}
		}
		w.WriteByte(')')
	case KindMap:
		w.WriteByte('{')
		for i, e := range n.Entries {
			if i > 0 {
				w.WriteByte(' ')
			}
			if err := writeNode(w, e.Key); err != nil {
				return err
			}
			w.WriteByte(' ')
			if err := writeNode(w, e.Value); err != nil {
				return err
			}
		}
		w.WriteByte('}')
	case KindRecord:
		w.WriteByte('[')
		for i, m := range n.Members {
			if i > 0 {
				w.WriteByte(' ')
			}
			w.WriteString(strconv.Quote(m.Name))
			if m.Owner != "" {
				w.WriteByte('/')
				w.WriteString(strconv.Quote(m.Owner))
			}
			w.WriteByte(' ')
			if err := writeNode(w, m.Value); err != nil {
				return err
			}
		}
		w.WriteByte(']')
	default:
		return fmt.Errorf("memform: invalid node kind %v", n.Kind)
	}
	return nil
}

func writeScalar(w *bufio.Writer, v any) error {
	switch v := v.(type) {
	case bool:
		if v {
			w.WriteByte('t')
		} else {
			w.WriteByte('f')
		}
	case int:
		writeInt(w, int64(v))
	case int8:
		writeInt(w, int64(v))
	case int16:
		writeInt(w, int64(v))
	case int32:
		writeInt(w, int64(v))
	case int64:
		writeInt(w, v)
	case uint:
		writeUint(w, uint64(v))
	case uint8:
		writeUint(w, uint64(v))
	case uint16:
		writeUint(w, uint64(v))
	case uint32:
		writeUint(w, uint64(v))
	case uint64:
		writeUint(w, v)
	case float32:
		w.WriteString("d:")
		w.WriteString(strconv.FormatFloat(float64(v), 'g', -1, 32))
	case float64:
		w.WriteString("d:")
		w.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
	case string:
		w.WriteString(strconv.Quote(v))
	case []byte:
		w.WriteString("b:")
		w.WriteString(base64.StdEncoding.EncodeToString(v))
	case time.Time:
		w.WriteByte('@')
		w.WriteString(strconv.Quote(v.Format(time.RFC3339Nano)))
	default:
		return fmt.Errorf("memform: %T is not a scalar", v)
	}
	return nil
}

func writeInt(w *bufio.Writer, v int64) {
	w.WriteString("i:")
	w.WriteString(strconv.FormatInt(v, 10))
}

func writeUint(w *bufio.Writer, v uint64) {
	w.WriteString("u:")
	w.WriteString(strconv.FormatUint(v, 10))
}

type parser struct {
	r *bufio.Reader
}

// peek returns the next non-space byte without consuming it.
func (p *parser) peek() (byte, error) {
	for {
		c, err := p.r.ReadByte()
		if err != nil {
			return 0, err
		}
		switch c {
		case ' ', '\t', '\n', '\r':
			continue
		}
		p.r.UnreadByte()
		return c, nil
	}
}

// token consumes a run of bytes up to whitespace or a delimiter.
func (p *parser) token() (string, error) {
	if _, err := p.peek(); err != nil {
		return "", err
	}
	var sb strings.Builder
	for {
		c, err := p.r.ReadByte()
		if err == io.EOF {
			break
		} else if err != nil {
			return "", err
		}
		switch c {
		case ' ', '\t', '\n', '\r', '(', ')', '{', '}', '[', ']', '"':
			p.r.UnreadByte()
			return sb.String(), nil
		}
		sb.WriteByte(c)
	}
	return sb.String(), nil
}

// qstring consumes a double-quoted string literal.
func (p *parser) qstring() (string, error) {
	c, err := p.peek()
	if err != nil {
		return "", err
	}
	if c != '"' {
		return "", fmt.Errorf("expected string, found %q", c)
	}
	p.r.ReadByte()
	var raw strings.Builder
	raw.WriteByte('"')
	esc := false
	for {
		c, err := p.r.ReadByte()
		if err != nil {
			return "", fmt.Errorf("unterminated string")
		}
		raw.WriteByte(c)
		if esc {
			esc = false
			continue
		}
		if c == '\\' {
			esc = true
		} else if c == '"' {
			break
		}
	}
	return strconv.Unquote(raw.String())
}

func (p *parser) expect(c byte) error {
	got, err := p.peek()
	if err != nil {
		return err
	}
	if got != c {
		return fmt.Errorf("expected %q, found %q", c, got)
	}
	p.r.ReadByte()
	return nil
}

func (p *parser) parseNode() (*Node, error) {
	c, err := p.peek()
	if err != nil {
		return nil, err
	}

	var mark int
	if c == '&' {
		p.r.ReadByte()
		tok, err := p.token()
		if err != nil {
			return nil, err
		}
		mark, err = strconv.Atoi(tok)
		if err != nil {
			return nil, fmt.Errorf("invalid mark id %q", tok)
		}
		if c, err = p.peek(); err != nil {
			return nil, err
		}
	}

	var tag string
	var tagQual, hasTag bool
	if c == '!' {
		p.r.ReadByte()
		if c, err = p.peek(); err != nil {
			return nil, err
		}
		if c == '!' {
			p.r.ReadByte()
			tagQual = true
		}
		if tag, err = p.qstring(); err != nil {
			return nil, err
		}
		hasTag = true
		if c, err = p.peek(); err != nil {
			return nil, err
		}
	}

	n, err := p.parseBody(c)
	if err != nil {
		return nil, err
	}
	n.ID = mark
	n.Tag, n.TagQualified, n.HasTag = tag, tagQual, hasTag
	return n, nil
}

func (p *parser) parseBody(c byte) (*Node, error) {
	switch c {
	case '(':
		p.r.ReadByte()
		n := &Node{Kind: KindList}
		for {
			c, err := p.peek()
			if err != nil {
				return nil, err
			}
			if c == ')' {
				p.r.ReadByte()
				return n, nil
			}
			e, err := p.parseNode()
			if err != nil {
				return nil, err
			}
			n.Elems = append(n.Elems, e)
		}
	case '{':
		p.r.ReadByte()
		n := &Node{Kind: KindMap}
		for {
			c, err := p.peek()
			if err != nil {
				return nil, err
			}
			if c == '}' {
				p.r.ReadByte()
				return n, nil
			}
			k, err := p.parseNode()
			if err != nil {
				return nil, err
			}
			v, err := p.parseNode()
			if err != nil {
				return nil, err
			}
			n.Entries = append(n.Entries, objform.MapEntry[*Node]{Key: k, Value: v})
		}
	case '[':
		p.r.ReadByte()
		n := &Node{Kind: KindRecord}
		for {
			c, err := p.peek()
			if err != nil {
				return nil, err
			}
			if c == ']' {
				p.r.ReadByte()
				return n, nil
			}
			name, err := p.qstring()
			if err != nil {
				return nil, err
			}
			var owner string
			if c, err = p.peek(); err != nil {
				return nil, err
			}
			if c == '/' {
				p.r.ReadByte()
				if owner, err = p.qstring(); err != nil {
					return nil, err
				}
			}
			v, err := p.parseNode()
			if err != nil {
				return nil, err
			}
			n.Members = append(n.Members, objform.Member[*Node]{Name: name, Owner: owner, Value: v})
		}
	case '"':
		s, err := p.qstring()
		if err != nil {
			return nil, err
		}
		return &Node{Kind: KindScalar, Scalar: s}, nil
	case '@':
		p.r.ReadByte()
		s, err := p.qstring()
		if err != nil {
			return nil, err
		}
		ts, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return nil, fmt.Errorf("invalid timestamp: %w", err)
		}
		return &Node{Kind: KindScalar, Scalar: ts}, nil
	case '^':
		p.r.ReadByte()
		tok, err := p.token()
		if err != nil {
			return nil, err
		}
		id, err := strconv.Atoi(tok)
		if err != nil {
			return nil, fmt.Errorf("invalid reference id %q", tok)
		}
		return &Node{Kind: KindRef, Ref: id}, nil
	}

	tok, err := p.token()
	if err != nil {
		return nil, err
	}
	switch {
	case tok == "_":
		return &Node{Kind: KindNull}, nil
	case tok == "t":
		return &Node{Kind: KindScalar, Scalar: true}, nil
	case tok == "f":
		return &Node{Kind: KindScalar, Scalar: false}, nil
	case strings.HasPrefix(tok, "i:"):
		v, err := strconv.ParseInt(tok[2:], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid integer %q", tok)
		}
		return &Node{Kind: KindScalar, Scalar: v}, nil
	case strings.HasPrefix(tok, "u:"):
		v, err := strconv.ParseUint(tok[2:], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid integer %q", tok)
		}
		return &Node{Kind: KindScalar, Scalar: v}, nil
	case strings.HasPrefix(tok, "d:"):
		v, err := strconv.ParseFloat(tok[2:], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid float %q", tok)
		}
		return &Node{Kind: KindScalar, Scalar: v}, nil
	case strings.HasPrefix(tok, "b:"):
		v, err := base64.StdEncoding.DecodeString(tok[2:])
		if err != nil {
			return nil, fmt.Errorf("invalid byte string %q", tok)
		}
		return &Node{Kind: KindScalar, Scalar: v}, nil
	}
	return nil, fmt.Errorf("unrecognized token %q", tok)
}
