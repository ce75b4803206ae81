package coapmsg

import "strings"

// OptionNumber identifies an option in a message (RFC 7252 section 5.10).
type OptionNumber uint16

const (
	IfMatch       OptionNumber = 1
	URIHost       OptionNumber = 3
	ETag          OptionNumber = 4
	IfNoneMatch   OptionNumber = 5
	Observe       OptionNumber = 6
	URIPort       OptionNumber = 7
	LocationPath  OptionNumber = 8
	URIPath       OptionNumber = 11
	ContentFormat OptionNumber = 12
	MaxAge        OptionNumber = 14
	URIQuery      OptionNumber = 15
	Accept        OptionNumber = 17
	LocationQuery OptionNumber = 20
	ProxyURI      OptionNumber = 35
	ProxyScheme   OptionNumber = 39
	Size1         OptionNumber = 60
)

// Critical options MUST cause a 4.02 (Bad Option) reply, or rejection of
// the message, if the receiver does not understand them.
func (o OptionNumber) Critical() bool {
	return uint16(o)&1 != 0
}

// UnSafe marks options a proxy may not forward when it doesn't
// understand them.
func (o OptionNumber) UnSafe() bool {
	return uint16(o)&2 != 0
}

// NoCacheKey only has meaning for options that are safe-to-forward.
func (o OptionNumber) NoCacheKey() bool {
	return o&0x1e == 0x1c
}

// Option is a single (number, value) record. Parse copies each value out
// of the datagram, so a parsed message owns its values; a message the
// caller built holds whatever slices the caller supplied.
type Option struct {
	Number OptionNumber
	Value  []byte
}

func (o Option) Len() int {
	return len(o.Value)
}

// Options is an ordered sequence of option records. Iteration preserves
// insertion order; the sequence need not be sorted by Number until
// serialization, at which point sorting enforces ascending order with
// ties broken by insertion order (sort.Stable, see Message.Bytes).
type Options []Option

func (o Options) Len() int      { return len(o) }
func (o Options) Swap(i, j int) { o[i], o[j] = o[j], o[i] }
func (o Options) Less(i, j int) bool {
	return o[i].Number < o[j].Number
}

// Add appends a new option record. CoAP options are repeatable unless
// the caller enforces uniqueness via Set.
func (o *Options) Add(number OptionNumber, value []byte) {
	*o = append(*o, Option{Number: number, Value: value})
}

// Set removes any existing records for number and appends value as the
// sole one.
func (o *Options) Set(number OptionNumber, value []byte) {
	o.Del(number)
	o.Add(number, value)
}

// Get returns the first value stored for number, or (nil, false) if
// absent.
func (o Options) Get(number OptionNumber) ([]byte, bool) {
	for _, opt := range o {
		if opt.Number == number {
			return opt.Value, true
		}
	}
	return nil, false
}

// GetAll returns every value stored for number, in insertion order.
func (o Options) GetAll(number OptionNumber) [][]byte {
	var values [][]byte
	for _, opt := range o {
		if opt.Number == number {
			values = append(values, opt.Value)
		}
	}
	return values
}

// Del removes every record for number.
func (o *Options) Del(number OptionNumber) {
	kept := make(Options, 0, len(*o))
	for _, opt := range *o {
		if opt.Number != number {
			kept = append(kept, opt)
		}
	}
	*o = kept
}

// Path returns the URI-Path option values joined with "/".
func (o Options) Path() string {
	parts := o.GetAll(URIPath)
	s := make([]string, len(parts))
	for i, p := range parts {
		s[i] = string(p)
	}
	return strings.Join(s, "/")
}

// SetPath replaces any URI-Path options with one segment per path
// element, splitting on "/".
func (o *Options) SetPath(path string) {
	o.Del(URIPath)
	for _, seg := range strings.Split(strings.Trim(path, "/"), "/") {
		if seg == "" {
			continue
		}
		o.Add(URIPath, []byte(seg))
	}
}

// SetContentFormat replaces any Content-Format option with mt encoded
// as the shortest big-endian uint the option format allows.
func (o *Options) SetContentFormat(mt MediaType) {
	o.Set(ContentFormat, contentFormatBytes(mt))
}

// ContentFormat returns the Content-Format option's value, if present.
func (o Options) ContentFormat() (MediaType, bool) {
	v, ok := o.Get(ContentFormat)
	if !ok {
		return 0, false
	}
	var mt uint16
	for _, b := range v {
		mt = mt<<8 | uint16(b)
	}
	return MediaType(mt), true
}

// Query returns the URI-Query option values as strings.
func (o Options) Query() []string {
	parts := o.GetAll(URIQuery)
	s := make([]string, len(parts))
	for i, p := range parts {
		s[i] = string(p)
	}
	return s
}
