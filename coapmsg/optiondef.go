package coapmsg

// ValueFormat describes the wire representation of an option's value
// (RFC 7252 section 3.2). It is recorded in optionDefs for reference
// only; neither the codec nor its length check reads it.
type ValueFormat uint8

const (
	ValueUnknown ValueFormat = iota
	ValueEmpty
	ValueOpaque
	ValueUint
	ValueString
)

// optionDef describes the accepted length range for a known option
// number. Unknown option numbers are passed through unchanged; Parse
// consults this table only for lengths: a critical option outside its
// range fails the parse, an elective one is dropped.
type optionDef struct {
	MinLength int
	MaxLength int
	Format    ValueFormat
}

var optionDefs = map[OptionNumber]optionDef{
	IfMatch:       {Format: ValueOpaque, MinLength: 0, MaxLength: 8},
	URIHost:       {Format: ValueString, MinLength: 1, MaxLength: 255},
	ETag:          {Format: ValueOpaque, MinLength: 1, MaxLength: 8},
	IfNoneMatch:   {Format: ValueEmpty, MinLength: 0, MaxLength: 0},
	Observe:       {Format: ValueUint, MinLength: 0, MaxLength: 3},
	URIPort:       {Format: ValueUint, MinLength: 0, MaxLength: 2},
	LocationPath:  {Format: ValueString, MinLength: 0, MaxLength: 255},
	URIPath:       {Format: ValueString, MinLength: 0, MaxLength: 255},
	ContentFormat: {Format: ValueUint, MinLength: 0, MaxLength: 2},
	MaxAge:        {Format: ValueUint, MinLength: 0, MaxLength: 4},
	URIQuery:      {Format: ValueString, MinLength: 0, MaxLength: 255},
	Accept:        {Format: ValueUint, MinLength: 0, MaxLength: 2},
	LocationQuery: {Format: ValueString, MinLength: 0, MaxLength: 255},
	ProxyURI:      {Format: ValueString, MinLength: 1, MaxLength: 1034},
	ProxyScheme:   {Format: ValueString, MinLength: 1, MaxLength: 255},
	Size1:         {Format: ValueUint, MinLength: 0, MaxLength: 4},
}

// MediaType specifies the content type carried by the Content-Format
// option (RFC 7252 section 12.3).
type MediaType uint16

const (
	TextPlain     MediaType = 0
	AppLinkFormat MediaType = 40
	AppXML        MediaType = 41
	AppOctets     MediaType = 42
	AppExi        MediaType = 47
	AppJSON       MediaType = 50
)

// contentFormatBytes encodes a MediaType as the shortest big-endian
// representation CoAP's uint option format allows (0, 1 or 2 bytes).
func contentFormatBytes(mt MediaType) []byte {
	if mt == 0 {
		return nil
	}
	if mt <= 0xff {
		return []byte{byte(mt)}
	}
	return []byte{byte(mt >> 8), byte(mt)}
}
