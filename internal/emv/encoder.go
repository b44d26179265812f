package emv

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/sakubank/backend/internal/apperr"
)

// Field is one primitive record of a merchant-presented (text) payload.
type Field struct {
	Tag   string
	Value string
}

// EncodeMPM assembles a merchant-presented payload as flat text TLV records,
// the same grammar Decode consumes. Fields with empty values are skipped.
func EncodeMPM(fields []Field) (string, error) {
	var b strings.Builder
	for _, f := range fields {
		if f.Value == "" {
			continue
		}
		if len(f.Tag) != 2 || len(f.Value) > 99 {
			return "", errPayloadFormat
		}
		b.WriteString(f.Tag)
		b.WriteString(pad2(len(f.Value)))
		b.WriteString(f.Value)
	}
	return b.String(), nil
}

// DataFields holds the primitive sub-fields a BER-TLV template may carry,
// in the order the table prescribes. Empty fields are omitted.
type DataFields struct {
	ADFName                       string // 4F
	ApplicationLabel              string // 50
	Track2EquivalentData          string // 57
	ApplicationPAN                string // 5A
	CardholderName                string // 5F20
	LanguagePreference            string // 5F2D
	IssuerURL                     string // 5F50
	ApplicationVersionNumber      string // 9F08
	IssuerApplicationData         string // 9F10
	TokenRequestorID              string // 9F19
	PaymentAccountReference       string // 9F24
	Last4DigitsOfPAN              string // 9F25
	ApplicationCryptogram         string // 9F26
	ApplicationTransactionCounter string // 9F36
	UnpredictableNumber           string // 9F37
	MerchantNameAndLocation       string // 9F4E
}

// Template is one application (61) or common-data (62) template. Primitive
// fields sit directly under the template; each Transparent entry is wrapped
// in an Application Specific Transparent Template (63) or Common Data
// Transparent Template (64) depending on where the template is emitted.
type Template struct {
	DataFields
	Transparent []DataFields
}

// Payload is the structured input of the customer-presented encoder.
type Payload struct {
	PayloadFormatIndicator string // 85, mandatory
	Applications           []Template
	CommonData             *Template
}

const (
	tagPayloadFormatIndicator = "85"
	tagApplicationTemplate    = "61"
	tagCommonDataTemplate     = "62"
	tagAppTransparentTemplate = "63"
	tagCommonTransparent      = "64"
)

// Encode builds a customer-presented payload: nested BER-TLV templates
// assembled as a hex digit string, packed two digits per byte and base64
// encoded. The output is a distinct wire representation from the text
// grammar Decode handles; the two are deliberately not inverses.
func Encode(p Payload) (string, error) {
	if p.PayloadFormatIndicator == "" {
		return "", apperr.Format("missing payload format indicator")
	}

	var b strings.Builder
	b.WriteString(formatTLV(tagPayloadFormatIndicator, p.PayloadFormatIndicator))

	for _, app := range p.Applications {
		b.WriteString(wrapTemplate(tagApplicationTemplate, encodeTemplate(app, tagAppTransparentTemplate)))
	}
	if p.CommonData != nil {
		b.WriteString(wrapTemplate(tagCommonDataTemplate, encodeTemplate(*p.CommonData, tagCommonTransparent)))
	}

	raw, err := hex.DecodeString(b.String())
	if err != nil {
		return "", apperr.Format("payload format is not suitable")
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

func encodeTemplate(t Template, transparentTag string) string {
	var b strings.Builder
	b.WriteString(encodeDataFields(t.DataFields))
	for _, tr := range t.Transparent {
		b.WriteString(wrapTemplate(transparentTag, encodeDataFields(tr)))
	}
	return b.String()
}

func encodeDataFields(d DataFields) string {
	ordered := []Field{
		{"4F", d.ADFName},
		{"50", d.ApplicationLabel},
		{"57", d.Track2EquivalentData},
		{"5A", d.ApplicationPAN},
		{"5F20", d.CardholderName},
		{"5F2D", d.LanguagePreference},
		{"5F50", d.IssuerURL},
		{"9F08", d.ApplicationVersionNumber},
		{"9F10", d.IssuerApplicationData},
		{"9F19", d.TokenRequestorID},
		{"9F24", d.PaymentAccountReference},
		{"9F25", d.Last4DigitsOfPAN},
		{"9F26", d.ApplicationCryptogram},
		{"9F36", d.ApplicationTransactionCounter},
		{"9F37", d.UnpredictableNumber},
		{"9F4E", d.MerchantNameAndLocation},
	}

	var b strings.Builder
	for _, f := range ordered {
		if f.Value == "" {
			continue
		}
		b.WriteString(formatTLV(f.Tag, f.Value))
	}
	return b.String()
}

// formatTLV hex-encodes the value's UTF-8 bytes and prefixes tag plus the
// byte length (half the hex character count) as two hex digits.
func formatTLV(tag, value string) string {
	hexValue := strings.ToUpper(hex.EncodeToString([]byte(value)))
	return tag + fmt.Sprintf("%02X", len(hexValue)/2) + hexValue
}

// wrapTemplate prefixes already-encoded hex contents with a template tag and
// its byte length.
func wrapTemplate(tag, contents string) string {
	return tag + fmt.Sprintf("%02X", len(contents)/2) + contents
}

// TLV is one parsed record of the binary customer-presented representation.
// Constructed records carry Children; primitives carry Value.
type TLV struct {
	Tag      string
	Value    []byte
	Children []TLV
}

// Find returns the first record with the given tag at this level.
func Find(records []TLV, tag string) (TLV, bool) {
	for _, r := range records {
		if r.Tag == tag {
			return r, true
		}
	}
	return TLV{}, false
}

// DecodeBinary reads back the base64 packed BER-TLV representation produced
// by Encode. It exists for verification of generated payloads; scanned
// payment strings go through Decode instead.
func DecodeBinary(payload string) ([]TLV, error) {
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, errPayloadFormat
	}
	return parseBER(raw)
}

func parseBER(data []byte) ([]TLV, error) {
	var records []TLV

	for i := 0; i < len(data); {
		tagLen := 1
		if data[i]&0x1F == 0x1F {
			tagLen = 2
		}
		if i+tagLen >= len(data) {
			return nil, errPayloadFormat
		}
		tag := strings.ToUpper(hex.EncodeToString(data[i : i+tagLen]))
		constructed := data[i]&0x20 != 0
		i += tagLen

		length := int(data[i])
		i++
		if length == 0x81 {
			if i >= len(data) {
				return nil, errPayloadFormat
			}
			length = int(data[i])
			i++
		}
		if i+length > len(data) {
			return nil, errPayloadFormat
		}

		rec := TLV{Tag: tag}
		if constructed {
			children, err := parseBER(data[i : i+length])
			if err != nil {
				return nil, err
			}
			rec.Children = children
		} else {
			rec.Value = data[i : i+length]
		}
		records = append(records, rec)
		i += length
	}

	return records, nil
}
