package emv

import (
	"strconv"
	"strings"

	"github.com/sakubank/backend/internal/apperr"
)

// Well-known MPM tags consumed by the transaction engine.
const (
	TagPayloadFormat    = "00"
	TagPointOfInitation = "01"
	TagMerchantCategory = "52"
	TagCurrency         = "53"
	TagAmount           = "54"
	TagCountryCode      = "58"
	TagMerchantName     = "59"
	TagMerchantCity     = "60"
	TagAdditionalData   = "62"
	TagCRC              = "63"
)

// Point-of-initiation values observed on merchant codes. Absence of the tag
// (or any other value) means a person-to-person style code.
const (
	InitiationStatic  = "11"
	InitiationDynamic = "12"
)

// CategoryPersonToPerson is the merchant category value that marks a
// person-to-person transfer code. This is an observed heuristic of the
// payload population we handle, not a guarantee of any external standard.
const CategoryPersonToPerson = "0000"

var errPayloadFormat = apperr.Format("payload format is not suitable")

// Decode walks a scanned payment string as a flat sequence of TLV records:
// a 2-character tag, a 2-digit decimal length n, then exactly n characters
// of value. Template tags are NOT recursed into; the whole sub-string of a
// template (e.g. tag 62) is stored as one value and re-scanned by callers.
// A duplicate tag overwrites the earlier occurrence.
func Decode(payload string) (map[string]string, error) {
	tags := make(map[string]string)

	for i := 0; i < len(payload); {
		if len(payload)-i < 4 {
			return nil, errPayloadFormat
		}

		tag := payload[i : i+2]
		if !isDigit(payload[i+2]) || !isDigit(payload[i+3]) {
			return nil, errPayloadFormat
		}
		length, err := strconv.Atoi(payload[i+2 : i+4])
		if err != nil {
			return nil, errPayloadFormat
		}

		if i+4+length > len(payload) {
			return nil, errPayloadFormat
		}

		tags[tag] = payload[i+4 : i+4+length]
		i += 4 + length
	}

	return tags, nil
}

// ExtractAccountNumber pulls the embedded account number out of a tag-62
// value of a person-to-person code. The scan locates the LAST literal "00"
// in the blob; the two characters after it are a decimal length L and the L
// characters before the marker are the account number.
//
// This mirrors exactly how these blobs are laid out by our own generator
// (transaction ref, account number, "00", length). It is a fragile,
// non-standard scan kept byte-for-byte compatible with the historical
// behaviour; do not generalize it to arbitrary EMV additional-data fields.
func ExtractAccountNumber(blob string) (string, error) {
	idx := strings.LastIndex(blob, "00")
	if idx < 0 || idx+4 > len(blob) {
		return "", errPayloadFormat
	}

	length, err := strconv.Atoi(blob[idx+2 : idx+4])
	if err != nil || length <= 0 || idx-length < 0 {
		return "", errPayloadFormat
	}

	return blob[idx-length : idx], nil
}

// TransactionRef returns the transaction reference portion of a tag-62
// value: everything preceding the embedded account number located by
// ExtractAccountNumber.
func TransactionRef(blob string) (string, error) {
	account, err := ExtractAccountNumber(blob)
	if err != nil {
		return "", err
	}
	idx := strings.LastIndex(blob, "00")
	return blob[:idx-len(account)], nil
}

// CrossReference builds a tag-62 value carrying a transaction reference and
// an embedded account number in the layout ExtractAccountNumber expects.
func CrossReference(trxRef, accountNumber string) string {
	var b strings.Builder
	b.WriteString(trxRef)
	b.WriteString(accountNumber)
	b.WriteString("00")
	b.WriteString(pad2(len(accountNumber)))
	return b.String()
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func pad2(n int) string {
	if n < 10 {
		return "0" + strconv.Itoa(n)
	}
	return strconv.Itoa(n)
}
