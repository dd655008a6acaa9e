package smpp

import (
	"regexp"
	"strings"
	"time"
)

// DeliveryReceipt is the parsed text of a delivery receipt:
//
//	id:IIIIIIIIII sub:SSS dlvrd:DDD submit date:YYMMDDhhmm done date:YYMMDDhhmm stat:DDDDDDD err:E text:...
type DeliveryReceipt struct {
	MessageID  string
	Submitted  string
	Delivered  string
	SubmitDate string
	DoneDate   string
	Status     string
	Error      string
	Text       string
}

// Receipt states
const (
	ReceiptDelivered     = "DELIVRD"
	ReceiptExpired       = "EXPIRED"
	ReceiptDeleted       = "DELETED"
	ReceiptUndeliverable = "UNDELIV"
	ReceiptAccepted      = "ACCEPTD"
	ReceiptUnknown       = "UNKNOWN"
	ReceiptRejected      = "REJECTD"
)

var receiptKey = regexp.MustCompile(`(?i)\b(id|sub|dlvrd|submit date|done date|stat|err|text):`)

// ParseDeliveryReceipt parses receipt text. Unknown or missing fields are
// left empty; ok is false when no id field is present.
func ParseDeliveryReceipt(text string) (receipt DeliveryReceipt, ok bool) {
	matches := receiptKey.FindAllStringSubmatchIndex(text, -1)
	for i, m := range matches {
		key := strings.ToLower(text[m[2]:m[3]])
		end := len(text)
		if key != "text" && i+1 < len(matches) {
			end = matches[i+1][0]
		}
		value := strings.TrimSpace(text[m[1]:end])

		switch key {
		case "id":
			receipt.MessageID = value
			ok = true
		case "sub":
			receipt.Submitted = value
		case "dlvrd":
			receipt.Delivered = value
		case "submit date":
			receipt.SubmitDate = value
		case "done date":
			receipt.DoneDate = value
		case "stat":
			receipt.Status = strings.ToUpper(value)
		case "err":
			receipt.Error = value
		case "text":
			receipt.Text = value
			return receipt, ok
		}
	}
	return receipt, ok
}

// Final reports whether the receipt state ends the message lifecycle.
func (r DeliveryReceipt) Final() bool {
	switch r.Status {
	case ReceiptDelivered, ReceiptExpired, ReceiptDeleted, ReceiptUndeliverable, ReceiptRejected:
		return true
	}
	return false
}

// DoneTime parses DoneDate in the YYMMDDhhmm layout, with optional seconds.
func (r DeliveryReceipt) DoneTime() (time.Time, bool) {
	return parseReceiptDate(r.DoneDate)
}

// SubmitTime parses SubmitDate in the YYMMDDhhmm layout, with optional seconds.
func (r DeliveryReceipt) SubmitTime() (time.Time, bool) {
	return parseReceiptDate(r.SubmitDate)
}

func parseReceiptDate(s string) (time.Time, bool) {
	layout := "0601021504"
	if len(s) == 12 {
		layout = "060102150405"
	}
	t, err := time.Parse(layout, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
