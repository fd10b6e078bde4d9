package ledger

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrUnknownField is returned when a patch names a field the draft does not have.
var ErrUnknownField = errors.New("unknown voucher field")

var linePath = regexp.MustCompile(`^lines\[(\d+)\]\.(\w+)$`)

// Patch writes value into the field named by path: a header field
// ("postingDate", "header.currency") or a line field ("lines[1].customerId").
func (d *VoucherDraft) Patch(path, value string) error {
	path = strings.TrimSpace(path)
	value = strings.TrimSpace(value)

	if m := linePath.FindStringSubmatch(path); m != nil {
		idx, _ := strconv.Atoi(m[1])
		if idx < 0 || idx >= len(d.Lines) {
			return fmt.Errorf("%s: line index out of range: %w", path, ErrUnknownField)
		}
		return d.Lines[idx].patch(m[2], value)
	}

	field := strings.TrimPrefix(path, "header.")
	h := &d.Header
	switch strings.ToLower(field) {
	case "postingdate", "posting_date", "date":
		h.PostingDate = value
	case "summary":
		h.Summary = value
	case "currency":
		h.Currency = value
	case "partnercode", "partnerid":
		h.PartnerCode = value
	case "partnername":
		h.PartnerName = value
	case "invoiceregistrationno":
		h.InvoiceRegistrationNo = value
	default:
		return fmt.Errorf("%s: %w", path, ErrUnknownField)
	}
	return nil
}

func (l *Line) patch(field, value string) error {
	switch strings.ToLower(field) {
	case "accountcode":
		l.AccountCode = value
	case "amount":
		f, ok := Number(value)
		if !ok {
			return fmt.Errorf("amount %q is not a number", value)
		}
		l.Amount = f
	case "side":
		l.Side = Side(value)
	case "note":
		l.Note = value
	case "customerid":
		l.CustomerID = value
	case "vendorid":
		l.VendorID = value
	case "departmentid":
		l.DepartmentID = value
	case "employeeid":
		l.EmployeeID = value
	default:
		return fmt.Errorf("line field %s: %w", field, ErrUnknownField)
	}
	return nil
}
