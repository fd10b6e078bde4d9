package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/ledgerclaw/internal/agent"
	"github.com/user/ledgerclaw/internal/ledger"
	"github.com/user/ledgerclaw/internal/masterdata"
	"github.com/user/ledgerclaw/internal/types"
)

func newRegistry(t *testing.T) (*agent.Registry, *masterdata.Memory) {
	t.Helper()
	m := masterdata.New(masterdata.DefaultSeed(), nil)
	engine := ledger.NewEngine(m, m, m, ledger.DefaultProfile(), nil)
	return agent.NewRegistry(All(FromMemory(m, engine, nil))...), m
}

func run(t *testing.T, r *agent.Registry, ec *agent.ExecContext, name, args string) (*agent.Result, map[string]any) {
	t.Helper()
	out, err := r.Execute(context.Background(), name, json.RawMessage(args), ec)
	require.NoError(t, err)
	require.NotNil(t, out)
	var model map[string]any
	require.NoError(t, json.Unmarshal(out.Model, &model))
	return out, model
}

func newExec() *agent.ExecContext {
	return agent.NewExecContext("s1", "r1", nil)
}

func TestAllToolNamesAreUnique(t *testing.T) {
	r, _ := newRegistry(t)
	assert.Len(t, r.Names(), 15)
	for _, name := range []string{"lookup_account", "lookup_customer", "lookup_vendor", "create_voucher", "request_clarification"} {
		_, ok := r.Get(name)
		assert.True(t, ok, name)
	}
}

func TestLookupAccountApprovesCode(t *testing.T) {
	r, _ := newRegistry(t)
	ec := newExec()

	out, model := run(t, r, ec, "lookup_account", `{"query":"消耗品費"}`)
	assert.False(t, out.Failed)
	assert.Equal(t, true, model["found"])
	assert.Equal(t, "6200", model["accountCode"])
	assert.Equal(t, masterdata.MatchAlias, model["matchMode"])
	assert.Equal(t, []string{"6200"}, ec.Whitelist.Codes())
	assert.False(t, ec.Whitelist.Enforced(), "a lookup alone does not restrict accounts")
}

func TestLookupDoesNotRestrictOtherAccounts(t *testing.T) {
	r, _ := newRegistry(t)
	ec := newExec()

	run(t, r, ec, "lookup_account", `{"query":"Supplies"}`)
	out, model := run(t, r, ec, CreateVoucherName, `{
		"header": {"postingDate": "2024-03-05"},
		"lines": [
			{"accountCode": "6200", "amount": 800, "side": "DR"},
			{"accountCode": "2200", "amount": 800, "side": "CR"}
		]
	}`)
	require.False(t, out.Failed, string(out.Model))
	assert.Equal(t, "created", model["status"])
}

func TestLookupAccountNotFoundIsNotAFailure(t *testing.T) {
	r, _ := newRegistry(t)
	ec := newExec()

	out, model := run(t, r, ec, "lookup_account", `{"query":"spaceship"}`)
	assert.False(t, out.Failed)
	assert.False(t, agent.LooksFailed(out.Model))
	assert.Equal(t, false, model["found"])
	assert.False(t, ec.Whitelist.Enforced())
}

func TestCalculateTax(t *testing.T) {
	r, _ := newRegistry(t)

	_, model := run(t, r, newExec(), "calculate_tax", `{"amount":1100}`)
	assert.Equal(t, 1000.0, model["netAmount"])
	assert.Equal(t, 100.0, model["taxAmount"])

	_, model = run(t, r, newExec(), "calculate_tax", `{"amount":"1000","include_tax":false,"tax_rate":8}`)
	assert.Equal(t, 1080.0, model["grossAmount"])

	out, _ := run(t, r, newExec(), "calculate_tax", `{"amount":0}`)
	assert.True(t, out.Failed)
}

func TestConvertCurrency(t *testing.T) {
	r, _ := newRegistry(t)

	_, model := run(t, r, newExec(), "convert_currency", `{"amount":100,"from":"USD"}`)
	assert.Equal(t, 15000.0, model["converted"])

	out, _ := run(t, r, newExec(), "convert_currency", `{"amount":100,"from":"GBP","to":"JPY"}`)
	assert.True(t, out.Failed)
}

func TestCreateVoucherCommits(t *testing.T) {
	r, _ := newRegistry(t)
	ec := newExec()

	out, model := run(t, r, ec, CreateVoucherName, `{
		"header": {"postingDate": "2024/3/5", "summary": "Printer paper"},
		"lines": [
			{"accountCode": "6200", "amount": 1100, "side": "DR"},
			{"accountCode": "1000", "amount": 1100, "side": "CR"}
		]
	}`)
	require.False(t, out.Failed, string(out.Model))
	assert.Equal(t, "created", model["status"])
	assert.Equal(t, "V202403-0001", model["voucherNo"])
	assert.True(t, ec.VoucherCreated())
	require.Len(t, out.Messages, 1)
	assert.Contains(t, out.Messages[0], "V202403-0001")

	_, model = run(t, r, ec, "get_voucher_by_number", `{"voucher_no":"V202403-0001"}`)
	assert.Equal(t, true, model["found"])
}

func TestCreateVoucherRejectsUnapprovedAccount(t *testing.T) {
	r, _ := newRegistry(t)
	ec := newExec()
	ec.Whitelist.Approve("6200", true)
	ec.ApproveAccount("6400")

	out, model := run(t, r, ec, CreateVoucherName, `{
		"header": {"postingDate": "2024-03-05"},
		"lines": [
			{"accountCode": "6300", "amount": 5000, "side": "DR"},
			{"accountCode": "1000", "amount": 5000, "side": "CR"}
		]
	}`)
	assert.True(t, out.Failed)
	assert.Contains(t, model["error"], "6300")
	assert.Contains(t, model["error"], "6200, 6400")
	assert.False(t, ec.VoucherCreated())
}

const receivableDraft = `{
	"header": {"postingDate": "2024-03-05", "summary": "Consulting"},
	"lines": [
		{"accountCode": "1100", "amount": 5000, "side": "DR"},
		{"accountCode": "4000", "amount": 5000, "side": "CR"}
	]
}`

func TestCreateVoucherAsksForMissingCustomer(t *testing.T) {
	r, _ := newRegistry(t)
	ec := newExec()

	out, model := run(t, r, ec, CreateVoucherName, receivableDraft)
	assert.False(t, out.Failed)
	assert.Equal(t, "clarification_required", model["status"])
	require.NotNil(t, out.Clarification)
	assert.Equal(t, "lines[0].customerId", out.Clarification.MissingField)
	assert.Equal(t, "1100", out.Clarification.AccountCode)
	require.NotNil(t, out.Clarification.Draft)
	assert.Equal(t, CreateVoucherName, out.Clarification.Draft.Tool)
	assert.False(t, ec.VoucherCreated())
}

func TestCreateVoucherHonorsPendingAnswer(t *testing.T) {
	r, _ := newRegistry(t)
	ec := newExec()
	ec.Pending = &agent.PendingAnswer{QuestionID: "q1", Field: "lines[0].customerId", Value: "C001"}

	out, model := run(t, r, ec, CreateVoucherName, receivableDraft)
	require.False(t, out.Failed, string(out.Model))
	assert.Equal(t, "created", model["status"])
	assert.True(t, ec.VoucherCreated())
}

func TestCreateVoucherUnknownDocumentSession(t *testing.T) {
	r, _ := newRegistry(t)

	out, model := run(t, r, newExec(), CreateVoucherName, `{
		"documentSessionId": "ds_missing",
		"header": {"postingDate": "2024-03-05"},
		"lines": [
			{"accountCode": "6200", "amount": 100, "side": "DR"},
			{"accountCode": "1000", "amount": 100, "side": "CR"}
		]
	}`)
	assert.True(t, out.Failed)
	assert.Contains(t, model["error"], "documentSessionId")
}

func TestGetVoucherNotFound(t *testing.T) {
	r, _ := newRegistry(t)

	out, model := run(t, r, newExec(), "get_voucher_by_number", `{"voucherNo":"V000000-0001"}`)
	assert.False(t, out.Failed)
	assert.Equal(t, false, model["found"])
}

func TestCreateSalesOrder(t *testing.T) {
	r, m := newRegistry(t)

	out, model := run(t, r, newExec(), "create_sales_order", `{
		"customer": {"code": "C001"},
		"orderDate": "2024-04-01",
		"lines": [{"code": "SKU1", "quantity": 2}]
	}`)
	require.False(t, out.Failed, string(out.Model))
	assert.Equal(t, 2400.0, model["amount"])
	no, _ := model["orderNo"].(string)
	_, ok := m.SalesOrder(no)
	assert.True(t, ok)

	out, model = run(t, r, newExec(), "create_sales_order", `{"customerCode":"C001","lines":[{"materialCode":"SKU1","quantity":0}]}`)
	assert.True(t, out.Failed)
	assert.Contains(t, model["error"], "quantity")

	out, model = run(t, r, newExec(), "create_sales_order", `{"customerCode":"C999","lines":[{"materialCode":"SKU1","quantity":1}]}`)
	assert.True(t, out.Failed)
	assert.Contains(t, model["error"], "unknown customer")
}

func TestCreateBusinessPartner(t *testing.T) {
	r, _ := newRegistry(t)

	out, model := run(t, r, newExec(), "create_business_partner", `{"name":"Initech","kind":"Vendor"}`)
	require.False(t, out.Failed, string(out.Model))
	assert.Equal(t, "V002", model["code"])

	_, model = run(t, r, newExec(), "lookup_vendor", `{"query":"initech"}`)
	assert.Equal(t, true, model["found"])

	out, _ = run(t, r, newExec(), "create_business_partner", `{"name":"Initech","kind":"vendor"}`)
	assert.True(t, out.Failed)
}

func TestRequestClarificationBreaksLoop(t *testing.T) {
	r, _ := newRegistry(t)

	out, _ := run(t, r, newExec(), "request_clarification", `{"question":"Which date?","missing_field":"postingDate"}`)
	assert.True(t, out.BreakLoop)
	require.NotNil(t, out.Clarification)
	assert.Equal(t, "Which date?", out.Clarification.Question)
	assert.Equal(t, "postingDate", out.Clarification.MissingField)

	out, _ = run(t, r, newExec(), "request_clarification", `{}`)
	assert.True(t, out.Failed)
	assert.Nil(t, out.Clarification)
}

func TestExtractInvoiceData(t *testing.T) {
	r, _ := newRegistry(t)
	ec := newExec()

	out, _ := run(t, r, ec, "extract_invoice_data", `{}`)
	assert.True(t, out.Failed)

	d := ec.Registry.Register("f1", json.RawMessage(`{"total":1100}`), types.DocumentSessionFor("f1"))
	ec.Registry.SetActive(d.DocumentSessionID)

	out, model := run(t, r, ec, "extract_invoice_data", `{"document":"#1"}`)
	require.False(t, out.Failed, string(out.Model))
	assert.Equal(t, "f1", model["fileId"])
	assert.Equal(t, map[string]any{"total": 1100.0}, model["analysis"])
}

func TestExtractInvoiceDataPageIndexIsWithinCurrentDocument(t *testing.T) {
	r, _ := newRegistry(t)
	ec := newExec()
	first := ec.Registry.Register("a1", json.RawMessage(`{"total":100}`), "doc_a")
	second := ec.Registry.Register("b1", json.RawMessage(`{"total":200}`), "doc_b")
	ec.Registry.Register("b2", json.RawMessage(`{"total":300}`), "doc_b")
	require.Equal(t, "#1", first.Label)
	require.Equal(t, "#2", second.Label)
	ec.Registry.SetActive("doc_b")

	_, model := run(t, r, ec, "extract_invoice_data", `{"document":"#1"}`)
	assert.Equal(t, "b1", model["fileId"], "#1 is the first page of the current document")
	_, model = run(t, r, ec, "extract_invoice_data", `{"document":"#2"}`)
	assert.Equal(t, "b2", model["fileId"])

	_, model = run(t, r, ec, "extract_invoice_data", `{"document":"doc_a"}`)
	assert.Equal(t, "a1", model["fileId"])

	assert.Contains(t, ExtractInvoiceData{}.Description(), "n-th page of the current document")
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "1,234,567.5", formatAmount(1234567.5))
	assert.Equal(t, "-1,000", formatAmount(-1000))
	assert.Equal(t, "999", formatAmount(999))
}
