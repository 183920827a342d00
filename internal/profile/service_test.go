package profile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/maqua/membership-api/internal/crm"
)

// fakeGateway implements Gateway with overridable behavior per endpoint.
// Unset endpoints return empty results.
type fakeGateway struct {
	listFollowups   func(filter crm.Filter) ([]gjson.Result, error)
	listTasks       func(keyword string) ([]gjson.Result, error)
	listOpps        func(filter crm.Filter) ([]gjson.Result, error)
	getOppDetail    func(id string) (gjson.Result, error)
	getCustomer     func(customerID, orgID string) (gjson.Result, error)
	listAddresses   func(codes []string) ([]gjson.Result, error)
	followupFilters []crm.Filter
}

func (f *fakeGateway) ListFollowups(_ context.Context, filter crm.Filter, _, _ int) ([]gjson.Result, error) {
	f.followupFilters = append(f.followupFilters, filter)
	if f.listFollowups == nil {
		return nil, nil
	}
	return f.listFollowups(filter)
}

func (f *fakeGateway) ListTasks(_ context.Context, keyword string, _, _ int) ([]gjson.Result, error) {
	if f.listTasks == nil {
		return nil, nil
	}
	return f.listTasks(keyword)
}

func (f *fakeGateway) ListOpportunities(_ context.Context, filter crm.Filter, _, _ int) ([]gjson.Result, error) {
	if f.listOpps == nil {
		return nil, nil
	}
	return f.listOpps(filter)
}

func (f *fakeGateway) GetOpportunityDetail(_ context.Context, id string) (gjson.Result, error) {
	if f.getOppDetail == nil {
		return gjson.Result{}, nil
	}
	return f.getOppDetail(id)
}

func (f *fakeGateway) GetCustomerDetail(_ context.Context, customerID, orgID string) (gjson.Result, error) {
	if f.getCustomer == nil {
		return gjson.Result{}, nil
	}
	return f.getCustomer(customerID, orgID)
}

func (f *fakeGateway) ListAddressesByCodes(_ context.Context, codes []string) ([]gjson.Result, error) {
	if f.listAddresses == nil {
		return nil, nil
	}
	return f.listAddresses(codes)
}

func parseRecords(docs ...string) []gjson.Result {
	out := make([]gjson.Result, 0, len(docs))
	for _, d := range docs {
		out = append(out, gjson.Parse(d))
	}
	return out
}

var testToday = time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)

func newLookupService(gw Gateway) *Service {
	s := NewService(nil, gw, DefaultRules(), Settings{})
	s.now = func() time.Time { return testToday }
	return s
}

func TestLookupEmptyIdentifier(t *testing.T) {
	s := newLookupService(&fakeGateway{})

	_, err := s.Lookup(context.Background(), "   ")
	require.ErrorIs(t, err, ErrEmptyQuery)
}

func TestLookupNoRecordsAfterFallbacks(t *testing.T) {
	gw := &fakeGateway{}
	s := newLookupService(gw)

	_, err := s.Lookup(context.Background(), "王小明")

	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "找不到符合條件的紀錄", notFound.Message)

	// Primary plus the untried name fallbacks, each hit once.
	assert.Greater(t, len(gw.followupFilters), 1)
	assert.Equal(t, crm.Filter{Field: "customer.name", Op: "like", Value: "王小明"}, gw.followupFilters[0])
}

func TestLookupUpstreamErrorPropagates(t *testing.T) {
	gatewayErr := &crm.GatewayError{Path: "/followup/list", Status: 502, Detail: "boom"}
	gw := &fakeGateway{
		listFollowups: func(crm.Filter) ([]gjson.Result, error) { return nil, gatewayErr },
	}
	s := newLookupService(gw)

	_, err := s.Lookup(context.Background(), "0912345678")
	require.Error(t, err)

	var upstream *crm.GatewayError
	require.ErrorAs(t, err, &upstream)
}

func TestLookupPhoneAmbiguousReturnsChoices(t *testing.T) {
	gw := &fakeGateway{
		listFollowups: func(crm.Filter) ([]gjson.Result, error) {
			return parseRecords(
				`{"customer_code": "C115", "customer_name": "C115 王小明", "contactMobile": "0912345678"}`,
				`{"customer_code": "C220", "customer_name": "C220 王大明", "contactMobile": "0912345678"}`,
				`{"customer_code": "c115", "customer_name": "C115 王小明"}`,
			), nil
		},
	}
	s := newLookupService(gw)

	_, err := s.Lookup(context.Background(), "0912345678")

	var ambiguous *AmbiguousError
	require.ErrorAs(t, err, &ambiguous)
	require.Len(t, ambiguous.Matches, 2)
	assert.Equal(t, "C115", ambiguous.Matches[0].Code)
	assert.Equal(t, "C220", ambiguous.Matches[1].Code)
	assert.Equal(t, "0912345678", ambiguous.Matches[0].Phone)
}

func TestLookupCodeWithPrefixSuggestions(t *testing.T) {
	// The gateway matches code prefixes server-side, so an exact eq search
	// for C115 can still return sibling branch records.
	gw := &fakeGateway{
		listFollowups: func(crm.Filter) ([]gjson.Result, error) {
			return parseRecords(
				`{"customer_code": "C1151", "customer_name": "C1151 分店一"}`,
				`{"customer_code": "C1152", "customer_name": "C1152 分店二"}`,
			), nil
		},
	}
	s := newLookupService(gw)

	_, err := s.Lookup(context.Background(), "C115")

	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Contains(t, notFound.Message, "C1151")
	assert.Contains(t, notFound.Message, "C1152")
	assert.Contains(t, notFound.Message, "請輸入完整的編碼")
}

func TestLookupHappyPath(t *testing.T) {
	followups := parseRecords(
		`{"customer_code": "C115", "customer_name": "C115 王小明", "ower_name": "維修幫",
		  "followTime": "2026-08-01 10:00:00", "customer": "cust-1", "org": "org-1",
		  "followContext": "已完成保養"}`,
		`{"customer_code": "C115", "customer_name": "C115 王小明", "ower_name": "維修幫",
		  "followTime": "2026-05-02", "customer": "cust-1", "org": "org-1"}`,
		`{"customer_code": "C115", "ower_name": "出納008", "followTime": "2026-07-15",
		  "followContext": "已收7月款項"}`,
	)
	detail := gjson.Parse(`{
		"code": "C115",
		"name": {"zh_TW": "王小明"},
		"contactName": "王太太",
		"contactTel": "02-12345678",
		"largeText1": "家用",
		"largeText3": "1200",
		"merchantAppliedDetail": {
			"contractNumber": "K-2024-001",
			"recentFollowContent": "付款方式：信用卡\n內容：例行保養"
		},
		"merchantAddressInfos": [
			{"mergerName": "台北市信義區松仁路1號", "receiver": "王先生", "mobile": "0911222333", "isDefault": true},
			{"mergerName": "台北市大安區", "receiver": "別人"}
		]
	}`)

	gw := &fakeGateway{
		listFollowups: func(crm.Filter) ([]gjson.Result, error) { return followups, nil },
		listTasks: func(string) ([]gjson.Result, error) {
			return nil, errors.New("task endpoint down")
		},
		getCustomer: func(customerID, orgID string) (gjson.Result, error) {
			require.Equal(t, "cust-1", customerID)
			require.Equal(t, "org-1", orgID)
			return detail, nil
		},
	}
	s := newLookupService(gw)

	profile, err := s.Lookup(context.Background(), "C115")
	require.NoError(t, err)

	assert.Equal(t, "C115", profile.Keyword)
	assert.Equal(t, "C115", profile.CustomerCode)
	assert.Equal(t, "王小明", profile.CustomerName)
	assert.Equal(t, "2026-08-01", profile.LatestServiceDate)
	assert.Equal(t, "2026-05-02", profile.PreviousServiceDate)
	// Base date is the previous service (no usable tasks), plus the lead days.
	assert.Equal(t, "2026-05-16", profile.NextServiceDate)
	assert.Equal(t, "K-2024-001", profile.ContractNumber)
	assert.Equal(t, "信用卡", profile.PaymentMethod)
	assert.Equal(t, "家用", profile.Usage)
	assert.Equal(t, "例行保養", profile.PlanType)
	assert.Equal(t, "1200", profile.MonthlyFee)
	assert.Equal(t, "台北市信義區松仁路1號", profile.Address)
	assert.Equal(t, "王先生", profile.Contact.Name)
	assert.Equal(t, "0911222333", profile.Contact.Phone)
	assert.Contains(t, profile.PaymentStatus, "2026-07-15")
	assert.Contains(t, profile.PaymentStatus, "已收7月款項")
	assert.Nil(t, profile.Points)
}

func TestLookupFutureTaskDrivesNextService(t *testing.T) {
	followups := parseRecords(
		`{"customer_code": "C115", "ower_name": "維修幫", "followTime": "2026-08-01",
		  "customer": "cust-1", "org": "org-1"}`,
	)
	tasks := parseRecords(
		`{"ower_name": "客服003", "startDate": "2026-09-10"}`,
		`{"ower_name": "其他人", "startDate": "2026-09-01"}`,
	)
	gw := &fakeGateway{
		listFollowups: func(crm.Filter) ([]gjson.Result, error) { return followups, nil },
		listTasks:     func(string) ([]gjson.Result, error) { return tasks, nil },
		getCustomer: func(string, string) (gjson.Result, error) {
			return gjson.Parse(`{"code": "C115", "name": "王小明"}`), nil
		},
	}
	s := newLookupService(gw)

	profile, err := s.Lookup(context.Background(), "C115")
	require.NoError(t, err)

	// Service-team task on 09-10 wins over the general 09-01 task.
	assert.Equal(t, "2026-09-24", profile.NextServiceDate)
}

func TestLookupCustomerDetailFailureIsUpstream(t *testing.T) {
	followups := parseRecords(
		`{"customer_code": "C115", "ower_name": "維修幫", "followTime": "2026-08-01",
		  "customer": "cust-1", "org": "org-1"}`,
	)
	gw := &fakeGateway{
		listFollowups: func(crm.Filter) ([]gjson.Result, error) { return followups, nil },
		getCustomer: func(string, string) (gjson.Result, error) {
			return gjson.Result{}, &crm.GatewayError{Path: "/customer/getbyid", Status: 500, Detail: "boom"}
		},
	}
	s := newLookupService(gw)

	_, err := s.Lookup(context.Background(), "C115")
	require.Error(t, err)

	var upstream *crm.GatewayError
	require.ErrorAs(t, err, &upstream)
}

func TestLookupSingleSuggestionResolvesCode(t *testing.T) {
	followups := parseRecords(
		`{"customer_code": "C115", "customer_name": "C115 王小明", "ower_name": "維修幫",
		  "followTime": "2026-08-01", "customer": "cust-1", "org": "org-1"}`,
	)
	gw := &fakeGateway{
		listFollowups: func(crm.Filter) ([]gjson.Result, error) { return followups, nil },
		getCustomer: func(string, string) (gjson.Result, error) {
			return gjson.Parse(`{"code": "C115", "name": "王小明"}`), nil
		},
	}
	s := newLookupService(gw)

	profile, err := s.Lookup(context.Background(), "王小明")
	require.NoError(t, err)
	assert.Equal(t, "C115", profile.CustomerCode)
}

func TestExtractRecentFollowInfo(t *testing.T) {
	detail := gjson.Parse(`{"merchantAppliedDetail": {"recentFollowContent": "付款方式：信用卡\n合約編號: K-001\n雜訊行\n金額﹕1200"}}`)

	info := extractRecentFollowInfo(detail)
	assert.Equal(t, "信用卡", info["付款方式"])
	assert.Equal(t, "K-001", info["合約編號"])
	assert.Equal(t, "1200", info["金額"])
	assert.Contains(t, info[rawFollowKey], "雜訊行")
	assert.NotContains(t, info, "雜訊行")
}

func TestBuildMatchesDerivesCodeFromName(t *testing.T) {
	records := parseRecords(
		`{"customer_name": "C301 張三"}`,
		`{"customer_name": "沒有編碼"}`,
	)
	matches := buildMatches(records)
	require.Len(t, matches, 1)
	assert.Equal(t, "C301", matches[0].Code)
}
