package profile

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/maqua/membership-api/internal/crm"
)

func TestBuildPlanModel(t *testing.T) {
	s := newLookupService(nil)

	record := gjson.Parse(`{
		"id": "opp-1",
		"oppt_name": "淨水方案 A",
		"opptStage_name": "已成交",
		"headDef!define9": "家用雙道",
		"headDef!define8": "廚下型",
		"headDef!define11": "1200",
		"headDef!define13": "K-2024-001",
		"headDef!define2": "2024-01-01",
		"headDef!define3": "2026-12-31"
	}`)
	detail := gjson.Parse(`{"payWay_name": "信用卡", "ownerName": "業務一"}`)

	plan, ok := s.buildPlanModel(record, detail, "opp-1")
	require.True(t, ok)

	assert.Equal(t, "opp-1", plan.ID)
	assert.Equal(t, "淨水方案 A", plan.Title)
	assert.Equal(t, "已成交", plan.Stage)
	assert.Equal(t, "家用雙道", plan.Summary)
	assert.Equal(t, "廚下型", plan.Usage)
	assert.Equal(t, "信用卡", plan.PaymentMethod)
	assert.Equal(t, "1200", plan.MonthlyFee)
	assert.Equal(t, "K-2024-001", plan.ContractNumber)
	assert.Equal(t, "2024-01-01", plan.ContractBegin)
	assert.Equal(t, "2026-12-31", plan.ContractEnd)

	require.NotEmpty(t, plan.Details)
	// Contract number leads the preferred row order.
	assert.Equal(t, "合約編號", plan.Details[0].Label)
	assert.Equal(t, "方案類型", plan.Details[1].Label)
}

func TestBuildPlanModelEmptyOpportunity(t *testing.T) {
	s := newLookupService(nil)

	_, ok := s.buildPlanModel(gjson.Parse(`{"id": "opp-9"}`), gjson.Result{}, "opp-9")
	assert.False(t, ok)
}

func TestBuildPlanModelDetailURLTemplate(t *testing.T) {
	s := NewService(nil, nil, DefaultRules(), Settings{
		OpportunityDetailURLTemplate: "https://crm.example.com/oppt/{id}",
	})

	plan, ok := s.buildPlanModel(gjson.Parse(`{"id": "opp-1", "oppt_name": "方案"}`), gjson.Result{}, "opp-1")
	require.True(t, ok)
	assert.Equal(t, "https://crm.example.com/oppt/opp-1", plan.DetailURL)
}

func TestBuildOpportunityPlansPrioritizesReferencedOpportunities(t *testing.T) {
	latestRecord := gjson.Parse(`{"customer_code": "C115", "oppt": "opp-2"}`)

	gw := &fakeGateway{
		listOpps: func(filter crm.Filter) ([]gjson.Result, error) {
			if filter.Field != "customer.code" {
				return nil, nil
			}
			return parseRecords(
				`{"id": "opp-1", "oppt_name": "方案一"}`,
				`{"id": "opp-2", "oppt_name": "方案二"}`,
			), nil
		},
	}
	s := newLookupService(gw)

	plans := s.buildOpportunityPlans(context.Background(), "C115", latestRecord, gjson.Result{}, nil)
	require.Len(t, plans, 1)
	assert.Equal(t, "opp-2", plans[0].ID)
	assert.Equal(t, "方案二", plans[0].Title)
}

func TestBuildOpportunityPlansDeduplicatesAcrossFilters(t *testing.T) {
	calls := 0
	gw := &fakeGateway{
		listOpps: func(crm.Filter) ([]gjson.Result, error) {
			calls++
			return parseRecords(`{"id": "opp-1", "oppt_name": "方案一"}`), nil
		},
	}
	s := newLookupService(gw)

	detail := gjson.Parse(`{"code": "C115", "id": "cust-1"}`)
	plans := s.buildOpportunityPlans(context.Background(), "C115", gjson.Result{}, detail, nil)

	require.Len(t, plans, 1)
	assert.Greater(t, calls, 1)
}

func TestOrderPlanDetails(t *testing.T) {
	items := []PlanDetail{
		{Label: "安裝位置", Value: "廚房"},
		{Label: "合約編號", Value: "K-001"},
		{Label: "自訂欄位", Value: "x"},
		{Label: "月費金額", Value: "990"},
	}
	ordered := orderPlanDetails(items, DefaultRules().PlanDetailOrder)

	labels := make([]string, 0, len(ordered))
	for _, item := range ordered {
		labels = append(labels, item.Label)
	}
	assert.Equal(t, []string{"合約編號", "月費金額", "安裝位置", "自訂欄位"}, labels)
}
