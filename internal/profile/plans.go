package profile

import (
	"context"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/maqua/membership-api/internal/crm"
)

const (
	opportunityCustomerField    = "customer.code"
	opportunityCustomerOperator = "eq"
	opportunityPageSize         = 20
)

// planIDKeys are the fields an opportunity record may carry its id under.
var planIDKeys = []string{"id", "oppt", "opptId", "opportunityId", "businessId"}

// planDetailOrder rendered rows follow this label order; unknown labels keep
// their discovery order at the end.
func (s *Service) planDetailOrder() []string {
	return s.rules.PlanDetailOrder
}

// buildOpportunityPlans collects the customer's opportunities and turns each
// into a plan card. Lookup failures on individual filters or details are
// logged and skipped so a flaky opportunity endpoint never sinks the profile.
func (s *Service) buildOpportunityPlans(ctx context.Context, customerCode string, latestRecord, detail gjson.Result, followups []gjson.Result) []Plan {
	values := make([]string, 0, 8)
	addValue := func(text string) {
		text = strings.TrimSpace(text)
		if text == "" {
			return
		}
		for _, existing := range values {
			if existing == text {
				return
			}
		}
		values = append(values, text)
	}

	addValue(customerCode)

	primaryIDs := map[string]bool{}
	addPrimary := func(text string) {
		if text = strings.TrimSpace(text); text != "" {
			primaryIDs[text] = true
		}
	}

	if latestRecord.IsObject() {
		addValue(firstNonEmpty(fieldText(latestRecord, "customer_code"), fieldText(latestRecord, "customerCode")))
		addValue(fieldText(latestRecord, "customer"))
		addPrimary(firstNonEmpty(fieldText(latestRecord, "oppt"), fieldText(latestRecord, "opptId")))
		addPrimary(firstNonEmpty(fieldText(latestRecord, "opportunityId"), fieldText(latestRecord, "businessId")))
	}
	for _, entry := range followups {
		if !entry.IsObject() {
			continue
		}
		addPrimary(firstNonEmpty(fieldText(entry, "oppt"), fieldText(entry, "opptId")))
		addPrimary(firstNonEmpty(fieldText(entry, "opportunityId"), fieldText(entry, "businessId")))
	}
	if detail.IsObject() {
		addValue(fieldText(detail, "code"))
		addValue(fieldText(detail, "id"))
		addValue(fieldText(detail, "customerCode"))
		addValue(fieldText(detail, "customer"))
		addValue(fieldText(detail, "merchantAppliedDetail.contractNo"))
	}

	var filters []crm.Filter
	for _, value := range values {
		filters = append(filters, crm.Filter{Field: opportunityCustomerField, Op: opportunityCustomerOperator, Value: value})
		if isAllDigits(value) {
			filters = append(filters, crm.Filter{Field: "customer", Op: "eq", Value: value})
		} else if len(value) > 3 {
			filters = append(filters, crm.Filter{Field: "customer.name", Op: "like", Value: value})
		}
	}

	seenIDs := map[string]bool{}
	var records []gjson.Result
	for _, filter := range filters {
		items, err := s.gw.ListOpportunities(ctx, filter, 1, opportunityPageSize)
		if err != nil {
			s.log.Debug("Opportunity lookup failed",
				"value", filter.Value, "field", filter.Field, "op", filter.Op, "error", err)
			continue
		}
		for _, item := range items {
			key := recordPlanID(item, "id", "oppt", "opptId", "opportunityId", "code")
			if key != "" && seenIDs[key] {
				continue
			}
			if key != "" {
				seenIDs[key] = true
			}
			records = append(records, item)
		}
	}
	if len(records) == 0 {
		return nil
	}

	// Opportunities referenced directly by the follow-up records trump the
	// broader customer search.
	if len(primaryIDs) > 0 {
		var prioritized []gjson.Result
		for _, item := range records {
			if id := recordPlanID(item, planIDKeys...); id != "" && primaryIDs[id] {
				prioritized = append(prioritized, item)
			}
		}
		if len(prioritized) > 0 {
			records = prioritized
		}
	}

	var plans []Plan
	for _, record := range records {
		opportunityID := recordPlanID(record, planIDKeys...)

		detailData := gjson.Result{}
		if opportunityID != "" {
			fetched, err := s.gw.GetOpportunityDetail(ctx, opportunityID)
			if err != nil {
				s.log.Debug("Opportunity detail lookup failed", "opportunity", opportunityID, "error", err)
			} else {
				detailData = fetched
			}
		}
		if plan, ok := s.buildPlanModel(record, detailData, opportunityID); ok {
			plans = append(plans, plan)
		}
	}
	return plans
}

func recordPlanID(item gjson.Result, keys ...string) string {
	for _, key := range keys {
		if text := fieldText(item, key); text != "" {
			return text
		}
	}
	return ""
}

func isAllDigits(text string) bool {
	if text == "" {
		return false
	}
	for _, ch := range text {
		if ch < '0' || ch > '9' {
			return false
		}
	}
	return true
}

// buildPlanModel flattens the opportunity list record and its detail into a
// plan card. Returns false when the opportunity carries nothing worth
// rendering.
func (s *Service) buildPlanModel(record, detail gjson.Result, opportunityID string) (Plan, bool) {
	sources := collectSources(record, detail)

	planID := firstNonEmpty(extractValue(sources, planIDKeys...), opportunityID)
	title := extractValue(sources, "oppt_name", "name", "商機名稱")
	stage := extractValue(sources, "opptStage_name", "stageName", "商機階段")
	summary := extractValue(sources,
		"planType", "plan_type", "方案類型", "schemeName", "productName",
		"headDef!define9", "opptDefineCharacter.attrext9")
	usage := extractValue(sources,
		"usage", "useType", "使用方式", "headDef!define8", "opptDefineCharacter.attrext8")
	payment := extractValue(sources,
		"paymentMethod", "paymentMethodName", "paymentWay", "payWay_name",
		"paywayName", "目前付費方式", "付款方式")
	monthly := extractValue(sources,
		"monthlyFee", "rentAmount", "rent", "月費金額",
		"headDef!define10", "headDef!define11",
		"opptDefineCharacter.attrext12", "opptDefineCharacter.attrext10")
	contractNumber := extractValue(sources,
		"contractNo", "contractNumber", "合約編號", "合同編號",
		"headDef!define13", "opptDefineCharacter.attrext19")
	contractBegin := extractValue(sources,
		"contractBeginDate", "startDate", "合約開始日期", "開始日期",
		"headDef!define2", "opptDefineCharacter.attrext2")
	contractEnd := extractValue(sources,
		"contractEndDate", "endDate", "合約結束日期", "結束日期",
		"headDef!define3", "opptDefineCharacter.attrext3")
	contractTerm := extractValue(sources,
		"contractYear", "合約年期", "headDef!define4", "opptDefineCharacter.attrext4")

	detailURL := extractValue(sources, "pcUrl", "detailUrl", "detail_url", "url")
	if detailURL == "" && s.settings.OpportunityDetailURLTemplate != "" && planID != "" {
		detailURL = strings.NewReplacer("{id}", planID, "{code}", planID).
			Replace(s.settings.OpportunityDetailURLTemplate)
	}

	displaySummary := summary
	if displaySummary == "" {
		displaySummary = extractValue(sources, "solutionName", "方案名稱", "planName")
	}

	var details []PlanDetail
	addDetail := func(label string, keys ...string) {
		if value := extractValue(sources, keys...); value != "" {
			details = append(details, PlanDetail{Label: label, Value: value})
		}
	}

	if displaySummary != "" {
		details = append(details, PlanDetail{Label: "方案類型", Value: displaySummary})
	}
	addDetail("使用方式", "usage", "useType", "使用方式", "headDef!define8", "opptDefineCharacter.attrext8")
	addDetail("付費方式", "paymentMethod", "paymentMethodName", "paymentWay", "payWay_name", "paywayName", "目前付費方式", "付款方式")
	addDetail("月費金額", "monthlyFee", "rentAmount", "rent", "月費金額", "headDef!define11", "opptDefineCharacter.attrext12")
	addDetail("合約編號", "contractNo", "contractNumber", "合同編號", "合約編號", "headDef!define13", "opptDefineCharacter.attrext19")
	addDetail("合約開始日", "contractBeginDate", "startDate", "合約開始日期", "開始日期", "headDef!define2", "opptDefineCharacter.attrext2")
	addDetail("合約結束日", "contractEndDate", "endDate", "合約結束日期", "結束日期", "headDef!define3", "opptDefineCharacter.attrext3")
	addDetail("合約年期", "contractYear", "合約年期", "headDef!define4", "opptDefineCharacter.attrext4")
	addDetail("預計簽單金額", "expectSignMoney", "planAmount", "amount", "預計簽單金額")
	addDetail("商機階段", "opptStage_name", "stageName", "商機階段")
	addDetail("方案負責人", "ownerName", "ower_name", "負責人")
	addDetail("交易類型", "opptTransType_name", "bustype_name", "交易類型")
	addDetail("安裝位置", "installLocation", "address", "安裝位置")

	details = orderPlanDetails(dedupePlanDetails(details), s.planDetailOrder())

	if displaySummary == "" && title == "" && len(details) == 0 {
		return Plan{}, false
	}

	return Plan{
		ID:             planID,
		Title:          firstNonEmpty(title, displaySummary, "商機"),
		Stage:          stage,
		Summary:        firstNonEmpty(displaySummary, title),
		Usage:          usage,
		PaymentMethod:  payment,
		MonthlyFee:     monthly,
		ContractNumber: contractNumber,
		ContractBegin:  contractBegin,
		ContractEnd:    contractEnd,
		ContractTerm:   contractTerm,
		DetailURL:      detailURL,
		Details:        details,
	}, true
}

func dedupePlanDetails(items []PlanDetail) []PlanDetail {
	seen := make(map[PlanDetail]bool, len(items))
	out := items[:0]
	for _, item := range items {
		if !seen[item] {
			seen[item] = true
			out = append(out, item)
		}
	}
	return out
}

// orderPlanDetails sorts rows by the preferred label order, keeping the rest
// in discovery order.
func orderPlanDetails(items []PlanDetail, preferred []string) []PlanDetail {
	if len(items) == 0 {
		return items
	}
	byLabel := map[string][]PlanDetail{}
	for _, item := range items {
		byLabel[item.Label] = append(byLabel[item.Label], item)
	}
	seen := make(map[PlanDetail]bool, len(items))
	ordered := make([]PlanDetail, 0, len(items))
	for _, label := range preferred {
		for _, item := range byLabel[label] {
			if !seen[item] {
				seen[item] = true
				ordered = append(ordered, item)
			}
		}
	}
	for _, item := range items {
		if !seen[item] {
			seen[item] = true
			ordered = append(ordered, item)
		}
	}
	return ordered
}
