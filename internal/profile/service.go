// Package profile implements the membership lookup: it classifies the query
// key, searches the CRM follow-up records with field fallbacks, resolves the
// customer, and assembles the normalized member profile the page renders.
package profile

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/maqua/membership-api/internal/crm"
	"github.com/maqua/membership-api/internal/logger"
)

// Gateway is the slice of the CRM client the lookup needs.
type Gateway interface {
	ListFollowups(ctx context.Context, filter crm.Filter, page, pageSize int) ([]gjson.Result, error)
	ListTasks(ctx context.Context, customerKeyword string, page, pageSize int) ([]gjson.Result, error)
	ListOpportunities(ctx context.Context, filter crm.Filter, page, pageSize int) ([]gjson.Result, error)
	GetOpportunityDetail(ctx context.Context, opportunityID string) (gjson.Result, error)
	GetCustomerDetail(ctx context.Context, customerID, orgID string) (gjson.Result, error)
	ListAddressesByCodes(ctx context.Context, codes []string) ([]gjson.Result, error)
}

// Settings tunes page sizes and the optional plan detail link template.
type Settings struct {
	PageSize                     int
	TaskPageSize                 int
	OpportunityDetailURLTemplate string
}

// Service runs lookups against the CRM gateway.
type Service struct {
	log      *logger.Logger
	gw       Gateway
	rules    *Rules
	settings Settings

	now func() time.Time
}

// NewService creates a lookup service. Nil rules fall back to the built-in
// rules document.
func NewService(log *logger.Logger, gw Gateway, rules *Rules, settings Settings) *Service {
	if log == nil {
		log = logger.Production()
	}
	if rules == nil {
		rules = DefaultRules()
	}
	if settings.PageSize <= 0 {
		settings.PageSize = 20
	}
	if settings.TaskPageSize <= 0 {
		settings.TaskPageSize = 50
	}
	return &Service{
		log:      log,
		gw:       gw,
		rules:    rules,
		settings: settings,
		now:      time.Now,
	}
}

// detailKey identifies a customer-detail fetch for per-lookup caching.
type detailKey struct {
	customerID string
	orgID      string
}

// lookupState carries the per-request detail cache so the same customer
// record is fetched at most once per lookup.
type lookupState struct {
	details map[detailKey]gjson.Result
}

// Lookup resolves one query key to exactly one outcome: a profile, a
// NotFoundError, an AmbiguousError, or an upstream failure.
func (s *Service) Lookup(ctx context.Context, identifier string) (*Profile, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, ErrEmptyQuery
	}

	kind := classifyQuery(identifier)
	s.log.Debug("Classified lookup query", "keyword", identifier, "kind", kind.String())

	var primary FieldOp
	var fallbacks []FieldOp
	expectedCode := ""
	switch kind {
	case KindPhone:
		primary = s.rules.Search.PhonePrimary
		fallbacks = s.rules.Search.PhoneFallbacks
	case KindCode:
		primary = s.rules.Search.CodePrimary
		expectedCode = strings.ToUpper(identifier)
	default:
		primary = s.rules.Search.NamePrimary
		fallbacks = s.rules.Search.NameFallbacks
	}

	records, err := s.searchFollowups(ctx, identifier, primary, fallbacks)
	if err != nil {
		return nil, err
	}

	state := &lookupState{details: make(map[detailKey]gjson.Result)}

	// Phone and name searches must land on exactly one customer before the
	// profile is assembled.
	if len(records) > 0 && expectedCode == "" {
		matches := buildMatches(records)
		if len(matches) == 0 {
			return nil, &NotFoundError{Message: "找不到符合條件的客戶資料"}
		}
		if len(matches) > 1 {
			return nil, &AmbiguousError{
				Message: "找到多個符合的客戶，請選擇客戶編碼查詢。",
				Matches: matches,
			}
		}
		expectedCode = strings.ToUpper(matches[0].Code)
	}

	resolvedCode := ""
	if expectedCode != "" {
		var codeSuggestions []string
		records, resolvedCode, codeSuggestions = s.filterRecordsForCode(ctx, state, records, expectedCode)
		if len(records) == 0 {
			if len(codeSuggestions) > 0 {
				if len(codeSuggestions) > 5 {
					codeSuggestions = codeSuggestions[:5]
				}
				hint := strings.Join(codeSuggestions, "、")
				return nil, &NotFoundError{Message: "找不到對應的客戶編碼，可能是：" + hint + "，請輸入完整的編碼。"}
			}
			return nil, &NotFoundError{Message: "找不到對應的客戶編碼，請輸入完整的編碼。"}
		}
	}

	if len(records) == 0 {
		return nil, &NotFoundError{Message: "找不到符合條件的紀錄"}
	}

	targetCode := strings.ToUpper(firstNonEmpty(resolvedCode, expectedCode, identifier))

	var tasks []gjson.Result
	if targetCode != "" {
		tasks, err = s.gw.ListTasks(ctx, targetCode, 1, s.settings.TaskPageSize)
		if err != nil {
			// Tasks only refine the next-service estimate; the lookup
			// still answers without them.
			s.log.Warn("Failed to fetch tasks", "customer", targetCode, "error", err)
			tasks = nil
		}
	}

	summary := s.maintenanceSummary(targetCode, records, tasks)
	latestServiceDate := summary.latestServiceDate
	nextServiceDate := summary.nextServiceDate
	if nextServiceDate != "" {
		if parsed, ok := parseFollowDate(nextServiceDate); ok {
			nextServiceDate = parsed.AddDate(0, 0, s.rules.NextServiceLeadDays).Format(dateLayout)
		}
	}
	paymentStatus := s.resolvePaymentStatus(records)
	resolvedCode = firstNonEmpty(summary.customerCode, targetCode)

	latestRecord, found := findRecordByDate(records, latestServiceDate)
	if !found {
		latestRecord, found = s.selectLatestServiceRecord(records)
		if found && latestServiceDate == "" {
			latestServiceDate = formatFollowDate(fieldText(latestRecord, "followTime"))
		}
	}
	if !found {
		return nil, &NotFoundError{Message: "找不到符合條件的保養紀錄"}
	}

	customerID := fieldText(latestRecord, "customer")
	orgID := fieldText(latestRecord, "org")

	detail := gjson.Result{}
	if customerID != "" && orgID != "" {
		detail, err = s.detailData(ctx, state, customerID, orgID)
		if err != nil {
			return nil, err
		}
	}

	addressText, contactName, contactPhone := s.resolveAddress(ctx, detail)

	followInfo := extractRecentFollowInfo(detail)
	merchantDetail := getPath(detail, "merchantAppliedDetail")
	contractNumber := firstNonEmpty(
		fieldText(detail, "contractNumber"),
		fieldText(merchantDetail, "contractNumber"),
		fieldText(merchantDetail, "contractNo"),
		fieldText(merchantDetail, "contractCode"),
		fieldText(merchantDetail, "merchantApplyRangeId"),
		fieldText(merchantDetail, "id"),
		fieldText(detail, "merchantDefine.define1"),
		fieldText(detail, "merchantCharacter.attrext21"),
		followInfo["合約編號"],
		followInfo["合同編號"],
		followInfo["合同號"],
		followInfo["合約號"],
	)
	usage := firstNonEmpty(
		fieldText(detail, "largeText1"),
		fieldText(detail, "usage"),
		followInfo["使用方式"],
	)
	planType := firstNonEmpty(
		fieldText(detail, "largeText2"),
		followInfo["設備"],
	)
	if planType == "" {
		if content := strings.TrimSpace(followInfo["內容"]); content != "" && !seemsLikeScheduleText(content) {
			planType = content
		}
	}
	monthlyFee := firstNonEmpty(
		fieldText(detail, "largeText3"),
		followInfo["月費"],
		followInfo["金額"],
	)
	paymentMethod := s.detectPaymentMethod(detail, followInfo)

	candidates := s.candidateCodes(ctx, state, latestRecord)
	firstCandidate := ""
	if len(candidates) > 0 {
		firstCandidate = candidates[0]
	}
	resolvedCode = firstNonEmpty(fieldText(detail, "code"), resolvedCode, firstCandidate)

	var plans []Plan
	if resolvedCode != "" {
		plans = s.buildOpportunityPlans(ctx, resolvedCode, latestRecord, detail, records)
		if len(plans) > 0 {
			var summaryNames []string
			for _, plan := range plans {
				if name := strings.TrimSpace(firstNonEmpty(plan.Summary, plan.Title)); name != "" {
					summaryNames = append(summaryNames, name)
				}
			}
			if len(summaryNames) > 0 {
				planType = strings.Join(summaryNames, " / ")
			}
			for _, plan := range plans {
				if contractNumber == "" && plan.ContractNumber != "" {
					contractNumber = plan.ContractNumber
				}
				if paymentMethod == "" && plan.PaymentMethod != "" {
					paymentMethod = plan.PaymentMethod
				}
				if monthlyFee == "" && plan.MonthlyFee != "" {
					monthlyFee = plan.MonthlyFee
				}
				if usage == "" && plan.Usage != "" {
					usage = plan.Usage
				}
			}
		}
	}

	if nextServiceDate == "" {
		nextServiceDate = s.resolveNextServiceDate(latestServiceDate, followInfo, records)
	}

	customerName := firstNonEmpty(
		fieldText(detail, "name"),
		fieldText(detail, "enterpriseName"),
		fieldText(latestRecord, "customer_name"),
		summary.customerName,
	)

	return &Profile{
		Keyword:             identifier,
		CustomerCode:        resolvedCode,
		CustomerName:        customerName,
		LatestServiceDate:   latestServiceDate,
		PreviousServiceDate: summary.previousServiceDate,
		NextServiceDate:     nextServiceDate,
		ContractNumber:      contractNumber,
		PaymentMethod:       paymentMethod,
		Usage:               usage,
		PlanType:            planType,
		MonthlyFee:          monthlyFee,
		Address:             addressText,
		Contact:             Contact{Name: contactName, Phone: contactPhone},
		Plans:               plans,
		PaymentStatus:       paymentStatus,
	}, nil
}

// searchFollowups runs the primary search and then the fallback chain until
// one condition yields records.
func (s *Service) searchFollowups(ctx context.Context, keyword string, primary FieldOp, fallbacks []FieldOp) ([]gjson.Result, error) {
	tried := map[FieldOp]bool{primary: true}

	records, err := s.gw.ListFollowups(ctx, crm.Filter{Field: primary.Field, Op: primary.Op, Value: keyword}, 1, s.settings.PageSize)
	if err != nil {
		return nil, err
	}
	if len(records) > 0 {
		return records, nil
	}

	for _, fo := range fallbacks {
		if tried[fo] {
			continue
		}
		tried[fo] = true
		records, err = s.gw.ListFollowups(ctx, crm.Filter{Field: fo.Field, Op: fo.Op, Value: keyword}, 1, s.settings.PageSize)
		if err != nil {
			return nil, err
		}
		if len(records) > 0 {
			s.log.Debug("Fallback search matched", "keyword", keyword, "field", fo.Field, "op", fo.Op)
			return records, nil
		}
	}
	return nil, nil
}

// detailData fetches the customer master record through the per-lookup cache.
func (s *Service) detailData(ctx context.Context, state *lookupState, customerID, orgID string) (gjson.Result, error) {
	key := detailKey{customerID: customerID, orgID: orgID}
	if cached, ok := state.details[key]; ok {
		return cached, nil
	}
	detail, err := s.gw.GetCustomerDetail(ctx, customerID, orgID)
	if err != nil {
		return gjson.Result{}, err
	}
	state.details[key] = detail
	return detail, nil
}

// detailCode resolves the customer code behind a follow-up record, fetching
// the customer detail when necessary. Failures resolve to "".
func (s *Service) detailCode(ctx context.Context, state *lookupState, record gjson.Result) string {
	customerID := fieldText(record, "customer")
	if customerID == "" {
		return ""
	}
	orgID := fieldText(record, "org")
	key := detailKey{customerID: customerID, orgID: orgID}

	detail, ok := state.details[key]
	if !ok {
		if orgID == "" {
			state.details[key] = gjson.Result{}
			return ""
		}
		var err error
		detail, err = s.gw.GetCustomerDetail(ctx, customerID, orgID)
		if err != nil {
			s.log.Debug("Customer detail fetch failed while resolving code", "customer", customerID, "error", err)
			detail = gjson.Result{}
		}
		state.details[key] = detail
	}

	return strings.ToUpper(fieldText(detail, "code"))
}

// resolveAddress picks the display address and contact from the merchant
// address book, preferring the default entry, with the customer master
// fields as fallback.
func (s *Service) resolveAddress(ctx context.Context, detail gjson.Result) (addressText, contactName, contactPhone string) {
	if !detail.IsObject() {
		return "", "", ""
	}

	addresses := getPath(detail, "merchantAddressInfos").Array()
	if len(addresses) == 0 {
		if code := fieldText(detail, "code"); code != "" {
			fetched, err := s.gw.ListAddressesByCodes(ctx, []string{code})
			if err != nil {
				// Address book is enrichment only.
				s.log.Warn("Failed to fetch addresses", "customer_code", code, "error", err)
			} else {
				addresses = fetched
			}
		}
	}

	var selected gjson.Result
	for _, item := range addresses {
		if item.Get("isDefault").Bool() {
			selected = item
			break
		}
	}
	if !selected.Exists() && len(addresses) > 0 {
		selected = addresses[0]
	}

	if selected.IsObject() {
		addressText = firstNonEmpty(
			fieldText(selected, "mergerName"),
			fieldText(selected, "address"),
			fieldText(selected, "addressInfo"),
		)
		contactName = fieldText(selected, "receiver")
		contactPhone = firstNonEmpty(fieldText(selected, "mobile"), fieldText(selected, "telePhone"))
	}

	if addressText == "" {
		addressText = fieldText(detail, "address")
	}
	if contactName == "" {
		contactName = fieldText(detail, "contactName")
	}
	if contactPhone == "" {
		contactPhone = firstNonEmpty(fieldText(detail, "contactTel"), fieldText(detail, "contactMobile"))
	}
	return addressText, contactName, contactPhone
}

const rawFollowKey = "__raw__"

// extractRecentFollowInfo parses the key:value lines of the most recent
// follow-up note on the customer record. Fullwidth colons count as
// separators; the untouched note is kept under rawFollowKey.
func extractRecentFollowInfo(detail gjson.Result) map[string]string {
	result := map[string]string{}
	text := cleanText(getPath(detail, "merchantAppliedDetail.recentFollowContent"))
	if text == "" {
		return result
	}

	result[rawFollowKey] = text
	for _, rawLine := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		line := strings.TrimSpace(rawLine)
		if line == "" {
			continue
		}
		normalized := strings.Replace(line, "：", ":", 1)
		normalized = strings.Replace(normalized, "﹕", ":", 1)
		key, value, ok := strings.Cut(normalized, ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key != "" {
			result[key] = strings.TrimSpace(value)
		}
	}
	return result
}

// buildMatches turns follow-up records into deduplicated customer
// suggestions, keyed by customer code.
func buildMatches(records []gjson.Result) []Match {
	var matches []Match
	seen := map[string]bool{}
	for _, item := range records {
		code, name, phone := recordIdentity(item)
		if code == "" {
			continue
		}
		normalized := strings.ToUpper(code)
		if seen[normalized] {
			continue
		}
		seen[normalized] = true
		matches = append(matches, Match{Code: normalized, Name: name, Phone: phone})
	}
	return matches
}

// looseCodeRE accepts short C-tokens too; suggestion building errs on the
// side of offering a code.
var looseCodeRE = regexp.MustCompile(`\bC\d+`)

// recordIdentity extracts the customer code, name and phone shown in an
// ambiguous-match suggestion. When the record carries no code field, a
// C-token embedded in the customer name is used.
func recordIdentity(item gjson.Result) (code, name, phone string) {
	code = firstNonEmpty(
		fieldText(item, "customer_code"),
		fieldText(item, "customerCode"),
		fieldText(item, "customer.code"),
	)
	name = firstNonEmpty(
		fieldText(item, "customer_name"),
		fieldText(item, "customer.name"),
		fieldText(item, "customerName"),
	)
	if code == "" && name != "" {
		code = looseCodeRE.FindString(strings.ToUpper(name))
	}
	phone = firstNonEmpty(
		fieldText(item, "contactMobile"),
		fieldText(item, "contactTel"),
		fieldText(item, "customer.contactMobile"),
		fieldText(item, "customer.mobile"),
	)
	return code, name, phone
}

// matchesCode reports whether a follow-up record belongs to the expected
// customer code, checking the code fields, the bare customer reference, a
// C-token in the name, and finally the customer master record.
func (s *Service) matchesCode(ctx context.Context, state *lookupState, item gjson.Result, expected string) bool {
	expected = strings.ToUpper(strings.TrimSpace(expected))
	if expected == "" {
		return false
	}

	for _, key := range []string{"customer_code", "customerCode"} {
		if val := fieldText(item, key); val != "" && strings.ToUpper(val) == expected {
			return true
		}
	}

	if cust := item.Map()["customer"]; cust.Type == gjson.String {
		val := strings.ToUpper(strings.TrimSpace(cust.String()))
		if val != "" && val == expected && hasAlpha(val) {
			return true
		}
	}

	if nested := fieldText(item, "customer.code"); nested != "" && strings.ToUpper(nested) == expected {
		return true
	}

	for _, key := range []string{"customer_name", "customer.name", "customerName"} {
		if nameVal := fieldText(item, key); nameVal != "" {
			if token := codeTokenRE.FindString(strings.ToUpper(nameVal)); token == expected && token != "" {
				return true
			}
		}
	}

	return s.detailCode(ctx, state, item) == expected
}

// candidateCodes lists every customer code a record could belong to,
// ordered, deduplicated.
func (s *Service) candidateCodes(ctx context.Context, state *lookupState, item gjson.Result) []string {
	var codes []string
	for _, key := range []string{"customer_code", "customerCode"} {
		if val := fieldText(item, key); val != "" {
			codes = append(codes, strings.ToUpper(val))
		}
	}

	name := firstNonEmpty(
		fieldText(item, "customer_name"),
		fieldText(item, "customer.name"),
		fieldText(item, "customerName"),
	)
	if name != "" {
		if token := codeTokenRE.FindString(strings.ToUpper(name)); token != "" {
			codes = append(codes, token)
		}
	}

	if detail := s.detailCode(ctx, state, item); detail != "" {
		codes = append(codes, detail)
	}

	seen := map[string]bool{}
	out := codes[:0]
	for _, code := range codes {
		if !seen[code] {
			seen[code] = true
			out = append(out, code)
		}
	}
	return out
}

// filterRecordsForCode keeps the records belonging to the expected customer
// code. When nothing matches exactly it falls back to candidate-code
// grouping, then to prefix suggestions.
func (s *Service) filterRecordsForCode(ctx context.Context, state *lookupState, records []gjson.Result, expectedCode string) (filtered []gjson.Result, resolvedCode string, suggestions []string) {
	expected := strings.ToUpper(strings.TrimSpace(expectedCode))
	if expected == "" {
		return records, "", nil
	}

	for _, item := range records {
		if s.matchesCode(ctx, state, item, expected) {
			filtered = append(filtered, item)
		}
	}
	if len(filtered) > 0 {
		return filtered, expected, nil
	}

	codeToRecords := map[string][]gjson.Result{}
	for _, item := range records {
		for _, code := range s.candidateCodes(ctx, state, item) {
			codeToRecords[code] = append(codeToRecords[code], item)
		}
	}

	if matched, ok := codeToRecords[expected]; ok {
		return matched, expected, nil
	}

	var prefixMatches []string
	for code := range codeToRecords {
		if strings.HasPrefix(code, expected) {
			prefixMatches = append(prefixMatches, code)
		}
	}
	if len(prefixMatches) > 0 {
		sort.Strings(prefixMatches)
		return nil, "", prefixMatches
	}

	if len(codeToRecords) == 1 {
		for code, matched := range codeToRecords {
			return matched, code, nil
		}
	}

	for code := range codeToRecords {
		suggestions = append(suggestions, code)
	}
	sort.Strings(suggestions)
	return nil, "", suggestions
}

// findRecordByDate returns the record whose follow time falls on the given
// ISO date.
func findRecordByDate(records []gjson.Result, isoDate string) (gjson.Result, bool) {
	target, ok := parseFollowDate(isoDate)
	if !ok {
		return gjson.Result{}, false
	}
	for _, item := range records {
		recordDate, ok := parseFollowDate(firstNonEmpty(fieldText(item, "followTime"), fieldText(item, "followUpTime")))
		if ok && recordDate.Equal(target) {
			return item, true
		}
	}
	return gjson.Result{}, false
}

// selectLatestServiceRecord picks the most recent past record, or the
// earliest future one when everything lies ahead.
func (s *Service) selectLatestServiceRecord(records []gjson.Result) (gjson.Result, bool) {
	today := s.today()

	type dated struct {
		record gjson.Result
		date   time.Time
	}
	var parsed []dated
	for _, item := range records {
		if d, ok := parseFollowDate(firstNonEmpty(fieldText(item, "followTime"), fieldText(item, "followUpTime"))); ok {
			parsed = append(parsed, dated{record: item, date: d})
		}
	}

	if len(parsed) == 0 {
		if len(records) == 0 {
			return gjson.Result{}, false
		}
		return records[0], true
	}

	var past []dated
	for _, entry := range parsed {
		if !entry.date.After(today) {
			past = append(past, entry)
		}
	}
	if len(past) > 0 {
		sort.SliceStable(past, func(i, j int) bool { return past[i].date.After(past[j].date) })
		return past[0].record, true
	}

	sort.SliceStable(parsed, func(i, j int) bool { return parsed[i].date.Before(parsed[j].date) })
	return parsed[0].record, true
}

// resolvePaymentStatus summarizes the latest past follow-up owned by the
// cashier: its date plus the note, when one exists.
func (s *Service) resolvePaymentStatus(records []gjson.Result) string {
	today := s.today()
	var bestRecord gjson.Result
	var bestDate time.Time
	haveBest := false

	for _, item := range records {
		if fieldText(item, "ower_name") != s.rules.Owners.Cashier {
			continue
		}
		followDate, ok := parseFollowDate(firstNonEmpty(fieldText(item, "followTime"), fieldText(item, "createTime")))
		if !ok || followDate.After(today) {
			continue
		}
		if !haveBest || followDate.After(bestDate) {
			bestRecord = item
			bestDate = followDate
			haveBest = true
		}
	}

	if !haveBest {
		return ""
	}

	note := firstNonEmpty(fieldText(bestRecord, "followContext"), fieldText(bestRecord, "remark"))
	dateText := firstNonEmpty(fieldText(bestRecord, "followTime"), bestDate.Format(dateLayout))
	if note != "" {
		return dateText + " · " + note
	}
	return dateText
}

// resolveNextServiceDate mines dates out of the follow-up notes when neither
// the maintenance history nor the task list produced one.
func (s *Service) resolveNextServiceDate(latestServiceDate string, followInfo map[string]string, records []gjson.Result) string {
	texts := []string{
		followInfo["內容"],
		followInfo["月費"],
		followInfo["金額"],
		followInfo["日期"],
		followInfo["時間"],
		followInfo[rawFollowKey],
	}
	for _, record := range records {
		if ctxText := fieldText(record, "followContext"); ctxText != "" {
			texts = append(texts, ctxText)
		}
	}

	candidates := collectDatesFromTexts(texts)
	if len(candidates) == 0 {
		return ""
	}
	uniqueDates := uniqueSortedDates(candidates)

	if latest, ok := parseFollowDate(latestServiceDate); ok {
		var futureAfterLatest []time.Time
		for _, d := range uniqueDates {
			if d.After(latest) {
				futureAfterLatest = append(futureAfterLatest, d)
			}
		}
		if len(futureAfterLatest) >= 2 {
			return futureAfterLatest[len(futureAfterLatest)-1].Format(dateLayout)
		}
		if len(futureAfterLatest) == 1 {
			return futureAfterLatest[0].Format(dateLayout)
		}
	}

	today := s.today()
	for _, d := range uniqueDates {
		if !d.Before(today) {
			return d.Format(dateLayout)
		}
	}
	return uniqueDates[len(uniqueDates)-1].Format(dateLayout)
}

func (s *Service) today() time.Time {
	now := s.now()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}
