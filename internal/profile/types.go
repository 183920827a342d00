package profile

// Profile is the normalized member profile returned to the browser. Every
// field is relabeled from the gateway schema, never mutated.
type Profile struct {
	Keyword             string  `json:"keyword"`
	CustomerCode        string  `json:"customerCode"`
	CustomerName        string  `json:"customerName"`
	LatestServiceDate   string  `json:"latestServiceDate"`
	PreviousServiceDate string  `json:"previousServiceDate"`
	NextServiceDate     string  `json:"nextServiceDate"`
	ContractNumber      string  `json:"contractNumber"`
	PaymentMethod       string  `json:"paymentMethod"`
	Usage               string  `json:"usage"`
	PlanType            string  `json:"planType"`
	MonthlyFee          string  `json:"monthlyFee"`
	Address             string  `json:"address"`
	Contact             Contact `json:"contact"`
	Plans               []Plan  `json:"plans"`
	Points              *int    `json:"points"`
	PaymentStatus       string  `json:"paymentStatus"`
}

// Contact is the preferred contact person for the member.
type Contact struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// Plan is one opportunity-backed subscription plan.
type Plan struct {
	ID             string       `json:"id"`
	Title          string       `json:"title"`
	Stage          string       `json:"stage"`
	Summary        string       `json:"summary"`
	Usage          string       `json:"usage"`
	PaymentMethod  string       `json:"paymentMethod"`
	MonthlyFee     string       `json:"monthlyFee"`
	ContractNumber string       `json:"contractNumber"`
	ContractBegin  string       `json:"contractBegin"`
	ContractEnd    string       `json:"contractEnd"`
	ContractTerm   string       `json:"contractTerm"`
	DetailURL      string       `json:"detailUrl"`
	Details        []PlanDetail `json:"details"`
}

// PlanDetail is one labelled row rendered under a plan.
type PlanDetail struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Match is one candidate customer offered when a lookup is ambiguous.
type Match struct {
	Code  string `json:"code"`
	Name  string `json:"name,omitempty"`
	Phone string `json:"phone,omitempty"`
}
