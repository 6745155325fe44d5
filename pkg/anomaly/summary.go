package anomaly

// Summary is the anomaly headline shown next to the other customer KPIs.
// Profile and behavioral counts are independent: a customer flagged by both
// is counted twice in Total.
type Summary struct {
	Profile    int `json:"profile" yaml:"profile"`
	Behavioral int `json:"behavioral" yaml:"behavioral"`
	Total      int `json:"total" yaml:"total"`

	profileIDs    map[string]struct{}
	behavioralIDs map[string]struct{}
}

// Summarize counts the flagged customers that are part of customers.
// A nil customers slice means every customer. Either result may be nil.
func Summarize(profile *ProfileResult, behavioral *BehavioralResult, customers []string) Summary {
	var scope map[string]struct{}
	if customers != nil {
		scope = make(map[string]struct{}, len(customers))
		for _, id := range customers {
			scope[id] = struct{}{}
		}
	}
	inScope := func(id string) bool {
		if scope == nil {
			return true
		}
		_, ok := scope[id]
		return ok
	}

	s := Summary{
		profileIDs:    map[string]struct{}{},
		behavioralIDs: map[string]struct{}{},
	}
	if profile != nil {
		for _, id := range profile.AnomalousIDs() {
			if inScope(id) {
				s.profileIDs[id] = struct{}{}
			}
		}
	}
	if behavioral != nil {
		for _, id := range behavioral.CustomerIDs() {
			if inScope(id) {
				s.behavioralIDs[id] = struct{}{}
			}
		}
	}

	s.Profile = len(s.profileIDs)
	s.Behavioral = len(s.behavioralIDs)
	s.Total = s.Profile + s.Behavioral
	return s
}

// Flagged reports whether a customer appears in either anomaly list.
func (s Summary) Flagged(customerID string) bool {
	if _, ok := s.profileIDs[customerID]; ok {
		return true
	}
	_, ok := s.behavioralIDs[customerID]
	return ok
}
