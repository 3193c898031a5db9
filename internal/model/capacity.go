package model

// CapacityLimit is the fixed ceiling on summed request complexity per technician
const CapacityLimit = 100

// CapacityCheck is the result of evaluating a technician's remaining capacity
type CapacityCheck struct {
	TechnicianID string
	CurrentTotal int
	Additional   int
	Limit        int
	WouldExceed  bool
}

// NewCapacityCheck evaluates current+additional against CapacityLimit.
// The sum is never formed, so arbitrarily large inputs cannot wrap.
func NewCapacityCheck(technicianID string, currentTotal, additional int) CapacityCheck {
	return CapacityCheck{
		TechnicianID: technicianID,
		CurrentTotal: currentTotal,
		Additional:   additional,
		Limit:        CapacityLimit,
		WouldExceed:  additional > CapacityLimit-currentTotal,
	}
}

// Remaining returns how much complexity the technician can still take
func (c CapacityCheck) Remaining() int {
	if c.CurrentTotal >= c.Limit {
		return 0
	}
	return c.Limit - c.CurrentTotal
}

// MoveResult describes a committed reassignment
type MoveResult struct {
	RequestID        string
	FromTechnicianID string
	ToTechnicianID   string
	DestinationTotal int
}
