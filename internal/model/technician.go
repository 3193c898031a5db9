package model

// Technician represents a field technician ("master") who owns requests
type Technician struct {
	ID       string `json:"id"`
	FullName string `json:"full_name"`
}

// Request represents a work order assigned to exactly one technician
type Request struct {
	ID           string `json:"id"`
	Address      string `json:"address"`
	Complexity   int    `json:"complexity"`
	TechnicianID string `json:"technician_id"`
}

// BoardTechnician is a technician joined with the requests it currently owns
type BoardTechnician struct {
	Technician
	Requests []Request `json:"requests"`
}

// TotalComplexity returns the summed complexity of the assigned requests
func (t BoardTechnician) TotalComplexity() int {
	total := 0
	for _, r := range t.Requests {
		total += r.Complexity
	}
	return total
}

// Board is the derived aggregate view of all technicians and their requests,
// ordered by technician ID
type Board struct {
	Technicians []BoardTechnician `json:"technicians"`
}

// Technician returns the board entry for id, if present
func (b *Board) Technician(id string) (BoardTechnician, bool) {
	for _, t := range b.Technicians {
		if t.ID == id {
			return t, true
		}
	}
	return BoardTechnician{}, false
}
