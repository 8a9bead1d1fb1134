package participants

import "location-tracker/internal/domain"

// View is a participant as presented to a reader: the stored state plus
// whether it is the local device.
type View struct {
	domain.Participant
	Self bool
}

// Project marks the entry matching selfID. The store itself keeps no
// notion of self.
func Project(all []domain.Participant, selfID string) []View {
	out := make([]View, len(all))
	for i, p := range all {
		out[i] = View{Participant: p, Self: selfID != "" && p.ID == selfID}
	}
	return out
}
