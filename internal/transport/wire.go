package transport

import (
	"errors"
	"fmt"
	"location-tracker/internal/domain"
	"location-tracker/internal/ports"
)

// Inbound event names. Aliases are accepted for servers speaking the
// older vocabulary.
const (
	evIndividualLocation = "individualLocation"
	evLocationUpdate     = "locationUpdate"
	evBulkLocations      = "bulkLocations"
	evUpdateLocations    = "updateLocations"
	evPermissionsUpdated = "permissionsUpdated"
	evError              = "error"
	evConnectError       = "connect_error"
)

// Outbound event names.
const (
	evAuthenticate      = "authenticate"
	evRegister          = "register"
	evSendLocation      = "sendLocation"
	evUpdateLocation    = "updateLocation"
	evUpdatePermissions = "updatePermissions"
)

type authenticatePayload struct {
	UserID string `json:"userId"`
	Token  string `json:"token,omitempty"`
}

type registerPayload struct {
	UserID string `json:"userId"`
}

type sendLocationPayload struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type updateLocationPayload struct {
	UserID   string        `json:"userId"`
	Location domain.LatLng `json:"location"`
	Accuracy *float64      `json:"accuracy,omitempty"`
}

type permissionsPayload struct {
	LocationSharing bool `json:"locationSharing"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// locationPayload covers the flat {userId, lat, lng} shape, the nested
// {userId, location, accuracy} shape and bulk entries keyed by id.
type locationPayload struct {
	UserID      string         `json:"userId"`
	ID          string         `json:"id"`
	Lat         *float64       `json:"lat"`
	Lng         *float64       `json:"lng"`
	Location    *domain.LatLng `json:"location"`
	Accuracy    *float64       `json:"accuracy"`
	DisplayName string         `json:"displayName"`
}

func (p locationPayload) participant() (domain.Participant, error) {
	id := p.UserID
	if id == "" {
		id = p.ID
	}
	if id == "" {
		return domain.Participant{}, errors.New("location without user id")
	}

	var c domain.LatLng
	switch {
	case p.Location != nil:
		c = *p.Location
	case p.Lat != nil && p.Lng != nil:
		c = domain.LatLng{Lat: *p.Lat, Lng: *p.Lng}
	default:
		return domain.Participant{}, fmt.Errorf("location for %s has no coordinate", id)
	}

	return domain.Participant{
		ID:          id,
		Coordinate:  c,
		Accuracy:    p.Accuracy,
		DisplayName: p.DisplayName,
	}, nil
}

// decodeEvent maps an inbound frame onto an Event. ok is false for frames
// the session does not surface.
func decodeEvent(msg ports.Message) (ev Event, ok bool, err error) {
	switch msg.Event {
	case evIndividualLocation, evLocationUpdate:
		var p locationPayload
		if err := msg.Decode(&p); err != nil {
			return Event{}, false, fmt.Errorf("decode %s: %w", msg.Event, err)
		}
		participant, err := p.participant()
		if err != nil {
			return Event{}, false, fmt.Errorf("decode %s: %w", msg.Event, err)
		}
		return Event{Kind: EventIndividualLocation, Participant: participant}, true, nil

	case evBulkLocations, evUpdateLocations:
		var ps []locationPayload
		if err := msg.Decode(&ps); err != nil {
			return Event{}, false, fmt.Errorf("decode %s: %w", msg.Event, err)
		}
		out := make([]domain.Participant, 0, len(ps))
		for i, p := range ps {
			participant, err := p.participant()
			if err != nil {
				return Event{}, false, fmt.Errorf("decode %s entry %d: %w", msg.Event, i, err)
			}
			out = append(out, participant)
		}
		return Event{Kind: EventBulkLocations, Participants: out}, true, nil

	case evPermissionsUpdated:
		var p permissionsPayload
		if err := msg.Decode(&p); err != nil {
			return Event{}, false, fmt.Errorf("decode %s: %w", msg.Event, err)
		}
		return Event{Kind: EventPermissionsChanged, LocationSharing: p.LocationSharing}, true, nil

	case evError, evConnectError:
		var p errorPayload
		if err := msg.Decode(&p); err != nil {
			// Some servers send the message as a bare string.
			var s string
			if msg.Decode(&s) != nil {
				return Event{}, false, fmt.Errorf("decode %s: %w", msg.Event, err)
			}
			p.Message = s
		}
		return Event{Kind: EventError, Err: &ServerError{Message: p.Message}}, true, nil
	}

	return Event{}, false, nil
}
