package redfish

import (
	"bytes"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var supportedEventTypes = []string{
	"StatusChange", "ResourceUpdated", "ResourceAdded", "ResourceRemoved", "Alert",
}

// subscription is one registered push destination.
type subscription struct {
	ID          string
	Destination string
	EventTypes  []string
	Context     string
}

// subscriptionStore delivers events best-effort, at most once, with no
// backpressure: a slow destination just misses events.
type subscriptionStore struct {
	mu   sync.Mutex
	subs map[string]subscription
	log  *logrus.Entry

	client *http.Client
}

func newSubscriptionStore(log *logrus.Entry) *subscriptionStore {
	return &subscriptionStore{
		subs: make(map[string]subscription),
		log:  log,
		client: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

func (st *subscriptionStore) add(sub subscription) {
	st.mu.Lock()
	st.subs[sub.ID] = sub
	st.mu.Unlock()
}

func (st *subscriptionStore) get(id string) (subscription, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	sub, ok := st.subs[id]
	return sub, ok
}

func (st *subscriptionStore) remove(id string) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	if _, ok := st.subs[id]; !ok {
		return false
	}
	delete(st.subs, id)
	return true
}

func (st *subscriptionStore) list() []subscription {
	st.mu.Lock()
	defer st.mu.Unlock()
	out := make([]subscription, 0, len(st.subs))
	for _, sub := range st.subs {
		out = append(out, sub)
	}
	return out
}

// notify pushes one event to every matching subscription. Delivery happens
// off the request path and failures are dropped after a log line.
func (st *subscriptionStore) notify(eventType, message, originOfCondition string) {
	subs := st.list()
	if len(subs) == 0 {
		return
	}
	payload := map[string]any{
		"@odata.type": "#Event.v1_3_0.Event",
		"Id":          uuid.NewString(),
		"Name":        "Event Array",
		"Events": []map[string]any{{
			"EventType":         eventType,
			"EventId":           uuid.NewString(),
			"EventTimestamp":    time.Now().UTC().Format(time.RFC3339),
			"Severity":          "OK",
			"Message":           message,
			"OriginOfCondition": map[string]string{"@odata.id": originOfCondition},
		}},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return
	}
	for _, sub := range subs {
		if !subscribedTo(sub, eventType) {
			continue
		}
		go func(sub subscription) {
			resp, err := st.client.Post(sub.Destination, "application/json", bytes.NewReader(body))
			if err != nil {
				st.log.WithError(err).WithField("destination", sub.Destination).
					Debug("event delivery dropped")
				return
			}
			_ = resp.Body.Close()
		}(sub)
	}
}

func subscribedTo(sub subscription, eventType string) bool {
	if len(sub.EventTypes) == 0 {
		return true
	}
	for _, t := range sub.EventTypes {
		if t == eventType {
			return true
		}
	}
	return false
}

func (s *Server) getEventService(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, EventService{
		OdataContext:                 "/redfish/v1/$metadata#EventService.EventService",
		OdataID:                      "/redfish/v1/EventService",
		OdataType:                    "#EventService.v1_3_0.EventService",
		ID:                           "EventService",
		Name:                         "Event Service",
		ServiceEnabled:               true,
		DeliveryRetryAttempts:        3,
		DeliveryRetryIntervalSeconds: 60,
		EventTypesForSubscription:    supportedEventTypes,
		Subscriptions:                Link{OdataID: "/redfish/v1/EventService/Subscriptions"},
		Status:                       statusOK(),
	})
}

func subscriptionPath(id string) string {
	return "/redfish/v1/EventService/Subscriptions/" + id
}

func (s *Server) subscriptionResource(sub subscription) EventDestination {
	return EventDestination{
		OdataContext: "/redfish/v1/$metadata#EventDestination.EventDestination",
		OdataID:      subscriptionPath(sub.ID),
		OdataType:    "#EventDestination.v1_0_0.EventDestination",
		ID:           sub.ID,
		Name:         "Event Subscription " + sub.ID,
		Destination:  sub.Destination,
		EventTypes:   sub.EventTypes,
		Context:      sub.Context,
		Protocol:     "Redfish",
	}
}

func (s *Server) getSubscriptions(w http.ResponseWriter, _ *http.Request) {
	subs := s.subs.list()
	members := make([]Link, 0, len(subs))
	for _, sub := range subs {
		members = append(members, Link{OdataID: subscriptionPath(sub.ID)})
	}
	s.writeJSON(w, http.StatusOK, Collection{
		OdataContext: "/redfish/v1/$metadata#EventDestinationCollection.EventDestinationCollection",
		OdataID:      "/redfish/v1/EventService/Subscriptions",
		OdataType:    "#EventDestinationCollection.EventDestinationCollection",
		Name:         "Event Subscriptions Collection",
		MembersCount: len(members),
		Members:      members,
	})
}

func (s *Server) postSubscription(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Destination string   `json:"Destination"`
		EventTypes  []string `json:"EventTypes"`
		Context     string   `json:"Context"`
	}
	if !s.decodeBody(w, r, &body) {
		return
	}
	if body.Destination == "" {
		s.writeError(w, http.StatusBadRequest, "Base.1.0.PropertyMissing", "Destination is required")
		return
	}

	sub := subscription{
		ID:          uuid.NewString(),
		Destination: body.Destination,
		EventTypes:  body.EventTypes,
		Context:     body.Context,
	}
	s.subs.add(sub)
	w.Header().Set("Location", subscriptionPath(sub.ID))
	s.writeJSON(w, http.StatusCreated, s.subscriptionResource(sub))
}

func (s *Server) getSubscription(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "subscriptionID")
	sub, ok := s.subs.get(id)
	if !ok {
		s.writeError(w, http.StatusNotFound, "Base.1.0.ResourceMissingAtURI", "No such subscription "+id)
		return
	}
	s.writeJSON(w, http.StatusOK, s.subscriptionResource(sub))
}

func (s *Server) deleteSubscription(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "subscriptionID")
	if !s.subs.remove(id) {
		s.writeError(w, http.StatusNotFound, "Base.1.0.ResourceMissingAtURI", "No such subscription "+id)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
