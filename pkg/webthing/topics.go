package webthing

import (
	"encoding/json"
	"fmt"

	"github.com/webthing-client/webthing-go/pkg/subscription"
)

// Topics published by a Webthing server.
const (
	TopicEvents      = "/events"
	TopicActions     = "/actions"
	TopicRequests    = "/requests"
	TopicResolutions = "/resolutions"

	propertyTopicPrefix = "/properties/"
)

// PropertyTopic returns the topic carrying observations of the property
// identified by iri.
func PropertyTopic(iri string) string {
	return propertyTopicPrefix + EncodeURIComponent(iri)
}

// SubscribeJSON subscribes to topic and decodes every message body into T.
// Bodies that fail to decode are reported as protocol errors and skipped.
func SubscribeJSON[T any](c *Client, topic string, cb func(T)) *subscription.Handle {
	if cb == nil {
		return c.Subscribe(topic, nil)
	}
	return c.Subscribe(topic, func(body string) {
		var v T
		if err := json.Unmarshal([]byte(body), &v); err != nil {
			c.reportDecodeError(topic, fmt.Errorf("decode %T: %w", v, err))
			return
		}
		cb(v)
	})
}

// SubscribeToProperty subscribes to observations of the property iri.
func (c *Client) SubscribeToProperty(iri string, cb func(Observation)) *subscription.Handle {
	return SubscribeJSON(c, PropertyTopic(iri), cb)
}

// SubscribeToEvents subscribes to newly created events.
func SubscribeToEvents[T any](c *Client, cb func(T)) *subscription.Handle {
	return SubscribeJSON(c, TopicEvents, cb)
}

// SubscribeToActions subscribes to action updates.
func SubscribeToActions[T any](c *Client, cb func(T)) *subscription.Handle {
	return SubscribeJSON(c, TopicActions, cb)
}

// SubscribeToRequests subscribes to new action requests.
func SubscribeToRequests[T any](c *Client, cb func(T)) *subscription.Handle {
	return SubscribeJSON(c, TopicRequests, cb)
}

// SubscribeToResolutions subscribes to action resolutions.
func SubscribeToResolutions[T any](c *Client, cb func(T)) *subscription.Handle {
	return SubscribeJSON(c, TopicResolutions, cb)
}
